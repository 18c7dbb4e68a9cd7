package device

import (
	"context"
	"sync"
)

// VirtualPort is an in-memory loopback port. Messages written to it are read
// back from it. It is used by the console front end and in tests.
type VirtualPort struct {
	name string
	ch   chan Message

	closeOnce sync.Once
	done      chan struct{}
}

// NewVirtualPort creates a loopback port buffering up to size messages.
func NewVirtualPort(name string, size int) *VirtualPort {
	if size < 1 {
		size = 1
	}
	return &VirtualPort{
		name: name,
		ch:   make(chan Message, size),
		done: make(chan struct{}),
	}
}

// Name returns the port name.
func (p *VirtualPort) Name() string {
	return p.name
}

// Write queues msg for reading. It never blocks; ErrBufferFull is returned
// when nobody is draining the port.
func (p *VirtualPort) Write(msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	select {
	case <-p.done:
		return ErrPortClosed
	default:
	}
	select {
	case p.ch <- msg:
		return nil
	default:
		return ErrBufferFull
	}
}

// Read returns the next message.
func (p *VirtualPort) Read(ctx context.Context) (Message, error) {
	select {
	case msg := <-p.ch:
		return msg, nil
	case <-p.done:
		return Message{}, ErrPortClosed
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// Close closes the port. Blocked readers and writers return ErrPortClosed.
func (p *VirtualPort) Close() error {
	p.closeOnce.Do(func() { close(p.done) })
	return nil
}

var (
	_ InputPort  = (*VirtualPort)(nil)
	_ OutputPort = (*VirtualPort)(nil)
)
