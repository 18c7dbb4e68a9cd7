// Package instance keeps a single running process per user.
//
// The first process to bind the loopback address becomes the primary. Later
// invocations forward their arguments to it and exit. The host application
// starts a second process with ShutdownToken to ask the primary to quit.
package instance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ctlbridge/ctlbridge-go/pkg/crash"
	"github.com/ctlbridge/ctlbridge-go/pkg/transport"
)

// ShutdownToken is the argument that asks the running instance to quit.
const ShutdownToken = "--LRSHUTDOWN"

// DefaultAddress is the loopback address the primary listens on.
const DefaultAddress = "127.0.0.1:58765"

const ioTimeout = 5 * time.Second

// Instance errors.
var (
	ErrAlreadyRunning = errors.New("another instance is already running")
	ErrAlreadyServing = errors.New("instance guard already serving")
	ErrRejected       = errors.New("forwarded arguments rejected")
)

// Request carries the arguments of a secondary invocation.
type Request struct {
	Args   []string  `cbor:"1,keyasint"`
	SentAt time.Time `cbor:"2,keyasint"`
}

// Reply acknowledges a Request.
type Reply struct {
	Accepted bool `cbor:"1,keyasint"`
}

// Handler receives forwarded arguments. It runs on the connection goroutine
// and should hand work off rather than block.
type Handler func(args []string)

// Guard is held by the primary instance.
type Guard struct {
	ln      net.Listener
	logger  *slog.Logger
	onPanic func(any)

	serving atomic.Bool
	closed  atomic.Bool
	wg      sync.WaitGroup
}

// Acquire tries to become the primary instance on addr. If another process
// already answers there it returns ErrAlreadyRunning.
func Acquire(addr string, logger *slog.Logger) (*Guard, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		conn, dialErr := net.DialTimeout("tcp", addr, time.Second)
		if dialErr == nil {
			_ = conn.Close()
			return nil, fmt.Errorf("%w at %s", ErrAlreadyRunning, addr)
		}
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return &Guard{
		ln:     ln,
		logger: logger.With("component", "instance"),
	}, nil
}

// Addr returns the bound address.
func (g *Guard) Addr() string {
	return g.ln.Addr().String()
}

// SetPanicHandler routes panics on the accept and connection goroutines to
// fn. Call it before Serve.
func (g *Guard) SetPanicHandler(fn func(any)) {
	g.onPanic = fn
}

// Serve accepts forwarded invocations in the background until Close.
func (g *Guard) Serve(handler Handler) error {
	if g.serving.Swap(true) {
		return ErrAlreadyServing
	}
	g.wg.Add(1)
	go g.acceptLoop(handler)
	return nil
}

func (g *Guard) acceptLoop(handler Handler) {
	defer g.wg.Done()
	defer crash.Guard(g.onPanic)
	for {
		conn, err := g.ln.Accept()
		if err != nil {
			if !g.closed.Load() {
				g.logger.Warn("accept failed", "error", err)
			}
			return
		}
		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			defer crash.Guard(g.onPanic)
			g.handle(conn, handler)
		}()
	}
}

func (g *Guard) handle(conn net.Conn, handler Handler) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(ioTimeout))

	framer := transport.NewFramer(conn)
	var req Request
	if err := framer.ReadMessage(&req); err != nil {
		g.logger.Debug("bad forwarded request", "remote", conn.RemoteAddr().String(), "error", err)
		return
	}
	g.logger.Info("arguments forwarded from another instance", "args", req.Args)

	accepted := !g.closed.Load()
	if accepted && handler != nil {
		handler(req.Args)
	}
	if err := framer.WriteMessage(Reply{Accepted: accepted}); err != nil {
		g.logger.Debug("reply failed", "error", err)
	}
}

// Close stops accepting and waits for in-flight handlers.
func (g *Guard) Close() error {
	if g.closed.Swap(true) {
		return nil
	}
	err := g.ln.Close()
	g.wg.Wait()
	return err
}

// Forward sends args to the primary instance at addr and waits for its reply.
func Forward(ctx context.Context, addr string, args []string) error {
	var d net.Dialer
	dialCtx, cancel := context.WithTimeout(ctx, ioTimeout)
	defer cancel()

	conn, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial primary instance: %w", err)
	}
	defer conn.Close()

	deadline, _ := dialCtx.Deadline()
	_ = conn.SetDeadline(deadline)

	framer := transport.NewFramer(conn)
	if err := framer.WriteMessage(Request{Args: args, SentAt: time.Now()}); err != nil {
		return err
	}
	var reply Reply
	if err := framer.ReadMessage(&reply); err != nil {
		return fmt.Errorf("read reply: %w", err)
	}
	if !reply.Accepted {
		return ErrRejected
	}
	return nil
}

// IsShutdown reports whether args carry the shutdown token.
func IsShutdown(args []string) bool {
	for _, a := range args {
		if a == ShutdownToken {
			return true
		}
	}
	return false
}
