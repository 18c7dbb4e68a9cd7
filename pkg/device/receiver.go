package device

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/ctlbridge/ctlbridge-go/pkg/crash"
	"github.com/ctlbridge/ctlbridge-go/pkg/executor"
	"github.com/ctlbridge/ctlbridge-go/pkg/log"
)

// Lifecycle errors shared by Receiver and Sender.
var (
	ErrAlreadyStarted = errors.New("already started")
	ErrNotStarted     = errors.New("not started")
)

// Callback receives device messages. It runs on an executor worker.
type Callback func(msg Message)

type ownerCallbacks struct {
	seq uint64
	fns []Callback
}

// ReceiverConfig configures a Receiver.
type ReceiverConfig struct {
	Registry *Registry
	Executor *executor.Context

	// Logger is the operational logger. Nil means slog.Default().
	Logger *slog.Logger

	// Trace receives a trace event per message. Nil disables tracing.
	Trace     log.Logger
	SessionID string

	// PanicHandler receives a panic raised by a port reader. Nil lets it
	// crash the process.
	PanicHandler func(any)
}

// Receiver reads the input ports and dispatches messages to callbacks.
type Receiver struct {
	cfg    ReceiverConfig
	logger *slog.Logger
	trace  log.Tracer
	strand *executor.Strand

	callbacks cmap.ConcurrentMap[string, ownerCallbacks]
	seq       atomic.Uint64

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	received atomic.Uint64
}

// NewReceiver creates a receiver.
func NewReceiver(cfg ReceiverConfig) *Receiver {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Receiver{
		cfg:       cfg,
		logger:    logger.With("component", "device-receiver"),
		trace:     log.NewTracer(cfg.Trace, cfg.SessionID, "device-receiver"),
		strand:    executor.NewStrand(cfg.Executor),
		callbacks: cmap.New[ownerCallbacks](),
	}
}

// AddCallback registers fn under owner. Callbacks run in registration order
// of their owners.
func (r *Receiver) AddCallback(owner string, fn Callback) {
	r.callbacks.Upsert(owner, ownerCallbacks{}, func(exists bool, cur, _ ownerCallbacks) ownerCallbacks {
		if !exists {
			cur.seq = r.seq.Add(1)
		}
		cur.fns = append(cur.fns[:len(cur.fns):len(cur.fns)], fn)
		return cur
	})
}

// RemoveCallbacks drops every callback registered by owner.
func (r *Receiver) RemoveCallbacks(owner string) {
	r.callbacks.Remove(owner)
}

// CallbackCount returns the number of registered callbacks.
func (r *Receiver) CallbackCount() int {
	n := 0
	for item := range r.callbacks.IterBuffered() {
		n += len(item.Val.fns)
	}
	return n
}

// Received returns the number of messages read from the ports.
func (r *Receiver) Received() uint64 {
	return r.received.Load()
}

// Start launches one reader per registered input port.
func (r *Receiver) Start(ctx context.Context) error {
	if r.running.Swap(true) {
		return ErrAlreadyStarted
	}

	readCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel

	for _, port := range r.cfg.Registry.Inputs() {
		r.wg.Add(1)
		go r.readLoop(readCtx, port)
	}
	r.logger.Info("device receiver started", "ports", r.cfg.Registry.InputNames())
	return nil
}

// Stop stops the readers, waits for them to exit and drops every callback.
// Nothing is posted to the executor after Stop returns.
func (r *Receiver) Stop() error {
	if !r.running.Swap(false) {
		return nil
	}
	r.cancel()
	r.wg.Wait()
	r.callbacks.Clear()
	r.logger.Info("device receiver stopped", "received", r.received.Load())
	return nil
}

func (r *Receiver) readLoop(ctx context.Context, port InputPort) {
	defer r.wg.Done()
	defer crash.Guard(r.cfg.PanicHandler)
	for {
		msg, err := port.Read(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, ErrPortClosed) {
				r.logger.Warn("device read failed", "port", port.Name(), "error", err)
			}
			return
		}
		r.received.Add(1)
		r.trace.Emit(log.Event{
			Direction: log.DirectionIn,
			Layer:     log.LayerDevice,
			Category:  log.CategoryMessage,
			Endpoint:  port.Name(),
			Device: &log.DeviceEvent{
				Kind:    msg.Kind.String(),
				Channel: msg.Channel,
				Number:  msg.Number,
				Value:   msg.Value,
			},
		})

		if err := r.strand.Post(func() { r.dispatch(msg) }); err != nil {
			r.logger.Debug("device message dropped", "port", port.Name(), "error", err)
		}
	}
}

func (r *Receiver) dispatch(msg Message) {
	owners := make([]ownerCallbacks, 0, r.callbacks.Count())
	for item := range r.callbacks.IterBuffered() {
		owners = append(owners, item.Val)
	}
	sort.Slice(owners, func(i, j int) bool { return owners[i].seq < owners[j].seq })
	for _, o := range owners {
		for _, fn := range o.fns {
			fn(msg)
		}
	}
}
