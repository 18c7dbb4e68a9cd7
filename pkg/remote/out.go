package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/valyala/bytebufferpool"

	"github.com/ctlbridge/ctlbridge-go/pkg/controls"
	"github.com/ctlbridge/ctlbridge-go/pkg/crash"
	"github.com/ctlbridge/ctlbridge-go/pkg/device"
	"github.com/ctlbridge/ctlbridge-go/pkg/executor"
	"github.com/ctlbridge/ctlbridge-go/pkg/log"
	"github.com/ctlbridge/ctlbridge-go/pkg/profile"
)

// Remote errors.
var (
	ErrAlreadyStarted = errors.New("remote already started")
	ErrNotStarted     = errors.New("remote not started")
	ErrNotConnected   = errors.New("remote not connected")
	ErrQueueFull      = errors.New("remote send queue full")
)

// DefaultQueueSize bounds the lines waiting for the connection.
const DefaultQueueSize = 256

// ownerOut is the device callback owner registered by Out.
const ownerOut = "remote-out"

// ConnectionFunc is told when the host connects or disconnects. It runs on
// an executor worker.
type ConnectionFunc func(connected bool)

// OutConfig configures an Out.
type OutConfig struct {
	// Address is host:port of the plugin's receiving socket.
	Address string

	Profile  *profile.Profile
	Controls *controls.Model
	Receiver *device.Receiver
	Executor *executor.Context

	// QueueSize bounds pending lines. Zero means DefaultQueueSize.
	QueueSize int

	// BackOff creates the reconnect policy. Nil means exponential up to 5s.
	BackOff func() backoff.BackOff

	// Logger is the operational logger. Nil means slog.Default().
	Logger *slog.Logger

	// Trace receives a trace event per line. Nil disables tracing.
	Trace     log.Logger
	SessionID string

	// PanicHandler receives a panic raised on a connection goroutine.
	// Nil lets it crash the process.
	PanicHandler func(any)
}

type connListener struct {
	owner string
	fn    ConnectionFunc
}

// Out sends commands to the host.
type Out struct {
	cfg    OutConfig
	logger *slog.Logger
	trace  log.Tracer
	strand *executor.Strand
	link   link
	queue  chan Line

	mu        sync.Mutex
	listeners []connListener

	running   atomic.Bool
	connected atomic.Bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	sent atomic.Uint64
}

// NewOut creates the sending side.
func NewOut(cfg OutConfig) *Out {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.BackOff == nil {
		cfg.BackOff = defaultBackOff
	}
	logger = logger.With("component", "remote-out")
	return &Out{
		cfg:    cfg,
		logger: logger,
		trace:  log.NewTracer(cfg.Trace, cfg.SessionID, ownerOut),
		strand: executor.NewStrand(cfg.Executor),
		link:   link{addr: cfg.Address, logger: logger, newBackOff: cfg.BackOff},
		queue:  make(chan Line, cfg.QueueSize),
	}
}

// OnConnection registers fn under owner.
func (o *Out) OnConnection(owner string, fn ConnectionFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.listeners = append(o.listeners, connListener{owner: owner, fn: fn})
}

// Connected reports whether the host is connected.
func (o *Out) Connected() bool {
	return o.connected.Load()
}

// Sent returns the number of lines written.
func (o *Out) Sent() uint64 {
	return o.sent.Load()
}

// Start registers for device input and begins connecting.
func (o *Out) Start(ctx context.Context) error {
	if o.running.Swap(true) {
		return ErrAlreadyStarted
	}
	if o.cfg.Receiver != nil {
		o.cfg.Receiver.AddCallback(ownerOut, o.handleDevice)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o.cancel = cancel
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer crash.Guard(o.cfg.PanicHandler)
		o.link.run(runCtx, o.session)
	}()
	o.logger.Info("remote out started", "addr", o.cfg.Address)
	return nil
}

// Stop deregisters every callback, closes the connection and waits for the
// connection goroutines.
func (o *Out) Stop() error {
	if !o.running.Swap(false) {
		return nil
	}
	if o.cfg.Receiver != nil {
		o.cfg.Receiver.RemoveCallbacks(ownerOut)
	}
	o.mu.Lock()
	o.listeners = nil
	o.mu.Unlock()

	o.cancel()
	o.wg.Wait()
	o.logger.Info("remote out stopped", "sent", o.sent.Load())
	return nil
}

// SendCommand queues a line for the host.
func (o *Out) SendCommand(command, value string) error {
	if !o.running.Load() {
		return ErrNotStarted
	}
	if !o.connected.Load() {
		return ErrNotConnected
	}
	select {
	case o.queue <- Line{Command: command, Value: value}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (o *Out) session(ctx context.Context, conn net.Conn) error {
	stop := closeOnDone(ctx, conn)
	defer stop()

	connID := uuid.NewString()
	addr := conn.RemoteAddr().String()
	o.logger.Info("remote out connected", "addr", addr, "conn_id", connID)
	o.setConnected(addr, true, connID)
	defer o.setConnected(addr, false, connID)

	readErr := make(chan error, 1)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer crash.Guard(o.cfg.PanicHandler)
		_, err := io.Copy(io.Discard, conn)
		if err == nil {
			err = io.EOF
		}
		readErr <- err
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return err
		case line := <-o.queue:
			if err := o.write(conn, line); err != nil {
				return err
			}
		}
	}
}

func (o *Out) write(conn net.Conn, line Line) error {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	buf.B = AppendLine(buf.B, line.Command, line.Value)

	if _, err := conn.Write(buf.B); err != nil {
		return fmt.Errorf("write line: %w", err)
	}
	o.sent.Add(1)
	o.trace.Emit(log.Event{
		Direction: log.DirectionOut,
		Layer:     log.LayerRemote,
		Category:  log.CategoryMessage,
		Endpoint:  o.cfg.Address,
		Remote:    &log.RemoteEvent{Command: line.Command, Value: line.Value},
	})
	return nil
}

func (o *Out) setConnected(addr string, connected bool, connID string) {
	o.connected.Store(connected)
	if !connected {
		// Lines queued for a dead connection are stale.
		for len(o.queue) > 0 {
			<-o.queue
		}
	}

	oldState, newState := "DISCONNECTED", "CONNECTED"
	if !connected {
		oldState, newState = newState, oldState
	}
	o.trace.Emit(log.Event{
		Layer:    log.LayerRemote,
		Category: log.CategoryState,
		Endpoint: addr,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			Name:     connID,
			OldState: oldState,
			NewState: newState,
		},
	})

	o.mu.Lock()
	listeners := append([]connListener(nil), o.listeners...)
	o.mu.Unlock()
	if len(listeners) == 0 {
		return
	}
	err := o.strand.Post(func() {
		for _, l := range listeners {
			l.fn(connected)
		}
	})
	if err != nil {
		o.logger.Debug("connection notice dropped", "error", err)
	}
}

// handleDevice forwards a mapped device message to the host.
func (o *Out) handleDevice(msg device.Message) {
	cmd, ok := o.cfg.Profile.Command(profile.IDOf(msg))
	if !ok || cmd == profile.CommandPrevProfile || cmd == profile.CommandNextProfile {
		return
	}
	value, err := o.cfg.Controls.ControllerToPlugin(msg)
	if err != nil {
		o.logger.Debug("device message not mapped", "msg", msg.String(), "error", err)
		return
	}
	if err := o.SendCommand(cmd, strconv.FormatFloat(value, 'g', -1, 64)); err != nil {
		o.logger.Debug("command not sent", "command", cmd, "error", err)
	}
}
