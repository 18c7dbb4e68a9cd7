package remote

import (
	"bufio"
	"context"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/cenkalti/backoff/v4"

	"github.com/ctlbridge/ctlbridge-go/pkg/controls"
	"github.com/ctlbridge/ctlbridge-go/pkg/crash"
	"github.com/ctlbridge/ctlbridge-go/pkg/device"
	"github.com/ctlbridge/ctlbridge-go/pkg/executor"
	"github.com/ctlbridge/ctlbridge-go/pkg/log"
	"github.com/ctlbridge/ctlbridge-go/pkg/profile"
)

const maxLineSize = 64 * 1024

// DeviceSender writes messages to the device.
type DeviceSender interface {
	Send(msg device.Message) error
}

// ProfileSwitcher activates a profile by file name.
type ProfileSwitcher interface {
	SwitchToProfile(name string) error
}

// InConfig configures an In.
type InConfig struct {
	// Address is host:port of the plugin's sending socket.
	Address string

	Profile  *profile.Profile
	Controls *controls.Model
	Sender   DeviceSender
	Profiles ProfileSwitcher
	Executor *executor.Context

	// Quit is called when the host asks the application to terminate.
	Quit func()

	// BackOff creates the reconnect policy. Nil means exponential up to 5s.
	BackOff func() backoff.BackOff

	// Logger is the operational logger. Nil means slog.Default().
	Logger *slog.Logger

	// Trace receives a trace event per line. Nil disables tracing.
	Trace     log.Logger
	SessionID string

	// PanicHandler receives a panic raised on the connection goroutine.
	// Nil lets it crash the process.
	PanicHandler func(any)
}

// In receives lines from the host and applies them.
type In struct {
	cfg    InConfig
	logger *slog.Logger
	trace  log.Tracer
	strand *executor.Strand
	link   link

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	received atomic.Uint64
}

// NewIn creates the receiving side.
func NewIn(cfg InConfig) *In {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BackOff == nil {
		cfg.BackOff = defaultBackOff
	}
	logger = logger.With("component", "remote-in")
	return &In{
		cfg:    cfg,
		logger: logger,
		trace:  log.NewTracer(cfg.Trace, cfg.SessionID, "remote-in"),
		strand: executor.NewStrand(cfg.Executor),
		link:   link{addr: cfg.Address, logger: logger, newBackOff: cfg.BackOff},
	}
}

// Received returns the number of lines read.
func (in *In) Received() uint64 {
	return in.received.Load()
}

// Start begins connecting.
func (in *In) Start(ctx context.Context) error {
	if in.running.Swap(true) {
		return ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	in.cancel = cancel
	in.wg.Add(1)
	go func() {
		defer in.wg.Done()
		defer crash.Guard(in.cfg.PanicHandler)
		in.link.run(runCtx, in.session)
	}()
	in.logger.Info("remote in started", "addr", in.cfg.Address)
	return nil
}

// Stop closes the connection and waits for the reader. Nothing is posted to
// the executor after Stop returns.
func (in *In) Stop() error {
	if !in.running.Swap(false) {
		return nil
	}
	in.cancel()
	in.wg.Wait()
	in.logger.Info("remote in stopped", "received", in.received.Load())
	return nil
}

func (in *In) session(ctx context.Context, conn net.Conn) error {
	stop := closeOnDone(ctx, conn)
	defer stop()

	addr := conn.RemoteAddr().String()
	in.logger.Info("remote in connected", "addr", addr)

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)
	for scanner.Scan() {
		line, err := ParseLine(scanner.Text())
		if err != nil {
			continue
		}
		in.received.Add(1)
		in.trace.Emit(log.Event{
			Direction: log.DirectionIn,
			Layer:     log.LayerRemote,
			Category:  log.CategoryMessage,
			Endpoint:  addr,
			Remote:    &log.RemoteEvent{Command: line.Command, Value: line.Value},
		})
		if err := in.strand.Post(func() { in.dispatch(line) }); err != nil {
			in.logger.Debug("remote line dropped", "command", line.Command, "error", err)
		}
	}
	return scanner.Err()
}

func (in *In) dispatch(line Line) {
	switch line.Command {
	case CommandTerminate:
		in.logger.Info("host requested termination")
		if in.cfg.Quit != nil {
			in.cfg.Quit()
		}
	case CommandSwitchProfile:
		if in.cfg.Profiles == nil {
			return
		}
		if err := in.cfg.Profiles.SwitchToProfile(line.Value); err != nil {
			in.logger.Warn("profile switch failed", "profile", line.Value, "error", err)
		}
	default:
		in.applyValue(line)
	}
}

// applyValue moves every control mapped to the command to the host value.
func (in *In) applyValue(line Line) {
	value, err := strconv.ParseFloat(line.Value, 64)
	if err != nil {
		in.logger.Debug("non-numeric value ignored", "command", line.Command, "value", line.Value)
		return
	}
	for _, id := range in.cfg.Profile.MessagesFor(line.Command) {
		v, err := in.cfg.Controls.PluginToController(id.Kind, int(id.Channel), int(id.Number), value)
		if err != nil {
			in.logger.Debug("value not mapped", "control", id.String(), "error", err)
			continue
		}
		msg := device.Message{Kind: id.Kind, Channel: id.Channel, Number: id.Number, Value: v}
		if err := in.cfg.Sender.Send(msg); err != nil {
			in.logger.Debug("device update not sent", "control", id.String(), "error", err)
		}
	}
}
