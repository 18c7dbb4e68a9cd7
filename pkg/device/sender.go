package device

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/ctlbridge/ctlbridge-go/pkg/executor"
	"github.com/ctlbridge/ctlbridge-go/pkg/log"
)

// SenderConfig configures a Sender.
type SenderConfig struct {
	Registry *Registry
	Executor *executor.Context

	// Logger is the operational logger. Nil means slog.Default().
	Logger *slog.Logger

	// Trace receives a trace event per message. Nil disables tracing.
	Trace     log.Logger
	SessionID string
}

// Sender writes messages to every output port.
type Sender struct {
	cfg    SenderConfig
	logger *slog.Logger
	trace  log.Tracer
	strand *executor.Strand

	running atomic.Bool
	sent    atomic.Uint64
}

// NewSender creates a sender.
func NewSender(cfg SenderConfig) *Sender {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Sender{
		cfg:    cfg,
		logger: logger.With("component", "device-sender"),
		trace:  log.NewTracer(cfg.Trace, cfg.SessionID, "device-sender"),
		strand: executor.NewStrand(cfg.Executor),
	}
}

// Start enables sending.
func (s *Sender) Start(context.Context) error {
	if s.running.Swap(true) {
		return ErrAlreadyStarted
	}
	s.logger.Info("device sender started", "ports", s.cfg.Registry.OutputNames())
	return nil
}

// Stop disables sending. Writes already posted still run.
func (s *Sender) Stop() error {
	if s.running.Swap(false) {
		s.logger.Info("device sender stopped", "sent", s.sent.Load())
	}
	return nil
}

// Sent returns the number of messages written.
func (s *Sender) Sent() uint64 {
	return s.sent.Load()
}

// Send validates msg and posts a write to every output port.
func (s *Sender) Send(msg Message) error {
	if !s.running.Load() {
		return ErrNotStarted
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	return s.strand.Post(func() { s.write(msg) })
}

func (s *Sender) write(msg Message) {
	for _, port := range s.cfg.Registry.Outputs() {
		if err := port.Write(msg); err != nil {
			s.logger.Warn("device write failed", "port", port.Name(), "error", err)
			continue
		}
		s.sent.Add(1)
		s.trace.Emit(log.Event{
			Direction: log.DirectionOut,
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
	}
}
