// Package diagnostics serves Prometheus metrics and liveness/readiness
// checks on a local HTTP address.
package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/ctlbridge/ctlbridge-go/pkg/crash"
)

// Namespace prefixes every metric of the process.
const Namespace = "ctlbridge"

// Defaults for Config.
const (
	DefaultMaxGoroutines = 1000
	DefaultMaxRSS        = 512 << 20
	shutdownTimeout      = 2 * time.Second
)

// Diagnostics errors.
var (
	ErrAlreadyStarted = errors.New("diagnostics server already started")
	ErrRSSExceeded    = errors.New("resident memory above limit")
)

// Check reports a health problem as an error.
type Check = healthcheck.Check

// NewRegistry returns a registry carrying the Go runtime and process
// collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: Namespace}),
	)
	return reg
}

// Config configures a Server.
type Config struct {
	// Address to listen on, e.g. "127.0.0.1:9464".
	Address string

	// Registry is served at /metrics. Check results are added to it.
	Registry *prometheus.Registry

	// MaxGoroutines fails liveness above this count.
	MaxGoroutines int

	// MaxRSS fails liveness when resident memory exceeds it, in bytes.
	MaxRSS uint64

	// Logger is the operational logger. Nil means slog.Default().
	Logger *slog.Logger

	// PanicHandler receives a panic raised by the serve goroutine. Nil lets
	// it crash the process.
	PanicHandler func(any)
}

// Server is the diagnostics HTTP endpoint.
type Server struct {
	cfg    Config
	logger *slog.Logger
	health healthcheck.Handler
	mux    *http.ServeMux

	mu   sync.Mutex
	srv  *http.Server
	addr string
	done chan struct{}
}

// New creates a server with the goroutine and memory liveness checks.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}
	if cfg.MaxGoroutines <= 0 {
		cfg.MaxGoroutines = DefaultMaxGoroutines
	}
	if cfg.MaxRSS == 0 {
		cfg.MaxRSS = DefaultMaxRSS
	}

	s := &Server{
		cfg:    cfg,
		logger: logger.With("component", "diagnostics"),
		health: healthcheck.NewMetricsHandler(cfg.Registry, Namespace),
		mux:    http.NewServeMux(),
	}
	s.health.AddLivenessCheck("goroutines", healthcheck.GoroutineCountCheck(cfg.MaxGoroutines))
	s.health.AddLivenessCheck("memory", RSSCheck(cfg.MaxRSS))

	s.mux.Handle("/metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	s.mux.HandleFunc("/live", s.health.LiveEndpoint)
	s.mux.HandleFunc("/ready", s.health.ReadyEndpoint)
	return s
}

// AddLivenessCheck adds a check that fails /live and /ready.
func (s *Server) AddLivenessCheck(name string, check Check) {
	s.health.AddLivenessCheck(name, check)
}

// AddReadinessCheck adds a check that fails /ready only.
func (s *Server) AddReadinessCheck(name string, check Check) {
	s.health.AddReadinessCheck(name, check)
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Start binds the address and serves in the background.
func (s *Server) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return ErrAlreadyStarted
	}

	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("diagnostics listen: %w", err)
	}
	srv := &http.Server{Handler: s.mux, ReadHeaderTimeout: 5 * time.Second}
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer crash.Guard(s.cfg.PanicHandler)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("diagnostics server failed", "error", err)
		}
	}()

	s.srv = srv
	s.addr = ln.Addr().String()
	s.done = done
	s.logger.Info("diagnostics listening", "addr", s.addr)
	return nil
}

// Stop shuts the server down and waits for it.
func (s *Server) Stop() error {
	s.mu.Lock()
	srv, done := s.srv, s.done
	s.srv = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(ctx)
	<-done
	return err
}

// RSSCheck fails when the resident set size of this process exceeds limit.
func RSSCheck(limit uint64) Check {
	return func() error {
		p, err := process.NewProcess(int32(os.Getpid()))
		if err != nil {
			return err
		}
		mem, err := p.MemoryInfo()
		if err != nil {
			return err
		}
		if mem.RSS > limit {
			return fmt.Errorf("%w: %d > %d", ErrRSSExceeded, mem.RSS, limit)
		}
		return nil
	}
}

// RunningCheck fails while running reports false.
func RunningCheck(name string, running func() bool) Check {
	return func() error {
		if !running() {
			return fmt.Errorf("%s not running", name)
		}
		return nil
	}
}
