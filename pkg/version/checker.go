package version

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ctlbridge/ctlbridge-go/pkg/crash"
	"github.com/ctlbridge/ctlbridge-go/pkg/executor"
)

// Checker errors.
var (
	ErrAlreadyStarted = errors.New("version checker already started")
	ErrBadResponse    = errors.New("bad version response")
)

// Defaults for CheckerConfig.
const (
	DefaultCheckDelay  = 5 * time.Second
	DefaultMaxAttempts = 4
	maxBodySize        = 256
)

// Recorder stores the newest version already reported.
type Recorder interface {
	LastVersionFound() string
	SetLastVersionFound(v string) error
}

// NewVersionFunc is called with a newer version than the running one.
type NewVersionFunc func(v Version)

// CheckerConfig configures a Checker.
type CheckerConfig struct {
	// URL returns the latest version as plain text. Empty disables checking.
	URL string

	// Current is the running version. Empty means the package Current.
	Current string

	// Delay before the first request.
	Delay time.Duration

	// MaxAttempts bounds the number of requests.
	MaxAttempts int

	// Client is the HTTP client. Nil means a client with a 10s timeout.
	Client *http.Client

	// Executor runs the notification callbacks.
	Executor *executor.Context

	// Recorder remembers what has been reported. May be nil.
	Recorder Recorder

	// Logger is the operational logger. Nil means slog.Default().
	Logger *slog.Logger

	// PanicHandler receives a panic raised by the check goroutine. Nil lets
	// it crash the process.
	PanicHandler func(any)
}

// Checker polls for a newer release once per run.
type Checker struct {
	cfg     CheckerConfig
	current Version
	logger  *slog.Logger

	mu        sync.Mutex
	callbacks []NewVersionFunc
	latest    *Version

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewChecker creates a checker.
func NewChecker(cfg CheckerConfig) (*Checker, error) {
	if cfg.Current == "" {
		cfg.Current = Current
	}
	current, err := Parse(cfg.Current)
	if err != nil {
		return nil, err
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 10 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		cfg:     cfg,
		current: current,
		logger:  logger.With("component", "version-checker"),
	}, nil
}

// OnNewVersion registers fn.
func (c *Checker) OnNewVersion(fn NewVersionFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks = append(c.callbacks, fn)
}

// Latest returns the version found by the last successful check.
func (c *Checker) Latest() (Version, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latest == nil {
		return Version{}, false
	}
	return *c.latest, true
}

// Start schedules the check.
func (c *Checker) Start(ctx context.Context) error {
	if c.running.Swap(true) {
		return ErrAlreadyStarted
	}
	if c.cfg.URL == "" {
		c.logger.Debug("version check disabled")
		return nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.wg.Add(1)
	go c.run(runCtx)
	return nil
}

// Stop cancels a pending or running check and waits for it.
func (c *Checker) Stop() error {
	if !c.running.Swap(false) {
		return nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	return nil
}

func (c *Checker) run(ctx context.Context) {
	defer c.wg.Done()
	defer crash.Guard(c.cfg.PanicHandler)

	timer := time.NewTimer(c.cfg.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.cfg.MaxAttempts-1)), ctx)

	var found Version
	err := backoff.RetryNotify(func() error {
		v, err := c.fetch(ctx)
		if err != nil {
			return err
		}
		found = v
		return nil
	}, policy, func(err error, wait time.Duration) {
		c.logger.Debug("version check failed, retrying", "error", err, "wait", wait)
	})
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Info("version check gave up", "error", err)
		}
		return
	}

	c.mu.Lock()
	c.latest = &found
	c.mu.Unlock()
	c.logger.Debug("version check complete", "latest", found.String(), "current", c.current.String())

	if !found.Newer(c.current) || ctx.Err() != nil {
		return
	}
	if err := c.cfg.Executor.Post(func() { c.report(found) }); err != nil {
		c.logger.Debug("version notice dropped", "error", err)
	}
}

func (c *Checker) fetch(ctx context.Context) (Version, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL, nil)
	if err != nil {
		return Version{}, backoff.Permanent(err)
	}
	resp, err := c.cfg.Client.Do(req)
	if err != nil {
		return Version{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return Version{}, fmt.Errorf("%w: %s", ErrBadResponse, resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		return Version{}, backoff.Permanent(fmt.Errorf("%w: %s", ErrBadResponse, resp.Status))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return Version{}, err
	}
	v, err := Parse(strings.TrimSpace(string(body)))
	if err != nil {
		return Version{}, backoff.Permanent(fmt.Errorf("%w: %w", ErrBadResponse, err))
	}
	return v, nil
}

// report runs on the executor.
func (c *Checker) report(v Version) {
	if r := c.cfg.Recorder; r != nil {
		if last, err := Parse(r.LastVersionFound()); err == nil && !v.Newer(last) {
			return
		}
		if err := r.SetLastVersionFound(v.String()); err != nil {
			c.logger.Warn("could not record version", "error", err)
		}
	}

	c.logger.Info("newer version available", "version", v.String())
	c.mu.Lock()
	callbacks := append([]NewVersionFunc(nil), c.callbacks...)
	c.mu.Unlock()
	for _, fn := range callbacks {
		fn(v)
	}
}
