package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/pprof"
	"sync"
	"sync/atomic"

	"github.com/Workiva/go-datastructures/queue"
	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus"
)

// Executor errors.
var (
	ErrAlreadyStarted = errors.New("execution context already started")
	ErrStopped        = errors.New("execution context stopped")
	ErrInvalidWorkers = errors.New("worker count must be at least 1")
	ErrNilFunc        = errors.New("nil work item")
)

// DefaultWorkers is the worker count used when none is configured.
const DefaultWorkers = 2

// queueHint sizes the initial ring of the shared queue.
const queueHint = 64

// Stats is a snapshot of the context counters.
type Stats struct {
	Workers  int
	Guards   int
	Pending  int
	Posted   uint64
	Executed uint64
	Dropped  uint64
	Panics   uint64
}

// Option configures a Context.
type Option func(*Context)

// WithLogger sets the logger. Nil means slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Context) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics registers executor metrics with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *Context) {
		if reg != nil {
			c.metrics = NewMetrics(reg)
		}
	}
}

// WithPanicHandler sets the function invoked with the value of any panic
// raised by a work item. The process-wide crash handler is installed here
// in production. Without a handler panics are logged and the worker continues.
func WithPanicHandler(fn func(any)) Option {
	return func(c *Context) {
		c.panicHandler = fn
	}
}

// Context is the shared execution queue and its worker pool.
type Context struct {
	q    *queue.Queue
	pool *ants.Pool
	wg   sync.WaitGroup

	logger       *slog.Logger
	metrics      *Metrics
	panicHandler func(any)

	running atomic.Bool

	// mu guards the open/closed transition and the idle bookkeeping.
	mu       sync.Mutex
	closed   bool
	guards   int
	pending  int
	workers  int
	standing *WorkGuard

	posted   atomic.Uint64
	executed atomic.Uint64
	dropped  atomic.Uint64
	panics   atomic.Uint64
}

// New creates an execution context. Work may be posted before Start; it runs
// once workers are launched.
func New(opts ...Option) *Context {
	c := &Context{
		q:      queue.New(queueHint),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start launches n labelled drain loops and installs the standing keep-alive
// guard. A pool or submit failure is returned and leaves the context stopped.
func (c *Context) Start(n int) error {
	if n < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, n)
	}
	if c.running.Swap(true) {
		return ErrAlreadyStarted
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrStopped
	}
	c.guards++
	c.standing = &WorkGuard{c: c}
	c.workers = n
	c.mu.Unlock()

	pool, err := ants.NewPool(n,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(c.workerPanic),
	)
	if err != nil {
		c.abortStart()
		return fmt.Errorf("create worker pool: %w", err)
	}
	c.pool = pool

	for i := 0; i < n; i++ {
		label := fmt.Sprintf("io-worker-%d", i)
		c.wg.Add(1)
		if err := pool.Submit(func() { c.drain(label) }); err != nil {
			c.wg.Done()
			c.abortStart()
			c.wg.Wait()
			pool.Release()
			return fmt.Errorf("launch %s: %w", label, err)
		}
	}

	if c.metrics != nil {
		c.metrics.Workers.Set(float64(n))
	}
	c.logger.Debug("execution context started", "workers", n)
	return nil
}

func (c *Context) abortStart() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

// Post enqueues fn for execution on one of the workers.
func (c *Context) Post(fn func()) error {
	if fn == nil {
		return ErrNilFunc
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrStopped
	}
	c.pending++
	c.mu.Unlock()

	if err := c.q.Put(fn); err != nil {
		c.finish()
		return ErrStopped
	}

	c.posted.Add(1)
	if c.metrics != nil {
		c.metrics.Posted.Inc()
		c.metrics.QueueDepth.Set(float64(c.q.Len()))
	}
	return nil
}

// Guard takes an additional keep-alive token. The context cannot idle out
// until the guard is released.
func (c *Context) Guard() *WorkGuard {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return &WorkGuard{}
	}
	c.guards++
	return &WorkGuard{c: c}
}

// Stop releases the standing guard and closes the queue. Items still queued
// are discarded; callables already running finish normally. Every poster
// must be stopped before Stop is called.
func (c *Context) Stop() {
	c.mu.Lock()
	if c.standing != nil {
		c.standing.released.Store(true)
		c.standing = nil
		c.guards--
	}
	if c.closed {
		c.mu.Unlock()
		return
	}
	dropped := c.q.Len()
	c.closeLocked()
	c.mu.Unlock()

	if dropped > 0 {
		c.dropped.Add(uint64(dropped))
		if c.metrics != nil {
			c.metrics.Dropped.Add(float64(dropped))
		}
		c.logger.Warn("execution context stopped with queued work", "dropped", dropped)
	}
	c.logger.Debug("execution context stopped")
}

// Join blocks until every drain loop has exited, then releases the pool.
// It must follow Stop unless the context is expected to idle out.
func (c *Context) Join() {
	c.wg.Wait()
	if c.pool != nil {
		c.pool.Release()
	}
	c.running.Store(false)
	if c.metrics != nil {
		c.metrics.Workers.Set(0)
	}
}

// Running reports whether workers have been started and not yet joined.
func (c *Context) Running() bool {
	return c.running.Load()
}

// Closed reports whether the context no longer accepts work.
func (c *Context) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Stats returns a snapshot of the counters.
func (c *Context) Stats() Stats {
	c.mu.Lock()
	s := Stats{
		Workers: c.workers,
		Guards:  c.guards,
		Pending: c.pending,
	}
	c.mu.Unlock()
	s.Posted = c.posted.Load()
	s.Executed = c.executed.Load()
	s.Dropped = c.dropped.Load()
	s.Panics = c.panics.Load()
	return s
}

// drain is the body of one worker.
func (c *Context) drain(label string) {
	defer c.wg.Done()

	handled := 0
	pprof.Do(context.Background(), pprof.Labels("worker", label), func(context.Context) {
		for {
			items, err := c.q.Get(1)
			if err != nil {
				return
			}
			for _, item := range items {
				c.execute(item.(func()))
				handled++
			}
		}
	})

	c.logger.Debug("worker exited", "worker", label, "handlers", handled)
}

func (c *Context) execute(fn func()) {
	defer c.finish()
	defer func() {
		if r := recover(); r != nil {
			c.recovered(r)
		}
	}()

	fn()
	c.executed.Add(1)
	if c.metrics != nil {
		c.metrics.Executed.Inc()
	}
}

func (c *Context) recovered(r any) {
	c.panics.Add(1)
	if c.metrics != nil {
		c.metrics.Panics.Inc()
	}
	if c.panicHandler != nil {
		c.panicHandler(r)
		return
	}
	c.logger.Error("work item panicked", "panic", r)
}

// workerPanic catches a panic escaping a drain loop itself.
func (c *Context) workerPanic(r any) {
	c.recovered(r)
}

// finish retires one pending item and closes the queue if the context is idle.
func (c *Context) finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending--
	if c.metrics != nil {
		c.metrics.QueueDepth.Set(float64(c.q.Len()))
	}
	c.maybeIdleLocked()
}

func (c *Context) maybeIdleLocked() {
	if c.closed || c.guards > 0 || c.pending > 0 {
		return
	}
	c.logger.Debug("execution context idle, closing")
	c.closeLocked()
}

func (c *Context) closeLocked() {
	c.closed = true
	c.q.Dispose()
}

// WorkGuard is a keep-alive token.
type WorkGuard struct {
	c        *Context
	released atomic.Bool
}

// Release drops the token. Releasing twice has no effect.
func (g *WorkGuard) Release() {
	if g.c == nil || g.released.Swap(true) {
		return
	}
	g.c.mu.Lock()
	defer g.c.mu.Unlock()
	g.c.guards--
	g.c.maybeIdleLocked()
}
