package executor

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartRejectsInvalidWorkerCount(t *testing.T) {
	c := New()
	assert.ErrorIs(t, c.Start(0), ErrInvalidWorkers)
	assert.False(t, c.Running())
}

func TestStartTwice(t *testing.T) {
	c := New()
	require.NoError(t, c.Start(1))
	defer func() {
		c.Stop()
		c.Join()
	}()

	assert.ErrorIs(t, c.Start(1), ErrAlreadyStarted)
}

func TestPostRunsWork(t *testing.T) {
	c := New()
	require.NoError(t, c.Start(2))

	done := make(chan struct{})
	require.NoError(t, c.Post(func() { close(done) }))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("work item did not run")
	}

	c.Stop()
	c.Join()
	assert.False(t, c.Running())
}

func TestPostBeforeStartRunsAfterStart(t *testing.T) {
	c := New()
	var ran atomic.Bool
	require.NoError(t, c.Post(func() { ran.Store(true) }))

	require.NoError(t, c.Start(1))
	assert.Eventually(t, ran.Load, time.Second, 5*time.Millisecond)

	c.Stop()
	c.Join()
}

func TestPostAfterStop(t *testing.T) {
	c := New()
	require.NoError(t, c.Start(2))
	c.Stop()
	c.Join()

	assert.ErrorIs(t, c.Post(func() {}), ErrStopped)
	assert.ErrorIs(t, c.Post(nil), ErrNilFunc)
}

func TestStandingGuardKeepsWorkersAliveWhenEmpty(t *testing.T) {
	c := New()
	require.NoError(t, c.Start(2))

	// Nothing queued: workers must stay parked rather than exit.
	time.Sleep(50 * time.Millisecond)
	assert.False(t, c.Closed())

	ran := make(chan struct{})
	require.NoError(t, c.Post(func() { close(ran) }))
	<-ran

	c.Stop()
	c.Join()
	assert.True(t, c.Closed())
}

func TestStopClosesDespiteExtraGuard(t *testing.T) {
	c := New()
	require.NoError(t, c.Start(2))

	extra := c.Guard()
	c.Stop()
	assert.True(t, c.Closed())

	extra.Release()
	extra.Release()

	joined := make(chan struct{})
	go func() {
		c.Join()
		close(joined)
	}()
	select {
	case <-joined:
	case <-time.After(time.Second):
		t.Fatal("Join did not return")
	}
}

func TestGuardReleaseClosesIdleContext(t *testing.T) {
	c := New()
	g := c.Guard()
	require.NoError(t, c.Start(1))

	// Drop the standing guard without closing, as an idle-exit would.
	c.mu.Lock()
	c.standing.released.Store(true)
	c.standing = nil
	c.guards--
	c.mu.Unlock()
	assert.False(t, c.Closed())

	g.Release()
	assert.True(t, c.Closed())
	c.Join()
}

func TestStopLetsInFlightWorkFinishAndDropsQueued(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(WithMetrics(reg))
	require.NoError(t, c.Start(1))

	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	require.NoError(t, c.Post(func() {
		close(started)
		<-release
		finished.Store(true)
	}))
	<-started

	var queuedRan atomic.Int32
	for i := 0; i < 3; i++ {
		require.NoError(t, c.Post(func() { queuedRan.Add(1) }))
	}

	c.Stop()
	close(release)
	c.Join()

	assert.True(t, finished.Load(), "in-flight item must complete")
	assert.Equal(t, int32(0), queuedRan.Load())
	assert.Equal(t, uint64(3), c.Stats().Dropped)
	assert.Equal(t, float64(3), testutil.ToFloat64(c.metrics.Dropped))
	assert.Equal(t, float64(4), testutil.ToFloat64(c.metrics.Posted))
}

func TestPanicRoutedToHandler(t *testing.T) {
	var mu sync.Mutex
	var got []any
	c := New(WithPanicHandler(func(r any) {
		mu.Lock()
		got = append(got, r)
		mu.Unlock()
	}))
	require.NoError(t, c.Start(1))

	require.NoError(t, c.Post(func() { panic("boom") }))

	// The worker survives the panic.
	done := make(chan struct{})
	require.NoError(t, c.Post(func() { close(done) }))
	<-done

	c.Stop()
	c.Join()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []any{"boom"}, got)
	assert.Equal(t, uint64(1), c.Stats().Panics)
}

func TestWorkersRunConcurrently(t *testing.T) {
	c := New()
	require.NoError(t, c.Start(2))

	// Two items that wait for each other can only both finish on two workers.
	a := make(chan struct{})
	b := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	require.NoError(t, c.Post(func() {
		defer wg.Done()
		close(a)
		<-b
	}))
	require.NoError(t, c.Post(func() {
		defer wg.Done()
		close(b)
		<-a
	}))

	waited := make(chan struct{})
	go func() {
		wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(time.Second):
		t.Fatal("items did not run concurrently")
	}

	c.Stop()
	c.Join()
}

func TestStatsCounts(t *testing.T) {
	c := New()
	require.NoError(t, c.Start(2))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		require.NoError(t, c.Post(wg.Done))
	}
	wg.Wait()

	assert.Eventually(t, func() bool { return c.Stats().Executed == 10 }, time.Second, 5*time.Millisecond)
	s := c.Stats()
	assert.Equal(t, 2, s.Workers)
	assert.Equal(t, uint64(10), s.Posted)

	c.Stop()
	c.Join()
}
