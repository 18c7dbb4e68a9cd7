package executor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrandPreservesPostOrderAcrossPosters(t *testing.T) {
	c := New()
	require.NoError(t, c.Start(2))
	defer func() {
		c.Stop()
		c.Join()
	}()

	const perPoster = 200
	receiver := NewStrand(c)
	remote := NewStrand(c)

	var mu sync.Mutex
	var fromReceiver, fromRemote, all []int
	var wg sync.WaitGroup
	wg.Add(2 * perPoster)

	post := func(s *Strand, tag int, out *[]int) {
		for i := 0; i < perPoster; i++ {
			i := i
			assert.NoError(t, s.Post(func() {
				defer wg.Done()
				mu.Lock()
				*out = append(*out, i)
				all = append(all, tag)
				mu.Unlock()
			}))
		}
	}

	var posters sync.WaitGroup
	posters.Add(2)
	go func() { defer posters.Done(); post(receiver, 0, &fromReceiver) }()
	go func() { defer posters.Done(); post(remote, 1, &fromRemote) }()
	posters.Wait()
	wg.Wait()

	for i := 0; i < perPoster; i++ {
		assert.Equal(t, i, fromReceiver[i])
		assert.Equal(t, i, fromRemote[i])
	}
	assert.Len(t, all, 2*perPoster)
}

func TestStrandNeverRunsConcurrently(t *testing.T) {
	c := New()
	require.NoError(t, c.Start(4))
	defer func() {
		c.Stop()
		c.Join()
	}()

	s := NewStrand(c)
	var mu sync.Mutex
	active, maxActive := 0, 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		require.NoError(t, s.Post(func() {
			defer wg.Done()
			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
		}))
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive)
}

func TestStrandContinuesAfterPanic(t *testing.T) {
	c := New(WithPanicHandler(func(any) {}))
	require.NoError(t, c.Start(1))
	defer func() {
		c.Stop()
		c.Join()
	}()

	s := NewStrand(c)
	done := make(chan struct{})
	require.NoError(t, s.Post(func() { panic("callback failed") }))
	require.NoError(t, s.Post(func() { close(done) }))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("strand wedged after panic")
	}
}

func TestStrandPostAfterStop(t *testing.T) {
	c := New()
	require.NoError(t, c.Start(1))
	c.Stop()
	c.Join()

	s := NewStrand(c)
	assert.ErrorIs(t, s.Post(func() {}), ErrStopped)
	assert.Same(t, c, s.Context())
}
