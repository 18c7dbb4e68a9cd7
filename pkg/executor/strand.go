package executor

import "sync"

// Strand serialises the work of one poster on a shared Context. Items run in
// post order and never concurrently with each other. Each item is scheduled
// separately so other posters are not starved.
type Strand struct {
	ctx *Context

	mu        sync.Mutex
	pending   []func()
	scheduled bool
}

// NewStrand creates a strand on ctx.
func NewStrand(ctx *Context) *Strand {
	return &Strand{ctx: ctx}
}

// Context returns the execution context the strand runs on.
func (s *Strand) Context() *Context {
	return s.ctx
}

// Post appends fn to the strand.
func (s *Strand) Post(fn func()) error {
	if fn == nil {
		return ErrNilFunc
	}

	s.mu.Lock()
	s.pending = append(s.pending, fn)
	if s.scheduled {
		s.mu.Unlock()
		return nil
	}
	s.scheduled = true
	s.mu.Unlock()

	if err := s.ctx.Post(s.run); err != nil {
		s.reset()
		return err
	}
	return nil
}

func (s *Strand) run() {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.scheduled = false
		s.mu.Unlock()
		return
	}
	fn := s.pending[0]
	s.pending[0] = nil
	s.pending = s.pending[1:]
	s.mu.Unlock()

	// next runs even if fn panics, so the strand is never left wedged.
	defer s.next()
	fn()
}

func (s *Strand) next() {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.scheduled = false
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if err := s.ctx.Post(s.run); err != nil {
		s.reset()
	}
}

// reset drops everything queued on the strand once the context is closed.
func (s *Strand) reset() {
	s.mu.Lock()
	n := len(s.pending)
	s.pending = nil
	s.scheduled = false
	s.mu.Unlock()

	if n > 0 {
		s.ctx.dropped.Add(uint64(n))
		if s.ctx.metrics != nil {
			s.ctx.metrics.Dropped.Add(float64(n))
		}
	}
}
