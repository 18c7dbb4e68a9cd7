// Package lifecycle drives an explicit, ordered list of Start/Stop
// participants.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Lifecycle errors.
var (
	ErrDuplicate    = errors.New("duplicate component name")
	ErrUnknown      = errors.New("unknown component")
	ErrIncomplete   = errors.New("stop order does not name every component")
	ErrStartFailed  = errors.New("component start failed")
	ErrAlreadyAdded = errors.New("sequence already started")
)

// Component is anything with a Start/Stop lifecycle.
type Component interface {
	Start(ctx context.Context) error
	Stop() error
}

// ComponentFunc adapts a pair of functions to Component. Either may be nil.
type ComponentFunc struct {
	StartFunc func(ctx context.Context) error
	StopFunc  func() error
}

// Start calls StartFunc.
func (f ComponentFunc) Start(ctx context.Context) error {
	if f.StartFunc == nil {
		return nil
	}
	return f.StartFunc(ctx)
}

// Stop calls StopFunc.
func (f ComponentFunc) Stop() error {
	if f.StopFunc == nil {
		return nil
	}
	return f.StopFunc()
}

// Hooks observe transitions. Any field may be nil.
type Hooks struct {
	OnStart func(name string)
	OnStop  func(name string, err error)
}

type entry struct {
	name    string
	comp    Component
	started bool
}

// Sequence starts components in insertion order and stops them in an
// explicit stop order, which defaults to reverse insertion order.
type Sequence struct {
	mu        sync.Mutex
	entries   []*entry
	byName    map[string]*entry
	stopOrder []string
	logger    *slog.Logger
	hooks     Hooks
}

// NewSequence creates an empty sequence. A nil logger means slog.Default().
func NewSequence(logger *slog.Logger) *Sequence {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sequence{
		byName: make(map[string]*entry),
		logger: logger,
	}
}

// SetHooks installs transition observers.
func (s *Sequence) SetHooks(h Hooks) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = h
}

// Add appends a component to the start order.
func (s *Sequence) Add(name string, c Component) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byName[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, name)
	}
	for _, e := range s.entries {
		if e.started {
			return ErrAlreadyAdded
		}
	}
	e := &entry{name: name, comp: c}
	s.entries = append(s.entries, e)
	s.byName[name] = e
	return nil
}

// SetStopOrder fixes the order used by StopAll. Every added component must
// be named exactly once.
func (s *Sequence) SetStopOrder(names ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if _, ok := s.byName[n]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknown, n)
		}
		if seen[n] {
			return fmt.Errorf("%w: %s", ErrDuplicate, n)
		}
		seen[n] = true
	}
	if len(seen) != len(s.entries) {
		return fmt.Errorf("%w: %d of %d", ErrIncomplete, len(seen), len(s.entries))
	}
	s.stopOrder = append([]string(nil), names...)
	return nil
}

// Names returns the component names in start order.
func (s *Sequence) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.entries))
	for i, e := range s.entries {
		names[i] = e.name
	}
	return names
}

// Started reports whether the named component is currently started.
func (s *Sequence) Started(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byName[name]
	return ok && e.started
}

// StartAll starts every component in insertion order. On the first failure
// the components already started are stopped and the error is returned.
func (s *Sequence) StartAll(ctx context.Context) error {
	s.mu.Lock()
	entries := append([]*entry(nil), s.entries...)
	hooks := s.hooks
	s.mu.Unlock()

	for _, e := range entries {
		if e.started {
			continue
		}
		if err := ctx.Err(); err != nil {
			return errors.Join(err, s.StopAll())
		}
		if err := e.comp.Start(ctx); err != nil {
			s.logger.Error("component start failed", "component", e.name, "error", err)
			startErr := fmt.Errorf("%w: %s: %w", ErrStartFailed, e.name, err)
			return errors.Join(startErr, s.StopAll())
		}
		s.mu.Lock()
		e.started = true
		s.mu.Unlock()
		s.logger.Debug("component started", "component", e.name)
		if hooks.OnStart != nil {
			hooks.OnStart(e.name)
		}
	}
	return nil
}

// StopAll stops the started components in stop order. Every component is
// given the chance to stop; the errors are joined.
func (s *Sequence) StopAll() error {
	s.mu.Lock()
	order := s.stopSequenceLocked()
	hooks := s.hooks
	s.mu.Unlock()

	var errs []error
	for _, e := range order {
		s.mu.Lock()
		started := e.started
		e.started = false
		s.mu.Unlock()
		if !started {
			continue
		}

		err := e.comp.Stop()
		if err != nil {
			s.logger.Warn("component stop failed", "component", e.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", e.name, err))
		} else {
			s.logger.Debug("component stopped", "component", e.name)
		}
		if hooks.OnStop != nil {
			hooks.OnStop(e.name, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Sequence) stopSequenceLocked() []*entry {
	if len(s.stopOrder) > 0 {
		out := make([]*entry, 0, len(s.stopOrder))
		for _, n := range s.stopOrder {
			out = append(out, s.byName[n])
		}
		return out
	}
	out := make([]*entry, 0, len(s.entries))
	for i := len(s.entries) - 1; i >= 0; i-- {
		out = append(out, s.entries[i])
	}
	return out
}
