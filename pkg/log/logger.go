package log

import "time"

// Logger receives trace events. Implementations must be safe for concurrent
// use and should not block the caller for long.
type Logger interface {
	Log(event Event)
}

// Tracer is the trace sink of one component. It stamps each event with the
// time, the run's session id and the component name before handing it to
// the Logger. A Tracer over a nil Logger drops everything, as does the zero
// value.
type Tracer struct {
	sink      Logger
	sessionID string
	source    string
}

// NewTracer returns the sink for source in the run identified by sessionID.
func NewTracer(sink Logger, sessionID, source string) Tracer {
	return Tracer{sink: sink, sessionID: sessionID, source: source}
}

// Enabled reports whether events go anywhere.
func (t Tracer) Enabled() bool {
	return t.sink != nil
}

// Emit records e. Fields already set on e are kept.
func (t Tracer) Emit(e Event) {
	if t.sink == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.SessionID == "" {
		e.SessionID = t.sessionID
	}
	if e.Source == "" {
		e.Source = t.source
	}
	t.sink.Log(e)
}

// Tee sends every event to each non-nil logger. It returns nil when none is
// left, so the result can go straight into NewTracer.
func Tee(loggers ...Logger) Logger {
	var kept tee
	for _, l := range loggers {
		if l != nil {
			kept = append(kept, l)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	return kept
}

type tee []Logger

func (t tee) Log(event Event) {
	for _, l := range t {
		l.Log(event)
	}
}
