package log

import (
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"
)

func writeTrace(t *testing.T, events ...Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.trace")
	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	logger.Close()
	return path
}

func TestFilterMatches(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	in := DirectionIn
	remote := LayerRemote
	errs := CategoryError
	start := base
	end := base.Add(time.Minute)

	event := Event{
		Timestamp: base.Add(30 * time.Second),
		SessionID: "s-1",
		Direction: DirectionIn,
		Layer:     LayerRemote,
		Category:  CategoryError,
		Source:    "remote-in",
	}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty", Filter{}, true},
		{"session match", Filter{SessionID: "s-1"}, true},
		{"session mismatch", Filter{SessionID: "s-2"}, false},
		{"source match", Filter{Source: "remote-in"}, true},
		{"source mismatch", Filter{Source: "remote-out"}, false},
		{"direction", Filter{Direction: &in}, true},
		{"layer", Filter{Layer: &remote}, true},
		{"category", Filter{Category: &errs}, true},
		{"time window", Filter{TimeStart: &start, TimeEnd: &end}, true},
		{"before window", Filter{TimeStart: &end}, false},
		{"end exclusive", Filter{TimeEnd: &event.Timestamp}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(event); got != tt.want {
				t.Errorf("Matches: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilteredReaderSkipsNonMatching(t *testing.T) {
	path := writeTrace(t,
		Event{Timestamp: time.Now(), Layer: LayerDevice},
		Event{Timestamp: time.Now(), Layer: LayerLifecycle, StateChange: &StateChangeEvent{NewState: "RUNNING"}},
		Event{Timestamp: time.Now(), Layer: LayerDevice},
	)

	layer := LayerLifecycle
	reader, err := NewFilteredReader(path, Filter{Layer: &layer})
	if err != nil {
		t.Fatalf("NewFilteredReader failed: %v", err)
	}
	defer reader.Close()

	event, err := reader.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if event.StateChange == nil || event.StateChange.NewState != "RUNNING" {
		t.Errorf("unexpected event: %+v", event)
	}
	if _, err := reader.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestNewReaderMissingFile(t *testing.T) {
	if _, err := NewReader(filepath.Join(t.TempDir(), "absent.trace")); err == nil {
		t.Error("expected error for missing file")
	}
}
