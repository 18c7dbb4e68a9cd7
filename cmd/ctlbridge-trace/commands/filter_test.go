package commands

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/ctlbridge/ctlbridge-go/pkg/log"
)

func readAll(t *testing.T, path string) []log.Event {
	t.Helper()
	reader, err := log.NewReader(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer reader.Close()

	var events []log.Event
	for {
		e, err := reader.Next()
		if err == io.EOF {
			return events
		}
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		events = append(events, e)
	}
}

func TestFilterBySource(t *testing.T) {
	path := createTestTraceFile(t, testEvents())
	out := filepath.Join(t.TempDir(), "filtered.ctrace")

	n, err := RunFilter(path, FilterOptions{Output: out, Source: "remote-out"})
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}
	if n != 1 {
		t.Errorf("filtered %d events, want 1", n)
	}

	events := readAll(t, out)
	if len(events) != 1 || events[0].Source != "remote-out" {
		t.Errorf("unexpected events: %+v", events)
	}
}

func TestFilterByTimeWindow(t *testing.T) {
	path := createTestTraceFile(t, testEvents())
	out := filepath.Join(t.TempDir(), "filtered.ctrace")

	n, err := RunFilter(path, FilterOptions{
		Output:    out,
		TimeStart: "2026-03-02T11:00:00Z",
		TimeEnd:   "2026-03-02T11:30:00Z",
	})
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}
	if n != 0 {
		t.Errorf("filtered %d events, want 0", n)
	}
}

func TestBuildFilter(t *testing.T) {
	f, err := BuildFilter(FilterOptions{
		SessionID: "run-1",
		Layer:     "device",
		Direction: "in",
		Category:  "message",
		TimeStart: "2026-03-02T11:00:00Z",
	})
	if err != nil {
		t.Fatalf("BuildFilter failed: %v", err)
	}
	if f.SessionID != "run-1" || f.Layer == nil || *f.Layer != log.LayerDevice {
		t.Errorf("unexpected filter: %+v", f)
	}
	if f.TimeStart == nil || !f.TimeStart.Equal(time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected time start: %v", f.TimeStart)
	}

	for _, opts := range []FilterOptions{
		{TimeStart: "yesterday"},
		{TimeEnd: "tomorrow"},
		{Layer: "wire"},
		{Direction: "up"},
		{Category: "control"},
	} {
		if _, err := BuildFilter(opts); err == nil {
			t.Errorf("expected error for %+v", opts)
		}
	}
}
