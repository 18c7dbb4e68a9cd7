package commands

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/ctlbridge/ctlbridge-go/pkg/log"
)

func TestStatsCountsByLayer(t *testing.T) {
	ts := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	events := []log.Event{
		{Timestamp: ts, Layer: log.LayerDevice},
		{Timestamp: ts, Layer: log.LayerDevice},
		{Timestamp: ts, Layer: log.LayerRemote},
		{Timestamp: ts, Layer: log.LayerLifecycle, Category: log.CategoryState},
	}
	path := createTestTraceFile(t, events)

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	output := buf.String()

	for _, want := range []string{"Total Events: 4", "DEVICE:      2", "REMOTE:      1", "LIFECYCLE:   1"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
}

func TestStatsTracksRuns(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	events := []log.Event{
		{Timestamp: start, SessionID: "aaaaaaaa-1", Layer: log.LayerLifecycle, Category: log.CategoryState,
			StateChange: &log.StateChangeEvent{Entity: log.StateEntityService, NewState: "RUNNING"}},
		{Timestamp: start.Add(time.Second), SessionID: "aaaaaaaa-1", Layer: log.LayerRemote, Category: log.CategoryState,
			StateChange: &log.StateChangeEvent{Entity: log.StateEntityConnection, OldState: "DISCONNECTED", NewState: "CONNECTED"}},
		{Timestamp: start.Add(2 * time.Second), SessionID: "aaaaaaaa-1", Layer: log.LayerLifecycle, Category: log.CategoryState,
			StateChange: &log.StateChangeEvent{Entity: log.StateEntityService, OldState: "RUNNING", NewState: "STOPPED"}},
		{Timestamp: start.Add(time.Hour), SessionID: "bbbbbbbb-2", Layer: log.LayerRemote,
			Remote: &log.RemoteEvent{Command: "SwitchProfile", Value: "Develop.xml"}},
		{Timestamp: start.Add(time.Hour), SessionID: "bbbbbbbb-2", Layer: log.LayerRemote, Category: log.CategoryError,
			Error: &log.ErrorEventData{Message: "broken pipe"}},
	}
	path := createTestTraceFile(t, events)

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	output := buf.String()

	for _, want := range []string{
		"Runs: 2",
		"[aaaaaaaa] 3 events, duration 2s",
		"Final state: STOPPED",
		"Host connections: 1",
		"[bbbbbbbb] 2 events",
		"SwitchProfile:",
		"Errors: 1",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}

	// Runs are listed in the order they started.
	if strings.Index(output, "[aaaaaaaa]") > strings.Index(output, "[bbbbbbbb]") {
		t.Errorf("runs out of order:\n%s", output)
	}
}

func TestStatsEmptyFile(t *testing.T) {
	path := createTestTraceFile(t, nil)

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Total Events: 0") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
	if strings.Contains(buf.String(), "Time Range") {
		t.Errorf("empty trace should not print a time range:\n%s", buf.String())
	}
}
