// Package commands implements the ctlbridge-trace CLI commands.
package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/ctlbridge/ctlbridge-go/pkg/log"
)

// ViewFilter specifies criteria for filtering events in the view command.
type ViewFilter struct {
	Layer     *log.Layer
	Direction *log.Direction
	Category  *log.Category
	Source    string
}

func (f ViewFilter) toLogFilter() log.Filter {
	return log.Filter{
		Source:    f.Source,
		Layer:     f.Layer,
		Direction: f.Direction,
		Category:  f.Category,
	}
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	// timestamp [session] DIRECTION LAYER Type source
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")
	session := shortenID(event.SessionID)

	fmt.Fprintf(w, "%s [run:%s] %-3s %s %s", ts, session,
		event.Direction.String(), event.Layer.String(), eventType(event))
	if event.Source != "" {
		fmt.Fprintf(w, " %s", event.Source)
	}
	fmt.Fprintln(w)

	if event.Endpoint != "" {
		fmt.Fprintf(w, "  Endpoint: %s\n", event.Endpoint)
	}
	switch {
	case event.Device != nil:
		formatDeviceDetails(w, event.Device)
	case event.Remote != nil:
		formatRemoteDetails(w, event.Remote)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w)
}

// eventType returns the payload label of an event.
func eventType(event log.Event) string {
	switch {
	case event.Device != nil:
		return "Device"
	case event.Remote != nil:
		return "Remote"
	case event.StateChange != nil:
		return "State"
	case event.Error != nil:
		return "Error"
	default:
		return "Unknown"
	}
}

// shortenID returns the first 8 characters of a session ID.
func shortenID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatDeviceDetails(w io.Writer, d *log.DeviceEvent) {
	fmt.Fprintf(w, "  %s channel %d", d.Kind, d.Channel+1)
	if d.Kind != "PITCH_BEND" {
		fmt.Fprintf(w, " number %d", d.Number)
	}
	fmt.Fprintf(w, " value %d\n", d.Value)
}

func formatRemoteDetails(w io.Writer, r *log.RemoteEvent) {
	if r.Value != "" {
		fmt.Fprintf(w, "  %s %s\n", r.Command, r.Value)
	} else {
		fmt.Fprintf(w, "  %s\n", r.Command)
	}
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	fmt.Fprintf(w, "  Entity: %s", sc.Entity.String())
	if sc.Name != "" {
		fmt.Fprintf(w, " %s", sc.Name)
	}
	fmt.Fprintln(w)
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatErrorDetails(w io.Writer, err *log.ErrorEventData) {
	fmt.Fprintf(w, "  Layer: %s\n", err.Layer.String())
	fmt.Fprintf(w, "  Message: %s\n", err.Message)
	if err.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", err.Context)
	}
}

// ParseLayerFlag parses a layer string from a command-line flag (case-insensitive).
func ParseLayerFlag(s string) (log.Layer, error) {
	switch strings.ToLower(s) {
	case "device":
		return log.LayerDevice, nil
	case "remote":
		return log.LayerRemote, nil
	case "lifecycle":
		return log.LayerLifecycle, nil
	default:
		return 0, fmt.Errorf("invalid layer: %s (must be device, remote, or lifecycle)", s)
	}
}

// ParseDirectionFlag parses a direction string from a command-line flag (case-insensitive).
func ParseDirectionFlag(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s (must be in or out)", s)
	}
}

// ParseCategoryFlag parses a category string from a command-line flag (case-insensitive).
func ParseCategoryFlag(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "message":
		return log.CategoryMessage, nil
	case "state":
		return log.CategoryState, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("invalid category: %s (must be message, state, or error)", s)
	}
}

// RunView executes the view command.
func RunView(path string, filter ViewFilter, output io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter.toLogFilter())
	if err != nil {
		return fmt.Errorf("failed to open trace file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		formatEvent(output, event)
	}
}
