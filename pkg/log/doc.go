// Package log provides operational logging setup and a structured message
// trace for ctlbridge.
//
// Two independent streams exist. Operational logging goes through log/slog
// and is written to a single size-capped application log file opened by
// OpenAppLog before any other subsystem starts. The message trace is a
// machine-readable record of device messages, remote-channel lines and
// lifecycle state changes, captured through the Logger interface.
//
// # Basic Usage
//
//	appLog, err := log.OpenAppLog(log.AppLogConfig{Path: "/path/ctlbridge.log"})
//	if err != nil { ... }
//	defer appLog.Close()
//
//	// For development: trace to the operational log
//	trace := log.NewSlogAdapter(appLog.Logger())
//
//	// For analysis: write to a CBOR trace file
//	trace, _ = log.NewFileLogger("/path/ctlbridge.trace")
//
//	// Both
//	trace = log.Tee(log.NewSlogAdapter(appLog.Logger()), fileLogger)
//
// # Event Types
//
// Events are captured at three layers:
//   - Device: MIDI-style messages in and out of the device transport (DeviceEvent)
//   - Remote: command lines exchanged with the host application (RemoteEvent)
//   - Lifecycle: service and component state changes (StateChangeEvent)
//
// Errors at any layer use ErrorEventData.
//
// # File Format
//
// Trace files use CBOR encoding with integer keys. The ctlbridge-trace CLI
// provides viewing and statistics.
package log
