package log

import (
	"time"
)

// Event represents a trace event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID identifies the process run that produced the event (UUID).
	SessionID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// Source names the component that emitted the event (e.g. "device-receiver").
	Source string `cbor:"6,keyasint,omitempty"`

	// Endpoint is the device port name or the remote peer address.
	Endpoint string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Device      *DeviceEvent      `cbor:"10,keyasint,omitempty"` // Device layer
	Remote      *RemoteEvent      `cbor:"11,keyasint,omitempty"` // Remote layer
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"` // Service/component state
	Error       *ErrorEventData   `cbor:"13,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming message.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing message.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which part of the bridge captured the event.
type Layer uint8

const (
	// LayerDevice is the input-device transport.
	LayerDevice Layer = 0
	// LayerRemote is the host-application remote channel.
	LayerRemote Layer = 1
	// LayerLifecycle is the service orchestrator.
	LayerLifecycle Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerDevice:
		return "DEVICE"
	case LayerRemote:
		return "REMOTE"
	case LayerLifecycle:
		return "LIFECYCLE"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates a device message or remote command line.
	CategoryMessage Category = 0
	// CategoryState indicates a state change.
	CategoryState Category = 1
	// CategoryError indicates an error event.
	CategoryError Category = 2
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// DeviceEvent captures a device message.
type DeviceEvent struct {
	// Kind is the message kind name (e.g. "CC", "NOTE_ON", "PITCH_BEND").
	Kind string `cbor:"1,keyasint"`

	// Channel is the zero-based channel number.
	Channel uint8 `cbor:"2,keyasint"`

	// Number is the controller or note number (unused for pitch bend).
	Number uint16 `cbor:"3,keyasint,omitempty"`

	// Value is the raw message value.
	Value int `cbor:"4,keyasint"`
}

// RemoteEvent captures a remote-channel command line.
type RemoteEvent struct {
	// Command is the command key.
	Command string `cbor:"1,keyasint"`

	// Value is the command argument as sent on the wire.
	Value string `cbor:"2,keyasint,omitempty"`
}

// StateChangeEvent captures service, component and connection lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// Name identifies the entity instance (component name, peer address).
	Name string `cbor:"2,keyasint,omitempty"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"3,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"4,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"5,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityService indicates an orchestrator state change.
	StateEntityService StateEntity = 0
	// StateEntityComponent indicates a component start or stop.
	StateEntityComponent StateEntity = 1
	// StateEntityConnection indicates a remote connection state change.
	StateEntityConnection StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityService:
		return "SERVICE"
	case StateEntityComponent:
		return "COMPONENT"
	case StateEntityConnection:
		return "CONNECTION"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"3,keyasint,omitempty"`
}
