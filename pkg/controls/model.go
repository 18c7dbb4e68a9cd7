// Package controls holds the runtime controller state: how each controller
// reports its value and where it currently sits. The model converts between
// raw device values and the normalised 0..1 values used by the host.
package controls

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/ctlbridge/ctlbridge-go/pkg/device"
)

// Model errors.
var (
	ErrInvalidChannel    = errors.New("channel out of range")
	ErrInvalidController = errors.New("controller number out of range")
	ErrInvalidValue      = errors.New("value out of range")
	ErrInvalidMethod     = errors.New("unknown controller method")
	ErrUnsupportedKind   = errors.New("message kind not supported")
)

// Dimensions of the model.
const (
	Channels    = device.MaxChannel + 1
	Controllers = device.MaxNumber + 1
)

// Method describes how a controller encodes its value.
type Method uint8

const (
	// MethodAbsolute reports the position directly.
	MethodAbsolute Method = iota
	// MethodTwosComplement reports a signed delta, 127 meaning -1.
	MethodTwosComplement
	// MethodBinaryOffset reports a delta offset by 64.
	MethodBinaryOffset
	// MethodSignMagnitude reports a delta with bit 6 as the sign.
	MethodSignMagnitude
)

// String returns the method name used in persisted state.
func (m Method) String() string {
	switch m {
	case MethodAbsolute:
		return "absolute"
	case MethodTwosComplement:
		return "twos-complement"
	case MethodBinaryOffset:
		return "binary-offset"
	case MethodSignMagnitude:
		return "sign-magnitude"
	default:
		return "unknown"
	}
}

// ParseMethod is the inverse of Method.String.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "absolute":
		return MethodAbsolute, nil
	case "twos-complement":
		return MethodTwosComplement, nil
	case "binary-offset":
		return MethodBinaryOffset, nil
	case "sign-magnitude":
		return MethodSignMagnitude, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidMethod, s)
	}
}

// Relative reports whether the method encodes deltas.
func (m Method) Relative() bool {
	return m != MethodAbsolute
}

// delta decodes a relative controller value.
func (m Method) delta(v int) int {
	switch m {
	case MethodTwosComplement:
		if v < 64 {
			return v
		}
		return v - 128
	case MethodBinaryOffset:
		return v - 64
	case MethodSignMagnitude:
		if v&0x40 != 0 {
			return -(v & 0x3F)
		}
		return v & 0x3F
	default:
		return 0
	}
}

// ControllerSettings is the state of one controller.
type ControllerSettings struct {
	Method Method
	Low    int
	High   int
	Value  int
}

// PitchSettings is the state of one channel's pitch wheel.
type PitchSettings struct {
	Low   int
	High  int
	Value int
}

// DefaultController returns the settings of an untouched controller.
func DefaultController() ControllerSettings {
	return ControllerSettings{Method: MethodAbsolute, Low: 0, High: device.MaxValue}
}

// DefaultPitch returns the settings of an untouched pitch wheel.
func DefaultPitch() PitchSettings {
	return PitchSettings{Low: 0, High: device.MaxPitchBend, Value: device.PitchCenter}
}

// Model is the controls state. All access is serialised by an internal
// reader-writer lock, so device and remote tasks may call it concurrently.
type Model struct {
	mu    sync.RWMutex
	cc    [Channels][Controllers]ControllerSettings
	pitch [Channels]PitchSettings
}

// New returns a model with default settings everywhere.
func New() *Model {
	m := &Model{}
	m.resetLocked()
	return m
}

func (m *Model) resetLocked() {
	for ch := range m.cc {
		for n := range m.cc[ch] {
			m.cc[ch][n] = DefaultController()
		}
		m.pitch[ch] = DefaultPitch()
	}
}

// Reset restores every setting to its default.
func (m *Model) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
}

func checkChannel(ch int) error {
	if ch < 0 || ch >= Channels {
		return fmt.Errorf("%w: %d", ErrInvalidChannel, ch)
	}
	return nil
}

func checkController(ch, n int) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	if n < 0 || n >= Controllers {
		return fmt.Errorf("%w: %d", ErrInvalidController, n)
	}
	return nil
}

// Controller returns the settings of controller n on channel ch.
func (m *Model) Controller(ch, n int) (ControllerSettings, error) {
	if err := checkController(ch, n); err != nil {
		return ControllerSettings{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cc[ch][n], nil
}

// SetMethod sets the encoding method of a controller.
func (m *Model) SetMethod(ch, n int, method Method) error {
	if err := checkController(ch, n); err != nil {
		return err
	}
	if method > MethodSignMagnitude {
		return fmt.Errorf("%w: %d", ErrInvalidMethod, method)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cc[ch][n].Method = method
	return nil
}

// SetRange sets the low and high bounds of a controller.
func (m *Model) SetRange(ch, n, low, high int) error {
	if err := checkController(ch, n); err != nil {
		return err
	}
	if !inRange(low, device.MaxValue) || !inRange(high, device.MaxValue) {
		return fmt.Errorf("%w: %d..%d", ErrInvalidValue, low, high)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &m.cc[ch][n]
	s.Low, s.High = low, high
	s.Value = clampBetween(s.Value, low, high)
	return nil
}

// Pitch returns the pitch wheel settings of channel ch.
func (m *Model) Pitch(ch int) (PitchSettings, error) {
	if err := checkChannel(ch); err != nil {
		return PitchSettings{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pitch[ch], nil
}

// SetPitchRange sets the low and high bounds of a channel's pitch wheel.
func (m *Model) SetPitchRange(ch, low, high int) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	if !inRange(low, device.MaxPitchBend) || !inRange(high, device.MaxPitchBend) {
		return fmt.Errorf("%w: %d..%d", ErrInvalidValue, low, high)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p := &m.pitch[ch]
	p.Low, p.High = low, high
	p.Value = clampBetween(p.Value, low, high)
	return nil
}

// ControllerToPlugin converts a device message to a normalised value and
// records the new position. Relative controllers accumulate. Notes map to 1
// for note-on and 0 for note-off.
func (m *Model) ControllerToPlugin(msg device.Message) (float64, error) {
	ch := int(msg.Channel)
	switch msg.Kind {
	case device.KindNoteOn:
		return 1, checkController(ch, int(msg.Number))
	case device.KindNoteOff:
		return 0, checkController(ch, int(msg.Number))
	case device.KindCC:
		if err := checkController(ch, int(msg.Number)); err != nil {
			return 0, err
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		s := &m.cc[ch][msg.Number]
		if s.Method.Relative() {
			s.Value = clampBetween(s.Value+s.Method.delta(msg.Value), s.Low, s.High)
		} else {
			s.Value = clampBetween(msg.Value, s.Low, s.High)
		}
		return normalise(s.Value, s.Low, s.High), nil
	case device.KindPitchBend:
		if err := checkChannel(ch); err != nil {
			return 0, err
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		p := &m.pitch[ch]
		p.Value = clampBetween(msg.Value, p.Low, p.High)
		return normalise(p.Value, p.Low, p.High), nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedKind, msg.Kind)
	}
}

// PluginToController converts a normalised host value to a device value for
// the given controller and records it as the current position.
func (m *Model) PluginToController(kind device.Kind, ch, n int, value float64) (int, error) {
	value = math.Max(0, math.Min(1, value))
	switch kind {
	case device.KindCC:
		if err := checkController(ch, n); err != nil {
			return 0, err
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		s := &m.cc[ch][n]
		s.Value = denormalise(value, s.Low, s.High)
		return s.Value, nil
	case device.KindPitchBend:
		if err := checkChannel(ch); err != nil {
			return 0, err
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		p := &m.pitch[ch]
		p.Value = denormalise(value, p.Low, p.High)
		return p.Value, nil
	case device.KindNoteOn, device.KindNoteOff:
		if err := checkController(ch, n); err != nil {
			return 0, err
		}
		if value > 0 {
			return device.MaxValue, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
	}
}

// Equal reports whether two models hold identical state.
func (m *Model) Equal(other *Model) bool {
	if m == other {
		return true
	}
	a, b := m.snapshot(), other.snapshot()
	return a.cc == b.cc && a.pitch == b.pitch
}

type state struct {
	cc    [Channels][Controllers]ControllerSettings
	pitch [Channels]PitchSettings
}

func (m *Model) snapshot() *state {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &state{cc: m.cc, pitch: m.pitch}
}

func inRange(v, maxV int) bool {
	return v >= 0 && v <= maxV
}

func clampBetween(v, a, b int) int {
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	return max(lo, min(hi, v))
}

func normalise(v, low, high int) float64 {
	if high == low {
		return 0
	}
	return float64(v-low) / float64(high-low)
}

func denormalise(value float64, low, high int) int {
	return low + int(math.Round(value*float64(high-low)))
}
