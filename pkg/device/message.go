package device

import (
	"errors"
	"fmt"
	"strings"
)

// Message errors.
var (
	ErrShortMessage   = errors.New("short device message")
	ErrUnknownStatus  = errors.New("unsupported status byte")
	ErrInvalidMessage = errors.New("invalid device message")
)

// Kind is the message kind.
type Kind uint8

const (
	KindNoteOff Kind = iota
	KindNoteOn
	KindCC
	KindPitchBend
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNoteOff:
		return "NOTE_OFF"
	case KindNoteOn:
		return "NOTE_ON"
	case KindCC:
		return "CC"
	case KindPitchBend:
		return "PITCH_BEND"
	default:
		return "UNKNOWN"
	}
}

// ParseKind is the inverse of Kind.String. It is case-insensitive.
func ParseKind(s string) (Kind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "NOTE_OFF":
		return KindNoteOff, nil
	case "NOTE_ON":
		return KindNoteOn, nil
	case "CC":
		return KindCC, nil
	case "PITCH_BEND":
		return KindPitchBend, nil
	default:
		return 0, fmt.Errorf("%w: kind %q", ErrInvalidMessage, s)
	}
}

// Limits of the message fields.
const (
	MaxChannel   = 15
	MaxNumber    = 127
	MaxValue     = 127
	MaxPitchBend = 16383
	PitchCenter  = 8192
)

// Message is one channel-voice message. Channel is zero based. Number is the
// note or controller number and is unused for pitch bend.
type Message struct {
	Kind    Kind
	Channel uint8
	Number  uint16
	Value   int
}

// Validate checks the field ranges for the message kind.
func (m Message) Validate() error {
	if m.Channel > MaxChannel {
		return fmt.Errorf("%w: channel %d", ErrInvalidMessage, m.Channel)
	}
	switch m.Kind {
	case KindNoteOff, KindNoteOn, KindCC:
		if m.Number > MaxNumber {
			return fmt.Errorf("%w: number %d", ErrInvalidMessage, m.Number)
		}
		if m.Value < 0 || m.Value > MaxValue {
			return fmt.Errorf("%w: value %d", ErrInvalidMessage, m.Value)
		}
	case KindPitchBend:
		if m.Value < 0 || m.Value > MaxPitchBend {
			return fmt.Errorf("%w: pitch bend %d", ErrInvalidMessage, m.Value)
		}
	default:
		return fmt.Errorf("%w: kind %d", ErrInvalidMessage, m.Kind)
	}
	return nil
}

// String returns a compact human form, e.g. "CC ch=1 num=7 val=64".
func (m Message) String() string {
	if m.Kind == KindPitchBend {
		return fmt.Sprintf("%s ch=%d val=%d", m.Kind, m.Channel+1, m.Value)
	}
	return fmt.Sprintf("%s ch=%d num=%d val=%d", m.Kind, m.Channel+1, m.Number, m.Value)
}

// Encode returns the three wire bytes of the message.
func (m Message) Encode() ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	var status byte
	switch m.Kind {
	case KindNoteOff:
		status = 0x80
	case KindNoteOn:
		status = 0x90
	case KindCC:
		status = 0xB0
	case KindPitchBend:
		return []byte{0xE0 | m.Channel, byte(m.Value & 0x7F), byte(m.Value >> 7)}, nil
	}
	return []byte{status | m.Channel, byte(m.Number), byte(m.Value)}, nil
}

// Decode parses three wire bytes. A note-on with velocity zero is reported
// as note-off.
func Decode(b []byte) (Message, error) {
	if len(b) < 3 {
		return Message{}, ErrShortMessage
	}
	ch := b[0] & 0x0F
	d1, d2 := b[1]&0x7F, b[2]&0x7F
	switch b[0] & 0xF0 {
	case 0x80:
		return Message{Kind: KindNoteOff, Channel: ch, Number: uint16(d1), Value: int(d2)}, nil
	case 0x90:
		if d2 == 0 {
			return Message{Kind: KindNoteOff, Channel: ch, Number: uint16(d1)}, nil
		}
		return Message{Kind: KindNoteOn, Channel: ch, Number: uint16(d1), Value: int(d2)}, nil
	case 0xB0:
		return Message{Kind: KindCC, Channel: ch, Number: uint16(d1), Value: int(d2)}, nil
	case 0xE0:
		return Message{Kind: KindPitchBend, Channel: ch, Value: int(d1) | int(d2)<<7}, nil
	default:
		return Message{}, fmt.Errorf("%w: 0x%02X", ErrUnknownStatus, b[0])
	}
}
