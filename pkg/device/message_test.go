package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	tests := []Message{
		{Kind: KindNoteOn, Channel: 0, Number: 60, Value: 100},
		{Kind: KindNoteOff, Channel: 9, Number: 36, Value: 0},
		{Kind: KindCC, Channel: 15, Number: 127, Value: 127},
		{Kind: KindPitchBend, Channel: 3, Value: 16383},
		{Kind: KindPitchBend, Channel: 3, Value: PitchCenter},
	}
	for _, msg := range tests {
		t.Run(msg.String(), func(t *testing.T) {
			b, err := msg.Encode()
			require.NoError(t, err)
			require.Len(t, b, 3)

			got, err := Decode(b)
			require.NoError(t, err)
			assert.Equal(t, msg, got)
		})
	}
}

func TestDecodeNoteOnZeroVelocityIsNoteOff(t *testing.T) {
	got, err := Decode([]byte{0x91, 40, 0})
	require.NoError(t, err)
	assert.Equal(t, Message{Kind: KindNoteOff, Channel: 1, Number: 40}, got)
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode([]byte{0xB0, 1})
	assert.ErrorIs(t, err, ErrShortMessage)
	_, err = Decode([]byte{0xF0, 1, 2})
	assert.ErrorIs(t, err, ErrUnknownStatus)
}

func TestValidate(t *testing.T) {
	assert.ErrorIs(t, Message{Kind: KindCC, Channel: 16}.Validate(), ErrInvalidMessage)
	assert.ErrorIs(t, Message{Kind: KindCC, Number: 128}.Validate(), ErrInvalidMessage)
	assert.ErrorIs(t, Message{Kind: KindCC, Value: 128}.Validate(), ErrInvalidMessage)
	assert.ErrorIs(t, Message{Kind: KindPitchBend, Value: 16384}.Validate(), ErrInvalidMessage)
	assert.ErrorIs(t, Message{Kind: Kind(7)}.Validate(), ErrInvalidMessage)
	assert.NoError(t, Message{Kind: KindPitchBend, Value: 16383}.Validate())
}

func TestParseKind(t *testing.T) {
	for _, k := range []Kind{KindNoteOff, KindNoteOn, KindCC, KindPitchBend} {
		got, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	got, err := ParseKind("cc")
	require.NoError(t, err)
	assert.Equal(t, KindCC, got)
	_, err = ParseKind("sysex")
	assert.Error(t, err)
}
