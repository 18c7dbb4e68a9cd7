package remote

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		in   string
		want Line
	}{
		{"Exposure 0.5\n", Line{Command: "Exposure", Value: "0.5"}},
		{"TerminateApplication\r\n", Line{Command: "TerminateApplication"}},
		{"SwitchProfile my profile.xml", Line{Command: "SwitchProfile", Value: "my profile.xml"}},
		{"  Temp 1", Line{Command: "Temp", Value: "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLine(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseLineEmpty(t *testing.T) {
	for _, in := range []string{"", "\n", "   \r\n"} {
		_, err := ParseLine(in)
		assert.ErrorIs(t, err, ErrEmptyLine, "input %q", in)
	}
}

func TestFormatLine(t *testing.T) {
	assert.Equal(t, "Exposure 0.25\n", FormatLine("Exposure", "0.25"))
	assert.Equal(t, "Undo\n", FormatLine("Undo", ""))

	line, err := ParseLine(FormatLine("ChangedToFile", "a b.xml"))
	require.NoError(t, err)
	assert.Equal(t, Line{Command: "ChangedToFile", Value: "a b.xml"}, line)
}
