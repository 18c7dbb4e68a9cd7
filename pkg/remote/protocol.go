package remote

import (
	"errors"
	"strings"
)

// Default loopback ports of the host plugin.
const (
	DefaultHost        = "127.0.0.1"
	DefaultSendPort    = 58763
	DefaultReceivePort = 58764
)

// Control commands sent by the host.
const (
	CommandTerminate     = "TerminateApplication"
	CommandSwitchProfile = "SwitchProfile"
)

// ErrEmptyLine is returned for a line without a command.
var ErrEmptyLine = errors.New("empty remote line")

// Line is one protocol line.
type Line struct {
	Command string
	Value   string
}

// ParseLine splits s at the first space. Trailing line terminators are
// ignored.
func ParseLine(s string) (Line, error) {
	s = strings.TrimRight(s, "\r\n")
	s = strings.TrimLeft(s, " \t")
	if s == "" {
		return Line{}, ErrEmptyLine
	}
	cmd, value, _ := strings.Cut(s, " ")
	return Line{Command: cmd, Value: value}, nil
}

// FormatLine returns the wire form of a line including the newline.
func FormatLine(command, value string) string {
	return string(AppendLine(nil, command, value))
}

// AppendLine appends the wire form of a line to b.
func AppendLine(b []byte, command, value string) []byte {
	b = append(b, command...)
	if value != "" {
		b = append(b, ' ')
		b = append(b, value...)
	}
	return append(b, '\n')
}
