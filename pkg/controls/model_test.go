package controls

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctlbridge/ctlbridge-go/pkg/device"
)

func cc(ch, n uint8, v int) device.Message {
	return device.Message{Kind: device.KindCC, Channel: ch, Number: uint16(n), Value: v}
}

func TestDefaults(t *testing.T) {
	m := New()
	s, err := m.Controller(0, 7)
	require.NoError(t, err)
	assert.Equal(t, DefaultController(), s)

	p, err := m.Pitch(15)
	require.NoError(t, err)
	assert.Equal(t, 0, p.Low)
	assert.Equal(t, 16383, p.High)
}

func TestValidation(t *testing.T) {
	m := New()
	_, err := m.Controller(16, 0)
	assert.ErrorIs(t, err, ErrInvalidChannel)
	_, err = m.Controller(0, 128)
	assert.ErrorIs(t, err, ErrInvalidController)
	assert.ErrorIs(t, m.SetRange(0, 0, -1, 127), ErrInvalidValue)
	assert.ErrorIs(t, m.SetPitchRange(0, 0, 20000), ErrInvalidValue)
	assert.ErrorIs(t, m.SetMethod(0, 0, Method(9)), ErrInvalidMethod)
	_, err = m.ControllerToPlugin(device.Message{Kind: device.Kind(9)})
	assert.ErrorIs(t, err, ErrUnsupportedKind)
}

func TestAbsoluteControllerToPlugin(t *testing.T) {
	m := New()
	require.NoError(t, m.SetRange(0, 7, 20, 120))

	tests := []struct {
		in   int
		want float64
	}{
		{20, 0},
		{70, 0.5},
		{120, 1},
		{0, 0},
		{127, 1},
	}
	for _, tt := range tests {
		got, err := m.ControllerToPlugin(cc(0, 7, tt.in))
		require.NoError(t, err)
		assert.InDelta(t, tt.want, got, 1e-9, "value %d", tt.in)
	}
}

func TestRelativeMethodsAccumulate(t *testing.T) {
	tests := []struct {
		method Method
		up     int
		down   int
	}{
		{MethodTwosComplement, 1, 127},
		{MethodBinaryOffset, 65, 63},
		{MethodSignMagnitude, 1, 65},
	}
	for _, tt := range tests {
		t.Run(tt.method.String(), func(t *testing.T) {
			m := New()
			require.NoError(t, m.SetMethod(2, 10, tt.method))

			for i := 0; i < 3; i++ {
				_, err := m.ControllerToPlugin(cc(2, 10, tt.up))
				require.NoError(t, err)
			}
			_, err := m.ControllerToPlugin(cc(2, 10, tt.down))
			require.NoError(t, err)

			s, _ := m.Controller(2, 10)
			assert.Equal(t, 2, s.Value)

			// Clamped at the low end.
			for i := 0; i < 5; i++ {
				_, _ = m.ControllerToPlugin(cc(2, 10, tt.down))
			}
			s, _ = m.Controller(2, 10)
			assert.Equal(t, 0, s.Value)
		})
	}
}

func TestPitchBendAndNotes(t *testing.T) {
	m := New()
	v, err := m.ControllerToPlugin(device.Message{Kind: device.KindPitchBend, Channel: 1, Value: 16383})
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	v, err = m.ControllerToPlugin(device.Message{Kind: device.KindNoteOn, Number: 60, Value: 100})
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	v, err = m.ControllerToPlugin(device.Message{Kind: device.KindNoteOff, Number: 60})
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)
}

func TestPluginToController(t *testing.T) {
	m := New()
	require.NoError(t, m.SetRange(0, 1, 0, 100))

	got, err := m.PluginToController(device.KindCC, 0, 1, 0.25)
	require.NoError(t, err)
	assert.Equal(t, 25, got)

	got, err = m.PluginToController(device.KindCC, 0, 1, 7)
	require.NoError(t, err)
	assert.Equal(t, 100, got, "values above 1 clamp")

	got, err = m.PluginToController(device.KindPitchBend, 3, 0, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 8192, got)

	got, err = m.PluginToController(device.KindNoteOn, 0, 60, 1)
	require.NoError(t, err)
	assert.Equal(t, 127, got)

	s, _ := m.Controller(0, 1)
	assert.Equal(t, 100, s.Value)
}

func TestXMLRoundTrip(t *testing.T) {
	m := New()
	require.NoError(t, m.SetMethod(0, 0, MethodTwosComplement))
	require.NoError(t, m.SetRange(3, 64, 10, 90))
	require.NoError(t, m.SetMethod(15, 127, MethodSignMagnitude))
	require.NoError(t, m.SetPitchRange(9, 100, 16000))
	_, err := m.PluginToController(device.KindCC, 3, 64, 0.5)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, m.WriteXML(&buf))

	loaded := New()
	require.NoError(t, loaded.ReadXML(&buf))
	assert.True(t, m.Equal(loaded))
}

func TestXMLDefaultModelIsCompact(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New().WriteXML(&buf))
	assert.NotContains(t, buf.String(), "<Channel")

	loaded := New()
	require.NoError(t, loaded.ReadXML(&buf))
	assert.True(t, New().Equal(loaded))
}

func TestReadXMLRejectsMalformed(t *testing.T) {
	tests := map[string]string{
		"not xml":        "this is not a settings file",
		"wrong root":     `<Profile/>`,
		"bad channel":    `<ControlsModel version="1"><Channel index="16"/></ControlsModel>`,
		"bad method":     `<ControlsModel version="1"><Channel index="0"><CC number="1" method="sideways" low="0" high="127" value="0"/></Channel></ControlsModel>`,
		"bad value":      `<ControlsModel version="1"><Channel index="0"><CC number="1" method="absolute" low="0" high="300" value="0"/></Channel></ControlsModel>`,
		"future version": `<ControlsModel version="99"/>`,
		"truncated":      `<ControlsModel version="1"><Channel index="0">`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			m := New()
			require.NoError(t, m.SetMethod(1, 1, MethodBinaryOffset))
			before := New()
			require.NoError(t, before.SetMethod(1, 1, MethodBinaryOffset))

			assert.Error(t, m.ReadXML(strings.NewReader(doc)))
			assert.True(t, m.Equal(before), "failed load must not modify state")
		})
	}
}

func TestConcurrentMutation(t *testing.T) {
	m := New()
	require.NoError(t, m.SetMethod(0, 5, MethodBinaryOffset))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = m.ControllerToPlugin(cc(0, 5, 65))
				_, _ = m.PluginToController(device.KindCC, 0, 6, 0.5)
			}
		}()
	}
	wg.Wait()

	s, _ := m.Controller(0, 5)
	assert.Equal(t, 127, s.Value)
}

func TestParseMethod(t *testing.T) {
	for _, m := range []Method{MethodAbsolute, MethodTwosComplement, MethodBinaryOffset, MethodSignMagnitude} {
		got, err := ParseMethod(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	_, err := ParseMethod("nope")
	assert.ErrorIs(t, err, ErrInvalidMethod)
}
