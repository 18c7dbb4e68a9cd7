package controls

import (
	"encoding/xml"
	"fmt"
	"io"

	"github.com/ctlbridge/ctlbridge-go/pkg/device"
)

// FormatVersion is written to the root element of persisted state.
const FormatVersion = 1

type xmlModel struct {
	XMLName  xml.Name     `xml:"ControlsModel"`
	Version  int          `xml:"version,attr"`
	Channels []xmlChannel `xml:"Channel"`
}

type xmlChannel struct {
	Index int       `xml:"index,attr"`
	CCs   []xmlCC   `xml:"CC"`
	Pitch *xmlPitch `xml:"PitchWheel"`
}

type xmlCC struct {
	Number int    `xml:"number,attr"`
	Method string `xml:"method,attr"`
	Low    int    `xml:"low,attr"`
	High   int    `xml:"high,attr"`
	Value  int    `xml:"value,attr"`
}

type xmlPitch struct {
	Low   int `xml:"low,attr"`
	High  int `xml:"high,attr"`
	Value int `xml:"value,attr"`
}

// WriteXML writes the settings that differ from their defaults.
func (m *Model) WriteXML(w io.Writer) error {
	st := m.snapshot()

	doc := xmlModel{Version: FormatVersion}
	for ch := 0; ch < Channels; ch++ {
		c := xmlChannel{Index: ch}
		for n := 0; n < Controllers; n++ {
			s := st.cc[ch][n]
			if s == DefaultController() {
				continue
			}
			c.CCs = append(c.CCs, xmlCC{
				Number: n,
				Method: s.Method.String(),
				Low:    s.Low,
				High:   s.High,
				Value:  s.Value,
			})
		}
		if p := st.pitch[ch]; p != DefaultPitch() {
			c.Pitch = &xmlPitch{Low: p.Low, High: p.High, Value: p.Value}
		}
		if len(c.CCs) > 0 || c.Pitch != nil {
			doc.Channels = append(doc.Channels, c)
		}
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode controls: %w", err)
	}
	return enc.Close()
}

// ReadXML replaces the model state with the document read from r. Any
// structural or range error leaves the model unchanged.
func (m *Model) ReadXML(r io.Reader) error {
	var doc xmlModel
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return fmt.Errorf("decode controls: %w", err)
	}
	if doc.Version > FormatVersion {
		return fmt.Errorf("decode controls: unsupported version %d", doc.Version)
	}

	fresh := New()
	for _, c := range doc.Channels {
		if err := checkChannel(c.Index); err != nil {
			return err
		}
		for _, cc := range c.CCs {
			if err := checkController(c.Index, cc.Number); err != nil {
				return err
			}
			method, err := ParseMethod(cc.Method)
			if err != nil {
				return err
			}
			if !inRange(cc.Low, device.MaxValue) || !inRange(cc.High, device.MaxValue) ||
				!inRange(cc.Value, device.MaxValue) {
				return fmt.Errorf("%w: controller %d/%d", ErrInvalidValue, c.Index, cc.Number)
			}
			fresh.cc[c.Index][cc.Number] = ControllerSettings{
				Method: method,
				Low:    cc.Low,
				High:   cc.High,
				Value:  cc.Value,
			}
		}
		if p := c.Pitch; p != nil {
			if !inRange(p.Low, device.MaxPitchBend) || !inRange(p.High, device.MaxPitchBend) ||
				!inRange(p.Value, device.MaxPitchBend) {
				return fmt.Errorf("%w: pitch wheel %d", ErrInvalidValue, c.Index)
			}
			fresh.pitch[c.Index] = PitchSettings{Low: p.Low, High: p.High, Value: p.Value}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cc = fresh.cc
	m.pitch = fresh.pitch
	return nil
}
