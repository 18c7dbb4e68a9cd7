package profile

import (
	"encoding/xml"
	"fmt"
	"io"

	"github.com/ctlbridge/ctlbridge-go/pkg/device"
)

type xmlSettings struct {
	XMLName xml.Name     `xml:"settings"`
	Rows    []xmlSetting `xml:"setting"`
}

type xmlSetting struct {
	Channel    int    `xml:"channel,attr"`
	Controller int    `xml:"controller,attr"`
	MsgType    string `xml:"msg_type,attr"`
	Command    string `xml:"command_string,attr"`
}

// WriteXML writes the rows. Channels are written one based.
func (p *Profile) WriteXML(w io.Writer) error {
	doc := xmlSettings{}
	for _, r := range p.Rows() {
		doc.Rows = append(doc.Rows, xmlSetting{
			Channel:    int(r.ID.Channel) + 1,
			Controller: int(r.ID.Number),
			MsgType:    r.ID.Kind.String(),
			Command:    r.Command,
		})
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	return enc.Close()
}

// ReadXML replaces the rows with those read from r. On error the profile is
// unchanged.
func (p *Profile) ReadXML(r io.Reader) error {
	var doc xmlSettings
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return fmt.Errorf("decode profile: %w", err)
	}

	rows := make([]Row, 0, len(doc.Rows))
	seen := make(map[MessageID]bool, len(doc.Rows))
	for _, s := range doc.Rows {
		kind, err := device.ParseKind(s.MsgType)
		if err != nil {
			return fmt.Errorf("decode profile: %w", err)
		}
		if s.Channel < 1 || s.Channel > device.MaxChannel+1 || s.Controller < 0 || s.Controller > device.MaxNumber {
			return fmt.Errorf("decode profile: %w: channel %d controller %d", device.ErrInvalidMessage, s.Channel, s.Controller)
		}
		id := IDOf(device.Message{Kind: kind, Channel: uint8(s.Channel - 1), Number: uint16(s.Controller)})
		if seen[id] {
			continue
		}
		seen[id] = true
		rows = append(rows, Row{ID: id, Command: s.Command})
	}

	p.Replace(rows)
	return nil
}
