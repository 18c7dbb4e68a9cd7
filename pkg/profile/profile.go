// Package profile holds the user's mapping from device messages to host
// commands and manages switching between saved profiles.
package profile

import (
	"fmt"
	"sync"

	"github.com/ctlbridge/ctlbridge-go/pkg/device"
)

// MessageID identifies a control on the device independent of its value.
type MessageID struct {
	Kind    device.Kind
	Channel uint8
	Number  uint16
}

// IDOf returns the identity of msg. Note-off shares the identity of note-on
// and pitch bend ignores the number.
func IDOf(msg device.Message) MessageID {
	id := MessageID{Kind: msg.Kind, Channel: msg.Channel, Number: msg.Number}
	switch msg.Kind {
	case device.KindNoteOff:
		id.Kind = device.KindNoteOn
	case device.KindPitchBend:
		id.Number = 0
	}
	return id
}

// String returns e.g. "CC 1:7".
func (id MessageID) String() string {
	if id.Kind == device.KindPitchBend {
		return fmt.Sprintf("%s %d", id.Kind, id.Channel+1)
	}
	return fmt.Sprintf("%s %d:%d", id.Kind, id.Channel+1, id.Number)
}

// Row is one mapping entry.
type Row struct {
	ID      MessageID
	Command string
}

// Profile is an ordered set of rows. It is safe for concurrent use.
type Profile struct {
	mu      sync.RWMutex
	rows    []Row
	index   map[MessageID]int
	unsaved bool
}

// New returns an empty profile.
func New() *Profile {
	return &Profile{index: make(map[MessageID]int)}
}

// SetCommand maps id to command, adding a row if id is new.
func (p *Profile) SetCommand(id MessageID, command string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if i, ok := p.index[id]; ok {
		if p.rows[i].Command == command {
			return
		}
		p.rows[i].Command = command
	} else {
		p.index[id] = len(p.rows)
		p.rows = append(p.rows, Row{ID: id, Command: command})
	}
	p.unsaved = true
}

// Command returns the command mapped to id.
func (p *Profile) Command(id MessageID) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	i, ok := p.index[id]
	if !ok || p.rows[i].Command == "" {
		return "", false
	}
	return p.rows[i].Command, true
}

// MessagesFor returns every id mapped to command, in row order.
func (p *Profile) MessagesFor(command string) []MessageID {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var ids []MessageID
	for _, r := range p.rows {
		if r.Command == command {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

// RemoveRow deletes the row for id.
func (p *Profile) RemoveRow(id MessageID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	i, ok := p.index[id]
	if !ok {
		return false
	}
	p.rows = append(p.rows[:i], p.rows[i+1:]...)
	p.reindexLocked()
	p.unsaved = true
	return true
}

// Rows returns a copy of the rows.
func (p *Profile) Rows() []Row {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Row(nil), p.rows...)
}

// Len returns the number of rows.
func (p *Profile) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.rows)
}

// Replace swaps in rows, as when a profile file is opened. The result is
// considered saved.
func (p *Profile) Replace(rows []Row) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rows = append([]Row(nil), rows...)
	p.reindexLocked()
	p.unsaved = false
}

// Unsaved reports whether the profile changed since it was last saved.
func (p *Profile) Unsaved() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.unsaved
}

// MarkSaved clears the unsaved flag. Only a save the user asked for should
// call it; writing the default profile on exit does not.
func (p *Profile) MarkSaved() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unsaved = false
}

func (p *Profile) reindexLocked() {
	p.index = make(map[MessageID]int, len(p.rows))
	for i, r := range p.rows {
		p.index[r.ID] = i
	}
}
