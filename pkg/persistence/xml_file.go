package persistence

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Well-known file names under the data directory.
const (
	SettingsFileName       = "settings.xml"
	DefaultProfileFileName = "default.xml"
	RunStateFileName       = "runstate.json"
)

// ErrCorruptState indicates a state file exists but cannot be decoded.
var ErrCorruptState = errors.New("corrupt state file")

// XMLCodec is implemented by state that serialises itself as XML.
type XMLCodec interface {
	WriteXML(w io.Writer) error
	ReadXML(r io.Reader) error
}

// XMLFile is one XML state file on disk.
type XMLFile struct {
	mu   sync.Mutex
	path string
}

// NewXMLFile creates a handle for the file at path.
func NewXMLFile(path string) *XMLFile {
	return &XMLFile{path: path}
}

// Path returns the file path.
func (f *XMLFile) Path() string {
	return f.path
}

// Exists reports whether the file is present.
func (f *XMLFile) Exists() bool {
	_, err := os.Stat(f.path)
	return err == nil
}

// Save encodes v and atomically replaces the file.
func (f *XMLFile) Save(v XMLCodec) error {
	var buf bytes.Buffer
	if err := v.WriteXML(&buf); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return writeAtomic(f.path, buf.Bytes())
}

// Load decodes the file into v. It returns false, nil when the file is absent
// or empty and v is left untouched. A decode failure wraps ErrCorruptState.
func (f *XMLFile) Load(v XMLCodec) (bool, error) {
	f.mu.Lock()
	data, err := os.ReadFile(f.path)
	f.mu.Unlock()

	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return false, nil
	}

	if err := v.ReadXML(bytes.NewReader(data)); err != nil {
		return false, fmt.Errorf("%w: %s: %w", ErrCorruptState, f.path, err)
	}
	return true, nil
}

// Clear removes the file.
func (f *XMLFile) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := os.Remove(f.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// writeAtomic writes data to a temporary file next to path and renames it
// over path.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
