package persistence

import (
	"encoding/xml"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type note struct {
	XMLName xml.Name `xml:"note"`
	Text    string   `xml:"text,attr"`
}

func (n *note) WriteXML(w io.Writer) error {
	return xml.NewEncoder(w).Encode(n)
}

func (n *note) ReadXML(r io.Reader) error {
	var tmp note
	if err := xml.NewDecoder(r).Decode(&tmp); err != nil {
		return err
	}
	*n = tmp
	return nil
}

type failingCodec struct{}

func (failingCodec) WriteXML(io.Writer) error { return errors.New("encode failed") }
func (failingCodec) ReadXML(io.Reader) error  { return nil }

func TestXMLFileSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", SettingsFileName)
	f := NewXMLFile(path)
	assert.False(t, f.Exists())

	require.NoError(t, f.Save(&note{Text: "hello"}))
	assert.True(t, f.Exists())
	assert.Equal(t, path, f.Path())

	var got note
	found, err := f.Load(&got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "hello", got.Text)
}

func TestXMLFileLoadMissing(t *testing.T) {
	f := NewXMLFile(filepath.Join(t.TempDir(), "absent.xml"))
	got := note{Text: "default"}
	found, err := f.Load(&got)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, "default", got.Text)
}

func TestXMLFileLoadEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.xml")
	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0644))

	found, err := NewXMLFile(path).Load(&note{})
	require.NoError(t, err)
	assert.False(t, found)
}

func TestXMLFileLoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.xml")
	require.NoError(t, os.WriteFile(path, []byte("<note text="), 0644))

	_, err := NewXMLFile(path).Load(&note{})
	assert.ErrorIs(t, err, ErrCorruptState)
}

func TestXMLFileSaveFailureKeepsOldFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keep.xml")
	f := NewXMLFile(path)
	require.NoError(t, f.Save(&note{Text: "v1"}))

	assert.Error(t, f.Save(failingCodec{}))

	var got note
	_, err := f.Load(&got)
	require.NoError(t, err)
	assert.Equal(t, "v1", got.Text)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestXMLFileClear(t *testing.T) {
	f := NewXMLFile(filepath.Join(t.TempDir(), "x.xml"))
	require.NoError(t, f.Clear())
	require.NoError(t, f.Save(&note{}))
	require.NoError(t, f.Clear())
	assert.False(t, f.Exists())
}
