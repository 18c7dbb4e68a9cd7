package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogue(t *testing.T) {
	s, err := Default()
	require.NoError(t, err)

	assert.Equal(t, "en", s.Language())
	assert.True(t, s.Contains("Exposure"))
	assert.True(t, s.Contains("NextPro"))
	assert.False(t, s.Contains("LaunchRockets"))
	assert.Equal(t, "Next Profile", s.Label("NextPro"))
	assert.Equal(t, "LaunchRockets", s.Label("LaunchRockets"))
	assert.Equal(t, "WhiteBalance", s.Keys()[0])
	assert.NotEmpty(t, s.Categories())
}

func TestParseErrors(t *testing.T) {
	tests := map[string]string{
		"syntax":    "categories: [",
		"empty":     "language: de\n",
		"empty key": "categories:\n  - name: A\n    commands:\n      - {label: x}\n",
		"duplicate": "categories:\n  - name: A\n    commands:\n      - {key: x}\n      - {key: x}\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commands.yaml")
	require.NoError(t, os.WriteFile(path, []byte("language: de\ncategories:\n  - name: Grund\n    commands:\n      - {key: Exposure, label: Belichtung}\n"), 0644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "de", s.Language())
	assert.Equal(t, "Belichtung", s.Label("Exposure"))

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
