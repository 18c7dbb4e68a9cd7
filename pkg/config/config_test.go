package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvPrefix+"_DATA_DIR", dir)

	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, dir, c.DataDir)
	assert.Equal(t, 2, c.Workers)
	assert.Equal(t, "en", c.Language)
	assert.Equal(t, "127.0.0.1:58763", c.SendAddress())
	assert.Equal(t, "127.0.0.1:58764", c.ReceiveAddress())
	assert.Equal(t, "127.0.0.1:58765", c.Instance.Address)
	assert.Equal(t, 5*time.Second, c.Version.CheckDelay)
	assert.Equal(t, 5*time.Minute, c.Profile.Autosave)
	assert.Equal(t, 1, c.Log.MaxSizeMB)
	assert.Equal(t, filepath.Join(dir, LogFileName), c.LogPath())
	assert.Equal(t, filepath.Join(dir, ProfilesDirName), c.ProfileDirectory())
	assert.Empty(t, c.File)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvPrefix+"_DATA_DIR", dir)
	t.Setenv(EnvPrefix+"_REMOTE_SEND_PORT", "60000")

	data := []byte(`
workers: 4
language: de
remote:
  receive_port: 60001
version:
  url: http://localhost/version
  check_delay: 1m
profile:
  autosave: 0s
log:
  level: debug
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), data, 0o600))

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 4, c.Workers)
	assert.Equal(t, "de", c.Language)
	assert.Equal(t, 60000, c.Remote.SendPort)
	assert.Equal(t, 60001, c.Remote.ReceivePort)
	assert.Equal(t, "http://localhost/version", c.Version.URL)
	assert.Equal(t, time.Minute, c.Version.CheckDelay)
	assert.Equal(t, time.Duration(0), c.Profile.Autosave)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, filepath.Join(dir, FileName), c.File)
}

func TestLoadExplicitMissingFile(t *testing.T) {
	t.Setenv(EnvPrefix+"_DATA_DIR", t.TempDir())
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"zero workers", "workers: 0\n", ErrInvalidWorkers},
		{"bad port", "remote:\n  send_port: 70000\n", ErrInvalidPort},
		{"negative delay", "version:\n  check_delay: -1s\n", ErrInvalidValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			t.Setenv(EnvPrefix+"_DATA_DIR", dir)
			path := filepath.Join(dir, "custom.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o600))

			_, err := Load(path)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLoadMalformedFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvPrefix+"_DATA_DIR", dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("workers: [\n"), 0o600))

	_, err := Load("")
	assert.Error(t, err)
}
