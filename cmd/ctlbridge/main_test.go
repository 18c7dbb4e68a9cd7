package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctlbridge/ctlbridge-go/pkg/persistence"
)

// run installs the process-wide crash handler, so only one test may call it.
func TestShutdownTokenWithoutRunningInstance(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CTLBRIDGE_DATA_DIR", dir)
	t.Setenv("CTLBRIDGE_INSTANCE_ADDRESS", "127.0.0.1:0")

	code := run([]string{"--LRSHUTDOWN"})
	assert.Equal(t, 0, code)

	for _, name := range []string{persistence.SettingsFileName, persistence.DefaultProfileFileName, persistence.RunStateFileName} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.True(t, os.IsNotExist(err), "%s should not be written", name)
	}
	_, err := os.Stat(filepath.Join(dir, "ctlbridge.log"))
	assert.NoError(t, err, "application log should be opened")
}

func TestVirtualDevices(t *testing.T) {
	reg, in, out, err := virtualDevices()
	require.NoError(t, err)

	assert.Equal(t, []string{virtualInput}, reg.InputNames())
	assert.Equal(t, []string{virtualOutput}, reg.OutputNames())
	assert.Equal(t, virtualInput, in.Name())
	assert.Equal(t, virtualOutput, out.Name())
}
