package persistence

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunStateStoreRoundTrip(t *testing.T) {
	store := NewRunStateStore(filepath.Join(t.TempDir(), RunStateFileName))

	state, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, state)

	require.NoError(t, store.Save(&RunState{SessionID: "abc", Profile: "studio.xml"}))

	state, err = store.Load()
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, RunStateVersion, state.Version)
	assert.Equal(t, "abc", state.SessionID)
	assert.False(t, state.CleanShutdown)
	assert.False(t, state.SavedAt.IsZero())
}

func TestRunStateStoreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), RunStateFileName)
	require.NoError(t, os.WriteFile(path, []byte("{"), 0644))

	_, err := NewRunStateStore(path).Load()
	assert.ErrorIs(t, err, ErrCorruptState)
}
