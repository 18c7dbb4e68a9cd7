package settings

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockDirectory struct{ mock.Mock }

func (m *mockDirectory) SetDirectory(dir string) error {
	return m.Called(dir).Error(0)
}

type mockSender struct{ mock.Mock }

func (m *mockSender) SendCommand(command, value string) error {
	return m.Called(command, value).Error(0)
}

func TestLoadMissingKeepsDefaults(t *testing.T) {
	dirs := &mockDirectory{}
	dirs.On("SetDirectory", "/profiles").Return(nil).Once()

	m := NewManager(Config{
		Path:                    filepath.Join(t.TempDir(), FileName),
		DefaultProfileDirectory: "/profiles",
		Profiles:                dirs,
	})
	require.NoError(t, m.Load())
	assert.Equal(t, "/profiles", m.ProfileDirectory())
	assert.Equal(t, time.Duration(0), m.AutoHide())
	dirs.AssertExpectations(t)
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", FileName)
	m := NewManager(Config{Path: path})
	require.NoError(t, m.SetDefaultProfile("studio.xml"))
	require.NoError(t, m.SetLastVersionFound("1.2.0"))
	require.NoError(t, m.SetAutoHide(3*time.Second))
	assert.ErrorIs(t, m.SetAutoHide(-time.Second), ErrNegativeAutoHide)

	reloaded := NewManager(Config{Path: path, DefaultProfileDirectory: "/fallback"})
	require.NoError(t, reloaded.Load())
	p := reloaded.Preferences()
	assert.Equal(t, "studio.xml", p.DefaultProfile)
	assert.Equal(t, "1.2.0", p.LastVersionFound)
	assert.Equal(t, 3*time.Second, p.AutoHide)
	assert.Equal(t, "/fallback", p.ProfileDirectory)
}

func TestSetProfileDirectoryPropagates(t *testing.T) {
	dirs := &mockDirectory{}
	dirs.On("SetDirectory", "/new").Return(nil).Once()
	remote := &mockSender{}
	remote.On("SendCommand", CommandChangedToDirectory, "/new").Return(nil).Once()

	m := NewManager(Config{Path: filepath.Join(t.TempDir(), FileName), Profiles: dirs, Remote: remote})
	require.NoError(t, m.SetProfileDirectory("/new"))

	dirs.AssertExpectations(t)
	remote.AssertExpectations(t)
	assert.Equal(t, "/new", m.ProfileDirectory())
}

func TestHandleConnectionSendsDirectory(t *testing.T) {
	remote := &mockSender{}
	remote.On("SendCommand", CommandChangedToDirectory, "/p").Return(nil).Once()

	m := NewManager(Config{Path: filepath.Join(t.TempDir(), FileName), DefaultProfileDirectory: "/p", Remote: remote})
	m.HandleConnection(false)
	m.HandleConnection(true)
	remote.AssertExpectations(t)
}

func TestLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("profile_directory: [unterminated"), 0644))
	assert.Error(t, NewManager(Config{Path: path}).Load())
}
