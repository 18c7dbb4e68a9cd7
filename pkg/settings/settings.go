// Package settings persists the user's preferences as YAML and propagates
// changes to the components that depend on them.
package settings

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the preferences file name under the data directory.
const FileName = "preferences.yaml"

// Remote command carrying the profile directory.
const CommandChangedToDirectory = "ChangedToDirectory"

// ErrNegativeAutoHide is returned for a negative auto-hide delay.
var ErrNegativeAutoHide = errors.New("auto-hide delay must not be negative")

// Preferences is the persisted document.
type Preferences struct {
	ProfileDirectory string        `yaml:"profile_directory"`
	DefaultProfile   string        `yaml:"default_profile,omitempty"`
	LastVersionFound string        `yaml:"last_version_found,omitempty"`
	AutoHide         time.Duration `yaml:"auto_hide"`
}

// DirectorySetter is notified when the profile directory changes.
type DirectorySetter interface {
	SetDirectory(dir string) error
}

// CommandSender delivers a command to the host application.
type CommandSender interface {
	SendCommand(command, value string) error
}

// Config configures a Manager.
type Config struct {
	// Path of the preferences file.
	Path string

	// DefaultProfileDirectory is used when no directory was saved.
	DefaultProfileDirectory string

	// Profiles is told about directory changes. May be nil.
	Profiles DirectorySetter

	// Remote is told the directory on connect and on change. May be nil.
	Remote CommandSender

	// Logger is the operational logger. Nil means slog.Default().
	Logger *slog.Logger
}

// Manager owns the preferences.
type Manager struct {
	cfg    Config
	logger *slog.Logger

	mu    sync.RWMutex
	prefs Preferences
}

// NewManager creates a manager with default preferences. Call Load to read
// the saved ones.
func NewManager(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:    cfg,
		logger: logger.With("component", "settings"),
		prefs:  Preferences{ProfileDirectory: cfg.DefaultProfileDirectory},
	}
}

// Load reads the preferences file. A missing file keeps the defaults.
func (m *Manager) Load() error {
	data, err := os.ReadFile(m.cfg.Path)
	if os.IsNotExist(err) {
		m.applyDirectory(m.ProfileDirectory())
		return nil
	}
	if err != nil {
		return err
	}

	prefs := Preferences{ProfileDirectory: m.cfg.DefaultProfileDirectory}
	if err := yaml.Unmarshal(data, &prefs); err != nil {
		return fmt.Errorf("parse %s: %w", m.cfg.Path, err)
	}
	if prefs.ProfileDirectory == "" {
		prefs.ProfileDirectory = m.cfg.DefaultProfileDirectory
	}

	m.mu.Lock()
	m.prefs = prefs
	m.mu.Unlock()

	m.applyDirectory(prefs.ProfileDirectory)
	return nil
}

// Save writes the preferences file.
func (m *Manager) Save() error {
	m.mu.RLock()
	data, err := yaml.Marshal(m.prefs)
	m.mu.RUnlock()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(m.cfg.Path), 0755); err != nil {
		return err
	}
	return os.WriteFile(m.cfg.Path, data, 0644)
}

// Preferences returns a copy of the current preferences.
func (m *Manager) Preferences() Preferences {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.prefs
}

// ProfileDirectory returns the profile directory.
func (m *Manager) ProfileDirectory() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.prefs.ProfileDirectory
}

// SetProfileDirectory changes and saves the profile directory, rescans the
// profiles and tells the host.
func (m *Manager) SetProfileDirectory(dir string) error {
	m.mu.Lock()
	m.prefs.ProfileDirectory = dir
	m.mu.Unlock()

	m.applyDirectory(dir)
	m.sendDirectory(dir)
	return m.Save()
}

// DefaultProfile returns the profile opened at startup.
func (m *Manager) DefaultProfile() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.prefs.DefaultProfile
}

// SetDefaultProfile changes and saves the profile opened at startup.
func (m *Manager) SetDefaultProfile(name string) error {
	m.mu.Lock()
	m.prefs.DefaultProfile = name
	m.mu.Unlock()
	return m.Save()
}

// LastVersionFound returns the newest version already reported to the user.
func (m *Manager) LastVersionFound() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.prefs.LastVersionFound
}

// SetLastVersionFound records and saves the newest reported version.
func (m *Manager) SetLastVersionFound(v string) error {
	m.mu.Lock()
	m.prefs.LastVersionFound = v
	m.mu.Unlock()
	return m.Save()
}

// AutoHide returns the delay after which transient notices are hidden.
func (m *Manager) AutoHide() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.prefs.AutoHide
}

// SetAutoHide changes and saves the auto-hide delay.
func (m *Manager) SetAutoHide(d time.Duration) error {
	if d < 0 {
		return ErrNegativeAutoHide
	}
	m.mu.Lock()
	m.prefs.AutoHide = d
	m.mu.Unlock()
	return m.Save()
}

// HandleConnection is the remote connection callback.
func (m *Manager) HandleConnection(connected bool) {
	if connected {
		m.sendDirectory(m.ProfileDirectory())
	}
}

func (m *Manager) applyDirectory(dir string) {
	if m.cfg.Profiles == nil || dir == "" {
		return
	}
	if err := m.cfg.Profiles.SetDirectory(dir); err != nil {
		m.logger.Warn("profile directory unusable", "dir", dir, "error", err)
	}
}

func (m *Manager) sendDirectory(dir string) {
	if m.cfg.Remote == nil || dir == "" {
		return
	}
	if err := m.cfg.Remote.SendCommand(CommandChangedToDirectory, dir); err != nil {
		m.logger.Debug("profile directory not sent to host", "error", err)
	}
}
