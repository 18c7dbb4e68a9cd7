package profile

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ctlbridge/ctlbridge-go/pkg/device"
	"github.com/ctlbridge/ctlbridge-go/pkg/persistence"
)

// Manager errors.
var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrNoProfiles      = errors.New("no profiles in directory")
)

// Commands handled by the manager itself.
const (
	CommandPrevProfile = "PrevPro"
	CommandNextProfile = "NextPro"
)

// Remote command sent after a profile switch.
const CommandChangedToFile = "ChangedToFile"

// CommandSender delivers a command to the host application.
type CommandSender interface {
	SendCommand(command, value string) error
}

// ChangeFunc is called with the file name of the newly active profile.
type ChangeFunc func(name string)

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// Profile is the in-memory profile that switches load into.
	Profile *Profile

	// Directory is scanned for *.xml profiles.
	Directory string

	// Remote receives profile change notifications. May be nil.
	Remote CommandSender

	// Logger is the operational logger. Nil means slog.Default().
	Logger *slog.Logger
}

type listener struct {
	owner string
	fn    ChangeFunc
}

// Manager switches the active profile.
type Manager struct {
	profile *Profile
	remote  CommandSender
	logger  *slog.Logger

	mu        sync.Mutex
	directory string
	files     []string
	current   int
	listeners []listener
}

// NewManager creates a manager. The directory is scanned immediately; a scan
// failure is logged and leaves the list empty.
func NewManager(cfg ManagerConfig) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		profile: cfg.Profile,
		remote:  cfg.Remote,
		logger:  logger.With("component", "profile-manager"),
		current: -1,
	}
	if cfg.Directory != "" {
		if err := m.SetDirectory(cfg.Directory); err != nil {
			m.logger.Warn("profile directory scan failed", "dir", cfg.Directory, "error", err)
		}
	}
	return m
}

// SetDirectory changes the profile directory and rescans it.
func (m *Manager) SetDirectory(dir string) error {
	files, err := scan(dir)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.directory = dir
	m.files = files
	m.current = -1
	return err
}

// Rescan re-reads the current directory, keeping the active profile selected.
func (m *Manager) Rescan() error {
	m.mu.Lock()
	dir := m.directory
	var active string
	if m.current >= 0 && m.current < len(m.files) {
		active = m.files[m.current]
	}
	m.mu.Unlock()

	files, err := scan(dir)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.files = files
	m.current = indexOf(files, active)
	return nil
}

func scan(dir string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".xml") {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)
	return files, nil
}

func indexOf(files []string, name string) int {
	for i, f := range files {
		if f == name {
			return i
		}
	}
	return -1
}

// Directory returns the profile directory.
func (m *Manager) Directory() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.directory
}

// Profiles returns the profile file names, sorted.
func (m *Manager) Profiles() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.files...)
}

// Current returns the active profile name, or "" if none was switched to.
func (m *Manager) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current < 0 || m.current >= len(m.files) {
		return ""
	}
	return m.files[m.current]
}

// OnProfileChange registers fn under owner.
func (m *Manager) OnProfileChange(owner string, fn ChangeFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, listener{owner: owner, fn: fn})
}

// RemoveListeners drops every listener registered by owner.
func (m *Manager) RemoveListeners(owner string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.listeners[:0]
	for _, l := range m.listeners {
		if l.owner != owner {
			kept = append(kept, l)
		}
	}
	m.listeners = kept
}

// SwitchToProfile loads the named file from the profile directory into the
// profile and notifies listeners and the host.
func (m *Manager) SwitchToProfile(name string) error {
	m.mu.Lock()
	dir := m.directory
	idx := indexOf(m.files, name)
	m.mu.Unlock()

	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}

	found, err := persistence.NewXMLFile(filepath.Join(dir, name)).Load(m.profile)
	if err != nil {
		return err
	}
	if !found {
		m.profile.Replace(nil)
	}

	m.mu.Lock()
	m.current = idx
	listeners := append([]listener(nil), m.listeners...)
	m.mu.Unlock()

	m.logger.Info("profile switched", "profile", name)
	for _, l := range listeners {
		l.fn(name)
	}
	if m.remote != nil {
		if err := m.remote.SendCommand(CommandChangedToFile, name); err != nil {
			m.logger.Debug("profile change not sent to host", "error", err)
		}
	}
	return nil
}

// Next switches to the following profile, wrapping around.
func (m *Manager) Next() error {
	return m.step(1)
}

// Prev switches to the preceding profile, wrapping around.
func (m *Manager) Prev() error {
	return m.step(-1)
}

func (m *Manager) step(delta int) error {
	m.mu.Lock()
	n := len(m.files)
	if n == 0 {
		m.mu.Unlock()
		return ErrNoProfiles
	}
	next := 0
	if m.current >= 0 {
		next = ((m.current+delta)%n + n) % n
	} else if delta < 0 {
		next = n - 1
	}
	name := m.files[next]
	m.mu.Unlock()

	return m.SwitchToProfile(name)
}

// HandleDevice is the device receiver callback. Presses of controls mapped to
// the profile stepping commands switch profiles.
func (m *Manager) HandleDevice(msg device.Message) {
	if !pressed(msg) {
		return
	}
	cmd, ok := m.profile.Command(IDOf(msg))
	if !ok {
		return
	}

	var err error
	switch cmd {
	case CommandPrevProfile:
		err = m.Prev()
	case CommandNextProfile:
		err = m.Next()
	default:
		return
	}
	if err != nil {
		m.logger.Warn("profile step failed", "command", cmd, "error", err)
	}
}

// HandleConnection is the remote connection callback. On connect the host is
// told which profile is active.
func (m *Manager) HandleConnection(connected bool) {
	if !connected || m.remote == nil {
		return
	}
	if name := m.Current(); name != "" {
		if err := m.remote.SendCommand(CommandChangedToFile, name); err != nil {
			m.logger.Debug("profile name not sent to host", "error", err)
		}
	}
}

func pressed(msg device.Message) bool {
	switch msg.Kind {
	case device.KindNoteOn:
		return true
	case device.KindCC:
		return msg.Value > 0
	default:
		return false
	}
}
