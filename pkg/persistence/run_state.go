package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// RunStateVersion is the current version of the run state format.
const RunStateVersion = 1

// RunState records the last run of the process.
type RunState struct {
	// Version is the state file format version.
	Version int `json:"version"`

	// SavedAt is when the state was last saved.
	SavedAt time.Time `json:"saved_at"`

	// SessionID identifies the run that wrote the file.
	SessionID string `json:"session_id"`

	// StartedAt is when that run reached the running state.
	StartedAt time.Time `json:"started_at"`

	// CleanShutdown is set once the shutdown sequence completed.
	CleanShutdown bool `json:"clean_shutdown"`

	// Profile is the profile that was active.
	Profile string `json:"profile,omitempty"`
}

// RunStateStore manages the run state JSON file.
type RunStateStore struct {
	mu   sync.Mutex
	path string
}

// NewRunStateStore creates a run state store.
func NewRunStateStore(path string) *RunStateStore {
	return &RunStateStore{path: path}
}

// Save persists the run state.
func (s *RunStateStore) Save(state *RunState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state.Version = RunStateVersion
	state.SavedAt = time.Now()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(s.path, data)
}

// Load reads the run state. Returns nil, nil if the file doesn't exist.
func (s *RunStateStore) Load() (*RunState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	state := &RunState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorruptState, s.path, err)
	}
	return state, nil
}
