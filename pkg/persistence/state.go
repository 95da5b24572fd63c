package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// StateVersion is the current version of the state file format.
const StateVersion = 1

// ErrUnsupportedVersion is returned when a state file was written by a newer
// format version.
var ErrUnsupportedVersion = errors.New("unsupported state file version")

// ServerState is the identity a server keeps between runs.
type ServerState struct {
	// Version is the state file format version.
	Version int `json:"version"`

	// SavedAt is when the state was last saved.
	SavedAt time.Time `json:"saved_at"`

	// UUID is the server UUID announced via SiLAService and discovery.
	UUID uuid.UUID `json:"uuid"`

	// Name is the server name, as last set by SetServerName.
	Name string `json:"name,omitempty"`
}

// ServerStateStore manages persistence of server state to a JSON file.
type ServerStateStore struct {
	mu   sync.Mutex
	path string
}

// NewServerStateStore creates a new server state store.
func NewServerStateStore(path string) *ServerStateStore {
	return &ServerStateStore{path: path}
}

// Path returns the state file path.
func (s *ServerStateStore) Path() string {
	return s.path
}

// Save persists the server state to disk. The file is replaced atomically.
func (s *ServerStateStore) Save(state *ServerState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}

	state.Version = StateVersion
	state.SavedAt = time.Now()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Load reads the server state from disk.
// Returns nil, nil if the file doesn't exist (first run).
func (s *ServerStateStore) Load() (*ServerState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	state := &ServerState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	if state.Version > StateVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, state.Version)
	}
	return state, nil
}

// Clear removes the state file.
func (s *ServerStateStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// LoadOrCreate returns the stored state. On first run it creates a state
// with a fresh UUID and the given name, and saves it.
func (s *ServerStateStore) LoadOrCreate(name string) (*ServerState, error) {
	state, err := s.Load()
	if err != nil {
		return nil, err
	}
	if state != nil && state.UUID != uuid.Nil {
		return state, nil
	}
	state = &ServerState{UUID: uuid.New(), Name: name}
	if err := s.Save(state); err != nil {
		return nil, err
	}
	return state, nil
}

// SetName stores a new server name, keeping the UUID.
func (s *ServerStateStore) SetName(name string) error {
	state, err := s.Load()
	if err != nil {
		return err
	}
	if state == nil {
		state = &ServerState{UUID: uuid.New()}
	}
	state.Name = name
	return s.Save(state)
}
