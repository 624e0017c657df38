package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

const stateFile = "state.json"

// state is the on-disk layout of the durable store.
type state struct {
	Version int               `json:"version"`
	Values  map[string]string `json:"values"`
}

// FileStore is durable storage backed by a JSON file.
type FileStore struct {
	baseDir string

	mu sync.RWMutex
}

var _ Storage = (*FileStore)(nil)

// NewFileStore creates a durable store.
// If baseDir is empty, uses ~/.vibemeet/
func NewFileStore(baseDir string) (*FileStore, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		baseDir = filepath.Join(home, ".vibemeet")
	}

	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	s := &FileStore{baseDir: baseDir}

	if err := s.ensureState(); err != nil {
		return nil, err
	}

	log.Debug().Str("baseDir", baseDir).Msg("durable store initialized")

	return s, nil
}

// Dir returns the directory holding the state file.
func (s *FileStore) Dir() string {
	return s.baseDir
}

// Get returns the value for key. An unreadable state file reads as empty.
func (s *FileStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.loadState()
	v, ok := st.Values[key]
	return v, ok
}

// Set stores a single value.
func (s *FileStore) Set(key, value string) error {
	return s.SetAll(map[string]string{key: value})
}

// SetAll stores every value with one atomic file replacement.
func (s *FileStore) SetAll(values map[string]string) error {
	if err := validate(values); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.loadState()
	for k, v := range values {
		st.Values[k] = v
	}

	return s.saveState(st)
}

// Remove deletes keys.
func (s *FileStore) Remove(keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.loadState()
	changed := false
	for _, k := range keys {
		if _, ok := st.Values[k]; ok {
			delete(st.Values, k)
			changed = true
		}
	}
	if !changed {
		return nil
	}

	return s.saveState(st)
}

// Keys lists the stored keys in sorted order.
func (s *FileStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.loadState()
	keys := make([]string, 0, len(st.Values))
	for k := range st.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ensureState creates an empty state file if it doesn't exist.
func (s *FileStore) ensureState() error {
	if _, err := os.Stat(s.path()); err == nil {
		return nil
	}

	return s.saveState(&state{Version: 1, Values: make(map[string]string)})
}

// loadState reads the state file. A missing or corrupt file is treated as
// empty so callers never fail on malformed local state.
func (s *FileStore) loadState() *state {
	st := &state{Version: 1, Values: make(map[string]string)}

	data, err := os.ReadFile(s.path())
	if err != nil {
		if !os.IsNotExist(err) {
			log.Debug().Err(err).Msg("failed to read state file")
		}
		return st
	}

	if err := json.Unmarshal(data, st); err != nil {
		log.Debug().Err(err).Msg("state file is corrupt, treating as empty")
		return &state{Version: 1, Values: make(map[string]string)}
	}

	if st.Values == nil {
		st.Values = make(map[string]string)
	}

	return st
}

// saveState writes the state file atomically.
func (s *FileStore) saveState(st *state) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	path := s.path()
	tempPath := path + ".tmp"

	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to save state: %w", err)
	}

	return nil
}

func (s *FileStore) path() string {
	return filepath.Join(s.baseDir, stateFile)
}
