package statestore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps the encounter in a single JSON document on disk.
// Writes go through a temp file and an atomic rename so a crash mid-write
// never leaves a torn document. A missing or corrupted file degrades to
// the empty state.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// Compile-time interface assertion.
var _ Store = (*FileStore)(nil)

// NewFileStore returns a store persisting into path, creating the parent
// directory if needed.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("statestore: create state dir: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Load implements Store.
func (s *FileStore) Load(ctx context.Context) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(), nil
}

// Mutate implements Store.
func (s *FileStore) Mutate(ctx context.Context, fn func(*State) error) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.read()
	if err := fn(st); err != nil {
		return nil, err
	}
	if err := s.write(st); err != nil {
		return nil, err
	}
	return st, nil
}

// Close implements Store. The file store holds no resources between calls.
func (s *FileStore) Close() error {
	return nil
}

// read returns the state on disk, degrading to the empty state when the
// file is missing or does not decode.
func (s *FileStore) read() *State {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("statestore: unreadable state file, starting empty", "path", s.path, "err", err)
		}
		return NewState()
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		slog.Warn("statestore: corrupted state file, starting empty", "path", s.path, "err", err)
		return NewState()
	}
	st.normalize()
	return &st
}

func (s *FileStore) write(st *State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("statestore: encode state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".encounter-*.json")
	if err != nil {
		return fmt.Errorf("statestore: create temp state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("statestore: write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("statestore: close temp state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("statestore: replace state file: %w", err)
	}
	return nil
}
