package statestore

import (
	"context"
	"sync"
)

// MemStore keeps the encounter in process memory. Used by tests and by
// one-shot runs that do not need persistence.
type MemStore struct {
	mu    sync.Mutex
	state *State
}

// Compile-time interface assertion.
var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{state: NewState()}
}

// Load implements Store.
func (s *MemStore) Load(ctx context.Context) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone(), nil
}

// Mutate implements Store.
func (s *MemStore) Mutate(ctx context.Context, fn func(*State) error) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// fn runs against a copy so a failing mutation leaves the state as is.
	next := s.state.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	s.state = next
	return next.Clone(), nil
}

// Close implements Store.
func (s *MemStore) Close() error {
	return nil
}
