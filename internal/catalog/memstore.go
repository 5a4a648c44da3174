package catalog

import (
	"context"
	"sync"
)

// Compile-time assertion that MemStore satisfies the Store interface.
var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory implementation of [Store]. It is
// suitable for testing and for ephemeral runs without a catalog database.
type MemStore struct {
	mu      sync.RWMutex
	entries map[entryKey]Entry
}

type entryKey struct {
	typ  ResourceType
	slug string
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{
		entries: make(map[entryKey]Entry),
	}
}

// Locator implements [Store.Locator].
func (s *MemStore) Locator(ctx context.Context, typ ResourceType, slug string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[entryKey{typ, slug}]
	if !ok {
		return "", nil
	}
	return e.Locator, nil
}

// Entry implements [Store.Entry].
func (s *MemStore) Entry(ctx context.Context, typ ResourceType, slug string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[entryKey{typ, slug}]
	if !ok {
		return nil, nil
	}
	out := e
	return &out, nil
}

// Upsert implements [Store.Upsert].
func (s *MemStore) Upsert(ctx context.Context, e *Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entries == nil {
		s.entries = make(map[entryKey]Entry)
	}
	s.entries[entryKey{e.Type, e.Slug}] = *e
	return nil
}

// Ping implements [Store.Ping].
func (s *MemStore) Ping(ctx context.Context) error {
	return nil
}

// Close implements [Store.Close].
func (s *MemStore) Close() error {
	return nil
}
