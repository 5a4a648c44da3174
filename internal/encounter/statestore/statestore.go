// Package statestore persists encounter state behind a small store
// abstraction: load the whole state, or mutate it under scoped ownership
// so concurrent writers serialize.
//
// Three backends are provided: [FileStore] (one JSON document, atomically
// replaced), [MemStore] (ephemeral, for tests and one-shot runs) and
// [RedisStore] (one key, mutated under an optimistic WATCH transaction).
package statestore

import (
	"context"
	"maps"
	"slices"
)

// Actor is one combatant in the encounter.
type Actor struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	MaxHP      int            `json:"max_hp"`
	HP         int            `json:"hp"`
	TempHP     int            `json:"temp_hp"`
	ArmorClass *int           `json:"armor_class,omitempty"`
	Conditions []string       `json:"conditions"`
	Extra      map[string]any `json:"extra,omitempty"`
}

// Clone returns a copy of the actor that shares no mutable state with the
// original. Values inside Extra are treated as immutable JSON scalars.
func (a *Actor) Clone() *Actor {
	cp := *a
	cp.Conditions = slices.Clone(a.Conditions)
	cp.Extra = maps.Clone(a.Extra)
	if a.ArmorClass != nil {
		ac := *a.ArmorClass
		cp.ArmorClass = &ac
	}
	return &cp
}

// State is the full encounter: actors keyed by their ID.
type State struct {
	Actors map[string]*Actor `json:"actors"`
}

// NewState returns an empty encounter.
func NewState() *State {
	return &State{Actors: map[string]*Actor{}}
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	cp := NewState()
	for id, a := range s.Actors {
		cp.Actors[id] = a.Clone()
	}
	return cp
}

// normalize repairs a state decoded from an external document so callers
// never see nil maps.
func (s *State) normalize() {
	if s.Actors == nil {
		s.Actors = map[string]*Actor{}
	}
}

// Store persists encounter state.
//
// Mutate loads the current state, applies fn and persists the result as
// one unit; when fn returns an error, nothing is persisted and the error
// is returned unchanged. Returned states are private copies the caller
// may keep or modify freely.
type Store interface {
	Load(ctx context.Context) (*State, error)
	Mutate(ctx context.Context, fn func(*State) error) (*State, error)
	Close() error
}
