// Package encounter tracks combat state: actor hit points, temporary HP
// and conditions, persisted through a pluggable [statestore.Store].
//
// All operations are whole-state mutations: load, apply, save. The store
// backend serializes concurrent writers (mutex for file and memory, an
// optimistic transaction for Redis), so trackers on separate processes
// may share one Redis-backed encounter.
package encounter

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/MrWong99/tomescry/internal/encounter/statestore"
)

// ActorNotFoundError reports an operation that targeted an unknown actor.
type ActorNotFoundError struct {
	ID string
}

func (e *ActorNotFoundError) Error() string {
	return "encounter: actor not found: " + e.ID
}

// HPSnapshot captures an actor's hit points at one instant.
type HPSnapshot struct {
	HP     int `json:"hp"`
	TempHP int `json:"temp_hp"`
}

// DamageReport summarises one ApplyDamage call.
type DamageReport struct {
	ActorID    string     `json:"actor_id"`
	Name       string     `json:"name"`
	Damage     int        `json:"damage"`
	DamageType string     `json:"damage_type"`
	Before     HPSnapshot `json:"before"`
	After      HPSnapshot `json:"after"`
}

// HealReport summarises one Heal call.
type HealReport struct {
	ActorID  string `json:"actor_id"`
	Name     string `json:"name"`
	Heal     int    `json:"heal"`
	BeforeHP int    `json:"before_hp"`
	AfterHP  int    `json:"after_hp"`
	MaxHP    int    `json:"max_hp"`
}

// Tracker exposes the encounter operations over a state store.
type Tracker struct {
	store statestore.Store
}

// New returns a Tracker persisting through store.
func New(store statestore.Store) *Tracker {
	return &Tracker{store: store}
}

// ActorOption sets an optional field during [Tracker.UpsertActor].
type ActorOption func(*statestore.Actor)

// WithArmorClass sets the actor's armor class.
func WithArmorClass(ac int) ActorOption {
	return func(a *statestore.Actor) { a.ArmorClass = &ac }
}

// WithExtra replaces the actor's free-form extra data.
func WithExtra(extra map[string]any) ActorOption {
	return func(a *statestore.Actor) { a.Extra = extra }
}

// UpsertActor creates or updates an actor. On create, current HP starts
// at maxHP; on update it is preserved even when maxHP shrinks below it.
// Optional fields not named by opts keep their stored values.
func (t *Tracker) UpsertActor(ctx context.Context, id, name string, maxHP int, opts ...ActorOption) (*statestore.Actor, error) {
	if id == "" {
		return nil, fmt.Errorf("encounter: actor id must not be empty")
	}
	if maxHP < 0 {
		return nil, fmt.Errorf("encounter: max HP must not be negative, got %d", maxHP)
	}

	var result *statestore.Actor
	_, err := t.store.Mutate(ctx, func(st *statestore.State) error {
		a, ok := st.Actors[id]
		if !ok {
			a = &statestore.Actor{ID: id, HP: maxHP, Conditions: []string{}}
			st.Actors[id] = a
		}
		a.Name = name
		a.MaxHP = maxHP
		if a.Conditions == nil {
			a.Conditions = []string{}
		}
		for _, o := range opts {
			o(a)
		}
		result = a.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ApplyDamage subtracts amount from the actor, consuming temporary HP
// first. HP never drops below zero. Negative amounts count as zero.
func (t *Tracker) ApplyDamage(ctx context.Context, id string, amount int, damageType string) (*DamageReport, error) {
	if damageType == "" {
		damageType = "generic"
	}
	amount = max(0, amount)

	var report *DamageReport
	_, err := t.store.Mutate(ctx, func(st *statestore.State) error {
		a, ok := st.Actors[id]
		if !ok {
			return &ActorNotFoundError{ID: id}
		}

		before := HPSnapshot{HP: a.HP, TempHP: a.TempHP}

		remaining := amount
		if a.TempHP > 0 && remaining > 0 {
			soaked := min(a.TempHP, remaining)
			a.TempHP -= soaked
			remaining -= soaked
		}
		if remaining > 0 {
			a.HP = max(0, a.HP-remaining)
		}

		report = &DamageReport{
			ActorID:    id,
			Name:       a.Name,
			Damage:     amount,
			DamageType: damageType,
			Before:     before,
			After:      HPSnapshot{HP: a.HP, TempHP: a.TempHP},
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// Heal adds amount to the actor's HP, clamped to max HP unless
// allowOverheal is set. Negative amounts count as zero.
func (t *Tracker) Heal(ctx context.Context, id string, amount int, allowOverheal bool) (*HealReport, error) {
	amount = max(0, amount)

	var report *HealReport
	_, err := t.store.Mutate(ctx, func(st *statestore.State) error {
		a, ok := st.Actors[id]
		if !ok {
			return &ActorNotFoundError{ID: id}
		}

		before := a.HP
		after := before + amount
		if !allowOverheal {
			after = min(after, a.MaxHP)
		}
		a.HP = after

		report = &HealReport{
			ActorID:  id,
			Name:     a.Name,
			Heal:     amount,
			BeforeHP: before,
			AfterHP:  after,
			MaxHP:    a.MaxHP,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// GrantTempHP grants temporary hit points. Temporary HP does not stack:
// the actor keeps the higher of the current and granted amounts.
func (t *Tracker) GrantTempHP(ctx context.Context, id string, amount int) (*statestore.Actor, error) {
	amount = max(0, amount)
	return t.mutateActor(ctx, id, func(a *statestore.Actor) {
		a.TempHP = max(a.TempHP, amount)
	})
}

// AddCondition adds a condition to the actor. Conditions are stored
// lowercase and deduplicated. Returns the updated actor.
func (t *Tracker) AddCondition(ctx context.Context, id, condition string) (*statestore.Actor, error) {
	cond, err := normalizeCondition(condition)
	if err != nil {
		return nil, err
	}
	return t.mutateActor(ctx, id, func(a *statestore.Actor) {
		if !slices.Contains(a.Conditions, cond) {
			a.Conditions = append(a.Conditions, cond)
		}
	})
}

// RemoveCondition removes a condition from the actor. Removing a
// condition the actor does not have is not an error. Returns the updated
// actor.
func (t *Tracker) RemoveCondition(ctx context.Context, id, condition string) (*statestore.Actor, error) {
	cond, err := normalizeCondition(condition)
	if err != nil {
		return nil, err
	}
	return t.mutateActor(ctx, id, func(a *statestore.Actor) {
		a.Conditions = slices.DeleteFunc(a.Conditions, func(c string) bool {
			return c == cond
		})
	})
}

// Actor returns a single actor's state.
func (t *Tracker) Actor(ctx context.Context, id string) (*statestore.Actor, error) {
	st, err := t.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	a, ok := st.Actors[id]
	if !ok {
		return nil, &ActorNotFoundError{ID: id}
	}
	return a, nil
}

// Actors returns all actors sorted by name, then ID, for stable display.
func (t *Tracker) Actors(ctx context.Context) ([]*statestore.Actor, error) {
	st, err := t.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	actors := make([]*statestore.Actor, 0, len(st.Actors))
	for _, a := range st.Actors {
		actors = append(actors, a)
	}
	slices.SortFunc(actors, func(x, y *statestore.Actor) int {
		if c := strings.Compare(x.Name, y.Name); c != 0 {
			return c
		}
		return strings.Compare(x.ID, y.ID)
	})
	return actors, nil
}

// Reset clears all actors.
func (t *Tracker) Reset(ctx context.Context) error {
	_, err := t.store.Mutate(ctx, func(st *statestore.State) error {
		st.Actors = map[string]*statestore.Actor{}
		return nil
	})
	return err
}

func (t *Tracker) mutateActor(ctx context.Context, id string, apply func(*statestore.Actor)) (*statestore.Actor, error) {
	var result *statestore.Actor
	_, err := t.store.Mutate(ctx, func(st *statestore.State) error {
		a, ok := st.Actors[id]
		if !ok {
			return &ActorNotFoundError{ID: id}
		}
		apply(a)
		result = a.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func normalizeCondition(condition string) (string, error) {
	cond := strings.ToLower(strings.TrimSpace(condition))
	if cond == "" {
		return "", fmt.Errorf("encounter: condition must not be empty")
	}
	return cond, nil
}
