package statestore

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestNewRedisStoreDefaultKey(t *testing.T) {
	t.Parallel()

	s := NewRedisStore(nil, "")
	if s.key != DefaultStateKey {
		t.Errorf("key = %q, want %q for empty configuration", s.key, DefaultStateKey)
	}
	s = NewRedisStore(nil, "custom:key")
	if s.key != "custom:key" {
		t.Errorf("key = %q, want the configured key", s.key)
	}
}

func TestRedisDecodeCorruptStartsEmpty(t *testing.T) {
	t.Parallel()

	s := &RedisStore{key: "k"}
	st := s.decode([]byte("{not json"))
	if st.Actors == nil || len(st.Actors) != 0 {
		t.Errorf("decode() of corrupt payload = %v, want empty state", st.Actors)
	}
}

func TestRedisDecodeRepairsNilActors(t *testing.T) {
	t.Parallel()

	s := &RedisStore{key: "k"}
	st := s.decode([]byte(`{"actors":null}`))
	if st.Actors == nil {
		t.Error("decode() left actors map nil")
	}
}

// newRedisClient connects to the server named by TOMESCRY_TEST_REDIS_ADDR,
// skipping the test when none is configured.
func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TOMESCRY_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TOMESCRY_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		t.Skipf("redis at %s not reachable: %v", addr, err)
	}
	return client
}

func TestRedisStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	key := fmt.Sprintf("tomescry:test:%d", time.Now().UnixNano())

	cleanup := newRedisClient(t)
	t.Cleanup(func() {
		cleanup.Del(ctx, key)
		cleanup.Close()
	})

	store := NewRedisStore(newRedisClient(t), key)
	defer store.Close()

	st, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if len(st.Actors) != 0 {
		t.Fatalf("Load() actors = %v, want empty state for absent key", st.Actors)
	}

	_, err = store.Mutate(ctx, func(st *State) error {
		st.Actors["pc-1"] = &Actor{ID: "pc-1", Name: "Elora", MaxHP: 20, HP: 20}
		return nil
	})
	if err != nil {
		t.Fatalf("Mutate() unexpected error: %v", err)
	}

	// A second store over the same key sees the persisted document.
	other := NewRedisStore(newRedisClient(t), key)
	defer other.Close()
	st, err = other.Load(ctx)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if a := st.Actors["pc-1"]; a == nil || a.HP != 20 {
		t.Errorf("loaded actors = %v, want pc-1 with HP 20", st.Actors)
	}

	// A corrupted document degrades to the empty state instead of failing.
	if err := cleanup.Set(ctx, key, "{oops", 0).Err(); err != nil {
		t.Fatalf("seeding corrupt key: %v", err)
	}
	st, err = store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if len(st.Actors) != 0 {
		t.Errorf("Load() actors = %v, want empty state for corrupt key", st.Actors)
	}
}
