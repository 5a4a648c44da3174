package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// DefaultStateKey is the Redis key holding the encounter document when no
// key is configured.
const DefaultStateKey = "tomescry:encounter"

// mutateRetries bounds how often a contended WATCH transaction is retried.
const mutateRetries = 5

// RedisStore keeps the encounter as one JSON document under a single key.
// Mutations run inside an optimistic WATCH/MULTI transaction: concurrent
// writers cause a retry instead of a lost update.
type RedisStore struct {
	client *redis.Client
	key    string
}

// Compile-time interface assertion.
var _ Store = (*RedisStore)(nil)

// NewRedisStore returns a store over client. An empty key selects
// [DefaultStateKey]. The store takes ownership of the client; Close
// closes it.
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultStateKey
	}
	return &RedisStore{client: client, key: key}
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context) (*State, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return NewState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("statestore: load state key: %w", err)
	}
	return s.decode(data), nil
}

// Mutate implements Store.
func (s *RedisStore) Mutate(ctx context.Context, fn func(*State) error) (*State, error) {
	var result *State

	txn := func(tx *redis.Tx) error {
		var st *State
		data, err := tx.Get(ctx, s.key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			st = NewState()
		case err != nil:
			return fmt.Errorf("statestore: load state key: %w", err)
		default:
			st = s.decode(data)
		}

		if err := fn(st); err != nil {
			return err
		}

		encoded, err := json.Marshal(st)
		if err != nil {
			return fmt.Errorf("statestore: encode state: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.key, encoded, 0)
			return nil
		})
		if err != nil {
			return err
		}
		result = st
		return nil
	}

	for range mutateRetries {
		err := s.client.Watch(ctx, txn, s.key)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue // another writer touched the key, reload and retry
		}
		return nil, err
	}
	return nil, fmt.Errorf("statestore: state key %q contended after %d retries", s.key, mutateRetries)
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) decode(data []byte) *State {
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		slog.Warn("statestore: corrupted state key, starting empty", "key", s.key, "err", err)
		return NewState()
	}
	st.normalize()
	return &st
}
