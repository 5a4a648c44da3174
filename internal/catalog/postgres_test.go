package catalog

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// mockRow implements pgx.Row for testing.
type mockRow struct {
	scanFunc func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error { return r.scanFunc(dest...) }

// mockDB implements the DB interface for testing.
type mockDB struct {
	queryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
	execFunc     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (m *mockDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if m.queryRowFunc != nil {
		return m.queryRowFunc(ctx, sql, args...)
	}
	return &mockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}
}

func (m *mockDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (m *mockDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if m.execFunc != nil {
		return m.execFunc(ctx, sql, args...)
	}
	return pgconn.CommandTag{}, nil
}

func TestPostgresStoreMigrate(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		db := &mockDB{
			execFunc: func(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
				if !strings.Contains(sql, "CREATE TABLE") {
					t.Errorf("Migrate SQL should contain CREATE TABLE, got: %s", sql)
				}
				return pgconn.CommandTag{}, nil
			},
		}
		store := NewPostgresStore(db)
		if err := store.Migrate(context.Background()); err != nil {
			t.Fatalf("Migrate() unexpected error: %v", err)
		}
	})

	t.Run("error", func(t *testing.T) {
		t.Parallel()
		db := &mockDB{
			execFunc: func(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
				return pgconn.CommandTag{}, errors.New("connection refused")
			},
		}
		store := NewPostgresStore(db)
		err := store.Migrate(context.Background())
		if err == nil {
			t.Fatal("Migrate() expected error, got nil")
		}
		if !strings.Contains(err.Error(), "catalog: migrate:") {
			t.Errorf("error = %q, want prefix 'catalog: migrate:'", err.Error())
		}
	})
}

func TestPostgresStoreLocator(t *testing.T) {
	t.Parallel()

	t.Run("found", func(t *testing.T) {
		t.Parallel()
		db := &mockDB{
			queryRowFunc: func(_ context.Context, _ string, args ...any) pgx.Row {
				if args[0] != "monsters" || args[1] != "goblin" {
					t.Errorf("args = %v, want [monsters goblin]", args)
				}
				return &mockRow{
					scanFunc: func(dest ...any) error {
						*(dest[0].(*string)) = "https://api.open5e.com/v1/monsters/goblin/"
						return nil
					},
				}
			},
		}
		store := NewPostgresStore(db)
		got, err := store.Locator(context.Background(), TypeMonsters, "goblin")
		if err != nil {
			t.Fatalf("Locator() unexpected error: %v", err)
		}
		if got != "https://api.open5e.com/v1/monsters/goblin/" {
			t.Errorf("Locator() = %q, want goblin URL", got)
		}
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()
		store := NewPostgresStore(&mockDB{})
		got, err := store.Locator(context.Background(), TypeMonsters, "missing")
		if err != nil {
			t.Fatalf("Locator() unexpected error: %v", err)
		}
		if got != "" {
			t.Errorf("Locator() = %q, want empty for absent slug", got)
		}
	})

	t.Run("db error", func(t *testing.T) {
		t.Parallel()
		db := &mockDB{
			queryRowFunc: func(_ context.Context, _ string, _ ...any) pgx.Row {
				return &mockRow{scanFunc: func(_ ...any) error { return errors.New("timeout") }}
			},
		}
		store := NewPostgresStore(db)
		_, err := store.Locator(context.Background(), TypeMonsters, "goblin")
		if err == nil {
			t.Fatal("Locator() expected error, got nil")
		}
		if !strings.Contains(err.Error(), "catalog: locator") {
			t.Errorf("error = %q, want prefix 'catalog: locator'", err.Error())
		}
	})
}

func TestPostgresStoreEntry(t *testing.T) {
	t.Parallel()

	t.Run("found", func(t *testing.T) {
		t.Parallel()
		db := &mockDB{
			queryRowFunc: func(_ context.Context, _ string, _ ...any) pgx.Row {
				return &mockRow{
					scanFunc: func(dest ...any) error {
						*(dest[0].(*ResourceType)) = TypeSpells
						*(dest[1].(*string)) = "Fireball"
						*(dest[2].(*string)) = "fireball"
						*(dest[3].(*string)) = "https://api.open5e.com/v1/spells/fireball/"
						*(dest[4].(*string)) = "wotc-srd"
						*(dest[5].(*string)) = "Systems Reference Document"
						*(dest[6].(*[]byte)) = []byte(`{"level":"3rd-level"}`)
						*(dest[7].(*string)) = ""
						return nil
					},
				}
			},
		}
		store := NewPostgresStore(db)
		got, err := store.Entry(context.Background(), TypeSpells, "fireball")
		if err != nil {
			t.Fatalf("Entry() unexpected error: %v", err)
		}
		if got == nil {
			t.Fatal("Entry() returned nil, want entry")
		}
		if got.Name != "Fireball" || got.DocumentSlug != "wotc-srd" {
			t.Errorf("Entry() = %+v, want scanned fields", got)
		}
		if got.Raw["level"] != "3rd-level" {
			t.Errorf("Raw = %v, want parsed raw_json", got.Raw)
		}
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()
		store := NewPostgresStore(&mockDB{})
		got, err := store.Entry(context.Background(), TypeSpells, "missing")
		if err != nil {
			t.Fatalf("Entry() unexpected error: %v", err)
		}
		if got != nil {
			t.Errorf("Entry() = %+v, want nil for absent slug", got)
		}
	})

	t.Run("malformed raw json", func(t *testing.T) {
		t.Parallel()
		db := &mockDB{
			queryRowFunc: func(_ context.Context, _ string, _ ...any) pgx.Row {
				return &mockRow{
					scanFunc: func(dest ...any) error {
						*(dest[0].(*ResourceType)) = TypeSpells
						*(dest[6].(*[]byte)) = []byte(`{broken`)
						return nil
					},
				}
			},
		}
		store := NewPostgresStore(db)
		_, err := store.Entry(context.Background(), TypeSpells, "fireball")
		if err == nil {
			t.Fatal("Entry() expected error for malformed raw_json")
		}
		if !strings.Contains(err.Error(), "unmarshal raw") {
			t.Errorf("error = %q, want unmarshal failure", err.Error())
		}
	})
}

func TestPostgresStoreUpsert(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		var capturedSQL string
		var capturedArgs []any
		db := &mockDB{
			execFunc: func(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
				capturedSQL = sql
				capturedArgs = args
				return pgconn.CommandTag{}, nil
			},
		}
		store := NewPostgresStore(db)
		err := store.Upsert(context.Background(), &Entry{
			Type: TypeMonsters, Name: "Goblin", Slug: "goblin", Locator: "u",
		})
		if err != nil {
			t.Fatalf("Upsert() unexpected error: %v", err)
		}
		if !strings.Contains(capturedSQL, "ON CONFLICT") {
			t.Errorf("SQL should contain ON CONFLICT, got: %s", capturedSQL)
		}
		if len(capturedArgs) != 8 {
			t.Errorf("expected 8 args, got %d", len(capturedArgs))
		}
		if string(capturedArgs[6].([]byte)) != "{}" {
			t.Errorf("raw_json arg = %s, want {} for nil raw", capturedArgs[6])
		}
	})

	t.Run("validation error", func(t *testing.T) {
		t.Parallel()
		store := NewPostgresStore(&mockDB{})
		err := store.Upsert(context.Background(), &Entry{Type: TypeMonsters})
		if err == nil {
			t.Fatal("Upsert() expected validation error, got nil")
		}
	})

	t.Run("db error", func(t *testing.T) {
		t.Parallel()
		db := &mockDB{
			execFunc: func(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
				return pgconn.CommandTag{}, errors.New("deadlock")
			},
		}
		store := NewPostgresStore(db)
		err := store.Upsert(context.Background(), &Entry{Type: TypeMonsters, Slug: "x"})
		if err == nil {
			t.Fatal("Upsert() expected error, got nil")
		}
		if !strings.Contains(err.Error(), "catalog: upsert") {
			t.Errorf("error = %q, want prefix 'catalog: upsert'", err.Error())
		}
	})
}

func TestPostgresStorePing(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		db := &mockDB{
			queryRowFunc: func(_ context.Context, _ string, _ ...any) pgx.Row {
				return &mockRow{
					scanFunc: func(dest ...any) error {
						*(dest[0].(*int)) = 1
						return nil
					},
				}
			},
		}
		store := NewPostgresStore(db)
		if err := store.Ping(context.Background()); err != nil {
			t.Fatalf("Ping() unexpected error: %v", err)
		}
	})

	t.Run("error", func(t *testing.T) {
		t.Parallel()
		db := &mockDB{
			queryRowFunc: func(_ context.Context, _ string, _ ...any) pgx.Row {
				return &mockRow{scanFunc: func(_ ...any) error { return errors.New("down") }}
			},
		}
		store := NewPostgresStore(db)
		if err := store.Ping(context.Background()); err == nil {
			t.Fatal("Ping() expected error, got nil")
		}
	})
}
