package catalog_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/MrWong99/tomescry/internal/catalog"
)

func openTestSQLite(t *testing.T) *catalog.SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.db")
	store, err := catalog.OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return store
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTestSQLite(t)

	in := &catalog.Entry{
		Type:          catalog.TypeMonsters,
		Name:          "Goblin",
		Slug:          "goblin",
		Locator:       "https://api.open5e.com/v1/monsters/goblin/",
		DocumentSlug:  "wotc-srd",
		DocumentTitle: "Systems Reference Document",
		Subtype:       "",
		Raw:           map[string]any{"challenge_rating": "1/4"},
	}
	if err := store.Upsert(ctx, in); err != nil {
		t.Fatalf("Upsert: unexpected error: %v", err)
	}

	t.Run("locator", func(t *testing.T) {
		got, err := store.Locator(ctx, catalog.TypeMonsters, "goblin")
		if err != nil {
			t.Fatalf("Locator: unexpected error: %v", err)
		}
		if got != in.Locator {
			t.Fatalf("Locator = %q, want %q", got, in.Locator)
		}
	})

	t.Run("entry", func(t *testing.T) {
		got, err := store.Entry(ctx, catalog.TypeMonsters, "goblin")
		if err != nil {
			t.Fatalf("Entry: unexpected error: %v", err)
		}
		if got == nil {
			t.Fatal("Entry: expected entry, got nil")
		}
		if got.Name != "Goblin" || got.DocumentSlug != "wotc-srd" {
			t.Fatalf("Entry = %+v, want stored fields", got)
		}
		if got.Raw["challenge_rating"] != "1/4" {
			t.Fatalf("Raw = %v, want raw payload preserved", got.Raw)
		}
	})

	t.Run("absent locator", func(t *testing.T) {
		got, err := store.Locator(ctx, catalog.TypeMonsters, "tarrasque")
		if err != nil {
			t.Fatalf("Locator: unexpected error: %v", err)
		}
		if got != "" {
			t.Fatalf("Locator = %q, want empty for absent slug", got)
		}
	})

	t.Run("absent entry", func(t *testing.T) {
		got, err := store.Entry(ctx, catalog.TypeSpells, "goblin")
		if err != nil {
			t.Fatalf("Entry: unexpected error: %v", err)
		}
		if got != nil {
			t.Fatalf("Entry = %+v, want nil across types", got)
		}
	})
}

func TestSQLiteStoreUpsertReplaces(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTestSQLite(t)

	first := &catalog.Entry{Type: catalog.TypeSpells, Name: "Fire Bolt", Slug: "fire-bolt", Locator: "u1"}
	second := &catalog.Entry{Type: catalog.TypeSpells, Name: "Fire Bolt", Slug: "fire-bolt", Locator: "u2", DocumentSlug: "srd-2024"}

	if err := store.Upsert(ctx, first); err != nil {
		t.Fatalf("Upsert first: %v", err)
	}
	if err := store.Upsert(ctx, second); err != nil {
		t.Fatalf("Upsert second: %v", err)
	}

	got, err := store.Entry(ctx, catalog.TypeSpells, "fire-bolt")
	if err != nil {
		t.Fatalf("Entry: unexpected error: %v", err)
	}
	if got.Locator != "u2" || got.DocumentSlug != "srd-2024" {
		t.Fatalf("Entry = %+v, want replaced row", got)
	}
}

func TestSQLiteStorePing(t *testing.T) {
	t.Parallel()

	store := openTestSQLite(t)
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: unexpected error: %v", err)
	}
}
