package fetchcache_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/tomescry/internal/catalog"
	"github.com/MrWong99/tomescry/internal/fetchcache"
	"github.com/MrWong99/tomescry/internal/open5e"
)

func writeSnapshot(t *testing.T, dir string, typ catalog.ResourceType, lines ...string) {
	t.Helper()
	path := filepath.Join(dir, "open5e_"+string(typ)+".jsonl")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}
}

func TestFetchDetailFetchesAndCaches(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, `{"name":"Goblin","hit_points":7}`)
	}))
	t.Cleanup(srv.Close)

	dataDir := t.TempDir()
	cacheDir := t.TempDir()
	writeSnapshot(t, dataDir, catalog.TypeMonsters,
		`{"type":"monsters","name":"Goblin","slug_or_index":"goblin","api_url":"`+srv.URL+`/monsters/goblin/"}`,
	)

	client := open5e.New(srv.URL+"/", open5e.WithBackoff(time.Millisecond))
	cache := fetchcache.New(cacheDir, client, catalog.NewFlatFiles(dataDir))

	ctx := context.Background()
	detail, err := cache.FetchDetail(ctx, catalog.TypeMonsters, "goblin")
	if err != nil {
		t.Fatalf("FetchDetail: unexpected error: %v", err)
	}
	if detail.Slug != "goblin" {
		t.Fatalf("Slug = %q, want goblin", detail.Slug)
	}

	var data map[string]any
	if err := json.Unmarshal(detail.Data, &data); err != nil {
		t.Fatalf("unmarshal Data: %v", err)
	}
	if data["name"] != "Goblin" {
		t.Fatalf("Data = %v, want upstream payload", data)
	}

	// The record must now exist on disk in the documented layout.
	path := filepath.Join(cacheDir, "monsters", "goblin.json")
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read cache file: %v", err)
	}
	var stored map[string]any
	if err := json.Unmarshal(raw, &stored); err != nil {
		t.Fatalf("parse cache file: %v", err)
	}
	for _, key := range []string{"slug", "api_url", "data"} {
		if _, ok := stored[key]; !ok {
			t.Fatalf("cache file %s missing key %q", path, key)
		}
	}

	// A second fetch is served from disk.
	again, err := cache.FetchDetail(ctx, catalog.TypeMonsters, "goblin")
	if err != nil {
		t.Fatalf("FetchDetail (cached): unexpected error: %v", err)
	}
	if again.Locator != detail.Locator {
		t.Fatalf("cached Locator = %q, want %q", again.Locator, detail.Locator)
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("upstream hits = %d, want 1", got)
	}
}

func TestFetchDetailPrefersStoreLocator(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/from-store/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"source":"store"}`)
	}))
	t.Cleanup(srv.Close)

	dataDir := t.TempDir()
	writeSnapshot(t, dataDir, catalog.TypeSpells,
		`{"type":"spells","name":"Fireball","slug_or_index":"fireball","api_url":"`+srv.URL+`/from-snapshot/"}`,
	)

	ctx := context.Background()
	store := catalog.NewMemStore()
	if err := store.Upsert(ctx, &catalog.Entry{
		Type: catalog.TypeSpells, Name: "Fireball", Slug: "fireball",
		Locator: srv.URL + "/from-store/",
	}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	client := open5e.New(srv.URL+"/", open5e.WithBackoff(time.Millisecond))
	cache := fetchcache.New(t.TempDir(), client, catalog.NewFlatFiles(dataDir),
		fetchcache.WithStore(store))

	detail, err := cache.FetchDetail(ctx, catalog.TypeSpells, "fireball")
	if err != nil {
		t.Fatalf("FetchDetail: unexpected error: %v", err)
	}
	if !strings.HasSuffix(detail.Locator, "/from-store/") {
		t.Fatalf("Locator = %q, want the indexed store to win", detail.Locator)
	}
}

func TestFetchDetailServesExistingFileVerbatim(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream must not be contacted for a cached record")
	}))
	t.Cleanup(srv.Close)

	cacheDir := t.TempDir()
	dir := filepath.Join(cacheDir, "monsters")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	const content = `{"slug":"goblin","api_url":"https://elsewhere/","data":{"name":"Stale Goblin"}}`
	if err := os.WriteFile(filepath.Join(dir, "goblin.json"), []byte(content), 0o644); err != nil {
		t.Fatalf("seed cache file: %v", err)
	}

	client := open5e.New(srv.URL+"/", open5e.WithBackoff(time.Millisecond))
	cache := fetchcache.New(cacheDir, client, catalog.NewFlatFiles(t.TempDir()))

	detail, err := cache.FetchDetail(context.Background(), catalog.TypeMonsters, "goblin")
	if err != nil {
		t.Fatalf("FetchDetail: unexpected error: %v", err)
	}
	if detail.Locator != "https://elsewhere/" {
		t.Fatalf("Locator = %q, want stored content returned without freshness check", detail.Locator)
	}
}

func TestFetchDetailLocatorMissing(t *testing.T) {
	t.Parallel()

	client := open5e.New("http://unused/", open5e.WithBackoff(time.Millisecond))
	cache := fetchcache.New(t.TempDir(), client, catalog.NewFlatFiles(t.TempDir()))

	_, err := cache.FetchDetail(context.Background(), catalog.TypeMonsters, "unknown")
	if err == nil {
		t.Fatal("FetchDetail: expected error for unknown slug")
	}

	var missing *fetchcache.LocatorMissingError
	if !errors.As(err, &missing) {
		t.Fatalf("error = %T, want *fetchcache.LocatorMissingError", err)
	}
	if missing.Type != catalog.TypeMonsters || missing.Slug != "unknown" {
		t.Fatalf("LocatorMissingError = %+v, want type and slug carried", missing)
	}
	if !strings.Contains(err.Error(), "no locator for monsters/unknown") {
		t.Fatalf("error = %q, want formatted pair", err)
	}
}

func TestFetchDetailUpstreamFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)

	dataDir := t.TempDir()
	cacheDir := t.TempDir()
	writeSnapshot(t, dataDir, catalog.TypeMonsters,
		`{"type":"monsters","name":"Ghost","slug_or_index":"ghost","api_url":"`+srv.URL+`/monsters/ghost/"}`,
	)

	client := open5e.New(srv.URL+"/", open5e.WithBackoff(time.Millisecond))
	cache := fetchcache.New(cacheDir, client, catalog.NewFlatFiles(dataDir))

	_, err := cache.FetchDetail(context.Background(), catalog.TypeMonsters, "ghost")
	if err == nil {
		t.Fatal("FetchDetail: expected error for upstream 404")
	}

	var statusErr *open5e.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("error = %T, want *open5e.StatusError", err)
	}

	// A failed fetch must not leave a cache file behind.
	if _, err := os.Stat(filepath.Join(cacheDir, "monsters", "ghost.json")); !os.IsNotExist(err) {
		t.Fatalf("cache file exists after failed fetch, stat err = %v", err)
	}
}

func TestFetchDetailRejectsBadInput(t *testing.T) {
	t.Parallel()

	client := open5e.New("http://unused/", open5e.WithBackoff(time.Millisecond))
	cache := fetchcache.New(t.TempDir(), client, catalog.NewFlatFiles(t.TempDir()))
	ctx := context.Background()

	tests := []struct {
		name string
		typ  catalog.ResourceType
		slug string
	}{
		{"invalid type", "potions", "healing"},
		{"empty slug", catalog.TypeMonsters, ""},
		{"path traversal", catalog.TypeMonsters, "../secrets"},
		{"separator in slug", catalog.TypeMonsters, "a/b"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := cache.FetchDetail(ctx, tc.typ, tc.slug); err == nil {
				t.Fatalf("FetchDetail(%q, %q): expected error", tc.typ, tc.slug)
			}
		})
	}
}

func TestFetchDetailInvalidUpstreamJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>not json</html>")
	}))
	t.Cleanup(srv.Close)

	dataDir := t.TempDir()
	writeSnapshot(t, dataDir, catalog.TypeMonsters,
		`{"type":"monsters","name":"Imp","slug_or_index":"imp","api_url":"`+srv.URL+`/monsters/imp/"}`,
	)

	client := open5e.New(srv.URL+"/", open5e.WithBackoff(time.Millisecond))
	cache := fetchcache.New(t.TempDir(), client, catalog.NewFlatFiles(dataDir))

	_, err := cache.FetchDetail(context.Background(), catalog.TypeMonsters, "imp")
	if err == nil || !strings.Contains(err.Error(), "invalid JSON") {
		t.Fatalf("FetchDetail error = %v, want invalid JSON failure", err)
	}
}
