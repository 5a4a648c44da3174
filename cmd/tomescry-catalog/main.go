// Command tomescry-catalog builds the reference datasets the assistant
// resolves against: one JSONL snapshot per resource type, the name-index
// lookup tables, and optionally the indexed catalog store.
//
// It is a one-shot batch tool meant to run before (or periodically beside)
// the tomescry server, against the same configuration file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/tomescry/internal/catalog"
	"github.com/MrWong99/tomescry/internal/config"
	"github.com/MrWong99/tomescry/internal/crawler"
	"github.com/MrWong99/tomescry/internal/open5e"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	outDir := flag.String("out-dir", "", "output directory (overrides catalog.data_dir)")
	baseURL := flag.String("base-url", "", "upstream API root (overrides upstream.base_url)")
	storeFlag := flag.String("store", "", "indexed store backend: sqlite, postgres, memory or none (overrides catalog.backend)")
	typesFlag := flag.String("types", "", "comma-separated resource types to build (default: all)")
	pageSize := flag.Int("page-size", 0, "listing page size requested from the upstream")
	concurrency := flag.Int("concurrency", 0, "how many resource types to crawl in parallel")
	lookupOnly := flag.Bool("lookup-only", false, "rebuild the name-index tables from existing snapshots, no network")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tomescry-catalog: %v\n", err)
		return 1
	}
	if *baseURL != "" {
		cfg.Upstream.BaseURL = *baseURL
	}
	if *storeFlag != "" {
		backend := config.CatalogBackend(*storeFlag)
		if !backend.IsValid() {
			fmt.Fprintf(os.Stderr, "tomescry-catalog: -store %q is invalid; valid values: sqlite, postgres, memory, none\n", *storeFlag)
			return 1
		}
		cfg.Catalog.Backend = backend
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	dir := cfg.Catalog.DataDir
	if *outDir != "" {
		dir = *outDir
	}
	if dir == "" {
		fmt.Fprintln(os.Stderr, "tomescry-catalog: no output directory; set catalog.data_dir or pass -out")
		return 1
	}

	// Lookup-only mode regenerates the name indexes from the snapshots on
	// disk and exits.
	if *lookupOnly {
		counts, err := crawler.RebuildLookups(dir)
		if err != nil {
			slog.Error("lookup rebuild failed", "err", err)
			return 1
		}
		for _, typ := range sortedTypes(counts) {
			fmt.Printf("%-14s %6d names\n", typ, counts[typ])
		}
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Upstream client ───────────────────────────────────────────────────────
	var copts []open5e.Option
	if cfg.Upstream.Timeout > 0 {
		copts = append(copts, open5e.WithHTTPClient(&http.Client{Timeout: cfg.Upstream.Timeout}))
	}
	if cfg.Upstream.Retries > 0 {
		copts = append(copts, open5e.WithRetries(cfg.Upstream.Retries))
	}
	client := open5e.New(cfg.Upstream.BaseURL, copts...)

	// ── Indexed store (optional) ──────────────────────────────────────────────
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open catalog store", "err", err)
		return 1
	}
	defer closeStore()

	// ── Crawl ─────────────────────────────────────────────────────────────────
	opts := []crawler.Option{
		crawler.WithPageSize(*pageSize),
		crawler.WithConcurrency(*concurrency),
	}
	if store != nil {
		opts = append(opts, crawler.WithStore(store))
	}
	if *typesFlag != "" {
		types, err := parseTypes(*typesFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "tomescry-catalog: %v\n", err)
			return 1
		}
		opts = append(opts, crawler.WithTypes(types...))
	}

	slog.Info("catalog build starting", "out", dir, "upstream", client.BaseURL())
	summary, err := crawler.New(client, dir, opts...).Run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			slog.Warn("catalog build interrupted; previous snapshots are untouched")
			return 1
		}
		slog.Error("catalog build failed", "err", err)
		return 1
	}

	for _, typ := range sortedTypes(summary.Entries) {
		fmt.Printf("%-14s %6d entries\n", typ, summary.Entries[typ])
	}
	fmt.Printf("total          %6d entries in %s\n", summary.Total, summary.Duration.Round(100*time.Millisecond))
	return 0
}

// openStore opens the indexed store named by the config. A "none" or empty
// backend returns a nil store: the build then only writes snapshot files.
func openStore(ctx context.Context, cfg *config.Config) (catalog.Store, func(), error) {
	switch cfg.Catalog.Backend {
	case config.CatalogSQLite:
		store, err := catalog.OpenSQLite(cfg.Catalog.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {
			if err := store.Close(); err != nil {
				slog.Warn("catalog store close error", "err", err)
			}
		}, nil

	case config.CatalogPostgres:
		pool, err := pgxpool.New(ctx, cfg.Catalog.PostgresURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		store := catalog.NewPostgresStore(pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil

	case config.CatalogMemory:
		// A memory store would vanish with this process; building into one
		// is almost certainly a misconfiguration.
		slog.Warn("catalog.backend is memory; entries are written to snapshots only")
		fallthrough
	case config.CatalogNone, "":
		return nil, func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown catalog backend %q", cfg.Catalog.Backend)
	}
}

// parseTypes turns a comma-separated list into resource types, rejecting
// unknown names.
func parseTypes(s string) ([]catalog.ResourceType, error) {
	var types []catalog.ResourceType
	for part := range strings.SplitSeq(s, ",") {
		typ := catalog.ResourceType(strings.TrimSpace(part))
		if typ == "" {
			continue
		}
		if !typ.IsValid() {
			return nil, fmt.Errorf("unknown resource type %q", typ)
		}
		types = append(types, typ)
	}
	if len(types) == 0 {
		return nil, errors.New("no resource types given")
	}
	return types, nil
}

// sortedTypes returns the keys of a ResourceType-keyed map in name order.
func sortedTypes[V any](m map[catalog.ResourceType]V) []catalog.ResourceType {
	keys := make([]catalog.ResourceType, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
