// Package crawler builds the reference datasets: it discovers the upstream
// resource listings, normalizes every item into a catalog entry and writes
// the JSONL snapshots, the indexed store and the name-index lookup tables
// the resolver searches at runtime.
package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/tomescry/internal/catalog"
	"github.com/MrWong99/tomescry/internal/open5e"
)

// defaultConcurrency bounds how many resource types are crawled at once.
const defaultConcurrency = 4

// Crawler drives one full catalog build.
type Crawler struct {
	client      *open5e.Client
	outDir      string
	files       *catalog.FlatFiles
	store       catalog.Store
	types       []catalog.ResourceType
	lookupTypes []catalog.ResourceType
	pageSize    int
	concurrency int
}

// Option configures a [Crawler].
type Option func(*Crawler)

// WithStore additionally upserts every entry into the indexed store.
func WithStore(store catalog.Store) Option {
	return func(c *Crawler) { c.store = store }
}

// WithTypes restricts the build to the given resource types. The default is
// [catalog.AllTypes].
func WithTypes(types ...catalog.ResourceType) Option {
	return func(c *Crawler) {
		if len(types) > 0 {
			c.types = types
		}
	}
}

// WithLookupTypes sets the types that get a name-index lookup table. The
// default is [catalog.SearchableTypes].
func WithLookupTypes(types ...catalog.ResourceType) Option {
	return func(c *Crawler) {
		if len(types) > 0 {
			c.lookupTypes = types
		}
	}
}

// WithPageSize sets the listing page size requested from the upstream. The
// default is [open5e.DefaultPageSize].
func WithPageSize(n int) Option {
	return func(c *Crawler) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithConcurrency bounds how many resource types are crawled in parallel.
// The default is 4.
func WithConcurrency(n int) Option {
	return func(c *Crawler) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// New creates a [Crawler] writing its dataset files into outDir.
func New(client *open5e.Client, outDir string, opts ...Option) *Crawler {
	c := &Crawler{
		client:      client,
		outDir:      outDir,
		files:       catalog.NewFlatFiles(outDir),
		types:       catalog.AllTypes(),
		lookupTypes: catalog.SearchableTypes(),
		pageSize:    open5e.DefaultPageSize,
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Summary reports what one build produced.
type Summary struct {
	Entries  map[catalog.ResourceType]int
	Total    int
	Duration time.Duration
}

// crawlUnit is the work for one output type: the upstream categories that
// feed it and their listing URLs. Equipment is fed by up to three.
type crawlUnit struct {
	typ     catalog.ResourceType
	sources []crawlSource
}

type crawlSource struct {
	category string
	listURL  string
}

// Run executes the full build: discover the listings, crawl every configured
// type, write one JSONL snapshot per type (equipment merged), upsert entries
// into the store when one is configured and write the lookup tables.
//
// Types are crawled concurrently, bounded by the configured concurrency;
// each type's snapshot is written sequentially and replaced atomically, so a
// failed run leaves the previous dataset intact.
func (c *Crawler) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()

	if err := os.MkdirAll(c.outDir, 0o755); err != nil {
		return nil, fmt.Errorf("crawler: create output dir: %w", err)
	}

	listings, err := c.discover(ctx)
	if err != nil {
		return nil, err
	}

	units := c.plan(listings)
	if len(units) == 0 {
		return nil, fmt.Errorf("crawler: upstream at %s lists none of the configured types", c.client.BaseURL())
	}

	counts := make([]int, len(units))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, unit := range units {
		g.Go(func() error {
			n, err := c.crawlType(gctx, unit)
			if err != nil {
				return err
			}
			counts[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary := &Summary{Entries: make(map[catalog.ResourceType]int)}
	for i, unit := range units {
		summary.Entries[unit.typ] = counts[i]
		summary.Total += counts[i]
	}
	summary.Duration = time.Since(start)
	return summary, nil
}

// discover fetches the API root and keeps every entry whose value is an
// absolute http(s) URL, the upstream's convention for listing endpoints.
func (c *Crawler) discover(ctx context.Context) (map[string]string, error) {
	root, err := c.client.Root(ctx)
	if err != nil {
		return nil, err
	}
	listings := make(map[string]string)
	for key, v := range root {
		u, ok := v.(string)
		if !ok || !strings.HasPrefix(u, "http") {
			continue
		}
		listings[key] = u
	}
	slog.Info("discovered upstream listings", "count", len(listings))
	return listings, nil
}

// plan groups the discovered listings by output type, restricted to the
// configured types. Categories that map to no supported type are skipped.
func (c *Crawler) plan(listings map[string]string) []crawlUnit {
	byType := make(map[catalog.ResourceType][]crawlSource)
	for _, category := range slices.Sorted(maps.Keys(listings)) {
		typ, ok := typeForCategory(category)
		if !ok {
			slog.Debug("skipping unsupported listing", "category", category)
			continue
		}
		byType[typ] = append(byType[typ], crawlSource{category: category, listURL: listings[category]})
	}

	var units []crawlUnit
	for _, typ := range c.types {
		sources, ok := byType[typ]
		if !ok {
			slog.Warn("upstream does not list configured type", "type", typ)
			continue
		}
		units = append(units, crawlUnit{typ: typ, sources: sources})
	}
	return units
}

// crawlType walks every category feeding one output type and streams the
// normalized entries into the type's snapshot, the store and, for
// searchable types, the lookup table.
func (c *Crawler) crawlType(ctx context.Context, unit crawlUnit) (int, error) {
	path := c.files.Path(unit.typ)
	tmp, err := os.CreateTemp(c.outDir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return 0, fmt.Errorf("crawler: create temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	enc.SetEscapeHTML(false)

	var lookup *lookupBuilder
	if slices.Contains(c.lookupTypes, unit.typ) {
		lookup = newLookupBuilder()
	}

	count := 0
	for _, src := range unit.sources {
		slog.Info("crawling listing", "type", unit.typ, "category", src.category, "url", src.listURL)
		err := c.client.ForEachItem(ctx, src.listURL, c.pageSize, func(item map[string]any) error {
			entry := normalizeItem(unit.typ, src.category, item)
			if entry.Slug == "" {
				slog.Warn("skipping item without identifier",
					"type", unit.typ, "category", src.category, "name", entry.Name)
				return nil
			}
			if entry.Locator == "" {
				entry.Locator = joinLocator(src.listURL, entry.Slug)
			}

			if err := enc.Encode(entry); err != nil {
				return fmt.Errorf("crawler: write snapshot line: %w", err)
			}
			if c.store != nil {
				if err := c.store.Upsert(ctx, entry); err != nil {
					return err
				}
			}
			if lookup != nil {
				lookup.add(entry.Name, entry.Slug)
			}
			count++
			return nil
		})
		if err != nil {
			tmp.Close()
			return 0, err
		}
	}

	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("crawler: close temp snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("crawler: replace snapshot %s: %w", path, err)
	}

	if lookup != nil {
		if err := writeLookup(c.outDir, unit.typ, lookup); err != nil {
			return 0, err
		}
	}
	slog.Info("snapshot written", "type", unit.typ, "entries", count, "path", path)
	return count, nil
}

// joinLocator derives a detail URL for entries that carry none of their
// own: the collection listing URL plus the identifier.
func joinLocator(listURL, slug string) string {
	if !strings.HasSuffix(listURL, "/") {
		listURL += "/"
	}
	return listURL + slug + "/"
}
