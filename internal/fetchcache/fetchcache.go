// Package fetchcache retrieves detail records from the reference API and
// stores them on disk, keyed by resource type and slug. The cache is
// write-once: entries have no TTL because the underlying reference
// material is immutable. Concurrent fetchers racing on the same key may
// both retrieve and write; the last write wins.
package fetchcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/MrWong99/tomescry/internal/catalog"
	"github.com/MrWong99/tomescry/internal/observe"
	"github.com/MrWong99/tomescry/internal/open5e"
)

// CachedDetail is the stored form of one detail record. The JSON field
// names are the wire format fed back to the model in observations.
type CachedDetail struct {
	Slug    string          `json:"slug"`
	Locator string          `json:"api_url"`
	Data    json.RawMessage `json:"data"`
}

// LocatorMissingError reports that no locator could be found for a
// (type, slug) pair in either the indexed store or the snapshot.
type LocatorMissingError struct {
	Type catalog.ResourceType
	Slug string
}

func (e *LocatorMissingError) Error() string {
	return fmt.Sprintf("fetchcache: no locator for %s/%s", e.Type, e.Slug)
}

// Cache fetches and persists detail records under
// <root>/<type>/<slug>.json.
type Cache struct {
	root    string
	client  *open5e.Client
	files   *catalog.FlatFiles
	store   catalog.Store
	metrics *observe.Metrics
}

// Option configures a [Cache].
type Option func(*Cache)

// WithStore enables locator resolution through the indexed store before
// the snapshot fallback.
func WithStore(s catalog.Store) Option {
	return func(c *Cache) {
		c.store = s
	}
}

// WithMetrics sets the metrics instance used to record cache lookups.
// Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

// New creates a [Cache] rooted at root.
func New(root string, client *open5e.Client, files *catalog.FlatFiles, opts ...Option) *Cache {
	c := &Cache{
		root:   root,
		client: client,
		files:  files,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// Path returns the cache file location for a (type, slug) pair.
func (c *Cache) Path(typ catalog.ResourceType, slug string) string {
	return filepath.Join(c.root, string(typ), slug+".json")
}

// FetchDetail returns the detail record for (typ, slug), serving it from
// the on-disk cache when present and otherwise retrieving it from the
// reference API and persisting it. The slug is used verbatim, no name
// resolution happens here.
func (c *Cache) FetchDetail(ctx context.Context, typ catalog.ResourceType, slug string) (*CachedDetail, error) {
	if !typ.IsValid() {
		return nil, fmt.Errorf("fetchcache: unsupported resource type %q", typ)
	}
	if err := validSlug(slug); err != nil {
		return nil, err
	}

	path := c.Path(typ, slug)
	if detail, err := readCached(path); err != nil {
		return nil, err
	} else if detail != nil {
		c.metrics.RecordCacheLookup(ctx, string(typ), "hit")
		return detail, nil
	}
	c.metrics.RecordCacheLookup(ctx, string(typ), "miss")

	locator, err := c.locate(ctx, typ, slug)
	if err != nil {
		return nil, err
	}

	body, err := c.client.Get(ctx, locator)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("fetchcache: %s returned invalid JSON", locator)
	}

	detail := &CachedDetail{Slug: slug, Locator: locator, Data: body}
	if err := c.persist(path, detail); err != nil {
		return nil, err
	}
	return detail, nil
}

// locate finds the locator for (typ, slug), preferring the indexed store
// and degrading to the snapshot scan.
func (c *Cache) locate(ctx context.Context, typ catalog.ResourceType, slug string) (string, error) {
	if c.store != nil {
		locator, err := c.store.Locator(ctx, typ, slug)
		if err != nil {
			slog.Warn("fetchcache: indexed store lookup failed, falling back to snapshot",
				"type", typ, "slug", slug, "err", err)
		} else if locator != "" {
			return locator, nil
		}
	}

	entry, err := c.files.FindExact(typ, slug)
	if err != nil {
		return "", err
	}
	if entry == nil || entry.Locator == "" {
		return "", &LocatorMissingError{Type: typ, Slug: slug}
	}
	return entry.Locator, nil
}

// readCached loads a cache file, returning (nil, nil) when it does not
// exist.
func readCached(path string) (*CachedDetail, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetchcache: read %s: %w", path, err)
	}

	var detail CachedDetail
	if err := json.Unmarshal(data, &detail); err != nil {
		return nil, fmt.Errorf("fetchcache: parse %s: %w", path, err)
	}
	return &detail, nil
}

// persist writes the detail record, creating the type directory as needed.
func (c *Cache) persist(path string, detail *CachedDetail) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("fetchcache: create cache dir: %w", err)
	}
	data, err := json.MarshalIndent(detail, "", "  ")
	if err != nil {
		return fmt.Errorf("fetchcache: encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("fetchcache: write %s: %w", path, err)
	}
	return nil
}

// validSlug rejects slugs that would escape the cache directory.
func validSlug(slug string) error {
	if slug == "" {
		return errors.New("fetchcache: slug must not be empty")
	}
	if strings.ContainsAny(slug, `/\`) || strings.Contains(slug, "..") {
		return fmt.Errorf("fetchcache: invalid slug %q", slug)
	}
	return nil
}
