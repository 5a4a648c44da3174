package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MrWong99/tomescry/internal/observe"
)

// Resolver turns a user-supplied name or slug into a [ResolvedReference]
// using up to three tiers, in strict priority order:
//
//  1. indexed store lookup, treating the input literally as a slug;
//  2. exact scan of the flat-file snapshot, matching slug or name;
//  3. name-index disambiguation, resolving a display name to one of its
//     slug candidates.
//
// The first tier that produces a result wins. There is no fuzzy matching
// and no ranking beyond "preferred document overrides first-found".
type Resolver struct {
	files   *FlatFiles
	store   Store
	library *Library
	metrics *observe.Metrics
}

// ResolverOption configures a [Resolver].
type ResolverOption func(*Resolver)

// WithStore enables the indexed-store fast path.
func WithStore(s Store) ResolverOption {
	return func(r *Resolver) {
		r.store = s
	}
}

// WithLibrary enables name-index disambiguation.
func WithLibrary(l *Library) ResolverOption {
	return func(r *Resolver) {
		r.library = l
	}
}

// WithResolverMetrics sets the metrics instance used to record lookup
// outcomes. Defaults to [observe.DefaultMetrics].
func WithResolverMetrics(m *observe.Metrics) ResolverOption {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// NewResolver creates a [Resolver] reading from the given snapshot files.
// Without options only the exact-scan tier is active.
func NewResolver(files *FlatFiles, opts ...ResolverOption) *Resolver {
	r := &Resolver{files: files}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	return r
}

// Resolve maps nameOrSlug to a unique reference of the given type.
// preferDoc, when non-empty, selects the candidate from that source
// document during name disambiguation instead of the first one found.
// A miss across all tiers returns a [NotFoundError].
func (r *Resolver) Resolve(ctx context.Context, typ ResourceType, nameOrSlug, preferDoc string) (*ResolvedReference, error) {
	if !typ.IsValid() {
		return nil, fmt.Errorf("catalog: unsupported resource type %q", typ)
	}

	// Tier 1: trust the input as a slug and ask the indexed store. Store
	// errors degrade to the snapshot tiers instead of failing the lookup.
	if r.store != nil {
		locator, err := r.store.Locator(ctx, typ, nameOrSlug)
		if err != nil {
			slog.Warn("catalog: indexed store lookup failed, falling back to snapshot",
				"type", typ, "input", nameOrSlug, "err", err)
		} else if locator != "" {
			r.metrics.RecordResolveLookup(ctx, string(typ), "store")
			return &ResolvedReference{
				ChosenName: nameOrSlug,
				ChosenSlug: nameOrSlug,
				Locator:    locator,
			}, nil
		}
	}

	// Tier 2: exact slug-or-name scan over the snapshot.
	entry, err := r.files.FindExact(typ, nameOrSlug)
	if err != nil {
		return nil, err
	}
	if entry != nil {
		r.metrics.RecordResolveLookup(ctx, string(typ), "snapshot")
		return &ResolvedReference{
			ChosenName: entry.Name,
			ChosenSlug: entry.Slug,
			Locator:    entry.Locator,
		}, nil
	}

	// Tier 3: the input may be a display name shared by several slugs.
	if r.library != nil {
		if idx, ok := r.library.Index(typ); ok {
			ref, err := r.disambiguate(idx, typ, nameOrSlug, preferDoc)
			if err != nil {
				return nil, err
			}
			if ref != nil {
				r.metrics.RecordResolveLookup(ctx, string(typ), "name_index")
				return ref, nil
			}
		}
	}

	r.metrics.RecordResolveLookup(ctx, string(typ), "miss")
	return nil, &NotFoundError{Type: typ, Input: nameOrSlug}
}

// disambiguate resolves a display name through the name index. Candidates
// are tried in index order. The first entry found is the default; a
// preferDoc match overrides it and stops the scan.
func (r *Resolver) disambiguate(idx *NameIndex, typ ResourceType, name, preferDoc string) (*ResolvedReference, error) {
	_, slugs, ok := idx.Candidates(name)
	if !ok {
		return nil, nil
	}

	var best *Entry
	for _, slug := range slugs {
		entry, err := r.files.FindExact(typ, slug)
		if err != nil {
			return nil, err
		}
		if entry == nil {
			continue
		}
		if best == nil {
			best = entry
		}
		if preferDoc != "" && entry.DocumentSlug == preferDoc {
			best = entry
			break
		}
	}
	if best == nil {
		return nil, nil
	}
	return &ResolvedReference{
		ChosenName: best.Name,
		ChosenSlug: best.Slug,
		Locator:    best.Locator,
	}, nil
}
