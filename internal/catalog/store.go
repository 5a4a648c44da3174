package catalog

import "context"

// Store is the indexed catalog lookup port. The offline builder writes
// through Upsert; the resolver and fetch-cache read through Locator and
// Entry. Implementations must be safe for concurrent use.
type Store interface {
	// Locator returns the retrieval address for (typ, slug). It returns
	// ("", nil) when the store has no such entry or the entry carries no
	// address.
	Locator(ctx context.Context, typ ResourceType, slug string) (string, error)

	// Entry retrieves the full catalog record for (typ, slug). Returns
	// (nil, nil) if not found.
	Entry(ctx context.Context, typ ResourceType, slug string) (*Entry, error)

	// Upsert creates or replaces an entry keyed by (Type, Slug). The entry
	// is validated before persistence.
	Upsert(ctx context.Context, e *Entry) error

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases underlying resources.
	Close() error
}
