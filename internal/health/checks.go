package health

import (
	"context"
	"fmt"
	"os"

	"github.com/MrWong99/tomescry/internal/catalog"
	"github.com/MrWong99/tomescry/internal/encounter/statestore"
)

// CatalogCheck reports whether the indexed catalog store answers a ping.
func CatalogCheck(store catalog.Store) Checker {
	return Checker{
		Name: "catalog",
		Check: func(ctx context.Context) error {
			return store.Ping(ctx)
		},
	}
}

// CacheDirCheck reports whether the detail cache directory is writable. The
// probe creates the directory if missing, then writes and removes a
// temporary file.
func CacheDirCheck(dir string) Checker {
	return Checker{
		Name: "cache",
		Check: func(_ context.Context) error {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create cache dir: %w", err)
			}
			f, err := os.CreateTemp(dir, ".readyz-*")
			if err != nil {
				return fmt.Errorf("cache dir not writable: %w", err)
			}
			name := f.Name()
			if err := f.Close(); err != nil {
				return err
			}
			return os.Remove(name)
		},
	}
}

// EncounterCheck reports whether the encounter state store can load state.
func EncounterCheck(store statestore.Store) Checker {
	return Checker{
		Name: "encounter",
		Check: func(ctx context.Context) error {
			_, err := store.Load(ctx)
			return err
		},
	}
}
