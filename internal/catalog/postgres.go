package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresSchema is the SQL DDL for the catalog table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS catalog (
    type           TEXT NOT NULL,
    name           TEXT NOT NULL DEFAULT '',
    slug_or_index  TEXT NOT NULL,
    api_url        TEXT NOT NULL DEFAULT '',
    document_slug  TEXT NOT NULL DEFAULT '',
    document_title TEXT NOT NULL DEFAULT '',
    raw_json       JSONB NOT NULL DEFAULT '{}',
    subtype        TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (type, slug_or_index)
);
CREATE INDEX IF NOT EXISTS idx_catalog_name ON catalog(name);
CREATE INDEX IF NOT EXISTS idx_catalog_type_doc ON catalog(type, document_slug);
CREATE INDEX IF NOT EXISTS idx_catalog_type_name ON catalog(type, name);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// PostgresStore is a [Store] backed by a PostgreSQL database. The raw
// upstream record is serialised as JSONB.
type PostgresStore struct {
	db DB
}

// NewPostgresStore creates a new [PostgresStore] that uses the given
// database connection or pool. The caller is responsible for calling
// [PostgresStore.Migrate] to ensure the schema exists before issuing
// queries, and retains ownership of the connection.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [PostgresSchema] DDL against the database, creating
// the catalog table and indexes if they do not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, PostgresSchema)
	if err != nil {
		return fmt.Errorf("catalog: migrate: %w", err)
	}
	return nil
}

// Locator implements [Store.Locator].
func (s *PostgresStore) Locator(ctx context.Context, typ ResourceType, slug string) (string, error) {
	const query = `SELECT api_url FROM catalog WHERE type = $1 AND slug_or_index = $2`

	var locator string
	err := s.db.QueryRow(ctx, query, string(typ), slug).Scan(&locator)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("catalog: locator %s/%s: %w", typ, slug, err)
	}
	return locator, nil
}

// Entry implements [Store.Entry].
func (s *PostgresStore) Entry(ctx context.Context, typ ResourceType, slug string) (*Entry, error) {
	const query = `
		SELECT type, name, slug_or_index, api_url, document_slug, document_title, raw_json, subtype
		FROM catalog
		WHERE type = $1 AND slug_or_index = $2`

	var (
		e       Entry
		rawJSON []byte
	)
	err := s.db.QueryRow(ctx, query, string(typ), slug).Scan(
		&e.Type, &e.Name, &e.Slug, &e.Locator,
		&e.DocumentSlug, &e.DocumentTitle, &rawJSON, &e.Subtype,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: entry %s/%s: %w", typ, slug, err)
	}

	if len(rawJSON) > 0 {
		if err := json.Unmarshal(rawJSON, &e.Raw); err != nil {
			return nil, fmt.Errorf("catalog: unmarshal raw for %s/%s: %w", typ, slug, err)
		}
	}
	return &e, nil
}

// Upsert implements [Store.Upsert].
func (s *PostgresStore) Upsert(ctx context.Context, e *Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}

	rawJSON, err := json.Marshal(emptyRaw(e.Raw))
	if err != nil {
		return fmt.Errorf("catalog: marshal raw for %s/%s: %w", e.Type, e.Slug, err)
	}

	const query = `
		INSERT INTO catalog
		(type, name, slug_or_index, api_url, document_slug, document_title, raw_json, subtype)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (type, slug_or_index) DO UPDATE SET
			name = EXCLUDED.name,
			api_url = EXCLUDED.api_url,
			document_slug = EXCLUDED.document_slug,
			document_title = EXCLUDED.document_title,
			raw_json = EXCLUDED.raw_json,
			subtype = EXCLUDED.subtype`

	_, err = s.db.Exec(ctx, query,
		string(e.Type), e.Name, e.Slug, e.Locator,
		e.DocumentSlug, e.DocumentTitle, rawJSON, e.Subtype,
	)
	if err != nil {
		return fmt.Errorf("catalog: upsert %s/%s: %w", e.Type, e.Slug, err)
	}
	return nil
}

// Ping implements [Store.Ping].
func (s *PostgresStore) Ping(ctx context.Context) error {
	var one int
	if err := s.db.QueryRow(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("catalog: ping postgres: %w", err)
	}
	return nil
}

// Close implements [Store.Close]. The underlying pool is owned by the
// caller, so this is a no-op.
func (s *PostgresStore) Close() error {
	return nil
}
