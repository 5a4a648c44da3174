package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteSchema is the SQL DDL for the catalog table. It matches the layout
// written by the offline builder, so a database built elsewhere can be used
// directly.
const SQLiteSchema = `
CREATE TABLE IF NOT EXISTS catalog (
    type TEXT NOT NULL,
    name TEXT,
    slug_or_index TEXT,
    api_url TEXT,
    document_slug TEXT,
    document_title TEXT,
    raw_json TEXT,
    subtype TEXT,
    PRIMARY KEY (type, slug_or_index)
);
CREATE INDEX IF NOT EXISTS idx_name ON catalog(name);
CREATE INDEX IF NOT EXISTS idx_type_doc ON catalog(type, document_slug);
CREATE INDEX IF NOT EXISTS idx_type_name ON catalog(type, name);
`

// Compile-time interface check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore is a [Store] backed by a SQLite database file. It is the
// default catalog backend and reads databases produced by the builder
// command.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating it if necessary) a SQLite catalog at path.
// The connection is limited to a single writer; readers go through WAL.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open sqlite %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("catalog: %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(SQLiteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: ensure schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Locator implements [Store.Locator].
func (s *SQLiteStore) Locator(ctx context.Context, typ ResourceType, slug string) (string, error) {
	const query = `SELECT api_url FROM catalog WHERE type = ? AND slug_or_index = ?`

	var locator sql.NullString
	err := s.db.QueryRowContext(ctx, query, string(typ), slug).Scan(&locator)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("catalog: locator %s/%s: %w", typ, slug, err)
	}
	return locator.String, nil
}

// Entry implements [Store.Entry].
func (s *SQLiteStore) Entry(ctx context.Context, typ ResourceType, slug string) (*Entry, error) {
	const query = `
		SELECT type, name, slug_or_index, api_url, document_slug, document_title, raw_json, subtype
		FROM catalog
		WHERE type = ? AND slug_or_index = ?`

	var (
		e       Entry
		name    sql.NullString
		locator sql.NullString
		docSlug sql.NullString
		docTitle sql.NullString
		rawJSON sql.NullString
		subtype sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, string(typ), slug).Scan(
		&e.Type, &name, &e.Slug, &locator, &docSlug, &docTitle, &rawJSON, &subtype,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: entry %s/%s: %w", typ, slug, err)
	}

	e.Name = name.String
	e.Locator = locator.String
	e.DocumentSlug = docSlug.String
	e.DocumentTitle = docTitle.String
	e.Subtype = subtype.String
	if rawJSON.Valid && rawJSON.String != "" {
		if err := json.Unmarshal([]byte(rawJSON.String), &e.Raw); err != nil {
			return nil, fmt.Errorf("catalog: unmarshal raw for %s/%s: %w", typ, slug, err)
		}
	}
	return &e, nil
}

// Upsert implements [Store.Upsert].
func (s *SQLiteStore) Upsert(ctx context.Context, e *Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}

	rawJSON, err := json.Marshal(emptyRaw(e.Raw))
	if err != nil {
		return fmt.Errorf("catalog: marshal raw for %s/%s: %w", e.Type, e.Slug, err)
	}

	const query = `
		INSERT OR REPLACE INTO catalog
		(type, name, slug_or_index, api_url, document_slug, document_title, raw_json, subtype)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		string(e.Type), e.Name, e.Slug, e.Locator,
		e.DocumentSlug, e.DocumentTitle, string(rawJSON), e.Subtype,
	)
	if err != nil {
		return fmt.Errorf("catalog: upsert %s/%s: %w", e.Type, e.Slug, err)
	}
	return nil
}

// Ping implements [Store.Ping].
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("catalog: ping sqlite: %w", err)
	}
	return nil
}

// Close implements [Store.Close].
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// emptyRaw returns m if non-nil, otherwise an empty non-nil map. This ensures
// JSON marshalling produces "{}" instead of "null".
func emptyRaw(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
