package crawler

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/MrWong99/tomescry/internal/catalog"
)

// lookupBuilder accumulates a name index: display name to the slugs sharing
// it, both in first-seen order and without duplicate slugs. The resolver
// relies on that order to break ambiguous names toward the earliest entry.
type lookupBuilder struct {
	names []string
	slugs map[string][]string
}

func newLookupBuilder() *lookupBuilder {
	return &lookupBuilder{slugs: make(map[string][]string)}
}

// add records one (name, slug) pair. Pairs missing either part are ignored.
func (b *lookupBuilder) add(name, slug string) {
	if name == "" || slug == "" {
		return
	}
	existing, seen := b.slugs[name]
	if !seen {
		b.names = append(b.names, name)
	}
	if !slices.Contains(existing, slug) {
		b.slugs[name] = append(existing, slug)
	}
}

func (b *lookupBuilder) len() int {
	return len(b.names)
}

// marshal renders the index as an indented JSON object with keys in
// first-seen order. A plain map marshal would sort the keys and destroy
// the tie-break order [catalog.ParseNameIndex] preserves.
func (b *lookupBuilder) marshal() ([]byte, error) {
	var raw bytes.Buffer
	raw.WriteByte('{')
	for i, name := range b.names {
		if i > 0 {
			raw.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, fmt.Errorf("crawler: encode lookup key %q: %w", name, err)
		}
		raw.Write(key)
		raw.WriteByte(':')
		val, err := json.Marshal(b.slugs[name])
		if err != nil {
			return nil, fmt.Errorf("crawler: encode lookup entry %q: %w", name, err)
		}
		raw.Write(val)
	}
	raw.WriteByte('}')

	var out bytes.Buffer
	if err := json.Indent(&out, raw.Bytes(), "", "  "); err != nil {
		return nil, fmt.Errorf("crawler: indent lookup table: %w", err)
	}
	return out.Bytes(), nil
}

// writeLookup writes the lookup table for typ into dir, atomically.
func writeLookup(dir string, typ catalog.ResourceType, b *lookupBuilder) error {
	data, err := b.marshal()
	if err != nil {
		return err
	}
	return writeFileAtomic(catalog.IndexPath(dir, typ), data)
}

// RebuildLookups regenerates the name-index files from the JSONL snapshots
// already present in dir, without touching the network. Every snapshot gets
// a table. It returns the number of distinct names per rebuilt type.
func RebuildLookups(dir string) (map[catalog.ResourceType]int, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "open5e_*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("crawler: glob snapshots in %s: %w", dir, err)
	}

	counts := make(map[catalog.ResourceType]int)
	for _, path := range matches {
		base := strings.TrimSuffix(filepath.Base(path), ".jsonl")
		typ := catalog.ResourceType(strings.TrimPrefix(base, "open5e_"))
		if !typ.IsValid() {
			slog.Warn("skipping snapshot of unknown type", "path", path)
			continue
		}

		b, err := lookupFromSnapshot(path)
		if err != nil {
			return nil, err
		}
		if err := writeLookup(dir, typ, b); err != nil {
			return nil, err
		}
		slog.Info("lookup table rebuilt", "type", typ, "names", b.len())
		counts[typ] = b.len()
	}
	return counts, nil
}

// lookupFromSnapshot scans one JSONL snapshot into a lookup builder. Blank
// and malformed lines are skipped, like the other snapshot readers do.
func lookupFromSnapshot(path string) (*lookupBuilder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("crawler: open snapshot %s: %w", path, err)
	}
	defer f.Close()

	b := newLookupBuilder()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 10<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var e catalog.Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			continue
		}
		b.add(e.Name, e.Slug)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("crawler: scan snapshot %s: %w", path, err)
	}
	return b, nil
}

// writeFileAtomic writes data through a temp file in the target directory
// and renames it into place so readers never observe a partial file.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("crawler: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("crawler: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("crawler: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("crawler: replace %s: %w", path, err)
	}
	return nil
}
