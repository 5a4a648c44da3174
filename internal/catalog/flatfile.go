package catalog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FlatFiles reads the JSONL snapshots written by the catalog builder, one
// file per resource type. Each line is a single serialised [Entry]. The
// files double as a fallback when no indexed store is configured.
type FlatFiles struct {
	dir string
}

// NewFlatFiles creates a [FlatFiles] rooted at the given data directory.
func NewFlatFiles(dir string) *FlatFiles {
	return &FlatFiles{dir: dir}
}

// Dir returns the data directory the snapshots are read from.
func (f *FlatFiles) Dir() string {
	return f.dir
}

// Path returns the snapshot file path for a resource type, e.g.
// "<dir>/open5e_monsters.jsonl".
func (f *FlatFiles) Path(typ ResourceType) string {
	return filepath.Join(f.dir, fmt.Sprintf("open5e_%s.jsonl", typ))
}

// FindExact scans the snapshot for the given type line by line and returns
// the first entry whose slug or name matches the input, compared
// case-insensitively after trimming surrounding whitespace. It returns
// (nil, nil) when nothing matches or when the snapshot file does not
// exist. Blank and malformed lines are skipped.
func (f *FlatFiles) FindExact(typ ResourceType, input string) (*Entry, error) {
	path := f.Path(typ)
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("catalog: open snapshot %s: %w", path, err)
	}
	defer file.Close()

	want := fold(input)

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 10<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			continue
		}
		if fold(e.Slug) == want || fold(e.Name) == want {
			return &e, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("catalog: scan snapshot %s: %w", path, err)
	}
	return nil, nil
}

// fold normalises a string for exact comparison.
func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
