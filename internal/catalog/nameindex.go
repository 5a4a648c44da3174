package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// NameIndex maps display names to the slugs that share that name, in the
// order the entries appear in the lookup file. Name comparison is
// case-insensitive, but the canonical spelling from the file is preserved.
type NameIndex struct {
	names  []string            // canonical names in file order
	slugs  map[string][]string // canonical name -> slugs in file order
	byFold map[string]string   // folded name -> canonical name
}

// ParseNameIndex reads a lookup table, a JSON object mapping each display
// name to an array of slugs. Key order in the file is preserved so that
// ambiguous names resolve to the earliest entry. Duplicate names keep the
// first occurrence.
func ParseNameIndex(r io.Reader) (*NameIndex, error) {
	idx := &NameIndex{
		slugs:  make(map[string][]string),
		byFold: make(map[string]string),
	}

	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("catalog: parse lookup table: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("catalog: parse lookup table: expected object, got %v", tok)
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("catalog: parse lookup table: %w", err)
		}
		name, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("catalog: parse lookup table: non-string key %v", keyTok)
		}

		var slugs []string
		if err := dec.Decode(&slugs); err != nil {
			return nil, fmt.Errorf("catalog: parse lookup table entry %q: %w", name, err)
		}

		folded := fold(name)
		if _, exists := idx.byFold[folded]; exists {
			continue
		}
		idx.names = append(idx.names, name)
		idx.slugs[name] = slugs
		idx.byFold[folded] = name
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("catalog: parse lookup table: %w", err)
	}
	return idx, nil
}

// Candidates returns the canonical name and its slugs for a
// case-insensitive name match. ok is false when the name is unknown.
func (idx *NameIndex) Candidates(name string) (canonical string, slugs []string, ok bool) {
	canonical, ok = idx.byFold[fold(name)]
	if !ok {
		return "", nil, false
	}
	return canonical, idx.slugs[canonical], true
}

// Names returns all canonical names in file order. The returned slice is
// shared and must not be modified.
func (idx *NameIndex) Names() []string {
	return idx.names
}

// Len returns the number of distinct names in the index.
func (idx *NameIndex) Len() int {
	return len(idx.names)
}

// IndexPath returns the lookup table file path for a resource type inside
// dir, e.g. "<dir>/open5e_monsters_lookupTable.json".
func IndexPath(dir string, typ ResourceType) string {
	return filepath.Join(dir, fmt.Sprintf("open5e_%s_lookupTable.json", typ))
}

// Library holds the loaded name indexes, one per resource type, and can
// reload them when the underlying files change. It uses polling rather
// than fsnotify to keep dependencies minimal.
type Library struct {
	dir   string
	types []ResourceType

	mu     sync.RWMutex
	byType map[ResourceType]*NameIndex
	mtimes map[ResourceType]time.Time

	done     chan struct{}
	stopOnce sync.Once
}

// LoadLibrary loads the lookup tables for the given resource types from
// dir. Types default to [SearchableTypes] when none are given. Missing
// files are tolerated, the corresponding index is simply absent, but a
// malformed file is an error.
func LoadLibrary(dir string, types ...ResourceType) (*Library, error) {
	if len(types) == 0 {
		types = SearchableTypes()
	}
	lib := &Library{
		dir:    dir,
		types:  types,
		byType: make(map[ResourceType]*NameIndex),
		mtimes: make(map[ResourceType]time.Time),
		done:   make(chan struct{}),
	}
	if err := lib.Reload(); err != nil {
		return nil, err
	}
	return lib, nil
}

// Index returns the name index for the given type, or ok=false when no
// lookup table was loaded for it.
func (l *Library) Index(typ ResourceType) (*NameIndex, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	idx, ok := l.byType[typ]
	return idx, ok
}

// Types returns the resource types this library was configured with.
func (l *Library) Types() []ResourceType {
	return l.types
}

// Reload re-reads all configured lookup tables from disk. Missing files
// remove the corresponding index.
func (l *Library) Reload() error {
	loaded := make(map[ResourceType]*NameIndex)
	mtimes := make(map[ResourceType]time.Time)

	for _, typ := range l.types {
		path := IndexPath(l.dir, typ)
		f, err := os.Open(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("catalog: open lookup table %s: %w", path, err)
		}

		info, statErr := f.Stat()
		idx, parseErr := ParseNameIndex(f)
		f.Close()
		if parseErr != nil {
			return parseErr
		}
		if statErr == nil {
			mtimes[typ] = info.ModTime()
		}
		loaded[typ] = idx
	}

	l.mu.Lock()
	l.byType = loaded
	l.mtimes = mtimes
	l.mu.Unlock()
	return nil
}

// StartWatching begins polling the lookup tables for modification time
// changes at the given interval and reloads the library when any file
// changes. Call [Library.Stop] to end the polling goroutine.
func (l *Library) StartWatching(interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go l.poll(interval)
}

// Stop ends the polling goroutine started by [Library.StartWatching].
func (l *Library) Stop() {
	l.stopOnce.Do(func() {
		close(l.done)
	})
}

func (l *Library) poll(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.check()
		}
	}
}

// check compares each lookup table's modification time against the last
// load and reloads the whole library when any of them changed.
func (l *Library) check() {
	changed := false

	l.mu.RLock()
	for _, typ := range l.types {
		info, err := os.Stat(IndexPath(l.dir, typ))
		last, hadFile := l.mtimes[typ]
		switch {
		case err != nil && hadFile:
			changed = true
		case err == nil && (!hadFile || !info.ModTime().Equal(last)):
			changed = true
		}
		if changed {
			break
		}
	}
	l.mu.RUnlock()

	if !changed {
		return
	}
	if err := l.Reload(); err != nil {
		slog.Warn("catalog: lookup table reload failed", "dir", l.dir, "err", err)
		return
	}
	slog.Info("catalog: lookup tables reloaded", "dir", l.dir)
}
