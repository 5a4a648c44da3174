// Package session persists per-conversation transcripts.
//
// A [Store] manages a directory of append-only transcript files, one per
// conversation run, named session_<timestamp>_<shortid>.log. Transcripts
// are an audit trail, not part of the functional contract: write failures
// are logged and ignored so a full disk never breaks a conversation.
package session

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// eventTimeLayout is the timestamp prefix of every transcript line.
const eventTimeLayout = "2006-01-02 15:04:05.000"

// Store creates transcript files under a fixed directory.
type Store struct {
	dir string
}

// NewStore ensures dir exists and returns a Store writing into it.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("session: create transcript dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the directory transcripts are written into.
func (s *Store) Dir() string {
	return s.dir
}

// Begin opens the transcript file for one conversation run. Only the first
// 8 characters of runID end up in the file name.
func (s *Store) Begin(runID string) (*Transcript, error) {
	short := runID
	if len(short) > 8 {
		short = short[:8]
	}
	name := fmt.Sprintf("session_%s_%s.log", time.Now().Format("20060102_150405"), short)
	path := filepath.Join(s.dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("session: open transcript: %w", err)
	}
	return &Transcript{f: f, path: path}, nil
}

// Transcript is the append-only event log of a single conversation run.
// It is safe for concurrent use.
type Transcript struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

// Path returns the on-disk location of the transcript file.
func (t *Transcript) Path() string {
	return t.path
}

// Event appends one timestamped line. Newlines in content are escaped so
// every event stays on a single line. Calls after Close are dropped.
func (t *Transcript) Event(kind, content string) {
	line := time.Now().Format(eventTimeLayout) +
		" | " + strings.ToUpper(kind) +
		" | " + strings.ReplaceAll(content, "\n", `\n`) + "\n"

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.f == nil {
		return
	}
	if _, err := t.f.WriteString(line); err != nil {
		slog.Warn("session: transcript write failed", "path", t.path, "err", err)
	}
}

// Close flushes and closes the transcript file. Safe to call multiple
// times; subsequent calls return nil.
func (t *Transcript) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.f == nil {
		return nil
	}
	err := t.f.Close()
	t.f = nil
	if err != nil {
		return fmt.Errorf("session: close transcript: %w", err)
	}
	return nil
}
