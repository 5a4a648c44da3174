package session_test

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/MrWong99/tomescry/internal/agent"
	"github.com/MrWong99/tomescry/internal/session"
)

// Transcripts must plug into the conversation driver unchanged.
var _ agent.TranscriptSink = (*session.Transcript)(nil)

func TestBeginCreatesNamedFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := session.NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	tr, err := store.Begin("0b5e1a9c-dead-beef-0000-000000000000")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer tr.Close()

	name := filepath.Base(tr.Path())
	pattern := regexp.MustCompile(`^session_\d{8}_\d{6}_0b5e1a9c\.log$`)
	if !pattern.MatchString(name) {
		t.Fatalf("file name = %q, want session_<timestamp>_0b5e1a9c.log", name)
	}
	if _, err := os.Stat(tr.Path()); err != nil {
		t.Fatalf("transcript file missing: %v", err)
	}
}

func TestBeginKeepsShortRunID(t *testing.T) {
	t.Parallel()

	store, err := session.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	tr, err := store.Begin("ab12")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer tr.Close()

	if !strings.HasSuffix(filepath.Base(tr.Path()), "_ab12.log") {
		t.Fatalf("file name = %q, want the _ab12 suffix", filepath.Base(tr.Path()))
	}
}

func TestNewStoreCreatesNestedDir(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "logs", "sessions")
	store, err := session.NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if store.Dir() != dir {
		t.Fatalf("Dir() = %q, want %q", store.Dir(), dir)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Fatalf("transcript dir not created: %v", err)
	}
}

func TestEventWritesOneLinePerEvent(t *testing.T) {
	t.Parallel()

	store, err := session.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	tr, err := store.Begin("deadbeef")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	tr.Event("query", "Tell me about Zombie.")
	tr.Event("model", "line one\nline two")
	tr.Event("final", "The zombie has 22 hit points.")
	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(tr.Path())
	if err != nil {
		t.Fatalf("read transcript: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("transcript has %d lines, want 3:\n%s", len(lines), data)
	}

	linePattern := regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\.\d{3} \| [A-Z]+ \| `)
	for i, line := range lines {
		if !linePattern.MatchString(line) {
			t.Fatalf("line %d = %q, want a timestamped event line", i, line)
		}
	}
	if !strings.Contains(lines[0], "| QUERY | Tell me about Zombie.") {
		t.Fatalf("line 0 = %q", lines[0])
	}
	if !strings.Contains(lines[1], `| MODEL | line one\nline two`) {
		t.Fatalf("line 1 = %q, want escaped newlines", lines[1])
	}
}

func TestEventAfterCloseIsDropped(t *testing.T) {
	t.Parallel()

	store, err := session.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	tr, err := store.Begin("deadbeef")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	tr.Event("query", "before close")
	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	tr.Event("final", "after close") // must not panic or write
	if err := tr.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	data, err := os.ReadFile(tr.Path())
	if err != nil {
		t.Fatalf("read transcript: %v", err)
	}
	if strings.Contains(string(data), "after close") {
		t.Fatal("event written after Close")
	}
}
