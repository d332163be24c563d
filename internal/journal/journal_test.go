package journal

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.sqlite"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestJournal_AppendAndReplay(t *testing.T) {
	j := openTestJournal(t)

	lines := []string{
		`{"root":"el-1"}`,
		`{"el-1":{"type":"text","props":{"content":"hello"}}}`,
		`{"el-1":{"props":{"content":"hello world"}}}`,
	}
	for i, line := range lines {
		if err := j.Append("stream-a", i, line); err != nil {
			t.Fatalf("Append(%d) failed: %v", i, err)
		}
	}

	entries, err := j.Replay("stream-a")
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, e := range entries {
		if e.Seq != i {
			t.Errorf("entry %d: expected seq %d, got %d", i, i, e.Seq)
		}
		if e.Line != lines[i] {
			t.Errorf("entry %d: expected line %q, got %q", i, lines[i], e.Line)
		}
		if e.StreamID != "stream-a" {
			t.Errorf("entry %d: expected stream-a, got %s", i, e.StreamID)
		}
	}
}

func TestJournal_ReplayOrdersBySeq(t *testing.T) {
	j := openTestJournal(t)

	// Append out of order; replay must come back sorted.
	for _, seq := range []int{2, 0, 1} {
		if err := j.Append("s", seq, "line"); err != nil {
			t.Fatalf("Append(%d) failed: %v", seq, err)
		}
	}

	entries, err := j.Replay("s")
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	for i, e := range entries {
		if e.Seq != i {
			t.Errorf("position %d: expected seq %d, got %d", i, i, e.Seq)
		}
	}
}

func TestJournal_DuplicateSeqIgnored(t *testing.T) {
	j := openTestJournal(t)

	if err := j.Append("s", 0, "first"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := j.Append("s", 0, "second"); err != nil {
		t.Fatalf("duplicate Append should be a no-op, got: %v", err)
	}

	entries, err := j.Replay("s")
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Line != "first" {
		t.Errorf("expected first write to win, got %q", entries[0].Line)
	}
}

func TestJournal_ReplayUnknownStream(t *testing.T) {
	j := openTestJournal(t)

	entries, err := j.Replay("missing")
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no entries for unknown stream, got %d", len(entries))
	}
}

func TestJournal_Streams(t *testing.T) {
	j := openTestJournal(t)

	for i := 0; i < 3; i++ {
		if err := j.Append("stream-a", i, "line"); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	if err := j.Append("stream-b", 0, "line"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	streams, err := j.Streams()
	if err != nil {
		t.Fatalf("Streams failed: %v", err)
	}
	if len(streams) != 2 {
		t.Fatalf("expected 2 streams, got %d", len(streams))
	}

	byID := make(map[string]StreamInfo)
	for _, s := range streams {
		byID[s.StreamID] = s
	}
	if byID["stream-a"].Lines != 3 {
		t.Errorf("expected stream-a to have 3 lines, got %d", byID["stream-a"].Lines)
	}
	if byID["stream-b"].Lines != 1 {
		t.Errorf("expected stream-b to have 1 line, got %d", byID["stream-b"].Lines)
	}
}

func TestJournal_CountAndDelete(t *testing.T) {
	j := openTestJournal(t)

	for i := 0; i < 5; i++ {
		if err := j.Append("s", i, "line"); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	n, err := j.Count("s")
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 5 {
		t.Errorf("expected count 5, got %d", n)
	}

	if err := j.Delete("s"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	n, err = j.Count("s")
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected count 0 after delete, got %d", n)
	}
}

func TestJournal_Prune(t *testing.T) {
	j := openTestJournal(t)

	if err := j.Append("old", 0, "line"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	// Everything written so far is older than a future cutoff.
	removed, err := j.Prune(time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 line pruned, got %d", removed)
	}

	streams, err := j.Streams()
	if err != nil {
		t.Fatalf("Streams failed: %v", err)
	}
	if len(streams) != 0 {
		t.Errorf("expected no streams after prune, got %d", len(streams))
	}
}

func TestJournal_PruneKeepsRecent(t *testing.T) {
	j := openTestJournal(t)

	if err := j.Append("recent", 0, "line"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	removed, err := j.Prune(time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if removed != 0 {
		t.Errorf("expected 0 lines pruned, got %d", removed)
	}

	n, err := j.Count("recent")
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected recent stream to survive prune, got %d lines", n)
	}
}
