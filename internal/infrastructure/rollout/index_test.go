package rollout

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/codex-go/codex/internal/infrastructure/config"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	dir := t.TempDir()
	idx, err := NewIndex(&config.DatabaseConfig{Type: "sqlite", DSN: filepath.Join(dir, "rollout.db")})
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestIndex_RecordAndList(t *testing.T) {
	idx := newTestIndex(t)
	base := time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)

	entries := []IndexEntry{
		{UUID: "s1", Path: "/sessions/s1.jsonl", CreatedAt: base, Source: "cli"},
		{UUID: "s2", Path: "/sessions/s2.jsonl", CreatedAt: base.Add(time.Hour), Source: "cli"},
		{UUID: "s3", Path: "/sessions/s3.jsonl", CreatedAt: base.Add(2 * time.Hour), Source: "mcp-server"},
	}
	for _, e := range entries {
		if err := idx.Record(e); err != nil {
			t.Fatalf("Record(%s): %v", e.UUID, err)
		}
	}

	got, err := idx.List(ListOptions{Source: "cli"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 cli entries, got %d", len(got))
	}
	if got[0].UUID != "s1" || got[1].UUID != "s2" {
		t.Errorf("expected ascending order s1,s2, got %s,%s", got[0].UUID, got[1].UUID)
	}
}

func TestIndex_Last(t *testing.T) {
	idx := newTestIndex(t)
	base := time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)

	if last, err := idx.Last(); err != nil || last != nil {
		t.Fatalf("Last on empty index: %v, %+v", err, last)
	}

	idx.Record(IndexEntry{UUID: "s1", Path: "/s1.jsonl", CreatedAt: base})
	idx.Record(IndexEntry{UUID: "s2", Path: "/s2.jsonl", CreatedAt: base.Add(time.Hour)})

	last, err := idx.Last()
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if last == nil || last.UUID != "s2" {
		t.Fatalf("expected s2, got %+v", last)
	}
}

func TestIndex_ArchiveExcludesFromDefaultListing(t *testing.T) {
	idx := newTestIndex(t)
	idx.Record(IndexEntry{UUID: "s1", Path: "/s1.jsonl", CreatedAt: time.Now().UTC()})

	if err := idx.Archive("s1"); err != nil {
		t.Fatalf("Archive: %v", err)
	}

	got, err := idx.List(ListOptions{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected archived session excluded, got %d entries", len(got))
	}

	got, err = idx.List(ListOptions{IncludeArchived: true})
	if err != nil {
		t.Fatalf("List IncludeArchived: %v", err)
	}
	if len(got) != 1 || !got[0].Archived {
		t.Fatalf("expected 1 archived entry, got %+v", got)
	}
}

func TestIndex_ArchiveUnknownSession(t *testing.T) {
	idx := newTestIndex(t)
	if err := idx.Archive("nope"); err == nil {
		t.Error("expected error archiving unknown session")
	}
}
