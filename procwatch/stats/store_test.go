package stats

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	rec := NewRecord()
	rec.MarkStarted(time.Unix(42, 0))

	if err := s.Save("worker", rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, corrupt, err := s.Load("worker")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if corrupt {
		t.Fatal("did not expect a corrupt load")
	}
	if loaded.StartCount != 1 {
		t.Fatalf("expected StartCount 1, got %d", loaded.StartCount)
	}
}

func TestStoreLoadMissingIsNotCorrupt(t *testing.T) {
	s := NewStore(t.TempDir())

	rec, corrupt, err := s.Load("nonexistent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if corrupt {
		t.Fatal("a missing file must not be reported as corrupt")
	}
	if rec.StartCount != 0 {
		t.Fatalf("expected zero record, got %+v", rec)
	}
}

func TestStoreLoadCorruptFile(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	if err := s.Save("worker", NewRecord()); err != nil {
		t.Fatalf("save: %v", err)
	}

	path := filepath.Join(dir, "stats_worker.raw")
	if err := os.WriteFile(path, []byte("not a valid record"), 0640); err != nil {
		t.Fatalf("corrupt file: %v", err)
	}

	_, corrupt, err := s.Load("worker")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !corrupt {
		t.Fatal("expected the truncated file to be reported corrupt")
	}
}
