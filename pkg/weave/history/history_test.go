package history

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func sampleEntry() *Entry {
	return &Entry{
		Gateway:    "https://arweave.net",
		Root:       "/srv/site",
		ManifestID: "manifest-id",
		Files: []FileRecord{
			{Path: "index.html", ID: "a", Size: 10},
			{Path: "style.css", ID: "b", Size: 5, Duplicate: true},
			{Path: "big.bin", ID: "c", Size: 100, Failed: true},
		},
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Fatal("New(\"\") error = nil, want error")
	}
	h, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if h.Dir() == "" {
		t.Fatal("Dir() is empty")
	}
}

func TestHistory_Record(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "history")
	h, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	entry := sampleEntry()
	if err := h.Record(entry); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	if !strings.HasPrefix(entry.ID, "deploy-") {
		t.Errorf("ID = %q, want deploy- prefix", entry.ID)
	}
	if entry.Timestamp.IsZero() {
		t.Error("Timestamp not set")
	}
	want := Summary{TotalFiles: 3, TotalBytes: 115, Duplicates: 1, Failed: 1}
	if entry.Summary != want {
		t.Errorf("Summary = %+v, want %+v", entry.Summary, want)
	}
	if _, err := os.Stat(filepath.Join(dir, entry.ID+".json")); err != nil {
		t.Errorf("entry file missing: %v", err)
	}
}

func TestHistory_ListAndGet(t *testing.T) {
	t.Parallel()

	h, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	first := sampleEntry()
	first.Root = "/first"
	if err := h.Record(first); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	second := sampleEntry()
	second.Root = "/second"
	if err := h.Record(second); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(h.Dir(), "junk.json"), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}

	entries, err := h.List(0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("List() returned %d entries, want 2", len(entries))
	}
	if entries[0].Root != "/second" {
		t.Errorf("List()[0].Root = %q, want newest first", entries[0].Root)
	}

	limited, err := h.List(1)
	if err != nil {
		t.Fatalf("List(1) error = %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("List(1) returned %d entries", len(limited))
	}

	got, err := h.Get(first.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ManifestID != "manifest-id" || len(got.Files) != 3 {
		t.Errorf("Get() = %+v", got)
	}

	if _, err := h.Get("deploy-1999"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(unknown) error = %v, want ErrNotFound", err)
	}
	if _, err := h.Get(""); err == nil {
		t.Error("Get(\"\") error = nil")
	}
}

func TestHistory_ListMissingDir(t *testing.T) {
	t.Parallel()

	h, err := New(filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	entries, err := h.List(0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if entries == nil || len(entries) != 0 {
		t.Errorf("List() = %v, want empty slice", entries)
	}
}

func TestHistory_Cleanup(t *testing.T) {
	t.Parallel()

	h, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	old := sampleEntry()
	if err := h.Record(old); err != nil {
		t.Fatal(err)
	}
	fresh := sampleEntry()
	if err := h.Record(fresh); err != nil {
		t.Fatal(err)
	}

	past := time.Now().AddDate(0, 0, -40)
	if err := os.Chtimes(filepath.Join(h.Dir(), old.ID+".json"), past, past); err != nil {
		t.Fatal(err)
	}

	removed, err := h.Cleanup(30)
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("Cleanup() removed %d, want 1", removed)
	}
	if _, err := h.Get(fresh.ID); err != nil {
		t.Errorf("fresh entry removed: %v", err)
	}
}
