// Package history keeps a local log of deploys, one JSON file per deploy,
// so past manifest and file ids can be looked up without the network.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/renameio"
	"github.com/google/uuid"
)

// ErrNotFound is returned by Get for an unknown id.
var ErrNotFound = errors.New("history entry not found")

// FileRecord is one deployed path.
type FileRecord struct {
	Path      string `json:"path"`
	ID        string `json:"id"`
	Hash      string `json:"hash,omitempty"`
	Size      int64  `json:"size"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Failed    bool   `json:"failed,omitempty"`
}

// Summary aggregates one deploy.
type Summary struct {
	TotalFiles int64  `json:"total_files"`
	TotalBytes int64  `json:"total_bytes"`
	Duplicates int64  `json:"duplicates"`
	Failed     int64  `json:"failed"`
	Reward     string `json:"reward,omitempty"`
}

// Entry describes one deploy.
type Entry struct {
	ID         string       `json:"id"`
	Timestamp  time.Time    `json:"timestamp"`
	Gateway    string       `json:"gateway"`
	Root       string       `json:"root"`
	ManifestID string       `json:"manifest_id,omitempty"`
	BundleID   string       `json:"bundle_id,omitempty"`
	Files      []FileRecord `json:"files"`
	Summary    Summary      `json:"summary"`
}

// History manages deploy entries in a directory.
type History struct {
	dir string
	mu  sync.Mutex
}

// New returns a history rooted at dir. The directory is created on the
// first write.
func New(dir string) (*History, error) {
	if dir == "" {
		return nil, errors.New("history directory cannot be empty")
	}
	return &History{dir: dir}, nil
}

// Dir returns the history directory.
func (h *History) Dir() string {
	return h.dir
}

// Record stamps entry with an id and time, fills in the summary counts
// and persists it.
func (h *History) Record(entry *Entry) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now().UTC()
	entry.ID = generateID(now)
	entry.Timestamp = now

	entry.Summary.TotalFiles = int64(len(entry.Files))
	entry.Summary.TotalBytes = 0
	entry.Summary.Duplicates = 0
	entry.Summary.Failed = 0
	for _, f := range entry.Files {
		entry.Summary.TotalBytes += f.Size
		if f.Duplicate {
			entry.Summary.Duplicates++
		}
		if f.Failed {
			entry.Summary.Failed++
		}
	}

	if err := os.MkdirAll(h.dir, 0o755); err != nil {
		return fmt.Errorf("creating history directory: %w", err)
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding history entry: %w", err)
	}
	path := filepath.Join(h.dir, entry.ID+".json")
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing history entry: %w", err)
	}
	return nil
}

// List returns entries newest first. A limit of zero or less returns all.
// Unreadable files are skipped.
func (h *History) List(limit int) ([]Entry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	names, err := h.entryFiles()
	if err != nil {
		return nil, err
	}

	entries := []Entry{}
	for _, name := range names {
		entry, err := readEntry(filepath.Join(h.dir, name))
		if err != nil {
			continue
		}
		entries = append(entries, *entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Get returns the entry whose id is id or starts with id.
func (h *History) Get(id string) (*Entry, error) {
	if id == "" {
		return nil, errors.New("entry ID cannot be empty")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	names, err := h.entryFiles()
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		if !strings.HasPrefix(name, id) {
			continue
		}
		return readEntry(filepath.Join(h.dir, name))
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Cleanup removes entries older than retentionDays and returns how many
// were removed.
func (h *History) Cleanup(retentionDays int) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	names, err := h.entryFiles()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, name := range names {
		path := filepath.Join(h.dir, name)
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err != nil {
				continue
			}
			removed++
		}
	}
	return removed, nil
}

func (h *History) entryFiles() ([]string, error) {
	files, err := os.ReadDir(h.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading history directory: %w", err)
	}
	var names []string
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		names = append(names, f.Name())
	}
	sort.Strings(names)
	return names, nil
}

func readEntry(path string) (*Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}
	return &entry, nil
}

// generateID returns an id like "deploy-2024-06-15T10-30-00-1b4e28ba".
func generateID(now time.Time) string {
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("deploy-%s-%s", now.Format("2006-01-02T15-04-05"), suffix)
}
