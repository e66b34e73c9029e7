package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio"
)

// JSONFileStorage keeps the table as a JSON array of [hash, entry] pairs.
// Writes replace the file atomically; reads and writes hold an advisory
// lock on a sibling .lock file so concurrent deploys do not interleave.
type JSONFileStorage struct {
	path string
}

// NewJSONFileStorage returns a storage for path. The file is created on
// the first Persist.
func NewJSONFileStorage(path string) *JSONFileStorage {
	return &JSONFileStorage{path: path}
}

func (s *JSONFileStorage) Location() string {
	return s.path
}

func (s *JSONFileStorage) Load() ([]Pair, error) {
	unlock, err := lockPath(s.path+".lock", false)
	if err != nil {
		return nil, err
	}
	defer unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cache file: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var pairs []Pair
	if err := json.Unmarshal(data, &pairs); err != nil {
		return nil, fmt.Errorf("parsing cache file: %w", err)
	}
	return pairs, nil
}

func (s *JSONFileStorage) Persist(pairs []Pair) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	if pairs == nil {
		pairs = []Pair{}
	}
	data, err := json.Marshal(pairs)
	if err != nil {
		return fmt.Errorf("encoding cache: %w", err)
	}

	unlock, err := lockPath(s.path+".lock", true)
	if err != nil {
		return err
	}
	defer unlock()

	return renameio.WriteFile(s.path, data, 0o644)
}
