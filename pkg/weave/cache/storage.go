package cache

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
)

// Backend names accepted by Open.
const (
	BackendJSON   = "json"
	BackendBadger = "badger"
)

// MemoryStorage keeps the table in memory. Persist copies the pairs, so a
// second Cache over the same storage sees what the first one saved.
type MemoryStorage struct {
	mu    sync.Mutex
	pairs []Pair
	saves int
}

func NewMemoryStorage(pairs ...Pair) *MemoryStorage {
	return &MemoryStorage{pairs: pairs}
}

func (s *MemoryStorage) Location() string { return "memory" }

func (s *MemoryStorage) Load() ([]Pair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Pair(nil), s.pairs...), nil
}

func (s *MemoryStorage) Persist(pairs []Pair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pairs = append([]Pair(nil), pairs...)
	s.saves++
	return nil
}

// Saves counts Persist calls.
func (s *MemoryStorage) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// Open returns the cache for gateway in dir using the named backend.
func Open(backend, dir, gateway string) (*Cache, error) {
	name := FileName(gateway)

	switch strings.ToLower(backend) {
	case "", BackendJSON:
		return New(NewJSONFileStorage(filepath.Join(dir, name))), nil
	case BackendBadger:
		db, err := OpenBadgerStorage(filepath.Join(dir, strings.TrimSuffix(name, ".json")+".db"))
		if err != nil {
			return nil, err
		}
		return New(db), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", backend)
	}
}
