// Package cache remembers which content fingerprints have already been
// published and under which id, so unchanged files are not paid for twice.
// Entries start unconfirmed and are flipped once the network reports the
// record as mined.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/jamesainslie/weave/pkg/weave/logging"
)

// ErrNotFound is returned when a fingerprint has no entry.
var ErrNotFound = errors.New("cache entry not found")

// Entry is the published id for one fingerprint.
type Entry struct {
	ID        string `json:"id" cbor:"1,keyasint"`
	Confirmed bool   `json:"confirmed" cbor:"2,keyasint"`
}

// Pair is one fingerprint and its entry. It encodes as the two-element
// JSON array [hash, entry].
type Pair struct {
	Hash  string
	Entry Entry
}

func (p Pair) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{p.Hash, p.Entry})
}

func (p *Pair) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("cache pair has %d elements, want 2", len(raw))
	}
	if err := json.Unmarshal(raw[0], &p.Hash); err != nil {
		return fmt.Errorf("cache pair hash: %w", err)
	}
	if err := json.Unmarshal(raw[1], &p.Entry); err != nil {
		return fmt.Errorf("cache pair entry: %w", err)
	}
	return nil
}

// Storage loads and persists the whole table.
type Storage interface {
	Load() ([]Pair, error)
	Persist(pairs []Pair) error
	// Location describes where the table lives, for display.
	Location() string
}

// StatusChecker reports how many confirmations a record has.
type StatusChecker interface {
	Confirmations(ctx context.Context, id string) (int64, error)
}

// Cache is the in-memory dedup table backed by a Storage. It is safe for
// concurrent use; mutation and persistence share one lock.
type Cache struct {
	mu      sync.Mutex
	storage Storage
	order   []string
	entries map[string]Entry
	logger  *logging.Logger
}

// New loads the table from storage. A missing or unreadable table yields
// an empty cache.
func New(storage Storage) *Cache {
	c := &Cache{
		storage: storage,
		entries: make(map[string]Entry),
		logger:  logging.Get("cache"),
	}

	pairs, err := storage.Load()
	if err != nil {
		c.logger.Warn("ignoring unreadable cache", "location", storage.Location(), "error", err)
		return c
	}
	for _, p := range pairs {
		c.setLocked(p.Hash, p.Entry)
	}
	c.logger.Debug("cache loaded", "location", storage.Location(), "entries", len(c.order))
	return c
}

// Location returns the storage location.
func (c *Cache) Location() string {
	return c.storage.Location()
}

// Has reports whether hash has an entry.
func (c *Cache) Has(hash string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[hash]
	return ok
}

// Get returns the entry for hash.
func (c *Cache) Get(hash string) (Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[hash]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

// Set adds or replaces the entry for hash. Replacing keeps the original
// insertion position.
func (c *Cache) Set(hash string, e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(hash, e)
}

func (c *Cache) setLocked(hash string, e Entry) {
	if _, ok := c.entries[hash]; !ok {
		c.order = append(c.order, hash)
	}
	c.entries[hash] = e
}

// Delete removes the entry for hash.
func (c *Cache) Delete(hash string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[hash]; !ok {
		return
	}
	delete(c.entries, hash)
	for i, h := range c.order {
		if h == hash {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// Entries returns the table in insertion order.
func (c *Cache) Entries() []Pair {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Cache) snapshotLocked() []Pair {
	out := make([]Pair, len(c.order))
	for i, h := range c.order {
		out[i] = Pair{Hash: h, Entry: c.entries[h]}
	}
	return out
}

// Stats counts entries by confirmation state.
func (c *Cache) Stats() (confirmed, pending int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if e.Confirmed {
			confirmed++
		} else {
			pending++
		}
	}
	return confirmed, pending
}

// Clear removes every entry. Call Save to persist.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order = nil
	c.entries = make(map[string]Entry)
}

// Save persists the whole table.
func (c *Cache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.storage.Persist(c.snapshotLocked()); err != nil {
		return fmt.Errorf("saving cache: %w", err)
	}
	c.logger.Debug("cache saved", "location", c.storage.Location(), "entries", len(c.order))
	return nil
}

// Close releases the storage if it holds resources.
func (c *Cache) Close() error {
	if closer, ok := c.storage.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// Confirm returns the entry for hash, first asking the network whether an
// unconfirmed entry has since been mined. Lookup failures leave the entry
// unconfirmed; they are never returned.
func (c *Cache) Confirm(ctx context.Context, hash string, checker StatusChecker) (Entry, bool) {
	e, err := c.Get(hash)
	if err != nil {
		return Entry{}, false
	}
	if e.Confirmed {
		return e, true
	}

	n, err := checker.Confirmations(ctx, e.ID)
	if err != nil {
		c.logger.Debug("confirmation lookup failed", "id", e.ID, "error", err)
		return e, true
	}
	if n > 0 {
		e.Confirmed = true
		c.Set(hash, e)
		c.logger.Debug("entry confirmed", "id", e.ID, "confirmations", n)
	}
	return e, true
}

// FileName returns the cache file name for a gateway. Local development
// gateways get their own file so test deploys never pollute the
// production table.
func FileName(gateway string) string {
	if u, err := url.Parse(gateway); err == nil {
		switch u.Hostname() {
		case "localhost", "127.0.0.1":
			return "cached-arlocal.json"
		}
	}
	return "cached.json"
}
