package cache

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChecker struct {
	confirmations map[string]int64
	err           error
	calls         int
}

func (f *fakeChecker) Confirmations(_ context.Context, id string) (int64, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.confirmations[id], nil
}

func TestCacheSetGetDelete(t *testing.T) {
	c := New(NewMemoryStorage())

	assert.False(t, c.Has("h1"))
	_, err := c.Get("h1")
	assert.ErrorIs(t, err, ErrNotFound)

	c.Set("h1", Entry{ID: "id1"})
	c.Set("h2", Entry{ID: "id2", Confirmed: true})
	c.Set("h1", Entry{ID: "id1", Confirmed: true})

	e, err := c.Get("h1")
	require.NoError(t, err)
	assert.Equal(t, Entry{ID: "id1", Confirmed: true}, e)
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, "h1", c.Entries()[0].Hash, "replacing keeps insertion position")

	c.Delete("h1")
	c.Delete("missing")
	assert.Equal(t, []Pair{{Hash: "h2", Entry: Entry{ID: "id2", Confirmed: true}}}, c.Entries())

	confirmed, pending := c.Stats()
	assert.Equal(t, 1, confirmed)
	assert.Equal(t, 0, pending)

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestPairJSONShape(t *testing.T) {
	data, err := json.Marshal([]Pair{{Hash: "abc", Entry: Entry{ID: "xyz", Confirmed: true}}})
	require.NoError(t, err)
	assert.JSONEq(t, `[["abc",{"id":"xyz","confirmed":true}]]`, string(data))

	var pairs []Pair
	require.NoError(t, json.Unmarshal([]byte(`[["h",{"id":"i","confirmed":false}]]`), &pairs))
	assert.Equal(t, []Pair{{Hash: "h", Entry: Entry{ID: "i"}}}, pairs)

	assert.Error(t, json.Unmarshal([]byte(`[["only-one"]]`), &pairs))
}

func TestJSONFileStorageRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cached.json")

	c := New(NewJSONFileStorage(path))
	assert.Equal(t, 0, c.Len())
	c.Set("h1", Entry{ID: "id1"})
	c.Set("h2", Entry{ID: "id2", Confirmed: true})
	require.NoError(t, c.Save())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `[["h1",{"id":"id1","confirmed":false}],["h2",{"id":"id2","confirmed":true}]]`, string(raw))

	reloaded := New(NewJSONFileStorage(path))
	assert.Equal(t, c.Entries(), reloaded.Entries())
}

func TestJSONFileStorageCorruptFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cached.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	c := New(NewJSONFileStorage(path))
	assert.Equal(t, 0, c.Len())

	c.Set("h", Entry{ID: "i"})
	require.NoError(t, c.Save())
	assert.Equal(t, 1, New(NewJSONFileStorage(path)).Len())
}

func TestJSONFileStorageEmptyTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cached.json")
	c := New(NewJSONFileStorage(path))
	require.NoError(t, c.Save())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(raw))
}

func TestBadgerStorageRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache.db")

	store, err := OpenBadgerStorage(dir)
	require.NoError(t, err)
	c := New(store)
	for _, h := range []string{"zz", "aa", "mm"} {
		c.Set(h, Entry{ID: "id-" + h})
	}
	c.Set("aa", Entry{ID: "id-aa", Confirmed: true})
	require.NoError(t, c.Save())

	c.Delete("mm")
	require.NoError(t, c.Save())
	require.NoError(t, c.Close())

	store, err = OpenBadgerStorage(dir)
	require.NoError(t, err)
	defer store.Close()

	reloaded := New(store)
	assert.Equal(t, []Pair{
		{Hash: "zz", Entry: Entry{ID: "id-zz"}},
		{Hash: "aa", Entry: Entry{ID: "id-aa", Confirmed: true}},
	}, reloaded.Entries())
}

func TestOpenSelectsBackendAndFile(t *testing.T) {
	dir := t.TempDir()

	c, err := Open(BackendJSON, dir, "http://localhost:1984")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "cached-arlocal.json"), c.Location())

	c, err = Open("", dir, "https://arweave.net")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "cached.json"), c.Location())

	c, err = Open(BackendBadger, dir, "https://arweave.net")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "cached.db"), c.Location())
	require.NoError(t, c.Close())

	_, err = Open("redis", dir, "https://arweave.net")
	assert.Error(t, err)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "cached.json", FileName("https://arweave.net"))
	assert.Equal(t, "cached-arlocal.json", FileName("http://localhost:1984"))
	assert.Equal(t, "cached-arlocal.json", FileName("http://127.0.0.1:1984"))
	assert.Equal(t, "cached.json", FileName("http://localhost.example.com"))
}

func TestConfirmFlipsEntry(t *testing.T) {
	store := NewMemoryStorage(Pair{Hash: "h", Entry: Entry{ID: "tx1"}})
	c := New(store)
	checker := &fakeChecker{confirmations: map[string]int64{"tx1": 3}}

	e, ok := c.Confirm(context.Background(), "h", checker)
	require.True(t, ok)
	assert.True(t, e.Confirmed)

	stored, _ := c.Get("h")
	assert.True(t, stored.Confirmed)

	// Confirmed entries are not looked up again.
	_, _ = c.Confirm(context.Background(), "h", checker)
	assert.Equal(t, 1, checker.calls)
}

func TestConfirmPendingStaysUnconfirmed(t *testing.T) {
	c := New(NewMemoryStorage(Pair{Hash: "h", Entry: Entry{ID: "tx1"}}))

	e, ok := c.Confirm(context.Background(), "h", &fakeChecker{confirmations: map[string]int64{}})
	require.True(t, ok)
	assert.False(t, e.Confirmed)
}

func TestConfirmSwallowsNetworkErrors(t *testing.T) {
	c := New(NewMemoryStorage(Pair{Hash: "h", Entry: Entry{ID: "tx1"}}))

	e, ok := c.Confirm(context.Background(), "h", &fakeChecker{err: errors.New("connection reset")})
	require.True(t, ok)
	assert.False(t, e.Confirmed)
	assert.Equal(t, "tx1", e.ID)
}

func TestConfirmMissing(t *testing.T) {
	c := New(NewMemoryStorage())
	_, ok := c.Confirm(context.Background(), "nope", &fakeChecker{})
	assert.False(t, ok)
}

func TestConcurrentSetAndSave(t *testing.T) {
	store := NewMemoryStorage()
	c := New(store)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Set(string(rune('a'+i)), Entry{ID: "x"})
			assert.NoError(t, c.Save())
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, c.Len())
	assert.Equal(t, 20, store.Saves())
	assert.Equal(t, 20, New(store).Len())
}
