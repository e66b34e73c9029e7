package cache

import (
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
)

var keyPrefix = []byte("dedup/")

// badgerValue is the stored form of an entry. Seq preserves insertion
// order across loads.
type badgerValue struct {
	Seq       int    `cbor:"1,keyasint"`
	ID        string `cbor:"2,keyasint"`
	Confirmed bool   `cbor:"3,keyasint"`
}

var cborEnc = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("cache: cbor encoder: " + err.Error())
	}
	return em
}()

// BadgerStorage keeps the table in an embedded badger database, one key
// per fingerprint.
type BadgerStorage struct {
	dir string
	db  *badger.DB
}

// OpenBadgerStorage opens or creates a database in dir.
func OpenBadgerStorage(dir string) (*BadgerStorage, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}
	return &BadgerStorage{dir: dir, db: db}, nil
}

func (s *BadgerStorage) Location() string {
	return s.dir
}

func (s *BadgerStorage) Close() error {
	return s.db.Close()
}

func (s *BadgerStorage) Load() ([]Pair, error) {
	type seqPair struct {
		seq  int
		pair Pair
	}
	var rows []seqPair

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(keyPrefix); it.ValidForPrefix(keyPrefix); it.Next() {
			item := it.Item()
			hash := string(item.Key()[len(keyPrefix):])

			var v badgerValue
			err := item.Value(func(val []byte) error {
				return cbor.Unmarshal(val, &v)
			})
			if err != nil {
				return fmt.Errorf("decoding entry %s: %w", hash, err)
			}
			rows = append(rows, seqPair{seq: v.Seq, pair: Pair{Hash: hash, Entry: Entry{ID: v.ID, Confirmed: v.Confirmed}}})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
	pairs := make([]Pair, len(rows))
	for i, r := range rows {
		pairs[i] = r.pair
	}
	return pairs, nil
}

// Persist replaces the stored table with pairs.
func (s *BadgerStorage) Persist(pairs []Pair) error {
	if err := s.db.DropPrefix(keyPrefix); err != nil {
		return fmt.Errorf("clearing cache database: %w", err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for i, p := range pairs {
		value, err := cborEnc.Marshal(badgerValue{Seq: i, ID: p.Entry.ID, Confirmed: p.Entry.Confirmed})
		if err != nil {
			return fmt.Errorf("encoding entry %s: %w", p.Hash, err)
		}
		key := append(append([]byte(nil), keyPrefix...), p.Hash...)
		if err := wb.Set(key, value); err != nil {
			return err
		}
	}
	return wb.Flush()
}
