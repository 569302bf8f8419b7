package storage

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"

	badger "github.com/dgraph-io/badger/v3"

	"github.com/himanishpuri/SubPrint/pkg/subprint/planner"
)

const termKeyLen = 12

// BadgerIndex is an inverted index in a badger key-value store. Each posting
// is an empty-valued key of hash (big endian) followed by the track id, so a
// prefix scan over a hash yields its tracks.
type BadgerIndex struct {
	db *badger.DB
}

var _ planner.IndexProbe = (*BadgerIndex)(nil)

// OpenBadgerIndex opens or creates the index in dir. An empty dir keeps the
// index in memory.
func OpenBadgerIndex(dir string) (*BadgerIndex, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger index: %w", err)
	}
	return &BadgerIndex{db: db}, nil
}

func (b *BadgerIndex) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

func termKey(hash uint32, trackID int64) []byte {
	key := make([]byte, termKeyLen)
	binary.BigEndian.PutUint32(key, hash)
	binary.BigEndian.PutUint64(key[4:], uint64(trackID))
	return key
}

// AddTerms writes one posting per term for trackID.
func (b *BadgerIndex) AddTerms(trackID int64, terms []uint32) error {
	wb := b.db.NewWriteBatch()
	defer wb.Cancel()

	for _, h := range terms {
		if err := wb.Set(termKey(h, trackID), nil); err != nil {
			return fmt.Errorf("writing posting: %w", err)
		}
	}
	return wb.Flush()
}

// RemoveTerms deletes the postings of trackID for terms.
func (b *BadgerIndex) RemoveTerms(trackID int64, terms []uint32) error {
	wb := b.db.NewWriteBatch()
	defer wb.Cancel()

	for _, h := range terms {
		if err := wb.Delete(termKey(h, trackID)); err != nil {
			return fmt.Errorf("deleting posting: %w", err)
		}
	}
	return wb.Flush()
}

// Query ranks tracks by how many of terms they hold, ties by ascending id.
func (b *BadgerIndex) Query(ctx context.Context, terms []uint32, limit int) ([]planner.RankedDoc, error) {
	if len(terms) == 0 || limit <= 0 {
		return []planner.RankedDoc{}, nil
	}

	hits := make(map[int64]int)
	seen := make(map[uint32]struct{}, len(terms))
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := make([]byte, 4)
		for _, h := range terms {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, dup := seen[h]; dup {
				continue
			}
			seen[h] = struct{}{}

			binary.BigEndian.PutUint32(prefix, h)
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				key := it.Item().Key()
				if len(key) != termKeyLen {
					continue
				}
				hits[int64(binary.BigEndian.Uint64(key[4:]))]++
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("querying badger index: %w", err)
	}

	return rank(hits, limit), nil
}

func rank(hits map[int64]int, limit int) []planner.RankedDoc {
	docs := make([]planner.RankedDoc, 0, len(hits))
	for id, n := range hits {
		docs = append(docs, planner.RankedDoc{ID: id, Hits: n})
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].Hits != docs[j].Hits {
			return docs[i].Hits > docs[j].Hits
		}
		return docs[i].ID < docs[j].ID
	})
	if len(docs) > limit {
		docs = docs[:limit]
	}
	return docs
}
