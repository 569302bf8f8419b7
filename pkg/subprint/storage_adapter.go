package subprint

import (
	"context"
	"errors"
	"fmt"

	"github.com/himanishpuri/SubPrint/pkg/subprint/planner"
	"github.com/himanishpuri/SubPrint/pkg/subprint/signature"
	"github.com/himanishpuri/SubPrint/pkg/subprint/storage"
)

var (
	_ Storage = (*storage.DBClient)(nil)
	_ Storage = (*storage.PostgresClient)(nil)
	_ Storage = (*indexedStorage)(nil)
)

// NewSQLiteStorage creates a new SQLite storage backend.
func NewSQLiteStorage(dbPath string) (Storage, error) {
	return storage.NewDBClientWithPath(dbPath)
}

// NewPostgresStorage connects to PostgreSQL and creates the tables if needed.
func NewPostgresStorage(ctx context.Context, dsn string) (Storage, error) {
	return storage.NewPostgresClient(ctx, dsn)
}

// termIndex is the write side of an inverted index; storage.BadgerIndex
// implements it.
type termIndex interface {
	planner.IndexProbe
	AddTerms(trackID int64, terms []uint32) error
	RemoveTerms(trackID int64, terms []uint32) error
	Close() error
}

var _ termIndex = (*storage.BadgerIndex)(nil)

// indexedStorage answers term queries from a badger index and keeps it in
// step with the record store on add and delete.
type indexedStorage struct {
	Storage
	index termIndex
}

// NewBadgerIndexedStorage wraps base with a badger term index in dir, or in
// memory when dir is empty.
func NewBadgerIndexedStorage(base Storage, dir string) (Storage, error) {
	idx, err := storage.OpenBadgerIndex(dir)
	if err != nil {
		return nil, err
	}
	return &indexedStorage{Storage: base, index: idx}, nil
}

func (s *indexedStorage) Query(ctx context.Context, terms []uint32, limit int) ([]planner.RankedDoc, error) {
	return s.index.Query(ctx, terms, limit)
}

func (s *indexedStorage) StoreTrack(ctx context.Context, meta storage.TrackMeta, sig *signature.Signature) (*storage.Track, error) {
	t, err := s.Storage.StoreTrack(ctx, meta, sig)
	if err != nil {
		return nil, err
	}
	if err := s.index.AddTerms(t.ID, storage.Terms(sig)); err != nil {
		err = fmt.Errorf("indexing track terms: %w", err)
		// Rollback
		if rbErr := s.Storage.DeleteTrack(ctx, t.ReferenceID); rbErr != nil {
			err = errors.Join(err, fmt.Errorf("removing track %s after failed indexing: %w", t.ReferenceID, rbErr))
		}
		return nil, err
	}
	return t, nil
}

func (s *indexedStorage) DeleteTrack(ctx context.Context, referenceID string) error {
	sig, err := s.Storage.GetTrackSignature(ctx, referenceID)
	if err != nil {
		return err
	}
	if err := s.Storage.DeleteTrack(ctx, referenceID); err != nil {
		return err
	}
	return s.index.RemoveTerms(sig.TrackID, storage.Terms(sig))
}

// Reindex loads the terms of every stored track into the badger index.
func (s *indexedStorage) Reindex(ctx context.Context) (int, error) {
	tracks, err := s.Storage.ListTracks(ctx)
	if err != nil {
		return 0, err
	}
	for _, t := range tracks {
		sig, err := s.Storage.GetTrackSignature(ctx, t.ReferenceID)
		if err != nil {
			return 0, fmt.Errorf("loading track %s: %w", t.ReferenceID, err)
		}
		if err := s.index.AddTerms(t.ID, storage.Terms(sig)); err != nil {
			return 0, fmt.Errorf("indexing track %s: %w", t.ReferenceID, err)
		}
	}
	return len(tracks), nil
}

func (s *indexedStorage) Close() error {
	return errors.Join(s.index.Close(), s.Storage.Close())
}
