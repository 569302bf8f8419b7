//go:build !js && !wasm

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/himanishpuri/SubPrint/pkg/subprint/planner"
	"github.com/himanishpuri/SubPrint/pkg/subprint/signature"
	"github.com/himanishpuri/SubPrint/pkg/utils"
)

const DefaultDBFile = "subprint.sqlite3"

// DBClient keeps tracks and their hash postings in SQLite. It serves as both
// the record store and the inverted index of the planner.
type DBClient struct {
	DB *gorm.DB
	db *sql.DB
}

var (
	_ planner.IndexProbe      = (*DBClient)(nil)
	_ planner.SignatureLoader = (*DBClient)(nil)
)

func NewDBClient() (*DBClient, error) {
	dbPath := os.Getenv("SUBPRINT_DB_PATH")
	if dbPath == "" {
		dbPath = DefaultDBFile
	}
	return NewDBClientWithPath(dbPath)
}

func NewDBClientWithPath(dbPath string) (*DBClient, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(sqlite.Open(dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}

	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Track{}, &HashTerm{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &DBClient{DB: db, db: sqlDB}, nil
}

func (c *DBClient) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// StoreTrack persists sig with its postings and returns the stored row. A
// reference id is generated when meta has none.
func (c *DBClient) StoreTrack(ctx context.Context, meta TrackMeta, sig *signature.Signature) (*Track, error) {
	if c == nil || c.DB == nil {
		return nil, ErrNilClient
	}
	if meta.ReferenceID == "" {
		meta.ReferenceID = utils.GenerateUUID()
	}

	track, err := encodeTrack(meta, sig)
	if err != nil {
		return nil, err
	}

	err = c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(track).Error; err != nil {
			return fmt.Errorf("creating track: %w", err)
		}

		terms := Terms(sig)
		if len(terms) == 0 {
			return nil
		}
		rows := make([]HashTerm, len(terms))
		for i, h := range terms {
			rows[i] = HashTerm{Hash: h, TrackID: track.ID}
		}
		if err := tx.CreateInBatches(rows, 500).Error; err != nil {
			return fmt.Errorf("batch insert hash terms: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return track, nil
}

// Query ranks tracks by how many of terms they hold, ties by ascending id.
func (c *DBClient) Query(ctx context.Context, terms []uint32, limit int) ([]planner.RankedDoc, error) {
	if c == nil || c.DB == nil {
		return nil, ErrNilClient
	}
	if len(terms) == 0 || limit <= 0 {
		return []planner.RankedDoc{}, nil
	}

	args := make([]interface{}, len(terms))
	for i, h := range terms {
		args[i] = h
	}

	var rows []struct {
		TrackID int64
		Hits    int
	}
	err := c.DB.WithContext(ctx).
		Model(&HashTerm{}).
		Select("track_id, COUNT(*) AS hits").
		Where("hash IN ?", args).
		Group("track_id").
		Order("hits DESC, track_id ASC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("querying hash terms: %w", err)
	}

	docs := make([]planner.RankedDoc, len(rows))
	for i, r := range rows {
		docs[i] = planner.RankedDoc{ID: r.TrackID, Hits: r.Hits}
	}
	return docs, nil
}

// LoadByIDs returns signatures in the order of ids, skipping unknown ids.
func (c *DBClient) LoadByIDs(ctx context.Context, ids []int64) ([]*signature.Signature, error) {
	if c == nil || c.DB == nil {
		return nil, ErrNilClient
	}
	if len(ids) == 0 {
		return []*signature.Signature{}, nil
	}

	var rows []Track
	if err := c.DB.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("loading tracks: %w", err)
	}
	return orderSignatures(ids, rows)
}

func orderSignatures(ids []int64, rows []Track) ([]*signature.Signature, error) {
	byID := make(map[int64]*Track, len(rows))
	for i := range rows {
		byID[rows[i].ID] = &rows[i]
	}
	out := make([]*signature.Signature, 0, len(ids))
	for _, id := range ids {
		t, ok := byID[id]
		if !ok {
			continue
		}
		sig, err := t.Signature()
		if err != nil {
			return nil, err
		}
		out = append(out, sig)
	}
	return out, nil
}

// GetTrack looks up a track by reference id, without its signature buffers.
func (c *DBClient) GetTrack(ctx context.Context, referenceID string) (*Track, error) {
	if c == nil || c.DB == nil {
		return nil, ErrNilClient
	}
	var t Track
	err := c.DB.WithContext(ctx).
		Omit("hashes", "reliabilities", "lookup_index").
		Where("reference_id = ?", referenceID).
		First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, referenceID)
	}
	if err != nil {
		return nil, fmt.Errorf("querying track: %w", err)
	}
	return &t, nil
}

// GetTrackSignature loads the full signature of one track.
func (c *DBClient) GetTrackSignature(ctx context.Context, referenceID string) (*signature.Signature, error) {
	if c == nil || c.DB == nil {
		return nil, ErrNilClient
	}
	var t Track
	err := c.DB.WithContext(ctx).Where("reference_id = ?", referenceID).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, referenceID)
	}
	if err != nil {
		return nil, fmt.Errorf("querying track: %w", err)
	}
	return t.Signature()
}

func (c *DBClient) ListTracks(ctx context.Context) ([]Track, error) {
	if c == nil || c.DB == nil {
		return nil, ErrNilClient
	}
	var tracks []Track
	err := c.DB.WithContext(ctx).
		Omit("hashes", "reliabilities", "lookup_index").
		Order("id ASC").
		Find(&tracks).Error
	if err != nil {
		return nil, fmt.Errorf("listing tracks: %w", err)
	}
	return tracks, nil
}

// DeleteTrack removes a track and its postings.
func (c *DBClient) DeleteTrack(ctx context.Context, referenceID string) error {
	if c == nil || c.DB == nil {
		return ErrNilClient
	}
	return c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var t Track
		err := tx.Select("id").Where("reference_id = ?", referenceID).First(&t).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, referenceID)
		}
		if err != nil {
			return err
		}
		if err := tx.Where("track_id = ?", t.ID).Delete(&HashTerm{}).Error; err != nil {
			return err
		}
		return tx.Delete(&Track{}, t.ID).Error
	})
}
