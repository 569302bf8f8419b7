package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/himanishpuri/SubPrint/pkg/subprint/planner"
	"github.com/himanishpuri/SubPrint/pkg/subprint/signature"
	"github.com/himanishpuri/SubPrint/pkg/utils"
)

// PostgresClient is the PostgreSQL flavour of DBClient, for deployments
// where the corpus outgrows a single SQLite file.
type PostgresClient struct {
	db *sql.DB
}

var (
	_ planner.IndexProbe      = (*PostgresClient)(nil)
	_ planner.SignatureLoader = (*PostgresClient)(nil)
)

func NewPostgresClient(ctx context.Context, dsn string) (*PostgresClient, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("error connecting to PostgreSQL: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error pinging PostgreSQL: %w", err)
	}
	if err := createTables(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating tables: %w", err)
	}
	return &PostgresClient{db: db}, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tracks (
			id BIGSERIAL PRIMARY KEY,
			reference_id TEXT NOT NULL UNIQUE,
			title TEXT NOT NULL,
			artist TEXT NOT NULL,
			duration_ms BIGINT NOT NULL,
			length INTEGER NOT NULL,
			hashes BYTEA NOT NULL,
			reliabilities BYTEA,
			lookup_index BYTEA,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS hash_terms (
			hash BIGINT NOT NULL,
			track_id BIGINT NOT NULL REFERENCES tracks(id) ON DELETE CASCADE,
			PRIMARY KEY (hash, track_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_hash_terms_track ON hash_terms (track_id)`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (c *PostgresClient) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

func (c *PostgresClient) StoreTrack(ctx context.Context, meta TrackMeta, sig *signature.Signature) (*Track, error) {
	if c == nil || c.db == nil {
		return nil, ErrNilClient
	}
	if meta.ReferenceID == "" {
		meta.ReferenceID = utils.GenerateUUID()
	}
	track, err := encodeTrack(meta, sig)
	if err != nil {
		return nil, err
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO tracks (reference_id, title, artist, duration_ms, length, hashes, reliabilities, lookup_index)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`,
		track.ReferenceID, track.Title, track.Artist, track.DurationMs, track.Length,
		track.Hashes, track.Reliabilities, track.LookupIndex,
	).Scan(&track.ID, &track.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating track: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO hash_terms (hash, track_id) VALUES ($1, $2)
		ON CONFLICT (hash, track_id) DO NOTHING`)
	if err != nil {
		return nil, fmt.Errorf("error preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, h := range Terms(sig) {
		if _, err := stmt.ExecContext(ctx, int64(h), track.ID); err != nil {
			return nil, fmt.Errorf("inserting hash term: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing track: %w", err)
	}
	return track, nil
}

func (c *PostgresClient) Query(ctx context.Context, terms []uint32, limit int) ([]planner.RankedDoc, error) {
	if c == nil || c.db == nil {
		return nil, ErrNilClient
	}
	if len(terms) == 0 || limit <= 0 {
		return []planner.RankedDoc{}, nil
	}

	hashes := make([]int64, len(terms))
	for i, h := range terms {
		hashes[i] = int64(h)
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT track_id, COUNT(*) AS hits
		FROM hash_terms
		WHERE hash = ANY($1)
		GROUP BY track_id
		ORDER BY hits DESC, track_id ASC
		LIMIT $2`, hashes, limit)
	if err != nil {
		return nil, fmt.Errorf("querying hash terms: %w", err)
	}
	defer rows.Close()

	docs := make([]planner.RankedDoc, 0, limit)
	for rows.Next() {
		var d planner.RankedDoc
		if err := rows.Scan(&d.ID, &d.Hits); err != nil {
			return nil, fmt.Errorf("scanning ranked doc: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (c *PostgresClient) LoadByIDs(ctx context.Context, ids []int64) ([]*signature.Signature, error) {
	if c == nil || c.db == nil {
		return nil, ErrNilClient
	}
	if len(ids) == 0 {
		return []*signature.Signature{}, nil
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT id, reference_id, duration_ms, hashes, reliabilities, lookup_index
		FROM tracks WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("loading tracks: %w", err)
	}
	defer rows.Close()

	var tracks []Track
	for rows.Next() {
		var t Track
		if err := rows.Scan(&t.ID, &t.ReferenceID, &t.DurationMs, &t.Hashes, &t.Reliabilities, &t.LookupIndex); err != nil {
			return nil, fmt.Errorf("scanning track: %w", err)
		}
		tracks = append(tracks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orderSignatures(ids, tracks)
}

const trackColumns = `id, reference_id, title, artist, duration_ms, length, created_at`

func scanTrack(s interface{ Scan(...any) error }) (Track, error) {
	var t Track
	err := s.Scan(&t.ID, &t.ReferenceID, &t.Title, &t.Artist, &t.DurationMs, &t.Length, &t.CreatedAt)
	return t, err
}

func (c *PostgresClient) GetTrack(ctx context.Context, referenceID string) (*Track, error) {
	if c == nil || c.db == nil {
		return nil, ErrNilClient
	}
	row := c.db.QueryRowContext(ctx, `SELECT `+trackColumns+` FROM tracks WHERE reference_id = $1`, referenceID)
	t, err := scanTrack(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, referenceID)
	}
	if err != nil {
		return nil, fmt.Errorf("querying track: %w", err)
	}
	return &t, nil
}

func (c *PostgresClient) GetTrackSignature(ctx context.Context, referenceID string) (*signature.Signature, error) {
	if c == nil || c.db == nil {
		return nil, ErrNilClient
	}
	var t Track
	err := c.db.QueryRowContext(ctx, `
		SELECT id, reference_id, duration_ms, hashes, reliabilities, lookup_index
		FROM tracks WHERE reference_id = $1`, referenceID,
	).Scan(&t.ID, &t.ReferenceID, &t.DurationMs, &t.Hashes, &t.Reliabilities, &t.LookupIndex)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, referenceID)
	}
	if err != nil {
		return nil, fmt.Errorf("querying track: %w", err)
	}
	return t.Signature()
}

func (c *PostgresClient) ListTracks(ctx context.Context) ([]Track, error) {
	if c == nil || c.db == nil {
		return nil, ErrNilClient
	}
	rows, err := c.db.QueryContext(ctx, `SELECT `+trackColumns+` FROM tracks ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing tracks: %w", err)
	}
	defer rows.Close()

	var tracks []Track
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning track: %w", err)
		}
		tracks = append(tracks, t)
	}
	return tracks, rows.Err()
}

// DeleteTrack removes a track; its postings go with it by cascade.
func (c *PostgresClient) DeleteTrack(ctx context.Context, referenceID string) error {
	if c == nil || c.db == nil {
		return ErrNilClient
	}
	res, err := c.db.ExecContext(ctx, `DELETE FROM tracks WHERE reference_id = $1`, referenceID)
	if err != nil {
		return fmt.Errorf("deleting track: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, referenceID)
	}
	return nil
}
