package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/himanishpuri/SubPrint/pkg/subprint/hamming"
	"github.com/himanishpuri/SubPrint/pkg/subprint/signature"
)

var (
	ErrNotFound  = errors.New("track not found")
	ErrNilClient = errors.New("db client is nil")
)

// Track is one fingerprinted recording: metadata plus the packed signature.
type Track struct {
	ID          int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	ReferenceID string `gorm:"type:varchar(36);uniqueIndex" json:"reference_id"`
	Title       string `gorm:"index:idx_track_meta,priority:1" json:"title"`
	Artist      string `gorm:"index:idx_track_meta,priority:2" json:"artist"`
	DurationMs  int64  `json:"duration_ms"`
	Length      int    `json:"length"`

	Hashes        []byte `json:"-"`
	Reliabilities []byte `json:"-"`
	LookupIndex   []byte `json:"-"`

	CreatedAt time.Time `json:"created_at"`
}

// HashTerm is one inverted-index posting: a distinct hash held by a track.
type HashTerm struct {
	ID      uint   `gorm:"primaryKey;autoIncrement"`
	Hash    uint32 `gorm:"index:idx_hash"`
	TrackID int64  `gorm:"index:idx_track"`
}

// TrackMeta is what the caller supplies when storing a track.
type TrackMeta struct {
	ReferenceID string
	Title       string
	Artist      string
}

// Signature decodes the stored buffers. The lookup index is reused when
// present.
func (t *Track) Signature() (*signature.Signature, error) {
	sig, err := signature.FromBytes(t.Hashes, t.Reliabilities,
		signature.WithReference(t.ReferenceID, t.ID),
		signature.WithDuration(t.DurationMs),
		signature.WithIndexQuality(hamming.Lookup),
		signature.WithLookupIndex(t.LookupIndex),
	)
	if err != nil {
		return nil, fmt.Errorf("decoding track %d: %w", t.ID, err)
	}
	return sig, nil
}

// encodeTrack packs sig into a Track row. The lookup index is rebuilt with
// the Lookup quality window so stored indexes are uniform.
func encodeTrack(meta TrackMeta, sig *signature.Signature) (*Track, error) {
	indexed, err := signature.FromBytes(sig.HashBytes(), sig.ReliabilityBytes(),
		signature.WithIndexQuality(hamming.Lookup))
	if err != nil {
		return nil, err
	}
	lookup, err := indexed.LookupIndexBytes()
	if err != nil {
		return nil, fmt.Errorf("building lookup index: %w", err)
	}
	return &Track{
		ReferenceID:   meta.ReferenceID,
		Title:         meta.Title,
		Artist:        meta.Artist,
		DurationMs:    sig.DurationMs,
		Length:        sig.Len(),
		Hashes:        indexed.HashBytes(),
		Reliabilities: indexed.ReliabilityBytes(),
		LookupIndex:   lookup,
	}, nil
}

// Terms returns the distinct hashes of sig inside the Lookup window, in
// first-occurrence order. These are the postings written for a track.
func Terms(sig *signature.Signature) []uint32 {
	seen := make(map[uint32]struct{})
	var out []uint32
	for _, h := range sig.Hashes() {
		if !hamming.Lookup.Contains(h) {
			continue
		}
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out
}
