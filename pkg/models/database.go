package models

import "time"

// Track is the caller-facing view of a stored recording.
type Track struct {
	ReferenceID string    `json:"reference_id"` // UUID unless supplied by the caller
	Title       string    `json:"title"`
	Artist      string    `json:"artist"`
	DurationMs  int64     `json:"duration_ms"`
	Length      int       `json:"length"` // number of sub-fingerprints
	CreatedAt   time.Time `json:"created_at"`
}
