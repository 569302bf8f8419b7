package main

import (
	"encoding/base64"
	"fmt"

	"github.com/himanishpuri/SubPrint/pkg/models"
	"github.com/himanishpuri/SubPrint/pkg/subprint/signature"
)

// Query size limits, in sub-fingerprints
const (
	// MaxSubFingerprintsHardLimit is roughly ten minutes of audio.
	MaxSubFingerprintsHardLimit = 50000

	// SubFingerprintWarningThreshold triggers logging for large queries
	SubFingerprintWarningThreshold = 10000
)

// MatchSignatureRequest is the request body for POST /api/match
type MatchSignatureRequest struct {
	// Hashes is the base64 of the packed little-endian u32 sub-fingerprints.
	Hashes string `json:"hashes"`

	// Reliabilities is the base64 of the flat 32-bytes-per-hash reliability
	// buffer. Optional.
	Reliabilities string `json:"reliabilities,omitempty"`
}

// Validate checks sizes before anything is decoded.
func (r *MatchSignatureRequest) Validate() error {
	if r.Hashes == "" {
		return fmt.Errorf("hashes cannot be empty")
	}
	n := base64.StdEncoding.DecodedLen(len(r.Hashes)) / 4
	if n > MaxSubFingerprintsHardLimit {
		return fmt.Errorf("too many sub-fingerprints: %d (maximum: %d)", n, MaxSubFingerprintsHardLimit)
	}
	if r.Reliabilities != "" {
		limit := (MaxSubFingerprintsHardLimit + 1) * signature.ReliabilitySize
		if base64.StdEncoding.DecodedLen(len(r.Reliabilities)) > limit {
			return fmt.Errorf("reliability buffer too large")
		}
	}
	return nil
}

// approxLen estimates the number of sub-fingerprints in the request.
func (r *MatchSignatureRequest) approxLen() int {
	return base64.StdEncoding.DecodedLen(len(r.Hashes)) / 4
}

// MatchResponse is the response for both match endpoints
type MatchResponse struct {
	Matches   []models.MatchResult `json:"matches"`
	Count     int                  `json:"count"`
	Plans     []models.PlanSummary `json:"plans"`
	Timings   models.Timings       `json:"timings"`
	Cancelled bool                 `json:"cancelled"`
}

func newMatchResponse(report *models.MatchReport) MatchResponse {
	return MatchResponse{
		Matches:   report.Results,
		Count:     len(report.Results),
		Plans:     report.Plans,
		Timings:   report.Timings,
		Cancelled: report.Cancelled,
	}
}

// AddTrackResponse is the response for successful track addition
type AddTrackResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
	Title   string `json:"title"`
	Artist  string `json:"artist"`
}

// ListTracksResponse is the response for GET /api/tracks
type ListTracksResponse struct {
	Tracks []models.Track `json:"tracks"`
	Count  int            `json:"count"`
}

// DeleteTrackResponse is the response for DELETE /api/tracks/{id}
type DeleteTrackResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// MetricsResponse provides server health and database metrics
type MetricsResponse struct {
	Status              string `json:"status"`
	Backend             string `json:"backend"`
	TrackCount          int    `json:"track_count"`
	SubFingerprintCount int64  `json:"sub_fingerprint_count"`
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}
