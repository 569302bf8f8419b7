package models

import "time"

// MatchResult is one matched track with its best alignment.
type MatchResult struct {
	ReferenceID   string  `json:"reference_id"`
	Title         string  `json:"title"`
	Artist        string  `json:"artist"`
	BER           int     `json:"ber"`       // differing bits over one block
	OffsetMs      int64   `json:"offset_ms"` // where the query starts inside the track
	PlanID        int     `json:"plan_id"`
	Iteration     int     `json:"iteration"`
	Variant       bool    `json:"variant"`         // found through a bit-flip variant
	MatchListRank int     `json:"match_list_rank"` // 0-based rank in the index answer
	IndexHits     int     `json:"index_hits"`      // query terms the index matched
	Confidence    float64 `json:"confidence"`      // 0-100
}

// PlanSummary reports how one search plan ran.
type PlanSummary struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Iterations int    `json:"iterations"`
	Candidates int    `json:"candidates"`
	Verified   int    `json:"verified"`
	Hits       int    `json:"hits"`
	BestBER    int    `json:"best_ber"`
	Cancelled  bool   `json:"cancelled"`
	Error      string `json:"error,omitempty"`
}

// Timings is the wall time spent per search phase.
type Timings struct {
	Probe  time.Duration `json:"probe"`
	Query  time.Duration `json:"query"`
	Load   time.Duration `json:"load"`
	Verify time.Duration `json:"verify"`
	Total  time.Duration `json:"total"`
}

// MatchReport is the full answer to a match request. No results is a valid
// answer, not an error.
type MatchReport struct {
	Results   []MatchResult `json:"results"`
	Plans     []PlanSummary `json:"plans"`
	Timings   Timings       `json:"timings"`
	Cancelled bool          `json:"cancelled"`
}

// Best returns the lowest-BER result.
func (r *MatchReport) Best() (MatchResult, bool) {
	if r == nil || len(r.Results) == 0 {
		return MatchResult{}, false
	}
	return r.Results[0], true
}
