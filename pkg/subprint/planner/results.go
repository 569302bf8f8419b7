package planner

import (
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/himanishpuri/SubPrint/pkg/subprint/signature"
)

// Entry is one verified match.
type Entry struct {
	Reference string
	TrackID   int64
	BER       int
	// OffsetMs is where the query clip starts inside the candidate. It is
	// negative when the clip begins before the candidate does.
	OffsetMs int64

	PlanID    int
	Iteration int

	// QueryPosition is the start of the verified query block and
	// CandidatePosition the candidate sub-fingerprint aligned with it.
	QueryPosition     int
	CandidatePosition int
	Variant           bool

	// MatchListRank is the candidate's 0-based rank in the index answer and
	// IndexHits the number of query terms the index matched for it.
	MatchListRank int
	IndexHits     int
}

func (e Entry) key() string {
	if e.Reference != "" {
		return e.Reference
	}
	return "#" + strconv.FormatInt(e.TrackID, 10)
}

type slot struct {
	mu    sync.Mutex
	entry Entry
	set   bool
}

// ResultMap collects matches from concurrently running plans. Offers for the
// same candidate are serialized per key; different keys do not contend.
type ResultMap struct {
	m sync.Map
}

// Offer stores e unless an entry for the same candidate with an equal or
// lower BER already exists. It reports whether e was stored.
func (r *ResultMap) Offer(e Entry) bool {
	v, _ := r.m.LoadOrStore(e.key(), &slot{})
	s := v.(*slot)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set && s.entry.BER <= e.BER {
		return false
	}
	s.entry = e
	s.set = true
	return true
}

// Get returns the current entry for a candidate reference.
func (r *ResultMap) Get(reference string) (Entry, bool) {
	v, ok := r.m.Load(reference)
	if !ok {
		return Entry{}, false
	}
	s := v.(*slot)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entry, s.set
}

// Entries returns a snapshot ranked by ascending BER.
func (r *ResultMap) Entries() []Entry {
	var out []Entry
	r.m.Range(func(_, v any) bool {
		s := v.(*slot)
		s.mu.Lock()
		if s.set {
			out = append(out, s.entry)
		}
		s.mu.Unlock()
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].BER != out[j].BER {
			return out[i].BER < out[j].BER
		}
		return out[i].key() < out[j].key()
	})
	return out
}

func (r *ResultMap) Len() int {
	n := 0
	r.m.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Timings accumulates wall time per phase.
type Timings struct {
	Probe  time.Duration
	Query  time.Duration
	Load   time.Duration
	Verify time.Duration
}

func (t *Timings) add(o Timings) {
	t.Probe += o.Probe
	t.Query += o.Query
	t.Load += o.Load
	t.Verify += o.Verify
}

func (t Timings) Total() time.Duration {
	return t.Probe + t.Query + t.Load + t.Verify
}

// PlanReport describes how one plan ran.
type PlanReport struct {
	PlanID int
	Name   string

	Iterations int
	Candidates int
	Verified   int
	Hits       int
	// BestBER is -1 when the plan recorded no hit.
	BestBER int

	Cancelled bool
	// Err is set when a collaborator call failed; it wraps ErrCollaborator.
	Err error

	Timings Timings
}

// Resultset is the outcome of one Match call. An empty Entries slice is a
// valid "no match" answer.
type Resultset struct {
	Entries   []Entry
	Plans     []PlanReport
	Timings   Timings
	Cancelled bool
}

// Best returns the lowest-BER entry.
func (r *Resultset) Best() (Entry, bool) {
	if r == nil || len(r.Entries) == 0 {
		return Entry{}, false
	}
	return r.Entries[0], true
}

func offsetMs(clipStart int) int64 {
	return int64(math.Round(float64(clipStart) * signature.SubFingerprintMs))
}
