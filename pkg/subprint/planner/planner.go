// Package planner runs several search plans against an inverted index and a
// signature store, verifying candidates by bit error rate.
package planner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/bits-and-blooms/bitset"
	"golang.org/x/sync/errgroup"

	"github.com/himanishpuri/SubPrint/pkg/subprint/hamming"
	"github.com/himanishpuri/SubPrint/pkg/subprint/signature"
	"github.com/himanishpuri/SubPrint/pkg/subprint/variant"
)

const (
	// GoodEnoughBER ends a plan's candidate scan.
	GoodEnoughBER = 1800
	// CancelBER cancels every running plan.
	CancelBER = 2000

	concurrentPlans = 2
)

var (
	ErrCollaborator = errors.New("collaborator failure")
	ErrNilQuery     = errors.New("query signature is nil")
)

// RankedDoc is one inverted-index hit, ranked by matched term count.
type RankedDoc struct {
	ID   int64
	Hits int
}

// docRank is where a candidate sat in the index's answer.
type docRank struct {
	rank int
	hits int
}

// IndexProbe resolves a disjunction of hash terms to candidate ids.
type IndexProbe interface {
	Query(ctx context.Context, terms []uint32, limit int) ([]RankedDoc, error)
}

// SignatureLoader fetches full signatures in the order of ids. Missing ids
// are skipped.
type SignatureLoader interface {
	LoadByIDs(ctx context.Context, ids []int64) ([]*signature.Signature, error)
}

type Logger interface {
	Debugf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}
func (nopLogger) Warnf(string, ...interface{})  {}

type Planner struct {
	index    IndexProbe
	store    SignatureLoader
	plans    []Plan
	expander *variant.Expander
	log      Logger

	goodEnough int
	cancelBER  int
}

type Option func(*Planner)

func WithPlans(plans ...Plan) Option {
	return func(p *Planner) {
		p.plans = append([]Plan(nil), plans...)
	}
}

func WithLogger(l Logger) Option {
	return func(p *Planner) {
		if l != nil {
			p.log = l
		}
	}
}

func WithExpander(e *variant.Expander) Option {
	return func(p *Planner) { p.expander = e }
}

// WithStopThresholds overrides GoodEnoughBER and CancelBER.
func WithStopThresholds(goodEnough, cancel int) Option {
	return func(p *Planner) {
		p.goodEnough = goodEnough
		p.cancelBER = cancel
	}
}

func New(index IndexProbe, store SignatureLoader, opts ...Option) *Planner {
	p := &Planner{
		index:      index,
		store:      store,
		plans:      DefaultPlans(),
		expander:   variant.New(),
		log:        nopLogger{},
		goodEnough: GoodEnoughBER,
		cancelBER:  CancelBER,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Planner) Plans() []Plan {
	return append([]Plan(nil), p.plans...)
}

// run is the state shared by the plans of one Match call.
type run struct {
	query   *signature.Signature
	results *ResultMap
	best    atomic.Int64
	cancel  context.CancelFunc
}

func (r *run) observe(ber int) int {
	for {
		cur := r.best.Load()
		if int64(ber) >= cur {
			return int(cur)
		}
		if r.best.CompareAndSwap(cur, int64(ber)) {
			return ber
		}
	}
}

// Match runs the first plan on the calling goroutine, then the remaining
// plans concurrently. Plans share one cancellation signal which fires as soon
// as any of them records a BER below the cancel threshold, or when ctx ends.
func (p *Planner) Match(ctx context.Context, query *signature.Signature) (*Resultset, error) {
	if query == nil {
		return nil, ErrNilQuery
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r := &run{query: query, results: &ResultMap{}, cancel: cancel}
	r.best.Store(math.MaxInt64)

	reports := make([]PlanReport, len(p.plans))
	if len(p.plans) > 0 {
		reports[0] = p.runPlan(ctx, r, p.plans[0])
	}

	if len(p.plans) > 1 {
		var g errgroup.Group
		g.SetLimit(concurrentPlans)
		for i := 1; i < len(p.plans); i++ {
			i := i
			if ctx.Err() != nil {
				reports[i] = skippedReport(p.plans[i])
				continue
			}
			g.Go(func() error {
				reports[i] = p.runPlan(ctx, r, p.plans[i])
				return nil
			})
		}
		_ = g.Wait()
	}

	rs := &Resultset{
		Entries: r.results.Entries(),
		Plans:   reports,
	}
	for _, rep := range reports {
		rs.Timings.add(rep.Timings)
		if rep.Cancelled {
			rs.Cancelled = true
		}
	}
	return rs, nil
}

func skippedReport(plan Plan) PlanReport {
	return PlanReport{PlanID: plan.ID, Name: plan.Name, BestBER: -1, Cancelled: true}
}

func (p *Planner) runPlan(ctx context.Context, r *run, plan Plan) PlanReport {
	plan = plan.withDefaults()
	rep := PlanReport{PlanID: plan.ID, Name: plan.Name, BestBER: -1}

	// candidates already confirmed by this plan are not reloaded
	hit := make(map[int64]struct{})

	for iter := 0; iter < plan.Blocks; iter++ {
		if ctx.Err() != nil {
			rep.Cancelled = true
			break
		}
		blockStart := iter * plan.BlockStride

		// BuildProbe
		t := time.Now()
		probe, terms := BuildProbe(r.query, plan, blockStart, p.expander)
		rep.Timings.Probe += time.Since(t)
		if len(terms) == 0 {
			if _, ok := r.query.Block(blockStart); !ok {
				break
			}
			continue
		}
		rep.Iterations++

		// QueryIndex
		t = time.Now()
		docs, err := p.index.Query(ctx, terms, plan.TopK)
		rep.Timings.Query += time.Since(t)
		if err != nil {
			p.fail(ctx, &rep, "index query", err)
			break
		}

		ids := make([]int64, 0, len(docs))
		ranks := make(map[int64]docRank, len(docs))
		for i, d := range docs {
			if _, ok := hit[d.ID]; ok {
				continue
			}
			ids = append(ids, d.ID)
			ranks[d.ID] = docRank{rank: i, hits: d.Hits}
		}
		if len(ids) == 0 {
			continue
		}

		// LoadCandidates
		t = time.Now()
		candidates, err := p.store.LoadByIDs(ctx, ids)
		rep.Timings.Load += time.Since(t)
		if err != nil {
			p.fail(ctx, &rep, "load candidates", err)
			break
		}
		rep.Candidates += len(candidates)

		// Verify
		t = time.Now()
		done := p.verify(ctx, r, plan, iter, blockStart, probe, candidates, ranks, &rep, hit)
		rep.Timings.Verify += time.Since(t)
		if done {
			break
		}
	}

	if rep.Cancelled {
		p.log.Debugf("plan %d (%s) cancelled after %d iterations", plan.ID, plan.Name, rep.Iterations)
	}
	return rep
}

func (p *Planner) fail(ctx context.Context, rep *PlanReport, op string, err error) {
	if ctx.Err() != nil {
		rep.Cancelled = true
		return
	}
	rep.Err = fmt.Errorf("%w: %s: %w", ErrCollaborator, op, err)
	p.log.Warnf("plan %d (%s): %v", rep.PlanID, rep.Name, rep.Err)
}

// verify scans candidates in index rank order. It returns true when the plan
// should stop: cancellation, or a BER below the good-enough mark.
func (p *Planner) verify(
	ctx context.Context,
	r *run,
	plan Plan,
	iter, blockStart int,
	probe []ProbeEntry,
	candidates []*signature.Signature,
	ranks map[int64]docRank,
	rep *PlanReport,
	hit map[int64]struct{},
) bool {
	queryBlock, ok := r.query.Block(blockStart)
	if !ok {
		return false
	}
	table := hamming.Default()

	for _, cand := range candidates {
		if ctx.Err() != nil {
			rep.Cancelled = true
			return true
		}
		if cand == nil {
			continue
		}

		doc := ranks[cand.TrackID]
		// alignments already scored for this candidate
		var tried bitset.BitSet
		attempts := 0
	entries:
		for _, e := range probe {
			positions := cand.IndexOf(e.Hash)
			if len(positions) == 0 {
				continue
			}
			attempts++
			for _, cp := range positions {
				cs := int(cp) - (e.Position - blockStart)
				candBlock, ok := cand.Block(cs)
				if !ok || tried.Test(uint(cs)) {
					continue
				}
				tried.Set(uint(cs))
				ber := table.SliceDistance(queryBlock, candBlock)
				rep.Verified++
				if ber >= plan.Threshold {
					continue
				}

				r.results.Offer(Entry{
					Reference:         cand.ReferenceID,
					TrackID:           cand.TrackID,
					BER:               ber,
					OffsetMs:          offsetMs(cs - blockStart),
					PlanID:            plan.ID,
					Iteration:         iter,
					QueryPosition:     blockStart,
					CandidatePosition: cs,
					Variant:           e.IsVariant,
					MatchListRank:     doc.rank,
					IndexHits:         doc.hits,
				})
				rep.Hits++
				if rep.BestBER < 0 || ber < rep.BestBER {
					rep.BestBER = ber
				}
				hit[cand.TrackID] = struct{}{}

				best := r.observe(ber)
				if best < p.cancelBER {
					r.cancel()
				}
				if best < p.goodEnough {
					return true
				}
				break entries
			}
			if attempts >= plan.MaxVerifyPerCandidate {
				break
			}
		}
	}
	return false
}
