package planner

import (
	"github.com/himanishpuri/SubPrint/pkg/subprint/hamming"
	"github.com/himanishpuri/SubPrint/pkg/subprint/signature"
	"github.com/himanishpuri/SubPrint/pkg/subprint/variant"
)

// Plan is one search strategy. Each iteration probes one query block.
type Plan struct {
	ID   int
	Name string

	// Blocks is the number of query blocks probed, starting at 0 and
	// advancing by BlockStride sub-fingerprints.
	Blocks      int
	BlockStride int
	// ProbeStride picks every n-th sub-fingerprint of a block as a probe.
	ProbeStride int
	// MaxFlips > 0 adds bit-flip variants of each probe hash.
	MaxFlips int
	// QualityFilter drops probe hashes outside hamming.Probe.
	QualityFilter bool

	TopK      int
	Threshold int
	// MaxVerifyPerCandidate bounds how many matching probe entries are
	// checked before a candidate is given up.
	MaxVerifyPerCandidate int
}

// DefaultPlans returns the fast exact plan followed by two fuzzier ones.
func DefaultPlans() []Plan {
	threshold := signature.BERThreshold(signature.BlockSize)
	return []Plan{
		{
			ID: 1, Name: "exact",
			Blocks: 1, BlockStride: signature.BlockSize, ProbeStride: 4,
			TopK: 25, Threshold: threshold, MaxVerifyPerCandidate: 2,
		},
		{
			ID: 2, Name: "variants",
			Blocks: 4, BlockStride: signature.BlockSize / 2, ProbeStride: 8,
			MaxFlips: 4, QualityFilter: true,
			TopK: 50, Threshold: threshold, MaxVerifyPerCandidate: 2,
		},
		{
			ID: 3, Name: "deep",
			Blocks: 8, BlockStride: signature.BlockSize / 4, ProbeStride: 16,
			MaxFlips: 6, QualityFilter: true,
			TopK: 100, Threshold: threshold, MaxVerifyPerCandidate: 2,
		},
	}
}

func (p Plan) withDefaults() Plan {
	if p.Blocks <= 0 {
		p.Blocks = 1
	}
	if p.BlockStride <= 0 {
		p.BlockStride = signature.BlockSize
	}
	if p.ProbeStride <= 0 {
		p.ProbeStride = 1
	}
	if p.TopK <= 0 {
		p.TopK = 25
	}
	if p.Threshold == 0 {
		p.Threshold = signature.BERThreshold(signature.BlockSize)
	}
	if p.MaxVerifyPerCandidate <= 0 {
		p.MaxVerifyPerCandidate = 2
	}
	return p
}

// ProbeEntry is one hash sent to the index, remembering which query position
// it came from so a match can be aligned.
type ProbeEntry struct {
	BlockStart int
	Position   int
	Hash       uint32
	IsVariant  bool
}

// BuildProbe selects the probe entries for the query block at blockStart and
// returns them with the de-duplicated term list.
func BuildProbe(query *signature.Signature, plan Plan, blockStart int, exp *variant.Expander) ([]ProbeEntry, []uint32) {
	block, ok := query.Block(blockStart)
	if !ok {
		return nil, nil
	}

	var entries []ProbeEntry
	terms := make([]uint32, 0, signature.BlockSize/plan.ProbeStride)
	seen := make(map[uint32]struct{})
	add := func(e ProbeEntry) {
		entries = append(entries, e)
		if _, dup := seen[e.Hash]; !dup {
			seen[e.Hash] = struct{}{}
			terms = append(terms, e.Hash)
		}
	}

	for off := 0; off < len(block); off += plan.ProbeStride {
		h := block[off]
		pos := blockStart + off
		if plan.QualityFilter && !hamming.Probe.Contains(h) {
			continue
		}
		add(ProbeEntry{BlockStart: blockStart, Position: pos, Hash: h})

		if plan.MaxFlips == 0 || exp == nil || !query.HasReliabilities() {
			continue
		}
		rel, err := query.Reliability(pos)
		if err != nil {
			continue
		}
		for _, v := range exp.Expand(h, rel, plan.MaxFlips) {
			if v == h {
				continue
			}
			add(ProbeEntry{BlockStart: blockStart, Position: pos, Hash: v, IsVariant: true})
		}
	}
	return entries, terms
}
