// Package variant generates fuzzy neighbours of a sub-fingerprint by flipping
// its least reliable bits.
package variant

import (
	"github.com/himanishpuri/SubPrint/pkg/subprint/hamming"
	"github.com/himanishpuri/SubPrint/pkg/subprint/signature"
)

// MaxFlips bounds the expansion to 2^10 variants.
const MaxFlips = 10

type Expander struct {
	Quality hamming.Window
}

// New returns an expander filtering with the probe window.
func New() *Expander {
	return &Expander{Quality: hamming.Probe}
}

// Expand returns hash plus every combination of its maxFlips least reliable
// bits toggled, keeping only hashes inside the quality window. The original
// hash, if kept, is first.
func (e *Expander) Expand(hash uint32, rel signature.Reliability, maxFlips int) []uint32 {
	if maxFlips > MaxFlips {
		maxFlips = MaxFlips
	}
	if maxFlips < 0 {
		maxFlips = 0
	}

	variants := make([]uint32, 1, 1<<maxFlips)
	variants[0] = hash
	for k := 0; k < maxFlips; k++ {
		bit, ok := bitWithRank(rel, byte(k))
		if !ok {
			continue
		}
		mask := uint32(1) << bit
		n := len(variants)
		for i := 0; i < n; i++ {
			variants = append(variants, variants[i]^mask)
		}
	}

	seen := make(map[uint32]struct{}, len(variants))
	out := variants[:0]
	for _, v := range variants {
		if !e.Quality.IsZero() && !e.Quality.Contains(v) {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func bitWithRank(rel signature.Reliability, rank byte) (uint, bool) {
	for b, r := range rel {
		if r == rank {
			return uint(b), true
		}
	}
	return 0, false
}
