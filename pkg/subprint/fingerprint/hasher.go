package fingerprint

import (
	"math"
	"sort"

	"github.com/himanishpuri/SubPrint/pkg/subprint/signature"
)

const (
	hashBits     = Bands - 1
	historyDepth = 4
)

// Hasher turns consecutive windows of a sample buffer into sub-fingerprints.
// It keeps filter state and the last four band-energy frames, so one Hasher
// serves exactly one signature and frames must be fed in order.
type Hasher struct {
	window []float64
	bins   [Bands + 1]int
	filter *BandEnergyFilter

	history [historyDepth][Bands]float64
	frames  int

	buf   []float64
	edges [hashBits]float64
	order [hashBits]int
}

func NewHasher(mode FilterMode) *Hasher {
	return &Hasher{
		window: Window(WindowSize),
		bins:   BandBins(WindowSize, SampleRate),
		filter: NewBandEnergyFilter(Bands, mode),
		buf:    make([]float64, WindowSize),
	}
}

// Next hashes the window starting at samples[start]. ok is false when fewer
// than WindowSize samples remain, which ends the frame loop.
func (h *Hasher) Next(samples []float64, start int) (hash uint32, rel signature.Reliability, ok bool) {
	if start < 0 || start+WindowSize > len(samples) {
		return 0, rel, false
	}

	for i, s := range samples[start : start+WindowSize] {
		h.buf[i] = s * h.window[i]
	}
	spectrum := FFTReal(h.buf)

	cur := &h.history[h.frames%historyDepth]
	BandEnergies(spectrum, h.bins, cur[:])
	for b := 0; b < Bands; b++ {
		h.filter.Lowpass(cur[:], b)
	}
	old := &h.history[(h.frames+1)%historyDepth]
	h.frames++

	for b := 0; b < hashBits; b++ {
		edge := cur[b] - cur[b+1] - (old[b] - old[b+1])
		if edge > 0 {
			hash |= 1 << uint(b)
		}
		h.edges[b] = math.Abs(edge)
		h.order[b] = b
	}

	sort.SliceStable(h.order[:], func(i, j int) bool {
		return h.edges[h.order[i]] < h.edges[h.order[j]]
	})
	for rank, b := range h.order {
		rel[b] = byte(rank)
	}
	return hash, rel, true
}

// Frames returns how many windows have been hashed.
func (h *Hasher) Frames() int { return h.frames }
