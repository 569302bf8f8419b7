package fingerprint

import (
	"math"

	"github.com/mjibson/go-dsp/fft"
)

const (
	SampleRate = 5512
	WindowSize = 2048
	HopSize    = 64

	// Bands is the number of energy bands; one hash bit is derived from each
	// adjacent pair, hence Bands-1 == 32.
	Bands = 33
)

// bandEdges are the 34 band boundaries in Hz, log spaced from 204 to 1996.
var bandEdges = [Bands + 1]float64{
	204, 219, 234, 251, 269, 288, 309, 331, 355, 380,
	407, 436, 468, 501, 537, 575, 616, 661, 708, 758,
	813, 871, 933, 1000, 1072, 1148, 1230, 1318, 1413, 1514,
	1622, 1738, 1863, 1996,
}

// Window returns the asymmetric Hamming-style taper used by the hasher. It
// peaks at sample 0 and decays to 0.08 at the last sample.
func Window(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = 0.54 + 0.46*math.Cos(math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// BandBins maps each band edge to an FFT bin for the given window and rate.
// Band b covers bins [bins[b], bins[b+1]).
func BandBins(windowSize, sampleRate int) [Bands + 1]int {
	var bins [Bands + 1]int
	for i, f := range bandEdges {
		bins[i] = int(math.Round(f * float64(windowSize) / float64(sampleRate)))
	}
	return bins
}

func FFTReal(frame []float64) []complex128 {
	return fft.FFTReal(frame)
}

// BandEnergies computes sqrt(mean(|X[k]|^2)) over the bins of each band.
func BandEnergies(spectrum []complex128, bins [Bands + 1]int, out []float64) {
	for b := 0; b < Bands; b++ {
		lo, hi := bins[b], bins[b+1]
		if hi > len(spectrum) {
			hi = len(spectrum)
		}
		if hi <= lo {
			out[b] = 0
			continue
		}
		var sum float64
		for _, c := range spectrum[lo:hi] {
			re, im := real(c), imag(c)
			sum += re*re + im*im
		}
		out[b] = math.Sqrt(sum / float64(hi-lo))
	}
}

// FrameCount is the number of full windows that fit in n samples.
func FrameCount(n, windowSize, hopSize int) int {
	if n < windowSize {
		return 0
	}
	return (n-windowSize)/hopSize + 1
}
