package fingerprint

import (
	"errors"
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/himanishpuri/SubPrint/pkg/subprint/audio"
	"github.com/himanishpuri/SubPrint/pkg/subprint/signature"
)

// modulatedNoise returns n samples of uniform noise under a slow 3 Hz envelope.
func modulatedNoise(seed int64, n int) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	for i := range out {
		env := 0.6 + 0.4*math.Sin(2*math.Pi*3*float64(i)/SampleRate)
		out[i] = env * (rng.Float64()*2 - 1) * 0.5
	}
	return out
}

func blockBER(t *testing.T, a, b *signature.Signature, start int) int {
	t.Helper()
	ba, ok := a.Block(start)
	if !ok {
		t.Fatalf("No block at %d in first signature (len %d)", start, a.Len())
	}
	bb, ok := b.Block(start)
	if !ok {
		t.Fatalf("No block at %d in second signature (len %d)", start, b.Len())
	}
	d, err := signature.HammingDistance(ba, bb)
	if err != nil {
		t.Fatalf("HammingDistance failed: %v", err)
	}
	return d
}

func TestWindow(t *testing.T) {
	w := Window(WindowSize)
	if len(w) != WindowSize {
		t.Fatalf("Expected window size %d, got %d", WindowSize, len(w))
	}
	if math.Abs(w[0]-1) > 1e-12 {
		t.Errorf("Expected peak 1.0 at sample 0, got %f", w[0])
	}
	if math.Abs(w[WindowSize-1]-0.08) > 1e-12 {
		t.Errorf("Expected 0.08 at last sample, got %f", w[WindowSize-1])
	}
	for i := 1; i < len(w); i++ {
		if w[i] > w[i-1] {
			t.Fatalf("Window should decay monotonically, rose at %d", i)
		}
	}
}

func TestBandBins(t *testing.T) {
	bins := BandBins(WindowSize, SampleRate)
	if bins[0] != 76 || bins[Bands] != 742 {
		t.Errorf("Expected bins to span [76, 742], got [%d, %d]", bins[0], bins[Bands])
	}
	for b := 0; b < Bands; b++ {
		if bins[b+1] <= bins[b] {
			t.Errorf("Band %d is empty: [%d, %d)", b, bins[b], bins[b+1])
		}
	}
}

func TestBandEnergies(t *testing.T) {
	var bins [Bands + 1]int
	for i := range bins {
		bins[i] = i * 2
	}
	spectrum := make([]complex128, 2*Bands+2)
	spectrum[0] = complex(3, 4)
	spectrum[1] = complex(0, 0)

	out := make([]float64, Bands)
	BandEnergies(spectrum, bins, out)

	// sqrt((25 + 0) / 2)
	if math.Abs(out[0]-math.Sqrt(12.5)) > 1e-12 {
		t.Errorf("Expected %f, got %f", math.Sqrt(12.5), out[0])
	}
	if out[1] != 0 {
		t.Errorf("Expected 0 for silent band, got %f", out[1])
	}
}

func TestFrameCount(t *testing.T) {
	tests := []struct {
		n, want int
	}{
		{0, 0},
		{WindowSize - 1, 0},
		{WindowSize, 1},
		{WindowSize + HopSize - 1, 1},
		{WindowSize + HopSize, 2},
		{24000, 344},
	}
	for _, tt := range tests {
		if got := FrameCount(tt.n, WindowSize, HopSize); got != tt.want {
			t.Errorf("FrameCount(%d) = %d, expected %d", tt.n, got, tt.want)
		}
	}
}

func TestButterworthSettlesToInput(t *testing.T) {
	f := NewBandEnergyFilter(2, Butterworth)
	values := make([]float64, 2)
	for i := 0; i < 200; i++ {
		values[0] = 1
		values[1] = 0
		f.Lowpass(values, 0)
		f.Lowpass(values, 1)
	}
	if math.Abs(values[0]-1) > 1e-6 {
		t.Errorf("Expected unit DC gain, got %f", values[0])
	}
	if values[1] != 0 {
		t.Errorf("Expected band 1 to stay at 0, got %f", values[1])
	}
}

func TestButterworthSmoothsStep(t *testing.T) {
	f := NewBandEnergyFilter(1, Butterworth)
	values := []float64{1}
	f.Lowpass(values, 0)
	if values[0] <= 0 || values[0] >= 0.1 {
		t.Errorf("Expected a small first response to a unit step, got %f", values[0])
	}
}

func TestMovingAverage(t *testing.T) {
	f := NewBandEnergyFilter(1, MovingAverage)
	if f.Mode() != MovingAverage {
		t.Fatalf("Expected moving-average mode, got %s", f.Mode())
	}

	inputs := []float64{4, 8, 12, 16, 20}
	want := []float64{1, 3, 6, 10, 14}
	for i, in := range inputs {
		values := []float64{in}
		f.Lowpass(values, 0)
		if values[0] != want[i] {
			t.Errorf("Step %d: expected %f, got %f", i, want[i], values[0])
		}
	}

	f.Reset()
	values := []float64{4}
	f.Lowpass(values, 0)
	if values[0] != 1 {
		t.Errorf("Expected history cleared by Reset, got %f", values[0])
	}
}

func TestHasherSilence(t *testing.T) {
	h := NewHasher(Butterworth)
	samples := make([]float64, WindowSize+HopSize)

	for start := 0; ; start += HopSize {
		hash, rel, ok := h.Next(samples, start)
		if !ok {
			break
		}
		if hash != 0 {
			t.Errorf("Expected zero hash for silence, got %08x", hash)
		}
		for b, r := range rel {
			if int(r) != b {
				t.Fatalf("Equal edges should rank by bit index, bit %d got rank %d", b, r)
			}
		}
	}
	if h.Frames() != 2 {
		t.Errorf("Expected 2 frames, got %d", h.Frames())
	}
}

func TestHasherShortBuffer(t *testing.T) {
	h := NewHasher(Butterworth)
	if _, _, ok := h.Next(make([]float64, WindowSize-1), 0); ok {
		t.Error("Expected no output when a full window does not fit")
	}
	if _, _, ok := h.Next(make([]float64, WindowSize), -1); ok {
		t.Error("Expected no output for a negative start")
	}
	if h.Frames() != 0 {
		t.Errorf("Expected no frames consumed, got %d", h.Frames())
	}
}

func TestReliabilityIsPermutation(t *testing.T) {
	sig, err := Generate(modulatedNoise(1, 6000))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	for i := 0; i < sig.Len(); i++ {
		rel, err := sig.Reliability(i)
		if err != nil {
			t.Fatalf("Reliability(%d) failed: %v", i, err)
		}
		var seen [32]bool
		for _, r := range rel {
			if r >= 32 || seen[r] {
				t.Fatalf("Reliability %d is not a permutation of 0..31: %v", i, rel)
			}
			seen[r] = true
		}
	}
}

func TestGenerate(t *testing.T) {
	samples := modulatedNoise(1, 24000)
	sig, err := Generate(samples)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if sig.Len() != 344 {
		t.Errorf("Expected 344 sub-fingerprints, got %d", sig.Len())
	}
	if !sig.HasReliabilities() {
		t.Error("Expected reliabilities")
	}
	if want := int64(24000) * 1000 / SampleRate; sig.DurationMs != want {
		t.Errorf("Expected duration %d ms, got %d", want, sig.DurationMs)
	}

	again, _ := Generate(samples)
	if blockBER(t, sig, again, 0) != 0 {
		t.Error("Generate should be deterministic")
	}
}

func TestGenerateTooShort(t *testing.T) {
	_, err := Generate(make([]float64, WindowSize-1))
	if !errors.Is(err, ErrTooShort) {
		t.Errorf("Expected ErrTooShort, got %v", err)
	}
}

func TestGenerateFilterModes(t *testing.T) {
	samples := modulatedNoise(4, 24000)
	bw, err := Generate(samples)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	ma, err := Generate(samples, WithFilterMode(MovingAverage))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if blockBER(t, bw, ma, 64) == 0 {
		t.Error("Expected filter modes to produce different hashes")
	}
}

func TestGenerateRobustToNoise(t *testing.T) {
	src := modulatedNoise(1, 24000)
	rng := rand.New(rand.NewSource(2))
	noisy := make([]float64, len(src))
	for i, s := range src {
		noisy[i] = s + 0.01*(rng.Float64()*2-1)
	}

	a, _ := Generate(src)
	b, _ := Generate(noisy)
	c, _ := Generate(modulatedNoise(3, 24000))

	threshold := signature.BERThreshold(signature.BlockSize)
	if got := blockBER(t, a, b, 64); got >= threshold {
		t.Errorf("Expected noisy copy below threshold %d, got %d", threshold, got)
	}
	if got := blockBER(t, a, c, 64); got <= threshold {
		t.Errorf("Expected unrelated audio above threshold %d, got %d", threshold, got)
	}
}

func TestGenerateFromWAV(t *testing.T) {
	dir := t.TempDir()
	samples := modulatedNoise(5, 12000)

	path := filepath.Join(dir, "clip.wav")
	if err := audio.WriteMonoWAV(path, samples, SampleRate); err != nil {
		t.Fatalf("WriteMonoWAV failed: %v", err)
	}
	sig, err := GenerateFromWAV(path)
	if err != nil {
		t.Fatalf("GenerateFromWAV failed: %v", err)
	}
	if sig.Len() != FrameCount(len(samples), WindowSize, HopSize) {
		t.Errorf("Expected %d sub-fingerprints, got %d", FrameCount(len(samples), WindowSize, HopSize), sig.Len())
	}

	wrong := filepath.Join(dir, "wrong.wav")
	if err := audio.WriteMonoWAV(wrong, samples, 8000); err != nil {
		t.Fatalf("WriteMonoWAV failed: %v", err)
	}
	if _, err := GenerateFromWAV(wrong); !errors.Is(err, ErrWrongSampleRate) {
		t.Errorf("Expected ErrWrongSampleRate, got %v", err)
	}
}
