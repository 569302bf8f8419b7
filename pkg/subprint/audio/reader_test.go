package audio

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteAndReadMonoWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")

	samples := make([]float64, DefaultSampleRate)
	for i := range samples {
		samples[i] = 0.5 * math.Sin(2*math.Pi*440*float64(i)/DefaultSampleRate)
	}

	if err := WriteMonoWAV(path, samples, DefaultSampleRate); err != nil {
		t.Fatalf("WriteMonoWAV failed: %v", err)
	}

	got, sr, err := ReadWavAsFloat64(path)
	if err != nil {
		t.Fatalf("ReadWavAsFloat64 failed: %v", err)
	}
	if sr != DefaultSampleRate {
		t.Errorf("Expected sample rate %d, got %d", DefaultSampleRate, sr)
	}
	if len(got) != len(samples) {
		t.Fatalf("Expected %d samples, got %d", len(samples), len(got))
	}
	for i := range samples {
		if math.Abs(got[i]-samples[i]) > 1e-3 {
			t.Fatalf("Sample %d: expected %f, got %f", i, samples[i], got[i])
		}
	}
}

func TestWriteMonoWAVClips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.wav")
	if err := WriteMonoWAV(path, []float64{2, -2, 0}, DefaultSampleRate); err != nil {
		t.Fatalf("WriteMonoWAV failed: %v", err)
	}
	got, _, err := ReadWavAsFloat64(path)
	if err != nil {
		t.Fatalf("ReadWavAsFloat64 failed: %v", err)
	}
	if got[0] < 0.99 || got[1] > -0.99 || got[2] != 0 {
		t.Errorf("Expected clipped samples, got %v", got)
	}
}

func TestReadWavInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "invalid.wav")
	if err := os.WriteFile(path, []byte("INVALID HEADER DATA"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	_, _, err := ReadWavAsFloat64(path)
	if !errors.Is(err, ErrInvalidWAV) {
		t.Errorf("Expected ErrInvalidWAV, got %v", err)
	}
}

func TestReadWavMissingFile(t *testing.T) {
	if _, _, err := ReadWavAsFloat64(filepath.Join(t.TempDir(), "missing.wav")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestToMonoAveragesChannels(t *testing.T) {
	got := toMono([]int{16384, 0, -16384, -16384}, 2, 16)
	if len(got) != 2 {
		t.Fatalf("Expected 2 frames, got %d", len(got))
	}
	if got[0] != 0.25 || got[1] != -0.5 {
		t.Errorf("Expected [0.25 -0.5], got %v", got)
	}
}
