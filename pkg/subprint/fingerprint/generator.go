package fingerprint

import (
	"errors"
	"fmt"

	"github.com/himanishpuri/SubPrint/pkg/subprint/audio"
	"github.com/himanishpuri/SubPrint/pkg/subprint/signature"
)

var (
	ErrTooShort        = errors.New("audio too short for window size")
	ErrWrongSampleRate = errors.New("unsupported sample rate")
)

type config struct {
	mode    FilterMode
	sigOpts []signature.Option
}

type Option func(*config)

// WithFilterMode selects the band energy smoothing.
func WithFilterMode(m FilterMode) Option {
	return func(c *config) { c.mode = m }
}

// WithSignatureOptions forwards options to the resulting signature.
func WithSignatureOptions(opts ...signature.Option) Option {
	return func(c *config) { c.sigOpts = append(c.sigOpts, opts...) }
}

// Generate fingerprints mono samples at SampleRate. The signature has one
// sub-fingerprint and reliability vector per HopSize step.
func Generate(samples []float64, opts ...Option) (*signature.Signature, error) {
	cfg := config{mode: Butterworth}
	for _, opt := range opts {
		opt(&cfg)
	}

	n := FrameCount(len(samples), WindowSize, HopSize)
	if n == 0 {
		return nil, fmt.Errorf("%w: %d samples, need %d", ErrTooShort, len(samples), WindowSize)
	}

	h := NewHasher(cfg.mode)
	hashes := make([]uint32, 0, n)
	rels := make([]signature.Reliability, 0, n)
	for start := 0; ; start += HopSize {
		hash, rel, ok := h.Next(samples, start)
		if !ok {
			break
		}
		hashes = append(hashes, hash)
		rels = append(rels, rel)
	}

	durationMs := int64(len(samples)) * 1000 / SampleRate
	sigOpts := append([]signature.Option{signature.WithDuration(durationMs)}, cfg.sigOpts...)
	return signature.New(hashes, rels, sigOpts...)
}

// GenerateFromWAV reads a mono WAV already resampled to SampleRate and
// fingerprints it.
func GenerateFromWAV(path string, opts ...Option) (*signature.Signature, error) {
	samples, sr, err := audio.ReadWavAsFloat64(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}
	if sr != SampleRate {
		return nil, fmt.Errorf("%w: %d Hz, expected %d Hz", ErrWrongSampleRate, sr, SampleRate)
	}
	return Generate(samples, opts...)
}
