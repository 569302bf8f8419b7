package audio

import "fmt"

// Downmix averages interleaved frames of the given channel count into mono.
// A trailing partial frame is dropped.
func Downmix(interleaved []float64, channels int) ([]float64, error) {
	if channels < 1 {
		return nil, fmt.Errorf("invalid channel count: %d", channels)
	}
	if channels == 1 {
		return interleaved, nil
	}
	frames := len(interleaved) / channels
	out := make([]float64, frames)
	for i := range out {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += interleaved[i*channels+c]
		}
		out[i] = sum / float64(channels)
	}
	return out, nil
}

// Resample converts mono samples between rates by linear interpolation.
// Browser clients use it; server-side input goes through ffmpeg instead.
func Resample(samples []float64, from, to int) ([]float64, error) {
	if from <= 0 || to <= 0 {
		return nil, fmt.Errorf("invalid sample rates: %d -> %d", from, to)
	}
	if from == to || len(samples) == 0 {
		return samples, nil
	}

	n := int(int64(len(samples)) * int64(to) / int64(from))
	out := make([]float64, n)
	step := float64(from) / float64(to)
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= last {
			out[i] = samples[last]
			continue
		}
		frac := pos - float64(j)
		out[i] = samples[j]*(1-frac) + samples[j+1]*frac
	}
	return out, nil
}
