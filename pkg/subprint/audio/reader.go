package audio

import (
	"errors"
	"fmt"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var ErrInvalidWAV = errors.New("invalid WAV file")

// ReadWavAsFloat64 reads a PCM WAV file and returns mono samples normalized
// to [-1, 1] together with the sample rate. Multi-channel input is averaged.
func ReadWavAsFloat64(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("%w: %s", ErrInvalidWAV, path)
	}
	if dec.WavAudioFormat != 1 {
		return nil, 0, fmt.Errorf("%w: unsupported audio format %d, only PCM", ErrInvalidWAV, dec.WavAudioFormat)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decoding PCM samples: %w", err)
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = int(dec.BitDepth)
	}
	channels := buf.Format.NumChannels
	if channels <= 0 {
		return nil, 0, fmt.Errorf("%w: no channels", ErrInvalidWAV)
	}

	return toMono(buf.Data, channels, bitDepth), buf.Format.SampleRate, nil
}

func toMono(data []int, channels, bitDepth int) []float64 {
	scale := 1.0 / float64(int64(1)<<(bitDepth-1))
	frames := len(data) / channels
	out := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(data[i*channels+c])
		}
		out[i] = sum / float64(channels) * scale
	}
	return out
}

// WriteMonoWAV encodes samples in [-1, 1] as a 16-bit mono PCM WAV file.
func WriteMonoWAV(path string, samples []float64, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	data := make([]int, len(samples))
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		data[i] = int(s * 32767)
	}

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("encoding WAV: %w", err)
	}
	return enc.Close()
}
