package signature

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/himanishpuri/SubPrint/pkg/subprint/hamming"
	"github.com/himanishpuri/SubPrint/pkg/subprint/indextable"
)

const (
	// BlockSize is the number of sub-fingerprints compared by one BER check.
	BlockSize = 256
	// ReliabilitySize is the number of reliability bytes per sub-fingerprint.
	ReliabilitySize = 32
	// SubFingerprintMs is the audio duration covered by one sub-fingerprint.
	SubFingerprintMs = 11.6

	berRatio = 0.35
)

var (
	ErrMalformedSignature = errors.New("malformed signature")
	ErrIndexOutOfRange    = errors.New("sub-fingerprint index out of range")
	ErrLengthMismatch     = errors.New("hash slices differ in length")
)

// Reliability ranks the 32 bits of one sub-fingerprint: the byte at bit b is
// 0 for the least certain bit and 31 for the most certain one.
type Reliability [ReliabilitySize]byte

// Signature is a sequence of sub-fingerprints with optional reliabilities.
// It is read-only once built; the lookup index is derived on first use.
type Signature struct {
	ReferenceID string
	TrackID     int64
	DurationMs  int64

	hashes        []uint32
	reliabilities []Reliability
	quality       hamming.Window

	indexOnce sync.Once
	index     *indextable.Table
	indexErr  error

	last atomic.Pointer[lookup]
}

type lookup struct {
	hash      uint32
	positions []int32
}

// Option configures a signature at construction.
type Option func(*Signature)

// WithReference sets the caller-facing reference and numeric track id.
func WithReference(referenceID string, trackID int64) Option {
	return func(s *Signature) {
		s.ReferenceID = referenceID
		s.TrackID = trackID
	}
}

// WithDuration overrides the duration derived from the sub-fingerprint count.
func WithDuration(ms int64) Option {
	return func(s *Signature) {
		s.DurationMs = ms
	}
}

// WithIndexQuality excludes hashes whose population count lies outside w from
// the lookup index.
func WithIndexQuality(w hamming.Window) Option {
	return func(s *Signature) {
		s.quality = w
	}
}

// WithLookupIndex installs a previously serialized lookup index instead of
// building one from the hashes.
func WithLookupIndex(blob []byte) Option {
	return func(s *Signature) {
		if len(blob) == 0 {
			return
		}
		s.indexOnce.Do(func() {
			s.index, s.indexErr = indextable.FromBytes(blob)
		})
	}
}

// New builds a signature from decoded hashes. reliabilities may be nil; when
// present it must have one entry per hash. Both slices are copied.
func New(hashes []uint32, reliabilities []Reliability, opts ...Option) (*Signature, error) {
	if reliabilities != nil && len(reliabilities) != len(hashes) {
		return nil, fmt.Errorf("%w: %d reliability entries for %d hashes",
			ErrMalformedSignature, len(reliabilities), len(hashes))
	}

	s := &Signature{
		hashes: append([]uint32(nil), hashes...),
	}
	if reliabilities != nil {
		s.reliabilities = append([]Reliability(nil), reliabilities...)
	}
	s.DurationMs = defaultDuration(len(hashes))

	for _, opt := range opts {
		opt(s)
	}
	if s.indexErr != nil {
		return nil, fmt.Errorf("loading lookup index: %w", s.indexErr)
	}
	return s, nil
}

// FromBytes builds a signature from a packed little-endian hash buffer and an
// optional flat reliability buffer. An empty reliability buffer means none.
func FromBytes(hashBytes, reliabilityBytes []byte, opts ...Option) (*Signature, error) {
	hashes, err := DecodeHashes(hashBytes)
	if err != nil {
		return nil, err
	}
	var rel []Reliability
	if len(reliabilityBytes) > 0 {
		rel, err = DecodeReliabilities(reliabilityBytes)
		if err != nil {
			return nil, err
		}
	}
	return New(hashes, rel, opts...)
}

// DecodeHashes unpacks a little-endian u32 buffer.
func DecodeHashes(b []byte) ([]uint32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("%w: hash buffer length %d is not a multiple of 4", ErrMalformedSignature, len(b))
	}
	out := make([]uint32, len(b)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return out, nil
}

// DecodeReliabilities splits a flat buffer into 32-byte reliability vectors.
func DecodeReliabilities(b []byte) ([]Reliability, error) {
	if len(b)%ReliabilitySize != 0 {
		return nil, fmt.Errorf("%w: reliability buffer length %d is not a multiple of %d",
			ErrMalformedSignature, len(b), ReliabilitySize)
	}
	out := make([]Reliability, len(b)/ReliabilitySize)
	for i := range out {
		copy(out[i][:], b[i*ReliabilitySize:])
	}
	return out, nil
}

func defaultDuration(n int) int64 {
	return int64(math.Round(float64(n) * SubFingerprintMs))
}

// Len returns the number of sub-fingerprints.
func (s *Signature) Len() int { return len(s.hashes) }

// HasReliabilities reports whether reliability vectors are attached.
func (s *Signature) HasReliabilities() bool { return s.reliabilities != nil }

func (s *Signature) SubFingerprint(i int) (uint32, error) {
	if i < 0 || i >= len(s.hashes) {
		return 0, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, i, len(s.hashes))
	}
	return s.hashes[i], nil
}

func (s *Signature) Reliability(i int) (Reliability, error) {
	if i < 0 || i >= len(s.reliabilities) {
		return Reliability{}, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, i, len(s.reliabilities))
	}
	return s.reliabilities[i], nil
}

// Block returns BlockSize consecutive sub-fingerprints starting at start, or
// false if fewer remain. The slice aliases the signature and must not be
// modified.
func (s *Signature) Block(start int) ([]uint32, bool) {
	if start < 0 || start+BlockSize > len(s.hashes) {
		return nil, false
	}
	return s.hashes[start : start+BlockSize : start+BlockSize], true
}

// Hashes returns a copy of all sub-fingerprints.
func (s *Signature) Hashes() []uint32 {
	return append([]uint32(nil), s.hashes...)
}

// IndexOf returns the ascending positions at which hash occurs, or an empty
// slice. The most recent answer is memoized; the slot is swapped atomically so
// concurrent callers are safe.
func (s *Signature) IndexOf(hash uint32) []int32 {
	if l := s.last.Load(); l != nil && l.hash == hash {
		return l.positions
	}

	idx, err := s.LookupIndex()
	if err != nil {
		return []int32{}
	}
	positions, ok := idx.TryGet(hash)
	if !ok {
		positions = []int32{}
	}
	s.last.Store(&lookup{hash: hash, positions: positions})
	return positions
}

// LookupIndex returns the hash -> positions table, building it on first use.
func (s *Signature) LookupIndex() (*indextable.Table, error) {
	s.indexOnce.Do(func() {
		s.index, s.indexErr = s.buildIndex()
	})
	return s.index, s.indexErr
}

func (s *Signature) buildIndex() (*indextable.Table, error) {
	positions := make(map[uint32][]int32)
	kept := 0
	for i, h := range s.hashes {
		if !s.quality.IsZero() && !s.quality.Contains(h) {
			continue
		}
		positions[h] = append(positions[h], int32(i))
		kept++
	}

	keys := make([]uint32, 0, len(positions))
	for h := range positions {
		keys = append(keys, h)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	capacity := len(keys) * 2
	if capacity == 0 {
		capacity = 1
	}
	tbl, err := indextable.New(capacity, kept)
	if err != nil {
		return nil, err
	}
	for _, h := range keys {
		if err := tbl.Add(h, positions[h]); err != nil {
			return nil, err
		}
	}
	return tbl, nil
}

// HashBytes packs the hashes as little-endian u32.
func (s *Signature) HashBytes() []byte {
	out := make([]byte, len(s.hashes)*4)
	for i, h := range s.hashes {
		binary.LittleEndian.PutUint32(out[i*4:], h)
	}
	return out
}

// ReliabilityBytes flattens the reliability vectors, or returns nil when the
// signature has none.
func (s *Signature) ReliabilityBytes() []byte {
	if s.reliabilities == nil {
		return nil
	}
	out := make([]byte, 0, len(s.reliabilities)*ReliabilitySize)
	for _, r := range s.reliabilities {
		out = append(out, r[:]...)
	}
	return out
}

// LookupIndexBytes serializes the lookup index.
func (s *Signature) LookupIndexBytes() ([]byte, error) {
	idx, err := s.LookupIndex()
	if err != nil {
		return nil, err
	}
	return idx.Bytes(), nil
}

// HammingDistance sums the bit differences of two equally long hash slices.
func HammingDistance(a, b []uint32) (int, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(a), len(b))
	}
	return hamming.Default().SliceDistance(a, b), nil
}

// BER returns the summed Hamming distance of two signatures, or -1 when their
// sub-fingerprint counts differ.
func BER(a, b *Signature) int {
	if a.Len() != b.Len() {
		return -1
	}
	return hamming.Default().SliceDistance(a.hashes, b.hashes)
}

// BERThreshold is the default match cutoff for n aligned sub-fingerprints.
func BERThreshold(n int) int {
	return int(float64(n*32) * berRatio)
}
