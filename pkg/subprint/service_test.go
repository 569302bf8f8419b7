package subprint

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"math"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"

	"github.com/himanishpuri/SubPrint/pkg/logger"
	"github.com/himanishpuri/SubPrint/pkg/subprint/fingerprint"
	"github.com/himanishpuri/SubPrint/pkg/subprint/signature"
	"github.com/himanishpuri/SubPrint/pkg/subprint/storage"
)

// noise returns n samples of uniform noise under a slow 3 Hz envelope.
func noise(seed int64, n int) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	for i := range out {
		env := 0.6 + 0.4*math.Sin(2*math.Pi*3*float64(i)/fingerprint.SampleRate)
		out[i] = env * (rng.Float64()*2 - 1) * 0.5
	}
	return out
}

func quietLogger() Logger {
	return logger.New(logger.Config{Level: logger.ERROR, Output: io.Discard})
}

func newTestService(t *testing.T, opts ...Option) Service {
	t.Helper()
	opts = append([]Option{
		WithDBPath(filepath.Join(t.TempDir(), "test.sqlite3")),
		WithLogger(quietLogger()),
	}, opts...)
	svc, err := NewService(opts...)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc
}

// addLibrary stores three unrelated tracks and returns their samples and
// reference ids.
func addLibrary(t *testing.T, svc Service) ([][]float64, []string) {
	t.Helper()
	ctx := context.Background()
	var samples [][]float64
	var refs []string
	for i, title := range []string{"First", "Second", "Third"} {
		s := noise(int64(i+1), 30000)
		ref, err := svc.AddSamples(ctx, s, title, "Artist")
		if err != nil {
			t.Fatalf("AddSamples(%s) failed: %v", title, err)
		}
		samples = append(samples, s)
		refs = append(refs, ref)
	}
	return samples, refs
}

func TestMatchIdenticalSamples(t *testing.T) {
	svc := newTestService(t)
	samples, refs := addLibrary(t, svc)

	report, err := svc.MatchSamples(context.Background(), samples[1])
	if err != nil {
		t.Fatalf("MatchSamples failed: %v", err)
	}
	best, ok := report.Best()
	if !ok {
		t.Fatal("Expected a match, got none")
	}
	if best.ReferenceID != refs[1] {
		t.Errorf("Expected reference %s, got %s", refs[1], best.ReferenceID)
	}
	if best.Title != "Second" || best.Artist != "Artist" {
		t.Errorf("Expected 'Second' by 'Artist', got '%s' by '%s'", best.Title, best.Artist)
	}
	if best.BER != 0 || best.OffsetMs != 0 {
		t.Errorf("Expected BER 0 at offset 0, got %d at %d ms", best.BER, best.OffsetMs)
	}
	if best.Confidence != 100 {
		t.Errorf("Expected confidence 100, got %.2f", best.Confidence)
	}
	if best.MatchListRank != 0 || best.IndexHits == 0 {
		t.Errorf("Expected rank 0 with index hits, got rank %d with %d hits", best.MatchListRank, best.IndexHits)
	}
	if len(report.Plans) != 3 {
		t.Errorf("Expected 3 plan summaries, got %d", len(report.Plans))
	}
}

func TestMatchExcerpt(t *testing.T) {
	svc := newTestService(t)
	samples, refs := addLibrary(t, svc)

	// 50 hops into the third track
	start := 50 * fingerprint.HopSize
	excerpt := samples[2][start : start+20000]

	report, err := svc.MatchSamples(context.Background(), excerpt)
	if err != nil {
		t.Fatalf("MatchSamples failed: %v", err)
	}
	best, ok := report.Best()
	if !ok {
		t.Fatal("Expected a match, got none")
	}
	if best.ReferenceID != refs[2] {
		t.Errorf("Expected reference %s, got %s", refs[2], best.ReferenceID)
	}
	if best.OffsetMs != 580 {
		t.Errorf("Expected offset 580 ms, got %d", best.OffsetMs)
	}
	if best.BER >= 1800 {
		t.Errorf("Expected BER below 1800, got %d", best.BER)
	}
}

func TestMatchUnknownAudio(t *testing.T) {
	svc := newTestService(t)
	addLibrary(t, svc)

	report, err := svc.MatchSamples(context.Background(), noise(99, 24000))
	if err != nil {
		t.Fatalf("MatchSamples failed: %v", err)
	}
	if len(report.Results) != 0 {
		t.Errorf("Expected no matches, got %+v", report.Results)
	}
	if report.Cancelled {
		t.Error("Expected no cancellation without a hit")
	}
}

func TestMatchEncoded(t *testing.T) {
	svc := newTestService(t)
	samples, refs := addLibrary(t, svc)

	sig, err := fingerprint.Generate(samples[0])
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	hashes := base64.StdEncoding.EncodeToString(sig.HashBytes())
	rel := base64.StdEncoding.EncodeToString(sig.ReliabilityBytes())

	report, err := svc.MatchEncoded(context.Background(), hashes, rel)
	if err != nil {
		t.Fatalf("MatchEncoded failed: %v", err)
	}
	best, ok := report.Best()
	if !ok || best.ReferenceID != refs[0] {
		t.Errorf("Expected best match %s, got %+v", refs[0], best)
	}

	// reliabilities are optional
	report, err = svc.MatchEncoded(context.Background(), hashes, "")
	if err != nil {
		t.Fatalf("MatchEncoded without reliabilities failed: %v", err)
	}
	if best, ok := report.Best(); !ok || best.ReferenceID != refs[0] {
		t.Errorf("Expected best match %s, got %+v", refs[0], best)
	}
}

func TestMatchEncodedInvalid(t *testing.T) {
	svc := newTestService(t)

	tests := []struct {
		name   string
		hashes string
		rel    string
	}{
		{"bad base64", "not base64!", ""},
		{"truncated hashes", base64.StdEncoding.EncodeToString([]byte{1, 2, 3}), ""},
		{"bad reliabilities", base64.StdEncoding.EncodeToString(make([]byte, 8)), "%%%"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.MatchEncoded(context.Background(), tt.hashes, tt.rel)
			if !errors.Is(err, ErrInvalidSignature) {
				t.Errorf("Expected ErrInvalidSignature, got %v", err)
			}
		})
	}
}

func TestMatchSignatureNil(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.MatchSignature(context.Background(), nil); err == nil {
		t.Error("Expected error for nil signature")
	}
}

func TestAddSamplesTooShort(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.AddSamples(context.Background(), make([]float64, 100), "Short", "Artist")
	if !errors.Is(err, fingerprint.ErrTooShort) {
		t.Errorf("Expected ErrTooShort, got %v", err)
	}
}

func TestTrackLifecycle(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	_, refs := addLibrary(t, svc)

	tracks, err := svc.ListTracks(ctx)
	if err != nil {
		t.Fatalf("ListTracks failed: %v", err)
	}
	if len(tracks) != 3 {
		t.Fatalf("Expected 3 tracks, got %d", len(tracks))
	}
	if tracks[0].Title != "First" || tracks[0].Length != 437 {
		t.Errorf("Expected 'First' with 437 sub-fingerprints, got '%s' with %d", tracks[0].Title, tracks[0].Length)
	}

	got, err := svc.GetTrack(ctx, refs[1])
	if err != nil {
		t.Fatalf("GetTrack failed: %v", err)
	}
	if got.Title != "Second" {
		t.Errorf("Expected title 'Second', got '%s'", got.Title)
	}

	if err := svc.DeleteTrack(ctx, refs[1]); err != nil {
		t.Fatalf("DeleteTrack failed: %v", err)
	}
	if _, err := svc.GetTrack(ctx, refs[1]); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
	if err := svc.DeleteTrack(ctx, refs[1]); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
}

func TestBadgerIndexedService(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, WithBadgerIndex(filepath.Join(t.TempDir(), "index")))
	samples, refs := addLibrary(t, svc)

	report, err := svc.MatchSamples(ctx, samples[0])
	if err != nil {
		t.Fatalf("MatchSamples failed: %v", err)
	}
	if best, ok := report.Best(); !ok || best.ReferenceID != refs[0] {
		t.Fatalf("Expected best match %s, got %+v", refs[0], best)
	}

	if err := svc.DeleteTrack(ctx, refs[0]); err != nil {
		t.Fatalf("DeleteTrack failed: %v", err)
	}
	report, err = svc.MatchSamples(ctx, samples[0])
	if err != nil {
		t.Fatalf("MatchSamples failed: %v", err)
	}
	if len(report.Results) != 0 {
		t.Errorf("Expected no matches after delete, got %+v", report.Results)
	}
}

func TestInMemoryBadgerRebuild(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "test.sqlite3")

	svc, err := NewService(WithDBPath(dbPath), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	samples, refs := addLibrary(t, svc)
	svc.Close()

	svc, err = NewService(WithDBPath(dbPath), WithLogger(quietLogger()), WithBadgerIndex(""))
	if err != nil {
		t.Fatalf("NewService with badger failed: %v", err)
	}
	defer svc.Close()

	report, err := svc.MatchSamples(ctx, samples[2])
	if err != nil {
		t.Fatalf("MatchSamples failed: %v", err)
	}
	if best, ok := report.Best(); !ok || best.ReferenceID != refs[2] {
		t.Errorf("Expected best match %s, got %+v", refs[2], best)
	}
}

func TestCalculateConfidence(t *testing.T) {
	tests := []struct {
		ber, threshold int
		want           float64
	}{
		{0, 2867, 100},
		{2867, 2867, 0},
		{4000, 2867, 0},
		{1000, 2000, 50},
		{10, 0, 0},
	}
	for _, tt := range tests {
		if got := calculateConfidence(tt.ber, tt.threshold); got != tt.want {
			t.Errorf("calculateConfidence(%d, %d): expected %.2f, got %.2f", tt.ber, tt.threshold, tt.want, got)
		}
	}
}

func TestExportSignatureTextRoundTrip(t *testing.T) {
	// ExportSignature needs ffmpeg; the text form it writes is checked here
	// on a generated signature instead.
	sig, err := fingerprint.Generate(noise(5, 24000))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	var buf bytes.Buffer
	if err := sig.WriteText(&buf); err != nil {
		t.Fatalf("WriteText failed: %v", err)
	}
	if !strings.Contains(buf.String(), signature.TextSeparator) {
		t.Fatal("Expected separator in text form")
	}
	back, err := signature.ReadText(&buf)
	if err != nil {
		t.Fatalf("ReadText failed: %v", err)
	}
	if signature.BER(sig, back) != 0 {
		t.Errorf("Expected identical signature after round trip")
	}
}
