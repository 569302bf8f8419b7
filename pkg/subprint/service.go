package subprint

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/himanishpuri/SubPrint/pkg/logger"
	"github.com/himanishpuri/SubPrint/pkg/models"
	"github.com/himanishpuri/SubPrint/pkg/subprint/audio"
	"github.com/himanishpuri/SubPrint/pkg/subprint/fingerprint"
	"github.com/himanishpuri/SubPrint/pkg/subprint/planner"
	"github.com/himanishpuri/SubPrint/pkg/subprint/signature"
	"github.com/himanishpuri/SubPrint/pkg/subprint/storage"
	"github.com/himanishpuri/SubPrint/pkg/subprint/variant"
	"github.com/himanishpuri/SubPrint/pkg/utils"
)

var ErrInvalidSignature = errors.New("invalid signature encoding")

// subprintService is the default implementation of the Service interface.
type subprintService struct {
	storage Storage
	planner *planner.Planner
	log     Logger
	config  *Config
}

func NewService(opts ...Option) (Service, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger().WithPrefix("subprint")
	}

	var stor Storage
	var err error
	switch {
	case cfg.Storage != nil:
		stor = cfg.Storage
	case cfg.PostgresDSN != "":
		stor, err = NewPostgresStorage(context.Background(), cfg.PostgresDSN)
	default:
		stor, err = NewSQLiteStorage(cfg.DBPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}

	if cfg.UseBadger {
		indexed, err := NewBadgerIndexedStorage(stor, cfg.BadgerDir)
		if err != nil {
			stor.Close()
			return nil, fmt.Errorf("failed to open badger index: %w", err)
		}
		if cfg.BadgerDir == "" {
			n, err := indexed.(*indexedStorage).Reindex(context.Background())
			if err != nil {
				indexed.Close()
				return nil, fmt.Errorf("failed to rebuild term index: %w", err)
			}
			cfg.Logger.Infof("Rebuilt in-memory term index for %d tracks", n)
		}
		stor = indexed
	}

	plannerOpts := []planner.Option{planner.WithLogger(cfg.Logger)}
	if len(cfg.Plans) > 0 {
		plannerOpts = append(plannerOpts, planner.WithPlans(cfg.Plans...))
	}
	if cfg.VariantQuality != nil {
		plannerOpts = append(plannerOpts, planner.WithExpander(&variant.Expander{Quality: *cfg.VariantQuality}))
	}

	return &subprintService{
		storage: stor,
		planner: planner.New(stor, stor, plannerOpts...),
		log:     cfg.Logger,
		config:  cfg,
	}, nil
}

// signatureFromAudio converts any ffmpeg-readable file to mono 5512 Hz and
// fingerprints it. The intermediate WAV is removed afterwards.
func (s *subprintService) signatureFromAudio(ctx context.Context, audioPath string) (*signature.Signature, error) {
	wavPath, err := audio.ConvertToMonoWAV(ctx, audioPath, s.config.TempDir, audio.ConvertWAVConfig{
		SampleRate: fingerprint.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("audio conversion failed: %w", err)
	}
	defer utils.DeleteFile(wavPath)

	sig, err := fingerprint.GenerateFromWAV(wavPath, fingerprint.WithFilterMode(s.config.FilterMode))
	if err != nil {
		return nil, fmt.Errorf("fingerprinting failed: %w", err)
	}
	return sig, nil
}

// AddTrack fingerprints an audio file and stores it. It returns the new
// track's reference id.
func (s *subprintService) AddTrack(ctx context.Context, audioPath, title, artist string) (string, error) {
	s.log.Infof("Processing track: %s by %s", title, artist)

	sig, err := s.signatureFromAudio(ctx, audioPath)
	if err != nil {
		return "", err
	}
	return s.store(ctx, sig, title, artist)
}

// AddSamples stores mono samples already at 5512 Hz.
func (s *subprintService) AddSamples(ctx context.Context, samples []float64, title, artist string) (string, error) {
	sig, err := fingerprint.Generate(samples, fingerprint.WithFilterMode(s.config.FilterMode))
	if err != nil {
		return "", fmt.Errorf("fingerprinting failed: %w", err)
	}
	return s.store(ctx, sig, title, artist)
}

func (s *subprintService) store(ctx context.Context, sig *signature.Signature, title, artist string) (string, error) {
	s.log.Infof("Generated %d sub-fingerprints (%d ms)", sig.Len(), sig.DurationMs)

	t, err := s.storage.StoreTrack(ctx, storage.TrackMeta{Title: title, Artist: artist}, sig)
	if err != nil {
		return "", fmt.Errorf("failed to store track: %w", err)
	}

	s.log.Infof("Successfully added track %s (id=%d)", t.ReferenceID, t.ID)
	return t.ReferenceID, nil
}

// Match finds the stored tracks an audio excerpt was taken from.
func (s *subprintService) Match(ctx context.Context, audioPath string) (*models.MatchReport, error) {
	s.log.Infof("Matching audio: %s", audioPath)

	sig, err := s.signatureFromAudio(ctx, audioPath)
	if err != nil {
		return nil, err
	}
	return s.MatchSignature(ctx, sig)
}

func (s *subprintService) MatchSamples(ctx context.Context, samples []float64) (*models.MatchReport, error) {
	sig, err := fingerprint.Generate(samples, fingerprint.WithFilterMode(s.config.FilterMode))
	if err != nil {
		return nil, fmt.Errorf("fingerprinting failed: %w", err)
	}
	return s.MatchSignature(ctx, sig)
}

// MatchEncoded matches a signature sent as base64 packed hashes and an
// optional base64 reliability buffer.
func (s *subprintService) MatchEncoded(ctx context.Context, hashesB64, reliabilitiesB64 string) (*models.MatchReport, error) {
	hashBytes, err := base64.StdEncoding.DecodeString(hashesB64)
	if err != nil {
		return nil, fmt.Errorf("%w: hashes: %v", ErrInvalidSignature, err)
	}
	relBytes, err := base64.StdEncoding.DecodeString(reliabilitiesB64)
	if err != nil {
		return nil, fmt.Errorf("%w: reliabilities: %v", ErrInvalidSignature, err)
	}
	sig, err := signature.FromBytes(hashBytes, relBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	return s.MatchSignature(ctx, sig)
}

func (s *subprintService) MatchSignature(ctx context.Context, sig *signature.Signature) (*models.MatchReport, error) {
	if sig == nil {
		return nil, planner.ErrNilQuery
	}
	s.log.Debugf("Query has %d sub-fingerprints", sig.Len())

	rs, err := s.planner.Match(ctx, sig)
	if err != nil {
		return nil, err
	}
	for _, p := range rs.Plans {
		s.log.Debugf("plan %d (%s): %d iterations, %d candidates, %d verified, %d hits",
			p.PlanID, p.Name, p.Iterations, p.Candidates, p.Verified, p.Hits)
	}

	report := &models.MatchReport{
		Results:   make([]models.MatchResult, 0, len(rs.Entries)),
		Plans:     make([]models.PlanSummary, len(rs.Plans)),
		Timings:   toTimings(rs.Timings),
		Cancelled: rs.Cancelled,
	}

	threshold := signature.BERThreshold(signature.BlockSize)
	for _, e := range rs.Entries {
		res := models.MatchResult{
			ReferenceID:   e.Reference,
			BER:           e.BER,
			OffsetMs:      e.OffsetMs,
			PlanID:        e.PlanID,
			Iteration:     e.Iteration,
			Variant:       e.Variant,
			MatchListRank: e.MatchListRank,
			IndexHits:     e.IndexHits,
			Confidence:    calculateConfidence(e.BER, threshold),
		}
		if t, err := s.storage.GetTrack(ctx, e.Reference); err != nil {
			s.log.Warnf("Failed to get track %s: %v", e.Reference, err)
		} else {
			res.Title = t.Title
			res.Artist = t.Artist
		}
		report.Results = append(report.Results, res)
	}

	for i, p := range rs.Plans {
		report.Plans[i] = models.PlanSummary{
			ID:         p.PlanID,
			Name:       p.Name,
			Iterations: p.Iterations,
			Candidates: p.Candidates,
			Verified:   p.Verified,
			Hits:       p.Hits,
			BestBER:    p.BestBER,
			Cancelled:  p.Cancelled,
		}
		if p.Err != nil {
			report.Plans[i].Error = p.Err.Error()
		}
	}

	s.log.Infof("Returning %d matches", len(report.Results))
	return report, nil
}

// calculateConfidence maps a BER below the threshold onto 0-100, where an
// identical block scores 100.
func calculateConfidence(ber, threshold int) float64 {
	if threshold <= 0 || ber >= threshold {
		return 0
	}
	if ber < 0 {
		ber = 0
	}
	return 100 * float64(threshold-ber) / float64(threshold)
}

func toTimings(t planner.Timings) models.Timings {
	return models.Timings{
		Probe:  t.Probe,
		Query:  t.Query,
		Load:   t.Load,
		Verify: t.Verify,
		Total:  t.Total(),
	}
}

// ExportSignature writes the text form of an audio file's signature to w.
func (s *subprintService) ExportSignature(ctx context.Context, audioPath string, w io.Writer) error {
	sig, err := s.signatureFromAudio(ctx, audioPath)
	if err != nil {
		return err
	}
	return sig.WriteText(w)
}

func toTrack(t *storage.Track) models.Track {
	return models.Track{
		ReferenceID: t.ReferenceID,
		Title:       t.Title,
		Artist:      t.Artist,
		DurationMs:  t.DurationMs,
		Length:      t.Length,
		CreatedAt:   t.CreatedAt,
	}
}

func (s *subprintService) GetTrack(ctx context.Context, referenceID string) (*models.Track, error) {
	t, err := s.storage.GetTrack(ctx, referenceID)
	if err != nil {
		return nil, err
	}
	out := toTrack(t)
	return &out, nil
}

func (s *subprintService) ListTracks(ctx context.Context) ([]models.Track, error) {
	rows, err := s.storage.ListTracks(ctx)
	if err != nil {
		return nil, err
	}
	tracks := make([]models.Track, len(rows))
	for i := range rows {
		tracks[i] = toTrack(&rows[i])
	}
	return tracks, nil
}

// DeleteTrack removes a track and all its hash terms.
func (s *subprintService) DeleteTrack(ctx context.Context, referenceID string) error {
	if err := s.storage.DeleteTrack(ctx, referenceID); err != nil {
		return err
	}
	s.log.Infof("Deleted track %s", referenceID)
	return nil
}

// Close releases all resources held by the service.
func (s *subprintService) Close() error {
	return s.storage.Close()
}
