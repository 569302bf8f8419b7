package subprint

import (
	"context"
	"io"

	"github.com/himanishpuri/SubPrint/pkg/models"
	"github.com/himanishpuri/SubPrint/pkg/subprint/planner"
	"github.com/himanishpuri/SubPrint/pkg/subprint/signature"
	"github.com/himanishpuri/SubPrint/pkg/subprint/storage"
)

type Service interface {
	AddTrack(ctx context.Context, audioPath, title, artist string) (string, error)
	AddSamples(ctx context.Context, samples []float64, title, artist string) (string, error)
	Match(ctx context.Context, audioPath string) (*models.MatchReport, error)
	MatchSamples(ctx context.Context, samples []float64) (*models.MatchReport, error)
	MatchSignature(ctx context.Context, sig *signature.Signature) (*models.MatchReport, error)
	MatchEncoded(ctx context.Context, hashesB64, reliabilitiesB64 string) (*models.MatchReport, error)
	ExportSignature(ctx context.Context, audioPath string, w io.Writer) error
	GetTrack(ctx context.Context, referenceID string) (*models.Track, error)
	ListTracks(ctx context.Context) ([]models.Track, error)
	DeleteTrack(ctx context.Context, referenceID string) error
	Close() error
}

// Storage is a record store that is also an inverted index over hash terms.
type Storage interface {
	planner.IndexProbe
	planner.SignatureLoader

	StoreTrack(ctx context.Context, meta storage.TrackMeta, sig *signature.Signature) (*storage.Track, error)
	GetTrack(ctx context.Context, referenceID string) (*storage.Track, error)
	GetTrackSignature(ctx context.Context, referenceID string) (*signature.Signature, error)
	ListTracks(ctx context.Context) ([]storage.Track, error)
	DeleteTrack(ctx context.Context, referenceID string) error
	Close() error
}

type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}
