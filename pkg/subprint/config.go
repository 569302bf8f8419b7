package subprint

import (
	"os"

	"github.com/himanishpuri/SubPrint/pkg/subprint/fingerprint"
	"github.com/himanishpuri/SubPrint/pkg/subprint/hamming"
	"github.com/himanishpuri/SubPrint/pkg/subprint/planner"
	"github.com/himanishpuri/SubPrint/pkg/subprint/storage"
)

type Config struct {
	DBPath      string
	TempDir     string
	PostgresDSN string

	// UseBadger routes term queries through a badger index. An empty
	// BadgerDir keeps the index in memory and rebuilds it on start.
	UseBadger bool
	BadgerDir string

	FilterMode     fingerprint.FilterMode
	Plans          []planner.Plan
	VariantQuality *hamming.Window

	Logger  Logger
	Storage Storage
}

type Option func(*Config)

func WithDBPath(path string) Option {
	return func(c *Config) {
		c.DBPath = path
	}
}

func WithTempDir(dir string) Option {
	return func(c *Config) {
		c.TempDir = dir
	}
}

func WithLogger(log Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

// WithStorage replaces the built-in backends. The service closes it.
func WithStorage(storage Storage) Option {
	return func(c *Config) {
		c.Storage = storage
	}
}

// WithPostgres stores tracks and hash terms in PostgreSQL instead of SQLite.
func WithPostgres(dsn string) Option {
	return func(c *Config) {
		c.PostgresDSN = dsn
	}
}

func WithBadgerIndex(dir string) Option {
	return func(c *Config) {
		c.UseBadger = true
		c.BadgerDir = dir
	}
}

func WithFilterMode(m fingerprint.FilterMode) Option {
	return func(c *Config) {
		c.FilterMode = m
	}
}

func WithPlans(plans ...planner.Plan) Option {
	return func(c *Config) {
		c.Plans = append([]planner.Plan(nil), plans...)
	}
}

// WithVariantQuality sets the popcount window bit-flip variants must fall in.
func WithVariantQuality(min, max int) Option {
	return func(c *Config) {
		c.VariantQuality = &hamming.Window{Min: min, Max: max}
	}
}

func defaultConfig() *Config {
	return &Config{
		DBPath:     storage.DefaultDBFile,
		TempDir:    os.TempDir(),
		FilterMode: fingerprint.Butterworth,
	}
}
