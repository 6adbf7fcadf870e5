package config

import (
	"os"
	"path/filepath"
	"time"
)

const (
	appName          = "harnesscache"
	defaultStateFile = "state.json"
	defaultArtifacts = "./artifacts"
	defaultTar       = "tar"
)

// DefaultApplier applies defaults for a specific configuration domain.
type DefaultApplier interface {
	ApplyDefaults(cfg *Config) error
	Domain() string
}

// CacheDefaultApplier handles Cache configuration defaults.
type CacheDefaultApplier struct{}

func (CacheDefaultApplier) Domain() string { return "cache" }

func (CacheDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Cache.Root == "" {
		cfg.Cache.Root = DefaultCacheRoot()
	}
	if cfg.Cache.TarCommand == "" {
		cfg.Cache.TarCommand = defaultTar
	}
	if cfg.Cache.HTTPTimeout < 0 {
		cfg.Cache.HTTPTimeout = 0
	}
	return nil
}

// StateDefaultApplier handles State configuration defaults.
type StateDefaultApplier struct{}

func (StateDefaultApplier) Domain() string { return "state" }

func (StateDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.State.ArtifactsDir == "" {
		cfg.State.ArtifactsDir = defaultArtifacts
	}
	if cfg.State.FileName == "" {
		cfg.State.FileName = defaultStateFile
	}
	return nil
}

// LoggingDefaultApplier normalizes logging settings.
type LoggingDefaultApplier struct{}

func (LoggingDefaultApplier) Domain() string { return "logging" }

func (LoggingDefaultApplier) ApplyDefaults(cfg *Config) error {
	cfg.Logging.Level = NormalizeLogLevel(string(cfg.Logging.Level))
	cfg.Logging.Format = NormalizeLogFormat(string(cfg.Logging.Format))
	return nil
}

// RetryDefaultApplier fills the orchestration retry policy (linear, 1s initial, 30s cap, 2 retries).
type RetryDefaultApplier struct{}

func (RetryDefaultApplier) Domain() string { return "retry" }

func (RetryDefaultApplier) ApplyDefaults(cfg *Config) error {
	if m := NormalizeRetryBackoff(string(cfg.Retry.Mode)); m != "" {
		cfg.Retry.Mode = m
	} else {
		cfg.Retry.Mode = RetryBackoffLinear
	}
	if cfg.Retry.Initial <= 0 {
		cfg.Retry.Initial = time.Second
	}
	if cfg.Retry.Max <= 0 {
		cfg.Retry.Max = 30 * time.Second
	}
	if cfg.Retry.MaxRetries == nil {
		n := 2
		cfg.Retry.MaxRetries = &n
	}
	return nil
}

func defaultAppliers() []DefaultApplier {
	return []DefaultApplier{
		CacheDefaultApplier{},
		StateDefaultApplier{},
		LoggingDefaultApplier{},
		RetryDefaultApplier{},
	}
}

// ApplyDefaults runs every domain applier in order.
func ApplyDefaults(cfg *Config) error {
	for _, applier := range defaultAppliers() {
		if err := applier.ApplyDefaults(cfg); err != nil {
			return err
		}
	}
	return nil
}

// DefaultCacheRoot is the per-user cache location conventional to the host OS.
func DefaultCacheRoot() string {
	base, err := os.UserCacheDir()
	if err != nil || base == "" {
		base = os.TempDir()
	}
	return filepath.Join(base, appName, "assets")
}

func joinPath(dir, name string) string {
	return filepath.Join(dir, name)
}
