package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"git.home.luguber.info/inful/harnesscache/internal/foundation/errors"
)

// Environment variables recognised on top of the YAML file.
const (
	EnvCacheRoot   = "HARNESS_CACHE_ROOT"
	EnvHTTPTimeout = "HARNESS_HTTP_TIMEOUT"
	EnvTar         = "HARNESS_TAR"
	EnvArtifacts   = "HARNESS_ARTIFACTS"
	EnvLogLevel    = "HARNESS_LOG_LEVEL"
	EnvLogFormat   = "HARNESS_LOG_FORMAT"
	EnvMaxRetries  = "HARNESS_MAX_RETRIES"
	EnvMetrics     = "HARNESS_METRICS_LISTEN"
)

var envFiles = []string{".env", ".env.local"}

// loadEnvFiles loads the first readable .env file. Existing process
// environment variables are never overwritten.
func loadEnvFiles() {
	for _, path := range envFiles {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			slog.Warn("Failed to load env file", "path", path, "error", err)
			continue
		}
		slog.Debug("Loaded environment variables", "path", path)
		return
	}
}

// applyEnvOverrides lets HARNESS_* variables win over file values.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv(EnvCacheRoot); v != "" {
		cfg.Cache.Root = v
	}
	if v := os.Getenv(EnvTar); v != "" {
		cfg.Cache.TarCommand = v
	}
	if v := os.Getenv(EnvArtifacts); v != "" {
		cfg.State.ArtifactsDir = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = LogLevel(v)
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		cfg.Logging.Format = LogFormat(v)
	}
	if v := os.Getenv(EnvMetrics); v != "" {
		cfg.Metrics.Listen = v
	}
	if v := os.Getenv(EnvHTTPTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.WrapError(err, errors.CategoryConfig, "invalid "+EnvHTTPTimeout).Fatal().Build()
		}
		cfg.Cache.HTTPTimeout = d
	}
	if v := os.Getenv(EnvMaxRetries); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.WrapError(err, errors.CategoryConfig, "invalid "+EnvMaxRetries).Fatal().Build()
		}
		cfg.Retry.MaxRetries = &n
	}
	return nil
}
