// Package config loads harnesscache settings from an optional YAML file,
// .env files and HARNESS_* environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/harnesscache/internal/foundation/errors"
)

// Config represents the application configuration.
type Config struct {
	Cache   CacheConfig   `yaml:"cache"`
	State   StateConfig   `yaml:"state"`
	Logging LoggingConfig `yaml:"logging"`
	Retry   RetryConfig   `yaml:"retry"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// CacheConfig configures the asset cache.
type CacheConfig struct {
	// Root is the machine-wide cache directory shared by harness invocations.
	Root string `yaml:"root,omitempty"`
	// HTTPTimeout bounds each fetch. Zero means no timeout.
	HTTPTimeout time.Duration `yaml:"http_timeout,omitempty"`
	// TarCommand is the external extraction tool.
	TarCommand string `yaml:"tar_command,omitempty"`
}

// StateConfig configures the run state document.
type StateConfig struct {
	ArtifactsDir string `yaml:"artifacts_dir,omitempty"`
	FileName     string `yaml:"file_name,omitempty"`
}

// LoggingConfig controls the slog handler installed by the CLI.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level,omitempty"`
	Format LogFormat `yaml:"format,omitempty"`
}

// RetryConfig drives orchestration-level retries around cache fetches.
type RetryConfig struct {
	Mode       RetryBackoffMode `yaml:"mode,omitempty"`
	Initial    time.Duration    `yaml:"initial,omitempty"`
	Max        time.Duration    `yaml:"max,omitempty"`
	MaxRetries *int             `yaml:"max_retries,omitempty"`
}

// MetricsConfig enables the Prometheus endpoint when Listen is set.
type MetricsConfig struct {
	Listen string `yaml:"listen,omitempty"`
}

// StatePath returns the snapshot location inside the artifacts directory.
func (c *Config) StatePath() string {
	return joinPath(c.State.ArtifactsDir, c.State.FileName)
}

// Load builds the effective configuration. An empty configPath means "defaults
// plus environment"; a non-empty path must exist.
func Load(configPath string) (*Config, error) {
	loadEnvFiles()

	cfg := &Config{}
	if configPath != "" {
		if err := readFile(configPath, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := ApplyDefaults(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readFile(configPath string, cfg *Config) error {
	data, err := os.ReadFile(configPath) // #nosec G304 -- path supplied by the operator
	if err != nil {
		if os.IsNotExist(err) {
			return errors.ConfigError("configuration file not found").
				WithContext("path", configPath).
				Build()
		}
		return errors.WrapError(err, errors.CategoryConfig, "failed to read config file").
			WithContext("path", configPath).
			Build()
	}

	// Expand environment variables in the YAML content
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return errors.WrapError(err, errors.CategoryConfig, fmt.Sprintf("failed to parse %s", configPath)).
			Fatal().
			Build()
	}
	return nil
}
