package config

import (
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/harnesscache/internal/foundation/errors"
)

// Validate checks a configuration after defaults have been applied.
func Validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Cache.Root) == "" {
		return errors.ValidationError("cache.root must not be empty").Build()
	}
	if strings.TrimSpace(cfg.Cache.TarCommand) == "" {
		return errors.ValidationError("cache.tar_command must not be empty").Build()
	}
	if cfg.State.FileName != filepath.Base(cfg.State.FileName) {
		return errors.ValidationError("state.file_name must be a bare file name").
			WithContext("file_name", cfg.State.FileName).
			Build()
	}
	if cfg.Retry.Initial > cfg.Retry.Max {
		return errors.ValidationError("retry.initial must not exceed retry.max").
			WithContext("initial", cfg.Retry.Initial.String()).
			WithContext("max", cfg.Retry.Max.String()).
			Build()
	}
	if cfg.Retry.MaxRetries != nil && *cfg.Retry.MaxRetries < 0 {
		return errors.ValidationError("retry.max_retries cannot be negative").Build()
	}
	return nil
}
