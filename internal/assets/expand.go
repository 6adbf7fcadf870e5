package assets

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/harnesscache/internal/foundation/errors"
	"git.home.luguber.info/inful/harnesscache/internal/logfields"
	"git.home.luguber.info/inful/harnesscache/internal/metrics"
)

// ExpandArchive extracts the tar archive at archivePath into
// <root>/expanded/<archive-hash> and returns that directory. An existing
// destination is returned as is.
//
// Extraction happens in a uniquely named "<hash>.tmp-*" sibling that is renamed
// into place. If another extractor publishes first, its directory wins and this
// call still succeeds. On a tar failure the temporary directory is left behind.
func (c *Cache) ExpandArchive(ctx context.Context, archivePath string) (string, error) {
	start := time.Now()
	defer func() {
		c.recorder.ObserveOperationDuration("expand_archive", time.Since(start))
	}()

	hash, err := HashFile(archivePath)
	if err != nil {
		return "", err
	}
	dest := c.ExpandedPath(hash)
	if dirExists(dest) {
		c.recorder.IncExtraction(metrics.ExtractionCached)
		slog.Debug("Archive already expanded", logfields.Path(dest), logfields.Hash(hash))
		return dest, nil
	}

	parent := filepath.Dir(dest)
	if err := ensureDir(parent); err != nil {
		return "", err
	}

	tmp, err := os.MkdirTemp(parent, hash+".tmp-")
	if err != nil {
		return "", errors.WrapError(err, errors.CategoryFileSystem, "create extraction directory").
			WithContext("path", parent).
			Build()
	}

	absArchive, err := filepath.Abs(archivePath)
	if err != nil {
		absArchive = archivePath
	}

	slog.Info("Expanding archive", logfields.Path(archivePath), logfields.Hash(hash))
	if _, err := c.runner.Run(ctx, tmp, c.tar, "-xf", absArchive, "-C", tmp); err != nil {
		c.recorder.IncExtraction(metrics.ExtractionFailed)
		slog.Error("Archive extraction failed, leaving temporary directory",
			logfields.Path(tmp),
			logfields.Error(err))
		return "", err
	}

	if err := os.Rename(tmp, dest); err != nil {
		if dirExists(dest) {
			// Lost the race: another extractor published an identical tree.
			_ = os.RemoveAll(tmp)
			c.recorder.IncExtraction(metrics.ExtractionRaced)
			slog.Debug("Archive expanded concurrently", logfields.Path(dest))
			return dest, nil
		}
		return "", errors.WrapError(err, errors.CategoryFileSystem, "publish expanded archive").
			WithContext("path", dest).
			Build()
	}

	c.recorder.IncExtraction(metrics.ExtractionExtracted)
	slog.Info("Archive expanded",
		logfields.Path(dest),
		logfields.DurationMS(float64(time.Since(start).Milliseconds())))
	return dest, nil
}

// FetchAndExpand fetches a release archive by hash and expands it.
func (c *Cache) FetchAndExpand(ctx context.Context, url string) (string, error) {
	archive, err := c.FetchByHash(ctx, url)
	if err != nil {
		return "", err
	}
	return c.ExpandArchive(ctx, archive)
}
