package assets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	stderrors "errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"git.home.luguber.info/inful/harnesscache/internal/fetch"
	"git.home.luguber.info/inful/harnesscache/internal/foundation/errors"
	"git.home.luguber.info/inful/harnesscache/internal/logfields"
	"git.home.luguber.info/inful/harnesscache/internal/metrics"
)

// FetchByHash returns a local path holding the bytes published at url, named
// by the hash published at url+".sha256". A valid cached entry is returned
// without downloading url again; a corrupt one is replaced.
//
// Concurrent calls for the same url share one fetch. The shared fetch does not
// stop when a single caller gives up; each caller returns ctx.Err() as soon as
// its own context is done.
func (c *Cache) FetchByHash(ctx context.Context, url string) (string, error) {
	ch := c.group.DoChan(url, func() (any, error) {
		return c.fetchByHash(context.WithoutCancel(ctx), url)
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (c *Cache) fetchByHash(ctx context.Context, url string) (string, error) {
	start := time.Now()
	defer func() {
		c.recorder.ObserveOperationDuration("fetch_by_hash", time.Since(start))
	}()

	expected, err := c.ExpectedHash(ctx, url)
	if err != nil {
		return "", err
	}
	if err := ensureDir(c.root); err != nil {
		return "", err
	}

	target := c.FilePath(expected)
	actual, err := HashFile(target)
	switch {
	case err == nil && actual == expected:
		c.recorder.IncCacheLookup(metrics.LookupHit)
		slog.Debug("Asset cache hit", logfields.URL(url), logfields.Path(target))
		return target, nil
	case err == nil:
		c.recorder.IncCacheLookup(metrics.LookupMismatch)
		slog.Warn("Cached asset hash mismatch, re-fetching",
			logfields.URL(url),
			logfields.Path(target),
			logfields.ExpectedHash(expected),
			logfields.ActualHash(actual))
	case stderrors.Is(err, fs.ErrNotExist):
		c.recorder.IncCacheLookup(metrics.LookupMiss)
	default:
		return "", err
	}

	if err := c.download(ctx, url, target, expected); err != nil {
		return "", err
	}
	return target, nil
}

// ExpectedHash fetches and validates the sidecar hash for url.
func (c *Cache) ExpectedHash(ctx context.Context, url string) (string, error) {
	sidecar := url + sidecarSuffix
	body, err := fetch.ReadAll(ctx, c.fetcher, sidecar, maxSidecarBytes)
	if err != nil {
		return "", err
	}
	digest, ok := parseSidecar(body)
	if !ok {
		return "", errors.TransportError("sidecar does not contain a sha256 digest").
			WithRetry(errors.RetryNever).
			WithContext("url", sidecar).
			WithContext("body", string(body)).
			Build()
	}
	return digest, nil
}

// download streams url into a temporary file next to target, verifies the
// digest while writing and renames the file into place.
func (c *Cache) download(ctx context.Context, url, target, expected string) (err error) {
	start := time.Now()
	var written int64
	defer func() {
		c.recorder.ObserveDownload(time.Since(start), written, err == nil)
	}()

	slog.Info("Downloading asset", logfields.URL(url), logfields.ExpectedHash(expected), logfields.CacheRoot(c.root))

	body, err := c.fetcher.Fetch(ctx, url)
	if err != nil {
		return err
	}
	defer func() {
		_ = body.Close()
	}()

	tmp, err := os.CreateTemp(c.root, "."+expected+".*.partial")
	if err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "create temporary download file").
			WithContext("path", c.root).
			Build()
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	h := sha256.New()
	written, err = io.Copy(io.MultiWriter(tmp, h), body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return errors.WrapError(err, errors.CategoryTransport, "download "+url).
			Retryable().
			WithContext("url", url).
			Build()
	}

	if actual := hex.EncodeToString(h.Sum(nil)); actual != expected {
		return errors.IntegrityError("downloaded content does not match sidecar hash").
			WithContext("url", url).
			WithContext("expected_hash", expected).
			WithContext("actual_hash", actual).
			Build()
	}

	if err = os.Chmod(tmpPath, 0o644); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "chmod downloaded file").
			WithContext("path", tmpPath).
			Build()
	}
	if err = os.Rename(tmpPath, target); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "publish downloaded file").
			WithContext("path", target).
			Build()
	}

	slog.Info("Asset cached",
		logfields.URL(url),
		logfields.Path(target),
		logfields.Bytes(written),
		logfields.DurationMS(float64(time.Since(start).Milliseconds())))
	return nil
}
