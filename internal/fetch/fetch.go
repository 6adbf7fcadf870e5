// Package fetch is the HTTP transport primitive used by the asset cache.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"git.home.luguber.info/inful/harnesscache/internal/foundation/errors"
	"git.home.luguber.info/inful/harnesscache/internal/logfields"
)

// Fetcher retrieves the bytes published at a URL.
type Fetcher interface {
	// Fetch returns the response body of a successful GET. Non-2xx statuses
	// and unreachable hosts yield a TransportError. The caller closes the body.
	Fetch(ctx context.Context, url string) (io.ReadCloser, error)
}

// HTTPFetcher implements Fetcher with net/http.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

// Option configures an HTTPFetcher.
type Option func(*HTTPFetcher)

// WithClient replaces the underlying HTTP client.
func WithClient(c *http.Client) Option {
	return func(f *HTTPFetcher) { f.client = c }
}

// WithUserAgent sets the User-Agent header sent with each request.
func WithUserAgent(ua string) Option {
	return func(f *HTTPFetcher) { f.userAgent = ua }
}

// NewHTTPFetcher creates a fetcher. A zero timeout means requests only end
// when the server finishes or ctx is cancelled.
func NewHTTPFetcher(timeout time.Duration, opts ...Option) *HTTPFetcher {
	f := &HTTPFetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: "harnesscache",
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch performs a GET request and returns the body on a 2xx response.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryValidation, "build request").
			WithContext("url", url).
			Build()
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryTransport, "fetch "+url).
			Retryable().
			WithContext("url", url).
			Build()
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		slog.Debug("HTTP fetch failed", logfields.URL(url), logfields.Status(resp.StatusCode))
		return nil, errors.TransportError(fmt.Sprintf("fetch %s: HTTP %d", url, resp.StatusCode)).
			WithRetry(statusRetry(resp.StatusCode)).
			WithContext(logfields.KeyURL, url).
			WithContext(logfields.KeyStatus, resp.StatusCode).
			Build()
	}
	return resp.Body, nil
}

// statusRetry classifies a non-2xx status. Client errors are permanent except
// for request timeouts and rate limiting.
func statusRetry(code int) errors.RetryStrategy {
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return errors.RetryBackoff
	case code >= 400 && code < 500:
		return errors.RetryNever
	default:
		return errors.RetryBackoff
	}
}

// ReadAll fetches url and reads at most limit bytes of the body.
func ReadAll(ctx context.Context, f Fetcher, url string, limit int64) ([]byte, error) {
	body, err := f.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(body, limit))
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryTransport, "read "+url).
			Retryable().
			WithContext("url", url).
			Build()
	}
	return data, nil
}
