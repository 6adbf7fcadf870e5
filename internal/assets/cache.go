package assets

import (
	"os"
	"path/filepath"

	"golang.org/x/sync/singleflight"

	"git.home.luguber.info/inful/harnesscache/internal/fetch"
	"git.home.luguber.info/inful/harnesscache/internal/foundation/errors"
	"git.home.luguber.info/inful/harnesscache/internal/metrics"
	"git.home.luguber.info/inful/harnesscache/internal/process"
)

const (
	expandedDirName = "expanded"
	sidecarSuffix   = ".sha256"
	maxSidecarBytes = 4096
	defaultTar      = "tar"
)

// Cache is a content-addressed cache of downloaded files and expanded archives
// rooted at a single directory. It is safe to share one root between several
// processes; see the package documentation for what that guarantees.
type Cache struct {
	root     string
	fetcher  fetch.Fetcher
	runner   process.Runner
	tar      string
	recorder metrics.Recorder

	// group collapses concurrent in-process fetches of the same URL.
	group singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

// WithFetcher sets the HTTP fetch primitive.
func WithFetcher(f fetch.Fetcher) Option {
	return func(c *Cache) { c.fetcher = f }
}

// WithRunner sets the process-exec primitive used for extraction.
func WithRunner(r process.Runner) Option {
	return func(c *Cache) { c.runner = r }
}

// WithTarCommand overrides the extraction tool (default "tar").
func WithTarCommand(name string) Option {
	return func(c *Cache) {
		if name != "" {
			c.tar = name
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(c *Cache) {
		if r != nil {
			c.recorder = r
		}
	}
}

// New creates a cache rooted at root. The directory is created lazily on first use.
func New(root string, opts ...Option) *Cache {
	c := &Cache{
		root:     root,
		fetcher:  fetch.NewHTTPFetcher(0),
		runner:   process.ExecRunner{},
		tar:      defaultTar,
		recorder: metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Root returns the cache root directory.
func (c *Cache) Root() string { return c.root }

// FilePath is where a downloaded file with the given hash lives.
func (c *Cache) FilePath(hash string) string {
	return filepath.Join(c.root, hash)
}

// ExpandedPath is where the expansion of an archive with the given hash lives.
func (c *Cache) ExpandedPath(hash string) string {
	return filepath.Join(c.root, expandedDirName, hash)
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "create cache directory").
			WithContext("path", dir).
			Build()
	}
	return nil
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
