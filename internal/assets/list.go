package assets

import (
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"git.home.luguber.info/inful/harnesscache/internal/foundation/errors"
)

// EntryKind distinguishes downloaded files from expanded archives.
type EntryKind string

const (
	KindFile     EntryKind = "file"
	KindExpanded EntryKind = "expanded"
)

// Entry describes one published cache entry.
type Entry struct {
	Hash    string
	Kind    EntryKind
	Path    string
	Size    int64 // zero for expanded archives
	ModTime time.Time
}

// List returns the published entries under the cache root, files first, each
// group sorted by hash. Temporary and partial entries are skipped. A missing
// root yields an empty list.
func (c *Cache) List() ([]Entry, error) {
	files, err := c.scan(c.root, KindFile)
	if err != nil {
		return nil, err
	}
	expanded, err := c.scan(filepath.Join(c.root, expandedDirName), KindExpanded)
	if err != nil {
		return nil, err
	}
	return append(files, expanded...), nil
}

func (c *Cache) scan(dir string, kind EntryKind) ([]Entry, error) {
	des, err := os.ReadDir(dir)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "read cache directory").
			WithContext("path", dir).
			Build()
	}

	var out []Entry
	for _, de := range des {
		if !isDigest(de.Name()) || de.IsDir() != (kind == KindExpanded) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		e := Entry{
			Hash:    de.Name(),
			Kind:    kind,
			Path:    filepath.Join(dir, de.Name()),
			ModTime: info.ModTime(),
		}
		if kind == KindFile {
			e.Size = info.Size()
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hash < out[j].Hash })
	return out, nil
}
