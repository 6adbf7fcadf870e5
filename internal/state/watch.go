package state

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/harnesscache/internal/foundation/errors"
	"git.home.luguber.info/inful/harnesscache/internal/logfields"
)

// Watch calls fn with the parsed snapshot at path whenever it is replaced or
// rewritten, and once at start when the file already exists. It returns nil
// when ctx is done.
//
// The parent directory is watched rather than the file, since every persist
// renames a new file over the old one.
func Watch(ctx context.Context, path string, fn func(Value)) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "resolve state path").
			WithContext("state_path", path).
			Build()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.WrapError(err, errors.CategoryInternal, "create file watcher").Build()
	}
	defer func() {
		_ = watcher.Close()
	}()

	dir := filepath.Dir(absPath)
	if err := watcher.Add(dir); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "watch state directory").
			WithContext("path", dir).
			Build()
	}
	slog.Info("Watching run state", logfields.StatePath(absPath))

	deliver := func() {
		data, err := os.ReadFile(absPath) // #nosec G304 -- snapshot path comes from configuration
		if err != nil {
			slog.Debug("State snapshot not readable", logfields.StatePath(absPath), logfields.Error(err))
			return
		}
		doc, err := ParseJSON(data)
		if err != nil {
			slog.Warn("Ignoring unparsable state snapshot", logfields.StatePath(absPath), logfields.Error(err))
			return
		}
		fn(doc)
	}
	deliver()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != absPath {
				continue
			}
			switch {
			case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
				deliver()
			case event.Op&fsnotify.Remove != 0:
				slog.Warn("State snapshot removed", logfields.StatePath(absPath))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("State watcher error", logfields.Error(err))
		}
	}
}
