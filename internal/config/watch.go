package config

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher reports when the content of a settings file changes on disk.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	logger  *slog.Logger
	changes chan struct{}
	last    []byte
}

// NewWatcher watches path. The parent directory is watched rather than the
// file, so editors that replace the file on save are still followed.
func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	last, _ := os.ReadFile(path)
	return &Watcher{
		path:    path,
		watcher: watcher,
		logger:  logger,
		changes: make(chan struct{}, 1),
		last:    last,
	}, nil
}

// Changes receives a value after the file content changed. Changes that
// arrive before the previous one is received are merged.
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

// Run forwards file events until ctx is cancelled or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case evt, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(evt.Name) != filepath.Base(w.path) {
				continue
			}
			if !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) && !evt.Has(fsnotify.Rename) {
				continue
			}

			// Truncating writes show up as an empty file first.
			data, err := os.ReadFile(w.path)
			if err != nil || len(data) == 0 || bytes.Equal(data, w.last) {
				continue
			}
			w.last = data
			w.logger.Debug("config: settings file changed", "file", w.path, "op", evt.Op.String())

			select {
			case w.changes <- struct{}{}:
			default:
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config: watch error", "file", w.path, "err", err)
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
