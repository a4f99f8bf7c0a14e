package settings

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 250 * time.Millisecond

// Watcher reloads the settings file when it changes on disk and hands each
// successfully parsed result to the apply callback. A file that fails to
// load keeps the previous settings in effect.
type Watcher struct {
	path     string
	apply    func(Settings)
	logger   *slog.Logger
	debounce time.Duration
}

// NewWatcher creates a watcher for the settings file at path.
func NewWatcher(path string, apply func(Settings), logger *slog.Logger) *Watcher {
	return &Watcher{
		path:     path,
		apply:    apply,
		logger:   logger,
		debounce: defaultDebounce,
	}
}

// Start begins watching until the context is cancelled. The parent directory
// is watched rather than the file itself because editors and Save both
// replace the file, which would otherwise drop the watch.
func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create settings watcher: %w", err)
	}

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	go w.loop(ctx, watcher)
	w.logger.Info("settings watcher started", "path", w.path)
	return nil
}

func (w *Watcher) loop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	// One save produces several events; the debounce window collapses them
	// into one reload. A nil channel blocks until a change arms it.
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != filepath.Clean(w.path) {
				continue
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(w.debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("settings watcher error", "error", err)
		case <-pending:
			pending = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	s, err := Load(w.path)
	if err != nil {
		w.logger.Warn("settings reload failed, keeping previous settings", "error", err)
		return
	}
	w.logger.Info("settings reloaded", "path", w.path, "locations", len(s.Locations), "interval", s.Interval())
	w.apply(s)
}
