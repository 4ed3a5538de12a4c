package watchfile

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 200 * time.Millisecond

// Watcher reloads a Provider when its file changes and then calls onReload.
// The parent directory is watched so editors that replace the file by rename
// are picked up.
type Watcher struct {
	provider *Provider
	onReload func()
	debounce time.Duration
	logger   *slog.Logger

	fs   *fsnotify.Watcher
	path string
}

// NewWatcher starts watching p's file. A non-positive debounce uses the default.
func NewWatcher(p *Provider, debounce time.Duration, onReload func(), logger *slog.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	path, err := filepath.Abs(p.Path())
	if err != nil {
		return nil, err
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fs.Add(filepath.Dir(path)); err != nil {
		fs.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	return &Watcher{
		provider: p,
		onReload: onReload,
		debounce: debounce,
		logger:   logger.With("component", "datewatch-watchfile", "path", path),
		fs:       fs,
		path:     path,
	}, nil
}

// Run processes file events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("File watcher error", "error", err)

		case <-fire:
			fire = nil
			w.reload()
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != w.path {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)
}

func (w *Watcher) reload() {
	if err := w.provider.Load(); err != nil {
		w.logger.Error("Failed to reload watcher file, keeping previous watchers", "error", err)
		return
	}
	if w.onReload != nil {
		w.onReload()
	}
}

// Close stops watching. Run returns once its event channels drain.
func (w *Watcher) Close() error {
	return w.fs.Close()
}
