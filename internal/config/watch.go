package config

import (
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher hot-reloads the tools descriptor and model catalog files,
// grounded on the teacher's internal/skills.Manager watch loop: a single
// fsnotify.Watcher, a debounce window to coalesce editor save-as-rename
// bursts, and a cancellable background goroutine.
type Watcher struct {
	fsw      *fsnotify.Watcher
	debounce time.Duration
	logger   *slog.Logger
	done     chan struct{}
}

// NewWatcher creates a Watcher with no paths registered yet.
func NewWatcher(logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{fsw: fsw, debounce: 300 * time.Millisecond, logger: logger.With("component", "config.watcher"), done: make(chan struct{})}, nil
}

// Watch registers path and invokes onChange (debounced) whenever it
// changes, is created, or is renamed into place (covers editors that save
// via write-to-temp-then-rename).
func (w *Watcher) Watch(path string, onChange func()) error {
	if err := w.fsw.Add(path); err != nil {
		return err
	}
	go w.loop(path, onChange)
	return nil
}

func (w *Watcher) loop(path string, onChange func()) {
	var timer *time.Timer
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Name != path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, onChange)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watch error", "error", err)
		}
	}
}

// Close stops the watch loop and releases the underlying inotify/kqueue
// handle.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}
