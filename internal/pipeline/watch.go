package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"synthpic/internal/logging"
)

// Watcher reports modifications of a configuration file.
type Watcher struct {
	path     string
	baseline time.Time
	// settle is how long the file has to stay quiet before a change counts.
	settle time.Duration
	Log    *slog.Logger
}

// NewWatcher watches path, resolving symlinks first. The current
// modification time is the baseline.
func NewWatcher(path string, settle time.Duration) (*Watcher, error) {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	return &Watcher{path: path, baseline: info.ModTime(), settle: settle}, nil
}

// Path returns the watched file.
func (w *Watcher) Path() string {
	return w.path
}

// Changed reports whether the file was modified since the last call and
// moves the baseline forward.
func (w *Watcher) Changed() bool {
	info, err := os.Stat(w.path)
	if err != nil {
		return false
	}
	if !info.ModTime().After(w.baseline) {
		return false
	}
	w.baseline = info.ModTime()
	return true
}

// Watch calls onChange after every modification until ctx is done. The
// parent directory is watched since editors often replace the file. Errors
// from onChange are logged and watching continues.
func (w *Watcher) Watch(ctx context.Context, onChange func(context.Context) error) error {
	log := logging.OrNop(w.Log)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.path, err)
	}

	name := filepath.Base(w.path)
	var quiet <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Warn("file watcher error", "err", err)
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != name || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Chmod) == 0 {
				continue
			}
			quiet = time.After(w.settle)
		case <-quiet:
			quiet = nil
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !w.Changed() {
				continue
			}
			log.Info("configuration changed", "path", w.path)
			if err := onChange(ctx); err != nil {
				log.Error("regeneration failed", "err", err)
			}
		}
	}
}
