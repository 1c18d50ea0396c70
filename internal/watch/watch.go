// Package watch rebuilds when sources or headers change.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Norgate-AV/incbuild/internal/logfields"
	"github.com/Norgate-AV/incbuild/internal/utils"
)

// DefaultDebounce is how long the tree must be quiet before a rebuild
const DefaultDebounce = 300 * time.Millisecond

// RebuildFunc is called once per burst of changes with the changed paths
type RebuildFunc func(ctx context.Context, changed []string) error

// Watcher turns file system events into debounced rebuilds. Rebuilds run
// one at a time on the watcher goroutine; events arriving meanwhile are
// coalesced into the next burst.
type Watcher struct {
	dirs     []string
	patterns []string
	debounce time.Duration
	rebuild  RebuildFunc
	logger   *slog.Logger
	ready    chan struct{}
}

// New creates a watcher over dirs, reacting to files matching patterns
func New(dirs, patterns []string, debounce time.Duration, rebuild RebuildFunc, logger *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		dirs:     dirs,
		patterns: patterns,
		debounce: debounce,
		rebuild:  rebuild,
		logger:   logger,
		ready:    make(chan struct{}),
	}
}

// Ready is closed once every directory is being watched
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Run watches until ctx is cancelled. A failed rebuild is logged and the
// watch continues.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	defer fw.Close()

	watched := 0
	for _, dir := range w.dirs {
		if !utils.Exists(dir) {
			continue
		}

		if err := fw.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}

		watched++
	}

	if watched == 0 {
		return fmt.Errorf("none of the watched directories exist")
	}

	close(w.ready)
	w.logger.Info("Watching for changes", logfields.Count(watched))

	var (
		timer   *time.Timer
		fire    <-chan time.Time
		pending = make(map[string]struct{})
	)

	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}

			if !w.relevant(event) {
				continue
			}

			w.logger.Debug("Change detected", logfields.Path(event.Name), slog.String("op", event.Op.String()))
			pending[event.Name] = struct{}{}

			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}

			fire = timer.C

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}

			w.logger.Error("File watcher error", logfields.Error(err))

		case <-fire:
			fire = nil

			changed := make([]string, 0, len(pending))
			for path := range pending {
				changed = append(changed, path)
			}

			clear(pending)
			sort.Strings(changed)

			if err := w.rebuild(ctx, changed); err != nil {
				w.logger.Warn("Rebuild failed", logfields.Count(len(changed)), logfields.Error(err))
			}
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}

	name := filepath.Base(event.Name)
	for _, pattern := range w.patterns {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}

	return false
}
