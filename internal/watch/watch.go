// Package watch rebuilds the artifact when files in the bundle directory change.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period after the last change before a rebuild.
const DefaultDebounce = 300 * time.Millisecond

// tempPrefix marks in-flight atomic writes from the storage package.
const tempPrefix = ".playpack-tmp-"

// BuildFunc performs one rebuild. Its error is logged and the loop continues.
type BuildFunc func(ctx context.Context) error

// Options configures Watch.
type Options struct {
	Debounce time.Duration
	// Ignore reports whether a change to rel (slash-separated, relative to
	// the watched root) must not trigger a rebuild. Generated outputs belong
	// here.
	Ignore func(rel string) bool
	// OnBuild, if set, is called after each rebuild with its result.
	OnBuild func(err error)
}

// Watch starts an fsnotify watcher on root and runs build after each burst
// of changes until ctx is cancelled. New directories are added to the watch
// list as they appear.
func Watch(ctx context.Context, root string, opts Options, logger *slog.Logger, build BuildFunc) error {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
		changed []string
	)
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(opts.Debounce)
			timerCh = timer.C
		} else {
			timer.Reset(opts.Debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-timerCh:
			logger.Info("watcher: rebuilding", slog.Int("changes", len(changed)), slog.String("first", first(changed)))
			changed = changed[:0]
			err := build(ctx)
			if err != nil {
				logger.Error("watcher: rebuild failed", slog.String("error", err.Error()))
			}
			if opts.OnBuild != nil {
				opts.OnBuild(err)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
				}
			}
			if ev.Op == fsnotify.Chmod {
				continue
			}

			rel, relErr := filepath.Rel(root, ev.Name)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)
			if strings.HasPrefix(filepath.Base(rel), tempPrefix) || (opts.Ignore != nil && opts.Ignore(rel)) {
				continue
			}
			logger.Debug("watcher: change", slog.String("path", rel), slog.String("op", ev.Op.String()))
			changed = append(changed, rel)
			schedule()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func first(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
