package supervisor

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// runReload runs one worker and restarts it after every debounced change
// under opts.WatchPaths. A worker that crashes is restarted on the next
// change only.
func runReload(ctx context.Context, opts Options) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer watcher.Close()

	filter := newWatchFilter()
	for _, p := range opts.WatchPaths {
		if err := filter.add(watcher, p); err != nil {
			opts.Logger.Warn("cannot watch path", zap.String("path", p), zap.Error(err))
		}
	}
	opts.Logger.Info("reload enabled", zap.Strings("paths", opts.WatchPaths))

	changes := debounce(ctx, watcher, filter, opts.Debounce, opts.Logger)
	for {
		workerCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() {
			done <- runWorker(workerCtx, opts, 1)
		}()

		select {
		case <-ctx.Done():
			cancel()
			<-done
			return nil

		case path := <-changes:
			opts.Logger.Info("change detected, restarting worker", zap.String("path", path))
			cancel()
			<-done

		case err := <-done:
			cancel()
			opts.Logger.Error("worker stopped, waiting for changes", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case path := <-changes:
				opts.Logger.Info("change detected, starting worker", zap.String("path", path))
			}
		}
	}
}

// watchFilter tracks single files watched through their parent directory, so
// a file replaced by rename keeps being observed. Events for siblings in such
// a directory are dropped.
type watchFilter struct {
	files    map[string]bool
	fileDirs map[string]bool
	treeDirs map[string]bool
}

func newWatchFilter() *watchFilter {
	return &watchFilter{
		files:    make(map[string]bool),
		fileDirs: make(map[string]bool),
		treeDirs: make(map[string]bool),
	}
}

// add watches path: a directory recursively, a file through its parent.
func (f *watchFilter) add(w *fsnotify.Watcher, path string) error {
	path = filepath.Clean(path)
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		dir := filepath.Dir(path)
		f.files[path] = true
		if !f.treeDirs[dir] {
			f.fileDirs[dir] = true
		}
		return w.Add(dir)
	}
	if err := watchTree(w, path); err != nil {
		return err
	}
	for _, d := range w.WatchList() {
		if d == path || strings.HasPrefix(d, path+string(filepath.Separator)) {
			f.treeDirs[d] = true
			delete(f.fileDirs, d)
		}
	}
	return nil
}

// relevant reports whether an event on name should trigger a restart.
func (f *watchFilter) relevant(name string) bool {
	if f == nil {
		return true
	}
	name = filepath.Clean(name)
	if f.files[name] {
		return true
	}
	return !f.fileDirs[filepath.Dir(name)]
}

// watchTree adds root and every non-hidden directory below it.
func watchTree(w *fsnotify.Watcher, root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return w.Add(root)
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}

// debounce turns bursts of file events into one notification carrying the
// last changed path. Chmod-only events and events rejected by filter are
// ignored, and new directories are watched as they appear.
func debounce(ctx context.Context, w *fsnotify.Watcher, filter *watchFilter, delay time.Duration, logger *zap.Logger) <-chan string {
	out := make(chan string, 1)
	go func() {
		var (
			timer *time.Timer
			fire  <-chan time.Time
			last  string
		)
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return

			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op == fsnotify.Chmod || !filter.relevant(ev.Name) {
					continue
				}
				if ev.Has(fsnotify.Create) {
					if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
						if err := watchTree(w, ev.Name); err != nil {
							logger.Warn("cannot watch new directory", zap.String("path", ev.Name), zap.Error(err))
						}
					}
				}
				last = ev.Name
				if timer == nil {
					timer = time.NewTimer(delay)
				} else {
					timer.Reset(delay)
				}
				fire = timer.C

			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("file watcher error", zap.Error(err))

			case <-fire:
				fire = nil
				select {
				case out <- last:
				default:
				}
			}
		}
	}()
	return out
}
