package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-co-op/gocron/v2"

	"github.com/marcus-crane/presence-bridge/config"
)

// SetupInBackground wires up everything that can ask for a config reload. None
// of it touches bridge state, it only posts to reloads. The returned scheduler
// still needs starting.
func SetupInBackground(ctx context.Context, cfg config.Config, path string, reloads chan<- struct{}) (gocron.Scheduler, error) {
	s, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, err
	}

	watcher := newMtimeWatcher(path)
	_, err = s.NewJob(
		gocron.DurationJob(cfg.FileWatchPoll()),
		gocron.NewTask(watcher.check, reloads),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, err
	}

	go listenForReloadSignal(ctx, reloads)

	if cfg.WatchConfigEvents {
		go func() {
			if err := watchConfigEvents(ctx, path, reloads); err != nil {
				slog.Warn("Config file events unavailable, relying on polling", slog.String("error", err.Error()))
			}
		}()
	}

	return s, nil
}

// notify never blocks. One pending notification covers any number of changes.
func notify(reloads chan<- struct{}) {
	select {
	case reloads <- struct{}{}:
	default:
	}
}

type mtimeWatcher struct {
	mu    sync.Mutex
	path  string
	known time.Time
}

func newMtimeWatcher(path string) *mtimeWatcher {
	w := &mtimeWatcher{path: path}
	w.known, _ = fileMtime(path)
	return w
}

func (w *mtimeWatcher) check(reloads chan<- struct{}) {
	w.mu.Lock()
	defer w.mu.Unlock()

	mtime, ok := fileMtime(w.path)
	if !ok || mtime.Equal(w.known) {
		return
	}
	w.known = mtime
	slog.Debug("Config file changed", slog.String("path", w.path))
	notify(reloads)
}

func fileMtime(path string) (time.Time, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}

// watchConfigEvents watches the config file's directory, since editors often
// replace the file rather than write to it.
func watchConfigEvents(ctx context.Context, path string, reloads chan<- struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	target := filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				slog.Debug("Config file event", slog.String("op", event.Op.String()))
				notify(reloads)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Config watcher error", slog.String("error", err.Error()))
		}
	}
}
