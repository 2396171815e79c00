package filesystem

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounce = 200 * time.Millisecond

// watcher calls onChange, debounced, whenever something under the watched
// roots is created, removed, renamed or written.
type watcher struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func startWatcher(roots []string, recursive bool, logger *slog.Logger, onChange func()) (*watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, root := range roots {
		if recursive {
			err = addDirsRecursive(w, root)
		} else {
			err = w.Add(root)
		}
		if err != nil {
			_ = w.Close()
			return nil, err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	wt := &watcher{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(wt.done)
		defer w.Close()
		watchLoop(ctx, w, recursive, logger, onChange)
	}()
	logger.Debug("watcher: started", slog.Any("roots", roots))
	return wt, nil
}

// Stop ends the watch loop and waits for it to exit.
func (w *watcher) Stop() {
	w.cancel()
	<-w.done
}

func watchLoop(ctx context.Context, w *fsnotify.Watcher, recursive bool, logger *slog.Logger, onChange func()) {
	var timer *time.Timer
	var fire <-chan time.Time

	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			fire = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Debug("watcher: stopped")
			return

		case <-fire:
			timer, fire = nil, nil
			onChange()

		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename|fsnotify.Write) == 0 {
				continue
			}
			if recursive && ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := addDirsRecursive(w, ev.Name); err != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", err.Error()))
					}
				}
			}
			schedule()

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			logger.Error("watcher: error", slog.String("error", err.Error()))
		}
	}
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
