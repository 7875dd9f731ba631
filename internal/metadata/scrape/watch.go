package scrape

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 250 * time.Millisecond

// WatchRules loads the rule file at path into f and keeps reloading it
// whenever it changes, until ctx is cancelled. The parent directory is
// watched so that editors that replace the file atomically are picked up.
// A file that fails to compile is logged and the previous table stays active.
func (f *Fetcher) WatchRules(ctx context.Context, path string) error {
	path = filepath.Clean(path)
	if err := f.ReloadRules(path); err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create rules watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to watch rules directory: %w", err)
	}

	go f.watchLoop(ctx, w, path)
	return nil
}

// ReloadRules compiles the rule file at path and swaps it in.
func (f *Fetcher) ReloadRules(path string) error {
	t, err := LoadTable(path)
	if err != nil {
		return err
	}
	f.SetTable(t)
	f.logger.Info("scrape rules loaded", "path", path)
	return nil
}

func (f *Fetcher) watchLoop(ctx context.Context, w *fsnotify.Watcher, path string) {
	defer w.Close()

	var debounce *time.Timer
	var fire <-chan time.Time
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(reloadDebounce)
			} else {
				debounce.Reset(reloadDebounce)
			}
			fire = debounce.C

		case <-fire:
			fire = nil
			if err := f.ReloadRules(path); err != nil {
				f.logger.Error("scrape rules reload failed, keeping previous table",
					"path", path,
					"error", err,
				)
			}

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			f.logger.Warn("rules watcher error", "error", err)
		}
	}
}
