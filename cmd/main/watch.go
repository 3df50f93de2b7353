package main

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 250 * time.Millisecond

// watchTemplates calls onChange whenever something under dir changes, until
// ctx is cancelled. Bursts of events within watchDebounce cause one call.
func watchTemplates(ctx context.Context, dir string, onChange func(), logger *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err = addDirs(w, dir); err != nil {
		_ = w.Close()
		return err
	}

	go func() {
		defer func() { _ = w.Close() }()
		timer := time.NewTimer(watchDebounce)
		timer.Stop()
		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Create) {
					// new subdirectories need their own watch
					_ = addDirs(w, ev.Name)
				}
				timer.Reset(watchDebounce)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("Template watcher error", "error", err)
			case <-timer.C:
				logger.Info("Template directory changed", "dir", dir)
				onChange()
			}
		}
	}()
	logger.Info("Watching template directory", "dir", dir)
	return nil
}

func addDirs(w *fsnotify.Watcher, root string) error {
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
