package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce collapses bursts of write events from editors into one reload.
const watchDebounce = 2 * time.Second

// Watch reloads the configuration whenever the file at path changes and
// passes the new value to onChange. Reload failures go to onError and the
// previous configuration stays in effect.
//
// The parent directory is watched rather than the file itself so that
// editors which replace the file (rename over) are still detected.
//
// Watch blocks until ctx is cancelled.
func Watch(ctx context.Context, path string, onChange func(*Config), onError func(error)) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving config path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}
	defer watcher.Close() //nolint:errcheck // Best effort on shutdown

	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		return fmt.Errorf("watching config directory: %w", err)
	}

	var lastReload time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != absPath {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if now := time.Now(); now.Sub(lastReload) < watchDebounce {
				continue
			} else {
				lastReload = now
			}

			cfg, loadErr := Load(absPath)
			if loadErr != nil {
				if onError != nil {
					onError(loadErr)
				}
				continue
			}
			onChange(cfg)

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if onError != nil {
				onError(watchErr)
			}
		}
	}
}
