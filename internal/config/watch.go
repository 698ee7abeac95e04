// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// =============================================================================
// FILE WATCHER
// =============================================================================

// watchDebounce collapses the burst of events editors produce on save.
const watchDebounce = 150 * time.Millisecond

// ReloadFunc receives the reloaded configuration, or the error that prevented
// loading it.
type ReloadFunc func(cfg *Config, err error)

// Watch reloads path with LoadFromPath whenever it is written, created or
// renamed into place, and passes the result to fn. The parent directory is
// watched so that atomic-rename saves are seen. Watch returns once the
// watcher is running; it stops when ctx is done.
func Watch(ctx context.Context, path string, fn ReloadFunc) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	go runWatch(ctx, watcher, abs, fn)
	return nil
}

func runWatch(ctx context.Context, watcher *fsnotify.Watcher, path string, fn ReloadFunc) {
	defer watcher.Close()

	var (
		timer   *time.Timer
		pending <-chan time.Time
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

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(watchDebounce)
			}
			pending = timer.C

		case <-pending:
			pending = nil
			fn(LoadFromPath(path))

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			fn(nil, fmt.Errorf("config watcher: %w", err))
		}
	}
}
