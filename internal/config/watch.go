// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the global settings when the config file changes on
// disk, so edits to display speed or font size apply without a restart.
type Watcher struct {
	fs       *fsnotify.Watcher
	done     chan struct{}
	onReload func(*Settings)
}

// watchDebounce coalesces the editor write/rename event bursts.
const watchDebounce = 250 * time.Millisecond

// Watch starts watching the config directory. onReload is called with
// the freshly loaded settings after every change; it runs on the
// watcher goroutine.
func Watch(onReload func(*Settings)) (*Watcher, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory, not the file: editors replace files by
	// rename, which drops a file-level watch.
	if err := fs.Add(dir); err != nil {
		fs.Close()
		return nil, err
	}

	w := &Watcher{
		fs:       fs,
		done:     make(chan struct{}),
		onReload: onReload,
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	var timer *time.Timer
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			name := filepath.Base(event.Name)
			if name != "config.toml" && name != "config.json" {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(watchDebounce, func() {
				if err := ReloadGlobal(); err != nil {
					return
				}
				if w.onReload != nil {
					w.onReload(Global())
				}
			})
		case _, ok := <-w.fs.Errors:
			if !ok {
				return
			}
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fs.Close()
}
