// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/ddarchive/pkg/logging"
)

// Watcher wakes the monitor loop when the game writes its save files.
//
// # Description
//
// The game rewrites several files per save, so a burst of fsnotify events is
// collapsed by a token-bucket limiter: at most one notification per
// interval, with the first event of a burst passing immediately.
//
// # Thread Safety
//
// Watch may be called while Run is active.
type Watcher struct {
	fs      *fsnotify.Watcher
	limiter *rate.Limiter
	notify  func()
	logger  *logging.Logger

	mu  sync.Mutex
	dir string
}

// NewWatcher creates a watcher that calls notify at most once per interval.
func NewWatcher(interval time.Duration, notify func(), logger *logging.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Watcher{
		fs:      fw,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		notify:  notify,
		logger:  logger,
	}, nil
}

// Watch replaces the watched directory. An empty dir stops watching.
func (w *Watcher) Watch(dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.dir == dir {
		return nil
	}
	if w.dir != "" {
		_ = w.fs.Remove(w.dir)
	}
	w.dir = ""
	if dir == "" {
		return nil
	}
	if err := w.fs.Add(dir); err != nil {
		return err
	}
	w.dir = dir
	return nil
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dir
}

// Run delivers notifications until ctx is cancelled, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			if w.limiter.Allow() {
				w.logger.Debug("save files changed", "path", event.Name, "op", event.Op.String())
				w.notify()
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("save watcher error", "error", err)
		}
	}
}
