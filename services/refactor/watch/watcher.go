// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package watch flags stored plans whose files changed on disk.
//
// The watcher is advisory. A plan it reports as fresh may still be stale
// (events can be dropped under load), and apply always verifies checksums
// regardless of what the watcher says.
package watch

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/AleutianAI/AleutianRefactor/services/refactor/plan"
)

// StaleHandler is called once per plan when it first becomes stale.
type StaleHandler func(planID, path string)

// Watcher tracks the files of stored plans.
//
// # Description
//
// Parent directories of every tracked path are watched rather than the
// files themselves, so atomic replace-by-rename and re-creation of a
// deleted file are both seen.
//
// # Thread Safety
//
// Safe for concurrent use. The StaleHandler runs on the event goroutine.
type Watcher struct {
	fsw     *fsnotify.Watcher
	logger  *slog.Logger
	onStale StaleHandler

	mu     sync.RWMutex
	byPath map[string]map[string]struct{}
	byPlan map[string][]string
	dirs   map[string]int
	stale  map[string]string

	done     chan struct{}
	stopOnce sync.Once
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l.With("component", "watch.Watcher")
		}
	}
}

// WithStaleHandler registers a callback for plans turning stale.
func WithStaleHandler(h StaleHandler) Option {
	return func(w *Watcher) { w.onStale = h }
}

// New creates a watcher. Call Start to begin processing events.
func New(opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fsw:    fsw,
		logger: slog.Default().With("component", "watch.Watcher"),
		byPath: make(map[string]map[string]struct{}),
		byPlan: make(map[string][]string),
		dirs:   make(map[string]int),
		stale:  make(map[string]string),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start processes events until ctx is cancelled or Close is called.
func (w *Watcher) Start(ctx context.Context) {
	go w.processEvents(ctx)
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.fsw.Close()
	})
	return err
}

// Track starts watching every path p reads or writes. Tracking a plan
// again replaces its previous paths and clears its stale flag.
func (w *Watcher) Track(p *plan.Plan) error {
	if p == nil || p.ID == "" {
		return nil
	}
	w.Untrack(p.ID)

	paths := p.Paths()
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, path := range paths {
		ids := w.byPath[path]
		if ids == nil {
			ids = make(map[string]struct{})
			w.byPath[path] = ids
		}
		ids[p.ID] = struct{}{}

		dir := filepath.Dir(path)
		if w.dirs[dir] == 0 {
			if err := w.fsw.Add(dir); err != nil {
				// A directory created by the plan does not exist yet.
				w.logger.Debug("Cannot watch directory", slog.String("dir", dir), slog.String("error", err.Error()))
				continue
			}
		}
		w.dirs[dir]++
	}
	w.byPlan[p.ID] = paths
	return nil
}

// Untrack stops watching a plan's paths and forgets its stale flag.
func (w *Watcher) Untrack(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	paths, ok := w.byPlan[id]
	if !ok {
		return
	}
	for _, path := range paths {
		if ids := w.byPath[path]; ids != nil {
			delete(ids, id)
			if len(ids) == 0 {
				delete(w.byPath, path)
			}
		}
		dir := filepath.Dir(path)
		if n, watched := w.dirs[dir]; watched {
			if n <= 1 {
				delete(w.dirs, dir)
				_ = w.fsw.Remove(dir)
			} else {
				w.dirs[dir] = n - 1
			}
		}
	}
	delete(w.byPlan, id)
	delete(w.stale, id)
}

// IsStale reports whether a tracked plan's files changed. tracked is false
// for plans the watcher does not know.
func (w *Watcher) IsStale(id string) (stale, tracked bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if _, ok := w.byPlan[id]; !ok {
		return false, false
	}
	_, stale = w.stale[id]
	return stale, true
}

// StalePath returns the first changed path seen for a stale plan.
func (w *Watcher) StalePath(id string) string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stale[id]
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.handle(filepath.Clean(event.Name), event.Op)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("File watcher error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) handle(path string, op fsnotify.Op) {
	w.mu.Lock()
	var fresh []string
	for id := range w.byPath[path] {
		if _, already := w.stale[id]; !already {
			w.stale[id] = path
			fresh = append(fresh, id)
		}
	}
	w.mu.Unlock()

	for _, id := range fresh {
		w.logger.Debug("Plan marked stale",
			slog.String("plan_id", id),
			slog.String("path", path),
			slog.String("op", op.String()),
		)
		if w.onStale != nil {
			w.onStale(id, path)
		}
	}
}
