// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package apply

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

// JournalEntry is the state of one path before an apply touched it.
type JournalEntry struct {
	Path    string      `json:"path"`
	Existed bool        `json:"existed"`
	Content []byte      `json:"content,omitempty"`
	Mode    os.FileMode `json:"mode,omitempty"`

	// Dir marks a directory the apply created or removed.
	Dir bool `json:"dir,omitempty"`
}

// Journal is the undo record of a committed apply.
//
// After maps every journaled file path to its digest once the apply
// committed, or "" when the apply removed it. Revert refuses to run when
// the workspace no longer matches After unless forced.
type Journal struct {
	ApplyID       string            `json:"apply_id"`
	PlanID        string            `json:"plan_id"`
	WorkspaceRoot string            `json:"workspace_root"`
	CreatedAt     time.Time         `json:"created_at"`
	Entries       []JournalEntry    `json:"entries"`
	After         map[string]string `json:"after"`
}

// JournalStore persists journals for Revert.
type JournalStore interface {
	SaveJournal(ctx context.Context, j *Journal) error

	// LoadJournal returns ErrJournalNotFound for unknown ids.
	LoadJournal(ctx context.Context, applyID string) (*Journal, error)

	DeleteJournal(ctx context.Context, applyID string) error
}

// transaction records snapshots in the order paths are first touched and
// replays them in reverse.
type transaction struct {
	fs      afero.Fs
	entries []JournalEntry
	changed []bool
	index   map[string]int
}

func newTransaction(fsys afero.Fs) *transaction {
	return &transaction{fs: fsys, index: make(map[string]int)}
}

// snapshot records path's current state once. Later calls for the same
// path keep the first snapshot.
func (tx *transaction) snapshot(path string) (int, error) {
	if i, ok := tx.index[path]; ok {
		return i, nil
	}
	entry := JournalEntry{Path: path}
	info, err := tx.fs.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return 0, err
	case info.IsDir():
		entry.Existed = true
		entry.Dir = true
		entry.Mode = info.Mode().Perm()
	default:
		content, err := afero.ReadFile(tx.fs, path)
		if err != nil {
			return 0, err
		}
		entry.Existed = true
		entry.Content = content
		entry.Mode = info.Mode().Perm()
	}
	return tx.add(entry), nil
}

func (tx *transaction) add(entry JournalEntry) int {
	tx.entries = append(tx.entries, entry)
	tx.changed = append(tx.changed, false)
	tx.index[entry.Path] = len(tx.entries) - 1
	return len(tx.entries) - 1
}

func (tx *transaction) markChanged(indexes ...int) {
	for _, i := range indexes {
		tx.changed[i] = true
	}
}

// ensureDir creates dir and its missing ancestors, journaling the
// outermost directory it creates.
func (tx *transaction) ensureDir(dir string) error {
	missing := ""
	for d := dir; ; d = filepath.Dir(d) {
		exists, err := afero.DirExists(tx.fs, d)
		if err != nil {
			return err
		}
		if exists {
			break
		}
		missing = d
		if parent := filepath.Dir(d); parent == d {
			break
		}
	}
	if missing == "" {
		return nil
	}
	i := tx.add(JournalEntry{Path: missing, Dir: true})
	if err := tx.fs.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tx.markChanged(i)
	return nil
}

// committed returns the entries whose paths were actually changed.
func (tx *transaction) committed() []JournalEntry {
	out := make([]JournalEntry, 0, len(tx.entries))
	for i, e := range tx.entries {
		if tx.changed[i] {
			out = append(out, e)
		}
	}
	return out
}

// rollback restores changed entries in reverse order and returns the
// paths it could not restore.
func (tx *transaction) rollback() []string {
	return restore(tx.fs, tx.committed())
}

// restore replays entries in reverse.
func restore(fsys afero.Fs, entries []JournalEntry) []string {
	var failed []string
	for i := len(entries) - 1; i >= 0; i-- {
		if err := restoreEntry(fsys, entries[i]); err != nil {
			failed = append(failed, entries[i].Path)
		}
	}
	return failed
}

func restoreEntry(fsys afero.Fs, e JournalEntry) error {
	switch {
	case e.Dir && e.Existed:
		return fsys.MkdirAll(e.Path, dirMode(e.Mode))
	case e.Dir:
		// Directories the apply created are removed only when no files
		// remain below them.
		if held, err := holdsFiles(fsys, e.Path); err != nil || held {
			return err
		}
		return fsys.RemoveAll(e.Path)
	case e.Existed:
		if err := fsys.MkdirAll(filepath.Dir(e.Path), 0o755); err != nil {
			return err
		}
		return atomicWriteFile(fsys, e.Path, e.Content, e.Mode)
	default:
		err := fsys.Remove(e.Path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("remove %s: %w", e.Path, err)
		}
		return nil
	}
}

func holdsFiles(fsys afero.Fs, dir string) (bool, error) {
	held := false
	err := afero.Walk(fsys, dir, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !info.IsDir() {
			held = true
			return filepath.SkipAll
		}
		return nil
	})
	if errors.Is(err, filepath.SkipAll) {
		err = nil
	}
	return held, err
}

func dirMode(m os.FileMode) os.FileMode {
	if m == 0 {
		return 0o755
	}
	return m
}
