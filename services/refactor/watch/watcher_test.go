// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianRefactor/services/refactor/plan"
)

func planFor(t *testing.T, paths ...string) *plan.Plan {
	t.Helper()
	b := plan.NewBuilder(plan.TypeRename, "go")
	sums := make(map[string]string)
	for _, p := range paths {
		b.Add(plan.TextEdit{FilePath: p, NewText: "x"})
		sums[p] = "sha256:00"
	}
	return b.Build(sums, filepath.Dir(paths[0]))
}

func TestWatcher_WriteMarksPlanStale(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.go")
	b := filepath.Join(dir, "b.go")
	require.NoError(t, os.WriteFile(a, []byte("package a\n"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("package a\n"), 0o644))

	var notified atomic.Int32
	w, err := New(WithStaleHandler(func(string, string) { notified.Add(1) }))
	require.NoError(t, err)
	defer w.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	touched := planFor(t, a)
	untouched := planFor(t, b)
	require.NoError(t, w.Track(touched))
	require.NoError(t, w.Track(untouched))

	stale, tracked := w.IsStale(touched.ID)
	assert.True(t, tracked)
	assert.False(t, stale)

	require.NoError(t, os.WriteFile(a, []byte("package a // edited\n"), 0o644))

	assert.Eventually(t, func() bool {
		stale, _ := w.IsStale(touched.ID)
		return stale
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, a, w.StalePath(touched.ID))

	stale, _ = w.IsStale(untouched.ID)
	assert.False(t, stale)
	assert.Equal(t, int32(1), notified.Load())
}

func TestWatcher_RemoveMarksPlanStale(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.go")
	require.NoError(t, os.WriteFile(a, []byte("package a\n"), 0o644))

	w, err := New()
	require.NoError(t, err)
	defer w.Close()
	w.Start(context.Background())

	p := planFor(t, a)
	require.NoError(t, w.Track(p))
	require.NoError(t, os.Remove(a))

	assert.Eventually(t, func() bool {
		stale, _ := w.IsStale(p.ID)
		return stale
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_Untrack(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.go")
	require.NoError(t, os.WriteFile(a, []byte("package a\n"), 0o644))

	w, err := New()
	require.NoError(t, err)
	defer w.Close()

	p := planFor(t, a)
	require.NoError(t, w.Track(p))
	w.Untrack(p.ID)

	stale, tracked := w.IsStale(p.ID)
	assert.False(t, stale)
	assert.False(t, tracked)
	assert.Empty(t, w.dirs)
	assert.Empty(t, w.byPath)
}
