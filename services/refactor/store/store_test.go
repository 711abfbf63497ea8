// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianRefactor/services/refactor/apply"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/checksum"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/plan"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func samplePlan(createdAt time.Time) *plan.Plan {
	p := plan.NewBuilder(plan.TypeRename, "go").
		Add(plan.TextEdit{FilePath: "/ws/a.go", NewText: "b"}).
		Build(map[string]string{"/ws/a.go": "sha256:00"}, "/ws")
	p.Metadata.CreatedAt = createdAt
	return p
}

func TestStore_PlanLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	older := samplePlan(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	newer := samplePlan(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, s.SavePlan(ctx, newer))
	require.NoError(t, s.SavePlan(ctx, older))

	got, err := s.LoadPlan(ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, older.ID, got.ID)
	assert.Equal(t, plan.TypeRename, got.PlanType)
	assert.Equal(t, "/ws/a.go", got.Edits[0].FilePath)
	assert.Equal(t, "sha256:00", got.FileChecksums["/ws/a.go"])

	list, err := s.ListPlans(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, older.ID, list[0].ID)
	assert.Equal(t, newer.ID, list[1].ID)

	require.NoError(t, s.DeletePlan(ctx, older.ID))
	_, err = s.LoadPlan(ctx, older.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(s.DeletePlan(ctx, older.ID), ErrNotFound))
}

func TestStore_SavePlanRequiresID(t *testing.T) {
	s := openStore(t)
	assert.Error(t, s.SavePlan(context.Background(), &plan.Plan{}))
}

func TestStore_Journals(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	j := &apply.Journal{
		ApplyID: "apply-1",
		PlanID:  "plan-1",
		Entries: []apply.JournalEntry{{Path: "/ws/a.txt", Existed: true, Content: []byte("x\n"), Mode: 0o644}},
		After:   map[string]string{"/ws/a.txt": "sha256:ff"},
	}
	require.NoError(t, s.SaveJournal(ctx, j))

	got, err := s.LoadJournal(ctx, "apply-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("x\n"), got.Entries[0].Content)
	assert.Equal(t, "sha256:ff", got.After["/ws/a.txt"])

	require.NoError(t, s.DeleteJournal(ctx, "apply-1"))
	_, err = s.LoadJournal(ctx, "apply-1")
	assert.True(t, errors.Is(err, apply.ErrJournalNotFound))
	assert.NoError(t, s.DeleteJournal(ctx, "apply-1"))
}

func TestStore_BacksExecutorRevert(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/ws/a.txt", []byte("alpha\n"), 0o644))

	b := plan.NewBuilder(plan.TypeRename, "text").Add(plan.TextEdit{
		FilePath: "/ws/a.txt",
		Range:    plan.Range{End: plan.Position{Character: 5}},
		NewText:  "omega",
	})
	sums, err := checksum.New(fs).Capture(ctx, b.ChecksumPaths())
	require.NoError(t, err)
	p := b.Build(sums, "/ws")

	exec := apply.NewExecutor(fs, apply.WithJournalStore(s))
	res, err := exec.Apply(ctx, p, apply.DefaultOptions())
	require.NoError(t, err)
	require.True(t, res.RollbackAvailable)

	_, err = exec.Revert(ctx, res.ApplyID, false)
	require.NoError(t, err)
	data, err := afero.ReadFile(fs, "/ws/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "alpha\n", string(data))
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestOpen_Persistent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	cfg.SyncWrites = false

	s, err := Open(cfg)
	require.NoError(t, err)
	p := samplePlan(time.Now().UTC())
	require.NoError(t, s.SavePlan(ctx, p))
	require.NoError(t, s.Close())

	s, err = Open(cfg)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.LoadPlan(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
}
