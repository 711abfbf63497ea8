// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package refactor

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianRefactor/pkg/extensions"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/apply"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/config"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/plan"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/store"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/watch"
)

const root = "/ws"

var goWorkspace = map[string]string{
	"/ws/go.mod":       "module example.com/app\n\ngo 1.22\n",
	"/ws/util/util.go": "package util\n\nfunc Slug(s string) string { return s }\n",
	"/ws/a/a.go":       "package a\n\nimport \"example.com/app/util\"\n\nfunc A() string { return util.Slug(\"a\") }\n",
}

const renameSlug = `{"target": {"kind": "symbol", "path": "util/util.go", "name": "Slug"}, "new_name": "Name"}`

func newService(t *testing.T, withStore bool, extra ...Option) (afero.Fs, *Service) {
	t.Helper()
	fs := afero.NewMemMapFs()
	for path, content := range goWorkspace {
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	}

	cfg := config.DefaultConfig()
	cfg.Workspace.Root = root
	opts := []Option{WithFs(fs)}
	if withStore {
		st, err := store.OpenInMemory()
		require.NoError(t, err)
		opts = append(opts, WithStore(st))
	}
	svc, err := NewService(cfg, append(opts, extra...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return fs, svc
}

func readFile(t *testing.T, fs afero.Fs, path string) string {
	t.Helper()
	b, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	return string(b)
}

func TestDispatchRefactorCall_UsesConfiguredWorkspace(t *testing.T) {
	_, svc := newService(t, false)

	p, err := svc.DispatchRefactorCall(context.Background(), RefactorCall{
		Tool:      ToolRename,
		Arguments: json.RawMessage(renameSlug),
	})
	require.NoError(t, err)
	assert.Equal(t, plan.TypeRename, p.PlanType)
	assert.Equal(t, root, p.WorkspaceRoot)
	assert.Equal(t, 2, p.Summary.AffectedFiles)
}

func TestDispatchRefactorCall_Rejections(t *testing.T) {
	_, svc := newService(t, false)

	tests := []struct {
		name string
		call RefactorCall
	}{
		{"unknown tool", RefactorCall{Tool: "rewrite", Arguments: json.RawMessage(`{}`)}},
		{"unknown field", RefactorCall{Tool: ToolRename, Arguments: json.RawMessage(`{"new_name": "X", "colour": "red"}`)}},
		{"malformed json", RefactorCall{Tool: ToolInline, Arguments: json.RawMessage(`{"target":`)}},
		{"missing required", RefactorCall{Tool: ToolRename}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.DispatchRefactorCall(context.Background(), tt.call)
			require.Error(t, err)
			assert.ErrorIs(t, err, plan.ErrInvalidRequest)
		})
	}
}

func TestDispatchRefactorCall_RecoversPanic(t *testing.T) {
	_, svc := newService(t, false)
	svc.planner = nil

	p, err := svc.DispatchRefactorCall(context.Background(), RefactorCall{
		Tool:      ToolRename,
		Arguments: json.RawMessage(renameSlug),
	})
	assert.Nil(t, p)
	require.Error(t, err)
	assert.Equal(t, plan.CodeInternal, plan.CodeOf(err))
}

func TestService_StoredPlanLifecycle(t *testing.T) {
	fs, svc := newService(t, true)
	ctx := context.Background()

	p, err := svc.CreatePlan(ctx, RefactorCall{Tool: ToolRename, Arguments: json.RawMessage(renameSlug)})
	require.NoError(t, err)

	list, err := svc.ListPlans(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, p.ID, list[0].ID)
	assert.False(t, list[0].Stale)

	loaded, err := svc.GetPlan(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Edits, loaded.Edits)

	res, err := svc.ApplyStoredPlan(ctx, p.ID, ApplyOptions{})
	require.NoError(t, err)
	assert.Equal(t, apply.StateCommitted, res.State)
	assert.True(t, res.RollbackAvailable)
	assert.Contains(t, readFile(t, fs, "/ws/util/util.go"), "func Name(")
	assert.Contains(t, readFile(t, fs, "/ws/a/a.go"), "util.Name(")

	// Applied plans leave the store.
	_, err = svc.GetPlan(ctx, p.ID)
	assert.ErrorIs(t, err, plan.ErrNotFound)

	reverted, err := svc.Revert(ctx, res.ApplyID, false)
	require.NoError(t, err)
	assert.Equal(t, apply.StateRolledBack, reverted.State)
	for path, content := range goWorkspace {
		assert.Equal(t, content, readFile(t, fs, path), path)
	}
}

func TestService_AuditTrail(t *testing.T) {
	audit := extensions.NewMemoryAuditLogger(0)
	fs, svc := newService(t, true, WithAuditLogger(audit))
	ctx := context.Background()

	p, err := svc.CreatePlan(ctx, RefactorCall{Tool: ToolRename, Arguments: json.RawMessage(renameSlug)})
	require.NoError(t, err)
	res, err := svc.ApplyStoredPlan(ctx, p.ID, ApplyOptions{})
	require.NoError(t, err)

	// A second plan goes stale once its file changes.
	stale, err := svc.DispatchRefactorCall(ctx, RefactorCall{
		Tool:      ToolRename,
		Arguments: json.RawMessage(`{"target": {"kind": "symbol", "path": "util/util.go", "name": "Name"}, "new_name": "Title"}`),
	})
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, "/ws/util/util.go", []byte("package util\n\nfunc Name(s string) string { return s + s }\n"), 0o644))
	_, err = svc.Apply(ctx, stale, ApplyOptions{})
	require.ErrorIs(t, err, plan.ErrStalePlan)

	created, err := audit.Query(ctx, extensions.AuditFilter{EventTypes: []string{extensions.EventPlanCreate}})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, p.ID, created[0].PlanID)
	assert.Equal(t, string(plan.TypeRename), created[0].PlanType)

	applied, err := audit.Query(ctx, extensions.AuditFilter{PlanID: p.ID, EventTypes: []string{extensions.EventApply}})
	require.NoError(t, err)
	require.Len(t, applied, 1)
	assert.Equal(t, extensions.OutcomeSuccess, applied[0].Outcome)
	assert.Equal(t, res.ApplyID, applied[0].ApplyID)
	assert.Equal(t, root, applied[0].WorkspaceRoot)
	assert.Len(t, applied[0].Files, 2)

	rejected, err := audit.Query(ctx, extensions.AuditFilter{Outcome: extensions.OutcomeRejected})
	require.NoError(t, err)
	require.Len(t, rejected, 1)
	assert.Equal(t, stale.ID, rejected[0].PlanID)
	assert.Contains(t, rejected[0].Error, "STALE_PLAN")
}

func TestService_StaleStoredPlanWithoutChecksums(t *testing.T) {
	dir := t.TempDir()
	fs := afero.NewOsFs()
	for path, content := range goWorkspace {
		full := filepath.Join(dir, strings.TrimPrefix(path, root))
		require.NoError(t, fs.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, afero.WriteFile(fs, full, []byte(content), 0o644))
	}
	st, err := store.OpenInMemory()
	require.NoError(t, err)
	w, err := watch.New()
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.Workspace.Root = dir
	svc, err := NewService(cfg, WithFs(fs), WithStore(st), WithWatcher(w))
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, svc.Start(ctx))

	p, err := svc.CreatePlan(ctx, RefactorCall{Tool: ToolRename, Arguments: json.RawMessage(renameSlug)})
	require.NoError(t, err)

	a := filepath.Join(dir, "a", "a.go")
	require.NoError(t, afero.WriteFile(fs, a, []byte(goWorkspace["/ws/a/a.go"]+"\n// edited\n"), 0o644))
	require.Eventually(t, func() bool {
		stale, _ := w.IsStale(p.ID)
		return stale
	}, 2*time.Second, 10*time.Millisecond)

	_, err = svc.ApplyStoredPlan(ctx, p.ID, ApplyOptions{})
	require.ErrorIs(t, err, plan.ErrStalePlan)

	off := false
	res, err := svc.ApplyStoredPlan(ctx, p.ID, ApplyOptions{ValidateChecksums: &off})
	require.NoError(t, err)
	assert.Equal(t, apply.StateCommitted, res.State)
	assert.Contains(t, readFile(t, fs, a), "util.Name(")
	assert.Contains(t, readFile(t, fs, a), "// edited")
}

func TestService_DryRunKeepsStoredPlan(t *testing.T) {
	fs, svc := newService(t, true)
	ctx := context.Background()

	p, err := svc.CreatePlan(ctx, RefactorCall{Tool: ToolRename, Arguments: json.RawMessage(renameSlug)})
	require.NoError(t, err)

	res, err := svc.ApplyStoredPlan(ctx, p.ID, ApplyOptions{DryRun: true})
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Contains(t, res.Diff, "+func Name(")
	assert.Equal(t, goWorkspace["/ws/util/util.go"], readFile(t, fs, "/ws/util/util.go"))

	_, err = svc.GetPlan(ctx, p.ID)
	assert.NoError(t, err)
}

func TestService_DeletePlan(t *testing.T) {
	_, svc := newService(t, true)
	ctx := context.Background()

	p, err := svc.CreatePlan(ctx, RefactorCall{Tool: ToolRename, Arguments: json.RawMessage(renameSlug)})
	require.NoError(t, err)
	require.NoError(t, svc.DeletePlan(ctx, p.ID))
	assert.ErrorIs(t, svc.DeletePlan(ctx, p.ID), plan.ErrNotFound)
}

func TestService_WithoutStore(t *testing.T) {
	_, svc := newService(t, false)
	ctx := context.Background()

	_, err := svc.CreatePlan(ctx, RefactorCall{Tool: ToolRename, Arguments: json.RawMessage(renameSlug)})
	assert.ErrorIs(t, err, plan.ErrInvalidRequest)
	_, err = svc.ListPlans(ctx)
	assert.ErrorIs(t, err, plan.ErrInvalidRequest)

	// Applies still commit, without a revert journal.
	p, err := svc.DispatchRefactorCall(ctx, RefactorCall{Tool: ToolRename, Arguments: json.RawMessage(renameSlug)})
	require.NoError(t, err)
	res, err := svc.Apply(ctx, p, ApplyOptions{})
	require.NoError(t, err)
	assert.False(t, res.RollbackAvailable)

	_, err = svc.Revert(ctx, res.ApplyID, false)
	assert.ErrorIs(t, err, plan.ErrInvalidRequest)
}

func TestApplyOptions_Defaults(t *testing.T) {
	off := false
	opts := ApplyOptions{
		RollbackOnError: &off,
		Validation:      &ValidationRequest{Command: "go", Args: []string{"build", "./..."}, TimeoutMs: 1500},
	}.options()

	assert.True(t, opts.ValidateChecksums)
	assert.True(t, opts.ValidatePlanType)
	assert.False(t, opts.RollbackOnError)
	require.NotNil(t, opts.Validation)
	assert.Equal(t, "go", opts.Validation.Command)
	assert.Equal(t, int64(1500), opts.Validation.Timeout.Milliseconds())

	assert.Nil(t, ApplyOptions{Validation: &ValidationRequest{}}.options().Validation)
}
