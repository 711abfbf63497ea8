// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package planner

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianRefactor/services/refactor/lang/plugins"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/plan"
)

const root = "/ws"

func newPlanner(t *testing.T, files map[string]string) (afero.Fs, *Planner) {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll(root, 0o755))
	for path, content := range files {
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	}
	registry, err := plugins.New(fs)
	require.NoError(t, err)
	return fs, New(registry, fs)
}

func ws() Workspace { return Workspace{WorkspaceRoot: root} }

func at(line, char int) *plan.Position { return &plan.Position{Line: line, Character: char} }

// result returns the content every file would have after p's text edits
// and file creations. Moves and deletions are not applied.
func result(t *testing.T, fs afero.Fs, p *plan.Plan) map[string]string {
	t.Helper()
	out := make(map[string]string)
	for path, edits := range p.EditsByFile() {
		var text []plan.TextEdit
		for _, e := range edits {
			switch {
			case e.EffectiveKind() == plan.EditCreateFile:
				out[path] = e.NewText
			case e.EffectiveKind().IsText():
				text = append(text, e)
			}
		}
		if len(text) == 0 {
			continue
		}
		content, err := afero.ReadFile(fs, path)
		require.NoError(t, err)
		b, err := plan.ApplyEdits(content, text)
		require.NoError(t, err)
		out[path] = string(b)
	}
	return out
}

func warningCodes(p *plan.Plan) []string {
	var out []string
	for _, w := range p.Warnings {
		out = append(out, w.Code)
	}
	return out
}

var goWorkspace = map[string]string{
	"/ws/go.mod":       "module example.com/app\n\ngo 1.22\n",
	"/ws/util/util.go": "package util\n\nfunc Slug(s string) string { return s }\n",
	"/ws/a/a.go":       "package a\n\nimport \"example.com/app/util\"\n\nfunc A() string { return util.Slug(\"a\") }\n",
	"/ws/b/b.go":       "package b\n\nimport \"example.com/app/util\"\n\nfunc B() string { return util.Slug(\"b\") }\n",
	"/ws/c/c.go":       "package c\n\nfunc Slug() {}\n",
}

func TestRename_SymbolUsedInThreeFiles(t *testing.T) {
	fs, p := newPlanner(t, goWorkspace)

	pl, err := p.Rename(context.Background(), RenameRequest{
		Workspace: ws(),
		Target:    plan.Selector{Kind: plan.SelectorSymbol, Path: "util/util.go", Name: "Slug"},
		NewName:   "Name",
	})
	require.NoError(t, err)
	require.NoError(t, plan.Validate(pl))

	assert.Equal(t, plan.TypeRename, pl.PlanType)
	assert.Len(t, pl.Edits, 3)
	assert.Equal(t, 3, pl.Summary.AffectedFiles)
	assert.Len(t, pl.FileChecksums, 3)
	assert.Equal(t, "go", pl.Metadata.Language)
	assert.NotEmpty(t, pl.ID)

	after := result(t, fs, pl)
	require.Len(t, after, 3)
	for path, content := range after {
		assert.NotContains(t, content, "Slug", path)
	}
	assert.NotContains(t, after, "/ws/c/c.go")
}

func TestRename_ByPosition(t *testing.T) {
	fs, p := newPlanner(t, goWorkspace)

	// The cursor sits on the use in a.go; the definition is in util.go.
	pl, err := p.Rename(context.Background(), RenameRequest{
		Workspace: ws(),
		Target:    plan.Selector{Kind: plan.SelectorSymbol, Path: "a/a.go", Position: at(4, 32)},
		NewName:   "Name",
	})
	require.NoError(t, err)
	assert.Len(t, pl.Edits, 3)
	assert.Contains(t, result(t, fs, pl)["/ws/util/util.go"], "func Name(")
}

func TestRename_AmbiguousTarget(t *testing.T) {
	_, p := newPlanner(t, map[string]string{
		"/ws/f.go": "package main\n\ntype A struct{}\ntype B struct{}\n\nfunc (a A) Close() {}\nfunc (b B) Close() {}\n",
	})

	pl, err := p.Rename(context.Background(), RenameRequest{
		Workspace: ws(),
		Target:    plan.Selector{Kind: plan.SelectorSymbol, Path: "f.go", Name: "Close"},
		NewName:   "Shutdown",
	})
	require.NoError(t, err)
	assert.Empty(t, pl.Edits)
	require.Equal(t, []string{plan.WarnAmbiguousTarget}, warningCodes(pl))
	assert.Len(t, pl.Warnings[0].Candidates, 2)
}

func TestRename_InvalidRequests(t *testing.T) {
	_, p := newPlanner(t, goWorkspace)
	ctx := context.Background()
	target := plan.Selector{Kind: plan.SelectorSymbol, Path: "util/util.go", Name: "Slug"}

	tests := []struct {
		name string
		req  RenameRequest
		code plan.Code
	}{
		{"missing root", RenameRequest{Target: target, NewName: "Name"}, plan.CodeInvalidRequest},
		{"relative root", RenameRequest{Workspace: Workspace{WorkspaceRoot: "ws"}, Target: target, NewName: "Name"}, plan.CodeInvalidRequest},
		{"missing root dir", RenameRequest{Workspace: Workspace{WorkspaceRoot: "/nope"}, Target: target, NewName: "Name"}, plan.CodeNotFound},
		{"bad identifier", RenameRequest{Workspace: ws(), Target: target, NewName: "1st"}, plan.CodeInvalidRequest},
		{"same name", RenameRequest{Workspace: ws(), Target: target, NewName: "Slug"}, plan.CodeInvalidRequest},
		{"outside workspace", RenameRequest{Workspace: ws(), Target: plan.Selector{Kind: plan.SelectorSymbol, Path: "../etc/x.go", Name: "X"}, NewName: "Y"}, plan.CodeInvalidRequest},
		{"unknown symbol", RenameRequest{Workspace: ws(), Target: plan.Selector{Kind: plan.SelectorSymbol, Path: "util/util.go", Name: "Missing"}, NewName: "Y"}, plan.CodeNotFound},
		{"missing file", RenameRequest{Workspace: ws(), Target: plan.Selector{Kind: plan.SelectorFile, Path: "nope.go"}, NewName: "x.go"}, plan.CodeNotFound},
		{"unsupported language", RenameRequest{Workspace: ws(), Target: plan.Selector{Kind: plan.SelectorSymbol, Path: "go.mod", Name: "x"}, NewName: "y"}, plan.CodeUnsupportedCapability},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Rename(ctx, tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.code, plan.CodeOf(err))
		})
	}
}

func TestRename_FileUpdatesImporters(t *testing.T) {
	fs, p := newPlanner(t, map[string]string{
		"/ws/src/a.ts":    "export const a = 1;\n",
		"/ws/src/main.ts": "import { a } from './a';\nconsole.log(a);\n",
	})

	pl, err := p.Rename(context.Background(), RenameRequest{
		Workspace: ws(),
		Target:    plan.Selector{Kind: plan.SelectorFile, Path: "src/a.ts"},
		NewName:   "b.ts",
	})
	require.NoError(t, err)
	require.NoError(t, plan.Validate(pl))

	var moves []plan.TextEdit
	for _, e := range pl.Edits {
		if e.Kind == plan.EditMoveFile {
			moves = append(moves, e)
		}
	}
	require.Len(t, moves, 1)
	assert.Equal(t, "/ws/src/b.ts", moves[0].NewPath)
	assert.Equal(t, "import { a } from './b';\nconsole.log(a);\n",
		result(t, fs, pl)["/ws/src/main.ts"])
}
