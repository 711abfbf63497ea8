// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package refs

import (
	"context"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianRefactor/services/refactor/plan"
)

var goRenameWorkspace = map[string]string{
	"/ws/go.mod":       "module example.com/app\n\ngo 1.22\n",
	"/ws/util/util.go": "package util\n\nfunc Slug(s string) string { return s }\n",
	"/ws/a/a.go":       "package a\n\nimport \"example.com/app/util\"\n\nfunc A() string { return util.Slug(\"a\") }\n",
	"/ws/b/b.go":       "package b\n\nimport \"example.com/app/util\"\n\nfunc B() string { return util.Slug(\"b\") }\n",
	"/ws/c/c.go":       "package c\n\nfunc Slug() {}\n",
}

// write applies res to the filesystem.
func write(t *testing.T, fs afero.Fs, res *Result) {
	t.Helper()
	for path, content := range applied(t, fs, res) {
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	}
}

func TestRenameSymbol_GoAcrossPackages(t *testing.T) {
	fs, u := newUpdater(t, goRenameWorkspace)

	res, err := u.RenameSymbol(context.Background(), SymbolRequest{
		Root:           "/ws",
		DefinitionPath: "/ws/util/util.go",
		OldName:        "Slug",
		NewName:        "Name",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"/ws/a/a.go", "/ws/b/b.go", "/ws/util/util.go"}, affectedPaths(res))
	assert.Len(t, res.Edits(), 3)
	assert.Equal(t, "go", res.Language)

	write(t, fs, res)
	for _, p := range []string{"/ws/a/a.go", "/ws/b/b.go", "/ws/util/util.go"} {
		b, err := afero.ReadFile(fs, p)
		require.NoError(t, err)
		assert.NotContains(t, string(b), "Slug", p)
		assert.Contains(t, string(b), "Name", p)
	}
	c, err := afero.ReadFile(fs, "/ws/c/c.go")
	require.NoError(t, err)
	assert.Equal(t, goRenameWorkspace["/ws/c/c.go"], string(c))
}

func TestRenameSymbol_RoundTripRestoresBytes(t *testing.T) {
	fs, u := newUpdater(t, goRenameWorkspace)
	ctx := context.Background()

	res, err := u.RenameSymbol(ctx, SymbolRequest{Root: "/ws", DefinitionPath: "/ws/util/util.go", OldName: "Slug", NewName: "Name"})
	require.NoError(t, err)
	write(t, fs, res)

	res, err = u.RenameSymbol(ctx, SymbolRequest{Root: "/ws", DefinitionPath: "/ws/util/util.go", OldName: "Name", NewName: "Slug"})
	require.NoError(t, err)
	write(t, fs, res)

	for path, want := range goRenameWorkspace {
		got, err := afero.ReadFile(fs, path)
		require.NoError(t, err)
		assert.Equal(t, want, string(got), path)
	}
}

func TestRenameSymbol_TypeScriptAliasAndShadow(t *testing.T) {
	fs, u := newUpdater(t, map[string]string{
		"/ws/src/util.ts":   "export function slug(s: string) { return s; }\n",
		"/ws/src/main.ts":   "import { slug } from './util';\nconsole.log(slug('x'));\n",
		"/ws/src/alias.ts":  "import { slug as s } from './util';\nconsole.log(s('x'));\n",
		"/ws/src/shadow.ts": "import * as u from './util';\nfunction slug() {}\nconsole.log(u.slug('x'), slug());\n",
	})

	res, err := u.RenameSymbol(context.Background(), SymbolRequest{
		Root:           "/ws",
		DefinitionPath: "/ws/src/util.ts",
		OldName:        "slug",
		NewName:        "toSlug",
	})
	require.NoError(t, err)

	out := applied(t, fs, res)
	assert.Equal(t, "export function toSlug(s: string) { return s; }\n", out["/ws/src/util.ts"])
	assert.Equal(t, "import { toSlug } from './util';\nconsole.log(toSlug('x'));\n", out["/ws/src/main.ts"])
	assert.Equal(t, "import { toSlug as s } from './util';\nconsole.log(s('x'));\n", out["/ws/src/alias.ts"])

	// shadow.ts declares its own slug, so only reference statements change.
	assert.Equal(t, "import * as u from './util';\nfunction slug() {}\nconsole.log(u.slug('x'), slug());\n", out["/ws/src/shadow.ts"])
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, plan.WarnLexicalMatch, res.Warnings[0].Code)
	assert.True(t, strings.Contains(res.Warnings[0].Message, "/ws/src/shadow.ts"))
}

func TestRenameSymbol_InvalidRequests(t *testing.T) {
	_, u := newUpdater(t, map[string]string{
		"/ws/README.md": "# readme\n",
		"/ws/a.go":      "package a\n",
	})
	ctx := context.Background()

	_, err := u.RenameSymbol(ctx, SymbolRequest{Root: "/ws", DefinitionPath: "/ws/a.go", OldName: "X", NewName: "X"})
	assert.Equal(t, plan.CodeInvalidRequest, plan.CodeOf(err))

	_, err = u.RenameSymbol(ctx, SymbolRequest{Root: "ws", DefinitionPath: "/ws/a.go", OldName: "X", NewName: "Y"})
	assert.Equal(t, plan.CodeInvalidRequest, plan.CodeOf(err))

	_, err = u.RenameSymbol(ctx, SymbolRequest{Root: "/ws", DefinitionPath: "/ws/README.md", OldName: "X", NewName: "Y"})
	assert.Equal(t, plan.CodeUnsupportedCapability, plan.CodeOf(err))
}
