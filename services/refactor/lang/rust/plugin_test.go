// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rust

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianRefactor/services/refactor/lang"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/plan"
)

func newWorkspace(t *testing.T, files map[string]string) *Plugin {
	t.Helper()
	fs := afero.NewMemMapFs()
	for path, content := range files {
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	}
	return New(fs)
}

func apply(t *testing.T, content string, edits []plan.TextEdit) string {
	t.Helper()
	out, err := plan.ApplyEdits([]byte(content), edits)
	require.NoError(t, err)
	return string(out)
}

func TestParseReferences(t *testing.T) {
	src := `mod util;
use crate::util::slug;
use crate::models::{User, Group as G};
use std::collections::HashMap;
use super::*;
`
	p := newWorkspace(t, nil)
	refs, err := p.ParseReferences(context.Background(), "/ws/src/lib.rs", []byte(src))
	require.NoError(t, err)
	require.Len(t, refs, 5)

	assert.Equal(t, lang.RefModuleDecl, refs[0].Kind)
	assert.Equal(t, "util", refs[0].Specifier)

	assert.Equal(t, "crate::util::slug", refs[1].Specifier)
	assert.Equal(t, "slug", refs[1].Bindings[0].Name)

	assert.Equal(t, "crate::models", refs[2].Specifier)
	require.Len(t, refs[2].Bindings, 2)
	assert.Equal(t, "G", refs[2].Bindings[1].Local())

	assert.Equal(t, "std::collections::HashMap", refs[3].Specifier)
	assert.True(t, refs[4].Wildcard)
}

const appCrate = "[package]\nname = \"app\"\nversion = \"0.1.0\"\n"

func TestResolve(t *testing.T) {
	p := newWorkspace(t, map[string]string{
		"/ws/Cargo.toml":         appCrate,
		"/ws/src/lib.rs":         "mod util;\nmod models;\n",
		"/ws/src/util.rs":        "pub fn slug() {}\n",
		"/ws/src/models/mod.rs":  "mod user;\n",
		"/ws/src/models/user.rs": "pub struct User;\n",
	})
	ctx := context.Background()

	got := p.Resolve(ctx, "/ws", "/ws/src/lib.rs", lang.Reference{Kind: lang.RefUse, Specifier: "crate::util::slug"})
	assert.Equal(t, []string{"/ws/src/util.rs"}, got)

	got = p.Resolve(ctx, "/ws", "/ws/src/models/user.rs", lang.Reference{Kind: lang.RefUse, Specifier: "super::super::util"})
	assert.Equal(t, []string{"/ws/src/util.rs"}, got)

	got = p.Resolve(ctx, "/ws", "/ws/src/models/mod.rs", lang.Reference{Kind: lang.RefModuleDecl, Specifier: "user"})
	assert.Equal(t, []string{"/ws/src/models/user.rs"}, got)

	assert.Nil(t, p.Resolve(ctx, "/ws", "/ws/src/lib.rs", lang.Reference{Kind: lang.RefUse, Specifier: "std::fmt"}))
}

func TestRewriteForMove(t *testing.T) {
	lib := "mod util;\nmod text;\nuse crate::util::slug;\n"
	p := newWorkspace(t, map[string]string{
		"/ws/Cargo.toml":  appCrate,
		"/ws/src/lib.rs":  lib,
		"/ws/src/util.rs": "pub fn slug() {}\n",
		"/ws/src/text.rs": "",
	})
	move := lang.Move{
		Root:    "/ws",
		OldPath: "/ws/src/util.rs",
		NewPath: "/ws/src/text/util.rs",
		NewLocation: func(path string) string {
			if path == "/ws/src/util.rs" {
				return "/ws/src/text/util.rs"
			}
			return path
		},
	}
	ctx := context.Background()

	edits, err := p.RewriteForMove(ctx, "/ws/src/lib.rs", []byte(lib), move)
	require.NoError(t, err)
	assert.Equal(t, "mod text;\nuse crate::text::util::slug;\n", apply(t, lib, edits))

	parent, spec, ok := p.ModuleParent(ctx, "/ws", "/ws/src/text/util.rs")
	require.True(t, ok)
	assert.Equal(t, "/ws/src/text.rs", parent)
	assert.Equal(t, "mod util", spec)
}

func TestRewriteForMove_CrateRename(t *testing.T) {
	src := "use my_core::Thing;\n"
	p := newWorkspace(t, nil)
	edits, err := p.RewriteForMove(context.Background(), "/ws/app/src/main.rs", []byte(src), lang.Move{
		Root: "/ws", OldPackage: "my-core", NewPackage: "kernel",
	})
	require.NoError(t, err)
	assert.Equal(t, "use kernel::Thing;\n", apply(t, src, edits))
}

func TestRewriteForRename(t *testing.T) {
	lib := "mod util;\nuse crate::util::slug;\n"
	p := newWorkspace(t, map[string]string{
		"/ws/Cargo.toml":  appCrate,
		"/ws/src/lib.rs":  lib,
		"/ws/src/util.rs": "pub fn slug() {}\n",
	})
	edits, err := p.RewriteForRename(context.Background(), "/ws/src/lib.rs", []byte(lib), lang.Rename{
		Root: "/ws", DefinitionPath: "/ws/src/util.rs", OldName: "slug", NewName: "slugify",
	})
	require.NoError(t, err)
	assert.Equal(t, "mod util;\nuse crate::util::slugify;\n", apply(t, lib, edits))
}

func TestAddAndRemoveReference(t *testing.T) {
	p := newWorkspace(t, nil)
	ctx := context.Background()
	src := "mod a;\nuse std::fmt;\n\nfn main() {}\n"

	edit, err := p.AddReference(ctx, "/ws/src/main.rs", []byte(src), "mod b")
	require.NoError(t, err)
	assert.Equal(t, "mod a;\nmod b;\nuse std::fmt;\n\nfn main() {}\n", apply(t, src, []plan.TextEdit{edit}))

	edit, err = p.AddReference(ctx, "/ws/src/main.rs", []byte(src), "std::io")
	require.NoError(t, err)
	assert.Equal(t, "mod a;\nuse std::fmt;\nuse std::io;\n\nfn main() {}\n", apply(t, src, []plan.TextEdit{edit}))

	has, err := p.HasReference(ctx, "/ws/src/main.rs", []byte(src), "mod a")
	require.NoError(t, err)
	assert.True(t, has)

	del, ok, err := p.RemoveReference(ctx, "/ws/src/main.rs", []byte(src), "std::fmt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "mod a;\n\nfn main() {}\n", apply(t, src, []plan.TextEdit{del}))
}

func symbolNamed(t *testing.T, p *Plugin, src, name string) lang.Symbol {
	t.Helper()
	syms, err := p.Symbols(context.Background(), "/ws/src/lib.rs", []byte(src))
	require.NoError(t, err)
	for _, s := range syms {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("symbol %s not found", name)
	return lang.Symbol{}
}

func TestSymbols(t *testing.T) {
	src := `pub struct Store {
    items: Vec<String>,
}

impl Store {
    pub fn get(&self, key: &str) -> Option<&String> {
        None
    }
}

const LIMIT: usize = 10;

fn helper() {}
`
	p := newWorkspace(t, nil)
	store := symbolNamed(t, p, src, "Store")
	assert.Equal(t, lang.SymbolType, store.Kind)
	assert.True(t, store.Exported)

	get := symbolNamed(t, p, src, "get")
	assert.Equal(t, lang.SymbolMethod, get.Kind)
	assert.Equal(t, "Store", get.Parent)
	assert.Len(t, get.Params, 2)

	assert.Equal(t, lang.SymbolConstant, symbolNamed(t, p, src, "LIMIT").Kind)
	assert.False(t, symbolNamed(t, p, src, "helper").Exported)
}

func TestTransform(t *testing.T) {
	p := newWorkspace(t, nil)
	ctx := context.Background()

	src := "fn load(id: u32) -> u32 {\n    id\n}\n"
	sym := symbolNamed(t, p, src, "load")
	edits, err := p.Transform(ctx, "/ws/src/lib.rs", []byte(src), sym, lang.TransformAddExport)
	require.NoError(t, err)
	assert.Equal(t, "pub fn load(id: u32) -> u32 {\n    id\n}\n", apply(t, src, edits))

	edits, err = p.Transform(ctx, "/ws/src/lib.rs", []byte(src), sym, lang.TransformToAsync)
	require.NoError(t, err)
	assert.Equal(t, "async fn load(id: u32) -> u32 {\n    id\n}\n", apply(t, src, edits))

	src = "pub(crate) fn f() {}\n"
	sym = symbolNamed(t, p, src, "f")
	edits, err = p.Transform(ctx, "/ws/src/lib.rs", []byte(src), sym, lang.TransformRemoveExport)
	require.NoError(t, err)
	assert.Equal(t, "fn f() {}\n", apply(t, src, edits))
}

func TestLocalDeclaration(t *testing.T) {
	p := newWorkspace(t, nil)
	src := "fn f(a: u32) -> u32 {\n    let total = a + 1;\n    total * 2\n}\n"

	decl, err := p.LocalDeclaration(context.Background(), "/ws/src/lib.rs", []byte(src), plan.Position{Line: 1, Character: 8})
	require.NoError(t, err)
	assert.Equal(t, "total", decl.Name)
	assert.Equal(t, "a + 1", decl.Value)
	assert.True(t, decl.Constant)

	src = "fn f() -> u32 {\n    let mut n = 1;\n    n += 2;\n    n\n}\n"
	decl, err = p.LocalDeclaration(context.Background(), "/ws/src/lib.rs", []byte(src), plan.Position{Line: 1, Character: 12})
	require.NoError(t, err)
	assert.False(t, decl.Constant)
	assert.True(t, decl.Reassigned)
}
