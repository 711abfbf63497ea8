// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package typescript

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianRefactor/services/refactor/lang"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/plan"
)

const appSrc = `import { a, b as c } from "./util";
import * as ns from './ns';
import def from "../def.js";
import "./side-effect";
export { x } from "./x";
export * from "./all";
const r = require("./req");

async function load() {
  await import("./lazy");
}
`

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
	p := newWorkspace(t, nil)
	refs, err := p.ParseReferences(context.Background(), "/ws/src/app.ts", []byte(appSrc))
	require.NoError(t, err)
	require.Len(t, refs, 8)

	assert.Equal(t, "./util", refs[0].Specifier)
	require.Len(t, refs[0].Bindings, 2)
	assert.Equal(t, "a", refs[0].Bindings[0].Local())
	assert.Equal(t, "b", refs[0].Bindings[1].Name)
	assert.Equal(t, "c", refs[0].Bindings[1].Local())

	assert.Equal(t, "ns", refs[1].Namespace)
	assert.Equal(t, "def", refs[2].Namespace)
	assert.True(t, refs[3].SideEffect)

	assert.Equal(t, lang.RefReexport, refs[4].Kind)
	assert.Equal(t, "x", refs[4].Bindings[0].Name)
	assert.True(t, refs[5].Wildcard)

	assert.Equal(t, lang.RefRequire, refs[6].Kind)
	assert.Equal(t, "r", refs[6].Namespace)
	assert.Equal(t, lang.RefDynamicImport, refs[7].Kind)
	assert.Equal(t, "./lazy", refs[7].Specifier)
}

func TestResolve(t *testing.T) {
	p := newWorkspace(t, map[string]string{
		"/ws/src/app.ts":       appSrc,
		"/ws/src/util.ts":      "export const a = 1;\n",
		"/ws/src/lib/index.ts": "export {};\n",
		"/ws/src/x.ts":         "export const x = 1;\n",
	})
	ctx := context.Background()
	resolve := func(spec string) []string {
		return p.Resolve(ctx, "/ws", "/ws/src/app.ts", lang.Reference{Specifier: spec})
	}

	assert.Equal(t, []string{"/ws/src/util.ts"}, resolve("./util"))
	assert.Equal(t, []string{"/ws/src/lib/index.ts"}, resolve("./lib"))
	assert.Equal(t, []string{"/ws/src/x.ts"}, resolve("./x.js"))
	assert.Nil(t, resolve("./missing"))
	assert.Nil(t, resolve("react"))
}

func TestResolve_WorkspacePackage(t *testing.T) {
	p := newWorkspace(t, map[string]string{
		"/ws/package.json":               "{\n  \"workspaces\": [\"packages/*\"]\n}\n",
		"/ws/packages/util/package.json": "{\n  \"name\": \"@acme/util\"\n}\n",
		"/ws/packages/util/src/index.ts": "export {};\n",
		"/ws/packages/app/src/main.ts":   "import \"@acme/util\";\n",
	})
	got := p.Resolve(context.Background(), "/ws", "/ws/packages/app/src/main.ts", lang.Reference{Specifier: "@acme/util"})
	assert.Equal(t, []string{"/ws/packages/util"}, got)
}

func TestSpecifier(t *testing.T) {
	tests := []struct {
		name, original, oldTarget, fromDir, newTarget, want string
	}{
		{"extensionless", "./util", "/ws/src/util.ts", "/ws/src", "/ws/src/shared/util.ts", "./shared/util"},
		{"parent", "./util", "/ws/src/util.ts", "/ws/src/deep", "/ws/src/util.ts", "../util"},
		{"explicit extension", "./util.ts", "/ws/src/util.ts", "/ws/src", "/ws/lib/util.ts", "../lib/util.ts"},
		{"esm js for ts", "./util.js", "/ws/src/util.ts", "/ws/src", "/ws/src/core/util.ts", "./core/util.js"},
		{"directory index", "./lib", "/ws/src/lib/index.ts", "/ws/src", "/ws/pkg/lib/index.ts", "../pkg/lib"},
		{"explicit index", "./lib/index", "/ws/src/lib/index.ts", "/ws/src", "/ws/src/core/index.ts", "./core/index"},
		{"dotted name", "./user.service", "/ws/src/user.service.ts", "/ws/src", "/ws/src/users/user.service.ts", "./users/user.service"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Specifier(tt.original, tt.oldTarget, tt.fromDir, tt.newTarget))
		})
	}
}

func TestRewriteForMove(t *testing.T) {
	utilSrc := "import { b } from './b';\nexport const a = b;\n"
	p := newWorkspace(t, map[string]string{
		"/ws/src/app.ts":  "import { a } from \"./util\";\n",
		"/ws/src/util.ts": utilSrc,
		"/ws/src/b.ts":    "export const b = 1;\n",
	})
	move := lang.Move{
		Root:    "/ws",
		OldPath: "/ws/src/util.ts",
		NewPath: "/ws/src/shared/util.ts",
		NewLocation: func(path string) string {
			if path == "/ws/src/util.ts" {
				return "/ws/src/shared/util.ts"
			}
			return path
		},
	}
	ctx := context.Background()

	app := "import { a } from \"./util\";\n"
	edits, err := p.RewriteForMove(ctx, "/ws/src/app.ts", []byte(app), move)
	require.NoError(t, err)
	assert.Equal(t, "import { a } from \"./shared/util\";\n", apply(t, app, edits))

	edits, err = p.RewriteForMove(ctx, "/ws/src/util.ts", []byte(utilSrc), move)
	require.NoError(t, err)
	assert.Equal(t, "import { b } from '../b';\nexport const a = b;\n", apply(t, utilSrc, edits))
}

func TestRewriteForRename(t *testing.T) {
	app := "import { a, other } from \"./util\";\nconsole.log(a);\n"
	p := newWorkspace(t, map[string]string{
		"/ws/src/app.ts":  app,
		"/ws/src/util.ts": "export const a = 1;\nexport const other = 2;\n",
	})
	edits, err := p.RewriteForRename(context.Background(), "/ws/src/app.ts", []byte(app), lang.Rename{
		Root: "/ws", DefinitionPath: "/ws/src/util.ts", OldName: "a", NewName: "z",
	})
	require.NoError(t, err)
	require.Len(t, edits, 1)
	assert.Equal(t, "import { z, other } from \"./util\";\nconsole.log(a);\n", apply(t, app, edits))
}

func TestAddAndRemoveReference(t *testing.T) {
	p := newWorkspace(t, nil)
	ctx := context.Background()
	src := "import { a } from './a'\n\nconsole.log(a)\n"

	edit, err := p.AddReference(ctx, "/ws/x.ts", []byte(src), "./polyfill")
	require.NoError(t, err)
	assert.Equal(t, "import { a } from './a'\nimport './polyfill'\n\nconsole.log(a)\n", apply(t, src, []plan.TextEdit{edit}))

	del, ok, err := p.RemoveReference(ctx, "/ws/x.ts", []byte(src), "./a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "\nconsole.log(a)\n", apply(t, src, []plan.TextEdit{del}))
}

func symbolNamed(t *testing.T, p *Plugin, path, src, name string) lang.Symbol {
	t.Helper()
	syms, err := p.Symbols(context.Background(), path, []byte(src))
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
	src := `export class Store {
  read(key: string): string {
    return key;
  }
}

export const LIMIT = 10;
let counter = 0;
const handler = (req: string) => req;
interface Shape { area(): number }
`
	p := newWorkspace(t, nil)
	store := symbolNamed(t, p, "/ws/s.ts", src, "Store")
	assert.Equal(t, lang.SymbolClass, store.Kind)
	assert.True(t, store.Exported)

	read := symbolNamed(t, p, "/ws/s.ts", src, "read")
	assert.Equal(t, "Store", read.Parent)
	assert.Len(t, read.Params, 1)

	assert.Equal(t, lang.SymbolConstant, symbolNamed(t, p, "/ws/s.ts", src, "LIMIT").Kind)
	assert.Equal(t, lang.SymbolVariable, symbolNamed(t, p, "/ws/s.ts", src, "counter").Kind)
	assert.False(t, symbolNamed(t, p, "/ws/s.ts", src, "counter").Exported)
	assert.Equal(t, lang.SymbolFunction, symbolNamed(t, p, "/ws/s.ts", src, "handler").Kind)
	assert.Equal(t, lang.SymbolInterface, symbolNamed(t, p, "/ws/s.ts", src, "Shape").Kind)
}

func TestTransform(t *testing.T) {
	p := newWorkspace(t, nil)
	ctx := context.Background()

	src := "function load(id: string): string {\n  return id;\n}\n"
	sym := symbolNamed(t, p, "/ws/l.ts", src, "load")
	edits, err := p.Transform(ctx, "/ws/l.ts", []byte(src), sym, lang.TransformToAsync)
	require.NoError(t, err)
	assert.Equal(t, "async function load(id: string): Promise<string> {\n  return id;\n}\n", apply(t, src, edits))

	src = "const x = 1;\n"
	sym = symbolNamed(t, p, "/ws/x.ts", src, "x")
	edits, err = p.Transform(ctx, "/ws/x.ts", []byte(src), sym, lang.TransformAddExport)
	require.NoError(t, err)
	assert.Equal(t, "export const x = 1;\n", apply(t, src, edits))

	src = "export function f() {}\n"
	sym = symbolNamed(t, p, "/ws/f.ts", src, "f")
	edits, err = p.Transform(ctx, "/ws/f.ts", []byte(src), sym, lang.TransformRemoveExport)
	require.NoError(t, err)
	assert.Equal(t, "function f() {}\n", apply(t, src, edits))

	edits, err = p.Transform(ctx, "/ws/f.ts", []byte(src), sym, lang.TransformAddExport)
	require.NoError(t, err)
	assert.Empty(t, edits)
}

func TestLocalDeclaration(t *testing.T) {
	src := "function f(a: number, b: number) {\n  const total = a + b;\n  return total * 2;\n}\n"
	p := newWorkspace(t, nil)

	decl, err := p.LocalDeclaration(context.Background(), "/ws/f.ts", []byte(src), plan.Position{Line: 1, Character: 8})
	require.NoError(t, err)
	assert.Equal(t, "total", decl.Name)
	assert.Equal(t, "a + b", decl.Value)
	assert.True(t, decl.Constant)
	assert.False(t, decl.Reassigned)

	src = "function f() {\n  let n = 1;\n  n += 2;\n  return n;\n}\n"
	decl, err = p.LocalDeclaration(context.Background(), "/ws/f.ts", []byte(src), plan.Position{Line: 1, Character: 6})
	require.NoError(t, err)
	assert.True(t, decl.Reassigned)
}
