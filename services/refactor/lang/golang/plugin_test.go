// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package golang

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianRefactor/services/refactor/lang"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/plan"
)

const mainSrc = `package main

import (
	"fmt"
	util "example.com/app/internal/util"
	_ "example.com/app/plugins"
)

func main() {
	fmt.Println(util.Name())
}
`

func newWorkspace(t *testing.T, files map[string]string) (afero.Fs, *Plugin) {
	t.Helper()
	fs := afero.NewMemMapFs()
	for path, content := range files {
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	}
	return fs, New(fs)
}

func slice(t *testing.T, content string, r plan.Range) string {
	t.Helper()
	li := plan.NewLineIndex([]byte(content))
	start, err := li.Offset(r.Start)
	require.NoError(t, err)
	end, err := li.Offset(r.End)
	require.NoError(t, err)
	return content[start:end]
}

func TestParseReferences(t *testing.T) {
	_, p := newWorkspace(t, nil)

	refs, err := p.ParseReferences(context.Background(), "/ws/cmd/main.go", []byte(mainSrc))
	require.NoError(t, err)
	require.Len(t, refs, 3)

	assert.Equal(t, "fmt", refs[0].Specifier)
	assert.Equal(t, "fmt", refs[0].Namespace)

	assert.Equal(t, "example.com/app/internal/util", refs[1].Specifier)
	assert.Equal(t, "util", refs[1].Namespace)
	assert.Equal(t, "example.com/app/internal/util", slice(t, mainSrc, refs[1].SpecifierRange))

	assert.True(t, refs[2].SideEffect)
	assert.Empty(t, refs[2].Namespace)
}

func TestParseReferences_SyntaxError(t *testing.T) {
	_, p := newWorkspace(t, nil)
	_, err := p.ParseReferences(context.Background(), "/ws/bad.go", []byte("package main\n\nfunc {\n"))
	assert.ErrorIs(t, err, lang.ErrParse)
}

func TestResolve(t *testing.T) {
	_, p := newWorkspace(t, map[string]string{
		"/ws/go.mod":                "module example.com/app\n\ngo 1.22\n",
		"/ws/cmd/main.go":           mainSrc,
		"/ws/internal/util/util.go": "package util\n",
	})
	ctx := context.Background()
	refs, err := p.ParseReferences(ctx, "/ws/cmd/main.go", []byte(mainSrc))
	require.NoError(t, err)

	assert.Nil(t, p.Resolve(ctx, "/ws", "/ws/cmd/main.go", refs[0]))
	assert.Equal(t, []string{"/ws/internal/util"}, p.Resolve(ctx, "/ws", "/ws/cmd/main.go", refs[1]))
}

func TestRewriteForMove_Directory(t *testing.T) {
	_, p := newWorkspace(t, map[string]string{
		"/ws/go.mod":                "module example.com/app\n\ngo 1.22\n",
		"/ws/cmd/main.go":           mainSrc,
		"/ws/internal/util/util.go": "package util\n",
	})

	edits, err := p.RewriteForMove(context.Background(), "/ws/cmd/main.go", []byte(mainSrc), lang.Move{
		Root:    "/ws",
		OldPath: "/ws/internal/util",
		NewPath: "/ws/pkg/util",
		IsDir:   true,
	})
	require.NoError(t, err)
	require.Len(t, edits, 1)
	assert.Equal(t, "example.com/app/pkg/util", edits[0].NewText)
	assert.Equal(t, "example.com/app/internal/util", slice(t, mainSrc, edits[0].Range))
}

func TestRewriteForMove_FileAdoptsDestinationPackage(t *testing.T) {
	src := "package a\n\nfunc X() {}\n"
	_, p := newWorkspace(t, map[string]string{
		"/ws/go.mod": "module example.com/app\n",
		"/ws/a/x.go": src,
		"/ws/a/z.go": "package a\n",
		"/ws/b/y.go": "package b\n",
	})

	edits, err := p.RewriteForMove(context.Background(), "/ws/a/x.go", []byte(src), lang.Move{
		Root:    "/ws",
		OldPath: "/ws/a/x.go",
		NewPath: "/ws/b/x.go",
		NewLocation: func(path string) string {
			if path == "/ws/a/x.go" {
				return "/ws/b/x.go"
			}
			return path
		},
	})
	require.NoError(t, err)
	require.Len(t, edits, 1)
	assert.Equal(t, "b", edits[0].NewText)
}

func TestAddAndRemoveReference(t *testing.T) {
	_, p := newWorkspace(t, nil)
	ctx := context.Background()
	content := []byte(mainSrc)

	has, err := p.HasReference(ctx, "/ws/main.go", content, "os")
	require.NoError(t, err)
	assert.False(t, has)

	add, err := p.AddReference(ctx, "/ws/main.go", content, "os")
	require.NoError(t, err)
	out, err := plan.ApplyEdits(content, []plan.TextEdit{add})
	require.NoError(t, err)
	assert.Contains(t, string(out), "\t\"os\"\n)")

	del, ok, err := p.RemoveReference(ctx, "/ws/main.go", content, "fmt")
	require.NoError(t, err)
	require.True(t, ok)
	out, err = plan.ApplyEdits(content, []plan.TextEdit{del})
	require.NoError(t, err)
	assert.NotContains(t, string(out), `"fmt"`)
	assert.Contains(t, string(out), "import (\n\tutil")

	_, ok, err = p.RemoveReference(ctx, "/ws/main.go", content, "strings")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSymbols(t *testing.T) {
	src := `package shapes

type Shape interface {
	Area() float64
}

type Square struct{ side float64 }

func (s *Square) Area() float64 { return s.side * s.side }

func newSquare(side float64) *Square { return &Square{side: side} }
`
	_, p := newWorkspace(t, nil)
	syms, err := p.Symbols(context.Background(), "/ws/shapes.go", []byte(src))
	require.NoError(t, err)

	byName := map[string]lang.Symbol{}
	for _, s := range syms {
		byName[s.Name] = s
	}
	assert.Equal(t, lang.SymbolInterface, byName["Shape"].Kind)
	assert.Equal(t, lang.SymbolType, byName["Square"].Kind)
	assert.Equal(t, lang.SymbolMethod, byName["Area"].Kind)
	assert.Equal(t, "Square", byName["Area"].Parent)
	assert.False(t, byName["newSquare"].Exported)
	assert.Len(t, byName["newSquare"].Params, 1)
}

func TestLocalDeclaration(t *testing.T) {
	src := "package main\n\nfunc f() int {\n\tx := 1 + 2\n\treturn x * 2\n}\n"
	_, p := newWorkspace(t, nil)

	decl, err := p.LocalDeclaration(context.Background(), "/ws/f.go", []byte(src), plan.Position{Line: 3, Character: 1})
	require.NoError(t, err)
	assert.Equal(t, "x", decl.Name)
	assert.Equal(t, "1 + 2", decl.Value)
	assert.False(t, decl.Reassigned)
	assert.Equal(t, "\tx := 1 + 2\n", slice(t, src, decl.StatementRange))
}

func TestLocalDeclaration_Reassigned(t *testing.T) {
	src := "package main\n\nfunc f() int {\n\tx := 1\n\tx = 3\n\treturn x\n}\n"
	_, p := newWorkspace(t, nil)

	decl, err := p.LocalDeclaration(context.Background(), "/ws/f.go", []byte(src), plan.Position{Line: 3, Character: 1})
	require.NoError(t, err)
	assert.True(t, decl.Reassigned)
}

func TestLocalDeclaration_PackageLevel(t *testing.T) {
	src := "package main\n\nvar x = 1\n"
	_, p := newWorkspace(t, nil)

	_, err := p.LocalDeclaration(context.Background(), "/ws/f.go", []byte(src), plan.Position{Line: 2, Character: 4})
	assert.ErrorIs(t, err, lang.ErrNotLocal)
}

func TestTransformUnsupported(t *testing.T) {
	_, p := newWorkspace(t, nil)
	_, err := p.Transform(context.Background(), "/ws/f.go", nil, lang.Symbol{}, lang.TransformToAsync)
	assert.ErrorIs(t, err, lang.ErrUnsupportedTransform)
}
