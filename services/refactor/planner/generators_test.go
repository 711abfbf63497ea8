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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianRefactor/services/refactor/lang"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/plan"
)

func rng(l1, c1, l2, c2 int) plan.Range {
	return plan.Range{Start: plan.Position{Line: l1, Character: c1}, End: plan.Position{Line: l2, Character: c2}}
}

func TestExtract_Function(t *testing.T) {
	src := "package main\n\nimport \"fmt\"\n\nfunc run() {\n\tfmt.Println(\"a\")\n\tfmt.Println(\"b\")\n}\n"
	fs, p := newPlanner(t, map[string]string{"/ws/main.go": src})

	pl, err := p.Extract(context.Background(), ExtractRequest{
		Workspace: ws(),
		Path:      "main.go",
		Range:     rng(5, 0, 7, 0),
		Kind:      ExtractFunction,
		Name:      "helper",
	})
	require.NoError(t, err)
	require.NoError(t, plan.Validate(pl))
	assert.Len(t, pl.Edits, 2)
	assert.Empty(t, pl.Warnings)

	want := "package main\n\nimport \"fmt\"\n\nfunc run() {\n\thelper()\n}\n\nfunc helper() {\n\tfmt.Println(\"a\")\n\tfmt.Println(\"b\")\n}\n"
	assert.Equal(t, want, result(t, fs, pl)["/ws/main.go"])
}

func TestExtract_FunctionUsingParameters(t *testing.T) {
	src := "package main\n\nfunc f(n int) int {\n\tm := n * 2\n\treturn m\n}\n"
	_, p := newPlanner(t, map[string]string{"/ws/main.go": src})

	pl, err := p.Extract(context.Background(), ExtractRequest{
		Workspace: ws(),
		Path:      "main.go",
		Range:     rng(3, 0, 4, 0),
		Kind:      ExtractFunction,
		Name:      "double",
	})
	require.NoError(t, err)
	assert.True(t, pl.HasWarning(plan.WarnParametersNotInferred))
}

func TestExtract_Variable(t *testing.T) {
	src := "package main\n\nfunc f() int {\n\tx := 1 + 2\n\treturn x * 3\n}\n"
	fs, p := newPlanner(t, map[string]string{"/ws/main.go": src})

	pl, err := p.Extract(context.Background(), ExtractRequest{
		Workspace: ws(),
		Path:      "main.go",
		Range:     rng(3, 6, 3, 11),
		Kind:      ExtractVariable,
		Name:      "sum",
	})
	require.NoError(t, err)
	want := "package main\n\nfunc f() int {\n\tsum := 1 + 2\n\tx := sum\n\treturn x * 3\n}\n"
	assert.Equal(t, want, result(t, fs, pl)["/ws/main.go"])
}

func TestExtract_VariableInUnparseableFile(t *testing.T) {
	src := "let broken = ;\nfunction f() {\n  const x = 1 + 2;\n  return x;\n}\n"
	fs, p := newPlanner(t, map[string]string{"/ws/app.ts": src})

	pl, err := p.Extract(context.Background(), ExtractRequest{
		Workspace: ws(),
		Path:      "app.ts",
		Range:     rng(2, 12, 2, 17),
		Kind:      ExtractVariable,
		Name:      "sum",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{plan.WarnHeuristicFallback}, warningCodes(pl))

	want := "let broken = ;\nfunction f() {\n  let sum = 1 + 2;\n  const x = sum;\n  return x;\n}\n"
	assert.Equal(t, want, result(t, fs, pl)["/ws/app.ts"])
}

func TestExtract_Rejects(t *testing.T) {
	src := "package main\n\nfunc f() int {\n\tx := 1 + 2\n\treturn x * 3\n}\n"
	_, p := newPlanner(t, map[string]string{"/ws/main.go": src})
	ctx := context.Background()

	tests := []struct {
		name string
		req  ExtractRequest
		code plan.Code
	}{
		{"partial expression", ExtractRequest{Range: rng(3, 6, 3, 9), Kind: ExtractVariable, Name: "v"}, plan.CodeInvalidRequest},
		{"empty range", ExtractRequest{Range: rng(3, 6, 3, 6), Kind: ExtractVariable, Name: "v"}, plan.CodeInvalidRequest},
		{"past end", ExtractRequest{Range: rng(3, 6, 40, 0), Kind: ExtractVariable, Name: "v"}, plan.CodeInvalidRequest},
		{"bad kind", ExtractRequest{Range: rng(3, 6, 3, 11), Kind: "class", Name: "v"}, plan.CodeInvalidRequest},
		{"bad name", ExtractRequest{Range: rng(3, 6, 3, 11), Kind: ExtractVariable, Name: "a-b"}, plan.CodeInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.Workspace = ws()
			tt.req.Path = "main.go"
			_, err := p.Extract(ctx, tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.code, plan.CodeOf(err))
		})
	}
}

func TestBalanced(t *testing.T) {
	assert.True(t, balanced(`f(a[1], "x)")`))
	assert.True(t, balanced("{ if (x) { y() } }"))
	assert.False(t, balanced("f(a"))
	assert.False(t, balanced("a) + (b"))
	assert.False(t, balanced(`"open`))
}

func TestInline_ReplacesUses(t *testing.T) {
	src := "package main\n\nfunc f() int {\n\tx := compute()\n\treturn x + x\n}\n"
	fs, p := newPlanner(t, map[string]string{"/ws/main.go": src})

	pl, err := p.Inline(context.Background(), InlineRequest{
		Workspace: ws(),
		Target:    plan.Selector{Kind: plan.SelectorSymbol, Path: "main.go", Position: at(3, 1)},
	})
	require.NoError(t, err)
	require.NoError(t, plan.Validate(pl))
	assert.Len(t, pl.Edits, 3)
	assert.Equal(t, []string{plan.WarnDuplicatedEvaluation}, warningCodes(pl))

	want := "package main\n\nfunc f() int {\n\treturn compute() + compute()\n}\n"
	assert.Equal(t, want, result(t, fs, pl)["/ws/main.go"])
}

func TestInline_ParenthesizesCompoundValues(t *testing.T) {
	src := "package main\n\nfunc f() int {\n\tx := 1 + 2\n\treturn x * 3\n}\n"
	fs, p := newPlanner(t, map[string]string{"/ws/main.go": src})

	pl, err := p.Inline(context.Background(), InlineRequest{
		Workspace: ws(),
		Target:    plan.Selector{Kind: plan.SelectorSymbol, Path: "main.go", Name: "x"},
	})
	require.NoError(t, err)
	assert.Empty(t, pl.Warnings)
	want := "package main\n\nfunc f() int {\n\treturn (1 + 2) * 3\n}\n"
	assert.Equal(t, want, result(t, fs, pl)["/ws/main.go"])
}

func TestInline_RejectsReassigned(t *testing.T) {
	src := "package main\n\nfunc f() int {\n\tx := 1\n\tx = 3\n\treturn x\n}\n"
	_, p := newPlanner(t, map[string]string{"/ws/main.go": src})

	_, err := p.Inline(context.Background(), InlineRequest{
		Workspace: ws(),
		Target:    plan.Selector{Kind: plan.SelectorSymbol, Path: "main.go", Position: at(3, 1)},
	})
	require.Error(t, err)
	assert.Equal(t, plan.CodeInvalidRequest, plan.CodeOf(err))
}

func TestSimpleValue(t *testing.T) {
	for _, v := range []string{"x", "a.b", "42", `"s"`, "f()", "pkg.New(a, b)", "f(g(x))"} {
		assert.True(t, simpleValue(v), v)
	}
	for _, v := range []string{"1 + 2", "f(a) + g(b)", "-x", "a[0] * 2", "x ? y : z"} {
		assert.False(t, simpleValue(v), v)
	}
}

func TestMove_FileKeepsQuoteStyle(t *testing.T) {
	fs, p := newPlanner(t, map[string]string{
		"/ws/src/a.ts":     "export const a = 1;\n",
		"/ws/src/main.ts":  "import { a } from './a';\nconsole.log(a);\n",
		"/ws/src/other.ts": "import { a } from \"./a\";\n",
	})

	pl, err := p.Move(context.Background(), MoveRequest{
		Workspace:   ws(),
		Source:      plan.Selector{Kind: plan.SelectorFile, Path: "src/a.ts"},
		Destination: "src/utils/a.ts",
	})
	require.NoError(t, err)
	require.NoError(t, plan.Validate(pl))

	after := result(t, fs, pl)
	assert.Equal(t, "import { a } from './utils/a';\nconsole.log(a);\n", after["/ws/src/main.ts"])
	assert.Equal(t, "import { a } from \"./utils/a\";\n", after["/ws/src/other.ts"])
	assert.Contains(t, pl.Edits, plan.TextEdit{
		FilePath:    "/ws/src/a.ts",
		Kind:        plan.EditMoveFile,
		NewPath:     "/ws/src/utils/a.ts",
		Description: "move a.ts",
	})
}

func TestMove_FileIntoExistingDirectory(t *testing.T) {
	_, p := newPlanner(t, map[string]string{
		"/ws/src/a.ts":         "export const a = 1;\n",
		"/ws/src/lib/index.ts": "export {};\n",
	})

	pl, err := p.Move(context.Background(), MoveRequest{
		Workspace:   ws(),
		Source:      plan.Selector{Kind: plan.SelectorFile, Path: "src/a.ts"},
		Destination: "src/lib",
	})
	require.NoError(t, err)
	var dest string
	for _, e := range pl.Edits {
		if e.Kind == plan.EditMoveFile {
			dest = e.NewPath
		}
	}
	assert.Equal(t, "/ws/src/lib/a.ts", dest)
}

func TestMove_SymbolToNewFile(t *testing.T) {
	_, p := newPlanner(t, map[string]string{
		"/ws/src/util.ts": "export function helper() {\n  return 1;\n}\n\nexport function other() {\n  return 2;\n}\n",
		"/ws/src/main.ts": "import { helper } from './util';\nconsole.log(helper());\n",
	})

	pl, err := p.Move(context.Background(), MoveRequest{
		Workspace:   ws(),
		Source:      plan.Selector{Kind: plan.SelectorSymbol, Path: "src/util.ts", Name: "helper"},
		Destination: "src/helpers.ts",
	})
	require.NoError(t, err)
	require.NoError(t, plan.Validate(pl))

	var created *plan.TextEdit
	for i, e := range pl.Edits {
		if e.Kind == plan.EditCreateFile {
			created = &pl.Edits[i]
		}
	}
	require.NotNil(t, created)
	assert.Equal(t, "/ws/src/helpers.ts", created.FilePath)
	assert.Equal(t, "export function helper() {\n  return 1;\n}\n", created.NewText)
	assert.Equal(t, 1, pl.Summary.CreatedFiles)

	require.True(t, pl.HasWarning(plan.WarnDanglingReference))
	found := false
	for _, w := range pl.Warnings {
		if w.Code == plan.WarnDanglingReference && strings.Contains(w.Message, "/ws/src/main.ts") {
			found = true
		}
	}
	assert.True(t, found, "main.ts should be reported: %v", pl.Warnings)
}

func TestMove_SymbolRejections(t *testing.T) {
	_, p := newPlanner(t, map[string]string{
		"/ws/src/util.ts":  "export function helper() {}\n",
		"/ws/src/other.ts": "export function helper() {}\n",
		"/ws/src/x.py":     "x = 1\n",
	})
	ctx := context.Background()
	sel := plan.Selector{Kind: plan.SelectorSymbol, Path: "src/util.ts", Name: "helper"}

	for name, dest := range map[string]string{
		"same file":      "src/util.ts",
		"other language": "src/x.py",
		"name clash":     "src/other.ts",
		"directory":      "src",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := p.Move(ctx, MoveRequest{Workspace: ws(), Source: sel, Destination: dest})
			require.Error(t, err)
			assert.Equal(t, plan.CodeInvalidRequest, plan.CodeOf(err))
		})
	}
}

func TestReorder_Parameters(t *testing.T) {
	src := "package main\n\nfunc add(a int, b string) {}\n\nfunc main() {\n\tadd(1, \"x\")\n}\n"
	fs, p := newPlanner(t, map[string]string{"/ws/main.go": src})

	pl, err := p.Reorder(context.Background(), ReorderRequest{
		Workspace: ws(),
		Kind:      ReorderParameters,
		Target:    plan.Selector{Kind: plan.SelectorSymbol, Path: "main.go", Name: "add"},
		Order:     []int{1, 0},
	})
	require.NoError(t, err)
	require.NoError(t, plan.Validate(pl))
	assert.Len(t, pl.Edits, 4)

	want := "package main\n\nfunc add(b string, a int) {}\n\nfunc main() {\n\tadd(\"x\", 1)\n}\n"
	assert.Equal(t, want, result(t, fs, pl)["/ws/main.go"])
}

func TestReorder_RejectsBadPermutation(t *testing.T) {
	src := "package main\n\nfunc add(a int, b string) {}\n"
	_, p := newPlanner(t, map[string]string{"/ws/main.go": src})

	for _, order := range [][]int{{0}, {0, 0}, {1, 2}, {-1, 0}} {
		_, err := p.Reorder(context.Background(), ReorderRequest{
			Workspace: ws(),
			Kind:      ReorderParameters,
			Target:    plan.Selector{Kind: plan.SelectorSymbol, Path: "main.go", Name: "add"},
			Order:     order,
		})
		assert.Equal(t, plan.CodeInvalidRequest, plan.CodeOf(err), "%v", order)
	}
}

func TestReorder_Imports(t *testing.T) {
	src := "import { z } from './z';\nimport { a } from './a';\nconsole.log(a, z);\n"
	fs, p := newPlanner(t, map[string]string{"/ws/main.ts": src})
	ctx := context.Background()
	req := ReorderRequest{
		Workspace: ws(),
		Kind:      ReorderImports,
		Target:    plan.Selector{Kind: plan.SelectorFile, Path: "main.ts"},
	}

	pl, err := p.Reorder(ctx, req)
	require.NoError(t, err)
	require.Len(t, pl.Edits, 1)
	sorted := "import { a } from './a';\nimport { z } from './z';\nconsole.log(a, z);\n"
	assert.Equal(t, sorted, result(t, fs, pl)["/ws/main.ts"])

	_, p = newPlanner(t, map[string]string{"/ws/main.ts": sorted})
	pl, err = p.Reorder(ctx, req)
	require.NoError(t, err)
	assert.Empty(t, pl.Edits)
	assert.Equal(t, []string{plan.WarnNoChanges}, warningCodes(pl))
}

func TestTransform(t *testing.T) {
	fs, p := newPlanner(t, map[string]string{
		"/ws/util.ts": "function helper() {}\n",
		"/ws/main.go": "package main\n\nfunc helper() {}\n",
	})
	ctx := context.Background()

	pl, err := p.Transform(ctx, TransformRequest{
		Workspace: ws(),
		Target:    plan.Selector{Kind: plan.SelectorSymbol, Path: "util.ts", Name: "helper"},
		Transform: lang.TransformAddExport,
	})
	require.NoError(t, err)
	assert.Equal(t, "export function helper() {}\n", result(t, fs, pl)["/ws/util.ts"])

	_, err = p.Transform(ctx, TransformRequest{
		Workspace: ws(),
		Target:    plan.Selector{Kind: plan.SelectorSymbol, Path: "main.go", Name: "helper"},
		Transform: lang.TransformToAsync,
	})
	require.Error(t, err)
	assert.Equal(t, plan.CodeUnsupportedCapability, plan.CodeOf(err))

	_, err = p.Transform(ctx, TransformRequest{
		Workspace: ws(),
		Target:    plan.Selector{Kind: plan.SelectorSymbol, Path: "util.ts", Name: "helper"},
		Transform: "inline_all",
	})
	assert.Equal(t, plan.CodeInvalidRequest, plan.CodeOf(err))
}

func TestDelete_UnusedImports(t *testing.T) {
	src := "import { a } from './a';\nimport { b } from './b';\nimport { c } from './c';\nconsole.log(a);\n"
	fs, p := newPlanner(t, map[string]string{"/ws/main.ts": src})

	pl, err := p.Delete(context.Background(), DeleteRequest{
		Workspace: ws(),
		Kind:      DeleteUnusedImports,
		Target:    plan.Selector{Kind: plan.SelectorFile, Path: "main.ts"},
	})
	require.NoError(t, err)
	require.NoError(t, plan.Validate(pl))
	assert.Len(t, pl.Edits, 2)
	assert.Equal(t, "import { a } from './a';\nconsole.log(a);\n", result(t, fs, pl)["/ws/main.ts"])
}

func TestDelete_PartiallyUnusedImport(t *testing.T) {
	src := "import { a, b } from './ab';\nconsole.log(a);\n"
	_, p := newPlanner(t, map[string]string{"/ws/main.ts": src})

	pl, err := p.Delete(context.Background(), DeleteRequest{
		Workspace: ws(),
		Kind:      DeleteUnusedImports,
		Target:    plan.Selector{Kind: plan.SelectorFile, Path: "main.ts"},
	})
	require.NoError(t, err)
	assert.Empty(t, pl.Edits)
	assert.True(t, pl.HasWarning(plan.WarnPartialUnusedImport))
}

func TestDelete_Symbol(t *testing.T) {
	src := "package main\n\nfunc helper() {}\n\nfunc main() {\n\thelper()\n}\n"
	fs, p := newPlanner(t, map[string]string{"/ws/main.go": src})

	pl, err := p.Delete(context.Background(), DeleteRequest{
		Workspace: ws(),
		Target:    plan.Selector{Kind: plan.SelectorSymbol, Path: "main.go", Name: "helper"},
	})
	require.NoError(t, err)
	assert.Len(t, pl.Edits, 1)
	assert.Equal(t, "package main\n\nfunc main() {\n\thelper()\n}\n", result(t, fs, pl)["/ws/main.go"])
	assert.Equal(t, []string{plan.WarnDanglingReference}, warningCodes(pl))
}

func TestDropSeparator(t *testing.T) {
	content := []byte("a\n\nb\n\nc\nd\n\ne")
	assert.Equal(t, rng(2, 0, 4, 0), dropSeparator(content, rng(2, 0, 3, 0)), "blank lines on both sides")
	assert.Equal(t, rng(5, 0, 6, 0), dropSeparator(content, rng(5, 0, 6, 0)), "code line before")
	assert.Equal(t, rng(4, 0, 5, 0), dropSeparator(content, rng(4, 0, 5, 0)), "code line after")
	assert.Equal(t, rng(2, 1, 3, 0), dropSeparator(content, rng(2, 1, 3, 0)), "partial line")
}

func TestDelete_FileWarnsImporters(t *testing.T) {
	_, p := newPlanner(t, map[string]string{
		"/ws/src/a.ts":    "export const a = 1;\n",
		"/ws/src/main.ts": "import { a } from './a';\n",
	})

	pl, err := p.Delete(context.Background(), DeleteRequest{
		Workspace: ws(),
		Target:    plan.Selector{Kind: plan.SelectorFile, Path: "src/a.ts"},
	})
	require.NoError(t, err)
	require.NoError(t, plan.Validate(pl))
	assert.Equal(t, []plan.TextEdit{{FilePath: "/ws/src/a.ts", Kind: plan.EditDeleteFile, Description: "delete a.ts"}}, pl.Edits)
	assert.Equal(t, 1, pl.Summary.DeletedFiles)
	assert.Equal(t, []string{plan.WarnDanglingReference}, warningCodes(pl))
}

func TestDelete_DirectoryDropsWorkspaceMember(t *testing.T) {
	fs, p := newPlanner(t, map[string]string{
		"/ws/go.work":    "go 1.22\n\nuse (\n\t./app\n\t./lib\n)\n",
		"/ws/app/go.mod": "module example.com/app\n\ngo 1.22\n",
		"/ws/lib/go.mod": "module example.com/lib\n\ngo 1.22\n",
		"/ws/lib/lib.go": "package lib\n",
	})

	pl, err := p.Delete(context.Background(), DeleteRequest{
		Workspace: ws(),
		Target:    plan.Selector{Kind: plan.SelectorDirectory, Path: "lib"},
	})
	require.NoError(t, err)
	require.NoError(t, plan.Validate(pl))
	assert.Equal(t, 2, pl.Summary.DeletedFiles)

	work := result(t, fs, pl)["/ws/go.work"]
	assert.Contains(t, work, "./app")
	assert.NotContains(t, work, "./lib")
}

func TestDelete_RejectsRoot(t *testing.T) {
	_, p := newPlanner(t, nil)
	_, err := p.Delete(context.Background(), DeleteRequest{
		Workspace: ws(),
		Target:    plan.Selector{Kind: plan.SelectorDirectory, Path: "."},
	})
	assert.Equal(t, plan.CodeInvalidRequest, plan.CodeOf(err))
}
