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
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/AleutianAI/AleutianRefactor/services/refactor/lang"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/plan"
)

// Reorder plans reordering a callable's parameters or a file's imports.
//
// # Description
//
// Parameters are permuted at the declaration and at every call site the
// planner can see: the declaring file, its package peers for directory-
// scoped languages, and files importing the declaration. Call sites whose
// argument count differs from the parameter count are left alone with a
// warning.
//
// Imports are sorted by specifier within each contiguous run of whole-line
// import statements. Side-effect imports split runs since their order may
// matter. A file whose runs are already sorted yields no edits.
func (p *Planner) Reorder(ctx context.Context, req ReorderRequest) (*plan.Plan, error) {
	return p.generate(ctx, plan.TypeReorder, &req, &req.Workspace, func(ctx context.Context, j *job) error {
		if req.Kind == ReorderImports {
			return p.reorderImports(ctx, j, req)
		}
		return p.reorderParameters(ctx, j, req)
	})
}

func (p *Planner) reorderParameters(ctx context.Context, j *job, req ReorderRequest) error {
	t, cands, err := p.resolveSymbol(ctx, j, req.Target)
	if err != nil {
		return err
	}
	if t == nil {
		ambiguous(j.builder, req.Target.Name, cands)
		return nil
	}
	j.builder.SetLanguage(t.d.ID)
	if t.sym.Kind != lang.SymbolFunction && t.sym.Kind != lang.SymbolMethod {
		return plan.Errorf(plan.CodeInvalidRequest, "%s is a %s, not a function", t.sym.Name, t.sym.Kind)
	}
	if err := checkPermutation(req.Order, len(t.sym.Params)); err != nil {
		return err
	}
	if identity(req.Order) {
		return nil
	}

	j.builder.Add(permute(t.path, t.content, t.sym.Params, req.Order, "reorder parameters of "+t.sym.Name)...)

	files := []string{t.path}
	if t.d.DirectoryScoped {
		files = append(files, p.peers(t.path, t.d)...)
	}
	target := t.path
	if t.d.DirectoryScoped {
		target = filepath.Dir(t.path)
	}
	importers, warnings, err := p.updater.Importers(ctx, j.root, target, refOptions(req.Workspace, true))
	if err != nil {
		return err
	}
	j.builder.Warn(warnings...)
	seen := make(map[string]bool, len(files))
	for _, f := range files {
		seen[f] = true
	}
	for _, imp := range importers {
		if !seen[imp.Path] && bindsName(imp.Reference, t.sym.Name) {
			seen[imp.Path] = true
			files = append(files, imp.Path)
		}
	}

	skipped := 0
	for _, f := range files {
		content := t.content
		if f != t.path {
			if content, err = p.source(ctx, f); err != nil {
				return err
			}
		}
		fd, ok := p.registry.LookupByPath(f)
		if !ok || fd.AST == nil {
			continue
		}
		calls, err := fd.AST.Calls(ctx, f, content, t.sym.Name)
		if err != nil {
			j.builder.Warnf(plan.WarnParseError, fmt.Sprintf("%s: call sites not updated: %v", f, err))
			continue
		}
		for _, c := range calls {
			if len(c.Args) != len(req.Order) {
				skipped++
				j.builder.Warnf(plan.WarnHeuristicFallback, fmt.Sprintf(
					"%s:%s passes %d arguments to %s, which takes %d; left unchanged",
					f, c.Range.Start, len(c.Args), t.sym.Name, len(req.Order)))
				continue
			}
			j.builder.Add(permute(f, content, c.Args, req.Order, "reorder arguments to "+t.sym.Name)...)
		}
	}
	if t.sym.Kind == lang.SymbolMethod {
		j.builder.Warnf(plan.WarnLexicalMatch, fmt.Sprintf(
			"call sites of method %s are matched by name; calls to other methods named %s were reordered too",
			t.sym.Name, t.sym.Name))
	}
	p.logger.Debug("parameter reorder", "symbol", t.sym.Name, "files", len(files), "skipped_calls", skipped)
	return nil
}

func checkPermutation(order []int, n int) error {
	if len(order) != n {
		return plan.Errorf(plan.CodeInvalidRequest, "order has %d entries but the function takes %d parameters", len(order), n)
	}
	seen := make([]bool, n)
	for _, i := range order {
		if i < 0 || i >= n || seen[i] {
			return plan.Errorf(plan.CodeInvalidRequest, "order %v is not a permutation of 0..%d", order, n-1)
		}
		seen[i] = true
	}
	return nil
}

func identity(order []int) bool {
	for i, v := range order {
		if i != v {
			return false
		}
	}
	return true
}

// permute rewrites slots so that slot i receives the text of slot
// order[i]. Separators between slots are untouched.
func permute(path string, content []byte, slots []plan.Range, order []int, desc string) []plan.TextEdit {
	li := plan.NewLineIndex(content)
	texts := make([]string, len(slots))
	for i, r := range slots {
		s, err1 := li.Offset(r.Start)
		e, err2 := li.Offset(r.End)
		if err1 != nil || err2 != nil {
			return nil
		}
		texts[i] = string(content[s:e])
	}
	var edits []plan.TextEdit
	for i, from := range order {
		if from == i {
			continue
		}
		edits = append(edits, plan.TextEdit{
			FilePath:    path,
			Kind:        plan.EditReplace,
			Range:       slots[i],
			NewText:     texts[from],
			Description: desc,
		})
	}
	return edits
}

type importStmt struct {
	rng  plan.Range
	key  string
	text string
}

func (p *Planner) reorderImports(ctx context.Context, j *job, req ReorderRequest) error {
	if req.Target.Kind != "" && req.Target.Kind != plan.SelectorFile {
		return plan.Errorf(plan.CodeInvalidRequest, "import reordering targets a file, got %s", req.Target.Kind)
	}
	path, err := j.abs(req.Target.Path)
	if err != nil {
		return err
	}
	d, ok := p.registry.LookupByPath(path)
	if !ok || d.References == nil {
		return plan.Errorf(plan.CodeUnsupportedCapability, "no reference support for %s", path).
			WithSuggestion("import reordering is available for: " + languageList(p.registry, lang.CapReferences))
	}
	content, err := p.source(ctx, path)
	if err != nil {
		return err
	}
	j.builder.SetLanguage(d.ID)
	refList, err := d.References.ParseReferences(ctx, path, content)
	if err != nil {
		return parseFailure(path, err)
	}

	li := plan.NewLineIndex(content)
	for _, run := range importRuns(content, li, refList) {
		sorted := append([]importStmt(nil), run...)
		sort.SliceStable(sorted, func(a, b int) bool { return sorted[a].key < sorted[b].key })
		changed := false
		for i := range run {
			if run[i].rng != sorted[i].rng {
				changed = true
				break
			}
		}
		if !changed {
			continue
		}
		var sb strings.Builder
		for _, s := range sorted {
			sb.WriteString(s.text)
			if !strings.HasSuffix(s.text, "\n") {
				sb.WriteByte('\n')
			}
		}
		text := sb.String()
		if !strings.HasSuffix(run[len(run)-1].text, "\n") {
			text = strings.TrimSuffix(text, "\n")
		}
		j.builder.Add(plan.TextEdit{
			FilePath:    path,
			Kind:        plan.EditReplace,
			Range:       plan.Range{Start: run[0].rng.Start, End: run[len(run)-1].rng.End},
			NewText:     text,
			Description: fmt.Sprintf("sort %d imports", len(run)),
		})
	}
	return nil
}

// importRuns groups whole-line import statements into runs of adjacent
// lines. References sharing a statement count once.
func importRuns(content []byte, li *plan.LineIndex, refList []lang.Reference) [][]importStmt {
	var runs [][]importStmt
	var cur []importStmt
	flush := func() {
		if len(cur) > 1 {
			runs = append(runs, cur)
		}
		cur = nil
	}
	for _, ref := range refList {
		switch ref.Kind {
		case lang.RefImport, lang.RefUse, lang.RefRequire:
		default:
			flush()
			continue
		}
		if len(cur) > 0 && cur[len(cur)-1].rng == ref.StatementRange {
			continue
		}
		start, err1 := li.Offset(ref.StatementRange.Start)
		end, err2 := li.Offset(ref.StatementRange.End)
		wholeLines := err1 == nil && err2 == nil && ref.StatementRange.Start.Character == 0 &&
			(ref.StatementRange.End.Character == 0 || end == len(content))
		if !wholeLines || ref.SideEffect {
			flush()
			continue
		}
		if len(cur) > 0 && cur[len(cur)-1].rng.End != ref.StatementRange.Start {
			flush()
		}
		cur = append(cur, importStmt{rng: ref.StatementRange, key: ref.Specifier, text: string(content[start:end])})
	}
	flush()
	return runs
}
