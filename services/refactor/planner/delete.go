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
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/AleutianAI/AleutianRefactor/services/refactor/lang"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/plan"
)

// Delete plans deleting a file, directory or symbol, or removing the
// unused imports of a file.
//
// # Description
//
// Deleting never rewrites the code that used the target; each file that
// still references it gets a dangling_reference warning. Deleting a file
// also removes its module declaration in languages that require one, and
// deleting a directory removes it from any workspace member list naming it
// explicitly.
//
// Unused-import cleanup removes every import statement none of whose
// bindings is used. Side-effect and wildcard imports are kept. An import
// with some bindings used and some not is reported as partial_unused_import
// and left as is.
func (p *Planner) Delete(ctx context.Context, req DeleteRequest) (*plan.Plan, error) {
	return p.generate(ctx, plan.TypeDelete, &req, &req.Workspace, func(ctx context.Context, j *job) error {
		if req.Kind == DeleteUnusedImports {
			return p.deleteUnusedImports(ctx, j, req)
		}
		if req.Target.Kind == plan.SelectorSymbol {
			return p.deleteSymbol(ctx, j, req)
		}
		path, err := j.abs(req.Target.Path)
		if err != nil {
			return err
		}
		if path == j.root {
			return plan.Errorf(plan.CodeInvalidRequest, "cannot delete the workspace root")
		}
		kind, err := p.stat(path)
		if err != nil {
			return err
		}
		if req.Target.Kind != "" && req.Target.Kind != kind {
			return plan.Errorf(plan.CodeInvalidRequest, "%s is not a %s", path, req.Target.Kind)
		}
		if kind == plan.SelectorDirectory {
			return p.deleteDirectory(ctx, j, req, path)
		}
		return p.deleteFile(ctx, j, req, path)
	})
}

func (p *Planner) deleteFile(ctx context.Context, j *job, req DeleteRequest, path string) error {
	j.builder.Add(plan.TextEdit{
		FilePath:    path,
		Kind:        plan.EditDeleteFile,
		Description: "delete " + filepath.Base(path),
	})
	d, ok := p.registry.LookupByPath(path)
	if !ok {
		return nil
	}
	j.builder.SetLanguage(d.ID)

	if d.Modules != nil && d.References != nil {
		if parent, spec, ok := d.Modules.ModuleParent(ctx, j.root, path); ok && parent != path {
			if content, err := afero.ReadFile(p.fs, parent); err == nil {
				edit, found, err := d.References.RemoveReference(ctx, parent, content, spec)
				if err != nil {
					return parseFailure(parent, err)
				}
				if found {
					edit.Description = "remove module declaration " + spec
					j.builder.Add(edit)
				}
			}
		}
	}
	if d.DirectoryScoped || d.References == nil {
		return nil
	}
	return p.warnImporters(ctx, j, req, path)
}

func (p *Planner) deleteDirectory(ctx context.Context, j *job, req DeleteRequest, dir string) error {
	var files []string
	err := afero.Walk(p.fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return err
	}
	sort.Strings(files)
	for _, f := range files {
		j.builder.Add(plan.TextEdit{
			FilePath:    f,
			Kind:        plan.EditDeleteFile,
			Description: "delete " + filepath.Base(dir) + " contents",
		})
	}
	if err := p.removeMember(ctx, j, dir); err != nil {
		return err
	}
	return p.warnImporters(ctx, j, req, dir)
}

// removeMember drops dir from workspace manifests between it and the
// workspace root that list it explicitly.
func (p *Planner) removeMember(ctx context.Context, j *job, dir string) error {
	for _, d := range p.registry.Languages() {
		if d.Workspace == nil {
			continue
		}
		name := d.Workspace.WorkspaceManifestName()
		for at := filepath.Dir(dir); at == j.root || within(at, j.root); at = filepath.Dir(at) {
			manifest := filepath.Join(at, name)
			content, err := afero.ReadFile(p.fs, manifest)
			if err == nil && d.Workspace.IsWorkspace(ctx, manifest, content) {
				if err := p.dropMember(ctx, j, d, manifest, content, dir); err != nil {
					return err
				}
			}
			if at == j.root {
				break
			}
		}
	}
	return nil
}

func (p *Planner) dropMember(ctx context.Context, j *job, d *lang.Descriptor, manifest string, content []byte, dir string) error {
	members, err := d.Workspace.ListMembers(ctx, manifest, content)
	if err != nil {
		j.builder.Warnf(plan.WarnParseError, fmt.Sprintf("%s: members not checked: %v", manifest, err))
		return nil
	}
	base := filepath.Dir(manifest)
	updated := content
	for _, m := range members {
		if filepath.Clean(filepath.Join(base, filepath.FromSlash(m))) != dir {
			continue
		}
		if updated, err = d.Workspace.RemoveMember(ctx, manifest, updated, m); err != nil {
			return err
		}
	}
	if edit, ok := plan.ContentEdit(manifest, content, updated); ok {
		edit.Description = "remove workspace member " + filepath.Base(dir)
		j.builder.Add(edit)
	}
	return nil
}

// warnImporters reports every file outside target whose references
// resolve into it.
func (p *Planner) warnImporters(ctx context.Context, j *job, req DeleteRequest, target string) error {
	importers, warnings, err := p.updater.Importers(ctx, j.root, target, refOptions(req.Workspace, true))
	if err != nil {
		return err
	}
	j.builder.Warn(warnings...)
	seen := make(map[string]bool)
	for _, imp := range importers {
		key := imp.Path + "\x00" + imp.Reference.Specifier
		if seen[key] {
			continue
		}
		seen[key] = true
		j.builder.Warnf(plan.WarnDanglingReference, fmt.Sprintf(
			"%s references %q, which is deleted", imp.Path, imp.Reference.Specifier))
	}
	return nil
}

func (p *Planner) deleteSymbol(ctx context.Context, j *job, req DeleteRequest) error {
	t, cands, err := p.resolveSymbol(ctx, j, req.Target)
	if err != nil {
		return err
	}
	if t == nil {
		ambiguous(j.builder, req.Target.Name, cands)
		return nil
	}
	j.builder.SetLanguage(t.d.ID)
	j.builder.Add(plan.TextEdit{
		FilePath:    t.path,
		Kind:        plan.EditDelete,
		Range:       dropSeparator(t.content, t.sym.DeclRange),
		Description: "delete " + string(t.sym.Kind) + " " + t.sym.Name,
	})
	users, err := p.symbolUsers(ctx, j, t, req.Workspace, "")
	if err != nil {
		return err
	}
	for _, path := range users {
		j.builder.Warnf(plan.WarnDanglingReference, fmt.Sprintf(
			"%s still refers to %s", path, t.sym.Name))
	}
	return nil
}

// dropSeparator extends a whole-line declaration range over the blank line
// after it when a blank line (or the start of the file) already precedes
// it, so deleting the declaration does not leave two separators behind.
func dropSeparator(content []byte, r plan.Range) plan.Range {
	if r.Start.Character != 0 || r.End.Character != 0 {
		return r
	}
	li := plan.NewLineIndex(content)
	blank := func(line int) bool {
		if line < 0 || line >= li.LineCount() {
			return false
		}
		return strings.TrimSpace(string(content[li.LineStart(line):li.LineEnd(line)])) == ""
	}
	if !blank(r.End.Line) || li.LineEnd(r.End.Line) >= len(content) {
		return r
	}
	if r.Start.Line > 0 && !blank(r.Start.Line-1) {
		return r
	}
	r.End = plan.Position{Line: r.End.Line + 1}
	return r
}

func (p *Planner) deleteUnusedImports(ctx context.Context, j *job, req DeleteRequest) error {
	if req.Target.Kind != "" && req.Target.Kind != plan.SelectorFile {
		return plan.Errorf(plan.CodeInvalidRequest, "unused import cleanup targets a file, got %s", req.Target.Kind)
	}
	path, err := j.abs(req.Target.Path)
	if err != nil {
		return err
	}
	d, err := p.ast(path)
	if err != nil {
		return err
	}
	if d.References == nil {
		return plan.Errorf(plan.CodeUnsupportedCapability, "%s has no reference support", d.ID)
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

	outside := func(r plan.Range) bool {
		for _, ref := range refList {
			if ref.StatementRange.Contains(r.Start) && ref.StatementRange.Contains(r.End) {
				return false
			}
		}
		return true
	}
	used := func(name string) (bool, error) {
		occ, err := d.AST.Occurrences(ctx, path, content, name)
		if err != nil {
			return false, parseFailure(path, err)
		}
		for _, o := range occ {
			if outside(o) {
				return true, nil
			}
		}
		return false, nil
	}

	// Statements shared by several references go only when all are unused.
	type stmt struct {
		rng    plan.Range
		specs  []string
		unused int
		total  int
	}
	var order []plan.Range
	stmts := make(map[plan.Range]*stmt)
	for _, ref := range refList {
		if ref.Kind != lang.RefImport && ref.Kind != lang.RefUse && ref.Kind != lang.RefRequire {
			continue
		}
		if ref.SideEffect || ref.Wildcard {
			continue
		}
		names := make([]string, 0, len(ref.Bindings)+1)
		for _, b := range ref.Bindings {
			names = append(names, b.Local())
		}
		if ref.Namespace != "" {
			if !identifier.MatchString(ref.Namespace) {
				continue
			}
			names = append(names, ref.Namespace)
		}
		if len(names) == 0 {
			continue
		}
		inferred := len(ref.Bindings) == 0 && len(d.References.Resolve(ctx, j.root, path, ref)) == 0
		var unused []string
		for _, n := range names {
			ok, err := used(n)
			if err != nil {
				return err
			}
			if !ok {
				unused = append(unused, n)
			}
		}

		s := stmts[ref.StatementRange]
		if s == nil {
			s = &stmt{rng: ref.StatementRange}
			stmts[ref.StatementRange] = s
			order = append(order, ref.StatementRange)
		}
		s.total++
		switch len(unused) {
		case 0:
		case len(names):
			s.unused++
			s.specs = append(s.specs, ref.Specifier)
			if inferred {
				j.builder.Warnf(plan.WarnHeuristicFallback, fmt.Sprintf(
					"%s: %q is external; it was judged unused by the name %s", path, ref.Specifier, ref.Namespace))
			}
		default:
			j.builder.Warnf(plan.WarnPartialUnusedImport, fmt.Sprintf(
				"%s: %s from %q unused; the import also binds used names", path, strings.Join(unused, ", "), ref.Specifier))
		}
	}

	for _, r := range order {
		s := stmts[r]
		if s.unused == 0 {
			continue
		}
		if s.unused < s.total {
			j.builder.Warnf(plan.WarnPartialUnusedImport, fmt.Sprintf(
				"%s: %s unused but shares a statement with used imports", path, strings.Join(s.specs, ", ")))
			continue
		}
		j.builder.Add(plan.TextEdit{
			FilePath:    path,
			Kind:        plan.EditDelete,
			Range:       s.rng,
			Description: "remove unused import " + strings.Join(s.specs, ", "),
		})
	}
	return nil
}
