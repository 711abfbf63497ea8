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
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/AleutianAI/AleutianRefactor/services/refactor/lang"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/plan"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/refs"
)

// Move plans moving a file, a directory or a top-level symbol.
//
// # Description
//
// Files and directories move through the reference updater. A file moved
// onto an existing directory lands inside it. A directory moved onto an
// existing directory that declares the same kind of package manifest is a
// consolidation: dependencies are merged, conflicts and new dependency
// cycles are reported as warnings, and the source manifest is deleted.
// Any other existing destination directory receives the source as a
// child.
//
// A symbol moves to the end of the destination file, which is created
// when missing. References to the symbol are not rewritten; every file
// that may still reach it at the old location gets a dangling_reference
// warning.
func (p *Planner) Move(ctx context.Context, req MoveRequest) (*plan.Plan, error) {
	return p.generate(ctx, plan.TypeMove, &req, &req.Workspace, func(ctx context.Context, j *job) error {
		if req.Source.Kind == plan.SelectorSymbol {
			return p.moveSymbol(ctx, j, req)
		}
		return p.movePath(ctx, j, req)
	})
}

func (p *Planner) movePath(ctx context.Context, j *job, req MoveRequest) error {
	src, err := j.abs(req.Source.Path)
	if err != nil {
		return err
	}
	kind, err := p.stat(src)
	if err != nil {
		return err
	}
	if req.Source.Kind != "" && req.Source.Kind != kind {
		return plan.Errorf(plan.CodeInvalidRequest, "%s is not a %s", src, req.Source.Kind)
	}
	dest, err := j.abs(req.Destination)
	if err != nil {
		return err
	}
	opts := refOptions(req.Workspace, boolOr(req.UpdateImports, true))

	if info, err := p.fs.Stat(dest); err == nil && info.IsDir() && dest != src {
		if kind == plan.SelectorDirectory && p.updater.CommonManifest(src, dest) != "" {
			return p.consolidate(ctx, j, src, dest, opts)
		}
		dest = filepath.Join(dest, filepath.Base(src))
	}

	res, err := p.updater.UpdateReferences(ctx, refs.Request{
		Root:    j.root,
		OldPath: src,
		NewPath: dest,
		Kind:    kind,
		Options: opts,
	})
	if err != nil {
		return err
	}
	addResult(j.builder, res)
	return nil
}

// consolidate merges the package in src into the package in dest.
func (p *Planner) consolidate(ctx context.Context, j *job, src, dest string, opts refs.Options) error {
	res, err := p.updater.Consolidate(ctx, refs.ConsolidateRequest{
		Root:      j.root,
		SourceDir: src,
		TargetDir: dest,
		Options:   opts,
	})
	if err != nil {
		return err
	}
	addResult(j.builder, &res.Result)
	j.builder.Add(plan.TextEdit{
		FilePath:    res.SourceManifest,
		Kind:        plan.EditDeleteFile,
		Description: "remove merged manifest " + filepath.Base(res.SourceManifest),
	})
	p.logger.Debug("consolidation",
		"source", src,
		"target", dest,
		"conflicts", len(res.Merge.Conflicts),
		"cycles", len(res.Cycles),
	)
	return nil
}

func (p *Planner) moveSymbol(ctx context.Context, j *job, req MoveRequest) error {
	t, cands, err := p.resolveSymbol(ctx, j, req.Source)
	if err != nil {
		return err
	}
	if t == nil {
		ambiguous(j.builder, req.Source.Name, cands)
		return nil
	}
	j.builder.SetLanguage(t.d.ID)
	if t.sym.Parent != "" {
		return plan.Errorf(plan.CodeInvalidRequest, "%s is a member of %s; only top-level symbols can move", t.sym.Name, t.sym.Parent)
	}
	dest, err := j.abs(req.Destination)
	if err != nil {
		return err
	}
	if dest == t.path {
		return plan.Errorf(plan.CodeInvalidRequest, "%s already declares %s", dest, t.sym.Name)
	}
	dd, ok := p.registry.LookupByPath(dest)
	if !ok || dd.ID != t.d.ID {
		return plan.Errorf(plan.CodeInvalidRequest, "destination %s is not a %s file", dest, t.d.ID).
			WithSuggestion("symbols can only move between files of the same language")
	}

	li := plan.NewLineIndex(t.content)
	start, err := li.Offset(t.sym.DeclRange.Start)
	if err != nil {
		return err
	}
	end, err := li.Offset(t.sym.DeclRange.End)
	if err != nil {
		return err
	}
	decl := string(t.content[start:end])
	if decl == "" || decl[len(decl)-1] != '\n' {
		decl += "\n"
	}

	j.builder.Add(plan.TextEdit{
		FilePath:    t.path,
		Kind:        plan.EditDelete,
		Range:       t.sym.DeclRange,
		Description: "move " + t.sym.Name + " out",
	})

	info, err := p.fs.Stat(dest)
	switch {
	case err == nil && info.IsDir():
		return plan.Errorf(plan.CodeInvalidRequest, "destination %s is a directory; name a file", dest)
	case err == nil:
		content, err := p.source(ctx, dest)
		if err != nil {
			return err
		}
		syms, err := t.d.AST.Symbols(ctx, dest, content)
		if err != nil {
			return parseFailure(dest, err)
		}
		for _, s := range syms {
			if s.Name == t.sym.Name && s.Parent == "" {
				return plan.Errorf(plan.CodeInvalidRequest, "%s already declares %s", dest, t.sym.Name).WithFiles(dest)
			}
		}
		dli := plan.NewLineIndex(content)
		at := dli.PositionAt(len(content))
		prefix := "\n"
		if len(content) > 0 && content[len(content)-1] != '\n' {
			prefix = "\n\n"
		}
		j.builder.Add(plan.TextEdit{
			FilePath:    dest,
			Kind:        plan.EditInsert,
			Range:       plan.Range{Start: at, End: at},
			NewText:     prefix + decl,
			Description: "move " + t.sym.Name + " in",
		})
	case errors.Is(err, os.ErrNotExist):
		j.builder.Add(plan.TextEdit{
			FilePath:    dest,
			Kind:        plan.EditCreateFile,
			NewText:     t.d.AST.FilePreamble(ctx, dest) + decl,
			Description: "create " + filepath.Base(dest) + " for " + t.sym.Name,
		})
		if err := p.declareModule(ctx, j, t, dest); err != nil {
			return err
		}
	default:
		return err
	}

	return p.danglingWarnings(ctx, j, t, req.Workspace, dest)
}

// declareModule adds the parent module declaration a new file needs in
// languages that require one.
func (p *Planner) declareModule(ctx context.Context, j *job, t *symbolTarget, dest string) error {
	if t.d.Modules == nil || t.d.References == nil {
		return nil
	}
	parent, spec, ok := t.d.Modules.ModuleParent(ctx, j.root, dest)
	if !ok {
		return nil
	}
	content, err := p.source(ctx, parent)
	if err != nil {
		if plan.CodeOf(err) == plan.CodeNotFound {
			j.builder.Warnf(plan.WarnDanglingReference, fmt.Sprintf(
				"%s must be declared with %q in %s, which does not exist", dest, spec, parent))
			return nil
		}
		return err
	}
	has, err := t.d.References.HasReference(ctx, parent, content, spec)
	if err != nil || has {
		return nil
	}
	edit, err := t.d.References.AddReference(ctx, parent, content, spec)
	if err != nil {
		return nil
	}
	for _, e := range j.builder.Edits() {
		if e.FilePath == parent && e.Kind.IsText() && e.Range.Overlaps(edit.Range) {
			j.builder.Warnf(plan.WarnDanglingReference, fmt.Sprintf(
				"could not declare %q in %s alongside other edits", spec, parent))
			return nil
		}
	}
	edit.Description = "declare module " + spec
	j.builder.Add(edit)
	return nil
}

// symbolUsers returns the files other than skip that may reach t by its
// name: the declaring file itself when it uses t outside the declaration,
// package peers for directory-scoped languages, and importers binding it.
func (p *Planner) symbolUsers(ctx context.Context, j *job, t *symbolTarget, ws Workspace, skip string) ([]string, error) {
	users := make(map[string]bool)
	occ, err := t.d.AST.Occurrences(ctx, t.path, t.content, t.sym.Name)
	if err == nil {
		for _, o := range occ {
			if !t.sym.DeclRange.Contains(o.Start) {
				users[t.path] = true
				break
			}
		}
	}
	if t.d.DirectoryScoped {
		for _, peer := range p.peers(t.path, t.d) {
			if content, pd, _, ok := p.symbolsOf(ctx, peer); ok {
				if o, err := pd.AST.Occurrences(ctx, peer, content, t.sym.Name); err == nil && len(o) > 0 {
					users[peer] = true
				}
			}
		}
	}

	target := t.path
	if t.d.DirectoryScoped {
		target = filepath.Dir(t.path)
	}
	importers, warnings, err := p.updater.Importers(ctx, j.root, target, refOptions(ws, true))
	if err != nil {
		return nil, err
	}
	j.builder.Warn(warnings...)
	for _, imp := range importers {
		if bindsName(imp.Reference, t.sym.Name) {
			users[imp.Path] = true
		}
	}
	delete(users, skip)
	return slices.Sorted(maps.Keys(users)), nil
}

// danglingWarnings reports files that may still reach a moved symbol at
// its old location.
func (p *Planner) danglingWarnings(ctx context.Context, j *job, t *symbolTarget, ws Workspace, dest string) error {
	if t.d.DirectoryScoped && filepath.Dir(dest) == filepath.Dir(t.path) {
		return nil
	}
	users, err := p.symbolUsers(ctx, j, t, ws, dest)
	if err != nil {
		return err
	}
	for _, path := range users {
		j.builder.Warnf(plan.WarnDanglingReference, fmt.Sprintf(
			"%s refers to %s, which moves from %s to %s", path, t.sym.Name, t.path, dest))
	}
	return nil
}

// bindsName reports whether ref can bring name into scope.
func bindsName(ref lang.Reference, name string) bool {
	if ref.Wildcard || ref.Namespace != "" {
		return true
	}
	for _, b := range ref.Bindings {
		if b.Name == name {
			return true
		}
	}
	return false
}
