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
	"regexp"
	"strings"

	"github.com/AleutianAI/AleutianRefactor/services/refactor/plan"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/refs"
)

var identifier = regexp.MustCompile(`^[\p{L}_][\p{L}\p{N}_]*$`)

// Rename plans a symbol, file or directory rename.
//
// # Description
//
// Symbols need a reachable definition; every file that can see it is
// rewritten. Files and directories are renamed in place (NewName is a base
// name) and every reference to them is updated. A directory rename may
// also rename the package its manifest declares.
func (p *Planner) Rename(ctx context.Context, req RenameRequest) (*plan.Plan, error) {
	return p.generate(ctx, plan.TypeRename, &req, &req.Workspace, func(ctx context.Context, j *job) error {
		switch req.Target.Kind {
		case plan.SelectorSymbol, "":
			return p.renameSymbol(ctx, j, req)
		case plan.SelectorFile, plan.SelectorDirectory:
			return p.renamePath(ctx, j, req)
		default:
			return plan.Errorf(plan.CodeInvalidRequest, "unknown target kind %q", req.Target.Kind)
		}
	})
}

func (p *Planner) renameSymbol(ctx context.Context, j *job, req RenameRequest) error {
	if !identifier.MatchString(req.NewName) {
		return plan.Errorf(plan.CodeInvalidRequest, "%q is not a valid identifier", req.NewName)
	}
	t, cands, err := p.resolveSymbol(ctx, j, req.Target)
	if err != nil {
		return err
	}
	if t == nil {
		ambiguous(j.builder, "rename target", cands)
		return nil
	}
	if t.sym.Name == req.NewName {
		return plan.Errorf(plan.CodeInvalidRequest, "%s is already named %s", t.sym.Kind, req.NewName)
	}
	if clash := p.declaresInScope(ctx, t, req.NewName); clash != "" {
		return plan.Errorf(plan.CodeInvalidRequest, "%s already declares %s", clash, req.NewName).
			WithFiles(clash).
			WithSuggestion("choose a name that is not already declared in the package")
	}

	res, err := p.updater.RenameSymbol(ctx, refs.SymbolRequest{
		Root:           j.root,
		DefinitionPath: t.path,
		OldName:        t.sym.Name,
		NewName:        req.NewName,
		Options:        refOptions(req.Workspace, true),
	})
	if err != nil {
		return err
	}
	addResult(j.builder, res)
	j.builder.SetLanguage(t.d.ID)
	if t.sym.Parent != "" {
		j.builder.Warnf(plan.WarnLexicalMatch, fmt.Sprintf(
			"%s is a member of %s; uses are matched by name, so members of other types named %s are renamed too",
			t.sym.Name, t.sym.Parent, t.sym.Name))
	}
	return nil
}

// declaresInScope returns a file in t's package that already declares a
// top-level name, or "".
func (p *Planner) declaresInScope(ctx context.Context, t *symbolTarget, name string) string {
	files := []string{t.path}
	if t.d.DirectoryScoped {
		files = append(files, p.peers(t.path, t.d)...)
	}
	for _, f := range files {
		_, _, syms, ok := p.symbolsOf(ctx, f)
		if !ok {
			continue
		}
		for _, s := range syms {
			if s.Name == name && s.Parent == t.sym.Parent {
				return f
			}
		}
	}
	return ""
}

func (p *Planner) renamePath(ctx context.Context, j *job, req RenameRequest) error {
	if strings.ContainsAny(req.NewName, `/\`) || req.NewName == "." || req.NewName == ".." {
		return plan.Errorf(plan.CodeInvalidRequest, "new_name must be a base name, got %q", req.NewName).
			WithSuggestion("use move to change the parent directory")
	}
	old, err := j.abs(req.Target.Path)
	if err != nil {
		return err
	}
	kind, err := p.stat(old)
	if err != nil {
		return err
	}
	if kind != req.Target.Kind {
		return plan.Errorf(plan.CodeInvalidRequest, "%s is not a %s", old, req.Target.Kind)
	}
	if req.NewPackageName != "" && kind != plan.SelectorDirectory {
		return plan.Errorf(plan.CodeInvalidRequest, "new_package_name applies to directories only")
	}

	res, err := p.updater.UpdateReferences(ctx, refs.Request{
		Root:        j.root,
		OldPath:     old,
		NewPath:     filepath.Join(filepath.Dir(old), req.NewName),
		Kind:        kind,
		NewIdentity: req.NewPackageName,
		Options:     refOptions(req.Workspace, boolOr(req.UpdateImports, true)),
	})
	if err != nil {
		return err
	}
	addResult(j.builder, res)
	return nil
}
