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
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/AleutianAI/AleutianRefactor/services/refactor/lang"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/plan"
)

// symbolTarget is a resolved symbol with its file.
type symbolTarget struct {
	path    string
	content []byte
	d       *lang.Descriptor
	sym     lang.Symbol
}

func (t *symbolTarget) candidate() plan.Candidate {
	pos := t.sym.NameRange.Start
	return plan.Candidate{Path: t.path, Name: t.sym.Name, Kind: string(t.sym.Kind), Position: &pos}
}

// resolveSymbol finds the declaration a symbol selector points at.
//
// # Description
//
// A position selects the identifier under it; a name is the fallback and
// may be qualified as "Owner.member". The declaration is looked up in the
// selected file first, then in files of the same package for directory-
// scoped languages, then in every file the selected file references with a
// binding or namespace that can bring the name into scope.
//
// # Outputs
//
//	*symbolTarget - The single match, or nil when ambiguous.
//	[]plan.Candidate - All matches when there is more than one.
//	error - INVALID_REQUEST, NOT_FOUND or UNSUPPORTED_CAPABILITY.
func (p *Planner) resolveSymbol(ctx context.Context, j *job, sel plan.Selector) (*symbolTarget, []plan.Candidate, error) {
	if sel.Kind != "" && sel.Kind != plan.SelectorSymbol {
		return nil, nil, plan.Errorf(plan.CodeInvalidRequest, "target must be a symbol, got %s", sel.Kind)
	}
	path, err := j.abs(sel.Path)
	if err != nil {
		return nil, nil, err
	}
	d, err := p.ast(path)
	if err != nil {
		return nil, nil, err
	}
	content, err := p.source(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	syms, err := d.AST.Symbols(ctx, path, content)
	if err != nil {
		return nil, nil, parseFailure(path, err)
	}

	name, owner := sel.Name, ""
	if sel.Position != nil {
		ident, rng, err := d.AST.IdentifierAt(ctx, path, content, *sel.Position)
		if err != nil {
			if errors.Is(err, plan.ErrPositionOutOfRange) {
				return nil, nil, plan.Wrap(plan.CodeInvalidRequest, err, "position is outside the file")
			}
			return nil, nil, plan.Wrap(plan.CodeNotFound, err, "no identifier at the selected position")
		}
		for _, s := range syms {
			if s.NameRange == rng {
				return &symbolTarget{path: path, content: content, d: d, sym: s}, nil, nil
			}
		}
		name = ident
	} else {
		if name == "" {
			return nil, nil, plan.Errorf(plan.CodeInvalidRequest, "symbol target needs a position or a name")
		}
		if i := strings.LastIndex(name, "."); i > 0 {
			owner, name = name[:i], name[i+1:]
		}
	}

	var found []*symbolTarget
	collect := func(path string, content []byte, d *lang.Descriptor, syms []lang.Symbol, name string) {
		for _, s := range matching(syms, name, owner) {
			found = append(found, &symbolTarget{path: path, content: content, d: d, sym: s})
		}
	}
	collect(path, content, d, syms, name)

	if len(found) == 0 && d.DirectoryScoped {
		for _, peer := range p.peers(path, d) {
			if pc, pd, ps, ok := p.symbolsOf(ctx, peer); ok {
				collect(peer, pc, pd, ps, name)
			}
		}
	}
	if len(found) == 0 && d.References != nil {
		p.importedDefinitions(ctx, j, path, content, d, name, collect)
	}

	switch len(found) {
	case 0:
		return nil, nil, plan.Errorf(plan.CodeNotFound, "no reachable definition of %s from %s", name, path).
			WithSuggestion("select the symbol at its declaration or in a file that imports it")
	case 1:
		return found[0], nil, nil
	}
	cands := make([]plan.Candidate, 0, len(found))
	for _, f := range found {
		cands = append(cands, f.candidate())
	}
	return nil, cands, nil
}

// matching returns symbols named name, owned by owner when owner is set.
// Without an owner, a top-level match hides members of the same name.
func matching(syms []lang.Symbol, name, owner string) []lang.Symbol {
	var top, members []lang.Symbol
	for _, s := range syms {
		if s.Name != name {
			continue
		}
		switch {
		case owner != "":
			if s.Parent == owner {
				top = append(top, s)
			}
		case s.Parent == "":
			top = append(top, s)
		default:
			members = append(members, s)
		}
	}
	if len(top) > 0 {
		return top
	}
	return members
}

// importedDefinitions follows path's references to files that may declare
// name.
func (p *Planner) importedDefinitions(ctx context.Context, j *job, path string, content []byte, d *lang.Descriptor, name string, collect func(string, []byte, *lang.Descriptor, []lang.Symbol, string)) {
	refList, err := d.References.ParseReferences(ctx, path, content)
	if err != nil {
		return
	}
	seen := make(map[string]bool)
	for _, ref := range refList {
		want := ""
		for _, b := range ref.Bindings {
			if b.Local() == name {
				want = b.Name
			}
		}
		if want == "" && (ref.Namespace != "" || ref.Wildcard) {
			want = name
		}
		if want == "" {
			continue
		}
		for _, target := range d.References.Resolve(ctx, j.root, path, ref) {
			for _, file := range p.expand(target) {
				if seen[file+"\x00"+want] {
					continue
				}
				seen[file+"\x00"+want] = true
				if fc, fd, fs, ok := p.symbolsOf(ctx, file); ok {
					collect(file, fc, fd, fs, want)
				}
			}
		}
	}
}

// expand returns target itself for files and its source files for
// directories.
func (p *Planner) expand(target string) []string {
	info, err := p.fs.Stat(target)
	if err != nil {
		return nil
	}
	if !info.IsDir() {
		return []string{target}
	}
	var out []string
	entries, err := afero.ReadDir(p.fs, target)
	if err != nil {
		return nil
	}
	for _, e := range entries {
		if !e.IsDir() && p.registry.IsSource(e.Name()) {
			out = append(out, filepath.Join(target, e.Name()))
		}
	}
	sort.Strings(out)
	return out
}

// peers returns the other source files of path's language in its
// directory.
func (p *Planner) peers(path string, d *lang.Descriptor) []string {
	var out []string
	for _, f := range p.expand(filepath.Dir(path)) {
		if f == path {
			continue
		}
		if fd, ok := p.registry.LookupByPath(f); ok && fd.ID == d.ID {
			out = append(out, f)
		}
	}
	return out
}

// symbolsOf reads and parses a file; failures yield ok == false.
func (p *Planner) symbolsOf(ctx context.Context, path string) ([]byte, *lang.Descriptor, []lang.Symbol, bool) {
	d, ok := p.registry.LookupByPath(path)
	if !ok || d.AST == nil {
		return nil, nil, nil, false
	}
	content, err := afero.ReadFile(p.fs, path)
	if err != nil {
		return nil, nil, nil, false
	}
	syms, err := d.AST.Symbols(ctx, path, content)
	if err != nil {
		return nil, nil, nil, false
	}
	return content, d, syms, true
}

// ambiguous records an ambiguous_target warning for candidates.
func ambiguous(b *plan.Builder, what string, cands []plan.Candidate) {
	b.Warn(plan.Warning{
		Code:       plan.WarnAmbiguousTarget,
		Message:    fmt.Sprintf("%s matches %d declarations; select one by position", what, len(cands)),
		Candidates: cands,
	})
}

// parseFailure reports a syntax error in a file the operation must parse.
func parseFailure(path string, err error) error {
	if errors.Is(err, lang.ErrParse) {
		return plan.Wrap(plan.CodeInvalidRequest, err, path+" could not be parsed").
			WithSuggestion("fix the syntax errors and plan again")
	}
	return err
}
