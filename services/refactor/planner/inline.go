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
	"regexp"
	"strings"

	"github.com/AleutianAI/AleutianRefactor/services/refactor/lang"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/plan"
)

var (
	simpleOperand = regexp.MustCompile(`^([\p{L}_][\p{L}\p{N}_]*(\.[\p{L}_][\p{L}\p{N}_]*)*|-?[0-9][0-9A-Za-z_.]*|"[^"\\\n]*"|'[^'\\\n]*')$`)
	calleeName    = regexp.MustCompile(`^[\p{L}_][\p{L}\p{N}_]*(\.[\p{L}_][\p{L}\p{N}_]*)*$`)
)

// Inline plans replacing a local variable's uses with its value.
//
// # Description
//
// The target is the declaration under the selector's position, or the
// variable a use at that position refers to, or a declaration found by
// name. The variable must be assigned exactly once. Uses are replaced in
// the declaring block after the declaration, skipping regions where an
// inner declaration shadows the name, and the declaration is removed.
// Values that are not a single operand are parenthesized. A value with a
// call inlined into more than one use gets a duplicated_evaluation
// warning.
func (p *Planner) Inline(ctx context.Context, req InlineRequest) (*plan.Plan, error) {
	return p.generate(ctx, plan.TypeInline, &req, &req.Workspace, func(ctx context.Context, j *job) error {
		sel := req.Target
		if sel.Kind != "" && sel.Kind != plan.SelectorSymbol {
			return plan.Errorf(plan.CodeInvalidRequest, "inline target must be a symbol, got %s", sel.Kind)
		}
		path, err := j.abs(sel.Path)
		if err != nil {
			return err
		}
		d, err := p.ast(path)
		if err != nil {
			return err
		}
		content, err := p.source(ctx, path)
		if err != nil {
			return err
		}
		j.builder.SetLanguage(d.ID)

		decl, cands, err := p.resolveLocal(ctx, path, content, d, sel)
		if err != nil {
			return err
		}
		if decl == nil {
			ambiguous(j.builder, sel.Name, cands)
			return nil
		}
		if decl.Reassigned {
			return plan.Errorf(plan.CodeInvalidRequest, "%s is assigned more than once", decl.Name).
				WithSuggestion("only single-assignment variables can be inlined")
		}

		uses, err := p.localUses(ctx, path, content, d, decl)
		if err != nil {
			return err
		}
		value := strings.TrimSpace(decl.Value)
		if !simpleValue(value) {
			value = "(" + value + ")"
		}

		j.builder.Add(plan.TextEdit{
			FilePath:    path,
			Kind:        plan.EditDelete,
			Range:       decl.StatementRange,
			Description: "remove declaration of " + decl.Name,
		})
		for _, u := range uses {
			j.builder.Add(plan.TextEdit{
				FilePath:    path,
				Kind:        plan.EditReplace,
				Range:       u,
				NewText:     value,
				Description: "inline " + decl.Name,
			})
		}
		if len(uses) > 1 && strings.Contains(decl.Value, "(") {
			j.builder.Warnf(plan.WarnDuplicatedEvaluation, fmt.Sprintf(
				"the value of %s contains a call and is now evaluated %d times", decl.Name, len(uses)))
		}
		return nil
	})
}

// resolveLocal finds the local declaration a selector points at.
func (p *Planner) resolveLocal(ctx context.Context, path string, content []byte, d *lang.Descriptor, sel plan.Selector) (*lang.LocalDecl, []plan.Candidate, error) {
	name := sel.Name
	if sel.Position != nil {
		decl, err := d.AST.LocalDeclaration(ctx, path, content, *sel.Position)
		switch {
		case err == nil && decl.NameRange.Contains(*sel.Position):
			return decl, nil, nil
		case errors.Is(err, plan.ErrPositionOutOfRange):
			return nil, nil, plan.Wrap(plan.CodeInvalidRequest, err, "position is outside the file")
		case errors.Is(err, lang.ErrParse):
			return nil, nil, parseFailure(path, err)
		case err != nil && !errors.Is(err, lang.ErrNotLocal) && !errors.Is(err, lang.ErrNoDeclaration):
			return nil, nil, err
		}
		ident, _, err := d.AST.IdentifierAt(ctx, path, content, *sel.Position)
		if err != nil {
			return nil, nil, plan.Wrap(plan.CodeNotFound, err, "no identifier at the selected position")
		}
		decls, err := p.localDecls(ctx, path, content, d, ident)
		if err != nil {
			return nil, nil, err
		}
		// The innermost visible declaration before the use wins.
		var best *lang.LocalDecl
		for _, c := range decls {
			if c.Scope.Contains(*sel.Position) && !sel.Position.Before(c.StatementRange.End) {
				if best == nil || best.Scope.Start.Before(c.Scope.Start) ||
					(best.Scope.Start == c.Scope.Start && best.NameRange.Start.Before(c.NameRange.Start)) {
					best = c
				}
			}
		}
		if best == nil {
			return nil, nil, plan.Errorf(plan.CodeInvalidRequest, "%s is not a local single-assignment variable", ident).
				WithSuggestion("inline works on local variables and constants declared with one value")
		}
		return best, nil, nil
	}

	if name == "" {
		return nil, nil, plan.Errorf(plan.CodeInvalidRequest, "inline target needs a position or a name")
	}
	decls, err := p.localDecls(ctx, path, content, d, name)
	if err != nil {
		return nil, nil, err
	}
	switch len(decls) {
	case 0:
		return nil, nil, plan.Errorf(plan.CodeNotFound, "no local declaration of %s in %s", name, path)
	case 1:
		return decls[0], nil, nil
	}
	cands := make([]plan.Candidate, 0, len(decls))
	for _, c := range decls {
		pos := c.NameRange.Start
		cands = append(cands, plan.Candidate{Path: path, Name: c.Name, Kind: "variable", Position: &pos})
	}
	return nil, cands, nil
}

// localDecls returns every inlinable declaration of name in content, in
// source order.
func (p *Planner) localDecls(ctx context.Context, path string, content []byte, d *lang.Descriptor, name string) ([]*lang.LocalDecl, error) {
	occ, err := d.AST.Occurrences(ctx, path, content, name)
	if err != nil {
		return nil, parseFailure(path, err)
	}
	var out []*lang.LocalDecl
	for _, o := range occ {
		decl, err := d.AST.LocalDeclaration(ctx, path, content, o.Start)
		if err != nil || decl.NameRange != o {
			continue
		}
		out = append(out, decl)
	}
	return out, nil
}

// localUses returns the occurrences of decl's name it binds: inside its
// scope, after its statement, and outside the reach of any redeclaration.
func (p *Planner) localUses(ctx context.Context, path string, content []byte, d *lang.Descriptor, decl *lang.LocalDecl) ([]plan.Range, error) {
	occ, err := d.AST.Occurrences(ctx, path, content, decl.Name)
	if err != nil {
		return nil, parseFailure(path, err)
	}
	var visible []plan.Range
	for _, o := range occ {
		if decl.Scope.Contains(o.Start) && !o.Start.Before(decl.StatementRange.End) {
			visible = append(visible, o)
		}
	}

	var shadows []plan.Range
	for _, o := range visible {
		inner, err := d.AST.LocalDeclaration(ctx, path, content, o.Start)
		if err == nil && inner.NameRange == o {
			shadows = append(shadows, plan.Range{Start: o.Start, End: inner.Scope.End})
		}
	}

	var uses []plan.Range
outer:
	for _, o := range visible {
		for _, s := range shadows {
			if s.Contains(o.Start) {
				continue outer
			}
		}
		uses = append(uses, o)
	}
	return uses, nil
}

// simpleValue reports whether v can replace an identifier without
// parentheses: a name, literal, or a call on a name.
func simpleValue(v string) bool {
	if simpleOperand.MatchString(v) {
		return true
	}
	open := strings.IndexByte(v, '(')
	if open <= 0 || !strings.HasSuffix(v, ")") || !calleeName.MatchString(v[:open]) {
		return false
	}
	depth := 0
	for i, r := range v[open:] {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 && open+i != len(v)-1 {
				return false
			}
		}
	}
	return depth == 0
}
