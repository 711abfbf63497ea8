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

var paramName = regexp.MustCompile(`[\p{L}_][\p{L}\p{N}_]*`)

// Extract plans extracting a selection into a function, variable or
// constant.
//
// # Description
//
// The selection must be syntactically complete: whole statements for a
// function, exactly one expression for a variable or constant. When the
// file cannot be parsed, completeness is judged line by line (balanced
// brackets and quotes) and the plan carries a heuristic_fallback warning.
//
// A function is declared after the enclosing top-level declaration and
// the selected lines are replaced by a call. Parameters are not inferred;
// selections using the enclosing function's parameters get a
// parameters_not_inferred warning.
func (p *Planner) Extract(ctx context.Context, req ExtractRequest) (*plan.Plan, error) {
	return p.generate(ctx, plan.TypeExtract, &req, &req.Workspace, func(ctx context.Context, j *job) error {
		if !identifier.MatchString(req.Name) {
			return plan.Errorf(plan.CodeInvalidRequest, "%q is not a valid identifier", req.Name)
		}
		path, err := j.abs(req.Path)
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

		li := plan.NewLineIndex(content)
		start, err := li.Offset(req.Range.Start)
		if err != nil {
			return plan.Wrap(plan.CodeInvalidRequest, err, "range start is outside the file")
		}
		end, err := li.Offset(req.Range.End)
		if err != nil {
			return plan.Wrap(plan.CodeInvalidRequest, err, "range end is outside the file")
		}
		if end <= start {
			return plan.Errorf(plan.CodeInvalidRequest, "range must select at least one character")
		}

		shape := lang.ShapeExpression
		if req.Kind == ExtractFunction {
			shape = lang.ShapeStatements
		}
		heuristic := false
		complete, err := d.AST.CompleteRange(ctx, path, content, req.Range, shape)
		switch {
		case errors.Is(err, lang.ErrParse):
			heuristic = true
			complete = balanced(string(content[start:end]))
			j.builder.Warnf(plan.WarnHeuristicFallback, fmt.Sprintf(
				"%s could not be parsed; the selection was checked line by line", path))
		case err != nil:
			return err
		}
		if !complete {
			what := "one complete expression"
			if shape == lang.ShapeStatements {
				what = "whole statements"
			}
			return plan.Errorf(plan.CodeInvalidRequest, "selection must cover %s", what).
				WithSuggestion("extend the range to the enclosing statement or expression boundaries")
		}

		x := extraction{path: path, content: content, li: li, start: start, end: end, d: d, heuristic: heuristic}
		if req.Kind == ExtractFunction {
			return p.extractFunction(ctx, j, x, req)
		}
		return p.extractVariable(j, x, req)
	})
}

type extraction struct {
	path       string
	content    []byte
	li         *plan.LineIndex
	start, end int
	d          *lang.Descriptor
	heuristic  bool
}

func (p *Planner) extractFunction(ctx context.Context, j *job, x extraction, req ExtractRequest) error {
	tpl := x.d.AST.Templates()
	first := x.li.PositionAt(x.start).Line
	endPos := x.li.PositionAt(x.end)
	last := endPos.Line
	if endPos.Character == 0 && last > first {
		last--
	}
	lines := x.li.LineRange(first, last)
	lineStart, _ := x.li.Offset(lines.Start)
	lineEnd, _ := x.li.Offset(lines.End)
	body := string(x.content[lineStart:lineEnd])
	indent := lang.LineIndent(x.content, x.li, first)

	insertAt := x.li.PositionAt(len(x.content))
	prefix := "\n"
	if len(x.content) > 0 && x.content[len(x.content)-1] != '\n' {
		prefix = "\n\n"
	}
	var enclosing *lang.Symbol
	if !x.heuristic {
		sym, err := x.d.AST.EnclosingDeclaration(ctx, x.path, x.content, req.Range)
		switch {
		case err == nil:
			enclosing = sym
			insertAt, prefix = sym.DeclRange.End, "\n"
			if endOff, _ := x.li.Offset(insertAt); endOff > 0 && x.content[endOff-1] != '\n' {
				prefix = "\n\n"
			}
		case !errors.Is(err, lang.ErrNoDeclaration):
			return err
		}
	}

	call := indent + tpl.CallStatement(req.Name)
	if strings.HasSuffix(body, "\n") {
		call += "\n"
	}
	j.builder.Add(
		plan.TextEdit{
			FilePath:    x.path,
			Kind:        plan.EditReplace,
			Range:       lines,
			NewText:     call,
			Description: "call extracted function " + req.Name,
		},
		plan.TextEdit{
			FilePath:    x.path,
			Kind:        plan.EditInsert,
			Range:       plan.Range{Start: insertAt, End: insertAt},
			NewText:     prefix + tpl.FunctionDecl(req.Name, lang.Reindent(body, tpl.IndentUnit())),
			Description: "declare extracted function " + req.Name,
		},
	)

	if enclosing != nil {
		if used := p.usedParams(ctx, x, enclosing); len(used) > 0 {
			j.builder.Warnf(plan.WarnParametersNotInferred, fmt.Sprintf(
				"the selection uses %s from %s; pass them to %s explicitly",
				strings.Join(used, ", "), enclosing.Name, req.Name))
		}
	}
	return nil
}

// usedParams returns the parameter names of sym referenced inside the
// selection.
func (p *Planner) usedParams(ctx context.Context, x extraction, sym *lang.Symbol) []string {
	var used []string
	sel := x.li.RangeOf(x.start, x.end)
	for _, r := range sym.Params {
		s, err1 := x.li.Offset(r.Start)
		e, err2 := x.li.Offset(r.End)
		if err1 != nil || err2 != nil {
			continue
		}
		name := ""
		for _, m := range paramName.FindAllString(string(x.content[s:e]), -1) {
			if m != "mut" {
				name = m
				break
			}
		}
		if name == "" {
			continue
		}
		occ, err := x.d.AST.Occurrences(ctx, x.path, x.content, name)
		if err != nil {
			continue
		}
		for _, o := range occ {
			if sel.Contains(o.Start) && sel.Contains(o.End) {
				used = append(used, name)
				break
			}
		}
	}
	return used
}

func (p *Planner) extractVariable(j *job, x extraction, req ExtractRequest) error {
	start, end := x.start, x.end
	for start < end && isSpace(x.content[start]) {
		start++
	}
	for end > start && isSpace(x.content[end-1]) {
		end--
	}
	expr := string(x.content[start:end])
	tpl := x.d.AST.Templates()
	line := x.li.PositionAt(start).Line
	at := plan.Position{Line: line}
	decl := lang.LineIndent(x.content, x.li, line) +
		tpl.VariableDecl(req.Name, expr, req.Kind == ExtractConstant) + "\n"

	j.builder.Add(
		plan.TextEdit{
			FilePath:    x.path,
			Kind:        plan.EditInsert,
			Range:       plan.Range{Start: at, End: at},
			NewText:     decl,
			Description: fmt.Sprintf("declare %s %s", req.Kind, req.Name),
		},
		plan.TextEdit{
			FilePath:    x.path,
			Kind:        plan.EditReplace,
			Range:       x.li.RangeOf(start, end),
			NewText:     req.Name,
			Description: "use " + req.Name,
		},
	)
	return nil
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// balanced reports whether brackets and quotes in text pair up. It is the
// completeness check used when a file cannot be parsed.
func balanced(text string) bool {
	var stack []rune
	var quote rune
	escaped := false
	pairs := map[rune]rune{')': '(', ']': '[', '}': '{'}
	for _, r := range text {
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case r == '\\' && quote != '`':
				escaped = true
			case r == quote:
				quote = 0
			}
			continue
		}
		switch r {
		case '"', '\'', '`':
			quote = r
		case '(', '[', '{':
			stack = append(stack, r)
		case ')', ']', '}':
			if len(stack) == 0 || stack[len(stack)-1] != pairs[r] {
				return false
			}
			stack = stack[:len(stack)-1]
		}
	}
	return len(stack) == 0 && quote == 0
}
