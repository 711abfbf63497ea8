// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lang

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/AleutianAI/AleutianRefactor/services/refactor/plan"
)

// DefaultMaxSourceSize caps the size of a file handed to a parser (10MB).
const DefaultMaxSourceSize = 10 * 1024 * 1024

// Parse parses content with language.
//
// # Description
//
// A new parser is created per call; tree-sitter parsers are not safe for
// concurrent use. The caller must Close the returned tree. When the tree
// contains syntax errors the tree is closed and a *ParseError is returned,
// pointing at the first error node.
//
// # Inputs
//
//	ctx - Cancels a long parse.
//	path - Used in error messages only.
//	language - The grammar.
//	content - Source bytes. Must be valid UTF-8.
func Parse(ctx context.Context, path string, language *sitter.Language, content []byte) (*sitter.Tree, error) {
	if len(content) > DefaultMaxSourceSize {
		return nil, &ParseError{Path: path, Message: fmt.Sprintf("file too large to parse (%d bytes)", len(content))}
	}
	if !utf8.Valid(content) {
		return nil, &ParseError{Path: path, Message: "content is not valid UTF-8"}
	}

	parser := sitter.NewParser()
	parser.SetLanguage(language)

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse %s: %w", path, err)
	}
	root := tree.RootNode()
	if root == nil {
		tree.Close()
		return nil, &ParseError{Path: path, Message: "tree-sitter returned no root node"}
	}
	if root.HasError() {
		line := firstErrorLine(root)
		tree.Close()
		return nil, &ParseError{Path: path, Line: line, Message: "source contains syntax errors"}
	}
	return tree, nil
}

func firstErrorLine(n *sitter.Node) int {
	var line int
	Walk(n, func(c *sitter.Node) bool {
		if line != 0 {
			return false
		}
		if c.IsError() || c.IsMissing() {
			line = int(c.StartPoint().Row) + 1
			return false
		}
		return c.HasError()
	})
	return line
}

// Walk visits n and its descendants depth-first in source order. Returning
// false from fn skips the node's children.
func Walk(n *sitter.Node, fn func(*sitter.Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		Walk(n.Child(i), fn)
	}
}

// Children returns the direct children of n.
func Children(n *sitter.Node) []*sitter.Node {
	out := make([]*sitter.Node, 0, n.ChildCount())
	for i := 0; i < int(n.ChildCount()); i++ {
		if c := n.Child(i); c != nil {
			out = append(out, c)
		}
	}
	return out
}

// NamedChildren returns the named children of n, skipping types in skip.
func NamedChildren(n *sitter.Node, skip ...string) []*sitter.Node {
	out := make([]*sitter.Node, 0, n.NamedChildCount())
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c == nil || contains(skip, c.Type()) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// FirstChildOfType returns the first direct child with one of types.
func FirstChildOfType(n *sitter.Node, types ...string) *sitter.Node {
	for i := 0; i < int(n.ChildCount()); i++ {
		if c := n.Child(i); c != nil && contains(types, c.Type()) {
			return c
		}
	}
	return nil
}

// Text returns the source text of n.
func Text(n *sitter.Node, content []byte) string {
	if n == nil {
		return ""
	}
	return string(content[n.StartByte():n.EndByte()])
}

// NodeRange converts a node span to a plan range. tree-sitter columns are
// byte offsets, which is what plan positions use.
func NodeRange(n *sitter.Node) plan.Range {
	return plan.Range{Start: point(n.StartPoint()), End: point(n.EndPoint())}
}

func point(p sitter.Point) plan.Position {
	return plan.Position{Line: int(p.Row), Character: int(p.Column)}
}

// InnerRange is NodeRange shrunk by trim bytes on each side; used for
// string literals where the quotes stay untouched.
func InnerRange(li *plan.LineIndex, n *sitter.Node, trim int) plan.Range {
	start := int(n.StartByte()) + trim
	end := int(n.EndByte()) - trim
	if end < start {
		end = start
	}
	return li.RangeOf(start, end)
}

// Unquote strips one layer of matching quotes.
func Unquote(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' || first == '\'' || first == '`') && first == last {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// StatementSpan widens the byte span [start, end) to whole lines when
// nothing else shares those lines, so deleting it leaves no blank line.
// Otherwise it returns the span extended over trailing spaces only.
func StatementSpan(content []byte, li *plan.LineIndex, start, end int) plan.Range {
	lineStart := start
	for lineStart > 0 && (content[lineStart-1] == ' ' || content[lineStart-1] == '\t') {
		lineStart--
	}
	ownsStart := lineStart == 0 || content[lineStart-1] == '\n'

	lineEnd := end
	for lineEnd < len(content) && (content[lineEnd] == ' ' || content[lineEnd] == '\t' || content[lineEnd] == '\r') {
		lineEnd++
	}
	ownsEnd := lineEnd == len(content) || content[lineEnd] == '\n'

	if ownsStart && ownsEnd {
		if lineEnd < len(content) {
			lineEnd++
		}
		return li.RangeOf(lineStart, lineEnd)
	}
	trail := end
	for trail < len(content) && content[trail] == ' ' {
		trail++
	}
	return li.RangeOf(start, trail)
}

// NodeStatementSpan is StatementSpan for a node.
func NodeStatementSpan(content []byte, li *plan.LineIndex, n *sitter.Node) plan.Range {
	return StatementSpan(content, li, int(n.StartByte()), int(n.EndByte()))
}

// LineIndent returns the leading whitespace of line.
func LineIndent(content []byte, li *plan.LineIndex, line int) string {
	start := li.LineStart(line)
	i := start
	for i < len(content) && (content[i] == ' ' || content[i] == '\t') {
		i++
	}
	return string(content[start:i])
}

// Reindent removes the common leading whitespace from body and prefixes
// every non-blank line with indent. A trailing newline is dropped.
func Reindent(body, indent string) string {
	lines := strings.Split(strings.TrimRight(body, "\n"), "\n")
	common := ""
	first := true
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		lead := l[:len(l)-len(strings.TrimLeft(l, " \t"))]
		if first {
			common, first = lead, false
			continue
		}
		for !strings.HasPrefix(lead, common) {
			common = common[:len(common)-1]
		}
	}
	for i, l := range lines {
		if strings.TrimSpace(l) == "" {
			lines[i] = ""
			continue
		}
		lines[i] = indent + strings.TrimPrefix(l, common)
	}
	return strings.Join(lines, "\n")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// DescendantAt returns the deepest node containing the byte span
// [start, end).
func DescendantAt(root *sitter.Node, start, end uint32) *sitter.Node {
	best := root
	Walk(root, func(n *sitter.Node) bool {
		if n.StartByte() <= start && n.EndByte() >= end {
			best = n
			return true
		}
		return false
	})
	return best
}
