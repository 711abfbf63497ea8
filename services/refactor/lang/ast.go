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

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/AleutianAI/AleutianRefactor/services/refactor/plan"
)

// DeclSpec describes one declaration node type.
type DeclSpec struct {
	Kind SymbolKind

	// NameField is the field holding the declared name.
	NameField string

	// ParamsField is the field holding the parameter list, if any.
	ParamsField string

	// Descend continues the symbol walk into the declaration body, for
	// classes and modules whose members are symbols too.
	Descend bool

	// KindFunc refines Kind from the node, e.g. const vs let.
	KindFunc func(n *sitter.Node, content []byte) SymbolKind

	// ParentFunc names the owner of a member declared outside its owner's
	// body, e.g. a Go method's receiver type.
	ParentFunc func(n *sitter.Node, content []byte) string
}

// Grammar configures TreeAST for one language.
type Grammar struct {
	// Language selects the grammar for a path.
	Language func(path string) *sitter.Language

	// Identifiers are node types that name things.
	Identifiers []string

	// Declarations maps declaration node types to their description.
	Declarations map[string]DeclSpec

	// Wrappers are node types climbed when computing a declaration's
	// removable range, when the declaration is their only named child.
	Wrappers []string

	// ExportWrappers are wrapper types that make their child exported.
	ExportWrappers []string

	// Containers are node types holding a statement sequence.
	Containers []string

	// Comments are comment node types.
	Comments []string

	// Calls are call node types with their function and argument fields.
	Calls         []string
	CallFunction  string
	CallArguments string

	// Separators join a qualifier and a member in qualified calls.
	Separators []string

	// Exported decides visibility for declarations not under an export
	// wrapper. Nil means not exported.
	Exported func(name string, n *sitter.Node, content []byte) bool
}

// TreeAST implements the language-neutral parts of ASTOperator over a
// tree-sitter grammar. Plugins embed it and add LocalDeclaration,
// Transform, and Templates.
type TreeAST struct {
	G Grammar
}

func (t *TreeAST) parse(ctx context.Context, path string, content []byte) (*sitter.Tree, error) {
	return Parse(ctx, path, t.G.Language(path), content)
}

// WithTree parses content and hands the root to fn.
func (t *TreeAST) WithTree(ctx context.Context, path string, content []byte, fn func(root *sitter.Node) error) error {
	tree, err := t.parse(ctx, path, content)
	if err != nil {
		return err
	}
	defer tree.Close()
	return fn(tree.RootNode())
}

func (t *TreeAST) isIdentifier(typ string) bool { return contains(t.G.Identifiers, typ) }

// Symbols implements ASTOperator.
func (t *TreeAST) Symbols(ctx context.Context, path string, content []byte) ([]Symbol, error) {
	var out []Symbol
	err := t.WithTree(ctx, path, content, func(root *sitter.Node) error {
		li := plan.NewLineIndex(content)
		t.collectSymbols(root, content, li, "", &out)
		return nil
	})
	return out, err
}

func (t *TreeAST) collectSymbols(n *sitter.Node, content []byte, li *plan.LineIndex, parent string, out *[]Symbol) {
	for _, c := range Children(n) {
		spec, ok := t.G.Declarations[c.Type()]
		if !ok {
			t.collectSymbols(c, content, li, parent, out)
			continue
		}
		nameNode := c.ChildByFieldName(spec.NameField)
		if nameNode == nil {
			t.collectSymbols(c, content, li, parent, out)
			continue
		}
		sym := t.symbolFor(c, nameNode, spec, content, li, parent)
		if sym.Name != "" && t.isIdentifier(nameNode.Type()) {
			*out = append(*out, sym)
		}
		if spec.Descend {
			t.collectSymbols(c, content, li, sym.Name, out)
		}
	}
}

func (t *TreeAST) symbolFor(n, nameNode *sitter.Node, spec DeclSpec, content []byte, li *plan.LineIndex, parent string) Symbol {
	kind := spec.Kind
	if spec.KindFunc != nil {
		kind = spec.KindFunc(n, content)
	}
	if spec.ParentFunc != nil {
		if p := spec.ParentFunc(n, content); p != "" {
			parent = p
		}
	}

	outer, exported := t.outermost(n)
	name := Text(nameNode, content)
	if !exported && t.G.Exported != nil {
		exported = t.G.Exported(name, n, content)
	}

	sym := Symbol{
		Name:      name,
		Kind:      kind,
		Range:     NodeRange(n),
		DeclRange: NodeStatementSpan(content, li, outer),
		NameRange: NodeRange(nameNode),
		Exported:  exported,
		Parent:    parent,
	}
	if spec.ParamsField != "" {
		if params := n.ChildByFieldName(spec.ParamsField); params != nil {
			for _, p := range NamedChildren(params, t.G.Comments...) {
				sym.Params = append(sym.Params, NodeRange(p))
			}
		}
	}
	return sym
}

// outermost climbs wrappers whose only named child is the current node.
func (t *TreeAST) outermost(n *sitter.Node) (*sitter.Node, bool) {
	cur := n
	exported := false
	for {
		p := cur.Parent()
		if p == nil || !contains(t.G.Wrappers, p.Type()) {
			return cur, exported
		}
		named := NamedChildren(p, t.G.Comments...)
		if len(named) != 1 && !contains(t.G.ExportWrappers, p.Type()) {
			return cur, exported
		}
		if contains(t.G.ExportWrappers, p.Type()) {
			exported = true
		}
		cur = p
	}
}

// Occurrences implements ASTOperator.
func (t *TreeAST) Occurrences(ctx context.Context, path string, content []byte, name string) ([]plan.Range, error) {
	var out []plan.Range
	err := t.WithTree(ctx, path, content, func(root *sitter.Node) error {
		Walk(root, func(n *sitter.Node) bool {
			if contains(t.G.Comments, n.Type()) {
				return false
			}
			if t.isIdentifier(n.Type()) && Text(n, content) == name {
				out = append(out, NodeRange(n))
			}
			return true
		})
		return nil
	})
	return out, err
}

// IdentifierAt implements ASTOperator.
func (t *TreeAST) IdentifierAt(ctx context.Context, path string, content []byte, pos plan.Position) (string, plan.Range, error) {
	li := plan.NewLineIndex(content)
	off, err := li.Offset(pos)
	if err != nil {
		return "", plan.Range{}, err
	}

	var (
		name string
		rng  plan.Range
	)
	err = t.WithTree(ctx, path, content, func(root *sitter.Node) error {
		Walk(root, func(n *sitter.Node) bool {
			if uint32(off) < n.StartByte() || uint32(off) > n.EndByte() {
				return false
			}
			if t.isIdentifier(n.Type()) {
				name, rng = Text(n, content), NodeRange(n)
			}
			return true
		})
		return nil
	})
	if err != nil {
		return "", plan.Range{}, err
	}
	if name == "" {
		return "", plan.Range{}, fmt.Errorf("%w: no identifier at %s", ErrNoDeclaration, pos)
	}
	return name, rng, nil
}

// CompleteRange implements ASTOperator.
//
// A statements selection is complete when it starts at the start of one
// statement and ends at the end of a later sibling in the same container.
// An expression selection is complete when it spans exactly one named
// node that is neither a statement nor a container.
func (t *TreeAST) CompleteRange(ctx context.Context, path string, content []byte, r plan.Range, shape RangeShape) (bool, error) {
	li := plan.NewLineIndex(content)
	start, err := li.Offset(r.Start)
	if err != nil {
		return false, err
	}
	end, err := li.Offset(r.End)
	if err != nil {
		return false, err
	}
	for start < end && isSpace(content[start]) {
		start++
	}
	for end > start && isSpace(content[end-1]) {
		end--
	}
	if start >= end {
		return false, nil
	}

	complete := false
	err = t.WithTree(ctx, path, content, func(root *sitter.Node) error {
		node := DescendantAt(root, uint32(start), uint32(end))
		switch shape {
		case ShapeExpression:
			complete = int(node.StartByte()) == start && int(node.EndByte()) == end &&
				node.IsNamed() && !t.isStatementLike(node)
		default:
			complete = t.coversSiblingStatements(node, content, start, end)
		}
		return nil
	})
	return complete, err
}

func (t *TreeAST) isStatementLike(n *sitter.Node) bool {
	typ := n.Type()
	if contains(t.G.Containers, typ) {
		return true
	}
	if _, ok := t.G.Declarations[typ]; ok {
		return true
	}
	return strings.HasSuffix(typ, "statement") || strings.HasSuffix(typ, "declaration") || strings.HasSuffix(typ, "_item")
}

func (t *TreeAST) coversSiblingStatements(node *sitter.Node, content []byte, start, end int) bool {
	// Walk up until a statement container holds the span.
	for c := node; c != nil; c = c.Parent() {
		if !contains(t.G.Containers, c.Type()) {
			continue
		}
		startsAt, endsAt := false, false
		for _, child := range NamedChildren(c) {
			s, e := int(child.StartByte()), int(child.EndByte())
			if s < start && e > start {
				return false
			}
			if s < end && e > end && !(e == end+1 && content[end] == ';') {
				return false
			}
			if s == start {
				startsAt = true
			}
			if e == end || (e == end+1 && content[end] == ';') {
				endsAt = true
			}
		}
		return startsAt && endsAt
	}
	return false
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// EnclosingDeclaration implements ASTOperator. It returns the outermost
// declaration containing r.
func (t *TreeAST) EnclosingDeclaration(ctx context.Context, path string, content []byte, r plan.Range) (*Symbol, error) {
	syms, err := t.Symbols(ctx, path, content)
	if err != nil {
		return nil, err
	}
	for i := range syms {
		s := syms[i]
		if s.Parent == "" && s.Range.Contains(r.Start) && s.Range.Contains(r.End) {
			return &s, nil
		}
	}
	return nil, fmt.Errorf("%w: no declaration encloses %s", ErrNoDeclaration, r.Start)
}

// Calls implements ASTOperator.
func (t *TreeAST) Calls(ctx context.Context, path string, content []byte, name string) ([]Call, error) {
	var out []Call
	err := t.WithTree(ctx, path, content, func(root *sitter.Node) error {
		Walk(root, func(n *sitter.Node) bool {
			if !contains(t.G.Calls, n.Type()) {
				return true
			}
			fn := n.ChildByFieldName(t.G.CallFunction)
			args := n.ChildByFieldName(t.G.CallArguments)
			if fn == nil || args == nil || !t.callee(Text(fn, content), name) {
				return true
			}
			call := Call{Range: NodeRange(n)}
			for _, a := range NamedChildren(args, t.G.Comments...) {
				call.Args = append(call.Args, NodeRange(a))
			}
			out = append(out, call)
			return true
		})
		return nil
	})
	return out, err
}

func (t *TreeAST) callee(text, name string) bool {
	if text == name {
		return true
	}
	for _, sep := range t.G.Separators {
		if strings.HasSuffix(text, sep+name) {
			return true
		}
	}
	return false
}

// FindDeclNode returns the declaration node whose name range equals sym's.
func (t *TreeAST) FindDeclNode(root *sitter.Node, sym Symbol) *sitter.Node {
	var found *sitter.Node
	Walk(root, func(n *sitter.Node) bool {
		if found != nil {
			return false
		}
		if spec, ok := t.G.Declarations[n.Type()]; ok {
			if nameNode := n.ChildByFieldName(spec.NameField); nameNode != nil && NodeRange(nameNode) == sym.NameRange {
				found = n
				return false
			}
		}
		return true
	})
	return found
}

// IdentifierNodeAt returns the identifier node covering byte offset off.
func (t *TreeAST) IdentifierNodeAt(root *sitter.Node, off uint32) *sitter.Node {
	var found *sitter.Node
	Walk(root, func(n *sitter.Node) bool {
		if off < n.StartByte() || off > n.EndByte() {
			return false
		}
		if t.isIdentifier(n.Type()) {
			found = n
		}
		return true
	})
	return found
}

// Reassigned reports whether any node of assignTypes inside scope, after
// offset from, assigns to name through field.
func Reassigned(scope *sitter.Node, content []byte, from uint32, name string, assignTypes map[string]string) bool {
	hit := false
	Walk(scope, func(n *sitter.Node) bool {
		if hit {
			return false
		}
		field, ok := assignTypes[n.Type()]
		if !ok || n.StartByte() < from {
			return true
		}
		var target *sitter.Node
		if field == "" {
			target = n.NamedChild(0)
		} else {
			target = n.ChildByFieldName(field)
		}
		if target == nil {
			return true
		}
		if Text(target, content) == name {
			hit = true
			return false
		}
		for _, c := range NamedChildren(target) {
			if Text(c, content) == name {
				hit = true
				return false
			}
		}
		return true
	})
	return hit
}
