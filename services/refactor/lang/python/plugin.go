// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package python is the Python language plugin.
//
// It implements references and AST operations only. Python packaging
// metadata (pyproject.toml, setup.cfg) does not list intra-workspace path
// dependencies in a form the refactoring engine needs to rewrite, so the
// plugin deliberately has no manifest capability.
package python

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/spf13/afero"

	"github.com/AleutianAI/AleutianRefactor/services/refactor/lang"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/plan"
)

// ID is the language identifier.
const ID = "python"

// Plugin implements lang.Plugin for Python.
type Plugin struct {
	lang.TreeAST
	fs afero.Fs
}

// New creates the plugin; fs is used to resolve module names to files.
func New(fs afero.Fs) *Plugin {
	p := &Plugin{fs: fs}
	p.G = lang.Grammar{
		Language:    func(string) *sitter.Language { return python.GetLanguage() },
		Identifiers: []string{"identifier"},
		Declarations: map[string]lang.DeclSpec{
			"function_definition": {Kind: lang.SymbolFunction, NameField: "name", ParamsField: "parameters", KindFunc: functionKind},
			"class_definition":    {Kind: lang.SymbolClass, NameField: "name", Descend: true},
			"assignment":          {Kind: lang.SymbolVariable, NameField: "left", KindFunc: assignmentKind},
		},
		Wrappers:      []string{"decorated_definition", "expression_statement"},
		Containers:    []string{"block", "module"},
		Comments:      []string{"comment"},
		Calls:         []string{"call"},
		CallFunction:  "function",
		CallArguments: "arguments",
		Separators:    []string{"."},
		Exported: func(name string, _ *sitter.Node, _ []byte) bool {
			return !strings.HasPrefix(name, "_")
		},
	}
	return p
}

func functionKind(n *sitter.Node, _ []byte) lang.SymbolKind {
	for cur := n.Parent(); cur != nil; cur = cur.Parent() {
		switch cur.Type() {
		case "class_definition":
			return lang.SymbolMethod
		case "function_definition", "module":
			return lang.SymbolFunction
		}
	}
	return lang.SymbolFunction
}

func assignmentKind(n *sitter.Node, content []byte) lang.SymbolKind {
	name := lang.Text(n.ChildByFieldName("left"), content)
	if name != "" && strings.ToUpper(name) == name {
		return lang.SymbolConstant
	}
	return lang.SymbolVariable
}

// ID implements lang.Plugin.
func (p *Plugin) ID() string { return ID }

// Extensions implements lang.Plugin.
func (p *Plugin) Extensions() []string { return []string{".py", ".pyi"} }

// ManifestName implements lang.Plugin.
func (p *Plugin) ManifestName() string { return "" }

var pyAssignments = map[string]string{
	"assignment":           "left",
	"augmented_assignment": "left",
}

// LocalDeclaration implements lang.ASTOperator. The target must be a
// plain `name = value` statement inside a function body.
func (p *Plugin) LocalDeclaration(ctx context.Context, path string, content []byte, pos plan.Position) (*lang.LocalDecl, error) {
	li := plan.NewLineIndex(content)
	off, err := li.Offset(pos)
	if err != nil {
		return nil, err
	}

	var decl *lang.LocalDecl
	err = p.WithTree(ctx, path, content, func(root *sitter.Node) error {
		ident := p.IdentifierNodeAt(root, uint32(off))
		if ident == nil {
			return lang.ErrNoDeclaration
		}
		assign := ident.Parent()
		if assign == nil || assign.Type() != "assignment" {
			return lang.ErrNotLocal
		}
		left, right := assign.ChildByFieldName("left"), assign.ChildByFieldName("right")
		if left == nil || right == nil || left.Type() != "identifier" || left.StartByte() != ident.StartByte() {
			return lang.ErrNotLocal
		}
		stmt := assign.Parent()
		if stmt == nil || stmt.Type() != "expression_statement" || stmt.NamedChildCount() != 1 {
			return lang.ErrNotLocal
		}
		scope := stmt.Parent()
		if scope == nil || scope.Type() != "block" {
			return lang.ErrNotLocal
		}
		inFunction := false
		for cur := scope.Parent(); cur != nil; cur = cur.Parent() {
			if cur.Type() == "function_definition" {
				inFunction = true
				break
			}
			if cur.Type() == "class_definition" {
				break
			}
		}
		if !inFunction {
			return lang.ErrNotLocal
		}
		name := lang.Text(ident, content)
		decl = &lang.LocalDecl{
			Name:           name,
			NameRange:      lang.NodeRange(ident),
			Value:          lang.Text(right, content),
			StatementRange: lang.NodeStatementSpan(content, li, stmt),
			Scope:          lang.NodeRange(scope),
			Constant:       strings.ToUpper(name) == name,
			Reassigned:     lang.Reassigned(scope, content, stmt.EndByte(), name, pyAssignments),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return decl, nil
}

// Transform implements lang.ASTOperator. Python visibility is a naming
// convention, so only to_async is supported.
func (p *Plugin) Transform(ctx context.Context, path string, content []byte, sym lang.Symbol, kind lang.TransformKind) ([]plan.TextEdit, error) {
	if kind != lang.TransformToAsync {
		return nil, lang.ErrUnsupportedTransform
	}
	var edits []plan.TextEdit
	err := p.WithTree(ctx, path, content, func(root *sitter.Node) error {
		node := p.FindDeclNode(root, sym)
		if node == nil {
			return lang.ErrNoDeclaration
		}
		if node.Type() != "function_definition" {
			return lang.ErrUnsupportedTransform
		}
		if lang.FirstChildOfType(node, "async") != nil {
			return nil
		}
		def := lang.FirstChildOfType(node, "def")
		if def == nil {
			return lang.ErrUnsupportedTransform
		}
		at := lang.NodeRange(def).Start
		edits = append(edits, plan.TextEdit{
			FilePath:    path,
			Kind:        plan.EditInsert,
			Range:       plan.Range{Start: at, End: at},
			NewText:     "async ",
			Description: "make " + sym.Name + " async",
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return edits, nil
}

// Templates implements lang.ASTOperator.
func (p *Plugin) Templates() lang.Templates { return templates{} }

// FilePreamble implements lang.ASTOperator.
func (p *Plugin) FilePreamble(context.Context, string) string { return "" }

type templates struct{}

func (templates) IndentUnit() string { return "    " }

func (templates) FunctionDecl(name, body string) string {
	return "def " + name + "():\n" + body + "\n"
}

func (templates) CallStatement(name string) string { return name + "()" }

func (templates) VariableDecl(name, expr string, _ bool) string {
	return name + " = " + expr
}

var (
	_ lang.Plugin            = (*Plugin)(nil)
	_ lang.ReferenceRewriter = (*Plugin)(nil)
	_ lang.ASTOperator       = (*Plugin)(nil)
)
