// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package golang is the Go language plugin.
//
// References are import specs; import paths resolve through the nearest
// go.mod and any go.work at the workspace root. The manifest is go.mod and
// the workspace manifest is go.work, both edited with x/mod/modfile so
// comments and formatting survive.
package golang

import (
	"context"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/spf13/afero"

	"github.com/AleutianAI/AleutianRefactor/services/refactor/lang"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/plan"
)

// ID is the language identifier.
const ID = "go"

// Plugin implements lang.Plugin and every capability interface for Go.
type Plugin struct {
	lang.TreeAST
	fs afero.Fs
}

// New creates the Go plugin reading auxiliary files (go.mod, sibling
// sources) through fs.
func New(fs afero.Fs) *Plugin {
	p := &Plugin{fs: fs}
	p.G = lang.Grammar{
		Language:    func(string) *sitter.Language { return golang.GetLanguage() },
		Identifiers: []string{"identifier", "field_identifier", "type_identifier", "package_identifier"},
		Declarations: map[string]lang.DeclSpec{
			"function_declaration": {Kind: lang.SymbolFunction, NameField: "name", ParamsField: "parameters"},
			"method_declaration": {
				Kind: lang.SymbolMethod, NameField: "name", ParamsField: "parameters",
				ParentFunc: receiverType,
			},
			"type_spec":  {Kind: lang.SymbolType, NameField: "name", KindFunc: typeKind},
			"type_alias": {Kind: lang.SymbolType, NameField: "name"},
			"const_spec": {Kind: lang.SymbolConstant, NameField: "name"},
			"var_spec":   {Kind: lang.SymbolVariable, NameField: "name"},
		},
		Wrappers:      []string{"type_declaration", "const_declaration", "var_declaration"},
		Containers:    []string{"block", "statement_list", "source_file"},
		Comments:      []string{"comment"},
		Calls:         []string{"call_expression"},
		CallFunction:  "function",
		CallArguments: "arguments",
		Separators:    []string{"."},
		Exported: func(name string, _ *sitter.Node, _ []byte) bool {
			r, _ := utf8.DecodeRuneInString(name)
			return unicode.IsUpper(r)
		},
	}
	return p
}

// ID implements lang.Plugin.
func (p *Plugin) ID() string { return ID }

// Extensions implements lang.Plugin.
func (p *Plugin) Extensions() []string { return []string{".go"} }

// ManifestName implements lang.Plugin.
func (p *Plugin) ManifestName() string { return "go.mod" }

// DirectoryScoped implements lang.DirectoryScoped: a Go package is a
// directory.
func (p *Plugin) DirectoryScoped() bool { return true }

func receiverType(n *sitter.Node, content []byte) string {
	recv := n.ChildByFieldName("receiver")
	if recv == nil {
		return ""
	}
	for _, param := range lang.NamedChildren(recv, "comment") {
		typ := param.ChildByFieldName("type")
		if typ == nil {
			continue
		}
		name := strings.TrimLeft(lang.Text(typ, content), "*")
		if i := strings.IndexByte(name, '['); i >= 0 {
			name = name[:i]
		}
		return name
	}
	return ""
}

func typeKind(n *sitter.Node, _ []byte) lang.SymbolKind {
	if t := n.ChildByFieldName("type"); t != nil && t.Type() == "interface_type" {
		return lang.SymbolInterface
	}
	return lang.SymbolType
}

var goAssignments = map[string]string{
	"assignment_statement":  "left",
	"short_var_declaration": "left",
	"inc_statement":         "",
	"dec_statement":         "",
}

// LocalDeclaration implements lang.ASTOperator.
//
// Supported forms are `x := expr`, `var x = expr` and `const x = expr`
// declaring exactly one name inside a function body.
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
		name := lang.Text(ident, content)

		var stmt, value *sitter.Node
		constant := false
	climb:
		for n := ident.Parent(); n != nil; n = n.Parent() {
			switch n.Type() {
			case "short_var_declaration":
				left := lang.NamedChildren(n.ChildByFieldName("left"))
				right := lang.NamedChildren(n.ChildByFieldName("right"))
				if len(left) != 1 || len(right) != 1 || lang.Text(left[0], content) != name {
					return lang.ErrNotLocal
				}
				stmt, value = n, right[0]
				break climb
			case "var_spec", "const_spec":
				values := n.ChildByFieldName("value")
				if values == nil {
					return lang.ErrNotLocal
				}
				vals := lang.NamedChildren(values)
				if len(vals) != 1 {
					return lang.ErrNotLocal
				}
				parent := n.Parent()
				if parent == nil || len(lang.NamedChildren(parent, "comment")) != 1 {
					return lang.ErrNotLocal
				}
				stmt, value, constant = parent, vals[0], n.Type() == "const_spec"
				break climb
			case "function_declaration", "method_declaration", "func_literal", "source_file":
				return lang.ErrNotLocal
			}
		}
		if stmt == nil {
			return lang.ErrNotLocal
		}
		scope := stmt.Parent()
		if scope == nil || scope.Type() == "source_file" {
			return lang.ErrNotLocal
		}
		decl = &lang.LocalDecl{
			Name:           name,
			NameRange:      lang.NodeRange(ident),
			Value:          lang.Text(value, content),
			StatementRange: lang.NodeStatementSpan(content, li, stmt),
			Scope:          lang.NodeRange(scope),
			Constant:       constant,
			Reassigned:     lang.Reassigned(scope, content, stmt.EndByte(), name, goAssignments),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return decl, nil
}

// Transform implements lang.ASTOperator. Go visibility is spelled by the
// identifier's case, which is a rename rather than a transform, and Go has
// no async functions.
func (p *Plugin) Transform(_ context.Context, _ string, _ []byte, _ lang.Symbol, _ lang.TransformKind) ([]plan.TextEdit, error) {
	return nil, lang.ErrUnsupportedTransform
}

// Templates implements lang.ASTOperator.
func (p *Plugin) Templates() lang.Templates { return templates{} }

// FilePreamble implements lang.ASTOperator. New files join the package
// already declared in their directory.
func (p *Plugin) FilePreamble(ctx context.Context, path string) string {
	return "package " + p.destinationPackage(ctx, filepath.Dir(path), path) + "\n\n"
}

type templates struct{}

func (templates) IndentUnit() string { return "\t" }

func (templates) FunctionDecl(name, body string) string {
	return "func " + name + "() {\n" + body + "\n}\n"
}

func (templates) CallStatement(name string) string { return name + "()" }

func (templates) VariableDecl(name, expr string, constant bool) string {
	if constant {
		return "const " + name + " = " + expr
	}
	return name + " := " + expr
}

var (
	_ lang.Plugin            = (*Plugin)(nil)
	_ lang.ReferenceRewriter = (*Plugin)(nil)
	_ lang.ManifestEditor    = (*Plugin)(nil)
	_ lang.WorkspaceEditor   = (*Plugin)(nil)
	_ lang.ASTOperator       = (*Plugin)(nil)
)
