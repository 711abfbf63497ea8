// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package typescript is the TypeScript and JavaScript language plugin.
//
// One plugin serves both languages; the grammar is chosen per file
// extension. References are static imports, re-exports, require() calls and
// dynamic import() calls. The manifest is package.json and workspaces are
// declared in its "workspaces" field.
package typescript

import (
	"context"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
	"github.com/spf13/afero"

	"github.com/AleutianAI/AleutianRefactor/services/refactor/lang"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/plan"
)

// ID is the language identifier.
const ID = "typescript"

var extensions = []string{".ts", ".tsx", ".mts", ".cts", ".js", ".jsx", ".mjs", ".cjs"}

// Plugin implements lang.Plugin for TypeScript and JavaScript.
type Plugin struct {
	lang.TreeAST
	fs afero.Fs
}

// New creates the plugin. fs is used to probe resolution candidates and to
// read workspace package manifests.
func New(fs afero.Fs) *Plugin {
	p := &Plugin{fs: fs}
	p.G = lang.Grammar{
		Language: grammarFor,
		Identifiers: []string{
			"identifier", "property_identifier", "type_identifier",
			"shorthand_property_identifier", "shorthand_property_identifier_pattern",
		},
		Declarations: map[string]lang.DeclSpec{
			"function_declaration":           {Kind: lang.SymbolFunction, NameField: "name", ParamsField: "parameters"},
			"generator_function_declaration": {Kind: lang.SymbolFunction, NameField: "name", ParamsField: "parameters"},
			"class_declaration":              {Kind: lang.SymbolClass, NameField: "name", Descend: true},
			"abstract_class_declaration":     {Kind: lang.SymbolClass, NameField: "name", Descend: true},
			"method_definition":              {Kind: lang.SymbolMethod, NameField: "name", ParamsField: "parameters"},
			"interface_declaration":          {Kind: lang.SymbolInterface, NameField: "name"},
			"type_alias_declaration":         {Kind: lang.SymbolType, NameField: "name"},
			"enum_declaration":               {Kind: lang.SymbolEnum, NameField: "name"},
			"variable_declarator":            {Kind: lang.SymbolVariable, NameField: "name", KindFunc: variableKind},
		},
		Wrappers:       []string{"export_statement", "lexical_declaration", "variable_declaration"},
		ExportWrappers: []string{"export_statement"},
		Containers:     []string{"statement_block", "program"},
		Comments:       []string{"comment"},
		Calls:          []string{"call_expression"},
		CallFunction:   "function",
		CallArguments:  "arguments",
		Separators:     []string{".", "?."},
	}
	return p
}

func grammarFor(path string) *sitter.Language {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tsx":
		return tsx.GetLanguage()
	case ".js", ".jsx", ".mjs", ".cjs":
		return javascript.GetLanguage()
	default:
		return typescript.GetLanguage()
	}
}

func variableKind(n *sitter.Node, content []byte) lang.SymbolKind {
	if v := n.ChildByFieldName("value"); v != nil {
		switch v.Type() {
		case "arrow_function", "function_expression", "function":
			return lang.SymbolFunction
		}
	}
	if parent := n.Parent(); parent != nil && parent.ChildCount() > 0 && parent.Child(0).Type() == "const" {
		return lang.SymbolConstant
	}
	return lang.SymbolVariable
}

// ID implements lang.Plugin.
func (p *Plugin) ID() string { return ID }

// Extensions implements lang.Plugin.
func (p *Plugin) Extensions() []string { return append([]string(nil), extensions...) }

// ManifestName implements lang.Plugin.
func (p *Plugin) ManifestName() string { return "package.json" }

var tsAssignments = map[string]string{
	"assignment_expression":           "left",
	"augmented_assignment_expression": "left",
	"update_expression":               "argument",
}

// LocalDeclaration implements lang.ASTOperator.
//
// The target must be the only declarator of a const, let or var statement
// with an initializer. Module-level declarations qualify unless exported.
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
		declarator := ident.Parent()
		if declarator == nil || declarator.Type() != "variable_declarator" {
			return lang.ErrNotLocal
		}
		name := declarator.ChildByFieldName("name")
		value := declarator.ChildByFieldName("value")
		if name == nil || value == nil || name.Type() != "identifier" || name.StartByte() != ident.StartByte() {
			return lang.ErrNotLocal
		}
		stmt := declarator.Parent()
		if stmt == nil || len(lang.NamedChildren(stmt, "comment")) != 1 {
			return lang.ErrNotLocal
		}
		scope := stmt.Parent()
		if scope == nil || scope.Type() == "export_statement" {
			return lang.ErrNotLocal
		}
		decl = &lang.LocalDecl{
			Name:           lang.Text(ident, content),
			NameRange:      lang.NodeRange(ident),
			Value:          lang.Text(value, content),
			StatementRange: lang.NodeStatementSpan(content, li, stmt),
			Scope:          lang.NodeRange(scope),
			Constant:       stmt.Child(0) != nil && stmt.Child(0).Type() == "const",
			Reassigned:     lang.Reassigned(scope, content, stmt.EndByte(), lang.Text(ident, content), tsAssignments),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return decl, nil
}

// declStatement returns the statement node holding a declaration: the
// lexical declaration for a declarator, the node itself otherwise.
func declStatement(n *sitter.Node) *sitter.Node {
	if n.Type() == "variable_declarator" {
		if parent := n.Parent(); parent != nil {
			return parent
		}
	}
	return n
}

// Transform implements lang.ASTOperator.
//
// Already-satisfied transforms return no edits.
func (p *Plugin) Transform(ctx context.Context, path string, content []byte, sym lang.Symbol, kind lang.TransformKind) ([]plan.TextEdit, error) {
	var edits []plan.TextEdit
	err := p.WithTree(ctx, path, content, func(root *sitter.Node) error {
		node := p.FindDeclNode(root, sym)
		if node == nil {
			return lang.ErrNoDeclaration
		}
		li := plan.NewLineIndex(content)

		switch kind {
		case lang.TransformAddExport:
			if sym.Parent != "" {
				return lang.ErrUnsupportedTransform
			}
			stmt := declStatement(node)
			if parent := stmt.Parent(); parent != nil && parent.Type() == "export_statement" {
				return nil
			}
			at := lang.NodeRange(stmt).Start
			edits = append(edits, plan.TextEdit{
				FilePath: path, Kind: plan.EditInsert,
				Range: plan.Range{Start: at, End: at}, NewText: "export ",
				Description: "export " + sym.Name,
			})

		case lang.TransformRemoveExport:
			stmt := declStatement(node)
			exp := stmt.Parent()
			if exp == nil || exp.Type() != "export_statement" {
				return nil
			}
			keyword := lang.FirstChildOfType(exp, "export")
			if keyword == nil {
				return nil
			}
			edits = append(edits, plan.TextEdit{
				FilePath: path, Kind: plan.EditDelete,
				Range:       li.RangeOf(int(keyword.StartByte()), int(stmt.StartByte())),
				Description: "unexport " + sym.Name,
			})

		case lang.TransformToAsync:
			fn := node
			if node.Type() == "variable_declarator" {
				fn = node.ChildByFieldName("value")
			}
			if fn == nil {
				return lang.ErrUnsupportedTransform
			}
			switch fn.Type() {
			case "function_declaration", "generator_function_declaration", "arrow_function",
				"function_expression", "function", "method_definition":
			default:
				return lang.ErrUnsupportedTransform
			}
			if lang.FirstChildOfType(fn, "async") != nil {
				return nil
			}
			insertAt := fn.StartByte()
			if fn.Type() == "method_definition" {
				if lang.FirstChildOfType(fn, "get", "set") != nil {
					return lang.ErrUnsupportedTransform
				}
				insertAt = fn.ChildByFieldName("name").StartByte()
			}
			at := li.PositionAt(int(insertAt))
			edits = append(edits, plan.TextEdit{
				FilePath: path, Kind: plan.EditInsert,
				Range: plan.Range{Start: at, End: at}, NewText: "async ",
				Description: "make " + sym.Name + " async",
			})
			if rt := fn.ChildByFieldName("return_type"); rt != nil {
				if inner := lang.NamedChildren(rt, "comment"); len(inner) == 1 {
					text := lang.Text(inner[0], content)
					if !strings.HasPrefix(text, "Promise<") {
						edits = append(edits, plan.TextEdit{
							FilePath: path, Kind: plan.EditReplace,
							Range:       lang.NodeRange(inner[0]),
							NewText:     "Promise<" + text + ">",
							Description: "wrap return type of " + sym.Name,
						})
					}
				}
			}

		default:
			return lang.ErrUnsupportedTransform
		}
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

func (templates) IndentUnit() string { return "  " }

func (templates) FunctionDecl(name, body string) string {
	return "function " + name + "() {\n" + body + "\n}\n"
}

func (templates) CallStatement(name string) string { return name + "();" }

func (templates) VariableDecl(name, expr string, constant bool) string {
	if constant {
		return "const " + name + " = " + expr + ";"
	}
	return "let " + name + " = " + expr + ";"
}

var (
	_ lang.Plugin            = (*Plugin)(nil)
	_ lang.ReferenceRewriter = (*Plugin)(nil)
	_ lang.ManifestEditor    = (*Plugin)(nil)
	_ lang.WorkspaceEditor   = (*Plugin)(nil)
	_ lang.ASTOperator       = (*Plugin)(nil)
)
