// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package rust is the Rust language plugin: use and mod declarations,
// Cargo.toml manifests and workspaces, and AST operations.
package rust

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/spf13/afero"

	"github.com/AleutianAI/AleutianRefactor/services/refactor/lang"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/plan"
)

// ID is the language identifier.
const ID = "rust"

// Plugin implements lang.Plugin for Rust.
type Plugin struct {
	lang.TreeAST
	fs afero.Fs
}

// New creates the plugin. fs is read to locate crates and module files.
func New(fs afero.Fs) *Plugin {
	p := &Plugin{fs: fs}
	p.G = lang.Grammar{
		Language:    func(string) *sitter.Language { return rust.GetLanguage() },
		Identifiers: []string{"identifier", "type_identifier", "field_identifier"},
		Declarations: map[string]lang.DeclSpec{
			"function_item":           {Kind: lang.SymbolFunction, NameField: "name", ParamsField: "parameters", KindFunc: functionKind, ParentFunc: implType},
			"function_signature_item": {Kind: lang.SymbolMethod, NameField: "name", ParamsField: "parameters", ParentFunc: implType},
			"struct_item":             {Kind: lang.SymbolType, NameField: "name"},
			"union_item":              {Kind: lang.SymbolType, NameField: "name"},
			"enum_item":               {Kind: lang.SymbolEnum, NameField: "name"},
			"trait_item":              {Kind: lang.SymbolInterface, NameField: "name", Descend: true},
			"type_item":               {Kind: lang.SymbolType, NameField: "name"},
			"const_item":              {Kind: lang.SymbolConstant, NameField: "name"},
			"static_item":             {Kind: lang.SymbolVariable, NameField: "name"},
			"mod_item":                {Kind: lang.SymbolModule, NameField: "name", Descend: true},
		},
		Containers:    []string{"block", "declaration_list", "source_file"},
		Comments:      []string{"line_comment", "block_comment"},
		Calls:         []string{"call_expression"},
		CallFunction:  "function",
		CallArguments: "arguments",
		Separators:    []string{"::", "."},
		Exported: func(_ string, n *sitter.Node, _ []byte) bool {
			return lang.FirstChildOfType(n, "visibility_modifier") != nil
		},
	}
	return p
}

func functionKind(n *sitter.Node, _ []byte) lang.SymbolKind {
	for cur := n.Parent(); cur != nil; cur = cur.Parent() {
		switch cur.Type() {
		case "impl_item", "trait_item":
			return lang.SymbolMethod
		case "function_item", "source_file", "mod_item":
			return lang.SymbolFunction
		}
	}
	return lang.SymbolFunction
}

// implType names the type an impl block's function belongs to, without
// generic arguments.
func implType(n *sitter.Node, content []byte) string {
	for cur := n.Parent(); cur != nil; cur = cur.Parent() {
		switch cur.Type() {
		case "impl_item":
			t := lang.Text(cur.ChildByFieldName("type"), content)
			if i := strings.IndexByte(t, '<'); i >= 0 {
				t = t[:i]
			}
			return strings.TrimSpace(t)
		case "function_item", "source_file":
			return ""
		}
	}
	return ""
}

// ID implements lang.Plugin.
func (p *Plugin) ID() string { return ID }

// Extensions implements lang.Plugin.
func (p *Plugin) Extensions() []string { return []string{".rs"} }

// ManifestName implements lang.Plugin.
func (p *Plugin) ManifestName() string { return "Cargo.toml" }

var rustAssignments = map[string]string{
	"assignment_expression":    "left",
	"compound_assignment_expr": "left",
}

// LocalDeclaration implements lang.ASTOperator for `let name = value;`
// inside a block.
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
		let := ident.Parent()
		if let == nil || let.Type() != "let_declaration" {
			return lang.ErrNotLocal
		}
		pattern, value := let.ChildByFieldName("pattern"), let.ChildByFieldName("value")
		if pattern == nil || value == nil || pattern.StartByte() != ident.StartByte() || pattern.Type() != "identifier" {
			return lang.ErrNotLocal
		}
		scope := let.Parent()
		if scope == nil || scope.Type() != "block" {
			return lang.ErrNotLocal
		}
		name := lang.Text(ident, content)
		decl = &lang.LocalDecl{
			Name:           name,
			NameRange:      lang.NodeRange(ident),
			Value:          lang.Text(value, content),
			StatementRange: lang.NodeStatementSpan(content, li, let),
			Scope:          lang.NodeRange(scope),
			Constant:       lang.FirstChildOfType(let, "mutable_specifier") == nil,
			Reassigned:     lang.Reassigned(scope, content, let.EndByte(), name, rustAssignments),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return decl, nil
}

// Transform implements lang.ASTOperator. Visibility maps to `pub`.
func (p *Plugin) Transform(ctx context.Context, path string, content []byte, sym lang.Symbol, kind lang.TransformKind) ([]plan.TextEdit, error) {
	var edits []plan.TextEdit
	err := p.WithTree(ctx, path, content, func(root *sitter.Node) error {
		node := p.FindDeclNode(root, sym)
		if node == nil {
			return lang.ErrNoDeclaration
		}
		vis := lang.FirstChildOfType(node, "visibility_modifier")
		switch kind {
		case lang.TransformAddExport:
			if vis != nil {
				return nil
			}
			at := lang.NodeRange(node).Start
			edits = append(edits, plan.TextEdit{
				FilePath:    path,
				Kind:        plan.EditInsert,
				Range:       plan.Range{Start: at, End: at},
				NewText:     "pub ",
				Description: "make " + sym.Name + " public",
			})
		case lang.TransformRemoveExport:
			if vis == nil {
				return nil
			}
			end := int(vis.EndByte())
			for end < len(content) && content[end] == ' ' {
				end++
			}
			li := plan.NewLineIndex(content)
			edits = append(edits, plan.TextEdit{
				FilePath:    path,
				Kind:        plan.EditDelete,
				Range:       li.RangeOf(int(vis.StartByte()), end),
				Description: "make " + sym.Name + " private",
			})
		case lang.TransformToAsync:
			if node.Type() != "function_item" {
				return lang.ErrUnsupportedTransform
			}
			at, ok := asyncInsertion(node, content)
			if !ok {
				return nil
			}
			edits = append(edits, plan.TextEdit{
				FilePath:    path,
				Kind:        plan.EditInsert,
				Range:       plan.Range{Start: at, End: at},
				NewText:     "async ",
				Description: "make " + sym.Name + " async",
			})
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

// asyncInsertion finds where `async` goes: after `const`, before
// `unsafe`, `extern` and `fn`. ok is false when already async.
func asyncInsertion(fn *sitter.Node, content []byte) (plan.Position, bool) {
	if mods := lang.FirstChildOfType(fn, "function_modifiers"); mods != nil {
		if strings.Contains(lang.Text(mods, content), "async") {
			return plan.Position{}, false
		}
		for _, c := range lang.Children(mods) {
			if c.Type() != "const" && c.Type() != "default" {
				return lang.NodeRange(c).Start, true
			}
		}
	}
	if kw := lang.FirstChildOfType(fn, "fn"); kw != nil {
		return lang.NodeRange(kw).Start, true
	}
	return plan.Position{}, false
}

// Templates implements lang.ASTOperator.
func (p *Plugin) Templates() lang.Templates { return templates{} }

// FilePreamble implements lang.ASTOperator.
func (p *Plugin) FilePreamble(context.Context, string) string { return "" }

type templates struct{}

func (templates) IndentUnit() string { return "    " }

func (templates) FunctionDecl(name, body string) string {
	return "fn " + name + "() {\n" + body + "\n}\n"
}

func (templates) CallStatement(name string) string { return name + "();" }

func (templates) VariableDecl(name, expr string, constant bool) string {
	if constant {
		return "let " + name + " = " + expr + ";"
	}
	return "let mut " + name + " = " + expr + ";"
}

var (
	_ lang.Plugin            = (*Plugin)(nil)
	_ lang.ReferenceRewriter = (*Plugin)(nil)
	_ lang.ManifestEditor    = (*Plugin)(nil)
	_ lang.WorkspaceEditor   = (*Plugin)(nil)
	_ lang.ASTOperator       = (*Plugin)(nil)
	_ lang.ModuleDeclarer    = (*Plugin)(nil)
)
