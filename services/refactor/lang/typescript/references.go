// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package typescript

import (
	"context"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/spf13/afero"

	"github.com/AleutianAI/AleutianRefactor/services/refactor/lang"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/plan"
)

// probeExtensions are tried, in order, for extensionless specifiers.
var probeExtensions = []string{".ts", ".tsx", ".d.ts", ".mts", ".cts", ".js", ".jsx", ".mjs", ".cjs", ".json"}

// ParseReferences implements lang.ReferenceRewriter.
func (p *Plugin) ParseReferences(ctx context.Context, path string, content []byte) ([]lang.Reference, error) {
	var refs []lang.Reference
	err := p.WithTree(ctx, path, content, func(root *sitter.Node) error {
		li := plan.NewLineIndex(content)
		lang.Walk(root, func(n *sitter.Node) bool {
			switch n.Type() {
			case "comment":
				return false
			case "import_statement":
				if ref, ok := importRef(n, content, li); ok {
					refs = append(refs, ref)
				}
				return false
			case "export_statement":
				if n.ChildByFieldName("source") != nil {
					if ref, ok := reexportRef(n, content, li); ok {
						refs = append(refs, ref)
					}
					return false
				}
			case "call_expression":
				if ref, ok := callRef(n, content, li); ok {
					refs = append(refs, ref)
				}
			}
			return true
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return refs, nil
}

func stringSpecifier(n *sitter.Node, content []byte, li *plan.LineIndex) (string, plan.Range, bool) {
	if n == nil || n.Type() != "string" {
		return "", plan.Range{}, false
	}
	return lang.Unquote(lang.Text(n, content)), lang.InnerRange(li, n, 1), true
}

func importRef(n *sitter.Node, content []byte, li *plan.LineIndex) (lang.Reference, bool) {
	spec, rng, ok := stringSpecifier(n.ChildByFieldName("source"), content, li)
	if !ok {
		return lang.Reference{}, false
	}
	ref := lang.Reference{
		Kind:           lang.RefImport,
		Specifier:      spec,
		SpecifierRange: rng,
		StatementRange: lang.NodeStatementSpan(content, li, n),
	}
	clause := lang.FirstChildOfType(n, "import_clause")
	if clause == nil {
		ref.SideEffect = true
		return ref, true
	}
	for _, c := range lang.NamedChildren(clause) {
		switch c.Type() {
		case "identifier":
			ref.Namespace = lang.Text(c, content)
		case "namespace_import":
			if id := lang.FirstChildOfType(c, "identifier"); id != nil {
				ref.Namespace = lang.Text(id, content)
			}
		case "named_imports":
			for _, s := range lang.NamedChildren(c, "comment") {
				if s.Type() == "import_specifier" {
					ref.Bindings = append(ref.Bindings, specifierBinding(s, content))
				}
			}
		}
	}
	return ref, true
}

func reexportRef(n *sitter.Node, content []byte, li *plan.LineIndex) (lang.Reference, bool) {
	spec, rng, ok := stringSpecifier(n.ChildByFieldName("source"), content, li)
	if !ok {
		return lang.Reference{}, false
	}
	ref := lang.Reference{
		Kind:           lang.RefReexport,
		Specifier:      spec,
		SpecifierRange: rng,
		StatementRange: lang.NodeStatementSpan(content, li, n),
	}
	if clause := lang.FirstChildOfType(n, "export_clause"); clause != nil {
		for _, s := range lang.NamedChildren(clause, "comment") {
			if s.Type() == "export_specifier" {
				ref.Bindings = append(ref.Bindings, specifierBinding(s, content))
			}
		}
		return ref, true
	}
	if ns := lang.FirstChildOfType(n, "namespace_export"); ns != nil {
		if id := lang.FirstChildOfType(ns, "identifier"); id != nil {
			ref.Namespace = lang.Text(id, content)
		}
		return ref, true
	}
	ref.Wildcard = true
	return ref, true
}

func specifierBinding(s *sitter.Node, content []byte) lang.Binding {
	name := s.ChildByFieldName("name")
	b := lang.Binding{Name: lang.Text(name, content), NameRange: lang.NodeRange(name)}
	if alias := s.ChildByFieldName("alias"); alias != nil {
		b.Alias = lang.Text(alias, content)
	}
	return b
}

func callRef(n *sitter.Node, content []byte, li *plan.LineIndex) (lang.Reference, bool) {
	fn := n.ChildByFieldName("function")
	args := n.ChildByFieldName("arguments")
	if fn == nil || args == nil {
		return lang.Reference{}, false
	}
	var kind lang.ReferenceKind
	switch {
	case fn.Type() == "import":
		kind = lang.RefDynamicImport
	case fn.Type() == "identifier" && lang.Text(fn, content) == "require":
		kind = lang.RefRequire
	default:
		return lang.Reference{}, false
	}
	list := lang.NamedChildren(args, "comment")
	if len(list) != 1 {
		return lang.Reference{}, false
	}
	spec, rng, ok := stringSpecifier(list[0], content, li)
	if !ok {
		return lang.Reference{}, false
	}
	ref := lang.Reference{
		Kind:           kind,
		Specifier:      spec,
		SpecifierRange: rng,
		StatementRange: lang.NodeStatementSpan(content, li, enclosingStatement(n)),
	}
	// const x = require("...") binds x as a namespace.
	if d := n.Parent(); d != nil && d.Type() == "variable_declarator" {
		if name := d.ChildByFieldName("name"); name != nil && name.Type() == "identifier" {
			ref.Namespace = lang.Text(name, content)
		}
	}
	return ref, true
}

func enclosingStatement(n *sitter.Node) *sitter.Node {
	for cur := n; cur != nil; cur = cur.Parent() {
		parent := cur.Parent()
		if parent == nil {
			return cur
		}
		switch parent.Type() {
		case "program", "statement_block":
			return cur
		}
	}
	return n
}

func relative(spec string) bool {
	return spec == "." || spec == ".." || strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../") || strings.HasPrefix(spec, "/")
}

// Resolve implements lang.ReferenceRewriter.
//
// Relative specifiers resolve by probing the exact path, known extensions,
// ".js" written for a ".ts" source, and index files. Bare specifiers
// resolve to workspace package directories.
func (p *Plugin) Resolve(_ context.Context, root, importer string, ref lang.Reference) []string {
	if relative(ref.Specifier) {
		base := filepath.Join(filepath.Dir(importer), filepath.FromSlash(ref.Specifier))
		if strings.HasPrefix(ref.Specifier, "/") {
			base = filepath.Clean(filepath.FromSlash(ref.Specifier))
		}
		if f, ok := p.probe(base); ok {
			return []string{f}
		}
		return nil
	}
	pkgs := p.workspacePackages(root)
	for name, dir := range pkgs {
		switch {
		case ref.Specifier == name:
			return []string{dir}
		case strings.HasPrefix(ref.Specifier, name+"/"):
			sub := filepath.Join(dir, filepath.FromSlash(strings.TrimPrefix(ref.Specifier, name+"/")))
			if f, ok := p.probe(sub); ok {
				return []string{f}
			}
			return []string{sub}
		}
	}
	return nil
}

func (p *Plugin) isFile(path string) bool {
	info, err := p.fs.Stat(path)
	return err == nil && !info.IsDir()
}

func (p *Plugin) probe(base string) (string, bool) {
	if p.isFile(base) {
		return base, true
	}
	for _, ext := range probeExtensions {
		if p.isFile(base + ext) {
			return base + ext, true
		}
	}
	// ESM sources import "./x.js" for x.ts.
	if ext := filepath.Ext(base); ext == ".js" || ext == ".mjs" || ext == ".cjs" || ext == ".jsx" {
		stem := strings.TrimSuffix(base, ext)
		for _, alt := range []string{".ts", ".tsx", ".mts", ".cts"} {
			if p.isFile(stem + alt) {
				return stem + alt, true
			}
		}
	}
	for _, ext := range probeExtensions {
		index := filepath.Join(base, "index"+ext)
		if p.isFile(index) {
			return index, true
		}
	}
	return "", false
}

// workspacePackages maps package names to directories for the packages
// declared by the root package.json "workspaces" field.
func (p *Plugin) workspacePackages(root string) map[string]string {
	out := make(map[string]string)
	data, err := afero.ReadFile(p.fs, filepath.Join(root, "package.json"))
	if err != nil {
		return out
	}
	patterns, err := workspacePatterns(data)
	if err != nil {
		return out
	}
	for _, pattern := range patterns {
		matches, err := afero.Glob(p.fs, filepath.Join(root, filepath.FromSlash(pattern)))
		if err != nil {
			continue
		}
		for _, dir := range matches {
			manifest, err := afero.ReadFile(p.fs, filepath.Join(dir, "package.json"))
			if err != nil {
				continue
			}
			if name := packageName(manifest); name != "" {
				out[name] = dir
			}
		}
	}
	return out
}

// RewriteForRename implements lang.ReferenceRewriter. Import and re-export
// specifiers naming the old symbol are renamed when the reference resolves
// to the definition file.
func (p *Plugin) RewriteForRename(ctx context.Context, path string, content []byte, r lang.Rename) ([]plan.TextEdit, error) {
	refs, err := p.ParseReferences(ctx, path, content)
	if err != nil {
		return nil, err
	}
	var edits []plan.TextEdit
	for _, ref := range refs {
		if !p.resolvesTo(ctx, r.Root, path, ref, r.DefinitionPath) {
			continue
		}
		for _, b := range ref.Bindings {
			if b.Name != r.OldName {
				continue
			}
			edits = append(edits, plan.TextEdit{
				FilePath:    path,
				Kind:        plan.EditReplace,
				Range:       b.NameRange,
				NewText:     r.NewName,
				Description: "rename import " + r.OldName,
			})
		}
	}
	return edits, nil
}

func (p *Plugin) resolvesTo(ctx context.Context, root, importer string, ref lang.Reference, target string) bool {
	for _, t := range p.Resolve(ctx, root, importer, ref) {
		if t == target {
			return true
		}
	}
	return false
}

// RewriteForMove implements lang.ReferenceRewriter.
//
// # Description
//
// Every relative reference is resolved against the pre-move tree. When the
// importer or its target moves, a new specifier is computed from the
// importer's new directory to the target's new location, keeping the
// original's extension style, index style and "./" prefix. Bare
// specifiers change only when the move renames a package.
func (p *Plugin) RewriteForMove(ctx context.Context, path string, content []byte, m lang.Move) ([]plan.TextEdit, error) {
	refs, err := p.ParseReferences(ctx, path, content)
	if err != nil {
		return nil, err
	}
	newImporter := m.Locate(path)

	var edits []plan.TextEdit
	for _, ref := range refs {
		newSpec, ok := p.moveSpecifier(ctx, m, path, newImporter, ref)
		if !ok || newSpec == ref.Specifier {
			continue
		}
		edits = append(edits, plan.TextEdit{
			FilePath:    path,
			Kind:        plan.EditReplace,
			Range:       ref.SpecifierRange,
			NewText:     newSpec,
			Description: "update import " + ref.Specifier,
		})
	}
	return edits, nil
}

func (p *Plugin) moveSpecifier(ctx context.Context, m lang.Move, importer, newImporter string, ref lang.Reference) (string, bool) {
	if !relative(ref.Specifier) {
		if m.OldPackage != "" && (ref.Specifier == m.OldPackage || strings.HasPrefix(ref.Specifier, m.OldPackage+"/")) {
			return m.NewPackage + strings.TrimPrefix(ref.Specifier, m.OldPackage), true
		}
		return "", false
	}
	targets := p.Resolve(ctx, m.Root, importer, ref)
	if len(targets) == 0 {
		return "", false
	}
	target := targets[0]
	newTarget := m.Locate(target)
	if newTarget == target && newImporter == importer {
		return "", false
	}
	return Specifier(ref.Specifier, target, filepath.Dir(newImporter), newTarget), true
}

// Specifier renders a relative specifier from fromDir to newTarget in the
// style of the original specifier, which resolved to oldTarget.
func Specifier(original, oldTarget, fromDir, newTarget string) string {
	dest := newTarget
	oldBase := filepath.Base(oldTarget)
	oldStem := stripExt(oldBase)
	written := filepath.Base(filepath.FromSlash(original))

	switch {
	case oldStem == "index" && written != "index" && stripExt(written) != "index":
		// Directory import: keep pointing at the directory while the target
		// is still an index file.
		if stripExt(filepath.Base(newTarget)) == "index" {
			dest = filepath.Dir(newTarget)
		} else {
			dest = stripExt(newTarget)
		}
	case written == oldBase:
		// Explicit extension kept as written.
	case filepath.Ext(written) != "" && stripExt(written) == oldStem:
		// Written extension differs from the source file (".js" for ".ts").
		dest = stripExt(newTarget) + filepath.Ext(written)
	default:
		dest = stripExt(newTarget)
	}

	rel, err := filepath.Rel(fromDir, dest)
	if err != nil {
		return original
	}
	rel = filepath.ToSlash(rel)
	if rel == "." {
		return "."
	}
	if !strings.HasPrefix(rel, "../") && rel != ".." {
		rel = "./" + rel
	}
	return rel
}

func stripExt(name string) string {
	if strings.HasSuffix(name, ".d.ts") {
		return strings.TrimSuffix(name, ".d.ts")
	}
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// HasReference implements lang.ReferenceRewriter.
func (p *Plugin) HasReference(ctx context.Context, path string, content []byte, specifier string) (bool, error) {
	refs, err := p.ParseReferences(ctx, path, content)
	if err != nil {
		return false, err
	}
	for _, r := range refs {
		if r.Specifier == specifier {
			return true, nil
		}
	}
	return false, nil
}

// AddReference implements lang.ReferenceRewriter. The new side-effect
// import follows the last import statement and copies its quote style and
// semicolon use.
func (p *Plugin) AddReference(ctx context.Context, path string, content []byte, specifier string) (plan.TextEdit, error) {
	var edit plan.TextEdit
	err := p.WithTree(ctx, path, content, func(root *sitter.Node) error {
		li := plan.NewLineIndex(content)
		var last *sitter.Node
		for _, c := range lang.NamedChildren(root) {
			if c.Type() == "import_statement" {
				last = c
			}
		}
		quote, semi := `"`, ";"
		line := 0
		if last != nil {
			text := lang.Text(last, content)
			if !strings.HasSuffix(text, ";") {
				semi = ""
			}
			if src := last.ChildByFieldName("source"); src != nil && strings.HasPrefix(lang.Text(src, content), "'") {
				quote = "'"
			}
			line = li.PositionAt(int(last.EndByte())).Line + 1
		}
		at := plan.Position{Line: line}
		if line >= li.LineCount() {
			at = li.PositionAt(len(content))
		}
		edit = plan.TextEdit{
			FilePath:    path,
			Kind:        plan.EditInsert,
			Range:       plan.Range{Start: at, End: at},
			NewText:     "import " + quote + specifier + quote + semi + "\n",
			Description: "import " + specifier,
		}
		return nil
	})
	return edit, err
}

// RemoveReference implements lang.ReferenceRewriter.
func (p *Plugin) RemoveReference(ctx context.Context, path string, content []byte, specifier string) (plan.TextEdit, bool, error) {
	refs, err := p.ParseReferences(ctx, path, content)
	if err != nil {
		return plan.TextEdit{}, false, err
	}
	for _, r := range refs {
		if r.Specifier == specifier {
			return plan.TextEdit{
				FilePath:    path,
				Kind:        plan.EditDelete,
				Range:       r.StatementRange,
				Description: "remove import " + specifier,
			}, true, nil
		}
	}
	return plan.TextEdit{}, false, nil
}
