// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rust

import (
	"context"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/spf13/afero"

	"github.com/AleutianAI/AleutianRefactor/services/refactor/lang"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/plan"
)

// modPrefix marks module declaration specifiers for Add/Has/Remove.
const modPrefix = "mod "

// ParseReferences implements lang.ReferenceRewriter.
//
// `use` declarations become RefUse references whose Specifier is the path
// as written; grouped imports keep the shared path. `mod name;` becomes a
// RefModuleDecl with Specifier name.
func (p *Plugin) ParseReferences(ctx context.Context, path string, content []byte) ([]lang.Reference, error) {
	var refs []lang.Reference
	err := p.WithTree(ctx, path, content, func(root *sitter.Node) error {
		li := plan.NewLineIndex(content)
		lang.Walk(root, func(n *sitter.Node) bool {
			switch n.Type() {
			case "use_declaration":
				if ref, ok := useRef(n, content, li); ok {
					refs = append(refs, ref)
				}
				return false
			case "mod_item":
				if n.ChildByFieldName("body") != nil {
					return true
				}
				name := n.ChildByFieldName("name")
				if name == nil {
					return false
				}
				refs = append(refs, lang.Reference{
					Kind:           lang.RefModuleDecl,
					Specifier:      lang.Text(name, content),
					SpecifierRange: lang.NodeRange(name),
					StatementRange: lang.NodeStatementSpan(content, li, n),
					Namespace:      lang.Text(name, content),
				})
				return false
			case "line_comment", "block_comment", "string_literal":
				return false
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

func useRef(n *sitter.Node, content []byte, li *plan.LineIndex) (lang.Reference, bool) {
	arg := n.ChildByFieldName("argument")
	if arg == nil {
		return lang.Reference{}, false
	}
	ref := lang.Reference{
		Kind:           lang.RefUse,
		StatementRange: lang.NodeStatementSpan(content, li, n),
	}
	switch arg.Type() {
	case "scoped_identifier", "identifier", "crate", "self", "super":
		ref.Specifier = lang.Text(arg, content)
		ref.SpecifierRange = lang.NodeRange(arg)
		if name := lastSegment(arg); name != nil {
			ref.Bindings = []lang.Binding{{Name: lang.Text(name, content), NameRange: lang.NodeRange(name)}}
		}
	case "use_as_clause":
		path := arg.ChildByFieldName("path")
		ref.Specifier = lang.Text(path, content)
		ref.SpecifierRange = lang.NodeRange(path)
		if name := lastSegment(path); name != nil {
			ref.Bindings = []lang.Binding{{
				Name:      lang.Text(name, content),
				Alias:     lang.Text(arg.ChildByFieldName("alias"), content),
				NameRange: lang.NodeRange(name),
			}}
		}
	case "use_wildcard":
		ref.Wildcard = true
		if path := firstNamed(arg); path != nil {
			ref.Specifier = lang.Text(path, content)
			ref.SpecifierRange = lang.NodeRange(path)
		}
	case "scoped_use_list":
		path := arg.ChildByFieldName("path")
		if path != nil {
			ref.Specifier = lang.Text(path, content)
			ref.SpecifierRange = lang.NodeRange(path)
		}
		if list := arg.ChildByFieldName("list"); list != nil {
			ref.Bindings, ref.Namespace, ref.Wildcard = listBindings(list, content)
		}
	case "use_list":
		ref.Bindings, ref.Namespace, ref.Wildcard = listBindings(arg, content)
	default:
		return lang.Reference{}, false
	}
	return ref, ref.Specifier != "" || len(ref.Bindings) > 0
}

// lastSegment returns the final name of a path node.
func lastSegment(n *sitter.Node) *sitter.Node {
	if n == nil {
		return nil
	}
	if n.Type() == "scoped_identifier" {
		return n.ChildByFieldName("name")
	}
	if n.Type() == "identifier" {
		return n
	}
	return nil
}

func firstNamed(n *sitter.Node) *sitter.Node {
	if n.NamedChildCount() == 0 {
		return nil
	}
	return n.NamedChild(0)
}

func listBindings(list *sitter.Node, content []byte) ([]lang.Binding, string, bool) {
	var out []lang.Binding
	ns, wildcard := "", false
	for _, item := range lang.NamedChildren(list, "line_comment", "block_comment") {
		switch item.Type() {
		case "identifier", "scoped_identifier":
			if name := lastSegment(item); name != nil {
				out = append(out, lang.Binding{Name: lang.Text(name, content), NameRange: lang.NodeRange(name)})
			}
		case "use_as_clause":
			if name := lastSegment(item.ChildByFieldName("path")); name != nil {
				out = append(out, lang.Binding{
					Name:      lang.Text(name, content),
					Alias:     lang.Text(item.ChildByFieldName("alias"), content),
					NameRange: lang.NodeRange(name),
				})
			}
		case "self":
			ns = "self"
		case "use_wildcard":
			wildcard = true
		}
	}
	return out, ns, wildcard
}

// crateInfo is one Cargo package with a library or binary root.
type crateInfo struct {
	Dir  string
	Name string
	Src  string
	Root string
}

// ident is the name a crate is referred to by in paths.
func ident(name string) string { return strings.ReplaceAll(name, "-", "_") }

func (p *Plugin) loadCrate(dir string) (crateInfo, bool) {
	data, err := afero.ReadFile(p.fs, filepath.Join(dir, "Cargo.toml"))
	if err != nil {
		return crateInfo{}, false
	}
	m, err := parseCargo(dir, data)
	if err != nil || m.Package.Name == "" {
		return crateInfo{}, false
	}
	c := crateInfo{Dir: dir, Name: m.Package.Name, Src: filepath.Join(dir, "src")}
	for _, root := range []string{"lib.rs", "main.rs"} {
		if ok, _ := afero.Exists(p.fs, filepath.Join(c.Src, root)); ok {
			c.Root = filepath.Join(c.Src, root)
			break
		}
	}
	if c.Root == "" {
		c.Root = filepath.Join(c.Src, "lib.rs")
	}
	return c, true
}

// crateFor finds the crate whose src directory contains file. file need
// not exist.
func (p *Plugin) crateFor(file string) (crateInfo, bool) {
	for dir := filepath.Dir(file); ; dir = filepath.Dir(dir) {
		if c, ok := p.loadCrate(dir); ok {
			return c, within(file, c.Src)
		}
		if parent := filepath.Dir(dir); parent == dir {
			return crateInfo{}, false
		}
	}
}

// workspaceCrates maps crate identifiers to crates declared by the
// workspace at root.
func (p *Plugin) workspaceCrates(root string) map[string]crateInfo {
	out := make(map[string]crateInfo)
	if c, ok := p.loadCrate(root); ok {
		out[ident(c.Name)] = c
	}
	data, err := afero.ReadFile(p.fs, filepath.Join(root, "Cargo.toml"))
	if err != nil {
		return out
	}
	m, err := parseCargo(root, data)
	if err != nil || m.Workspace == nil {
		return out
	}
	for _, pattern := range m.Workspace.Members {
		dirs, err := afero.Glob(p.fs, filepath.Join(root, filepath.FromSlash(pattern)))
		if err != nil {
			continue
		}
		for _, dir := range dirs {
			if c, ok := p.loadCrate(dir); ok {
				out[ident(c.Name)] = c
			}
		}
	}
	return out
}

// modulePath returns the module segments of file within its crate.
func modulePath(c crateInfo, file string) ([]string, bool) {
	if file == c.Root {
		return nil, true
	}
	rel, err := filepath.Rel(c.Src, file)
	if err != nil || strings.HasPrefix(rel, "..") || !strings.HasSuffix(rel, ".rs") {
		return nil, false
	}
	segs := strings.Split(filepath.ToSlash(strings.TrimSuffix(rel, ".rs")), "/")
	if segs[0] == "bin" {
		return nil, false
	}
	if segs[len(segs)-1] == "mod" {
		segs = segs[:len(segs)-1]
	}
	if len(segs) == 1 && (segs[0] == "lib" || segs[0] == "main") {
		return nil, true
	}
	return segs, true
}

// moduleFile finds the file defining module segs.
func (p *Plugin) moduleFile(c crateInfo, segs []string) (string, bool) {
	if len(segs) == 0 {
		return c.Root, true
	}
	base := filepath.Join(append([]string{c.Src}, segs...)...)
	for _, candidate := range []string{base + ".rs", filepath.Join(base, "mod.rs")} {
		if ok, _ := afero.Exists(p.fs, candidate); ok {
			return candidate, true
		}
	}
	return "", false
}

func splitPath(spec string) []string {
	parts := strings.Split(spec, "::")
	for i, s := range parts {
		parts[i] = strings.TrimSpace(s)
	}
	return parts
}

// resolved is a use path mapped onto a module file.
type resolved struct {
	crate crateInfo
	file  string

	// consumed counts the leading path segments naming the module,
	// including the crate, self, or super anchor.
	consumed int
}

// resolvePath maps a use path to the deepest module file it names.
func (p *Plugin) resolvePath(root, importer string, segs []string) (resolved, bool) {
	if len(segs) == 0 {
		return resolved{}, false
	}
	var (
		c    crateInfo
		base []string
		rest []string
		ok   bool
	)
	switch segs[0] {
	case "crate", "self", "super":
		c, ok = p.crateFor(importer)
		if !ok {
			return resolved{}, false
		}
		if segs[0] != "crate" {
			if base, ok = modulePath(c, importer); !ok {
				return resolved{}, false
			}
			base = append([]string(nil), base...)
		}
		i := 0
		if segs[0] == "self" {
			i = 1
		}
		for ; i < len(segs) && segs[i] == "super"; i++ {
			if len(base) == 0 {
				return resolved{}, false
			}
			base = base[:len(base)-1]
		}
		if segs[0] == "crate" {
			i = 1
		}
		rest = segs[i:]
		anchor := i
		return p.deepest(c, base, rest, anchor)
	default:
		c, ok = p.workspaceCrates(root)[segs[0]]
		if !ok {
			return resolved{}, false
		}
		return p.deepest(c, nil, segs[1:], 1)
	}
}

func (p *Plugin) deepest(c crateInfo, base, rest []string, anchor int) (resolved, bool) {
	for k := len(rest); k >= 0; k-- {
		segs := append(append([]string(nil), base...), rest[:k]...)
		if f, ok := p.moduleFile(c, segs); ok {
			return resolved{crate: c, file: f, consumed: anchor + k}, true
		}
	}
	return resolved{}, false
}

// childModule returns the file a `mod name;` in parent declares.
func (p *Plugin) childModule(parent, name string) (string, bool) {
	dir := filepath.Dir(parent)
	switch filepath.Base(parent) {
	case "mod.rs", "lib.rs", "main.rs":
	default:
		dir = filepath.Join(dir, strings.TrimSuffix(filepath.Base(parent), ".rs"))
	}
	for _, candidate := range []string{filepath.Join(dir, name+".rs"), filepath.Join(dir, name, "mod.rs")} {
		if ok, _ := afero.Exists(p.fs, candidate); ok {
			return candidate, true
		}
	}
	return "", false
}

// Resolve implements lang.ReferenceRewriter.
func (p *Plugin) Resolve(_ context.Context, root, importer string, ref lang.Reference) []string {
	if ref.Kind == lang.RefModuleDecl {
		if f, ok := p.childModule(importer, ref.Specifier); ok {
			return []string{f}
		}
		return nil
	}
	r, ok := p.resolvePath(root, importer, splitPath(ref.Specifier))
	if !ok {
		return nil
	}
	out := []string{r.file}
	if !ref.Wildcard && len(ref.Bindings) > 0 && r.consumed < len(splitPath(ref.Specifier)) {
		return out
	}
	for _, b := range ref.Bindings {
		if sub, ok := p.childModule(r.file, b.Name); ok {
			out = append(out, sub)
		}
	}
	return out
}

// RewriteForRename implements lang.ReferenceRewriter.
func (p *Plugin) RewriteForRename(ctx context.Context, path string, content []byte, rn lang.Rename) ([]plan.TextEdit, error) {
	refs, err := p.ParseReferences(ctx, path, content)
	if err != nil {
		return nil, err
	}
	var edits []plan.TextEdit
	for _, ref := range refs {
		if ref.Kind != lang.RefUse {
			continue
		}
		r, ok := p.resolvePath(rn.Root, path, splitPath(ref.Specifier))
		if !ok || r.file != rn.DefinitionPath {
			continue
		}
		for _, b := range ref.Bindings {
			if b.Name != rn.OldName {
				continue
			}
			edits = append(edits, plan.TextEdit{
				FilePath:    path,
				Kind:        plan.EditReplace,
				Range:       b.NameRange,
				NewText:     rn.NewName,
				Description: "rename use " + rn.OldName,
			})
		}
	}
	return edits, nil
}

// RewriteForMove implements lang.ReferenceRewriter.
//
// # Description
//
// Use paths whose module file moves are rewritten to the module's new
// path, anchored at `crate` within one crate or at the crate name across
// crates. Relative paths of a moving file become crate-anchored. A
// `mod name;` whose module leaves this file's module directory is
// removed; the declaration at the destination comes from ModuleParent.
func (p *Plugin) RewriteForMove(ctx context.Context, path string, content []byte, m lang.Move) ([]plan.TextEdit, error) {
	refs, err := p.ParseReferences(ctx, path, content)
	if err != nil {
		return nil, err
	}
	li := plan.NewLineIndex(content)
	newImporter := m.Locate(path)

	var edits []plan.TextEdit
	for _, ref := range refs {
		if ref.Kind == lang.RefModuleDecl {
			if e, ok := p.staleModDecl(path, ref, m); ok {
				edits = append(edits, e)
			}
			continue
		}

		segs := splitPath(ref.Specifier)
		if m.OldPackage != "" && m.NewPackage != "" && segs[0] == ident(m.OldPackage) {
			start, err := li.Offset(ref.SpecifierRange.Start)
			if err != nil {
				continue
			}
			edits = append(edits, plan.TextEdit{
				FilePath:    path,
				Kind:        plan.EditReplace,
				Range:       li.RangeOf(start, start+len(segs[0])),
				NewText:     ident(m.NewPackage),
				Description: "update crate " + segs[0],
			})
			continue
		}

		r, ok := p.resolvePath(m.Root, path, segs)
		if !ok {
			continue
		}
		relative := segs[0] == "self" || segs[0] == "super"
		newFile := m.Locate(r.file)
		if newFile == r.file && !(relative && newImporter != path) {
			continue
		}
		head, ok := p.newModulePath(m, path, r, newFile)
		if !ok {
			continue
		}
		prefix := strings.Join(segs[:r.consumed], "::")
		if !strings.HasPrefix(ref.Specifier, prefix) || head == prefix {
			continue
		}
		start, err := li.Offset(ref.SpecifierRange.Start)
		if err != nil {
			continue
		}
		edits = append(edits, plan.TextEdit{
			FilePath:    path,
			Kind:        plan.EditReplace,
			Range:       li.RangeOf(start, start+len(prefix)),
			NewText:     head,
			Description: "update use " + prefix,
		})
	}
	return edits, nil
}

// movedCrate returns where crate c lives after the move.
func movedCrate(c crateInfo, m lang.Move) crateInfo {
	if !m.IsDir || !within(c.Dir, m.OldPath) {
		return c
	}
	moved := c
	moved.Dir = rebase(c.Dir, m.OldPath, m.NewPath)
	moved.Src = rebase(c.Src, m.OldPath, m.NewPath)
	moved.Root = rebase(c.Root, m.OldPath, m.NewPath)
	return moved
}

// newModulePath renders the path of newFile as seen from the importer's
// new location.
func (p *Plugin) newModulePath(m lang.Move, importer string, r resolved, newFile string) (string, bool) {
	target := movedCrate(r.crate, m)
	if !within(newFile, target.Src) {
		return "", false
	}
	segs, ok := modulePath(target, newFile)
	if !ok {
		return "", false
	}
	head := ident(target.Name)
	if ic, ok := p.crateFor(importer); ok && movedCrate(ic, m).Dir == target.Dir {
		head = "crate"
	}
	return strings.Join(append([]string{head}, segs...), "::"), true
}

// staleModDecl removes `mod name;` when the declared module moves out of
// this file's module directory.
func (p *Plugin) staleModDecl(path string, ref lang.Reference, m lang.Move) (plan.TextEdit, bool) {
	child, ok := p.childModule(path, ref.Specifier)
	if !ok {
		return plan.TextEdit{}, false
	}
	newChild := m.Locate(child)
	if newChild == child {
		return plan.TextEdit{}, false
	}
	newParent := m.Locate(path)
	dir := filepath.Dir(newParent)
	switch filepath.Base(newParent) {
	case "mod.rs", "lib.rs", "main.rs":
	default:
		dir = filepath.Join(dir, strings.TrimSuffix(filepath.Base(newParent), ".rs"))
	}
	if newChild == filepath.Join(dir, ref.Specifier+".rs") || newChild == filepath.Join(dir, ref.Specifier, "mod.rs") {
		return plan.TextEdit{}, false
	}
	return plan.TextEdit{
		FilePath:    path,
		Kind:        plan.EditDelete,
		Range:       ref.StatementRange,
		Description: "remove mod " + ref.Specifier,
	}, true
}

// ModuleParent implements lang.ModuleDeclarer. A parent module without a
// file is reported at its name.rs path.
func (p *Plugin) ModuleParent(_ context.Context, _ string, file string) (string, string, bool) {
	c, ok := p.crateFor(file)
	if !ok {
		return "", "", false
	}
	segs, ok := modulePath(c, file)
	if !ok || len(segs) == 0 {
		return "", "", false
	}
	parent, ok := p.moduleFile(c, segs[:len(segs)-1])
	if !ok {
		parent = filepath.Join(append([]string{c.Src}, segs[:len(segs)-1]...)...) + ".rs"
	}
	return parent, modPrefix + segs[len(segs)-1], true
}

// ModuleFile implements lang.ModuleDeclarer.
func (p *Plugin) ModuleFile(specifiers []string) string {
	var b strings.Builder
	for _, s := range specifiers {
		b.WriteString("pub mod " + strings.TrimPrefix(s, modPrefix) + ";\n")
	}
	return b.String()
}

func matches(ref lang.Reference, specifier string) bool {
	if name, ok := strings.CutPrefix(specifier, modPrefix); ok {
		return ref.Kind == lang.RefModuleDecl && ref.Specifier == name
	}
	return ref.Kind == lang.RefUse && ref.Specifier == specifier
}

// HasReference implements lang.ReferenceRewriter. Specifiers starting with
// "mod " name module declarations.
func (p *Plugin) HasReference(ctx context.Context, path string, content []byte, specifier string) (bool, error) {
	refs, err := p.ParseReferences(ctx, path, content)
	if err != nil {
		return false, err
	}
	for _, r := range refs {
		if matches(r, specifier) {
			return true, nil
		}
	}
	return false, nil
}

// AddReference implements lang.ReferenceRewriter. Module declarations go
// after the last `mod`, uses after the last `use`.
func (p *Plugin) AddReference(ctx context.Context, path string, content []byte, specifier string) (plan.TextEdit, error) {
	var edit plan.TextEdit
	err := p.WithTree(ctx, path, content, func(root *sitter.Node) error {
		li := plan.NewLineIndex(content)
		name, isMod := strings.CutPrefix(specifier, modPrefix)
		text := "use " + specifier + ";\n"
		if isMod {
			text = "mod " + name + ";\n"
		}
		line, lastUse, lastMod := 0, -1, -1
		for _, c := range lang.NamedChildren(root) {
			switch {
			case c.Type() == "use_declaration":
				lastUse = int(c.EndPoint().Row) + 1
			case c.Type() == "mod_item" && c.ChildByFieldName("body") == nil:
				lastMod = int(c.EndPoint().Row) + 1
			case c.Type() == "inner_attribute_item" || c.Type() == "line_comment" && lastUse < 0 && lastMod < 0:
				line = int(c.EndPoint().Row) + 1
			}
		}
		switch {
		case isMod && lastMod >= 0:
			line = lastMod
		case !isMod && lastUse >= 0:
			line = lastUse
		case lastUse >= 0:
			line = lastUse
		case lastMod >= 0:
			line = lastMod
		}
		at := plan.Position{Line: line}
		if line >= li.LineCount() {
			at = li.PositionAt(len(content))
		}
		edit = plan.TextEdit{
			FilePath:    path,
			Kind:        plan.EditInsert,
			Range:       plan.Range{Start: at, End: at},
			NewText:     text,
			Description: "add " + strings.TrimSuffix(text, ";\n"),
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
		if matches(r, specifier) {
			return plan.TextEdit{
				FilePath:    path,
				Kind:        plan.EditDelete,
				Range:       r.StatementRange,
				Description: "remove " + specifier,
			}, true, nil
		}
	}
	return plan.TextEdit{}, false, nil
}
