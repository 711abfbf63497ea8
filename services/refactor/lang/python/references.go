// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package python

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/spf13/afero"

	"github.com/AleutianAI/AleutianRefactor/services/refactor/lang"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/plan"
)

// ParseReferences implements lang.ReferenceRewriter.
//
// `import a.b, c` yields one reference per module; `from m import x, y`
// yields one reference with two bindings. Relative modules keep their
// leading dots in Specifier.
func (p *Plugin) ParseReferences(ctx context.Context, path string, content []byte) ([]lang.Reference, error) {
	var refs []lang.Reference
	err := p.WithTree(ctx, path, content, func(root *sitter.Node) error {
		li := plan.NewLineIndex(content)
		lang.Walk(root, func(n *sitter.Node) bool {
			switch n.Type() {
			case "import_statement":
				refs = append(refs, importRefs(n, content, li)...)
				return false
			case "import_from_statement":
				if ref, ok := fromRef(n, content, li); ok {
					refs = append(refs, ref)
				}
				return false
			case "comment", "string":
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

func importRefs(n *sitter.Node, content []byte, li *plan.LineIndex) []lang.Reference {
	names := lang.NamedChildren(n, "comment")
	var out []lang.Reference
	for _, item := range names {
		module, alias := item, ""
		if item.Type() == "aliased_import" {
			module = item.ChildByFieldName("name")
			alias = lang.Text(item.ChildByFieldName("alias"), content)
		}
		if module == nil || module.Type() != "dotted_name" {
			continue
		}
		spec := lang.Text(module, content)
		ref := lang.Reference{
			Kind:           lang.RefImport,
			Specifier:      spec,
			SpecifierRange: lang.NodeRange(module),
			Namespace:      alias,
		}
		if alias == "" {
			ref.Namespace = strings.SplitN(spec, ".", 2)[0]
		}
		if len(names) == 1 {
			ref.StatementRange = lang.NodeStatementSpan(content, li, n)
		} else {
			ref.StatementRange = listItemSpan(content, li, item)
		}
		out = append(out, ref)
	}
	return out
}

// listItemSpan covers one comma-separated item with one adjoining comma.
func listItemSpan(content []byte, li *plan.LineIndex, item *sitter.Node) plan.Range {
	start, end := int(item.StartByte()), int(item.EndByte())
	j := end
	for j < len(content) && content[j] == ' ' {
		j++
	}
	if j < len(content) && content[j] == ',' {
		end = j + 1
		for end < len(content) && content[end] == ' ' {
			end++
		}
		return li.RangeOf(start, end)
	}
	i := start
	for i > 0 && content[i-1] == ' ' {
		i--
	}
	if i > 0 && content[i-1] == ',' {
		start = i - 1
	}
	return li.RangeOf(start, end)
}

func fromRef(n *sitter.Node, content []byte, li *plan.LineIndex) (lang.Reference, bool) {
	module := n.ChildByFieldName("module_name")
	if module == nil {
		return lang.Reference{}, false
	}
	ref := lang.Reference{
		Kind:           lang.RefImport,
		Specifier:      lang.Text(module, content),
		SpecifierRange: lang.NodeRange(module),
		StatementRange: lang.NodeStatementSpan(content, li, n),
	}
	for _, c := range lang.NamedChildren(n, "comment") {
		if c.StartByte() < module.EndByte() {
			continue
		}
		switch c.Type() {
		case "wildcard_import":
			ref.Wildcard = true
		case "dotted_name":
			ref.Bindings = append(ref.Bindings, lang.Binding{Name: lang.Text(c, content), NameRange: lang.NodeRange(c)})
		case "aliased_import":
			name := c.ChildByFieldName("name")
			ref.Bindings = append(ref.Bindings, lang.Binding{
				Name:      lang.Text(name, content),
				Alias:     lang.Text(c.ChildByFieldName("alias"), content),
				NameRange: lang.NodeRange(name),
			})
		}
	}
	return ref, true
}

// sourceRoots are the directories absolute module names are relative to,
// in lookup order.
func (p *Plugin) sourceRoots(root string) []string {
	roots := []string{root}
	if ok, _ := afero.DirExists(p.fs, filepath.Join(root, "src")); ok {
		roots = append([]string{filepath.Join(root, "src")}, roots...)
	}
	return roots
}

// moduleFile returns the file defining module below base.
func (p *Plugin) moduleFile(base, module string) (string, bool) {
	rel := filepath.FromSlash(strings.ReplaceAll(module, ".", "/"))
	for _, candidate := range []string{
		filepath.Join(base, rel) + ".py",
		filepath.Join(base, rel) + ".pyi",
		filepath.Join(base, rel, "__init__.py"),
	} {
		if info, err := p.fs.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
	}
	if rel == "" || rel == "." {
		init := filepath.Join(base, "__init__.py")
		if ok, _ := afero.Exists(p.fs, init); ok {
			return init, true
		}
	}
	return "", false
}

// splitRelative separates leading dots from a module specifier.
func splitRelative(spec string) (int, string) {
	dots := len(spec) - len(strings.TrimLeft(spec, "."))
	return dots, spec[dots:]
}

// resolveModule returns the file a module specifier names and the base
// directory it was resolved against.
func (p *Plugin) resolveModule(root, importer, spec string) (string, string, bool) {
	dots, rest := splitRelative(spec)
	if dots > 0 {
		base := filepath.Dir(importer)
		for i := 1; i < dots; i++ {
			base = filepath.Dir(base)
		}
		f, ok := p.moduleFile(base, rest)
		return f, base, ok
	}
	for _, base := range p.sourceRoots(root) {
		if f, ok := p.moduleFile(base, rest); ok {
			return f, base, true
		}
	}
	return "", "", false
}

// Resolve implements lang.ReferenceRewriter. A from-import also resolves to
// any submodules it names.
func (p *Plugin) Resolve(_ context.Context, root, importer string, ref lang.Reference) []string {
	f, _, ok := p.resolveModule(root, importer, ref.Specifier)
	if !ok {
		return nil
	}
	out := []string{f}
	for _, b := range ref.Bindings {
		sub := ref.Specifier + "." + b.Name
		if strings.HasSuffix(ref.Specifier, ".") {
			sub = ref.Specifier + b.Name
		}
		if sf, _, ok := p.resolveModule(root, importer, sub); ok {
			out = append(out, sf)
		}
	}
	return out
}

// moduleName renders the dotted module name of file relative to base.
func moduleName(base, file string) (string, bool) {
	rel, err := filepath.Rel(base, file)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	rel = strings.TrimSuffix(rel, ".pyi")
	rel = strings.TrimSuffix(rel, ".py")
	rel = strings.TrimSuffix(rel, "/__init__")
	if rel == "__init__" || rel == "" {
		return "", false
	}
	return strings.ReplaceAll(rel, "/", "."), true
}

// RewriteForRename implements lang.ReferenceRewriter.
func (p *Plugin) RewriteForRename(ctx context.Context, path string, content []byte, r lang.Rename) ([]plan.TextEdit, error) {
	refs, err := p.ParseReferences(ctx, path, content)
	if err != nil {
		return nil, err
	}
	var edits []plan.TextEdit
	for _, ref := range refs {
		f, _, ok := p.resolveModule(r.Root, path, ref.Specifier)
		if !ok || f != r.DefinitionPath {
			continue
		}
		for _, b := range ref.Bindings {
			if b.Name == r.OldName {
				edits = append(edits, plan.TextEdit{
					FilePath:    path,
					Kind:        plan.EditReplace,
					Range:       b.NameRange,
					NewText:     r.NewName,
					Description: "rename import " + r.OldName,
				})
			}
		}
	}
	return edits, nil
}

// RewriteForMove implements lang.ReferenceRewriter.
//
// # Description
//
// Affected modules are renamed to their new dotted path. Relative imports
// stay relative, recomputed from the importer's new package; when the
// target leaves the importer's top-level package the import becomes
// absolute and a heuristic_fallback warning is reported through m. A plain
// `import a.b` also rewrites the dotted uses of a.b in the file body, since
// the import binds the full path. A from-import naming moved submodules
// follows them when they all land in the same package.
func (p *Plugin) RewriteForMove(ctx context.Context, path string, content []byte, m lang.Move) ([]plan.TextEdit, error) {
	refs, err := p.ParseReferences(ctx, path, content)
	if err != nil {
		return nil, err
	}
	newImporter := m.Locate(path)

	var edits []plan.TextEdit
	for _, ref := range refs {
		target, base, ok := p.resolveModule(m.Root, path, ref.Specifier)
		if !ok {
			continue
		}
		dots, _ := splitRelative(ref.Specifier)
		if dots > 0 {
			base = p.baseFor(m.Root, target)
		}
		base = rebaseRoot(base, m)

		newSpec := ""
		if newTarget := m.Locate(target); newTarget != target || (dots > 0 && newImporter != path) {
			newSpec, ok = p.moveSpec(m, path, newImporter, base, modulePath(newTarget), dots, ref.Specifier)
			if !ok {
				continue
			}
		} else if len(ref.Bindings) > 0 {
			pkgDir, ok := p.submodulePackage(m, path, base, ref)
			if !ok {
				continue
			}
			newSpec, ok = p.moveSpec(m, path, newImporter, base, pkgDir, dots, ref.Specifier)
			if !ok {
				continue
			}
		}
		if newSpec == "" || newSpec == ref.Specifier {
			continue
		}
		edits = append(edits, plan.TextEdit{
			FilePath:    path,
			Kind:        plan.EditReplace,
			Range:       ref.SpecifierRange,
			NewText:     newSpec,
			Description: "update import " + ref.Specifier,
		})
		if len(ref.Bindings) == 0 && !ref.Wildcard && ref.Namespace == strings.SplitN(ref.Specifier, ".", 2)[0] {
			uses, err := p.dottedUses(ctx, path, content, ref.Specifier, newSpec)
			if err != nil {
				return nil, err
			}
			edits = append(edits, uses...)
		}
	}
	return edits, nil
}

// moveSpec renders the specifier naming module (an extension-less module
// path after the move) from newImporter. Absolute specifiers stay
// absolute; relative ones stay relative while module remains inside the
// importer's top-level package.
func (p *Plugin) moveSpec(m lang.Move, importer, newImporter, base, module string, dots int, old string) (string, bool) {
	if dots > 0 {
		if top, ok := topPackage(base, newImporter); ok {
			if spec, ok := relativeSpec(filepath.Dir(newImporter), module, top); ok {
				return spec, true
			}
		}
	}
	name, ok := dottedName(base, module)
	if !ok {
		return "", false
	}
	if dots > 0 {
		m.Warnf(plan.WarnHeuristicFallback, fmt.Sprintf(
			"relative import %q in %s leaves its package after the move; rewritten as absolute %q",
			old, importer, name))
	}
	return name, true
}

// modulePath strips the extension from a module file; a package's
// __init__ file names its directory.
func modulePath(file string) string {
	switch filepath.Base(file) {
	case "__init__.py", "__init__.pyi":
		return filepath.Dir(file)
	}
	return strings.TrimSuffix(strings.TrimSuffix(file, ".pyi"), ".py")
}

// dottedName renders an extension-less module path relative to base.
func dottedName(base, module string) (string, bool) {
	rel, err := filepath.Rel(base, module)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return strings.ReplaceAll(filepath.ToSlash(rel), "/", "."), true
}

// topPackage returns the top-level package directory holding file below
// base. ok is false for files directly in base.
func topPackage(base, file string) (string, bool) {
	rel, err := filepath.Rel(base, file)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	first, _, found := strings.Cut(filepath.ToSlash(rel), "/")
	if !found {
		return "", false
	}
	return filepath.Join(base, first), true
}

// relativeSpec renders the relative specifier of module as seen from a
// file in dir: one dot for dir, one more per parent. ok is false when
// module lies outside top.
func relativeSpec(dir, module, top string) (string, bool) {
	if !inDir(dir, top) || !inDir(module, top) {
		return "", false
	}
	anchor, dots := dir, 1
	for !inDir(module, anchor) {
		anchor = filepath.Dir(anchor)
		dots++
		if !inDir(anchor, top) {
			return "", false
		}
	}
	rest := ""
	if module != anchor {
		rel, err := filepath.Rel(anchor, module)
		if err != nil {
			return "", false
		}
		rest = strings.ReplaceAll(filepath.ToSlash(rel), "/", ".")
	}
	return strings.Repeat(".", dots) + rest, true
}

func inDir(path, dir string) bool {
	return path == dir || strings.HasPrefix(path, dir+string(filepath.Separator))
}

// baseFor returns the source root containing file.
func (p *Plugin) baseFor(root, file string) string {
	for _, base := range p.sourceRoots(root) {
		if _, ok := moduleName(base, file); ok {
			return base
		}
	}
	return root
}

// rebaseRoot keeps a source root that is itself moving stable.
func rebaseRoot(base string, m lang.Move) string {
	if m.IsDir && base == m.OldPath {
		return m.NewPath
	}
	return base
}

// submodulePackage handles `from pkg import mod` where every bound name is
// a moving submodule with a common destination package. It returns that
// package's directory after the move.
func (p *Plugin) submodulePackage(m lang.Move, importer, base string, ref lang.Reference) (string, bool) {
	pkg := ""
	for _, b := range ref.Bindings {
		sub := ref.Specifier + "." + b.Name
		if strings.HasSuffix(ref.Specifier, ".") {
			sub = ref.Specifier + b.Name
		}
		f, _, ok := p.resolveModule(m.Root, importer, sub)
		if !ok {
			return "", false
		}
		nf := m.Locate(f)
		if nf == f {
			return "", false
		}
		parent := filepath.Dir(modulePath(nf))
		if _, ok := dottedName(base, parent); !ok {
			return "", false
		}
		if pkg != "" && parent != pkg {
			return "", false
		}
		pkg = parent
	}
	return pkg, pkg != ""
}

// dottedUses rewrites expression uses of oldModule outside import
// statements.
func (p *Plugin) dottedUses(ctx context.Context, path string, content []byte, oldModule, newModule string) ([]plan.TextEdit, error) {
	var edits []plan.TextEdit
	err := p.WithTree(ctx, path, content, func(root *sitter.Node) error {
		lang.Walk(root, func(n *sitter.Node) bool {
			switch n.Type() {
			case "import_statement", "import_from_statement", "comment", "string":
				return false
			case "identifier", "attribute":
			default:
				return true
			}
			if lang.Text(n, content) != oldModule {
				return true
			}
			if parent := n.Parent(); parent != nil && parent.Type() == "attribute" {
				if obj := parent.ChildByFieldName("object"); obj == nil || obj.StartByte() != n.StartByte() || obj.EndByte() != n.EndByte() {
					return true
				}
			}
			edits = append(edits, plan.TextEdit{
				FilePath:    path,
				Kind:        plan.EditReplace,
				Range:       lang.NodeRange(n),
				NewText:     newModule,
				Description: "qualify " + newModule,
			})
			return false
		})
		return nil
	})
	return edits, err
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

// AddReference implements lang.ReferenceRewriter. The import goes after
// the last top-level import, or after a module docstring.
func (p *Plugin) AddReference(ctx context.Context, path string, content []byte, specifier string) (plan.TextEdit, error) {
	var edit plan.TextEdit
	err := p.WithTree(ctx, path, content, func(root *sitter.Node) error {
		li := plan.NewLineIndex(content)
		line := 0
		for i, c := range lang.NamedChildren(root) {
			switch {
			case c.Type() == "import_statement" || c.Type() == "import_from_statement" || c.Type() == "future_import_statement":
				line = int(c.EndPoint().Row) + 1
			case i == 0 && c.Type() == "expression_statement" && c.NamedChildCount() == 1 && c.NamedChild(0).Type() == "string":
				line = int(c.EndPoint().Row) + 1
			}
		}
		at := plan.Position{Line: line}
		if line >= li.LineCount() {
			at = li.PositionAt(len(content))
		}
		edit = plan.TextEdit{
			FilePath:    path,
			Kind:        plan.EditInsert,
			Range:       plan.Range{Start: at, End: at},
			NewText:     "import " + specifier + "\n",
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
