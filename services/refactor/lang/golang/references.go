// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package golang

import (
	"context"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/spf13/afero"
	"golang.org/x/mod/modfile"

	"github.com/AleutianAI/AleutianRefactor/services/refactor/lang"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/plan"
)

var majorVersion = regexp.MustCompile(`^v[0-9]+$`)

// ParseReferences implements lang.ReferenceRewriter.
func (p *Plugin) ParseReferences(ctx context.Context, path string, content []byte) ([]lang.Reference, error) {
	var refs []lang.Reference
	err := p.WithTree(ctx, path, content, func(root *sitter.Node) error {
		li := plan.NewLineIndex(content)
		for _, decl := range lang.NamedChildren(root) {
			if decl.Type() != "import_declaration" {
				continue
			}
			specs := lang.NamedChildren(decl, "comment")
			single := len(specs) == 1 && specs[0].Type() == "import_spec"
			for _, s := range specs {
				if s.Type() == "import_spec_list" {
					for _, inner := range lang.NamedChildren(s, "comment") {
						if inner.Type() == "import_spec" {
							refs = append(refs, importRef(inner, inner, content, li))
						}
					}
					continue
				}
				if s.Type() == "import_spec" {
					stmt := s
					if single {
						stmt = decl
					}
					refs = append(refs, importRef(s, stmt, content, li))
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return refs, nil
}

func importRef(spec, stmt *sitter.Node, content []byte, li *plan.LineIndex) lang.Reference {
	pathNode := spec.ChildByFieldName("path")
	ref := lang.Reference{
		Kind:           lang.RefImport,
		Specifier:      lang.Unquote(lang.Text(pathNode, content)),
		SpecifierRange: lang.InnerRange(li, pathNode, 1),
		StatementRange: lang.NodeStatementSpan(content, li, stmt),
	}
	name := ""
	if n := spec.ChildByFieldName("name"); n != nil {
		name = lang.Text(n, content)
	}
	switch name {
	case "_":
		ref.SideEffect = true
	case ".":
		ref.Wildcard = true
	case "":
		ref.Namespace = packageName(ref.Specifier)
	default:
		ref.Namespace = name
	}
	return ref
}

// packageName guesses the package name of an import path: the last element,
// skipping a major-version suffix.
func packageName(importPath string) string {
	parts := strings.Split(importPath, "/")
	last := parts[len(parts)-1]
	if majorVersion.MatchString(last) && len(parts) > 1 {
		last = parts[len(parts)-2]
	}
	last = strings.TrimPrefix(last, "go-")
	return strings.ReplaceAll(last, "-", "_")
}

// module is a Go module rooted at Dir.
type module struct {
	Path string
	Dir  string
}

// moduleFor returns the module containing dir, found by walking up to the
// nearest go.mod without leaving root.
func (p *Plugin) moduleFor(root, dir string) (module, bool) {
	for d := filepath.Clean(dir); ; d = filepath.Dir(d) {
		if data, err := afero.ReadFile(p.fs, filepath.Join(d, "go.mod")); err == nil {
			if mp := modfile.ModulePath(data); mp != "" {
				return module{Path: mp, Dir: d}, true
			}
		}
		if d == root || d == filepath.Dir(d) || !within(d, root) {
			return module{}, false
		}
	}
}

// modules returns the modules visible from importer: its own and every
// module listed by a go.work at root.
func (p *Plugin) modules(root, importer string) []module {
	var out []module
	if m, ok := p.moduleFor(root, filepath.Dir(importer)); ok {
		out = append(out, m)
	}
	workPath := filepath.Join(root, "go.work")
	data, err := afero.ReadFile(p.fs, workPath)
	if err != nil {
		return out
	}
	wf, err := modfile.ParseWork(workPath, data, nil)
	if err != nil {
		return out
	}
	for _, u := range wf.Use {
		dir := filepath.Join(root, filepath.FromSlash(u.Path))
		if m, ok := p.moduleFor(root, dir); ok && m.Dir == dir {
			out = append(out, m)
		}
	}
	return out
}

// resolveImport maps an import path to a directory through the longest
// matching module path.
func resolveImport(mods []module, importPath string) (string, bool) {
	best := -1
	for i, m := range mods {
		if importPath != m.Path && !strings.HasPrefix(importPath, m.Path+"/") {
			continue
		}
		if best < 0 || len(m.Path) > len(mods[best].Path) {
			best = i
		}
	}
	if best < 0 {
		return "", false
	}
	m := mods[best]
	rel := strings.TrimPrefix(strings.TrimPrefix(importPath, m.Path), "/")
	return filepath.Join(m.Dir, filepath.FromSlash(rel)), true
}

// Resolve implements lang.ReferenceRewriter. Imports resolve to the
// package directory; standard library and third-party imports resolve to
// nothing.
func (p *Plugin) Resolve(_ context.Context, root, importer string, ref lang.Reference) []string {
	dir, ok := resolveImport(p.modules(root, importer), ref.Specifier)
	if !ok {
		return nil
	}
	return []string{dir}
}

// RewriteForRename implements lang.ReferenceRewriter. Go import specs name
// packages, not symbols, so there is nothing to rewrite.
func (p *Plugin) RewriteForRename(context.Context, string, []byte, lang.Rename) ([]plan.TextEdit, error) {
	return nil, nil
}

// RewriteForMove implements lang.ReferenceRewriter.
//
// # Description
//
// Import paths follow a package directory when the directory moves, or
// when a file move empties its old directory of Go sources. A moved file
// whose directory changes takes the package name of its destination.
func (p *Plugin) RewriteForMove(ctx context.Context, path string, content []byte, m lang.Move) ([]plan.TextEdit, error) {
	refs, err := p.ParseReferences(ctx, path, content)
	if err != nil {
		return nil, err
	}
	mods := p.modules(m.Root, path)

	var edits []plan.TextEdit
	for _, ref := range refs {
		newPath, ok := p.rewriteImport(m, mods, ref.Specifier)
		if !ok || newPath == ref.Specifier {
			continue
		}
		edits = append(edits, plan.TextEdit{
			FilePath:    path,
			Kind:        plan.EditReplace,
			Range:       ref.SpecifierRange,
			NewText:     newPath,
			Description: "update import " + ref.Specifier,
		})
	}

	if dest := m.Locate(path); filepath.Dir(dest) != filepath.Dir(path) && p.joinsPackage(m, dest) {
		if e, ok := p.packageClauseEdit(ctx, path, content, dest); ok {
			edits = append(edits, e)
		}
	}
	return edits, nil
}

// joinsPackage reports whether a file landing at dest must adopt another
// package name: single-file moves always do, directory moves only when
// merging into a directory that already has sources.
func (p *Plugin) joinsPackage(m lang.Move, dest string) bool {
	if !m.IsDir {
		return true
	}
	entries, err := afero.ReadDir(p.fs, filepath.Dir(dest))
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".go") {
			return true
		}
	}
	return false
}

func (p *Plugin) rewriteImport(m lang.Move, mods []module, spec string) (string, bool) {
	if m.OldPackage != "" && (spec == m.OldPackage || strings.HasPrefix(spec, m.OldPackage+"/")) {
		return m.NewPackage + strings.TrimPrefix(spec, m.OldPackage), true
	}
	dir, ok := resolveImport(mods, spec)
	if !ok {
		return "", false
	}

	var newDir string
	switch {
	case m.IsDir && within(dir, m.OldPath):
		newDir = rebase(dir, m.OldPath, m.NewPath)
	case !m.IsDir && dir == filepath.Dir(m.OldPath) && p.soleSource(dir, m.OldPath):
		newDir = filepath.Dir(m.NewPath)
	default:
		return "", false
	}

	old, ok := p.moduleFor(m.Root, dir)
	if !ok {
		return "", false
	}
	if m.IsDir && within(old.Dir, m.OldPath) {
		// The module moves with the directory; its import path does not.
		return spec, true
	}
	target, ok := p.moduleFor(m.Root, nearestExisting(p.fs, newDir))
	if !ok {
		return "", false
	}
	return joinImport(target.Path, target.Dir, newDir), true
}

// soleSource reports whether file is the only non-test Go file in dir.
func (p *Plugin) soleSource(dir, file string) bool {
	entries, err := afero.ReadDir(p.fs, dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		if filepath.Join(dir, name) != file {
			return false
		}
	}
	return true
}

func (p *Plugin) packageClauseEdit(ctx context.Context, path string, content []byte, dest string) (plan.TextEdit, bool) {
	want := p.destinationPackage(ctx, filepath.Dir(dest), path)
	var edit plan.TextEdit
	found := false
	_ = p.WithTree(ctx, path, content, func(root *sitter.Node) error {
		clause := lang.FirstChildOfType(root, "package_clause")
		if clause == nil {
			return nil
		}
		name := lang.FirstChildOfType(clause, "package_identifier")
		if name == nil {
			return nil
		}
		current := lang.Text(name, content)
		if current == want || strings.HasSuffix(path, "_test.go") && current == want+"_test" {
			return nil
		}
		if strings.HasSuffix(current, "_test") && strings.HasSuffix(path, "_test.go") {
			want += "_test"
		}
		edit = plan.TextEdit{
			FilePath:    path,
			Kind:        plan.EditReplace,
			Range:       lang.NodeRange(name),
			NewText:     want,
			Description: "package " + current + " -> " + want,
		}
		found = true
		return nil
	})
	return edit, found
}

// destinationPackage returns the package name used by existing sources in
// dir, or a name derived from the directory.
func (p *Plugin) destinationPackage(ctx context.Context, dir, exclude string) string {
	entries, err := afero.ReadDir(p.fs, dir)
	if err == nil {
		for _, e := range entries {
			name := e.Name()
			full := filepath.Join(dir, name)
			if e.IsDir() || full == exclude || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
				continue
			}
			data, err := afero.ReadFile(p.fs, full)
			if err != nil {
				continue
			}
			if pkg := p.packageOf(ctx, full, data); pkg != "" {
				return pkg
			}
		}
	}
	return packageName(filepath.ToSlash(dir))
}

func (p *Plugin) packageOf(ctx context.Context, path string, content []byte) string {
	var pkg string
	_ = p.WithTree(ctx, path, content, func(root *sitter.Node) error {
		if clause := lang.FirstChildOfType(root, "package_clause"); clause != nil {
			pkg = lang.Text(lang.FirstChildOfType(clause, "package_identifier"), content)
		}
		return nil
	})
	return pkg
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

// AddReference implements lang.ReferenceRewriter. The import joins an
// existing parenthesised block, or follows the last import declaration, or
// the package clause.
func (p *Plugin) AddReference(ctx context.Context, path string, content []byte, specifier string) (plan.TextEdit, error) {
	var edit plan.TextEdit
	err := p.WithTree(ctx, path, content, func(root *sitter.Node) error {
		li := plan.NewLineIndex(content)
		var lastDecl, list *sitter.Node
		for _, decl := range lang.NamedChildren(root) {
			if decl.Type() != "import_declaration" {
				continue
			}
			lastDecl = decl
			if l := lang.FirstChildOfType(decl, "import_spec_list"); l != nil {
				list = l
			}
		}

		quoted := `"` + specifier + `"`
		switch {
		case list != nil:
			closing := list.Child(int(list.ChildCount()) - 1)
			at := li.PositionAt(int(closing.StartByte()))
			edit = plan.TextEdit{
				FilePath: path, Kind: plan.EditInsert,
				Range:   plan.Range{Start: plan.Position{Line: at.Line}, End: plan.Position{Line: at.Line}},
				NewText: "\t" + quoted + "\n",
			}
		case lastDecl != nil:
			at := li.PositionAt(int(lastDecl.EndByte()))
			edit = plan.TextEdit{
				FilePath: path, Kind: plan.EditInsert,
				Range:   plan.Range{Start: at, End: at},
				NewText: "\nimport " + quoted,
			}
		default:
			clause := lang.FirstChildOfType(root, "package_clause")
			if clause == nil {
				return lang.ErrNoDeclaration
			}
			at := li.PositionAt(int(clause.EndByte()))
			edit = plan.TextEdit{
				FilePath: path, Kind: plan.EditInsert,
				Range:   plan.Range{Start: at, End: at},
				NewText: "\n\nimport " + quoted,
			}
		}
		edit.Description = "import " + quoted
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

func within(p, dir string) bool {
	if p == dir {
		return true
	}
	rel, err := filepath.Rel(dir, p)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func rebase(p, oldDir, newDir string) string {
	rel, err := filepath.Rel(oldDir, p)
	if err != nil || rel == "." {
		return newDir
	}
	return filepath.Join(newDir, rel)
}

func nearestExisting(fs afero.Fs, dir string) string {
	for d := dir; ; d = filepath.Dir(d) {
		if ok, _ := afero.DirExists(fs, d); ok || d == filepath.Dir(d) {
			return d
		}
	}
}

func joinImport(modPath, modDir, dir string) string {
	rel, err := filepath.Rel(modDir, dir)
	if err != nil || rel == "." {
		return modPath
	}
	return path.Join(modPath, filepath.ToSlash(rel))
}
