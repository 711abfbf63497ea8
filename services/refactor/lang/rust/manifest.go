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
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/AleutianAI/AleutianRefactor/services/refactor/lang"
)

// ParseManifest implements lang.ManifestEditor.
func (p *Plugin) ParseManifest(_ context.Context, path string, content []byte) (*lang.Manifest, error) {
	m, err := parseCargo(path, content)
	if err != nil {
		return nil, err
	}
	return &lang.Manifest{
		Path:         path,
		Name:         m.Package.Name,
		Dependencies: m.dependencies(),
	}, nil
}

// relocate recomputes a manifest-relative path after the target and the
// manifest may both have moved.
func relocate(manifest, manifestNew, written, oldDir, newDir string) (string, bool) {
	target := filepath.Clean(filepath.Join(filepath.Dir(manifest), filepath.FromSlash(written)))
	moved := target
	if oldDir != "" && within(target, oldDir) {
		moved = rebase(target, oldDir, newDir)
	}
	if moved == target && manifest == manifestNew {
		return written, false
	}
	rel, err := filepath.Rel(filepath.Dir(manifestNew), moved)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if strings.HasPrefix(written, "./") && !strings.HasPrefix(rel, ".") {
		rel = "./" + rel
	}
	return rel, true
}

type replacement struct {
	start, end int
	text       string
}

func applyReplacements(content []byte, reps []replacement) []byte {
	sort.Slice(reps, func(i, j int) bool { return reps[i].start > reps[j].start })
	for _, r := range reps {
		content = splice(content, r.start, r.end, r.text)
	}
	return content
}

// RewriteDependencyPaths implements lang.ManifestEditor for `path = "..."`
// keys in every dependency table, inline or expanded.
func (p *Plugin) RewriteDependencyPaths(_ context.Context, path string, content []byte, oldDir, newDir, manifestNewPath string) ([]byte, error) {
	if _, err := parseCargo(path, content); err != nil {
		return nil, err
	}
	var reps []replacement
	for _, l := range scanLines(content) {
		if l.header {
			continue
		}
		if _, _, ok := dependencyTable(l.table); !ok {
			continue
		}
		for _, m := range pathRE.FindAllStringSubmatchIndex(l.text, -1) {
			var written string
			switch {
			case m[6] >= 0:
				written = l.text[m[6]:m[7]]
			case m[8] >= 0:
				written = l.text[m[8]:m[9]]
			default:
				continue
			}
			rel, ok := relocate(path, manifestNewPath, written, oldDir, newDir)
			if !ok || rel == written {
				continue
			}
			reps = append(reps, replacement{start: l.start + m[4], end: l.start + m[5], text: tomlString(rel)})
		}
	}
	return applyReplacements(content, reps), nil
}

// RenameDependency implements lang.ManifestEditor. Both `name = ...` keys
// and `[dependencies.name]` tables are renamed.
func (p *Plugin) RenameDependency(_ context.Context, path string, content []byte, oldName, newName string) ([]byte, error) {
	if _, err := parseCargo(path, content); err != nil {
		return nil, err
	}
	var reps []replacement
	for _, l := range scanLines(content) {
		section, dep, ok := dependencyTable(l.table)
		if !ok {
			continue
		}
		if l.header {
			if dep != oldName {
				continue
			}
			if i := strings.LastIndex(l.text, oldName); i >= 0 {
				reps = append(reps, replacement{start: l.start + i, end: l.start + i + len(oldName), text: newName})
			}
			continue
		}
		if dep != "" || section == "" {
			continue
		}
		if key, ks, ke, ok := lineKey(l.text); ok && key == oldName {
			reps = append(reps, replacement{start: l.start + ks, end: l.start + ke, text: newName})
		}
	}
	return applyReplacements(content, reps), nil
}

// UpdatePackageIdentity implements lang.ManifestEditor.
func (p *Plugin) UpdatePackageIdentity(_ context.Context, path string, content []byte, newName string) ([]byte, error) {
	if _, err := parseCargo(path, content); err != nil {
		return nil, err
	}
	for _, l := range scanLines(content) {
		if l.header || l.table != "package" {
			continue
		}
		if key, _, _, ok := lineKey(l.text); !ok || key != "name" {
			continue
		}
		if _, vs, ve, ok := lineValueString(l.text, "name"); ok {
			return splice(content, l.start+vs-1, l.start+ve+1, tomlString(newName)), nil
		}
	}
	return nil, fmt.Errorf("%w: %s has no [package] name", lang.ErrNotManifest, path)
}

// removeDependency deletes one dependency declaration, inline or as its
// own table.
func removeDependency(content []byte, section, name string) []byte {
	lines := scanLines(content)
	for i, l := range lines {
		s, dep, ok := dependencyTable(l.table)
		if !ok || s != section {
			continue
		}
		if l.header && dep == name {
			end := len(content)
			for _, next := range lines[i+1:] {
				if next.header {
					end = next.start
					break
				}
			}
			return splice(content, l.start, end, "")
		}
		if !l.header && dep == "" {
			if key, _, _, ok := lineKey(l.text); ok && key == name {
				return splice(content, l.start, l.end, "")
			}
		}
	}
	return content
}

// insertDependency appends an inline declaration to section, creating the
// table at the end of the file when it is missing.
func insertDependency(content []byte, section, entry string) []byte {
	last := -1
	for _, l := range scanLines(content) {
		if l.table != section {
			continue
		}
		trimmed := strings.TrimSpace(l.text)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") && !l.header {
			continue
		}
		last = l.end
		if l.end > 0 && content[l.end-1] != '\n' {
			return append(append(content, '\n'), entry+"\n"...)
		}
	}
	if last >= 0 {
		return splice(content, last, last, entry+"\n")
	}
	out := append([]byte(nil), content...)
	if len(out) > 0 && out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}
	if len(out) > 0 {
		out = append(out, '\n')
	}
	return append(out, "["+section+"]\n"+entry+"\n"...)
}

// MergeManifests implements lang.ManifestEditor.
//
// # Description
//
// Dependencies missing from the target are appended to the same table as
// inline values. Path dependencies conflict when they point at different
// directories; version requirements conflict when no version satisfies
// both. Dependencies on either merged crate are dropped.
func (p *Plugin) MergeManifests(_ context.Context, target, source lang.Document) (*lang.MergeResult, error) {
	tm, err := parseCargo(target.Path, target.Content)
	if err != nil {
		return nil, err
	}
	sm, err := parseCargo(source.Path, source.Content)
	if err != nil {
		return nil, err
	}

	self := map[string]bool{}
	for _, n := range []string{tm.Package.Name, sm.Package.Name} {
		if n != "" {
			self[n] = true
		}
	}

	out := append([]byte(nil), target.Content...)
	res := &lang.MergeResult{}
	have := make(map[string]lang.Dependency)
	for _, d := range tm.dependencies() {
		if self[d.Name] {
			out = removeDependency(out, d.Section, d.Name)
			res.Dropped = append(res.Dropped, d.Name)
			continue
		}
		have[d.Section+"\x00"+d.Name] = d
	}

	sections := sm.sections()
	for _, section := range sectionOrder {
		names := make([]string, 0, len(sections[section]))
		for name := range sections[section] {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if self[name] {
				res.Dropped = append(res.Dropped, name)
				continue
			}
			value := sections[section][name]
			incoming := lang.Dependency{Name: name, Section: section}
			switch v := value.(type) {
			case string:
				incoming.Version = v
			case map[string]any:
				cp := make(map[string]any, len(v))
				for k, e := range v {
					cp[k] = e
				}
				incoming.Version, _ = cp["version"].(string)
				if written, ok := cp["path"].(string); ok {
					if rel, ok := relocate(source.Path, target.Path, written, "", ""); ok {
						written = rel
						cp["path"] = rel
					}
					incoming.Path = written
				}
				value = cp
			}

			if existing, ok := have[section+"\x00"+name]; ok {
				if conflicting(target.Path, existing, incoming) {
					res.Conflicts = append(res.Conflicts, lang.DependencyConflict{
						Name:       name,
						TargetSpec: existing.Spec(),
						SourceSpec: incoming.Spec(),
					})
				}
				continue
			}
			out = insertDependency(out, section, name+" = "+renderDependency(value))
			have[section+"\x00"+name] = incoming
			res.Added = append(res.Added, name)
		}
	}

	sort.Strings(res.Added)
	sort.Strings(res.Dropped)
	res.Content = out
	return res, nil
}

func conflicting(manifest string, a, b lang.Dependency) bool {
	if a.Path != "" || b.Path != "" {
		dir := filepath.Dir(manifest)
		return a.Path == "" || b.Path == "" ||
			filepath.Join(dir, filepath.FromSlash(a.Path)) != filepath.Join(dir, filepath.FromSlash(b.Path))
	}
	return a.Version != b.Version && !lang.CompatibleVersions(a.Version, b.Version)
}

// WorkspaceManifestName implements lang.WorkspaceEditor.
func (p *Plugin) WorkspaceManifestName() string { return "Cargo.toml" }

// IsWorkspace implements lang.WorkspaceEditor.
func (p *Plugin) IsWorkspace(_ context.Context, path string, content []byte) bool {
	m, err := parseCargo(path, content)
	return err == nil && m.Workspace != nil
}

// ListMembers implements lang.WorkspaceEditor.
func (p *Plugin) ListMembers(_ context.Context, path string, content []byte) ([]string, error) {
	m, err := parseCargo(path, content)
	if err != nil {
		return nil, err
	}
	if m.Workspace == nil {
		return nil, fmt.Errorf("%w: %s has no [workspace]", lang.ErrNotManifest, path)
	}
	return m.Workspace.Members, nil
}

// membersSpan locates the value of `members` in [workspace]. header is the
// end of the [workspace] header line, for inserting a missing key.
func membersSpan(content []byte) (start, end, header int, found bool) {
	header = -1
	for _, l := range scanLines(content) {
		if l.table != "workspace" {
			continue
		}
		if l.header {
			header = l.end
			continue
		}
		key, _, ke, ok := lineKey(l.text)
		if !ok || key != "members" {
			continue
		}
		open := strings.IndexByte(l.text[ke:], '[')
		if open < 0 {
			return 0, 0, header, false
		}
		start = l.start + ke + open
		depth := 0
		var quote byte
		for i := start; i < len(content); i++ {
			c := content[i]
			switch {
			case quote != 0:
				if c == '\\' && quote == '"' {
					i++
				} else if c == quote {
					quote = 0
				}
			case c == '"' || c == '\'':
				quote = c
			case c == '[':
				depth++
			case c == ']':
				depth--
				if depth == 0 {
					return start, i + 1, header, true
				}
			}
		}
		return 0, 0, header, false
	}
	return 0, 0, header, false
}

// renderMembers writes a members array in the layout of the original.
func renderMembers(original string, members []string) string {
	if !strings.Contains(original, "\n") {
		quoted := make([]string, len(members))
		for i, m := range members {
			quoted[i] = tomlString(m)
		}
		return "[" + strings.Join(quoted, ", ") + "]"
	}
	indent := "    "
	for _, line := range strings.Split(original, "\n")[1:] {
		if t := strings.TrimLeft(line, " \t"); t != "" && t != "]" {
			indent = line[:len(line)-len(t)]
			break
		}
	}
	var b strings.Builder
	b.WriteString("[\n")
	for _, m := range members {
		b.WriteString(indent + tomlString(m) + ",\n")
	}
	b.WriteString("]")
	return b.String()
}

func sameMember(a, b string) bool {
	return path.Clean(strings.TrimPrefix(filepath.ToSlash(a), "./")) == path.Clean(strings.TrimPrefix(filepath.ToSlash(b), "./"))
}

// AddMember implements lang.WorkspaceEditor.
func (p *Plugin) AddMember(ctx context.Context, path string, content []byte, member string) ([]byte, error) {
	members, err := p.ListMembers(ctx, path, content)
	if err != nil {
		return nil, err
	}
	member = strings.TrimPrefix(filepath.ToSlash(member), "./")
	for _, m := range members {
		if sameMember(m, member) {
			return content, nil
		}
	}
	start, end, header, found := membersSpan(content)
	if !found {
		if header < 0 {
			return nil, fmt.Errorf("%w: %s has no [workspace] table", lang.ErrNotManifest, path)
		}
		return splice(content, header, header, "members = ["+tomlString(member)+"]\n"), nil
	}
	return splice(content, start, end, renderMembers(string(content[start:end]), append(members, member))), nil
}

// RemoveMember implements lang.WorkspaceEditor.
func (p *Plugin) RemoveMember(ctx context.Context, path string, content []byte, member string) ([]byte, error) {
	members, err := p.ListMembers(ctx, path, content)
	if err != nil {
		return nil, err
	}
	kept := members[:0:0]
	for _, m := range members {
		if !sameMember(m, member) {
			kept = append(kept, m)
		}
	}
	if len(kept) == len(members) {
		return content, nil
	}
	start, end, _, found := membersSpan(content)
	if !found {
		return content, nil
	}
	return splice(content, start, end, renderMembers(string(content[start:end]), kept)), nil
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
