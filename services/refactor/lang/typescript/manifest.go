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
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/buger/jsonparser"

	"github.com/AleutianAI/AleutianRefactor/services/refactor/lang"
)

var dependencySections = []string{"dependencies", "devDependencies", "peerDependencies", "optionalDependencies"}

// localPrefixes mark path dependencies.
var localPrefixes = []string{"file:", "link:"}

func splitLocal(spec string) (prefix, p string, ok bool) {
	for _, pre := range localPrefixes {
		if strings.HasPrefix(spec, pre) {
			return pre, strings.TrimPrefix(spec, pre), true
		}
	}
	return "", "", false
}

func packageName(data []byte) string {
	name, err := jsonparser.GetString(data, "name")
	if err != nil {
		return ""
	}
	return name
}

func checkJSON(path string, content []byte) error {
	if start, _ := rootSpan(content); start < 0 {
		return fmt.Errorf("%w: %s is not a JSON object", lang.ErrNotManifest, path)
	}
	if err := jsonparser.ObjectEach(content, func([]byte, []byte, jsonparser.ValueType, int) error { return nil }); err != nil {
		return fmt.Errorf("%w: %s: %v", lang.ErrNotManifest, path, err)
	}
	return nil
}

func dependencies(content []byte) []lang.Dependency {
	var deps []lang.Dependency
	for _, section := range dependencySections {
		_ = jsonparser.ObjectEach(content, func(key, value []byte, typ jsonparser.ValueType, _ int) error {
			if typ != jsonparser.String {
				return nil
			}
			name, err := jsonparser.ParseString(key)
			if err != nil {
				return nil
			}
			spec, err := jsonparser.ParseString(value)
			if err != nil {
				return nil
			}
			d := lang.Dependency{Name: name, Version: spec, Section: section}
			if _, p, ok := splitLocal(spec); ok {
				d.Path = p
			}
			deps = append(deps, d)
			return nil
		}, section)
	}
	return deps
}

// ParseManifest implements lang.ManifestEditor.
func (p *Plugin) ParseManifest(_ context.Context, path string, content []byte) (*lang.Manifest, error) {
	if err := checkJSON(path, content); err != nil {
		return nil, err
	}
	return &lang.Manifest{
		Path:         path,
		Name:         packageName(content),
		Dependencies: dependencies(content),
	}, nil
}

// relocate recomputes a manifest-relative path after the target and the
// manifest may both have moved. The result is written with forward
// slashes.
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

// RewriteDependencyPaths implements lang.ManifestEditor for file: and link:
// dependencies.
func (p *Plugin) RewriteDependencyPaths(_ context.Context, path string, content []byte, oldDir, newDir, manifestNewPath string) ([]byte, error) {
	if err := checkJSON(path, content); err != nil {
		return nil, err
	}
	out := content
	for _, d := range dependencies(content) {
		prefix, written, ok := splitLocal(d.Version)
		if !ok {
			continue
		}
		rel, ok := relocate(path, manifestNewPath, written, oldDir, newDir)
		if !ok || rel == written {
			continue
		}
		var err error
		out, err = setMember(out, []string{d.Section}, d.Name, quote(prefix+rel))
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// RenameDependency implements lang.ManifestEditor.
func (p *Plugin) RenameDependency(_ context.Context, path string, content []byte, oldName, newName string) ([]byte, error) {
	if err := checkJSON(path, content); err != nil {
		return nil, err
	}
	out := content
	for _, section := range dependencySections {
		start, _, _, err := span(out, section, oldName)
		if err != nil {
			continue
		}
		ks, ke, ok := keySpan(out, start)
		if !ok {
			continue
		}
		out = splice(out, ks, ke, quote(newName))
	}
	return out, nil
}

// UpdatePackageIdentity implements lang.ManifestEditor.
func (p *Plugin) UpdatePackageIdentity(_ context.Context, path string, content []byte, newName string) ([]byte, error) {
	if err := checkJSON(path, content); err != nil {
		return nil, err
	}
	return setMember(content, nil, "name", quote(newName))
}

// MergeManifests implements lang.ManifestEditor.
//
// # Description
//
// Dependencies missing from the target are appended to the same section.
// A dependency declared by both is a conflict unless the requirements are
// compatible; the target's declaration is kept. Dependencies naming either
// merged package are dropped. file: and link: paths are re-relativised to
// the target manifest.
func (p *Plugin) MergeManifests(_ context.Context, target, source lang.Document) (*lang.MergeResult, error) {
	if err := checkJSON(target.Path, target.Content); err != nil {
		return nil, err
	}
	if err := checkJSON(source.Path, source.Content); err != nil {
		return nil, err
	}

	self := map[string]bool{}
	for _, n := range []string{packageName(target.Content), packageName(source.Content)} {
		if n != "" {
			self[n] = true
		}
	}

	out := target.Content
	res := &lang.MergeResult{}
	have := make(map[string]lang.Dependency)
	for _, d := range dependencies(target.Content) {
		if self[d.Name] {
			out, _ = removeKey(out, d.Section, d.Name)
			res.Dropped = append(res.Dropped, d.Name)
			continue
		}
		have[d.Name] = d
	}

	for _, d := range dependencies(source.Content) {
		if self[d.Name] {
			res.Dropped = append(res.Dropped, d.Name)
			continue
		}
		spec := d.Version
		if prefix, written, ok := splitLocal(d.Version); ok {
			if rel, ok := relocate(source.Path, target.Path, written, "", ""); ok {
				spec = prefix + rel
			}
		}
		if existing, ok := have[d.Name]; ok {
			if existing.Version != spec && !lang.CompatibleVersions(existing.Version, spec) {
				res.Conflicts = append(res.Conflicts, lang.DependencyConflict{
					Name:       d.Name,
					TargetSpec: existing.Version,
					SourceSpec: spec,
				})
			}
			continue
		}
		var err error
		if _, _, _, serr := span(out, d.Section); serr != nil {
			out, err = setMember(out, nil, d.Section, "{}")
			if err != nil {
				return nil, err
			}
		}
		out, err = setMember(out, []string{d.Section}, d.Name, quote(spec))
		if err != nil {
			return nil, err
		}
		have[d.Name] = lang.Dependency{Name: d.Name, Version: spec, Section: d.Section}
		res.Added = append(res.Added, d.Name)
	}

	sort.Strings(res.Added)
	sort.Strings(res.Dropped)
	res.Content = out
	return res, nil
}

// WorkspaceManifestName implements lang.WorkspaceEditor. npm, yarn and bun
// declare workspaces in the root package.json.
func (p *Plugin) WorkspaceManifestName() string { return "package.json" }

// workspaceKeys returns the key path of the workspace member array.
func workspaceKeys(content []byte) ([]string, bool) {
	_, typ, _, err := jsonparser.Get(content, "workspaces")
	if err != nil {
		return nil, false
	}
	switch typ {
	case jsonparser.Array:
		return []string{"workspaces"}, true
	case jsonparser.Object:
		if _, t, _, err := jsonparser.Get(content, "workspaces", "packages"); err == nil && t == jsonparser.Array {
			return []string{"workspaces", "packages"}, true
		}
	}
	return nil, false
}

func workspacePatterns(content []byte) ([]string, error) {
	keys, ok := workspaceKeys(content)
	if !ok {
		return nil, lang.ErrNotManifest
	}
	return stringElements(content, keys...), nil
}

// IsWorkspace implements lang.WorkspaceEditor.
func (p *Plugin) IsWorkspace(_ context.Context, _ string, content []byte) bool {
	_, ok := workspaceKeys(content)
	return ok
}

// ListMembers implements lang.WorkspaceEditor. Members may be glob
// patterns.
func (p *Plugin) ListMembers(_ context.Context, path string, content []byte) ([]string, error) {
	members, err := workspacePatterns(content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return members, nil
}

func sameMember(a, b string) bool {
	return path.Clean(strings.TrimPrefix(a, "./")) == path.Clean(strings.TrimPrefix(b, "./"))
}

// AddMember implements lang.WorkspaceEditor.
func (p *Plugin) AddMember(_ context.Context, path string, content []byte, member string) ([]byte, error) {
	keys, ok := workspaceKeys(content)
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, lang.ErrNotManifest)
	}
	member = filepath.ToSlash(member)
	for _, m := range stringElements(content, keys...) {
		if sameMember(m, member) {
			return content, nil
		}
	}
	start, end, _, err := span(content, keys...)
	if err != nil {
		return nil, err
	}
	return insertEntry(content, start, end, quote(strings.TrimPrefix(member, "./")))
}

// RemoveMember implements lang.WorkspaceEditor.
func (p *Plugin) RemoveMember(_ context.Context, path string, content []byte, member string) ([]byte, error) {
	keys, ok := workspaceKeys(content)
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, lang.ErrNotManifest)
	}
	members := stringElements(content, keys...)
	for i := len(members) - 1; i >= 0; i-- {
		if !sameMember(members[i], filepath.ToSlash(member)) {
			continue
		}
		start, end, _, err := span(content, append(append([]string(nil), keys...), indexKey(i))...)
		if err != nil {
			return nil, err
		}
		content = removeEntry(content, start, end)
	}
	return content, nil
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
