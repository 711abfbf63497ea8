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
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/mod/modfile"

	"github.com/AleutianAI/AleutianRefactor/services/refactor/lang"
)

func parseMod(path string, content []byte) (*modfile.File, error) {
	f, err := modfile.Parse(path, content, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", lang.ErrNotManifest, err)
	}
	return f, nil
}

func formatMod(f *modfile.File) ([]byte, error) {
	f.Cleanup()
	return f.Format()
}

// localReplace reports whether r points at a directory.
func localReplace(r *modfile.Replace) bool {
	return r.New.Version == "" && modfile.IsDirectoryPath(r.New.Path)
}

// ParseManifest implements lang.ManifestEditor.
func (p *Plugin) ParseManifest(_ context.Context, path string, content []byte) (*lang.Manifest, error) {
	f, err := parseMod(path, content)
	if err != nil {
		return nil, err
	}
	m := &lang.Manifest{Path: path}
	if f.Module != nil {
		m.Name = f.Module.Mod.Path
	}
	local := make(map[string]string)
	for _, r := range f.Replace {
		if localReplace(r) {
			local[r.Old.Path] = r.New.Path
		}
	}
	for _, r := range f.Require {
		m.Dependencies = append(m.Dependencies, lang.Dependency{
			Name:    r.Mod.Path,
			Version: r.Mod.Version,
			Path:    local[r.Mod.Path],
			Section: "require",
		})
	}
	return m, nil
}

// RewriteDependencyPaths implements lang.ManifestEditor by rewriting local
// replace directives.
func (p *Plugin) RewriteDependencyPaths(_ context.Context, path string, content []byte, oldDir, newDir, manifestNewPath string) ([]byte, error) {
	f, err := parseMod(path, content)
	if err != nil {
		return nil, err
	}
	changed := false
	for _, r := range f.Replace {
		if !localReplace(r) {
			continue
		}
		rel, ok := relocate(path, manifestNewPath, r.New.Path, oldDir, newDir)
		if !ok || rel == r.New.Path {
			continue
		}
		if err := f.AddReplace(r.Old.Path, r.Old.Version, rel, ""); err != nil {
			return nil, err
		}
		changed = true
	}
	if !changed {
		return content, nil
	}
	return formatMod(f)
}

// relocate recomputes a manifest-relative directory path after the target
// and the manifest may both have moved.
func relocate(manifest, manifestNew, written, oldDir, newDir string) (string, bool) {
	target := filepath.Clean(filepath.Join(filepath.Dir(manifest), filepath.FromSlash(written)))
	moved := target
	if within(target, oldDir) {
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
	if !strings.HasPrefix(rel, ".") {
		rel = "./" + rel
	}
	return rel, true
}

// RenameDependency implements lang.ManifestEditor.
func (p *Plugin) RenameDependency(_ context.Context, path string, content []byte, oldName, newName string) ([]byte, error) {
	f, err := parseMod(path, content)
	if err != nil {
		return nil, err
	}
	changed := false
	for _, r := range f.Require {
		if r.Mod.Path != oldName {
			continue
		}
		version := r.Mod.Version
		if err := f.DropRequire(oldName); err != nil {
			return nil, err
		}
		if err := f.AddRequire(newName, version); err != nil {
			return nil, err
		}
		changed = true
		break
	}
	for _, r := range f.Replace {
		if r.Old.Path != oldName {
			continue
		}
		old, repl := r.Old, r.New
		if err := f.DropReplace(old.Path, old.Version); err != nil {
			return nil, err
		}
		if err := f.AddReplace(newName, old.Version, repl.Path, repl.Version); err != nil {
			return nil, err
		}
		changed = true
		break
	}
	if !changed {
		return content, nil
	}
	return formatMod(f)
}

// UpdatePackageIdentity implements lang.ManifestEditor by rewriting the
// module directive.
func (p *Plugin) UpdatePackageIdentity(_ context.Context, path string, content []byte, newName string) ([]byte, error) {
	f, err := parseMod(path, content)
	if err != nil {
		return nil, err
	}
	if err := f.AddModuleStmt(newName); err != nil {
		return nil, err
	}
	return formatMod(f)
}

// MergeManifests implements lang.ManifestEditor.
//
// # Description
//
// Requirements missing from the target are added. A requirement present in
// both at different versions is a conflict and keeps the target's version.
// Requirements on either merged module are dropped. Local replace
// directives are carried over with paths re-relativised to the target.
func (p *Plugin) MergeManifests(_ context.Context, target, source lang.Document) (*lang.MergeResult, error) {
	tf, err := parseMod(target.Path, target.Content)
	if err != nil {
		return nil, err
	}
	sf, err := parseMod(source.Path, source.Content)
	if err != nil {
		return nil, err
	}

	self := map[string]bool{}
	if tf.Module != nil {
		self[tf.Module.Mod.Path] = true
	}
	if sf.Module != nil {
		self[sf.Module.Mod.Path] = true
	}

	res := &lang.MergeResult{}
	have := make(map[string]string, len(tf.Require))
	for _, r := range tf.Require {
		have[r.Mod.Path] = r.Mod.Version
	}
	for name := range have {
		if self[name] {
			// DropRequire zeroes the entry in place.
			if err := tf.DropRequire(name); err != nil {
				return nil, err
			}
			res.Dropped = append(res.Dropped, name)
		}
	}

	for _, r := range sf.Require {
		name := r.Mod.Path
		switch v, ok := have[name]; {
		case self[name]:
			res.Dropped = append(res.Dropped, name)
		case !ok:
			if err := tf.AddRequire(name, r.Mod.Version); err != nil {
				return nil, err
			}
			have[name] = r.Mod.Version
			res.Added = append(res.Added, name)
		case v != r.Mod.Version:
			res.Conflicts = append(res.Conflicts, lang.DependencyConflict{
				Name:       name,
				TargetSpec: v,
				SourceSpec: r.Mod.Version,
			})
		}
	}

	replaced := make(map[string]bool, len(tf.Replace))
	for _, r := range tf.Replace {
		replaced[r.Old.Path] = true
	}
	var selfReplaces [][2]string
	for _, r := range tf.Replace {
		if self[r.Old.Path] {
			selfReplaces = append(selfReplaces, [2]string{r.Old.Path, r.Old.Version})
		}
	}
	for _, r := range selfReplaces {
		if err := tf.DropReplace(r[0], r[1]); err != nil {
			return nil, err
		}
	}
	for _, r := range sf.Replace {
		if replaced[r.Old.Path] || self[r.Old.Path] {
			continue
		}
		newPath := r.New.Path
		if localReplace(r) {
			rel, ok := relocate(source.Path, target.Path, r.New.Path, "", "")
			if ok {
				newPath = rel
			}
		}
		if err := tf.AddReplace(r.Old.Path, r.Old.Version, newPath, r.New.Version); err != nil {
			return nil, err
		}
	}

	sort.Strings(res.Added)
	sort.Strings(res.Dropped)
	res.Content, err = formatMod(tf)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// WorkspaceManifestName implements lang.WorkspaceEditor.
func (p *Plugin) WorkspaceManifestName() string { return "go.work" }

// IsWorkspace implements lang.WorkspaceEditor.
func (p *Plugin) IsWorkspace(_ context.Context, path string, content []byte) bool {
	if filepath.Base(path) != "go.work" {
		return false
	}
	_, err := modfile.ParseWork(path, content, nil)
	return err == nil
}

// ListMembers implements lang.WorkspaceEditor.
func (p *Plugin) ListMembers(_ context.Context, path string, content []byte) ([]string, error) {
	wf, err := modfile.ParseWork(path, content, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", lang.ErrNotManifest, err)
	}
	out := make([]string, 0, len(wf.Use))
	for _, u := range wf.Use {
		out = append(out, u.Path)
	}
	return out, nil
}

// AddMember implements lang.WorkspaceEditor.
func (p *Plugin) AddMember(_ context.Context, path string, content []byte, member string) ([]byte, error) {
	wf, err := modfile.ParseWork(path, content, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", lang.ErrNotManifest, err)
	}
	if !strings.HasPrefix(member, ".") && !filepath.IsAbs(member) {
		member = "./" + member
	}
	for _, u := range wf.Use {
		if filepath.Clean(u.Path) == filepath.Clean(member) {
			return content, nil
		}
	}
	if err := wf.AddUse(member, ""); err != nil {
		return nil, err
	}
	wf.Cleanup()
	return modfile.Format(wf.Syntax), nil
}

// RemoveMember implements lang.WorkspaceEditor.
func (p *Plugin) RemoveMember(_ context.Context, path string, content []byte, member string) ([]byte, error) {
	wf, err := modfile.ParseWork(path, content, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", lang.ErrNotManifest, err)
	}
	changed := false
	for _, u := range wf.Use {
		if filepath.Clean(u.Path) != filepath.Clean(member) {
			continue
		}
		if err := wf.DropUse(u.Path); err != nil {
			return nil, err
		}
		changed = true
	}
	if !changed {
		return content, nil
	}
	wf.Cleanup()
	return modfile.Format(wf.Syntax), nil
}
