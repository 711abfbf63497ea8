// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package refs

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/AleutianAI/AleutianRefactor/services/refactor/plan"
)

// DefaultExcludes are directory names skipped at any depth.
var DefaultExcludes = []string{
	".git",
	"node_modules",
	"vendor",
	"target",
	"dist",
	"build",
	"__pycache__",
	".venv",
}

// ScopeKind selects how much of the workspace is scanned.
type ScopeKind string

const (
	ScopeWorkspace ScopeKind = "workspace"
	ScopeDirectory ScopeKind = "directory"
	ScopeFile      ScopeKind = "file"
)

// Scope restricts the files scanned for references. The zero value scans
// the whole workspace.
type Scope struct {
	Kind ScopeKind `json:"kind,omitempty"`

	// Path is the file or directory for file and directory scopes.
	Path string `json:"path,omitempty"`
}

// base returns the path the scope walks from.
func (s Scope) base(root string) (string, error) {
	switch s.Kind {
	case "", ScopeWorkspace:
		return root, nil
	case ScopeDirectory, ScopeFile:
		if s.Path == "" {
			return "", plan.Errorf(plan.CodeInvalidRequest, "%s scope needs a path", s.Kind)
		}
		p := s.Path
		if !filepath.IsAbs(p) {
			p = filepath.Join(root, p)
		}
		p = filepath.Clean(p)
		if !within(p, root) {
			return "", plan.Errorf(plan.CodeInvalidRequest, "scope %s is outside the workspace", s.Path)
		}
		return p, nil
	default:
		return "", plan.Errorf(plan.CodeInvalidRequest, "unknown scope kind %q", s.Kind)
	}
}

// excluder decides which paths are skipped.
//
// Patterns without a slash match any single path segment, so "vendor"
// skips every vendor directory. Patterns with a slash match the
// root-relative path and may use ** for any number of segments.
type excluder struct {
	root     string
	segments map[string]struct{}
	globs    []string
}

func newExcluder(root string, patterns ...[]string) *excluder {
	e := &excluder{root: root, segments: make(map[string]struct{})}
	for _, list := range patterns {
		for _, p := range list {
			p = filepath.ToSlash(strings.TrimSpace(p))
			p = strings.TrimSuffix(p, "/")
			switch {
			case p == "":
			case !strings.Contains(p, "/") && !strings.ContainsAny(p, "*?["):
				e.segments[p] = struct{}{}
			default:
				e.globs = append(e.globs, p)
			}
		}
	}
	return e
}

func (e *excluder) excluded(path string) bool {
	rel, err := filepath.Rel(e.root, path)
	if err != nil || rel == "." {
		return false
	}
	rel = filepath.ToSlash(rel)
	segs := strings.Split(rel, "/")
	for _, seg := range segs {
		if _, ok := e.segments[seg]; ok {
			return true
		}
	}
	for _, g := range e.globs {
		if !strings.Contains(g, "/") {
			for _, seg := range segs {
				if ok, _ := filepath.Match(g, seg); ok {
					return true
				}
			}
			continue
		}
		if matchGlob(g, rel) {
			return true
		}
	}
	return false
}

// matchGlob matches a slash-separated path against a pattern where **
// spans any number of segments, including none.
func matchGlob(pattern, path string) bool {
	return matchSegments(strings.Split(pattern, "/"), strings.Split(path, "/"))
}

func matchSegments(pattern, path []string) bool {
	for len(pattern) > 0 {
		if pattern[0] == "**" {
			for i := 0; i <= len(path); i++ {
				if matchSegments(pattern[1:], path[i:]) {
					return true
				}
			}
			return false
		}
		if len(path) == 0 {
			return false
		}
		if ok, _ := filepath.Match(pattern[0], path[0]); !ok {
			return false
		}
		pattern, path = pattern[1:], path[1:]
	}
	return len(path) == 0
}

// inventory is the result of one walk over a scope.
type inventory struct {
	sources   []string
	manifests []string
}

// walk enumerates source files and manifests under base.
//
// # Description
//
// Sources are files whose extension some plugin recognises; manifests are
// files named like a plugin's manifest or workspace manifest. Excluded
// directories are not descended into. Both lists are sorted.
func (u *Updater) walk(ctx context.Context, root, base string, exclude []string) (*inventory, error) {
	ex := newExcluder(root, DefaultExcludes, u.excludes, exclude)
	manifestNames := make(map[string]struct{})
	for _, name := range u.registry.ManifestNames() {
		manifestNames[name] = struct{}{}
	}

	inv := &inventory{}
	err := afero.Walk(u.fs, base, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if path == base {
				return err
			}
			u.logger.Debug("skipping unreadable path", "path", path, "error", err)
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if ex.excluded(path) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return nil
		}
		if _, ok := manifestNames[filepath.Base(path)]; ok {
			inv.manifests = append(inv.manifests, path)
			return nil
		}
		if u.registry.IsSource(path) {
			inv.sources = append(inv.sources, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(inv.sources)
	sort.Strings(inv.manifests)
	return inv, nil
}

// listFiles returns every regular file under dir, sorted.
func (u *Updater) listFiles(dir string) ([]string, error) {
	var files []string
	err := afero.Walk(u.fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

func within(p, dir string) bool {
	return p == dir || strings.HasPrefix(p, dir+string(filepath.Separator))
}

func rebase(p, oldDir, newDir string) string {
	if p == oldDir {
		return newDir
	}
	return filepath.Join(newDir, strings.TrimPrefix(p, oldDir+string(filepath.Separator)))
}

func mergeSorted(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, p := range list {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}
