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
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianRefactor/services/refactor/lang"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/plan"
)

// ConsolidateRequest asks for the edits merging SourceDir into TargetDir,
// where both directories declare a package with the same kind of
// manifest.
type ConsolidateRequest struct {
	Root      string  `json:"root"`
	SourceDir string  `json:"source_dir"`
	TargetDir string  `json:"target_dir"`
	Options   Options `json:"options"`
}

// ConsolidateResult is a reference scan plus the manifest merge.
type ConsolidateResult struct {
	Result

	// TargetManifest receives the merged dependencies.
	TargetManifest string `json:"target_manifest"`

	// SourceManifest is not moved; callers delete it.
	SourceManifest string `json:"source_manifest"`

	Merge *lang.MergeResult `json:"merge"`

	// Cycles are dependency cycles through the merged package.
	Cycles [][]string `json:"cycles,omitempty"`
}

// Consolidate merges one package directory into another.
//
// # Description
//
// The source manifest's dependencies are merged into the target manifest;
// dependencies declared differently by both sides are reported as
// manifest_conflict warnings and the target's declaration is kept. Every
// other file moves as in UpdateReferences, importers of the source package
// are rewritten to the target package, and manifests depending on the
// source are renamed to depend on the target. Finally the workspace
// package graph is rebuilt with the two packages contracted into one and
// any cycle through the merged package is reported as a dependency_cycle
// warning.
//
// Conflict and cycle detection always run; nothing here depends on how the
// resulting plan is later applied.
func (u *Updater) Consolidate(ctx context.Context, req ConsolidateRequest) (*ConsolidateResult, error) {
	ctx, span := startSpan(ctx, "Updater.Consolidate",
		attribute.String("refs.source", req.SourceDir),
		attribute.String("refs.target", req.TargetDir),
	)
	defer span.End()

	fail := func(err error) (*ConsolidateResult, error) {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	source, target, d, err := u.commonManifest(req)
	if err != nil {
		return fail(err)
	}
	srcContent, err := afero.ReadFile(u.fs, source)
	if err != nil {
		return fail(err)
	}
	tgtContent, err := afero.ReadFile(u.fs, target)
	if err != nil {
		return fail(err)
	}
	srcManifest, err := d.Manifest.ParseManifest(ctx, source, srcContent)
	if err != nil {
		return fail(plan.Wrap(plan.CodeInvalidRequest, err, "source manifest is invalid"))
	}
	tgtManifest, err := d.Manifest.ParseManifest(ctx, target, tgtContent)
	if err != nil {
		return fail(plan.Wrap(plan.CodeInvalidRequest, err, "target manifest is invalid"))
	}
	merge, err := d.Manifest.MergeManifests(ctx,
		lang.Document{Path: target, Content: tgtContent},
		lang.Document{Path: source, Content: srcContent},
	)
	if err != nil {
		return fail(err)
	}

	j, err := u.prepare(ctx, Request{
		Root:    req.Root,
		OldPath: req.SourceDir,
		NewPath: req.TargetDir,
		Kind:    plan.SelectorDirectory,
		Options: req.Options,
	}, map[string]bool{source: true})
	if err != nil {
		return fail(err)
	}
	j.oldIdentity, j.newIdentity = srcManifest.Name, tgtManifest.Name
	j.skip[source], j.skip[target] = true, true
	for _, c := range merge.Conflicts {
		j.warnings = append(j.warnings, plan.Warning{
			Code: plan.WarnManifestConflict,
			Message: fmt.Sprintf("dependency %s: %s declares %s, %s declares %s; keeping %s",
				c.Name, target, c.TargetSpec, source, c.SourceSpec, c.TargetSpec),
		})
	}

	res, err := u.run(ctx, j)
	if err != nil {
		span.RecordError(err)
		return fail(err)
	}

	acc := newAccumulator()
	for i := range res.Affected {
		acc.addFiles(&res.Affected[i])
	}
	acc.warnings = res.Warnings
	if edit, ok := plan.ContentEdit(target, tgtContent, merge.Content); ok {
		edit.Description = fmt.Sprintf("merge %s dependencies", srcManifest.Name)
		acc.addEdit(target, edit)
	}

	cycles, err := u.mergedCycles(ctx, req.Root, d, srcManifest.Name, tgtManifest.Name, source, merge)
	if err != nil {
		return fail(err)
	}
	for _, c := range cycles {
		acc.warnings = append(acc.warnings, plan.Warning{
			Code:    plan.WarnDependencyCycle,
			Message: "merging creates a dependency cycle: " + FormatCycle(c),
		})
	}

	merged := acc.result()
	merged.Moves = res.Moves
	merged.Language = d.ID
	span.SetAttributes(
		attribute.Int("refs.conflicts", len(merge.Conflicts)),
		attribute.Int("refs.cycles", len(cycles)),
	)
	u.logger.Info("consolidation planned",
		"source", req.SourceDir,
		"target", req.TargetDir,
		"added", len(merge.Added),
		"conflicts", len(merge.Conflicts),
		"cycles", len(cycles),
	)
	return &ConsolidateResult{
		Result:         *merged,
		TargetManifest: target,
		SourceManifest: source,
		Merge:          merge,
		Cycles:         cycles,
	}, nil
}

// CommonManifest returns the manifest file name both directories declare,
// or "" when they share none. It is how callers decide whether a
// directory move is a consolidation.
func (u *Updater) CommonManifest(sourceDir, targetDir string) string {
	for _, name := range u.registry.ManifestNames() {
		if u.isFile(filepath.Join(sourceDir, name)) && u.isFile(filepath.Join(targetDir, name)) {
			for _, d := range u.registry.LookupManifest(name) {
				if d.Manifest != nil && d.ManifestName == name {
					return name
				}
			}
		}
	}
	return ""
}

func (u *Updater) commonManifest(req ConsolidateRequest) (source, target string, d *lang.Descriptor, err error) {
	for _, p := range []string{req.Root, req.SourceDir, req.TargetDir} {
		if !filepath.IsAbs(p) {
			return "", "", nil, plan.Errorf(plan.CodeInvalidRequest, "paths must be absolute: %s", p)
		}
	}
	req.SourceDir, req.TargetDir = filepath.Clean(req.SourceDir), filepath.Clean(req.TargetDir)
	if within(req.SourceDir, req.TargetDir) || within(req.TargetDir, req.SourceDir) {
		return "", "", nil, plan.Errorf(plan.CodeInvalidRequest, "cannot consolidate nested directories %s and %s", req.SourceDir, req.TargetDir)
	}
	name := u.CommonManifest(req.SourceDir, req.TargetDir)
	if name == "" {
		return "", "", nil, plan.Errorf(plan.CodeInvalidRequest, "%s and %s do not share a manifest type", req.SourceDir, req.TargetDir).
			WithSuggestion("move the directory instead of consolidating it")
	}
	for _, cand := range u.registry.LookupManifest(name) {
		if cand.Manifest != nil && cand.ManifestName == name {
			d = cand
			break
		}
	}
	return filepath.Join(req.SourceDir, name), filepath.Join(req.TargetDir, name), d, nil
}

func (u *Updater) isFile(path string) bool {
	info, err := u.fs.Stat(path)
	return err == nil && !info.IsDir()
}

// mergedCycles builds the workspace package graph for d's manifest type,
// contracts the source package into the target and returns the cycles
// through the target.
func (u *Updater) mergedCycles(ctx context.Context, root string, d *lang.Descriptor, sourceName, targetName, sourceManifest string, merge *lang.MergeResult) ([][]string, error) {
	inv, err := u.walk(ctx, root, root, nil)
	if err != nil {
		return nil, err
	}
	g, err := u.PackageGraph(ctx, d, inv.manifests)
	if err != nil {
		return nil, err
	}
	if sourceName == "" {
		sourceName = filepath.Dir(sourceManifest)
	}
	if targetName == "" || !g.Has(targetName) {
		return nil, nil
	}
	g.Contract(sourceName, targetName)
	for _, dep := range merge.Added {
		if g.Has(dep) {
			g.AddEdge(targetName, dep)
		}
	}
	return g.CyclesThrough(targetName), nil
}

// PackageGraph builds the dependency graph between the workspace packages
// declared by manifests of d's type. Nodes are package names, or the
// manifest's directory for unnamed packages. Edges follow path
// dependencies and dependencies naming another workspace package.
// Unparseable manifests are skipped.
func (u *Updater) PackageGraph(ctx context.Context, d *lang.Descriptor, manifests []string) (*Graph, error) {
	type pkg struct {
		dir      string
		name     string
		manifest *lang.Manifest
	}
	var pkgs []pkg
	byDir := make(map[string]string)
	g := NewGraph()
	for _, path := range manifests {
		if filepath.Base(path) != d.ManifestName || d.Manifest == nil {
			continue
		}
		content, err := u.read(path)
		if err != nil {
			continue
		}
		m, err := d.Manifest.ParseManifest(ctx, path, content)
		if err != nil {
			continue
		}
		name := m.Name
		if name == "" {
			name = filepath.Dir(path)
		}
		g.Node(name)
		byDir[filepath.Dir(path)] = name
		pkgs = append(pkgs, pkg{dir: filepath.Dir(path), name: name, manifest: m})
	}
	for _, p := range pkgs {
		for _, dep := range p.manifest.Dependencies {
			if dep.Path != "" {
				if to, ok := byDir[filepath.Clean(filepath.Join(p.dir, filepath.FromSlash(dep.Path)))]; ok {
					g.AddEdge(p.name, to)
					continue
				}
			}
			if g.Has(dep.Name) {
				g.AddEdge(p.name, dep.Name)
			}
		}
	}
	return g, nil
}
