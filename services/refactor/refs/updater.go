// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package refs is the Reference Updater: it finds every file that refers
// to a moved path or renamed symbol and asks the file's language plugin
// for the minimal edits that keep those references valid.
//
// # Description
//
// The updater never writes. It reads candidate files through an afero.Fs,
// dispatches to plugins through the Capability Registry, and returns edits
// grouped per file. Files in languages without a reference capability are
// skipped; files that fail to parse produce a parse_error warning and no
// edits.
//
// Scanning is parallel with a bounded number of workers; results are
// deterministic regardless of scheduling.
package refs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianRefactor/services/refactor/lang"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/plan"
)

// DefaultMaxFileSize bounds the files the updater reads.
const DefaultMaxFileSize = 4 << 20

// Updater computes cross-file reference edits.
//
// # Thread Safety
//
// Safe for concurrent use; it holds no mutable state.
type Updater struct {
	registry    *lang.Registry
	fs          afero.Fs
	concurrency int
	maxFileSize int64
	excludes    []string
	logger      *slog.Logger
}

// Option configures an Updater.
type Option func(*Updater)

// WithConcurrency bounds the number of files scanned at once.
func WithConcurrency(n int) Option {
	return func(u *Updater) {
		if n > 0 {
			u.concurrency = n
		}
	}
}

// WithMaxFileSize skips files larger than n bytes.
func WithMaxFileSize(n int64) Option {
	return func(u *Updater) {
		if n > 0 {
			u.maxFileSize = n
		}
	}
}

// WithExcludes adds exclusion patterns applied to every scan.
func WithExcludes(patterns ...string) Option {
	return func(u *Updater) {
		u.excludes = append(u.excludes, patterns...)
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(u *Updater) {
		if l != nil {
			u.logger = l
		}
	}
}

// NewUpdater creates an Updater over registry and fs.
func NewUpdater(registry *lang.Registry, fs afero.Fs, opts ...Option) *Updater {
	u := &Updater{
		registry:    registry,
		fs:          fs,
		concurrency: runtime.GOMAXPROCS(0),
		maxFileSize: DefaultMaxFileSize,
		logger:      slog.Default().With("component", "refs.Updater"),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Options control a reference scan.
type Options struct {
	// UpdateImports enables rewriting references in source files. When
	// false only moves and manifest edits are computed.
	UpdateImports bool `json:"update_imports"`

	// Scope limits the files scanned for references. Moved files are
	// always rewritten.
	Scope Scope `json:"scope"`

	// Exclude adds exclusion patterns for this request.
	Exclude []string `json:"exclude,omitempty"`
}

// Request asks for the edits that follow a file or directory move.
type Request struct {
	Root    string            `json:"root"`
	OldPath string            `json:"old_path"`
	NewPath string            `json:"new_path"`
	Kind    plan.SelectorKind `json:"kind,omitempty"`

	// NewIdentity renames the package declared by a manifest at the root
	// of a moved directory, along with every dependency on it.
	NewIdentity string `json:"new_identity,omitempty"`

	Options Options `json:"options"`
}

// AffectedFile is one file that needs edits.
type AffectedFile struct {
	Path string `json:"path"`

	// References are the reference statements the edits touch.
	References []lang.Reference `json:"references,omitempty"`

	Edits []plan.TextEdit `json:"edits"`
}

// PathMove is one file relocation implied by a request.
type PathMove struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Result is the outcome of a reference scan.
type Result struct {
	Affected []AffectedFile `json:"affected"`
	Moves    []PathMove     `json:"moves,omitempty"`
	Warnings []plan.Warning `json:"warnings,omitempty"`

	// Language is the language of the moved or renamed target, if known.
	Language string `json:"language,omitempty"`
}

// Edits flattens the per-file edits in path order.
func (r *Result) Edits() []plan.TextEdit {
	var out []plan.TextEdit
	for _, af := range r.Affected {
		out = append(out, af.Edits...)
	}
	return out
}

// job is a validated move request with its derived state.
type job struct {
	req     Request
	moves   []PathMove
	forward map[string]string
	reverse map[string]string

	oldIdentity      string
	newIdentity      string
	identityManifest string

	// skip lists manifests the manifest phase leaves alone.
	skip map[string]bool

	warnings []plan.Warning
}

func (j *job) locate(path string) string {
	if to, ok := j.forward[path]; ok {
		return to
	}
	if j.req.Kind == plan.SelectorDirectory && within(path, j.req.OldPath) {
		return rebase(path, j.req.OldPath, j.req.NewPath)
	}
	return path
}

// origin maps a post-move path back to where that file lives today.
func (j *job) origin(path string) string {
	if from, ok := j.reverse[path]; ok {
		return from
	}
	return path
}

func (j *job) langMove() lang.Move {
	return lang.Move{
		Root:        j.req.Root,
		OldPath:     j.req.OldPath,
		NewPath:     j.req.NewPath,
		IsDir:       j.req.Kind == plan.SelectorDirectory,
		NewLocation: j.locate,
		OldPackage:  j.oldIdentity,
		NewPackage:  j.newIdentity,
	}
}

// UpdateReferences computes every edit needed to keep references valid
// after moving req.OldPath to req.NewPath.
//
// # Description
//
// The scan runs in phases: source references in scope (in parallel),
// module declarations for languages that require them, then manifest and
// workspace edits. Edits address files at their current paths; moves are
// reported separately in Result.Moves.
//
// # Outputs
//
//	*Result - Affected files sorted by path, moves, and warnings.
//	error - INVALID_REQUEST or NOT_FOUND for bad requests; I/O failures.
func (u *Updater) UpdateReferences(ctx context.Context, req Request) (*Result, error) {
	ctx, span := startSpan(ctx, "Updater.UpdateReferences",
		attribute.String("refs.old_path", req.OldPath),
		attribute.String("refs.new_path", req.NewPath),
	)
	defer span.End()

	j, err := u.prepare(ctx, req, nil)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	res, err := u.run(ctx, j)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("refs.affected", len(res.Affected)))
	return res, nil
}

// prepare validates a request and computes its moves. Files in drop are
// left out of the move set.
func (u *Updater) prepare(ctx context.Context, req Request, drop map[string]bool) (*job, error) {
	if !filepath.IsAbs(req.Root) || !filepath.IsAbs(req.OldPath) || !filepath.IsAbs(req.NewPath) {
		return nil, plan.Errorf(plan.CodeInvalidRequest, "root, old_path and new_path must be absolute")
	}
	req.Root = filepath.Clean(req.Root)
	req.OldPath = filepath.Clean(req.OldPath)
	req.NewPath = filepath.Clean(req.NewPath)
	if req.OldPath == req.NewPath {
		return nil, plan.Errorf(plan.CodeInvalidRequest, "old and new path are the same: %s", req.OldPath)
	}
	if !within(req.OldPath, req.Root) || !within(req.NewPath, req.Root) || req.OldPath == req.Root {
		return nil, plan.Errorf(plan.CodeInvalidRequest, "paths must lie inside the workspace %s", req.Root)
	}

	info, err := u.fs.Stat(req.OldPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, plan.Errorf(plan.CodeNotFound, "%s does not exist", req.OldPath)
		}
		return nil, err
	}
	kind := plan.SelectorFile
	if info.IsDir() {
		kind = plan.SelectorDirectory
	}
	if req.Kind != "" && req.Kind != kind {
		return nil, plan.Errorf(plan.CodeInvalidRequest, "%s is not a %s", req.OldPath, req.Kind)
	}
	req.Kind = kind
	if kind == plan.SelectorDirectory && within(req.NewPath, req.OldPath) {
		return nil, plan.Errorf(plan.CodeInvalidRequest, "cannot move %s into itself", req.OldPath)
	}

	j := &job{
		req:     req,
		forward: make(map[string]string),
		reverse: make(map[string]string),
		skip:    make(map[string]bool),
	}

	files := []string{req.OldPath}
	if kind == plan.SelectorDirectory {
		if files, err = u.listFiles(req.OldPath); err != nil {
			return nil, err
		}
	}
	var collisions []string
	for _, from := range files {
		if drop[from] {
			continue
		}
		to := req.NewPath
		if kind == plan.SelectorDirectory {
			to = rebase(from, req.OldPath, req.NewPath)
		}
		if _, err := u.fs.Stat(to); err == nil {
			collisions = append(collisions, to)
			continue
		}
		j.moves = append(j.moves, PathMove{From: from, To: to})
		j.forward[from] = to
		j.reverse[to] = from
	}
	if len(collisions) > 0 {
		return nil, plan.Errorf(plan.CodeInvalidRequest, "destination already exists: %v", collisions).
			WithFiles(collisions...).
			WithSuggestion("choose a destination that does not exist or remove the conflicting files")
	}

	if req.NewIdentity != "" && kind == plan.SelectorDirectory {
		u.resolveIdentity(ctx, j)
	}
	return j, nil
}

// resolveIdentity finds the manifest at the moved directory's root and
// records the package name being replaced.
func (u *Updater) resolveIdentity(ctx context.Context, j *job) {
	for _, name := range u.registry.ManifestNames() {
		path := filepath.Join(j.req.OldPath, name)
		content, err := afero.ReadFile(u.fs, path)
		if err != nil {
			continue
		}
		for _, d := range u.registry.LookupManifest(path) {
			if d.Manifest == nil || d.ManifestName != name {
				continue
			}
			m, err := d.Manifest.ParseManifest(ctx, path, content)
			if err != nil || m.Name == "" {
				continue
			}
			j.oldIdentity = m.Name
			j.newIdentity = j.req.NewIdentity
			j.identityManifest = path
			return
		}
	}
	j.warnings = append(j.warnings, plan.Warning{
		Code:    plan.WarnUnsupportedCap,
		Message: fmt.Sprintf("no manifest at %s declares a package identity; %q not applied", j.req.OldPath, j.req.NewIdentity),
	})
}

// run executes the scan phases for a prepared job.
func (u *Updater) run(ctx context.Context, j *job) (*Result, error) {
	start := time.Now()
	base, err := j.req.Options.Scope.base(j.req.Root)
	if err != nil {
		return nil, err
	}
	inv, err := u.walk(ctx, j.req.Root, base, j.req.Options.Exclude)
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", base, err)
	}

	acc := newAccumulator()
	acc.warnings = append(acc.warnings, j.warnings...)

	var movedSources []string
	for _, mv := range j.moves {
		if u.registry.IsSource(mv.From) {
			movedSources = append(movedSources, mv.From)
		}
	}
	sources := mergeSorted(inv.sources, movedSources)

	parseFailures := 0
	if j.req.Options.UpdateImports {
		var mu sync.Mutex
		var rewriteWarnings []plan.Warning
		move := j.langMove()
		move.Warn = func(w plan.Warning) {
			mu.Lock()
			defer mu.Unlock()
			rewriteWarnings = append(rewriteWarnings, w)
		}
		files, warnings, err := u.scan(ctx, sources, func(ctx context.Context, d *lang.Descriptor, path string, content []byte) (*AffectedFile, error) {
			edits, err := d.References.RewriteForMove(ctx, path, content, move)
			if err != nil || len(edits) == 0 {
				return nil, err
			}
			refs, err := d.References.ParseReferences(ctx, path, content)
			if err != nil {
				return nil, err
			}
			return &AffectedFile{Path: path, References: touched(refs, edits), Edits: edits}, nil
		})
		if err != nil {
			return nil, err
		}
		parseFailures = len(warnings)
		acc.addFiles(files...)
		acc.warnings = append(acc.warnings, warnings...)
		sort.SliceStable(rewriteWarnings, func(a, b int) bool { return rewriteWarnings[a].Message < rewriteWarnings[b].Message })
		acc.warnings = append(acc.warnings, rewriteWarnings...)
		u.declareModules(ctx, j, acc)
	}

	if err := u.updateManifests(ctx, j, inv.manifests, acc); err != nil {
		return nil, err
	}

	res := acc.result()
	res.Moves = j.moves
	if d, ok := u.registry.LookupByPath(j.req.OldPath); ok {
		res.Language = d.ID
	}
	recordScan(ctx, "move", time.Since(start), len(sources), len(res.Edits()), parseFailures)
	u.logger.Debug("reference scan complete",
		"old_path", j.req.OldPath,
		"new_path", j.req.NewPath,
		"scanned", len(sources),
		"affected", len(res.Affected),
		"duration", time.Since(start),
	)
	return res, nil
}

// fileFunc computes the affected record for one parsed-language file.
type fileFunc func(ctx context.Context, d *lang.Descriptor, path string, content []byte) (*AffectedFile, error)

// scan runs fn over every file with a reference capability, in parallel.
// Parse failures become warnings; other errors abort the scan.
func (u *Updater) scan(ctx context.Context, paths []string, fn fileFunc) ([]*AffectedFile, []plan.Warning, error) {
	files := make([]*AffectedFile, len(paths))
	warnings := make([]*plan.Warning, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.concurrency)
	for i, path := range paths {
		d, ok := u.registry.LookupByPath(path)
		if !ok || d.References == nil {
			continue
		}
		g.Go(func() error {
			content, err := u.read(path)
			if err != nil {
				if errors.Is(err, errTooLarge) || errors.Is(err, os.ErrNotExist) {
					u.logger.Debug("skipping file", "path", path, "error", err)
					return nil
				}
				return err
			}
			af, err := fn(gctx, d, path, content)
			if err != nil {
				if errors.Is(err, lang.ErrParse) {
					warnings[i] = &plan.Warning{
						Code:    plan.WarnParseError,
						Message: fmt.Sprintf("%s could not be parsed and was left unchanged: %v", path, err),
					}
					return nil
				}
				return fmt.Errorf("%s: %w", path, err)
			}
			files[i] = af
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var outFiles []*AffectedFile
	for _, af := range files {
		if af != nil && len(af.Edits) > 0 {
			outFiles = append(outFiles, af)
		}
	}
	var outWarnings []plan.Warning
	for _, w := range warnings {
		if w != nil {
			outWarnings = append(outWarnings, *w)
		}
	}
	return outFiles, outWarnings, nil
}

var errTooLarge = errors.New("file exceeds size limit")

func (u *Updater) read(path string) ([]byte, error) {
	info, err := u.fs.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > u.maxFileSize {
		return nil, fmt.Errorf("%w: %s (%d bytes)", errTooLarge, path, info.Size())
	}
	return afero.ReadFile(u.fs, path)
}

// touched returns the references whose statements contain an edit.
func touched(refs []lang.Reference, edits []plan.TextEdit) []lang.Reference {
	var out []lang.Reference
	for _, ref := range refs {
		for _, e := range edits {
			if ref.StatementRange.Contains(e.Range.Start) && ref.StatementRange.Contains(e.Range.End) {
				out = append(out, ref)
				break
			}
		}
	}
	return out
}

// declareModules adds module declarations for moved files whose language
// requires a parent module to declare them. Missing parent modules are
// created and declared in turn by their own parents.
func (u *Updater) declareModules(ctx context.Context, j *job, acc *accumulator) {
	done := make(map[string]bool)
	created := make(map[string][]string)
	declarers := make(map[string]lang.ModuleDeclarer)
	var order []string
	for _, mv := range j.moves {
		d, ok := u.registry.LookupByPath(mv.To)
		if !ok || d.Modules == nil || d.References == nil {
			continue
		}
		for file := mv.To; file != ""; {
			parent, spec, ok := d.Modules.ModuleParent(ctx, j.req.Root, file)
			if !ok || done[parent+"\x00"+spec] {
				break
			}
			done[parent+"\x00"+spec] = true

			current := j.origin(parent)
			if exists, _ := afero.Exists(u.fs, current); !exists {
				if _, ok := created[parent]; !ok {
					order = append(order, parent)
				}
				created[parent] = append(created[parent], spec)
				declarers[parent] = d.Modules
				file = parent
				continue
			}
			file = ""
			content, err := afero.ReadFile(u.fs, current)
			if err != nil {
				acc.warnings = append(acc.warnings, plan.Warning{
					Code:    plan.WarnDanglingReference,
					Message: fmt.Sprintf("%s must be declared with %q in %s: %v", mv.To, spec, parent, err),
				})
				continue
			}
			has, err := d.References.HasReference(ctx, current, content, spec)
			if err != nil || has {
				continue
			}
			edit, err := d.References.AddReference(ctx, current, content, spec)
			if err != nil {
				continue
			}
			if !acc.addEdit(current, edit) {
				acc.warnings = append(acc.warnings, plan.Warning{
					Code:    plan.WarnDanglingReference,
					Message: fmt.Sprintf("could not declare %q in %s alongside other edits", spec, current),
				})
			}
		}
	}
	for _, parent := range order {
		acc.addEdit(parent, plan.TextEdit{
			FilePath:    parent,
			Kind:        plan.EditCreateFile,
			NewText:     declarers[parent].ModuleFile(created[parent]),
			Description: "create module " + filepath.Base(parent),
		})
	}
}

// updateManifests runs the manifest phase: dependency paths, package
// identity and workspace members.
func (u *Updater) updateManifests(ctx context.Context, j *job, manifests []string, acc *accumulator) error {
	isDir := j.req.Kind == plan.SelectorDirectory
	if !isDir && j.identityManifest == "" {
		return nil
	}
	for _, path := range manifests {
		if j.skip[path] {
			continue
		}
		original, err := u.read(path)
		if err != nil {
			if errors.Is(err, errTooLarge) {
				continue
			}
			return err
		}
		current := original
		var what []string

		for _, d := range u.registry.LookupManifest(path) {
			base := filepath.Base(path)
			if d.Manifest != nil && base == d.ManifestName {
				out, changed, err := u.editManifest(ctx, j, d, path, current)
				if err != nil {
					acc.warnings = append(acc.warnings, manifestWarning(path, err))
					continue
				}
				current = out
				what = append(what, changed...)
			}
			if d.Workspace != nil && isDir && base == d.Workspace.WorkspaceManifestName() &&
				d.Workspace.IsWorkspace(ctx, path, current) {
				out, changed, err := u.editWorkspace(ctx, j, d, path, current)
				if err != nil {
					acc.warnings = append(acc.warnings, manifestWarning(path, err))
					continue
				}
				current = out
				what = append(what, changed...)
			}
		}

		if edit, ok := plan.ContentEdit(path, original, current); ok {
			edit.Description = "update manifest: " + joinWhat(what)
			acc.addEdit(path, edit)
		}
	}
	return nil
}

func manifestWarning(path string, err error) plan.Warning {
	return plan.Warning{
		Code:    plan.WarnParseError,
		Message: fmt.Sprintf("manifest %s was left unchanged: %v", path, err),
	}
}

func (u *Updater) editManifest(ctx context.Context, j *job, d *lang.Descriptor, path string, content []byte) ([]byte, []string, error) {
	var what []string
	if j.req.Kind == plan.SelectorDirectory {
		out, err := d.Manifest.RewriteDependencyPaths(ctx, path, content, j.req.OldPath, j.req.NewPath, j.locate(path))
		if err != nil {
			return nil, nil, err
		}
		if string(out) != string(content) {
			what = append(what, "dependency paths")
		}
		content = out
	}
	if j.oldIdentity == "" || j.newIdentity == "" || j.oldIdentity == j.newIdentity {
		return content, what, nil
	}
	if path == j.identityManifest {
		out, err := d.Manifest.UpdatePackageIdentity(ctx, path, content, j.newIdentity)
		if err != nil {
			return nil, nil, err
		}
		return out, append(what, "package name"), nil
	}

	m, err := d.Manifest.ParseManifest(ctx, path, content)
	if err != nil {
		return nil, nil, err
	}
	hasOld, hasNew := false, false
	for _, dep := range m.Dependencies {
		hasOld = hasOld || dep.Name == j.oldIdentity
		hasNew = hasNew || dep.Name == j.newIdentity
	}
	if !hasOld {
		return content, what, nil
	}
	if hasNew {
		// Renaming would declare the same dependency twice.
		return content, what, nil
	}
	out, err := d.Manifest.RenameDependency(ctx, path, content, j.oldIdentity, j.newIdentity)
	if err != nil {
		return nil, nil, err
	}
	return out, append(what, "dependency "+j.oldIdentity), nil
}

// editWorkspace moves workspace members that live under the moved
// directory. Members written as globs are left alone.
func (u *Updater) editWorkspace(ctx context.Context, j *job, d *lang.Descriptor, path string, content []byte) ([]byte, []string, error) {
	members, err := d.Workspace.ListMembers(ctx, path, content)
	if err != nil {
		return nil, nil, err
	}
	dir := filepath.Dir(path)
	newDir := filepath.Dir(j.locate(path))
	listed := make(map[string]bool, len(members))
	for _, m := range members {
		listed[filepath.Clean(filepath.Join(dir, filepath.FromSlash(m)))] = true
	}

	var what []string
	for _, m := range members {
		if isGlob(m) {
			continue
		}
		abs := filepath.Clean(filepath.Join(dir, filepath.FromSlash(m)))
		if !within(abs, j.req.OldPath) {
			continue
		}
		moved := rebase(abs, j.req.OldPath, j.req.NewPath)
		if content, err = d.Workspace.RemoveMember(ctx, path, content, m); err != nil {
			return nil, nil, err
		}
		what = append(what, "workspace member "+m)
		if listed[moved] {
			continue
		}
		rel, err := filepath.Rel(newDir, moved)
		if err != nil {
			return nil, nil, err
		}
		if content, err = d.Workspace.AddMember(ctx, path, content, filepath.ToSlash(rel)); err != nil {
			return nil, nil, err
		}
		listed[moved] = true
	}
	return content, what, nil
}

func isGlob(s string) bool {
	for _, c := range s {
		switch c {
		case '*', '?', '[':
			return true
		}
	}
	return false
}

func joinWhat(what []string) string {
	if len(what) == 0 {
		return "manifest"
	}
	return strings.Join(what, ", ")
}

// accumulator merges per-file results from the scan phases.
type accumulator struct {
	byPath   map[string]*AffectedFile
	warnings []plan.Warning
}

func newAccumulator() *accumulator {
	return &accumulator{byPath: make(map[string]*AffectedFile)}
}

func (a *accumulator) addFiles(files ...*AffectedFile) {
	for _, af := range files {
		if cur, ok := a.byPath[af.Path]; ok {
			cur.References = append(cur.References, af.References...)
			cur.Edits = append(cur.Edits, af.Edits...)
			continue
		}
		cp := *af
		a.byPath[af.Path] = &cp
	}
}

// addEdit adds one edit unless it overlaps edits already recorded for the
// file.
func (a *accumulator) addEdit(path string, edit plan.TextEdit) bool {
	cur, ok := a.byPath[path]
	if !ok {
		a.byPath[path] = &AffectedFile{Path: path, Edits: []plan.TextEdit{edit}}
		return true
	}
	candidate := append(append([]plan.TextEdit(nil), cur.Edits...), edit)
	if err := plan.CheckOverlaps(candidate); err != nil {
		return false
	}
	cur.Edits = candidate
	return true
}

func (a *accumulator) result() *Result {
	paths := make([]string, 0, len(a.byPath))
	for p := range a.byPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	res := &Result{Affected: make([]AffectedFile, 0, len(paths)), Warnings: a.warnings}
	for _, p := range paths {
		af := a.byPath[p]
		plan.SortDescending(af.Edits)
		res.Affected = append(res.Affected, *af)
	}
	return res
}
