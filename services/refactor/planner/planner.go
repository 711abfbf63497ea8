// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package planner turns refactoring intents into plans.
//
// # Description
//
// There is one generator per operation family: Rename, Extract, Inline,
// Move, Reorder, Transform and Delete. Each resolves its target, checks the
// preconditions of its kind, computes edits (directly or through the
// reference updater), captures a checksum for every pre-existing file it
// touches, and returns a plan.Plan. Generators only read; nothing here
// writes to the filesystem.
//
// # Thread Safety
//
// A Planner is safe for concurrent use. Requests share no mutable state.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianRefactor/services/refactor/checksum"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/lang"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/plan"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/refs"
)

// Planner generates refactoring plans.
type Planner struct {
	registry  *lang.Registry
	fs        afero.Fs
	checksums *checksum.Service
	updater   *refs.Updater
	validate  *validator.Validate
	logger    *slog.Logger
}

// Option configures a Planner.
type Option func(*Planner)

// WithChecksums sets the checksum service. The default uses sha256 over
// the planner's filesystem.
func WithChecksums(s *checksum.Service) Option {
	return func(p *Planner) {
		if s != nil {
			p.checksums = s
		}
	}
}

// WithUpdater sets the reference updater.
func WithUpdater(u *refs.Updater) Option {
	return func(p *Planner) {
		if u != nil {
			p.updater = u
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Planner) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a Planner.
//
// # Inputs
//
//	registry - Capability registry. Must not be nil.
//	fs - Filesystem every generator reads from.
func New(registry *lang.Registry, fs afero.Fs, opts ...Option) *Planner {
	p := &Planner{
		registry: registry,
		fs:       fs,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   slog.Default().With("component", "planner.Planner"),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.checksums == nil {
		p.checksums = checksum.New(fs)
	}
	if p.updater == nil {
		p.updater = refs.NewUpdater(registry, fs, refs.WithLogger(p.logger))
	}
	return p
}

// Registry returns the capability registry plans are generated against.
func (p *Planner) Registry() *lang.Registry {
	return p.registry
}

// job carries the state of one generation.
type job struct {
	root    string
	builder *plan.Builder
}

// generate runs fn inside the shared skeleton: request validation, span,
// checksum capture, plan assembly and metrics.
func (p *Planner) generate(ctx context.Context, t plan.Type, req any, ws *Workspace, fn func(ctx context.Context, j *job) error) (*plan.Plan, error) {
	kind, _ := t.Kind()
	ctx, span := startSpan(ctx, "Planner."+string(kind), attribute.String("plan.type", string(t)))
	defer span.End()
	start := time.Now()

	out, err := func() (*plan.Plan, error) {
		if err := p.validate.Struct(req); err != nil {
			return nil, plan.Wrap(plan.CodeInvalidRequest, err, "invalid "+string(kind)+" request")
		}
		root, err := p.workspaceRoot(ws.WorkspaceRoot)
		if err != nil {
			return nil, err
		}
		ws.WorkspaceRoot = root
		j := &job{root: root, builder: plan.NewBuilder(t, "")}
		if err := fn(ctx, j); err != nil {
			return nil, err
		}
		if len(j.builder.Edits()) == 0 && !hasWarning(j.builder, plan.WarnAmbiguousTarget) {
			j.builder.Warnf(plan.WarnNoChanges, "the "+string(kind)+" produced no edits")
		}
		sums, err := p.checksums.Capture(ctx, j.builder.ChecksumPaths())
		if err != nil {
			return nil, fmt.Errorf("capturing checksums: %w", err)
		}
		return j.builder.Build(sums, root), nil
	}()

	recordGenerate(ctx, kind, time.Since(start), out, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.Debug("plan generation failed", "kind", kind, "code", plan.CodeOf(err), "error", err)
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("plan.edits", len(out.Edits)),
		attribute.Int("plan.warnings", len(out.Warnings)),
	)
	p.logger.Info("plan generated",
		"kind", kind,
		"plan_id", out.ID,
		"edits", len(out.Edits),
		"affected_files", out.Summary.AffectedFiles,
		"warnings", len(out.Warnings),
	)
	return out, nil
}

func hasWarning(b *plan.Builder, code string) bool {
	for _, w := range b.Warnings() {
		if w.Code == code {
			return true
		}
	}
	return false
}

func (p *Planner) workspaceRoot(root string) (string, error) {
	if !filepath.IsAbs(root) {
		return "", plan.Errorf(plan.CodeInvalidRequest, "workspace_root must be absolute: %q", root)
	}
	root = filepath.Clean(root)
	info, err := p.fs.Stat(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", plan.Errorf(plan.CodeNotFound, "workspace %s does not exist", root)
		}
		return "", err
	}
	if !info.IsDir() {
		return "", plan.Errorf(plan.CodeInvalidRequest, "workspace %s is not a directory", root)
	}
	return root, nil
}

// abs resolves a request path against the workspace root and rejects
// paths outside it.
func (j *job) abs(path string) (string, error) {
	if path == "" {
		return "", plan.Errorf(plan.CodeInvalidRequest, "path is required")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(j.root, path)
	}
	path = filepath.Clean(path)
	if path != j.root && !within(path, j.root) {
		return "", plan.Errorf(plan.CodeInvalidRequest, "%s is outside the workspace %s", path, j.root)
	}
	return path, nil
}

func within(p, dir string) bool {
	return len(p) > len(dir) && p[:len(dir)] == dir && p[len(dir)] == filepath.Separator
}

// stat returns the selector kind a path currently has.
func (p *Planner) stat(path string) (plan.SelectorKind, error) {
	info, err := p.fs.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", plan.Errorf(plan.CodeNotFound, "%s does not exist", path)
		}
		return "", err
	}
	if info.IsDir() {
		return plan.SelectorDirectory, nil
	}
	return plan.SelectorFile, nil
}

// source reads a file for planning.
func (p *Planner) source(ctx context.Context, path string) ([]byte, error) {
	content, err := p.checksums.ReadStable(ctx, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, plan.Errorf(plan.CodeNotFound, "%s does not exist", path)
		}
		if errors.Is(err, checksum.ErrFileTooLarge) || errors.Is(err, checksum.ErrNotRegularFile) {
			return nil, plan.Wrap(plan.CodeInvalidRequest, err, "cannot plan against "+path)
		}
		return nil, err
	}
	return content, nil
}

// ast returns the descriptor for path when it has symbol support.
func (p *Planner) ast(path string) (*lang.Descriptor, error) {
	d, ok := p.registry.LookupByPath(path)
	if !ok {
		return nil, plan.Errorf(plan.CodeUnsupportedCapability, "no language plugin handles %s", path).
			WithSuggestion("supported languages: " + languageList(p.registry, ""))
	}
	if d.AST == nil {
		return nil, plan.Errorf(plan.CodeUnsupportedCapability, "%s has no symbol operations", d.ID).
			WithSuggestion("symbol operations are available for: " + languageList(p.registry, lang.CapAST))
	}
	return d, nil
}

// refOptions maps request workspace options onto reference updater
// options.
func refOptions(ws Workspace, updateImports bool) refs.Options {
	return refs.Options{UpdateImports: updateImports, Scope: ws.Scope, Exclude: ws.Exclude}
}

// addResult adds the edits and warnings of a reference update.
func addResult(b *plan.Builder, res *refs.Result) {
	b.Add(res.Edits()...)
	b.Warn(res.Warnings...)
	for _, m := range res.Moves {
		b.Add(plan.TextEdit{
			FilePath:    m.From,
			Kind:        plan.EditMoveFile,
			NewPath:     m.To,
			Description: "move " + filepath.Base(m.From),
		})
	}
	if res.Language != "" {
		b.SetLanguage(res.Language)
	}
}

func languageList(r *lang.Registry, c lang.Capability) string {
	out := ""
	for _, d := range r.Languages() {
		if c != "" && !d.Has(c) {
			continue
		}
		if out != "" {
			out += ", "
		}
		out += d.ID
	}
	return out
}
