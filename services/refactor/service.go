// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package refactor is the refactoring service: plan generation, plan
// storage, apply and revert behind one facade, exposed over HTTP (gin) and
// MCP (stdio).
//
// The facade owns nothing but wiring. Plans are produced by the planner
// package, written by the apply package, persisted by the store package,
// and watched for staleness by the watch package.
package refactor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/afero"

	"github.com/AleutianAI/AleutianRefactor/pkg/extensions"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/apply"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/checksum"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/config"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/lang"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/lang/plugins"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/plan"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/planner"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/refs"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/store"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/watch"
)

// ServiceVersion is reported by the health endpoints and the MCP server.
const ServiceVersion = "0.1.0"

// Service wires the registry, planner, executor, store and watcher.
//
// # Thread Safety
//
// Service is safe for concurrent use. Applies are serialized by the
// executor; planning runs concurrently.
type Service struct {
	cfg       config.Config
	fs        afero.Fs
	registry  *lang.Registry
	checksums *checksum.Service
	planner   *planner.Planner
	executor  *apply.Executor
	store     *store.Store
	watcher   *watch.Watcher
	audit     extensions.AuditLogger
	logger    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithFs sets the filesystem. Defaults to the OS filesystem.
func WithFs(fs afero.Fs) Option {
	return func(s *Service) {
		if fs != nil {
			s.fs = fs
		}
	}
}

// WithStore enables plan storage and persisted apply journals. The
// Service closes the store on Close.
func WithStore(st *store.Store) Option {
	return func(s *Service) { s.store = st }
}

// WithWatcher enables advisory staleness tracking of stored plans. The
// Service closes the watcher on Close.
func WithWatcher(w *watch.Watcher) Option {
	return func(s *Service) { s.watcher = w }
}

// WithAuditLogger records plan creation, deletion, applies and reverts.
// Defaults to a no-op.
func WithAuditLogger(l extensions.AuditLogger) Option {
	return func(s *Service) {
		if l != nil {
			s.audit = l
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService builds a Service from cfg.
//
// # Inputs
//
//	cfg - Validated configuration. Only the planning, workspace and apply
//	  sections are read here; storage and telemetry are opened by the
//	  caller and passed in as options.
//
// # Outputs
//
//	error - Non-nil if the checksum algorithm is unknown or a plugin
//	  fails to register.
func NewService(cfg config.Config, opts ...Option) (*Service, error) {
	s := &Service{
		cfg:    cfg,
		fs:     afero.NewOsFs(),
		audit:  extensions.DefaultOptions().AuditLogger,
		logger: slog.Default().With("component", "refactor.Service"),
	}
	for _, opt := range opts {
		opt(s)
	}

	algo, err := checksum.ParseAlgorithm(cfg.Planning.ChecksumAlgorithm)
	if err != nil {
		return nil, err
	}
	registry, err := plugins.New(s.fs)
	if err != nil {
		return nil, fmt.Errorf("building language registry: %w", err)
	}
	s.registry = registry
	s.checksums = checksum.New(s.fs,
		checksum.WithAlgorithm(algo),
		checksum.WithMaxFileSize(cfg.Workspace.MaxFileSize),
		checksum.WithConcurrency(cfg.Planning.Concurrency),
	)
	updater := refs.NewUpdater(registry, s.fs,
		refs.WithConcurrency(cfg.Planning.Concurrency),
		refs.WithMaxFileSize(cfg.Workspace.MaxFileSize),
		refs.WithExcludes(cfg.Workspace.Exclude...),
		refs.WithLogger(s.logger.With("component", "refs.Updater")),
	)
	s.planner = planner.New(registry, s.fs,
		planner.WithChecksums(s.checksums),
		planner.WithUpdater(updater),
		planner.WithLogger(s.logger.With("component", "planner.Planner")),
	)

	execOpts := []apply.Option{
		apply.WithChecksumService(s.checksums),
		apply.WithValidationTimeout(cfg.Apply.ValidationTimeout),
		apply.WithMaxOutput(cfg.Apply.MaxOutputBytes),
		apply.WithLogger(s.logger.With("component", "apply.Executor")),
	}
	if s.store != nil {
		execOpts = append(execOpts, apply.WithJournalStore(s.store))
	}
	s.executor = apply.NewExecutor(s.fs, execOpts...)
	return s, nil
}

// Registry returns the capability registry.
func (s *Service) Registry() *lang.Registry {
	return s.registry
}

// Languages describes every registered language.
func (s *Service) Languages() []*lang.Descriptor {
	return s.registry.Languages()
}

// HasStore reports whether plans and journals are persisted.
func (s *Service) HasStore() bool {
	return s.store != nil
}

// Start begins watching stored plans for staleness. It re-tracks every
// plan already in the store.
func (s *Service) Start(ctx context.Context) error {
	if s.watcher == nil || s.store == nil {
		return nil
	}
	s.watcher.Start(ctx)
	plans, err := s.store.ListPlans(ctx)
	if err != nil {
		return fmt.Errorf("listing stored plans: %w", err)
	}
	for _, p := range plans {
		if err := s.watcher.Track(p); err != nil {
			s.logger.Warn("Cannot watch stored plan", "plan_id", p.ID, "error", err)
		}
	}
	return nil
}

// Close releases the watcher and the store.
func (s *Service) Close() error {
	var errs []error
	if s.watcher != nil {
		errs = append(errs, s.watcher.Close())
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	return errors.Join(errs...)
}

// Apply applies p.
//
// The result is always non-nil when p passes request decoding; on failure
// it carries the final state and, after a rollback, the validation output.
func (s *Service) Apply(ctx context.Context, p *plan.Plan, opts ApplyOptions) (*apply.Result, error) {
	if p != nil && p.WorkspaceRoot == "" {
		p.WorkspaceRoot = s.cfg.Workspace.Root
	}
	res, err := s.executor.Apply(ctx, p, opts.options())
	ev := resultEvent(extensions.EventApply, res, err)
	if p != nil {
		ev.PlanID, ev.PlanType, ev.WorkspaceRoot = p.ID, string(p.PlanType), p.WorkspaceRoot
	}
	ev.DryRun = opts.DryRun
	s.record(ctx, ev)
	return res, err
}

// Revert undoes a committed apply from its persisted journal.
func (s *Service) Revert(ctx context.Context, applyID string, force bool) (*apply.Result, error) {
	res, err := s.executor.Revert(ctx, applyID, force)
	ev := resultEvent(extensions.EventRevert, res, err)
	ev.ApplyID = applyID
	s.record(ctx, ev)
	return res, err
}

// resultEvent describes an apply or revert outcome.
func resultEvent(eventType string, res *apply.Result, err error) extensions.AuditEvent {
	ev := extensions.AuditEvent{EventType: eventType, Outcome: extensions.OutcomeSuccess}
	if res != nil {
		ev.ApplyID = res.ApplyID
		ev.Files = append(append(append([]string(nil), res.AppliedFiles...), res.CreatedFiles...), res.DeletedFiles...)
		switch res.State {
		case apply.StateRejected:
			ev.Outcome = extensions.OutcomeRejected
		case apply.StateRolledBack:
			if err != nil {
				ev.Outcome = extensions.OutcomeRolledBack
			}
		case apply.StateFailed:
			ev.Outcome = extensions.OutcomeError
		}
	}
	if err != nil {
		if res == nil {
			ev.Outcome = extensions.OutcomeError
		}
		ev.Error = err.Error()
	}
	return ev
}

func (s *Service) record(ctx context.Context, ev extensions.AuditEvent) {
	if err := s.audit.Log(ctx, ev); err != nil {
		s.logger.Warn("Audit log failed", "event_type", ev.EventType, "error", err)
	}
}

// CreatePlan generates a plan and stores it.
func (s *Service) CreatePlan(ctx context.Context, call RefactorCall) (*plan.Plan, error) {
	if s.store == nil {
		return nil, errNoStore()
	}
	p, err := s.DispatchRefactorCall(ctx, call)
	if err != nil {
		return nil, err
	}
	if err := s.store.SavePlan(ctx, p); err != nil {
		return nil, plan.Wrap(plan.CodeInternal, err, "store plan")
	}
	if s.watcher != nil {
		if err := s.watcher.Track(p); err != nil {
			s.logger.Warn("Cannot watch plan", "plan_id", p.ID, "error", err)
		}
	}
	s.record(ctx, extensions.AuditEvent{
		EventType:     extensions.EventPlanCreate,
		PlanID:        p.ID,
		PlanType:      string(p.PlanType),
		WorkspaceRoot: p.WorkspaceRoot,
		Outcome:       extensions.OutcomeSuccess,
	})
	return p, nil
}

// GetPlan loads a stored plan.
func (s *Service) GetPlan(ctx context.Context, id string) (*plan.Plan, error) {
	if s.store == nil {
		return nil, errNoStore()
	}
	p, err := s.store.LoadPlan(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, plan.Errorf(plan.CodeNotFound, "plan %s not found", id)
	}
	if err != nil {
		return nil, plan.Wrap(plan.CodeInternal, err, "load plan")
	}
	return p, nil
}

// ListPlans summarizes every stored plan, oldest first.
func (s *Service) ListPlans(ctx context.Context) ([]PlanSummary, error) {
	if s.store == nil {
		return nil, errNoStore()
	}
	plans, err := s.store.ListPlans(ctx)
	if err != nil {
		return nil, plan.Wrap(plan.CodeInternal, err, "list plans")
	}
	out := make([]PlanSummary, 0, len(plans))
	for _, p := range plans {
		ps := PlanSummary{
			ID:       p.ID,
			PlanType: p.PlanType,
			Summary:  p.Summary,
			Metadata: p.Metadata,
			Warnings: len(p.Warnings),
		}
		if s.watcher != nil {
			ps.Stale, _ = s.watcher.IsStale(p.ID)
			ps.StalePath = s.watcher.StalePath(p.ID)
		}
		out = append(out, ps)
	}
	return out, nil
}

// DeletePlan removes a stored plan.
func (s *Service) DeletePlan(ctx context.Context, id string) error {
	if s.store == nil {
		return errNoStore()
	}
	err := s.store.DeletePlan(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return plan.Errorf(plan.CodeNotFound, "plan %s not found", id)
	}
	if err != nil {
		return plan.Wrap(plan.CodeInternal, err, "delete plan")
	}
	if s.watcher != nil {
		s.watcher.Untrack(id)
	}
	s.record(ctx, extensions.AuditEvent{EventType: extensions.EventPlanDelete, PlanID: id, Outcome: extensions.OutcomeSuccess})
	return nil
}

// ApplyStoredPlan applies a stored plan. A committed apply removes the
// plan from the store; it cannot apply twice anyway.
//
// When the watcher has already seen a tracked file change, the apply is
// rejected as stale without reading the workspace, unless checksum
// validation is off or opts.Force is set.
func (s *Service) ApplyStoredPlan(ctx context.Context, id string, opts ApplyOptions) (*apply.Result, error) {
	p, err := s.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	if eff := opts.options(); s.watcher != nil && eff.ValidateChecksums && !eff.Force {
		if stale, _ := s.watcher.IsStale(id); stale {
			path := s.watcher.StalePath(id)
			err := plan.Errorf(plan.CodeStalePlan, "%s changed since the plan was generated", path).
				WithFiles(path).
				WithSuggestion("regenerate the plan, or apply with force")
			s.record(ctx, extensions.AuditEvent{
				EventType:     extensions.EventApply,
				PlanID:        id,
				PlanType:      string(p.PlanType),
				WorkspaceRoot: p.WorkspaceRoot,
				Outcome:       extensions.OutcomeRejected,
				DryRun:        opts.DryRun,
				Files:         []string{path},
				Error:         err.Error(),
			})
			return nil, err
		}
	}

	res, err := s.Apply(ctx, p, opts)
	if err != nil || opts.DryRun {
		return res, err
	}
	if s.watcher != nil {
		s.watcher.Untrack(id)
	}
	if err := s.store.DeletePlan(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logger.Warn("Cannot remove applied plan", "plan_id", id, "error", err)
	}
	return res, nil
}

func errNoStore() *plan.Error {
	return plan.Errorf(plan.CodeInvalidRequest, "plan storage is disabled").
		WithSuggestion("configure storage.path or storage.in_memory")
}
