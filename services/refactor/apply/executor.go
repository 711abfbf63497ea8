// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package apply executes refactoring plans against a workspace.
//
// An apply moves through Validating, Staging, Writing, Verifying and
// Committed. Any failure before Writing rejects the plan with zero writes.
// Every path is snapshotted before its first write; a failed write or a
// failed validation command replays the snapshots in reverse, leaving the
// workspace byte-identical to its pre-apply state.
//
// # Thread Safety
//
// An Executor serializes its applies and reverts. Separate executors over
// the same workspace are not coordinated.
package apply

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianRefactor/services/refactor/checksum"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/plan"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/refs"
)

type opKind int

const (
	opEdit opKind = iota
	opMove
	opCreate
	opDelete
)

// fileOp is one staged write. before is the current content; content is
// what the write leaves at the destination.
type fileOp struct {
	kind    opKind
	path    string
	newPath string
	before  []byte
	content []byte
	mode    os.FileMode
}

// Executor applies plans.
type Executor struct {
	fs                afero.Fs
	checksums         *checksum.Service
	journals          JournalStore
	logger            *slog.Logger
	validationTimeout time.Duration
	maxOutput         int
	now               func() time.Time

	mu sync.Mutex
}

// Option configures an Executor.
type Option func(*Executor)

// WithJournalStore persists journals so applies can be reverted.
func WithJournalStore(js JournalStore) Option {
	return func(e *Executor) { e.journals = js }
}

// WithChecksumService replaces the default SHA-256 checksum service.
func WithChecksumService(s *checksum.Service) Option {
	return func(e *Executor) {
		if s != nil {
			e.checksums = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l.With("component", "apply.Executor")
		}
	}
}

// WithValidationTimeout sets the timeout for validation commands that
// specify none.
func WithValidationTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.validationTimeout = d
		}
	}
}

// WithMaxOutput bounds captured validation output per stream.
func WithMaxOutput(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxOutput = n
		}
	}
}

// NewExecutor creates an executor writing through fsys.
func NewExecutor(fsys afero.Fs, opts ...Option) *Executor {
	e := &Executor{
		fs:                fsys,
		checksums:         checksum.New(fsys),
		logger:            slog.Default().With("component", "apply.Executor"),
		validationTimeout: DefaultValidationTimeout,
		maxOutput:         DefaultMaxOutput,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Apply executes p.
//
// # Description
//
// Validating checks the plan's structure, type and checksums. Staging
// computes every new file content in memory and orders moves; a dry run
// stops here and returns a unified diff. Writing applies text edits, then
// moves, then creates, then deletes, and prunes directories left empty.
// Verifying runs the validation command if one is configured. Committed
// persists the journal when a JournalStore is configured.
//
// # Outputs
//
//	*Result - Always non-nil, including on failure.
//	error - nil on success, otherwise a *plan.Error: INVALID_REQUEST or
//	  STALE_PLAN before any write, PARTIAL_WRITE_FAILURE, VALIDATION_FAILED
//	  or VALIDATION_TIMEOUT after a rollback, ROLLBACK_FAILED when the
//	  rollback itself failed.
func (e *Executor) Apply(ctx context.Context, p *plan.Plan, opts Options) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	ctx, span := startSpan(ctx, "apply.Executor.Apply",
		attribute.Bool("dry_run", opts.DryRun),
		attribute.Bool("force", opts.Force),
	)
	defer span.End()

	res := newResult(p, opts)
	res, err := e.apply(ctx, p, opts, res)

	outcome := "committed"
	if opts.DryRun {
		outcome = "dry_run"
	}
	if err != nil {
		outcome = string(plan.CodeOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	recordApply(ctx, outcome, time.Since(start))
	return res, err
}

func (e *Executor) apply(ctx context.Context, p *plan.Plan, opts Options, res *Result) (*Result, error) {
	reject := func(err error) (*Result, error) {
		perr := plan.AsError(err)
		res.State = StateRejected
		res.Error = perr
		e.logger.Warn("Plan rejected", slog.String("plan_id", res.PlanID), slog.String("code", string(perr.Code)), slog.String("error", perr.Message))
		return res, perr
	}

	// Validating.
	if p == nil {
		return reject(plan.Errorf(plan.CodeInvalidRequest, "plan is required"))
	}
	if opts.ValidatePlanType {
		if err := plan.Validate(p); err != nil {
			return reject(err)
		}
	}
	if opts.ExpectedPlanType != "" && p.PlanType != opts.ExpectedPlanType {
		return reject(plan.Errorf(plan.CodeInvalidRequest, "expected a %s, got %s", opts.ExpectedPlanType, p.PlanType))
	}
	if opts.ValidateChecksums && !opts.Force {
		if err := e.verify(ctx, p); err != nil {
			return reject(err)
		}
	}
	if err := ctx.Err(); err != nil {
		return reject(plan.Wrap(plan.CodeInternal, err, "apply cancelled"))
	}

	// Staging.
	res.State = StateStaging
	ops, err := e.stage(p, opts)
	if err != nil {
		return reject(err)
	}
	if opts.DryRun {
		d, err := renderDiff(p.WorkspaceRoot, ops)
		if err != nil {
			return reject(plan.Wrap(plan.CodeInternal, err, "render diff"))
		}
		res.Diff = d
		fillFiles(res, ops)
		res.Success = true
		return res, nil
	}

	// Writing.
	res.State = StateWriting
	res.ApplyID = uuid.NewString()
	tx := newTransaction(e.fs)
	for _, op := range ops {
		if err := e.execute(tx, op); err != nil {
			return e.fail(ctx, res, tx, p, opts, plan.Wrap(plan.CodePartialWriteFailure, err, "write failed").
				WithFiles(op.path).
				WithSuggestion("check file permissions and free space, then regenerate the plan"))
		}
	}
	if err := e.prune(tx, p.WorkspaceRoot, ops); err != nil {
		return e.fail(ctx, res, tx, p, opts, plan.Wrap(plan.CodePartialWriteFailure, err, "remove empty directories"))
	}

	// Verifying.
	if opts.Validation != nil && opts.Validation.Command != "" {
		res.State = StateVerifying
		vstart := time.Now()
		vr, err := runValidation(ctx, opts.Validation, p.WorkspaceRoot, e.validationTimeout, e.maxOutput, e.logger)
		recordValidation(ctx, time.Since(vstart), vr.ExitCode)
		res.Validation = vr
		switch {
		case errors.Is(err, errValidationTimeout):
			return e.fail(ctx, res, tx, p, opts, plan.Wrap(plan.CodeValidationTimeout, err,
				fmt.Sprintf("validation command did not finish within %s", effectiveTimeout(opts.Validation, e.validationTimeout))))
		case err != nil:
			return e.fail(ctx, res, tx, p, opts, plan.Wrap(plan.CodeValidationFailed, err, "validation command could not run"))
		case vr.ExitCode != 0:
			return e.fail(ctx, res, tx, p, opts, plan.Errorf(plan.CodeValidationFailed,
				"validation command exited with status %d", vr.ExitCode).
				WithSuggestion("inspect validation.stderr; the workspace was restored"))
		}
	}

	// Committed.
	res.State = StateCommitted
	fillFiles(res, ops)
	res.RollbackAvailable = e.persist(ctx, res, tx, p)
	res.Success = true
	e.logger.Info("Plan applied",
		slog.String("plan_id", res.PlanID),
		slog.String("apply_id", res.ApplyID),
		slog.Int("applied", len(res.AppliedFiles)+len(res.MovedFiles)),
		slog.Int("created", len(res.CreatedFiles)),
		slog.Int("deleted", len(res.DeletedFiles)),
	)
	return res, nil
}

func effectiveTimeout(vc *ValidationCommand, fallback time.Duration) time.Duration {
	if vc.Timeout > 0 {
		return vc.Timeout
	}
	return fallback
}

// verify compares the plan's checksums with the workspace.
func (e *Executor) verify(ctx context.Context, p *plan.Plan) error {
	mismatches, err := e.checksums.Verify(ctx, p.FileChecksums)
	if err != nil {
		return plan.Wrap(plan.CodeInvalidRequest, err, "verify file checksums")
	}
	if len(mismatches) == 0 {
		return nil
	}
	files := make([]string, len(mismatches))
	for i, m := range mismatches {
		files[i] = m.Path
	}
	return plan.Errorf(plan.CodeStalePlan, "%d file(s) changed since the plan was computed", len(files)).
		WithFiles(files...).
		WithSuggestion("regenerate the plan against the current workspace")
}

// stage computes every write in memory, ordered text edits, moves,
// creates, deletes.
func (e *Executor) stage(p *plan.Plan, opts Options) ([]*fileOp, error) {
	var moves, creates, deletes []plan.TextEdit
	for _, ed := range p.Edits {
		switch ed.EffectiveKind() {
		case plan.EditMoveFile:
			moves = append(moves, ed)
		case plan.EditCreateFile:
			creates = append(creates, ed)
		case plan.EditDeleteFile:
			deletes = append(deletes, ed)
		}
	}

	vacated := make(map[string]bool)
	moved := make(map[string]plan.TextEdit)
	deleted := make(map[string]bool)
	for _, m := range moves {
		src := filepath.Clean(m.FilePath)
		vacated[src] = true
		moved[src] = m
	}
	for _, d := range deletes {
		path := filepath.Clean(d.FilePath)
		vacated[path] = true
		deleted[path] = true
	}

	byFile := p.EditsByFile()
	var ops []*fileOp

	// Text edits on files that stay in place.
	paths := make([]string, 0, len(byFile))
	for path := range byFile {
		if _, ok := moved[path]; !ok && !deleted[path] {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	for _, path := range paths {
		before, mode, err := e.readExisting(path)
		if err != nil {
			return nil, err
		}
		after, err := applyTo(path, before, byFile[path])
		if err != nil {
			return nil, err
		}
		ops = append(ops, &fileOp{kind: opEdit, path: path, before: before, content: after, mode: mode})
	}

	// Moves, ordered so a destination is vacated before it is written.
	ordered, err := orderMoves(moves)
	if err != nil {
		return nil, err
	}
	for _, m := range ordered {
		src, dst := filepath.Clean(m.FilePath), filepath.Clean(m.NewPath)
		if deleted[dst] {
			return nil, plan.Errorf(plan.CodeInvalidRequest, "move destination %s is also deleted", dst).WithFiles(dst)
		}
		if err := e.checkVacant(dst, vacated, opts); err != nil {
			return nil, err
		}
		before, mode, err := e.readExisting(src)
		if err != nil {
			return nil, err
		}
		after, err := applyTo(src, before, byFile[src])
		if err != nil {
			return nil, err
		}
		ops = append(ops, &fileOp{kind: opMove, path: src, newPath: dst, before: before, content: after, mode: mode})
	}

	sort.SliceStable(creates, func(i, j int) bool { return creates[i].FilePath < creates[j].FilePath })
	for _, c := range creates {
		path := filepath.Clean(c.FilePath)
		if deleted[path] {
			return nil, plan.Errorf(plan.CodeInvalidRequest, "%s is both created and deleted", path).WithFiles(path)
		}
		if err := e.checkVacant(path, vacated, opts); err != nil {
			return nil, err
		}
		ops = append(ops, &fileOp{kind: opCreate, path: path, content: []byte(c.NewText), mode: 0o644})
	}

	sort.SliceStable(deletes, func(i, j int) bool { return deletes[i].FilePath < deletes[j].FilePath })
	for _, d := range deletes {
		path := filepath.Clean(d.FilePath)
		before, mode, err := e.readExisting(path)
		if err != nil {
			if opts.Force && plan.CodeOf(err) == plan.CodeStalePlan {
				continue
			}
			return nil, err
		}
		ops = append(ops, &fileOp{kind: opDelete, path: path, before: before, mode: mode})
	}
	return ops, nil
}

func applyTo(path string, content []byte, edits []plan.TextEdit) ([]byte, error) {
	out, err := plan.ApplyEdits(content, edits)
	if err != nil {
		return nil, plan.Wrap(plan.CodeInvalidRequest, err, "edits for "+path+" do not apply").
			WithFiles(path).
			WithSuggestion("regenerate the plan against the current workspace")
	}
	return out, nil
}

// readExisting reads a file the plan expects to exist.
func (e *Executor) readExisting(path string) ([]byte, os.FileMode, error) {
	info, err := e.fs.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, 0, plan.Errorf(plan.CodeStalePlan, "%s no longer exists", path).WithFiles(path)
	}
	if err != nil {
		return nil, 0, plan.Wrap(plan.CodeInternal, err, "stat "+path)
	}
	if info.IsDir() {
		return nil, 0, plan.Errorf(plan.CodeStalePlan, "%s is now a directory", path).WithFiles(path)
	}
	content, err := afero.ReadFile(e.fs, path)
	if err != nil {
		return nil, 0, plan.Wrap(plan.CodeInternal, err, "read "+path)
	}
	return content, info.Mode().Perm(), nil
}

// checkVacant rejects writing over an existing path that the plan does not
// vacate first.
func (e *Executor) checkVacant(path string, vacated map[string]bool, opts Options) error {
	if vacated[path] {
		return nil
	}
	info, err := e.fs.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return plan.Wrap(plan.CodeInternal, err, "stat "+path)
	}
	if info.IsDir() {
		return plan.Errorf(plan.CodeStalePlan, "%s is a directory", path).WithFiles(path)
	}
	if opts.Force {
		return nil
	}
	return plan.Errorf(plan.CodeStalePlan, "%s already exists", path).
		WithFiles(path).
		WithSuggestion("regenerate the plan, or apply with force to overwrite")
}

// orderMoves sorts moves so that a move into another move's source runs
// after it.
func orderMoves(moves []plan.TextEdit) ([]plan.TextEdit, error) {
	if len(moves) < 2 {
		return moves, nil
	}
	bySource := make(map[string]plan.TextEdit, len(moves))
	g := refs.NewGraph()
	for _, m := range moves {
		src := filepath.Clean(m.FilePath)
		bySource[src] = m
		g.Node(src)
	}
	for _, m := range moves {
		dst := filepath.Clean(m.NewPath)
		if _, ok := bySource[dst]; ok {
			g.AddEdge(dst, filepath.Clean(m.FilePath))
		}
	}
	order, err := g.TopoOrder()
	if err != nil {
		return nil, plan.Wrap(plan.CodeInvalidRequest, fmt.Errorf("%w: %w", ErrMoveCycle, err), "moves cannot be ordered").
			WithSuggestion("split the cycle into two plans through a temporary name")
	}
	out := make([]plan.TextEdit, 0, len(order))
	for _, src := range order {
		out = append(out, bySource[src])
	}
	return out, nil
}

// execute performs one op, journaling every path before touching it.
func (e *Executor) execute(tx *transaction, op *fileOp) error {
	switch op.kind {
	case opEdit:
		i, err := tx.snapshot(op.path)
		if err != nil {
			return err
		}
		if err := atomicWriteFile(e.fs, op.path, op.content, op.mode); err != nil {
			return err
		}
		tx.markChanged(i)

	case opMove:
		src, err := tx.snapshot(op.path)
		if err != nil {
			return err
		}
		if err := tx.ensureDir(filepath.Dir(op.newPath)); err != nil {
			return err
		}
		dst, err := tx.snapshot(op.newPath)
		if err != nil {
			return err
		}
		if err := atomicWriteFile(e.fs, op.newPath, op.content, op.mode); err != nil {
			return err
		}
		tx.markChanged(dst)
		if err := e.fs.Remove(op.path); err != nil {
			return err
		}
		tx.markChanged(src)

	case opCreate:
		if err := tx.ensureDir(filepath.Dir(op.path)); err != nil {
			return err
		}
		i, err := tx.snapshot(op.path)
		if err != nil {
			return err
		}
		if err := atomicWriteFile(e.fs, op.path, op.content, op.mode); err != nil {
			return err
		}
		tx.markChanged(i)

	case opDelete:
		i, err := tx.snapshot(op.path)
		if err != nil {
			return err
		}
		if err := e.fs.Remove(op.path); err != nil {
			return err
		}
		tx.markChanged(i)
	}
	return nil
}

// prune removes directories left empty by moves and deletes, walking up
// to but never including root.
func (e *Executor) prune(tx *transaction, root string, ops []*fileOp) error {
	if root == "" {
		return nil
	}
	root = filepath.Clean(root)
	var dirs []string
	for _, op := range ops {
		if op.kind == opMove || op.kind == opDelete {
			dirs = append(dirs, filepath.Dir(op.path))
		}
	}
	// Deepest first, so a parent is examined after its children.
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })

	for _, dir := range dirs {
		for d := dir; d != root && strings.HasPrefix(d, root+string(filepath.Separator)); d = filepath.Dir(d) {
			empty, err := afero.IsEmpty(e.fs, d)
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return err
			}
			if !empty {
				break
			}
			i, err := tx.snapshot(d)
			if err != nil {
				return err
			}
			if err := e.fs.Remove(d); err != nil {
				return err
			}
			tx.markChanged(i)
		}
	}
	return nil
}

// fail rolls back when configured and returns the error to report.
func (e *Executor) fail(ctx context.Context, res *Result, tx *transaction, p *plan.Plan, opts Options, cause *plan.Error) (*Result, error) {
	res.Error = cause
	if !opts.RollbackOnError {
		res.State = StateFailed
		res.RollbackAvailable = e.persist(ctx, res, tx, p)
		e.logger.Error("Apply failed without rollback",
			slog.String("apply_id", res.ApplyID),
			slog.String("code", string(cause.Code)),
			slog.String("error", cause.Error()),
		)
		return res, cause
	}

	failed := tx.rollback()
	recordRollback(ctx, len(failed) == 0)
	if len(failed) > 0 {
		sort.Strings(failed)
		err := plan.Wrap(plan.CodeRollbackFailed, cause,
			fmt.Sprintf("rollback after %s left %d file(s) inconsistent", cause.Code, len(failed))).
			WithFiles(failed...).
			WithSuggestion("restore the listed files from version control")
		res.Error = err
		res.State = StateFailed
		e.logger.Error("Rollback failed",
			slog.String("apply_id", res.ApplyID),
			slog.Any("files", failed),
			slog.String("cause", cause.Error()),
		)
		return res, err
	}

	res.State = StateRolledBack
	e.logger.Warn("Apply rolled back",
		slog.String("apply_id", res.ApplyID),
		slog.String("code", string(cause.Code)),
		slog.String("error", cause.Error()),
	)
	return res, cause
}

// persist saves the journal and reports whether it was stored.
func (e *Executor) persist(ctx context.Context, res *Result, tx *transaction, p *plan.Plan) bool {
	if e.journals == nil {
		return false
	}
	entries := tx.committed()
	after := make(map[string]string)
	for _, entry := range entries {
		if entry.Dir {
			continue
		}
		content, err := afero.ReadFile(e.fs, entry.Path)
		if err != nil {
			after[entry.Path] = ""
			continue
		}
		after[entry.Path] = e.checksums.DigestBytes(content)
	}
	j := &Journal{
		ApplyID:       res.ApplyID,
		PlanID:        p.ID,
		WorkspaceRoot: p.WorkspaceRoot,
		CreatedAt:     e.now().UTC(),
		Entries:       entries,
		After:         after,
	}
	if err := e.journals.SaveJournal(ctx, j); err != nil {
		e.logger.Warn("Failed to persist apply journal",
			slog.String("apply_id", res.ApplyID),
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}

func fillFiles(res *Result, ops []*fileOp) {
	for _, op := range ops {
		switch op.kind {
		case opEdit:
			res.AppliedFiles = append(res.AppliedFiles, op.path)
		case opMove:
			res.AppliedFiles = append(res.AppliedFiles, op.newPath)
			res.MovedFiles = append(res.MovedFiles, Move{From: op.path, To: op.newPath})
		case opCreate:
			res.CreatedFiles = append(res.CreatedFiles, op.path)
		case opDelete:
			res.DeletedFiles = append(res.DeletedFiles, op.path)
		}
	}
}
