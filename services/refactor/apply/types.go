// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package apply

import (
	"time"

	"github.com/AleutianAI/AleutianRefactor/services/refactor/plan"
)

// DefaultValidationTimeout bounds a validation command that sets none.
const DefaultValidationTimeout = 60 * time.Second

// DefaultMaxOutput is the per-stream capture limit of a validation command.
const DefaultMaxOutput = 1 << 20

// State is a stage of the apply state machine.
type State string

const (
	StateValidating State = "validating"
	StateStaging    State = "staging"
	StateWriting    State = "writing"
	StateVerifying  State = "verifying"
	StateCommitted  State = "committed"
	StateRejected   State = "rejected"
	StateRolledBack State = "rolled_back"

	// StateFailed ends an apply that changed files and was not undone,
	// either because rollback was disabled or because it failed.
	StateFailed State = "failed"
)

// ValidationCommand is run after writing; a non-zero exit or a timeout
// undoes the apply.
type ValidationCommand struct {
	Command string   `json:"command" yaml:"command"`
	Args    []string `json:"args,omitempty" yaml:"args,omitempty"`

	// WorkingDir defaults to the plan's workspace root.
	WorkingDir string `json:"working_dir,omitempty" yaml:"working_dir,omitempty"`

	// Timeout defaults to the executor's validation timeout.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// Options control one apply.
type Options struct {
	// DryRun stops after staging and reports what would change.
	DryRun bool `json:"dry_run"`

	// ValidateChecksums compares every file against the plan's digests.
	ValidateChecksums bool `json:"validate_checksums"`

	// ValidatePlanType checks the plan against its structural schema.
	ValidatePlanType bool `json:"validate_plan_type"`

	// Force skips staleness checks: digest comparison and the existence
	// checks on files the plan creates. It has no effect on planning-time
	// checks such as manifest merge conflicts.
	Force bool `json:"force"`

	// RollbackOnError restores every written file when a write or the
	// validation command fails.
	RollbackOnError bool `json:"rollback_on_error"`

	// ExpectedPlanType rejects plans of any other type when set.
	ExpectedPlanType plan.Type `json:"expected_plan_type,omitempty"`

	Validation *ValidationCommand `json:"validation,omitempty"`
}

// DefaultOptions returns the documented defaults: checksum and plan type
// validation and rollback on error enabled.
func DefaultOptions() Options {
	return Options{
		ValidateChecksums: true,
		ValidatePlanType:  true,
		RollbackOnError:   true,
	}
}

// ValidationResult is the outcome of a validation command.
type ValidationResult struct {
	ExitCode   int    `json:"exit_code"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	DurationMs int64  `json:"duration_ms"`
	TimedOut   bool   `json:"timed_out,omitempty"`
	Truncated  bool   `json:"truncated,omitempty"`
}

// Move is one file relocation performed by an apply.
type Move struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Result reports an apply.
type Result struct {
	Success bool   `json:"success"`
	ApplyID string `json:"apply_id,omitempty"`
	PlanID  string `json:"plan_id,omitempty"`
	State   State  `json:"state"`
	DryRun  bool   `json:"dry_run,omitempty"`

	// AppliedFiles were edited in place or written at a move destination.
	AppliedFiles []string `json:"applied_files"`
	CreatedFiles []string `json:"created_files"`
	DeletedFiles []string `json:"deleted_files"`
	MovedFiles   []Move   `json:"moved_files,omitempty"`

	Warnings   []plan.Warning    `json:"warnings"`
	Validation *ValidationResult `json:"validation"`

	// RollbackAvailable reports whether a journal was persisted so the
	// apply can be reverted later.
	RollbackAvailable bool `json:"rollback_available"`

	// Diff is a unified diff of the staged changes, set for dry runs.
	Diff string `json:"diff,omitempty"`

	Error *plan.Error `json:"error,omitempty"`
}

func newResult(p *plan.Plan, opts Options) *Result {
	r := &Result{
		State:        StateValidating,
		DryRun:       opts.DryRun,
		AppliedFiles: []string{},
		CreatedFiles: []string{},
		DeletedFiles: []string{},
		Warnings:     []plan.Warning{},
	}
	if p != nil {
		r.PlanID = p.ID
		r.Warnings = append(r.Warnings, p.Warnings...)
	}
	return r
}
