// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package refactor

import (
	"encoding/json"
	"time"

	"github.com/AleutianAI/AleutianRefactor/services/refactor/apply"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/lang"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/plan"
)

// Tool names accepted by DispatchRefactorCall. They match the plan kinds.
const (
	ToolRename    = "rename"
	ToolExtract   = "extract"
	ToolInline    = "inline"
	ToolMove      = "move"
	ToolReorder   = "reorder"
	ToolTransform = "transform"
	ToolDelete    = "delete"
)

// Tools lists the plan-generating tools in a stable order.
var Tools = []string{ToolRename, ToolExtract, ToolInline, ToolMove, ToolReorder, ToolTransform, ToolDelete}

// RefactorCall is a tool invocation from an agent: the tool name and its
// JSON arguments, which are the matching planner request.
type RefactorCall struct {
	Tool      string          `json:"tool" binding:"required"`
	Arguments json.RawMessage `json:"arguments"`
}

// ValidationRequest is the wire form of apply.ValidationCommand.
type ValidationRequest struct {
	Command    string   `json:"command"`
	Args       []string `json:"args,omitempty"`
	WorkingDir string   `json:"working_dir,omitempty"`
	TimeoutMs  int64    `json:"timeout_ms,omitempty"`
}

func (v *ValidationRequest) command() *apply.ValidationCommand {
	if v == nil || v.Command == "" {
		return nil
	}
	return &apply.ValidationCommand{
		Command:    v.Command,
		Args:       v.Args,
		WorkingDir: v.WorkingDir,
		Timeout:    time.Duration(v.TimeoutMs) * time.Millisecond,
	}
}

// ApplyOptions are the caller-controlled apply options. Nil booleans take
// the defaults of apply.DefaultOptions.
type ApplyOptions struct {
	DryRun            bool               `json:"dry_run,omitempty"`
	Force             bool               `json:"force,omitempty"`
	ValidateChecksums *bool              `json:"validate_checksums,omitempty"`
	ValidatePlanType  *bool              `json:"validate_plan_type,omitempty"`
	RollbackOnError   *bool              `json:"rollback_on_error,omitempty"`
	ExpectedPlanType  plan.Type          `json:"expected_plan_type,omitempty"`
	Validation        *ValidationRequest `json:"validation,omitempty"`
}

func (o ApplyOptions) options() apply.Options {
	opts := apply.DefaultOptions()
	opts.DryRun = o.DryRun
	opts.Force = o.Force
	if o.ValidateChecksums != nil {
		opts.ValidateChecksums = *o.ValidateChecksums
	}
	if o.ValidatePlanType != nil {
		opts.ValidatePlanType = *o.ValidatePlanType
	}
	if o.RollbackOnError != nil {
		opts.RollbackOnError = *o.RollbackOnError
	}
	opts.ExpectedPlanType = o.ExpectedPlanType
	opts.Validation = o.Validation.command()
	return opts
}

// ApplyRequest is the body of POST /apply.
type ApplyRequest struct {
	Plan    *plan.Plan   `json:"plan"`
	Options ApplyOptions `json:"options"`
}

// RevertRequest is the optional body of POST /revert/:apply_id.
type RevertRequest struct {
	Force bool `json:"force,omitempty"`
}

// ListPlansResponse is returned by GET /plans.
type ListPlansResponse struct {
	Plans []PlanSummary `json:"plans"`
	Count int           `json:"count"`
}

// PlanSummary is the list view of a stored plan.
type PlanSummary struct {
	ID        string        `json:"id"`
	PlanType  plan.Type     `json:"plan_type"`
	Summary   plan.Summary  `json:"summary"`
	Metadata  plan.Metadata `json:"metadata"`
	Warnings  int           `json:"warnings"`
	Stale     bool          `json:"stale"`
	StalePath string        `json:"stale_path,omitempty"`
}

// LanguagesResponse is returned by GET /languages.
type LanguagesResponse struct {
	Languages []*lang.Descriptor `json:"languages"`
}

// HealthResponse is returned by GET /health and GET /ready.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Store   string `json:"store,omitempty"`
	Watcher bool   `json:"watcher,omitempty"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error      string   `json:"error"`
	Code       string   `json:"code,omitempty"`
	Suggestion string   `json:"suggestion,omitempty"`
	Files      []string `json:"files,omitempty"`
}

// ApplyFailureResponse is returned when an apply got past validation but
// did not commit: the result is still reported alongside the error.
type ApplyFailureResponse struct {
	ErrorResponse
	Result *apply.Result `json:"result"`
}

// NewErrorResponse builds the error body shared by HTTP, MCP and the CLI.
func NewErrorResponse(err error) ErrorResponse {
	pe := plan.AsError(err)
	return ErrorResponse{
		Error:      pe.Error(),
		Code:       string(pe.Code),
		Suggestion: pe.Suggestion,
		Files:      pe.Files,
	}
}
