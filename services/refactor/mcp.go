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
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/AleutianAI/AleutianRefactor/services/refactor/apply"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/plan"
)

var selectorSchema = map[string]any{
	"kind": map[string]any{
		"type": "string",
		"enum": []string{"symbol", "file", "directory"},
	},
	"path": map[string]any{"type": "string", "description": "File or directory path, relative to workspace_root or absolute"},
	"name": map[string]any{"type": "string", "description": "Symbol name when no position is given"},
	"position": map[string]any{
		"type": "object",
		"properties": map[string]any{
			"line":      map[string]any{"type": "integer", "minimum": 0},
			"character": map[string]any{"type": "integer", "minimum": 0},
		},
	},
}

var rangeSchema = map[string]any{
	"start": map[string]any{"type": "object"},
	"end":   map[string]any{"type": "object"},
}

func workspaceRoot() mcp.ToolOption {
	return mcp.WithString("workspace_root",
		mcp.Description("Absolute workspace directory; defaults to the server's configured root"),
	)
}

func selector(name, description string) mcp.ToolOption {
	return mcp.WithObject(name,
		mcp.Required(),
		mcp.Description(description),
		mcp.Properties(selectorSchema),
	)
}

// mcpTools adapts the Service to MCP tool handlers.
type mcpTools struct {
	svc    *Service
	logger *slog.Logger
}

// NewMCPServer builds an MCP server exposing the plan generators,
// apply_plan and list_languages.
func NewMCPServer(svc *Service) *server.MCPServer {
	s := server.NewMCPServer(
		"Aleutian Refactor",
		ServiceVersion,
		server.WithToolCapabilities(true),
	)
	t := &mcpTools{svc: svc, logger: svc.logger.With("component", "refactor.mcp")}
	t.register(s)
	return s
}

// ServeStdio serves MCP over stdin and stdout until the input closes.
func ServeStdio(svc *Service) error {
	return server.ServeStdio(NewMCPServer(svc))
}

func (t *mcpTools) register(s *server.MCPServer) {
	s.AddTool(mcp.NewTool(ToolRename,
		mcp.WithDescription("Plan a rename of a symbol, file or directory, updating every reference. Returns a plan; nothing is written."),
		workspaceRoot(),
		selector("target", "What to rename"),
		mcp.WithString("new_name", mcp.Required(), mcp.Description("New identifier, or new base name for files and directories")),
		mcp.WithBoolean("update_imports", mcp.Description("Rewrite imports of a renamed file or directory (default true)")),
		mcp.WithString("new_package_name", mcp.Description("Also rename the package a directory declares in its manifest")),
	), t.planHandler(ToolRename))

	s.AddTool(mcp.NewTool(ToolExtract,
		mcp.WithDescription("Plan extracting a selection into a new function, variable or constant."),
		workspaceRoot(),
		mcp.WithString("path", mcp.Required(), mcp.Description("File holding the selection")),
		mcp.WithObject("range", mcp.Required(), mcp.Description("Zero-based half-open selection"), mcp.Properties(rangeSchema)),
		mcp.WithString("kind", mcp.Required(), mcp.Enum("function", "variable", "constant")),
		mcp.WithString("name", mcp.Required(), mcp.Description("Name of the new declaration")),
	), t.planHandler(ToolExtract))

	s.AddTool(mcp.NewTool(ToolInline,
		mcp.WithDescription("Plan inlining a local variable into its uses and removing its declaration."),
		workspaceRoot(),
		selector("target", "The variable to inline"),
	), t.planHandler(ToolInline))

	s.AddTool(mcp.NewTool(ToolMove,
		mcp.WithDescription("Plan moving a file, directory or top-level symbol, updating every reference."),
		workspaceRoot(),
		selector("source", "What to move"),
		mcp.WithString("destination", mcp.Required(), mcp.Description("New path, or destination file for symbols")),
		mcp.WithBoolean("update_imports", mcp.Description("Rewrite imports of the moved path (default true)")),
	), t.planHandler(ToolMove))

	s.AddTool(mcp.NewTool(ToolReorder,
		mcp.WithDescription("Plan reordering a callable's parameters (and its call sites) or a file's imports."),
		workspaceRoot(),
		mcp.WithString("kind", mcp.Required(), mcp.Enum("parameters", "imports")),
		selector("target", "The callable, or the file whose imports are sorted"),
		mcp.WithArray("order",
			mcp.Description("New parameter order: order[i] is the old index of the parameter placed at i"),
			mcp.Items(map[string]any{"type": "integer", "minimum": 0}),
		),
	), t.planHandler(ToolReorder))

	s.AddTool(mcp.NewTool(ToolTransform,
		mcp.WithDescription("Plan a mechanical transformation of a declaration."),
		workspaceRoot(),
		selector("target", "The declaration to transform"),
		mcp.WithString("transform", mcp.Required(), mcp.Enum("add_export", "remove_export", "to_async")),
	), t.planHandler(ToolTransform))

	s.AddTool(mcp.NewTool(ToolDelete,
		mcp.WithDescription("Plan deleting a file, directory or symbol, or removing a file's unused imports."),
		workspaceRoot(),
		mcp.WithString("kind", mcp.Enum("target", "unused_imports"), mcp.Description("Default target")),
		selector("target", "What to delete, or the file to clean up"),
	), t.planHandler(ToolDelete))

	s.AddTool(mcp.NewTool("apply_plan",
		mcp.WithDescription("Apply a plan by id (stored plans) or inline. Verifies checksums first; rolls back on any failure."),
		mcp.WithString("plan_id", mcp.Description("Id of a stored plan")),
		mcp.WithObject("plan", mcp.Description("A plan returned by one of the planning tools")),
		mcp.WithBoolean("dry_run", mcp.Description("Report what would change, with a unified diff, without writing")),
		mcp.WithBoolean("force", mcp.Description("Skip staleness checks")),
		mcp.WithObject("validation", mcp.Description("Command run after writing: {command, args, working_dir, timeout_ms}")),
	), t.handleApply)

	s.AddTool(mcp.NewTool("list_languages",
		mcp.WithDescription("List registered languages, their extensions and capabilities."),
	), t.handleLanguages)
}

func (t *mcpTools) planHandler(tool string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := json.Marshal(req.GetArguments())
		if err != nil {
			return t.fail(tool, plan.Wrap(plan.CodeInvalidRequest, err, "cannot encode arguments")), nil
		}
		p, err := t.svc.DispatchRefactorCall(ctx, RefactorCall{Tool: tool, Arguments: args})
		if err != nil {
			return t.fail(tool, err), nil
		}
		return t.ok(tool, p), nil
	}
}

type mcpApplyArgs struct {
	PlanID string     `json:"plan_id"`
	Plan   *plan.Plan `json:"plan"`
	ApplyOptions
}

func (t *mcpTools) handleApply(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	const tool = "apply_plan"
	raw, err := json.Marshal(req.GetArguments())
	if err != nil {
		return t.fail(tool, plan.Wrap(plan.CodeInvalidRequest, err, "cannot encode arguments")), nil
	}
	var args mcpApplyArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return t.fail(tool, plan.Wrap(plan.CodeInvalidRequest, err, "invalid apply_plan arguments")), nil
	}

	switch {
	case args.PlanID != "" && args.Plan != nil:
		return t.fail(tool, plan.Errorf(plan.CodeInvalidRequest, "give plan_id or plan, not both")), nil
	case args.PlanID != "":
		res, err := t.svc.ApplyStoredPlan(ctx, args.PlanID, args.ApplyOptions)
		if err != nil {
			return t.failWith(tool, err, res), nil
		}
		return t.ok(tool, res), nil
	case args.Plan != nil:
		res, err := t.svc.Apply(ctx, args.Plan, args.ApplyOptions)
		if err != nil {
			return t.failWith(tool, err, res), nil
		}
		return t.ok(tool, res), nil
	default:
		return t.fail(tool, plan.Errorf(plan.CodeInvalidRequest, "plan_id or plan is required")), nil
	}
}

func (t *mcpTools) handleLanguages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return t.ok("list_languages", LanguagesResponse{Languages: t.svc.Languages()}), nil
}

func (t *mcpTools) ok(tool string, v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return t.fail(tool, plan.Wrap(plan.CodeInternal, err, "cannot encode result"))
	}
	recordToolCall(tool, "")
	return mcp.NewToolResultText(string(data))
}

func (t *mcpTools) fail(tool string, err error) *mcp.CallToolResult {
	return t.failWith(tool, err, nil)
}

// failWith reports err as a tool error. A non-rejected apply result is
// included so the caller sees the rollback state and validation output.
func (t *mcpTools) failWith(tool string, err error, res *apply.Result) *mcp.CallToolResult {
	code := plan.CodeOf(err)
	recordToolCall(tool, string(code))
	t.logger.Info("Tool call failed", "tool", tool, "code", code, "error", err)

	body := any(NewErrorResponse(err))
	if res != nil && res.State != apply.StateRejected {
		body = ApplyFailureResponse{ErrorResponse: NewErrorResponse(err), Result: res}
	}
	data, merr := json.MarshalIndent(body, "", "  ")
	if merr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("%s: %s", code, err))
	}
	return mcp.NewToolResultError(string(data))
}
