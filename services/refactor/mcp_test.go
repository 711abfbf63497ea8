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
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianRefactor/services/refactor/apply"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/plan"
)

func newTools(t *testing.T, withStore bool) *mcpTools {
	t.Helper()
	_, svc := newService(t, withStore)
	return &mcpTools{svc: svc, logger: svc.logger}
}

func toolRequest(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")
	return text.Text
}

func TestMCP_PlanThenApply(t *testing.T) {
	tools := newTools(t, false)
	ctx := context.Background()

	res, err := tools.planHandler(ToolRename)(ctx, toolRequest(ToolRename, map[string]any{
		"target":   map[string]any{"kind": "symbol", "path": "util/util.go", "name": "Slug"},
		"new_name": "Name",
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))

	var p map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &p))
	assert.Equal(t, string(plan.TypeRename), p["plan_type"])

	res, err = tools.handleApply(ctx, toolRequest("apply_plan", map[string]any{
		"plan":    p,
		"dry_run": true,
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))

	var applied apply.Result
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &applied))
	assert.True(t, applied.DryRun)
	assert.Contains(t, applied.Diff, "util.Name(")
}

func TestMCP_PlanPosition(t *testing.T) {
	tools := newTools(t, false)

	// JSON numbers arrive as float64 and still decode into positions.
	res, err := tools.planHandler(ToolRename)(context.Background(), toolRequest(ToolRename, map[string]any{
		"target":   map[string]any{"kind": "symbol", "path": "a/a.go", "position": map[string]any{"line": float64(4), "character": float64(32)}},
		"new_name": "Name",
	}))
	require.NoError(t, err)
	assert.False(t, res.IsError, resultText(t, res))
}

func TestMCP_ErrorsAreToolResults(t *testing.T) {
	tools := newTools(t, false)
	ctx := context.Background()

	res, err := tools.planHandler(ToolInline)(ctx, toolRequest(ToolInline, map[string]any{"bogus": true}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &resp))
	assert.Equal(t, "INVALID_REQUEST", resp.Code)

	res, err = tools.handleApply(ctx, toolRequest("apply_plan", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = tools.handleApply(ctx, toolRequest("apply_plan", map[string]any{"plan_id": "missing"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "INVALID_REQUEST")
}

func TestMCP_ApplyStoredPlan(t *testing.T) {
	tools := newTools(t, true)
	ctx := context.Background()

	p, err := tools.svc.CreatePlan(ctx, RefactorCall{Tool: ToolRename, Arguments: json.RawMessage(renameSlug)})
	require.NoError(t, err)

	res, err := tools.handleApply(ctx, toolRequest("apply_plan", map[string]any{"plan_id": p.ID}))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))

	res, err = tools.handleApply(ctx, toolRequest("apply_plan", map[string]any{"plan_id": p.ID}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "NOT_FOUND")
}

func TestMCP_ListLanguages(t *testing.T) {
	tools := newTools(t, false)

	res, err := tools.handleLanguages(context.Background(), toolRequest("list_languages", nil))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), `"typescript"`)
}

func TestNewMCPServer(t *testing.T) {
	_, svc := newService(t, false)
	assert.NotNil(t, NewMCPServer(svc))
}
