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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"

	"github.com/AleutianAI/AleutianRefactor/services/refactor/plan"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/planner"
)

// DispatchRefactorCall routes a tool call to its plan generator.
//
// # Description
//
// Arguments are decoded strictly into the generator's request type;
// unknown fields are rejected. A request without workspace_root uses the
// configured workspace root. A panic inside a generator is recovered and
// reported as INTERNAL.
//
// # Outputs
//
//	*plan.Plan - The generated plan. Nothing is written.
//	error - A *plan.Error.
func (s *Service) DispatchRefactorCall(ctx context.Context, call RefactorCall) (p *plan.Plan, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Plan generator panicked",
				"tool", call.Tool,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			p = nil
			err = plan.Errorf(plan.CodeInternal, "%s generator failed: %v", call.Tool, r).
				WithSuggestion("report this as a bug with the request that triggered it")
		}
	}()

	switch call.Tool {
	case ToolRename:
		var req planner.RenameRequest
		if err := s.decode(call, &req, &req.Workspace); err != nil {
			return nil, err
		}
		return s.planner.Rename(ctx, req)
	case ToolExtract:
		var req planner.ExtractRequest
		if err := s.decode(call, &req, &req.Workspace); err != nil {
			return nil, err
		}
		return s.planner.Extract(ctx, req)
	case ToolInline:
		var req planner.InlineRequest
		if err := s.decode(call, &req, &req.Workspace); err != nil {
			return nil, err
		}
		return s.planner.Inline(ctx, req)
	case ToolMove:
		var req planner.MoveRequest
		if err := s.decode(call, &req, &req.Workspace); err != nil {
			return nil, err
		}
		return s.planner.Move(ctx, req)
	case ToolReorder:
		var req planner.ReorderRequest
		if err := s.decode(call, &req, &req.Workspace); err != nil {
			return nil, err
		}
		return s.planner.Reorder(ctx, req)
	case ToolTransform:
		var req planner.TransformRequest
		if err := s.decode(call, &req, &req.Workspace); err != nil {
			return nil, err
		}
		return s.planner.Transform(ctx, req)
	case ToolDelete:
		var req planner.DeleteRequest
		if err := s.decode(call, &req, &req.Workspace); err != nil {
			return nil, err
		}
		return s.planner.Delete(ctx, req)
	default:
		return nil, plan.Errorf(plan.CodeInvalidRequest, "unknown refactoring tool %q", call.Tool).
			WithSuggestion("use one of rename, extract, inline, move, reorder, transform, delete")
	}
}

// decode unmarshals call.Arguments into req and fills workspace defaults.
func (s *Service) decode(call RefactorCall, req any, ws *planner.Workspace) error {
	args := bytes.TrimSpace(call.Arguments)
	if len(args) == 0 || bytes.Equal(args, []byte("null")) {
		args = []byte("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(args))
	dec.DisallowUnknownFields()
	if err := dec.Decode(req); err != nil {
		return plan.Wrap(plan.CodeInvalidRequest, err, "invalid "+call.Tool+" arguments")
	}
	if ws.WorkspaceRoot == "" {
		ws.WorkspaceRoot = s.cfg.Workspace.Root
	}
	return nil
}
