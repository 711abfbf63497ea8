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
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianRefactor/services/refactor/apply"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/plan"
)

// Handlers contains the HTTP handlers for the refactoring service.
type Handlers struct {
	svc *Service
}

// NewHandlers creates handlers for the given service.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// HandlePlan handles POST /v1/refactor/plan/:kind.
//
// Description:
//
//	Generates a plan of the given kind. The body is the generator's
//	request. The plan is returned and not stored.
//
// Response:
//
//	200 OK: plan.Plan
//	400 Bad Request: INVALID_REQUEST, AMBIGUOUS_TARGET
//	404 Not Found: workspace or target missing
//	422 Unprocessable Entity: UNSUPPORTED_CAPABILITY
func (h *Handlers) HandlePlan(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	kind := c.Param("kind")
	logger := slog.With("request_id", requestID, "handler", "HandlePlan", "kind", kind)

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		logger.Warn("Cannot read request body", "error", err)
		writeError(c, plan.Wrap(plan.CodeInvalidRequest, err, "cannot read request body"))
		return
	}

	p, err := h.svc.DispatchRefactorCall(c.Request.Context(), RefactorCall{Tool: kind, Arguments: body})
	if err != nil {
		logger.Info("Plan generation failed", "code", plan.CodeOf(err), "error", err)
		writeError(c, err)
		return
	}
	logger.Info("Plan generated", "plan_id", p.ID, "edits", len(p.Edits))
	c.JSON(http.StatusOK, p)
}

// HandleRefactorCall handles POST /v1/refactor/refactor_call.
//
// Description:
//
//	Agent-facing entry point: {"tool": "rename", "arguments": {...}}.
func (h *Handlers) HandleRefactorCall(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleRefactorCall")

	var call RefactorCall
	if err := c.ShouldBindJSON(&call); err != nil {
		logger.Warn("Invalid request body", "error", err)
		writeError(c, plan.Wrap(plan.CodeInvalidRequest, err, "invalid request body"))
		return
	}

	p, err := h.svc.DispatchRefactorCall(c.Request.Context(), call)
	if err != nil {
		logger.Info("Refactor call failed", "tool", call.Tool, "code", plan.CodeOf(err), "error", err)
		writeError(c, err)
		return
	}
	logger.Info("Plan generated", "tool", call.Tool, "plan_id", p.ID)
	c.JSON(http.StatusOK, p)
}

// HandleApply handles POST /v1/refactor/apply.
//
// Response:
//
//	200 OK: apply.Result
//	400 Bad Request: malformed plan or options
//	409 Conflict: STALE_PLAN, nothing written
//	422 Unprocessable Entity: VALIDATION_* or PARTIAL_WRITE_FAILURE, with
//	  the rolled back result
//	500 Internal Server Error: ROLLBACK_FAILED, with the result
func (h *Handlers) HandleApply(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleApply")

	var req ApplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		writeError(c, plan.Wrap(plan.CodeInvalidRequest, err, "invalid request body"))
		return
	}

	res, err := h.svc.Apply(c.Request.Context(), req.Plan, req.Options)
	writeApply(c, logger, res, err)
}

// HandleRevert handles POST /v1/refactor/revert/:apply_id.
func (h *Handlers) HandleRevert(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	applyID := c.Param("apply_id")
	logger := slog.With("request_id", requestID, "handler", "HandleRevert", "apply_id", applyID)

	var req RevertRequest
	if !bindOptional(c, logger, &req) {
		return
	}

	res, err := h.svc.Revert(c.Request.Context(), applyID, req.Force)
	writeApply(c, logger, res, err)
}

// HandleCreatePlan handles POST /v1/refactor/plans.
//
// Description:
//
//	Generates a plan from a RefactorCall body and stores it for a later
//	POST /plans/:id/apply.
//
// Response:
//
//	201 Created: plan.Plan
func (h *Handlers) HandleCreatePlan(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleCreatePlan")

	var call RefactorCall
	if err := c.ShouldBindJSON(&call); err != nil {
		logger.Warn("Invalid request body", "error", err)
		writeError(c, plan.Wrap(plan.CodeInvalidRequest, err, "invalid request body"))
		return
	}

	p, err := h.svc.CreatePlan(c.Request.Context(), call)
	if err != nil {
		logger.Info("Plan creation failed", "tool", call.Tool, "code", plan.CodeOf(err), "error", err)
		writeError(c, err)
		return
	}
	logger.Info("Plan stored", "plan_id", p.ID)
	c.JSON(http.StatusCreated, p)
}

// HandleListPlans handles GET /v1/refactor/plans.
func (h *Handlers) HandleListPlans(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleListPlans")

	plans, err := h.svc.ListPlans(c.Request.Context())
	if err != nil {
		logger.Warn("List plans failed", "error", err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ListPlansResponse{Plans: plans, Count: len(plans)})
}

// HandleGetPlan handles GET /v1/refactor/plans/:id.
func (h *Handlers) HandleGetPlan(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	id := c.Param("id")

	p, err := h.svc.GetPlan(c.Request.Context(), id)
	if err != nil {
		slog.With("request_id", requestID, "handler", "HandleGetPlan").Debug("Get plan failed", "plan_id", id, "error", err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// HandleDeletePlan handles DELETE /v1/refactor/plans/:id.
func (h *Handlers) HandleDeletePlan(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	id := c.Param("id")
	logger := slog.With("request_id", requestID, "handler", "HandleDeletePlan", "plan_id", id)

	if err := h.svc.DeletePlan(c.Request.Context(), id); err != nil {
		logger.Debug("Delete plan failed", "error", err)
		writeError(c, err)
		return
	}
	logger.Info("Plan deleted")
	c.Status(http.StatusNoContent)
}

// HandleApplyStoredPlan handles POST /v1/refactor/plans/:id/apply. The
// optional body is ApplyOptions.
func (h *Handlers) HandleApplyStoredPlan(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	id := c.Param("id")
	logger := slog.With("request_id", requestID, "handler", "HandleApplyStoredPlan", "plan_id", id)

	var opts ApplyOptions
	if !bindOptional(c, logger, &opts) {
		return
	}

	res, err := h.svc.ApplyStoredPlan(c.Request.Context(), id, opts)
	writeApply(c, logger, res, err)
}

// HandleLanguages handles GET /v1/refactor/languages.
func (h *Handlers) HandleLanguages(c *gin.Context) {
	getOrCreateRequestID(c)
	c.JSON(http.StatusOK, LanguagesResponse{Languages: h.svc.Languages()})
}

// HandleHealth handles GET /v1/refactor/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "healthy", Version: ServiceVersion})
}

// HandleReady handles GET /v1/refactor/ready.
//
// The service is ready once the registry has languages. Storage is
// reported but optional.
func (h *Handlers) HandleReady(c *gin.Context) {
	resp := HealthResponse{
		Status:  "ready",
		Version: ServiceVersion,
		Store:   "disabled",
		Watcher: h.svc.watcher != nil,
	}
	if h.svc.HasStore() {
		resp.Store = "enabled"
	}
	if len(h.svc.Languages()) == 0 {
		resp.Status = "not_ready"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// bindOptional decodes an optional JSON body. An empty body leaves v
// unchanged. It writes the error response and returns false on failure.
func bindOptional(c *gin.Context, logger *slog.Logger, v any) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(c.Request.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		logger.Warn("Invalid request body", "error", err)
		writeError(c, plan.Wrap(plan.CodeInvalidRequest, err, "invalid request body"))
		return false
	}
	return true
}

// writeApply writes an apply or revert outcome. Failures that happened
// after validation still carry the result.
func writeApply(c *gin.Context, logger *slog.Logger, res *apply.Result, err error) {
	if err == nil {
		logger.Info("Apply finished",
			"apply_id", res.ApplyID,
			"plan_id", res.PlanID,
			"state", res.State,
			"dry_run", res.DryRun)
		c.JSON(http.StatusOK, res)
		return
	}

	code := plan.CodeOf(err)
	logger.Warn("Apply failed", "code", code, "error", err)
	if res == nil || res.State == apply.StateRejected {
		writeError(c, err)
		return
	}
	c.JSON(StatusForCode(code), ApplyFailureResponse{ErrorResponse: NewErrorResponse(err), Result: res})
}

func writeError(c *gin.Context, err error) {
	c.JSON(StatusForCode(plan.CodeOf(err)), NewErrorResponse(err))
}

// StatusForCode maps an error code to its HTTP status.
func StatusForCode(code plan.Code) int {
	switch code {
	case plan.CodeInvalidRequest, plan.CodeAmbiguousTarget:
		return http.StatusBadRequest
	case plan.CodeUnsupportedCapability:
		return http.StatusUnprocessableEntity
	case plan.CodeStalePlan:
		return http.StatusConflict
	case plan.CodeNotFound:
		return http.StatusNotFound
	case plan.CodeValidationFailed, plan.CodeValidationTimeout, plan.CodePartialWriteFailure:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// getOrCreateRequestID returns X-Request-ID, generating one if absent, and
// echoes it on the response.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
