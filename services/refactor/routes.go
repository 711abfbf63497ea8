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
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RegisterRoutes registers the refactoring routes under rg.
//
// Routes:
//
//	POST   /refactor/plan/:kind        generate a plan (not stored)
//	POST   /refactor/refactor_call     generate a plan from {tool, arguments}
//	POST   /refactor/apply             apply a plan carried in the body
//	POST   /refactor/revert/:apply_id  undo a committed apply
//	POST   /refactor/plans             generate and store a plan
//	GET    /refactor/plans             list stored plans
//	GET    /refactor/plans/:id         fetch a stored plan
//	DELETE /refactor/plans/:id         delete a stored plan
//	POST   /refactor/plans/:id/apply   apply a stored plan
//	GET    /refactor/languages         registered languages and capabilities
//	GET    /refactor/health            liveness
//	GET    /refactor/ready             readiness
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	refactor := rg.Group("/refactor")
	{
		refactor.POST("/plan/:kind", handlers.HandlePlan)
		refactor.POST("/refactor_call", handlers.HandleRefactorCall)
		refactor.POST("/apply", handlers.HandleApply)
		refactor.POST("/revert/:apply_id", handlers.HandleRevert)

		plans := refactor.Group("/plans")
		{
			plans.POST("", handlers.HandleCreatePlan)
			plans.GET("", handlers.HandleListPlans)
			plans.GET("/:id", handlers.HandleGetPlan)
			plans.DELETE("/:id", handlers.HandleDeletePlan)
			plans.POST("/:id/apply", handlers.HandleApplyStoredPlan)
		}

		refactor.GET("/languages", handlers.HandleLanguages)
		refactor.GET("/health", handlers.HandleHealth)
		refactor.GET("/ready", handlers.HandleReady)
	}
}

// NewRouter builds the gin engine: recovery, otelgin tracing, request
// metrics, the /v1 routes and, when metrics is non-nil, GET /metrics.
func NewRouter(svc *Service, serviceName string, metrics http.Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(requestMetrics())

	v1 := router.Group("/v1")
	RegisterRoutes(v1, NewHandlers(svc))

	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}
	return router
}
