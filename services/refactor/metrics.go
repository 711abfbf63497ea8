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
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// httpRequestsTotal counts requests by route template and status.
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "refactor_http_requests_total",
		Help: "Total refactoring API requests by route and status",
	}, []string{"route", "method", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "refactor_http_request_duration_seconds",
		Help:    "Refactoring API request duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
	}, []string{"route", "method"})

	// toolCallsTotal counts MCP tool calls by tool and outcome code.
	toolCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "refactor_mcp_tool_calls_total",
		Help: "Total MCP tool calls by tool and result code",
	}, []string{"tool", "code"})
)

// requestMetrics records per-route request counts and latency. Unmatched
// routes are recorded as "unmatched" to keep label cardinality bounded.
func requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		httpRequestsTotal.WithLabelValues(route, method, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
	}
}

func recordToolCall(tool, code string) {
	if code == "" {
		code = "OK"
	}
	toolCallsTotal.WithLabelValues(tool, code).Inc()
}
