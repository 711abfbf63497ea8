// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package planner

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianRefactor/services/refactor/plan"
)

var (
	tracer = otel.Tracer("aleutian.refactor.planner")
	meter  = otel.Meter("aleutian.refactor.planner")
)

var (
	generateDuration metric.Float64Histogram
	plansTotal       metric.Int64Counter
	planEdits        metric.Int64Histogram
	warningsTotal    metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		generateDuration, err = meter.Float64Histogram(
			"refactor_plan_generate_duration_seconds",
			metric.WithDescription("Duration of plan generation"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		plansTotal, err = meter.Int64Counter(
			"refactor_plans_total",
			metric.WithDescription("Plan generation attempts by kind and outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		planEdits, err = meter.Int64Histogram(
			"refactor_plan_edits",
			metric.WithDescription("Edits per generated plan"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		warningsTotal, err = meter.Int64Counter(
			"refactor_plan_warnings_total",
			metric.WithDescription("Plan warnings by code"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// recordGenerate records one generation. p is nil on failure.
func recordGenerate(ctx context.Context, kind plan.Kind, duration time.Duration, p *plan.Plan, err error) {
	if initMetrics() != nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = string(plan.CodeOf(err))
	}
	kindAttr := attribute.String("kind", string(kind))
	generateDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(kindAttr))
	plansTotal.Add(ctx, 1, metric.WithAttributes(kindAttr, attribute.String("outcome", outcome)))
	if p == nil {
		return
	}
	planEdits.Record(ctx, int64(len(p.Edits)), metric.WithAttributes(kindAttr))
	for _, w := range p.Warnings {
		warningsTotal.Add(ctx, 1, metric.WithAttributes(kindAttr, attribute.String("code", w.Code)))
	}
}
