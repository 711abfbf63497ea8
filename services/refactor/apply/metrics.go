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
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("aleutian.refactor.apply")
	meter  = otel.Meter("aleutian.refactor.apply")
)

var (
	applyDuration      metric.Float64Histogram
	appliesTotal       metric.Int64Counter
	rollbacksTotal     metric.Int64Counter
	validationDuration metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		applyDuration, err = meter.Float64Histogram(
			"refactor_apply_duration_seconds",
			metric.WithDescription("Duration of plan applies"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		appliesTotal, err = meter.Int64Counter(
			"refactor_apply_total",
			metric.WithDescription("Plan applies by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		rollbacksTotal, err = meter.Int64Counter(
			"refactor_apply_rollbacks_total",
			metric.WithDescription("Rollbacks and reverts by result"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		validationDuration, err = meter.Float64Histogram(
			"refactor_apply_validation_duration_seconds",
			metric.WithDescription("Duration of post-apply validation commands"),
			metric.WithUnit("s"),
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

func recordApply(ctx context.Context, outcome string, duration time.Duration) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	applyDuration.Record(ctx, duration.Seconds(), attrs)
	appliesTotal.Add(ctx, 1, attrs)
}

func recordRollback(ctx context.Context, ok bool) {
	if err := initMetrics(); err != nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	rollbacksTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func recordValidation(ctx context.Context, duration time.Duration, exitCode int) {
	if err := initMetrics(); err != nil {
		return
	}
	validationDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.Bool("passed", exitCode == 0)))
}
