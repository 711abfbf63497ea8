// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package refs

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
	tracer = otel.Tracer("aleutian.refactor.refs")
	meter  = otel.Meter("aleutian.refactor.refs")
)

var (
	scanDuration metric.Float64Histogram
	filesScanned metric.Int64Counter
	editsTotal   metric.Int64Counter
	parseErrors  metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		scanDuration, err = meter.Float64Histogram(
			"refactor_refs_scan_duration_seconds",
			metric.WithDescription("Duration of reference update scans"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		filesScanned, err = meter.Int64Counter(
			"refactor_refs_files_scanned_total",
			metric.WithDescription("Source files examined for references"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		editsTotal, err = meter.Int64Counter(
			"refactor_refs_edits_total",
			metric.WithDescription("Reference edits produced"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		parseErrors, err = meter.Int64Counter(
			"refactor_refs_parse_errors_total",
			metric.WithDescription("Files skipped because they could not be parsed"),
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

func recordScan(ctx context.Context, op string, duration time.Duration, files, edits, parseFailures int) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("op", op))
	scanDuration.Record(ctx, duration.Seconds(), attrs)
	filesScanned.Add(ctx, int64(files), attrs)
	editsTotal.Add(ctx, int64(edits), attrs)
	if parseFailures > 0 {
		parseErrors.Add(ctx, int64(parseFailures), attrs)
	}
}
