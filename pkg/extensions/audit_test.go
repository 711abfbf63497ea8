// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extensions

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	require.NotNil(t, opts.AuditLogger)

	mem := NewMemoryAuditLogger(0)
	assert.Same(t, mem, opts.WithAudit(mem).AuditLogger)
	assert.IsType(t, &NopAuditLogger{}, opts.WithAudit(nil).AuditLogger)
}

func TestMemoryAuditLogger_QueryNewestFirst(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	l := NewMemoryAuditLogger(10)
	l.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	require.NoError(t, l.Log(ctx, AuditEvent{EventType: EventPlanCreate, PlanID: "p1", Outcome: OutcomeSuccess}))
	require.NoError(t, l.Log(ctx, AuditEvent{EventType: EventApply, PlanID: "p1", ApplyID: "a1", Outcome: OutcomeSuccess}))
	require.NoError(t, l.Log(ctx, AuditEvent{EventType: EventApply, PlanID: "p2", Outcome: OutcomeRejected}))

	all, err := l.Query(ctx, AuditFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "p2", all[0].PlanID)
	assert.Equal(t, EventPlanCreate, all[2].EventType)

	applies, err := l.Query(ctx, AuditFilter{EventTypes: []string{EventApply}, Outcome: OutcomeSuccess})
	require.NoError(t, err)
	require.Len(t, applies, 1)
	assert.Equal(t, "a1", applies[0].ApplyID)

	window, err := l.Query(ctx, AuditFilter{StartTime: base.Add(2 * time.Minute), EndTime: base.Add(3 * time.Minute)})
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, EventApply, window[0].EventType)

	limited, err := l.Query(ctx, AuditFilter{PlanID: "p1", Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "a1", limited[0].ApplyID)
}

func TestMemoryAuditLogger_Capacity(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryAuditLogger(2)
	for _, id := range []string{"p1", "p2", "p3"} {
		require.NoError(t, l.Log(ctx, AuditEvent{EventType: EventPlanDelete, PlanID: id}))
	}

	events, err := l.Query(ctx, AuditFilter{})
	require.NoError(t, err)
	ids := []string{events[0].PlanID, events[1].PlanID}
	assert.ElementsMatch(t, []string{"p2", "p3"}, ids)
}

func TestSlogAuditLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewSlogAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, l.Log(context.Background(), AuditEvent{
		EventType: EventRevert,
		ApplyID:   "a1",
		Outcome:   OutcomeError,
		Error:     "STALE_PLAN: util.go changed",
		Files:     []string{"util.go"},
	}))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "Audit", rec["msg"])
	assert.Equal(t, "audit", rec["component"])
	assert.Equal(t, EventRevert, rec["event_type"])
	assert.Equal(t, "a1", rec["apply_id"])
	assert.NotContains(t, rec, "plan_id")
	assert.Equal(t, []any{"util.go"}, rec["files"])

	events, err := l.Query(context.Background(), AuditFilter{})
	require.NoError(t, err)
	assert.Empty(t, events)
}
