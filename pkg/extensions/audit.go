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
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Audit event types.
const (
	EventPlanCreate = "plan.create"
	EventPlanDelete = "plan.delete"
	EventApply      = "plan.apply"
	EventRevert     = "plan.revert"
)

// Audit outcomes.
const (
	OutcomeSuccess    = "success"
	OutcomeRejected   = "rejected"
	OutcomeRolledBack = "rolled_back"
	OutcomeError      = "error"
)

// AuditEvent is one workspace-changing operation.
type AuditEvent struct {
	// EventType is one of the Event constants.
	EventType string `json:"event_type"`

	// Timestamp is when the operation finished, in UTC. Loggers set it
	// when zero.
	Timestamp time.Time `json:"timestamp"`

	// WorkspaceRoot is the workspace the operation touched.
	WorkspaceRoot string `json:"workspace_root,omitempty"`

	// PlanID and ApplyID identify the plan and, for applies and reverts,
	// the journal.
	PlanID  string `json:"plan_id,omitempty"`
	ApplyID string `json:"apply_id,omitempty"`

	// PlanType is the plan_type discriminator.
	PlanType string `json:"plan_type,omitempty"`

	// Outcome is one of the Outcome constants.
	Outcome string `json:"outcome"`

	DryRun bool     `json:"dry_run,omitempty"`
	Files  []string `json:"files,omitempty"`

	// Error is the error code and message for failed operations.
	Error string `json:"error,omitempty"`
}

// AuditFilter selects events in Query. Zero fields match everything.
type AuditFilter struct {
	EventTypes []string
	PlanID     string
	Outcome    string

	// StartTime is inclusive, EndTime exclusive.
	StartTime time.Time
	EndTime   time.Time

	// Limit caps the result. Zero means no limit.
	Limit int
}

// Matches reports whether e passes the filter.
func (f AuditFilter) Matches(e AuditEvent) bool {
	if len(f.EventTypes) > 0 {
		found := false
		for _, t := range f.EventTypes {
			if t == e.EventType {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.PlanID != "" && f.PlanID != e.PlanID {
		return false
	}
	if f.Outcome != "" && f.Outcome != e.Outcome {
		return false
	}
	if !f.StartTime.IsZero() && e.Timestamp.Before(f.StartTime) {
		return false
	}
	if !f.EndTime.IsZero() && !e.Timestamp.Before(f.EndTime) {
		return false
	}
	return true
}

// AuditLogger records audit events.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type AuditLogger interface {
	// Log records an event. It should return quickly; the service calls it
	// after the operation has finished and only logs a failure.
	Log(ctx context.Context, event AuditEvent) error

	// Query returns matching events, newest first.
	Query(ctx context.Context, filter AuditFilter) ([]AuditEvent, error)

	// Flush persists buffered events. Call before shutdown.
	Flush(ctx context.Context) error
}

// NopAuditLogger discards every event.
type NopAuditLogger struct{}

func (l *NopAuditLogger) Log(ctx context.Context, event AuditEvent) error { return nil }

func (l *NopAuditLogger) Query(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	return []AuditEvent{}, nil
}

func (l *NopAuditLogger) Flush(ctx context.Context) error { return nil }

// SlogAuditLogger writes each event as one structured log record at info
// level. Query returns nothing; the log sink is the trail.
type SlogAuditLogger struct {
	logger *slog.Logger
}

// NewSlogAuditLogger creates a logger writing to l, or slog.Default if nil.
func NewSlogAuditLogger(l *slog.Logger) *SlogAuditLogger {
	if l == nil {
		l = slog.Default()
	}
	return &SlogAuditLogger{logger: l.With("component", "audit")}
}

func (l *SlogAuditLogger) Log(ctx context.Context, event AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	attrs := []any{
		"event_type", event.EventType,
		"outcome", event.Outcome,
		"timestamp", event.Timestamp,
	}
	for _, kv := range [][2]string{
		{"workspace_root", event.WorkspaceRoot},
		{"plan_id", event.PlanID},
		{"apply_id", event.ApplyID},
		{"plan_type", event.PlanType},
		{"error", event.Error},
	} {
		if kv[1] != "" {
			attrs = append(attrs, kv[0], kv[1])
		}
	}
	if event.DryRun {
		attrs = append(attrs, "dry_run", true)
	}
	if len(event.Files) > 0 {
		attrs = append(attrs, "files", event.Files)
	}
	l.logger.InfoContext(ctx, "Audit", attrs...)
	return nil
}

func (l *SlogAuditLogger) Query(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	return []AuditEvent{}, nil
}

func (l *SlogAuditLogger) Flush(ctx context.Context) error { return nil }

// MemoryAuditLogger keeps events in memory, bounded to the most recent
// capacity events.
type MemoryAuditLogger struct {
	mu       sync.RWMutex
	events   []AuditEvent
	capacity int
	now      func() time.Time
}

// NewMemoryAuditLogger creates a logger retaining up to capacity events.
// A capacity of zero or less retains 1000.
func NewMemoryAuditLogger(capacity int) *MemoryAuditLogger {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemoryAuditLogger{capacity: capacity, now: time.Now}
}

func (l *MemoryAuditLogger) Log(ctx context.Context, event AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = l.now().UTC()
	}
	event.Files = append([]string(nil), event.Files...)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	if over := len(l.events) - l.capacity; over > 0 {
		l.events = append(l.events[:0:0], l.events[over:]...)
	}
	return nil
}

func (l *MemoryAuditLogger) Query(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]AuditEvent, 0)
	for _, e := range l.events {
		if filter.Matches(e) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (l *MemoryAuditLogger) Flush(ctx context.Context) error { return nil }

var (
	_ AuditLogger = (*NopAuditLogger)(nil)
	_ AuditLogger = (*SlogAuditLogger)(nil)
	_ AuditLogger = (*MemoryAuditLogger)(nil)
)
