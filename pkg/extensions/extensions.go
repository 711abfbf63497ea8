// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package extensions defines the hooks a deployment can plug into the
// refactoring service.
//
// The open source build ships no-op or log-backed implementations. A
// deployment that needs a durable audit trail provides its own AuditLogger.
package extensions

// Options collects the extension points. The zero value is not usable;
// start from DefaultOptions.
type Options struct {
	// AuditLogger records workspace-changing operations.
	AuditLogger AuditLogger
}

// DefaultOptions returns options with every hook set to its no-op.
func DefaultOptions() Options {
	return Options{
		AuditLogger: &NopAuditLogger{},
	}
}

// WithAudit returns a copy of opts using logger. A nil logger keeps the
// current one.
func (opts Options) WithAudit(logger AuditLogger) Options {
	if logger != nil {
		opts.AuditLogger = logger
	}
	return opts
}
