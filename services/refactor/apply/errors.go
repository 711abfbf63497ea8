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

import "errors"

var (
	// ErrJournalNotFound is returned by a JournalStore for unknown ids.
	ErrJournalNotFound = errors.New("apply journal not found")

	// ErrNoJournalStore is returned by Revert on an executor without a
	// journal store.
	ErrNoJournalStore = errors.New("no journal store configured")

	// ErrMoveCycle is returned when a plan's moves cannot be ordered.
	ErrMoveCycle = errors.New("moves form a cycle")
)
