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
	"errors"
	"io/fs"
	"log/slog"
	"sort"

	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianRefactor/services/refactor/checksum"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/plan"
)

// Revert undoes a committed apply from its journal.
//
// # Description
//
// Every journaled path must still hold what the apply left there;
// otherwise Revert fails with STALE_PLAN listing the drifted paths. force
// skips that check. The journal is deleted after a successful revert.
//
// # Outputs
//
//	*Result - State rolled_back on success; AppliedFiles lists restored paths.
//	error - NOT_FOUND, STALE_PLAN, ROLLBACK_FAILED, or INVALID_REQUEST when
//	  no journal store is configured.
func (e *Executor) Revert(ctx context.Context, applyID string, force bool) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx, span := startSpan(ctx, "apply.Executor.Revert", attribute.String("apply_id", applyID))
	defer span.End()

	res := newResult(nil, Options{})
	res.ApplyID = applyID
	reject := func(err *plan.Error) (*Result, error) {
		res.State = StateRejected
		res.Error = err
		return res, err
	}

	if e.journals == nil {
		return reject(plan.Wrap(plan.CodeInvalidRequest, ErrNoJournalStore, "revert is unavailable"))
	}
	j, err := e.journals.LoadJournal(ctx, applyID)
	if errors.Is(err, ErrJournalNotFound) {
		return reject(plan.Wrap(plan.CodeNotFound, err, "no journal for apply "+applyID))
	}
	if err != nil {
		return reject(plan.Wrap(plan.CodeInternal, err, "load journal"))
	}
	res.PlanID = j.PlanID

	if !force {
		if drifted := e.drifted(j); len(drifted) > 0 {
			return reject(plan.Errorf(plan.CodeStalePlan, "%d file(s) changed since apply %s", len(drifted), applyID).
				WithFiles(drifted...).
				WithSuggestion("revert with force to overwrite the changes"))
		}
	}

	failed := restore(e.fs, j.Entries)
	recordRollback(ctx, len(failed) == 0)
	if len(failed) > 0 {
		sort.Strings(failed)
		return reject(plan.Errorf(plan.CodeRollbackFailed, "revert left %d file(s) inconsistent", len(failed)).
			WithFiles(failed...))
	}

	for _, entry := range j.Entries {
		if !entry.Dir {
			res.AppliedFiles = append(res.AppliedFiles, entry.Path)
		}
	}
	sort.Strings(res.AppliedFiles)
	if err := e.journals.DeleteJournal(ctx, applyID); err != nil {
		e.logger.Warn("Failed to delete reverted journal", slog.String("apply_id", applyID), slog.String("error", err.Error()))
	}
	res.State = StateRolledBack
	res.Success = true
	e.logger.Info("Apply reverted", slog.String("apply_id", applyID), slog.Int("files", len(res.AppliedFiles)))
	return res, nil
}

// drifted returns journaled paths whose content no longer matches the
// post-apply digest.
func (e *Executor) drifted(j *Journal) []string {
	var out []string
	for path, want := range j.After {
		content, err := afero.ReadFile(e.fs, path)
		if want == "" {
			if !errors.Is(err, fs.ErrNotExist) {
				out = append(out, path)
			}
			continue
		}
		if err != nil {
			out = append(out, path)
			continue
		}
		if ok, err := checksum.Matches(content, want); err != nil || !ok {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out
}
