// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/AleutianAI/AleutianRefactor/pkg/extensions"
	"github.com/AleutianAI/AleutianRefactor/services/refactor"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/apply"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/plan"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/store"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/watch"
)

// serviceOptions selects the optional components a command needs.
type serviceOptions struct {
	store   bool
	watcher bool
}

// openService builds the refactoring service from the loaded config. The
// store is opened only when requested and configured; the watcher only
// with a store.
func openService(ctx context.Context, so serviceOptions) (*refactor.Service, error) {
	var opts []refactor.Option
	opts = append(opts,
		refactor.WithLogger(logger.Slog()),
		refactor.WithAuditLogger(extensions.NewSlogAuditLogger(logger.Slog())),
	)

	if so.store && cfg.Storage.Enabled() {
		st, err := openStore()
		if err != nil {
			return nil, err
		}
		opts = append(opts, refactor.WithStore(st))

		if so.watcher {
			w, err := watch.New(watch.WithLogger(logger.Slog().With("component", "watch.Watcher")))
			if err != nil {
				_ = st.Close()
				return nil, fmt.Errorf("start watcher: %w", err)
			}
			opts = append(opts, refactor.WithWatcher(w))
		}
	}

	svc, err := refactor.NewService(cfg, opts...)
	if err != nil {
		return nil, err
	}
	if err := svc.Start(ctx); err != nil {
		_ = svc.Close()
		return nil, err
	}
	return svc, nil
}

func openStore() (*store.Store, error) {
	sc := store.DefaultConfig(cfg.Storage.Path)
	sc.InMemory = cfg.Storage.InMemory
	sc.SyncWrites = cfg.Storage.SyncWrites
	sc.GCInterval = cfg.Storage.GCInterval
	sc.JournalRetention = cfg.Apply.JournalRetention
	sc.Logger = logger.Slog().With("component", "store.Store")
	st, err := store.Open(sc)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", cfg.Storage.Path, err)
	}
	return st, nil
}

// readInput reads a file, or stdin for "-".
func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// failure prints err as an ErrorResponse, wrapped with the apply result
// when there is one, and returns an exitError so the process exits non-zero
// without printing again.
func failure(w io.Writer, err error, result *apply.Result) error {
	var body any = refactor.NewErrorResponse(err)
	if result != nil {
		body = refactor.ApplyFailureResponse{ErrorResponse: refactor.NewErrorResponse(err), Result: result}
	}
	if werr := writeJSON(w, body); werr != nil {
		return werr
	}
	return &exitError{code: exitCodeFor(plan.CodeOf(err)), err: err}
}

// exitCodeFor gives scripts a stable exit code per error class.
func exitCodeFor(code plan.Code) int {
	switch code {
	case plan.CodeInvalidRequest, plan.CodeAmbiguousTarget, plan.CodeUnsupportedCapability, plan.CodeNotFound:
		return 2
	case plan.CodeStalePlan:
		return 3
	case plan.CodeValidationFailed, plan.CodeValidationTimeout:
		return 4
	default:
		return 1
	}
}
