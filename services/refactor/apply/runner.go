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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"time"
)

// errValidationTimeout marks a validation command killed at its deadline.
var errValidationTimeout = errors.New("validation command timed out")

// waitDelay bounds how long Wait blocks on output pipes held open by
// children of a killed command.
const waitDelay = 2 * time.Second

// runValidation runs vc and captures its output.
//
// # Outputs
//
//	*ValidationResult - Always non-nil.
//	error - errValidationTimeout, or a failure to start the command. A
//	  non-zero exit is not an error; callers inspect ExitCode.
func runValidation(ctx context.Context, vc *ValidationCommand, dir string, timeout time.Duration, maxOutput int, logger *slog.Logger) (*ValidationResult, error) {
	if vc.Timeout > 0 {
		timeout = vc.Timeout
	}
	if timeout <= 0 {
		timeout = DefaultValidationTimeout
	}
	if maxOutput <= 0 {
		maxOutput = DefaultMaxOutput
	}
	if vc.WorkingDir != "" {
		dir = vc.WorkingDir
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, vc.Command, vc.Args...)
	cmd.Dir = dir
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	stdoutLimited := &limitedWriter{w: &stdout, limit: maxOutput}
	stderrLimited := &limitedWriter{w: &stderr, limit: maxOutput}
	cmd.Stdout = stdoutLimited
	cmd.Stderr = stderrLimited

	logger.Debug("Running validation command",
		slog.String("command", vc.Command),
		slog.Any("args", vc.Args),
		slog.String("dir", dir),
		slog.Duration("timeout", timeout),
	)

	start := time.Now()
	err := cmd.Run()

	result := &ValidationResult{
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		DurationMs: time.Since(start).Milliseconds(),
		Truncated:  stdoutLimited.truncated || stderrLimited.truncated,
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		result.TimedOut = true
		result.ExitCode = -1
		logger.Warn("Validation command timed out", slog.Duration("timeout", timeout))
		return result, errValidationTimeout
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		result.ExitCode = -1
		return result, fmt.Errorf("run validation command: %w", err)
	}
	return result, nil
}

// limitedWriter wraps a writer with a size limit.
type limitedWriter struct {
	w         io.Writer
	limit     int
	written   int
	truncated bool
}

func (lw *limitedWriter) Write(p []byte) (n int, err error) {
	if lw.written >= lw.limit {
		lw.truncated = true
		return len(p), nil
	}

	original := len(p)
	remaining := lw.limit - lw.written
	if len(p) > remaining {
		p = p[:remaining]
		lw.truncated = true
	}

	n, err = lw.w.Write(p)
	lw.written += n
	return original, err
}
