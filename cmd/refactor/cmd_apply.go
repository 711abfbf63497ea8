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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianRefactor/services/refactor"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/apply"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/plan"
)

var (
	applyPlanID     string
	applyDryRun     bool
	applyForce      bool
	applyNoRollback bool
	applyDiffOnly   bool
	applyTimeout    time.Duration
	applyWorkingDir string
	applyExpectType string
	revertForce     bool
)

var applyCmd = &cobra.Command{
	Use:   "apply [plan.json|-] [-- validation command...]",
	Short: "Apply a plan to the workspace",
	Long: `Apply a plan read from a file, stdin ("-"), or the store (--id).

Every file is checked against the plan's checksums first; a changed file
rejects the whole plan with nothing written. Anything after "--" is run in
the workspace root after writing; a non-zero exit or a timeout restores
every file.

Examples:
  refactor apply plan.json --dry-run --diff
  refactor apply plan.json -- go build ./...
  refactor apply --id 6f1c... --timeout 2m -- npm test`,
	RunE: runApply,
}

var revertCmd = &cobra.Command{
	Use:   "revert <apply-id>",
	Short: "Undo a committed apply from its journal",
	Long: `Restore every file a committed apply touched. Refused when any of
those files changed since, unless --force. Requires storage.`,
	Args: cobra.ExactArgs(1),
	RunE: runRevert,
}

func init() {
	applyCmd.Flags().StringVar(&applyPlanID, "id", "", "Apply a stored plan by id")
	applyCmd.Flags().BoolVar(&applyDryRun, "dry-run", false, "Stage the plan and report the changes without writing")
	applyCmd.Flags().BoolVar(&applyDiffOnly, "diff", false, "With --dry-run, print only the unified diff")
	applyCmd.Flags().BoolVar(&applyForce, "force", false, "Skip checksum and destination checks")
	applyCmd.Flags().BoolVar(&applyNoRollback, "no-rollback", false, "Keep partial writes on failure (revert later by apply id)")
	applyCmd.Flags().DurationVar(&applyTimeout, "timeout", 0, "Validation command timeout (default apply.validation_timeout)")
	applyCmd.Flags().StringVar(&applyWorkingDir, "working-dir", "", "Validation command directory (default the workspace root)")
	applyCmd.Flags().StringVar(&applyExpectType, "expect", "", "Reject plans whose plan_type differs, e.g. RenamePlan")
	rootCmd.AddCommand(applyCmd)

	revertCmd.Flags().BoolVar(&revertForce, "force", false, "Restore even if files changed since the apply")
	rootCmd.AddCommand(revertCmd)
}

// splitValidation separates the plan argument from the validation command
// given after "--".
func splitValidation(cmd *cobra.Command, args []string) (planArgs, validation []string) {
	at := cmd.ArgsLenAtDash()
	if at < 0 {
		return args, nil
	}
	return args[:at], args[at:]
}

func applyOptions(validation []string) refactor.ApplyOptions {
	opts := refactor.ApplyOptions{
		DryRun:           applyDryRun,
		Force:            applyForce,
		ExpectedPlanType: plan.Type(applyExpectType),
	}
	if applyNoRollback {
		off := false
		opts.RollbackOnError = &off
	}
	if len(validation) > 0 {
		opts.Validation = &refactor.ValidationRequest{
			Command:    validation[0],
			Args:       validation[1:],
			WorkingDir: applyWorkingDir,
			TimeoutMs:  applyTimeout.Milliseconds(),
		}
	}
	return opts
}

func runApply(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	planArgs, validation := splitValidation(cmd, args)
	switch {
	case applyPlanID != "" && len(planArgs) > 0:
		return errors.New("give a plan file or --id, not both")
	case applyPlanID == "" && len(planArgs) != 1:
		return errors.New("a plan file (or - for stdin) or --id is required")
	}
	opts := applyOptions(validation)

	svc, err := openService(ctx, serviceOptions{store: true})
	if err != nil {
		return err
	}
	defer svc.Close()

	var res *apply.Result
	if applyPlanID != "" {
		res, err = svc.ApplyStoredPlan(ctx, applyPlanID, opts)
	} else {
		data, rerr := readInput(planArgs[0], cmd.InOrStdin())
		if rerr != nil {
			return fmt.Errorf("read plan: %w", rerr)
		}
		var p plan.Plan
		if jerr := json.Unmarshal(data, &p); jerr != nil {
			return failure(out, plan.Wrap(plan.CodeInvalidRequest, jerr, "plan is not valid JSON"), nil)
		}
		res, err = svc.Apply(ctx, &p, opts)
	}

	if err != nil {
		return failure(out, err, res)
	}
	if applyDryRun && applyDiffOnly {
		_, werr := fmt.Fprint(out, res.Diff)
		return werr
	}
	return writeJSON(out, res)
}

func runRevert(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	svc, err := openService(ctx, serviceOptions{store: true})
	if err != nil {
		return err
	}
	defer svc.Close()

	res, err := svc.Revert(ctx, args[0], revertForce)
	if err != nil {
		return failure(out, err, nil)
	}
	return writeJSON(out, res)
}
