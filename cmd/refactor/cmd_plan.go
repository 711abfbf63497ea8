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
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianRefactor/services/refactor"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/plan"
)

var (
	planArgsFile string
	planArgs     string
	planSave     bool
	planList     bool
)

var planCmd = &cobra.Command{
	Use:   "plan <" + strings.Join(refactor.Tools, "|") + ">",
	Short: "Generate a refactoring plan and print it as JSON",
	Long: `Generate a plan and print it. Nothing in the workspace is written.

The arguments are the tool's JSON request, given inline with --args or read
from a file (or stdin with "-") with --file.

Examples:
  refactor plan rename --args '{"target": {"kind": "file", "path": "util/strings.go"}, "new_name": "text.go"}'
  refactor plan move -f move.json --save
  refactor plan --list`,
	Args: func(cmd *cobra.Command, args []string) error {
		if planList {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(1)(cmd, args)
	},
	ValidArgs: refactor.Tools,
	RunE:      runPlan,
}

func init() {
	planCmd.Flags().StringVarP(&planArgsFile, "file", "f", "",
		`Read the JSON arguments from a file ("-" for stdin)`)
	planCmd.Flags().StringVar(&planArgs, "args", "",
		"JSON arguments inline")
	planCmd.Flags().BoolVar(&planSave, "save", false,
		"Store the plan so it can be applied later with apply --id")
	planCmd.Flags().BoolVar(&planList, "list", false,
		"List stored plans instead of generating one")
	planCmd.MarkFlagsMutuallyExclusive("file", "args")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	svc, err := openService(ctx, serviceOptions{store: planSave || planList})
	if err != nil {
		return err
	}
	defer svc.Close()

	if planList {
		plans, err := svc.ListPlans(ctx)
		if err != nil {
			return failure(out, err, nil)
		}
		return writeJSON(out, refactor.ListPlansResponse{Plans: plans, Count: len(plans)})
	}

	raw := json.RawMessage(planArgs)
	if planArgsFile != "" {
		data, err := readInput(planArgsFile, cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read arguments: %w", err)
		}
		raw = data
	}
	call := refactor.RefactorCall{Tool: args[0], Arguments: raw}

	var p *plan.Plan
	if planSave {
		p, err = svc.CreatePlan(ctx, call)
	} else {
		p, err = svc.DispatchRefactorCall(ctx, call)
	}
	if err != nil {
		return failure(out, err, nil)
	}
	return writeJSON(out, p)
}
