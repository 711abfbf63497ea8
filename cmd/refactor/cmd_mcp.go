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
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianRefactor/services/refactor"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the refactoring tools over MCP (stdio)",
	Long: `Serve rename, extract, inline, move, reorder, transform, delete,
apply_plan and list_languages as MCP tools on stdin/stdout.

Logs go to stderr. Configure workspace.root so tool calls may omit
workspace_root.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openService(cmd.Context(), serviceOptions{store: true})
		if err != nil {
			return err
		}
		defer svc.Close()

		slog.Info("Serving MCP on stdio", "workspace_root", cfg.Workspace.Root, "store", svc.HasStore())
		return refactor.ServeStdio(svc)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
