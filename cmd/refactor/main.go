// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command refactor plans and applies multi-language refactorings.
//
// Usage:
//
//	refactor serve                         # HTTP API on server.address
//	refactor mcp                           # MCP tools over stdio
//	refactor plan rename -f args.json      # print a plan
//	refactor apply plan.json --dry-run     # preview a plan as a diff
//	refactor apply plan.json -- go build ./...
//	refactor revert <apply-id>
//	refactor languages
//	refactor config init ~/.aleutian/refactor.yaml
//
// Example requests against a running server:
//
//	curl -X POST http://127.0.0.1:12220/v1/refactor/plan/rename \
//	  -H "Content-Type: application/json" \
//	  -d '{"workspace_root": "/src/app", "target": {"kind": "symbol", "path": "util/util.go", "name": "Slug"}, "new_name": "Name"}'
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianRefactor/pkg/logging"
	"github.com/AleutianAI/AleutianRefactor/services/refactor/config"
)

var (
	configPath string
	logLevel   string
	jsonLogs   bool

	cfg    config.Config
	logger *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "refactor",
	Short: "Plan and apply multi-language refactorings",
	Long: `refactor computes refactoring plans (rename, extract, inline, move,
reorder, transform, delete) for Go, TypeScript/JavaScript, Python and Rust
workspaces, and applies them atomically with rollback.

Plans are pure data: generating one never writes to the workspace. Applying
verifies every file still matches the plan's checksums first.`,
	SilenceUsage:       true,
	SilenceErrors:      true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv(config.EnvPrefix+"CONFIG"),
		"Path to a YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level: debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false,
		"Force JSON log output (automatic when stderr is not a terminal)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

// setup loads configuration and installs the process logger.
func setup(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg = loaded
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	logger = logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: "refactor",
		JSON:    cfg.Logging.JSON || jsonLogs || !stderrIsTerminal(),
		Output:  cmd.ErrOrStderr(),
	})
	slog.SetDefault(logger.Slog())
	return nil
}

func teardown(cmd *cobra.Command, args []string) error {
	if logger != nil {
		return logger.Close()
	}
	return nil
}

func stderrIsTerminal() bool {
	fd := os.Stderr.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitCode(err error) int {
	if ee, ok := err.(*exitError); ok {
		return ee.code
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	return 1
}
