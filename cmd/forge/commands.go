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
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// --- Global Command Variables ---
var (
	maxIterations  int
	diffMode       string // "on"/"off"; empty means use config
	rollback       string // "on"/"off"; empty means use config
	rollbackWindow int
	outPath        string
	jsonOutput     bool
	servePort      int

	rootCmd = &cobra.Command{
		Use:   "forge",
		Short: "A cli for iterative LLM code generation with execution feedback",
		Long: `Forge drives a language model through generate, execute, review and
evaluate cycles until the produced program meets its goals or the
iteration budget runs out.`,
	}

	runCmd = &cobra.Command{
		Use:   "run [task-file...]",
		Short: "Run one or more coding tasks to a terminal outcome",
		Long: `Run reads task files (YAML with description, goals and optional args)
and drives each to ACCEPTED or EXHAUSTED. With no arguments the task
description is read from stdin.

Exit codes: 0 when every task is accepted, 2 when any task exhausts its
budget, 1 on a fatal error.`,
		Run: runTasks, // Defined in cmd_run.go
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the forge HTTP server",
		Long: `Serve exposes task submission, run inspection and a live event stream
over HTTP, with Prometheus metrics at /metrics.`,
		Run: runServe, // Defined in cmd_serve.go
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the forge version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("forge %s\n", Version)
		},
	}
)

func init() {
	runCmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "Override the iteration budget")
	runCmd.Flags().StringVar(&diffMode, "diff-mode", "", "Request diffs after the first iteration (on/off)")
	runCmd.Flags().StringVar(&rollback, "rollback", "", "Roll back to the best artifact on stagnation (on/off)")
	runCmd.Flags().IntVar(&rollbackWindow, "rollback-window", 0, "Override the stagnation window")
	runCmd.Flags().StringVarP(&outPath, "out", "o", "", "Write the final artifact to this file (single task only)")
	runCmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the run result as JSON")

	serveCmd.Flags().IntVar(&servePort, "port", 0, "Override the configured listen port")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}
