// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command forge runs the iterative coding agent, either as a one-shot CLI
// or as an HTTP service.
//
// # Usage
//
//	# Run a task file until accepted or exhausted
//	forge run task.yaml
//
//	# Pipe a description directly
//	echo "sort a csv by its second column" | forge run
//
//	# Start the HTTP server
//	forge serve
//
// Configuration lives in ~/.forge/forge.yaml (created on first run) and
// can be pointed elsewhere with FORGE_CONFIG.
package main

import (
	"log"
	"os"

	"github.com/AleutianAI/forge/cmd/forge/config"
	"github.com/AleutianAI/forge/pkg/logging"
)

func main() {
	if err := config.Load(); err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(config.Global.Logging.Level),
		LogDir:  config.Global.Logging.Dir,
		Service: "forge",
		JSON:    config.Global.Logging.JSON,
	})
	defer logger.Close()
	logger.SetAsDefault()

	if err := rootCmd.Execute(); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(ExitError)
	}
}
