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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AleutianAI/forge/cmd/forge/config"
)

func writeTaskFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "task.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadTask(t *testing.T) {
	path := writeTaskFile(t, `
description: sort a csv by its second column
goals:
  - handles empty input
  - preserves the header row
args: ["input.csv"]
`)
	task, err := loadTask(path)
	if err != nil {
		t.Fatalf("loadTask() error = %v", err)
	}
	if task.Description != "sort a csv by its second column" {
		t.Errorf("Description = %q", task.Description)
	}
	if len(task.Goals) != 2 || len(task.Args) != 1 {
		t.Errorf("goals=%d args=%d, want 2 and 1", len(task.Goals), len(task.Args))
	}
}

func TestLoadTaskRequiresDescription(t *testing.T) {
	path := writeTaskFile(t, "goals: [something]\n")
	if _, err := loadTask(path); err == nil {
		t.Error("expected an error for a task without a description")
	}
}

func TestCollectTasksLabels(t *testing.T) {
	path := writeTaskFile(t, "description: do the thing\n")
	tasks, labels, err := collectTasks([]string{path})
	if err != nil {
		t.Fatalf("collectTasks() error = %v", err)
	}
	if len(tasks) != 1 || labels[0] != "task" {
		t.Errorf("tasks=%d labels=%v", len(tasks), labels)
	}
}

func TestLoopConfigFromFile(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Loop.MaxIterations = 7
	cfg.Loop.RetryBackoffMs = 250
	cfg.Sandbox.TimeoutSeconds = 12

	out := loopConfig(cfg)
	if out.MaxIterations != 7 {
		t.Errorf("MaxIterations = %d, want 7", out.MaxIterations)
	}
	if out.RetryBackoff != 250*time.Millisecond {
		t.Errorf("RetryBackoff = %v", out.RetryBackoff)
	}
	if out.ExecTimeout != 12*time.Second {
		t.Errorf("ExecTimeout = %v", out.ExecTimeout)
	}
	if !out.Rollback.Enabled || out.Rollback.Window != 3 {
		t.Errorf("Rollback = %+v", out.Rollback)
	}
}

func TestLoopConfigFlagOverrides(t *testing.T) {
	t.Cleanup(func() {
		maxIterations, diffMode, rollback, rollbackWindow = 0, "", "", 0
	})
	maxIterations = 3
	diffMode = "off"
	rollback = "off"
	rollbackWindow = 5

	out := loopConfig(config.DefaultConfig())
	if out.MaxIterations != 3 || out.DiffMode || out.Rollback.Enabled {
		t.Errorf("overrides not applied: %+v", out)
	}
	if out.Rollback.Window != 5 {
		t.Errorf("Rollback.Window = %d, want 5", out.Rollback.Window)
	}
}
