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
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/forge/cmd/forge/config"
	"github.com/AleutianAI/forge/services/forge/agent"
	"github.com/AleutianAI/forge/services/forge/control"
	"github.com/AleutianAI/forge/services/forge/history"
	"github.com/AleutianAI/forge/services/forge/llm"
	"github.com/AleutianAI/forge/services/forge/sandbox"
)

// taskSpec is the on-disk task file format.
type taskSpec struct {
	Description string   `yaml:"description"`
	Goals       []string `yaml:"goals,omitempty"`
	Args        []string `yaml:"args,omitempty"`
}

// runTasks drives one or more tasks to a terminal outcome and exits with
// 0 (all accepted), 2 (a task exhausted its budget) or 1 (fatal error).
func runTasks(cmd *cobra.Command, args []string) {
	cfg := config.Global

	tasks, labels, err := collectTasks(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitError)
	}
	if outPath != "" && len(tasks) > 1 {
		fmt.Fprintln(os.Stderr, "Error: --out only applies to a single task")
		os.Exit(ExitError)
	}

	deps, acct, err := buildDependencies(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitError)
	}

	controller, err := agent.NewController(loopConfig(cfg), deps,
		agent.WithLogger(slog.Default()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitError)
	}

	var archive *history.Archive
	if cfg.Archive.Enabled {
		archive, err = history.OpenArchive(history.DefaultArchiveConfig(expandHome(cfg.Archive.Path)))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening archive: %v\n", err)
			os.Exit(ExitError)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results := make([]*agent.RunResult, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Server.MaxConcurrent)
	for i, task := range tasks {
		g.Go(func() error {
			result, err := controller.Run(gctx, task)
			if err != nil {
				return fmt.Errorf("%s: %w", labels[i], err)
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		closeArchive(archive)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitError)
	}

	exit := ExitAccepted
	for i, result := range results {
		printResult(labels[i], result, acct)
		if result.Outcome != agent.OutcomeAccepted {
			exit = ExitExhausted
		}
		if archive != nil {
			archived := history.ArchivedRun{
				ID:          result.RunID,
				Task:        tasks[i].Description,
				Outcome:     string(result.Outcome),
				BestScore:   result.BestScore,
				Iterations:  result.History,
				CompletedAt: time.Now().UTC(),
			}
			if err := archive.SaveRun(archived); err != nil {
				slog.Warn("failed to archive run", "run_id", result.RunID, "error", err)
			}
		}
	}

	// Close explicitly; os.Exit skips deferred calls.
	closeArchive(archive)

	if outPath != "" && len(results) == 1 {
		if err := os.WriteFile(outPath, []byte(results[0].FinalArtifact), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", outPath, err)
			os.Exit(ExitError)
		}
	}
	os.Exit(exit)
}

func closeArchive(archive *history.Archive) {
	if archive == nil {
		return
	}
	if err := archive.Close(); err != nil {
		slog.Warn("archive close error", "error", err)
	}
}

// collectTasks loads tasks from the given files, or from stdin when no
// files are named.
func collectTasks(paths []string) ([]agent.Task, []string, error) {
	if len(paths) == 0 {
		if isStdinTerminal() {
			return nil, nil, fmt.Errorf("no task files given and stdin is a terminal; " +
				"pass a task file or pipe a description")
		}
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, nil, fmt.Errorf("reading stdin: %w", err)
		}
		description := strings.TrimSpace(string(data))
		if description == "" {
			return nil, nil, fmt.Errorf("stdin was empty")
		}
		return []agent.Task{{Description: description}}, []string{"task"}, nil
	}

	tasks := make([]agent.Task, 0, len(paths))
	labels := make([]string, 0, len(paths))
	for _, path := range paths {
		task, err := loadTask(path)
		if err != nil {
			return nil, nil, err
		}
		tasks = append(tasks, task)
		labels = append(labels, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	}
	return tasks, labels, nil
}

// loadTask parses one YAML task file.
func loadTask(path string) (agent.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return agent.Task{}, fmt.Errorf("reading task file: %w", err)
	}
	var spec taskSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return agent.Task{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	if strings.TrimSpace(spec.Description) == "" {
		return agent.Task{}, fmt.Errorf("%s: description is required", path)
	}
	return agent.Task{
		Description: spec.Description,
		Goals:       spec.Goals,
		Args:        spec.Args,
	}, nil
}

// loopConfig maps the file configuration onto the loop, applying any CLI
// flag overrides.
func loopConfig(cfg config.ForgeConfig) agent.Config {
	out := agent.Config{
		MaxIterations:  cfg.Loop.MaxIterations,
		DiffMode:       cfg.Loop.DiffMode,
		QualityRetries: cfg.Loop.QualityRetries,
		MaxRetries:     cfg.Loop.MaxRetries,
		RetryBackoff:   time.Duration(cfg.Loop.RetryBackoffMs) * time.Millisecond,
		ExecTimeout:    time.Duration(cfg.Sandbox.TimeoutSeconds) * time.Second,
		Rollback: control.Config{
			Enabled: cfg.Loop.Rollback,
			Window:  cfg.Loop.RollbackWindow,
		},
	}
	if maxIterations > 0 {
		out.MaxIterations = maxIterations
	}
	if diffMode != "" {
		out.DiffMode = diffMode == "on"
	}
	if rollback != "" {
		out.Rollback.Enabled = rollback == "on"
	}
	if rollbackWindow > 0 {
		out.Rollback.Window = rollbackWindow
	}
	return out
}

// buildDependencies wires the configured LLM backend and sandbox into a
// collaborator set.
func buildDependencies(cfg config.ForgeConfig) (agent.Dependencies, *llm.Accountant, error) {
	var client llm.Client
	switch cfg.Backend.Type {
	case "ollama":
		c, err := llm.NewOllamaClient(cfg.Backend.BaseURL, cfg.Backend.Model)
		if err != nil {
			return agent.Dependencies{}, nil, fmt.Errorf("ollama backend: %w", err)
		}
		client = c
	case "openai":
		key, err := config.ResolveOpenAIKey()
		if err != nil {
			return agent.Dependencies{}, nil, err
		}
		c, err := llm.NewOpenAIClient(key, cfg.Backend.Model, cfg.Backend.RequestsPerSecond)
		if err != nil {
			return agent.Dependencies{}, nil, fmt.Errorf("openai backend: %w", err)
		}
		client = c
	default:
		return agent.Dependencies{}, nil, fmt.Errorf("unknown backend type %q", cfg.Backend.Type)
	}

	acct := llm.NewAccountant(client.Name())
	opts := []llm.Option{
		llm.WithTemperature(cfg.Backend.Temperature),
		llm.WithMaxTokens(cfg.Backend.MaxTokens),
		llm.WithAccountant(acct),
	}

	runner := sandbox.NewRunner(sandbox.Config{
		Command:  cfg.Sandbox.Command,
		Suffix:   cfg.Sandbox.Suffix,
		Language: cfg.Sandbox.Language,
	}, sandbox.WithLogger(slog.Default()))

	return agent.Dependencies{
		Generator: llm.NewGenerator(client, opts...),
		Executor:  runner,
		Reviewer:  llm.NewReviewer(client, opts...),
		Evaluator: llm.NewEvaluator(client, opts...),
	}, acct, nil
}

// expandHome expands a leading ~ in the given path.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
