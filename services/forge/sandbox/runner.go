// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/AleutianAI/forge/services/forge/history"
)

// Config controls how candidate programs are run.
type Config struct {
	// Command is the interpreter invocation; the artifact path is appended.
	Command []string `yaml:"command"`

	// Suffix is the temp file extension, e.g. ".py".
	Suffix string `yaml:"suffix"`

	// Language enables a tree-sitter syntax screen before spawning the
	// interpreter. Empty disables the screen.
	Language string `yaml:"language"`

	// WorkDir is where temp files are created. Empty uses the system
	// temp directory.
	WorkDir string `yaml:"work_dir"`
}

// DefaultConfig returns the Python runner configuration.
func DefaultConfig() Config {
	return Config{
		Command:  []string{"python3"},
		Suffix:   ".py",
		Language: LangPython,
	}
}

// Runner executes candidate programs in a subprocess.
//
// Description:
//
//	The artifact is written to a temp file, handed to the configured
//	interpreter, and removed afterwards. Run failures (non-zero exit,
//	timeout, syntax rejection) come back inside the Execution record;
//	the error return is reserved for infrastructure problems such as a
//	missing interpreter.
//
// Thread Safety:
//
//	Safe for concurrent use; every call works on its own temp file.
type Runner struct {
	cfg    Config
	logger *slog.Logger
}

// Option customizes a Runner.
type Option func(*Runner)

// WithLogger sets the runner's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// NewRunner creates a Runner.
func NewRunner(cfg Config, opts ...Option) *Runner {
	if len(cfg.Command) == 0 {
		cfg.Command = []string{"python3"}
	}
	if cfg.Suffix == "" {
		cfg.Suffix = ".py"
	}
	r := &Runner{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Execute implements agent.Executor.
func (r *Runner) Execute(ctx context.Context, artifact string, args []string, timeout time.Duration) (history.Execution, error) {
	if r.cfg.Language != "" {
		if rep := CheckSyntax(ctx, artifact, r.cfg.Language); rep != nil && !rep.OK {
			r.logger.Info("syntax screen rejected artifact", "line", rep.Line)
			return history.Execution{
				Stderr:       fmt.Sprintf("syntax error at line %d (pre-execution screen)", rep.Line),
				ExitCode:     -1,
				FailureClass: history.FailureSyntax,
			}, nil
		}
	}

	tmp, err := os.CreateTemp(r.cfg.WorkDir, "forge-*"+r.cfg.Suffix)
	if err != nil {
		return history.Execution{}, fmt.Errorf("failed to create temp file: %w", err)
	}
	path := tmp.Name()
	defer os.Remove(path)

	if _, err := tmp.WriteString(artifact); err != nil {
		tmp.Close()
		return history.Execution{}, fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return history.Execution{}, fmt.Errorf("failed to close temp file: %w", err)
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	argv := append(append([]string{}, r.cfg.Command[1:]...), path)
	argv = append(argv, args...)
	cmd := exec.CommandContext(runCtx, r.cfg.Command[0], argv...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	result := history.Execution{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: elapsed,
	}

	switch {
	case ctx.Err() != nil:
		return history.Execution{}, ctx.Err()

	case runCtx.Err() == context.DeadlineExceeded:
		result.ExitCode = -1
		result.Stderr = fmt.Sprintf("Execution timeout after %s", timeout)
		result.FailureClass = history.FailureTimeout
		r.logger.Info("execution timed out", "timeout", timeout)
		return result, nil

	case runErr == nil:
		result.ExitCode = 0
		result.FailureClass = history.FailureNone
		return result, nil

	default:
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			// Interpreter missing or unrunnable: not the artifact's fault.
			return history.Execution{}, fmt.Errorf("failed to run %s: %w", r.cfg.Command[0], runErr)
		}
		result.ExitCode = exitErr.ExitCode()
		result.FailureClass = Classify(result.Stderr)
		return result, nil
	}
}

// syntaxSignatures are stderr markers of interpreter-level rejection, as
// opposed to a crash while running.
var syntaxSignatures = []string{
	"SyntaxError",
	"IndentationError",
	"TabError",
}

// Classify maps a failed run's stderr to a failure class.
func Classify(stderr string) history.FailureClass {
	for _, sig := range syntaxSignatures {
		if strings.Contains(stderr, sig) {
			return history.FailureSyntax
		}
	}
	return history.FailureRuntime
}
