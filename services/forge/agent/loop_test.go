// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/AleutianAI/forge/services/forge/control"
	"github.com/AleutianAI/forge/services/forge/history"
	"github.com/AleutianAI/forge/services/forge/quality"
)

func testDeps() Dependencies {
	return Dependencies{
		Generator: &MockGenerator{},
		Executor:  &MockExecutor{},
		Reviewer:  &MockReviewer{},
		Evaluator: &MockEvaluator{},
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryBackoff = time.Millisecond
	cfg.ExecTimeout = time.Second
	return cfg
}

func TestRunAcceptedFirstIteration(t *testing.T) {
	cfg := testConfig()
	cfg.MaxIterations = 1
	cfg.DiffMode = true // irrelevant on the first iteration

	deps := testDeps()
	c, err := NewController(cfg, deps)
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}

	result, err := c.Run(context.Background(), Task{
		Description: "print ok",
		Goals:       []string{"prints ok"},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.Outcome != OutcomeAccepted {
		t.Fatalf("Outcome = %s, want ACCEPTED", result.Outcome)
	}
	if result.Iterations != 1 {
		t.Errorf("Iterations = %d, want 1", result.Iterations)
	}
	if result.FinalArtifact != "print('ok')" {
		t.Errorf("FinalArtifact = %q (artifact extraction failed?)", result.FinalArtifact)
	}
	if result.BestScore != 100 {
		t.Errorf("BestScore = %d, want 100", result.BestScore)
	}
	if len(result.History) != 1 || result.History[0].Seq != 1 {
		t.Errorf("History = %+v", result.History)
	}

	gen := deps.Generator.(*MockGenerator)
	if gen.CallCount() != 1 {
		t.Errorf("generator called %d times, want 1", gen.CallCount())
	}
	if gen.Calls[0].WantDiff {
		t.Error("first generation must request a full artifact, not a diff")
	}
}

func TestRunExhaustsBudgetAndKeepsBest(t *testing.T) {
	cfg := testConfig()
	cfg.MaxIterations = 3
	cfg.DiffMode = false

	n := 0
	deps := testDeps()
	deps.Generator = &MockGenerator{
		GenerateFunc: func(ctx context.Context, req GenerateRequest) (string, error) {
			n++
			return fmt.Sprintf("```python\nprint('v%d')\n```", n), nil
		},
	}
	deps.Evaluator = ScriptedEvaluator(
		history.Evaluation{Passed: false, Score: 40},
		history.Evaluation{Passed: false, Score: 70},
		history.Evaluation{Passed: false, Score: 55},
	)

	c, _ := NewController(cfg, deps)
	result, err := c.Run(context.Background(), Task{Description: "x"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.Outcome != OutcomeExhausted {
		t.Fatalf("Outcome = %s, want EXHAUSTED", result.Outcome)
	}
	if result.Iterations != 3 {
		t.Errorf("Iterations = %d, want 3", result.Iterations)
	}
	// Best-scoring artifact across history, not the last one.
	if result.FinalArtifact != "print('v2')" || result.BestScore != 70 {
		t.Errorf("best = (%q, %d), want (print('v2'), 70)", result.FinalArtifact, result.BestScore)
	}
}

func TestRunDiffModeAppliesPatch(t *testing.T) {
	cfg := testConfig()
	cfg.MaxIterations = 2
	cfg.DiffMode = true

	deps := testDeps()
	deps.Generator = &MockGenerator{
		GenerateFunc: func(ctx context.Context, req GenerateRequest) (string, error) {
			if !req.WantDiff {
				return "```python\ndef main():\n    print('v1')\nmain()\n```", nil
			}
			return "Here is the fix:\n```diff\n@@ -1,2 +1,2 @@\n def main():\n-    print('v1')\n+    print('v2')\n```", nil
		},
	}
	deps.Evaluator = ScriptedEvaluator(
		history.Evaluation{Passed: false, Score: 50},
		history.Evaluation{Passed: true, Score: 95},
	)

	c, _ := NewController(cfg, deps)
	result, err := c.Run(context.Background(), Task{Description: "x"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.Outcome != OutcomeAccepted {
		t.Fatalf("Outcome = %s, want ACCEPTED", result.Outcome)
	}
	if !strings.Contains(result.FinalArtifact, "print('v2')") {
		t.Errorf("patched artifact = %q", result.FinalArtifact)
	}
	if strings.Contains(result.FinalArtifact, "v1") {
		t.Errorf("old line survived the patch: %q", result.FinalArtifact)
	}

	gen := deps.Generator.(*MockGenerator)
	if len(gen.Calls) != 2 || gen.Calls[0].WantDiff || !gen.Calls[1].WantDiff {
		t.Errorf("WantDiff sequence wrong: %+v", gen.Calls)
	}
	if gen.Calls[1].PriorArtifact == "" {
		t.Error("second generation should see the active artifact")
	}

	// The second iteration's record carries the patch report.
	second := result.History[1]
	if second.Patch == nil || second.Patch.Applied != 1 {
		t.Errorf("iteration 2 patch report = %+v", second.Patch)
	}
}

func TestRunQualityRejectionRetriesThenExhausts(t *testing.T) {
	cfg := testConfig()
	cfg.MaxIterations = 5
	cfg.DiffMode = false
	cfg.QualityRetries = 2

	deps := testDeps()
	deps.Gate = &quality.MockGate{
		CheckFunc: func(string) quality.Result {
			return quality.Result{Accepted: false, Issues: []quality.Issue{{Code: quality.CodeLineRun}}}
		},
	}

	c, _ := NewController(cfg, deps)
	result, err := c.Run(context.Background(), Task{Description: "x"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.Outcome != OutcomeExhausted {
		t.Fatalf("Outcome = %s, want EXHAUSTED", result.Outcome)
	}
	// Rejected generations are discarded, never appended to history.
	if result.Iterations != 0 || len(result.History) != 0 {
		t.Errorf("history = %d iterations, want 0", result.Iterations)
	}
	if result.Reason == "" {
		t.Error("exhaustion reason missing")
	}

	// Initial attempt plus QualityRetries immediate retries.
	gen := deps.Generator.(*MockGenerator)
	if gen.CallCount() != 3 {
		t.Errorf("generator called %d times, want 3", gen.CallCount())
	}

	exec := deps.Executor.(*MockExecutor)
	if len(exec.Artifacts) != 0 {
		t.Error("rejected generation must never reach execution")
	}
}

func TestRunPatchErrorTreatedAsQualityFailure(t *testing.T) {
	cfg := testConfig()
	cfg.MaxIterations = 5
	cfg.DiffMode = true
	cfg.QualityRetries = 1

	deps := testDeps()
	deps.Generator = &MockGenerator{
		GenerateFunc: func(ctx context.Context, req GenerateRequest) (string, error) {
			if !req.WantDiff {
				return "```python\nprint('v1')\n```", nil
			}
			// A diff whose hunk matches nothing: zero applied is a patch
			// error, not a silent success.
			return "```diff\n@@ -1,1 +1,1 @@\n-no such line\n+replacement\n```", nil
		},
	}
	deps.Evaluator = ScriptedEvaluator(history.Evaluation{Passed: false, Score: 10})

	c, _ := NewController(cfg, deps)
	result, err := c.Run(context.Background(), Task{Description: "x"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.Outcome != OutcomeExhausted {
		t.Fatalf("Outcome = %s, want EXHAUSTED", result.Outcome)
	}
	// Iteration 1 completed; the bad diffs never became iterations.
	if result.Iterations != 1 {
		t.Errorf("Iterations = %d, want 1", result.Iterations)
	}
	if result.FinalArtifact != "print('v1')" {
		t.Errorf("FinalArtifact = %q, want the surviving baseline", result.FinalArtifact)
	}
}

func TestRunRollbackRestoresBestArtifact(t *testing.T) {
	cfg := testConfig()
	cfg.MaxIterations = 6
	cfg.DiffMode = false
	cfg.Rollback = control.Config{Enabled: true, Window: 3}

	n := 0
	deps := testDeps()
	deps.Generator = &MockGenerator{
		GenerateFunc: func(ctx context.Context, req GenerateRequest) (string, error) {
			n++
			return fmt.Sprintf("```python\nprint('v%d')\n```", n), nil
		},
	}
	deps.Evaluator = ScriptedEvaluator(
		history.Evaluation{Passed: false, Score: 75},
		history.Evaluation{Passed: false, Score: 45},
		history.Evaluation{Passed: false, Score: 55},
		history.Evaluation{Passed: false, Score: 30},
		history.Evaluation{Passed: true, Score: 90},
	)

	c, _ := NewController(cfg, deps)
	result, err := c.Run(context.Background(), Task{Description: "x"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// After the 4th iteration (score 30) the policy rolls back to the
	// iteration scoring 75, so the 5th generation works from v1.
	gen := deps.Generator.(*MockGenerator)
	if len(gen.Calls) != 5 {
		t.Fatalf("generator called %d times, want 5", len(gen.Calls))
	}
	if got := gen.Calls[4].PriorArtifact; got != "print('v1')" {
		t.Errorf("5th generation baseline = %q, want print('v1')", got)
	}

	if result.Outcome != OutcomeAccepted || result.Iterations != 5 {
		t.Errorf("result = %s after %d iterations", result.Outcome, result.Iterations)
	}
	// Rollback must not have rewritten history.
	if len(result.History) != 5 {
		t.Errorf("history length = %d, want 5", len(result.History))
	}
}

func TestRunExecutionTimeoutFlowsIntoReview(t *testing.T) {
	cfg := testConfig()
	cfg.MaxIterations = 1
	cfg.DiffMode = false

	deps := testDeps()
	deps.Executor = &MockExecutor{
		ExecuteFunc: func(ctx context.Context, artifact string, args []string, timeout time.Duration) (history.Execution, error) {
			return history.Execution{
				Stderr:       "execution timeout after 1s",
				ExitCode:     -1,
				FailureClass: history.FailureTimeout,
			}, nil
		},
	}
	deps.Evaluator = ScriptedEvaluator(history.Evaluation{Passed: false, Score: 5})

	c, _ := NewController(cfg, deps)
	result, err := c.Run(context.Background(), Task{Description: "x"})
	if err != nil {
		t.Fatalf("timeout must not be fatal, got %v", err)
	}

	rev := deps.Reviewer.(*MockReviewer)
	if len(rev.Calls) != 1 {
		t.Fatalf("reviewer called %d times, want 1", len(rev.Calls))
	}
	if rev.Calls[0].Execution.FailureClass != history.FailureTimeout {
		t.Error("reviewer did not see the timeout")
	}
	if result.History[0].Execution.FailureClass != history.FailureTimeout {
		t.Error("timeout not recorded in history")
	}
}

func TestRunFatalOnCollaboratorFailure(t *testing.T) {
	cfg := testConfig()
	cfg.MaxIterations = 3
	cfg.MaxRetries = 1

	deps := testDeps()
	deps.Generator = &MockGenerator{
		GenerateFunc: func(ctx context.Context, req GenerateRequest) (string, error) {
			return "", errors.New("backend unreachable")
		},
	}

	c, _ := NewController(cfg, deps)
	_, err := c.Run(context.Background(), Task{Description: "x"})
	if err == nil {
		t.Fatal("expected a fatal error")
	}
	if !IsFatal(err) {
		t.Fatalf("error %v is not a FatalTaskError", err)
	}
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Errorf("fatal error should wrap ErrRetriesExhausted, got %v", err)
	}

	var fe *FatalTaskError
	errors.As(err, &fe)
	if fe.Phase != StateGenerate {
		t.Errorf("Phase = %s, want GENERATE", fe.Phase)
	}

	gen := deps.Generator.(*MockGenerator)
	if gen.CallCount() != 2 {
		t.Errorf("generator called %d times, want 2 (initial + 1 retry)", gen.CallCount())
	}
}

func TestNewControllerValidatesDeps(t *testing.T) {
	deps := testDeps()
	deps.Reviewer = nil
	if _, err := NewController(testConfig(), deps); err == nil {
		t.Fatal("expected error for missing reviewer")
	}
}
