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
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/forge/services/forge/control"
	"github.com/AleutianAI/forge/services/forge/diff"
	"github.com/AleutianAI/forge/services/forge/extract"
	"github.com/AleutianAI/forge/services/forge/history"
	"github.com/AleutianAI/forge/services/forge/quality"
)

// Dependencies are the collaborators and engines a Controller drives.
type Dependencies struct {
	Generator Generator
	Executor  Executor
	Reviewer  Reviewer
	Evaluator Evaluator

	// Gate screens raw generation output. Defaults to the standard gate.
	Gate quality.Gate

	// Engine applies diffs. Defaults to a diff.Engine with default
	// tolerances.
	Engine *diff.Engine
}

// Controller drives one task to a terminal outcome.
//
// Description:
//
//	The controller owns the active artifact and the context store for one
//	run, performs no I/O beyond collaborator calls, and mutates shared
//	state only in PROGRESS_CHECK. A Controller is reusable across runs;
//	each Run call builds a fresh Session.
//
// Thread Safety:
//
//	Controller is safe for concurrent use; every run's state is
//	session-local.
type Controller struct {
	cfg     Config
	deps    Dependencies
	machine *StateMachine
	logger  *slog.Logger
	hooks   []EventHook
}

// Option customizes a Controller.
type Option func(*Controller)

// WithLogger sets the controller's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// WithEventHook registers a hook receiving run events.
func WithEventHook(hook EventHook) Option {
	return func(c *Controller) { c.hooks = append(c.hooks, hook) }
}

// NewController creates a Controller.
//
// Outputs:
//
//	error - When any of the four collaborators is nil
func NewController(cfg Config, deps Dependencies, opts ...Option) (*Controller, error) {
	if deps.Generator == nil {
		return nil, fmt.Errorf("controller needs a Generator")
	}
	if deps.Executor == nil {
		return nil, fmt.Errorf("controller needs an Executor")
	}
	if deps.Reviewer == nil {
		return nil, fmt.Errorf("controller needs a Reviewer")
	}
	if deps.Evaluator == nil {
		return nil, fmt.Errorf("controller needs an Evaluator")
	}
	if deps.Gate == nil {
		deps.Gate = quality.NewGate(quality.DefaultConfig())
	}
	if deps.Engine == nil {
		deps.Engine = diff.NewEngine()
	}

	c := &Controller{
		cfg:     cfg.withDefaults(),
		deps:    deps,
		machine: DefaultStateMachine,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Deps returns the controller's collaborator set, with the gate and engine
// defaults filled in.
func (c *Controller) Deps() Dependencies {
	return c.deps
}

// Run drives task from INIT to a terminal outcome.
//
// Outputs:
//
//	*RunResult - Terminal outcome with the full history; non-nil whenever
//	             error is nil
//	error - A *FatalTaskError when collaborator retries were exhausted or
//	        the context was cancelled; per-iteration failures never
//	        surface here
func (c *Controller) Run(ctx context.Context, task Task) (*RunResult, error) {
	session := NewSession(task)
	tracker := control.NewTracker(c.cfg.Rollback)
	logger := c.logger.With("run_id", session.ID)

	logger.Info("run started",
		"task", task.Description, "max_iterations", c.cfg.MaxIterations,
		"diff_mode", c.cfg.DiffMode, "rollback", c.cfg.Rollback.Enabled)

	c.transition(session, 0, StateGenerate)

	// Active baseline. Owned here; replaced only in PROGRESS_CHECK.
	var (
		active      string
		activeSeq   int
		priorExec   *history.Execution
		priorReview string
		lastPatch   string
	)
	strikes := 0

	for seq := 1; seq <= c.cfg.MaxIterations; {
		if err := ctx.Err(); err != nil {
			return nil, c.fatal(session, err)
		}

		// GENERATE
		wantDiff := c.cfg.DiffMode && activeSeq > 0
		req := GenerateRequest{
			Task:           task,
			WantDiff:       wantDiff,
			PriorArtifact:  active,
			PriorExecution: priorExec,
			PriorReview:    priorReview,
			PatchSummary:   lastPatch,
		}
		var raw string
		err := callWithRetry(ctx, logger, "generate", c.cfg.MaxRetries, c.cfg.RetryBackoff,
			func(ctx context.Context) error {
				var genErr error
				raw, genErr = c.deps.Generator.Generate(ctx, req)
				return genErr
			})
		if err != nil {
			return nil, c.fatal(session, err)
		}

		// PARSE_AND_PATCH
		var candidate string
		var report *diff.Report
		if wantDiff {
			c.transition(session, seq, StatePatch)
			report, err = c.deps.Engine.Apply(active, extract.Clean(raw))
			if err != nil {
				// Multi-target, unparseable, or nothing applied: the
				// generation is unusable. Treated like a quality failure.
				logger.Warn("patch unusable, discarding generation",
					"iteration", seq, "error", err)
				recordRejectionMetric("patch_error")
				if done := c.strike(session, &strikes); done != nil {
					return done, nil
				}
				continue
			}
			candidate = report.Text
			if report.Partial() {
				logger.Warn("partial patch application",
					"iteration", seq, "summary", report.Summary())
			}
		} else {
			candidate = extract.Clean(raw)
		}

		// QUALITY_CHECK screens the raw generation text, not the patched
		// artifact.
		c.transition(session, seq, StateQuality)
		if res := c.deps.Gate.Check(raw); !res.Accepted {
			logger.Warn("generation rejected by quality gate",
				"iteration", seq, "reason", res.Reason())
			recordRejectionMetric(res.Reason())
			if done := c.strike(session, &strikes); done != nil {
				return done, nil
			}
			continue
		}
		strikes = 0

		// EXECUTE
		c.transition(session, seq, StateExecute)
		var execRes history.Execution
		err = callWithRetry(ctx, logger, "execute", c.cfg.MaxRetries, c.cfg.RetryBackoff,
			func(ctx context.Context) error {
				var execErr error
				execRes, execErr = c.deps.Executor.Execute(ctx, candidate, task.Args, c.cfg.ExecTimeout)
				return execErr
			})
		if err != nil {
			return nil, c.fatal(session, err)
		}
		if execRes.Failed() {
			logger.Info("execution failed",
				"iteration", seq, "class", execRes.FailureClass, "exit_code", execRes.ExitCode)
		}

		// REVIEW
		c.transition(session, seq, StateReview)
		patchSummary := ""
		if report != nil {
			patchSummary = report.Summary()
		}
		var review history.Review
		err = callWithRetry(ctx, logger, "review", c.cfg.MaxRetries, c.cfg.RetryBackoff,
			func(ctx context.Context) error {
				var revErr error
				review, revErr = c.deps.Reviewer.Review(ctx, ReviewRequest{
					Task:         task,
					Artifact:     candidate,
					Execution:    execRes,
					PriorReview:  priorReview,
					PatchSummary: patchSummary,
				})
				return revErr
			})
		if err != nil {
			return nil, c.fatal(session, err)
		}

		// EVALUATE
		c.transition(session, seq, StateEvaluate)
		var verdict history.Evaluation
		err = callWithRetry(ctx, logger, "evaluate", c.cfg.MaxRetries, c.cfg.RetryBackoff,
			func(ctx context.Context) error {
				var evalErr error
				verdict, evalErr = c.deps.Evaluator.Evaluate(ctx, task.Goals, review.Feedback)
				return evalErr
			})
		if err != nil {
			return nil, c.fatal(session, err)
		}

		// PROGRESS_CHECK: close the iteration, advance the baseline,
		// apply the rollback policy.
		c.transition(session, seq, StateProgress)
		it := history.Iteration{
			Seq:        seq,
			Artifact:   candidate,
			RawOutput:  raw,
			Patch:      report,
			Execution:  execRes,
			Review:     review,
			Evaluation: verdict,
		}
		if err := session.Store.Append(it); err != nil {
			return nil, c.fatal(session, err)
		}
		recordIterationMetric(verdict.Passed)
		active, activeSeq = candidate, seq
		priorExec, priorReview, lastPatch = &it.Execution, review.Feedback, patchSummary

		logger.Info("iteration complete",
			"iteration", seq, "score", verdict.Score, "passed", verdict.Passed,
			"failure_class", execRes.FailureClass)
		c.emit(session, seq, StateProgress, verdict.Score, "iteration complete")

		if verdict.Passed {
			c.transition(session, seq, StateAccepted)
			return c.buildResult(session, OutcomeAccepted, "", time.Since(session.StartedAt())), nil
		}
		if seq == c.cfg.MaxIterations {
			c.transition(session, seq, StateExhausted)
			return c.buildResult(session, OutcomeExhausted, "iteration budget reached",
				time.Since(session.StartedAt())), nil
		}

		if d := tracker.Observe(seq, verdict.Score); d.Action == control.ActionRollback {
			if err := session.Store.SetActive(d.TargetSeq); err != nil {
				return nil, c.fatal(session, err)
			}
			rolled, _ := session.Store.Get(d.TargetSeq)
			active, activeSeq = rolled.Artifact, rolled.Seq
			priorExec, priorReview, lastPatch = &rolled.Execution, rolled.Review.Feedback, ""
			logger.Info("rolled back to best iteration",
				"from", seq, "to", d.TargetSeq, "best_score", d.BestScore)
			c.emit(session, seq, StateProgress, d.BestScore,
				fmt.Sprintf("rollback to iteration %d", d.TargetSeq))
		}

		c.transition(session, seq, StateGenerate)
		seq++
	}

	// Unreachable: the budget check inside the loop is exhaustive.
	c.transition(session, c.cfg.MaxIterations, StateExhausted)
	return c.buildResult(session, OutcomeExhausted, "iteration budget reached",
		time.Since(session.StartedAt())), nil
}

// strike counts a discarded generation and decides whether the run is out
// of immediate retries. Returns a terminal result when it is.
func (c *Controller) strike(session *Session, strikes *int) *RunResult {
	*strikes++
	if *strikes <= c.cfg.QualityRetries {
		c.transition(session, 0, StateGenerate)
		return nil
	}
	c.transition(session, 0, StateExhausted)
	c.logger.Error("generator persistently producing unusable output",
		"run_id", session.ID, "strikes", *strikes)
	return c.buildResult(session, OutcomeExhausted,
		fmt.Sprintf("generation discarded %d consecutive times", *strikes),
		time.Since(session.StartedAt()))
}

// transition moves the session state, emitting an event. The loop only
// requests transitions in the machine's graph; a refusal here is a
// programming error and is logged, not propagated.
func (c *Controller) transition(session *Session, seq int, to TaskState) {
	from := session.GetState()
	if err := c.machine.Transition(session, to); err != nil {
		c.logger.Error("state transition refused", "run_id", session.ID, "error", err)
		return
	}
	c.emit(session, seq, to, 0, c.machine.TransitionReason(from, to))
}

// emit delivers an event to all hooks.
func (c *Controller) emit(session *Session, seq int, state TaskState, score int, detail string) {
	if len(c.hooks) == 0 {
		return
	}
	ev := Event{
		RunID:  session.ID,
		Seq:    seq,
		State:  state,
		Score:  score,
		Detail: detail,
		Time:   time.Now(),
	}
	for _, hook := range c.hooks {
		hook(ev)
	}
}

// fatal wraps err with the session's phase and history.
func (c *Controller) fatal(session *Session, err error) error {
	recordOutcomeMetric("FATAL")
	return &FatalTaskError{
		Phase:      session.GetState(),
		Iterations: session.Store.Len(),
		History:    session.Store.All(),
		Err:        err,
	}
}

// buildResult assembles the terminal RunResult.
func (c *Controller) buildResult(session *Session, outcome Outcome, reason string, dur time.Duration) *RunResult {
	recordOutcomeMetric(outcome)

	result := &RunResult{
		RunID:      session.ID,
		Outcome:    outcome,
		Reason:     reason,
		Iterations: session.Store.Len(),
		History:    session.Store.All(),
		Duration:   dur,
	}

	switch outcome {
	case OutcomeAccepted:
		if active, ok := session.Store.Active(); ok {
			result.FinalArtifact = active.Artifact
			result.BestSeq = active.Seq
			result.BestScore = active.Evaluation.Score
		}
	case OutcomeExhausted:
		// Surface the best-scoring artifact across the whole history.
		if best, ok := session.Store.Best(); ok {
			result.FinalArtifact = best.Artifact
			result.BestSeq = best.Seq
			result.BestScore = best.Evaluation.Score
		}
	}
	return result
}
