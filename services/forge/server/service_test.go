// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/forge/services/forge/agent"
	"github.com/AleutianAI/forge/services/forge/history"
)

func newTestService(t *testing.T, deps agent.Dependencies, opts ...ServiceOption) *Service {
	t.Helper()

	cfg := DefaultServiceConfig()
	cfg.Loop.MaxIterations = 2
	cfg.Loop.RetryBackoff = time.Millisecond

	svc, err := NewService(cfg, deps, opts...)
	require.NoError(t, err)
	return svc
}

func defaultDeps() agent.Dependencies {
	return agent.Dependencies{
		Generator: &agent.MockGenerator{},
		Executor:  &agent.MockExecutor{},
		Reviewer:  &agent.MockReviewer{},
		Evaluator: &agent.MockEvaluator{},
	}
}

func TestServiceRunCompletes(t *testing.T) {
	svc := newTestService(t, defaultDeps())

	id := svc.Submit(agent.Task{Description: "print ok"}, agent.Config{})
	require.NotEmpty(t, id)

	require.Eventually(t, func() bool {
		resp, ok := svc.Get(id)
		return ok && resp.Status == StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	resp, ok := svc.Get(id)
	require.True(t, ok)
	require.Equal(t, agent.OutcomeAccepted, resp.Outcome)
	require.Equal(t, 1, resp.Iterations)
	require.Equal(t, "print('ok')", resp.FinalArtifact)
	require.NotZero(t, resp.Duration)
}

func TestServiceRunFailureIsRecorded(t *testing.T) {
	deps := defaultDeps()
	deps.Generator = &agent.MockGenerator{
		GenerateFunc: func(ctx context.Context, req agent.GenerateRequest) (string, error) {
			return "", context.DeadlineExceeded
		},
	}
	svc := newTestService(t, deps)

	id := svc.Submit(agent.Task{Description: "x"}, agent.Config{})

	require.Eventually(t, func() bool {
		resp, ok := svc.Get(id)
		return ok && resp.Status == StatusFailed
	}, 5*time.Second, 10*time.Millisecond)

	resp, _ := svc.Get(id)
	require.NotEmpty(t, resp.Error)
}

func TestServiceAbort(t *testing.T) {
	release := make(chan struct{})
	deps := defaultDeps()
	deps.Generator = &agent.MockGenerator{
		GenerateFunc: func(ctx context.Context, req agent.GenerateRequest) (string, error) {
			select {
			case <-release:
				return "```python\nprint('ok')\n```", nil
			case <-ctx.Done():
				return "", ctx.Err()
			}
		},
	}
	svc := newTestService(t, deps)
	defer close(release)

	id := svc.Submit(agent.Task{Description: "x"}, agent.Config{})
	require.Equal(t, 1, svc.ActiveRuns())

	require.NoError(t, svc.Abort(id))

	require.Eventually(t, func() bool {
		resp, ok := svc.Get(id)
		return ok && resp.Status == StatusFailed
	}, 5*time.Second, 10*time.Millisecond)

	// A finished run cannot be aborted again.
	require.Error(t, svc.Abort(id))
}

func TestServiceListNewestFirst(t *testing.T) {
	svc := newTestService(t, defaultDeps())

	first := svc.Submit(agent.Task{Description: "a"}, agent.Config{})
	time.Sleep(5 * time.Millisecond)
	second := svc.Submit(agent.Task{Description: "b"}, agent.Config{})

	runs := svc.List()
	require.Len(t, runs, 2)
	require.Equal(t, second, runs[0].RunID)
	require.Equal(t, first, runs[1].RunID)
}

func TestServicePerRequestOverrides(t *testing.T) {
	deps := defaultDeps()
	deps.Evaluator = &agent.MockEvaluator{
		EvaluateFunc: func(ctx context.Context, goals []string, feedback string) (history.Evaluation, error) {
			return history.Evaluation{Passed: false, Score: 10}, nil
		},
	}
	svc := newTestService(t, deps)

	cfg := svc.cfg.Loop
	cfg.MaxIterations = 3
	// The default generator mock always emits a full artifact, so the
	// override must not request diffs after the first iteration.
	cfg.DiffMode = false
	id := svc.Submit(agent.Task{Description: "x"}, cfg)

	require.Eventually(t, func() bool {
		resp, ok := svc.Get(id)
		return ok && resp.Status == StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	resp, _ := svc.Get(id)
	require.Equal(t, agent.OutcomeExhausted, resp.Outcome)
	require.Equal(t, 3, resp.Iterations)
}

func TestServiceArchivesCompletedRuns(t *testing.T) {
	cfg := history.DefaultArchiveConfig("")
	cfg.InMemory = true
	archive, err := history.OpenArchive(cfg)
	require.NoError(t, err)
	defer archive.Close()

	svc := newTestService(t, defaultDeps(), WithArchive(archive))

	id := svc.Submit(agent.Task{Description: "print ok"}, agent.Config{})

	require.Eventually(t, func() bool {
		rec, err := archive.LoadRun(id)
		return err == nil && rec.Outcome == string(agent.OutcomeAccepted)
	}, 5*time.Second, 10*time.Millisecond)

	rec, err := archive.LoadRun(id)
	require.NoError(t, err)
	require.Equal(t, "print ok", rec.Task)
	require.Len(t, rec.Iterations, 1)
}
