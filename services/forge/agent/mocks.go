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
	"sync"
	"time"

	"github.com/AleutianAI/forge/services/forge/history"
)

// Test doubles for the collaborator boundaries. Each records its calls and
// delegates to an overridable func field, with a permissive default.

// MockGenerator implements Generator.
type MockGenerator struct {
	mu sync.Mutex

	// GenerateFunc overrides Generate behavior when set.
	GenerateFunc func(ctx context.Context, req GenerateRequest) (string, error)

	// Calls records every request.
	Calls []GenerateRequest
}

func (m *MockGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, req)
	m.mu.Unlock()

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return "```python\nprint('ok')\n```", nil
}

// CallCount returns how many times Generate was invoked.
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// MockExecutor implements Executor.
type MockExecutor struct {
	mu sync.Mutex

	// ExecuteFunc overrides Execute behavior when set.
	ExecuteFunc func(ctx context.Context, artifact string, args []string, timeout time.Duration) (history.Execution, error)

	// Artifacts records every artifact executed.
	Artifacts []string
}

func (m *MockExecutor) Execute(ctx context.Context, artifact string, args []string, timeout time.Duration) (history.Execution, error) {
	m.mu.Lock()
	m.Artifacts = append(m.Artifacts, artifact)
	m.mu.Unlock()

	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, artifact, args, timeout)
	}
	return history.Execution{ExitCode: 0, FailureClass: history.FailureNone}, nil
}

// MockReviewer implements Reviewer.
type MockReviewer struct {
	mu sync.Mutex

	// ReviewFunc overrides Review behavior when set.
	ReviewFunc func(ctx context.Context, req ReviewRequest) (history.Review, error)

	// Calls records every request.
	Calls []ReviewRequest
}

func (m *MockReviewer) Review(ctx context.Context, req ReviewRequest) (history.Review, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, req)
	m.mu.Unlock()

	if m.ReviewFunc != nil {
		return m.ReviewFunc(ctx, req)
	}
	return history.Review{Feedback: "looks fine"}, nil
}

// MockEvaluator implements Evaluator.
type MockEvaluator struct {
	mu sync.Mutex

	// EvaluateFunc overrides Evaluate behavior when set.
	EvaluateFunc func(ctx context.Context, goals []string, feedback string) (history.Evaluation, error)

	// Calls counts invocations.
	Calls int
}

func (m *MockEvaluator) Evaluate(ctx context.Context, goals []string, feedback string) (history.Evaluation, error) {
	m.mu.Lock()
	m.Calls++
	m.mu.Unlock()

	if m.EvaluateFunc != nil {
		return m.EvaluateFunc(ctx, goals, feedback)
	}
	return history.Evaluation{Passed: true, Score: 100}, nil
}

// ScriptedEvaluator returns an Evaluator that walks through the given
// verdicts in order, repeating the last one when exhausted.
func ScriptedEvaluator(verdicts ...history.Evaluation) *MockEvaluator {
	i := 0
	return &MockEvaluator{
		EvaluateFunc: func(ctx context.Context, goals []string, feedback string) (history.Evaluation, error) {
			v := verdicts[min(i, len(verdicts)-1)]
			i++
			return v, nil
		},
	}
}
