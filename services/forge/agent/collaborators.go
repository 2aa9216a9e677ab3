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
	"time"

	"github.com/AleutianAI/forge/services/forge/history"
)

// The four collaborator boundaries the loop drives. Each is a synchronous
// request/response call that must be idempotent from the loop's point of
// view: a retried call is re-issued with identical inputs.

// GenerateRequest carries the full context for one generation call.
type GenerateRequest struct {
	// Task is the work description and goals.
	Task Task

	// WantDiff asks for a unified diff against PriorArtifact instead of a
	// full artifact. Never set on the first iteration.
	WantDiff bool

	// PriorArtifact is the currently active artifact, empty on the first
	// iteration.
	PriorArtifact string

	// PriorExecution is the active iteration's run output, nil on the
	// first iteration.
	PriorExecution *history.Execution

	// PriorReview is the active iteration's review feedback.
	PriorReview string

	// PatchSummary describes which edits of the previous diff failed to
	// land, so the generator can re-issue them.
	PatchSummary string
}

// Generator produces a new candidate.
//
// The returned text is free-form reasoning with exactly one embedded
// artifact block (a full artifact, or a diff when WantDiff is set).
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// Executor runs a candidate artifact and captures its output.
//
// A run that times out or exits non-zero is not an error: it comes back as
// an Execution with the matching failure class. The error return is for
// infrastructure failures only (the sandbox itself could not run).
type Executor interface {
	Execute(ctx context.Context, artifact string, args []string, timeout time.Duration) (history.Execution, error)
}

// ReviewRequest carries the context for one review call.
type ReviewRequest struct {
	Task      Task
	Artifact  string
	Execution history.Execution

	// PriorReview is the previous iteration's feedback, empty on the
	// first.
	PriorReview string

	// PatchSummary surfaces partial patch application to the reviewer.
	PatchSummary string
}

// Reviewer critiques a candidate against the task goals.
type Reviewer interface {
	Review(ctx context.Context, req ReviewRequest) (history.Review, error)
}

// Evaluator converts goals plus review feedback into a pass/fail verdict
// with a score in [0,100].
type Evaluator interface {
	Evaluate(ctx context.Context, goals []string, feedback string) (history.Evaluation, error)
}
