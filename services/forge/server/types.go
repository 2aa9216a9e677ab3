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
	"time"

	"github.com/AleutianAI/forge/services/forge/agent"
)

// RunStatus is the lifecycle state of a submitted run.
type RunStatus string

const (
	// StatusRunning means the loop is still iterating.
	StatusRunning RunStatus = "running"

	// StatusCompleted means the loop reached ACCEPTED or EXHAUSTED.
	StatusCompleted RunStatus = "completed"

	// StatusFailed means the loop aborted with a fatal error.
	StatusFailed RunStatus = "failed"
)

// SubmitTaskRequest is the request body for POST /v1/forge/tasks.
type SubmitTaskRequest struct {
	// Description is the natural-language statement of what to build.
	Description string `json:"description" binding:"required"`

	// Goals are the acceptance criteria.
	Goals []string `json:"goals"`

	// Args are passed to the artifact when executed.
	Args []string `json:"args,omitempty"`

	// MaxIterations overrides the configured iteration budget when > 0.
	MaxIterations int `json:"max_iterations,omitempty"`

	// DiffMode overrides the configured diff mode when set.
	DiffMode *bool `json:"diff_mode,omitempty"`
}

// SubmitTaskResponse is the response for POST /v1/forge/tasks.
type SubmitTaskResponse struct {
	RunID  string    `json:"run_id"`
	Status RunStatus `json:"status"`
}

// RunResponse is the response for GET /v1/forge/tasks/:id.
type RunResponse struct {
	RunID  string    `json:"run_id"`
	Status RunStatus `json:"status"`

	// Outcome, Reason, Iterations, BestScore and FinalArtifact are set
	// once the run completes.
	Outcome       agent.Outcome `json:"outcome,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	Iterations    int           `json:"iterations,omitempty"`
	BestScore     int           `json:"best_score,omitempty"`
	FinalArtifact string        `json:"final_artifact,omitempty"`

	// Error is set when the run failed.
	Error string `json:"error,omitempty"`

	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// RunListResponse is the response for GET /v1/forge/tasks.
type RunListResponse struct {
	Runs []RunResponse `json:"runs"`
}

// HealthResponse is the response for GET /v1/forge/health.
type HealthResponse struct {
	// Status is "healthy".
	Status string `json:"status"`

	// Version is the service version.
	Version string `json:"version"`
}

// ReadyResponse is the response for GET /v1/forge/ready.
type ReadyResponse struct {
	// Ready is true if the service accepts new tasks.
	Ready bool `json:"ready"`

	// ActiveRuns is the number of runs currently iterating.
	ActiveRuns int `json:"active_runs"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is the error code (optional).
	Code string `json:"code,omitempty"`
}
