// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package agent implements the iteration control engine: a state machine
// that drives one refinement task from zero state to a terminal outcome by
// sequencing four external collaborators (generate, execute, review,
// evaluate) around the patch engine, quality gate, and progress policy.
package agent

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/forge/services/forge/control"
	"github.com/AleutianAI/forge/services/forge/history"
)

// TaskState is a state of the iteration loop.
type TaskState string

const (
	// StateInit is the sole initial state.
	StateInit TaskState = "INIT"

	// StateGenerate asks the generation collaborator for a new artifact.
	StateGenerate TaskState = "GENERATE"

	// StatePatch applies a produced diff to the active artifact.
	StatePatch TaskState = "PARSE_AND_PATCH"

	// StateQuality screens the raw generation text for degenerate output.
	StateQuality TaskState = "QUALITY_CHECK"

	// StateExecute runs the candidate artifact.
	StateExecute TaskState = "EXECUTE"

	// StateReview obtains the reviewer's critique.
	StateReview TaskState = "REVIEW"

	// StateEvaluate obtains the evaluator's pass/fail verdict and score.
	StateEvaluate TaskState = "EVALUATE"

	// StateProgress closes the iteration and applies the rollback policy.
	StateProgress TaskState = "PROGRESS_CHECK"

	// StateAccepted is the terminal success state.
	StateAccepted TaskState = "ACCEPTED"

	// StateExhausted is the terminal state for a spent iteration budget or
	// persistently rejected generation.
	StateExhausted TaskState = "EXHAUSTED"
)

// String returns the state name.
func (s TaskState) String() string { return string(s) }

// IsTerminal reports whether no further transitions exist from s.
func (s TaskState) IsTerminal() bool {
	return s == StateAccepted || s == StateExhausted
}

// AllStates returns every defined state.
func AllStates() []TaskState {
	return []TaskState{
		StateInit, StateGenerate, StatePatch, StateQuality, StateExecute,
		StateReview, StateEvaluate, StateProgress, StateAccepted, StateExhausted,
	}
}

// Task describes one unit of work for the loop.
type Task struct {
	// ID identifies the task. Optional; when set it becomes the run ID,
	// otherwise one is generated.
	ID string `json:"id,omitempty"`

	// Description is the natural-language statement of what to build.
	Description string `json:"description"`

	// Goals are the acceptance criteria the reviewer and evaluator judge
	// the artifact against.
	Goals []string `json:"goals"`

	// Args are passed to the execution collaborator when running the
	// artifact.
	Args []string `json:"args,omitempty"`
}

// Outcome is a terminal run outcome.
type Outcome string

const (
	// OutcomeAccepted means the evaluator passed an iteration.
	OutcomeAccepted Outcome = "ACCEPTED"

	// OutcomeExhausted means the iteration budget or the quality-retry
	// bound ran out without acceptance.
	OutcomeExhausted Outcome = "EXHAUSTED"
)

// RunResult is the final result of one task run.
type RunResult struct {
	// RunID is the generated unique ID for this run.
	RunID string `json:"run_id"`

	// Outcome is ACCEPTED or EXHAUSTED.
	Outcome Outcome `json:"outcome"`

	// Reason explains an EXHAUSTED outcome.
	Reason string `json:"reason,omitempty"`

	// FinalArtifact is the accepted artifact, or on exhaustion the
	// best-scoring artifact across history.
	FinalArtifact string `json:"final_artifact"`

	// BestSeq and BestScore identify the best iteration.
	BestSeq   int `json:"best_seq"`
	BestScore int `json:"best_score"`

	// Iterations is the number of completed iterations.
	Iterations int `json:"iterations"`

	// History is the full ordered iteration sequence.
	History []history.Iteration `json:"history"`

	Duration time.Duration `json:"duration"`
}

// Config controls one task run.
type Config struct {
	// MaxIterations bounds the loop. Reaching it yields EXHAUSTED.
	MaxIterations int

	// DiffMode asks the generator for diffs after the first iteration.
	// When false the generator always returns a full artifact.
	DiffMode bool

	// QualityRetries bounds consecutive immediate re-generations after
	// quality gate rejections or patch errors.
	QualityRetries int

	// MaxRetries bounds retries of a failing collaborator call.
	MaxRetries int

	// RetryBackoff is the base backoff between collaborator retries,
	// doubled per attempt.
	RetryBackoff time.Duration

	// ExecTimeout bounds one execution of the candidate artifact.
	ExecTimeout time.Duration

	// Rollback configures the progress policy.
	Rollback control.Config
}

// DefaultConfig returns production loop settings. Zero-valued fields of a
// caller-built Config are backfilled from these.
func DefaultConfig() Config {
	return Config{
		MaxIterations:  10,
		DiffMode:       true,
		QualityRetries: 3,
		MaxRetries:     3,
		RetryBackoff:   500 * time.Millisecond,
		ExecTimeout:    30 * time.Second,
		Rollback:       control.DefaultConfig(),
	}
}

// withDefaults backfills zero values from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxIterations <= 0 {
		c.MaxIterations = def.MaxIterations
	}
	if c.QualityRetries <= 0 {
		c.QualityRetries = def.QualityRetries
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = def.MaxRetries
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = def.RetryBackoff
	}
	if c.ExecTimeout <= 0 {
		c.ExecTimeout = def.ExecTimeout
	}
	if c.Rollback.Window <= 0 {
		c.Rollback.Window = def.Rollback.Window
	}
	return c
}

// Session is the task-local state of one run.
//
// Thread Safety:
//
//	Session is safe for concurrent use. The loop drives it from one
//	goroutine; observers may read state and store concurrently.
type Session struct {
	mu sync.RWMutex

	// ID is the run's unique identifier.
	ID string

	// Task is the work being performed.
	Task Task

	// Store is the append-only iteration history.
	Store *history.Store

	state     TaskState
	startedAt time.Time
}

// NewSession creates a session in StateInit. The run ID is taken from the
// task when present so callers can track the run before it finishes.
func NewSession(task Task) *Session {
	id := task.ID
	if id == "" {
		id = uuid.NewString()
	}
	return &Session{
		ID:        id,
		Task:      task,
		Store:     history.NewStore(),
		state:     StateInit,
		startedAt: time.Now(),
	}
}

// GetState returns the current state.
func (s *Session) GetState() TaskState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// SetState sets the current state. Use StateMachine.Transition to validate.
func (s *Session) SetState(state TaskState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// StartedAt returns when the session was created.
func (s *Session) StartedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startedAt
}

// Event is an observable milestone of a run, delivered to event hooks.
type Event struct {
	RunID  string    `json:"run_id"`
	Seq    int       `json:"seq"`
	State  TaskState `json:"state"`
	Score  int       `json:"score,omitempty"`
	Detail string    `json:"detail,omitempty"`
	Time   time.Time `json:"time"`
}

// EventHook receives run events. Hooks must not block; they are called
// inline from the loop.
type EventHook func(Event)
