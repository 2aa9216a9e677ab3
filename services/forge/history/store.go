// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package history holds the per-task iteration record store.
//
// The store is append-only: once an iteration closes it is never mutated and
// never removed. Rollback moves the active pointer to an earlier iteration;
// everything after it stays in the store for audit.
package history

import (
	"fmt"
	"sync"
	"time"

	"github.com/AleutianAI/forge/services/forge/diff"
)

// FailureClass classifies an execution outcome.
type FailureClass string

const (
	// FailureNone means the run completed with exit status zero.
	FailureNone FailureClass = "NONE"

	// FailureSyntax means the artifact failed at the parse/compile level.
	FailureSyntax FailureClass = "SYNTAX_LEVEL"

	// FailureRuntime means the run started but exited non-zero.
	FailureRuntime FailureClass = "RUNTIME"

	// FailureTimeout means the run exceeded its time budget.
	FailureTimeout FailureClass = "TIMEOUT"
)

// Execution is the captured result of running a candidate artifact.
type Execution struct {
	Stdout       string        `json:"stdout"`
	Stderr       string        `json:"stderr"`
	ExitCode     int           `json:"exit_code"`
	FailureClass FailureClass  `json:"failure_class"`
	Duration     time.Duration `json:"duration"`
}

// Failed reports whether the run did not complete cleanly.
func (e Execution) Failed() bool {
	return e.FailureClass != FailureNone
}

// Severity classifies a review issue.
type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityMajor    Severity = "major"
	SeverityCritical Severity = "critical"
)

// ReviewIssue is a single reviewer finding.
type ReviewIssue struct {
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
}

// Review is the reviewer's critique of one iteration.
type Review struct {
	Feedback string        `json:"feedback"`
	Issues   []ReviewIssue `json:"issues,omitempty"`
}

// Evaluation is the evaluator's verdict on one iteration.
type Evaluation struct {
	Passed bool `json:"passed"`

	// Score is in [0,100].
	Score int `json:"score"`
}

// Iteration is the immutable record of one completed loop iteration.
type Iteration struct {
	// Seq is the 1-based, strictly monotonic sequence number.
	Seq int `json:"seq"`

	// Artifact is the candidate text this iteration produced.
	Artifact string `json:"artifact"`

	// RawOutput is the raw generation text before extraction/patching.
	RawOutput string `json:"raw_output"`

	// Patch is the diff application report, nil when the iteration was a
	// full rewrite.
	Patch *diff.Report `json:"patch,omitempty"`

	Execution  Execution  `json:"execution"`
	Review     Review     `json:"review"`
	Evaluation Evaluation `json:"evaluation"`

	CreatedAt time.Time `json:"created_at"`
}

// ScoreEntry is one (sequence number, score) pair of the score history.
type ScoreEntry struct {
	Seq   int `json:"seq"`
	Score int `json:"score"`
}

// Store is the append-only context store for a single task run.
//
// Description:
//
//	Holds the ordered iteration sequence plus the active pointer: the
//	iteration whose artifact is the current baseline. Only the controller
//	appends and moves the pointer; the lock exists so observers (status
//	endpoints) can read a consistent snapshot while a run is in flight.
//
// Thread Safety:
//
//	Store is safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	iterations []Iteration
	active     int // Seq of the active iteration; 0 = none yet
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// Append adds a closed iteration and makes it the active one.
//
// Outputs:
//
//	error - When the sequence number is not the next in order
func (s *Store) Append(it Iteration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := len(s.iterations) + 1
	if it.Seq != want {
		return fmt.Errorf("out-of-order iteration: got seq %d, want %d", it.Seq, want)
	}
	if it.CreatedAt.IsZero() {
		it.CreatedAt = time.Now()
	}
	s.iterations = append(s.iterations, it)
	s.active = it.Seq
	return nil
}

// Len returns the number of stored iterations.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.iterations)
}

// Get returns the iteration with the given sequence number.
func (s *Store) Get(seq int) (Iteration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if seq < 1 || seq > len(s.iterations) {
		return Iteration{}, false
	}
	return s.iterations[seq-1], true
}

// Active returns the active iteration, or false when none exists yet.
func (s *Store) Active() (Iteration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == 0 {
		return Iteration{}, false
	}
	return s.iterations[s.active-1], true
}

// ActiveSeq returns the active iteration's sequence number, 0 when none.
func (s *Store) ActiveSeq() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// SetActive moves the active pointer, typically during rollback. History is
// not rewritten; later iterations stay in the store.
func (s *Store) SetActive(seq int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq < 1 || seq > len(s.iterations) {
		return fmt.Errorf("no iteration with seq %d", seq)
	}
	s.active = seq
	return nil
}

// All returns a copy of the full iteration sequence in order.
func (s *Store) All() []Iteration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Iteration, len(s.iterations))
	copy(out, s.iterations)
	return out
}

// Scores returns the ordered score history.
func (s *Store) Scores() []ScoreEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ScoreEntry, 0, len(s.iterations))
	for _, it := range s.iterations {
		out = append(out, ScoreEntry{Seq: it.Seq, Score: it.Evaluation.Score})
	}
	return out
}

// Best returns the highest-scoring iteration, earliest on ties, or false
// when the store is empty.
func (s *Store) Best() (Iteration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.iterations) == 0 {
		return Iteration{}, false
	}
	best := s.iterations[0]
	for _, it := range s.iterations[1:] {
		if it.Evaluation.Score > best.Evaluation.Score {
			best = it
		}
	}
	return best, true
}
