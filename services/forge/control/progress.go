// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package control implements the progress and rollback policy for the
// iteration loop.
//
// The policy watches the score history and decides whether the loop should
// keep moving forward or roll the baseline back to the best iteration seen
// so far. It never touches the history itself; the controller owns all
// state mutation.
package control

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Package-level meter for progress metrics.
var progressMeter = otel.Meter("forge.control.progress")

// DefaultWindow is the default number of consecutive non-improving
// iterations tolerated before rollback triggers.
const DefaultWindow = 3

// Action is the policy's decision for the next loop step.
type Action string

const (
	// ActionContinue keeps working forward from the current baseline.
	ActionContinue Action = "continue"

	// ActionRollback reverts the baseline to the best iteration so far.
	ActionRollback Action = "rollback"
)

// Decision is the policy's answer after observing one score.
type Decision struct {
	Action Action

	// TargetSeq is the iteration to roll back to. Set when Action is
	// ActionRollback.
	TargetSeq int

	// BestSeq and BestScore describe the best iteration seen so far.
	BestSeq   int
	BestScore int

	// Stalled is the current count of consecutive non-improving
	// iterations.
	Stalled int
}

// Config controls the tracker.
type Config struct {
	// Enabled turns rollback off entirely when false; the decision is
	// always ActionContinue.
	Enabled bool

	// Window is the number of consecutive non-improving iterations
	// tolerated before rollback triggers.
	Window int
}

// DefaultConfig returns the production policy settings.
func DefaultConfig() Config {
	return Config{Enabled: true, Window: DefaultWindow}
}

// Tracker observes scores for one task run and applies the rollback policy.
//
// Description:
//
//	A score strictly above the best so far becomes the new best and resets
//	the stall counter. A score that ties the best also resets the counter:
//	the generator is holding level, not degrading, so it has earned the
//	full window again. Only strictly lower scores count toward the stall
//	window. Once the window fills and the latest score is strictly below
//	the best, the tracker requests rollback to the best iteration and
//	resets the counter. Rollback therefore can never fire within the
//	first Window observations, because the first observation always sets
//	a best.
//
// Thread Safety:
//
//	Tracker is safe for concurrent use, though a task run drives it from
//	a single goroutine.
type Tracker struct {
	mu sync.Mutex

	cfg       Config
	bestSeq   int
	bestScore int
	stalled   int
	rollbacks int
}

// NewTracker creates a tracker with the given config. A non-positive
// window falls back to DefaultWindow.
func NewTracker(cfg Config) *Tracker {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	return &Tracker{cfg: cfg, bestSeq: 0, bestScore: -1}
}

// Observe records one iteration's score and returns the policy decision.
func (t *Tracker) Observe(seq, score int) Decision {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case score > t.bestScore:
		t.bestSeq, t.bestScore = seq, score
		t.stalled = 0
	case score == t.bestScore:
		t.stalled = 0
	default:
		t.stalled++
	}

	d := Decision{
		Action:    ActionContinue,
		BestSeq:   t.bestSeq,
		BestScore: t.bestScore,
		Stalled:   t.stalled,
	}

	if t.cfg.Enabled && t.stalled >= t.cfg.Window && score < t.bestScore {
		d.Action = ActionRollback
		d.TargetSeq = t.bestSeq
		t.stalled = 0
		t.rollbacks++
		recordRollbackMetric(t.bestScore)
	}
	return d
}

// Best returns the best (seq, score) observed so far.
func (t *Tracker) Best() (seq, score int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bestSeq, t.bestScore
}

// Rollbacks returns how many rollbacks the tracker has requested.
func (t *Tracker) Rollbacks() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rollbacks
}

// Progress metrics.
var (
	rollbacksTotal metric.Int64Counter

	progressMetricsOnce sync.Once
	progressMetricsErr  error
)

// initProgressMetrics initializes metrics.
func initProgressMetrics() error {
	progressMetricsOnce.Do(func() {
		rollbacksTotal, progressMetricsErr = progressMeter.Int64Counter(
			"forge_rollbacks_total",
			metric.WithDescription("Total rollbacks triggered by the progress policy"),
		)
	})
	return progressMetricsErr
}

// recordRollbackMetric records a rollback decision.
func recordRollbackMetric(bestScore int) {
	if err := initProgressMetrics(); err != nil {
		return
	}
	rollbacksTotal.Add(nil, 1,
		metric.WithAttributes(
			attribute.Int("best_score", bestScore),
		),
	)
}
