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
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Package-level meter for loop metrics.
var agentMeter = otel.Meter("forge.agent.loop")

// Loop metrics.
var (
	iterationsTotal metric.Int64Counter
	outcomesTotal   metric.Int64Counter
	rejectionsTotal metric.Int64Counter

	agentMetricsOnce sync.Once
	agentMetricsErr  error
)

// initAgentMetrics initializes metrics.
func initAgentMetrics() error {
	agentMetricsOnce.Do(func() {
		var err error

		iterationsTotal, err = agentMeter.Int64Counter(
			"forge_iterations_total",
			metric.WithDescription("Completed loop iterations by verdict"),
		)
		if err != nil {
			agentMetricsErr = err
			return
		}

		outcomesTotal, err = agentMeter.Int64Counter(
			"forge_runs_total",
			metric.WithDescription("Finished task runs by outcome"),
		)
		if err != nil {
			agentMetricsErr = err
			return
		}

		rejectionsTotal, err = agentMeter.Int64Counter(
			"forge_generation_rejections_total",
			metric.WithDescription("Generations discarded before execution by reason"),
		)
		if err != nil {
			agentMetricsErr = err
			return
		}
	})
	return agentMetricsErr
}

// recordIterationMetric records one completed iteration.
func recordIterationMetric(passed bool) {
	if err := initAgentMetrics(); err != nil {
		return
	}
	iterationsTotal.Add(nil, 1,
		metric.WithAttributes(attribute.Bool("passed", passed)),
	)
}

// recordOutcomeMetric records a finished run.
func recordOutcomeMetric(outcome Outcome) {
	if err := initAgentMetrics(); err != nil {
		return
	}
	outcomesTotal.Add(nil, 1,
		metric.WithAttributes(attribute.String("outcome", string(outcome))),
	)
}

// recordRejectionMetric records a discarded generation.
func recordRejectionMetric(reason string) {
	if err := initAgentMetrics(); err != nil {
		return
	}
	rejectionsTotal.Add(nil, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}
