// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var usageMeter = otel.Meter("forge.llm.usage")

var (
	tokenCounter     metric.Int64Counter
	tokenCounterErr  error
	tokenCounterOnce sync.Once
)

func initTokenCounter() error {
	tokenCounterOnce.Do(func() {
		tokenCounter, tokenCounterErr = usageMeter.Int64Counter(
			"forge_llm_tokens_total",
			metric.WithDescription("Total LLM tokens consumed, by backend and direction"),
		)
	})
	return tokenCounterErr
}

// Accountant accumulates token usage across a run.
//
// Thread Safety:
//
//	All methods are safe for concurrent use.
type Accountant struct {
	mu      sync.Mutex
	calls   int
	backend string
	total   Usage
}

// NewAccountant creates an Accountant tagging metrics with backend.
func NewAccountant(backend string) *Accountant {
	return &Accountant{backend: backend}
}

// Record adds one completion's usage to the running totals.
func (a *Accountant) Record(u Usage) {
	a.mu.Lock()
	a.calls++
	a.total.PromptTokens += u.PromptTokens
	a.total.CompletionTokens += u.CompletionTokens
	backend := a.backend
	a.mu.Unlock()

	if err := initTokenCounter(); err != nil {
		return
	}
	tokenCounter.Add(context.Background(), int64(u.PromptTokens), metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("direction", "prompt"),
	))
	tokenCounter.Add(context.Background(), int64(u.CompletionTokens), metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("direction", "completion"),
	))
}

// Calls returns how many completions were recorded.
func (a *Accountant) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// Total returns the accumulated usage.
func (a *Accountant) Total() Usage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.total
}
