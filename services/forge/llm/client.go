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

import "context"

// Params are per-request generation knobs. Nil fields take the backend's
// defaults.
type Params struct {
	Temperature *float32 `json:"temperature"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// Usage is the token cost of one completion. Backends that do not report
// usage fill it with estimates.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Total returns the combined token count.
func (u Usage) Total() int {
	return u.PromptTokens + u.CompletionTokens
}

// Completion is one backend response.
type Completion struct {
	Text  string `json:"text"`
	Usage Usage  `json:"usage"`
}

// Client defines the standard interface for any LLM backend.
type Client interface {
	// Complete sends one system+user exchange and returns the model's text.
	Complete(ctx context.Context, system, prompt string, params Params) (Completion, error)

	// Name identifies the backend, e.g. "openai" or "ollama".
	Name() string

	// Model returns the configured model identifier.
	Model() string
}

// EstimateTokens approximates the token count of text. Roughly four
// characters per token holds for English prose and source code alike, which
// is close enough for budget accounting when the backend reports nothing.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}
