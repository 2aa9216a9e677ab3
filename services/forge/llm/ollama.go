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
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

const defaultOllamaModel = "qwen2.5-coder"

// OllamaClient talks to a local Ollama server.
type OllamaClient struct {
	llm   *ollama.LLM
	model string
}

// NewOllamaClient creates an Ollama-backed Client.
//
// Outputs:
//
//	error - When baseURL is empty or the client cannot be constructed
func NewOllamaClient(baseURL, model string) (*OllamaClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("ollama base URL not configured")
	}
	if model == "" {
		model = defaultOllamaModel
		slog.Warn("Ollama model not set, defaulting", "model", model)
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	client, err := ollama.New(
		ollama.WithServerURL(baseURL),
		ollama.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Ollama client: %w", err)
	}

	slog.Info("Initializing Ollama client", "base_url", baseURL, "model", model)
	return &OllamaClient{llm: client, model: model}, nil
}

func (o *OllamaClient) Name() string  { return "ollama" }
func (o *OllamaClient) Model() string { return o.model }

// Complete implements the Client interface.
//
// Description:
//
//	Ollama does not report token usage through this path, so the usage
//	fields are estimated from the text lengths.
func (o *OllamaClient) Complete(ctx context.Context, system, prompt string, params Params) (Completion, error) {
	slog.Debug("Generating text via Ollama", "model", o.model)

	opts := []llms.CallOption{}
	if params.Temperature != nil {
		opts = append(opts, llms.WithTemperature(float64(*params.Temperature)))
	}
	if params.MaxTokens != nil {
		opts = append(opts, llms.WithMaxTokens(*params.MaxTokens))
	}
	if len(params.Stop) > 0 {
		opts = append(opts, llms.WithStopWords(params.Stop))
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	resp, err := o.llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		slog.Error("Ollama API call failed", "error", err)
		return Completion{}, fmt.Errorf("Ollama API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Completion{}, fmt.Errorf("Ollama returned no choices")
	}

	text := resp.Choices[0].Content
	return Completion{
		Text: text,
		Usage: Usage{
			PromptTokens:     EstimateTokens(system) + EstimateTokens(prompt),
			CompletionTokens: EstimateTokens(text),
		},
	}, nil
}
