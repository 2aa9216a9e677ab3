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

	"github.com/awnumar/memguard"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIClient talks to the OpenAI chat completions API.
type OpenAIClient struct {
	client  *openai.Client
	model   string
	limiter *rate.Limiter
}

// NewOpenAIClient creates an OpenAI-backed Client.
//
// Inputs:
//
//	key - API key held in a memguard enclave; opened once to construct the
//	      SDK client and wiped immediately after
//	model - Model identifier; empty selects gpt-4o-mini
//	rps - Request rate limit; <= 0 disables limiting
//
// Outputs:
//
//	error - When key is nil or cannot be opened
func NewOpenAIClient(key *memguard.Enclave, model string, rps float64) (*OpenAIClient, error) {
	if key == nil {
		return nil, fmt.Errorf("OpenAI API key not configured")
	}
	buf, err := key.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open API key enclave: %w", err)
	}
	client := openai.NewClient(buf.String())
	buf.Destroy()

	if model == "" {
		model = defaultOpenAIModel
		slog.Warn("OpenAI model not set, defaulting", "model", model)
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}

	slog.Info("Initializing OpenAI client", "model", model)
	return &OpenAIClient{client: client, model: model, limiter: limiter}, nil
}

func (o *OpenAIClient) Name() string  { return "openai" }
func (o *OpenAIClient) Model() string { return o.model }

// Complete implements the Client interface.
func (o *OpenAIClient) Complete(ctx context.Context, system, prompt string, params Params) (Completion, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return Completion{}, err
	}

	slog.Debug("Generating text via OpenAI", "model", o.model)
	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.MaxTokens != nil {
		req.MaxCompletionTokens = *params.MaxTokens
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		slog.Error("OpenAI API call failed", "error", err)
		return Completion{}, fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		slog.Warn("OpenAI returned no choices or empty content")
		return Completion{}, fmt.Errorf("OpenAI returned no choices")
	}

	slog.Debug("Received response from OpenAI", "finish_reason", resp.Choices[0].FinishReason)
	return Completion{
		Text: resp.Choices[0].Message.Content,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}
