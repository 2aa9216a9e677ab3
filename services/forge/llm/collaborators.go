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
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/AleutianAI/forge/services/forge/agent"
	"github.com/AleutianAI/forge/services/forge/history"
)

// settings are shared knobs for the three LLM-backed collaborators.
type settings struct {
	temperature float32
	maxTokens   int
	acct        *Accountant
}

func defaultSettings() settings {
	return settings{temperature: 0.2, maxTokens: 8192}
}

// Option customizes a collaborator.
type Option func(*settings)

// WithTemperature sets the sampling temperature.
func WithTemperature(t float32) Option {
	return func(s *settings) { s.temperature = t }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) Option {
	return func(s *settings) { s.maxTokens = n }
}

// WithAccountant records every completion's token usage.
func WithAccountant(a *Accountant) Option {
	return func(s *settings) { s.acct = a }
}

func (s *settings) params() Params {
	t, n := s.temperature, s.maxTokens
	return Params{Temperature: &t, MaxTokens: &n}
}

func (s *settings) complete(ctx context.Context, client Client, system, prompt string) (string, error) {
	c, err := client.Complete(ctx, system, prompt, s.params())
	if err != nil {
		return "", err
	}
	if s.acct != nil {
		s.acct.Record(c.Usage)
	}
	return c.Text, nil
}

// Generator produces candidate programs via an LLM backend.
type Generator struct {
	client Client
	s      settings
}

// NewGenerator creates an LLM-backed generator.
func NewGenerator(client Client, opts ...Option) *Generator {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	return &Generator{client: client, s: s}
}

// Generate implements agent.Generator.
func (g *Generator) Generate(ctx context.Context, req agent.GenerateRequest) (string, error) {
	slog.Debug("Requesting generation", "backend", g.client.Name(), "want_diff", req.WantDiff)
	return g.s.complete(ctx, g.client, generateSystem, GeneratePrompt(req))
}

// Reviewer critiques candidate programs via an LLM backend.
type Reviewer struct {
	client Client
	s      settings
}

// NewReviewer creates an LLM-backed reviewer.
func NewReviewer(client Client, opts ...Option) *Reviewer {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	return &Reviewer{client: client, s: s}
}

// Review implements agent.Reviewer.
func (r *Reviewer) Review(ctx context.Context, req agent.ReviewRequest) (history.Review, error) {
	text, err := r.s.complete(ctx, r.client, reviewSystem, ReviewPrompt(req))
	if err != nil {
		return history.Review{}, err
	}
	return history.Review{
		Feedback: text,
		Issues:   ParseIssues(text),
	}, nil
}

// Evaluator turns reviewer feedback into a pass/fail verdict with a score.
type Evaluator struct {
	client Client
	s      settings
}

// NewEvaluator creates an LLM-backed evaluator.
func NewEvaluator(client Client, opts ...Option) *Evaluator {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	return &Evaluator{client: client, s: s}
}

// Evaluate implements agent.Evaluator.
func (e *Evaluator) Evaluate(ctx context.Context, goals []string, feedback string) (history.Evaluation, error) {
	// Verdicts are short and must be deterministic; ignore the configured
	// temperature.
	s := e.s
	s.temperature = 0
	text, err := s.complete(ctx, e.client, evaluateSystem, EvaluatePrompt(goals, feedback))
	if err != nil {
		return history.Evaluation{}, err
	}
	verdict, err := ParseVerdict(text)
	if err != nil {
		slog.Warn("Evaluator returned an unparseable verdict", "response", text)
		return history.Evaluation{}, err
	}
	return verdict, nil
}

var (
	verdictRe = regexp.MustCompile(`(?s)\{[^{}]*\}`)
	issueRe   = regexp.MustCompile(`(?i)^\s*(?:[-*]\s*)?(minor|major|critical)\s*:\s*(.+)$`)
)

// ParseVerdict extracts a pass/score verdict from an evaluator response.
//
// Description:
//
//	Prefers the JSON object the prompt asks for; falls back to a bare
//	True/False answer, which some models produce regardless. Scores are
//	clamped to [0,100].
func ParseVerdict(text string) (history.Evaluation, error) {
	if raw := verdictRe.FindString(text); raw != "" {
		var v struct {
			Pass  bool `json:"pass"`
			Score int  `json:"score"`
		}
		if err := json.Unmarshal([]byte(raw), &v); err == nil {
			return history.Evaluation{Passed: v.Pass, Score: clampScore(v.Score)}, nil
		}
	}

	switch word := strings.ToLower(strings.Trim(strings.TrimSpace(text), ".\"'`")); word {
	case "true":
		return history.Evaluation{Passed: true, Score: 100}, nil
	case "false":
		return history.Evaluation{Passed: false, Score: 0}, nil
	}
	return history.Evaluation{}, fmt.Errorf("no verdict found in evaluator response")
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// ParseIssues extracts classified findings from reviewer feedback.
//
// Description:
//
//	The review prompt asks for one issue per line prefixed with Minor:,
//	Major:, or Critical:. Lines that do not match are prose and are left
//	in the feedback only.
func ParseIssues(feedback string) []history.ReviewIssue {
	var issues []history.ReviewIssue
	for _, line := range strings.Split(feedback, "\n") {
		m := issueRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		issues = append(issues, history.ReviewIssue{
			Severity:    history.Severity(strings.ToLower(m[1])),
			Description: strings.TrimSpace(m[2]),
		})
	}
	return issues
}
