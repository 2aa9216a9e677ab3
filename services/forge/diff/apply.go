// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package diff

import (
	"fmt"
	"log/slog"
	"strings"
)

// Options controls matching tolerance for the Engine.
type Options struct {
	// MaxLeadingContext and MaxTrailingContext bound how much context a
	// hunk may carry on each edge before the excess is discarded up front.
	// Producers frequently pad hunks with context that never existed in
	// the base text.
	MaxLeadingContext  int
	MaxTrailingContext int

	// MinAnchor is the smallest before-block, in lines, that relaxation may
	// trim down to. Changed lines are never trimmed, so a hunk always keeps
	// at least its changed lines' immediate neighbourhood.
	MinAnchor int

	// FuzzThreshold is the minimum similarity score, in [0,1], for a
	// whitespace-tolerant match to be accepted.
	FuzzThreshold float64
}

// DefaultOptions returns the tolerance settings used in production.
func DefaultOptions() Options {
	return Options{
		MaxLeadingContext:  3,
		MaxTrailingContext: 3,
		MinAnchor:          1,
		FuzzThreshold:      0.8,
	}
}

// Engine applies parsed diffs to a base text.
//
// Thread Safety:
//
//	Engine is stateless between calls and safe for concurrent use.
type Engine struct {
	opts   Options
	logger *slog.Logger
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithOptions overrides the default tolerance settings.
func WithOptions(opts Options) EngineOption {
	return func(e *Engine) { e.opts = opts }
}

// WithLogger sets the engine's logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine creates an Engine with default options.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		opts:   DefaultOptions(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Apply parses diffText and applies it to base.
//
// Description:
//
//	Hunks are applied strictly in document order against a forward-moving
//	cursor: once a region of the base text has been matched and replaced,
//	later hunks can only match after it. Per hunk the engine tries, in
//	order: exact match of the full before-block, exact match under
//	progressive context trimming, then whitespace-tolerant fuzzy matching.
//	A hunk that still has no acceptable match is recorded as skipped with
//	reason NO_MATCH and the base text it targeted is left untouched.
//
// Outputs:
//
//	*Report - Always non-nil; Text holds the (possibly partially) patched
//	          result and Results the per-hunk outcomes
//	error - ErrMultipleTargets or ErrUnparseable from parsing, or
//	        ErrNothingApplied when a non-empty diff landed zero hunks.
//	        Partial application is not an error.
func (e *Engine) Apply(base, diffText string) (*Report, error) {
	hunks, err := Parse(diffText)
	if err != nil {
		return nil, err
	}
	return e.ApplyHunks(base, hunks)
}

// ApplyHunks applies already-parsed hunks to base. See Apply.
func (e *Engine) ApplyHunks(base string, hunks []*Hunk) (*Report, error) {
	report := &Report{Attempted: len(hunks), Text: base}
	if len(hunks) == 0 {
		return report, nil
	}

	baseLines := strings.Split(base, "\n")
	cursor := 0

	for i, h := range hunks {
		hr := HunkResult{Index: i}
		e.trimExcessContext(h)

		before := h.Before()
		after := h.After()

		if len(before) == 0 && len(after) == 0 {
			hr.Reason = SkipEmpty
			report.Skipped++
			report.Results = append(report.Results, hr)
			continue
		}

		if len(before) == 0 {
			// Pure insertion with no anchor: append at the end.
			baseLines = append(baseLines, after...)
			hr.Applied = true
			hr.MatchLine = len(baseLines) - len(after)
			cursor = len(baseLines)
			report.Applied++
			report.Results = append(report.Results, hr)
			continue
		}

		match := e.locate(baseLines, cursor, h, &before, &after, &hr)
		if match < 0 {
			hr.Reason = SkipNoMatch
			report.Skipped++
			report.Results = append(report.Results, hr)
			e.logger.Warn("hunk skipped, no match in base text",
				"hunk", i+1, "header", h.Header(), "cursor", cursor)
			continue
		}

		replaced := make([]string, 0, len(baseLines)-len(before)+len(after))
		replaced = append(replaced, baseLines[:match]...)
		replaced = append(replaced, after...)
		replaced = append(replaced, baseLines[match+len(before):]...)
		baseLines = replaced

		hr.Applied = true
		hr.MatchLine = match
		cursor = match + len(after)
		report.Applied++
		report.Results = append(report.Results, hr)
		e.logger.Debug("hunk applied",
			"hunk", i+1, "line", match+1, "fuzzy", hr.Fuzzy)
	}

	report.Text = strings.Join(baseLines, "\n")

	if report.Applied == 0 {
		return report, fmt.Errorf("%w: %d hunks attempted", ErrNothingApplied, report.Attempted)
	}
	return report, nil
}

// trimExcessContext discards context beyond the configured bounds from both
// edges of a hunk, keeping the before and after views consistent.
func (e *Engine) trimExcessContext(h *Hunk) {
	lead := 0
	for lead < len(h.Lines) && h.Lines[lead].Type == LineContext {
		lead++
	}
	trail := 0
	for trail < len(h.Lines)-lead && h.Lines[len(h.Lines)-1-trail].Type == LineContext {
		trail++
	}
	start := 0
	if lead > e.opts.MaxLeadingContext {
		start = lead - e.opts.MaxLeadingContext
	}
	end := len(h.Lines)
	if trail > e.opts.MaxTrailingContext {
		end -= trail - e.opts.MaxTrailingContext
	}
	h.Lines = h.Lines[start:end]
}

// locate finds the base line index where the hunk's before-block matches,
// or -1. It may shrink before/after in place when context relaxation was
// needed for the match, so the caller replaces exactly what was found.
func (e *Engine) locate(baseLines []string, cursor int, h *Hunk, before, after *[]string, hr *HunkResult) int {
	// Pass 1: exact match of the full block.
	if at := findExact(baseLines, cursor, *before); at >= 0 {
		return at
	}

	// Pass 2: progressively relax context from the edges. The hunk's lines
	// are walked symmetrically: drop one leading context line, retry, drop
	// one trailing, retry, until only MinAnchor lines or no context remain.
	lead, trail := contextEdges(h)
	b, a := *before, *after
	for l, t := 0, 0; l < lead || t < trail; {
		if l < lead && len(b) > e.opts.MinAnchor {
			l++
			b, a = b[1:], a[1:]
			if at := findExact(baseLines, cursor, b); at >= 0 {
				*before, *after = b, a
				return at
			}
		}
		if t < trail && len(b) > e.opts.MinAnchor {
			t++
			b, a = b[:len(b)-1], a[:len(a)-1]
			if at := findExact(baseLines, cursor, b); at >= 0 {
				*before, *after = b, a
				return at
			}
		}
		if len(b) <= e.opts.MinAnchor {
			break
		}
	}

	// Pass 3: fuzzy match of the full block, tolerant of whitespace drift
	// and minor line reordering inside the window.
	if at := e.findFuzzy(baseLines, cursor, *before); at >= 0 {
		hr.Fuzzy = true
		return at
	}
	return -1
}

// contextEdges counts leading and trailing context lines of a hunk.
func contextEdges(h *Hunk) (lead, trail int) {
	for lead < len(h.Lines) && h.Lines[lead].Type == LineContext {
		lead++
	}
	for trail < len(h.Lines)-lead && h.Lines[len(h.Lines)-1-trail].Type == LineContext {
		trail++
	}
	return lead, trail
}

// findExact scans for block as an exact line-run at or after cursor.
func findExact(baseLines []string, cursor int, block []string) int {
	if len(block) == 0 {
		return -1
	}
	for at := cursor; at+len(block) <= len(baseLines); at++ {
		if linesEqual(baseLines[at:at+len(block)], block, false) {
			return at
		}
	}
	return -1
}

// findFuzzy scans every window of the block's size at or after cursor and
// returns the best-scoring one above the threshold.
func (e *Engine) findFuzzy(baseLines []string, cursor int, block []string) int {
	if len(block) == 0 {
		return -1
	}
	best, bestScore := -1, 0.0
	for at := cursor; at+len(block) <= len(baseLines); at++ {
		score := windowScore(baseLines[at:at+len(block)], block)
		if score > bestScore {
			best, bestScore = at, score
		}
	}
	if bestScore >= e.opts.FuzzThreshold {
		return best
	}
	return -1
}

// windowScore rates how well block matches window. Positionally identical
// lines (after whitespace folding) count 1.0; lines present elsewhere in
// the window count 0.5, which tolerates minor reordering without letting
// an unrelated region score high.
func windowScore(window, block []string) float64 {
	n := len(block)
	if n == 0 {
		return 0
	}
	used := make([]bool, n)
	score := 0.0
	var displaced []int
	for i, want := range block {
		if foldLine(window[i]) == foldLine(want) {
			score++
			used[i] = true
		} else {
			displaced = append(displaced, i)
		}
	}
	for _, i := range displaced {
		want := foldLine(block[i])
		for j := range window {
			if !used[j] && foldLine(window[j]) == want {
				used[j] = true
				score += 0.5
				break
			}
		}
	}
	return score / float64(n)
}

// linesEqual compares two equal-length line runs, optionally folding
// whitespace.
func linesEqual(a, b []string, fold bool) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if fold {
			if foldLine(a[i]) != foldLine(b[i]) {
				return false
			}
		} else if a[i] != b[i] {
			return false
		}
	}
	return true
}

// foldLine collapses all interior whitespace runs and trims the edges, so
// indentation and alignment drift do not defeat matching.
func foldLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
