// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package diff implements tolerant, best-effort application of
// model-produced diffs to a single text artifact.
//
// Model-produced diffs are structurally unreliable: line numbers in hunk
// headers are routinely wrong, context is over- or under-included, and
// leading +/-/space markers are sometimes dropped entirely. The engine in
// this package therefore treats header positions as advisory, matches hunk
// bodies by content, and records hunks it cannot locate instead of failing
// the whole patch.
package diff

import (
	"errors"
	"fmt"
	"strings"
)

// LineType classifies a single diff line.
type LineType string

const (
	// LineContext is an unchanged line present in both versions.
	LineContext LineType = " "

	// LineAdded is a line present only in the new version.
	LineAdded LineType = "+"

	// LineRemoved is a line present only in the old version.
	LineRemoved LineType = "-"
)

// Line is one line of a hunk body with its marker.
type Line struct {
	Type    LineType
	Content string
}

// Hunk is a single contiguous change unit: an ordered sequence of context,
// removed, and added lines. Header positions are advisory only; no matching
// decision depends on them.
type Hunk struct {
	// OldStart/OldCount and NewStart/NewCount come from the @@ header when
	// one was present. Zero values mean the header was absent or unusable.
	OldStart int
	OldCount int
	NewStart int
	NewCount int

	Lines []Line
}

// Before returns the lines the hunk expects to find in the base text
// (context plus removed lines, in order).
func (h *Hunk) Before() []string {
	out := make([]string, 0, len(h.Lines))
	for _, l := range h.Lines {
		if l.Type == LineContext || l.Type == LineRemoved {
			out = append(out, l.Content)
		}
	}
	return out
}

// After returns the lines the hunk produces in the patched text
// (context plus added lines, in order).
func (h *Hunk) After() []string {
	out := make([]string, 0, len(h.Lines))
	for _, l := range h.Lines {
		if l.Type == LineContext || l.Type == LineAdded {
			out = append(out, l.Content)
		}
	}
	return out
}

// ChangedLines returns the number of non-context lines in the hunk.
func (h *Hunk) ChangedLines() int {
	n := 0
	for _, l := range h.Lines {
		if l.Type != LineContext {
			n++
		}
	}
	return n
}

// Header renders the advisory unified-diff header for the hunk.
func (h *Hunk) Header() string {
	return fmt.Sprintf("@@ -%d,%d +%d,%d @@", h.OldStart, h.OldCount, h.NewStart, h.NewCount)
}

// SkipReason explains why a hunk was not applied.
type SkipReason string

const (
	// SkipNone means the hunk applied.
	SkipNone SkipReason = ""

	// SkipNoMatch means no acceptable match for the hunk's before-block was
	// found in the unconsumed portion of the base text.
	SkipNoMatch SkipReason = "NO_MATCH"

	// SkipEmpty means the hunk carried no usable lines after normalization.
	SkipEmpty SkipReason = "EMPTY_HUNK"
)

// HunkResult records the outcome for one hunk of a patch attempt.
type HunkResult struct {
	// Index is the hunk's position within the diff (0-based).
	Index int

	// Applied reports whether the hunk landed.
	Applied bool

	// Reason is set when Applied is false.
	Reason SkipReason

	// MatchLine is the 0-based base line where the before-block matched.
	// Only meaningful when Applied is true.
	MatchLine int

	// Fuzzy reports that the match required whitespace-tolerant scoring
	// rather than exact or context-trimmed equality.
	Fuzzy bool
}

// Report summarizes a patch attempt.
//
// Invariant: Applied + Skipped == Attempted. A report with Attempted > 0 and
// Applied == 0 is escalated by the engine as ErrNothingApplied rather than
// returned as a silent success.
type Report struct {
	Attempted int
	Applied   int
	Skipped   int
	Results   []HunkResult

	// Text is the patched text. When every hunk was skipped this equals the
	// base text.
	Text string
}

// Partial reports whether some but not all hunks landed.
func (r *Report) Partial() bool {
	return r.Applied > 0 && r.Skipped > 0
}

// Summary renders a one-line description suitable for feeding back to a
// reviewer so it can see which edits failed to land.
func (r *Report) Summary() string {
	if r.Attempted == 0 {
		return "empty diff: no hunks to apply"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d/%d hunks applied", r.Applied, r.Attempted)
	for _, hr := range r.Results {
		if !hr.Applied {
			fmt.Fprintf(&b, "; hunk %d skipped (%s)", hr.Index+1, hr.Reason)
		}
	}
	return b.String()
}

// Sentinel errors returned by parsing and application.
var (
	// ErrMultipleTargets is returned when a diff names more than one file.
	// All hunks in a single diff must target the one active artifact.
	ErrMultipleTargets = errors.New("diff targets multiple files")

	// ErrUnparseable is returned when no hunk structure can be recovered
	// from the diff text at all.
	ErrUnparseable = errors.New("diff is structurally unparseable")

	// ErrNothingApplied is returned when a non-empty diff produced zero
	// applied hunks. The caller must not treat the base text as a
	// successful patch result.
	ErrNothingApplied = errors.New("no hunks could be applied")
)
