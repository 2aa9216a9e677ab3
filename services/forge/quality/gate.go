// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package quality screens raw generation output for degenerate patterns
// before it enters the iteration pipeline.
//
// The gate is deliberately coarse. It exists to catch a malfunctioning
// generator (one character repeated for thousands of columns, or a short
// block echoed until a length limit cut it off), not to judge whether the
// output is good code. Anything plausible passes; review and evaluation
// decide quality.
//
// Thread Safety:
//
//	All types in this package are safe for concurrent use.
package quality

import (
	"fmt"
	"strings"
	"sync"
)

// Issue codes reported by the built-in checkers.
const (
	CodeLineTooLong = "LINE_TOO_LONG"
	CodeLineRun     = "REPEATED_LINE_RUN"
	CodeBlockCycle  = "REPEATED_BLOCK_CYCLE"
)

// Issue describes one degenerate pattern found in the text.
type Issue struct {
	// Code is a machine-readable reason code.
	Code string `json:"code"`

	// Message is a human-readable description.
	Message string `json:"message"`

	// Line is the 1-based line where the pattern starts.
	Line int `json:"line"`
}

// Result is the outcome of screening one generation output.
type Result struct {
	// Accepted is true when no checker found a degenerate pattern.
	Accepted bool `json:"accepted"`

	// Issues contains every pattern found.
	Issues []Issue `json:"issues,omitempty"`

	// ChecksRun is the number of checkers executed.
	ChecksRun int `json:"checks_run"`
}

// Reason returns the first issue's code, or "" when accepted.
func (r *Result) Reason() string {
	if len(r.Issues) == 0 {
		return ""
	}
	return r.Issues[0].Code
}

// Config controls the gate's thresholds.
type Config struct {
	// Enabled turns the gate off entirely when false; everything passes.
	Enabled bool

	// MaxLineLength rejects output containing any single line longer than
	// this many bytes.
	MaxLineLength int

	// MaxIdenticalRun rejects a contiguous run of more than this many
	// identical non-blank lines.
	MaxIdenticalRun int

	// MaxCycleLen is the longest line-block period the cycle checker
	// looks for.
	MaxCycleLen int

	// MaxCycleRepeats rejects a block of 2..MaxCycleLen lines repeated
	// contiguously at least this many times.
	MaxCycleRepeats int
}

// DefaultConfig returns production thresholds.
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		MaxLineLength:   1000,
		MaxIdenticalRun: 10,
		MaxCycleLen:     8,
		MaxCycleRepeats: 10,
	}
}

// Checker examines text for one class of degenerate pattern.
type Checker interface {
	// Name returns the checker's name for logging.
	Name() string

	// Check returns any issues found in the text.
	Check(text string) []Issue
}

// Gate screens raw generation output.
type Gate interface {
	// Check runs all checkers over the text.
	Check(text string) Result
}

// DefaultGate runs a registered set of checkers.
type DefaultGate struct {
	mu       sync.RWMutex
	cfg      Config
	checkers []Checker
}

// NewGate creates a gate with the built-in checkers registered.
func NewGate(cfg Config) *DefaultGate {
	g := &DefaultGate{cfg: cfg}
	g.RegisterChecker(&LineLengthChecker{MaxLength: cfg.MaxLineLength})
	g.RegisterChecker(&LineRunChecker{MaxRun: cfg.MaxIdenticalRun})
	g.RegisterChecker(&BlockCycleChecker{MaxCycleLen: cfg.MaxCycleLen, MaxRepeats: cfg.MaxCycleRepeats})
	return g
}

// RegisterChecker adds a checker to the gate.
func (g *DefaultGate) RegisterChecker(c Checker) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.checkers = append(g.checkers, c)
}

// Check runs all checkers over the text.
func (g *DefaultGate) Check(text string) Result {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if !g.cfg.Enabled {
		return Result{Accepted: true}
	}

	result := Result{Accepted: true}
	for _, c := range g.checkers {
		issues := c.Check(text)
		result.ChecksRun++
		if len(issues) > 0 {
			result.Accepted = false
			result.Issues = append(result.Issues, issues...)
		}
	}
	return result
}

// LineLengthChecker flags any single line exceeding MaxLength bytes.
type LineLengthChecker struct {
	MaxLength int
}

func (c *LineLengthChecker) Name() string { return "line_length" }

func (c *LineLengthChecker) Check(text string) []Issue {
	if c.MaxLength <= 0 {
		return nil
	}
	var issues []Issue
	for i, line := range strings.Split(text, "\n") {
		if len(line) > c.MaxLength {
			issues = append(issues, Issue{
				Code:    CodeLineTooLong,
				Message: fmt.Sprintf("line %d is %d bytes (limit %d)", i+1, len(line), c.MaxLength),
				Line:    i + 1,
			})
			// One finding is enough to reject; don't flood the report.
			break
		}
	}
	return issues
}

// LineRunChecker flags contiguous runs of identical non-blank lines.
type LineRunChecker struct {
	MaxRun int
}

func (c *LineRunChecker) Name() string { return "line_run" }

func (c *LineRunChecker) Check(text string) []Issue {
	if c.MaxRun <= 0 {
		return nil
	}
	lines := strings.Split(text, "\n")
	run, start := 1, 0
	for i := 1; i <= len(lines); i++ {
		if i < len(lines) && lines[i] == lines[i-1] {
			run++
			continue
		}
		if run > c.MaxRun && strings.TrimSpace(lines[start]) != "" {
			return []Issue{{
				Code:    CodeLineRun,
				Message: fmt.Sprintf("line repeated %d times starting at line %d (limit %d)", run, start+1, c.MaxRun),
				Line:    start + 1,
			}}
		}
		run, start = 1, i
	}
	return nil
}

// BlockCycleChecker flags a short block of lines repeated contiguously, the
// signature of a generator stuck in a loop until its token limit.
type BlockCycleChecker struct {
	MaxCycleLen int
	MaxRepeats  int
}

func (c *BlockCycleChecker) Name() string { return "block_cycle" }

func (c *BlockCycleChecker) Check(text string) []Issue {
	if c.MaxCycleLen < 2 || c.MaxRepeats <= 0 {
		return nil
	}
	lines := strings.Split(text, "\n")

	for k := 2; k <= c.MaxCycleLen; k++ {
		repeats := 1
		for i := k; i+k <= len(lines); i += k {
			if blockEqual(lines[i:i+k], lines[i-k:i]) {
				repeats++
				if repeats >= c.MaxRepeats && !blockBlank(lines[i:i+k]) {
					start := i - (repeats-1)*k
					return []Issue{{
						Code: CodeBlockCycle,
						Message: fmt.Sprintf("%d-line block repeated %d times starting at line %d (limit %d)",
							k, repeats, start+1, c.MaxRepeats),
						Line: start + 1,
					}}
				}
			} else {
				repeats = 1
			}
		}
	}
	return nil
}

func blockEqual(a, b []string) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func blockBlank(lines []string) bool {
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			return false
		}
	}
	return true
}

// MockGate is a test double implementing Gate.
type MockGate struct {
	mu sync.Mutex

	// CheckFunc overrides Check behavior when set.
	CheckFunc func(text string) Result

	// Calls records every text passed to Check.
	Calls []string
}

// Check records the call and delegates to CheckFunc, accepting by default.
func (m *MockGate) Check(text string) Result {
	m.mu.Lock()
	m.Calls = append(m.Calls, text)
	m.mu.Unlock()

	if m.CheckFunc != nil {
		return m.CheckFunc(text)
	}
	return Result{Accepted: true, ChecksRun: 1}
}
