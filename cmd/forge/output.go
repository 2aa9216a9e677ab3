// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/AleutianAI/forge/services/forge/agent"
	"github.com/AleutianAI/forge/services/forge/llm"
)

// Exit codes for the run command.
const (
	ExitAccepted  = 0 // Every task reached ACCEPTED
	ExitError     = 1 // A fatal error stopped a run
	ExitExhausted = 2 // A task ran out of budget
)

// timeUnit is the rounding granularity for printed durations.
const timeUnit = 10 * time.Millisecond

// Forge color palette.
var (
	colorEmber  = lipgloss.Color("#E8793A") // Ember orange - brand, highlights
	colorIron   = lipgloss.Color("#8A8D91") // Iron gray - muted text
	colorAccept = lipgloss.Color("#2CD7C7") // Teal - accepted runs
	colorError  = lipgloss.Color("#E74C3C") // Red - failures
)

var styles = struct {
	Title    lipgloss.Style
	Muted    lipgloss.Style
	Accepted lipgloss.Style
	Failed   lipgloss.Style
	Box      lipgloss.Style
}{
	Title:    lipgloss.NewStyle().Bold(true).Foreground(colorEmber),
	Muted:    lipgloss.NewStyle().Foreground(colorIron),
	Accepted: lipgloss.NewStyle().Bold(true).Foreground(colorAccept),
	Failed:   lipgloss.NewStyle().Bold(true).Foreground(colorError),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorEmber).
		Padding(0, 1),
}

// stdoutIsTerminal reports whether styled output makes sense.
func stdoutIsTerminal() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// isStdinTerminal reports whether stdin is attached to a terminal rather
// than a pipe.
func isStdinTerminal() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
}

// printResult renders one run result to stdout, styled when stdout is a
// terminal and as plain text otherwise.
func printResult(label string, result *agent.RunResult, acct *llm.Accountant) {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(result)
		return
	}

	var b strings.Builder
	if stdoutIsTerminal() {
		outcome := styles.Accepted.Render(string(result.Outcome))
		if result.Outcome != agent.OutcomeAccepted {
			outcome = styles.Failed.Render(string(result.Outcome))
		}
		fmt.Fprintf(&b, "%s  %s\n", styles.Title.Render(label), outcome)
		if result.Reason != "" {
			fmt.Fprintf(&b, "%s\n", styles.Muted.Render(result.Reason))
		}
		fmt.Fprintf(&b, "iterations %d  best score %d (iteration %d)  %s\n",
			result.Iterations, result.BestScore, result.BestSeq, result.Duration.Round(timeUnit))
		if acct != nil {
			fmt.Fprintf(&b, "%s\n", styles.Muted.Render(
				fmt.Sprintf("llm calls %d, tokens %d", acct.Calls(), acct.Total().Total())))
		}
		fmt.Println(styles.Box.Render(strings.TrimRight(b.String(), "\n")))
		return
	}

	fmt.Fprintf(&b, "%s: %s\n", label, result.Outcome)
	if result.Reason != "" {
		fmt.Fprintf(&b, "reason: %s\n", result.Reason)
	}
	fmt.Fprintf(&b, "iterations: %d, best score: %d (iteration %d), duration: %s\n",
		result.Iterations, result.BestScore, result.BestSeq, result.Duration.Round(timeUnit))
	if acct != nil {
		fmt.Fprintf(&b, "llm calls: %d, tokens: %d\n", acct.Calls(), acct.Total().Total())
	}
	fmt.Print(b.String())
}
