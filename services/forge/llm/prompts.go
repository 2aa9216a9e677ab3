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
	"fmt"
	"strings"

	"github.com/AleutianAI/forge/services/forge/agent"
)

const (
	generateSystem = "You are an AI coding agent. You write complete, runnable Python programs."

	reviewSystem = "You are a Python code reviewer. Be direct and specific; avoid polite language."

	evaluateSystem = "You are an AI reviewer deciding whether a code iteration meets its goals."
)

func goalList(goals []string) string {
	var b strings.Builder
	for _, g := range goals {
		fmt.Fprintf(&b, "- %s\n", strings.TrimSpace(g))
	}
	return b.String()
}

// GeneratePrompt builds the generation prompt for one iteration.
//
// Description:
//
//	The first iteration asks for a full program. Refinement iterations
//	include the active artifact, the last execution result, and the
//	reviewer's feedback; in diff mode the model is asked for a unified
//	diff against the artifact instead of a full rewrite.
func GeneratePrompt(req agent.GenerateRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Your job is to write Python code based on the following use case:\nUse Case: %s\n",
		strings.TrimSpace(req.Task.Description))
	if len(req.Task.Goals) > 0 {
		fmt.Fprintf(&b, "Your goals are:\n%s", goalList(req.Task.Goals))
	}

	if req.PriorArtifact != "" {
		fmt.Fprintf(&b, "\nPreviously generated code:\n```python\n%s\n```\n", req.PriorArtifact)
	}
	if req.PriorExecution != nil && req.PriorExecution.Failed() {
		fmt.Fprintf(&b, "\nThe previous version failed to run (%s):\n%s\n",
			req.PriorExecution.FailureClass, strings.TrimSpace(req.PriorExecution.Stderr))
	}
	if req.PriorReview != "" {
		fmt.Fprintf(&b, "\nFeedback on previous version:\n%s\n", req.PriorReview)
	}
	if req.PatchSummary != "" {
		fmt.Fprintf(&b, "\nNote on your last diff: %s. Hunks that were skipped did not reach the code; re-send those changes.\n",
			req.PatchSummary)
	}

	if req.WantDiff {
		b.WriteString("\nReturn your changes as a unified diff against the previously generated code, " +
			"in a fenced ```diff block. Include a few lines of surrounding context per hunk. " +
			"Do not return the full program.")
	} else {
		b.WriteString("\nPlease return only the revised Python code in a fenced ```python block. " +
			"Do not include comments or explanations outside the code.")
	}
	return b.String()
}

// ReviewPrompt builds the critique prompt for one iteration.
func ReviewPrompt(req agent.ReviewRequest) string {
	var b strings.Builder

	b.WriteString("A code snippet is shown below. Based on the following goals:\n")
	b.WriteString(goalList(req.Task.Goals))
	b.WriteString("Also provided are the results of executing the program and its output.\n" +
		"Critique this code and identify if the goals are met. " +
		"Examine any test output in the program output and list every failure clearly. " +
		"Mention if improvements are needed for clarity, simplicity, correctness, edge case handling, or test coverage.\n" +
		"Classify each issue on its own line as 'Minor:', 'Major:', or 'Critical:'. " +
		"Minor means small improvements that may or may not be implemented. " +
		"Major means significant changes that must be implemented. " +
		"Critical means the code does not meet the goal at all.\n")

	if req.PriorReview != "" {
		fmt.Fprintf(&b, "\nYour critique of the previous version was:\n\"\"\"\n%s\n\"\"\"\n"+
			"Note which of those issues the new version resolved and which remain.\n",
			strings.TrimSpace(req.PriorReview))
	}
	if req.PatchSummary != "" {
		fmt.Fprintf(&b, "\nThis iteration was produced by a patch (%s).\n", req.PatchSummary)
	}
	fmt.Fprintf(&b, "\nCode:\n```python\n%s\n```\n", req.Artifact)

	exec := req.Execution
	fmt.Fprintf(&b, "\nProgram execution result: exit code %d", exec.ExitCode)
	if exec.Failed() {
		fmt.Fprintf(&b, " (%s)", exec.FailureClass)
	}
	b.WriteString("\n")
	if exec.Stderr != "" {
		fmt.Fprintf(&b, "\nProgram errors:\n%s\n", strings.TrimSpace(exec.Stderr))
	}
	fmt.Fprintf(&b, "\nProgram output:\n%s\n", strings.TrimSpace(exec.Stdout))
	return b.String()
}

// EvaluatePrompt builds the verdict prompt from the reviewer's feedback.
//
// Outputs:
//
//	A prompt asking for a strict JSON verdict so the answer can be parsed
//	without scraping prose.
func EvaluatePrompt(goals []string, feedback string) string {
	var b strings.Builder

	b.WriteString("Here are the goals:\n")
	b.WriteString(goalList(goals))
	fmt.Fprintf(&b, "Here is the feedback on the code:\n\"\"\"\n%s\n\"\"\"\n", strings.TrimSpace(feedback))
	b.WriteString("\nBased on the feedback above, have the goals been met? " +
		"If any goal is unmet or only partially met, the answer is false. " +
		"If the feedback contains any issue higher than Minor, the answer is false.\n" +
		"Also rate the current code from 0 (nothing works) to 100 (all goals fully met).\n" +
		`Respond with only a JSON object of the form {"pass": true, "score": 85} and nothing else.`)
	return b.String()
}
