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
	"errors"
	"strings"
	"testing"
)

const applyBase = `def add(a, b):
    return a + b

def sub(a, b):
    return a - b

def mul(a, b):
    return a * b
`

func TestApplyExactMatch(t *testing.T) {
	diffText := `@@ -1,2 +1,2 @@
 def add(a, b):
-    return a + b
+    return a + b + 0
`
	report, err := NewEngine().Apply(applyBase, diffText)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if report.Attempted != 1 || report.Applied != 1 || report.Skipped != 0 {
		t.Fatalf("report = %d/%d/%d, want 1/1/0",
			report.Attempted, report.Applied, report.Skipped)
	}
	if !strings.Contains(report.Text, "return a + b + 0") {
		t.Errorf("patched text missing replacement:\n%s", report.Text)
	}
	if strings.Count(report.Text, "return a + b + 0") != 1 {
		t.Errorf("replacement should appear exactly once")
	}
}

func TestApplyPartialFailure(t *testing.T) {
	// First hunk matches, second targets text that does not exist.
	diffText := `@@ -4,2 +4,2 @@
 def sub(a, b):
-    return a - b
+    return a - b - 0
@@ -10,2 +10,2 @@
 def div(a, b):
-    return a / b
+    return a // b
`
	report, err := NewEngine().Apply(applyBase, diffText)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if report.Attempted != 2 || report.Applied != 1 || report.Skipped != 1 {
		t.Fatalf("report = %d/%d/%d, want 2/1/1",
			report.Attempted, report.Applied, report.Skipped)
	}
	if report.Applied+report.Skipped != report.Attempted {
		t.Error("applied + skipped != attempted")
	}
	if !report.Partial() {
		t.Error("Partial() = false, want true")
	}

	skipped := report.Results[1]
	if skipped.Applied || skipped.Reason != SkipNoMatch {
		t.Errorf("second hunk = %+v, want skipped NO_MATCH", skipped)
	}

	// The region the failed hunk targeted must be untouched.
	if !strings.Contains(report.Text, "return a * b") {
		t.Errorf("unrelated text modified:\n%s", report.Text)
	}
	if strings.Contains(report.Text, "//") {
		t.Errorf("skipped hunk leaked into output:\n%s", report.Text)
	}
}

func TestApplyEmptyDiff(t *testing.T) {
	report, err := NewEngine().Apply(applyBase, "")
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if report.Attempted != 0 {
		t.Errorf("Attempted = %d, want 0", report.Attempted)
	}
	if report.Text != applyBase {
		t.Errorf("base text changed by empty diff")
	}
}

func TestApplyNothingAppliedIsError(t *testing.T) {
	diffText := `@@ -1,1 +1,1 @@
-no such line anywhere
+replacement
`
	report, err := NewEngine().Apply(applyBase, diffText)
	if !errors.Is(err, ErrNothingApplied) {
		t.Fatalf("Apply() error = %v, want ErrNothingApplied", err)
	}
	if report == nil || report.Text != applyBase {
		t.Error("base text must survive a fully failed patch")
	}
}

func TestApplyIgnoresWrongLineNumbers(t *testing.T) {
	// Header claims line 99; the content is at line 7.
	diffText := `@@ -99,2 +99,2 @@
 def mul(a, b):
-    return a * b
+    return a * b * 1
`
	report, err := NewEngine().Apply(applyBase, diffText)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if report.Applied != 1 {
		t.Fatalf("Applied = %d, want 1", report.Applied)
	}
	if !strings.Contains(report.Text, "return a * b * 1") {
		t.Errorf("replacement missing:\n%s", report.Text)
	}
}

func TestApplyRelaxesBadContext(t *testing.T) {
	// Leading context line "import math" does not exist in the base;
	// relaxation must trim it and still land the change.
	diffText := `@@ -1,3 +1,3 @@
 import math
 def add(a, b):
-    return a + b
+    return math.fsum([a, b])
`
	report, err := NewEngine().Apply(applyBase, diffText)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if report.Applied != 1 {
		t.Fatalf("Applied = %d, want 1 (context relaxation failed)", report.Applied)
	}
	if !strings.Contains(report.Text, "math.fsum([a, b])") {
		t.Errorf("replacement missing:\n%s", report.Text)
	}
	if strings.Contains(report.Text, "import math") {
		t.Errorf("phantom context line inserted:\n%s", report.Text)
	}
}

func TestApplyFuzzyWhitespace(t *testing.T) {
	// Base uses 4-space indentation; the hunk uses a tab.
	diffText := "@@ -4,2 +4,2 @@\n" +
		" def sub(a, b):\n" +
		"-\treturn a - b\n" +
		"+\treturn b - a\n"

	report, err := NewEngine().Apply(applyBase, diffText)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if report.Applied != 1 {
		t.Fatalf("Applied = %d, want 1 (fuzzy match failed)", report.Applied)
	}
	if !report.Results[0].Fuzzy {
		t.Error("expected fuzzy match to be flagged")
	}
	if !strings.Contains(report.Text, "return b - a") {
		t.Errorf("replacement missing:\n%s", report.Text)
	}
}

func TestApplyDocumentOrder(t *testing.T) {
	base := "a\nx\na\ny\n"
	// Both hunks' before-blocks are the line "a". The first consumes the
	// first occurrence; the second must match only past the cursor.
	diffText := `@@ -1,1 +1,1 @@
-a
+first
@@ -3,1 +3,1 @@
-a
+second
`
	report, err := NewEngine().Apply(base, diffText)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if report.Applied != 2 {
		t.Fatalf("Applied = %d, want 2", report.Applied)
	}
	want := "first\nx\nsecond\ny\n"
	if report.Text != want {
		t.Errorf("Text = %q, want %q", report.Text, want)
	}
	if report.Results[1].MatchLine <= report.Results[0].MatchLine {
		t.Error("hunks matched out of document order")
	}
}

func TestApplyHunkOrderRoundTrip(t *testing.T) {
	diffText := `@@ -1,2 +1,2 @@
 def add(a, b):
-    return a + b
+    return int(a + b)
@@ -7,2 +7,2 @@
 def mul(a, b):
-    return a * b
+    return int(a * b)
`
	report, err := NewEngine().Apply(applyBase, diffText)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if report.Applied != 2 {
		t.Fatalf("Applied = %d, want 2", report.Applied)
	}

	// Every after-block appears exactly once, in hunk order.
	first := strings.Index(report.Text, "return int(a + b)")
	second := strings.Index(report.Text, "return int(a * b)")
	if first < 0 || second < 0 || first > second {
		t.Errorf("after-blocks missing or out of order:\n%s", report.Text)
	}
	if strings.Count(report.Text, "return int(") != 2 {
		t.Errorf("after-blocks duplicated:\n%s", report.Text)
	}
}

func TestApplySearchReplaceForm(t *testing.T) {
	diffText := `<<<<<<< SEARCH
def sub(a, b):
    return a - b
=======
def sub(a, b):
    return a - b  # subtraction
>>>>>>> REPLACE
`
	report, err := NewEngine().Apply(applyBase, diffText)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if report.Applied != 1 {
		t.Fatalf("Applied = %d, want 1", report.Applied)
	}
	if !strings.Contains(report.Text, "# subtraction") {
		t.Errorf("replacement missing:\n%s", report.Text)
	}
}

func TestReportSummary(t *testing.T) {
	r := &Report{Attempted: 2, Applied: 1, Skipped: 1, Results: []HunkResult{
		{Index: 0, Applied: true},
		{Index: 1, Reason: SkipNoMatch},
	}}
	got := r.Summary()
	if !strings.Contains(got, "1/2") || !strings.Contains(got, "NO_MATCH") {
		t.Errorf("Summary() = %q", got)
	}

	empty := &Report{}
	if !strings.Contains(empty.Summary(), "empty diff") {
		t.Errorf("empty Summary() = %q", empty.Summary())
	}
}
