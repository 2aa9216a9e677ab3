// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sandbox

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/AleutianAI/forge/services/forge/history"
)

// shRunner executes artifacts with /bin/sh so the tests do not depend on a
// Python installation.
func shRunner(t *testing.T) *Runner {
	t.Helper()
	return NewRunner(Config{
		Command: []string{"/bin/sh"},
		Suffix:  ".sh",
		WorkDir: t.TempDir(),
	})
}

func TestExecuteCapturesOutput(t *testing.T) {
	r := shRunner(t)

	res, err := r.Execute(context.Background(), "echo hello\necho oops >&2\n", nil, 5*time.Second)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.ExitCode != 0 || res.FailureClass != history.FailureNone {
		t.Errorf("result = %+v", res)
	}
	if strings.TrimSpace(res.Stdout) != "hello" {
		t.Errorf("Stdout = %q", res.Stdout)
	}
	if strings.TrimSpace(res.Stderr) != "oops" {
		t.Errorf("Stderr = %q", res.Stderr)
	}
}

func TestExecutePassesArgs(t *testing.T) {
	r := shRunner(t)

	res, err := r.Execute(context.Background(), `echo "$1-$2"`+"\n", []string{"a", "b"}, 5*time.Second)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if strings.TrimSpace(res.Stdout) != "a-b" {
		t.Errorf("Stdout = %q", res.Stdout)
	}
}

func TestExecuteNonZeroExitIsNotAnError(t *testing.T) {
	r := shRunner(t)

	res, err := r.Execute(context.Background(), "exit 3\n", nil, 5*time.Second)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", res.ExitCode)
	}
	if res.FailureClass != history.FailureRuntime {
		t.Errorf("FailureClass = %s, want RUNTIME", res.FailureClass)
	}
	if !res.Failed() {
		t.Error("Failed() = false")
	}
}

func TestExecuteTimeout(t *testing.T) {
	r := shRunner(t)

	res, err := r.Execute(context.Background(), "sleep 10\n", nil, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.FailureClass != history.FailureTimeout {
		t.Errorf("FailureClass = %s, want TIMEOUT", res.FailureClass)
	}
	if res.ExitCode != -1 {
		t.Errorf("ExitCode = %d, want -1", res.ExitCode)
	}
	if !strings.Contains(res.Stderr, "timeout") {
		t.Errorf("Stderr = %q", res.Stderr)
	}
}

func TestExecuteMissingInterpreterIsAnError(t *testing.T) {
	r := NewRunner(Config{
		Command: []string{"/no/such/interpreter"},
		Suffix:  ".py",
		WorkDir: t.TempDir(),
	})

	if _, err := r.Execute(context.Background(), "print('x')\n", nil, time.Second); err == nil {
		t.Fatal("expected infrastructure error for missing interpreter")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		stderr string
		want   history.FailureClass
	}{
		{`File "x.py", line 1\n    def f(\nSyntaxError: unexpected EOF`, history.FailureSyntax},
		{"IndentationError: expected an indented block", history.FailureSyntax},
		{"TabError: inconsistent use of tabs", history.FailureSyntax},
		{"ZeroDivisionError: division by zero", history.FailureRuntime},
		{"", history.FailureRuntime},
	}
	for _, tt := range tests {
		if got := Classify(tt.stderr); got != tt.want {
			t.Errorf("Classify(%q) = %s, want %s", tt.stderr, got, tt.want)
		}
	}
}

func TestCheckSyntax(t *testing.T) {
	ctx := context.Background()

	if rep := CheckSyntax(ctx, "def f():\n    return 1\n", LangPython); rep == nil || !rep.OK {
		t.Errorf("valid python rejected: %+v", rep)
	}
	rep := CheckSyntax(ctx, "def f(:\n    return\n", LangPython)
	if rep == nil || rep.OK {
		t.Fatalf("broken python accepted: %+v", rep)
	}
	if rep.Line < 1 {
		t.Errorf("error line = %d", rep.Line)
	}
	if rep := CheckSyntax(ctx, "whatever", "cobol"); rep != nil {
		t.Errorf("unknown language should skip the screen, got %+v", rep)
	}
}

func TestSyntaxScreenShortCircuitsExecution(t *testing.T) {
	r := NewRunner(Config{
		// The interpreter does not exist; the screen must reject the
		// artifact before it is ever invoked.
		Command:  []string{"/no/such/interpreter"},
		Suffix:   ".py",
		Language: LangPython,
		WorkDir:  t.TempDir(),
	})

	res, err := r.Execute(context.Background(), "def f(:\n", nil, time.Second)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.FailureClass != history.FailureSyntax {
		t.Errorf("FailureClass = %s, want SYNTAX_LEVEL", res.FailureClass)
	}
}
