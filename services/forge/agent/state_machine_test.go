// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"errors"
	"testing"
)

func TestStateMachineValidTransitions(t *testing.T) {
	sm := NewStateMachine()

	tests := []struct {
		from, to TaskState
		valid    bool
	}{
		{StateInit, StateGenerate, true},
		{StateGenerate, StatePatch, true},
		{StateGenerate, StateQuality, true},
		{StatePatch, StateQuality, true},
		{StatePatch, StateGenerate, true},
		{StateQuality, StateExecute, true},
		{StateQuality, StateGenerate, true},
		{StateQuality, StateExhausted, true},
		{StateExecute, StateReview, true},
		{StateReview, StateEvaluate, true},
		{StateEvaluate, StateProgress, true},
		{StateProgress, StateAccepted, true},
		{StateProgress, StateExhausted, true},
		{StateProgress, StateGenerate, true},

		{StateInit, StateExecute, false},
		{StateGenerate, StateReview, false},
		{StateExecute, StateGenerate, false},
		{StateAccepted, StateGenerate, false},
		{StateExhausted, StateGenerate, false},
		{StateProgress, StateInit, false},
	}

	for _, tt := range tests {
		if got := sm.CanTransition(tt.from, tt.to); got != tt.valid {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.valid)
		}
	}
}

func TestStateMachineTerminalStates(t *testing.T) {
	sm := NewStateMachine()

	for _, terminal := range []TaskState{StateAccepted, StateExhausted} {
		if !terminal.IsTerminal() {
			t.Errorf("%s.IsTerminal() = false", terminal)
		}
		if got := sm.ValidTransitionsFrom(terminal); len(got) != 0 {
			t.Errorf("transitions from %s = %v, want none", terminal, got)
		}
	}

	for _, active := range []TaskState{StateInit, StateGenerate, StateProgress} {
		if active.IsTerminal() {
			t.Errorf("%s.IsTerminal() = true", active)
		}
	}
}

func TestStateMachineTransitionUpdatesSession(t *testing.T) {
	sm := NewStateMachine()
	session := NewSession(Task{Description: "x"})

	if got := session.GetState(); got != StateInit {
		t.Fatalf("initial state = %s, want INIT", got)
	}

	if err := sm.Transition(session, StateGenerate); err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
	if got := session.GetState(); got != StateGenerate {
		t.Errorf("state = %s, want GENERATE", got)
	}

	err := sm.Transition(session, StateReview)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Transition() error = %v, want ErrInvalidTransition", err)
	}
	if got := session.GetState(); got != StateGenerate {
		t.Errorf("state changed on refused transition: %s", got)
	}
}

func TestTransitionReasonKnownPairs(t *testing.T) {
	sm := NewStateMachine()

	if r := sm.TransitionReason(StateInit, StateGenerate); r == "Unknown transition" {
		t.Error("INIT->GENERATE should have a reason")
	}
	if r := sm.TransitionReason(StateReview, StateInit); r != "Unknown transition" {
		t.Errorf("bogus pair reason = %q", r)
	}
}
