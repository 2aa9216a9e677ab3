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
	"fmt"
	"sync"
)

// StateMachine manages valid state transitions for the iteration loop.
//
// The state machine enforces the following transition graph:
//
//	INIT → GENERATE                 : Task accepted, run started
//	GENERATE → PARSE_AND_PATCH      : Diff produced against active artifact
//	GENERATE → QUALITY_CHECK        : Full artifact produced
//	PARSE_AND_PATCH → QUALITY_CHECK : Patch applied (fully or partially)
//	PARSE_AND_PATCH → GENERATE      : Patch error, regenerate
//	PARSE_AND_PATCH → EXHAUSTED     : Patch errors past the retry bound
//	QUALITY_CHECK → EXECUTE         : Output accepted
//	QUALITY_CHECK → GENERATE        : Degenerate output, regenerate
//	QUALITY_CHECK → EXHAUSTED       : Rejections past the retry bound
//	EXECUTE → REVIEW                : Run captured
//	REVIEW → EVALUATE               : Critique obtained
//	EVALUATE → PROGRESS_CHECK       : Verdict obtained
//	PROGRESS_CHECK → ACCEPTED       : Evaluator passed the iteration
//	PROGRESS_CHECK → EXHAUSTED      : Iteration budget reached
//	PROGRESS_CHECK → GENERATE       : Continue, possibly after rollback
//
// INIT is the only initial state; ACCEPTED and EXHAUSTED are the only
// terminal states.
//
// Thread Safety:
//
//	StateMachine is safe for concurrent use.
type StateMachine struct {
	mu sync.RWMutex

	// transitions maps (from, to) pairs that are valid.
	transitions map[TaskState]map[TaskState]bool
}

// NewStateMachine creates a new state machine with all valid transitions.
func NewStateMachine() *StateMachine {
	sm := &StateMachine{
		transitions: make(map[TaskState]map[TaskState]bool),
	}

	for _, state := range AllStates() {
		sm.transitions[state] = make(map[TaskState]bool)
	}

	sm.addTransition(StateInit, StateGenerate)

	sm.addTransition(StateGenerate, StatePatch)
	sm.addTransition(StateGenerate, StateQuality)

	sm.addTransition(StatePatch, StateQuality)
	sm.addTransition(StatePatch, StateGenerate)
	sm.addTransition(StatePatch, StateExhausted)

	sm.addTransition(StateQuality, StateExecute)
	sm.addTransition(StateQuality, StateGenerate)
	sm.addTransition(StateQuality, StateExhausted)

	sm.addTransition(StateExecute, StateReview)

	sm.addTransition(StateReview, StateEvaluate)

	sm.addTransition(StateEvaluate, StateProgress)

	sm.addTransition(StateProgress, StateAccepted)
	sm.addTransition(StateProgress, StateExhausted)
	sm.addTransition(StateProgress, StateGenerate)

	return sm
}

// addTransition registers a valid transition.
func (sm *StateMachine) addTransition(from, to TaskState) {
	sm.transitions[from][to] = true
}

// CanTransition checks if a transition from one state to another is valid.
//
// Thread Safety: This method is safe for concurrent use.
func (sm *StateMachine) CanTransition(from, to TaskState) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if toMap, ok := sm.transitions[from]; ok {
		return toMap[to]
	}
	return false
}

// Transition attempts to transition a session from its current state.
//
// Outputs:
//
//	error - ErrInvalidTransition if the transition is not allowed
//
// Thread Safety: This method is safe for concurrent use.
func (sm *StateMachine) Transition(session *Session, to TaskState) error {
	from := session.GetState()

	if !sm.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	session.SetState(to)
	return nil
}

// ValidTransitionsFrom returns all valid transitions from a given state.
func (sm *StateMachine) ValidTransitionsFrom(from TaskState) []TaskState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	var result []TaskState
	if toMap, ok := sm.transitions[from]; ok {
		for state, valid := range toMap {
			if valid {
				result = append(result, state)
			}
		}
	}
	return result
}

// TransitionReason provides a human-readable description of a transition.
func (sm *StateMachine) TransitionReason(from, to TaskState) string {
	key := from.String() + "->" + to.String()

	reasons := map[string]string{
		"INIT->GENERATE":                 "Task accepted, run started",
		"GENERATE->PARSE_AND_PATCH":      "Diff produced against active artifact",
		"GENERATE->QUALITY_CHECK":        "Full artifact produced",
		"PARSE_AND_PATCH->QUALITY_CHECK": "Patch applied",
		"PARSE_AND_PATCH->GENERATE":      "Patch unusable, regenerating",
		"PARSE_AND_PATCH->EXHAUSTED":     "Patch errors exceeded retry bound",
		"QUALITY_CHECK->EXECUTE":         "Output accepted by quality gate",
		"QUALITY_CHECK->GENERATE":        "Degenerate output, regenerating",
		"QUALITY_CHECK->EXHAUSTED":       "Quality rejections exceeded retry bound",
		"EXECUTE->REVIEW":                "Run output captured",
		"REVIEW->EVALUATE":               "Critique obtained",
		"EVALUATE->PROGRESS_CHECK":       "Verdict obtained",
		"PROGRESS_CHECK->ACCEPTED":       "Evaluator passed the iteration",
		"PROGRESS_CHECK->EXHAUSTED":      "Iteration budget reached",
		"PROGRESS_CHECK->GENERATE":       "Continuing to next iteration",
	}

	if reason, ok := reasons[key]; ok {
		return reason
	}
	return "Unknown transition"
}

// DefaultStateMachine is the shared state machine instance.
var DefaultStateMachine = NewStateMachine()
