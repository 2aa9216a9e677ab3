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
	"fmt"

	"github.com/AleutianAI/forge/services/forge/history"
)

var (
	// ErrInvalidTransition is returned for a disallowed state transition.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrQualityRejected marks a generation discarded by the quality gate.
	ErrQualityRejected = errors.New("generation rejected by quality gate")

	// ErrRetriesExhausted marks a collaborator call that kept failing past
	// its retry bound.
	ErrRetriesExhausted = errors.New("collaborator retries exhausted")
)

// FatalTaskError terminates a run. It is raised only when collaborator
// retries are exhausted or the loop cannot proceed at all; per-iteration
// failures (bad patches, failing runs, poor scores) never produce it.
type FatalTaskError struct {
	// Phase is the loop state where the failure occurred.
	Phase TaskState

	// Iterations is how many iterations had completed.
	Iterations int

	// History is the full iteration sequence up to the failure, for
	// diagnosis.
	History []history.Iteration

	// Err is the underlying failure.
	Err error
}

func (e *FatalTaskError) Error() string {
	return fmt.Sprintf("fatal task failure in %s after %d iterations: %v",
		e.Phase, e.Iterations, e.Err)
}

func (e *FatalTaskError) Unwrap() error { return e.Err }

// IsFatal reports whether err is (or wraps) a FatalTaskError.
func IsFatal(err error) bool {
	var fe *FatalTaskError
	return errors.As(err, &fe)
}
