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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// callWithRetry invokes fn with exponential backoff on transient failure.
//
// Description:
//
//	Collaborator infrastructure errors are retried up to maxRetries times
//	with backoff doubling per attempt. Context cancellation and deadline
//	expiry are never retried; the caller's context governs the whole run.
//	When retries run out the last error is wrapped in ErrRetriesExhausted
//	for the loop to escalate to a FatalTaskError.
func callWithRetry(ctx context.Context, logger *slog.Logger, op string,
	maxRetries int, baseBackoff time.Duration, fn func(context.Context) error) error {

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := baseBackoff * time.Duration(1<<(attempt-1))
			logger.Debug("retrying collaborator call",
				"op", op, "attempt", attempt, "backoff", backoff, "error", lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("%w: %s failed after %d attempts: %v",
		ErrRetriesExhausted, op, maxRetries+1, lastErr)
}
