// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/sethvargo/go-retry"

	"github.com/AleutianAI/odooctl/cmd/odooctl/internal/status"
)

var errNotReady = errors.New("not ready")

// WaitReady polls the stack state until both services run.
//
// # Description
//
// Uses a constant backoff of ReadinessInterval capped at ReadinessTimeout.
// Every probe bypasses the status cache.
//
// # Outputs
//
//   - error: nil once Running, ctx.Err() on cancellation, otherwise a
//     *ReadinessError matching ErrReadinessTimeout
func (l *DefaultLifecycle) WaitReady(ctx context.Context) error {
	backoff := retry.WithMaxDuration(l.readinessTimeout, retry.NewConstant(l.readinessInterval))

	var last status.Snapshot
	attempts := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		l.state.Invalidate()
		last = l.state.Snapshot(ctx)
		if last.State == status.Running {
			return nil
		}
		l.logger.Debug("waiting for services", "attempt", attempts, "state", last.State.String())
		if last.Err != nil {
			return retry.RetryableError(last.Err)
		}
		return retry.RetryableError(fmt.Errorf("%w: %s", errNotReady, describeSnapshot(last)))
	})
	if err == nil {
		l.logger.Debug("services ready", "attempts", attempts)
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return &ReadinessError{Timeout: l.readinessTimeout, Last: last, Err: err}
}
