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
	"errors"
	"fmt"
	"time"

	"github.com/AleutianAI/odooctl/cmd/odooctl/internal/infra/compose"
	"github.com/AleutianAI/odooctl/cmd/odooctl/internal/status"
)

var (
	// ErrNotRunning is returned by operations that need both services up.
	ErrNotRunning = errors.New("odoo stack is not running")

	// ErrNotCreated is returned by Restart when there are no containers.
	ErrNotCreated = errors.New("odoo stack has not been created")

	// ErrReadinessTimeout is returned when the services do not reach
	// "running" within the readiness budget.
	ErrReadinessTimeout = errors.New("services did not become ready")

	// ErrNoModules is returned by Test when there is nothing to test.
	ErrNoModules = errors.New("no modules to test")

	// ErrInvalidModule is returned for a module name Odoo would reject.
	ErrInvalidModule = errors.New("invalid module name")

	// ErrScratchDatabase is returned when the test database cannot be created.
	ErrScratchDatabase = errors.New("cannot create test database")

	// ErrInvalidOptions is returned by New for missing dependencies.
	ErrInvalidOptions = errors.New("invalid lifecycle options")
)

// ReadinessError reports the last observed state when WaitReady gives up.
type ReadinessError struct {
	Timeout time.Duration
	Last    status.Snapshot
	Err     error
}

// Error implements the error interface.
func (e *ReadinessError) Error() string {
	return fmt.Sprintf("%s within %s (%s)", ErrReadinessTimeout, e.Timeout, describeSnapshot(e.Last))
}

// Unwrap lets errors.Is match ErrReadinessTimeout and the last probe error.
func (e *ReadinessError) Unwrap() []error {
	return []error{ErrReadinessTimeout, e.Err}
}

func describeSnapshot(s status.Snapshot) string {
	return fmt.Sprintf("odoo %s, db %s", describeService(s.Odoo), describeService(s.DB))
}

func describeService(svc *compose.ServiceStatus) string {
	switch {
	case svc == nil:
		return "missing"
	case svc.Health != "":
		return svc.State + "/" + svc.Health
	default:
		return svc.State
	}
}
