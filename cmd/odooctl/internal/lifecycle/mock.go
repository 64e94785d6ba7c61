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
	"io"
	"sync"

	"github.com/compose-spec/compose-go/v2/types"

	"github.com/AleutianAI/odooctl/cmd/odooctl/config"
	"github.com/AleutianAI/odooctl/cmd/odooctl/internal/infra/compose"
	"github.com/AleutianAI/odooctl/cmd/odooctl/internal/permissions"
	"github.com/AleutianAI/odooctl/cmd/odooctl/internal/status"
	"github.com/AleutianAI/odooctl/pkg/ux"
)

// MockLifecycle is a test double for Lifecycle.
//
// Unset function fields succeed with empty results, except Clean, which
// reports whether confirmation matched. Every call is recorded in Calls.
type MockLifecycle struct {
	StartFunc          func(ctx context.Context) (*StartResult, error)
	StopFunc           func(ctx context.Context) error
	RestartFunc        func(ctx context.Context) error
	RebuildFunc        func(ctx context.Context) (*StartResult, error)
	CleanFunc          func(ctx context.Context, confirmation string) (bool, error)
	LogsFunc           func(ctx context.Context, opts LogsOptions, w io.Writer) error
	ShellFunc          func(ctx context.Context, opts compose.ShellOptions) error
	TestFunc           func(ctx context.Context, opts TestOptions) (*TestResult, error)
	FixPermissionsFunc func(ctx context.Context) (*permissions.Report, error)
	StatusFunc         func(ctx context.Context) status.Snapshot
	ValidateFunc       func(ctx context.Context) (*types.Project, error)

	Cfg *config.DeploymentConfig

	Calls         []string
	Confirmations []string
	LogsCalls     []LogsOptions
	ShellCalls    []compose.ShellOptions
	TestCalls     []TestOptions

	mu sync.Mutex
}

func (m *MockLifecycle) record(name string) {
	m.mu.Lock()
	m.Calls = append(m.Calls, name)
	m.mu.Unlock()
}

// Start implements Lifecycle.
func (m *MockLifecycle) Start(ctx context.Context) (*StartResult, error) {
	m.record("Start")
	if m.StartFunc != nil {
		return m.StartFunc(ctx)
	}
	return &StartResult{URL: m.Config().URL()}, nil
}

// Stop implements Lifecycle.
func (m *MockLifecycle) Stop(ctx context.Context) error {
	m.record("Stop")
	if m.StopFunc != nil {
		return m.StopFunc(ctx)
	}
	return nil
}

// Restart implements Lifecycle.
func (m *MockLifecycle) Restart(ctx context.Context) error {
	m.record("Restart")
	if m.RestartFunc != nil {
		return m.RestartFunc(ctx)
	}
	return nil
}

// Rebuild implements Lifecycle.
func (m *MockLifecycle) Rebuild(ctx context.Context) (*StartResult, error) {
	m.record("Rebuild")
	if m.RebuildFunc != nil {
		return m.RebuildFunc(ctx)
	}
	return &StartResult{URL: m.Config().URL()}, nil
}

// Clean implements Lifecycle.
func (m *MockLifecycle) Clean(ctx context.Context, confirmation string) (bool, error) {
	m.record("Clean")
	m.mu.Lock()
	m.Confirmations = append(m.Confirmations, confirmation)
	m.mu.Unlock()
	if m.CleanFunc != nil {
		return m.CleanFunc(ctx, confirmation)
	}
	return ux.IsConfirmed(confirmation), nil
}

// Logs implements Lifecycle.
func (m *MockLifecycle) Logs(ctx context.Context, opts LogsOptions, w io.Writer) error {
	m.record("Logs")
	m.mu.Lock()
	m.LogsCalls = append(m.LogsCalls, opts)
	m.mu.Unlock()
	if m.LogsFunc != nil {
		return m.LogsFunc(ctx, opts, w)
	}
	return nil
}

// Shell implements Lifecycle.
func (m *MockLifecycle) Shell(ctx context.Context, opts compose.ShellOptions) error {
	m.record("Shell")
	m.mu.Lock()
	m.ShellCalls = append(m.ShellCalls, opts)
	m.mu.Unlock()
	if m.ShellFunc != nil {
		return m.ShellFunc(ctx, opts)
	}
	return nil
}

// Test implements Lifecycle.
func (m *MockLifecycle) Test(ctx context.Context, opts TestOptions) (*TestResult, error) {
	m.record("Test")
	m.mu.Lock()
	m.TestCalls = append(m.TestCalls, opts)
	m.mu.Unlock()
	if m.TestFunc != nil {
		return m.TestFunc(ctx, opts)
	}
	return &TestResult{Modules: opts.Modules, Passed: true, Dropped: true}, nil
}

// FixPermissions implements Lifecycle.
func (m *MockLifecycle) FixPermissions(ctx context.Context) (*permissions.Report, error) {
	m.record("FixPermissions")
	if m.FixPermissionsFunc != nil {
		return m.FixPermissionsFunc(ctx)
	}
	return &permissions.Report{}, nil
}

// Status implements Lifecycle.
func (m *MockLifecycle) Status(ctx context.Context) status.Snapshot {
	m.record("Status")
	if m.StatusFunc != nil {
		return m.StatusFunc(ctx)
	}
	return status.Snapshot{State: status.NotCreated}
}

// Validate implements Lifecycle.
func (m *MockLifecycle) Validate(ctx context.Context) (*types.Project, error) {
	m.record("Validate")
	if m.ValidateFunc != nil {
		return m.ValidateFunc(ctx)
	}
	return &types.Project{Name: "odoo"}, nil
}

// Config implements Lifecycle.
func (m *MockLifecycle) Config() *config.DeploymentConfig {
	if m.Cfg == nil {
		return config.Default()
	}
	return m.Cfg
}

// GetCalls returns a copy of the recorded method names.
func (m *MockLifecycle) GetCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Calls))
	copy(out, m.Calls)
	return out
}

var _ Lifecycle = (*MockLifecycle)(nil)
