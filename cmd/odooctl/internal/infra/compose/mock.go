// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package compose

import (
	"context"
	"io"
	"sync"
)

// MockComposeExecutor is a test double for ComposeExecutor.
//
// Each method can be configured with a custom function; unset functions
// succeed with empty results. Calls are recorded for verification.
//
// # Example
//
//	mock := &MockComposeExecutor{
//	    StatusFunc: func(ctx context.Context) (*ComposeStatus, error) {
//	        return RunningStatus("odoo", "db"), nil
//	    },
//	}
type MockComposeExecutor struct {
	UpFunc      func(context.Context, UpOptions) (*ComposeResult, error)
	DownFunc    func(context.Context, DownOptions) (*ComposeResult, error)
	RestartFunc func(context.Context, RestartOptions) (*ComposeResult, error)
	BuildFunc   func(context.Context, BuildOptions) (*ComposeResult, error)
	LogsFunc    func(context.Context, LogsOptions, io.Writer) error
	StatusFunc  func(context.Context) (*ComposeStatus, error)
	ExecFunc    func(context.Context, ExecOptions) (*ExecResult, error)
	ShellFunc   func(context.Context, ShellOptions) error
	VersionFunc func(context.Context) (string, error)

	File string

	UpCalls      []UpOptions
	DownCalls    []DownOptions
	RestartCalls []RestartOptions
	BuildCalls   []BuildOptions
	LogsCalls    []LogsOptions
	ExecCalls    []ExecOptions
	ShellCalls   []ShellOptions
	StatusCalls  int

	// Order records method names in call order.
	Order []string

	mu sync.Mutex
}

func (m *MockComposeExecutor) note(method string) {
	m.Order = append(m.Order, method)
}

// Up implements ComposeExecutor.
func (m *MockComposeExecutor) Up(ctx context.Context, opts UpOptions) (*ComposeResult, error) {
	m.mu.Lock()
	m.UpCalls = append(m.UpCalls, opts)
	m.note("Up")
	m.mu.Unlock()

	if m.UpFunc != nil {
		return m.UpFunc(ctx, opts)
	}
	return &ComposeResult{Success: true}, nil
}

// Down implements ComposeExecutor.
func (m *MockComposeExecutor) Down(ctx context.Context, opts DownOptions) (*ComposeResult, error) {
	m.mu.Lock()
	m.DownCalls = append(m.DownCalls, opts)
	m.note("Down")
	m.mu.Unlock()

	if m.DownFunc != nil {
		return m.DownFunc(ctx, opts)
	}
	return &ComposeResult{Success: true}, nil
}

// Restart implements ComposeExecutor.
func (m *MockComposeExecutor) Restart(ctx context.Context, opts RestartOptions) (*ComposeResult, error) {
	m.mu.Lock()
	m.RestartCalls = append(m.RestartCalls, opts)
	m.note("Restart")
	m.mu.Unlock()

	if m.RestartFunc != nil {
		return m.RestartFunc(ctx, opts)
	}
	return &ComposeResult{Success: true}, nil
}

// Build implements ComposeExecutor.
func (m *MockComposeExecutor) Build(ctx context.Context, opts BuildOptions) (*ComposeResult, error) {
	m.mu.Lock()
	m.BuildCalls = append(m.BuildCalls, opts)
	m.note("Build")
	m.mu.Unlock()

	if m.BuildFunc != nil {
		return m.BuildFunc(ctx, opts)
	}
	return &ComposeResult{Success: true}, nil
}

// Logs implements ComposeExecutor.
func (m *MockComposeExecutor) Logs(ctx context.Context, opts LogsOptions, w io.Writer) error {
	m.mu.Lock()
	m.LogsCalls = append(m.LogsCalls, opts)
	m.note("Logs")
	m.mu.Unlock()

	if m.LogsFunc != nil {
		return m.LogsFunc(ctx, opts, w)
	}
	return nil
}

// Status implements ComposeExecutor.
func (m *MockComposeExecutor) Status(ctx context.Context) (*ComposeStatus, error) {
	m.mu.Lock()
	m.StatusCalls++
	m.note("Status")
	m.mu.Unlock()

	if m.StatusFunc != nil {
		return m.StatusFunc(ctx)
	}
	return &ComposeStatus{Services: []ServiceStatus{}}, nil
}

// Exec implements ComposeExecutor.
func (m *MockComposeExecutor) Exec(ctx context.Context, opts ExecOptions) (*ExecResult, error) {
	m.mu.Lock()
	m.ExecCalls = append(m.ExecCalls, opts)
	m.note("Exec")
	m.mu.Unlock()

	if m.ExecFunc != nil {
		return m.ExecFunc(ctx, opts)
	}
	return &ExecResult{ExitCode: 0}, nil
}

// Shell implements ComposeExecutor.
func (m *MockComposeExecutor) Shell(ctx context.Context, opts ShellOptions) error {
	m.mu.Lock()
	m.ShellCalls = append(m.ShellCalls, opts)
	m.note("Shell")
	m.mu.Unlock()

	if m.ShellFunc != nil {
		return m.ShellFunc(ctx, opts)
	}
	return nil
}

// Version implements ComposeExecutor.
func (m *MockComposeExecutor) Version(ctx context.Context) (string, error) {
	if m.VersionFunc != nil {
		return m.VersionFunc(ctx)
	}
	return "2.29.0", nil
}

// ComposeFile implements ComposeExecutor.
func (m *MockComposeExecutor) ComposeFile() string {
	if m.File != "" {
		return m.File
	}
	return "compose.yaml"
}

// CallOrder returns a copy of the recorded method order.
func (m *MockComposeExecutor) CallOrder() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Order))
	copy(out, m.Order)
	return out
}

// RunningStatus builds a ComposeStatus with every named service running.
func RunningStatus(services ...string) *ComposeStatus {
	status := &ComposeStatus{Services: []ServiceStatus{}}
	for _, name := range services {
		status.Services = append(status.Services, ServiceStatus{Name: name, ContainerName: "odoo-" + name + "-1", State: "running"})
		status.Running++
	}
	return status
}

var _ ComposeExecutor = (*MockComposeExecutor)(nil)
