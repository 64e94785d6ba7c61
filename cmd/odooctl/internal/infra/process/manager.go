// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/AleutianAI/odooctl/cmd/odooctl/internal/util"
	"github.com/AleutianAI/odooctl/pkg/logging"
)

// -----------------------------------------------------------------------------
// Interface Definition
// -----------------------------------------------------------------------------

// Manager handles external process operations.
//
// # Description
//
// Abstracts all interaction with os/exec so callers can be tested without
// a container runtime or SELinux tooling on the host.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use from multiple goroutines.
type Manager interface {
	// LookPath resolves an executable in PATH.
	LookPath(name string) (string, error)

	// RunInDir executes a command in dir and captures its output.
	//
	// # Inputs
	//
	//   - ctx: Context for cancellation/timeout
	//   - dir: Working directory ("" for the current directory)
	//   - env: Extra KEY=VALUE entries appended to the inherited environment
	//   - name: Executable name or path
	//   - args: Command arguments
	//
	// # Outputs
	//
	//   - stdout, stderr: Captured output
	//   - exitCode: Process exit code, -1 if the process never ran
	//   - err: Non-nil only if the process could not be started or waited on
	RunInDir(ctx context.Context, dir string, env []string, name string, args ...string) (stdout, stderr string, exitCode int, err error)

	// RunStreaming executes a command and copies stdout and stderr to w
	// until the command exits or ctx is cancelled.
	RunStreaming(ctx context.Context, dir string, w io.Writer, name string, args ...string) error

	// RunInteractive executes a command attached to the terminal's stdin,
	// stdout and stderr.
	RunInteractive(ctx context.Context, dir string, name string, args ...string) error
}

// -----------------------------------------------------------------------------
// Default Implementation
// -----------------------------------------------------------------------------

// DefaultManager implements Manager using os/exec.
type DefaultManager struct {
	logger *logging.Logger
}

// NewDefaultManager creates a Manager that executes real processes.
// A nil logger disables command logging.
func NewDefaultManager(logger *logging.Logger) *DefaultManager {
	if logger == nil {
		logger = logging.Nop()
	}
	return &DefaultManager{logger: logger}
}

// LookPath implements Manager.
func (pm *DefaultManager) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// RunInDir implements Manager.
func (pm *DefaultManager) RunInDir(ctx context.Context, dir string, env []string, name string, args ...string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	exitCode := exitCodeFrom(cmd, err)

	pm.logger.Debug("exec",
		"cmd", commandLine(name, args),
		"dir", dir,
		"env", util.RedactEnv(env),
		"exit_code", exitCode,
		"duration", time.Since(start),
	)

	var exitErr *exec.ExitError
	if err != nil && errors.As(err, &exitErr) && ctx.Err() == nil {
		// Non-zero exit is reported through exitCode.
		return stdout.String(), stderr.String(), exitCode, nil
	}
	if err != nil {
		return stdout.String(), stderr.String(), exitCode, fmt.Errorf("run %s: %w", name, err)
	}
	return stdout.String(), stderr.String(), exitCode, nil
}

// RunStreaming implements Manager.
func (pm *DefaultManager) RunStreaming(ctx context.Context, dir string, w io.Writer, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = w
	cmd.Stderr = w

	pm.logger.Debug("exec streaming", "cmd", commandLine(name, args), "dir", dir)

	err := cmd.Run()
	if err != nil && ctx.Err() != nil {
		// Cancelled by the operator (Ctrl+C); not a failure.
		return nil
	}
	if err != nil {
		return util.WrapCommandError(err, commandLine(name, args), exitCodeFrom(cmd, err), "")
	}
	return nil
}

// RunInteractive implements Manager.
func (pm *DefaultManager) RunInteractive(ctx context.Context, dir string, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	pm.logger.Debug("exec interactive", "cmd", commandLine(name, args), "dir", dir)

	if err := cmd.Run(); err != nil {
		return util.WrapCommandError(err, commandLine(name, args), exitCodeFrom(cmd, err), "")
	}
	return nil
}

func exitCodeFrom(cmd *exec.Cmd, err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	return -1
}

func commandLine(name string, args []string) string {
	if len(args) == 0 {
		return name
	}
	return name + " " + strings.Join(util.RedactArgs(args), " ")
}

// -----------------------------------------------------------------------------
// Mock Implementation for Testing
// -----------------------------------------------------------------------------

// MockManager is a test double for Manager.
//
// Configure the mock by setting function fields before use. A nil
// RunInDirFunc returns empty output with exit code 0; nil LookPathFunc
// resolves every name to /usr/bin/<name>.
type MockManager struct {
	LookPathFunc       func(name string) (string, error)
	RunInDirFunc       func(ctx context.Context, dir string, env []string, name string, args ...string) (string, string, int, error)
	RunStreamingFunc   func(ctx context.Context, dir string, w io.Writer, name string, args ...string) error
	RunInteractiveFunc func(ctx context.Context, dir string, name string, args ...string) error

	// Calls records all method invocations for verification
	Calls []Call

	mu sync.Mutex
}

// Call records a single method invocation.
type Call struct {
	Method string
	Dir    string
	Env    []string
	Name   string
	Args   []string
}

// CommandLine returns "name arg1 arg2 ...".
func (c Call) CommandLine() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

func (m *MockManager) record(c Call) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, c)
}

// LookPath implements Manager.
func (m *MockManager) LookPath(name string) (string, error) {
	m.record(Call{Method: "LookPath", Name: name})
	if m.LookPathFunc == nil {
		return "/usr/bin/" + name, nil
	}
	return m.LookPathFunc(name)
}

// RunInDir implements Manager.
func (m *MockManager) RunInDir(ctx context.Context, dir string, env []string, name string, args ...string) (string, string, int, error) {
	m.record(Call{Method: "RunInDir", Dir: dir, Env: env, Name: name, Args: args})
	if m.RunInDirFunc == nil {
		return "", "", 0, nil
	}
	return m.RunInDirFunc(ctx, dir, env, name, args...)
}

// RunStreaming implements Manager.
func (m *MockManager) RunStreaming(ctx context.Context, dir string, w io.Writer, name string, args ...string) error {
	m.record(Call{Method: "RunStreaming", Dir: dir, Name: name, Args: args})
	if m.RunStreamingFunc == nil {
		return nil
	}
	return m.RunStreamingFunc(ctx, dir, w, name, args...)
}

// RunInteractive implements Manager.
func (m *MockManager) RunInteractive(ctx context.Context, dir string, name string, args ...string) error {
	m.record(Call{Method: "RunInteractive", Dir: dir, Name: name, Args: args})
	if m.RunInteractiveFunc == nil {
		return nil
	}
	return m.RunInteractiveFunc(ctx, dir, name, args...)
}

// GetCalls returns a copy of all recorded calls.
func (m *MockManager) GetCalls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]Call, len(m.Calls))
	copy(result, m.Calls)
	return result
}

// Reset clears all recorded calls.
func (m *MockManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
}

// Compile-time interface compliance check.
var (
	_ Manager = (*DefaultManager)(nil)
	_ Manager = (*MockManager)(nil)
)
