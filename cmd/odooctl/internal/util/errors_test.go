// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package util

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// CommandError Tests
// =============================================================================

func TestCommandError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *CommandError
		want string
	}{
		{
			name: "with stderr",
			err:  &CommandError{Command: "docker compose up -d", ExitCode: 1, Stderr: "port is already allocated"},
			want: "docker compose up -d (exit 1): port is already allocated",
		},
		{
			name: "with wrapped",
			err:  &CommandError{Command: "docker compose down", ExitCode: -1, Wrapped: errors.New("signal: killed")},
			want: "docker compose down (exit -1): signal: killed",
		},
		{
			name: "bare",
			err:  &CommandError{Command: "getenforce", ExitCode: 2},
			want: "getenforce (exit 2)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestNewCommandError_TrimsStderr(t *testing.T) {
	err := NewCommandError("docker", 1, "\n  no such service: odoo \n", nil)
	assert.Equal(t, "no such service: odoo", err.Stderr)
	assert.True(t, err.HasStderr())
}

func TestCommandError_Unwrap(t *testing.T) {
	original := errors.New("executable file not found")
	err := NewCommandError("docker", -1, "", original)
	assert.True(t, errors.Is(err, original))
}

func TestWrapCommandError(t *testing.T) {
	assert.Nil(t, WrapCommandError(nil, "docker", 0, ""))

	existing := NewCommandError("docker compose build", 2, "failed", nil)
	wrapped := fmt.Errorf("rebuild: %w", existing)
	assert.Same(t, existing, WrapCommandError(wrapped, "other", 9, "other"))

	plain := errors.New("boom")
	got := WrapCommandError(plain, "docker compose ps", 1, " stderr ")
	require.NotNil(t, got)
	assert.Equal(t, "docker compose ps", got.Command)
	assert.Equal(t, "stderr", got.Stderr)
	assert.ErrorIs(t, got, plain)
}

func TestExtractStderr(t *testing.T) {
	assert.Equal(t, "", ExtractStderr(nil))
	assert.Equal(t, "", ExtractStderr(errors.New("plain")))

	cmdErr := NewCommandError("docker compose up", 1, "bind: permission denied", nil)
	chained := fmt.Errorf("start: %w", fmt.Errorf("compose: %w", cmdErr))
	assert.Equal(t, "bind: permission denied", ExtractStderr(chained))
}

// =============================================================================
// ExitError Tests
// =============================================================================

func TestExitCodeOf(t *testing.T) {
	missing := errors.New("docker not found")
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"plain error", errors.New("x"), 1},
		{"exit error", NewExitError(1, missing), 1},
		{"zero exit error", NewExitError(0, missing), 0},
		{"wrapped exit error", fmt.Errorf("preflight: %w", NewExitError(3, missing)), 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCodeOf(tt.err))
		})
	}
}

func TestExitError_ErrorAndUnwrap(t *testing.T) {
	inner := errors.New("daemon unreachable")
	err := NewExitError(1, inner)
	assert.Equal(t, "daemon unreachable", err.Error())
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "exit status 2", (&ExitError{Code: 2}).Error())
}
