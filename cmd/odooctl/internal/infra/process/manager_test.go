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
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/odooctl/cmd/odooctl/internal/util"
)

// =============================================================================
// DefaultManager Tests
// =============================================================================

func TestDefaultManager_RunInDir_CapturesOutput(t *testing.T) {
	pm := NewDefaultManager(nil)

	stdout, stderr, code, err := pm.RunInDir(context.Background(), "", nil, "sh", "-c", "echo out; echo err >&2")
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "out\n", stdout)
	assert.Equal(t, "err\n", stderr)
}

func TestDefaultManager_RunInDir_NonZeroExitIsNotAnError(t *testing.T) {
	pm := NewDefaultManager(nil)

	_, stderr, code, err := pm.RunInDir(context.Background(), "", nil, "sh", "-c", "echo nope >&2; exit 3")
	require.NoError(t, err)
	assert.Equal(t, 3, code)
	assert.Equal(t, "nope\n", stderr)
}

func TestDefaultManager_RunInDir_MissingBinary(t *testing.T) {
	pm := NewDefaultManager(nil)

	_, _, code, err := pm.RunInDir(context.Background(), "", nil, "odooctl-definitely-missing-binary")
	require.Error(t, err)
	assert.Equal(t, -1, code)
}

func TestDefaultManager_RunInDir_DirAndEnv(t *testing.T) {
	pm := NewDefaultManager(nil)
	dir := t.TempDir()

	stdout, _, code, err := pm.RunInDir(context.Background(), dir, []string{"ODOOCTL_TEST_VALUE=plum"}, "sh", "-c", "pwd; echo $ODOOCTL_TEST_VALUE")
	require.NoError(t, err)
	require.Equal(t, 0, code)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 2)
	resolved, _ := filepath.EvalSymlinks(dir)
	gotDir, _ := filepath.EvalSymlinks(lines[0])
	assert.Equal(t, resolved, gotDir)
	assert.Equal(t, "plum", lines[1])
}

func TestDefaultManager_RunInDir_ContextCancelled(t *testing.T) {
	pm := NewDefaultManager(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, _, _, err := pm.RunInDir(ctx, "", nil, "sleep", "5")
	assert.Error(t, err)
}

func TestDefaultManager_RunStreaming(t *testing.T) {
	pm := NewDefaultManager(nil)
	var buf bytes.Buffer

	err := pm.RunStreaming(context.Background(), "", &buf, "sh", "-c", "echo line1; echo line2 >&2")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "line1")
	assert.Contains(t, buf.String(), "line2")
}

func TestDefaultManager_RunStreaming_Failure(t *testing.T) {
	pm := NewDefaultManager(nil)

	err := pm.RunStreaming(context.Background(), "", &bytes.Buffer{}, "sh", "-c", "exit 2")
	require.Error(t, err)
	var cmdErr *util.CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, 2, cmdErr.ExitCode)
}

func TestDefaultManager_RunStreaming_CancelIsClean(t *testing.T) {
	pm := NewDefaultManager(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := pm.RunStreaming(ctx, "", &bytes.Buffer{}, "sleep", "5")
	assert.NoError(t, err)
}

func TestDefaultManager_LookPath(t *testing.T) {
	pm := NewDefaultManager(nil)
	_, err := pm.LookPath("sh")
	assert.NoError(t, err)
	_, err = pm.LookPath("odooctl-definitely-missing-binary")
	assert.Error(t, err)
}

func TestCommandLine_RedactsPasswords(t *testing.T) {
	got := commandLine("docker", []string{"compose", "exec", "odoo", "odoo", "--db_password=s3cret"})
	assert.NotContains(t, got, "s3cret")
	assert.Contains(t, got, "--db_password=[REDACTED]")
	assert.Equal(t, "docker", commandLine("docker", nil))
}

// =============================================================================
// MockManager Tests
// =============================================================================

func TestMockManager_RecordsCalls(t *testing.T) {
	m := &MockManager{
		RunInDirFunc: func(ctx context.Context, dir string, env []string, name string, args ...string) (string, string, int, error) {
			return "Enforcing\n", "", 0, nil
		},
	}

	out, _, code, err := m.RunInDir(context.Background(), "/srv", nil, "getenforce")
	require.NoError(t, err)
	assert.Equal(t, "Enforcing\n", out)
	assert.Equal(t, 0, code)

	_ = m.RunStreaming(context.Background(), "/srv", os.Stdout, "docker", "compose", "logs", "-f")
	_ = m.RunInteractive(context.Background(), "/srv", "docker", "compose", "exec", "odoo", "bash")
	path, _ := m.LookPath("docker")
	assert.Equal(t, "/usr/bin/docker", path)

	calls := m.GetCalls()
	require.Len(t, calls, 4)
	assert.Equal(t, "getenforce", calls[0].CommandLine())
	assert.Equal(t, "RunStreaming", calls[1].Method)
	assert.Equal(t, "docker compose exec odoo bash", calls[2].CommandLine())
	assert.Equal(t, "LookPath", calls[3].Method)

	m.Reset()
	assert.Empty(t, m.GetCalls())
}
