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
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/odooctl/cmd/odooctl/internal/infra/process"
	"github.com/AleutianAI/odooctl/cmd/odooctl/internal/util"
)

func newTestExecutor(t *testing.T, pm *process.MockManager) *DefaultComposeExecutor {
	t.Helper()
	e, err := NewDefaultComposeExecutor(ComposeConfig{ProjectDir: "/srv/odoo"}, pm)
	require.NoError(t, err)
	return e
}

// =============================================================================
// Constructor Tests
// =============================================================================

func TestNewDefaultComposeExecutor_RequiresProjectDir(t *testing.T) {
	_, err := NewDefaultComposeExecutor(ComposeConfig{}, &process.MockManager{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewDefaultComposeExecutor_RequiresProcessManager(t *testing.T) {
	_, err := NewDefaultComposeExecutor(ComposeConfig{ProjectDir: "/srv/odoo"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewDefaultComposeExecutor_Defaults(t *testing.T) {
	e := newTestExecutor(t, &process.MockManager{})
	assert.Equal(t, "compose.yaml", e.config.File)
	assert.Equal(t, "docker", e.config.Binary)
	assert.Equal(t, 15*time.Minute, e.config.DefaultTimeout)
	assert.Equal(t, "/srv/odoo/compose.yaml", e.ComposeFile())
}

// =============================================================================
// Argument Assembly Tests
// =============================================================================

func TestExecutor_CommandArgs(t *testing.T) {
	tests := []struct {
		name string
		run  func(e *DefaultComposeExecutor) error
		want string
	}{
		{
			name: "up",
			run: func(e *DefaultComposeExecutor) error {
				_, err := e.Up(context.Background(), UpOptions{})
				return err
			},
			want: "docker compose -f compose.yaml up -d",
		},
		{
			name: "up build recreate",
			run: func(e *DefaultComposeExecutor) error {
				_, err := e.Up(context.Background(), UpOptions{Build: true, ForceRecreate: true, Services: []string{"odoo"}})
				return err
			},
			want: "docker compose -f compose.yaml up -d --build --force-recreate odoo",
		},
		{
			name: "down",
			run: func(e *DefaultComposeExecutor) error {
				_, err := e.Down(context.Background(), DownOptions{})
				return err
			},
			want: "docker compose -f compose.yaml down",
		},
		{
			name: "down volumes",
			run: func(e *DefaultComposeExecutor) error {
				_, err := e.Down(context.Background(), DownOptions{RemoveVolumes: true, RemoveOrphans: true})
				return err
			},
			want: "docker compose -f compose.yaml down -v --remove-orphans",
		},
		{
			name: "restart",
			run: func(e *DefaultComposeExecutor) error {
				_, err := e.Restart(context.Background(), RestartOptions{})
				return err
			},
			want: "docker compose -f compose.yaml restart",
		},
		{
			name: "build",
			run: func(e *DefaultComposeExecutor) error {
				_, err := e.Build(context.Background(), BuildOptions{Pull: true})
				return err
			},
			want: "docker compose -f compose.yaml build --pull",
		},
		{
			name: "ps",
			run: func(e *DefaultComposeExecutor) error {
				_, err := e.Status(context.Background())
				return err
			},
			want: "docker compose -f compose.yaml ps -a --format json",
		},
		{
			name: "exec",
			run: func(e *DefaultComposeExecutor) error {
				_, err := e.Exec(context.Background(), ExecOptions{Service: "db", User: "postgres", Command: []string{"createdb", "-U", "odoo", "test_x"}})
				return err
			},
			want: "docker compose -f compose.yaml exec -T --user postgres db createdb -U odoo test_x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pm := &process.MockManager{}
			e := newTestExecutor(t, pm)
			require.NoError(t, tt.run(e))

			calls := pm.GetCalls()
			require.Len(t, calls, 1)
			assert.Equal(t, tt.want, calls[0].CommandLine())
			assert.Equal(t, "/srv/odoo", calls[0].Dir)
		})
	}
}

func TestExecutor_ProjectNameFlag(t *testing.T) {
	pm := &process.MockManager{}
	e, err := NewDefaultComposeExecutor(ComposeConfig{ProjectDir: "/srv/odoo", ProjectName: "shop"}, pm)
	require.NoError(t, err)

	_, err = e.Up(context.Background(), UpOptions{})
	require.NoError(t, err)
	assert.Equal(t, "docker compose -p shop -f compose.yaml up -d", pm.GetCalls()[0].CommandLine())
}

func TestExecutor_Logs(t *testing.T) {
	pm := &process.MockManager{
		RunStreamingFunc: func(ctx context.Context, dir string, w io.Writer, name string, args ...string) error {
			_, err := io.WriteString(w, "odoo-1 | INFO ready\n")
			return err
		},
	}
	e := newTestExecutor(t, pm)
	var buf bytes.Buffer

	err := e.Logs(context.Background(), LogsOptions{Follow: true, Tail: 100, Services: []string{"odoo"}}, &buf)
	require.NoError(t, err)
	assert.Equal(t, "odoo-1 | INFO ready\n", buf.String())

	calls := pm.GetCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "RunStreaming", calls[0].Method)
	assert.Equal(t, "docker compose -f compose.yaml logs -f --tail 100 odoo", calls[0].CommandLine())
}

func TestExecutor_Shell_Defaults(t *testing.T) {
	pm := &process.MockManager{}
	e := newTestExecutor(t, pm)

	require.NoError(t, e.Shell(context.Background(), ShellOptions{}))
	calls := pm.GetCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "RunInteractive", calls[0].Method)
	assert.Equal(t, "docker compose -f compose.yaml exec --user root odoo bash", calls[0].CommandLine())
}

// =============================================================================
// Failure Tests
// =============================================================================

func TestExecutor_NonZeroExitWrapsCommandError(t *testing.T) {
	pm := &process.MockManager{
		RunInDirFunc: func(ctx context.Context, dir string, env []string, name string, args ...string) (string, string, int, error) {
			return "", "Error: mkdir /mnt/extra-addons: permission denied\n", 1, nil
		},
	}
	e := newTestExecutor(t, pm)

	result, err := e.Up(context.Background(), UpOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrComposeFailed)
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Equal(t, 1, result.ExitCode)

	var cmdErr *util.CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, "Error: mkdir /mnt/extra-addons: permission denied", cmdErr.Stderr)
}

func TestExecutor_LaunchFailure(t *testing.T) {
	launchErr := errors.New("exec: \"docker\": executable file not found in $PATH")
	pm := &process.MockManager{
		RunInDirFunc: func(ctx context.Context, dir string, env []string, name string, args ...string) (string, string, int, error) {
			return "", "", -1, launchErr
		},
	}
	e := newTestExecutor(t, pm)

	_, err := e.Down(context.Background(), DownOptions{})
	assert.ErrorIs(t, err, launchErr)
	assert.NotErrorIs(t, err, ErrComposeFailed)
}

func TestExecutor_Exec_NonZeroExitIsResult(t *testing.T) {
	pm := &process.MockManager{
		RunInDirFunc: func(ctx context.Context, dir string, env []string, name string, args ...string) (string, string, int, error) {
			return "", "FAIL: 2 tests failed", 1, nil
		},
	}
	e := newTestExecutor(t, pm)

	res, err := e.Exec(context.Background(), ExecOptions{Service: "odoo", Command: []string{"odoo", "--test-enable"}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExitCode)
	assert.Equal(t, "FAIL: 2 tests failed", res.Stderr)
}

func TestExecutor_Exec_ContainerNotRunning(t *testing.T) {
	pm := &process.MockManager{
		RunInDirFunc: func(ctx context.Context, dir string, env []string, name string, args ...string) (string, string, int, error) {
			return "", "service \"odoo\" is not running", 1, nil
		},
	}
	e := newTestExecutor(t, pm)

	_, err := e.Exec(context.Background(), ExecOptions{Service: "odoo", Command: []string{"true"}})
	assert.ErrorIs(t, err, ErrContainerNotRunning)
}

func TestExecutor_Exec_Validation(t *testing.T) {
	e := newTestExecutor(t, &process.MockManager{})

	_, err := e.Exec(context.Background(), ExecOptions{Command: []string{"ls"}})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = e.Exec(context.Background(), ExecOptions{Service: "odoo"})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = e.Exec(context.Background(), ExecOptions{Service: "odoo", Command: []string{"ls"}, Env: map[string]string{"BAD;KEY": "x"}})
	assert.ErrorIs(t, err, ErrInvalidEnvVar)
}

func TestExecutor_Version(t *testing.T) {
	pm := &process.MockManager{
		RunInDirFunc: func(ctx context.Context, dir string, env []string, name string, args ...string) (string, string, int, error) {
			return "2.29.7\n", "", 0, nil
		},
	}
	e := newTestExecutor(t, pm)

	v, err := e.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2.29.7", v)
	assert.Equal(t, "docker compose version --short", pm.GetCalls()[0].CommandLine())
}

// =============================================================================
// Status Parsing Tests
// =============================================================================

const ndjsonPS = `{"Name":"shop-db-1","Service":"db","State":"running","Health":"healthy","Status":"Up 2 minutes (healthy)","Image":"postgres:15","Publishers":[]}
{"Name":"shop-odoo-1","Service":"odoo","State":"running","Health":"","Status":"Up 1 minute","Image":"shop-odoo","Publishers":[{"URL":"0.0.0.0","TargetPort":8069,"PublishedPort":8069,"Protocol":"tcp"},{"URL":"","TargetPort":8072,"PublishedPort":0,"Protocol":"tcp"}]}
`

const arrayPS = `[{"Name":"shop-db-1","Service":"db","State":"exited","Status":"Exited (0) 3 seconds ago"},
{"Name":"shop-odoo-1","Service":"odoo","State":"running","Status":"Up 3 hours (unhealthy)"}]`

func TestParseContainerStatus_NDJSON(t *testing.T) {
	e := newTestExecutor(t, &process.MockManager{})

	status, err := e.parseContainerStatus(ndjsonPS)
	require.NoError(t, err)
	require.Len(t, status.Services, 2)
	assert.Equal(t, 2, status.Running)

	db, ok := status.Service("db")
	require.True(t, ok)
	assert.True(t, db.IsRunning())
	require.NotNil(t, db.Healthy)
	assert.True(t, *db.Healthy)

	odoo, ok := status.Service("odoo")
	require.True(t, ok)
	assert.Nil(t, odoo.Healthy)
	require.Len(t, odoo.Ports, 1)
	assert.Equal(t, 8069, odoo.Ports[0].HostPort)
}

func TestParseContainerStatus_Array(t *testing.T) {
	e := newTestExecutor(t, &process.MockManager{})

	status, err := e.parseContainerStatus(arrayPS)
	require.NoError(t, err)
	assert.Equal(t, 1, status.Running)
	assert.Equal(t, 1, status.Stopped)
	assert.Equal(t, 1, status.Unhealthy)

	odoo, _ := status.Service("odoo")
	assert.Equal(t, "unhealthy", odoo.Health)
}

func TestParseContainerStatus_Empty(t *testing.T) {
	e := newTestExecutor(t, &process.MockManager{})

	for _, in := range []string{"", "  \n", "[]"} {
		status, err := e.parseContainerStatus(in)
		require.NoError(t, err)
		assert.Empty(t, status.Services)
	}
}

func TestParseContainerStatus_Malformed(t *testing.T) {
	e := newTestExecutor(t, &process.MockManager{})

	_, err := e.parseContainerStatus("{not json")
	assert.Error(t, err)
	_, err = e.parseContainerStatus("[{broken")
	assert.Error(t, err)
}

func TestParseContainerStatus_NameCollisionsAreNotMatched(t *testing.T) {
	e := newTestExecutor(t, &process.MockManager{})

	// A container whose name merely ends in "db" must not be mistaken for the db service.
	out := `{"Name":"shop-mongodb-1","Service":"mongodb","State":"running"}`
	status, err := e.parseContainerStatus(out)
	require.NoError(t, err)
	_, ok := status.Service("db")
	assert.False(t, ok)
}

func TestExtractServiceName(t *testing.T) {
	withProject, err := NewDefaultComposeExecutor(ComposeConfig{ProjectDir: "/x", ProjectName: "shop"}, &process.MockManager{})
	require.NoError(t, err)
	noProject := newTestExecutor(t, &process.MockManager{})

	assert.Equal(t, "db", withProject.extractServiceName("shop-db-1"))
	assert.Equal(t, "odoo", withProject.extractServiceName("shop_odoo_1"))
	assert.Equal(t, "odoo", noProject.extractServiceName("mydir-odoo-1"))
	assert.Equal(t, "db", noProject.extractServiceName("mydir_db_1"))
}

func TestParseHealthFromStatus(t *testing.T) {
	assert.Equal(t, "healthy", parseHealthFromStatus("Up 2 minutes (healthy)"))
	assert.Equal(t, "unhealthy", parseHealthFromStatus("Up 2 minutes (unhealthy)"))
	assert.Equal(t, "starting", parseHealthFromStatus("Up 5 seconds (health: starting)"))
	assert.Equal(t, "", parseHealthFromStatus("Up 2 minutes"))
}

func TestComposeStatus_ServiceOnNil(t *testing.T) {
	var s *ComposeStatus
	_, ok := s.Service("odoo")
	assert.False(t, ok)
}

// =============================================================================
// Mock Tests
// =============================================================================

func TestMockComposeExecutor_RecordsOrder(t *testing.T) {
	m := &MockComposeExecutor{}
	ctx := context.Background()

	_, _ = m.Build(ctx, BuildOptions{})
	_, _ = m.Up(ctx, UpOptions{ForceRecreate: true})
	_, _ = m.Status(ctx)

	assert.Equal(t, []string{"Build", "Up", "Status"}, m.CallOrder())
	assert.True(t, m.UpCalls[0].ForceRecreate)
	assert.Equal(t, 1, m.StatusCalls)
}

func TestRunningStatus(t *testing.T) {
	s := RunningStatus("odoo", "db")
	assert.Equal(t, 2, s.Running)
	svc, ok := s.Service("db")
	require.True(t, ok)
	assert.True(t, strings.HasSuffix(svc.ContainerName, "db-1"))
}
