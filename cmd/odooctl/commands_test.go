// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/compose-spec/compose-go/v2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/odooctl/cmd/odooctl/internal/infra"
	"github.com/AleutianAI/odooctl/cmd/odooctl/internal/infra/compose"
	"github.com/AleutianAI/odooctl/cmd/odooctl/internal/infra/process"
	"github.com/AleutianAI/odooctl/cmd/odooctl/internal/lifecycle"
	"github.com/AleutianAI/odooctl/cmd/odooctl/internal/permissions"
	"github.com/AleutianAI/odooctl/cmd/odooctl/internal/status"
	"github.com/AleutianAI/odooctl/cmd/odooctl/internal/util"
	"github.com/AleutianAI/odooctl/pkg/ux"
)

// =============================================================================
// Harness
// =============================================================================

type testEnv struct {
	app      *app
	lc       *lifecycle.MockLifecycle
	prompter *ux.MockPrompter
	out      *bytes.Buffer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv("ODOOCTL_PERSONALITY", "machine")
	for _, key := range []string{"ODOOCTL_DIR", "COMPOSE_PROJECT_NAME", "ODOOCTL_LOG_DIR", "ODOOCTL_VERBOSE"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	prev := ux.GetPersonality()
	t.Cleanup(func() { ux.SetPersonality(prev) })
	ux.SetPersonalityLevel(ux.PersonalityMachine)

	out := &bytes.Buffer{}
	t.Cleanup(ux.SetOutput(out, out))

	env := &testEnv{
		lc:       &lifecycle.MockLifecycle{},
		prompter: &ux.MockPrompter{},
		out:      out,
	}
	env.app = newApp()
	env.app.lc = env.lc
	env.app.prompter = env.prompter
	env.app.bootstrap = func(context.Context) error {
		t.Error("bootstrap must not run")
		return nil
	}
	t.Cleanup(env.app.close)
	return env
}

func (e *testEnv) run(args ...string) error {
	root := newRootCmd(e.app)
	root.SetArgs(args)
	return root.ExecuteContext(context.Background())
}

func composeErr(stderr string) error {
	return fmt.Errorf("failed to start services: %w",
		errors.Join(compose.ErrComposeFailed, util.NewCommandError("docker compose up -d", 1, stderr, nil)))
}

// =============================================================================
// Registry
// =============================================================================

func TestRegistry_NamesUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, c := range registry() {
		assert.False(t, seen[c.Name], "duplicate command %q", c.Name)
		seen[c.Name] = true
		assert.NotNil(t, c.Run, c.Name)
		assert.NotEmpty(t, c.Summary, c.Name)
	}
}

func TestRegistry_BuildsCobraAndMenu(t *testing.T) {
	root := newRootCmd(newApp())

	var cobraNames []string
	for _, sub := range root.Commands() {
		cobraNames = append(cobraNames, sub.Name())
	}
	for _, c := range registry() {
		if c.Name == "help" {
			continue
		}
		assert.Contains(t, cobraNames, c.Name)
	}

	options := menuOptions()
	require.NotEmpty(t, options)
	assert.Equal(t, menuExit, options[len(options)-1].Value)
	for _, o := range options[:len(options)-1] {
		_, ok := lookupCommand(o.Value)
		assert.True(t, ok, "menu entry %q has no command", o.Value)
	}
}

func TestRegistry_CLISurface(t *testing.T) {
	for _, name := range []string{"start", "stop", "restart", "rebuild", "logs", "test", "clean", "fix-permissions", "shell", "help"} {
		_, ok := lookupCommand(name)
		assert.True(t, ok, name)
	}
}

// =============================================================================
// Dispatch and exit codes
// =============================================================================

func TestHelp_DoesNotBootstrap(t *testing.T) {
	e := newTestEnv(t)
	e.app.lc = nil

	require.NoError(t, e.run("help"))
	assert.Contains(t, e.out.String(), "fix-permissions")
	assert.Contains(t, e.out.String(), "rebuild")
}

func TestHelp_ForCommand(t *testing.T) {
	e := newTestEnv(t)

	require.NoError(t, e.run("help", "clean"))
	assert.Contains(t, e.out.String(), "--confirm")
}

func TestUnknownCommand_ExitsOne(t *testing.T) {
	e := newTestEnv(t)

	err := e.run("frobnicate")
	require.Error(t, err)
	assert.Equal(t, 1, util.ExitCodeOf(err))
	assert.Empty(t, e.lc.GetCalls())
}

func TestEnvironmentError_ExitsOne(t *testing.T) {
	e := newTestEnv(t)
	e.app.lc = nil
	e.app.bootstrap = func(context.Context) error {
		return util.NewExitError(1, &infra.CheckError{
			Check:       "docker",
			Remediation: "Install Docker Engine",
			Err:         fmt.Errorf("%w: docker not found in PATH", infra.ErrDependencyMissing),
		})
	}

	err := e.run("start")
	assert.Equal(t, 1, util.ExitCodeOf(err))
	assert.ErrorIs(t, err, infra.ErrDependencyMissing)
}

// =============================================================================
// Lifecycle commands
// =============================================================================

func TestStart_PrintsSummary(t *testing.T) {
	e := newTestEnv(t)

	require.NoError(t, e.run("start"))
	assert.Equal(t, []string{"Start"}, e.lc.GetCalls())
	assert.Contains(t, e.out.String(), "OK: Starting Odoo stack")
	assert.Contains(t, e.out.String(), "http://localhost:8069")
}

func TestStart_FailureSuggestsFixPermissions(t *testing.T) {
	e := newTestEnv(t)
	e.lc.StartFunc = func(context.Context) (*lifecycle.StartResult, error) {
		return nil, composeErr("Error response from daemon: permission denied")
	}

	err := e.run("start")
	require.NoError(t, err)
	assert.Equal(t, 0, util.ExitCodeOf(err))
	assert.Contains(t, e.out.String(), "ERROR: Starting Odoo stack")
	assert.Contains(t, e.out.String(), "HINT: Try: odooctl fix-permissions")
}

func TestStart_FailurePointsToLogFile(t *testing.T) {
	e := newTestEnv(t)
	logDir := t.TempDir()
	e.lc.StartFunc = func(context.Context) (*lifecycle.StartResult, error) {
		return nil, composeErr("permission denied")
	}

	require.NoError(t, e.run("--log-dir", logDir, "start"))
	assert.Contains(t, e.out.String(), "Details logged to "+logDir)
}

func TestStart_FailureWithoutLogFile(t *testing.T) {
	e := newTestEnv(t)
	e.lc.StartFunc = func(context.Context) (*lifecycle.StartResult, error) {
		return nil, composeErr("permission denied")
	}

	require.NoError(t, e.run("start"))
	assert.NotContains(t, e.out.String(), "Details logged to")
}

func TestSetup_PersonalityFromEnvironment(t *testing.T) {
	e := newTestEnv(t)
	t.Setenv("ODOOCTL_PERSONALITY", "minimal")

	require.NoError(t, e.run("status"))
	assert.Equal(t, "minimal", e.app.opts.Personality)
	assert.Equal(t, ux.PersonalityMinimal, ux.GetPersonality().Level)
}

func TestSetup_PersonalityFlagWinsOverEnvironment(t *testing.T) {
	e := newTestEnv(t)
	t.Setenv("ODOOCTL_PERSONALITY", "minimal")

	require.NoError(t, e.run("--personality", "machine", "status"))
	assert.Equal(t, "machine", e.app.opts.Personality)
	assert.Equal(t, ux.PersonalityMachine, ux.GetPersonality().Level)
}

func TestStart_LockHeld(t *testing.T) {
	e := newTestEnv(t)
	e.lc.StartFunc = func(context.Context) (*lifecycle.StartResult, error) {
		return nil, &process.ErrLockHeld{HolderPID: 4242}
	}

	require.NoError(t, e.run("start"))
	assert.Contains(t, e.out.String(), "PID 4242")
	assert.NotContains(t, e.out.String(), "fix-permissions")
}

func TestRestart_NotCreatedSuggestsStart(t *testing.T) {
	e := newTestEnv(t)
	e.lc.RestartFunc = func(context.Context) error { return lifecycle.ErrNotCreated }

	require.NoError(t, e.run("restart"))
	assert.Contains(t, e.out.String(), "odooctl start")
}

func TestRebuild_PrintsSummary(t *testing.T) {
	e := newTestEnv(t)

	require.NoError(t, e.run("rebuild"))
	assert.Equal(t, []string{"Rebuild"}, e.lc.GetCalls())
	assert.Contains(t, e.out.String(), "Odoo is running")
}

func TestStop(t *testing.T) {
	e := newTestEnv(t)

	require.NoError(t, e.run("stop"))
	assert.Equal(t, []string{"Stop"}, e.lc.GetCalls())
}

func TestStatus_PrintsState(t *testing.T) {
	e := newTestEnv(t)
	e.lc.StatusFunc = func(context.Context) status.Snapshot {
		return status.Snapshot{
			State: status.Running,
			Odoo:  &compose.ServiceStatus{Name: "odoo", State: "running"},
			DB:    &compose.ServiceStatus{Name: "db", State: "running", Health: "healthy"},
		}
	}

	require.NoError(t, e.run("status"))
	out := e.out.String()
	assert.Contains(t, out, "state=running")
	assert.Contains(t, out, "odoo=running")
	assert.Contains(t, out, "database=running (healthy)")
	assert.Contains(t, out, "url=http://localhost:8069")
}

func TestStatus_NotCreated(t *testing.T) {
	e := newTestEnv(t)

	require.NoError(t, e.run("status"))
	assert.Contains(t, e.out.String(), "state=not_created")
	assert.Contains(t, e.out.String(), "odoo=not created")
}

func TestLogs_Flags(t *testing.T) {
	e := newTestEnv(t)

	require.NoError(t, e.run("logs", "db", "--tail", "50", "--no-follow"))
	require.Len(t, e.lc.LogsCalls, 1)
	assert.Equal(t, lifecycle.LogsOptions{Service: "db", Tail: 50, NoFollow: true}, e.lc.LogsCalls[0])
}

func TestLogs_Defaults(t *testing.T) {
	e := newTestEnv(t)

	require.NoError(t, e.run("logs"))
	assert.Equal(t, lifecycle.LogsOptions{}, e.lc.LogsCalls[0])
}

func TestShell_Flags(t *testing.T) {
	e := newTestEnv(t)

	require.NoError(t, e.run("shell", "--service", "db", "--user", "postgres"))
	require.Len(t, e.lc.ShellCalls, 1)
	assert.Equal(t, "db", e.lc.ShellCalls[0].Service)
	assert.Equal(t, "postgres", e.lc.ShellCalls[0].User)
}

func TestShell_DefaultsAndNotRunning(t *testing.T) {
	e := newTestEnv(t)
	e.lc.ShellFunc = func(context.Context, compose.ShellOptions) error {
		return fmt.Errorf("%w (state: stopped)", lifecycle.ErrNotRunning)
	}

	require.NoError(t, e.run("shell"))
	assert.Equal(t, compose.ShellOptions{Service: "odoo", User: "root"}, e.lc.ShellCalls[0])
	assert.Contains(t, e.out.String(), "odooctl start")
}

// =============================================================================
// test
// =============================================================================

func TestTest_ParsesModules(t *testing.T) {
	e := newTestEnv(t)

	require.NoError(t, e.run("test", "sale,stock", "crm"))
	require.Len(t, e.lc.TestCalls, 1)
	assert.Equal(t, []string{"sale", "stock", "crm"}, e.lc.TestCalls[0].Modules)
	assert.Contains(t, e.out.String(), "Tests passed: sale, stock, crm")
}

func TestTest_NoArgsDoesNotPromptOutsideMenu(t *testing.T) {
	e := newTestEnv(t)

	require.NoError(t, e.run("test"))
	assert.Nil(t, e.lc.TestCalls[0].Modules)
	assert.Empty(t, e.prompter.Titles)
}

func TestTest_FailureExitsZero(t *testing.T) {
	e := newTestEnv(t)
	e.lc.TestFunc = func(_ context.Context, opts lifecycle.TestOptions) (*lifecycle.TestResult, error) {
		return &lifecycle.TestResult{
			Database: "test_20250314_093005",
			Modules:  opts.Modules,
			ExitCode: 1,
			Output:   "INFO ok\nERROR test_20250314_093005 odoo.addons.sale_custom: FAIL: TestOrder.test_total",
			Dropped:  true,
		}, nil
	}

	err := e.run("test", "sale_custom")
	require.NoError(t, err)
	out := e.out.String()
	assert.Contains(t, out, "Tests failed: sale_custom (exit code 1)")
	assert.Contains(t, out, "FAIL: TestOrder.test_total")
}

func TestTest_DropFailureIsReported(t *testing.T) {
	e := newTestEnv(t)
	e.lc.TestFunc = func(context.Context, lifecycle.TestOptions) (*lifecycle.TestResult, error) {
		return &lifecycle.TestResult{Database: "test_x", Passed: true, DropErr: errors.New("database is being accessed")}, nil
	}

	require.NoError(t, e.run("test", "sale"))
	assert.Contains(t, e.out.String(), "Could not drop scratch database test_x")
	assert.Contains(t, e.out.String(), "dropdb")
}

func TestTest_NotRunning(t *testing.T) {
	e := newTestEnv(t)
	e.lc.TestFunc = func(context.Context, lifecycle.TestOptions) (*lifecycle.TestResult, error) {
		return nil, lifecycle.ErrNotRunning
	}

	require.NoError(t, e.run("test"))
	assert.Contains(t, e.out.String(), "odooctl start")
}

func TestLastLines(t *testing.T) {
	assert.Equal(t, "c\nd", lastLines("a\nb\nc\nd\n", 2))
	assert.Equal(t, "a", lastLines("a", 5))
}

// =============================================================================
// clean
// =============================================================================

func TestClean_ConfirmFlag(t *testing.T) {
	e := newTestEnv(t)

	require.NoError(t, e.run("clean", "--confirm", "CONFIRM"))
	assert.Equal(t, []string{"CONFIRM"}, e.lc.Confirmations)
	assert.Empty(t, e.prompter.Titles)
	assert.Contains(t, e.out.String(), "Removed containers and volumes")
}

func TestClean_PromptedConfirmation(t *testing.T) {
	e := newTestEnv(t)
	e.prompter.Inputs = []string{"CONFIRM"}

	require.NoError(t, e.run("clean"))
	assert.Equal(t, []string{"CONFIRM"}, e.lc.Confirmations)
	assert.Contains(t, e.out.String(), "Removed containers and volumes")
}

func TestClean_WrongConfirmationCancels(t *testing.T) {
	for _, input := range []string{"confirm", "yes", ""} {
		t.Run(input, func(t *testing.T) {
			e := newTestEnv(t)
			e.prompter.Inputs = []string{input}

			err := e.run("clean")
			require.NoError(t, err)
			assert.Equal(t, 0, util.ExitCodeOf(err))
			assert.Contains(t, e.out.String(), "Clean cancelled")
			assert.NotContains(t, e.out.String(), "Removed")
		})
	}
}

func TestClean_AbortedPromptCancels(t *testing.T) {
	e := newTestEnv(t)

	require.NoError(t, e.run("clean"))
	assert.Equal(t, []string{""}, e.lc.Confirmations)
	assert.Contains(t, e.out.String(), "Clean cancelled")
}

// =============================================================================
// fix-permissions and validate
// =============================================================================

func TestFixPermissions_Report(t *testing.T) {
	e := newTestEnv(t)
	e.lc.FixPermissionsFunc = func(context.Context) (*permissions.Report, error) {
		return &permissions.Report{
			AddonsDir:    "/srv/odoo/extra-addons",
			OwnershipErr: errors.New("operation not permitted"),
			Remedy:       "sudo chown -R 101:101 /srv/odoo/extra-addons",
			SELinux:      permissions.SELinuxResult{Mode: permissions.SELinuxEnforcing, Relabeled: true},
			Modules:      []string{"sale_custom", "stock_extra"},
		}, nil
	}

	err := e.run("fix-permissions")
	require.NoError(t, err)
	out := e.out.String()
	assert.Contains(t, out, "Could not set ownership")
	assert.Contains(t, out, "sudo chown -R 101:101 /srv/odoo/extra-addons")
	assert.Contains(t, out, "SELinux relabeled")
	assert.Contains(t, out, "modules=2")
}

func TestFixPermissions_ListingFailureExitsOne(t *testing.T) {
	e := newTestEnv(t)
	e.lc.FixPermissionsFunc = func(context.Context) (*permissions.Report, error) {
		return nil, fmt.Errorf("%w: permission denied", permissions.ErrAddonsListing)
	}

	err := e.run("fix-permissions")
	assert.Equal(t, 1, util.ExitCodeOf(err))
	assert.ErrorIs(t, err, permissions.ErrAddonsListing)
}

func TestValidate_FailureExitsZero(t *testing.T) {
	e := newTestEnv(t)
	e.lc.ValidateFunc = func(context.Context) (*types.Project, error) {
		return nil, errors.New("services.odoo.ports must be a list")
	}

	require.NoError(t, e.run("validate"))
	assert.Contains(t, e.out.String(), "services.odoo.ports must be a list")
}

func TestReportFatal_ShowsRemediation(t *testing.T) {
	e := newTestEnv(t)

	reportFatal(util.NewExitError(1, &infra.CheckError{
		Check:       "daemon",
		Remediation: "Start the daemon: sudo systemctl start docker",
		Err:         fmt.Errorf("%w: connection refused", infra.ErrDaemonUnreachable),
	}))
	assert.Contains(t, e.out.String(), "Environment check failed: daemon")
	assert.Contains(t, e.out.String(), "sudo systemctl start docker")
}
