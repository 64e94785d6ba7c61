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
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/AleutianAI/odooctl/cmd/odooctl/internal/infra/compose"
	"github.com/AleutianAI/odooctl/cmd/odooctl/internal/materialize"
	"github.com/AleutianAI/odooctl/cmd/odooctl/internal/permissions"
	"github.com/AleutianAI/odooctl/pkg/validation"
)

const (
	// testHTTPPort keeps the test server off the port of the running one.
	testHTTPPort = 8071

	testRunTimeout = 60 * time.Minute
	dropDBTimeout  = 2 * time.Minute
)

// Odoo reports failures in the log even when it exits 0.
var testFailurePattern = regexp.MustCompile(`(?m)(: FAIL: |: ERROR: |\b[1-9]\d* failed\b|\b[1-9]\d* error\(s\))`)

// TestOptions configures Test.
type TestOptions struct {
	// Modules to install and test. Empty means every module directory in
	// the addons directory.
	Modules []string
}

// TestResult describes one test run.
type TestResult struct {
	// Database is the scratch database name.
	Database string

	Modules []string

	// ExitCode is the exit code of the odoo test process.
	ExitCode int

	// Passed is true when odoo exited 0 and logged no failures.
	Passed bool

	// Output is the combined odoo output.
	Output string

	// Dropped reports whether the scratch database was removed.
	Dropped bool
	DropErr error

	Duration time.Duration
}

// ParseModules splits comma or space separated module names.
func ParseModules(args ...string) []string {
	var modules []string
	for _, arg := range args {
		for _, m := range strings.FieldsFunc(arg, func(r rune) bool { return r == ',' || r == ' ' }) {
			modules = append(modules, m)
		}
	}
	return modules
}

// Test implements Lifecycle.
//
// # Description
//
// Creates test_YYYYMMDD_HHMMSS in the db service, runs
// `odoo -i <modules> --test-enable --stop-after-init` in the odoo service
// and drops the database afterwards. The drop runs even when the test
// run fails or ctx is cancelled.
//
// # Outputs
//
//   - *TestResult: Non-nil once a scratch database was attempted
//   - error: ErrNotRunning, ErrNoModules, ErrInvalidModule,
//     ErrScratchDatabase, or a compose failure
func (l *DefaultLifecycle) Test(ctx context.Context, opts TestOptions) (result *TestResult, err error) {
	if err := l.requireRunning(ctx); err != nil {
		return nil, err
	}

	modules, err := l.resolveModules(opts.Modules)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	result = &TestResult{
		Database: "test_" + l.now().Format("20060102_150405"),
		Modules:  modules,
	}
	log := l.logger.With("database", result.Database)

	defer func() {
		result.DropErr = l.dropDatabase(ctx, result.Database)
		result.Dropped = result.DropErr == nil
		if result.DropErr != nil {
			log.Warn("failed to drop test database", "error", result.DropErr)
		}
		result.Duration = time.Since(started)
	}()

	if err := l.createDatabase(ctx, result.Database); err != nil {
		return result, err
	}
	log.Info("running module tests", "modules", strings.Join(modules, ","))

	run, err := l.compose.Exec(ctx, compose.ExecOptions{
		Service: materialize.ServiceOdoo,
		Command: l.testCommand(result.Database, modules),
		Timeout: testRunTimeout,
	})
	if err != nil {
		return result, fmt.Errorf("failed to run tests: %w", err)
	}

	result.ExitCode = run.ExitCode
	result.Output = joinOutput(run.Stdout, run.Stderr)
	result.Passed = run.ExitCode == 0 && !testFailurePattern.MatchString(result.Output)
	log.Info("module tests finished", "exit_code", run.ExitCode, "passed", result.Passed)
	return result, nil
}

func (l *DefaultLifecycle) resolveModules(requested []string) ([]string, error) {
	modules := requested
	if len(modules) == 0 {
		if l.addonsDir == "" {
			return nil, ErrNoModules
		}
		found, err := permissions.ListModules(l.addonsDir)
		if err != nil {
			return nil, err
		}
		modules = found
	}
	if len(modules) == 0 {
		return nil, fmt.Errorf("%w: %s has no module directories", ErrNoModules, l.addonsDir)
	}
	if err := validation.ValidateModuleNames(modules); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidModule, err)
	}
	return modules, nil
}

func (l *DefaultLifecycle) testCommand(database string, modules []string) []string {
	return []string{
		"odoo",
		"--db_host=" + materialize.ServiceDB,
		"--db_user=" + l.cfg.PostgresUser,
		"--db_password=" + l.cfg.PostgresPassword,
		"-d", database,
		"-i", strings.Join(modules, ","),
		"--test-enable",
		"--stop-after-init",
		"--log-level=test",
		fmt.Sprintf("--http-port=%d", testHTTPPort),
	}
}

func (l *DefaultLifecycle) createDatabase(ctx context.Context, name string) error {
	if err := validation.ValidateDatabaseName(name); err != nil {
		return fmt.Errorf("%w: %w", ErrScratchDatabase, err)
	}
	res, err := l.compose.Exec(ctx, compose.ExecOptions{
		Service: materialize.ServiceDB,
		Command: []string{"createdb", "-U", l.cfg.PostgresUser, name},
	})
	if err != nil {
		return fmt.Errorf("%w %s: %w", ErrScratchDatabase, name, err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%w %s: %s", ErrScratchDatabase, name, strings.TrimSpace(res.Stderr))
	}
	return nil
}

// dropDatabase ignores cancellation of ctx so an interrupted run still
// cleans up.
func (l *DefaultLifecycle) dropDatabase(ctx context.Context, name string) error {
	dropCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dropDBTimeout)
	defer cancel()

	res, err := l.compose.Exec(dropCtx, compose.ExecOptions{
		Service: materialize.ServiceDB,
		Command: []string{"dropdb", "-U", l.cfg.PostgresUser, "--if-exists", name},
	})
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("dropdb %s exited %d: %s", name, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return nil
}

func joinOutput(stdout, stderr string) string {
	switch {
	case stdout == "":
		return stderr
	case stderr == "":
		return stdout
	default:
		return strings.TrimRight(stdout, "\n") + "\n" + stderr
	}
}
