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
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/odooctl/cmd/odooctl/config"
	"github.com/AleutianAI/odooctl/cmd/odooctl/internal/infra/compose"
	"github.com/AleutianAI/odooctl/cmd/odooctl/internal/infra/process"
	"github.com/AleutianAI/odooctl/cmd/odooctl/internal/lifecycle"
	"github.com/AleutianAI/odooctl/cmd/odooctl/internal/materialize"
	"github.com/AleutianAI/odooctl/cmd/odooctl/internal/permissions"
	"github.com/AleutianAI/odooctl/cmd/odooctl/internal/util"
	"github.com/AleutianAI/odooctl/pkg/ux"
)

// testOutputTail is the number of odoo log lines shown for a failed test run.
const testOutputTail = 40

// =============================================================================
// Failure reporting
// =============================================================================

// reportFailure prints err and the remediation hint. Operational failures
// never change the exit code.
func (a *app) reportFailure(op string, err error) error {
	ux.Error(fmt.Sprintf("%s failed: %v", op, err))
	return a.suggestFix(op, err)
}

// suggestFix prints the remediation for an error that was already shown.
func (a *app) suggestFix(op string, err error) error {
	var held *process.ErrLockHeld
	switch {
	case errors.Is(err, context.Canceled):
		ux.Warning(op + " interrupted")
		return nil
	case errors.As(err, &held):
		ux.Hint("Wait for the other command to finish, then retry", "odooctl "+op)
		return nil
	}

	a.logger.Error("operation failed", "operation", op, "error", err)
	var cmdErr *util.CommandError
	if errors.As(err, &cmdErr) && cmdErr.HasStderr() {
		ux.Muted(cmdErr.Stderr)
	}
	ux.Hint("Try", "odooctl fix-permissions")
	if path := a.logger.LogFilePath(); path != "" {
		ux.Info("Details logged to " + path)
	}
	return nil
}

// =============================================================================
// Lifecycle commands
// =============================================================================

func runStart(ctx context.Context, a *app, _ []string) error {
	var result *lifecycle.StartResult
	err := ux.WithSpinner("Starting Odoo stack", func() error {
		var err error
		result, err = a.lc.Start(ctx)
		return err
	})
	if err != nil {
		return a.suggestFix("start", err)
	}
	printStackSummary(a.lc.Config(), result)
	return nil
}

func runStop(ctx context.Context, a *app, _ []string) error {
	err := ux.WithSpinner("Stopping Odoo stack", func() error {
		return a.lc.Stop(ctx)
	})
	if err != nil {
		return a.suggestFix("stop", err)
	}
	ux.Muted(`Volumes were kept. Use "odooctl clean" to delete all data.`)
	return nil
}

func runRestart(ctx context.Context, a *app, _ []string) error {
	err := ux.WithSpinner("Restarting Odoo stack", func() error {
		return a.lc.Restart(ctx)
	})
	if errors.Is(err, lifecycle.ErrNotCreated) {
		ux.Hint("Create the stack with", "odooctl start")
		return nil
	}
	if err != nil {
		return a.suggestFix("restart", err)
	}
	return nil
}

func runRebuild(ctx context.Context, a *app, _ []string) error {
	var result *lifecycle.StartResult
	err := ux.WithSpinner("Rebuilding image and recreating containers", func() error {
		var err error
		result, err = a.lc.Rebuild(ctx)
		return err
	})
	if err != nil {
		return a.suggestFix("rebuild", err)
	}
	printStackSummary(a.lc.Config(), result)
	return nil
}

func printStackSummary(cfg *config.DeploymentConfig, result *lifecycle.StartResult) {
	var b strings.Builder
	fmt.Fprintf(&b, "URL:        %s\n", result.URL)
	fmt.Fprintf(&b, "Odoo:       %s\n", cfg.OdooVersion)
	fmt.Fprintf(&b, "DB user:    %s (password in .env)\n", cfg.PostgresUser)
	fmt.Fprintf(&b, "Addons:     ./%s\n", config.AddonsDirName)
	if result.Duration > 0 {
		fmt.Fprintf(&b, "Ready in:   %s\n", result.Duration.Round(time.Second))
	}
	b.WriteString("Create your first database in the browser.")
	ux.Box("Odoo is running", b.String())
}

func runStatus(ctx context.Context, a *app, _ []string) error {
	snap := a.lc.Status(ctx)
	ux.KeyValue("State", snap.State.String())
	ux.KeyValue("Odoo", describeService(snap.Odoo))
	ux.KeyValue("Database", describeService(snap.DB))
	ux.KeyValue("URL", a.publishedURL(ctx))
	if snap.Err != nil {
		ux.Warning("Could not query containers: " + snap.Err.Error())
	}
	return nil
}

// publishedURL prefers the port declared in compose.yaml and falls back
// to the configured one.
func (a *app) publishedURL(ctx context.Context) string {
	project, err := a.lc.Validate(ctx)
	if err == nil {
		if port, ok := materialize.PublishedPort(project); ok {
			return "http://localhost:" + port
		}
	}
	return a.lc.Config().URL()
}

func describeService(svc *compose.ServiceStatus) string {
	switch {
	case svc == nil:
		return "not created"
	case svc.Health != "":
		return svc.State + " (" + svc.Health + ")"
	default:
		return svc.State
	}
}

func runLogs(ctx context.Context, a *app, args []string) error {
	opts := a.logsOpts
	if len(args) > 0 {
		opts.Service = args[0]
	}
	err := a.lc.Logs(ctx, opts, ux.Out())
	if err == nil || ctx.Err() != nil {
		return nil
	}
	return a.reportFailure("logs", err)
}

func runShell(ctx context.Context, a *app, _ []string) error {
	err := a.lc.Shell(ctx, a.shellOpts)
	if errors.Is(err, lifecycle.ErrNotRunning) {
		ux.Error(err.Error())
		ux.Hint("Start the stack with", "odooctl start")
		return nil
	}
	if err != nil && ctx.Err() == nil {
		return a.reportFailure("shell", err)
	}
	return nil
}

// =============================================================================
// Tests
// =============================================================================

func runTest(ctx context.Context, a *app, args []string) error {
	modules := lifecycle.ParseModules(args...)
	if len(modules) == 0 && a.inMenu {
		input, err := a.prompter.Input("Modules to test:", "Comma separated. Leave empty to test every module in extra-addons/.")
		if err != nil {
			return nil
		}
		modules = lifecycle.ParseModules(input)
	}

	var result *lifecycle.TestResult
	err := ux.WithSpinner("Running module tests", func() error {
		var err error
		result, err = a.lc.Test(ctx, lifecycle.TestOptions{Modules: modules})
		return err
	})

	switch {
	case errors.Is(err, lifecycle.ErrNotRunning):
		ux.Hint("Start the stack with", "odooctl start")
		return nil
	case errors.Is(err, lifecycle.ErrNoModules):
		ux.Hint("Add module directories under", "./"+config.AddonsDirName)
		return nil
	case errors.Is(err, lifecycle.ErrInvalidModule):
		return nil
	case err != nil:
		if result != nil {
			printScratchCleanup(result)
		}
		return a.suggestFix("test", err)
	}

	mods := strings.Join(result.Modules, ", ")
	if result.Passed {
		ux.Success(fmt.Sprintf("Tests passed: %s (%s)", mods, result.Duration.Round(time.Second)))
	} else {
		ux.Error(fmt.Sprintf("Tests failed: %s (exit code %d)", mods, result.ExitCode))
		if tail := lastLines(result.Output, testOutputTail); tail != "" {
			fmt.Fprintln(ux.Out(), tail)
		}
	}
	printScratchCleanup(result)
	return nil
}

func printScratchCleanup(result *lifecycle.TestResult) {
	if result.Dropped {
		ux.Muted("Dropped scratch database " + result.Database)
		return
	}
	ux.Warning(fmt.Sprintf("Could not drop scratch database %s: %v", result.Database, result.DropErr))
	ux.Hint("Drop it manually with", "docker compose exec db dropdb -U <POSTGRES_USER> "+result.Database)
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// =============================================================================
// Maintenance commands
// =============================================================================

func runFixPermissions(ctx context.Context, a *app, _ []string) error {
	report, err := a.lc.FixPermissions(ctx)
	if errors.Is(err, permissions.ErrAddonsListing) {
		return util.NewExitError(1, err)
	}
	if err != nil {
		return a.reportFailure("fix-permissions", err)
	}
	printPermissionReport(report)
	return nil
}

func printPermissionReport(r *permissions.Report) {
	if r.Created {
		ux.Success("Created " + r.AddonsDir)
	}
	if r.OwnershipOK() {
		ux.Success(fmt.Sprintf("Ownership %d:%d applied to %d entries", permissions.ContainerUID, permissions.ContainerGID, r.Changed))
	} else {
		ux.Warning("Could not set ownership: " + r.OwnershipErr.Error())
		ux.Hint("Run manually", r.Remedy)
	}

	se := r.SELinux
	switch se.Mode {
	case permissions.SELinuxEnforcing:
		switch {
		case se.AlreadyLabeled:
			ux.Success("SELinux label already allows container access")
		case se.Relabeled:
			ux.Success("SELinux relabeled to " + permissions.SELinuxFileType)
		case se.RelabelErr != nil:
			ux.Warning("SELinux relabel failed: " + se.RelabelErr.Error())
			ux.Hint("Run manually", "sudo chcon -Rt "+permissions.SELinuxFileType+" "+r.AddonsDir)
		}
		if se.BooleanErr != nil {
			ux.Warning("Could not enable " + permissions.SELinuxBoolean + ": " + se.BooleanErr.Error())
		}
	case permissions.SELinuxPermissive:
		ux.Info("SELinux is permissive; no relabel needed")
	default:
		ux.Muted("SELinux is not enforcing")
	}

	ux.KeyValue("Modules", strconv.Itoa(len(r.Modules)))
	for _, m := range r.Modules {
		ux.Muted("  " + m)
	}
}

func runValidate(ctx context.Context, a *app, _ []string) error {
	project, err := a.lc.Validate(ctx)
	if err != nil {
		ux.Error(err.Error())
		ux.Hint("Fix the file, or delete it to regenerate:", config.ComposeFileName)
		return nil
	}
	ux.Success(fmt.Sprintf("%s is valid (project %s, services: %s)",
		config.ComposeFileName, project.Name, strings.Join(project.ServiceNames(), ", ")))
	return nil
}

func runClean(ctx context.Context, a *app, _ []string) error {
	confirmation := a.confirm
	if confirmation == "" {
		ux.WarningBox("This deletes all Odoo data",
			"Containers and the volumes "+materialize.VolumeDBData+" and "+materialize.VolumeWebData+
				" (database and filestore) will be removed. This cannot be undone.")
		input, err := a.prompter.Input("Type "+ux.ConfirmPhrase+" to continue:", "")
		if err == nil {
			confirmation = input
		}
	}

	cleaned, err := a.lc.Clean(ctx, confirmation)
	if err != nil {
		return a.reportFailure("clean", err)
	}
	if !cleaned {
		ux.Info("Clean cancelled. Nothing was removed.")
		return nil
	}
	ux.Success("Removed containers and volumes")
	return nil
}

func runHelp(_ context.Context, a *app, args []string) error {
	if a.root == nil {
		return nil
	}
	target, _, err := a.root.Find(args)
	if err != nil || target == nil {
		target = a.root
	}
	return target.Help()
}
