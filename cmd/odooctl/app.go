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
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/odooctl/cmd/odooctl/config"
	"github.com/AleutianAI/odooctl/cmd/odooctl/internal/infra"
	"github.com/AleutianAI/odooctl/cmd/odooctl/internal/infra/compose"
	"github.com/AleutianAI/odooctl/cmd/odooctl/internal/infra/process"
	"github.com/AleutianAI/odooctl/cmd/odooctl/internal/lifecycle"
	"github.com/AleutianAI/odooctl/cmd/odooctl/internal/materialize"
	"github.com/AleutianAI/odooctl/cmd/odooctl/internal/permissions"
	"github.com/AleutianAI/odooctl/cmd/odooctl/internal/status"
	"github.com/AleutianAI/odooctl/cmd/odooctl/internal/util"
	"github.com/AleutianAI/odooctl/pkg/logging"
	"github.com/AleutianAI/odooctl/pkg/ux"
)

// globalOptions are the persistent flags. Unset flags fall back to the
// ODOOCTL_* environment.
type globalOptions struct {
	Dir         string
	ProjectName string
	LogDir      string
	Personality string
	Verbose     bool
}

// app holds everything one invocation needs. The stack dependencies are
// built lazily so help and flag errors never touch docker.
type app struct {
	opts globalOptions

	rootLogger *logging.Logger
	logger     *logging.Logger
	prompter   ux.Prompter
	root       *cobra.Command

	// bootstrap populates lc. Tests replace it.
	bootstrap func(ctx context.Context) error

	dir          string
	proc         process.Manager
	materializer *materialize.Materializer
	normalizer   *permissions.Normalizer
	lc           lifecycle.Lifecycle
	watcher      *configWatcher
	inMenu       bool

	// Command flags.
	logsOpts  lifecycle.LogsOptions
	shellOpts compose.ShellOptions
	confirm   string
}

func newApp() *app {
	a := &app{logger: logging.Nop()}
	a.bootstrap = a.bootstrapStack
	return a
}

// setup resolves tool options, output personality and the logger. It runs
// before every command.
func (a *app) setup(cmd *cobra.Command) error {
	env, err := config.LoadToolOptions()
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if !flags.Changed("dir") && env.Dir != "" {
		a.opts.Dir = env.Dir
	}
	if !flags.Changed("project-name") && env.ProjectName != "" {
		a.opts.ProjectName = env.ProjectName
	}
	if !flags.Changed("log-dir") && env.LogDir != "" {
		a.opts.LogDir = env.LogDir
	}
	if !flags.Changed("verbose") && env.Verbose {
		a.opts.Verbose = true
	}
	if !flags.Changed("personality") && env.Personality != "" {
		a.opts.Personality = env.Personality
	}

	ux.InitPersonality(a.opts.Personality)

	level := logging.LevelWarn
	if a.opts.Verbose {
		level = logging.LevelDebug
	}
	a.rootLogger = logging.New(logging.Config{
		Level:   level,
		LogDir:  a.opts.LogDir,
		Service: "odooctl",
	})
	a.logger = a.rootLogger.With("run_id", uuid.NewString(), "command", cmd.Name())

	if a.prompter == nil {
		a.prompter = ux.NewPrompter()
	}
	return nil
}

func (a *app) close() {
	if a.watcher != nil {
		if err := a.watcher.Close(); err != nil {
			a.logger.Debug("closing config watcher", "error", err)
		}
	}
	if a.rootLogger != nil {
		_ = a.rootLogger.Close()
	}
}

// ensureStack bootstraps the stack dependencies once per process.
func (a *app) ensureStack(ctx context.Context) error {
	if a.lc != nil {
		return nil
	}
	return a.bootstrap(ctx)
}

// bootstrapStack runs the startup sequence: environment checks, artifact
// materialization, then wiring of the lifecycle.
func (a *app) bootstrapStack(ctx context.Context) error {
	dir, err := resolveDir(a.opts.Dir)
	if err != nil {
		return util.NewExitError(1, err)
	}
	proc := process.NewDefaultManager(a.logger)

	probe, err := compose.NewDefaultComposeExecutor(compose.ComposeConfig{ProjectDir: dir, Logger: a.logger}, proc)
	if err != nil {
		return util.NewExitError(1, err)
	}
	if _, err := infra.NewPreflight(proc, probe, nil, a.logger).Check(ctx); err != nil {
		return util.NewExitError(1, err)
	}

	a.attach(dir, proc)
	result, err := a.materializer.Ensure(ctx)
	if err != nil {
		return util.NewExitError(1, fmt.Errorf("cannot prepare %s: %w", dir, err))
	}
	reportMaterialized(result)
	return a.wire(result.Config)
}

// attach sets the project directory and the components that depend only on it.
func (a *app) attach(dir string, proc process.Manager) {
	a.dir = dir
	a.proc = proc
	a.normalizer = permissions.New(filepath.Join(dir, config.AddonsDirName), proc, a.logger)
	a.materializer = materialize.New(dir, a.normalizer, a.logger)
}

// wire builds the lifecycle for cfg. Compose commands get cfg's values in
// their environment so interpolation matches the loaded .env.
func (a *app) wire(cfg *config.DeploymentConfig) error {
	exec, err := compose.NewDefaultComposeExecutor(compose.ComposeConfig{
		ProjectDir:  a.dir,
		ProjectName: a.opts.ProjectName,
		Env:         cfg.Environ(),
		Logger:      a.logger,
	}, a.proc)
	if err != nil {
		return err
	}

	lc, err := lifecycle.New(lifecycle.Options{
		Config:      cfg,
		ProjectName: a.opts.ProjectName,
		AddonsDir:   a.materializer.AddonsDir(),
		Compose:     exec,
		State:       status.NewReader(exec, a.logger),
		Artifacts:   a.materializer,
		Permissions: a.normalizer,
		Locker:      process.NewProcessLock(process.ProcessLockConfig{LockDir: a.dir}),
		Logger:      a.logger,
	})
	if err != nil {
		return err
	}
	a.lc = lc
	return nil
}

// reloadConfig re-reads .env after an edit. An invalid file keeps the
// previous configuration.
func (a *app) reloadConfig() {
	cfg, err := config.Load(a.dir)
	if err != nil {
		ux.Warning("Ignoring .env changes: " + err.Error())
		return
	}
	var previous *config.DeploymentConfig
	if a.lc != nil {
		previous = a.lc.Config()
	}
	if err := a.wire(cfg); err != nil {
		ux.Warning("Ignoring .env changes: " + err.Error())
		return
	}
	ux.Info("Reloaded .env")
	a.logger.Info("configuration reloaded", "port", cfg.OdooPort, "version", cfg.OdooVersion)

	if previous != nil && imageInputsChanged(previous, cfg) {
		ux.Hint("Image settings changed. Apply them with", "odooctl rebuild")
	}
}

func imageInputsChanged(prev, next *config.DeploymentConfig) bool {
	return prev.OdooVersion != next.OdooVersion ||
		!slices.Equal(prev.AptPackages, next.AptPackages) ||
		!slices.Equal(prev.PipPackages, next.PipPackages)
}

func resolveDir(dir string) (string, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("cannot determine working directory: %w", err)
		}
		return wd, nil
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("invalid project directory %q: %w", dir, err)
	}
	return abs, nil
}

func reportMaterialized(result *materialize.Result) {
	for _, path := range result.Created {
		ux.Success("Created " + path)
	}
	for _, w := range result.Warnings {
		ux.Warning(w)
	}
	if len(result.Warnings) > 0 {
		ux.Hint("Try", "odooctl fix-permissions")
	}
}
