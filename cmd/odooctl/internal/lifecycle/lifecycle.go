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
	"io"
	"sync"
	"time"

	"github.com/compose-spec/compose-go/v2/types"

	"github.com/AleutianAI/odooctl/cmd/odooctl/config"
	"github.com/AleutianAI/odooctl/cmd/odooctl/internal/infra/compose"
	"github.com/AleutianAI/odooctl/cmd/odooctl/internal/infra/process"
	"github.com/AleutianAI/odooctl/cmd/odooctl/internal/materialize"
	"github.com/AleutianAI/odooctl/cmd/odooctl/internal/permissions"
	"github.com/AleutianAI/odooctl/cmd/odooctl/internal/status"
	"github.com/AleutianAI/odooctl/pkg/logging"
	"github.com/AleutianAI/odooctl/pkg/ux"
)

// Readiness defaults: poll every 2s for at most 60s.
const (
	DefaultReadinessTimeout  = 60 * time.Second
	DefaultReadinessInterval = 2 * time.Second
)

// =============================================================================
// Interface Definition
// =============================================================================

// Lifecycle runs the operations of one Odoo deployment.
type Lifecycle interface {
	// Start creates and starts both services and waits until they run.
	Start(ctx context.Context) (*StartResult, error)

	// Stop removes the containers. Volumes are kept.
	Stop(ctx context.Context) error

	// Restart restarts existing containers and waits until they run.
	Restart(ctx context.Context) error

	// Rebuild regenerates the Dockerfile, rebuilds the image and recreates
	// the containers.
	Rebuild(ctx context.Context) (*StartResult, error)

	// Clean removes containers and named volumes when confirmation is
	// exactly ux.ConfirmPhrase. Returns false, nil when it is not.
	Clean(ctx context.Context, confirmation string) (bool, error)

	// Logs streams service logs to w until ctx is cancelled.
	Logs(ctx context.Context, opts LogsOptions, w io.Writer) error

	// Shell attaches an interactive shell. Requires Running.
	Shell(ctx context.Context, opts compose.ShellOptions) error

	// Test runs module tests against a scratch database. Requires Running.
	Test(ctx context.Context, opts TestOptions) (*TestResult, error)

	// FixPermissions normalizes the addons directory.
	FixPermissions(ctx context.Context) (*permissions.Report, error)

	// Status returns the (possibly cached) stack state.
	Status(ctx context.Context) status.Snapshot

	// Validate parses compose.yaml with the compose-go loader.
	Validate(ctx context.Context) (*types.Project, error)

	// Config returns the deployment configuration in use.
	Config() *config.DeploymentConfig
}

// =============================================================================
// Dependencies
// =============================================================================

// StateReader provides cached stack state.
type StateReader interface {
	Snapshot(ctx context.Context) status.Snapshot
	Invalidate()
}

// Artifacts regenerates and validates the generated files.
type Artifacts interface {
	RegenerateDockerfile(cfg *config.DeploymentConfig) error
	Validate(ctx context.Context, projectName string) (*types.Project, error)
}

// PermissionFixer normalizes the addons directory.
type PermissionFixer interface {
	Fix(ctx context.Context) (*permissions.Report, error)
}

// Options wires a DefaultLifecycle.
type Options struct {
	// Config is the loaded deployment configuration. Required.
	Config *config.DeploymentConfig

	// ProjectName is passed to compose validation; empty derives it.
	ProjectName string

	// AddonsDir is listed when Test runs without explicit modules.
	AddonsDir string

	Compose     compose.ComposeExecutor
	State       StateReader
	Artifacts   Artifacts
	Permissions PermissionFixer

	// Locker, when set, is held for the duration of every mutating
	// operation.
	Locker process.ProcessLocker

	Logger *logging.Logger

	// ReadinessTimeout bounds WaitReady. Default: 60s.
	ReadinessTimeout time.Duration

	// ReadinessInterval is the poll interval of WaitReady. Default: 2s.
	ReadinessInterval time.Duration

	// Now names scratch databases. Default: time.Now.
	Now func() time.Time
}

// StartResult summarizes a successful Start or Rebuild.
type StartResult struct {
	// URL is the Odoo web address on the host.
	URL string

	// Duration covers compose and the readiness wait.
	Duration time.Duration
}

// LogsOptions configures Logs.
type LogsOptions struct {
	// Service defaults to "odoo".
	Service string

	// Tail limits the backlog printed before following. Zero means all.
	Tail int

	// NoFollow prints the backlog and returns.
	NoFollow bool
}

// =============================================================================
// Default Implementation
// =============================================================================

// DefaultLifecycle implements Lifecycle over docker compose.
//
// # Thread Safety
//
// Mutating operations are serialized via mutex. Logs, Shell, Status and
// Validate do not take the mutex.
type DefaultLifecycle struct {
	cfg         *config.DeploymentConfig
	projectName string
	addonsDir   string

	compose     compose.ComposeExecutor
	state       StateReader
	artifacts   Artifacts
	permissions PermissionFixer
	locker      process.ProcessLocker
	logger      *logging.Logger

	readinessTimeout  time.Duration
	readinessInterval time.Duration
	now               func() time.Time

	mu sync.Mutex
}

// New creates a DefaultLifecycle.
//
// # Outputs
//
//   - *DefaultLifecycle: Ready to use
//   - error: ErrInvalidOptions if a required dependency is nil
func New(opts Options) (*DefaultLifecycle, error) {
	switch {
	case opts.Config == nil:
		return nil, fmt.Errorf("%w: Config is required", ErrInvalidOptions)
	case opts.Compose == nil:
		return nil, fmt.Errorf("%w: Compose is required", ErrInvalidOptions)
	case opts.State == nil:
		return nil, fmt.Errorf("%w: State is required", ErrInvalidOptions)
	case opts.Artifacts == nil:
		return nil, fmt.Errorf("%w: Artifacts is required", ErrInvalidOptions)
	case opts.Permissions == nil:
		return nil, fmt.Errorf("%w: Permissions is required", ErrInvalidOptions)
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.ReadinessTimeout <= 0 {
		opts.ReadinessTimeout = DefaultReadinessTimeout
	}
	if opts.ReadinessInterval <= 0 {
		opts.ReadinessInterval = DefaultReadinessInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &DefaultLifecycle{
		cfg:               opts.Config,
		projectName:       opts.ProjectName,
		addonsDir:         opts.AddonsDir,
		compose:           opts.Compose,
		state:             opts.State,
		artifacts:         opts.Artifacts,
		permissions:       opts.Permissions,
		locker:            opts.Locker,
		logger:            opts.Logger,
		readinessTimeout:  opts.ReadinessTimeout,
		readinessInterval: opts.ReadinessInterval,
		now:               opts.Now,
	}, nil
}

// Config implements Lifecycle.
func (l *DefaultLifecycle) Config() *config.DeploymentConfig {
	return l.cfg
}

// Start implements Lifecycle.
//
// # Description
//
// Validates compose.yaml, runs `up -d` (compose builds the image on first
// use) and waits for both services to report running.
func (l *DefaultLifecycle) Start(ctx context.Context) (*StartResult, error) {
	var result *StartResult
	err := l.mutate(func() error {
		started := time.Now()
		if _, err := l.artifacts.Validate(ctx, l.projectName); err != nil {
			return err
		}
		_, err := l.compose.Up(ctx, compose.UpOptions{RemoveOrphans: true})
		l.state.Invalidate()
		if err != nil {
			return fmt.Errorf("failed to start services: %w", err)
		}
		if err := l.WaitReady(ctx); err != nil {
			return err
		}
		result = &StartResult{URL: l.cfg.URL(), Duration: time.Since(started)}
		l.logger.Info("stack started", "url", result.URL, "duration", result.Duration)
		return nil
	})
	return result, err
}

// Stop implements Lifecycle.
func (l *DefaultLifecycle) Stop(ctx context.Context) error {
	return l.mutate(func() error {
		_, err := l.compose.Down(ctx, compose.DownOptions{RemoveOrphans: true})
		l.state.Invalidate()
		if err != nil {
			return fmt.Errorf("failed to stop services: %w", err)
		}
		l.logger.Info("stack stopped")
		return nil
	})
}

// Restart implements Lifecycle.
func (l *DefaultLifecycle) Restart(ctx context.Context) error {
	return l.mutate(func() error {
		l.state.Invalidate()
		if l.state.Snapshot(ctx).State == status.NotCreated {
			return ErrNotCreated
		}
		_, err := l.compose.Restart(ctx, compose.RestartOptions{})
		l.state.Invalidate()
		if err != nil {
			return fmt.Errorf("failed to restart services: %w", err)
		}
		return l.WaitReady(ctx)
	})
}

// Rebuild implements Lifecycle.
//
// # Description
//
// The Dockerfile is always rewritten from the current config so package
// edits in .env take effect. The base image is pulled again.
func (l *DefaultLifecycle) Rebuild(ctx context.Context) (*StartResult, error) {
	var result *StartResult
	err := l.mutate(func() error {
		started := time.Now()
		if err := l.artifacts.RegenerateDockerfile(l.cfg); err != nil {
			return err
		}
		if _, err := l.artifacts.Validate(ctx, l.projectName); err != nil {
			return err
		}
		if _, err := l.compose.Build(ctx, compose.BuildOptions{Pull: true}); err != nil {
			return fmt.Errorf("failed to build image: %w", err)
		}
		_, err := l.compose.Up(ctx, compose.UpOptions{ForceRecreate: true, RemoveOrphans: true})
		l.state.Invalidate()
		if err != nil {
			return fmt.Errorf("failed to recreate services: %w", err)
		}
		if err := l.WaitReady(ctx); err != nil {
			return err
		}
		result = &StartResult{URL: l.cfg.URL(), Duration: time.Since(started)}
		l.logger.Info("stack rebuilt", "url", result.URL, "duration", result.Duration)
		return nil
	})
	return result, err
}

// Clean implements Lifecycle.
func (l *DefaultLifecycle) Clean(ctx context.Context, confirmation string) (bool, error) {
	if !ux.IsConfirmed(confirmation) {
		l.logger.Info("clean cancelled", "confirmed", false)
		return false, nil
	}
	err := l.mutate(func() error {
		_, err := l.compose.Down(ctx, compose.DownOptions{RemoveVolumes: true, RemoveOrphans: true})
		l.state.Invalidate()
		if err != nil {
			return fmt.Errorf("failed to remove stack: %w", err)
		}
		l.logger.Warn("stack and volumes removed")
		return nil
	})
	return err == nil, err
}

// Logs implements Lifecycle.
func (l *DefaultLifecycle) Logs(ctx context.Context, opts LogsOptions, w io.Writer) error {
	service := opts.Service
	if service == "" {
		service = materialize.ServiceOdoo
	}
	return l.compose.Logs(ctx, compose.LogsOptions{
		Follow:   !opts.NoFollow,
		Tail:     opts.Tail,
		Services: []string{service},
	}, w)
}

// Shell implements Lifecycle.
func (l *DefaultLifecycle) Shell(ctx context.Context, opts compose.ShellOptions) error {
	if err := l.requireRunning(ctx); err != nil {
		return err
	}
	return l.compose.Shell(ctx, opts)
}

// FixPermissions implements Lifecycle.
func (l *DefaultLifecycle) FixPermissions(ctx context.Context) (*permissions.Report, error) {
	var report *permissions.Report
	err := l.mutate(func() error {
		var err error
		report, err = l.permissions.Fix(ctx)
		return err
	})
	return report, err
}

// Status implements Lifecycle.
func (l *DefaultLifecycle) Status(ctx context.Context) status.Snapshot {
	return l.state.Snapshot(ctx)
}

// Validate implements Lifecycle.
func (l *DefaultLifecycle) Validate(ctx context.Context) (*types.Project, error) {
	return l.artifacts.Validate(ctx, l.projectName)
}

// =============================================================================
// Helpers
// =============================================================================

// mutate serializes fn with other mutating operations and holds the
// project lock while it runs.
func (l *DefaultLifecycle) mutate(fn func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.locker != nil {
		if err := l.locker.Acquire(); err != nil {
			return err
		}
		defer func() {
			if err := l.locker.Release(); err != nil {
				l.logger.Warn("failed to release project lock", "error", err)
			}
		}()
	}
	return fn()
}

func (l *DefaultLifecycle) requireRunning(ctx context.Context) error {
	l.state.Invalidate()
	snap := l.state.Snapshot(ctx)
	if snap.State != status.Running {
		return fmt.Errorf("%w (state: %s)", ErrNotRunning, snap.State)
	}
	return nil
}

var _ Lifecycle = (*DefaultLifecycle)(nil)
