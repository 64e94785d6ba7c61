// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package infra contains preflight.go, the dependency check every odooctl
invocation runs before touching the stack.

# Checks

	┌──────────────────────────────────────────────────────────┐
	│  1. docker binary in PATH          ← ErrDependencyMissing │
	│  2. docker compose version         ← ErrDependencyMissing │
	│  3. Engine API ping                ← ErrDaemonUnreachable │
	│                                      ErrRuntimeAccess     │
	└──────────────────────────────────────────────────────────┘

Any failure is an environment error: reported once with a remediation
hint, and the process exits 1 before any stack action is attempted.
*/
package infra

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/docker/docker/client"

	"github.com/AleutianAI/odooctl/cmd/odooctl/internal/infra/compose"
	"github.com/AleutianAI/odooctl/cmd/odooctl/internal/infra/process"
	"github.com/AleutianAI/odooctl/pkg/logging"
)

var (
	// ErrDependencyMissing is returned when docker or its compose plugin is absent.
	ErrDependencyMissing = errors.New("required dependency missing")

	// ErrDaemonUnreachable is returned when the Docker Engine does not answer.
	ErrDaemonUnreachable = errors.New("docker daemon unreachable")

	// ErrRuntimeAccess is returned when the daemon socket refuses the current user.
	ErrRuntimeAccess = errors.New("insufficient access to docker daemon")
)

// CheckError is a failed preflight check with an operator-facing remedy.
type CheckError struct {
	// Check names the failed step ("docker", "compose", "daemon").
	Check string

	// Remediation is a one-line suggestion.
	Remediation string

	// Err wraps one of the sentinel errors above.
	Err error
}

// Error implements error.
func (e *CheckError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the sentinel chain.
func (e *CheckError) Unwrap() error {
	return e.Err
}

var _ error = (*CheckError)(nil)

// DaemonPinger checks that the container engine answers API calls.
type DaemonPinger interface {
	Ping(ctx context.Context) error
}

// DockerPinger pings the Engine API using the DOCKER_HOST environment.
type DockerPinger struct{}

// Ping implements DaemonPinger.
func (DockerPinger) Ping(ctx context.Context) error {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return err
	}
	defer cli.Close()

	_, err = cli.Ping(ctx)
	return err
}

// PreflightReport describes a successful preflight.
type PreflightReport struct {
	DockerPath     string
	ComposeVersion string
}

// Preflight runs the environment checks.
type Preflight struct {
	proc    process.Manager
	compose compose.ComposeExecutor
	pinger  DaemonPinger
	logger  *logging.Logger

	// PingTimeout bounds the daemon ping. Default: 5 seconds.
	PingTimeout time.Duration
}

// NewPreflight creates a Preflight. A nil pinger uses DockerPinger.
func NewPreflight(proc process.Manager, exec compose.ComposeExecutor, pinger DaemonPinger, logger *logging.Logger) *Preflight {
	if pinger == nil {
		pinger = DockerPinger{}
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Preflight{
		proc:        proc,
		compose:     exec,
		pinger:      pinger,
		logger:      logger,
		PingTimeout: 5 * time.Second,
	}
}

// Check runs every preflight step in order and stops at the first failure.
//
// # Outputs
//
//   - *PreflightReport: Resolved docker path and compose version
//   - error: *CheckError wrapping ErrDependencyMissing, ErrDaemonUnreachable
//     or ErrRuntimeAccess
func (p *Preflight) Check(ctx context.Context) (*PreflightReport, error) {
	dockerPath, err := p.proc.LookPath("docker")
	if err != nil {
		return nil, &CheckError{
			Check:       "docker",
			Remediation: "Install Docker Engine: https://docs.docker.com/engine/install/",
			Err:         fmt.Errorf("%w: docker not found in PATH", ErrDependencyMissing),
		}
	}

	version, err := p.compose.Version(ctx)
	if err != nil {
		if isPermissionDenied(err) {
			return nil, runtimeAccessError(err)
		}
		return nil, &CheckError{
			Check:       "compose",
			Remediation: "Install the Docker Compose v2 plugin (docker-compose-plugin)",
			Err:         fmt.Errorf("%w: docker compose plugin not available: %v", ErrDependencyMissing, err),
		}
	}

	pingCtx, cancel := context.WithTimeout(ctx, p.PingTimeout)
	defer cancel()
	if err := p.pinger.Ping(pingCtx); err != nil {
		if isPermissionDenied(err) {
			return nil, runtimeAccessError(err)
		}
		return nil, &CheckError{
			Check:       "daemon",
			Remediation: "Start the daemon: sudo systemctl start docker",
			Err:         fmt.Errorf("%w: %v", ErrDaemonUnreachable, err),
		}
	}

	p.logger.Debug("preflight ok", "docker", dockerPath, "compose_version", version)
	return &PreflightReport{DockerPath: dockerPath, ComposeVersion: version}, nil
}

func runtimeAccessError(err error) *CheckError {
	return &CheckError{
		Check:       "daemon",
		Remediation: "Add your user to the docker group: sudo usermod -aG docker $USER (then log in again)",
		Err:         fmt.Errorf("%w: %v", ErrRuntimeAccess, err),
	}
}

func isPermissionDenied(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "permission denied")
}
