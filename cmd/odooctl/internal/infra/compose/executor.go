// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package compose drives the `docker compose` CLI for one Odoo deployment directory.
package compose

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/AleutianAI/odooctl/cmd/odooctl/internal/infra/process"
	"github.com/AleutianAI/odooctl/cmd/odooctl/internal/util"
	"github.com/AleutianAI/odooctl/pkg/logging"
)

// =============================================================================
// Error Definitions
// =============================================================================

var (
	// ErrComposeFailed is returned when a compose command exits non-zero.
	// The chain also carries a *util.CommandError with the captured stderr.
	ErrComposeFailed = errors.New("compose command failed")

	// ErrContainerNotRunning is returned for exec on a stopped container.
	ErrContainerNotRunning = errors.New("container not running")

	// ErrInvalidConfig is returned when ComposeConfig or options are invalid.
	ErrInvalidConfig = errors.New("invalid compose configuration")

	// ErrInvalidEnvVar is returned when an environment variable key is invalid.
	ErrInvalidEnvVar = errors.New("invalid environment variable")
)

var envVarKeyRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// =============================================================================
// Interface Definition
// =============================================================================

// ComposeExecutor manages `docker compose` operations for an Odoo stack.
//
// # Description
//
// Abstracts every interaction with the compose CLI so lifecycle code can be
// tested without a container runtime. All commands run in the project
// directory against its single compose file.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Mutating operations
// (Up, Down, Restart, Build) are serialized.
type ComposeExecutor interface {
	// Up creates and starts services in the background (`up -d`).
	Up(ctx context.Context, opts UpOptions) (*ComposeResult, error)

	// Down stops and removes containers, and named volumes when asked.
	Down(ctx context.Context, opts DownOptions) (*ComposeResult, error)

	// Restart restarts existing containers in place.
	Restart(ctx context.Context, opts RestartOptions) (*ComposeResult, error)

	// Build builds service images.
	Build(ctx context.Context, opts BuildOptions) (*ComposeResult, error)

	// Logs streams service logs to w until the command exits or ctx is cancelled.
	Logs(ctx context.Context, opts LogsOptions, w io.Writer) error

	// Status lists every container of the project, running or not.
	Status(ctx context.Context) (*ComposeStatus, error)

	// Exec runs a non-interactive command in a running service container.
	Exec(ctx context.Context, opts ExecOptions) (*ExecResult, error)

	// Shell attaches an interactive shell to a running service container.
	Shell(ctx context.Context, opts ShellOptions) error

	// Version returns the compose plugin version.
	Version(ctx context.Context) (string, error)

	// ComposeFile returns the absolute path of the compose file.
	ComposeFile() string
}

// =============================================================================
// Supporting Types
// =============================================================================

// ComposeConfig provides configuration for compose operations.
type ComposeConfig struct {
	// ProjectDir is the deployment directory holding compose.yaml and .env.
	ProjectDir string

	// ProjectName is passed as `-p` when set. Empty lets compose derive it
	// from the directory name.
	ProjectName string

	// File is the compose file name relative to ProjectDir.
	// Default: "compose.yaml"
	File string

	// Binary is the container CLI.
	// Default: "docker"
	Binary string

	// DefaultTimeout bounds each captured compose command.
	// Default: 15 minutes (image builds can be slow)
	DefaultTimeout time.Duration

	// Env is appended to the process environment of captured compose
	// commands so `${VAR}` interpolation sees the loaded .env values even
	// when the shell exports a different value.
	Env []string

	// Logger records every command executed. Nil disables logging.
	Logger *logging.Logger
}

// UpOptions configures the Up operation.
type UpOptions struct {
	// Build maps to --build.
	Build bool

	// ForceRecreate maps to --force-recreate.
	ForceRecreate bool

	// RemoveOrphans maps to --remove-orphans.
	RemoveOrphans bool

	// Services limits which services to start. Empty means all.
	Services []string

	// Timeout overrides DefaultTimeout.
	Timeout time.Duration
}

// DownOptions configures the Down operation.
type DownOptions struct {
	// RemoveOrphans maps to --remove-orphans.
	RemoveOrphans bool

	// RemoveVolumes maps to -v.
	// WARNING: This deletes the database and filestore and cannot be undone.
	RemoveVolumes bool

	// Timeout overrides DefaultTimeout.
	Timeout time.Duration
}

// RestartOptions configures the Restart operation.
type RestartOptions struct {
	Services []string
	Timeout  time.Duration
}

// BuildOptions configures the Build operation.
type BuildOptions struct {
	// Pull maps to --pull (refresh the base image).
	Pull bool

	// NoCache maps to --no-cache.
	NoCache bool

	Services []string
	Timeout  time.Duration
}

// LogsOptions configures the Logs operation.
type LogsOptions struct {
	// Follow maps to -f.
	Follow bool

	// Tail limits output to the last N lines per container. Zero means all.
	Tail int

	// Timestamps maps to --timestamps.
	Timestamps bool

	Services []string
}

// ExecOptions configures the Exec operation.
type ExecOptions struct {
	// Service is the compose service name. Required.
	Service string

	// Command is the command and arguments. Required.
	Command []string

	// User maps to --user.
	User string

	// Env contains additional environment variables.
	Env map[string]string

	// Timeout overrides DefaultTimeout.
	Timeout time.Duration
}

// ShellOptions configures the Shell operation.
type ShellOptions struct {
	// Service defaults to "odoo".
	Service string

	// User defaults to "root".
	User string

	// Shell defaults to "bash".
	Shell string
}

// ComposeResult contains the result of a compose operation.
type ComposeResult struct {
	Success  bool
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
	Command  string
}

// ComposeStatus contains the containers of the project.
type ComposeStatus struct {
	Services []ServiceStatus

	// Running is the count of running containers.
	Running int

	// Stopped is the count of exited or created containers.
	Stopped int

	// Unhealthy is the count of containers failing their health check.
	Unhealthy int
}

// Service returns the first container of the named service.
func (s *ComposeStatus) Service(name string) (ServiceStatus, bool) {
	if s == nil {
		return ServiceStatus{}, false
	}
	for _, svc := range s.Services {
		if svc.Name == name {
			return svc, true
		}
	}
	return ServiceStatus{}, false
}

// ServiceStatus is one container record from `docker compose ps`.
type ServiceStatus struct {
	// Name is the compose service name.
	Name string

	// ContainerName is the actual container name.
	ContainerName string

	// State is the container state (running, exited, created, restarting...).
	State string

	// Health is the raw health string ("healthy", "unhealthy", "starting", "").
	Health string

	// Healthy is nil when the service has no health check.
	Healthy *bool

	Ports []PortMapping
	Image string
}

// IsRunning reports whether the container state is "running".
func (s ServiceStatus) IsRunning() bool {
	return strings.EqualFold(s.State, "running")
}

// PortMapping represents a published port.
type PortMapping struct {
	HostIP        string
	HostPort      int
	ContainerPort int
	Protocol      string
}

// ExecResult contains the result of an Exec operation.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// =============================================================================
// Default Implementation
// =============================================================================

// DefaultComposeExecutor implements ComposeExecutor with `docker compose`.
type DefaultComposeExecutor struct {
	config ComposeConfig
	proc   process.Manager
	logger *logging.Logger
	mu     sync.Mutex
}

// NewDefaultComposeExecutor creates a ComposeExecutor for one project directory.
//
// # Inputs
//
//   - cfg: Compose configuration (ProjectDir required)
//   - proc: Process manager for command execution
//
// # Outputs
//
//   - *DefaultComposeExecutor: Configured executor
//   - error: ErrInvalidConfig if ProjectDir is empty
//
// # Example
//
//	executor, err := NewDefaultComposeExecutor(ComposeConfig{ProjectDir: "/srv/odoo"}, pm)
func NewDefaultComposeExecutor(cfg ComposeConfig, proc process.Manager) (*DefaultComposeExecutor, error) {
	if cfg.ProjectDir == "" {
		return nil, fmt.Errorf("%w: ProjectDir is required", ErrInvalidConfig)
	}
	if proc == nil {
		return nil, fmt.Errorf("%w: process manager is required", ErrInvalidConfig)
	}
	applyComposeConfigDefaults(&cfg)

	return &DefaultComposeExecutor{
		config: cfg,
		proc:   proc,
		logger: cfg.Logger,
	}, nil
}

func applyComposeConfigDefaults(cfg *ComposeConfig) {
	if cfg.File == "" {
		cfg.File = "compose.yaml"
	}
	if cfg.Binary == "" {
		cfg.Binary = "docker"
	}
	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = 15 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
}

// =============================================================================
// Interface Implementation
// =============================================================================

// Up implements ComposeExecutor.
func (e *DefaultComposeExecutor) Up(ctx context.Context, opts UpOptions) (*ComposeResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	args := e.baseArgs("up", "-d")
	if opts.Build {
		args = append(args, "--build")
	}
	if opts.ForceRecreate {
		args = append(args, "--force-recreate")
	}
	if opts.RemoveOrphans {
		args = append(args, "--remove-orphans")
	}
	args = append(args, opts.Services...)

	return e.runCompose(ctx, args, e.resolveTimeout(opts.Timeout))
}

// Down implements ComposeExecutor.
func (e *DefaultComposeExecutor) Down(ctx context.Context, opts DownOptions) (*ComposeResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	args := e.baseArgs("down")
	if opts.RemoveVolumes {
		args = append(args, "-v")
	}
	if opts.RemoveOrphans {
		args = append(args, "--remove-orphans")
	}

	return e.runCompose(ctx, args, e.resolveTimeout(opts.Timeout))
}

// Restart implements ComposeExecutor.
func (e *DefaultComposeExecutor) Restart(ctx context.Context, opts RestartOptions) (*ComposeResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	args := e.baseArgs("restart")
	args = append(args, opts.Services...)

	return e.runCompose(ctx, args, e.resolveTimeout(opts.Timeout))
}

// Build implements ComposeExecutor.
func (e *DefaultComposeExecutor) Build(ctx context.Context, opts BuildOptions) (*ComposeResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	args := e.baseArgs("build")
	if opts.Pull {
		args = append(args, "--pull")
	}
	if opts.NoCache {
		args = append(args, "--no-cache")
	}
	args = append(args, opts.Services...)

	return e.runCompose(ctx, args, e.resolveTimeout(opts.Timeout))
}

// Logs implements ComposeExecutor.
func (e *DefaultComposeExecutor) Logs(ctx context.Context, opts LogsOptions, w io.Writer) error {
	args := e.baseArgs("logs")
	if opts.Follow {
		args = append(args, "-f")
	}
	if opts.Tail > 0 {
		args = append(args, "--tail", strconv.Itoa(opts.Tail))
	}
	if opts.Timestamps {
		args = append(args, "--timestamps")
	}
	args = append(args, opts.Services...)

	return e.proc.RunStreaming(ctx, e.config.ProjectDir, w, e.config.Binary, args...)
}

// Status implements ComposeExecutor.
//
// # Description
//
// Runs `docker compose ps -a --format json` and decodes the records.
// Compose v2.21+ prints one JSON object per line; older releases print a
// single JSON array. Both are accepted.
func (e *DefaultComposeExecutor) Status(ctx context.Context) (*ComposeStatus, error) {
	args := e.baseArgs("ps", "-a", "--format", "json")

	result, err := e.runCompose(ctx, args, 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to get container status: %w", err)
	}

	return e.parseContainerStatus(result.Stdout)
}

// Exec implements ComposeExecutor.
//
// # Description
//
// Runs `docker compose exec -T` and captures output. A non-zero exit of the
// command inside the container is reported through ExecResult.ExitCode with
// a nil error, so callers can tell test failures from runtime failures.
func (e *DefaultComposeExecutor) Exec(ctx context.Context, opts ExecOptions) (*ExecResult, error) {
	if opts.Service == "" {
		return nil, fmt.Errorf("%w: service name is required", ErrInvalidConfig)
	}
	if len(opts.Command) == 0 {
		return nil, fmt.Errorf("%w: command is required", ErrInvalidConfig)
	}
	if err := validateEnvVars(opts.Env); err != nil {
		return nil, err
	}

	args := e.baseArgs("exec", "-T")
	if opts.User != "" {
		args = append(args, "--user", opts.User)
	}
	for k, v := range opts.Env {
		args = append(args, "-e", k+"="+v)
	}
	args = append(args, opts.Service)
	args = append(args, opts.Command...)

	result, err := e.runCompose(ctx, args, e.resolveTimeout(opts.Timeout))
	if result == nil {
		return nil, err
	}
	if err != nil && isContainerNotRunningError(result) {
		return nil, fmt.Errorf("%w: %s", ErrContainerNotRunning, opts.Service)
	}
	if err != nil && !errors.Is(err, ErrComposeFailed) {
		return nil, err
	}
	return &ExecResult{
		ExitCode: result.ExitCode,
		Stdout:   result.Stdout,
		Stderr:   result.Stderr,
	}, nil
}

// Shell implements ComposeExecutor.
func (e *DefaultComposeExecutor) Shell(ctx context.Context, opts ShellOptions) error {
	if opts.Service == "" {
		opts.Service = "odoo"
	}
	if opts.User == "" {
		opts.User = "root"
	}
	if opts.Shell == "" {
		opts.Shell = "bash"
	}
	args := e.baseArgs("exec", "--user", opts.User, opts.Service, opts.Shell)
	e.logger.Debug("compose shell", "cmd", e.config.Binary+" "+strings.Join(args, " "))
	return e.proc.RunInteractive(ctx, e.config.ProjectDir, e.config.Binary, args...)
}

// Version implements ComposeExecutor.
func (e *DefaultComposeExecutor) Version(ctx context.Context) (string, error) {
	result, err := e.runCompose(ctx, []string{"compose", "version", "--short"}, 30*time.Second)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Stdout), nil
}

// ComposeFile implements ComposeExecutor.
func (e *DefaultComposeExecutor) ComposeFile() string {
	return filepath.Join(e.config.ProjectDir, e.config.File)
}

// =============================================================================
// Helpers
// =============================================================================

// baseArgs returns `compose [-p name] -f file <sub...>`.
func (e *DefaultComposeExecutor) baseArgs(sub ...string) []string {
	args := []string{"compose"}
	if e.config.ProjectName != "" {
		args = append(args, "-p", e.config.ProjectName)
	}
	args = append(args, "-f", e.config.File)
	return append(args, sub...)
}

// runCompose executes a compose command and captures its output.
//
// # Outputs
//
//   - *ComposeResult: Always non-nil once the command was attempted
//   - error: Launch failure, or ErrComposeFailed wrapping a *util.CommandError
//     when the command exits non-zero
func (e *DefaultComposeExecutor) runCompose(ctx context.Context, args []string, timeout time.Duration) (*ComposeResult, error) {
	start := time.Now()
	cmdStr := e.config.Binary + " " + strings.Join(args, " ")

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stdout, stderr, exitCode, err := e.proc.RunInDir(execCtx, e.config.ProjectDir, e.config.Env, e.config.Binary, args...)

	result := &ComposeResult{
		Success:  exitCode == 0 && err == nil,
		ExitCode: exitCode,
		Stdout:   stdout,
		Stderr:   stderr,
		Duration: time.Since(start),
		Command:  cmdStr,
	}

	e.logger.Debug("compose",
		"cmd", e.config.Binary+" "+strings.Join(util.RedactArgs(args), " "),
		"exit_code", exitCode,
		"duration", result.Duration,
	)

	if err != nil {
		return result, fmt.Errorf("%s: %w", cmdStr, err)
	}
	if exitCode != 0 {
		return result, fmt.Errorf("%w: %w", ErrComposeFailed, util.NewCommandError(cmdStr, exitCode, stderr, nil))
	}
	return result, nil
}

func (e *DefaultComposeExecutor) resolveTimeout(timeout time.Duration) time.Duration {
	if timeout > 0 {
		return timeout
	}
	return e.config.DefaultTimeout
}

// psRecord mirrors one entry of `docker compose ps --format json`.
type psRecord struct {
	Name       string `json:"Name"`
	Service    string `json:"Service"`
	State      string `json:"State"`
	Health     string `json:"Health"`
	Status     string `json:"Status"`
	Image      string `json:"Image"`
	Publishers []struct {
		URL           string `json:"URL"`
		TargetPort    int    `json:"TargetPort"`
		PublishedPort int    `json:"PublishedPort"`
		Protocol      string `json:"Protocol"`
	} `json:"Publishers"`
}

// parseContainerStatus decodes a JSON array or newline-delimited JSON objects.
func (e *DefaultComposeExecutor) parseContainerStatus(output string) (*ComposeStatus, error) {
	status := &ComposeStatus{Services: []ServiceStatus{}}

	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return status, nil
	}

	var records []psRecord
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal([]byte(trimmed), &records); err != nil {
			return nil, fmt.Errorf("failed to parse container JSON: %w", err)
		}
	} else {
		scanner := bufio.NewScanner(strings.NewReader(trimmed))
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var rec psRecord
			if err := json.Unmarshal([]byte(line), &rec); err != nil {
				return nil, fmt.Errorf("failed to parse container JSON line: %w", err)
			}
			records = append(records, rec)
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read container JSON: %w", err)
		}
	}

	for _, rec := range records {
		svc := e.buildServiceStatus(rec)
		status.Services = append(status.Services, svc)
		updateStatusCounts(status, svc)
	}
	return status, nil
}

func (e *DefaultComposeExecutor) buildServiceStatus(rec psRecord) ServiceStatus {
	name := rec.Service
	if name == "" {
		name = e.extractServiceName(rec.Name)
	}

	svc := ServiceStatus{
		Name:          name,
		ContainerName: rec.Name,
		State:         strings.ToLower(rec.State),
		Health:        strings.ToLower(rec.Health),
		Image:         rec.Image,
		Ports:         []PortMapping{},
	}
	if svc.Health == "" {
		svc.Health = parseHealthFromStatus(rec.Status)
	}
	svc.Healthy = healthyPointer(svc.Health)

	for _, p := range rec.Publishers {
		if p.PublishedPort == 0 {
			continue
		}
		svc.Ports = append(svc.Ports, PortMapping{
			HostIP:        p.URL,
			HostPort:      p.PublishedPort,
			ContainerPort: p.TargetPort,
			Protocol:      p.Protocol,
		})
	}
	return svc
}

func updateStatusCounts(status *ComposeStatus, svc ServiceStatus) {
	switch svc.State {
	case "running":
		status.Running++
	case "exited", "created", "dead", "paused":
		status.Stopped++
	}
	if svc.Healthy != nil && !*svc.Healthy {
		status.Unhealthy++
	}
}

// parseHealthFromStatus reads "(healthy)" style suffixes from the Status column.
func parseHealthFromStatus(statusStr string) string {
	lower := strings.ToLower(statusStr)
	switch {
	case strings.Contains(lower, "unhealthy"):
		return "unhealthy"
	case strings.Contains(lower, "health: starting"):
		return "starting"
	case strings.Contains(lower, "healthy"):
		return "healthy"
	default:
		return ""
	}
}

func healthyPointer(health string) *bool {
	switch health {
	case "healthy":
		v := true
		return &v
	case "unhealthy":
		v := false
		return &v
	default:
		return nil
	}
}

// extractServiceName derives the service from "project-service-N" or
// "project_service_N" when compose omits the Service field.
func (e *DefaultComposeExecutor) extractServiceName(containerName string) string {
	name := containerName
	if e.config.ProjectName != "" {
		name = strings.TrimPrefix(name, e.config.ProjectName)
		name = strings.TrimLeft(name, "-_")
	}

	sep := "-"
	if !strings.Contains(name, "-") && strings.Contains(name, "_") {
		sep = "_"
	}
	parts := strings.Split(name, sep)
	if len(parts) > 1 {
		if _, err := strconv.Atoi(parts[len(parts)-1]); err == nil {
			parts = parts[:len(parts)-1]
		}
	}
	if e.config.ProjectName == "" && len(parts) > 1 {
		// Without a known project prefix, the service is the last segment.
		return parts[len(parts)-1]
	}
	return strings.Join(parts, sep)
}

func isContainerNotRunningError(result *ComposeResult) bool {
	if result == nil {
		return false
	}
	return strings.Contains(result.Stderr, "is not running") ||
		strings.Contains(result.Stderr, "No such container")
}

func validateEnvVars(env map[string]string) error {
	for key := range env {
		if !envVarKeyRegex.MatchString(key) {
			return fmt.Errorf("%w: key %q contains invalid characters (must match [a-zA-Z_][a-zA-Z0-9_]*)", ErrInvalidEnvVar, key)
		}
	}
	return nil
}

var _ ComposeExecutor = (*DefaultComposeExecutor)(nil)
