// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package materialize creates the files a deployment directory needs:
// .env, Dockerfile, compose.yaml and the extra-addons directory.
//
// Existing files are never overwritten except by RegenerateDockerfile, so
// manual edits survive every invocation.
package materialize

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/compose-spec/compose-go/v2/types"

	"github.com/AleutianAI/odooctl/cmd/odooctl/config"
	"github.com/AleutianAI/odooctl/pkg/logging"
)

// AddonsNormalizer prepares a freshly created addons directory for the
// container's runtime user.
type AddonsNormalizer interface {
	Normalize(ctx context.Context) error
}

// Result describes what Ensure did.
type Result struct {
	// Config is the configuration loaded from .env after it was ensured.
	Config *config.DeploymentConfig

	// Created lists the paths written by this call, relative to the project.
	Created []string

	// Warnings are non-fatal problems, such as a failed permission fix on
	// the new addons directory.
	Warnings []string
}

// CreatedAny reports whether anything was written.
func (r *Result) CreatedAny() bool {
	return len(r.Created) > 0
}

// Materializer owns the generated files of one deployment directory.
type Materializer struct {
	dir        string
	normalizer AddonsNormalizer
	logger     *logging.Logger
}

// New creates a Materializer for dir. A nil normalizer skips permission
// handling of a new addons directory; a nil logger disables logging.
func New(dir string, normalizer AddonsNormalizer, logger *logging.Logger) *Materializer {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Materializer{dir: dir, normalizer: normalizer, logger: logger}
}

// Dir returns the deployment directory.
func (m *Materializer) Dir() string {
	return m.dir
}

// Ensure makes every generated artifact exist and loads the configuration.
//
// # Description
//
// Idempotent and safe on every invocation:
//  1. .env is written with documented defaults if absent
//  2. .env is loaded and validated
//  3. Dockerfile and compose.yaml are rendered if absent
//  4. extra-addons/ is created if absent and handed to the normalizer
//
// A second call with no intervening edits writes nothing.
//
// # Outputs
//
//   - *Result: Loaded config and the list of created paths
//   - error: I/O failure or config.ErrInvalidConfig
func (m *Materializer) Ensure(ctx context.Context) (*Result, error) {
	result := &Result{}

	created, err := config.WriteDefaultEnv(m.dir)
	if err != nil {
		return nil, err
	}
	if created {
		m.logger.Info("created default .env", "dir", m.dir)
		result.Created = append(result.Created, config.EnvFileName)
	}

	cfg, err := config.Load(m.dir)
	if err != nil {
		return nil, err
	}
	result.Config = cfg

	dockerfile, err := RenderDockerfile(cfg)
	if err != nil {
		return nil, err
	}
	if err := m.writeIfAbsent(config.DockerfileName, dockerfile, result); err != nil {
		return nil, err
	}

	compose, err := RenderCompose()
	if err != nil {
		return nil, err
	}
	if err := m.writeIfAbsent(config.ComposeFileName, compose, result); err != nil {
		return nil, err
	}

	addonsCreated, err := m.ensureAddonsDir()
	if err != nil {
		return nil, err
	}
	if addonsCreated {
		result.Created = append(result.Created, config.AddonsDirName+"/")
		if m.normalizer != nil {
			if err := m.normalizer.Normalize(ctx); err != nil {
				m.logger.Warn("addons directory permission fix failed", "error", err)
				result.Warnings = append(result.Warnings, err.Error())
			}
		}
	}

	return result, nil
}

// RegenerateDockerfile overwrites the Dockerfile from cfg.
func (m *Materializer) RegenerateDockerfile(cfg *config.DeploymentConfig) error {
	content, err := RenderDockerfile(cfg)
	if err != nil {
		return err
	}
	path := filepath.Join(m.dir, config.DockerfileName)
	if err := os.WriteFile(path, content, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	m.logger.Info("regenerated Dockerfile", "path", path, "odoo_version", cfg.OdooVersion)
	return nil
}

// Validate loads compose.yaml with the compose-go loader.
func (m *Materializer) Validate(ctx context.Context, projectName string) (*types.Project, error) {
	return LoadProject(ctx, m.dir, projectName)
}

// AddonsDir returns the absolute addons directory path.
func (m *Materializer) AddonsDir() string {
	return filepath.Join(m.dir, config.AddonsDirName)
}

func (m *Materializer) writeIfAbsent(name string, content []byte, result *Result) error {
	path := filepath.Join(m.dir, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if errors.Is(err, fs.ErrExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	m.logger.Info("generated file", "path", path)
	result.Created = append(result.Created, name)
	return nil
}

func (m *Materializer) ensureAddonsDir() (bool, error) {
	path := m.AddonsDir()
	info, err := os.Stat(path)
	if err == nil {
		if !info.IsDir() {
			return false, fmt.Errorf("%s exists but is not a directory", path)
		}
		return false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if err := os.MkdirAll(path, 0775); err != nil {
		return false, fmt.Errorf("failed to create %s: %w", path, err)
	}
	return true, nil
}
