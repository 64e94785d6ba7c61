// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package materialize

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/compose-spec/compose-go/v2/cli"
	"github.com/compose-spec/compose-go/v2/types"

	"github.com/AleutianAI/odooctl/cmd/odooctl/config"
)

// ErrComposeInvalid is returned when compose.yaml cannot be loaded or is
// missing one of the expected services.
var ErrComposeInvalid = errors.New("compose.yaml is invalid")

// LoadProject parses dir/compose.yaml the way `docker compose` would,
// interpolating ${VAR} references from dir/.env only.
//
// # Inputs
//
//   - ctx: Context for cancellation
//   - dir: Deployment directory
//   - projectName: Compose project name, empty to derive it from dir
//
// # Outputs
//
//   - *types.Project: Fully interpolated project
//   - error: ErrComposeInvalid wrapping the parser error
func LoadProject(ctx context.Context, dir, projectName string) (*types.Project, error) {
	optFns := []cli.ProjectOptionsFn{
		cli.WithWorkingDirectory(dir),
		cli.WithEnvFiles(config.EnvPath(dir)),
		cli.WithDotEnv,
	}
	if projectName != "" {
		optFns = append(optFns, cli.WithName(projectName))
	}

	opts, err := cli.NewProjectOptions([]string{filepath.Join(dir, config.ComposeFileName)}, optFns...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrComposeInvalid, err)
	}

	project, err := cli.ProjectFromOptions(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrComposeInvalid, err)
	}

	for _, name := range []string{ServiceOdoo, ServiceDB} {
		if _, ok := project.Services[name]; !ok {
			return nil, fmt.Errorf("%w: service %q is not defined", ErrComposeInvalid, name)
		}
	}
	return project, nil
}

// PublishedPort returns the host port mapped to the odoo web port.
func PublishedPort(project *types.Project) (string, bool) {
	if project == nil {
		return "", false
	}
	svc, ok := project.Services[ServiceOdoo]
	if !ok {
		return "", false
	}
	for _, p := range svc.Ports {
		if p.Target == OdooContainerPort && p.Published != "" {
			return p.Published, true
		}
	}
	return "", false
}
