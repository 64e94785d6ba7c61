// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
)

// ErrEnvFileMissing is returned by Load when the project has no .env file.
var ErrEnvFileMissing = errors.New(".env file not found")

const defaultEnvTemplate = `# odooctl deployment settings
# Edit this file, then run "odooctl rebuild" to apply package changes.

# Odoo image tag (odoo:<version>)
ODOO_VERSION=%s

# Host port for the Odoo web interface
ODOO_PORT=%d

# Extra Debian packages, space separated (installed as root)
APT_PACKAGES=""

# Extra Python packages, space separated (installed with pip as the odoo user)
PIP_PACKAGES=""

# PostgreSQL credentials shared by the db and odoo services
POSTGRES_USER=%s
POSTGRES_PASSWORD=%s
POSTGRES_DB=%s
`

// EnvPath returns the .env path inside dir.
func EnvPath(dir string) string {
	return filepath.Join(dir, EnvFileName)
}

// WriteDefaultEnv creates dir/.env with documented defaults.
//
// # Description
//
// Never overwrites an existing file. The file is created with O_EXCL so a
// concurrent invocation cannot clobber one written a moment earlier.
//
// # Outputs
//
//   - bool: true if the file was created by this call
//   - error: Non-nil if the file could not be written
func WriteDefaultEnv(dir string) (bool, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return false, fmt.Errorf("failed to create project directory: %w", err)
	}

	path := EnvPath(dir)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to create %s: %w", path, err)
	}

	d := Default()
	content := fmt.Sprintf(defaultEnvTemplate,
		d.OdooVersion, d.OdooPort, d.PostgresUser, d.PostgresPassword, d.PostgresDB)
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return true, nil
}

// Load reads dir/.env into a validated DeploymentConfig.
//
// # Description
//
// The file is parsed with godotenv (comments and surrounding quotes are
// handled there) and bound onto DeploymentConfig with caarlos0/env using
// the parsed values as the only environment. Variables exported in the
// calling shell are deliberately ignored: .env is the source of truth.
//
// # Outputs
//
//   - *DeploymentConfig: Parsed and validated configuration
//   - error: ErrEnvFileMissing, a read error, or ErrInvalidConfig
func Load(dir string) (*DeploymentConfig, error) {
	path := EnvPath(dir)
	values, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrEnvFileMissing, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Parse(values)
}

// Parse binds already-parsed .env values onto a DeploymentConfig and validates it.
func Parse(values map[string]string) (*DeploymentConfig, error) {
	if values == nil {
		values = map[string]string{}
	}

	var cfg DeploymentConfig
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: values}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
