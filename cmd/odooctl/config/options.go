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
	"fmt"

	"github.com/caarlos0/env/v9"
)

// ToolOptions are odooctl's own settings. Command line flags take
// precedence over these environment variables.
type ToolOptions struct {
	// Dir is the deployment directory. Empty means the working directory.
	Dir string `env:"ODOOCTL_DIR"`

	// ProjectName overrides the compose project name.
	ProjectName string `env:"COMPOSE_PROJECT_NAME"`

	// LogDir enables the JSON log file sink.
	LogDir string `env:"ODOOCTL_LOG_DIR"`

	// Personality selects the console output level.
	Personality string `env:"ODOOCTL_PERSONALITY"`

	Verbose bool `env:"ODOOCTL_VERBOSE"`
}

// LoadToolOptions reads ToolOptions from the process environment.
func LoadToolOptions() (ToolOptions, error) {
	var opts ToolOptions
	if err := env.Parse(&opts); err != nil {
		return ToolOptions{}, fmt.Errorf("failed to read odooctl environment: %w", err)
	}
	return opts, nil
}
