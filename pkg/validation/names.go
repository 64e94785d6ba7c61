// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation checks names that odooctl passes to subprocesses.
//
// Module and database names end up as arguments of `odoo -i` and
// `createdb`/`dropdb` inside the containers. Anything outside the accepted
// character sets is rejected before a command is built.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// moduleNamePattern matches an Odoo module technical name, which is also a
// Python package name.
var moduleNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,127}$`)

// databaseNamePattern matches an unquoted PostgreSQL identifier.
// Max length: 63 bytes (NAMEDATALEN - 1)
var databaseNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// ValidateModuleName validates one module technical name.
//
// Example:
//
//	if err := validation.ValidateModuleName(name); err != nil {
//	    return fmt.Errorf("cannot test %s: %w", name, err)
//	}
func ValidateModuleName(name string) error {
	if name == "" {
		return fmt.Errorf("module name cannot be empty")
	}
	if !moduleNamePattern.MatchString(name) {
		return fmt.Errorf("invalid module name %q (must be letters, digits or underscores, not starting with a digit)", name)
	}
	return nil
}

// ValidateModuleNames validates several module names.
// Returns an error listing all invalid names if any fail validation.
func ValidateModuleNames(names []string) error {
	var invalid []string
	for _, n := range names {
		if err := ValidateModuleName(n); err != nil {
			invalid = append(invalid, fmt.Sprintf("%q", n))
		}
	}
	if len(invalid) > 0 {
		return fmt.Errorf("invalid module names: %s", strings.Join(invalid, ", "))
	}
	return nil
}

// SanitizeModuleName trims surrounding whitespace and validates the result.
func SanitizeModuleName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if err := ValidateModuleName(trimmed); err != nil {
		return "", err
	}
	return trimmed, nil
}

// ValidateDatabaseName validates a database name used without quoting.
func ValidateDatabaseName(name string) error {
	if name == "" {
		return fmt.Errorf("database name cannot be empty")
	}
	if !databaseNamePattern.MatchString(name) {
		return fmt.Errorf("invalid database name %q (must be 1-63 lowercase letters, digits or underscores)", name)
	}
	return nil
}
