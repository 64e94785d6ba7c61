// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package util provides foundational utilities for odooctl.
//
// It has no dependencies on other internal packages and depends only on the
// Go standard library, making it a leaf in the dependency graph.
//
// # Key Types
//
//   - [CommandError]: a failed external command with exit code and stderr
//   - [ExitError]: an error that carries the process exit code for main
//
// # Key Functions
//
//   - [WrapCommandError], [ExtractStderr]: CommandError helpers
//   - [ExitCodeOf]: maps an error chain to a process exit code
//   - [IsSensitiveKey], [RedactEnv]: hide secrets before logging command environments
package util
