// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package util

import (
	"strings"
)

// sensitivePatterns mark environment keys whose values never reach a log.
var sensitivePatterns = []string{
	"PASSWORD",
	"SECRET",
	"TOKEN",
	"KEY",
	"CREDENTIAL",
	"AUTH",
}

// IsSensitiveKey reports whether an environment variable name looks secret.
func IsSensitiveKey(key string) bool {
	upper := strings.ToUpper(key)
	for _, pattern := range sensitivePatterns {
		if strings.Contains(upper, pattern) {
			return true
		}
	}
	return false
}

// RedactEnv returns a copy of KEY=VALUE entries with sensitive values replaced.
func RedactEnv(env []string) []string {
	out := make([]string, len(env))
	for i, kv := range env {
		key, _, found := strings.Cut(kv, "=")
		if found && IsSensitiveKey(key) {
			out[i] = key + "=[REDACTED]"
			continue
		}
		out[i] = kv
	}
	return out
}

// RedactArgs hides the value of any --flag=value or NAME=value argument
// whose name looks secret. The odoo test runner passes --db_password=...
func RedactArgs(args []string) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		name, _, found := strings.Cut(arg, "=")
		if found && IsSensitiveKey(strings.TrimLeft(name, "-")) {
			out[i] = name + "=[REDACTED]"
			continue
		}
		out[i] = arg
	}
	return out
}
