// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package permissions

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// SELinuxMode is the host enforcement mode reported by getenforce.
type SELinuxMode string

const (
	SELinuxEnforcing  SELinuxMode = "Enforcing"
	SELinuxPermissive SELinuxMode = "Permissive"

	// SELinuxDisabled also covers hosts without the SELinux tools.
	SELinuxDisabled SELinuxMode = "Disabled"
)

const (
	// SELinuxFileType is the context that lets containers use a bind mount.
	SELinuxFileType = "svirt_sandbox_file_t"

	// SELinuxBoolean lets containers manage cgroups.
	SELinuxBoolean = "container_manage_cgroup"
)

// Newer policies alias svirt_sandbox_file_t to container_file_t, which is
// what the kernel reports back.
var containerFileTypes = []string{SELinuxFileType, "container_file_t"}

// SELinuxResult describes the SELinux step of Fix. Every failure here is
// best-effort and non-fatal.
type SELinuxResult struct {
	Mode SELinuxMode

	// Relabeled is true if chcon ran successfully.
	Relabeled bool

	// AlreadyLabeled is true if every entry of the tree carried a container type.
	AlreadyLabeled bool
	RelabelErr     error

	BooleanSet bool
	BooleanErr error
}

// DetectSELinux queries getenforce. A missing tool or unexpected output
// is treated as Disabled.
func (n *Normalizer) DetectSELinux(ctx context.Context) SELinuxMode {
	if n.proc == nil {
		return SELinuxDisabled
	}
	if _, err := n.proc.LookPath("getenforce"); err != nil {
		return SELinuxDisabled
	}
	stdout, _, exitCode, err := n.proc.RunInDir(ctx, "", nil, "getenforce")
	if err != nil || exitCode != 0 {
		n.logger.Debug("getenforce failed", "exit_code", exitCode, "error", err)
		return SELinuxDisabled
	}
	switch strings.TrimSpace(stdout) {
	case string(SELinuxEnforcing):
		return SELinuxEnforcing
	case string(SELinuxPermissive):
		return SELinuxPermissive
	default:
		return SELinuxDisabled
	}
}

func (n *Normalizer) applySELinux(ctx context.Context) SELinuxResult {
	result := SELinuxResult{Mode: n.DetectSELinux(ctx)}
	if result.Mode != SELinuxEnforcing {
		return result
	}

	if path := n.firstUnlabeled(); path == "" {
		result.AlreadyLabeled = true
		n.logger.Debug("addons tree already labeled", "dir", n.dir)
	} else {
		n.logger.Debug("relabeling addons tree", "first_unlabeled", path)
		result.RelabelErr = n.runTool(ctx, "chcon", "-Rt", SELinuxFileType, n.dir)
		result.Relabeled = result.RelabelErr == nil
	}

	result.BooleanErr = n.runTool(ctx, "setsebool", "-P", SELinuxBoolean, "on")
	result.BooleanSet = result.BooleanErr == nil
	return result
}

func (n *Normalizer) runTool(ctx context.Context, name string, args ...string) error {
	_, stderr, exitCode, err := n.proc.RunInDir(ctx, "", nil, name, args...)
	if err != nil {
		n.logger.Warn("selinux tool failed to run", "tool", name, "error", err)
		return err
	}
	if exitCode != 0 {
		msg := strings.TrimSpace(stderr)
		if msg == "" {
			msg = fmt.Sprintf("exit status %d", exitCode)
		}
		n.logger.Warn("selinux tool failed", "tool", name, "exit_code", exitCode, "stderr", msg)
		return fmt.Errorf("%s: %s", name, msg)
	}
	return nil
}

// firstUnlabeled returns the first path under the addons directory whose
// label is missing, unreadable or not a container type, or "" when the
// whole tree is labeled. Modules moved in from $HOME keep user_home_t
// under a relabeled parent, so every entry is checked.
func (n *Normalizer) firstUnlabeled() string {
	var found string
	err := filepath.WalkDir(n.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			found = path
			return fs.SkipAll
		}
		if label, lerr := n.readLabel(path); lerr != nil || !hasContainerType(label) {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if err != nil && found == "" {
		found = n.dir
	}
	return found
}

// hasContainerType reports whether a user:role:type:level context carries
// one of the container file types.
func hasContainerType(label string) bool {
	parts := strings.Split(label, ":")
	if len(parts) < 3 {
		return false
	}
	for _, t := range containerFileTypes {
		if parts[2] == t {
			return true
		}
	}
	return false
}

func readSELinuxLabel(path string) (string, error) {
	buf := make([]byte, 256)
	n, err := unix.Lgetxattr(path, "security.selinux", buf)
	if errors.Is(err, unix.ERANGE) {
		size, sizeErr := unix.Lgetxattr(path, "security.selinux", nil)
		if sizeErr != nil {
			return "", sizeErr
		}
		buf = make([]byte, size)
		n, err = unix.Lgetxattr(path, "security.selinux", buf)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(buf[:n]), "\x00"), nil
}
