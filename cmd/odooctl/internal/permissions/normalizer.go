// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package permissions makes the extra-addons bind mount usable by the odoo
// container: ownership by the image's odoo user, group-writable modes and,
// on SELinux enforcing hosts, a container file context.
package permissions

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/AleutianAI/odooctl/cmd/odooctl/internal/infra/process"
	"github.com/AleutianAI/odooctl/pkg/logging"
)

// Ownership and modes applied to the addons tree. 101:101 is the odoo
// user and group baked into the official odoo image.
const (
	ContainerUID = 101
	ContainerGID = 101

	DirMode  fs.FileMode = 0775
	FileMode fs.FileMode = 0664
)

// ErrAddonsListing is returned when the addons directory cannot be read
// back after normalization. It is the only fatal outcome of Fix.
var ErrAddonsListing = errors.New("cannot list addons directory")

// ErrOwnership is returned by Normalize when ownership or modes could not
// be applied.
var ErrOwnership = errors.New("cannot set addons ownership")

// Report describes the outcome of Fix. Failures of individual steps are
// recorded here rather than returned.
type Report struct {
	AddonsDir string

	// Created is true if the directory did not exist before.
	Created bool

	// Changed counts the entries whose owner or mode was applied.
	Changed int

	// OwnershipErr is the first chown/chmod failure, nil on success.
	OwnershipErr error

	// Remedy is the manual command equivalent to the ownership step.
	Remedy string

	SELinux SELinuxResult

	// Modules are the immediate subdirectories, sorted.
	Modules []string
}

// OwnershipOK reports whether every entry got the container ownership.
func (r *Report) OwnershipOK() bool {
	return r.OwnershipErr == nil
}

// Normalizer applies container-friendly ownership and labels to one
// addons directory.
type Normalizer struct {
	dir    string
	proc   process.Manager
	logger *logging.Logger

	// Replaced in tests.
	chown     func(path string, uid, gid int) error
	chmod     func(path string, mode fs.FileMode) error
	readLabel func(path string) (string, error)
	euid      func() int
}

// New creates a Normalizer for addonsDir. The process manager runs the
// SELinux tools (getenforce, chcon, setsebool).
func New(addonsDir string, proc process.Manager, logger *logging.Logger) *Normalizer {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Normalizer{
		dir:       addonsDir,
		proc:      proc,
		logger:    logger,
		chown:     os.Lchown,
		chmod:     os.Chmod,
		readLabel: readSELinuxLabel,
		euid:      unix.Geteuid,
	}
}

// Dir returns the addons directory.
func (n *Normalizer) Dir() string {
	return n.dir
}

// Fix creates the addons directory if needed, applies ownership and modes,
// relabels it on SELinux enforcing hosts and counts the modules inside.
//
// # Outputs
//
//   - *Report: Outcome of every step, including non-fatal failures
//   - error: Only when the directory cannot be created or listed
//     (wraps ErrAddonsListing for the latter)
func (n *Normalizer) Fix(ctx context.Context) (*Report, error) {
	report := &Report{AddonsDir: n.dir, Remedy: n.remedy()}

	created, err := n.ensureDir()
	if err != nil {
		return report, err
	}
	report.Created = created

	report.Changed, report.OwnershipErr = n.applyOwnership()
	if report.OwnershipErr != nil {
		n.logger.Warn("ownership change incomplete", "dir", n.dir, "error", report.OwnershipErr)
	}

	report.SELinux = n.applySELinux(ctx)

	modules, err := ListModules(n.dir)
	if err != nil {
		return report, err
	}
	report.Modules = modules
	return report, nil
}

// Normalize runs Fix and reduces the outcome to an error, for callers that
// only need to know whether the directory is usable.
func (n *Normalizer) Normalize(ctx context.Context) error {
	report, err := n.Fix(ctx)
	if err != nil {
		return err
	}
	if report.OwnershipErr != nil {
		return fmt.Errorf("%w: %w (run: %s)", ErrOwnership, report.OwnershipErr, report.Remedy)
	}
	return nil
}

// ListModules returns the names of the non-hidden subdirectories of dir.
func ListModules(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAddonsListing, err)
	}
	modules := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		modules = append(modules, e.Name())
	}
	sort.Strings(modules)
	return modules, nil
}

func (n *Normalizer) ensureDir() (bool, error) {
	if _, err := os.Stat(n.dir); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("failed to stat %s: %w", n.dir, err)
	}
	if err := os.MkdirAll(n.dir, DirMode); err != nil {
		return false, fmt.Errorf("failed to create %s: %w", n.dir, err)
	}
	n.logger.Info("created addons directory", "dir", n.dir)
	return true, nil
}

// applyOwnership walks the tree and stops at the first failure, since a
// permission error on one entry means the rest will fail the same way.
func (n *Normalizer) applyOwnership() (int, error) {
	changed := 0
	err := filepath.WalkDir(n.dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := n.chown(path, ContainerUID, ContainerGID); err != nil {
			return err
		}
		if d.Type()&fs.ModeSymlink == 0 {
			mode, err := targetMode(d)
			if err != nil {
				return err
			}
			if err := n.chmod(path, mode); err != nil {
				return err
			}
		}
		changed++
		return nil
	})
	return changed, err
}

// targetMode keeps execute bits on files so helper scripts stay runnable.
func targetMode(d fs.DirEntry) (fs.FileMode, error) {
	if d.IsDir() {
		return DirMode, nil
	}
	info, err := d.Info()
	if err != nil {
		return 0, err
	}
	return FileMode | (info.Mode().Perm() & 0111), nil
}

func (n *Normalizer) remedy() string {
	prefix := ""
	if n.euid() != 0 {
		prefix = "sudo "
	}
	return fmt.Sprintf("%schown -R %d:%d %s && %schmod -R u+rwX,g+rwX %s",
		prefix, ContainerUID, ContainerGID, n.dir, prefix, n.dir)
}
