// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.
package process

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// ProcessLocker serializes mutating odooctl commands within one project.
//
// # Description
//
// Two terminals pointed at the same deployment directory must not race
// compose operations, e.g. `odooctl start` still waiting for the odoo
// service while `odooctl clean` removes the volumes it is creating.
type ProcessLocker interface {
	// Acquire takes the lock without blocking.
	Acquire() error

	// Release drops the lock. Calling it when the lock is not held is a no-op.
	Release() error

	// IsHeld reports whether this instance holds the lock.
	IsHeld() bool

	// HolderPID returns the PID recorded in the lock file, or 0.
	HolderPID() int
}

// ProcessLockConfig configures where the lock file lives.
type ProcessLockConfig struct {
	// LockDir is normally the project directory. Default: os.TempDir().
	LockDir string

	// LockName is the file name without extension. Default: ".odooctl".
	LockName string
}

// ProcessLock implements ProcessLocker with flock(2) on {LockDir}/{LockName}.lock.
//
// The holder writes its PID into the lock file itself so a rejected
// command can say who is in the way. The file is truncated on release and
// left in place; deleting it would let a third process lock a fresh inode
// while a second one still holds the old one.
//
// The lock is advisory and unreliable on NFS.
type ProcessLock struct {
	lockPath string
	file     *os.File
}

// NewProcessLock returns an unacquired lock.
func NewProcessLock(config ProcessLockConfig) *ProcessLock {
	if config.LockDir == "" {
		config.LockDir = os.TempDir()
	}
	if config.LockName == "" {
		config.LockName = ".odooctl"
	}
	return &ProcessLock{lockPath: filepath.Join(config.LockDir, config.LockName+".lock")}
}

// Acquire takes the lock.
//
// # Outputs
//
//   - error: nil if acquired (or already held by p), *ErrLockHeld if
//     another process holds it, a wrapped error otherwise
func (p *ProcessLock) Acquire() error {
	if p.file != nil {
		return nil
	}

	f, err := os.OpenFile(p.lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("failed to create lock file %s: %w", p.lockPath, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return &ErrLockHeld{HolderPID: p.HolderPID(), LockPath: p.lockPath}
		}
		return fmt.Errorf("failed to acquire lock: %w", err)
	}

	// The PID is diagnostic only.
	if err := f.Truncate(0); err == nil {
		_, _ = f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	}

	p.file = f
	return nil
}

// Release clears the recorded PID and unlocks.
func (p *ProcessLock) Release() error {
	if p.file == nil {
		return nil
	}
	f := p.file
	p.file = nil

	_ = f.Truncate(0)
	err := unix.Flock(int(f.Fd()), unix.LOCK_UN)
	f.Close()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// IsHeld reports whether p holds the lock.
func (p *ProcessLock) IsHeld() bool {
	return p.file != nil
}

// HolderPID reads the PID from the lock file. It is 0 when the lock is
// free and may be stale if the holder was killed.
func (p *ProcessLock) HolderPID() int {
	data, err := os.ReadFile(p.lockPath)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}

// LockPath returns the lock file path.
func (p *ProcessLock) LockPath() string {
	return p.lockPath
}

// ErrLockHeld reports that another process holds the project lock.
type ErrLockHeld struct {
	HolderPID int
	LockPath  string
}

// Error implements error.
func (e *ErrLockHeld) Error() string {
	if e.HolderPID > 0 {
		return fmt.Sprintf("another odooctl instance is working on this project (PID %d)", e.HolderPID)
	}
	return fmt.Sprintf("another odooctl instance is working on this project (check: lsof %s)", e.LockPath)
}

var _ ProcessLocker = (*ProcessLock)(nil)
