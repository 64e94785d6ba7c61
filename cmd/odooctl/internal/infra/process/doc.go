// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package process provides abstractions for external process execution and
per-project locking.

# Overview

This package contains two main components:

  - Manager: Abstracts external process execution for testability
  - ProcessLock: File-based locking so two terminals cannot drive the same
    deployment directory at once

# Manager

Every call to docker, getenforce, chcon or setsebool goes through Manager so
unit tests can substitute MockManager.

	pm := process.NewDefaultManager(logger)
	stdout, stderr, code, err := pm.RunInDir(ctx, dir, nil, "docker", "compose", "ps")

A non-zero exit status is reported through the exit code, not the error.
The error is reserved for failures to launch or wait on the process.

For testing, use MockManager:

	mock := &process.MockManager{
	    RunInDirFunc: func(ctx context.Context, dir string, env []string, name string, args ...string) (string, string, int, error) {
	        return "Enforcing\n", "", 0, nil
	    },
	}

# ProcessLock

	lock := process.NewProcessLock(process.ProcessLockConfig{LockDir: projectDir})
	if err := lock.Acquire(); err != nil {
	    return err
	}
	defer lock.Release()

# Thread Safety

  - Manager implementations are safe for concurrent use
  - ProcessLock is NOT safe for concurrent use from multiple goroutines

# Limitations

  - ProcessLock uses advisory locks
  - ProcessLock requires OS support for flock(2)
*/
package process
