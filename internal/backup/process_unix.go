// Vibebackup - Hierarchical Project Backup and Retention
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vibebackup

//go:build unix

package backup

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// OSProcessChecker queries the local process table
type OSProcessChecker struct{}

// Alive reports whether pid exists. EPERM means the process exists but belongs
// to another user.
func (OSProcessChecker) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// guardDir takes an exclusive flock on dir and returns the release func.
// flock locks belong to the open file description, so goroutines holding
// separate descriptors exclude each other just like separate processes.
//
//nolint:gosec // G304: dir is the configured storage root
func guardDir(dir string) (func(), error) {
	f, err := os.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock directory: %w", err)
	}
	for {
		err = unix.Flock(int(f.Fd()), unix.LOCK_EX)
		if !errors.Is(err, unix.EINTR) {
			break
		}
	}
	if err != nil {
		f.Close() //nolint:errcheck,gosec // Already failing
		return nil, fmt.Errorf("failed to lock directory %s: %w", dir, err)
	}
	return func() {
		unix.Flock(int(f.Fd()), unix.LOCK_UN) //nolint:errcheck,gosec // Close releases it regardless
		f.Close()                             //nolint:errcheck,gosec // Read-only handle
	}, nil
}
