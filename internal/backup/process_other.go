// Vibebackup - Hierarchical Project Backup and Retention
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vibebackup

//go:build !unix

package backup

import (
	"os"
	"sync"
)

// OSProcessChecker queries the local process table
type OSProcessChecker struct{}

// Alive reports whether pid exists. On these platforms FindProcess fails for
// unknown pids.
func (OSProcessChecker) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	p.Release() //nolint:errcheck // Handle only used for the existence check
	return true
}

// dirGuard serializes lock decisions within this process. There is no
// portable advisory lock here, so other processes rely on the link step alone.
var dirGuard sync.Mutex

func guardDir(string) (func(), error) {
	dirGuard.Lock()
	return dirGuard.Unlock, nil
}
