// Vibebackup - Hierarchical Project Backup and Retention
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vibebackup

/*
lock.go - Instance Lock

A cross-process advisory lock backed by a JSON token file at the storage root.
Only one engine instance may hold it; scheduled and manual runs serialize on it.

Acquisition:
 1. Write a complete LockRecord to a uniquely named temp file in the same directory
 2. Hard-link the temp file to the lock path (fails if a lock already exists)
 3. On conflict, read the existing record and decide liveness:
    - owner on this host and process not running: stale
    - age greater than StaleAfter: stale
    - otherwise: held by someone else, acquisition fails
 4. A stale record is moved aside to a tombstone and acquisition is retried once

Steps 1-4 and Release run under an exclusive flock on the lock directory, so
two contenders can never both judge the same record stale and then remove
each other's fresh lock.

A crash after acquisition leaves the record behind; the next run reclaims it
through the staleness check even though Release never ran.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/juju/clock"

	"github.com/tomtom215/vibebackup/internal/logging"
)

// LockFileName is the name of the lock record at the storage root
const LockFileName = "backup.lock"

// corruptLockGrace is how long an unreadable lock file is assumed to be
// mid-write before it is treated as stale.
const corruptLockGrace = time.Minute

// Lock guarantees single-writer semantics for the engine
type Lock interface {
	// Acquire attempts to take the lock. It returns false, nil when another
	// live instance holds it.
	Acquire(ctx context.Context) (bool, error)

	// Release drops the lock if this instance holds it
	Release() error
}

// ProcessChecker answers whether a process id refers to a running process
type ProcessChecker interface {
	Alive(pid int) bool
}

// FileLock is a Lock backed by an atomically created token file
type FileLock struct {
	path       string
	staleAfter time.Duration
	clock      clock.Clock
	checker    ProcessChecker
	host       string
	pid        int

	held *LockRecord
}

// FileLockOption customises a FileLock
type FileLockOption func(*FileLock)

// WithProcessChecker overrides the liveness check
func WithProcessChecker(c ProcessChecker) FileLockOption {
	return func(l *FileLock) { l.checker = c }
}

// WithLockClock overrides the clock used for staleness
func WithLockClock(c clock.Clock) FileLockOption {
	return func(l *FileLock) { l.clock = c }
}

// WithLockIdentity overrides the host and pid written to the record
func WithLockIdentity(host string, pid int) FileLockOption {
	return func(l *FileLock) {
		l.host = host
		l.pid = pid
	}
}

// NewFileLock creates a lock at path. Records older than staleAfter are reclaimable.
func NewFileLock(path string, staleAfter time.Duration, opts ...FileLockOption) *FileLock {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}

	l := &FileLock{
		path:       path,
		staleAfter: staleAfter,
		clock:      clock.WallClock,
		checker:    OSProcessChecker{},
		host:       host,
		pid:        os.Getpid(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path returns the lock file path
func (l *FileLock) Path() string {
	return l.path
}

// Acquire implements Lock
func (l *FileLock) Acquire(ctx context.Context) (bool, error) {
	if l.held != nil {
		return true, nil
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o750); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}
	unguard, err := guardDir(filepath.Dir(l.path))
	if err != nil {
		return false, err
	}
	defer unguard()

	rec := LockRecord{
		ProcessID: l.pid,
		StartTime: l.clock.Now().UTC(),
		Host:      l.host,
	}

	// Two passes: the second runs only after a stale record was moved aside
	for pass := 0; pass < 2; pass++ {
		created, err := l.tryCreate(rec)
		if err != nil {
			return false, err
		}
		if created {
			l.held = &rec
			logging.Ctx(ctx).Debug().
				Str("lock", l.path).
				Int("pid", rec.ProcessID).
				Msg("Instance lock acquired")
			return true, nil
		}

		existing, modTime, err := l.read()
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil && l.clock.Now().Sub(modTime) < corruptLockGrace {
			return false, nil
		}
		if err == nil && !l.isStale(existing) {
			logging.Ctx(ctx).Warn().
				Int("owner_pid", existing.ProcessID).
				Str("owner_host", existing.Host).
				Time("owner_start", existing.StartTime).
				Msg("Lock held by a live instance")
			return false, nil
		}

		reclaimed, err := l.reclaim(existing)
		if err != nil {
			return false, err
		}
		if !reclaimed {
			return false, nil
		}
		logging.Ctx(ctx).Warn().
			Int("owner_pid", existing.ProcessID).
			Str("owner_host", existing.Host).
			Msg("Reclaimed stale instance lock")
	}

	return false, nil
}

// Release implements Lock. It only removes the file if it still holds this
// instance's record.
func (l *FileLock) Release() error {
	if l.held == nil {
		return nil
	}
	defer func() { l.held = nil }()

	unguard, err := guardDir(filepath.Dir(l.path))
	if err != nil {
		return err
	}
	defer unguard()

	current, _, err := l.read()
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err == nil && !sameRecord(current, *l.held) {
		return nil
	}

	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

// isStale applies the liveness and age rules to a record
func (l *FileLock) isStale(rec LockRecord) bool {
	if l.clock.Now().Sub(rec.StartTime) > l.staleAfter {
		return true
	}
	// Another host's pid table is not visible from here; rely on age alone
	if rec.Host != l.host {
		return false
	}
	return !l.checker.Alive(rec.ProcessID)
}

// tryCreate writes rec to a temp file and links it into place.
// Returns false when a lock file already exists.
func (l *FileLock) tryCreate(rec LockRecord) (bool, error) {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return false, fmt.Errorf("failed to marshal lock record: %w", err)
	}

	tmp := l.path + ".tmp-" + uuid.NewString()
	if err := writeFileSync(tmp, data, 0o600); err != nil {
		return false, fmt.Errorf("failed to write lock temp file: %w", err)
	}
	defer os.Remove(tmp) //nolint:errcheck // Temp file is always discarded

	err = os.Link(tmp, l.path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}

	// Filesystems without hard links fall back to exclusive create
	f, ferr := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600) //nolint:gosec // G304: lock path comes from configuration
	if errors.Is(ferr, fs.ErrExist) {
		return false, nil
	}
	if ferr != nil {
		return false, fmt.Errorf("failed to create lock file: %w", ferr)
	}
	if _, werr := f.Write(data); werr != nil {
		f.Close()         //nolint:errcheck,gosec // Best effort cleanup on error
		os.Remove(l.path) //nolint:errcheck,gosec // Best effort cleanup on error
		return false, fmt.Errorf("failed to write lock file: %w", werr)
	}
	if err := f.Sync(); err != nil {
		f.Close() //nolint:errcheck,gosec // Closing after failed sync
		return false, fmt.Errorf("failed to sync lock file: %w", err)
	}
	return true, f.Close()
}

// reclaim moves a stale lock aside. If the file turned out to hold a different
// record than the one judged stale, it is put back and reclaim reports false.
func (l *FileLock) reclaim(stale LockRecord) (bool, error) {
	tomb := l.path + ".stale-" + uuid.NewString()
	if err := os.Rename(l.path, tomb); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return true, nil
		}
		return false, fmt.Errorf("failed to move stale lock aside: %w", err)
	}
	defer os.Remove(tomb) //nolint:errcheck // Tombstone is always discarded

	moved, _, err := readLockRecord(tomb)
	if err == nil && !sameRecord(moved, stale) {
		// Raced with another reclaimer that already took the lock
		if lerr := os.Link(tomb, l.path); lerr != nil && !errors.Is(lerr, fs.ErrExist) {
			return false, fmt.Errorf("failed to restore lock file: %w", lerr)
		}
		return false, nil
	}
	return true, nil
}

func (l *FileLock) read() (LockRecord, time.Time, error) {
	return readLockRecord(l.path)
}

// ReadLockRecord returns the record currently stored at path
func ReadLockRecord(path string) (LockRecord, error) {
	rec, _, err := readLockRecord(path)
	return rec, err
}

//nolint:gosec // G304: path is the configured lock file
func readLockRecord(path string) (LockRecord, time.Time, error) {
	var rec LockRecord

	info, err := os.Stat(path)
	if err != nil {
		return rec, time.Time{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return rec, info.ModTime(), err
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, info.ModTime(), fmt.Errorf("corrupt lock record: %w", err)
	}
	return rec, info.ModTime(), nil
}

func sameRecord(a, b LockRecord) bool {
	return a.ProcessID == b.ProcessID && a.Host == b.Host && a.StartTime.Equal(b.StartTime)
}
