// Vibebackup - Hierarchical Project Backup and Retention
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vibebackup

package backup

import (
	"errors"
	"fmt"
)

var (
	// ErrLockContention means another live instance holds the lock
	ErrLockContention = errors.New("another instance is already running")

	// ErrTransientIO covers archive build, size and move failures that may succeed on retry
	ErrTransientIO = errors.New("transient I/O failure")

	// ErrIntegrityFailure means an archive failed structural verification
	ErrIntegrityFailure = errors.New("archive failed integrity verification")

	// ErrRetentionSafety means a marker's successor failed re-verification at sweep time
	ErrRetentionSafety = errors.New("retention safety violation")

	// ErrNothingToBackup means a source produced no eligible files
	ErrNothingToBackup = errors.New("nothing to back up")
)

// RetryError is returned by Retrier.Do after every attempt has failed.
// It unwraps to the last underlying error and matches ErrTransientIO.
type RetryError struct {
	Label    string
	Attempts int
	Err      error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Label, e.Attempts, e.Err)
}

func (e *RetryError) Unwrap() []error {
	return []error{ErrTransientIO, e.Err}
}

// permanentError marks an error that must not be retried
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so that Retrier.Do returns it immediately without retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func isPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
