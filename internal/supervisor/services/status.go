// Vibebackup - Hierarchical Project Backup and Retention
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vibebackup

package services

import (
	"sync"
	"time"

	"github.com/tomtom215/vibebackup/internal/backup"
)

// RunStatus tracks scheduled runs for the status server. It is written by the
// scheduler and read concurrently by HTTP handlers.
type RunStatus struct {
	mu          sync.RWMutex
	startedAt   time.Time
	running     bool
	runs        int
	lastRunAt   time.Time
	nextRunAt   time.Time
	lastSummary *backup.RunSummary
	lastErr     error
}

// StatusSnapshot is a point-in-time copy of RunStatus
type StatusSnapshot struct {
	Healthy       bool               `json:"healthy"`
	Running       bool               `json:"running"`
	Runs          int                `json:"runs"`
	UptimeSeconds float64            `json:"uptime_seconds"`
	LastRunAt     *time.Time         `json:"last_run_at,omitempty"`
	NextRunAt     *time.Time         `json:"next_run_at,omitempty"`
	LastError     string             `json:"last_error,omitempty"`
	LockContended bool               `json:"lock_contended,omitempty"`
	LastSummary   *backup.RunSummary `json:"last_summary,omitempty"`
}

// NewRunStatus creates a RunStatus for a process started at startedAt
func NewRunStatus(startedAt time.Time) *RunStatus {
	return &RunStatus{startedAt: startedAt}
}

// Begin records that a run started
func (s *RunStatus) Begin(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
	s.lastRunAt = at
}

// Finish records the outcome of the run started by Begin
func (s *RunStatus) Finish(summary *backup.RunSummary, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.runs++
	s.lastSummary = summary
	s.lastErr = err
}

// SetNextRun records when the scheduler will start the next run
func (s *RunStatus) SetNextRun(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRunAt = at
}

// Snapshot returns the current status as of now
func (s *RunStatus) Snapshot(now time.Time) StatusSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := StatusSnapshot{
		Healthy:       true,
		Running:       s.running,
		Runs:          s.runs,
		UptimeSeconds: now.Sub(s.startedAt).Seconds(),
		LastSummary:   s.lastSummary,
	}
	if !s.lastRunAt.IsZero() {
		t := s.lastRunAt
		snap.LastRunAt = &t
	}
	if !s.nextRunAt.IsZero() {
		t := s.nextRunAt
		snap.NextRunAt = &t
	}

	// Another instance holding the lock is not a failure of this one
	switch {
	case backup.IsLockContention(s.lastErr):
		snap.LockContended = true
	case s.lastErr != nil:
		snap.Healthy = false
		snap.LastError = s.lastErr.Error()
	case s.lastSummary != nil && s.lastSummary.HasFailures():
		snap.Healthy = false
	}

	return snap
}
