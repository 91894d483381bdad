// Vibebackup - Hierarchical Project Backup and Retention
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vibebackup

package services

import (
	"context"
	"time"

	"github.com/juju/clock"

	"github.com/tomtom215/vibebackup/internal/backup"
	"github.com/tomtom215/vibebackup/internal/logging"
	"github.com/tomtom215/vibebackup/internal/metrics"
)

// BackupRunner performs one complete engine invocation.
//
// Satisfied by *backup.Engine.
type BackupRunner interface {
	Run(ctx context.Context, opts backup.RunOptions) (*backup.RunSummary, error)
}

// SchedulerConfig controls when scheduled runs start
type SchedulerConfig struct {
	// Interval between runs. Intervals of a day or more start at PreferredHour.
	Interval      time.Duration
	PreferredHour int

	// RunOnStart runs once immediately before the first scheduled run
	RunOnStart bool

	// MetricsTextfile is rewritten after every run when set
	MetricsTextfile string
}

// SchedulerService runs the backup engine on a schedule as a supervised service.
//
// A failed run is logged and recorded in RunStatus; it does not stop the
// service, so suture only restarts the scheduler after a panic.
//
// Example usage:
//
//	engine, _ := backup.NewEngine(cfg.BackupConfig(), cfg.SourceLister())
//	svc := services.NewSchedulerService(engine, schedCfg, status, nil)
//	tree.AddBackupService(svc)
type SchedulerService struct {
	runner BackupRunner
	config SchedulerConfig
	status *RunStatus
	clock  clock.Clock
	name   string
}

// NewSchedulerService creates a scheduler. A nil status or clock gets a
// fresh RunStatus or the system clock.
func NewSchedulerService(runner BackupRunner, config SchedulerConfig, status *RunStatus, clk clock.Clock) *SchedulerService {
	if clk == nil {
		clk = clock.WallClock
	}
	if status == nil {
		status = NewRunStatus(clk.Now())
	}
	if config.Interval <= 0 {
		config.Interval = 24 * time.Hour
	}
	return &SchedulerService{
		runner: runner,
		config: config,
		status: status,
		clock:  clk,
		name:   "backup-scheduler",
	}
}

// Status returns the run status shared with the status server
func (s *SchedulerService) Status() *RunStatus {
	return s.status
}

// Serve implements suture.Service. It blocks until ctx is canceled.
func (s *SchedulerService) Serve(ctx context.Context) error {
	if s.config.RunOnStart {
		s.runOnce(ctx)
	}

	for {
		now := s.clock.Now()
		next := backup.NextRunTime(now, s.config.Interval, s.config.PreferredHour)
		s.status.SetNextRun(next)
		metrics.NextRunTimestamp.Set(float64(next.Unix()))

		logging.Info().
			Time("next_run", next).
			Dur("wait", next.Sub(now)).
			Msg("Next backup run scheduled")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(next.Sub(now)):
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.runOnce(ctx)
	}
}

func (s *SchedulerService) runOnce(ctx context.Context) {
	s.status.Begin(s.clock.Now())
	summary, err := s.runner.Run(ctx, backup.RunOptions{})
	s.status.Finish(summary, err)

	switch {
	case backup.IsLockContention(err):
		logging.Warn().Msg("Scheduled run skipped: another instance holds the lock")
	case err != nil:
		logging.Error().Err(err).Msg("Scheduled run failed")
	case summary != nil && summary.HasFailures():
		logging.Warn().Str("run_id", summary.RunID).Msg("Scheduled run completed with failures")
	}

	if s.config.MetricsTextfile != "" {
		if werr := metrics.WriteTextfile(s.config.MetricsTextfile); werr != nil {
			logging.Warn().Err(werr).Str("path", s.config.MetricsTextfile).Msg("Failed to write metrics textfile")
		}
	}
}

// String implements fmt.Stringer for suture's log messages.
func (s *SchedulerService) String() string {
	return s.name
}
