// Vibebackup - Hierarchical Project Backup and Retention
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vibebackup

package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Backup engine instrumentation:
// - Run outcomes and duration
// - Per-source backup results
// - Consolidation and retention sweeps
// - Retries, lock contention and staging cleanup

var (
	// Run Metrics
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vibebackup_runs_total",
			Help: "Total number of engine invocations by result",
		},
		[]string{"result"}, // "success", "partial", "locked", "error"
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vibebackup_run_duration_seconds",
			Help:    "Duration of complete engine invocations in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600, 7200},
		},
	)

	LastSuccessTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vibebackup_last_success_timestamp_seconds",
			Help: "Unix timestamp of the last run that completed without failures",
		},
	)

	LockContention = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vibebackup_lock_contention_total",
			Help: "Total number of runs that exited because another instance held the lock",
		},
	)

	// Source Metrics
	SourceBackups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vibebackup_source_backups_total",
			Help: "Total number of per-source backup runs by terminal state",
		},
		[]string{"state"}, // "success", "failed"
	)

	ArchiveBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vibebackup_archive_bytes_total",
			Help: "Total bytes of archives committed per tier",
		},
		[]string{"tier"},
	)

	RetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vibebackup_retry_attempts_total",
			Help: "Total number of retried operation attempts",
		},
		[]string{"operation"},
	)

	StagingPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vibebackup_staging_purged_total",
			Help: "Total number of stale staging entries removed",
		},
	)

	// Consolidation Metrics
	Consolidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vibebackup_consolidations_total",
			Help: "Total number of consolidation groups by target tier and result",
		},
		[]string{"tier", "result"}, // result: "success", "failed", "error"
	)

	// Retention Metrics
	SweepOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vibebackup_sweep_outcomes_total",
			Help: "Total number of deletion markers processed by outcome",
		},
		[]string{"outcome"}, // "waiting", "completed", "deferred", "safety_violation", "delete_error", "unreadable"
	)

	ArchivesDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vibebackup_archives_deleted_total",
			Help: "Total number of superseded archives deleted by the retention sweeper",
		},
	)

	PendingMarkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vibebackup_pending_deletion_markers",
			Help: "Number of deletion markers still pending after the last sweep",
		},
	)

	// Serve Mode Metrics
	NextRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vibebackup_next_run_timestamp_seconds",
			Help: "Unix timestamp of the next scheduled run in serve mode",
		},
	)

	StatusRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vibebackup_status_requests_total",
			Help: "Total number of status server requests by route and status code",
		},
		[]string{"route", "code"},
	)
)

// WriteTextfile writes all registered metrics to path in the Prometheus text
// format, for collection by node_exporter's textfile collector. The file is
// replaced atomically.
func WriteTextfile(path string) error {
	return WriteTextfileFrom(prometheus.DefaultGatherer, path)
}

// WriteTextfileFrom writes the metrics of g to path
func WriteTextfileFrom(g prometheus.Gatherer, path string) error {
	if path == "" {
		return fmt.Errorf("textfile path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create textfile directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
