// Vibebackup - Hierarchical Project Backup and Retention
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vibebackup

/*
Package metrics provides Prometheus metrics for the backup engine.

All metrics are registered with the default registry through promauto at
package initialisation and are safe for concurrent use.

# Export

A one-shot run (cron, systemd timer) has no long-lived endpoint to scrape, so
metrics are written to a textfile for node_exporter's textfile collector:

	metrics.WriteTextfile("/var/lib/node_exporter/textfile/vibebackup.prom")

In serve mode the status server also exposes them at /metrics.

# Available Metrics

Run Metrics:
  - vibebackup_runs_total: Engine invocations (counter)
    Labels: result (success, partial, locked, error)
  - vibebackup_run_duration_seconds: Invocation duration (histogram)
  - vibebackup_last_success_timestamp_seconds: Last clean run (gauge)
  - vibebackup_lock_contention_total: Runs skipped due to lock contention (counter)

Source Metrics:
  - vibebackup_source_backups_total: Per-source results (counter)
    Labels: state (success, failed)
  - vibebackup_archive_bytes_total: Committed archive bytes (counter)
    Labels: tier
  - vibebackup_retry_attempts_total: Retried attempts (counter)
    Labels: operation
  - vibebackup_staging_purged_total: Stale staging entries removed (counter)

Consolidation and Retention Metrics:
  - vibebackup_consolidations_total: Consolidation groups (counter)
    Labels: tier, result
  - vibebackup_sweep_outcomes_total: Markers processed (counter)
    Labels: outcome
  - vibebackup_archives_deleted_total: Superseded archives deleted (counter)
  - vibebackup_pending_deletion_markers: Markers still pending (gauge)

# Example Queries

Sources failing in the last day:

	increase(vibebackup_source_backups_total{state="failed"}[1d])

Retention safety violations (successor missing or corrupt):

	increase(vibebackup_sweep_outcomes_total{outcome="safety_violation"}[1d]) > 0

Time since the last clean run:

	time() - vibebackup_last_success_timestamp_seconds
*/
package metrics
