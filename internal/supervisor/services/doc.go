// Vibebackup - Hierarchical Project Backup and Retention
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vibebackup

/*
Package services provides the suture.Service implementations for serve mode.

# Available Services

Scheduler (SchedulerService):
  - Calls backup.NextRunTime and sleeps until the next run
  - Runs the engine with default options; lock contention is logged, not fatal
  - Records each outcome in a shared RunStatus
  - Rewrites the metrics textfile after every run when configured

Status Server (HTTPServerService):
  - Wraps *http.Server with graceful shutdown
  - Serves NewStatusRouter: /healthz, /status and /metrics
  - Per-IP rate limiting with go-chi/httprate

# Status Endpoints

	GET /healthz   {"status":"healthy","running":false}, 503 when degraded
	GET /status    StatusSnapshot as JSON, including the last RunSummary
	GET /metrics   Prometheus exposition format

Another instance holding the lock does not make the status degraded.
*/
package services
