// Vibebackup - Hierarchical Project Backup and Retention
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vibebackup

// Package logging provides centralized zerolog-based structured logging.
//
// # Overview
//
// The package provides:
//   - A mutex-guarded global zerolog logger with package-level helpers
//   - JSON output for scheduled runs, console output for interactive use
//   - An optional append-only log file alongside the primary output
//   - Run ID propagation through context.Context
//   - An slog adapter for the suture supervisor's event hook
//
// # Quick Start
//
//	if err := logging.Init(logging.Config{Level: "info", Format: "console"}); err != nil {
//	    return err
//	}
//	defer logging.Close()
//
//	ctx = logging.ContextWithNewRunID(ctx)
//	logging.Ctx(ctx).Info().Str("source", name).Msg("Backup started")
//	logging.CtxSuccess(ctx).Str("archive", file).Msg("Backup committed")
//
// # Levels
//
// Operational outcomes map onto zerolog levels:
//
//	Info    - progress and normal outcomes
//	Success - Info with outcome=success, for committed archives and merges
//	Warn    - skipped files, retries, failed staging cleanup
//	Error   - failed sources, failed groups, retention safety violations
//
// # Configuration
//
// The logging block of the application config (see internal/config):
//
//	logging:
//	  level: info          # trace, debug, info, warn, error
//	  format: json         # json or console
//	  file: /var/log/vibebackup/run.log
//
// Environment: VIBEBACKUP_LOG_LEVEL, VIBEBACKUP_LOG_FORMAT, VIBEBACKUP_LOG_FILE.
//
// # Best Practices
//
// Always terminate log chains with .Msg() or .Send():
//
//	logging.Info().Str("key", "value").Msg("message")  // Correct
//	logging.Info().Str("key", "value")                 // WRONG - log not emitted
package logging
