// Vibebackup - Hierarchical Project Backup and Retention
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vibebackup

package main

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/tomtom215/vibebackup/internal/backup"
	"github.com/tomtom215/vibebackup/internal/config"
	"github.com/tomtom215/vibebackup/internal/logging"
	"github.com/tomtom215/vibebackup/internal/metrics"
	"github.com/tomtom215/vibebackup/internal/supervisor"
	"github.com/tomtom215/vibebackup/internal/supervisor/services"
)

// runCommand performs one engine invocation and maps the outcome to an exit code
func runCommand(ctx context.Context, cfg *config.Config, engine services.BackupRunner, runOpts backup.RunOptions, jsonOutput bool, stdout io.Writer) int {
	summary, err := engine.Run(ctx, runOpts)
	writeMetricsTextfile(cfg)

	code := exitCode(summary, err)
	switch {
	case code == exitLocked:
		logging.Warn().Msg("Another vibebackup instance is running; exiting")
		return code
	case err != nil:
		logging.Error().Err(err).Msg("Backup run failed")
		if summary == nil {
			return code
		}
	}

	if perr := printSummary(stdout, summary, jsonOutput); perr != nil {
		logging.Error().Err(perr).Msg("Failed to print run summary")
	}
	return code
}

// exitCode maps a run outcome to the process exit status
func exitCode(summary *backup.RunSummary, err error) int {
	switch {
	case backup.IsLockContention(err):
		return exitLocked
	case err != nil:
		return exitFailed
	case summary != nil && summary.HasFailures():
		return exitFailed
	default:
		return exitOK
	}
}

func writeMetricsTextfile(cfg *config.Config) {
	if cfg.Metrics.Textfile == "" {
		return
	}
	if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
		logging.Warn().Err(err).Str("path", cfg.Metrics.Textfile).Msg("Failed to write metrics textfile")
	}
}

// serveCommand runs the scheduler, and the status server when configured,
// until ctx is canceled
func serveCommand(ctx context.Context, cfg *config.Config, engine services.BackupRunner) int {
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Error().Err(err).Msg("Failed to create supervisor tree")
		return exitFailed
	}

	status := services.NewRunStatus(time.Now())
	tree.AddBackupService(services.NewSchedulerService(engine, services.SchedulerConfig{
		Interval:        cfg.Schedule.Interval,
		PreferredHour:   cfg.Schedule.PreferredHour,
		RunOnStart:      cfg.Schedule.RunOnStart,
		MetricsTextfile: cfg.Metrics.Textfile,
	}, status, nil))

	if cfg.Metrics.ListenAddr != "" {
		router := services.NewStatusRouter(status, services.RouterConfig{})
		server := services.NewStatusHTTPServer(cfg.Metrics.ListenAddr, router)
		tree.AddAPIService(services.NewHTTPServerService(server, server.Addr, 10*time.Second))
		logging.Info().Str("addr", cfg.Metrics.ListenAddr).Msg("Status server enabled")
	}

	logging.Info().
		Dur("interval", cfg.Schedule.Interval).
		Int("preferred_hour", cfg.Schedule.PreferredHour).
		Msg("Serve mode started")

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree stopped with error")
		return exitFailed
	}

	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		logging.Warn().Int("count", len(report)).Msg("Services did not stop within the shutdown timeout")
	}

	logging.Info().Msg("Serve mode stopped")
	return exitOK
}

// archiveChecker verifies single archives
type archiveChecker interface {
	VerifyArchive(path string) (string, error)
}

func verifyCommand(engine archiveChecker, path string, jsonOutput bool, stdout io.Writer) int {
	digest, err := engine.VerifyArchive(path)
	if perr := printVerify(stdout, path, digest, err, jsonOutput); perr != nil {
		logging.Error().Err(perr).Msg("Failed to print verification result")
	}
	if err != nil {
		logging.Error().Err(err).Str("path", path).Msg("Archive failed verification")
		return exitFailed
	}
	return exitOK
}

// inventoryLister lists the storage tree
type inventoryLister interface {
	Inventory(ctx context.Context) (*backup.Inventory, error)
}

func listCommand(ctx context.Context, engine inventoryLister, jsonOutput bool, stdout io.Writer) int {
	inv, err := engine.Inventory(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to list archives")
		if inv == nil {
			return exitFailed
		}
	}
	if perr := printInventory(stdout, inv, jsonOutput); perr != nil {
		logging.Error().Err(perr).Msg("Failed to print inventory")
		return exitFailed
	}
	if err != nil {
		return exitFailed
	}
	return exitOK
}
