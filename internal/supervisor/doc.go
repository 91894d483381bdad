// Vibebackup - Hierarchical Project Backup and Retention
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vibebackup

/*
Package supervisor runs vibebackup's serve mode under suture v4.

One-shot invocations (cron, systemd timers) never touch this package; they
call backup.Engine.Run directly. Serve mode keeps the process alive and
drives runs on a schedule.

# Overview

	RootSupervisor ("vibebackup")
	├── BackupSupervisor ("backup-layer")
	│   └── SchedulerService
	└── APISupervisor ("api-layer")
	    └── HTTPServerService (status server, if metrics.listen_addr is set)

A crash in the status server restarts only the api layer; a backup in
progress keeps running. Supervisor events are logged through sutureslog and
the zerolog slog adapter in internal/logging.

# Usage Example

	logger := logging.NewSlogLogger()
	tree, err := supervisor.NewSupervisorTree(logger, supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}

	scheduler := services.NewSchedulerService(engine, schedCfg, status, nil)
	tree.AddBackupService(scheduler)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return tree.Serve(ctx)

# Shutdown

Canceling the context cancels the running backup through its context. The
engine removes its staged files and releases the instance lock before the
scheduler returns. UnstoppedServiceReport lists services that overran
ShutdownTimeout.
*/
package supervisor
