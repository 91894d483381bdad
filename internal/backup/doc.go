// Vibebackup - Hierarchical Project Backup and Retention
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vibebackup

// Package backup implements the hierarchical backup engine: weekly per-source
// archives, consolidation into monthly and yearly archives, and deferred,
// verification-gated deletion of superseded archives.
//
// # Overview
//
// One invocation of Engine.Run:
//   - takes the single-instance lock at {StorageRoot}/backup.lock
//   - purges stale files from the staging directory
//   - builds, verifies and commits one weekly archive per source
//   - on the 1st of the month merges last month's weekly archives per source
//   - on January 1st merges last year's monthly archives per source
//   - processes pending deletion markers
//
// # Storage Layout
//
//	{StorageRoot}/
//	  backup.lock
//	  Staging/                               scratch, never read by other tiers
//	  Weekly/   proj-2025-W03.zip
//	  Monthly/  proj-2025-01-Monthly.zip
//	            .deletion-marker-proj-2025-01.json
//	  Yearly/   proj-2025-Yearly.tar.gz
//	            .deletion-marker-proj-2025.json
//
// # Archive Format
//
// Payloads up to 2 GiB are packed as zip; larger payloads as tar+gzip. The
// system tar binary is used when available, otherwise an in-process writer.
// Consolidated archives contain the lower-tier archives as entries, stored
// without recompression.
//
// # Safety
//
// A file becomes visible in a tier only through a rename from staging after it
// has passed verification. Superseded archives are deleted only after the
// safety window has passed and the successor still exists, still verifies and
// still has the digest recorded at consolidation time. The sweeper is the only
// code that deletes archives.
//
// # Usage
//
//	cfg := backup.DefaultConfig("/srv/backups")
//	engine, err := backup.NewEngine(cfg, backup.DirectorySources{
//		ProjectRoots: []string{"/home/me/projects"},
//	})
//	if err != nil {
//		return err
//	}
//
//	summary, err := engine.Run(ctx, backup.RunOptions{})
//	if backup.IsLockContention(err) {
//		// another instance is running
//	}
//
// # Thread Safety
//
// An Engine may run sources concurrently (Config.Concurrency). Consolidation
// and sweeping are sequential. Cross-process exclusion is provided by the
// instance lock.
package backup
