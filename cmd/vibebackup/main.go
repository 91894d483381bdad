// Vibebackup - Hierarchical Project Backup and Retention
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vibebackup

// Package main is the vibebackup command.
//
// vibebackup archives project directories and tool profile directories into a
// weekly tier, consolidates weekly archives into monthly and yearly archives,
// and deletes superseded archives only after a safety window has elapsed and
// the consolidated successor still verifies.
//
// # Commands
//
//	vibebackup [run]         one backup run (the default)
//	vibebackup serve         run on a schedule under a supervisor tree
//	vibebackup sweep         process pending deletion markers only
//	vibebackup verify FILE   verify one archive and print its digest
//	vibebackup list          list archives per tier and pending markers
//
// # Flags
//
//	-c, --config PATH   config file (default: CONFIG_PATH, ./vibebackup.yaml, /etc/vibebackup/config.yaml)
//	    --run-all       consolidate the current month and year regardless of date
//	    --json          print results as JSON
//	    --log-level     override logging.level
//
// # Exit Codes
//
//	0  success
//	1  fatal error, or any source, consolidation group or marker failed
//	2  another instance holds the lock
//
// # Example Usage
//
// Nightly from cron:
//
//	0 2 * * * VIBEBACKUP_STORAGE_ROOT=/srv/backups/vibe vibebackup --config /etc/vibebackup/config.yaml
//
// Long-running with a status server:
//
//	export VIBEBACKUP_METRICS_LISTEN_ADDR=127.0.0.1:9847
//	vibebackup serve
package main

import (
	"os"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
