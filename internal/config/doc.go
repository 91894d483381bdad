// Vibebackup - Hierarchical Project Backup and Retention
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vibebackup

/*
Package config loads and validates the vibebackup configuration.

Configuration is layered with koanf, later layers overriding earlier ones:

 1. Built-in defaults (defaultConfig)
 2. A YAML file: CONFIG_PATH, ./vibebackup.yaml, ./vibebackup.yml or
    /etc/vibebackup/config.yaml
 3. VIBEBACKUP_* environment variables

# Configuration Structure

  - StorageConfig: storage root, staging directory, lock staleness
  - SourcesConfig: project roots, profile directories, explicit sources, exclusions
  - RetryConfig: attempts and constant delay for sizing, building and committing
  - RetentionConfig: safety window before superseded archives are deleted
  - ArchiveConfig: format threshold, zip chunking, compression, concurrency
  - ScheduleConfig: serve-mode interval and preferred hour
  - MetricsConfig: textfile output and status server address
  - LoggingConfig: zerolog level, format and optional log file

# Example File

	storage:
	  root: /srv/backups/vibe
	sources:
	  project_roots: [/home/dev/projects]
	  profile_dirs: [/home/dev/.claude]
	retention:
	  safety_window: 168h
	metrics:
	  textfile: /var/lib/node_exporter/vibebackup.prom

# Environment Variables

Slice values accept comma-separated lists:

	VIBEBACKUP_STORAGE_ROOT=/srv/backups/vibe
	VIBEBACKUP_PROJECT_ROOTS=/home/dev/projects,/home/dev/work
	VIBEBACKUP_RETRY_ATTEMPTS=5
	VIBEBACKUP_LOG_LEVEL=debug

Validation uses go-playground/validator through internal/validation; field
names in errors are the koanf keys, e.g. "retry.attempts must be at least 1".
*/
package config
