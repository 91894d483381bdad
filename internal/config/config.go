// Vibebackup - Hierarchical Project Backup and Retention
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vibebackup

package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/tomtom215/vibebackup/internal/backup"
	"github.com/tomtom215/vibebackup/internal/logging"
	"github.com/tomtom215/vibebackup/internal/validation"
)

// Config is the application configuration
type Config struct {
	Storage   StorageConfig   `koanf:"storage"`
	Sources   SourcesConfig   `koanf:"sources"`
	Retry     RetryConfig     `koanf:"retry"`
	Retention RetentionConfig `koanf:"retention"`
	Archive   ArchiveConfig   `koanf:"archive"`
	Schedule  ScheduleConfig  `koanf:"schedule"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// StorageConfig locates the backup tree
type StorageConfig struct {
	// Root holds backup.lock and the Weekly, Monthly and Yearly directories
	Root string `koanf:"root" validate:"required,abspath"`

	// StagingDir overrides {Root}/Staging. Keep it on the same filesystem as
	// Root so commits are a single rename.
	StagingDir string `koanf:"staging_dir" validate:"omitempty,abspath"`

	StagingMaxAge  time.Duration `koanf:"staging_max_age" validate:"min=1m"`
	LockStaleAfter time.Duration `koanf:"lock_stale_after" validate:"min=1m"`
}

// SourcesConfig describes what gets backed up
type SourcesConfig struct {
	// ProjectRoots: every immediate subdirectory is a project source
	ProjectRoots []string `koanf:"project_roots" validate:"dive,abspath"`

	// ProfileDirs are backed up as single sources
	ProfileDirs []string `koanf:"profile_dirs" validate:"dive,abspath"`

	// Skip lists directory names under project roots that are not projects
	Skip []string `koanf:"skip"`

	// Static lists explicit sources
	Static []backup.Source `koanf:"static" validate:"dive"`

	// Excludes replaces the default exclusion patterns
	Excludes []string `koanf:"excludes"`
}

// RetryConfig configures the retry executor
type RetryConfig struct {
	Attempts int           `koanf:"attempts" validate:"min=1,max=20"`
	Delay    time.Duration `koanf:"delay" validate:"min=0"`
}

// RetentionConfig configures deferred deletion
type RetentionConfig struct {
	// SafetyWindow is how long superseded archives survive consolidation
	SafetyWindow time.Duration `koanf:"safety_window" validate:"min=0"`
}

// ArchiveConfig configures the archive codec and verifier
type ArchiveConfig struct {
	LargeThreshold   int64  `koanf:"large_threshold" validate:"gt=0"`
	ZipChunkSize     int    `koanf:"zip_chunk_size" validate:"min=1"`
	CompressionLevel int    `koanf:"compression_level" validate:"min=1,max=9"`
	TarBinary        string `koanf:"tar_binary"`
	Concurrency      int    `koanf:"concurrency" validate:"min=1,max=64"`
	VerifyDeep       bool   `koanf:"verify_deep"`
}

// ScheduleConfig configures serve mode
type ScheduleConfig struct {
	// Interval between scheduled runs. Intervals of a day or more start at PreferredHour.
	Interval      time.Duration `koanf:"interval" validate:"min=1m"`
	PreferredHour int           `koanf:"preferred_hour" validate:"gte=0,lte=23"`
	RunOnStart    bool          `koanf:"run_on_start"`
}

// MetricsConfig configures metrics export
type MetricsConfig struct {
	// Textfile is written after every run for node_exporter's textfile collector
	Textfile string `koanf:"textfile" validate:"omitempty,abspath"`

	// ListenAddr enables the status server in serve mode, e.g. "127.0.0.1:9847"
	ListenAddr string `koanf:"listen_addr" validate:"omitempty,hostname_port"`
}

// LoggingConfig configures the global logger
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"omitempty,oneof=trace debug info warn warning error"`
	Format string `koanf:"format" validate:"omitempty,oneof=json console"`
	Caller bool   `koanf:"caller"`
	File   string `koanf:"file" validate:"omitempty,abspath"`
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}

	for _, s := range c.Sources.Static {
		if s.Name == "" || s.Path == "" {
			return fmt.Errorf("sources.static entries need a name and a path")
		}
		if !filepath.IsAbs(s.Path) {
			return fmt.Errorf("sources.static path must be absolute, got: %s", s.Path)
		}
		if s.Kind != "" && s.Kind != backup.KindProject && s.Kind != backup.KindProfileDir {
			return fmt.Errorf("sources.static kind must be %q or %q, got: %s", backup.KindProject, backup.KindProfileDir, s.Kind)
		}
	}

	staging := c.Storage.StagingDir
	if staging == "" {
		staging = filepath.Join(c.Storage.Root, backup.StagingDirName)
	}
	for _, t := range backup.Tiers {
		if filepath.Clean(staging) == filepath.Join(c.Storage.Root, t.String()) {
			return fmt.Errorf("storage.staging_dir must not be a tier directory: %s", staging)
		}
	}

	return nil
}

// HasSources reports whether any source is configured
func (c *Config) HasSources() bool {
	return len(c.Sources.ProjectRoots) > 0 || len(c.Sources.ProfileDirs) > 0 || len(c.Sources.Static) > 0
}

// BackupConfig returns the engine configuration
func (c *Config) BackupConfig() backup.Config {
	bc := backup.DefaultConfig(c.Storage.Root)
	bc.StagingDir = c.Storage.StagingDir
	bc.StagingMaxAge = c.Storage.StagingMaxAge
	bc.LockStaleAfter = c.Storage.LockStaleAfter
	if c.Sources.Excludes != nil {
		bc.Excludes = append([]string(nil), c.Sources.Excludes...)
	}
	bc.RetryAttempts = c.Retry.Attempts
	bc.RetryDelay = c.Retry.Delay
	bc.SafetyRetention = c.Retention.SafetyWindow
	bc.LargeThreshold = c.Archive.LargeThreshold
	bc.ZipChunkSize = c.Archive.ZipChunkSize
	bc.CompressionLevel = c.Archive.CompressionLevel
	bc.TarBinary = c.Archive.TarBinary
	bc.Concurrency = c.Archive.Concurrency
	bc.VerifyDeep = c.Archive.VerifyDeep
	return bc
}

// SourceLister returns the lister for the configured sources
func (c *Config) SourceLister() backup.SourceLister {
	return backup.DirectorySources{
		ProjectRoots: c.Sources.ProjectRoots,
		ProfileDirs:  c.Sources.ProfileDirs,
		Static:       c.Sources.Static,
		Skip:         c.Sources.Skip,
	}
}

// LoggerConfig returns the logger configuration
func (c *Config) LoggerConfig() logging.Config {
	lc := logging.DefaultConfig()
	if c.Logging.Level != "" {
		lc.Level = c.Logging.Level
	}
	if c.Logging.Format != "" {
		lc.Format = c.Logging.Format
	}
	lc.Caller = c.Logging.Caller
	lc.File = c.Logging.File
	return lc
}
