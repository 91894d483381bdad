// Vibebackup - Hierarchical Project Backup and Retention
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vibebackup

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/vibebackup/internal/backup"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"vibebackup.yaml",
	"vibebackup.yml",
	"/etc/vibebackup/config.yaml",
	"/etc/vibebackup/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// EnvPrefix prefixes every environment variable read into the configuration.
const EnvPrefix = "VIBEBACKUP_"

// defaultConfig returns a Config struct with all default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Root:           "",
			StagingMaxAge:  24 * time.Hour,
			LockStaleAfter: 12 * time.Hour,
		},
		Sources: SourcesConfig{
			Excludes: append([]string(nil), backup.DefaultExcludes...),
		},
		Retry: RetryConfig{
			Attempts: 3,
			Delay:    5 * time.Second,
		},
		Retention: RetentionConfig{
			SafetyWindow: 7 * 24 * time.Hour,
		},
		Archive: ArchiveConfig{
			LargeThreshold:   backup.DefaultLargeThreshold,
			ZipChunkSize:     1000,
			CompressionLevel: 6,
			TarBinary:        "tar",
			Concurrency:      1,
		},
		Schedule: ScheduleConfig{
			Interval:      24 * time.Hour,
			PreferredHour: 2,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// sliceConfigPaths lists koanf paths that accept comma-separated env values.
var sliceConfigPaths = []string{
	"sources.project_roots",
	"sources.profile_dirs",
	"sources.skip",
	"sources.excludes",
}

// Load reads the configuration from defaults, the first config file found and
// the environment, in increasing priority.
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom is Load with an explicit config file. An empty path searches
// CONFIG_PATH and DefaultConfigPaths; a non-empty path must exist.
func LoadFrom(path string) (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: config file (optional)
	if path == "" {
		path = findConfigFile()
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// Layer 3: environment variables (highest priority)
	// VIBEBACKUP_STORAGE_ROOT -> storage.root
	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns CONFIG_PATH if it exists, else the first existing
// default path, else "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// processSliceFields splits comma-separated strings from the environment
// into slices. Values already loaded as slices from YAML are left alone.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps lower-cased variable names (prefix removed) to koanf paths.
var envMappings = map[string]string{
	"storage_root":             "storage.root",
	"staging_dir":              "storage.staging_dir",
	"staging_max_age":          "storage.staging_max_age",
	"lock_stale_after":         "storage.lock_stale_after",
	"project_roots":            "sources.project_roots",
	"profile_dirs":             "sources.profile_dirs",
	"skip":                     "sources.skip",
	"excludes":                 "sources.excludes",
	"retry_attempts":           "retry.attempts",
	"retry_delay":              "retry.delay",
	"safety_window":            "retention.safety_window",
	"large_threshold":          "archive.large_threshold",
	"zip_chunk_size":           "archive.zip_chunk_size",
	"compression_level":        "archive.compression_level",
	"tar_binary":               "archive.tar_binary",
	"concurrency":              "archive.concurrency",
	"verify_deep":              "archive.verify_deep",
	"schedule_interval":        "schedule.interval",
	"schedule_preferred_hour":  "schedule.preferred_hour",
	"schedule_run_on_start":    "schedule.run_on_start",
	"metrics_textfile":         "metrics.textfile",
	"metrics_listen_addr":      "metrics.listen_addr",
	"log_level":                "logging.level",
	"log_format":               "logging.format",
	"log_caller":               "logging.caller",
	"log_file":                 "logging.file",
}

// envTransformFunc maps VIBEBACKUP_* variables to koanf paths. Unknown
// variables return "" and are skipped.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	return envMappings[key]
}
