// Vibebackup - Hierarchical Project Backup and Retention
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vibebackup

package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// StagingDirName is the scratch directory under the storage root
	StagingDirName = "Staging"

	// DefaultLargeThreshold is the payload size above which tar+gzip is used (2 GiB)
	DefaultLargeThreshold int64 = 2 << 30
)

// Config holds the engine configuration. It is built once at startup and
// passed by value to each component; nothing mutates it afterwards.
type Config struct {
	// StorageRoot holds the lock file and the tier directories
	StorageRoot string

	// StagingDir overrides the staging location. Default: {StorageRoot}/Staging
	StagingDir string

	// Excludes are the exclusion patterns applied to every source
	Excludes []string

	// RetryAttempts is the number of attempts for sizing, building and committing
	RetryAttempts int

	// RetryDelay is the constant delay between attempts
	RetryDelay time.Duration

	// SafetyRetention is how long superseded archives are kept after consolidation
	SafetyRetention time.Duration

	// LockStaleAfter is the age after which a lock record is reclaimable
	LockStaleAfter time.Duration

	// StagingMaxAge is the age after which staged files are purged
	StagingMaxAge time.Duration

	// Codec settings
	LargeThreshold   int64
	ZipChunkSize     int
	CompressionLevel int
	TarBinary        string

	// Concurrency bounds parallel per-source backup runs. 1 is sequential.
	Concurrency int

	// VerifyDeep reads every archive entry during verification
	VerifyDeep bool
}

// DefaultConfig returns the default configuration for a storage root
func DefaultConfig(storageRoot string) Config {
	return Config{
		StorageRoot:      storageRoot,
		Excludes:         append([]string(nil), DefaultExcludes...),
		RetryAttempts:    3,
		RetryDelay:       5 * time.Second,
		SafetyRetention:  7 * 24 * time.Hour,
		LockStaleAfter:   12 * time.Hour,
		StagingMaxAge:    24 * time.Hour,
		LargeThreshold:   DefaultLargeThreshold,
		ZipChunkSize:     1000,
		CompressionLevel: 6,
		Concurrency:      1,
	}
}

// Validate checks that the configuration is usable
func (c Config) Validate() error {
	if c.StorageRoot == "" {
		return fmt.Errorf("storage root is required")
	}
	if !filepath.IsAbs(c.StorageRoot) {
		return fmt.Errorf("storage root must be an absolute path, got: %s", c.StorageRoot)
	}
	if c.StagingDir != "" && !filepath.IsAbs(c.StagingDir) {
		return fmt.Errorf("staging dir must be an absolute path, got: %s", c.StagingDir)
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("retry attempts must be at least 1, got: %d", c.RetryAttempts)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry delay must not be negative, got: %s", c.RetryDelay)
	}
	if c.SafetyRetention < 0 {
		return fmt.Errorf("safety retention must not be negative, got: %s", c.SafetyRetention)
	}
	if c.LockStaleAfter <= 0 {
		return fmt.Errorf("lock stale-after must be positive, got: %s", c.LockStaleAfter)
	}
	if c.StagingMaxAge <= 0 {
		return fmt.Errorf("staging max age must be positive, got: %s", c.StagingMaxAge)
	}
	if c.LargeThreshold <= 0 {
		return fmt.Errorf("large threshold must be positive, got: %d", c.LargeThreshold)
	}
	if c.ZipChunkSize < 1 {
		return fmt.Errorf("zip chunk size must be at least 1, got: %d", c.ZipChunkSize)
	}
	if c.CompressionLevel < 1 || c.CompressionLevel > 9 {
		return fmt.Errorf("compression level must be between 1 and 9, got: %d", c.CompressionLevel)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got: %d", c.Concurrency)
	}
	return nil
}

// TierDir returns the directory of a tier
func (c Config) TierDir(t Tier) string {
	return filepath.Join(c.StorageRoot, t.String())
}

// StagingPath returns the staging directory
func (c Config) StagingPath() string {
	if c.StagingDir != "" {
		return c.StagingDir
	}
	return filepath.Join(c.StorageRoot, StagingDirName)
}

// LockPath returns the lock file path
func (c Config) LockPath() string {
	return filepath.Join(c.StorageRoot, LockFileName)
}

// EnsureLayout creates the storage root, tier and staging directories
func (c Config) EnsureLayout() error {
	dirs := []string{c.StorageRoot, c.StagingPath()}
	for _, t := range Tiers {
		dirs = append(dirs, c.TierDir(t))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
