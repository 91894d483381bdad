// Vibebackup - Hierarchical Project Backup and Retention
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vibebackup

// Package validation provides struct validation using go-playground/validator v10.
//
// # Overview
//
// The package provides:
//   - Thread-safe singleton validator (initialized once, cached struct info)
//   - Field names taken from koanf tags, so errors name configuration keys
//   - An abspath validator for filesystem locations
//   - Human-readable error messages joined into a single error
//
// # Quick Start
//
//	type RetryConfig struct {
//	    Attempts int           `koanf:"attempts" validate:"min=1,max=20"`
//	    Delay    time.Duration `koanf:"delay" validate:"min=0"`
//	}
//
//	if err := validation.ValidateStruct(&cfg); err != nil {
//	    // "retry.attempts must be at least 1"
//	    return fmt.Errorf("invalid configuration: %w", err)
//	}
//
// # Custom Validators
//
//   - abspath: value must satisfy filepath.IsAbs
//
// # Thread Safety
//
// GetValidator and ValidateStruct are safe for concurrent use.
package validation
