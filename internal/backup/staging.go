// Vibebackup - Hierarchical Project Backup and Retention
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vibebackup

package backup

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/tomtom215/vibebackup/internal/logging"
	"github.com/tomtom215/vibebackup/internal/metrics"
)

// CleanStaging removes staging entries last modified before now-maxAge.
// Orphans are left behind by killed runs. Failures are logged, not returned.
func CleanStaging(ctx context.Context, stagingDir string, maxAge time.Duration, now time.Time) int {
	entries, err := os.ReadDir(stagingDir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logging.Ctx(ctx).Warn().Err(err).Str("staging", stagingDir).Msg("Failed to read staging directory")
		}
		return 0
	}

	cutoff := now.Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(stagingDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("path", path).Msg("Failed to purge staged file")
			continue
		}
		removed++
		logging.Ctx(ctx).Debug().
			Str("path", path).
			Time("modified", info.ModTime()).
			Msg("Purged stale staged file")
	}

	if removed > 0 {
		metrics.StagingPurged.Add(float64(removed))
		logging.Ctx(ctx).Info().Int("removed", removed).Msg("Staging cleanup complete")
	}
	return removed
}
