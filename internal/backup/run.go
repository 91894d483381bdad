// Vibebackup - Hierarchical Project Backup and Retention
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vibebackup

/*
run.go - Per-Source Backup Run

Each source moves through a fixed sequence of states:

	Sizing ─▶ Building ─▶ Verifying ─▶ Committing ─▶ Success
	   │          │           │             │
	   └──────────┴───────────┴─────────────┴──────▶ Failed

Sizing, building and committing are retried by the Retrier. Verification is
not retried: a staged archive that fails the structural check is discarded.
Nothing is visible in the Weekly tier until the single rename in Committing
succeeds, so a failure at any point leaves the tier untouched.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/vibebackup/internal/logging"
	"github.com/tomtom215/vibebackup/internal/metrics"
)

// BackupAll runs BackupSource for every source, at most cfg.Concurrency at a
// time. Results are returned in source order.
func (e *Engine) BackupAll(ctx context.Context, sources []Source) []SourceResult {
	results := make([]SourceResult, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			results[i] = e.BackupSource(gctx, src)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // Per-source failures are carried in results

	return results
}

// BackupSource produces a verified weekly archive for one source
func (e *Engine) BackupSource(ctx context.Context, src Source) SourceResult {
	start := e.clock.Now()
	log := logging.Ctx(ctx).With().
		Str("source", src.Name).
		Str("path", src.Path).
		Logger()

	result := SourceResult{Source: src, State: StateSizing}
	var staged *Archive

	fail := func(err error) SourceResult {
		if staged != nil {
			if rmErr := os.Remove(staged.Path); rmErr != nil && !os.IsNotExist(rmErr) {
				log.Warn().Err(rmErr).Str("staged", staged.Path).Msg("Failed to remove staged archive")
			}
		}
		result.FailedIn = result.State
		result.State = StateFailed
		result.Error = err.Error()
		result.Duration = e.clock.Now().Sub(start)
		metrics.SourceBackups.WithLabelValues(string(StateFailed)).Inc()
		log.Error().Err(err).Str("failed_in", string(result.FailedIn)).Msg("Backup failed")
		return result
	}

	// Sizing
	var info SizeInfo
	err := e.retrier.Do(ctx, "size "+src.Name, func(ctx context.Context) error {
		var err error
		info, err = e.builder.Size(ctx, src, e.excluder)
		return err
	})
	if err != nil {
		return fail(err)
	}
	log.Debug().
		Int64("payload_bytes", info.Bytes).
		Int("files", info.Files).
		Int("skipped", info.Skipped).
		Msg("Source sized")

	// Building
	result.State = StateBuilding
	err = e.retrier.Do(ctx, "build "+src.Name, func(ctx context.Context) error {
		var err error
		staged, err = e.builder.Build(ctx, src, e.excluder, info, e.cfg.StagingPath())
		return err
	})
	if err != nil {
		return fail(err)
	}

	// Verifying
	result.State = StateVerifying
	if !e.verifier.Verify(staged.Path) {
		return fail(fmt.Errorf("%w: staged archive %s", ErrIntegrityFailure, filepath.Base(staged.Path)))
	}
	digest, err := e.verifier.Digest(staged.Path)
	if err != nil {
		return fail(fmt.Errorf("failed to digest staged archive: %w", err))
	}

	// Committing
	result.State = StateCommitting
	name := ArchiveBaseName(src.Name, WeeklyPeriod(start), TierWeekly) + staged.Format.Ext()
	dst := filepath.Join(e.cfg.TierDir(TierWeekly), name)
	err = e.retrier.Do(ctx, "commit "+src.Name, func(context.Context) error {
		return e.move(staged.Path, dst)
	})
	if err != nil {
		return fail(err)
	}

	committed := *staged
	committed.Path = dst
	committed.Digest = digest
	staged = nil

	result.State = StateSuccess
	result.Archive = &committed
	result.Duration = e.clock.Now().Sub(start)

	metrics.SourceBackups.WithLabelValues(string(StateSuccess)).Inc()
	metrics.ArchiveBytes.WithLabelValues(TierWeekly.String()).Add(float64(committed.SizeBytes))
	logging.CtxSuccess(ctx).
		Str("source", src.Name).
		Str("archive", name).
		Str("format", string(committed.Format)).
		Int64("size_bytes", committed.SizeBytes).
		Str("sha256", digest).
		Dur("duration", result.Duration).
		Msg("Backup committed")

	return result
}
