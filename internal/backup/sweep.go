// Vibebackup - Hierarchical Project Backup and Retention
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vibebackup

/*
sweep.go - Retention Sweeper

The sweeper is the only code that deletes archives. For every pending
deletion marker:

  - not yet due: keep it and report the whole days remaining
  - due, successor missing, unverifiable or changed since marking: keep
    everything and report ErrRetentionSafety
  - due, successor intact: delete the candidates that still exist, then the
    marker

A candidate is only deleted while its digest matches the one recorded at
consolidation time. A candidate rewritten since then (the same ISO week
backed up again after its month was consolidated) is not in the successor;
it is kept, reported as ErrRetentionSafety and released from the marker.

A marker is only removed when every other candidate is gone, so a partial
failure is retried on the next sweep. Monthly markers are processed before
yearly ones; a yearly marker whose candidates are still successors of pending
monthly markers waits for them.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/tomtom215/vibebackup/internal/logging"
	"github.com/tomtom215/vibebackup/internal/metrics"
)

// Sweep processes every pending deletion marker
func (e *Engine) Sweep(ctx context.Context) []SweepResult {
	log := logging.Ctx(ctx)

	markers, listErr := e.markers.ListPending(ctx)
	var results []SweepResult
	if listErr != nil {
		// Unreadable markers are reported and never acted on
		log.Error().Err(listErr).Msg("Failed to read some deletion markers")
		results = append(results, SweepResult{Key: "markers", Kept: true, Error: listErr.Error()})
		metrics.SweepOutcomes.WithLabelValues("unreadable").Inc()
	}

	sort.SliceStable(markers, func(i, j int) bool {
		ti, tj := successorTier(markers[i]), successorTier(markers[j])
		if ti != tj {
			return ti < tj
		}
		return markers[i].DeleteAfter.Before(markers[j].DeleteAfter)
	})

	pendingSuccessors := make(map[string]string, len(markers))
	for _, m := range markers {
		pendingSuccessors[m.SuccessorArchive.Path] = m.Key
	}

	now := e.clock.Now()
	pending := 0
	for _, m := range markers {
		r := e.sweepMarker(ctx, m, now, pendingSuccessors)
		if r.Kept {
			pending++
		} else {
			delete(pendingSuccessors, m.SuccessorArchive.Path)
		}
		results = append(results, r)
	}

	metrics.PendingMarkers.Set(float64(pending))
	return results
}

func (e *Engine) sweepMarker(ctx context.Context, m *DeletionMarker, now time.Time, pendingSuccessors map[string]string) SweepResult {
	log := logging.Ctx(ctx).With().
		Str("marker", m.Key).
		Str("successor", filepath.Base(m.SuccessorArchive.Path)).
		Logger()

	result := SweepResult{Key: m.Key, Kept: true}

	if !m.Due(now) {
		result.DaysRemaining = daysUntil(now, m.DeleteAfter)
		log.Info().
			Int("days_remaining", result.DaysRemaining).
			Int("candidates", len(m.Candidates)).
			Msg("Deletion not yet due")
		metrics.SweepOutcomes.WithLabelValues("waiting").Inc()
		return result
	}

	if err := e.checkSuccessor(m); err != nil {
		result.Error = err.Error()
		log.Error().Err(err).Msg("Retention safety check failed, keeping superseded archives")
		metrics.SweepOutcomes.WithLabelValues("safety_violation").Inc()
		return result
	}

	for _, c := range m.Candidates {
		if key, ok := pendingSuccessors[c.Path]; ok && key != m.Key {
			log.Info().
				Str("candidate", filepath.Base(c.Path)).
				Str("waiting_for", key).
				Msg("Candidate is the successor of a pending marker, deferring")
			metrics.SweepOutcomes.WithLabelValues("deferred").Inc()
			return result
		}
	}

	var errs, changed []error
	for _, c := range m.Candidates {
		if c.Path == m.SuccessorArchive.Path {
			continue
		}
		if err := e.checkCandidate(c); err != nil {
			if !errors.Is(err, ErrRetentionSafety) {
				errs = append(errs, err)
				continue
			}
			changed = append(changed, err)
			result.Retained++
			log.Warn().Err(err).Str("archive", filepath.Base(c.Path)).Msg("Keeping archive that changed since it was marked")
			continue
		}
		err := os.Remove(c.Path)
		switch {
		case err == nil:
			result.Deleted++
			log.Info().Str("archive", filepath.Base(c.Path)).Msg("Deleted superseded archive")
		case errors.Is(err, os.ErrNotExist):
		default:
			errs = append(errs, fmt.Errorf("failed to delete %s: %w", c.Path, err))
		}
	}
	metrics.ArchivesDeleted.Add(float64(result.Deleted))

	if err := errors.Join(errs...); err != nil {
		result.Error = err.Error()
		log.Error().Err(err).Int("deleted", result.Deleted).Msg("Some superseded archives could not be deleted")
		metrics.SweepOutcomes.WithLabelValues("delete_error").Inc()
		return result
	}

	if err := e.markers.Remove(ctx, m); err != nil {
		result.Error = err.Error()
		log.Error().Err(err).Msg("Failed to remove deletion marker")
		metrics.SweepOutcomes.WithLabelValues("delete_error").Inc()
		return result
	}

	result.Kept = false
	if err := errors.Join(changed...); err != nil {
		result.Error = err.Error()
		log.Error().Err(err).
			Int("deleted", result.Deleted).
			Int("retained", result.Retained).
			Msg("Deletion marker completed, changed archives kept")
		metrics.SweepOutcomes.WithLabelValues("candidate_changed").Inc()
		return result
	}
	log.Info().Int("deleted", result.Deleted).Msg("Deletion marker completed")
	metrics.SweepOutcomes.WithLabelValues("completed").Inc()
	return result
}

// checkCandidate confirms a candidate is still the archive that was merged.
// Missing candidates pass; their deletion is a no-op.
func (e *Engine) checkCandidate(c Archive) error {
	if !fileExists(c.Path) {
		return nil
	}
	if c.Digest == "" {
		return fmt.Errorf("%w: %s has no recorded digest", ErrRetentionSafety, c.Path)
	}
	digest, err := e.verifier.Digest(c.Path)
	if err != nil {
		return fmt.Errorf("failed to digest %s: %w", c.Path, err)
	}
	if digest != c.Digest {
		return fmt.Errorf("%w: %s changed since it was marked", ErrRetentionSafety, c.Path)
	}
	return nil
}

// checkSuccessor re-verifies the successor at deletion time
func (e *Engine) checkSuccessor(m *DeletionMarker) error {
	path := m.SuccessorArchive.Path
	if !fileExists(path) {
		return fmt.Errorf("%w: successor %s is missing", ErrRetentionSafety, path)
	}
	if !e.verifier.Verify(path) {
		return fmt.Errorf("%w: successor %s fails verification", ErrRetentionSafety, path)
	}
	if m.SuccessorDigest != "" {
		digest, err := e.verifier.Digest(path)
		if err != nil {
			return fmt.Errorf("%w: cannot digest successor %s: %w", ErrRetentionSafety, path, err)
		}
		if digest != m.SuccessorDigest {
			return fmt.Errorf("%w: successor %s changed since it was marked", ErrRetentionSafety, path)
		}
	}
	return nil
}

// successorTier orders markers so lower tiers are swept first
func successorTier(m *DeletionMarker) Tier {
	if _, ok := ParseArchiveName(TierMonthly, m.SuccessorArchive.Path); ok {
		return TierMonthly
	}
	return TierYearly
}
