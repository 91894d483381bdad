// Vibebackup - Hierarchical Project Backup and Retention
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vibebackup

/*
consolidate.go - Consolidation Engine

Promotes archives one tier up: Weekly archives of a month become a Monthly
archive, Monthly archives of a year become a Yearly archive. Each
(source, period) group runs four steps:

 1. Group: lower-tier archives whose parent period matches the target
 2. Merge: pack the group into one new archive in staging
 3. Verify: structural check of the merged archive; on failure the group is
    abandoned and the originals are left alone
 4. Schedule: commit the merged archive, then write a deletion marker listing
    the originals with deleteAfter = now + SafetyRetention

Nothing is deleted here. Deletion belongs to the retention sweeper. Groups are
independent; one failing group does not stop the others. Re-running replaces
the target archive and its marker. Entries of the archive being replaced are
carried into the new merge, so inputs swept after an earlier run are never
dropped; an input with the same name wins over the carried copy. A target
that no longer verifies is left in place and the group fails.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/tomtom215/vibebackup/internal/logging"
	"github.com/tomtom215/vibebackup/internal/metrics"
)

// consolidationGroup is the set of lower-tier archives for one source
type consolidationGroup struct {
	source  string
	members []Archive
}

// Consolidate merges the tier below target for period into target
func (e *Engine) Consolidate(ctx context.Context, target Tier, period string) []GroupResult {
	log := logging.Ctx(ctx).With().
		Str("tier", target.String()).
		Str("period", period).
		Logger()

	if target != TierMonthly && target != TierYearly {
		log.Error().Msg("Consolidation target must be Monthly or Yearly")
		return nil
	}

	groups, err := e.groupArchives(target-1, period)
	if err != nil {
		log.Error().Err(err).Msg("Failed to scan tier for consolidation")
		metrics.Consolidations.WithLabelValues(target.String(), "error").Inc()
		return []GroupResult{{Tier: target, Period: period, Error: err.Error()}}
	}
	if len(groups) == 0 {
		log.Info().Msg("No archives to consolidate")
		return nil
	}

	log.Info().Int("groups", len(groups)).Msg("Consolidation started")

	results := make([]GroupResult, 0, len(groups))
	for _, g := range groups {
		r := e.consolidateGroup(ctx, target, period, g)
		outcome := "success"
		if !r.Succeeded() {
			outcome = "failed"
		}
		metrics.Consolidations.WithLabelValues(target.String(), outcome).Inc()
		results = append(results, r)
	}
	return results
}

// groupArchives collects the archives in tier whose parent period is period,
// grouped by source name and sorted by path
func (e *Engine) groupArchives(tier Tier, period string) ([]consolidationGroup, error) {
	dir := e.cfg.TierDir(tier)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	bySource := make(map[string][]Archive)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		parsed, ok := ParseArchiveName(tier, entry.Name())
		if !ok || parsed.Parent != period {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		bySource[parsed.SourceName] = append(bySource[parsed.SourceName], Archive{
			Path:      filepath.Join(dir, entry.Name()),
			Format:    parsed.Format,
			SizeBytes: info.Size(),
			CreatedAt: info.ModTime(),
		})
	}

	groups := make([]consolidationGroup, 0, len(bySource))
	for name, members := range bySource {
		sort.Slice(members, func(i, j int) bool { return members[i].Path < members[j].Path })
		groups = append(groups, consolidationGroup{source: name, members: members})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].source < groups[j].source })
	return groups, nil
}

func (e *Engine) consolidateGroup(ctx context.Context, target Tier, period string, g consolidationGroup) GroupResult {
	log := logging.Ctx(ctx).With().
		Str("tier", target.String()).
		Str("period", period).
		Str("source", g.source).
		Logger()

	result := GroupResult{Tier: target, SourceName: g.source, Period: period}
	fail := func(err error) GroupResult {
		result.Error = err.Error()
		log.Error().Err(err).Msg("Consolidation group failed")
		return result
	}

	// Inputs that no longer verify are not superseded by the merge. The digest
	// taken here is what the sweeper may delete; a later rewrite is kept.
	inputs := make([]string, 0, len(g.members))
	candidates := make([]Archive, 0, len(g.members))
	for _, m := range g.members {
		if !e.verifier.Verify(m.Path) {
			log.Warn().Str("archive", filepath.Base(m.Path)).Msg("Skipping archive that fails verification")
			continue
		}
		digest, err := e.verifier.Digest(m.Path)
		if err != nil {
			log.Warn().Err(err).Str("archive", filepath.Base(m.Path)).Msg("Skipping archive that cannot be digested")
			continue
		}
		m.Digest = digest
		inputs = append(inputs, m.Path)
		candidates = append(candidates, m)
	}
	if len(inputs) == 0 {
		return fail(fmt.Errorf("%w: no verifiable %s archives for %s", ErrIntegrityFailure, (target - 1).String(), g.source))
	}

	base := ArchiveBaseName(g.source, period, target)
	previous := e.existingTargets(target, base)

	carried, cleanup, err := e.carryForward(ctx, base, previous, inputs)
	if err != nil {
		return fail(err)
	}
	defer cleanup()
	if len(carried) > 0 {
		log.Info().Int("carried", len(carried)).Msg("Carrying entries of the existing archive forward")
	}
	inputs = append(inputs, carried...)

	// Merge
	var staged *Archive
	err = e.retrier.Do(ctx, "merge "+base, func(ctx context.Context) error {
		var err error
		staged, err = e.builder.Merge(ctx, inputs, e.cfg.StagingPath(), base)
		return err
	})
	if err != nil {
		return fail(err)
	}
	discard := func() {
		if rmErr := os.Remove(staged.Path); rmErr != nil && !os.IsNotExist(rmErr) {
			log.Warn().Err(rmErr).Str("staged", staged.Path).Msg("Failed to remove staged archive")
		}
	}

	// Verify
	if !e.verifier.Verify(staged.Path) {
		discard()
		return fail(fmt.Errorf("%w: merged archive %s", ErrIntegrityFailure, base))
	}
	digest, err := e.verifier.Digest(staged.Path)
	if err != nil {
		discard()
		return fail(fmt.Errorf("failed to digest merged archive: %w", err))
	}

	// Schedule
	dst := filepath.Join(e.cfg.TierDir(target), base+staged.Format.Ext())
	err = e.retrier.Do(ctx, "commit "+base, func(context.Context) error {
		return e.move(staged.Path, dst)
	})
	if err != nil {
		discard()
		return fail(err)
	}

	successor := *staged
	successor.Path = dst
	successor.Digest = digest
	result.Successor = &successor
	result.Merged = len(candidates)
	result.Carried = len(carried)
	metrics.ArchiveBytes.WithLabelValues(target.String()).Add(float64(successor.SizeBytes))

	now := e.clock.Now()
	marker := &DeletionMarker{
		Key:              MarkerKey(g.source, period),
		MarkedAt:         now,
		DeleteAfter:      now.Add(e.cfg.SafetyRetention),
		SuccessorArchive: successor,
		SuccessorDigest:  digest,
		Candidates:       candidates,
	}
	if err := e.markers.Create(ctx, marker); err != nil {
		// The successor is committed; without a marker the originals simply stay
		return fail(fmt.Errorf("failed to schedule deletion: %w", err))
	}

	// A previous target in the other container format is now fully contained in dst
	for _, prev := range previous {
		if prev.Path == dst {
			continue
		}
		if err := os.Remove(prev.Path); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("archive", filepath.Base(prev.Path)).Msg("Failed to remove replaced archive")
		}
	}

	logging.CtxSuccess(ctx).
		Str("tier", target.String()).
		Str("source", g.source).
		Str("archive", filepath.Base(dst)).
		Int("merged", len(candidates)).
		Int64("size_bytes", successor.SizeBytes).
		Time("delete_after", marker.DeleteAfter).
		Msg("Consolidation complete")

	return result
}

// existingTargets returns the committed archives for base in target, in
// either container format
func (e *Engine) existingTargets(target Tier, base string) []Archive {
	var found []Archive
	for _, f := range []Format{FormatZip, FormatTarGz} {
		path := filepath.Join(e.cfg.TierDir(target), base+f.Ext())
		if fileExists(path) {
			found = append(found, Archive{Path: path, Format: f, SizeBytes: getFileSize(path)})
		}
	}
	return found
}

// carryForward extracts the entries of previous that are not shadowed by an
// input into a staging directory and returns their paths. cleanup removes
// the directory and is always safe to call.
func (e *Engine) carryForward(ctx context.Context, base string, previous []Archive, inputs []string) ([]string, func(), error) {
	noop := func() {}
	if len(previous) == 0 {
		return nil, noop, nil
	}

	for _, prev := range previous {
		if !e.verifier.Verify(prev.Path) {
			return nil, noop, fmt.Errorf("%w: existing %s cannot be read, refusing to replace it", ErrIntegrityFailure, filepath.Base(prev.Path))
		}
	}

	dir, err := os.MkdirTemp(e.cfg.StagingPath(), base+"-carry-")
	if err != nil {
		return nil, noop, fmt.Errorf("failed to create carry directory: %w", err)
	}
	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("dir", dir).Msg("Failed to remove carry directory")
		}
	}

	skip := make(map[string]bool, len(inputs))
	for _, in := range inputs {
		skip[filepath.Base(in)] = true
	}

	var carried []string
	for _, prev := range previous {
		paths, err := extractEntries(ctx, prev, dir, skip)
		if err != nil {
			cleanup()
			return nil, noop, err
		}
		carried = append(carried, paths...)
	}
	return carried, cleanup, nil
}
