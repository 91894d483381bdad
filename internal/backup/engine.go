// Vibebackup - Hierarchical Project Backup and Retention
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vibebackup

/*
engine.go - Backup Engine

The Engine ties the components together for one invocation:

	Instance Lock ─▶ Staging cleanup ─▶ Backup Run (every source)
	                                         │
	                                         ▼
	                     Consolidation (Monthly on day 1, Yearly on Jan 1)
	                                         │
	                                         ▼
	                              Retention Sweeper (always)

Per-source and per-group failures are isolated and collected into the
RunSummary. Only lock contention, source enumeration failures and storage
layout errors abort the run. The lock is released on every exit path.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/juju/clock"

	"github.com/tomtom215/vibebackup/internal/logging"
	"github.com/tomtom215/vibebackup/internal/metrics"
)

// ArchiveBuilder is the subset of Codec the engine depends on
type ArchiveBuilder interface {
	Size(ctx context.Context, src Source, ex *Excluder) (SizeInfo, error)
	Build(ctx context.Context, src Source, ex *Excluder, info SizeInfo, stagingDir string) (*Archive, error)
	Merge(ctx context.Context, inputs []string, stagingDir, baseName string) (*Archive, error)
}

// RunOptions selects what an invocation does
type RunOptions struct {
	// ForceAll runs monthly and yearly consolidation regardless of the date
	ForceAll bool

	// SweepOnly skips backups and consolidation
	SweepOnly bool
}

// Engine runs backups, consolidation and retention
type Engine struct {
	cfg      Config
	sources  SourceLister
	lock     Lock
	builder  ArchiveBuilder
	verifier Verifier
	retrier  *Retrier
	markers  MarkerStore
	clock    clock.Clock
	policy   SchedulePolicy
	excluder *Excluder

	// move commits a staged file into a tier
	move func(src, dst string) error
}

// Option customises an Engine
type Option func(*Engine)

// WithLock replaces the instance lock
func WithLock(l Lock) Option {
	return func(e *Engine) { e.lock = l }
}

// WithBuilder replaces the archive builder
func WithBuilder(b ArchiveBuilder) Option {
	return func(e *Engine) { e.builder = b }
}

// WithVerifier replaces the integrity verifier
func WithVerifier(v Verifier) Option {
	return func(e *Engine) { e.verifier = v }
}

// WithMarkerStore replaces the marker store
func WithMarkerStore(s MarkerStore) Option {
	return func(e *Engine) { e.markers = s }
}

// WithClock replaces the clock for scheduling, retention and retry delays
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// NewEngine creates an engine. Defaults: FileLock at the storage root, the
// structural verifier, file-backed markers and the system clock.
func NewEngine(cfg Config, sources SourceLister, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid backup configuration: %w", err)
	}
	if sources == nil {
		return nil, fmt.Errorf("source lister is required")
	}

	e := &Engine{
		cfg:      cfg,
		sources:  sources,
		clock:    clock.WallClock,
		excluder: NewExcluder(cfg.Excludes),
		move:     moveFile,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.lock == nil {
		e.lock = NewFileLock(cfg.LockPath(), cfg.LockStaleAfter, WithLockClock(e.clock))
	}
	if e.builder == nil {
		e.builder = NewCodec(CodecConfig{
			LargeThreshold:   cfg.LargeThreshold,
			ZipChunkSize:     cfg.ZipChunkSize,
			CompressionLevel: cfg.CompressionLevel,
			TarBinary:        cfg.TarBinary,
		}, e.clock)
	}
	if e.verifier == nil {
		e.verifier = ArchiveVerifier{Deep: cfg.VerifyDeep}
	}
	if e.markers == nil {
		e.markers = NewFileMarkerStore(cfg.TierDir(TierMonthly), cfg.TierDir(TierYearly))
	}
	e.retrier = NewRetrier(cfg.RetryAttempts, cfg.RetryDelay, e.clock)

	return e, nil
}

// Config returns the engine configuration
func (e *Engine) Config() Config {
	return e.cfg
}

// Markers returns the marker store
func (e *Engine) Markers() MarkerStore {
	return e.markers
}

// Run executes one full invocation under the instance lock. It returns
// ErrLockContention without doing any work if another instance is running.
func (e *Engine) Run(ctx context.Context, opts RunOptions) (summary *RunSummary, err error) {
	runID := logging.GenerateRunID()
	ctx = logging.ContextWithRunID(ctx, runID)
	log := logging.Ctx(ctx)

	held, err := e.lock.Acquire(ctx)
	if err != nil {
		metrics.RunsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to acquire instance lock: %w", err)
	}
	if !held {
		metrics.LockContention.Inc()
		metrics.RunsTotal.WithLabelValues("locked").Inc()
		return nil, ErrLockContention
	}
	defer func() {
		if relErr := e.lock.Release(); relErr != nil {
			log.Error().Err(relErr).Msg("Failed to release instance lock")
			if err == nil {
				err = relErr
			}
		}
	}()

	start := e.clock.Now()
	summary = &RunSummary{RunID: runID, StartedAt: start}
	log.Info().
		Bool("force_all", opts.ForceAll).
		Bool("sweep_only", opts.SweepOnly).
		Str("storage_root", e.cfg.StorageRoot).
		Msg("Backup run started")

	if err := e.cfg.EnsureLayout(); err != nil {
		metrics.RunsTotal.WithLabelValues("error").Inc()
		return summary, err
	}

	summary.StagingGC = CleanStaging(ctx, e.cfg.StagingPath(), e.cfg.StagingMaxAge, start)

	if !opts.SweepOnly {
		sources, err := e.sources.ListSources(ctx)
		if err != nil {
			metrics.RunsTotal.WithLabelValues("error").Inc()
			return summary, fmt.Errorf("failed to enumerate sources: %w", err)
		}

		summary.Sources = e.BackupAll(ctx, sources)

		// Weekly archives from this run must be committed before grouping
		now := e.clock.Now()
		if opts.ForceAll || e.policy.ShouldRunMonthly(now) {
			summary.Groups = append(summary.Groups,
				e.Consolidate(ctx, TierMonthly, e.policy.MonthlyTarget(now, opts.ForceAll))...)
		}
		if opts.ForceAll || e.policy.ShouldRunYearly(now) {
			summary.Groups = append(summary.Groups,
				e.Consolidate(ctx, TierYearly, e.policy.YearlyTarget(now, opts.ForceAll))...)
		}
	}

	summary.Sweeps = e.Sweep(ctx)
	summary.Duration = e.clock.Now().Sub(start)

	e.logSummary(ctx, summary)
	recordRunMetrics(summary)

	return summary, nil
}

func (e *Engine) logSummary(ctx context.Context, s *RunSummary) {
	event := logging.Ctx(ctx).Info()
	if s.HasFailures() {
		event = logging.Ctx(ctx).Warn()
	}
	event.
		Int("sources_ok", s.SuccessCount()).
		Int("sources_total", len(s.Sources)).
		Int("groups_total", len(s.Groups)).
		Int("groups_failed", s.FailedGroups()).
		Int("markers_processed", len(s.Sweeps)).
		Int("sweep_errors", s.SweepErrors()).
		Dur("duration", s.Duration).
		Msg(fmt.Sprintf("Backup run complete: %d/%d sources", s.SuccessCount(), len(s.Sources)))
}

func recordRunMetrics(s *RunSummary) {
	result := "success"
	if s.HasFailures() {
		result = "partial"
	}
	metrics.RunsTotal.WithLabelValues(result).Inc()
	metrics.RunDuration.Observe(s.Duration.Seconds())
	if !s.HasFailures() {
		metrics.LastSuccessTimestamp.Set(float64(s.StartedAt.Add(s.Duration).Unix()))
	}
}

// IsLockContention reports whether err means another instance holds the lock
func IsLockContention(err error) bool {
	return errors.Is(err, ErrLockContention)
}

// daysUntil rounds the remaining time up to whole days
func daysUntil(now, t time.Time) int {
	d := t.Sub(now)
	if d <= 0 {
		return 0
	}
	days := int(d / (24 * time.Hour))
	if d%(24*time.Hour) != 0 {
		days++
	}
	return days
}
