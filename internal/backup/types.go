// Vibebackup - Hierarchical Project Backup and Retention
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vibebackup

package backup

import (
	"strings"
	"time"
)

// SourceKind classifies a backup source
type SourceKind string

const (
	// KindProject is a project working tree
	KindProject SourceKind = "project"

	// KindProfileDir is a user profile / tool settings directory
	KindProfileDir SourceKind = "profile_dir"
)

// Source is a single backup target. Sources are enumerated outside the engine
// and are treated as read-only for the duration of a run.
type Source struct {
	Name string     `json:"name" koanf:"name"`
	Path string     `json:"path" koanf:"path"`
	Kind SourceKind `json:"kind" koanf:"kind"`
}

// Format is the container format of an archive
type Format string

const (
	// FormatTarGz is a gzip-compressed tar stream
	FormatTarGz Format = "tar.gz"

	// FormatZip is a zip container
	FormatZip Format = "zip"
)

// Ext returns the file extension for the format, including the leading dot
func (f Format) Ext() string {
	return "." + string(f)
}

// FormatFromPath infers the container format from a file name.
// Returns false for unrecognised extensions.
func FormatFromPath(path string) (Format, bool) {
	switch {
	case strings.HasSuffix(path, FormatTarGz.Ext()):
		return FormatTarGz, true
	case strings.HasSuffix(path, FormatZip.Ext()):
		return FormatZip, true
	default:
		return "", false
	}
}

// Tier is a level in the retention hierarchy
type Tier int

const (
	// TierWeekly holds one archive per source per ISO week
	TierWeekly Tier = iota

	// TierMonthly holds consolidated weekly archives
	TierMonthly

	// TierYearly holds consolidated monthly archives
	TierYearly
)

// String returns the tier directory name
func (t Tier) String() string {
	switch t {
	case TierWeekly:
		return "Weekly"
	case TierMonthly:
		return "Monthly"
	case TierYearly:
		return "Yearly"
	default:
		return "Unknown"
	}
}

// Suffix is the file name suffix used for consolidated archives.
// Weekly archives carry no suffix.
func (t Tier) Suffix() string {
	if t == TierWeekly {
		return ""
	}
	return "-" + t.String()
}

// Tiers lists all tiers from lowest to highest
var Tiers = []Tier{TierWeekly, TierMonthly, TierYearly}

// Archive is a committed or staged archive file
type Archive struct {
	Path      string    `json:"path"`
	Format    Format    `json:"format"`
	SizeBytes int64     `json:"size_bytes"`
	Digest    string    `json:"digest,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// DeletionMarker records archives superseded by a consolidated successor.
// Candidates may only be deleted once DeleteAfter has passed and the successor
// still verifies.
type DeletionMarker struct {
	// Key identifies the marker within its tier, "{source}-{period}"
	Key string `json:"key"`

	MarkedAt    time.Time `json:"marked_at"`
	DeleteAfter time.Time `json:"delete_after"`

	SuccessorArchive Archive `json:"successor_archive"`
	SuccessorDigest  string  `json:"successor_digest"`

	Candidates []Archive `json:"candidates"`
}

// Due reports whether the safety window of the marker has elapsed
func (d *DeletionMarker) Due(now time.Time) bool {
	return !now.Before(d.DeleteAfter)
}

// LockRecord is the persisted single-writer token
type LockRecord struct {
	ProcessID int       `json:"process_id"`
	StartTime time.Time `json:"start_time"`
	Host      string    `json:"host"`
}

// SourceState is the terminal or intermediate state of a per-source backup
type SourceState string

const (
	StateSizing     SourceState = "sizing"
	StateBuilding   SourceState = "building"
	StateVerifying  SourceState = "verifying"
	StateCommitting SourceState = "committing"
	StateSuccess    SourceState = "success"
	StateFailed     SourceState = "failed"
)

// SourceResult is the outcome of one Backup Run
type SourceResult struct {
	Source   Source        `json:"source"`
	State    SourceState   `json:"state"`
	Archive  *Archive      `json:"archive,omitempty"`
	Duration time.Duration `json:"duration_ms"`
	Error    string        `json:"error,omitempty"`

	// FailedIn is the state the run was in when it failed
	FailedIn SourceState `json:"failed_in,omitempty"`
}

// GroupResult is the outcome of consolidating one source for one period
type GroupResult struct {
	Tier       Tier     `json:"tier"`
	SourceName string   `json:"source"`
	Period     string   `json:"period"`
	Successor  *Archive `json:"successor,omitempty"`
	Merged     int      `json:"merged"`
	Carried    int      `json:"carried,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// Succeeded reports whether the group was consolidated and marked
func (g GroupResult) Succeeded() bool {
	return g.Error == ""
}

// SweepResult is the outcome of processing one deletion marker
type SweepResult struct {
	Key           string `json:"key"`
	Deleted       int    `json:"deleted"`
	Retained      int    `json:"retained,omitempty"`
	DaysRemaining int    `json:"days_remaining,omitempty"`
	Kept          bool   `json:"kept"`
	Error         string `json:"error,omitempty"`
}

// RunSummary aggregates the results of one engine invocation
type RunSummary struct {
	RunID     string         `json:"run_id"`
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration_ms"`
	Sources   []SourceResult `json:"sources"`
	Groups    []GroupResult  `json:"groups,omitempty"`
	Sweeps    []SweepResult  `json:"sweeps,omitempty"`
	StagingGC int            `json:"staging_removed"`
}

// SuccessCount returns the number of sources that committed an archive
func (s *RunSummary) SuccessCount() int {
	n := 0
	for _, r := range s.Sources {
		if r.State == StateSuccess {
			n++
		}
	}
	return n
}

// FailedGroups returns the number of consolidation groups that failed
func (s *RunSummary) FailedGroups() int {
	n := 0
	for _, g := range s.Groups {
		if !g.Succeeded() {
			n++
		}
	}
	return n
}

// SweepErrors returns the number of markers that failed re-verification or deletion
func (s *RunSummary) SweepErrors() int {
	n := 0
	for _, r := range s.Sweeps {
		if r.Error != "" {
			n++
		}
	}
	return n
}

// HasFailures reports whether any unit of work in the run failed
func (s *RunSummary) HasFailures() bool {
	return s.SuccessCount() < len(s.Sources) || s.FailedGroups() > 0 || s.SweepErrors() > 0
}
