// Vibebackup - Hierarchical Project Backup and Retention
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vibebackup

package backup

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"time"
)

// Archive names per tier:
//
//	Weekly:  {source}-{isoYear}-W{isoWeek}.{ext}
//	Monthly: {source}-{year}-{month}-Monthly.{ext}
//	Yearly:  {source}-{year}-Yearly.{ext}
var (
	weeklyNameRe  = regexp.MustCompile(`^(.+)-(\d{4})-W(\d{2})\.(zip|tar\.gz)$`)
	monthlyNameRe = regexp.MustCompile(`^(.+)-(\d{4})-(\d{2})-Monthly\.(zip|tar\.gz)$`)
	yearlyNameRe  = regexp.MustCompile(`^(.+)-(\d{4})-Yearly\.(zip|tar\.gz)$`)
)

// ParsedName is an archive file name decomposed into its parts
type ParsedName struct {
	SourceName string
	Tier       Tier
	Format     Format

	// Period is the archive's own period: "2025-W03", "2025-01" or "2025"
	Period string

	// Parent is the period of the next tier up this archive consolidates into
	Parent string
}

// WeeklyPeriod returns the ISO week period for t, "2025-W03"
func WeeklyPeriod(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// MonthlyPeriod returns the month period for t, "2025-01"
func MonthlyPeriod(t time.Time) string {
	return t.Format("2006-01")
}

// YearlyPeriod returns the year period for t, "2025"
func YearlyPeriod(t time.Time) string {
	return t.Format("2006")
}

// ArchiveBaseName returns the file name without extension for source and period in tier
func ArchiveBaseName(sourceName, period string, tier Tier) string {
	return sourceName + "-" + period + tier.Suffix()
}

// MarkerKey identifies a deletion marker, "{source}-{period}"
func MarkerKey(sourceName, period string) string {
	return sourceName + "-" + period
}

// ParseArchiveName parses a tier archive file name. Returns false for files
// that do not follow the naming scheme of the given tier.
func ParseArchiveName(tier Tier, path string) (ParsedName, bool) {
	name := filepath.Base(path)

	switch tier {
	case TierWeekly:
		m := weeklyNameRe.FindStringSubmatch(name)
		if m == nil {
			return ParsedName{}, false
		}
		year, _ := strconv.Atoi(m[2])
		week, _ := strconv.Atoi(m[3])
		if week < 1 || week > 53 {
			return ParsedName{}, false
		}
		return ParsedName{
			SourceName: m[1],
			Tier:       TierWeekly,
			Format:     Format(m[4]),
			Period:     m[2] + "-W" + m[3],
			Parent:     MonthlyPeriod(isoWeekThursday(year, week)),
		}, true

	case TierMonthly:
		m := monthlyNameRe.FindStringSubmatch(name)
		if m == nil {
			return ParsedName{}, false
		}
		month, _ := strconv.Atoi(m[3])
		if month < 1 || month > 12 {
			return ParsedName{}, false
		}
		return ParsedName{
			SourceName: m[1],
			Tier:       TierMonthly,
			Format:     Format(m[4]),
			Period:     m[2] + "-" + m[3],
			Parent:     m[2],
		}, true

	case TierYearly:
		m := yearlyNameRe.FindStringSubmatch(name)
		if m == nil {
			return ParsedName{}, false
		}
		return ParsedName{
			SourceName: m[1],
			Tier:       TierYearly,
			Format:     Format(m[3]),
			Period:     m[2],
		}, true
	}

	return ParsedName{}, false
}

// isoWeekThursday returns the Thursday of the given ISO week. ISO assigns a
// week to the year (and here, the month) containing its Thursday.
func isoWeekThursday(year, week int) time.Time {
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	offset := (int(jan4.Weekday()) + 6) % 7 // days since Monday
	monday := jan4.AddDate(0, 0, -offset)
	return monday.AddDate(0, 0, (week-1)*7+3)
}
