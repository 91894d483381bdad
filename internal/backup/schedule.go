// Vibebackup - Hierarchical Project Backup and Retention
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vibebackup

/*
schedule.go - Calendar Policy

Decides which consolidation steps run on a given date and which period they
target. All functions are pure and take the date explicitly so they can be
tested without a real calendar.

Scheduled runs:
  - Monthly consolidation on the 1st of each month, targeting the previous month
  - Yearly consolidation on January 1st, targeting the previous year

Forced runs (--run-all) consolidate the current month and current year so a
validation run can exercise every tier with the archive it just created.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"time"
)

// SchedulePolicy is the calendar rule set for consolidation
type SchedulePolicy struct{}

// ShouldRunMonthly reports whether monthly consolidation is due on t
func (SchedulePolicy) ShouldRunMonthly(t time.Time) bool {
	return t.Day() == 1
}

// ShouldRunYearly reports whether yearly consolidation is due on t
func (SchedulePolicy) ShouldRunYearly(t time.Time) bool {
	return t.Month() == time.January && t.Day() == 1
}

// MonthlyTarget returns the month period consolidated on t
func (SchedulePolicy) MonthlyTarget(t time.Time, forced bool) string {
	if forced {
		return MonthlyPeriod(t)
	}
	prev := time.Date(t.Year(), t.Month()-1, 1, 0, 0, 0, 0, t.Location())
	return MonthlyPeriod(prev)
}

// YearlyTarget returns the year period consolidated on t
func (SchedulePolicy) YearlyTarget(t time.Time, forced bool) string {
	if forced {
		return YearlyPeriod(t)
	}
	return YearlyPeriod(time.Date(t.Year()-1, time.January, 1, 0, 0, 0, 0, t.Location()))
}

// NextRunTime determines when the next scheduled run should start. Intervals
// of a day or more land on preferredHour; shorter intervals are added to now.
func NextRunTime(now time.Time, interval time.Duration, preferredHour int) time.Time {
	if interval >= 24*time.Hour {
		next := time.Date(now.Year(), now.Month(), now.Day(), preferredHour, 0, 0, 0, now.Location())

		if !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}

		if interval > 24*time.Hour {
			days := int(interval.Hours() / 24)
			next = next.AddDate(0, 0, days-1)
		}

		return next
	}

	return now.Add(interval)
}
