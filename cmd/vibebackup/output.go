// Vibebackup - Hierarchical Project Backup and Retention
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vibebackup

package main

import (
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/vibebackup/internal/backup"
)

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printSummary prints one line per source, consolidation group and marker
func printSummary(w io.Writer, s *backup.RunSummary, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(w, s)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Run %s  started %s  took %s\n", //nolint:errcheck // Flushed below
		s.RunID, s.StartedAt.Format(time.RFC3339), s.Duration.Round(time.Millisecond))

	if len(s.Sources) > 0 {
		fmt.Fprintln(tw, "\nSOURCE\tSTATE\tARCHIVE\tSIZE\tERROR") //nolint:errcheck // Flushed below
		for _, r := range s.Sources {
			archive, size := "-", "-"
			if r.Archive != nil {
				archive = filepath.Base(r.Archive.Path)
				size = humanBytes(r.Archive.SizeBytes)
			}
			state := string(r.State)
			if r.FailedIn != "" {
				state = fmt.Sprintf("%s (%s)", r.State, r.FailedIn)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Source.Name, state, archive, size, r.Error) //nolint:errcheck // Flushed below
		}
	}

	if len(s.Groups) > 0 {
		fmt.Fprintln(tw, "\nCONSOLIDATED\tPERIOD\tMERGED\tCARRIED\tSUCCESSOR\tERROR") //nolint:errcheck // Flushed below
		for _, g := range s.Groups {
			successor := "-"
			if g.Successor != nil {
				successor = filepath.Base(g.Successor.Path)
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n", g.SourceName, g.Period, g.Merged, g.Carried, successor, g.Error) //nolint:errcheck // Flushed below
		}
	}

	if len(s.Sweeps) > 0 {
		fmt.Fprintln(tw, "\nMARKER\tDELETED\tRETAINED\tKEPT\tDAYS LEFT\tERROR") //nolint:errcheck // Flushed below
		for _, r := range s.Sweeps {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%t\t%d\t%s\n", r.Key, r.Deleted, r.Retained, r.Kept, r.DaysRemaining, r.Error) //nolint:errcheck // Flushed below
		}
	}

	fmt.Fprintf(tw, "\n%d/%d sources backed up, %d groups failed, %d sweep errors, %d staging entries removed\n", //nolint:errcheck // Flushed below
		s.SuccessCount(), len(s.Sources), s.FailedGroups(), s.SweepErrors(), s.StagingGC)
	return tw.Flush()
}

// verifyResult is the JSON form of a verify command
type verifyResult struct {
	Path   string `json:"path"`
	Valid  bool   `json:"valid"`
	Digest string `json:"digest,omitempty"`
	Error  string `json:"error,omitempty"`
}

func printVerify(w io.Writer, path, digest string, verr error, jsonOutput bool) error {
	res := verifyResult{Path: path, Valid: verr == nil, Digest: digest}
	if verr != nil {
		res.Error = verr.Error()
	}
	if jsonOutput {
		return writeJSON(w, res)
	}
	if verr != nil {
		_, err := fmt.Fprintf(w, "INVALID  %s: %v\n", path, verr)
		return err
	}
	_, err := fmt.Fprintf(w, "OK  %s  sha256:%s\n", path, digest)
	return err
}

func printInventory(w io.Writer, inv *backup.Inventory, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(w, inv)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, tier := range inv.Tiers {
		fmt.Fprintf(tw, "%s (%d archives, %s)\n", tier.Name, len(tier.Archives), humanBytes(tier.Bytes)) //nolint:errcheck // Flushed below
		for _, a := range tier.Archives {
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", filepath.Base(a.Path), humanBytes(a.SizeBytes), a.CreatedAt.Format("2006-01-02 15:04")) //nolint:errcheck // Flushed below
		}
	}

	if len(inv.Markers) > 0 {
		fmt.Fprintln(tw, "\nPENDING MARKER\tCANDIDATES\tDELETE AFTER\tSUCCESSOR") //nolint:errcheck // Flushed below
		for _, m := range inv.Markers {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", //nolint:errcheck // Flushed below
				m.Key, len(m.Candidates), m.DeleteAfter.Format("2006-01-02 15:04"), filepath.Base(m.SuccessorArchive.Path))
		}
	}
	return tw.Flush()
}

// humanBytes formats n with binary units
func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
