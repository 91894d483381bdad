// Vibebackup - Hierarchical Project Backup and Retention
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vibebackup

package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// SourceLister enumerates the sources for a run
type SourceLister interface {
	ListSources(ctx context.Context) ([]Source, error)
}

// StaticSources is a fixed list of sources
type StaticSources []Source

// ListSources implements SourceLister
func (s StaticSources) ListSources(_ context.Context) ([]Source, error) {
	return normalizeSources(s), nil
}

// DirectorySources treats every immediate subdirectory of ProjectRoots as a
// project and each ProfileDirs entry as a profile directory source. Static
// sources are listed as given.
type DirectorySources struct {
	ProjectRoots []string
	ProfileDirs  []string
	Static       []Source

	// Skip lists subdirectory names under project roots that are not projects
	Skip []string
}

// ListSources implements SourceLister
func (d DirectorySources) ListSources(_ context.Context) ([]Source, error) {
	skip := make(map[string]bool, len(d.Skip))
	for _, s := range d.Skip {
		skip[s] = true
	}

	sources := append([]Source(nil), d.Static...)
	for _, root := range d.ProjectRoots {
		entries, err := os.ReadDir(root)
		if err != nil {
			return nil, fmt.Errorf("failed to read project root %s: %w", root, err)
		}
		for _, entry := range entries {
			if !entry.IsDir() || skip[entry.Name()] || strings.HasPrefix(entry.Name(), ".") {
				continue
			}
			sources = append(sources, Source{
				Name: entry.Name(),
				Path: filepath.Join(root, entry.Name()),
				Kind: KindProject,
			})
		}
	}

	for _, dir := range d.ProfileDirs {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			continue
		}
		sources = append(sources, Source{
			Name: strings.TrimPrefix(filepath.Base(dir), "."),
			Path: dir,
			Kind: KindProfileDir,
		})
	}

	return normalizeSources(sources), nil
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// normalizeSources makes names file-name safe and unique. Sources are sorted by
// path so suffixes are stable across runs.
func normalizeSources(in []Source) []Source {
	out := make([]Source, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Path < out[j].Path })

	seen := make(map[string]int, len(out))
	for i := range out {
		name := unsafeNameChars.ReplaceAllString(out[i].Name, "_")
		name = strings.Trim(name, "-_.")
		if name == "" {
			name = "source"
		}
		if out[i].Kind == "" {
			out[i].Kind = KindProject
		}
		seen[name]++
		if n := seen[name]; n > 1 {
			name = fmt.Sprintf("%s_%d", name, n)
		}
		out[i].Name = name
	}
	return out
}
