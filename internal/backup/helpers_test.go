// Vibebackup - Hierarchical Project Backup and Retention
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vibebackup

package backup

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/klauspost/compress/zip"
)

// fakeClock is a test clock whose waits complete immediately by advancing
// time. Every wait is recorded.
type fakeClock struct {
	*testclock.Clock

	mu    sync.Mutex
	waits []time.Duration
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{Clock: testclock.NewClock(now)}
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	ch := c.Clock.After(d)
	c.mu.Lock()
	c.waits = append(c.waits, d)
	c.mu.Unlock()
	c.Clock.Advance(d)
	return ch
}

func (c *fakeClock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.waits...)
}

// testEnv holds a storage root and a project root under one temp directory
type testEnv struct {
	dir      string
	projects string
	cfg      Config
	clock    *fakeClock
}

// newTestEnv creates the storage layout and a config with the in-process
// tar writer so results do not depend on the host's tar binary
func newTestEnv(t *testing.T, now time.Time) *testEnv {
	t.Helper()

	dir := t.TempDir()
	cfg := DefaultConfig(filepath.Join(dir, "storage"))
	cfg.TarBinary = DisableSystemTar
	cfg.RetryDelay = time.Second

	if err := cfg.EnsureLayout(); err != nil {
		t.Fatalf("failed to create layout: %v", err)
	}
	projects := filepath.Join(dir, "projects")
	if err := os.MkdirAll(projects, 0o750); err != nil {
		t.Fatalf("failed to create projects dir: %v", err)
	}

	return &testEnv{
		dir:      dir,
		projects: projects,
		cfg:      cfg,
		clock:    newFakeClock(now),
	}
}

// newEngine creates an engine over the project root using the fake clock
func (e *testEnv) newEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithClock(e.clock)}, opts...)
	engine, err := NewEngine(e.cfg, DirectorySources{ProjectRoots: []string{e.projects}}, opts...)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	return engine
}

// addProject creates a project directory with the given files
func (e *testEnv) addProject(t *testing.T, name string, files map[string]string) string {
	t.Helper()
	root := filepath.Join(e.projects, name)
	writeTree(t, root, files)
	return root
}

// tierFile returns the path of name inside tier
func (e *testEnv) tierFile(tier Tier, name string) string {
	return filepath.Join(e.cfg.TierDir(tier), name)
}

// tierNames lists the file names in a tier directory
func (e *testEnv) tierNames(t *testing.T, tier Tier) []string {
	t.Helper()
	entries, err := os.ReadDir(e.cfg.TierDir(tier))
	if err != nil {
		t.Fatalf("failed to read %s: %v", tier, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names
}

// stagingNames lists the files left in the staging directory
func (e *testEnv) stagingNames(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(e.cfg.StagingPath())
	if err != nil {
		t.Fatalf("failed to read staging: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}

// writeTree writes files relative to root, creating directories as needed
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	if err := os.MkdirAll(root, 0o750); err != nil {
		t.Fatalf("failed to create %s: %v", root, err)
	}
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
			t.Fatalf("failed to create dir for %s: %v", rel, err)
		}
		if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
			t.Fatalf("failed to write %s: %v", rel, err)
		}
	}
}

// writeZip writes a small valid zip archive at path
func writeZip(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create zip: %v", err)
	}
	defer f.Close()

	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	zw := zip.NewWriter(f)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("failed to add %s: %v", name, err)
		}
		if _, err := w.Write([]byte(entries[name])); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to close zip: %v", err)
	}
}

// zipEntries returns the sorted entry names of a zip archive
func zipEntries(t *testing.T, path string) []string {
	t.Helper()
	r, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("failed to open zip %s: %v", path, err)
	}
	defer r.Close()

	names := make([]string, 0, len(r.File))
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}
