// Vibebackup - Hierarchical Project Backup and Retention
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vibebackup

package backup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/goccy/go-json"
)

const (
	markerPrefix = ".deletion-marker-"
	markerSuffix = ".json"
)

// MarkerStore persists pending deletions. Creating a marker with an existing
// key replaces it.
type MarkerStore interface {
	// ListPending returns every stored marker. A non-nil error alongside
	// markers reports entries that could not be read; those are never acted on.
	ListPending(ctx context.Context) ([]*DeletionMarker, error)

	// Create stores m, replacing any marker with the same key
	Create(ctx context.Context, m *DeletionMarker) error

	// Remove deletes m
	Remove(ctx context.Context, m *DeletionMarker) error
}

// MarkerFileName returns the on-disk name for a marker key
func MarkerFileName(key string) string {
	return markerPrefix + key + markerSuffix
}

// FileMarkerStore keeps markers as JSON files next to their successor archive
type FileMarkerStore struct {
	dirs []string
}

// NewFileMarkerStore scans the given tier directories for markers
func NewFileMarkerStore(tierDirs ...string) *FileMarkerStore {
	return &FileMarkerStore{dirs: tierDirs}
}

// ListPending implements MarkerStore
func (s *FileMarkerStore) ListPending(_ context.Context) ([]*DeletionMarker, error) {
	var markers []*DeletionMarker
	var errs []error

	for _, dir := range s.dirs {
		entries, err := os.ReadDir(dir)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read marker directory %s: %w", dir, err)
		}

		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || !strings.HasPrefix(name, markerPrefix) || !strings.HasSuffix(name, markerSuffix) {
				continue
			}
			m, err := readMarker(filepath.Join(dir, name))
			if err != nil {
				errs = append(errs, err)
				continue
			}
			markers = append(markers, m)
		}
	}

	sort.Slice(markers, func(i, j int) bool {
		return markers[i].DeleteAfter.Before(markers[j].DeleteAfter)
	})
	return markers, errors.Join(errs...)
}

// Create implements MarkerStore
func (s *FileMarkerStore) Create(_ context.Context, m *DeletionMarker) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal deletion marker: %w", err)
	}
	if err := writeFileAtomic(markerPath(m), data, 0o640); err != nil {
		return fmt.Errorf("failed to write deletion marker %s: %w", m.Key, err)
	}
	return nil
}

// Remove implements MarkerStore
func (s *FileMarkerStore) Remove(_ context.Context, m *DeletionMarker) error {
	if err := os.Remove(markerPath(m)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove deletion marker %s: %w", m.Key, err)
	}
	return nil
}

func markerPath(m *DeletionMarker) string {
	return filepath.Join(filepath.Dir(m.SuccessorArchive.Path), MarkerFileName(m.Key))
}

//nolint:gosec // G304: path is inside a tier directory
func readMarker(path string) (*DeletionMarker, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read marker %s: %w", path, err)
	}
	var m DeletionMarker
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("corrupt marker %s: %w", path, err)
	}
	if m.Key == "" || m.SuccessorArchive.Path == "" {
		return nil, fmt.Errorf("incomplete marker %s", path)
	}
	return &m, nil
}

// MemoryMarkerStore is an in-process MarkerStore
type MemoryMarkerStore struct {
	mu      sync.Mutex
	markers map[string]DeletionMarker
}

// NewMemoryMarkerStore creates an empty store
func NewMemoryMarkerStore() *MemoryMarkerStore {
	return &MemoryMarkerStore{markers: make(map[string]DeletionMarker)}
}

// ListPending implements MarkerStore
func (s *MemoryMarkerStore) ListPending(_ context.Context) ([]*DeletionMarker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*DeletionMarker, 0, len(s.markers))
	for _, m := range s.markers {
		copied := m
		copied.Candidates = append([]Archive(nil), m.Candidates...)
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key < out[j].Key
	})
	return out, nil
}

// Create implements MarkerStore
func (s *MemoryMarkerStore) Create(_ context.Context, m *DeletionMarker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *m
	copied.Candidates = append([]Archive(nil), m.Candidates...)
	s.markers[m.Key] = copied
	return nil
}

// Remove implements MarkerStore
func (s *MemoryMarkerStore) Remove(_ context.Context, m *DeletionMarker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.markers, m.Key)
	return nil
}

// Len returns the number of stored markers
func (s *MemoryMarkerStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.markers)
}
