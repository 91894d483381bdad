// Vibebackup - Hierarchical Project Backup and Retention
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vibebackup

package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testMarker(dir, key string, deleteAfter time.Time) *DeletionMarker {
	return &DeletionMarker{
		Key:         key,
		MarkedAt:    deleteAfter.Add(-7 * 24 * time.Hour),
		DeleteAfter: deleteAfter,
		SuccessorArchive: Archive{
			Path:   filepath.Join(dir, key+"-Monthly.zip"),
			Format: FormatZip,
		},
		SuccessorDigest: "abc123",
		Candidates: []Archive{
			{Path: "/storage/Weekly/" + key + "-W01.zip", Format: FormatZip},
			{Path: "/storage/Weekly/" + key + "-W02.zip", Format: FormatZip},
		},
	}
}

func TestFileMarkerStore_RoundTrip(t *testing.T) {
	root := t.TempDir()
	monthly := filepath.Join(root, "Monthly")
	yearly := filepath.Join(root, "Yearly")
	for _, d := range []string{monthly, yearly} {
		if err := os.MkdirAll(d, 0o750); err != nil {
			t.Fatal(err)
		}
	}

	ctx := context.Background()
	store := NewFileMarkerStore(monthly, yearly)
	base := time.Date(2025, time.February, 8, 2, 0, 0, 0, time.UTC)

	later := testMarker(monthly, "webapp-2025-01", base.Add(24*time.Hour))
	sooner := testMarker(yearly, "webapp-2024", base)
	for _, m := range []*DeletionMarker{later, sooner} {
		if err := store.Create(ctx, m); err != nil {
			t.Fatalf("Create(%s) error = %v", m.Key, err)
		}
	}

	if _, err := os.Stat(filepath.Join(monthly, MarkerFileName("webapp-2025-01"))); err != nil {
		t.Errorf("marker not stored next to its successor: %v", err)
	}

	got, err := store.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListPending() returned %d markers, want 2", len(got))
	}
	if got[0].Key != "webapp-2024" || got[1].Key != "webapp-2025-01" {
		t.Errorf("markers not ordered by DeleteAfter: %s, %s", got[0].Key, got[1].Key)
	}
	m := got[1]
	if !m.DeleteAfter.Equal(later.DeleteAfter) || m.SuccessorDigest != "abc123" || len(m.Candidates) != 2 {
		t.Errorf("marker did not round trip: %+v", m)
	}
	if m.SuccessorArchive.Path != later.SuccessorArchive.Path {
		t.Errorf("successor = %s, want %s", m.SuccessorArchive.Path, later.SuccessorArchive.Path)
	}

	if err := store.Remove(ctx, m); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if err := store.Remove(ctx, m); err != nil {
		t.Errorf("second Remove() error = %v", err)
	}
	got, err = store.ListPending(ctx)
	if err != nil || len(got) != 1 {
		t.Errorf("ListPending() after Remove = %d markers, %v", len(got), err)
	}
}

func TestFileMarkerStore_CreateReplaces(t *testing.T) {
	dir := t.TempDir()
	store := NewFileMarkerStore(dir)
	ctx := context.Background()

	first := testMarker(dir, "webapp-2025-01", time.Date(2025, time.February, 8, 0, 0, 0, 0, time.UTC))
	second := testMarker(dir, "webapp-2025-01", time.Date(2025, time.February, 9, 0, 0, 0, 0, time.UTC))
	second.SuccessorDigest = "def456"

	if err := store.Create(ctx, first); err != nil {
		t.Fatal(err)
	}
	if err := store.Create(ctx, second); err != nil {
		t.Fatal(err)
	}

	got, err := store.ListPending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].SuccessorDigest != "def456" {
		t.Errorf("ListPending() = %+v, want the replacement marker only", got)
	}
}

func TestFileMarkerStore_UnreadableMarkers(t *testing.T) {
	dir := t.TempDir()
	store := NewFileMarkerStore(dir, filepath.Join(dir, "does-not-exist"))
	ctx := context.Background()

	good := testMarker(dir, "webapp-2025-01", time.Now())
	if err := store.Create(ctx, good); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, MarkerFileName("corrupt-2025-02")), "{truncated")
	writeFile(t, filepath.Join(dir, MarkerFileName("empty-2025-03")), `{"key":""}`)
	writeFile(t, filepath.Join(dir, "unrelated.json"), "{}")

	got, err := store.ListPending(ctx)
	if err == nil {
		t.Error("ListPending() should report unreadable markers")
	}
	if len(got) != 1 || got[0].Key != "webapp-2025-01" {
		t.Errorf("ListPending() should still return readable markers, got %d", len(got))
	}
}

func TestMemoryMarkerStore(t *testing.T) {
	store := NewMemoryMarkerStore()
	ctx := context.Background()
	now := time.Now()

	b := testMarker("/m", "b-2025-01", now)
	a := testMarker("/m", "a-2025-01", now)
	for _, m := range []*DeletionMarker{b, a} {
		if err := store.Create(ctx, m); err != nil {
			t.Fatal(err)
		}
	}
	if store.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", store.Len())
	}

	got, err := store.ListPending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Key != "a-2025-01" {
		t.Errorf("first marker = %s, want a-2025-01", got[0].Key)
	}

	// Returned markers are copies
	got[0].Candidates[0].Path = "mutated"
	again, _ := store.ListPending(ctx)
	if again[0].Candidates[0].Path == "mutated" {
		t.Error("ListPending() returned shared candidate slices")
	}

	if err := store.Remove(ctx, a); err != nil {
		t.Fatal(err)
	}
	if store.Len() != 1 {
		t.Errorf("Len() after Remove = %d, want 1", store.Len())
	}
}
