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
	"sort"
)

// TierInventory lists the committed archives of one tier
type TierInventory struct {
	Tier     Tier      `json:"-"`
	Name     string    `json:"tier"`
	Archives []Archive `json:"archives"`
	Bytes    int64     `json:"total_bytes"`
}

// Inventory is a read-only view of the storage tree
type Inventory struct {
	Tiers   []TierInventory   `json:"tiers"`
	Markers []*DeletionMarker `json:"pending_markers"`
}

// Inventory lists archives in every tier and the pending deletion markers.
// It does not take the instance lock.
func (e *Engine) Inventory(ctx context.Context) (*Inventory, error) {
	inv := &Inventory{}

	for _, tier := range Tiers {
		ti := TierInventory{Tier: tier, Name: tier.String()}
		dir := e.cfg.TierDir(tier)

		entries, err := os.ReadDir(dir)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read %s: %w", dir, err)
		}
		for _, entry := range entries {
			parsed, ok := ParseArchiveName(tier, entry.Name())
			if entry.IsDir() || !ok {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			ti.Archives = append(ti.Archives, Archive{
				Path:      filepath.Join(dir, entry.Name()),
				Format:    parsed.Format,
				SizeBytes: info.Size(),
				CreatedAt: info.ModTime(),
			})
			ti.Bytes += info.Size()
		}
		sort.Slice(ti.Archives, func(i, j int) bool { return ti.Archives[i].Path < ti.Archives[j].Path })
		inv.Tiers = append(inv.Tiers, ti)
	}

	markers, err := e.markers.ListPending(ctx)
	if err != nil {
		return inv, fmt.Errorf("failed to list deletion markers: %w", err)
	}
	inv.Markers = markers
	return inv, nil
}

// VerifyArchive checks a single archive file and returns its digest
func (e *Engine) VerifyArchive(path string) (string, error) {
	if v, ok := e.verifier.(ArchiveVerifier); ok {
		if err := v.Check(path); err != nil {
			return "", err
		}
	} else if !e.verifier.Verify(path) {
		return "", fmt.Errorf("%w: %s", ErrIntegrityFailure, path)
	}
	return e.verifier.Digest(path)
}
