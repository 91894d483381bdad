// Vibebackup - Hierarchical Project Backup and Retention
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vibebackup

package backup

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
)

// extractEntries writes the top-level entries of a consolidated archive into
// dir, skipping names already in skip. Extracted names are added to skip.
// Consolidated archives hold one flat entry per merged archive; anything
// nested is refused rather than flattened.
func extractEntries(ctx context.Context, src Archive, dir string, skip map[string]bool) ([]string, error) {
	var written []string
	emit := func(name string, modTime time.Time, r io.Reader) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
			return fmt.Errorf("%w: %s has nested entry %q", ErrIntegrityFailure, src.Path, name)
		}
		if skip[name] {
			return nil
		}
		out := filepath.Join(dir, name)
		if err := writeEntry(out, modTime, r); err != nil {
			return err
		}
		skip[name] = true
		written = append(written, out)
		return nil
	}

	var err error
	switch src.Format {
	case FormatTarGz:
		err = eachTarEntry(src.Path, emit)
	default:
		err = eachZipEntry(src.Path, emit)
	}
	if err != nil {
		return nil, err
	}
	return written, nil
}

//nolint:gosec // G304: out is inside the staging directory
func writeEntry(out string, modTime time.Time, r io.Reader) error {
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", out, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close() //nolint:errcheck,gosec // Already failing
		return fmt.Errorf("failed to extract %s: %w", filepath.Base(out), err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", out, err)
	}
	if !modTime.IsZero() {
		_ = os.Chtimes(out, modTime, modTime) //nolint:errcheck // Timestamps are cosmetic
	}
	return nil
}

func eachZipEntry(path string, fn func(name string, modTime time.Time, r io.Reader) error) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer zr.Close() //nolint:errcheck // Read-only handle

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("failed to read %s in %s: %w", f.Name, path, err)
		}
		err = fn(f.Name, f.Modified, rc)
		rc.Close() //nolint:errcheck,gosec // Read-only entry
		if err != nil {
			return err
		}
	}
	return nil
}

//nolint:gosec // G304: path is an archive in the storage root
func eachTarEntry(path string, fn func(name string, modTime time.Time, r io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck // Read-only handle

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("failed to read gzip stream of %s: %w", path, err)
	}
	defer gz.Close() //nolint:errcheck // Read-only stream

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		if !header.FileInfo().Mode().IsRegular() {
			continue
		}
		if err := fn(header.Name, header.ModTime, tr); err != nil {
			return err
		}
	}
}
