// Vibebackup - Hierarchical Project Backup and Retention
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vibebackup

/*
verify.go - Integrity Verifier

Structural checks on produced archives:
  - tar.gz: the gzip stream opens and at least one tar entry can be listed
  - zip: the central directory opens and holds at least one entry

In deep mode every entry is also read in full (tar) or decompressed and CRC
checked (zip).

Decode errors are reported as a failed verification, never propagated. The
SHA-256 digest is recorded after a successful check for traceability; later
re-verification always repeats the structural check rather than trusting the
digest.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"archive/tar"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
)

// Verifier checks archive integrity
type Verifier interface {
	// Verify reports whether the archive at path is structurally valid and non-empty
	Verify(path string) bool

	// Digest computes the SHA-256 of the archive file
	Digest(path string) (string, error)
}

// ArchiveVerifier is the structural Verifier
type ArchiveVerifier struct {
	// Deep reads every entry instead of stopping at the first
	Deep bool
}

// Verify implements Verifier
func (v ArchiveVerifier) Verify(path string) bool {
	return v.Check(path) == nil
}

// Check is Verify with the reason for failure
func (v ArchiveVerifier) Check(path string) error {
	format, ok := FormatFromPath(path)
	if !ok {
		return fmt.Errorf("%w: unrecognised archive extension: %s", ErrIntegrityFailure, path)
	}

	var err error
	switch format {
	case FormatTarGz:
		err = v.checkTarGz(path)
	case FormatZip:
		err = v.checkZip(path)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrIntegrityFailure, path, err)
	}
	return nil
}

// Digest implements Verifier
//
//nolint:gosec // G304: path is inside the storage tree
func (ArchiveVerifier) Digest(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close() //nolint:errcheck // Read-only handle

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

//nolint:gosec // G304: path is inside the storage tree
func (v ArchiveVerifier) checkTarGz(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close() //nolint:errcheck // Read-only handle

	gzReader, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzReader.Close() //nolint:errcheck // Read-only handle

	tarReader := tar.NewReader(gzReader)
	entries := 0
	for {
		_, err := tarReader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read tar entry: %w", err)
		}
		entries++
		if !v.Deep {
			return nil
		}
		if _, err := io.Copy(io.Discard, tarReader); err != nil {
			return fmt.Errorf("failed to read tar entry data: %w", err)
		}
	}

	if entries == 0 {
		return errors.New("archive has no entries")
	}
	return nil
}

func (v ArchiveVerifier) checkZip(path string) error {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("failed to open zip: %w", err)
	}
	defer reader.Close() //nolint:errcheck // Read-only handle

	if len(reader.File) == 0 {
		return errors.New("archive has no entries")
	}
	if !v.Deep {
		return nil
	}

	for _, f := range reader.File {
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("failed to open entry %s: %w", f.Name, err)
		}
		_, err = io.Copy(io.Discard, rc)
		rc.Close() //nolint:errcheck,gosec // Read-only handle
		if err != nil {
			return fmt.Errorf("failed to read entry %s: %w", f.Name, err)
		}
	}
	return nil
}
