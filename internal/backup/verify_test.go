// Vibebackup - Hierarchical Project Backup and Retention
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vibebackup

package backup

import (
	"archive/tar"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
)

func writeTarGz(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	for name, content := range entries {
		if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0o600, Size: int64(len(content))}); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestArchiveVerifier(t *testing.T) {
	dir := t.TempDir()

	validZip := filepath.Join(dir, "valid.zip")
	writeZip(t, validZip, map[string]string{"proj/a.txt": "hello"})

	emptyZip := filepath.Join(dir, "empty.zip")
	writeZip(t, emptyZip, nil)

	corruptZip := filepath.Join(dir, "corrupt.zip")
	writeFile(t, corruptZip, "PK this is not a zip archive")

	validTgz := filepath.Join(dir, "valid.tar.gz")
	writeTarGz(t, validTgz, map[string]string{"proj/a.txt": "hello"})

	emptyTgz := filepath.Join(dir, "empty.tar.gz")
	writeTarGz(t, emptyTgz, nil)

	notGzip := filepath.Join(dir, "plain.tar.gz")
	writeFile(t, notGzip, "plain text")

	unknown := filepath.Join(dir, "notes.txt")
	writeFile(t, unknown, "text")

	tests := []struct {
		name string
		path string
		want bool
	}{
		{"valid zip", validZip, true},
		{"zip without entries", emptyZip, false},
		{"corrupt zip", corruptZip, false},
		{"valid tar.gz", validTgz, true},
		{"tar.gz without entries", emptyTgz, false},
		{"not gzip", notGzip, false},
		{"unknown extension", unknown, false},
		{"missing file", filepath.Join(dir, "missing.zip"), false},
	}

	for _, tt := range tests {
		for _, deep := range []bool{false, true} {
			v := ArchiveVerifier{Deep: deep}
			if got := v.Verify(tt.path); got != tt.want {
				t.Errorf("%s (deep=%v): Verify() = %v, want %v", tt.name, deep, got, tt.want)
			}
			err := v.Check(tt.path)
			if tt.want && err != nil {
				t.Errorf("%s: Check() error = %v", tt.name, err)
			}
			if !tt.want && !errors.Is(err, ErrIntegrityFailure) {
				t.Errorf("%s: Check() error = %v, want ErrIntegrityFailure", tt.name, err)
			}
		}
	}
}

func TestArchiveVerifier_Digest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.zip")
	writeZip(t, path, map[string]string{"a": "b"})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	sum := sha256.Sum256(data)

	got, err := ArchiveVerifier{}.Digest(path)
	if err != nil {
		t.Fatalf("Digest() error = %v", err)
	}
	if got != hex.EncodeToString(sum[:]) {
		t.Errorf("Digest() = %s, want %s", got, hex.EncodeToString(sum[:]))
	}

	if _, err := (ArchiveVerifier{}).Digest(filepath.Join(t.TempDir(), "missing.zip")); err == nil {
		t.Error("Digest() of a missing file should fail")
	}
}

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path   string
		want   Format
		wantOK bool
	}{
		{"/a/proj-2025-W01.zip", FormatZip, true},
		{"/a/proj-2025-W01.tar.gz", FormatTarGz, true},
		{"proj.ZIP", "", false},
		{"proj.gz", "", false},
		{"proj", "", false},
	}
	for _, tt := range tests {
		got, ok := FormatFromPath(tt.path)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("FormatFromPath(%q) = %q, %v; want %q, %v", tt.path, got, ok, tt.want, tt.wantOK)
		}
	}
}
