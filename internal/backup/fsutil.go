// Vibebackup - Hierarchical Project Backup and Retention
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vibebackup

package backup

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
)

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func getFileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// writeFileSync writes data and fsyncs before closing
//
//nolint:gosec // G304: paths are internal to the storage tree
func writeFileSync(path string, data []byte, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close() //nolint:errcheck,gosec // Best effort cleanup on error
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close() //nolint:errcheck,gosec // Best effort cleanup on error
		return err
	}
	return f.Close()
}

// writeFileAtomic replaces path with data via a temp file in the same directory
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp-"+uuid.NewString())
	if err := writeFileSync(tmp, data, perm); err != nil {
		os.Remove(tmp) //nolint:errcheck,gosec // Best effort cleanup on error
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp) //nolint:errcheck,gosec // Best effort cleanup on error
		return err
	}
	return nil
}

// moveFile renames src to dst, replacing dst. When the two live on different
// filesystems the file is copied next to dst first and then renamed, so dst is
// never observed half-written.
func moveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}

	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) || !errors.Is(linkErr.Err, syscall.EXDEV) {
		return err
	}

	tmp := filepath.Join(filepath.Dir(dst), "."+filepath.Base(dst)+".tmp-"+uuid.NewString())
	if err := copyFile(src, tmp); err != nil {
		os.Remove(tmp) //nolint:errcheck,gosec // Best effort cleanup on error
		return fmt.Errorf("cross-device copy failed: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp) //nolint:errcheck,gosec // Best effort cleanup on error
		return err
	}
	return os.Remove(src)
}

//nolint:gosec // G304: paths are internal to the storage tree
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close() //nolint:errcheck // Read-only handle

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close() //nolint:errcheck,gosec // Best effort cleanup on error
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close() //nolint:errcheck,gosec // Best effort cleanup on error
		return err
	}
	return out.Close()
}
