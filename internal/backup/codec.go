// Vibebackup - Hierarchical Project Backup and Retention
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vibebackup

/*
codec.go - Archive Codec

Builds archives of source trees and consolidated archives-of-archives. All
output goes to the staging directory; committing into a tier is a separate
rename so a tier never holds a half-written file.

Format Selection:
  - payload > LargeThreshold: tar+gzip built by the system tar in one pass,
    exclusions passed as --exclude globs. Falls back to an in-process
    tar+gzip stream when no tar binary is available.
  - otherwise: zip built from an explicit file list, written in chunks of
    ZipChunkSize entries with a flush between chunks so at most one source
    file handle is open and buffered output stays bounded.

Archive Layout:

	{source}-{id}.zip
	└── {source dir name}/
	    ├── src/...
	    └── README.md

	{source}-{period}-Monthly.zip (consolidated)
	├── {source}-2025-W01.zip
	├── {source}-2025-W02.zip
	└── {source}-2025-W03.zip
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"

	"github.com/tomtom215/vibebackup/internal/logging"
)

// DisableSystemTar as CodecConfig.TarBinary forces the in-process tar writer
const DisableSystemTar = "-"

// CodecConfig holds archive building settings
type CodecConfig struct {
	// LargeThreshold is the payload size above which tar+gzip is used
	LargeThreshold int64

	// ZipChunkSize is the number of entries written between flushes
	ZipChunkSize int

	// CompressionLevel is the deflate/gzip level (1-9)
	CompressionLevel int

	// TarBinary is the system archiver. Empty means "tar" on PATH.
	TarBinary string
}

// SizeInfo is the result of sizing a source tree
type SizeInfo struct {
	Bytes   int64
	Files   int
	Skipped int
}

// Codec builds archives
type Codec struct {
	cfg      CodecConfig
	clock    clock.Clock
	lookPath func(string) (string, error)
}

// NewCodec creates a codec
func NewCodec(cfg CodecConfig, clk clock.Clock) *Codec {
	if cfg.ZipChunkSize <= 0 {
		cfg.ZipChunkSize = 1000
	}
	if cfg.CompressionLevel < 1 || cfg.CompressionLevel > 9 {
		cfg.CompressionLevel = 6
	}
	if cfg.TarBinary == "" {
		cfg.TarBinary = "tar"
	}
	if clk == nil {
		clk = clock.WallClock
	}
	return &Codec{cfg: cfg, clock: clk, lookPath: exec.LookPath}
}

// SelectFormat applies the size rule
func (c *Codec) SelectFormat(payload int64) Format {
	if payload > c.cfg.LargeThreshold {
		return FormatTarGz
	}
	return FormatZip
}

// Size sums the sizes of eligible files under the source. Unreadable entries
// are skipped and counted. A tree with no eligible files is a permanent
// ErrNothingToBackup.
func (c *Codec) Size(ctx context.Context, src Source, ex *Excluder) (SizeInfo, error) {
	var info SizeInfo

	root, err := sourceRoot(src)
	if err != nil {
		return info, err
	}

	skipped, err := walkEligible(ctx, root, ex, func(_, _ string, d fs.DirEntry) error {
		fi, err := d.Info()
		if err != nil {
			info.Skipped++
			return nil
		}
		info.Bytes += fi.Size()
		info.Files++
		return nil
	})
	info.Skipped += skipped
	if err != nil {
		return info, err
	}

	if info.Files == 0 {
		return info, Permanent(fmt.Errorf("%w: %s has no eligible files", ErrNothingToBackup, src.Path))
	}
	return info, nil
}

// Build creates an archive of src in stagingDir using the format chosen from info
func (c *Codec) Build(ctx context.Context, src Source, ex *Excluder, info SizeInfo, stagingDir string) (*Archive, error) {
	root, err := sourceRoot(src)
	if err != nil {
		return nil, err
	}

	format := c.SelectFormat(info.Bytes)
	out := filepath.Join(stagingDir, fmt.Sprintf("%s-%s%s", src.Name, uuid.NewString()[:8], format.Ext()))

	switch format {
	case FormatTarGz:
		err = c.buildTar(ctx, root, ex, out)
	default:
		err = c.buildZip(ctx, root, ex, out)
	}
	if err != nil {
		os.Remove(out) //nolint:errcheck,gosec // Staged output is discarded on failure
		return nil, err
	}

	return &Archive{
		Path:      out,
		Format:    format,
		SizeBytes: getFileSize(out),
		CreatedAt: c.clock.Now(),
	}, nil
}

// Merge packs existing archives into one new staged archive named
// {baseName}-{id}. Entries are the input file names, stored without
// recompression in zip.
func (c *Codec) Merge(ctx context.Context, inputs []string, stagingDir, baseName string) (*Archive, error) {
	if len(inputs) == 0 {
		return nil, Permanent(fmt.Errorf("%w: no archives to merge", ErrNothingToBackup))
	}

	sorted := append([]string(nil), inputs...)
	sort.Strings(sorted)

	var total int64
	for _, in := range sorted {
		info, err := os.Stat(in)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", in, err)
		}
		total += info.Size()
	}

	format := c.SelectFormat(total)
	out := filepath.Join(stagingDir, fmt.Sprintf("%s-%s%s", baseName, uuid.NewString()[:8], format.Ext()))

	var err error
	switch format {
	case FormatTarGz:
		err = c.mergeTar(ctx, sorted, out)
	default:
		err = c.mergeZip(ctx, sorted, out)
	}
	if err != nil {
		os.Remove(out) //nolint:errcheck,gosec // Staged output is discarded on failure
		return nil, err
	}

	return &Archive{
		Path:      out,
		Format:    format,
		SizeBytes: getFileSize(out),
		CreatedAt: c.clock.Now(),
	}, nil
}

// buildTar prefers the system archiver and falls back to the in-process writer
func (c *Codec) buildTar(ctx context.Context, root string, ex *Excluder, out string) error {
	if c.cfg.TarBinary != DisableSystemTar {
		if bin, err := c.lookPath(c.cfg.TarBinary); err == nil {
			return c.buildTarSystem(ctx, bin, root, ex, out)
		}
		logging.Ctx(ctx).Debug().Str("binary", c.cfg.TarBinary).Msg("System tar not found, using in-process archiver")
	}
	return c.buildTarInProcess(ctx, root, ex, out)
}

// buildTarSystem runs tar over the whole subtree in one invocation
func (c *Codec) buildTarSystem(ctx context.Context, bin, root string, ex *Excluder, out string) error {
	base := filepath.Base(root)
	args := []string{"-czf", out}
	args = append(args, ex.TarArgs(base)...)
	args = append(args, "-C", filepath.Dir(root), base)

	cmd := exec.CommandContext(ctx, bin, args...) //nolint:gosec // G204: binary and args come from configuration
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}

	// GNU tar exits 1 when files changed while being read; the archive is still complete
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 && getFileSize(out) > 0 {
		logging.Ctx(ctx).Warn().
			Str("source", root).
			Str("stderr", strings.TrimSpace(stderr.String())).
			Msg("tar reported files changed during archiving")
		return nil
	}

	return fmt.Errorf("tar failed: %w: %s", err, strings.TrimSpace(stderr.String()))
}

// archiveWriters holds the writers needed for creating tar archives
type archiveWriters struct {
	tarWriter *tar.Writer
	closers   []io.Closer
}

// Close closes all writers in reverse order, returning the first error encountered
func (aw *archiveWriters) Close() error {
	var firstErr error
	for i := len(aw.closers) - 1; i >= 0; i-- {
		if err := aw.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// setupTarWriters creates the file, gzip, and tar writers
//
//nolint:gosec // G304: filePath is inside the staging directory
func (c *Codec) setupTarWriters(filePath string) (*archiveWriters, error) {
	outFile, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive file: %w", err)
	}

	aw := &archiveWriters{
		closers: []io.Closer{outFile},
	}

	gzWriter, err := gzip.NewWriterLevel(outFile, c.cfg.CompressionLevel)
	if err != nil {
		outFile.Close() //nolint:errcheck,gosec // Best effort cleanup on error
		return nil, fmt.Errorf("failed to create gzip writer: %w", err)
	}
	aw.closers = append(aw.closers, gzWriter)

	aw.tarWriter = tar.NewWriter(gzWriter)
	aw.closers = append(aw.closers, aw.tarWriter)

	return aw, nil
}

// buildTarInProcess streams the tree into tar+gzip
func (c *Codec) buildTarInProcess(ctx context.Context, root string, ex *Excluder, out string) (err error) {
	aw, err := c.setupTarWriters(out)
	if err != nil {
		return err
	}
	defer func() {
		closeErr := aw.Close()
		if err == nil {
			err = closeErr
		}
	}()

	prefix := filepath.Base(root)
	written := 0
	_, err = walkEligible(ctx, root, ex, func(abs, rel string, _ fs.DirEntry) error {
		ok, err := addFileToTar(aw.tarWriter, abs, prefix+"/"+filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		if ok {
			written++
		} else {
			logging.Ctx(ctx).Warn().Str("file", abs).Msg("Skipping unreadable file")
		}
		return nil
	})
	if err != nil {
		return err
	}
	if written == 0 {
		return Permanent(fmt.Errorf("%w: every eligible file under %s was unreadable", ErrNothingToBackup, root))
	}
	return nil
}

// addFileToTar adds a file to the tar archive. Returns false without error if
// the file could not be opened.
//
//nolint:gosec // G304: srcPath comes from walking the source tree
func addFileToTar(tw *tar.Writer, srcPath, entry string) (bool, error) {
	file, err := os.Open(srcPath)
	if err != nil {
		return false, nil //nolint:nilerr // Unreadable files are skipped
	}
	defer file.Close() //nolint:errcheck // Read-only handle

	info, err := file.Stat()
	if err != nil {
		return false, nil //nolint:nilerr // Unreadable files are skipped
	}

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return false, fmt.Errorf("failed to create tar header for %s: %w", srcPath, err)
	}
	header.Name = entry

	if err := tw.WriteHeader(header); err != nil {
		return false, fmt.Errorf("failed to write tar header for %s: %w", srcPath, err)
	}
	if _, err := io.CopyN(tw, file, header.Size); err != nil {
		return false, fmt.Errorf("failed to copy %s to archive: %w", srcPath, err)
	}
	return true, nil
}

// zipWriters pairs a zip writer with its output file
type zipWriters struct {
	zw   *zip.Writer
	file *os.File
}

func (z *zipWriters) Close() error {
	zErr := z.zw.Close()
	fErr := z.file.Close()
	if zErr != nil {
		return zErr
	}
	return fErr
}

//nolint:gosec // G304: filePath is inside the staging directory
func (c *Codec) setupZipWriters(filePath string) (*zipWriters, error) {
	outFile, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive file: %w", err)
	}

	zw := zip.NewWriter(outFile)
	level := c.cfg.CompressionLevel
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, level)
	})

	return &zipWriters{zw: zw, file: outFile}, nil
}

// buildZip enumerates eligible files and writes them in chunks
func (c *Codec) buildZip(ctx context.Context, root string, ex *Excluder, out string) (err error) {
	type entry struct{ abs, name string }

	prefix := filepath.Base(root)
	var files []entry
	if _, err := walkEligible(ctx, root, ex, func(abs, rel string, _ fs.DirEntry) error {
		files = append(files, entry{abs: abs, name: prefix + "/" + filepath.ToSlash(rel)})
		return nil
	}); err != nil {
		return err
	}
	if len(files) == 0 {
		return Permanent(fmt.Errorf("%w: %s has no eligible files", ErrNothingToBackup, root))
	}

	w, err := c.setupZipWriters(out)
	if err != nil {
		return err
	}
	defer func() {
		closeErr := w.Close()
		if err == nil {
			err = closeErr
		}
	}()

	chunk := c.cfg.ZipChunkSize
	written := 0
	for start := 0; start < len(files); start += chunk {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+chunk, len(files))

		for _, f := range files[start:end] {
			ok, err := addFileToZip(w.zw, f.abs, f.name, zip.Deflate)
			if err != nil {
				return err
			}
			if ok {
				written++
			} else {
				logging.Ctx(ctx).Warn().Str("file", f.abs).Msg("Skipping unreadable file")
			}
		}

		if err := w.zw.Flush(); err != nil {
			return fmt.Errorf("failed to flush zip chunk: %w", err)
		}
		if len(files) > chunk {
			logging.Ctx(ctx).Debug().
				Int("written", end).
				Int("total", len(files)).
				Msg("Zip chunk appended")
		}
	}

	if written == 0 {
		return Permanent(fmt.Errorf("%w: every eligible file under %s was unreadable", ErrNothingToBackup, root))
	}
	return nil
}

// addFileToZip adds a file to the zip archive. Returns false without error if
// the file could not be opened.
//
//nolint:gosec // G304: srcPath comes from walking the source tree or a tier directory
func addFileToZip(zw *zip.Writer, srcPath, entry string, method uint16) (bool, error) {
	file, err := os.Open(srcPath)
	if err != nil {
		return false, nil //nolint:nilerr // Unreadable files are skipped
	}
	defer file.Close() //nolint:errcheck // Read-only handle

	info, err := file.Stat()
	if err != nil {
		return false, nil //nolint:nilerr // Unreadable files are skipped
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return false, fmt.Errorf("failed to create zip header for %s: %w", srcPath, err)
	}
	header.Name = entry
	header.Method = method

	w, err := zw.CreateHeader(header)
	if err != nil {
		return false, fmt.Errorf("failed to write zip header for %s: %w", srcPath, err)
	}
	if _, err := io.Copy(w, file); err != nil {
		return false, fmt.Errorf("failed to copy %s to archive: %w", srcPath, err)
	}
	return true, nil
}

func (c *Codec) mergeZip(ctx context.Context, inputs []string, out string) (err error) {
	w, err := c.setupZipWriters(out)
	if err != nil {
		return err
	}
	defer func() {
		closeErr := w.Close()
		if err == nil {
			err = closeErr
		}
	}()

	for _, in := range inputs {
		if err := ctx.Err(); err != nil {
			return err
		}
		ok, err := addFileToZip(w.zw, in, filepath.Base(in), zip.Store)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("failed to read %s", in)
		}
	}
	return nil
}

func (c *Codec) mergeTar(ctx context.Context, inputs []string, out string) (err error) {
	aw, err := c.setupTarWriters(out)
	if err != nil {
		return err
	}
	defer func() {
		closeErr := aw.Close()
		if err == nil {
			err = closeErr
		}
	}()

	for _, in := range inputs {
		if err := ctx.Err(); err != nil {
			return err
		}
		ok, err := addFileToTar(aw.tarWriter, in, filepath.Base(in))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("failed to read %s", in)
		}
	}
	return nil
}

// sourceRoot validates that the source path is an existing directory
func sourceRoot(src Source) (string, error) {
	root := filepath.Clean(src.Path)
	info, err := os.Stat(root)
	if err != nil {
		return "", fmt.Errorf("source %s: %w", src.Name, err)
	}
	if !info.IsDir() {
		return "", Permanent(fmt.Errorf("source %s: %s is not a directory", src.Name, root))
	}
	return root, nil
}

// walkEligible calls fn for every regular file under root that is not excluded.
// Excluded directories are not descended into. Unreadable directories are
// skipped and counted.
func walkEligible(ctx context.Context, root string, ex *Excluder, fn func(abs, rel string, d fs.DirEntry) error) (int, error) {
	skipped := 0
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			skipped++
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if p == root {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			skipped++
			return nil
		}
		if ex.Excluded(rel) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return fn(p, rel, d)
	})
	return skipped, err
}
