// Vibebackup - Hierarchical Project Backup and Retention
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vibebackup

package backup

import (
	"archive/tar"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
)

// sampleProject has two eligible files and several excluded ones
var sampleProject = map[string]string{
	"README.md":                 "# webapp\n",
	"src/main.go":               "package main\n",
	"node_modules/lib/index.js": "module.exports = {}\n",
	".git/HEAD":                 "ref: refs/heads/main\n",
	"debug.log":                 "noise\n",
	"build/cache.tmp":           "tmp\n",
}

func newTestCodec(threshold int64) *Codec {
	return NewCodec(CodecConfig{
		LargeThreshold: threshold,
		TarBinary:      DisableSystemTar,
	}, newFakeClock(time.Date(2025, time.January, 6, 2, 0, 0, 0, time.UTC)))
}

func tarEntries(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open %s: %v", path, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("failed to open gzip stream: %v", err)
	}
	defer gz.Close()

	var names []string
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("failed to read tar: %v", err)
		}
		names = append(names, hdr.Name)
	}
	sort.Strings(names)
	return names
}

func TestCodec_SelectFormat(t *testing.T) {
	codec := newTestCodec(100)

	tests := []struct {
		payload int64
		want    Format
	}{
		{0, FormatZip},
		{99, FormatZip},
		{100, FormatZip},
		{101, FormatTarGz},
		{DefaultLargeThreshold, FormatTarGz},
	}
	for _, tt := range tests {
		if got := codec.SelectFormat(tt.payload); got != tt.want {
			t.Errorf("SelectFormat(%d) = %s, want %s", tt.payload, got, tt.want)
		}
	}
}

func TestCodec_Size(t *testing.T) {
	root := filepath.Join(t.TempDir(), "webapp")
	writeTree(t, root, sampleProject)

	codec := newTestCodec(DefaultLargeThreshold)
	info, err := codec.Size(context.Background(), Source{Name: "webapp", Path: root}, NewExcluder(DefaultExcludes))
	if err != nil {
		t.Fatalf("Size() error = %v", err)
	}

	if info.Files != 2 {
		t.Errorf("Files = %d, want 2", info.Files)
	}
	wantBytes := int64(len(sampleProject["README.md"]) + len(sampleProject["src/main.go"]))
	if info.Bytes != wantBytes {
		t.Errorf("Bytes = %d, want %d", info.Bytes, wantBytes)
	}
}

func TestCodec_SizeErrors(t *testing.T) {
	dir := t.TempDir()

	onlyExcluded := filepath.Join(dir, "empty")
	writeTree(t, onlyExcluded, map[string]string{"node_modules/a.js": "x", "run.log": "y"})

	notDir := filepath.Join(dir, "file.txt")
	writeFile(t, notDir, "plain file")

	tests := []struct {
		name          string
		path          string
		wantPermanent bool
		wantNothing   bool
	}{
		{"only excluded files", onlyExcluded, true, true},
		{"path is a file", notDir, true, false},
		{"path does not exist", filepath.Join(dir, "missing"), false, false},
	}

	codec := newTestCodec(DefaultLargeThreshold)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Size(context.Background(), Source{Name: "x", Path: tt.path}, NewExcluder(DefaultExcludes))
			if err == nil {
				t.Fatal("Size() should fail")
			}
			if isPermanent(err) != tt.wantPermanent {
				t.Errorf("isPermanent() = %v, want %v (err: %v)", isPermanent(err), tt.wantPermanent, err)
			}
			if errors.Is(err, ErrNothingToBackup) != tt.wantNothing {
				t.Errorf("errors.Is(ErrNothingToBackup) = %v, want %v", !tt.wantNothing, tt.wantNothing)
			}
		})
	}
}

func TestCodec_Build(t *testing.T) {
	tests := []struct {
		name       string
		threshold  int64
		wantFormat Format
	}{
		{"small source becomes zip", DefaultLargeThreshold, FormatZip},
		{"large source becomes tar.gz", 1, FormatTarGz},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			root := filepath.Join(dir, "webapp")
			writeTree(t, root, sampleProject)
			staging := filepath.Join(dir, "staging")
			if err := os.MkdirAll(staging, 0o750); err != nil {
				t.Fatal(err)
			}

			codec := newTestCodec(tt.threshold)
			src := Source{Name: "webapp", Path: root}
			ex := NewExcluder(DefaultExcludes)

			info, err := codec.Size(context.Background(), src, ex)
			if err != nil {
				t.Fatalf("Size() error = %v", err)
			}
			archive, err := codec.Build(context.Background(), src, ex, info, staging)
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}

			if archive.Format != tt.wantFormat {
				t.Errorf("Format = %s, want %s", archive.Format, tt.wantFormat)
			}
			if filepath.Dir(archive.Path) != staging {
				t.Errorf("archive built outside staging: %s", archive.Path)
			}
			base := filepath.Base(archive.Path)
			if !strings.HasPrefix(base, "webapp-") || !strings.HasSuffix(base, tt.wantFormat.Ext()) {
				t.Errorf("unexpected staged name %s", base)
			}
			if archive.SizeBytes <= 0 {
				t.Errorf("SizeBytes = %d", archive.SizeBytes)
			}

			var entries []string
			if tt.wantFormat == FormatZip {
				entries = zipEntries(t, archive.Path)
			} else {
				entries = tarEntries(t, archive.Path)
			}
			want := []string{"webapp/README.md", "webapp/src/main.go"}
			if !reflect.DeepEqual(entries, want) {
				t.Errorf("entries = %v, want %v", entries, want)
			}
			if !(ArchiveVerifier{Deep: true}).Verify(archive.Path) {
				t.Error("built archive fails verification")
			}
		})
	}
}

// A root whose own name matches a default exclude must still be archived
// whole by the system tar binary.
func TestCodec_BuildSystemTarAnchorsExcludes(t *testing.T) {
	bin, err := exec.LookPath("tar")
	if err != nil {
		t.Skip("tar not installed")
	}
	if out, err := exec.Command(bin, "--version").Output(); err != nil || !strings.Contains(string(out), "GNU tar") {
		t.Skip("GNU tar not installed")
	}

	dir := t.TempDir()
	root := filepath.Join(dir, "x.github.io")
	writeTree(t, root, map[string]string{
		"index.html":          "<h1>hi</h1>\n",
		"assets/site.css":     "body{}\n",
		".git/HEAD":           "ref: refs/heads/main\n",
		"node_modules/a/a.js": "x\n",
		"logs/build.log":      "ok\n",
	})

	codec := NewCodec(CodecConfig{LargeThreshold: 1, TarBinary: bin}, newFakeClock(monday))
	src := Source{Name: "site", Path: root}
	ex := NewExcluder(DefaultExcludes)
	info, err := codec.Size(context.Background(), src, ex)
	if err != nil {
		t.Fatalf("Size() error = %v", err)
	}
	archive, err := codec.Build(context.Background(), src, ex, info, dir)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if archive.Format != FormatTarGz {
		t.Fatalf("Format = %s, want tar.gz", archive.Format)
	}

	var files []string
	for _, name := range tarEntries(t, archive.Path) {
		if !strings.HasSuffix(name, "/") {
			files = append(files, name)
		}
	}
	want := []string{"x.github.io/assets/site.css", "x.github.io/index.html"}
	if !reflect.DeepEqual(files, want) {
		t.Errorf("entries = %v, want %v", files, want)
	}
}

func TestCodec_BuildZipInChunks(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "notes")
	files := map[string]string{}
	for _, n := range []string{"a", "b", "c", "d", "e"} {
		files[n+".md"] = n
	}
	writeTree(t, root, files)

	codec := NewCodec(CodecConfig{LargeThreshold: DefaultLargeThreshold, ZipChunkSize: 2}, nil)
	src := Source{Name: "notes", Path: root}
	info, err := codec.Size(context.Background(), src, nil)
	if err != nil {
		t.Fatal(err)
	}
	archive, err := codec.Build(context.Background(), src, nil, info, dir)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if got := len(zipEntries(t, archive.Path)); got != 5 {
		t.Errorf("zip has %d entries, want 5", got)
	}
}

func TestCodec_BuildCanceled(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "webapp")
	writeTree(t, root, sampleProject)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	codec := newTestCodec(DefaultLargeThreshold)
	_, err := codec.Build(ctx, Source{Name: "webapp", Path: root}, nil, SizeInfo{Bytes: 10}, dir)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Build() error = %v, want context.Canceled", err)
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".zip") {
			t.Errorf("partial archive left behind: %s", e.Name())
		}
	}
}

func TestCodec_Merge(t *testing.T) {
	tests := []struct {
		name       string
		threshold  int64
		wantFormat Format
	}{
		{"zip container", DefaultLargeThreshold, FormatZip},
		{"tar.gz container", 1, FormatTarGz},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			w1 := filepath.Join(dir, "proj-2025-W02.zip")
			w2 := filepath.Join(dir, "proj-2025-W01.zip")
			writeZip(t, w1, map[string]string{"proj/a.txt": "a"})
			writeZip(t, w2, map[string]string{"proj/b.txt": "b"})

			codec := newTestCodec(tt.threshold)
			merged, err := codec.Merge(context.Background(), []string{w1, w2}, dir, "proj-2025-01-Monthly")
			if err != nil {
				t.Fatalf("Merge() error = %v", err)
			}

			if merged.Format != tt.wantFormat {
				t.Errorf("Format = %s, want %s", merged.Format, tt.wantFormat)
			}
			if !strings.HasPrefix(filepath.Base(merged.Path), "proj-2025-01-Monthly-") {
				t.Errorf("merged name = %s", filepath.Base(merged.Path))
			}

			var entries []string
			if tt.wantFormat == FormatZip {
				entries = zipEntries(t, merged.Path)
			} else {
				entries = tarEntries(t, merged.Path)
			}
			want := []string{"proj-2025-W01.zip", "proj-2025-W02.zip"}
			if !reflect.DeepEqual(entries, want) {
				t.Errorf("entries = %v, want %v", entries, want)
			}
		})
	}
}

func TestCodec_MergeNothing(t *testing.T) {
	codec := newTestCodec(DefaultLargeThreshold)
	_, err := codec.Merge(context.Background(), nil, t.TempDir(), "proj-2025")
	if !errors.Is(err, ErrNothingToBackup) || !isPermanent(err) {
		t.Errorf("Merge(nil) error = %v, want permanent ErrNothingToBackup", err)
	}
}
