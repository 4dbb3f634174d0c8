package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestArchiveRoundTrip(t *testing.T) {
	src := t.TempDir()
	writeTestFile(t, filepath.Join(src, "roundtable.db"), "db-bytes")
	writeTestFile(t, filepath.Join(src, "bus", "stream.dat"), "stream-bytes")
	writeTestFile(t, filepath.Join(src, "debug.log"), "log-bytes")

	archive := filepath.Join(t.TempDir(), "backup.tar.zst")
	count, size, err := writeArchive(archive, src)
	if err != nil {
		t.Fatalf("writeArchive: %v", err)
	}
	if count != 3 {
		t.Errorf("archived files = %d, want 3", count)
	}
	if size <= 0 {
		t.Errorf("archive size = %d, want > 0", size)
	}

	dst := t.TempDir()
	restored, err := extractArchive(archive, dst, false)
	if err != nil {
		t.Fatalf("extractArchive: %v", err)
	}
	if restored != 3 {
		t.Errorf("restored files = %d, want 3", restored)
	}

	for rel, want := range map[string]string{
		"roundtable.db":  "db-bytes",
		"bus/stream.dat": "stream-bytes",
		"debug.log":      "log-bytes",
	} {
		data, err := os.ReadFile(filepath.Join(dst, filepath.FromSlash(rel)))
		if err != nil {
			t.Fatalf("read %s: %v", rel, err)
		}
		if string(data) != want {
			t.Errorf("%s = %q, want %q", rel, data, want)
		}
	}
}

func TestExtractArchive_RefusesNonEmptyTarget(t *testing.T) {
	src := t.TempDir()
	writeTestFile(t, filepath.Join(src, "roundtable.db"), "db")
	archive := filepath.Join(t.TempDir(), "backup.tar.zst")
	if _, _, err := writeArchive(archive, src); err != nil {
		t.Fatalf("writeArchive: %v", err)
	}

	dst := t.TempDir()
	writeTestFile(t, filepath.Join(dst, "existing.db"), "keep")
	if _, err := extractArchive(archive, dst, false); err == nil {
		t.Fatal("extract into a non-empty directory without overwrite should fail")
	}
	if _, err := extractArchive(archive, dst, true); err != nil {
		t.Fatalf("extractArchive with overwrite: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dst, "roundtable.db")); err != nil {
		t.Errorf("restored file missing: %v", err)
	}
}

func TestWriteArchive_MissingDataDir(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "backup.tar.zst")
	missing := filepath.Join(t.TempDir(), "nope")
	if _, _, err := writeArchive(archive, missing); err == nil {
		t.Fatal("archiving a missing directory should fail")
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{512, "512 bytes"},
		{1536, "1.5 KB"},
		{3 * 1024 * 1024, "3.0 MB"},
		{2 * 1024 * 1024 * 1024, "2.0 GB"},
	}
	for _, tt := range tests {
		if got := formatSize(tt.bytes); got != tt.want {
			t.Errorf("formatSize(%d) = %q, want %q", tt.bytes, got, tt.want)
		}
	}
}
