package utils

import (
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLogRotator_RequiresConfig(t *testing.T) {
	if _, err := NewLogRotator(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
	if _, err := NewLogRotator(&RotationConfig{}); err == nil {
		t.Fatal("expected error for missing filename")
	}
}

func TestLogRotator_WriteAccumulatesAndCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rfile.log")
	rotator, err := NewLogRotator(&RotationConfig{Filename: path})
	if err != nil {
		t.Fatalf("NewLogRotator: %v", err)
	}
	defer rotator.Close()

	n, err := rotator.Write([]byte("line one\n"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != len("line one\n") {
		t.Errorf("Write returned n=%d, want %d", n, len("line one\n"))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "line one\n" {
		t.Errorf("file contents = %q", data)
	}
}

func TestLogRotator_WriteAppendsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rfile.log")
	rotator, err := NewLogRotator(&RotationConfig{Filename: path})
	if err != nil {
		t.Fatalf("NewLogRotator: %v", err)
	}
	if _, err := rotator.Write([]byte("first\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := rotator.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	rotator2, err := NewLogRotator(&RotationConfig{Filename: path})
	if err != nil {
		t.Fatalf("NewLogRotator (reopen): %v", err)
	}
	defer rotator2.Close()
	if _, err := rotator2.Write([]byte("second\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "first\nsecond\n" {
		t.Errorf("file contents = %q, want append not truncate", data)
	}
}

func TestLogRotator_RotatesAtMaxSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rfile.log")

	rotator, err := NewLogRotator(&RotationConfig{
		Filename: path,
		MaxSize:  1, // 1 MiB
	})
	if err != nil {
		t.Fatalf("NewLogRotator: %v", err)
	}
	defer rotator.Close()

	chunk := bytes.Repeat([]byte("x"), 512*1024)
	if _, err := rotator.Write(chunk); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := rotator.Write(chunk); err != nil {
		t.Fatalf("Write: %v", err)
	}
	// This write pushes the live file past MaxSize and should rotate
	// before writing, leaving a backup behind.
	if _, err := rotator.Write(chunk); err != nil {
		t.Fatalf("Write: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	var backups int
	for _, e := range entries {
		if e.Name() != "rfile.log" {
			backups++
		}
	}
	if backups == 0 {
		t.Error("expected at least one rotated backup file")
	}
}

func TestLogRotator_CompressesBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rfile.log")

	rotator, err := NewLogRotator(&RotationConfig{
		Filename: path,
		MaxSize:  1,
		Compress: true,
	})
	if err != nil {
		t.Fatalf("NewLogRotator: %v", err)
	}
	defer rotator.Close()

	chunk := bytes.Repeat([]byte("y"), 1024*1024+1)
	if _, err := rotator.Write(chunk); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := rotator.Write([]byte("triggers rotation\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}

	var gzName string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".log.gz") {
			gzName = e.Name()
		}
	}
	if gzName == "" {
		t.Fatal("expected a compressed .log.gz backup")
	}

	f, err := os.Open(filepath.Join(dir, gzName))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	defer gr.Close()

	data, err := io.ReadAll(gr)
	if err != nil {
		t.Fatalf("reading gzip contents: %v", err)
	}
	if len(data) != len(chunk) {
		t.Errorf("decompressed backup size = %d, want %d", len(data), len(chunk))
	}
}

func TestLogRotator_RetainsAtMostMaxBackups(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rfile.log")

	rotator, err := NewLogRotator(&RotationConfig{
		Filename:   path,
		MaxSize:    1,
		MaxBackups: 2,
	})
	if err != nil {
		t.Fatalf("NewLogRotator: %v", err)
	}
	defer rotator.Close()

	chunk := bytes.Repeat([]byte("z"), 1024*1024+1)
	for i := 0; i < 5; i++ {
		if _, err := rotator.Write(chunk); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	var backups int
	for _, e := range entries {
		if e.Name() != "rfile.log" {
			backups++
		}
	}
	if backups > 2 {
		t.Errorf("found %d backups, want at most MaxBackups=2", backups)
	}
}
