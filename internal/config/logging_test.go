package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestNewLogger_Stdout(t *testing.T) {
	logger, closer, err := NewLogger(GlobalConfig{LogLevel: "DEBUG"})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer closer.Close()

	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("expected debug level to be enabled")
	}
}

func TestNewLogger_File(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "rfile.log")

	logger, closer, err := NewLogger(GlobalConfig{LogLevel: "INFO", LogFile: logFile})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	logger.Info("hello", "key", "value")

	if err := closer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(data) == 0 {
		t.Error("expected log file to contain data")
	}
}
