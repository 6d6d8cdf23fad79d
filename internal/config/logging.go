package config

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/objstore/rfile/pkg/utils"
)

// NewLogger builds the slog.Logger described by cfg. When LogFile is set,
// output is written through a utils.LogRotator (100MiB rotation, 5
// compressed backups retained) instead of directly to the file; the
// returned io.Closer flushes and closes that rotator and must be closed
// by the caller on shutdown. When LogFile is empty the logger writes to
// os.Stdout and the returned closer is a no-op.
func NewLogger(cfg GlobalConfig) (*slog.Logger, io.Closer, error) {
	var (
		out    io.Writer = os.Stdout
		closer io.Closer = nopCloser{}
	)

	if cfg.LogFile != "" {
		rotator, err := utils.NewLogRotator(&utils.RotationConfig{
			Filename:   cfg.LogFile,
			MaxSize:    100,
			MaxBackups: 5,
			Compress:   true,
		})
		if err != nil {
			return nil, nil, err
		}
		out = rotator
		closer = rotator
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)})
	return slog.New(handler), closer, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
