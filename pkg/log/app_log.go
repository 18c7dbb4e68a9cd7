package log

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// AppLogConfig configures the rotating application log.
type AppLogConfig struct {
	// Path of the log file. Empty means stderr only.
	Path string

	// MaxSizeMB is the size in megabytes at which the file rotates.
	MaxSizeMB int

	// MaxBackups is the number of rotated files kept.
	MaxBackups int

	// Level is one of debug, info, warn, error. Defaults to info.
	Level string

	// Console additionally mirrors records to stderr.
	Console bool
}

// AppLog is the process-wide structured log. Records go to a size-rotated
// text file and optionally to stderr.
type AppLog struct {
	logger *slog.Logger
	file   *lumberjack.Logger
}

// OpenAppLog opens the application log described by cfg.
func OpenAppLog(cfg AppLogConfig) (*AppLog, error) {
	var writers []io.Writer
	var file *lumberjack.Logger

	if cfg.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, err
		}
		maxSize := cfg.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 10
		}
		file = &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    maxSize,
			MaxBackups: cfg.MaxBackups,
		}
		writers = append(writers, file)
	}
	if cfg.Console || len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}

	handler := slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{
		Level: ParseLevel(cfg.Level),
	})
	return &AppLog{logger: slog.New(handler), file: file}, nil
}

// Logger returns the slog logger backed by this log.
func (a *AppLog) Logger() *slog.Logger {
	return a.logger
}

// Close flushes and closes the log file. Safe to call more than once.
func (a *AppLog) Close() error {
	if a.file == nil {
		return nil
	}
	return a.file.Close()
}

// ParseLevel maps a level name to an slog.Level. Unknown names yield Info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
