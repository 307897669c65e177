package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"ob-sync/internal/config"

	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds the process logger. Output goes to stdout and, when a file is configured,
// to a rotating log file as well. The returned closer flushes the file.
func New(cfg config.LoggingConfig) (*slog.Logger, io.Closer) {
	var (
		writer io.Writer = os.Stdout
		closer io.Closer = nopCloser{}
	)

	if cfg.File != "" {
		fileLogger := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}

		writer = io.MultiWriter(os.Stdout, fileLogger)
		closer = fileLogger
	}

	return slog.New(newHandler(writer, cfg)), closer
}

func newHandler(w io.Writer, cfg config.LoggingConfig) slog.Handler {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	if strings.EqualFold(cfg.Format, "text") {
		return slog.NewTextHandler(w, opts)
	}

	return slog.NewJSONHandler(w, opts)
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
