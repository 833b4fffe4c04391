package runtime

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogOptions controls where and how verbosely a service logs.
// The zero value logs JSON at info level to stdout.
type LogOptions struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// LogOptionsFromEnv reads LOG_LEVEL and LOG_FILE.
func LogOptionsFromEnv() LogOptions {
	return LogOptions{
		Level:      os.Getenv("LOG_LEVEL"),
		File:       strings.TrimSpace(os.Getenv("LOG_FILE")),
		MaxSizeMB:  100,
		MaxBackups: 5,
		MaxAgeDays: 14,
	}
}

func NewLogger(service string) *slog.Logger {
	return NewLoggerWithOptions(service, LogOptionsFromEnv(), os.Stdout)
}

func NewLoggerWithOptions(service string, opts LogOptions, stdout io.Writer) *slog.Logger {
	var w io.Writer = stdout
	if opts.File != "" {
		w = io.MultiWriter(stdout, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		})
	}
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(opts.Level),
	})
	return slog.New(h).With("service", service)
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
