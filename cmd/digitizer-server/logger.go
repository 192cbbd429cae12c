package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/kstaniek/go-ampio-server/internal/logging"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log file rotation limits, applied when --log-file is set.
const (
	logMaxSizeMB  = 100
	logMaxBackups = 5
	logMaxAgeDays = 28
)

func setupLogger(format, level, logFile string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	var w io.Writer = os.Stderr
	if logFile != "" {
		w = &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    logMaxSizeMB,
			MaxBackups: logMaxBackups,
			MaxAge:     logMaxAgeDays,
		}
	}

	l := logging.New(format, lvl, w).With("app", "digitizer-server")
	logging.Set(l)
	return l
}
