// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls log destination, format and verbosity.
type Config struct {
	Level      string // debug, info, warn, error
	FilePath   string // empty disables the rotating file sink
	MaxSizeMB  int    // rotation threshold, default 50
	MaxBackups int    // rotated files kept, default 5
	MaxAgeDays int    // default 14
	Console    bool   // human-readable stderr output
}

// New builds the root logger. When FilePath is set, entries go to a
// size-rotated JSON file; Console adds a pretty stderr stream on top.
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var sinks []io.Writer
	if cfg.FilePath != "" {
		maxSize := cfg.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 50
		}
		maxBackups := cfg.MaxBackups
		if maxBackups <= 0 {
			maxBackups = 5
		}
		maxAge := cfg.MaxAgeDays
		if maxAge <= 0 {
			maxAge = 14
		}
		sinks = append(sinks, &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
			MaxAge:     maxAge,
			Compress:   true,
		})
	}
	if cfg.Console || len(sinks) == 0 {
		sinks = append(sinks, zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		})
	}

	var out io.Writer = sinks[0]
	if len(sinks) > 1 {
		out = zerolog.MultiLevelWriter(sinks...)
	}

	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Logger()
}
