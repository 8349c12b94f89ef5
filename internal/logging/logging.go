// Package logging builds the process logger: a text handler on stderr, or
// a size-rotated file when a log file is configured.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation defaults for file logging.
const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 5
)

// Options selects the level and destination.
type Options struct {
	Level string
	// File enables rotating file output instead of the fallback writer.
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// ParseLevel maps debug, info, warn and error to slog levels. Empty is info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s", s)
	}
}

// New returns a logger writing to fallback, or to opts.File with rotation.
// The returned closer releases the file and is a no-op otherwise.
func New(fallback io.Writer, opts Options) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}
	w := fallback
	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		if opts.MaxSizeMB <= 0 {
			opts.MaxSizeMB = DefaultMaxSizeMB
		}
		if opts.MaxBackups < 0 {
			opts.MaxBackups = DefaultMaxBackups
		}
		lj := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
		}
		w, closer = lj, lj
	}
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(h), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
