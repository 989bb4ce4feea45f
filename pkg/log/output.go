package log

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// OutputConfig selects where and how records are written.
type OutputConfig struct {
	// Format is "json" (default) or "console".
	Format string
	// Console receives records when File is empty. Nil means os.Stderr.
	Console io.Writer
	// File enables a rotating log file instead of the console.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// NewWriter builds the writer described by cfg. The returned closer must be
// called on shutdown; it is a no-op for the console.
func NewWriter(cfg OutputConfig) (io.Writer, func() error) {
	var (
		w      io.Writer = os.Stderr
		closer           = func() error { return nil }
	)
	if cfg.Console != nil {
		w = cfg.Console
	}

	if cfg.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		w = rotating
		closer = rotating.Close
	}

	if cfg.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, NoColor: cfg.File != ""}
	}
	return w, closer
}
