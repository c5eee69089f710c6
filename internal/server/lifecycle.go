package server

import (
	"context"
	"io"
	"log/slog"
	"math"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// RunWithRecovery runs fn in a loop, recovering from panics with exponential backoff.
// It stops when ctx is cancelled.
func RunWithRecovery(ctx context.Context, logger *slog.Logger, name string, fn func(ctx context.Context)) {
	attempt := 0
	for {
		select {
		case <-ctx.Done():
			logger.Info("goroutine stopped", "name", name, "reason", "context cancelled")
			return
		default:
		}

		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("goroutine panicked",
						"name", name,
						"panic", r,
						"stack", string(debug.Stack()),
						"attempt", attempt,
					)
				}
			}()
			fn(ctx)
		}()

		// If fn returned normally (not panic), check if context is done
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Exponential backoff: 1s, 2s, 4s, 8s, ... max 5min
		attempt++
		backoff := time.Duration(math.Min(
			float64(time.Second)*math.Pow(2, float64(attempt-1)),
			float64(5*time.Minute),
		))
		logger.Warn("goroutine restarting",
			"name", name,
			"attempt", attempt,
			"backoff", backoff,
		)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
}

// LogOptions configures SetupLogger.
type LogOptions struct {
	Level  string
	Format string // "json" or "text"

	// File, when set, also writes rotated logs there.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// SetupLogger creates a structured slog.Logger writing to stdout and, if
// opts.File is set, to a size-rotated file.
func SetupLogger(opts LogOptions) *slog.Logger {
	var w io.Writer = os.Stdout
	if opts.File != "" {
		w = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		})
	}
	return NewLogger(w, opts.Level, opts.Format)
}

// NewLogger creates a logger writing to w. format is "json" or "text".
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
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

// RunTicker calls fn every interval until ctx is cancelled.
func RunTicker(ctx context.Context, interval time.Duration, fn func()) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			fn()
		}
	}
}
