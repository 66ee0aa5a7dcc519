// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package log provides structured logging for the digitizer.
// It wraps slog so every component logs the same way.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// EnvLogFormat selects the handler: "json" or anything else for text.
const EnvLogFormat = "VRD_LOG_FORMAT"

var (
	logger *slog.Logger
	mu     sync.Mutex
)

// ParseLevel maps a config/flag string to a slog level.
// Unknown strings fall back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "trace":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Init installs the global logger at the given level, writing to stderr.
func Init(level string) {
	InitWriter(level, os.Stderr)
}

// InitWriter installs the global logger writing to w.
// Unlike the commands, tests call this more than once, so it replaces
// any previous logger.
func InitWriter(level string, w io.Writer) {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var h slog.Handler
	if strings.EqualFold(os.Getenv(EnvLogFormat), "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}

	mu.Lock()
	logger = slog.New(h)
	mu.Unlock()
	slog.SetDefault(logger)
}

// L returns the global logger instance.
func L() *slog.Logger {
	mu.Lock()
	l := logger
	mu.Unlock()
	if l == nil {
		Init("info")
		return L()
	}
	return l
}

// Component returns a logger tagged with the component name.
func Component(name string) *slog.Logger {
	return L().With("component", name)
}

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	L().Debug(msg, args...)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	L().Info(msg, args...)
}

// Warn logs at warn level.
func Warn(msg string, args ...any) {
	L().Warn(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	L().Error(msg, args...)
}

// With returns a logger with the given attributes.
func With(args ...any) *slog.Logger {
	return L().With(args...)
}
