package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// initLogging installs the process-wide slog logger.  Valid levels: "debug",
// "info", "warn", "error".  Text output unless GO_ENV=production.
func initLogging(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var logger *slog.Logger
	if os.Getenv("GO_ENV") == "production" {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, opts))
	} else {
		logger = slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	slog.SetDefault(logger)
	return logger
}

// EventLogger writes timestamped events to a file.  It is safe for concurrent use.
type EventLogger struct {
	filePath string
	mu       sync.Mutex
}

// NewEventLogger creates a logger writing to filePath.
func NewEventLogger(filePath string) *EventLogger {
	return &EventLogger{filePath: filePath}
}

// Log writes a single event with timestamp.  Write errors are reported on
// standard error and otherwise ignored.
func (el *EventLogger) Log(format string, args ...any) {
	el.mu.Lock()
	defer el.mu.Unlock()
	msg := fmt.Sprintf(format, args...)
	line := fmt.Sprintf("%s - %s\n", time.Now().Format(time.RFC3339), msg)
	f, err := os.OpenFile(el.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "event log error: %v\n", err)
		return
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		fmt.Fprintf(os.Stderr, "event log write error: %v\n", err)
	}
}

// Tail returns at most limit of the most recent journal lines.
func (el *EventLogger) Tail(limit int) ([]string, error) {
	el.mu.Lock()
	data, err := os.ReadFile(el.filePath)
	el.mu.Unlock()
	if err != nil {
		return nil, err
	}
	lines := strings.Split(string(data), "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if limit > 0 && len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}
	return lines, nil
}
