package config

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ServiceName tags every log line written by the server loggers
const ServiceName = "feed-formulation-mcp-server"

// parseLogLevel converts a LOG_LEVEL value to slog.Level, defaulting to INFO
func parseLogLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// GetLogLevel returns the log level from the LOG_LEVEL environment variable
func GetLogLevel() slog.Level {
	return parseLogLevel(os.Getenv("LOG_LEVEL"))
}

// NewLogger creates the server logger.
// HTTP mode logs JSON to stdout; stdio mode logs text to stderr so stdout
// stays reserved for MCP frames.
func NewLogger(isStdioMode bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: GetLogLevel()}

	var handler slog.Handler
	if isStdioMode {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler).With("service", ServiceName)
}

// NewTextLogger creates a text logger at the configured level, used by the
// one-shot CLI commands
func NewTextLogger(output io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(output, &slog.HandlerOptions{Level: GetLogLevel()}))
}

// NewTestLogger creates a logger for tests. An empty level falls back to LOG_LEVEL.
func NewTestLogger(output io.Writer, level string) *slog.Logger {
	logLevel := GetLogLevel()
	if level != "" {
		logLevel = parseLogLevel(level)
	}

	return slog.New(slog.NewTextHandler(output, &slog.HandlerOptions{Level: logLevel}))
}
