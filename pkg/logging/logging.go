// Package logging configures the process-wide slog logger.
//
// Levels from most to least verbose: DEBUG, INFO, WARN, ERROR.
//
//	logging.Setup(logging.Options{Level: "debug", Format: "json"})
//	slog.Info("client logged in", "user", name, "conn", id)
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options controls how logging is configured.
type Options struct {
	Level  string    // "debug", "info", "warn", "error" (default: "info")
	Format string    // "text" or "json" (default: "text")
	Output io.Writer // where to write logs (default: os.Stdout)
}

// ParseLevel converts a string level name to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup installs a slog handler built from opts as the default logger.
func Setup(opts Options) error {
	handler, err := NewHandler(opts)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// NewHandler builds the handler Setup would install, without installing it.
func NewHandler(opts Options) (slog.Handler, error) {
	if err := Validate(opts.Level); err != nil {
		return nil, err
	}
	if err := ValidateFormat(opts.Format); err != nil {
		return nil, err
	}

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	level := ParseLevel(opts.Level)

	handlerOpts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // include file:line in debug mode
	}

	if strings.ToLower(opts.Format) == "json" {
		return slog.NewJSONHandler(out, handlerOpts), nil
	}
	return slog.NewTextHandler(out, handlerOpts), nil
}

// LevelNames returns all valid level names, useful for --help text.
func LevelNames() string {
	return "debug, info, warn, error"
}

// Validate returns an error if the level string is not recognized.
func Validate(level string) error {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "info", "warn", "warning", "error", "":
		return nil
	default:
		return fmt.Errorf("unknown log level %q (valid: %s)", level, LevelNames())
	}
}

// ValidateFormat returns an error if the format is neither text nor json.
func ValidateFormat(format string) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "text", "json", "":
		return nil
	default:
		return fmt.Errorf("unknown log format %q (valid: text, json)", format)
	}
}
