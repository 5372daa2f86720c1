// Package logging wraps log/slog with the level/format/output knobs the
// rest of the driver expects from its configuration file.
package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Config controls how a Logger renders and where it writes.
type Config struct {
	Level      string `yaml:"level"`       // debug, info, warn, error
	Format     string `yaml:"format"`      // json, text
	Output     string `yaml:"output"`      // stdout, stderr, file
	OutputPath string `yaml:"output_path"` // used when Output == "file"
	AddSource  bool   `yaml:"add_source"`
	TimeFormat string `yaml:"time_format"`
}

// Logger is a structured logger embedding slog.Logger.
type Logger struct {
	*slog.Logger
	config *Config
}

// NewLogger builds a Logger from config, or DefaultConfig() if nil.
func NewLogger(config *Config) (*Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	level := parseLevel(config.Level)

	handler, err := createHandler(config, level)
	if err != nil {
		return nil, err
	}

	return &Logger{
		Logger: slog.New(handler),
		config: config,
	}, nil
}

// DefaultConfig returns a sane default: info level, text format, stdout.
func DefaultConfig() *Config {
	return &Config{
		Level:      "info",
		Format:     "text",
		Output:     "stdout",
		AddSource:  false,
		TimeFormat: time.RFC3339,
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func createHandler(config *Config, level slog.Level) (slog.Handler, error) {
	var writer *os.File
	var err error

	switch strings.ToLower(config.Output) {
	case "stderr":
		writer = os.Stderr
	case "file":
		if config.OutputPath == "" {
			config.OutputPath = "logs/app.log"
		}
		if err := os.MkdirAll("logs", 0755); err != nil {
			return nil, err
		}
		writer, err = os.OpenFile(config.OutputPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
	default:
		writer = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: config.AddSource,
	}

	var handler slog.Handler
	if strings.ToLower(config.Format) == "json" {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}

	return handler, nil
}

// WithContext returns a new Logger over the same handler; ctx is not
// attached to it.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	return &Logger{
		Logger: slog.New(l.Logger.Handler()),
		config: l.config,
	}
}

// With returns a Logger with additional structured fields attached.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
		config: l.config,
	}
}

// WithGroup returns a Logger that nests subsequent fields under name.
func (l *Logger) WithGroup(name string) *Logger {
	return &Logger{
		Logger: l.Logger.WithGroup(name),
		config: l.config,
	}
}

// UpdateLevel rebuilds the handler at a new level in place.
func (l *Logger) UpdateLevel(level string) {
	l.config.Level = level
	newLevel := parseLevel(level)

	handler, err := createHandler(l.config, newLevel)
	if err != nil {
		l.Error("failed to update log level", "error", err)
		return
	}

	l.Logger = slog.New(handler)
}

// GetConfig returns the configuration currently in effect.
func (l *Logger) GetConfig() *Config {
	return l.config
}
