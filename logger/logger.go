// Package logger provides the slog setup and the shared attribute
// constructors so log output stays uniform across packages.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// LogConfiguration is the operator-facing logging setup, loadable from the
// node configuration file.
type LogConfiguration struct {
	Level      string `yaml:"defaultLevel"`
	Format     string `yaml:"format"`
	OutputPath string `yaml:"outputPath"`
	// NoColor is accepted for config compatibility; the text handler of the
	// standard library does not colorize.
	NoColor bool `yaml:"noColor"`
}

// New builds a slog logger according to the configuration. Unset fields
// default to info-level text output on stderr.
func New(cfg *LogConfiguration) (*slog.Logger, error) {
	if cfg == nil {
		cfg = &LogConfiguration{}
	}
	out, err := output(cfg.OutputPath)
	if err != nil {
		return nil, err
	}
	level, err := levelFromString(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		h = slog.NewTextHandler(out, opts)
	case "json", "ecs":
		h = slog.NewJSONHandler(out, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return slog.New(h), nil
}

func output(path string) (io.Writer, error) {
	switch path {
	case "", "stderr":
		return os.Stderr, nil
	case "stdout":
		return os.Stdout, nil
	case "discard":
		return io.Discard, nil
	default:
		file, err := os.OpenFile(filepath.Clean(path), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		return file, nil
	}
}

func levelFromString(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "":
		return slog.LevelInfo, nil
	case "warning":
		return slog.LevelWarn, nil
	default:
		var l slog.Level
		if err := l.UnmarshalText([]byte(level)); err != nil {
			return 0, fmt.Errorf("unknown log level %q", level)
		}
		return l, nil
	}
}
