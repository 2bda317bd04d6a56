package observability

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/couchcryptid/synop-bufr-etl/internal/config"
)

// NewLogger builds the run logger: every record goes to the console (stderr)
// and, when LOG_FILE is set, is appended to the persistent log file. The
// returned closer releases the log file.
func NewLogger(cfg *config.Config) (*slog.Logger, io.Closer, error) {
	level := ParseLevel(cfg.LogLevel)
	console := newConsoleHandler(os.Stderr, cfg.LogFormat, level)

	if strings.TrimSpace(cfg.LogFile) == "" {
		return slog.New(console), nopCloser{}, nil
	}

	if dir := filepath.Dir(cfg.LogFile); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
	}
	file, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	fileHandler := slog.NewTextHandler(file, &slog.HandlerOptions{Level: level})

	return slog.New(TeeHandler(console, fileHandler)), file, nil
}

// ParseLevel maps LOG_LEVEL to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// newConsoleHandler picks the console encoding. "auto" renders text on an
// interactive terminal and JSON otherwise.
func newConsoleHandler(f *os.File, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if format == "auto" {
		format = "json"
		if isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()) {
			format = "text"
		}
	}
	if format == "text" {
		return slog.NewTextHandler(f, opts)
	}
	return slog.NewJSONHandler(f, opts)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
