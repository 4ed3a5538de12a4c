// Package logging builds the process logger: console output plus rotating
// datewatch.log and errors.log files.
package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/syntrixbase/datewatch/internal/config"
)

const (
	MainLogFile  = "datewatch.log"
	ErrorLogFile = "errors.log"
)

var (
	openFiles   []io.Closer
	openFilesMu sync.Mutex

	// console is swapped in tests.
	console io.Writer = os.Stdout
)

// Initialize builds the logger and installs it as the slog default.
func Initialize(cfg config.LoggingConfig) error {
	logger, err := NewLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	slog.SetDefault(logger)

	slog.Info("Logging initialized",
		"level", cfg.Level,
		"format", cfg.Format,
		"dir", cfg.Dir,
		"console", cfg.Console.Enabled,
		"file", cfg.File.Enabled,
	)
	return nil
}

// NewLogger creates a logger for cfg. Files it opens are closed by Shutdown.
func NewLogger(cfg config.LoggingConfig) (*slog.Logger, error) {
	var handlers []slog.Handler

	if cfg.Console.Enabled {
		handlers = append(handlers, newHandler(console, cfg.Console, cfg.Console.Color))
	}

	if cfg.File.Enabled {
		if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		mainFile := rotating(cfg, MainLogFile)
		handlers = append(handlers, newHandler(mainFile, cfg.File, false))

		errorFile := rotating(cfg, ErrorLogFile)
		handlers = append(handlers, withMinLevel(newHandler(errorFile, cfg.File, false), slog.LevelWarn))
	}

	if len(handlers) == 0 {
		return slog.New(discard{}), nil
	}
	return slog.New(newFanout(handlers...)), nil
}

// Shutdown closes every log file opened by NewLogger.
func Shutdown() error {
	openFilesMu.Lock()
	defer openFilesMu.Unlock()

	var errs []error
	for _, f := range openFiles {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	openFiles = nil
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to close log files: %w", err)
	}
	return nil
}

func rotating(cfg config.LoggingConfig, name string) *lumberjack.Logger {
	l := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Dir, name),
		MaxSize:    cfg.Rotation.MaxSize,
		MaxBackups: cfg.Rotation.MaxBackups,
		MaxAge:     cfg.Rotation.MaxAge,
		Compress:   cfg.Rotation.Compress,
	}
	openFilesMu.Lock()
	openFiles = append(openFiles, l)
	openFilesMu.Unlock()
	return l
}

func newHandler(w io.Writer, out config.OutputConfig, colored bool) slog.Handler {
	level := ParseLevel(out.Level)
	if out.Format == "json" {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}
	return NewTextHandler(w, level, colored)
}

// ParseLevel maps a configured level name to a slog level. Unknown names
// map to info.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
