package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	globalLogger = slog.Default()
	mu           sync.RWMutex
	files        []*os.File
)

type Config struct {
	Level   string   `json:"level" yaml:"level"`     // debug/info/warn/error
	Format  string   `json:"format" yaml:"format"`   // text/json
	Outputs []string `json:"outputs" yaml:"outputs"` // stdout/stderr/file path
}

// ParseLevel maps a config level name to a slog level; unknown names are info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// New builds a logger writing to w.
func New(w io.Writer, cfg Config) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("unknown log format %q", cfg.Format)
}

// Init replaces the process logger. Files opened by an earlier Init are
// closed.
func Init(cfg Config) error {
	// 创建多个输出writer
	var writers []io.Writer
	var opened []*os.File
	for _, output := range cfg.Outputs {
		switch output {
		case "", "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
				closeAll(opened)
				return fmt.Errorf("create log directory: %w", err)
			}
			file, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				closeAll(opened)
				return fmt.Errorf("open log file: %w", err)
			}
			opened = append(opened, file)
			writers = append(writers, file)
		}
	}
	if len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}

	l, err := New(io.MultiWriter(writers...), cfg)
	if err != nil {
		closeAll(opened)
		return err
	}

	mu.Lock()
	old := files
	globalLogger, files = l, opened
	mu.Unlock()
	closeAll(old)
	return nil
}

func closeAll(fs []*os.File) {
	for _, f := range fs {
		_ = f.Close()
	}
}

func Debug(msg string, args ...any) {
	Logger().Debug(msg, args...)
}

func Info(msg string, args ...any) {
	Logger().Info(msg, args...)
}

func Warn(msg string, args ...any) {
	Logger().Warn(msg, args...)
}

func Error(msg string, args ...any) {
	Logger().Error(msg, args...)
}

func Logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return globalLogger
}
