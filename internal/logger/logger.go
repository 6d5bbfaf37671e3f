package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default logging configuration constants
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Config describes where the supervisor's own log goes.
type Config struct {
	Level    string     `json:"level" mapstructure:"level"`   // debug, info, warn, error
	Format   string     `json:"format" mapstructure:"format"` // text or json
	Color    bool       `json:"color" mapstructure:"color"`   // colored level tags on the console (text only)
	File     FileConfig `json:"file" mapstructure:"file"`
	RingSize int        `json:"ring_size" mapstructure:"ring_size"` // lines kept for the log stream
}

// FileConfig enables a rotated log file. Rotation parameters follow
// lumberjack semantics.
type FileConfig struct {
	Path       string `json:"path" mapstructure:"path"`
	MaxSizeMB  int    `json:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `json:"compress" mapstructure:"compress"`
}

// Logger bundles the slog logger with the resources backing it.
type Logger struct {
	*slog.Logger
	ring *Ring
	file *lj.Logger
}

// New builds a logger writing to console (os.Stderr when nil), the optional
// rotated file and the in-memory ring.
func New(cfg Config, console io.Writer) (*Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if console == nil {
		console = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: level}

	var handlers []slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		if cfg.Color {
			handlers = append(handlers, NewColorTextHandler(console, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(console, opts))
		}
	case "json":
		handlers = append(handlers, slog.NewJSONHandler(console, opts))
	default:
		return nil, fmt.Errorf("unknown log format %q (want text or json)", cfg.Format)
	}

	l := &Logger{ring: NewRing(cfg.RingSize)}
	handlers = append(handlers, slog.NewTextHandler(l.ring, opts))

	if cfg.File.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File.Path), 0o750); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		l.file = cfg.File.writer(cfg.File.Path)
		handlers = append(handlers, slog.NewJSONHandler(l.file, opts))
	}

	l.Logger = slog.New(newFanout(handlers...))
	return l, nil
}

// Ring returns the in-memory tail of the log stream.
func (l *Logger) Ring() *Ring { return l.ring }

// Close releases the log file, if any.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// ParseLevel maps a level name to slog.Level; empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

func (c FileConfig) writer(path string) *lj.Logger {
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
