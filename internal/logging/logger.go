package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

// ParseLevel maps a config string to a LogLevel, defaulting to INFO
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case DEBUG:
		return slog.LevelDebug
	case WARN:
		return slog.LevelWarn
	case ERROR:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config holds logger configuration
type Config struct {
	Level      LogLevel
	OutputFile string    // empty disables the file sink
	Console    io.Writer // nil disables console output
	MaxSize    int64     // bytes before the file is rotated (default 10MB)
	MaxBackups int       // rotated files kept (default 3)
	JSONFormat bool
	AddSource  bool
}

// Logger is a slog.Logger plus the file it owns
type Logger struct {
	*slog.Logger

	path string
	mu   sync.Mutex
	file *os.File
}

var (
	global *Logger
	once   sync.Once
)

// Initialize installs the logger as slog's default. Components take
// slog.Default().With("component", ...) and inherit its sinks.
func Initialize(config Config) error {
	var initErr error
	once.Do(func() {
		l, err := NewLogger(config)
		if err != nil {
			initErr = fmt.Errorf("failed to initialize logger: %w", err)
			return
		}
		global = l
		slog.SetDefault(l.Logger)
	})
	return initErr
}

// NewLogger opens the configured sinks
func NewLogger(config Config) (*Logger, error) {
	if config.MaxSize == 0 {
		config.MaxSize = 10 * 1024 * 1024
	}
	if config.MaxBackups == 0 {
		config.MaxBackups = 3
	}

	l := &Logger{path: config.OutputFile}

	var sinks []io.Writer
	if config.Console != nil {
		sinks = append(sinks, config.Console)
	}
	if config.OutputFile != "" {
		f, err := openRotated(config.OutputFile, config.MaxSize, config.MaxBackups)
		if err != nil {
			return nil, err
		}
		l.file = f
		sinks = append(sinks, f)
	}

	out := io.Discard
	if len(sinks) > 0 {
		out = io.MultiWriter(sinks...)
	}

	opts := &slog.HandlerOptions{
		Level:     config.Level.slogLevel(),
		AddSource: config.AddSource,
	}
	if config.JSONFormat {
		l.Logger = slog.New(slog.NewJSONHandler(out, opts))
	} else {
		l.Logger = slog.New(slog.NewTextHandler(out, opts))
	}
	return l, nil
}

// openRotated shifts path -> path.1 -> path.2 ... when path has reached
// maxSize, then opens path for appending
func openRotated(path string, maxSize int64, backups int) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	info, err := os.Stat(path)
	switch {
	case err == nil && info.Size() >= maxSize:
		for i := backups - 1; i >= 1; i-- {
			from := fmt.Sprintf("%s.%d", path, i)
			if _, err := os.Stat(from); err == nil {
				_ = os.Rename(from, fmt.Sprintf("%s.%d", path, i+1))
			}
		}
		if err := os.Rename(path, path+".1"); err != nil {
			return nil, fmt.Errorf("failed to rotate log file: %w", err)
		}
	case err != nil && !os.IsNotExist(err):
		return nil, fmt.Errorf("failed to stat log file: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	return f, nil
}

// Close closes the log file if one is open
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Close closes the global logger
func Close() error {
	if global != nil {
		return global.Close()
	}
	return nil
}

// IsDebugEnabled reports whether the default logger emits debug records
func IsDebugEnabled() bool {
	return slog.Default().Enabled(context.Background(), slog.LevelDebug)
}

// GetLogFilePath returns the file the global logger writes to, or ""
func GetLogFilePath() string {
	if global != nil {
		return global.path
	}
	return ""
}

// DefaultConfig writes JSON to a per-run file under dir. The terminal belongs
// to the conversation, so only debug mode adds a console sink.
func DefaultConfig(dir string, debugMode bool) Config {
	cfg := Config{
		Level:      INFO,
		MaxSize:    10 * 1024 * 1024,
		MaxBackups: 3,
		JSONFormat: true,
	}
	if dir != "" {
		cfg.OutputFile = filepath.Join(dir, fmt.Sprintf("pilot_%s.log", time.Now().Format("2006-01-02_15-04-05")))
	}
	if debugMode {
		cfg.Level = DEBUG
		cfg.Console = os.Stderr
		cfg.JSONFormat = false
		cfg.AddSource = true
	}
	return cfg
}
