package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Format represents the log format
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Logger represents a logger instance
type Logger struct {
	*slog.Logger
	mu      sync.Mutex
	writers []io.Writer
	level   slog.Level
	format  Format
}

// New creates a new logger
func New(level slog.Level, format Format, writers ...io.Writer) *Logger {
	return &Logger{
		Logger:  slog.New(newHandler(format, level, writers)),
		writers: writers,
		level:   level,
		format:  format,
	}
}

func newHandler(format Format, level slog.Level, writers []io.Writer) slog.Handler {
	if len(writers) == 0 {
		return slog.DiscardHandler
	}
	out := io.MultiWriter(writers...)
	opts := &slog.HandlerOptions{Level: level}
	if format == FormatJSON {
		return slog.NewJSONHandler(out, opts)
	}
	return slog.NewTextHandler(out, opts)
}

func (l *Logger) rebuildLocked() {
	l.Logger = slog.New(newHandler(l.format, l.level, l.writers))
}

// SetLevel sets the logging level
func (l *Logger) SetLevel(level slog.Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
	l.rebuildLocked()
}

// AddOutput adds a new output destination
func (l *Logger) AddOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writers = append(l.writers, w)
	l.rebuildLocked()
}

// SetFormat changes the log format
func (l *Logger) SetFormat(format Format) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.format = format
	l.rebuildLocked()
}

// Rotate closes the current log file and appends to path instead.
func (l *Logger) Rotate(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var kept []io.Writer
	for _, writer := range l.writers {
		if file, ok := writer.(*os.File); ok && !isConsole(file) {
			file.Close()
			continue
		}
		kept = append(kept, writer)
	}

	file, err := openLogFile(path)
	if err != nil {
		return err
	}
	l.writers = append(kept, file)
	l.rebuildLocked()
	return nil
}

// Close closes all file writers
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, writer := range l.writers {
		if file, ok := writer.(*os.File); ok && !isConsole(file) {
			if err := file.Close(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Level returns the current log level
func (l *Logger) Level() slog.Level {
	return l.level
}

func isConsole(file *os.File) bool {
	return file == os.Stdout || file == os.Stderr
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}

// Init initializes the default logger. console may be nil to log to files only;
// the stdio transport passes os.Stderr so stdout stays reserved for protocol frames.
func Init(level slog.Level, format Format, console io.Writer, paths ...string) error {
	var writers []io.Writer
	if console != nil {
		writers = append(writers, console)
	}

	for _, path := range paths {
		if strings.TrimSpace(path) == "" {
			continue
		}
		file, err := openLogFile(path)
		if err != nil {
			return err
		}
		writers = append(writers, file)
	}

	mu.Lock()
	defaultLogger = New(level, format, writers...)
	mu.Unlock()
	return nil
}

// GetLevelFromString returns the log level from a string
func GetLevelFromString(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var (
	mu sync.RWMutex
	// defaultLogger discards everything until Init runs.
	defaultLogger = New(slog.LevelInfo, FormatText)
)

func current() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

// Default returns the process logger as a *slog.Logger for components that take one.
func Default() *slog.Logger {
	return current().Logger
}

// Helper functions for common logging patterns
func Debug(msg string, args ...any) {
	current().Debug(msg, args...)
}

func Info(msg string, args ...any) {
	current().Info(msg, args...)
}

func Warn(msg string, args ...any) {
	current().Warn(msg, args...)
}

func Error(msg string, args ...any) {
	current().Error(msg, args...)
}

func DebugContext(ctx context.Context, msg string, args ...any) {
	current().DebugContext(ctx, msg, args...)
}

func InfoContext(ctx context.Context, msg string, args ...any) {
	current().InfoContext(ctx, msg, args...)
}

func WarnContext(ctx context.Context, msg string, args ...any) {
	current().WarnContext(ctx, msg, args...)
}

func ErrorContext(ctx context.Context, msg string, args ...any) {
	current().ErrorContext(ctx, msg, args...)
}
