package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LogLevel represents logging verbosity levels.
type LogLevel int

// Log level constants.
const (
	LogLevelOff LogLevel = iota
	LogLevelError
	LogLevelDebug
)

// ParseLogLevel parses a log level string. Unknown values mean error.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "none":
		return LogLevelOff
	case "debug":
		return LogLevelDebug
	default:
		return LogLevelError
	}
}

func (l LogLevel) String() string {
	switch l {
	case LogLevelOff:
		return "off"
	case LogLevelDebug:
		return "debug"
	default:
		return "error"
	}
}

// Logger appends timestamped lines to a file. Every device layer takes a
// Debug/Error logger, and Named hands each one a prefixed view of this one.
type Logger struct {
	mu    sync.Mutex
	level LogLevel
	out   io.WriteCloser
	now   func() time.Time
}

// NewLogger opens filePath for appending. Level off or an empty path yield a
// logger that writes nothing.
func NewLogger(level LogLevel, filePath string) (*Logger, error) {
	l := &Logger{level: level, now: time.Now}
	if level == LogLevelOff || filePath == "" {
		return l, nil
	}

	filePath = ExpandHome(filePath)
	if err := os.MkdirAll(filepath.Dir(filePath), 0o700); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) //nolint:gosec // G304: path from config
	if err != nil {
		return nil, err
	}
	l.out = f
	return l, nil
}

// newWriterLogger logs to w; tests use it.
func newWriterLogger(level LogLevel, w io.WriteCloser, now func() time.Time) *Logger {
	return &Logger{level: level, out: w, now: now}
}

// NullLogger returns a logger that discards all output.
func NullLogger() *Logger {
	return &Logger{level: LogLevelOff, now: time.Now}
}

// Close closes the log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.out == nil {
		return nil
	}
	err := l.out.Close()
	l.out = nil
	return err
}

// SetLevel changes the log level.
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// Level returns the current log level.
func (l *Logger) Level() LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// Debug logs a debug message.
func (l *Logger) Debug(format string, args ...any) {
	l.log(LogLevelDebug, "", format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...any) {
	l.log(LogLevelError, "", format, args...)
}

// Named returns a logger whose lines carry component.
func (l *Logger) Named(component string) *ComponentLogger {
	return &ComponentLogger{parent: l, component: component}
}

// Writer returns an io.Writer that logs each write at level.
func (l *Logger) Writer(level LogLevel) io.Writer {
	return &logWriter{logger: l, level: level}
}

func (l *Logger) log(level LogLevel, component, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.level == LogLevelOff || level > l.level || l.out == nil {
		return
	}

	prefix := ""
	if component != "" {
		prefix = component + ": "
	}
	_, _ = fmt.Fprintf(l.out, "%s [%s] %s%s\n",
		l.now().Format("2006-01-02 15:04:05.000"),
		strings.ToUpper(level.String()),
		prefix,
		fmt.Sprintf(format, args...))
}

// ComponentLogger prefixes every line with a component name.
type ComponentLogger struct {
	parent    *Logger
	component string
}

// Debug logs a debug message.
func (c *ComponentLogger) Debug(format string, args ...any) {
	c.parent.log(LogLevelDebug, c.component, format, args...)
}

// Error logs an error message.
func (c *ComponentLogger) Error(format string, args ...any) {
	c.parent.log(LogLevelError, c.component, format, args...)
}

type logWriter struct {
	logger *Logger
	level  LogLevel
}

func (w *logWriter) Write(p []byte) (int, error) {
	w.logger.log(w.level, "", "%s", strings.TrimSpace(string(p)))
	return len(p), nil
}
