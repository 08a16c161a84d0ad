package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log message.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var levelNames = map[Level]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

var levelColors = map[Level]string{
	DEBUG: "\033[36m",
	INFO:  "\033[32m",
	WARN:  "\033[33m",
	ERROR: "\033[31m",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseLevel parses a string into a Level. Unknown values fall back to INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// Logger is a leveled logger carrying a prefix and a set of key/value fields.
// Derived loggers share the output writer and its lock.
type Logger struct {
	mu       *sync.Mutex
	out      io.Writer
	level    Level
	prefix   string
	fields   map[string]any
	colorize bool
	now      func() time.Time
}

// Option configures a Logger.
type Option func(*Logger)

// WithOutput sets the output destination.
func WithOutput(w io.Writer) Option {
	return func(l *Logger) {
		l.out = w
	}
}

// WithLevel sets the minimum log level.
func WithLevel(level Level) Option {
	return func(l *Logger) {
		l.level = level
	}
}

// WithPrefix sets a prefix for log messages.
func WithPrefix(prefix string) Option {
	return func(l *Logger) {
		l.prefix = prefix
	}
}

// WithColors enables or disables colorized output.
func WithColors(enabled bool) Option {
	return func(l *Logger) {
		l.colorize = enabled
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) {
		l.now = now
	}
}

// New creates a new Logger with the given options.
func New(opts ...Option) *Logger {
	l := &Logger{
		mu:       &sync.Mutex{},
		out:      os.Stdout,
		level:    INFO,
		fields:   map[string]any{},
		colorize: true,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

var (
	defaultMu     sync.RWMutex
	defaultLogger = New()
)

// SetDefault sets the default logger.
func SetDefault(l *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = l
}

// Default returns the default logger.
func Default() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

func (l *Logger) derive(prefix string, fields map[string]any) *Logger {
	return &Logger{
		mu:       l.mu,
		out:      l.out,
		level:    l.level,
		prefix:   prefix,
		fields:   fields,
		colorize: l.colorize,
		now:      l.now,
	}
}

// WithField returns a new logger with the given field added.
func (l *Logger) WithField(key string, value any) *Logger {
	return l.WithFields(map[string]any{key: value})
}

// WithFields returns a new logger with the given fields added.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	merged := make(map[string]any, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return l.derive(l.prefix, merged)
}

// WithError attaches err under the "error" field.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

// WithPrefix returns a new logger with the given prefix.
func (l *Logger) WithPrefix(prefix string) *Logger {
	return l.derive(prefix, l.fields)
}

// Enabled reports whether messages at level would be written.
func (l *Logger) Enabled(level Level) bool {
	return level >= l.level
}

func (l *Logger) log(level Level, msg string, args ...any) {
	if !l.Enabled(level) {
		return
	}

	var sb strings.Builder
	sb.WriteString(l.now().Format("2006-01-02 15:04:05.000"))
	sb.WriteByte(' ')
	if l.colorize {
		sb.WriteString(fmt.Sprintf("%s%-5s\033[0m", levelColors[level], level.String()))
	} else {
		sb.WriteString(fmt.Sprintf("%-5s", level.String()))
	}
	sb.WriteByte(' ')

	if l.prefix != "" {
		sb.WriteString("[" + l.prefix + "] ")
	}

	if _, file, line, ok := runtime.Caller(2); ok {
		if idx := strings.LastIndex(file, "/"); idx >= 0 {
			file = file[idx+1:]
		}
		sb.WriteString(fmt.Sprintf("[%s:%d] ", file, line))
	}

	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	sb.WriteString(msg)

	if len(l.fields) > 0 {
		keys := make([]string, 0, len(l.fields))
		for k := range l.fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf(" %s=%v", k, l.fields[k]))
		}
	}
	sb.WriteByte('\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprint(l.out, sb.String())
}

// Debug logs a message at DEBUG level.
func (l *Logger) Debug(msg string, args ...any) {
	l.log(DEBUG, msg, args...)
}

// Info logs a message at INFO level.
func (l *Logger) Info(msg string, args ...any) {
	l.log(INFO, msg, args...)
}

// Warn logs a message at WARN level.
func (l *Logger) Warn(msg string, args ...any) {
	l.log(WARN, msg, args...)
}

// Error logs a message at ERROR level.
func (l *Logger) Error(msg string, args ...any) {
	l.log(ERROR, msg, args...)
}

type ctxKey struct{}

// FromContext returns the logger from the context, or the default logger.
func FromContext(ctx context.Context) *Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*Logger); ok {
			return l
		}
	}
	return Default()
}

// NewContext returns a new context with the given logger.
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}
