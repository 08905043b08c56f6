package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity of a log message
type LogLevel string

const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
	LogLevelFatal LogLevel = "FATAL"
)

var levelRank = map[LogLevel]int{
	LogLevelDebug: 0,
	LogLevelInfo:  1,
	LogLevelWarn:  2,
	LogLevelError: 3,
	LogLevelFatal: 4,
}

// ParseLevel maps a settings value to a LogLevel, falling back to INFO.
func ParseLevel(s string) LogLevel {
	level := LogLevel(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := levelRank[level]; ok {
		return level
	}
	return LogLevelInfo
}

// Process-wide defaults applied to loggers created after they are set.
var (
	defaultsMu     sync.RWMutex
	defaultLevel   = LogLevelInfo
	defaultOutputs = []io.Writer{os.Stdout}
)

// Configure sets the level and outputs used by subsequently created loggers.
func Configure(level LogLevel, outputs ...io.Writer) {
	defaultsMu.Lock()
	defer defaultsMu.Unlock()
	defaultLevel = level
	if len(outputs) > 0 {
		defaultOutputs = outputs
	}
}

// LogEntry represents a single log entry
type LogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     LogLevel               `json:"level"`
	Component string                 `json:"component"`
	Message   string                 `json:"message"`
	Error     error                  `json:"error,omitempty"`
	Context   map[string]interface{} `json:"context,omitempty"`
}

// LogFormatter formats log entries for output
type LogFormatter interface {
	Format(entry *LogEntry) string
}

// TextFormatter formats logs as human-readable text. Context keys are
// written in sorted order.
type TextFormatter struct{}

func (f *TextFormatter) Format(entry *LogEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s [%s] %s",
		entry.Timestamp.Format("2006-01-02 15:04:05.000"), entry.Level, entry.Component, entry.Message)

	if entry.Error != nil {
		fmt.Fprintf(&b, " | error=%v", entry.Error)
	}

	if len(entry.Context) > 0 {
		keys := make([]string, 0, len(entry.Context))
		for k := range entry.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" |")
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, entry.Context[k])
		}
	}

	b.WriteByte('\n')
	return b.String()
}

// Logger provides component-scoped structured logging
type Logger struct {
	component string
	minLevel  LogLevel
	outputs   []io.Writer
	mu        sync.Mutex
	formatter LogFormatter
}

// NewLogger creates a new logger for a specific component
func NewLogger(component string) *Logger {
	defaultsMu.RLock()
	defer defaultsMu.RUnlock()
	outputs := make([]io.Writer, len(defaultOutputs))
	copy(outputs, defaultOutputs)
	return &Logger{
		component: component,
		minLevel:  defaultLevel,
		outputs:   outputs,
		formatter: &TextFormatter{},
	}
}

// Discard returns a logger that writes nowhere.
func Discard(component string) *Logger {
	return &Logger{component: component, minLevel: LogLevelFatal, formatter: &TextFormatter{}}
}

// SetMinLevel sets the minimum log level to output
func (l *Logger) SetMinLevel(level LogLevel) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minLevel = level
	return l
}

// AddOutput adds an output writer for logs
func (l *Logger) AddOutput(w io.Writer) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.outputs = append(l.outputs, w)
	return l
}

// SetOutputs replaces every output writer
func (l *Logger) SetOutputs(ws ...io.Writer) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.outputs = ws
	return l
}

func (l *Logger) log(level LogLevel, message string, err error, context map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if levelRank[level] < levelRank[l.minLevel] {
		return
	}

	formatted := l.formatter.Format(&LogEntry{
		Timestamp: time.Now(),
		Level:     level,
		Component: l.component,
		Message:   message,
		Error:     err,
		Context:   context,
	})

	for _, output := range l.outputs {
		output.Write([]byte(formatted))
	}
}

func (l *Logger) Debug(message string) { l.log(LogLevelDebug, message, nil, nil) }

func (l *Logger) DebugWithContext(message string, context map[string]interface{}) {
	l.log(LogLevelDebug, message, nil, context)
}

func (l *Logger) Info(message string) { l.log(LogLevelInfo, message, nil, nil) }

func (l *Logger) InfoWithContext(message string, context map[string]interface{}) {
	l.log(LogLevelInfo, message, nil, context)
}

func (l *Logger) Warn(message string) { l.log(LogLevelWarn, message, nil, nil) }

func (l *Logger) WarnWithContext(message string, context map[string]interface{}) {
	l.log(LogLevelWarn, message, nil, context)
}

func (l *Logger) Error(message string, err error) { l.log(LogLevelError, message, err, nil) }

func (l *Logger) ErrorWithContext(message string, err error, context map[string]interface{}) {
	l.log(LogLevelError, message, err, context)
}

// WithContext returns a logger that stamps every entry with context
func (l *Logger) WithContext(context map[string]interface{}) *ContextLogger {
	return &ContextLogger{logger: l, context: context}
}

// ContextLogger is a logger with pre-set context
type ContextLogger struct {
	logger  *Logger
	context map[string]interface{}
}

func (cl *ContextLogger) merge(extra map[string]interface{}) map[string]interface{} {
	if len(extra) == 0 {
		return cl.context
	}
	merged := make(map[string]interface{}, len(cl.context)+len(extra))
	for k, v := range cl.context {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}

func (cl *ContextLogger) Debug(message string) {
	cl.logger.log(LogLevelDebug, message, nil, cl.context)
}

func (cl *ContextLogger) Info(message string) { cl.logger.log(LogLevelInfo, message, nil, cl.context) }

func (cl *ContextLogger) Warn(message string) { cl.logger.log(LogLevelWarn, message, nil, cl.context) }

func (cl *ContextLogger) Error(message string, err error) {
	cl.logger.log(LogLevelError, message, err, cl.context)
}

func (cl *ContextLogger) DebugWith(message string, extra map[string]interface{}) {
	cl.logger.log(LogLevelDebug, message, nil, cl.merge(extra))
}

// InfoWith logs at INFO with extra keys on top of the pre-set context
func (cl *ContextLogger) InfoWith(message string, extra map[string]interface{}) {
	cl.logger.log(LogLevelInfo, message, nil, cl.merge(extra))
}

// WarnWith logs at WARN with extra keys on top of the pre-set context
func (cl *ContextLogger) WarnWith(message string, extra map[string]interface{}) {
	cl.logger.log(LogLevelWarn, message, nil, cl.merge(extra))
}

// ErrorWith logs at ERROR with extra keys on top of the pre-set context
func (cl *ContextLogger) ErrorWith(message string, err error, extra map[string]interface{}) {
	cl.logger.log(LogLevelError, message, err, cl.merge(extra))
}

// Truncate shortens s to at most n runes, marking the cut.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
