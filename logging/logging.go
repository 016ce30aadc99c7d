// Package logging provides leveled console logging for mailbox components.
// Lines look like:
//
//	INFO  2026-01-02T15:04:05.000Z [collab] message_posted id=msg-0123456789ab type=task
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

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

var levelPriority = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// ParseLevel parses a level name case-insensitively. Unknown names yield INFO.
func ParseLevel(s string) Level {
	l := Level(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := levelPriority[l]; ok {
		return l
	}
	if l == "WARNING" {
		return LevelWarn
	}
	return LevelInfo
}

// Fields are key=value pairs appended to a log line.
type Fields map[string]any

// Logger writes leveled lines to an io.Writer. Loggers derived with
// WithComponent share the writer and its mutex.
type Logger struct {
	out       *output
	minLevel  Level
	component string
}

type output struct {
	mu sync.Mutex
	w  io.Writer
}

// New creates a Logger writing INFO and above to stdout.
func New() *Logger {
	return &Logger{
		out:      &output{w: os.Stdout},
		minLevel: LevelInfo,
	}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{
		out:      &output{w: io.Discard},
		minLevel: LevelError,
	}
}

// WithComponent returns a logger tagging lines with the component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		out:       l.out,
		minLevel:  l.minLevel,
		component: component,
	}
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.minLevel = level
}

// SetOutput sets the output writer. Derived loggers follow the change.
func (l *Logger) SetOutput(w io.Writer) {
	l.out.mu.Lock()
	l.out.w = w
	l.out.mu.Unlock()
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...Fields) {
	l.log(LevelDebug, msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...Fields) {
	l.log(LevelInfo, msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...Fields) {
	l.log(LevelWarn, msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...Fields) {
	l.log(LevelError, msg, fields...)
}

func formatFields(fields Fields) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, fields[k])
	}
	return b.String()
}

func (l *Logger) log(level Level, msg string, fields ...Fields) {
	if l == nil || levelPriority[level] < levelPriority[l.minLevel] {
		return
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	var fieldStr string
	if len(fields) > 0 && fields[0] != nil {
		fieldStr = formatFields(fields[0])
	}

	var line string
	if l.component != "" {
		line = fmt.Sprintf("%-5s %s [%s] %s%s\n", level, timestamp, l.component, msg, fieldStr)
	} else {
		line = fmt.Sprintf("%-5s %s %s%s\n", level, timestamp, msg, fieldStr)
	}

	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	io.WriteString(l.out.w, line)
}

// --- Mailbox events ---

// MessagePosted logs a successful post.
func (l *Logger) MessagePosted(id, messageType string) {
	l.Info("message_posted", Fields{
		"id":   id,
		"type": messageType,
	})
}

// MessageSkipped logs a listed entry that could not be decoded.
func (l *Logger) MessageSkipped(key string, err error) {
	l.Warn("message_skipped", Fields{
		"key":   key,
		"error": err.Error(),
	})
}

// StatusUpdated logs a status mutation.
func (l *Logger) StatusUpdated(id, status string, duration time.Duration) {
	l.Info("status_updated", Fields{
		"id":       id,
		"status":   status,
		"duration": duration.String(),
	})
}

// AuthAttempt logs the outcome of one token acquisition strategy.
func (l *Logger) AuthAttempt(strategy string, err error) {
	if err != nil {
		l.Warn("auth_attempt_failed", Fields{
			"strategy": strategy,
			"error":    err.Error(),
		})
		return
	}
	l.Info("auth_attempt_succeeded", Fields{
		"strategy": strategy,
	})
}

// OperationFailed logs a failed orchestrator or tool operation.
func (l *Logger) OperationFailed(operation string, err error) {
	l.Error("operation_failed", Fields{
		"operation": operation,
		"error":     err.Error(),
	})
}
