package browse

import (
	"fmt"
	"os"
	"sync"
	"time"
)

var logMu sync.Mutex

// ExternalLogger defines the minimal logger the browse package can use.
// Implemented by the app's structured logger. We keep it small to avoid
// tight coupling.
type ExternalLogger interface {
	Error(msg string, context ...interface{})
	Warn(msg string, context ...interface{})
	Info(msg string, context ...interface{})
	Debug(msg string, context ...interface{})
}

var extLogger ExternalLogger

// SetLogger allows the application to inject a structured logger.
// When set, browse.Info/Debug/Error will delegate to this logger.
func SetLogger(l ExternalLogger) {
	extLogger = l
}

func writeLine(level string, msg string) {
	ts := time.Now().Format(time.RFC3339)
	logMu.Lock()
	defer logMu.Unlock()
	fmt.Fprintf(os.Stderr, "%s [%s] %s\n", ts, level, msg)
}

// Info logs an informational message.
func Info(msg string) {
	if extLogger != nil {
		extLogger.Info(msg)
		return
	}
	writeLine("INFO", msg)
}

// InfoCtx logs an informational message with optional key/value context.
func InfoCtx(msg string, context ...interface{}) {
	if extLogger != nil {
		extLogger.Info(msg, context...)
		return
	}
	if len(context) > 0 {
		msg = fmt.Sprintf("%s %v", msg, context)
	}
	writeLine("INFO", msg)
}

// Debug logs a debug message.
func Debug(msg string) {
	if extLogger != nil {
		extLogger.Debug(msg)
		return
	}
}

// DebugCtx logs a debug message with optional key/value context.
func DebugCtx(msg string, context ...interface{}) {
	if extLogger != nil {
		extLogger.Debug(msg, context...)
		return
	}
}

// Warn logs a warning message.
func Warn(msg string) {
	if extLogger != nil {
		extLogger.Warn(msg)
		return
	}
	writeLine("WARN", msg)
}

// WarnCtx logs a warning message with optional key/value context.
func WarnCtx(msg string, context ...interface{}) {
	if extLogger != nil {
		extLogger.Warn(msg, context...)
		return
	}
	if len(context) > 0 {
		msg = fmt.Sprintf("%s %v", msg, context)
	}
	writeLine("WARN", msg)
}

// Error logs an error message.
func Error(msg string) {
	if extLogger != nil {
		extLogger.Error(msg)
		return
	}
	writeLine("ERROR", msg)
}

// ErrorCtx logs an error message with optional key/value context.
func ErrorCtx(msg string, context ...interface{}) {
	if extLogger != nil {
		extLogger.Error(msg, context...)
		return
	}
	if len(context) > 0 {
		msg = fmt.Sprintf("%s %v", msg, context)
	}
	writeLine("ERROR", msg)
}
