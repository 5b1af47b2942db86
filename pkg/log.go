package pkg

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
)

// Component identifies a subsystem for log filtering.
type Component string

// Bootloader component identifiers.
const (
	ComponentLoader    Component = "loader"
	ComponentFlash     Component = "flash"
	ComponentDispatch  Component = "dispatch"
	ComponentScheduler Component = "scheduler"
	ComponentHAL       Component = "hal"
	ComponentTarget    Component = "target"
	ComponentImage     Component = "image"
	ComponentSim       Component = "sim"
)

// LogFormat specifies the output format for logging.
type LogFormat int

// Log format options.
const (
	LogFormatText LogFormat = iota // Text format (default)
	LogFormatJSON                  // JSON format
)

var (
	// logLevel is shared by every logger this package builds, so level
	// changes apply without a rebuild.
	logLevel = new(slog.LevelVar)

	// logMutex protects the fields below.
	logMutex  sync.RWMutex
	logOutput io.Writer = os.Stderr
	logFormat           = LogFormatText
	logger    *slog.Logger
)

func init() {
	logLevel.Set(slog.LevelWarn)
	logger = newLogger(logOutput, logFormat)
}

func newLogger(w io.Writer, format LogFormat) *slog.Logger {
	opts := &slog.HandlerOptions{Level: logLevel}
	if format == LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// SetLogLevel sets the minimum level of bootloader logging.
func SetLogLevel(level slog.Level) {
	logLevel.Set(level)
}

// LogLevel returns the minimum level of bootloader logging.
func LogLevel() slog.Level {
	return logLevel.Level()
}

// SetLogOutput sends bootloader logging to w in the current format.
// The default is os.Stderr.
func SetLogOutput(w io.Writer) {
	logMutex.Lock()
	defer logMutex.Unlock()
	logOutput = w
	logger = newLogger(logOutput, logFormat)
}

// SetLogFormat switches bootloader logging to format on the current output.
func SetLogFormat(format LogFormat) {
	logMutex.Lock()
	defer logMutex.Unlock()
	logFormat = format
	logger = newLogger(logOutput, logFormat)
}

// SetLogger replaces the bootloader logger. A later SetLogOutput or
// SetLogFormat replaces it again.
func SetLogger(l *slog.Logger) {
	logMutex.Lock()
	defer logMutex.Unlock()
	logger = l
}

// Logger returns the bootloader logger tagged with component.
func Logger(component Component) *slog.Logger {
	logMutex.RLock()
	defer logMutex.RUnlock()
	return logger.With("component", string(component))
}

// logAt emits msg tagged with component. Disabled levels return before any
// attribute is built, so the scheduler can log from its poll loop.
func logAt(level slog.Level, component Component, msg string, args []any) {
	logMutex.RLock()
	l := logger
	logMutex.RUnlock()

	ctx := context.Background()
	if !l.Enabled(ctx, level) {
		return
	}
	l.Log(ctx, level, msg, append([]any{"component", string(component)}, args...)...)
}

// LogDebug logs a debug message with the given component.
func LogDebug(component Component, msg string, args ...any) {
	logAt(slog.LevelDebug, component, msg, args)
}

// LogInfo logs an info message with the given component.
func LogInfo(component Component, msg string, args ...any) {
	logAt(slog.LevelInfo, component, msg, args)
}

// LogWarn logs a warning message with the given component.
func LogWarn(component Component, msg string, args ...any) {
	logAt(slog.LevelWarn, component, msg, args)
}

// LogError logs an error message with the given component.
func LogError(component Component, msg string, args ...any) {
	logAt(slog.LevelError, component, msg, args)
}
