// Package logging provides the structured logging facade used throughout
// the reactor core: a thin wrapper over zap that adds the one thing the
// reactor needs beyond normal leveled logging — an Invariant check that
// fatally logs (and, by way of zap's Fatal level, terminates the process)
// when an internal precondition is violated.
package logging

import (
	"go.uber.org/zap"
)

// Logger wraps a *zap.Logger. The zero value is not usable; construct one
// with New or use Default.
type Logger struct {
	z *zap.Logger
}

var defaultLogger = New(mustBuildProduction())

func mustBuildProduction() *zap.Logger {
	z, err := zap.NewProduction()
	if err != nil {
		// zap.NewProduction only fails on a broken encoder/sink config, which
		// never happens with the built-in production preset.
		panic(err)
	}
	return z
}

// New wraps an existing *zap.Logger.
func New(z *zap.Logger) *Logger { return &Logger{z: z} }

// Default returns the process-wide default logger.
func Default() *Logger { return defaultLogger }

// SetDefault replaces the process-wide default logger.
func SetDefault(l *Logger) { defaultLogger = l }

// Debug logs at debug level.
func (l *Logger) Debug(msg string, fields ...zap.Field) { l.z.Debug(msg, fields...) }

// Info logs at info level.
func (l *Logger) Info(msg string, fields ...zap.Field) { l.z.Info(msg, fields...) }

// Warn logs at warn level.
func (l *Logger) Warn(msg string, fields ...zap.Field) { l.z.Warn(msg, fields...) }

// Error logs at error level.
func (l *Logger) Error(msg string, fields ...zap.Field) { l.z.Error(msg, fields...) }

// Invariant logs at fatal level and terminates the process (or, under a
// zap.WithFatalHook(zapcore.WriteThenPanic) core in tests, panics instead)
// when cond is false. Call sites state the invariant being checked, e.g.
//
//	logging.Default().Invariant(fd >= 0, "channel attached with invalid fd")
func (l *Logger) Invariant(cond bool, msg string, fields ...zap.Field) {
	if !cond {
		l.z.Fatal(msg, fields...)
	}
}

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error { return l.z.Sync() }

// Raw returns the underlying *zap.Logger for callers that need direct zap
// API access (e.g. .With(), .Named()).
func (l *Logger) Raw() *zap.Logger { return l.z }
