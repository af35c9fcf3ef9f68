// Package log provides structured logging for winejs using zap.
package log

import (
	"strconv"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TraceFunc receives one import event: the address of the call site, the
// stub category, the qualified import name and a short detail string.
type TraceFunc func(rip uint64, category, name, detail string)

// Logger wraps zap.Logger with emulator-specific helpers.
type Logger struct {
	*zap.Logger
	onTrace TraceFunc
}

var (
	// L is the global logger instance. It is a no-op until Init is called.
	L    = NewNop()
	once sync.Once
)

// Init initializes the global logger. Only the first call takes effect.
func Init(debug bool) {
	once.Do(func() {
		L = New(debug)
	})
}

// New creates a Logger. Debug mode uses the colored development encoder,
// otherwise only warnings and errors are emitted as JSON.
func New(debug bool) *Logger {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		logger = zap.NewNop()
	}

	return &Logger{Logger: logger}
}

// NewNop creates a no-op logger for tests.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// SetOnTrace sets the callback invoked for every traced import.
func (l *Logger) SetOnTrace(fn TraceFunc) {
	l.onTrace = fn
}

// Trace reports an intercepted import. The callback fires even when the
// debug level is disabled.
func (l *Logger) Trace(rip uint64, category, name, detail string) {
	if l.onTrace != nil {
		l.onTrace(rip, category, name, detail)
	}

	l.Debug("import",
		zap.String("cat", category),
		zap.String("fn", name),
		zap.String("detail", detail),
		Addr(rip),
	)
}

// StubFallback logs an import that no stub claimed.
func (l *Logger) StubFallback(name string) {
	l.Debug("fallback",
		zap.String("fn", name),
		zap.String("ret", "0"),
	)
}

// DetectorActivate logs when an import-pattern detector fires.
func (l *Logger) DetectorActivate(name, description string) {
	l.Info("detector",
		zap.String("name", name),
		zap.String("desc", description),
	)
}

// WithCategory returns a logger with the category field preset.
func (l *Logger) WithCategory(category string) *Logger {
	return &Logger{
		Logger:  l.Logger.With(zap.String("cat", category)),
		onTrace: l.onTrace,
	}
}

// Hex formats v as a 0x-prefixed lowercase hex string.
func Hex(v uint64) string {
	return "0x" + strconv.FormatUint(v, 16)
}

// Addr creates an address field.
func Addr(addr uint64) zap.Field {
	return zap.String("addr", Hex(addr))
}

// Ptr creates a named pointer field.
func Ptr(name string, ptr uint64) zap.Field {
	return zap.String(name, Hex(ptr))
}

// Fn creates a function name field.
func Fn(name string) zap.Field {
	return zap.String("fn", name)
}

// WithFields returns a logger with fields preset.
func (l *Logger) WithFields(fields ...zap.Field) *Logger {
	return &Logger{
		Logger:  l.Logger.With(fields...),
		onTrace: l.onTrace,
	}
}
