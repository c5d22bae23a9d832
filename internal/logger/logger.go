package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the process-wide logger. It is a no-op until Init or Set is called.
// Readers use it without synchronisation, so it is only replaced during
// start-up or between tests.
var Log = zap.NewNop()

// Init builds the console logger used by the command line tools.
// Unknown levels fall back to info.
func Init(level string) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.DisableStacktrace = true

	l, err := cfg.Build()
	if err != nil {
		l = zap.NewExample()
		l.Warn("Falling back to example logger", zap.Error(err))
	}
	Set(l)
}

// Set replaces the global logger and returns the previous one. It must not
// run while other goroutines are logging: call it before starting them, or
// from tests that restore the previous logger when they finish.
func Set(l *zap.Logger) *zap.Logger {
	prev := Log
	if l == nil {
		l = zap.NewNop()
	}
	Log = l
	return prev
}

// Sync flushes buffered entries. Errors from syncing stderr are ignored.
func Sync() {
	_ = Log.Sync()
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
