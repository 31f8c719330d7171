package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Init installs the global logger. defaultLevel applies when LOG_LEVEL is
// unset or unknown: the CLI stays quiet, the server logs at info.
func Init(defaultLevel zapcore.Level) *zap.Logger {
	logger := New(os.Getenv("LOG_LEVEL"), defaultLevel)
	zap.ReplaceGlobals(logger)
	return logger
}

// New builds a console logger on stderr at the named level.
func New(name string, defaultLevel zapcore.Level) *zap.Logger {
	level := ParseLevel(name, defaultLevel)

	encoderCfg := zap.NewDevelopmentEncoderConfig()
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.Lock(os.Stderr),
		level,
	)
	return zap.New(core)
}

// ParseLevel maps the LOG_LEVEL vocabulary onto a zap level.
func ParseLevel(name string, fallback zapcore.Level) zapcore.Level {
	switch name {
	case "dev", "development", "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error", "production", "prod":
		return zapcore.ErrorLevel
	}
	return fallback
}
