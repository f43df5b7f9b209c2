// Package observability holds the logging, metrics and tracing setup shared by
// both entrypoints.
package observability

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the root logger. Production uses JSON output; every other
// environment gets the console encoder. The returned AtomicLevel lets the
// config watcher change the level at runtime.
func NewLogger(environment, level string) (*zap.Logger, zap.AtomicLevel, error) {
	var zapConfig zap.Config
	if environment == "production" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	atom := zap.NewAtomicLevelAt(ParseLevel(level))
	zapConfig.Level = atom

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, atom, err
	}
	return logger.With(zap.String("environment", environment)), atom, nil
}

// ParseLevel maps a config string onto a zap level, defaulting to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zap.DebugLevel
	case "warn", "warning":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}
