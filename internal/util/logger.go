package util

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.Logger

// InitLogger builds the process-wide logger. Production gets JSON output,
// everything else gets the coloured console encoder.
func InitLogger(env string) error {
	var cfg zap.Config

	switch env {
	case "production":
		cfg = zap.NewProductionConfig()
	case "test":
		logger = zap.NewNop()
		zap.ReplaceGlobals(logger)
		return nil
	default:
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	built, err := cfg.Build()
	if err != nil {
		return err
	}
	logger = built.With(zap.String("service", "farm-market"))

	zap.ReplaceGlobals(logger)
	return nil
}

// GetLogger returns the global logger
func GetLogger() *zap.Logger {
	if logger == nil {
		logger, _ = zap.NewDevelopment()
	}
	return logger
}

// SyncLogger flushes any buffered log entries
func SyncLogger() {
	if logger != nil {
		_ = logger.Sync()
	}
}
