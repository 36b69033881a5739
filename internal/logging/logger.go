// Package logging constructs the application's zap logger from config.
package logging

import (
	"fmt"

	"github.com/redactifai/redactifai-worker/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a zap.Logger whose encoding, sampling, and level follow
// cfg. Production environments start from zap's production config with
// sampling disabled so no log line is ever dropped; every other environment
// starts from the development config with colorized level names. The
// encoding is JSON when cfg.LogFormat is "json" and console otherwise, in
// every environment.
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	var loggerConfig zap.Config

	if cfg.Environment == "production" {
		loggerConfig = zap.NewProductionConfig()
		loggerConfig.Sampling = nil
	} else {
		loggerConfig = zap.NewDevelopmentConfig()
		loggerConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	logLevel, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	loggerConfig.Level = zap.NewAtomicLevelAt(logLevel)

	loggerConfig.EncoderConfig.TimeKey = "timestamp"
	loggerConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if cfg.LogFormat == "json" {
		loggerConfig.Encoding = "json"
	} else {
		loggerConfig.Encoding = "console"
	}

	logger, err := loggerConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return logger, nil
}
