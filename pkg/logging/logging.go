// Package logging builds the zap logger used across the Vingo backend.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vingo-app/vingo-backend/pkg/config"
)

// ServiceName is attached to every log entry.
const ServiceName = "vingo-backend"

// DefaultConfig returns the logging defaults
func DefaultConfig() config.LoggingConfig {
	return config.LoggingConfig{
		Level:  "info",
		Format: "json",
	}
}

// NewLogger creates a zap logger from the logging section of the configuration.
// Format "json" selects the production encoder; anything else the console one.
func NewLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	zapCfg.Level = zap.NewAtomicLevelAt(ParseLevel(cfg.Level))
	zapCfg.InitialFields = map[string]interface{}{"service": ServiceName}

	return zapCfg.Build()
}

// ParseLevel converts a string level to zapcore.Level, defaulting to info
func ParseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zap.DebugLevel
	case "info":
		return zap.InfoLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}
