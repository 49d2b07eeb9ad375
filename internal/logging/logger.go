// Package logging builds the zap logger used across ptyhost and reads back
// the log file it writes.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the log level, the encoder and an optional log file.
type Config struct {
	Level       string
	Development bool

	// File receives a copy of everything written to stdout.
	File string
}

// New builds a logger from cfg. Production mode writes JSON with
// timestamp/level/message keys; development mode writes colored console
// lines and stack traces on warnings.
func New(cfg Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var zapCfg zap.Config
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zapCfg = zap.NewProductionConfig()
		zapCfg.Sampling = nil
		zapCfg.EncoderConfig.TimeKey = "timestamp"
		zapCfg.EncoderConfig.MessageKey = "message"
		zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.OutputPaths = outputs(cfg.File)

	return zapCfg.Build()
}

func outputs(file string) []string {
	if file == "" {
		return []string{"stdout"}
	}
	return []string{"stdout", file}
}
