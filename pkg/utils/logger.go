package utils

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger returns the service logger. Debug mode uses the development
// config (console encoder, debug level). Production mode uses JSON with
// sampling disabled, so bursts of identical ingest logs during a directory
// sync are all kept, and ISO 8601 timestamps instead of epoch floats.
func NewLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Sampling = nil
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}
