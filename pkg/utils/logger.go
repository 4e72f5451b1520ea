// Package utils holds process-wide helpers shared by the ruiji commands.
package utils

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ServiceName tags every log line so ruiji output can be told apart when
// shipped next to an OpenSearch cluster's own logs.
const ServiceName = "ruiji"

// NewLogger returns a zap logger tagged with the service name. Debug mode uses
// the development config (console, debug level). Otherwise the production JSON
// config at info level with ISO8601 timestamps and no sampling, so bootstrap
// progress lines for large catalogs are never dropped.
func NewLogger(debug bool, opts ...zap.Option) (*zap.Logger, error) {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Sampling = nil
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	logger, err := cfg.Build(opts...)
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("service", ServiceName)), nil
}
