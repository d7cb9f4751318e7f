package utils

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger returns the process logger. In debug mode it writes human-readable
// lines at debug level; otherwise JSON at info level with ISO 8601 timestamps
// and without sampling, so every job transition is kept.
func NewLogger(debug bool) (*zap.Logger, error) {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.Sampling = nil
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("service", "docanalysis")), nil
}

// ComponentLogger returns logger named after component when verbose is set,
// and a no-op logger otherwise. A nil logger also yields a no-op logger.
func ComponentLogger(logger *zap.Logger, verbose bool, component string) *zap.Logger {
	if logger == nil || !verbose {
		return zap.NewNop()
	}
	return logger.Named(component)
}
