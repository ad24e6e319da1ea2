// Package logging provides zap logger helpers.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ServiceName is attached to every log entry.
const ServiceName = "scrapeworker"

// New builds the process logger. Development mode logs at debug with a console
// encoder; otherwise entries are JSON at info and carry a service field.
func New(development bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	mode := "prod"
	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		mode = "dev"
	} else {
		cfg.InitialFields = map[string]any{"service": ServiceName}
	}
	cfg.EncoderConfig.TimeKey = "ts"

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build %s logger: %w", mode, err)
	}
	if development {
		logger = logger.Named(ServiceName)
	}
	return logger, nil
}

// Job returns a child logger carrying the job's identifying fields.
func Job(logger *zap.Logger, jobID, url string) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger.With(zap.String("job_id", jobID), zap.String("url", url))
}
