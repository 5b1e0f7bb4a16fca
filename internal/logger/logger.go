// Package logger builds the process-wide zap logger.
package logger

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"assignly/internal/config"
)

// New returns a zap logger writing to stdout. Format "console" gives a human
// readable encoder; anything else is JSON, one object per line.
// Timestamps are rendered in the configured timezone.
func New(c config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(c.Level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}

	loc, err := Location(c.Timezone)
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	if c.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.EncoderConfig.TimeKey = "ts"
	zc.EncoderConfig.MessageKey = "msg"
	zc.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.In(loc).Format(time.RFC3339Nano))
	}
	zc.OutputPaths = []string{"stdout"}

	return zc.Build()
}

// Location resolves a timezone name, defaulting to UTC when empty.
func Location(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid log timezone %q: %w", name, err)
	}
	return loc, nil
}
