package service

import (
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"assignly/internal/metrics"
)

var tracer = otel.Tracer("assignly/internal/service")

type options struct {
	log     *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures a service.
type Option func(*options)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMetrics sets the domain counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{log: zap.NewNop(), now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}
	return o
}
