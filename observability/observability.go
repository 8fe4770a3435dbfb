// Package observability bundles the logging and metrics capabilities the
// engine's components receive from their host process.
package observability

import (
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Observability is the subset of the node's telemetry surface the dispatch
// pipeline consumes.
type Observability interface {
	Meter(name string, opts ...metric.MeterOption) metric.Meter
	Logger() *slog.Logger
}

type observability struct {
	mp  metric.MeterProvider
	log *slog.Logger
}

// New wraps the given meter provider and logger. Nil arguments are replaced
// with no-op implementations.
func New(mp metric.MeterProvider, log *slog.Logger) Observability {
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	if log == nil {
		log = slog.Default()
	}
	return &observability{mp: mp, log: log}
}

// NOP returns an implementation where everything is a no-op. Use it when it
// absolutely doesn't make sense to create any logs or metrics.
func NOP() Observability {
	return &observability{
		mp:  noop.NewMeterProvider(),
		log: slog.New(discardHandler{}),
	}
}

func (o *observability) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	return o.mp.Meter(name, opts...)
}

func (o *observability) Logger() *slog.Logger {
	return o.log
}
