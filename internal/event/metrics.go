package event

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

type loggerMetrics struct {
	eventsLogged metric.Int64Counter
	flushes      metric.Int64Counter
	sinkFailures metric.Int64Counter
}

// newLoggerMetrics creates the Logger instruments. An instrument that fails to register
// falls back to a no-op so metrics never block logging.
func newLoggerMetrics(meter metric.Meter) *loggerMetrics {
	fallback := noop.NewMeterProvider().Meter(instrumentationName)
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			c, _ = fallback.Int64Counter(name)
		}
		return c
	}
	return &loggerMetrics{
		eventsLogged: counter("uxlog.events_logged", "Event records buffered by the event logger"),
		flushes:      counter("uxlog.flushes", "Flush attempts by outcome"),
		sinkFailures: counter("uxlog.sink_failures", "Flush sink failures by sink"),
	}
}
