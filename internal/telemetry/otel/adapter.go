package otel

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"ux-telemetry/backend/internal/event"
	"ux-telemetry/backend/internal/telemetry"
)

// scopeName is the instrumentation scope of records emitted by the sink.
const scopeName = "ux-telemetry.session"

// recordEmitter is the subset of otellog.Logger the sink needs.
type recordEmitter interface {
	Emit(ctx context.Context, record otellog.Record)
}

// NewSink returns a telemetry.Sink that re-emits every record of a flushed document as
// an OTel log record via the given LoggerProvider. If provider is nil, returns a no-op sink.
func NewSink(provider *sdklog.LoggerProvider) telemetry.Sink {
	if provider == nil {
		return telemetry.Noop{}
	}
	return &otelSink{logger: provider.Logger(scopeName)}
}

// NewSinkWithLogger returns a sink that emits through logger directly.
func NewSinkWithLogger(logger recordEmitter) telemetry.Sink {
	if logger == nil {
		return telemetry.Noop{}
	}
	return &otelSink{logger: logger}
}

type otelSink struct {
	logger recordEmitter
}

// Log decodes the document and emits one log record per event record, oldest first.
func (s *otelSink) Log(ctx context.Context, document []byte) error {
	records, err := event.DecodeDocument(document)
	if err != nil {
		return err
	}
	for _, r := range records {
		s.logger.Emit(ctx, toLogRecord(r))
	}
	return nil
}

func toLogRecord(r event.DocumentRecord) otellog.Record {
	rec := otellog.Record{}
	ts := r.EventTime
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	rec.SetTimestamp(ts)
	rec.SetObservedTimestamp(time.Now().UTC())
	rec.SetSeverity(otellog.SeverityInfo)
	if len(r.Metadata) > 0 {
		rec.SetBody(otellog.BytesValue(r.Metadata))
	}
	if r.EventName != "" {
		rec.AddAttributes(otellog.String("event_name", r.EventName))
	}
	if r.Type != "" {
		rec.AddAttributes(otellog.String("record_type", r.Type))
	}
	if r.ElementName != "" {
		rec.AddAttributes(otellog.String("element_name", r.ElementName))
	}
	return rec
}
