package otel

import (
	"context"
	"testing"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"ux-telemetry/backend/internal/telemetry"
)

// recordCapture stores every Record passed to Emit for assertion.
type recordCapture struct {
	recs []otellog.Record
}

func (r *recordCapture) Emit(_ context.Context, rec otellog.Record) {
	r.recs = append(r.recs, rec)
}

func attrs(rec otellog.Record) map[string]string {
	out := map[string]string{}
	rec.WalkAttributes(func(kv otellog.KeyValue) bool {
		out[kv.Key] = kv.Value.AsString()
		return true
	})
	return out
}

func TestNewSink_NilProvider_ReturnsNoop(t *testing.T) {
	s := NewSink(nil)
	if _, ok := s.(telemetry.Noop); !ok {
		t.Fatalf("NewSink(nil) = %T, want telemetry.Noop", s)
	}
	if _, ok := NewSinkWithLogger(nil).(telemetry.Noop); !ok {
		t.Error("NewSinkWithLogger(nil) should be a no-op")
	}
}

func TestNewSink_WithProvider(t *testing.T) {
	provider := sdklog.NewLoggerProvider()
	defer func() { _ = provider.Shutdown(context.Background()) }()
	if err := NewSink(provider).Log(context.Background(), []byte(`[{"__type":"EventRecord","EventName":"A","EventTime":"2024-01-01T00:00:00Z"}]`)); err != nil {
		t.Errorf("Log: %v", err)
	}
}

func TestSink_MapsRecords(t *testing.T) {
	cap := &recordCapture{}
	doc := `[
{"__type":"EventRecord","EventName":"StateChanged","EventTime":"2024-03-04T05:06:07Z","Metadata":{"PreviousState":"A","CurrentState":"B"}},
{"__type":"UxEventRecord","EventName":"Click","EventTime":"2024-03-04T05:06:08Z","ElementName":"SaveButton"}
]`
	if err := NewSinkWithLogger(cap).Log(context.Background(), []byte(doc)); err != nil {
		t.Fatalf("Log: %v", err)
	}
	if len(cap.recs) != 2 {
		t.Fatalf("emitted = %d, want 2", len(cap.recs))
	}

	first := cap.recs[0]
	if !first.Timestamp().Equal(time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC)) {
		t.Errorf("timestamp = %v", first.Timestamp())
	}
	if first.Severity() != otellog.SeverityInfo {
		t.Errorf("severity = %v", first.Severity())
	}
	if first.Body().Kind() != otellog.KindBytes || string(first.Body().AsBytes()) != `{"PreviousState":"A","CurrentState":"B"}` {
		t.Errorf("body = %v", first.Body())
	}
	if a := attrs(first); a["event_name"] != "StateChanged" || a["record_type"] != "EventRecord" {
		t.Errorf("attributes = %v", a)
	}
	if _, ok := attrs(first)["element_name"]; ok {
		t.Error("plain records should not carry element_name")
	}

	second := cap.recs[1]
	if a := attrs(second); a["element_name"] != "SaveButton" || a["record_type"] != "UxEventRecord" {
		t.Errorf("attributes = %v", a)
	}
	if !second.Body().Empty() {
		t.Errorf("record without metadata should have no body, got %v", second.Body())
	}
	if second.ObservedTimestamp().IsZero() {
		t.Error("observed timestamp should be set")
	}
}

func TestSink_ZeroTimestamp_SetsCurrentTime(t *testing.T) {
	cap := &recordCapture{}
	before := time.Now().UTC()
	if err := NewSinkWithLogger(cap).Log(context.Background(), []byte(`[{"__type":"EventRecord","EventName":"A","EventTime":"0001-01-01T00:00:00Z"}]`)); err != nil {
		t.Fatalf("Log: %v", err)
	}
	if ts := cap.recs[0].Timestamp(); ts.Before(before) {
		t.Errorf("timestamp = %v, want >= %v", ts, before)
	}
}

func TestSink_MalformedDocument(t *testing.T) {
	cap := &recordCapture{}
	if err := NewSinkWithLogger(cap).Log(context.Background(), []byte(`{`)); err == nil {
		t.Fatal("Log should fail on a malformed document")
	}
	if len(cap.recs) != 0 {
		t.Error("nothing should be emitted for a malformed document")
	}
}
