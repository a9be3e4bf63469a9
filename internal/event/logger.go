// Package event buffers event records, runs them through registered observers and
// flushes the buffer to a durable file and a remote sink.
package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"ux-telemetry/backend/internal/event/domain"
)

// LogPathSetting is the settings key holding the directory flushed documents are written to.
const LogPathSetting = "LogPath"

const instrumentationName = "ux-telemetry/backend/internal/event"

var (
	// ErrLogPathNotSet is returned by a flush when the LogPath setting is missing or empty.
	ErrLogPathNotSet = errors.New("eventlog: LogPath setting is not set")
	// ErrUnknownKind is returned when a record kind was not registered with the Serializer.
	ErrUnknownKind = errors.New("eventlog: record kind not registered with serializer")
	// ErrSinkPanic wraps a panic recovered from a sink.
	ErrSinkPanic = errors.New("eventlog: sink panicked")
)

// Observer transforms a record before it is buffered. Implementations must not mutate
// state shared with other owners; they return the (possibly new) record. Observers run
// under the Logger's lock and must not call back into it.
type Observer interface {
	Observe(record domain.EventRecord) domain.EventRecord
}

// RemoteLogger sends a flushed document to a remote destination. Best-effort: the
// Logger logs a returned error and moves on.
type RemoteLogger interface {
	Log(ctx context.Context, document []byte) error
}

// SettingsGetter resolves named settings. See settings.Service.
type SettingsGetter interface {
	GetSetting(name string) (string, bool)
}

// Logger buffers records and flushes them on ResetLog. Safe for concurrent use; at most
// one flush runs at a time.
type Logger struct {
	settings   SettingsGetter
	remote     RemoteLogger
	serializer *Serializer
	clock      clockwork.Clock
	log        *slog.Logger
	tracer     trace.Tracer
	metrics    *loggerMetrics

	mu        sync.Mutex
	observers []Observer
	buffer    []domain.EventRecord

	flushMu sync.Mutex
}

// Option configures a Logger.
type Option func(*Logger)

// WithSerializer overrides the default serializer (all record kinds).
func WithSerializer(s *Serializer) Option {
	return func(l *Logger) {
		if s != nil {
			l.serializer = s
		}
	}
}

// WithClock sets the clock used to timestamp flushed files.
func WithClock(c clockwork.Clock) Option {
	return func(l *Logger) {
		if c != nil {
			l.clock = c
		}
	}
}

// WithSlog sets the diagnostic logger. Defaults to slog.Default().
func WithSlog(logger *slog.Logger) Option {
	return func(l *Logger) {
		if logger != nil {
			l.log = logger
		}
	}
}

// WithMeterProvider sets the provider used for flush metrics. Defaults to the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(l *Logger) {
		if mp != nil {
			l.metrics = newLoggerMetrics(mp.Meter(instrumentationName))
		}
	}
}

// WithTracerProvider sets the provider used for flush spans. Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(l *Logger) {
		if tp != nil {
			l.tracer = tp.Tracer(instrumentationName)
		}
	}
}

// NewLogger returns a Logger that resolves its log directory through settings and sends
// flushed documents to remote. remote may be nil; then only the file sink is written.
func NewLogger(settings SettingsGetter, remote RemoteLogger, opts ...Option) *Logger {
	l := &Logger{
		settings:   settings,
		remote:     remote,
		serializer: DefaultSerializer(),
		clock:      clockwork.NewRealClock(),
		log:        slog.Default(),
		tracer:     otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.metrics == nil {
		l.metrics = newLoggerMetrics(otel.Meter(instrumentationName))
	}
	return l
}

// AddObserver registers o. Adding an observer that is already registered is a no-op.
// Observers are compared with ==, so they should be pointers.
func (l *Logger) AddObserver(o Observer) {
	if o == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, existing := range l.observers {
		if existing == o {
			return
		}
	}
	l.observers = append(l.observers, o)
}

// RemoveObserver unregisters o. Removing an observer that was never added is a no-op.
func (l *Logger) RemoveObserver(o Observer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, existing := range l.observers {
		if existing == o {
			l.observers = append(l.observers[:i:i], l.observers[i+1:]...)
			return
		}
	}
}

// LogEvent passes record through every observer in registration order and buffers the result.
// A record without a name is dropped with a warning.
func (l *Logger) LogEvent(ctx context.Context, record domain.EventRecord) {
	if record.Name == "" {
		l.log.WarnContext(ctx, "eventlog: dropped record without a name", "kind", record.Kind.String())
		return
	}
	l.mu.Lock()
	for _, o := range l.observers {
		record = o.Observe(record)
	}
	l.buffer = append(l.buffer, record)
	l.mu.Unlock()

	l.metrics.eventsLogged.Add(ctx, 1, metric.WithAttributes(attribute.String("event_name", record.Name)))
}

// Buffered returns a copy of the records waiting for the next flush, oldest first.
func (l *Logger) Buffered() []domain.EventRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.EventRecord, len(l.buffer))
	copy(out, l.buffer)
	return out
}

// ResetLog flushes the buffer to the remote sink and to a timestamped file under the
// LogPath directory, then clears it. Failures are logged and never returned: the buffer
// is cleared whether or not either sink succeeded.
func (l *Logger) ResetLog(ctx context.Context) {
	l.flushMu.Lock()
	defer l.flushMu.Unlock()

	ctx, span := l.tracer.Start(ctx, "eventlog.ResetLog")
	defer span.End()

	records := l.drain()
	span.SetAttributes(attribute.Int("eventlog.records", len(records)))

	outcome := "ok"
	if err := l.flush(ctx, records); err != nil {
		outcome = "failed"
		span.RecordError(err)
		span.SetStatus(codes.Error, "flush failed")
		l.log.ErrorContext(ctx, "eventlog: flush failed", "records", len(records), "error", err)
	}
	l.metrics.flushes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// drain detaches the buffer under the lock. Records logged while a flush is in progress
// go to the next flush.
func (l *Logger) drain() []domain.EventRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	records := l.buffer
	l.buffer = nil
	return records
}

func (l *Logger) flush(ctx context.Context, records []domain.EventRecord) error {
	logPath, err := l.logPath()
	if err != nil {
		return err
	}

	var document []byte
	if err := guard(func() error {
		var err error
		document, err = l.serializer.Marshal(records)
		return err
	}); err != nil {
		return fmt.Errorf("serialize: %w", err)
	}

	var errs []error
	if l.remote != nil {
		if err := guard(func() error { return l.remote.Log(ctx, document) }); err != nil {
			l.metrics.sinkFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("sink", "remote")))
			errs = append(errs, fmt.Errorf("remote sink: %w", err))
		}
	}
	if err := guard(func() error {
		_, err := writeLogFile(logPath, l.clock.Now(), document)
		return err
	}); err != nil {
		l.metrics.sinkFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("sink", "file")))
		errs = append(errs, fmt.Errorf("file sink: %w", err))
	}
	return errors.Join(errs...)
}

func (l *Logger) logPath() (string, error) {
	if l.settings == nil {
		return "", ErrLogPathNotSet
	}
	path, ok := l.settings.GetSetting(LogPathSetting)
	if !ok || path == "" {
		return "", ErrLogPathNotSet
	}
	return path, nil
}

// guard runs fn and converts a panic into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrSinkPanic, r)
		}
	}()
	return fn()
}
