// Package telemetry holds the remote sinks flushed session documents are sent to, and
// helpers to combine them.
package telemetry

import (
	"context"
	"errors"
	"fmt"
)

// Sink sends a flushed session document somewhere. Best-effort: callers log and ignore
// errors. Satisfies event.RemoteLogger.
type Sink interface {
	Log(ctx context.Context, document []byte) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, document []byte) error

// Log calls f.
func (f SinkFunc) Log(ctx context.Context, document []byte) error { return f(ctx, document) }

// Named pairs a sink with a name used in error messages.
type Named struct {
	Name string
	Sink Sink
}

// Multi fans a document out to every sink in order. A failing sink does not stop the
// others; all failures are joined into the returned error.
type Multi []Named

// Log implements Sink.
func (m Multi) Log(ctx context.Context, document []byte) error {
	var errs []error
	for _, s := range m {
		if s.Sink == nil {
			continue
		}
		if err := s.Sink.Log(ctx, document); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Noop discards documents.
type Noop struct{}

// Log implements Sink.
func (Noop) Log(context.Context, []byte) error { return nil }
