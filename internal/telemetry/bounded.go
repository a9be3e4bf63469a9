package telemetry

import (
	"context"
	"time"
)

// DefaultSendTimeout bounds a single send when a Bounded has no Timeout.
const DefaultSendTimeout = 5 * time.Second

// Bounded wraps a Sink so every send runs synchronously under its own deadline. The
// caller's cancellation is ignored (its values are kept), so a cancelled request does
// not abort a document that is already being sent. Because Log returns only when the
// send is done, documents reach the sink one at a time and in the order they were logged.
type Bounded struct {
	Sink    Sink
	Timeout time.Duration
}

// NewBounded returns a Bounded around sink. A non-positive timeout means DefaultSendTimeout.
func NewBounded(sink Sink, timeout time.Duration) *Bounded {
	return &Bounded{Sink: sink, Timeout: timeout}
}

// Log implements Sink.
func (b *Bounded) Log(ctx context.Context, document []byte) error {
	if b == nil || b.Sink == nil {
		return nil
	}
	timeout := b.Timeout
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	return b.Sink.Log(ctx, document)
}
