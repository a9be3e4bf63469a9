// Package producer publishes flushed session documents to a message broker (e.g. Kafka).
package producer

import "context"

// Producer publishes session documents. Callers use it best-effort: log and ignore errors.
type Producer interface {
	// Log publishes one flushed document. Implementations may block briefly.
	Log(ctx context.Context, document []byte) error
	// Close releases resources (e.g. Kafka writer). Safe to call if already closed.
	Close() error
}
