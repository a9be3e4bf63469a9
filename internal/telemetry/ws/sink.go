// Package ws streams flushed session documents to a live viewer over a WebSocket.
package ws

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// Sink keeps one client connection to URL and writes each document as a text message.
// The connection is dialed lazily and re-dialed after a failed write.
type Sink struct {
	URL    string
	Dialer *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewSink returns a Sink for url (ws:// or wss://).
func NewSink(url string) *Sink {
	return &Sink{URL: url, Dialer: websocket.DefaultDialer}
}

// Log implements telemetry.Sink.
func (s *Sink) Log(ctx context.Context, document []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		if err := s.dialLocked(ctx); err != nil {
			return err
		}
	}
	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = s.conn.SetWriteDeadline(deadline)
	if err := s.conn.WriteMessage(websocket.TextMessage, document); err != nil {
		_ = s.conn.Close()
		s.conn = nil
		return fmt.Errorf("ws: write: %w", err)
	}
	return nil
}

func (s *Sink) dialLocked(ctx context.Context) error {
	if s.URL == "" {
		return fmt.Errorf("ws: URL is empty")
	}
	dialer := s.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, s.URL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("ws: dial %s: %w", s.URL, err)
	}
	s.conn = conn
	return nil
}

// Close sends a close frame and closes the connection, if any.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	err := s.conn.Close()
	s.conn = nil
	return err
}
