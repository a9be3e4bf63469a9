// Package handler serves readiness for the session API over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Pinger checks a backing store (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Status values reported in the body.
const (
	StatusServing    = "SERVING"
	StatusNotServing = "NOT_SERVING"
)

const pingTimeout = 2 * time.Second

// Response is the JSON body of a health check.
type Response struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Handler reports SERVING when every configured dependency answers. A nil Pinger is skipped.
type Handler struct {
	pinger Pinger
}

// NewHandler returns a health handler. pinger may be nil.
func NewHandler(pinger Pinger) *Handler {
	return &Handler{pinger: pinger}
}

// Check runs the readiness checks.
func (h *Handler) Check(ctx context.Context) Response {
	if h.pinger != nil {
		ctx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		if err := h.pinger.PingContext(ctx); err != nil {
			return Response{Status: StatusNotServing, Error: "database: " + err.Error()}
		}
	}
	return Response{Status: StatusServing}
}

// ServeHTTP writes the check result with 200 or 503.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := h.Check(r.Context())
	code := http.StatusOK
	if resp.Status != StatusServing {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
