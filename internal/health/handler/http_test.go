package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// mockPinger implements Pinger for tests.
type mockPinger struct {
	pingErr error
	calls   int
}

func (m *mockPinger) PingContext(context.Context) error {
	m.calls++
	return m.pingErr
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name       string
		pinger     Pinger
		wantStatus string
	}{
		{"nil pinger", nil, StatusServing},
		{"pinger ok", &mockPinger{}, StatusServing},
		{"pinger fails", &mockPinger{pingErr: errors.New("connection refused")}, StatusNotServing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewHandler(tt.pinger).Check(context.Background())
			if got.Status != tt.wantStatus {
				t.Errorf("Status = %q, want %q", got.Status, tt.wantStatus)
			}
		})
	}
}

func TestServeHTTP_NotServing(t *testing.T) {
	p := &mockPinger{pingErr: errors.New("down")}
	rec := httptest.NewRecorder()
	NewHandler(p).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("code = %d, want 503", rec.Code)
	}
	var body Response
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if body.Status != StatusNotServing || body.Error != "database: down" {
		t.Errorf("body = %+v", body)
	}
	if p.calls != 1 {
		t.Errorf("ping calls = %d, want 1", p.calls)
	}
}

func TestServeHTTP_Serving(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHandler(&mockPinger{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
}
