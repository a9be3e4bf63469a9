package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	eventdomain "ux-telemetry/backend/internal/event/domain"
	"ux-telemetry/backend/internal/session"
	sessiondomain "ux-telemetry/backend/internal/session/domain"
	telemetrydomain "ux-telemetry/backend/internal/telemetry/domain"
)

// mockSessions implements SessionService for tests.
type mockSessions struct {
	mu       sync.Mutex
	active   bool
	session  *sessiondomain.Session
	current  eventdomain.ApplicationState
	records  []eventdomain.EventRecord
	states   []string
	startErr error
}

func (m *mockSessions) StartSession(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return m.startErr
	}
	if m.active {
		return session.ErrSessionActive
	}
	m.active = true
	m.current = eventdomain.StartState
	m.session = &sessiondomain.Session{ID: "s-1", StartTime: time.Unix(100, 0), States: []eventdomain.ApplicationState{eventdomain.StartState}}
	return nil
}

func (m *mockSessions) EndSession(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		return session.ErrNoActiveSession
	}
	m.active = false
	m.session.EndTime = time.Unix(200, 0)
	return nil
}

func (m *mockSessions) GoToState(_ context.Context, target eventdomain.ApplicationState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		return session.ErrNoActiveSession
	}
	m.states = append(m.states, target.Name)
	m.current = target
	return nil
}

func (m *mockSessions) LogSessionEvent(_ context.Context, rec eventdomain.EventRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.Name == "" {
		return session.ErrEmptyEventName
	}
	if !m.active {
		return session.ErrNoActiveSession
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *mockSessions) Snapshot() session.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := session.Snapshot{Active: m.active, CurrentState: m.current, HasCurrent: m.active}
	if m.session != nil {
		snap.Session, snap.HasSession = m.session.Clone(), true
	}
	return snap
}

type mockFlusher struct{ calls int }

func (f *mockFlusher) ResetLog(context.Context) { f.calls++ }

func newTestHandler(s *mockSessions, f Flusher) http.Handler {
	return NewHandler(Deps{
		Sessions: s,
		Flusher:  f,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, r))
	return rec
}

func TestSessionLifecycle(t *testing.T) {
	s := &mockSessions{}
	h := newTestHandler(s, nil)

	rec := do(t, h, http.MethodPost, "/v1/session/start", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("start code = %d, want 201", rec.Code)
	}
	var got sessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !got.Active || got.ID != "s-1" || got.CurrentState != "StartState" {
		t.Errorf("start body = %+v", got)
	}

	if rec := do(t, h, http.MethodPost, "/v1/session/start", ""); rec.Code != http.StatusConflict {
		t.Errorf("second start code = %d, want 409", rec.Code)
	}

	if rec := do(t, h, http.MethodPost, "/v1/session/state", `{"name":"Editing"}`); rec.Code != http.StatusOK {
		t.Errorf("state code = %d, want 200", rec.Code)
	}
	if len(s.states) != 1 || s.states[0] != "Editing" {
		t.Errorf("states = %v", s.states)
	}

	rec = do(t, h, http.MethodPost, "/v1/session/end", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("end code = %d, want 200", rec.Code)
	}
	got = sessionResponse{}
	_ = json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Active || got.EndTime == nil {
		t.Errorf("end body = %+v", got)
	}

	if rec := do(t, h, http.MethodPost, "/v1/session/end", ""); rec.Code != http.StatusConflict {
		t.Errorf("second end code = %d, want 409", rec.Code)
	}
}

func TestGoToState_Validation(t *testing.T) {
	h := newTestHandler(&mockSessions{}, nil)
	tests := []struct {
		name string
		body string
		want int
	}{
		{"bad json", `{`, http.StatusBadRequest},
		{"unknown field", `{"state":"x"}`, http.StatusBadRequest},
		{"empty name", `{"name":""}`, http.StatusBadRequest},
		{"no session", `{"name":"A"}`, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, h, http.MethodPost, "/v1/session/state", tt.body); rec.Code != tt.want {
				t.Errorf("code = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestLogEvent(t *testing.T) {
	s := &mockSessions{}
	h := newTestHandler(s, nil)

	if rec := do(t, h, http.MethodPost, "/v1/events", `{"name":"Saved"}`); rec.Code != http.StatusConflict {
		t.Fatalf("event before start code = %d, want 409", rec.Code)
	}
	do(t, h, http.MethodPost, "/v1/session/start", "")

	body := `{"name":"Click","element":"SaveButton","metadata":{"z":1,"a":"two"}}`
	if rec := do(t, h, http.MethodPost, "/v1/events", body); rec.Code != http.StatusAccepted {
		t.Fatalf("event code = %d, want 202", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/v1/events", `{"name":""}`); rec.Code != http.StatusBadRequest {
		t.Errorf("empty name code = %d, want 400", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/v1/events", `{"name":"x","metadata":[1]}`); rec.Code != http.StatusBadRequest {
		t.Errorf("array metadata code = %d, want 400", rec.Code)
	}

	if len(s.records) != 1 {
		t.Fatalf("records = %d, want 1", len(s.records))
	}
	r := s.records[0]
	if !r.IsUx() || r.ElementName != "SaveButton" {
		t.Errorf("record = %+v, want Ux SaveButton", r)
	}
	if keys := r.Metadata.Keys(); len(keys) != 2 || keys[0] != "z" || keys[1] != "a" {
		t.Errorf("metadata keys = %v, want [z a]", keys)
	}
	if !r.Time.IsZero() {
		t.Errorf("record time = %v, want zero for the manager to stamp", r.Time)
	}
}

func TestInvokeTrigger(t *testing.T) {
	s := &mockSessions{}
	h := newTestHandler(s, nil)
	do(t, h, http.MethodPost, "/v1/session/start", "")

	if rec := do(t, h, http.MethodPost, "/v1/triggers", `{"event":"MouseEnter","element":"Menu"}`); rec.Code != http.StatusAccepted {
		t.Fatalf("trigger code = %d, want 202", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/v1/triggers", `{"element":"Menu"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("trigger without event code = %d, want 400", rec.Code)
	}
	if len(s.records) != 1 || s.records[0].Name != "MouseEnter" || s.records[0].ElementName != "Menu" {
		t.Errorf("records = %+v", s.records)
	}
}

func TestFlush(t *testing.T) {
	f := &mockFlusher{}
	if rec := do(t, newTestHandler(&mockSessions{}, f), http.MethodPost, "/v1/flush", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("flush code = %d, want 204", rec.Code)
	}
	if f.calls != 1 {
		t.Errorf("ResetLog calls = %d, want 1", f.calls)
	}
	if rec := do(t, newTestHandler(&mockSessions{}, nil), http.MethodPost, "/v1/flush", ""); rec.Code != http.StatusNotImplemented {
		t.Errorf("flush without flusher code = %d, want 501", rec.Code)
	}
}

func TestWriteError_Unknown(t *testing.T) {
	s := &mockSessions{startErr: errors.New("boom")}
	if rec := do(t, newTestHandler(s, nil), http.MethodPost, "/v1/session/start", ""); rec.Code != http.StatusInternalServerError {
		t.Errorf("code = %d, want 500", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	if rec := do(t, newTestHandler(&mockSessions{}, nil), http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("healthz code = %d, want 200", rec.Code)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		fwd    string
		remote string
		want   string
	}{
		{"forwarded", "10.0.0.1, 10.0.0.2", "127.0.0.1:5000", "10.0.0.1"},
		{"remote addr", "", "192.168.1.5:4242", "192.168.1.5"},
		{"no port", "", "pipe", "pipe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			if tt.fwd != "" {
				r.Header.Set("X-Forwarded-For", tt.fwd)
			}
			if got := ClientIP(r); got != tt.want {
				t.Errorf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

// mockArchive implements Archive for tests.
type mockArchive struct {
	gotID            string
	gotLimit, gotOff int32
	err              error
}

func (m *mockArchive) ListBySession(_ context.Context, id string, limit, offset int32) ([]*telemetrydomain.Flush, error) {
	m.gotID, m.gotLimit, m.gotOff = id, limit, offset
	if m.err != nil {
		return nil, m.err
	}
	sid := id
	return []*telemetrydomain.Flush{{ID: 1, SessionID: &sid, RecordCount: 2, Document: []byte(`[{"EventName":"A"}]`)}}, nil
}

func TestListFlushes(t *testing.T) {
	archive := &mockArchive{}
	h := NewHandler(Deps{Sessions: &mockSessions{}, Archive: archive, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})

	rec := do(t, h, http.MethodGet, "/v1/sessions/s-9/flushes?limit=500&offset=3", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", rec.Code)
	}
	if archive.gotID != "s-9" || archive.gotLimit != maxPageSize || archive.gotOff != 3 {
		t.Errorf("ListBySession(%q, %d, %d)", archive.gotID, archive.gotLimit, archive.gotOff)
	}
	var got []flushResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(got) != 1 || string(got[0].Document) != `[{"EventName":"A"}]` {
		t.Errorf("body = %s", rec.Body.String())
	}

	if rec := do(t, h, http.MethodGet, "/v1/sessions/s-9/flushes?limit=x", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit code = %d, want 400", rec.Code)
	}
	for _, q := range []string{"offset=2147483648", "offset=-1", "limit=4294967297", "limit=0"} {
		if rec := do(t, h, http.MethodGet, "/v1/sessions/s-9/flushes?"+q, ""); rec.Code != http.StatusBadRequest {
			t.Errorf("%s code = %d, want 400", q, rec.Code)
		}
	}
	archive.err = errors.New("db down")
	if rec := do(t, h, http.MethodGet, "/v1/sessions/s-9/flushes", ""); rec.Code != http.StatusInternalServerError {
		t.Errorf("archive error code = %d, want 500", rec.Code)
	}
	if rec := do(t, newTestHandler(&mockSessions{}, nil), http.MethodGet, "/v1/sessions/s-9/flushes", ""); rec.Code != http.StatusNotImplemented {
		t.Errorf("no archive code = %d, want 501", rec.Code)
	}
}
