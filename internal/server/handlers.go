package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	eventdomain "ux-telemetry/backend/internal/event/domain"
	"ux-telemetry/backend/internal/session"
	"ux-telemetry/backend/internal/trigger"
)

const maxBodyBytes = 1 << 20

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type api struct {
	sessions SessionService
	flusher  Flusher
	archive  Archive
	triggers *trigger.SessionAction
	log      *slog.Logger
}

type stateRequest struct {
	Name string `json:"name"`
}

type eventRequest struct {
	Name     string          `json:"name"`
	Element  string          `json:"element"`
	Metadata json.RawMessage `json:"metadata"`
}

type triggerRequest struct {
	Event   string `json:"event"`
	Element string `json:"element"`
}

type sessionResponse struct {
	Active        bool       `json:"active"`
	ID            string     `json:"id,omitempty"`
	StartTime     *time.Time `json:"start_time,omitempty"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	CurrentState  string     `json:"current_state,omitempty"`
	PreviousState string     `json:"previous_state,omitempty"`
	States        []string   `json:"states,omitempty"`
	EventCount    int        `json:"event_count"`
}

type flushResponse struct {
	ID          int64           `json:"id"`
	RecordCount int             `json:"record_count"`
	FirstEvent  *time.Time      `json:"first_event,omitempty"`
	LastEvent   *time.Time      `json:"last_event,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	Document    json.RawMessage `json:"document"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (a *api) startSession(w http.ResponseWriter, r *http.Request) {
	if err := a.sessions.StartSession(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	a.writeSession(w, http.StatusCreated)
}

func (a *api) endSession(w http.ResponseWriter, r *http.Request) {
	if err := a.sessions.EndSession(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	a.writeSession(w, http.StatusOK)
}

func (a *api) goToState(w http.ResponseWriter, r *http.Request) {
	var req stateRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "name is required"})
		return
	}
	if err := a.sessions.GoToState(r.Context(), eventdomain.ApplicationState{Name: req.Name}); err != nil {
		writeError(w, err)
		return
	}
	a.writeSession(w, http.StatusOK)
}

func (a *api) getSession(w http.ResponseWriter, _ *http.Request) {
	a.writeSession(w, http.StatusOK)
}

func (a *api) logEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	meta, err := decodeMetadata(req.Metadata)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	var rec eventdomain.EventRecord
	if req.Element != "" {
		rec = eventdomain.NewUxEventRecord(req.Name, req.Element, nil, time.Time{}).WithMetadata(meta)
	} else {
		rec = eventdomain.NewEventRecord(req.Name, time.Time{}, meta)
	}
	if err := a.sessions.LogSessionEvent(r.Context(), rec); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (a *api) invokeTrigger(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if req.Event == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "event is required"})
		return
	}
	err := a.triggers.Invoke(r.Context(), trigger.Trigger{EventName: req.Event, ElementName: req.Element})
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (a *api) flush(w http.ResponseWriter, r *http.Request) {
	if a.flusher == nil {
		writeJSON(w, http.StatusNotImplemented, errorResponse{Error: "flush not configured"})
		return
	}
	a.flusher.ResetLog(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) listFlushes(w http.ResponseWriter, r *http.Request) {
	if a.archive == nil {
		writeJSON(w, http.StatusNotImplemented, errorResponse{Error: "archive not configured"})
		return
	}
	limit, err := queryInt32(r, "limit", defaultPageSize)
	if err != nil || limit <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
		return
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset, err := queryInt32(r, "offset", 0)
	if err != nil || offset < 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "offset must be a non-negative integer"})
		return
	}
	flushes, err := a.archive.ListBySession(r.Context(), r.PathValue("id"), limit, offset)
	if err != nil {
		a.log.ErrorContext(r.Context(), "http: list flushes", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "archive unavailable"})
		return
	}
	out := make([]flushResponse, 0, len(flushes))
	for _, f := range flushes {
		out = append(out, flushResponse{
			ID:          f.ID,
			RecordCount: f.RecordCount,
			FirstEvent:  f.FirstEvent,
			LastEvent:   f.LastEvent,
			CreatedAt:   f.CreatedAt,
			Document:    json.RawMessage(f.Document),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// queryInt32 parses the named query parameter. Values that do not fit in an int32 are
// rejected rather than wrapped.
func queryInt32(r *http.Request, name string, def int32) (int32, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		return 0, err
	}
	return int32(n), nil
}

func (a *api) writeSession(w http.ResponseWriter, code int) {
	snap := a.sessions.Snapshot()
	resp := sessionResponse{Active: snap.Active}
	if snap.HasSession {
		s := snap.Session
		start := s.StartTime
		resp.ID = s.ID
		resp.StartTime = &start
		if s.Ended() {
			end := s.EndTime
			resp.EndTime = &end
		}
		for _, st := range s.States {
			resp.States = append(resp.States, st.Name)
		}
		resp.EventCount = len(s.EventRecords)
	}
	if snap.HasCurrent {
		resp.CurrentState = snap.CurrentState.Name
	}
	if snap.HasPrevious {
		resp.PreviousState = snap.PreviousState.Name
	}
	writeJSON(w, code, resp)
}

// writeError maps session errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrSessionActive), errors.Is(err, session.ErrNoActiveSession):
		code = http.StatusConflict
	case errors.Is(err, session.ErrEmptyEventName):
		code = http.StatusBadRequest
	}
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// decodeMetadata reads a JSON object into Metadata, keeping the key order of the request.
func decodeMetadata(raw json.RawMessage) (eventdomain.Metadata, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("metadata: must be a JSON object")
	}
	var m eventdomain.Metadata
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("metadata: %w", err)
		}
		key, _ := tok.(string)
		var val any
		if err := dec.Decode(&val); err != nil {
			return nil, fmt.Errorf("metadata %q: %w", key, err)
		}
		m = m.With(key, val)
	}
	return m, nil
}
