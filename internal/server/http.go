package server

import (
	"context"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	eventdomain "ux-telemetry/backend/internal/event/domain"
	healthhandler "ux-telemetry/backend/internal/health/handler"
	"ux-telemetry/backend/internal/session"
	telemetrydomain "ux-telemetry/backend/internal/telemetry/domain"
	"ux-telemetry/backend/internal/trigger"
)

// SessionService is the part of session.Manager the API drives.
type SessionService interface {
	StartSession(ctx context.Context) error
	EndSession(ctx context.Context) error
	GoToState(ctx context.Context, target eventdomain.ApplicationState) error
	LogSessionEvent(ctx context.Context, record eventdomain.EventRecord) error
	Snapshot() session.Snapshot
}

// Flusher forces the buffered records out (event.Logger).
type Flusher interface {
	ResetLog(ctx context.Context)
}

// Archive lists archived session documents (repository.PostgresRepository).
type Archive interface {
	ListBySession(ctx context.Context, sessionID string, limit, offset int32) ([]*telemetrydomain.Flush, error)
}

// Deps holds the collaborators the HTTP API is built from.
type Deps struct {
	// Sessions is required.
	Sessions SessionService
	// Flusher backs POST /v1/flush. If nil, the route returns 501.
	Flusher Flusher
	// Archive backs GET /v1/sessions/{id}/flushes. If nil, the route returns 501.
	Archive Archive
	// HealthPinger is used by /healthz for readiness (e.g. *sql.DB). If nil, the DB check is skipped.
	HealthPinger healthhandler.Pinger
	// Logger receives access logs. Defaults to slog.Default().
	Logger *slog.Logger
}

// NewHandler returns the session API.
//
// Routes:
//   - POST /v1/session/start → StartSession
//   - POST /v1/session/end   → EndSession
//   - POST /v1/session/state → GoToState
//   - GET  /v1/session       → current session snapshot
//   - POST /v1/events        → LogSessionEvent
//   - POST /v1/triggers      → trigger.SessionAction
//   - POST /v1/flush         → Flusher.ResetLog
//   - GET  /v1/sessions/{id}/flushes → Archive.ListBySession
//   - GET  /healthz          → readiness
func NewHandler(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	a := &api{
		sessions: deps.Sessions,
		flusher:  deps.Flusher,
		archive:  deps.Archive,
		log:      logger,
	}
	a.triggers = &trigger.SessionAction{Session: deps.Sessions}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/session/start", a.startSession)
	mux.HandleFunc("POST /v1/session/end", a.endSession)
	mux.HandleFunc("POST /v1/session/state", a.goToState)
	mux.HandleFunc("GET /v1/session", a.getSession)
	mux.HandleFunc("POST /v1/events", a.logEvent)
	mux.HandleFunc("POST /v1/triggers", a.invokeTrigger)
	mux.HandleFunc("POST /v1/flush", a.flush)
	mux.HandleFunc("GET /v1/sessions/{id}/flushes", a.listFlushes)
	mux.Handle("GET /healthz", healthhandler.NewHandler(deps.HealthPinger))

	skip := map[string]bool{"/healthz": true}
	return otelhttp.NewHandler(AccessLog(logger, skip)(mux), "ux-telemetry.api",
		otelhttp.WithFilter(func(r *http.Request) bool { return !skip[r.URL.Path] }),
	)
}
