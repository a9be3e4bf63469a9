package domain

import (
	"time"

	eventdomain "ux-telemetry/backend/internal/event/domain"
)

// Session is a bounded period of user activity. EndTime is zero while the session is active.
type Session struct {
	ID           string
	StartTime    time.Time
	EndTime      time.Time
	States       []eventdomain.ApplicationState
	EventRecords []eventdomain.EventRecord
}

// Ended reports whether the session was closed by an explicit end or a timeout.
func (s *Session) Ended() bool {
	return !s.EndTime.IsZero()
}

// Duration returns EndTime-StartTime for an ended session and zero otherwise.
func (s *Session) Duration() time.Duration {
	if !s.Ended() {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

// Clone returns a copy that shares no slices with s.
func (s *Session) Clone() Session {
	out := *s
	out.States = append([]eventdomain.ApplicationState(nil), s.States...)
	out.EventRecords = append([]eventdomain.EventRecord(nil), s.EventRecords...)
	return out
}
