// Package trigger turns UI triggers into event records. Action logs straight to an
// event logger; SessionAction routes through the session manager so the trigger also
// counts as session activity.
package trigger

import (
	"context"

	"github.com/jonboulle/clockwork"

	"ux-telemetry/backend/internal/event/domain"
)

// Trigger describes a UI occurrence as delivered by the binding layer.
type Trigger struct {
	// EventName is the name of the UI event that fired (e.g. "Click").
	EventName string
	// ElementName is the name of the element that raised it.
	ElementName string
	// Visual is an opaque handle to the element.
	Visual any
}

// EventLogger is the part of event.Logger an Action needs.
type EventLogger interface {
	LogEvent(ctx context.Context, record domain.EventRecord)
}

// SessionLogger is the part of session.Manager a SessionAction needs.
type SessionLogger interface {
	LogSessionEvent(ctx context.Context, record domain.EventRecord) error
}

// Action logs a UxEventRecord for every trigger it is invoked with.
type Action struct {
	// Logger receives the records. A nil Logger makes Invoke a no-op.
	Logger EventLogger
	// CustomEventName overrides the trigger's event name when set.
	CustomEventName string
	// CustomElementName overrides the trigger's element name when set.
	CustomElementName string
	// Clock stamps records; nil means the real clock.
	Clock clockwork.Clock
}

// Record builds the record for t. ok is false when neither the trigger nor the action
// supplies an event name.
func (a *Action) Record(t Trigger) (domain.EventRecord, bool) {
	name := a.CustomEventName
	if name == "" {
		name = t.EventName
	}
	if name == "" {
		return domain.EventRecord{}, false
	}
	element := a.CustomElementName
	if element == "" {
		element = t.ElementName
	}
	clock := a.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return domain.NewUxEventRecord(name, element, t.Visual, clock.Now()), true
}

// Invoke logs the record for t.
func (a *Action) Invoke(ctx context.Context, t Trigger) {
	if a.Logger == nil {
		return
	}
	if rec, ok := a.Record(t); ok {
		a.Logger.LogEvent(ctx, rec)
	}
}

// SessionAction decorates an Action: with a Session set, records are logged through the
// session manager (which forwards them to its event logger and resets the inactivity
// timer); without one it behaves like the wrapped Action.
type SessionAction struct {
	Action
	Session SessionLogger
}

// Invoke logs the record for t. Errors from the session manager (e.g. no active session)
// are returned to the caller.
func (a *SessionAction) Invoke(ctx context.Context, t Trigger) error {
	if a.Session == nil {
		a.Action.Invoke(ctx, t)
		return nil
	}
	rec, ok := a.Record(t)
	if !ok {
		return nil
	}
	return a.Session.LogSessionEvent(ctx, rec)
}
