// Package domain holds the event record value types shared by the event logger,
// the session manager and the remote sinks.
package domain

import "time"

// Kind tags the variant of an EventRecord.
type Kind int

const (
	// KindEvent is a plain named occurrence.
	KindEvent Kind = iota
	// KindUx is a UI-originated occurrence carrying element identity.
	KindUx
)

// String returns the serialized type name of the variant.
func (k Kind) String() string {
	switch k {
	case KindEvent:
		return "EventRecord"
	case KindUx:
		return "UxEventRecord"
	default:
		return "unknown"
	}
}

// EventRecord is one timestamped, named occurrence. It is a value type: copies are
// independent, and the With* methods return new records instead of mutating the receiver.
type EventRecord struct {
	Kind     Kind
	Name     string
	Time     time.Time
	Metadata Metadata

	// ElementName and ElementVisual are set only for KindUx records.
	ElementName string
	// ElementVisual is an opaque handle to the UI element; it is never serialized.
	ElementVisual any
}

// NewEventRecord returns a KindEvent record. metadata may be nil.
func NewEventRecord(name string, at time.Time, metadata Metadata) EventRecord {
	return EventRecord{Kind: KindEvent, Name: name, Time: at, Metadata: metadata.Clone()}
}

// NewUxEventRecord returns a KindUx record for an event raised by a UI element.
func NewUxEventRecord(name, elementName string, visual any, at time.Time) EventRecord {
	return EventRecord{
		Kind:          KindUx,
		Name:          name,
		Time:          at,
		ElementName:   elementName,
		ElementVisual: visual,
	}
}

// IsUx reports whether the record is a UI-originated variant.
func (r EventRecord) IsUx() bool { return r.Kind == KindUx }

// WithMetadata returns a copy of r whose metadata is replaced by m.
func (r EventRecord) WithMetadata(m Metadata) EventRecord {
	r.Metadata = m.Clone()
	return r
}

// With returns a copy of r with key set to value in its metadata.
func (r EventRecord) With(key string, value any) EventRecord {
	r.Metadata = r.Metadata.With(key, value)
	return r
}

// ApplicationState identifies a state in the host application's own state machine.
type ApplicationState struct {
	Name string `json:"Name"`
}

// StartState is the state a session is in right after it starts.
var StartState = ApplicationState{Name: "StartState"}
