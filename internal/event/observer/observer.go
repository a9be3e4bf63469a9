// Package observer provides stock event.Observer implementations that enrich records
// with application, session and host context.
package observer

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/host"

	"ux-telemetry/backend/internal/event/domain"
)

// Static adds a fixed set of metadata entries to every record. Entries already present
// on the record are overwritten.
type Static struct {
	fields domain.Metadata
}

// NewStatic returns an observer that merges fields into every record.
func NewStatic(fields domain.Metadata) *Static {
	return &Static{fields: fields.Clone()}
}

// Observe implements event.Observer.
func (s *Static) Observe(r domain.EventRecord) domain.EventRecord {
	if len(s.fields) == 0 {
		return r
	}
	return r.WithMetadata(r.Metadata.Merge(s.fields))
}

// SessionKey is the metadata key SessionID writes.
const SessionKey = "SessionId"

// SessionID stamps records with the identifier of the current session. The session
// manager calls SetSession on start; until then a process-level id is used.
type SessionID struct {
	mu sync.RWMutex
	id string
}

// NewSessionID returns an observer seeded with a random id.
func NewSessionID() *SessionID {
	return &SessionID{id: uuid.NewString()}
}

// SetSession replaces the id stamped on subsequent records.
func (s *SessionID) SetSession(id string) {
	s.mu.Lock()
	s.id = id
	s.mu.Unlock()
}

// Current returns the id currently stamped.
func (s *SessionID) Current() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// Observe implements event.Observer.
func (s *SessionID) Observe(r domain.EventRecord) domain.EventRecord {
	return r.With(SessionKey, s.Current())
}

// Host adds device metadata collected once at construction.
type Host struct {
	fields domain.Metadata
}

// NewHost queries the operating system for host details. Fields the platform does not
// report are left out.
func NewHost(ctx context.Context) (*Host, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return nil, err
	}
	var m domain.Metadata
	add := func(key, value string) {
		if value != "" {
			m = m.With(key, value)
		}
	}
	add("Hostname", info.Hostname)
	add("OS", info.OS)
	add("Platform", info.Platform)
	add("PlatformVersion", info.PlatformVersion)
	add("KernelArch", info.KernelArch)
	return &Host{fields: m}, nil
}

// Fields returns the collected host metadata.
func (h *Host) Fields() domain.Metadata { return h.fields.Clone() }

// Observe implements event.Observer.
func (h *Host) Observe(r domain.EventRecord) domain.EventRecord {
	return r.WithMetadata(r.Metadata.Merge(h.fields))
}
