package repository

import (
	"context"
	"encoding/json"
	"time"

	"ux-telemetry/backend/internal/event"
	"ux-telemetry/backend/internal/event/observer"
	"ux-telemetry/backend/internal/telemetry/domain"
)

// Sink archives every flushed document through a Repository. Satisfies telemetry.Sink.
type Sink struct {
	repo Repository
	now  func() time.Time
}

// NewSink returns a Sink writing to repo.
func NewSink(repo Repository) *Sink {
	return &Sink{repo: repo, now: time.Now}
}

// Log summarizes the document (record count, first/last event time, session id) and saves it.
func (s *Sink) Log(ctx context.Context, document []byte) error {
	if s.repo == nil {
		return nil
	}
	records, err := event.DecodeDocument(document)
	if err != nil {
		return err
	}
	f := FlushFromRecords(records, document)
	f.CreatedAt = s.now().UTC()
	return s.repo.Save(ctx, f)
}

// FlushFromRecords builds the archive row for a decoded document. The session id is
// taken from the first record that carries one in its metadata.
func FlushFromRecords(records []event.DocumentRecord, document []byte) *domain.Flush {
	f := &domain.Flush{RecordCount: len(records), Document: document}
	for i := range records {
		t := records[i].EventTime
		if t.IsZero() {
			continue
		}
		if f.FirstEvent == nil || t.Before(*f.FirstEvent) {
			f.FirstEvent = &t
		}
		if f.LastEvent == nil || t.After(*f.LastEvent) {
			f.LastEvent = &t
		}
	}
	for _, r := range records {
		if id := sessionIDFrom(r); id != "" {
			f.SessionID = &id
			break
		}
	}
	return f
}

func sessionIDFrom(r event.DocumentRecord) string {
	if len(r.Metadata) == 0 {
		return ""
	}
	var meta map[string]any
	if err := json.Unmarshal(r.Metadata, &meta); err != nil {
		return ""
	}
	id, _ := meta[observer.SessionKey].(string)
	return id
}
