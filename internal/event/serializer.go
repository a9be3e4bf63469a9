package event

import (
	"encoding/json"
	"fmt"
	"time"

	"ux-telemetry/backend/internal/event/domain"
)

// wireRecord is the JSON shape of one record in a flushed document.
type wireRecord struct {
	Type        string          `json:"__type"`
	EventName   string          `json:"EventName"`
	EventTime   string          `json:"EventTime"`
	Metadata    domain.Metadata `json:"Metadata,omitempty"`
	ElementName string          `json:"ElementName,omitempty"`
}

// DocumentRecord is one record decoded from a flushed document. Metadata is left raw
// so consumers can forward it without re-encoding.
type DocumentRecord struct {
	Type        string          `json:"__type"`
	EventName   string          `json:"EventName"`
	EventTime   time.Time       `json:"EventTime"`
	Metadata    json.RawMessage `json:"Metadata,omitempty"`
	ElementName string          `json:"ElementName,omitempty"`
}

// Serializer encodes buffered records into a document. Only the record kinds it was
// constructed with are accepted.
type Serializer struct {
	kinds map[domain.Kind]bool
}

// NewSerializer returns a Serializer that accepts exactly the given kinds.
func NewSerializer(kinds ...domain.Kind) *Serializer {
	s := &Serializer{kinds: make(map[domain.Kind]bool, len(kinds))}
	for _, k := range kinds {
		s.kinds[k] = true
	}
	return s
}

// DefaultSerializer accepts every record kind defined in domain.
func DefaultSerializer() *Serializer {
	return NewSerializer(domain.KindEvent, domain.KindUx)
}

// Marshal encodes records, oldest first, as a JSON array. An empty buffer encodes as [].
func (s *Serializer) Marshal(records []domain.EventRecord) ([]byte, error) {
	out := make([]wireRecord, 0, len(records))
	for i, r := range records {
		if !s.kinds[r.Kind] {
			return nil, fmt.Errorf("%w: record %d (%q) has kind %s", ErrUnknownKind, i, r.Name, r.Kind)
		}
		w := wireRecord{
			Type:      r.Kind.String(),
			EventName: r.Name,
			EventTime: r.Time.Format(time.RFC3339Nano),
			Metadata:  r.Metadata,
		}
		if r.Kind == domain.KindUx {
			w.ElementName = r.ElementName
		}
		out = append(out, w)
	}
	return json.Marshal(out)
}

// DecodeDocument parses a document produced by Serializer.Marshal.
func DecodeDocument(document []byte) ([]DocumentRecord, error) {
	var records []DocumentRecord
	if err := json.Unmarshal(document, &records); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return records, nil
}
