package domain

import "time"

// Flush is one archived session document.
type Flush struct {
	ID          int64
	SessionID   *string // nil when the records carry no session id
	RecordCount int
	FirstEvent  *time.Time
	LastEvent   *time.Time
	Document    []byte // JSONB
	CreatedAt   time.Time
}
