package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"ux-telemetry/backend/internal/telemetry/domain"
)

const (
	insertFlush = `INSERT INTO session_flushes (session_id, record_count, first_event_at, last_event_at, document, created_at)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	selectFlush = `SELECT id, session_id, record_count, first_event_at, last_event_at, document, created_at
FROM session_flushes`
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a flush repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Save persists the flush. It sets f.ID on success.
func (r *PostgresRepository) Save(ctx context.Context, f *domain.Flush) error {
	return r.db.QueryRowContext(ctx, insertFlush,
		nullStringFromPtr(f.SessionID),
		f.RecordCount,
		nullTimeFromPtr(f.FirstEvent),
		nullTimeFromPtr(f.LastEvent),
		documentJSON(f.Document),
		f.CreatedAt,
	).Scan(&f.ID)
}

// GetByID returns the flush for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*domain.Flush, error) {
	row := r.db.QueryRowContext(ctx, selectFlush+` WHERE id = $1`, id)
	f, err := scanFlush(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return f, nil
}

// ListBySession returns archived documents for a session, newest first, paginated by limit and offset.
func (r *PostgresRepository) ListBySession(ctx context.Context, sessionID string, limit, offset int32) ([]*domain.Flush, error) {
	rows, err := r.db.QueryContext(ctx, selectFlush+` WHERE session_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		sessionID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Flush
	for rows.Next() {
		f, err := scanFlush(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFlush(s scanner) (*domain.Flush, error) {
	var (
		f         domain.Flush
		sessionID sql.NullString
		first     sql.NullTime
		last      sql.NullTime
		document  []byte
	)
	if err := s.Scan(&f.ID, &sessionID, &f.RecordCount, &first, &last, &document, &f.CreatedAt); err != nil {
		return nil, err
	}
	f.SessionID = ptrFromNullString(sessionID)
	f.FirstEvent = ptrFromNullTime(first)
	f.LastEvent = ptrFromNullTime(last)
	f.Document = document
	return &f, nil
}

func nullStringFromPtr(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func ptrFromNullString(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	return &n.String
}

func nullTimeFromPtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func ptrFromNullTime(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	return &n.Time
}

func documentJSON(b []byte) json.RawMessage {
	if len(b) == 0 {
		return json.RawMessage("[]")
	}
	return json.RawMessage(b)
}
