package repository

import (
	"context"

	"ux-telemetry/backend/internal/telemetry/domain"
)

// Repository defines persistence for archived session documents.
type Repository interface {
	Save(ctx context.Context, f *domain.Flush) error
	GetByID(ctx context.Context, id int64) (*domain.Flush, error)
	ListBySession(ctx context.Context, sessionID string, limit, offset int32) ([]*domain.Flush, error)
}
