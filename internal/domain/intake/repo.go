package intake

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists intake records. SaveDraft and Submit must each be
// atomic with respect to concurrent writers for the same external patient id.
type Repository interface {
	SaveDraft(ctx context.Context, r *Record) (*SaveResult, error)
	Submit(ctx context.Context, r *Record) (*SaveResult, error)
	GetDraft(ctx context.Context, externalID string) (*Record, error)
	GetCompleted(ctx context.Context, externalID string) (*Record, error)
	DiscardDraft(ctx context.Context, externalID string) (int64, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	ListRecent(ctx context.Context, limit int) ([]*Record, error)
	FindByEmail(ctx context.Context, email string, limit int) ([]*Record, error)
	FindByFieldPath(ctx context.Context, path []string, value string) ([]*Record, error)
	Count(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
}
