package healthrecord

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-portal/internal/fault"
)

var ErrRecordNotFound = fmt.Errorf("health record %w", fault.ErrNotFound)

type Repository interface {
	Create(ctx context.Context, in NewRecord) (*Record, error)

	// ListByUser returns the user's records, newest first.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Record, error)

	// Delete returns ErrRecordNotFound when the user owns no such record.
	Delete(ctx context.Context, id, userID uuid.UUID) error

	MarkRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error)
}
