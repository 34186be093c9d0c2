package inbox

import (
	"context"

	"github.com/google/uuid"
)

type NotificationRepository interface {
	// ListByUser returns the newest notifications first.
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*Notification, error)
	// MarkRead only matches notifications owned by userID.
	MarkRead(ctx context.Context, id, userID uuid.UUID) (*Notification, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
}

type CallbackRepository interface {
	Create(ctx context.Context, cb *CallbackRequest) error
	// List filters by status unless it is empty.
	List(ctx context.Context, status string, limit, offset int) ([]*CallbackRequest, int, error)
	MarkDone(ctx context.Context, id uuid.UUID) (*CallbackRequest, error)
}
