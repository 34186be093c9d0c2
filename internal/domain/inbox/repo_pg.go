package inbox

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/db"
)

// -- Notification Repository --

type notificationRepoPG struct{ pool *pgxpool.Pool }

func NewNotificationRepoPG(pool *pgxpool.Pool) NotificationRepository {
	return &notificationRepoPG{pool: pool}
}

func (r *notificationRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const notificationCols = `id, user_id, message, type, is_read, created_at`

func scanNotification(row pgx.Row) (*Notification, error) {
	var n Notification
	err := row.Scan(&n.ID, &n.UserID, &n.Message, &n.Type, &n.IsRead, &n.CreatedAt)
	if db.IsNoRows(err) {
		return nil, ErrNotificationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *notificationRepoPG) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*Notification, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+notificationCols+` FROM notification
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []*Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *notificationRepoPG) MarkRead(ctx context.Context, id, userID uuid.UUID) (*Notification, error) {
	return scanNotification(r.conn(ctx).QueryRow(ctx, `
		UPDATE notification SET is_read = TRUE
		WHERE id = $1 AND user_id = $2
		RETURNING `+notificationCols, id, userID))
}

func (r *notificationRepoPG) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE notification SET is_read = TRUE WHERE user_id = $1 AND NOT is_read`, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return tag.RowsAffected(), nil
}

// -- Callback Repository --

type callbackRepoPG struct{ pool *pgxpool.Pool }

func NewCallbackRepoPG(pool *pgxpool.Pool) CallbackRepository {
	return &callbackRepoPG{pool: pool}
}

func (r *callbackRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const callbackCols = `id, name, phone, contacted, status, created_at, updated_at`

func scanCallback(row pgx.Row) (*CallbackRequest, error) {
	var cb CallbackRequest
	err := row.Scan(&cb.ID, &cb.Name, &cb.Phone, &cb.Contacted, &cb.Status, &cb.CreatedAt, &cb.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, ErrCallbackNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cb, nil
}

func (r *callbackRepoPG) Create(ctx context.Context, cb *CallbackRequest) error {
	cb.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO callback_request (id, name, phone, contacted, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		cb.ID, cb.Name, cb.Phone, cb.Contacted, cb.Status,
	).Scan(&cb.CreatedAt, &cb.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert callback request: %w", err)
	}
	return nil
}

func (r *callbackRepoPG) List(ctx context.Context, status string, limit, offset int) ([]*CallbackRequest, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM callback_request WHERE ($1 = '' OR status = $1)`, status,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count callback requests: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+callbackCols+` FROM callback_request
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, status, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list callback requests: %w", err)
	}
	defer rows.Close()

	var out []*CallbackRequest
	for rows.Next() {
		cb, err := scanCallback(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, cb)
	}
	return out, total, rows.Err()
}

func (r *callbackRepoPG) MarkDone(ctx context.Context, id uuid.UUID) (*CallbackRequest, error) {
	return scanCallback(r.conn(ctx).QueryRow(ctx, `
		UPDATE callback_request SET contacted = TRUE, status = 'Done', updated_at = NOW()
		WHERE id = $1
		RETURNING `+callbackCols, id))
}
