package outbox

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const entryCols = `id, kind, aggregate_id, payload, status, attempts, last_error, created_at, updated_at`

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.Kind, &e.AggregateID, &e.Payload, &e.Status,
		&e.Attempts, &e.LastError, &e.CreatedAt, &e.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, ErrEntryNotFound
	}
	return &e, err
}

// Enqueue joins the transaction on ctx when there is one.
func (r *repoPG) Enqueue(ctx context.Context, e *Entry) error {
	e.ID = uuid.New()
	if e.Status == "" {
		e.Status = StatusPending
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO outbox (id, kind, aggregate_id, payload, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		e.ID, e.Kind, e.AggregateID, e.Payload, e.Status).Scan(&e.CreatedAt, &e.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Entry, error) {
	return scanEntry(r.conn(ctx).QueryRow(ctx, `SELECT `+entryCols+` FROM outbox WHERE id = $1`, id))
}

func (r *repoPG) MarkDone(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE outbox SET status = 'done', attempts = attempts + 1, last_error = '', updated_at = NOW()
		WHERE id = $1`, id)
	return err
}

func (r *repoPG) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE outbox SET status = 'failed', attempts = attempts + 1, last_error = $2, updated_at = NOW()
		WHERE id = $1`, id, reason)
	return err
}

func (r *repoPG) List(ctx context.Context, status string, limit, offset int) ([]*Entry, int, error) {
	where := ``
	var args []interface{}
	if status != "" {
		where = ` WHERE status = $1`
		args = append(args, status)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM outbox`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM outbox%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		entryCols, where, len(args)+1, len(args)+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, rows.Err()
}
