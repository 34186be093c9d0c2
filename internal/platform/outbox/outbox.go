// Package outbox records side effects that must outlive the request that
// caused them. Entries are written in the same transaction as the state
// change and dispatched once after commit; failed entries stay queryable
// and can be retried by an administrator. Entries left pending, for example
// by a crash between commit and dispatch, become retryable once they are
// older than StalePendingAfter.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	StatusPending = "pending"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// StalePendingAfter is how long a pending entry may wait for its
// post-commit dispatch before it counts as stuck.
const StalePendingAfter = 5 * time.Minute

var (
	ErrEntryNotFound = errors.New("outbox entry not found")
	ErrNotRetryable  = errors.New("only failed or stale pending entries can be retried")
	ErrInvalidStatus = errors.New("invalid outbox status")
)

type Entry struct {
	ID          uuid.UUID       `json:"id"`
	Kind        string          `json:"kind"`
	AggregateID uuid.UUID       `json:"aggregate_id"`
	Payload     json.RawMessage `json:"payload"`
	Status      string          `json:"status"`
	Attempts    int             `json:"attempts"`
	LastError   string          `json:"last_error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NewEntry marshals payload into a pending entry.
func NewEntry(kind string, aggregateID uuid.UUID, payload interface{}) (*Entry, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	return &Entry{Kind: kind, AggregateID: aggregateID, Payload: raw, Status: StatusPending}, nil
}

// Decode unmarshals the payload into v.
func (e *Entry) Decode(v interface{}) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Kind, err)
	}
	return nil
}

func ValidStatus(s string) bool {
	return s == StatusPending || s == StatusDone || s == StatusFailed
}

type Repository interface {
	Enqueue(ctx context.Context, e *Entry) error
	GetByID(ctx context.Context, id uuid.UUID) (*Entry, error)
	MarkDone(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	List(ctx context.Context, status string, limit, offset int) ([]*Entry, int, error)
}

// HandlerFunc performs the side effect described by an entry.
type HandlerFunc func(ctx context.Context, e *Entry) error

type Dispatcher struct {
	repo     Repository
	handlers map[string]HandlerFunc
	logger   zerolog.Logger
	now      func() time.Time
}

func NewDispatcher(repo Repository, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{repo: repo, handlers: make(map[string]HandlerFunc), logger: logger, now: time.Now}
}

func (d *Dispatcher) Register(kind string, h HandlerFunc) {
	d.handlers[kind] = h
}

// Dispatch gives each entry exactly one attempt and records the outcome.
// Handler failures are logged and stored, never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, entries ...*Entry) {
	for _, e := range entries {
		d.attempt(ctx, e)
	}
}

func (d *Dispatcher) attempt(ctx context.Context, e *Entry) {
	log := d.logger.With().Str("outbox_id", e.ID.String()).Str("kind", e.Kind).Logger()

	h, ok := d.handlers[e.Kind]
	var err error
	if !ok {
		err = fmt.Errorf("no handler registered for %q", e.Kind)
	} else {
		err = h(ctx, e)
	}

	e.Attempts++
	if err != nil {
		e.Status = StatusFailed
		e.LastError = err.Error()
		log.Warn().Err(err).Msg("side effect failed")
		if markErr := d.repo.MarkFailed(ctx, e.ID, e.LastError); markErr != nil {
			log.Error().Err(markErr).Msg("recording outbox failure")
		}
		return
	}

	e.Status = StatusDone
	e.LastError = ""
	if markErr := d.repo.MarkDone(ctx, e.ID); markErr != nil {
		log.Error().Err(markErr).Msg("recording outbox completion")
	}
}

// Retry re-dispatches a failed entry, or a pending one that missed its
// post-commit dispatch.
func (d *Dispatcher) Retry(ctx context.Context, id uuid.UUID) (*Entry, error) {
	e, err := d.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !d.retryable(e) {
		return nil, ErrNotRetryable
	}
	d.attempt(ctx, e)
	return e, nil
}

func (d *Dispatcher) retryable(e *Entry) bool {
	switch e.Status {
	case StatusFailed:
		return true
	case StatusPending:
		return d.now().Sub(e.CreatedAt) >= StalePendingAfter
	}
	return false
}

func (d *Dispatcher) List(ctx context.Context, status string, limit, offset int) ([]*Entry, int, error) {
	if status != "" && !ValidStatus(status) {
		return nil, 0, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return d.repo.List(ctx, status, limit, offset)
}
