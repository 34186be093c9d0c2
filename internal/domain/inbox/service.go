package inbox

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// minPhoneLength rejects obviously truncated numbers on the public form.
const minPhoneLength = 6

type Service struct {
	notes     NotificationRepository
	callbacks CallbackRepository
	logger    zerolog.Logger
}

func NewService(notes NotificationRepository, callbacks CallbackRepository, logger zerolog.Logger) *Service {
	return &Service{notes: notes, callbacks: callbacks, logger: logger}
}

// -- Notifications --

func (s *Service) ListNotifications(ctx context.Context, userID uuid.UUID) ([]*Notification, error) {
	return s.notes.ListByUser(ctx, userID, NotificationLimit)
}

func (s *Service) MarkRead(ctx context.Context, id, userID uuid.UUID) (*Notification, error) {
	return s.notes.MarkRead(ctx, id, userID)
}

func (s *Service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.notes.MarkAllRead(ctx, userID)
}

// -- Callbacks --

// RequestCallback records a callback from the public form.
func (s *Service) RequestCallback(ctx context.Context, in CallbackInput) (*CallbackRequest, error) {
	phone := strings.TrimSpace(in.number())
	if len(phone) < minPhoneLength {
		return nil, ErrPhoneRequired
	}
	cb := &CallbackRequest{
		Name:   strings.TrimSpace(in.Name),
		Phone:  phone,
		Status: CallbackPending,
	}
	if err := s.callbacks.Create(ctx, cb); err != nil {
		return nil, err
	}
	s.logger.Info().Str("callback_id", cb.ID.String()).Msg("callback requested")
	return cb, nil
}

// CreateCallback opens a callback for staff follow-up on behalf of another
// workflow. Any non-empty phone is accepted.
func (s *Service) CreateCallback(ctx context.Context, name, phone string) error {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return ErrPhoneRequired
	}
	cb := &CallbackRequest{Name: strings.TrimSpace(name), Phone: phone, Status: CallbackPending}
	if err := s.callbacks.Create(ctx, cb); err != nil {
		return fmt.Errorf("create callback request: %w", err)
	}
	return nil
}

func (s *Service) ListCallbacks(ctx context.Context, status string, limit, offset int) ([]*CallbackRequest, int, error) {
	if status != "" && status != CallbackPending && status != CallbackDone {
		return nil, 0, fmt.Errorf("%w: %q", ErrInvalidCallbackState, status)
	}
	return s.callbacks.List(ctx, status, limit, offset)
}

func (s *Service) MarkCallbackDone(ctx context.Context, id uuid.UUID) (*CallbackRequest, error) {
	return s.callbacks.MarkDone(ctx, id)
}
