package inbox

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	CallbackPending = "Pending"
	CallbackDone    = "Done"

	// NotificationLimit caps the inbox listing.
	NotificationLimit = 50
)

var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrCallbackNotFound     = errors.New("callback request not found")
	ErrPhoneRequired        = errors.New("phone number is required")
	ErrInvalidCallbackState = errors.New("invalid callback status")
)

// Notification is one inbox entry of a user.
type Notification struct {
	ID        uuid.UUID `db:"id" json:"_id"`
	UserID    uuid.UUID `db:"user_id" json:"user"`
	Message   string    `db:"message" json:"message"`
	Type      string    `db:"type" json:"type"`
	IsRead    bool      `db:"is_read" json:"isRead"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// CallbackRequest asks staff to phone someone back.
type CallbackRequest struct {
	ID        uuid.UUID `db:"id" json:"_id"`
	Name      string    `db:"name" json:"name"`
	Phone     string    `db:"phone" json:"phone"`
	Contacted bool      `db:"contacted" json:"contacted"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// CallbackInput is the public callback form. Mobile is accepted in place
// of Phone.
// CallbackInput accepts the number as either phone or mobile.
type CallbackInput struct {
	Name   string `json:"name"`
	Phone  string `json:"phone" validate:"required_without=Mobile"`
	Mobile string `json:"mobile" validate:"required_without=Phone"`
}

func (in CallbackInput) number() string {
	if in.Phone != "" {
		return in.Phone
	}
	return in.Mobile
}
