package scheduling

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending      Status = "Pending"
	StatusConfirmed    Status = "Confirmed"
	StatusCompleted    Status = "Completed"
	StatusCancelled    Status = "Cancelled"
	StatusAcknowledged Status = "Acknowledged"
	StatusWalkIn       Status = "Walk-in"
)

var validStatuses = map[Status]bool{
	StatusPending: true, StatusConfirmed: true, StatusCompleted: true,
	StatusCancelled: true, StatusAcknowledged: true, StatusWalkIn: true,
}

// ParseStatus repairs casing once (first letter upper, the rest lower)
// and then requires an exact match, so "confirmed" and "WALK-IN" parse
// while "Walk in" does not.
func ParseStatus(raw string) (Status, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidStatus)
	}
	s := Status(strings.ToUpper(raw[:1]) + strings.ToLower(raw[1:]))
	if !validStatuses[s] {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	return s, nil
}

// releasesSlot reports whether the status frees the slot when cancelled
// slots are configured to be released.
func (s Status) releasesSlot() bool {
	return s == StatusCancelled || s == StatusAcknowledged
}

const (
	SourceOnline  = "online"
	SourceOffline = "offline"
)

// Appointment maps to the appointment table.
type Appointment struct {
	ID           uuid.UUID     `db:"id" json:"_id"`
	PatientID    uuid.UUID     `db:"patient_id" json:"patientId"`
	DoctorID     uuid.UUID     `db:"doctor_id" json:"doctorId"`
	Date         time.Time     `db:"date" json:"-"`
	TimeSlot     string        `db:"time_slot" json:"timeSlot"`
	Status       Status        `db:"status" json:"status"`
	Source       string        `db:"source" json:"source"`
	Cancellation *Cancellation `db:"cancellation" json:"cancellation"`
	HoldsSlot    bool          `db:"holds_slot" json:"-"`
	CreatedAt    time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updatedAt"`
}

// DateString formats the calendar date.
func (a *Appointment) DateString() string { return a.Date.Format(DateLayout) }

// Cancellation is stored as JSONB on the appointment it belongs to.
type Cancellation struct {
	Reason       string           `json:"reason"`
	Suggestions  []Suggestion     `json:"suggestions"`
	Notified     bool             `json:"notified"`
	Notification *DeliveryReceipt `json:"notification,omitempty"`
}

type Suggestion struct {
	DoctorID *uuid.UUID `json:"doctor"`
	Date     string     `json:"date,omitempty"`
	TimeSlot string     `json:"timeSlot"`
}

// DeliveryReceipt records the outcome of the one SMS attempt.
type DeliveryReceipt struct {
	Provider string     `json:"provider"`
	SID      string     `json:"sid,omitempty"`
	SentAt   *time.Time `json:"sentAt,omitempty"`
	To       string     `json:"to,omitempty"`
	Status   string     `json:"status,omitempty"`
	Error    string     `json:"error,omitempty"`
}

// Person is the slice of a user record scheduling needs.
type Person struct {
	ID    uuid.UUID `json:"_id"`
	Name  string    `json:"name"`
	Phone string    `json:"phone,omitempty"`
	Email string    `json:"email,omitempty"`
}

// AppointmentView joins an appointment with its patient and doctor names.
type AppointmentView struct {
	ID           uuid.UUID     `json:"_id"`
	PatientID    uuid.UUID     `json:"patientId"`
	PatientName  string        `json:"patientName"`
	PatientPhone string        `json:"patientPhone"`
	DoctorID     uuid.UUID     `json:"doctorId"`
	DoctorName   string        `json:"doctorName"`
	Date         string        `json:"date"`
	TimeSlot     string        `json:"timeSlot"`
	Status       Status        `json:"status"`
	Source       string        `json:"source"`
	Cancellation *Cancellation `json:"cancellation"`
}

// Availability is the answer for one doctor on one day.
type Availability struct {
	Occupied  []string `json:"occupied"`
	Available []string `json:"available"`
	AllSlots  []string `json:"allSlots"`
}

// ListFilter selects appointments for the admin list. Completed and
// Acknowledged appointments are hidden unless asked for.
type ListFilter struct {
	ShowCompleted    bool
	ShowAcknowledged bool
	PatientID        *uuid.UUID
}

func (f ListFilter) excluded() []string {
	var out []string
	if !f.ShowCompleted {
		out = append(out, string(StatusCompleted))
	}
	if !f.ShowAcknowledged {
		out = append(out, string(StatusAcknowledged))
	}
	return out
}
