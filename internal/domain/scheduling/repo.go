package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type AppointmentRepository interface {
	// Create returns ErrSlotConflict when another appointment already
	// holds the slot.
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	SlotHolder(ctx context.Context, doctorID uuid.UUID, date time.Time, timeSlot string) (bool, error)
	OccupiedSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]string, error)
	BusyDoctors(ctx context.Context, date time.Time, timeSlot string) ([]uuid.UUID, error)
	GetView(ctx context.Context, id uuid.UUID) (*AppointmentView, error)
	ListViews(ctx context.Context, f ListFilter) ([]*AppointmentView, error)
}

// PeopleRepository reads the users table for doctors and patients.
type PeopleRepository interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*Person, error)
	ListDoctors(ctx context.Context) ([]*Person, error)
	GetPatient(ctx context.Context, id uuid.UUID) (*Person, error)
	FindPatientByPhone(ctx context.Context, phone string) (*Person, error)
	CreatePatient(ctx context.Context, p *Person, passwordHash string) error
}

// NotificationWriter appends to a user's inbox.
type NotificationWriter interface {
	Notify(ctx context.Context, userID uuid.UUID, message, kind string) error
}
