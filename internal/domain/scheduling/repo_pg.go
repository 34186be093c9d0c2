package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/db"
)

const slotHolderConstraint = "appointment_slot_holder_uniq"

// =========== Appointment Repository ===========

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const apptCols = `id, patient_id, doctor_id, date, time_slot, status, source,
	cancellation, holds_slot, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var cancellation []byte
	err := row.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.Date, &a.TimeSlot, &a.Status, &a.Source,
		&cancellation, &a.HoldsSlot, &a.CreatedAt, &a.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, err
	}
	if a.Cancellation, err = decodeCancellation(cancellation); err != nil {
		return nil, err
	}
	return &a, nil
}

func encodeCancellation(c *Cancellation) ([]byte, error) {
	if c == nil {
		return nil, nil
	}
	if c.Suggestions == nil {
		c.Suggestions = []Suggestion{}
	}
	return json.Marshal(c)
}

func decodeCancellation(raw []byte) (*Cancellation, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var c Cancellation
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decode cancellation: %w", err)
	}
	return &c, nil
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	cancellation, err := encodeCancellation(a.Cancellation)
	if err != nil {
		return err
	}
	err = r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment (id, patient_id, doctor_id, date, time_slot, status, source, cancellation, holds_slot)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.DoctorID, a.Date, a.TimeSlot, a.Status, a.Source, cancellation, a.HoldsSlot,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if db.IsUniqueViolation(err, slotHolderConstraint) {
		return ErrSlotConflict
	}
	return err
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointment WHERE id = $1`, id))
}

// Update writes status, cancellation and slot ownership. Taking the slot
// back can collide with a newer booking.
func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	cancellation, err := encodeCancellation(a.Cancellation)
	if err != nil {
		return err
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointment SET status = $2, cancellation = $3, holds_slot = $4, updated_at = NOW()
		WHERE id = $1`,
		a.ID, a.Status, cancellation, a.HoldsSlot)
	if db.IsUniqueViolation(err, slotHolderConstraint) {
		return ErrSlotConflict
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *appointmentRepoPG) SlotHolder(ctx context.Context, doctorID uuid.UUID, date time.Time, timeSlot string) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM appointment
			WHERE doctor_id = $1 AND date = $2 AND time_slot = $3 AND holds_slot)`,
		doctorID, date, timeSlot).Scan(&exists)
	return exists, err
}

func (r *appointmentRepoPG) OccupiedSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]string, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT time_slot FROM appointment
		WHERE doctor_id = $1 AND date = $2 AND holds_slot
		ORDER BY created_at`, doctorID, date)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (r *appointmentRepoPG) BusyDoctors(ctx context.Context, date time.Time, timeSlot string) ([]uuid.UUID, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT DISTINCT doctor_id FROM appointment
		WHERE date = $1 AND time_slot = $2 AND holds_slot`, date, timeSlot)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

const viewSelect = `
	SELECT a.id, a.patient_id, COALESCE(p.name, 'Unknown'), COALESCE(p.phone, '-'),
		a.doctor_id, COALESCE(d.name, 'Unknown'), a.date, a.time_slot, a.status, a.source, a.cancellation
	FROM appointment a
	LEFT JOIN users p ON p.id = a.patient_id
	LEFT JOIN users d ON d.id = a.doctor_id`

func scanView(row pgx.Row) (*AppointmentView, error) {
	var v AppointmentView
	var date time.Time
	var cancellation []byte
	err := row.Scan(&v.ID, &v.PatientID, &v.PatientName, &v.PatientPhone,
		&v.DoctorID, &v.DoctorName, &date, &v.TimeSlot, &v.Status, &v.Source, &cancellation)
	if db.IsNoRows(err) {
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, err
	}
	v.Date = date.Format(DateLayout)
	if v.Cancellation, err = decodeCancellation(cancellation); err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *appointmentRepoPG) GetView(ctx context.Context, id uuid.UUID) (*AppointmentView, error) {
	return scanView(r.conn(ctx).QueryRow(ctx, viewSelect+` WHERE a.id = $1`, id))
}

func (r *appointmentRepoPG) ListViews(ctx context.Context, f ListFilter) ([]*AppointmentView, error) {
	var where []string
	var args []interface{}
	if ex := f.excluded(); len(ex) > 0 {
		args = append(args, ex)
		where = append(where, fmt.Sprintf(`a.status <> ALL($%d)`, len(args)))
	}
	if f.PatientID != nil {
		args = append(args, *f.PatientID)
		where = append(where, fmt.Sprintf(`a.patient_id = $%d`, len(args)))
	}
	query := viewSelect
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY a.date, a.time_slot`

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*AppointmentView
	for rows.Next() {
		v, err := scanView(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, rows.Err()
}

// =========== People Repository ===========

type peopleRepoPG struct{ pool *pgxpool.Pool }

func NewPeopleRepoPG(pool *pgxpool.Pool) PeopleRepository { return &peopleRepoPG{pool: pool} }

func (r *peopleRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func scanPerson(row pgx.Row, notFound error) (*Person, error) {
	var p Person
	err := row.Scan(&p.ID, &p.Name, &p.Phone, &p.Email)
	if db.IsNoRows(err) {
		return nil, notFound
	}
	return &p, err
}

func (r *peopleRepoPG) GetDoctor(ctx context.Context, id uuid.UUID) (*Person, error) {
	return scanPerson(r.conn(ctx).QueryRow(ctx,
		`SELECT id, name, phone, email FROM users WHERE id = $1 AND role = 'doctor'`, id), ErrUnknownDoctor)
}

func (r *peopleRepoPG) ListDoctors(ctx context.Context) ([]*Person, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT id, name, phone, email FROM users WHERE role = 'doctor' ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Person
	for rows.Next() {
		p, err := scanPerson(rows, ErrUnknownDoctor)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (r *peopleRepoPG) GetPatient(ctx context.Context, id uuid.UUID) (*Person, error) {
	return scanPerson(r.conn(ctx).QueryRow(ctx,
		`SELECT id, name, phone, email FROM users WHERE id = $1 AND role = 'patient'`, id), ErrUnknownPatient)
}

// FindPatientByPhone returns nil, nil when no patient has the number.
func (r *peopleRepoPG) FindPatientByPhone(ctx context.Context, phone string) (*Person, error) {
	p, err := scanPerson(r.conn(ctx).QueryRow(ctx, `
		SELECT id, name, phone, email FROM users
		WHERE phone = $1 AND role = 'patient'
		ORDER BY created_at LIMIT 1`, phone), ErrUnknownPatient)
	if errors.Is(err, ErrUnknownPatient) {
		return nil, nil
	}
	return p, err
}

func (r *peopleRepoPG) CreatePatient(ctx context.Context, p *Person, passwordHash string) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO users (id, name, email, phone, password_hash, role)
		VALUES ($1, $2, $3, $4, $5, 'patient')`,
		p.ID, p.Name, p.Email, p.Phone, passwordHash)
	return err
}

// =========== Notification Writer ===========

type notificationWriterPG struct{ pool *pgxpool.Pool }

func NewNotificationWriterPG(pool *pgxpool.Pool) NotificationWriter {
	return &notificationWriterPG{pool: pool}
}

// Notify is a no-op for users that no longer exist.
func (w *notificationWriterPG) Notify(ctx context.Context, userID uuid.UUID, message, kind string) error {
	_, err := db.Conn(ctx, w.pool).Exec(ctx, `
		INSERT INTO notification (user_id, message, type)
		SELECT $1, $2, $3
		WHERE EXISTS (SELECT 1 FROM users WHERE id = $1)`,
		userID, message, kind)
	return err
}
