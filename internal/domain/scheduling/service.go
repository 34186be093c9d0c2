package scheduling

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/clinic/clinic/internal/platform/cache"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/notification"
	"github.com/clinic/clinic/internal/platform/outbox"
)

// NotificationTypeAppointmentUpdate tags inbox entries written here.
const NotificationTypeAppointmentUpdate = "appointment_update"

// Options carries the optional collaborators of the Service.
type Options struct {
	Outbox     outbox.Repository
	Dispatcher *outbox.Dispatcher
	Cache      cache.Availability
	SMS        notification.SMSCapability
	// ReleaseCancelledSlots frees the slot of Cancelled and Acknowledged
	// appointments. Off by default: they keep counting as occupied.
	ReleaseCancelledSlots bool
	Logger                zerolog.Logger
}

type Service struct {
	appts     AppointmentRepository
	people    PeopleRepository
	notes     NotificationWriter
	tx        db.Transactor
	catalog   *Catalog
	validator *Validator

	outbox     outbox.Repository
	dispatcher *outbox.Dispatcher
	cache      cache.Availability
	sms        notification.SMSCapability
	templates  *notification.TemplateEngine
	release    bool
	bcryptCost int
	logger     zerolog.Logger
}

func NewService(
	appts AppointmentRepository,
	people PeopleRepository,
	notes NotificationWriter,
	tx db.Transactor,
	catalog *Catalog,
	validator *Validator,
	opts Options,
) *Service {
	if opts.Cache == nil {
		opts.Cache = cache.Noop{}
	}
	return &Service{
		appts:      appts,
		people:     people,
		notes:      notes,
		tx:         tx,
		catalog:    catalog,
		validator:  validator,
		outbox:     opts.Outbox,
		dispatcher: opts.Dispatcher,
		cache:      opts.Cache,
		sms:        opts.SMS,
		templates:  notification.NewTemplateEngine(),
		release:    opts.ReleaseCancelledSlots,
		bcryptCost: bcrypt.DefaultCost,
		logger:     opts.Logger,
	}
}

// holdsSlot decides slot ownership for a status.
func (s *Service) holdsSlot(st Status) bool {
	return !(s.release && st.releasesSlot())
}

func missing(fields map[string]string) error {
	var names []string
	for _, name := range []string{"name", "phone", "doctorId", "date", "timeSlot"} {
		if v, ok := fields[name]; ok && strings.TrimSpace(v) == "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrMissingField, strings.Join(names, ", "))
}

// -- Availability --

// Availability lists the catalog split into occupied and free labels for
// one doctor on one day.
func (s *Service) Availability(ctx context.Context, doctorID, date string) (*Availability, error) {
	if err := missing(map[string]string{"doctorId": doctorID, "date": date}); err != nil {
		return nil, err
	}
	docID, err := uuid.Parse(doctorID)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDoctor, doctorID)
	}
	day, err := ParseDate(date)
	if err != nil {
		return nil, err
	}

	occupied, err := s.occupied(ctx, docID, day)
	if err != nil {
		return nil, err
	}
	return &Availability{
		Occupied:  occupied,
		Available: s.catalog.Free(occupied),
		AllSlots:  s.catalog.Labels(),
	}, nil
}

func (s *Service) occupied(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]string, error) {
	key, date := doctorID.String(), day.Format(DateLayout)
	booked, gen, ok := s.cache.Booked(ctx, key, date)
	if ok {
		return booked, nil
	}
	booked, err := s.appts.OccupiedSlots(ctx, doctorID, day)
	if err != nil {
		return nil, fmt.Errorf("load occupied slots: %w", err)
	}
	if booked == nil {
		booked = []string{}
	}
	s.cache.SetBooked(ctx, key, date, gen, booked)
	return booked, nil
}

// notifyPatient writes to the patient's inbox. A patient deleted after
// booking has no inbox, so the message is dropped.
func (s *Service) notifyPatient(ctx context.Context, patientID uuid.UUID, message string) error {
	if _, err := s.people.GetPatient(ctx, patientID); err != nil {
		if errors.Is(err, ErrUnknownPatient) {
			s.logger.Info().Str("patient_id", patientID.String()).Msg("patient no longer exists, notification skipped")
			return nil
		}
		return fmt.Errorf("load patient: %w", err)
	}
	if err := s.notes.Notify(ctx, patientID, message, NotificationTypeAppointmentUpdate); err != nil {
		return fmt.Errorf("notify patient: %w", err)
	}
	return nil
}

func (s *Service) invalidate(ctx context.Context, a *Appointment) {
	s.cache.Invalidate(ctx, a.DoctorID.String(), a.DateString())
}

// AvailableDoctors lists doctors with no slot-holding appointment at the
// given date and slot.
func (s *Service) AvailableDoctors(ctx context.Context, date, timeSlot string) ([]*Person, error) {
	if err := missing(map[string]string{"date": date, "timeSlot": timeSlot}); err != nil {
		return nil, err
	}
	day, err := ParseDate(date)
	if err != nil {
		return nil, err
	}
	busy, err := s.appts.BusyDoctors(ctx, day, timeSlot)
	if err != nil {
		return nil, fmt.Errorf("load busy doctors: %w", err)
	}
	doctors, err := s.people.ListDoctors(ctx)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}

	isBusy := make(map[uuid.UUID]bool, len(busy))
	for _, id := range busy {
		isBusy[id] = true
	}
	free := make([]*Person, 0, len(doctors))
	for _, d := range doctors {
		if !isBusy[d.ID] {
			free = append(free, d)
		}
	}
	return free, nil
}

// -- Booking --

type WalkInRequest struct {
	Name     string `json:"name" validate:"required"`
	Phone    string `json:"phone" validate:"required"`
	Email    string `json:"email,omitempty"`
	DoctorID string `json:"doctorId" validate:"required"`
	Date     string `json:"date" validate:"required"`
	TimeSlot string `json:"timeSlot" validate:"required"`
}

type OnlineBookingRequest struct {
	DoctorID string `json:"doctorId" validate:"required"`
	Date     string `json:"date" validate:"required"`
	TimeSlot string `json:"timeSlot" validate:"required"`
}

// checkSlot validates a requested slot and resolves the doctor. It returns
// the parsed day.
func (s *Service) checkSlot(ctx context.Context, doctorID, date, timeSlot string) (*Person, time.Time, error) {
	ok, err := s.validator.IsFutureSlot(date, timeSlot)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: %w", ErrPastOrInvalidSlot, err)
	}
	if !ok {
		return nil, time.Time{}, ErrPastOrInvalidSlot
	}
	if !s.catalog.Contains(timeSlot) {
		return nil, time.Time{}, fmt.Errorf("%w: %q", ErrUnknownSlot, timeSlot)
	}
	day, _ := ParseDate(date)

	docID, err := uuid.Parse(doctorID)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: %q", ErrUnknownDoctor, doctorID)
	}
	doctor, err := s.people.GetDoctor(ctx, docID)
	if err != nil {
		return nil, time.Time{}, err
	}

	taken, err := s.appts.SlotHolder(ctx, docID, day, timeSlot)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("check slot: %w", err)
	}
	if taken {
		return nil, time.Time{}, ErrSlotConflict
	}
	return doctor, day, nil
}

// BookWalkIn books a slot for a patient at the front desk. The patient is
// matched by phone or created on the spot with a random password.
func (s *Service) BookWalkIn(ctx context.Context, req WalkInRequest) (*AppointmentView, error) {
	req.Name, req.Phone, req.Email = strings.TrimSpace(req.Name), strings.TrimSpace(req.Phone), strings.TrimSpace(req.Email)
	if err := missing(map[string]string{
		"name": req.Name, "phone": req.Phone, "doctorId": req.DoctorID, "date": req.Date, "timeSlot": req.TimeSlot,
	}); err != nil {
		return nil, err
	}
	doctor, day, err := s.checkSlot(ctx, req.DoctorID, req.Date, req.TimeSlot)
	if err != nil {
		return nil, err
	}

	a := &Appointment{
		DoctorID:  doctor.ID,
		Date:      day,
		TimeSlot:  req.TimeSlot,
		Status:    StatusWalkIn,
		Source:    SourceOffline,
		HoldsSlot: true,
	}
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		patient, err := s.walkInPatient(ctx, req)
		if err != nil {
			return err
		}
		a.PatientID = patient.ID
		return s.appts.Create(ctx, a)
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, a)

	s.logger.Info().Str("appointment_id", a.ID.String()).Str("doctor_id", a.DoctorID.String()).
		Str("date", a.DateString()).Str("time_slot", a.TimeSlot).Msg("walk-in booked")
	return s.appts.GetView(ctx, a.ID)
}

func (s *Service) walkInPatient(ctx context.Context, req WalkInRequest) (*Person, error) {
	existing, err := s.people.FindPatientByPhone(ctx, req.Phone)
	if err != nil {
		return nil, fmt.Errorf("find patient: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	hash, err := s.randomPasswordHash()
	if err != nil {
		return nil, err
	}
	p := &Person{Name: req.Name, Phone: req.Phone, Email: req.Email}
	if p.Email == "" {
		p.Email = req.Phone + "@walkin.local"
	}
	if err := s.people.CreatePatient(ctx, p, hash); err != nil {
		return nil, fmt.Errorf("create walk-in patient: %w", err)
	}
	return p, nil
}

func (s *Service) randomPasswordHash() (string, error) {
	buf := make([]byte, 9)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate password: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(hex.EncodeToString(buf)), s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// BookOnline books a slot for a registered patient.
func (s *Service) BookOnline(ctx context.Context, patientID uuid.UUID, req OnlineBookingRequest) (*AppointmentView, error) {
	if err := missing(map[string]string{"doctorId": req.DoctorID, "date": req.Date, "timeSlot": req.TimeSlot}); err != nil {
		return nil, err
	}
	if _, err := s.people.GetPatient(ctx, patientID); err != nil {
		return nil, err
	}
	doctor, day, err := s.checkSlot(ctx, req.DoctorID, req.Date, req.TimeSlot)
	if err != nil {
		return nil, err
	}

	a := &Appointment{
		PatientID: patientID,
		DoctorID:  doctor.ID,
		Date:      day,
		TimeSlot:  req.TimeSlot,
		Status:    StatusPending,
		Source:    SourceOnline,
		HoldsSlot: true,
	}
	if err := s.appts.Create(ctx, a); err != nil {
		return nil, err
	}
	s.invalidate(ctx, a)
	return s.appts.GetView(ctx, a.ID)
}

// -- Status --

// SetStatus changes the status and tells the patient. Casing is repaired
// by ParseStatus before anything is written.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, raw string) (*AppointmentView, error) {
	status, err := ParseStatus(raw)
	if err != nil {
		return nil, err
	}

	var a *Appointment
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		a, err = s.appts.GetByID(ctx, id)
		if err != nil {
			return err
		}
		a.Status = status
		a.HoldsSlot = s.holdsSlot(status)
		if err := s.appts.Update(ctx, a); err != nil {
			return err
		}
		msg := fmt.Sprintf("Your appointment status has been updated to: %s", status)
		return s.notifyPatient(ctx, a.PatientID, msg)
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, a)

	s.logger.Info().Str("appointment_id", id.String()).Str("status", string(status)).Msg("appointment status updated")
	return s.appts.GetView(ctx, id)
}

// -- Lists --

func (s *Service) ListAppointments(ctx context.Context, f ListFilter) ([]*AppointmentView, error) {
	return s.appts.ListViews(ctx, f)
}

// ListPatientAppointments returns every appointment of one patient.
func (s *Service) ListPatientAppointments(ctx context.Context, patientID uuid.UUID) ([]*AppointmentView, error) {
	return s.appts.ListViews(ctx, ListFilter{ShowCompleted: true, ShowAcknowledged: true, PatientID: &patientID})
}
