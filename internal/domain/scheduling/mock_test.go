package scheduling

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/outbox"
)

// -- Mock Repositories --

type mockApptRepo struct {
	mu     sync.Mutex
	items  map[uuid.UUID]*Appointment
	order  []uuid.UUID
	people *mockPeopleRepo
	writes int
}

func newMockApptRepo(people *mockPeopleRepo) *mockApptRepo {
	return &mockApptRepo{items: make(map[uuid.UUID]*Appointment), people: people}
}

func cloneAppt(a *Appointment) *Appointment {
	cp := *a
	if a.Cancellation != nil {
		raw, _ := json.Marshal(a.Cancellation)
		cp.Cancellation = &Cancellation{}
		_ = json.Unmarshal(raw, cp.Cancellation)
	}
	return &cp
}

func (m *mockApptRepo) holderExists(a *Appointment) bool {
	for _, other := range m.items {
		if other.ID != a.ID && other.HoldsSlot && other.DoctorID == a.DoctorID &&
			other.Date.Equal(a.Date) && other.TimeSlot == a.TimeSlot {
			return true
		}
	}
	return false
}

func (m *mockApptRepo) Create(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.HoldsSlot && m.holderExists(a) {
		return ErrSlotConflict
	}
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	m.items[a.ID] = cloneAppt(a)
	m.order = append(m.order, a.ID)
	m.writes++
	return nil
}

func (m *mockApptRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return cloneAppt(a), nil
}

func (m *mockApptRepo) Update(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[a.ID]; !ok {
		return ErrAppointmentNotFound
	}
	if a.HoldsSlot && m.holderExists(a) {
		return ErrSlotConflict
	}
	a.UpdatedAt = time.Now()
	m.items[a.ID] = cloneAppt(a)
	m.writes++
	return nil
}

func (m *mockApptRepo) SlotHolder(_ context.Context, doctorID uuid.UUID, date time.Time, slot string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.holderExists(&Appointment{DoctorID: doctorID, Date: date, TimeSlot: slot}), nil
}

func (m *mockApptRepo) OccupiedSlots(_ context.Context, doctorID uuid.UUID, date time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, id := range m.order {
		a := m.items[id]
		if a.HoldsSlot && a.DoctorID == doctorID && a.Date.Equal(date) {
			out = append(out, a.TimeSlot)
		}
	}
	return out, nil
}

func (m *mockApptRepo) BusyDoctors(_ context.Context, date time.Time, slot string) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []uuid.UUID
	for _, a := range m.items {
		if a.HoldsSlot && a.Date.Equal(date) && a.TimeSlot == slot {
			out = append(out, a.DoctorID)
		}
	}
	return out, nil
}

func (m *mockApptRepo) view(a *Appointment) *AppointmentView {
	v := &AppointmentView{
		ID: a.ID, PatientID: a.PatientID, PatientName: "Unknown", PatientPhone: "-",
		DoctorID: a.DoctorID, DoctorName: "Unknown", Date: a.DateString(), TimeSlot: a.TimeSlot,
		Status: a.Status, Source: a.Source, Cancellation: cloneAppt(a).Cancellation,
	}
	if p, ok := m.people.users[a.PatientID]; ok {
		v.PatientName, v.PatientPhone = p.Name, p.Phone
	}
	if d, ok := m.people.users[a.DoctorID]; ok {
		v.DoctorName = d.Name
	}
	return v
}

func (m *mockApptRepo) GetView(_ context.Context, id uuid.UUID) (*AppointmentView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return m.view(a), nil
}

func (m *mockApptRepo) ListViews(_ context.Context, f ListFilter) ([]*AppointmentView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	excluded := map[string]bool{}
	for _, s := range f.excluded() {
		excluded[s] = true
	}
	var out []*AppointmentView
	for _, a := range m.items {
		if excluded[string(a.Status)] {
			continue
		}
		if f.PatientID != nil && a.PatientID != *f.PatientID {
			continue
		}
		out = append(out, m.view(a))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].TimeSlot < out[j].TimeSlot
	})
	return out, nil
}

type mockPeopleRepo struct {
	mu       sync.Mutex
	users    map[uuid.UUID]*Person
	roles    map[uuid.UUID]string
	hashes   map[uuid.UUID]string
	patients int
}

func newMockPeopleRepo() *mockPeopleRepo {
	return &mockPeopleRepo{
		users:  make(map[uuid.UUID]*Person),
		roles:  make(map[uuid.UUID]string),
		hashes: make(map[uuid.UUID]string),
	}
}

func (m *mockPeopleRepo) add(role, name, phone string) *Person {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := &Person{ID: uuid.New(), Name: name, Phone: phone, Email: fmt.Sprintf("%s@example.com", phone)}
	m.users[p.ID] = p
	m.roles[p.ID] = role
	return p
}

func (m *mockPeopleRepo) remove(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
	delete(m.roles, id)
}

func (m *mockPeopleRepo) get(id uuid.UUID, role string, notFound error) (*Person, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.users[id]
	if !ok || m.roles[id] != role {
		return nil, notFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockPeopleRepo) GetDoctor(_ context.Context, id uuid.UUID) (*Person, error) {
	return m.get(id, "doctor", ErrUnknownDoctor)
}

func (m *mockPeopleRepo) GetPatient(_ context.Context, id uuid.UUID) (*Person, error) {
	return m.get(id, "patient", ErrUnknownPatient)
}

func (m *mockPeopleRepo) ListDoctors(_ context.Context) ([]*Person, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Person
	for id, p := range m.users {
		if m.roles[id] == "doctor" {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *mockPeopleRepo) FindPatientByPhone(_ context.Context, phone string) (*Person, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.users {
		if m.roles[id] == "patient" && p.Phone == phone {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockPeopleRepo) CreatePatient(_ context.Context, p *Person, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = uuid.New()
	cp := *p
	m.users[p.ID] = &cp
	m.roles[p.ID] = "patient"
	m.hashes[p.ID] = hash
	m.patients++
	return nil
}

type sentNote struct {
	UserID  uuid.UUID
	Message string
	Kind    string
}

type mockNotes struct {
	mu    sync.Mutex
	notes []sentNote
}

func (m *mockNotes) Notify(_ context.Context, userID uuid.UUID, message, kind string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notes = append(m.notes, sentNote{userID, message, kind})
	return nil
}

func (m *mockNotes) all() []sentNote {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentNote(nil), m.notes...)
}

type mockTx struct{ calls int }

func (m *mockTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.calls++
	return fn(ctx)
}

type mockOutboxRepo struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*outbox.Entry
	order   []uuid.UUID
}

func newMockOutboxRepo() *mockOutboxRepo {
	return &mockOutboxRepo{entries: make(map[uuid.UUID]*outbox.Entry)}
}

func (m *mockOutboxRepo) Enqueue(_ context.Context, e *outbox.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = uuid.New()
	cp := *e
	m.entries[e.ID] = &cp
	m.order = append(m.order, e.ID)
	return nil
}

func (m *mockOutboxRepo) GetByID(_ context.Context, id uuid.UUID) (*outbox.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, outbox.ErrEntryNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *mockOutboxRepo) mark(id uuid.UUID, status, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entries[id]
	e.Status, e.LastError = status, reason
	e.Attempts++
}

func (m *mockOutboxRepo) MarkDone(_ context.Context, id uuid.UUID) error {
	m.mark(id, outbox.StatusDone, "")
	return nil
}

func (m *mockOutboxRepo) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	m.mark(id, outbox.StatusFailed, reason)
	return nil
}

func (m *mockOutboxRepo) List(_ context.Context, status string, _, _ int) ([]*outbox.Entry, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*outbox.Entry
	for _, id := range m.order {
		if e := m.entries[id]; status == "" || e.Status == status {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (m *mockOutboxRepo) byKind(kind string) []*outbox.Entry {
	all, _, _ := m.List(context.Background(), "", 0, 0)
	var out []*outbox.Entry
	for _, e := range all {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

type mockCallbacks struct {
	mu    sync.Mutex
	calls []CallbackPayload
	err   error
}

func (m *mockCallbacks) CreateCallback(_ context.Context, name, phone string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.calls = append(m.calls, CallbackPayload{Name: name, Phone: phone})
	return nil
}

type mockCache struct {
	mu          sync.Mutex
	data        map[string][]string
	gens        map[string]int64
	invalidated []string
}

func newMockCache() *mockCache {
	return &mockCache{data: make(map[string][]string), gens: make(map[string]int64)}
}

func (m *mockCache) Booked(_ context.Context, doctorID, date string) ([]string, int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := doctorID + "|" + date
	v, ok := m.data[k]
	return v, m.gens[k], ok
}

func (m *mockCache) SetBooked(_ context.Context, doctorID, date string, gen int64, booked []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := doctorID + "|" + date
	if gen != m.gens[k] {
		return
	}
	m.data[k] = booked
}

func (m *mockCache) Invalidate(_ context.Context, doctorID, date string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := doctorID + "|" + date
	m.gens[k]++
	delete(m.data, k)
	m.invalidated = append(m.invalidated, k)
}
