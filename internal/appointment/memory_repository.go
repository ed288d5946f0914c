package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is a thread-safe in-process Repository for development
// and tests. It enforces the same slot uniqueness as the Postgres index.
type MemoryRepository struct {
	mu           sync.RWMutex
	departments  map[string]Department
	appointments map[uuid.UUID]*Appointment
	events       []EventLog
	now          func() time.Time
}

func NewMemoryRepository(departments ...Department) *MemoryRepository {
	r := &MemoryRepository{
		departments:  make(map[string]Department),
		appointments: make(map[uuid.UUID]*Appointment),
		now:          time.Now,
	}
	for _, d := range departments {
		r.departments[d.Name] = d
	}
	return r
}

func (r *MemoryRepository) ListDepartments(_ context.Context) ([]Department, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Department, 0, len(r.departments))
	for _, d := range r.departments {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *MemoryRepository) GetDepartment(_ context.Context, name string) (*Department, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.departments[name]
	if !ok {
		return nil, ErrDepartmentNotFound
	}
	return &d, nil
}

func (r *MemoryRepository) ListByUser(_ context.Context, userID uuid.UUID) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Appointment
	for _, a := range r.appointments {
		if a.UserID == userID {
			out = append(out, copyAppointment(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	c := copyAppointment(a)
	return &c, nil
}

func (r *MemoryRepository) TakenSlots(_ context.Context, department string, date time.Time) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var taken []string
	for _, a := range r.appointments {
		if !a.Cancelled && a.Department == department && a.SlotDate.Equal(date) {
			taken = append(taken, a.SlotTime)
		}
	}
	return taken, nil
}

func (r *MemoryRepository) Create(_ context.Context, in NewAppointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := SlotKey{Department: in.Department, Date: in.SlotDate, Time: in.SlotTime}
	for _, a := range r.appointments {
		if !a.Cancelled && a.Slot() == key {
			return nil, ErrSlotTaken
		}
	}

	// Strictly increasing timestamps keep newest-first ordering stable.
	now := r.now()
	for _, a := range r.appointments {
		if !now.After(a.CreatedAt) {
			now = a.CreatedAt.Add(time.Microsecond)
		}
	}

	a := &Appointment{
		ID:           uuid.New(),
		UserID:       in.UserID,
		Department:   in.Department,
		SlotDate:     in.SlotDate,
		SlotTime:     in.SlotTime,
		Symptoms:     append([]string(nil), in.Symptoms...),
		OtherSymptom: in.OtherSymptom,
		ReferralRef:  in.ReferralRef,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.appointments[a.ID] = a

	c := copyAppointment(a)
	return &c, nil
}

func (r *MemoryRepository) Cancel(_ context.Context, id, userID uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok || a.UserID != userID || a.Cancelled || a.Completed {
		return nil, ErrAppointmentNotFound
	}
	a.Cancelled = true
	a.UpdatedAt = r.now()

	c := copyAppointment(a)
	return &c, nil
}

func (r *MemoryRepository) Delete(_ context.Context, id, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok || a.UserID != userID || !a.Cancelled {
		return ErrAppointmentNotFound
	}
	delete(r.appointments, id)
	return nil
}

func (r *MemoryRepository) Complete(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok || a.Cancelled || a.Completed {
		return nil, ErrAppointmentNotFound
	}
	a.Completed = true
	a.UpdatedAt = r.now()

	c := copyAppointment(a)
	return &c, nil
}

func (r *MemoryRepository) FindBookedUpTo(_ context.Context, day time.Time) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Appointment
	for _, a := range r.appointments {
		if !a.Cancelled && !a.Completed && !a.SlotDate.After(day) {
			out = append(out, copyAppointment(a))
		}
	}
	return out, nil
}

func (r *MemoryRepository) MarkRead(_ context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, id := range ids {
		if a, ok := r.appointments[id]; ok && a.UserID == userID && !a.Read {
			a.Read = true
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ev.ID = int64(len(r.events) + 1)
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the recorded event log.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]EventLog(nil), r.events...)
}

func copyAppointment(a *Appointment) Appointment {
	c := *a
	c.Symptoms = append([]string(nil), a.Symptoms...)
	return c
}
