// Package booking drives appointments through submit, cancel and delete on
// the patient side. It never patches local state speculatively: every
// mutation is followed by a re-fetch, and the lifecycle actions offered for
// an appointment come only from the last server-confirmed list.
package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hackgods/clinic-portal/internal/appointment"
	"github.com/hackgods/clinic-portal/internal/availability"
	"github.com/hackgods/clinic-portal/internal/calendar"
	"github.com/hackgods/clinic-portal/internal/fault"
	"github.com/hackgods/clinic-portal/internal/sequence"
	"github.com/hackgods/clinic-portal/internal/session"
)

// Store is the remote appointment API.
type Store interface {
	ListAppointments(ctx context.Context, sess session.Session) ([]appointment.Appointment, error)
	SubmitAppointment(ctx context.Context, sess session.Session, sub Submission) (*appointment.Appointment, error)
	CancelAppointment(ctx context.Context, sess session.Session, id uuid.UUID) (*appointment.Appointment, error)
	DeleteAppointment(ctx context.Context, sess session.Session, id uuid.UUID) error
}

// Referral is an uploaded letter sent with a booking.
type Referral struct {
	Name    string `json:"name" validate:"required"`
	Content []byte `json:"content" validate:"required"`
}

// Request is what the patient fills in on the booking screen.
type Request struct {
	Department   string    `json:"department" validate:"required"`
	Date         time.Time `json:"date" validate:"required"`
	Time         string    `json:"time" validate:"required"`
	Symptoms     []string  `json:"symptoms" validate:"dive,required"`
	OtherSymptom string    `json:"otherSymptom" validate:"max=500"`
	Referral     *Referral `json:"referralLetter" validate:"omitempty"`
}

// Submission is a validated Request as sent to the store.
type Submission struct {
	Department   string
	Date         time.Time
	Time         string
	Symptoms     []string
	OtherSymptom string
	Referral     *Referral
}

// ConflictError reports that the store rejected a booking because the slot
// was taken in the meantime. Slots is the freshly re-resolved grid for the
// same day, empty if that re-resolve failed.
type ConflictError struct {
	Department string
	Date       time.Time
	Time       string
	Slots      []availability.Slot
	err        error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s on %s at %s was just booked by someone else: %v",
		e.Department, calendar.DisplayDate(e.Date), e.Time, e.err)
}

func (e *ConflictError) Unwrap() error {
	return e.err
}

// View is one appointment with the lifecycle actions currently legal for it.
type View struct {
	Appointment appointment.Appointment
	CanCancel   bool
	CanDelete   bool
}

func newView(a appointment.Appointment) View {
	return View{
		Appointment: a,
		CanCancel:   appointment.CanTransition(a.State(), appointment.StateCancelled),
		CanDelete:   appointment.CanTransition(a.State(), appointment.StateDeleted),
	}
}

type Manager struct {
	store    Store
	resolver *availability.Resolver
	cal      *calendar.Calendar
	validate *fault.Validator
	log      logrus.FieldLogger
	listSeq  sequence.Tracker

	mu        sync.Mutex
	confirmed []appointment.Appointment
	loaded    bool
	loadedSeq uint64
}

func NewManager(store Store, resolver *availability.Resolver, cal *calendar.Calendar, log logrus.FieldLogger) *Manager {
	return &Manager{
		store:    store,
		resolver: resolver,
		cal:      cal,
		validate: fault.NewValidator(),
		log:      log,
	}
}

// Validate runs every local precondition of Submit, in order, without any
// store call.
func (m *Manager) Validate(sess session.Session, req Request) error {
	if err := sess.Require(); err != nil {
		return err
	}
	if err := m.validate.Struct(req); err != nil {
		return err
	}
	if err := m.resolver.ValidateInput(req.Department, req.Date); err != nil {
		return err
	}
	if !m.cal.HasSlot(req.Time) {
		return fault.Invalid("time", "time is not a bookable slot")
	}
	if err := appointment.ValidateSymptoms(req.Symptoms, req.OtherSymptom); err != nil {
		return err
	}
	return m.resolver.CheckSelectable(req.Department, req.Date, req.Time)
}

// Submit books the slot. On a slot conflict it re-resolves availability for
// the same day and returns a *ConflictError; the caller prompts for another
// slot. There is no silent retry.
func (m *Manager) Submit(ctx context.Context, sess session.Session, req Request) (*appointment.Appointment, error) {
	if err := m.Validate(sess, req); err != nil {
		return nil, err
	}

	day := calendar.Day(req.Date)
	created, err := m.store.SubmitAppointment(ctx, sess, Submission{
		Department:   req.Department,
		Date:         day,
		Time:         req.Time,
		Symptoms:     req.Symptoms,
		OtherSymptom: req.OtherSymptom,
		Referral:     req.Referral,
	})
	if err != nil {
		if errors.Is(err, fault.ErrSlotConflict) {
			conflict := &ConflictError{Department: req.Department, Date: day, Time: req.Time, err: err}
			snap, rerr := m.resolver.Resolve(ctx, sess, req.Department, day)
			if rerr != nil {
				m.log.WithError(rerr).Warn("re-resolve after slot conflict failed")
			} else {
				conflict.Slots = snap.Slots
			}
			return nil, conflict
		}
		return nil, err
	}

	m.log.WithFields(logrus.Fields{
		"appointment_id": created.ID,
		"department":     created.Department,
		"slot_date":      calendar.FormatToken(created.SlotDate),
		"slot_time":      created.SlotTime,
	}).Info("appointment booked")

	m.afterMutation(ctx, sess)
	if _, err := m.resolver.Resolve(ctx, sess, req.Department, day); err != nil && !errors.Is(err, sequence.ErrSuperseded) {
		m.log.WithError(err).Warn("re-resolve after booking failed")
	}
	return created, nil
}

// Refresh fetches the appointment list, newest first, and makes it the
// confirmed snapshot. A response overtaken by a newer Refresh returns
// sequence.ErrSuperseded.
func (m *Manager) Refresh(ctx context.Context, sess session.Session) ([]View, error) {
	if err := sess.Require(); err != nil {
		return nil, err
	}

	ticket := m.listSeq.Next()
	list, err := m.store.ListAppointments(ctx, sess)
	if !m.listSeq.IsLatest(ticket) {
		return nil, sequence.ErrSuperseded
	}
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loaded && m.loadedSeq > ticket {
		return nil, sequence.ErrSuperseded
	}
	m.confirmed = list
	m.loaded = true
	m.loadedSeq = ticket
	return m.viewsLocked(), nil
}

// Views returns the last confirmed list without a store call.
func (m *Manager) Views() []View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.viewsLocked()
}

func (m *Manager) viewsLocked() []View {
	out := make([]View, len(m.confirmed))
	for i, a := range m.confirmed {
		out[i] = newView(a)
	}
	return out
}

// Cancel moves a Booked appointment to Cancelled. The local check uses the
// confirmed list only; the store decides.
func (m *Manager) Cancel(ctx context.Context, sess session.Session, id uuid.UUID) (*appointment.Appointment, error) {
	if err := m.precheck(ctx, sess, id, appointment.StateCancelled); err != nil {
		return nil, err
	}

	updated, err := m.store.CancelAppointment(ctx, sess, id)
	m.afterMutation(ctx, sess)
	if err != nil {
		return nil, err
	}
	// The freed slot may still show as taken in the retained snapshot.
	m.resolver.Invalidate()
	return updated, nil
}

// Delete removes a Cancelled appointment.
func (m *Manager) Delete(ctx context.Context, sess session.Session, id uuid.UUID) error {
	if err := m.precheck(ctx, sess, id, appointment.StateDeleted); err != nil {
		return err
	}

	err := m.store.DeleteAppointment(ctx, sess, id)
	m.afterMutation(ctx, sess)
	return err
}

func (m *Manager) precheck(ctx context.Context, sess session.Session, id uuid.UUID, to appointment.State) error {
	if err := sess.Require(); err != nil {
		return err
	}

	m.mu.Lock()
	loaded := m.loaded
	m.mu.Unlock()
	if !loaded {
		if _, err := m.Refresh(ctx, sess); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.confirmed {
		if a.ID != id {
			continue
		}
		if !appointment.CanTransition(a.State(), to) {
			return fmt.Errorf("%w: %s to %s", fault.ErrIllegalTransition, a.State(), to)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown appointment %s", fault.ErrIllegalTransition, id)
}

// afterMutation re-fetches the list. Failures are logged; the mutation's own
// result is what the caller reports.
func (m *Manager) afterMutation(ctx context.Context, sess session.Session) {
	if _, err := m.Refresh(ctx, sess); err != nil && !errors.Is(err, sequence.ErrSuperseded) {
		m.log.WithError(err).Warn("refresh after mutation failed")
	}
}
