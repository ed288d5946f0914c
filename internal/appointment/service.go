package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hackgods/clinic-portal/internal/calendar"
	"github.com/hackgods/clinic-portal/internal/fault"
	redisclient "github.com/hackgods/clinic-portal/internal/redis"
)

const (
	EventAppointmentBooked    = "APPOINTMENT_BOOKED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentDeleted   = "APPOINTMENT_DELETED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
)

var (
	ErrSlotBeingBooked         = fmt.Errorf("%w: slot is currently being booked", fault.ErrSlotConflict)
	ErrInvalidStatusTransition = fmt.Errorf("appointment: %w", fault.ErrIllegalTransition)
)

type BookRequest struct {
	UserID       uuid.UUID
	Department   string
	SlotDate     time.Time
	SlotTime     string
	Symptoms     []string
	OtherSymptom string
	ReferralRef  string
}

type Service struct {
	repo   Repository
	locker redisclient.Locker
	cal    *calendar.Calendar
	log    logrus.FieldLogger
	now    func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, cal *calendar.Calendar, log logrus.FieldLogger) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
		cal:    cal,
		log:    log,
		now:    time.Now,
	}
}

// WithClock replaces the service clock. Used by tests and replays.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Book reserves a slot for a user. The slot lock serialises concurrent
// requests for the same department, date and time; the repository's unique
// constraint is the final guard if the lock is lost.
func (s *Service) Book(ctx context.Context, req BookRequest) (*Appointment, error) {
	if err := s.validateBooking(ctx, req); err != nil {
		return nil, err
	}

	key := SlotKey{Department: req.Department, Date: calendar.Day(req.SlotDate), Time: req.SlotTime}
	var created *Appointment

	err := s.locker.WithSlotLock(ctx, key.String(), func(lockCtx context.Context) error {
		// Inside the critical section re-check the taken set for this slot
		taken, err := s.repo.TakenSlots(lockCtx, key.Department, key.Date)
		if err != nil {
			return fmt.Errorf("check taken slots: %w", err)
		}
		for _, label := range taken {
			if label == key.Time {
				return ErrSlotTaken
			}
		}

		appt, err := s.repo.Create(lockCtx, NewAppointment{
			UserID:       req.UserID,
			Department:   key.Department,
			SlotDate:     key.Date,
			SlotTime:     key.Time,
			Symptoms:     req.Symptoms,
			OtherSymptom: strings.TrimSpace(req.OtherSymptom),
			ReferralRef:  req.ReferralRef,
		})
		if err != nil {
			if errors.Is(err, ErrSlotTaken) {
				return err
			}
			return fmt.Errorf("create appointment: %w", err)
		}

		created = appt
		s.logEvent(lockCtx, appt.ID, EventAppointmentBooked, map[string]any{
			"user_id":    req.UserID.String(),
			"department": key.Department,
			"slot_date":  calendar.FormatToken(key.Date),
			"slot_time":  key.Time,
		})
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	return created, nil
}

// Validate runs Book's checks without touching the slot.
func (s *Service) Validate(ctx context.Context, req BookRequest) error {
	return s.validateBooking(ctx, req)
}

func (s *Service) validateBooking(ctx context.Context, req BookRequest) error {
	if req.UserID == uuid.Nil {
		return fault.ErrAuthRequired
	}
	if strings.TrimSpace(req.Department) == "" {
		return fault.Invalid("department", "department is required")
	}
	if _, err := s.repo.GetDepartment(ctx, req.Department); err != nil {
		if errors.Is(err, ErrDepartmentNotFound) {
			return fault.Invalid("department", "unknown department")
		}
		return fmt.Errorf("load department: %w", err)
	}
	if err := s.cal.ValidateDate(s.now(), req.SlotDate); err != nil {
		return err
	}
	if !s.cal.HasSlot(req.SlotTime) {
		return fault.Invalid("time", "time is not a bookable slot")
	}
	return ValidateSymptoms(req.Symptoms, req.OtherSymptom)
}

// ValidateSymptoms checks the checklist against Symptoms and requires a
// description when SymptomOther is selected.
func ValidateSymptoms(symptoms []string, other string) error {
	known := make(map[string]bool, len(Symptoms))
	for _, s := range Symptoms {
		known[s] = true
	}
	for _, s := range symptoms {
		if !known[s] {
			return fault.Invalid("symptoms", fmt.Sprintf("unknown symptom %q", s))
		}
		if s == SymptomOther && strings.TrimSpace(other) == "" {
			return fault.Invalid("otherSymptom", "please describe the other symptom")
		}
	}
	return nil
}

// Cancel moves a Booked appointment to Cancelled. The record is kept.
func (s *Service) Cancel(ctx context.Context, userID, id uuid.UUID) (*Appointment, error) {
	if err := s.checkTransition(ctx, userID, id, StateCancelled); err != nil {
		return nil, err
	}

	updated, err := s.repo.Cancel(ctx, id, userID)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Lost a race with another transition.
			return nil, ErrInvalidStatusTransition
		}
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	s.logEvent(ctx, id, EventAppointmentCancelled, map[string]any{})
	return updated, nil
}

// Delete removes a Cancelled appointment.
func (s *Service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	if err := s.checkTransition(ctx, userID, id, StateDeleted); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id, userID); err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return ErrInvalidStatusTransition
		}
		return fmt.Errorf("delete appointment: %w", err)
	}

	s.logEvent(ctx, id, EventAppointmentDeleted, map[string]any{})
	return nil
}

// checkTransition treats unknown ids and other users' appointments the same
// way as an illegal state.
func (s *Service) checkTransition(ctx context.Context, userID, id uuid.UUID, to State) error {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return fmt.Errorf("%w: unknown appointment %s", ErrInvalidStatusTransition, id)
		}
		return fmt.Errorf("load appointment: %w", err)
	}
	if appt.UserID != userID {
		return fmt.Errorf("%w: unknown appointment %s", ErrInvalidStatusTransition, id)
	}
	if !CanTransition(appt.State(), to) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidStatusTransition, appt.State(), to)
	}
	return nil
}

// CompletePastAppointments is intended to be called by the completion worker
// periodically. It completes Booked appointments whose slot start has passed.
func (s *Service) CompletePastAppointments(ctx context.Context) (int, error) {
	now := s.now()
	candidates, err := s.repo.FindBookedUpTo(ctx, calendar.Day(now))
	if err != nil {
		return 0, fmt.Errorf("find booked appointments: %w", err)
	}

	completed := 0
	for _, appt := range candidates {
		start, err := SlotStart(appt.SlotDate, appt.SlotTime, now.Location())
		if err != nil {
			s.log.WithField("appointment_id", appt.ID).Warnf("skipping appointment with bad slot time: %v", err)
			continue
		}
		if !start.Before(now) {
			continue
		}

		_, err = s.repo.Complete(ctx, appt.ID)
		if err != nil {
			if !errors.Is(err, ErrAppointmentNotFound) {
				s.log.WithField("appointment_id", appt.ID).Errorf("failed to complete appointment: %v", err)
			}
			continue
		}
		completed++
		s.logEvent(ctx, appt.ID, EventAppointmentCompleted, map[string]any{
			"reason": "worker",
		})
	}

	return completed, nil
}

// SlotStart combines a slot day and grid label into a wall-clock time in loc.
func SlotStart(day time.Time, label string, loc *time.Location) (time.Time, error) {
	clock, err := time.Parse(calendar.LabelLayout, label)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse slot time %q: %w", label, err)
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, clock.Hour(), clock.Minute(), 0, 0, loc), nil
}

func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]Appointment, error) {
	appointments, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appointments, nil
}

// TakenSlots returns the labels already held for a department and day.
func (s *Service) TakenSlots(ctx context.Context, department string, date time.Time) ([]string, error) {
	if strings.TrimSpace(department) == "" {
		return nil, fault.Invalid("department", "department is required")
	}
	taken, err := s.repo.TakenSlots(ctx, department, calendar.Day(date))
	if err != nil {
		return nil, fmt.Errorf("taken slots: %w", err)
	}
	return taken, nil
}

func (s *Service) Departments(ctx context.Context) ([]Department, error) {
	departments, err := s.repo.ListDepartments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	return departments, nil
}

func (s *Service) MarkRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	n, err := s.repo.MarkRead(ctx, userID, ids)
	if err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"user_id": userID, "requested": len(ids), "updated": n}).Debug("appointments marked read")
	return nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Errorf("failed to marshal event payload for %s: %v", eventType, err)
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Errorf("failed to insert event log %s for appointment %s: %v", eventType, appointmentID, err)
	}
}
