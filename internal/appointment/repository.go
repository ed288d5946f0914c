package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-portal/internal/fault"
)

var (
	ErrAppointmentNotFound = fmt.Errorf("appointment %w", fault.ErrNotFound)
	ErrDepartmentNotFound  = fmt.Errorf("department %w", fault.ErrNotFound)
	ErrSlotTaken           = fmt.Errorf("%w: department, date and time already booked", fault.ErrSlotConflict)
)

// Repository contains all store interactions needed by the service.
type Repository interface {
	ListDepartments(ctx context.Context) ([]Department, error)
	GetDepartment(ctx context.Context, name string) (*Department, error)

	// ListByUser returns the user's appointments, newest first.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Appointment, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// TakenSlots returns the time labels held by non-cancelled appointments.
	TakenSlots(ctx context.Context, department string, date time.Time) ([]string, error)

	// Create returns ErrSlotTaken when the slot uniqueness constraint fires.
	Create(ctx context.Context, in NewAppointment) (*Appointment, error)

	// Conditional updates. They return ErrAppointmentNotFound when no row is
	// in the required source state.
	Cancel(ctx context.Context, id, userID uuid.UUID) (*Appointment, error)
	Delete(ctx context.Context, id, userID uuid.UUID) error
	Complete(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// Completion worker
	FindBookedUpTo(ctx context.Context, day time.Time) ([]Appointment, error)

	// MarkRead flips the read flag for the user's listed appointments.
	MarkRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
