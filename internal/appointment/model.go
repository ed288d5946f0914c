package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-portal/internal/calendar"
)

type State string

const (
	StateBooked    State = "booked"
	StateCancelled State = "cancelled"
	StateCompleted State = "completed"
	StateDeleted   State = "deleted"
)

// SymptomOther requires a free-text OtherSymptom when selected.
const SymptomOther = "Others"

// Symptoms is the checklist offered at booking time.
var Symptoms = []string{"Fever", "Cough", "Headache", "Nausea", "Body Pain", SymptomOther}

type Department struct {
	Name string
	Icon string
}

// DefaultDepartments backs the memory store and the seeder.
var DefaultDepartments = []Department{
	{Name: "General physician", Icon: "general_physician.svg"},
	{Name: "Dermatologist", Icon: "dermatologist.svg"},
	{Name: "Gynecologist", Icon: "gynecologist.svg"},
	{Name: "Pediatricians", Icon: "pediatricians.svg"},
	{Name: "Neurologist", Icon: "neurologist.svg"},
	{Name: "Gastroenterologist", Icon: "gastroenterologist.svg"},
}

type Appointment struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	Department   string
	SlotDate     time.Time // calendar day, UTC midnight
	SlotTime     string    // grid label
	Symptoms     []string
	OtherSymptom string
	ReferralRef  string
	Read         bool
	Cancelled    bool
	Completed    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// State derives the lifecycle state from the stored flags.
func (a *Appointment) State() State {
	switch {
	case a.Completed:
		return StateCompleted
	case a.Cancelled:
		return StateCancelled
	default:
		return StateBooked
	}
}

func (a *Appointment) Slot() SlotKey {
	return SlotKey{Department: a.Department, Date: a.SlotDate, Time: a.SlotTime}
}

// CanTransition reports whether from -> to is a legal lifecycle step.
// Completed and Deleted are terminal.
func CanTransition(from, to State) bool {
	switch from {
	case StateBooked:
		return to == StateCancelled || to == StateCompleted
	case StateCancelled:
		return to == StateDeleted
	default:
		return false
	}
}

// SlotKey identifies one bookable slot. At most one non-cancelled appointment
// may hold a given key.
type SlotKey struct {
	Department string
	Date       time.Time
	Time       string
}

func (k SlotKey) String() string {
	return k.Department + ":" + calendar.FormatToken(k.Date) + ":" + k.Time
}

type NewAppointment struct {
	UserID       uuid.UUID
	Department   string
	SlotDate     time.Time
	SlotTime     string
	Symptoms     []string
	OtherSymptom string
	ReferralRef  string
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
