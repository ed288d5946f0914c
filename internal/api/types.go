package api

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-portal/internal/appointment"
	"github.com/hackgods/clinic-portal/internal/calendar"
	"github.com/hackgods/clinic-portal/internal/healthrecord"
)

// RecordDateLayout is the wire format of health record dates.
const RecordDateLayout = "2006-01-02"

// Item types accepted by mark-as-read.
const (
	ItemTypeAppointment  = "appointment"
	ItemTypeHealthRecord = "health-record"
)

type AppointmentResponse struct {
	ID             uuid.UUID `json:"_id"`
	UserID         uuid.UUID `json:"userId"`
	Department     string    `json:"departmentname"`
	SlotDate       string    `json:"slotDate"`
	SlotTime       string    `json:"slotTime"`
	Symptoms       []string  `json:"symptoms"`
	OtherSymptom   string    `json:"otherSymptom,omitempty"`
	ReferralLetter string    `json:"referralLetter,omitempty"`
	Read           bool      `json:"read"`
	Cancelled      bool      `json:"cancelled"`
	IsCompleted    bool      `json:"isCompleted"`
	CreatedAt      time.Time `json:"createdAt"`
}

func NewAppointmentResponse(a appointment.Appointment) AppointmentResponse {
	symptoms := a.Symptoms
	if symptoms == nil {
		symptoms = []string{}
	}
	return AppointmentResponse{
		ID:             a.ID,
		UserID:         a.UserID,
		Department:     a.Department,
		SlotDate:       calendar.FormatToken(a.SlotDate),
		SlotTime:       a.SlotTime,
		Symptoms:       symptoms,
		OtherSymptom:   a.OtherSymptom,
		ReferralLetter: a.ReferralRef,
		Read:           a.Read,
		Cancelled:      a.Cancelled,
		IsCompleted:    a.Completed,
		CreatedAt:      a.CreatedAt,
	}
}

// Appointment converts the wire form back to the domain model.
func (r AppointmentResponse) Appointment() (appointment.Appointment, error) {
	date, err := calendar.ParseToken(r.SlotDate)
	if err != nil {
		return appointment.Appointment{}, fmt.Errorf("appointment %s: %w", r.ID, err)
	}
	return appointment.Appointment{
		ID:           r.ID,
		UserID:       r.UserID,
		Department:   r.Department,
		SlotDate:     date,
		SlotTime:     r.SlotTime,
		Symptoms:     r.Symptoms,
		OtherSymptom: r.OtherSymptom,
		ReferralRef:  r.ReferralLetter,
		Read:         r.Read,
		Cancelled:    r.Cancelled,
		Completed:    r.IsCompleted,
		CreatedAt:    r.CreatedAt,
	}, nil
}

type HealthRecordResponse struct {
	ID            uuid.UUID `json:"_id"`
	UserID        uuid.UUID `json:"userId"`
	Date          string    `json:"date"`
	Weight        *float64  `json:"weight,omitempty"`
	Height        *float64  `json:"height,omitempty"`
	BloodPressure *string   `json:"bloodPressure,omitempty"`
	HeartRate     *int      `json:"heartRate,omitempty"`
	Diagnosis     *string   `json:"diagnosis,omitempty"`
	Notes         *string   `json:"notes,omitempty"`
	Read          bool      `json:"read"`
	CreatedAt     time.Time `json:"createdAt"`
}

func NewHealthRecordResponse(r healthrecord.Record) HealthRecordResponse {
	return HealthRecordResponse{
		ID:            r.ID,
		UserID:        r.UserID,
		Date:          r.Date.Format(RecordDateLayout),
		Weight:        r.Weight,
		Height:        r.Height,
		BloodPressure: r.BloodPressure,
		HeartRate:     r.HeartRate,
		Diagnosis:     r.Diagnosis,
		Notes:         r.Notes,
		Read:          r.Read,
		CreatedAt:     r.CreatedAt,
	}
}

func (r HealthRecordResponse) Record() (healthrecord.Record, error) {
	date, err := time.Parse(RecordDateLayout, r.Date)
	if err != nil {
		return healthrecord.Record{}, fmt.Errorf("health record %s: %w", r.ID, err)
	}
	return healthrecord.Record{
		ID:            r.ID,
		UserID:        r.UserID,
		Date:          date,
		Weight:        r.Weight,
		Height:        r.Height,
		BloodPressure: r.BloodPressure,
		HeartRate:     r.HeartRate,
		Diagnosis:     r.Diagnosis,
		Notes:         r.Notes,
		Read:          r.Read,
		CreatedAt:     r.CreatedAt,
	}, nil
}

type DepartmentResponse struct {
	Name string `json:"name"`
	Icon string `json:"icon"`
}

// Requests

type CancelAppointmentRequest struct {
	AppointmentID string `json:"appointmentId" validate:"required,uuid"`
}

type CreateHealthRecordRequest struct {
	Date          string   `json:"date" validate:"required"`
	Weight        *float64 `json:"weight,omitempty"`
	Height        *float64 `json:"height,omitempty"`
	BloodPressure *string  `json:"bloodPressure,omitempty"`
	HeartRate     *int     `json:"heartRate,omitempty"`
	Diagnosis     *string  `json:"diagnosis,omitempty"`
	Notes         *string  `json:"notes,omitempty"`
}

type MarkReadItem struct {
	ID   string `json:"_id" validate:"required,uuid"`
	Type string `json:"type" validate:"required,oneof=appointment health-record"`
}

type MarkReadRequest struct {
	Items []MarkReadItem `json:"items" validate:"required,min=1,dive"`
}

// Envelopes

type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type ErrorResponse struct {
	Success bool              `json:"success"`
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type CheckSlotResponse struct {
	Envelope
	Unavailable []string `json:"unavailable"`
}

type AppointmentEnvelope struct {
	Envelope
	Appointment AppointmentResponse `json:"appointment"`
}

type AppointmentsEnvelope struct {
	Envelope
	Appointments []AppointmentResponse `json:"appointments"`
}

type HealthRecordEnvelope struct {
	Envelope
	Record HealthRecordResponse `json:"record"`
}

type HealthRecordsEnvelope struct {
	Envelope
	Records []HealthRecordResponse `json:"records"`
}

type DepartmentsEnvelope struct {
	Envelope
	Departments []DepartmentResponse `json:"departments"`
}
