package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hackgods/clinic-portal/internal/appointment"
	"github.com/hackgods/clinic-portal/internal/calendar"
	"github.com/hackgods/clinic-portal/internal/fault"
	"github.com/hackgods/clinic-portal/internal/healthrecord"
	"github.com/hackgods/clinic-portal/internal/referral"
)

type handlers struct {
	appointments *appointment.Service
	records      *healthrecord.Service
	referrals    *referral.Service
	maxUpload    int64
	validate     *fault.Validator
	log          logrus.FieldLogger
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, h.log, err)
}

func (h *handlers) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fault.Invalid("body", "could not parse JSON")
	}
	return h.validate.Struct(dst)
}

func (h *handlers) checkSlot(w http.ResponseWriter, r *http.Request) {
	department := r.URL.Query().Get("department")
	date, err := calendar.ParseToken(r.URL.Query().Get("date"))
	if err != nil {
		h.fail(w, r, fault.Invalid("date", "date must be d_m_yyyy"))
		return
	}

	taken, err := h.appointments.TakenSlots(r.Context(), department, date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if taken == nil {
		taken = []string{}
	}

	writeJSON(w, http.StatusOK, CheckSlotResponse{
		Envelope:    Envelope{Success: true},
		Unavailable: taken,
	})
}

func (h *handlers) bookAppointment(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+1<<20)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		h.fail(w, r, fault.Invalid("body", "could not parse form"))
		return
	}

	if raw := r.FormValue("userId"); raw != "" && raw != userID.String() {
		h.fail(w, r, fmt.Errorf("%w: userId does not match session", fault.ErrAuthRequired))
		return
	}

	date, err := calendar.ParseToken(r.FormValue("slotDate"))
	if err != nil {
		h.fail(w, r, fault.Invalid("date", "slotDate must be d_m_yyyy"))
		return
	}

	req := appointment.BookRequest{
		UserID:       userID,
		Department:   r.FormValue("departmentname"),
		SlotDate:     date,
		SlotTime:     r.FormValue("slotTime"),
		Symptoms:     formSymptoms(r),
		OtherSymptom: r.FormValue("otherSymptom"),
	}

	// Validate before storing an upload; a letter stored for a booking that still fails is discarded below.
	if err := h.appointments.Validate(r.Context(), req); err != nil {
		h.fail(w, r, err)
		return
	}

	file, header, err := r.FormFile("referralLetter")
	switch {
	case err == nil:
		defer file.Close()
		content, err := io.ReadAll(file)
		if err != nil {
			h.fail(w, r, fault.Invalid("referralLetter", "could not read upload"))
			return
		}
		ref, err := h.referrals.Save(r.Context(), userID, header.Filename, content)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		req.ReferralRef = ref
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	default:
		h.fail(w, r, fault.Invalid("referralLetter", "could not read upload"))
		return
	}

	appt, err := h.appointments.Book(r.Context(), req)
	if err != nil {
		if derr := h.referrals.Discard(context.WithoutCancel(r.Context()), req.ReferralRef); derr != nil {
			h.log.WithError(derr).WithField("ref", req.ReferralRef).Warn("could not discard referral letter")
		}
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, AppointmentEnvelope{
		Envelope:    Envelope{Success: true, Message: "Appointment booked"},
		Appointment: NewAppointmentResponse(*appt),
	})
}

// formSymptoms accepts both "symptoms" and "symptoms[]" keys.
func formSymptoms(r *http.Request) []string {
	var out []string
	for _, key := range []string{"symptoms", "symptoms[]"} {
		for _, v := range r.Form[key] {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

func (h *handlers) listAppointments(w http.ResponseWriter, r *http.Request) {
	appointments, err := h.appointments.List(r.Context(), GetUserID(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := AppointmentsEnvelope{
		Envelope:     Envelope{Success: true},
		Appointments: make([]AppointmentResponse, 0, len(appointments)),
	}
	for _, a := range appointments {
		resp.Appointments = append(resp.Appointments, NewAppointmentResponse(a))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) cancelAppointment(w http.ResponseWriter, r *http.Request) {
	var req CancelAppointmentRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	id, err := uuid.Parse(req.AppointmentID)
	if err != nil {
		h.fail(w, r, fault.Invalid("appointmentId", "appointmentId must be a valid UUID"))
		return
	}

	appt, err := h.appointments.Cancel(r.Context(), GetUserID(r.Context()), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, AppointmentEnvelope{
		Envelope:    Envelope{Success: true, Message: "Appointment cancelled"},
		Appointment: NewAppointmentResponse(*appt),
	})
}

func (h *handlers) deleteAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, fault.Invalid("id", "id must be a valid UUID"))
		return
	}

	if err := h.appointments.Delete(r.Context(), GetUserID(r.Context()), id); err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, Envelope{Success: true, Message: "Appointment deleted"})
}

func (h *handlers) listHealthRecords(w http.ResponseWriter, r *http.Request) {
	records, err := h.records.List(r.Context(), GetUserID(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := HealthRecordsEnvelope{
		Envelope: Envelope{Success: true},
		Records:  make([]HealthRecordResponse, 0, len(records)),
	}
	for _, rec := range records {
		resp.Records = append(resp.Records, NewHealthRecordResponse(rec))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) createHealthRecord(w http.ResponseWriter, r *http.Request) {
	var req CreateHealthRecordRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	date, err := time.Parse(RecordDateLayout, req.Date)
	if err != nil {
		h.fail(w, r, fault.Invalid("date", "date must be YYYY-MM-DD"))
		return
	}

	rec, err := h.records.Create(r.Context(), healthrecord.NewRecord{
		UserID:        GetUserID(r.Context()),
		Date:          date,
		Weight:        req.Weight,
		Height:        req.Height,
		BloodPressure: req.BloodPressure,
		HeartRate:     req.HeartRate,
		Diagnosis:     req.Diagnosis,
		Notes:         req.Notes,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, HealthRecordEnvelope{
		Envelope: Envelope{Success: true, Message: "Health record added"},
		Record:   NewHealthRecordResponse(*rec),
	})
}

func (h *handlers) deleteHealthRecord(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, healthrecord.ErrRecordNotFound)
		return
	}

	if err := h.records.Delete(r.Context(), GetUserID(r.Context()), id); err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, Envelope{Success: true, Message: "Health record deleted"})
}

func (h *handlers) markAsRead(w http.ResponseWriter, r *http.Request) {
	var req MarkReadRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	var appointmentIDs, recordIDs []uuid.UUID
	for _, item := range req.Items {
		id, err := uuid.Parse(item.ID)
		if err != nil {
			h.fail(w, r, fault.Invalid("items", "every item needs a valid _id"))
			return
		}
		if item.Type == ItemTypeAppointment {
			appointmentIDs = append(appointmentIDs, id)
		} else {
			recordIDs = append(recordIDs, id)
		}
	}

	userID := GetUserID(r.Context())
	if err := h.appointments.MarkRead(r.Context(), userID, appointmentIDs); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.records.MarkRead(r.Context(), userID, recordIDs); err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, Envelope{Success: true, Message: "Notifications marked as read"})
}

func (h *handlers) listDepartments(w http.ResponseWriter, r *http.Request) {
	departments, err := h.appointments.Departments(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := DepartmentsEnvelope{
		Envelope:    Envelope{Success: true},
		Departments: make([]DepartmentResponse, 0, len(departments)),
	}
	for _, d := range departments {
		resp.Departments = append(resp.Departments, DepartmentResponse{Name: d.Name, Icon: d.Icon})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) getReferral(w http.ResponseWriter, r *http.Request) {
	letter, err := h.referrals.Open(r.Context(), GetUserID(r.Context()), chi.URLParam(r, "ref"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", letter.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", letter.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(letter.Content)
}
