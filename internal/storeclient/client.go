// Package storeclient talks to the clinic store over HTTP. It implements the
// store ports of the availability, booking and notification packages and
// maps every response onto the fault taxonomy.
package storeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-portal/internal/api"
	"github.com/hackgods/clinic-portal/internal/appointment"
	"github.com/hackgods/clinic-portal/internal/booking"
	"github.com/hackgods/clinic-portal/internal/calendar"
	"github.com/hackgods/clinic-portal/internal/fault"
	"github.com/hackgods/clinic-portal/internal/healthrecord"
	"github.com/hackgods/clinic-portal/internal/notification"
	"github.com/hackgods/clinic-portal/internal/session"
)

type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for the store at baseURL. A nil httpClient gets a
// default one with a 10 second timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: baseURL, http: httpClient}
}

// ---------- Transport ----------

func (c *Client) newRequest(ctx context.Context, sess session.Session, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set(api.TokenHeader, sess.Token)
	return req, nil
}

// do sends req and decodes a 2xx body into out (when out is non-nil).
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fault.Unavailable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fault.Unavailable(fmt.Errorf("decode %s %s: %w", req.Method, req.URL.Path, err))
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, sess session.Session, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, sess, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

// decodeError maps a non-2xx response onto the fault taxonomy.
func decodeError(resp *http.Response) error {
	var body api.ErrorResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &body); err != nil || body.Message == "" {
		body.Message = http.StatusText(resp.StatusCode)
	}

	switch {
	case resp.StatusCode == http.StatusBadRequest:
		fields := body.Fields
		if len(fields) == 0 {
			fields = map[string]string{"request": body.Message}
		}
		return &fault.ValidationError{Fields: fields}
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", fault.ErrAuthRequired, body.Message)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", fault.ErrNotFound, body.Message)
	case resp.StatusCode == http.StatusConflict:
		if body.Code == string(fault.KindSlotConflict) {
			return fmt.Errorf("%w: %s", fault.ErrSlotConflict, body.Message)
		}
		return fmt.Errorf("%w: %s", fault.ErrIllegalTransition, body.Message)
	case resp.StatusCode >= 500:
		return fault.Unavailable(fmt.Errorf("status %d: %s", resp.StatusCode, body.Message))
	default:
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body.Message)
	}
}

// ---------- Appointments ----------

func (c *Client) Departments(ctx context.Context, sess session.Session) ([]appointment.Department, error) {
	var resp api.DepartmentsEnvelope
	if err := c.doJSON(ctx, sess, http.MethodGet, "/api/user/departments", nil, &resp); err != nil {
		return nil, err
	}

	out := make([]appointment.Department, 0, len(resp.Departments))
	for _, d := range resp.Departments {
		out = append(out, appointment.Department{Name: d.Name, Icon: d.Icon})
	}
	return out, nil
}

func (c *Client) TakenSlots(ctx context.Context, sess session.Session, department string, date time.Time) ([]string, error) {
	q := url.Values{}
	q.Set("department", department)
	q.Set("date", calendar.FormatToken(date))

	var resp api.CheckSlotResponse
	if err := c.doJSON(ctx, sess, http.MethodGet, "/api/user/check-slot?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Unavailable, nil
}

func (c *Client) ListAppointments(ctx context.Context, sess session.Session) ([]appointment.Appointment, error) {
	var resp api.AppointmentsEnvelope
	if err := c.doJSON(ctx, sess, http.MethodGet, "/api/user/appointments", nil, &resp); err != nil {
		return nil, err
	}

	out := make([]appointment.Appointment, 0, len(resp.Appointments))
	for _, a := range resp.Appointments {
		appt, err := a.Appointment()
		if err != nil {
			return nil, fault.Unavailable(err)
		}
		out = append(out, appt)
	}
	return out, nil
}

func (c *Client) SubmitAppointment(ctx context.Context, sess session.Session, sub booking.Submission) (*appointment.Appointment, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fields := [][2]string{
		{"userId", sess.UserID.String()},
		{"departmentname", sub.Department},
		{"slotDate", calendar.FormatToken(sub.Date)},
		{"slotTime", sub.Time},
		{"otherSymptom", sub.OtherSymptom},
	}
	for _, s := range sub.Symptoms {
		fields = append(fields, [2]string{"symptoms", s})
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("write form: %w", err)
		}
	}
	if sub.Referral != nil {
		fw, err := mw.CreateFormFile("referralLetter", sub.Referral.Name)
		if err != nil {
			return nil, fmt.Errorf("write form: %w", err)
		}
		if _, err := fw.Write(sub.Referral.Content); err != nil {
			return nil, fmt.Errorf("write form: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("write form: %w", err)
	}

	req, err := c.newRequest(ctx, sess, http.MethodPost, "/api/user/book-appointment", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp api.AppointmentEnvelope
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	appt, err := resp.Appointment.Appointment()
	if err != nil {
		return nil, fault.Unavailable(err)
	}
	return &appt, nil
}

func (c *Client) CancelAppointment(ctx context.Context, sess session.Session, id uuid.UUID) (*appointment.Appointment, error) {
	var resp api.AppointmentEnvelope
	in := api.CancelAppointmentRequest{AppointmentID: id.String()}
	if err := c.doJSON(ctx, sess, http.MethodPost, "/api/user/cancel-appointment", in, &resp); err != nil {
		return nil, err
	}
	appt, err := resp.Appointment.Appointment()
	if err != nil {
		return nil, fault.Unavailable(err)
	}
	return &appt, nil
}

func (c *Client) DeleteAppointment(ctx context.Context, sess session.Session, id uuid.UUID) error {
	return c.doJSON(ctx, sess, http.MethodDelete, "/api/user/delete-appointment/"+id.String(), nil, nil)
}

// Referral downloads a referral letter and its content type.
func (c *Client) Referral(ctx context.Context, sess session.Session, ref string) ([]byte, string, error) {
	req, err := c.newRequest(ctx, sess, http.MethodGet, "/api/user/referral/"+url.PathEscape(ref), nil)
	if err != nil {
		return nil, "", err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fault.Unavailable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", decodeError(resp)
	}
	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fault.Unavailable(err)
	}
	return content, resp.Header.Get("Content-Type"), nil
}

// ---------- Health records ----------

func (c *Client) ListHealthRecords(ctx context.Context, sess session.Session) ([]healthrecord.Record, error) {
	var resp api.HealthRecordsEnvelope
	if err := c.doJSON(ctx, sess, http.MethodGet, "/api/user/health-records", nil, &resp); err != nil {
		return nil, err
	}

	out := make([]healthrecord.Record, 0, len(resp.Records))
	for _, r := range resp.Records {
		rec, err := r.Record()
		if err != nil {
			return nil, fault.Unavailable(err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (c *Client) CreateHealthRecord(ctx context.Context, sess session.Session, in booking.RecordInput) (*healthrecord.Record, error) {
	body := api.CreateHealthRecordRequest{
		Date:          in.Date.Format(api.RecordDateLayout),
		Weight:        in.Weight,
		Height:        in.Height,
		BloodPressure: in.BloodPressure,
		HeartRate:     in.HeartRate,
		Diagnosis:     in.Diagnosis,
		Notes:         in.Notes,
	}

	var resp api.HealthRecordEnvelope
	if err := c.doJSON(ctx, sess, http.MethodPost, "/api/user/health-record", body, &resp); err != nil {
		return nil, err
	}
	rec, err := resp.Record.Record()
	if err != nil {
		return nil, fault.Unavailable(err)
	}
	return &rec, nil
}

func (c *Client) DeleteHealthRecord(ctx context.Context, sess session.Session, id uuid.UUID) error {
	return c.doJSON(ctx, sess, http.MethodDelete, "/api/user/health-record/"+id.String(), nil, nil)
}

// ---------- Notifications ----------

func (c *Client) MarkRead(ctx context.Context, sess session.Session, items []notification.Item) error {
	if len(items) == 0 {
		return errors.New("mark read: no items")
	}

	body := api.MarkReadRequest{Items: make([]api.MarkReadItem, 0, len(items))}
	for _, it := range items {
		body.Items = append(body.Items, api.MarkReadItem{ID: it.SourceID.String(), Type: string(it.Kind)})
	}
	return c.doJSON(ctx, sess, http.MethodPost, "/api/user/mark-as-read", body, nil)
}
