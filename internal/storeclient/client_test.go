package storeclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hackgods/clinic-portal/internal/api"
	"github.com/hackgods/clinic-portal/internal/appointment"
	"github.com/hackgods/clinic-portal/internal/auth"
	"github.com/hackgods/clinic-portal/internal/availability"
	"github.com/hackgods/clinic-portal/internal/booking"
	"github.com/hackgods/clinic-portal/internal/calendar"
	"github.com/hackgods/clinic-portal/internal/fault"
	"github.com/hackgods/clinic-portal/internal/healthrecord"
	"github.com/hackgods/clinic-portal/internal/notification"
	redisclient "github.com/hackgods/clinic-portal/internal/redis"
	"github.com/hackgods/clinic-portal/internal/referral"
	"github.com/hackgods/clinic-portal/internal/session"
)

// Tuesday; Thursday 12 June 2025 is the booking day.
var testNow = time.Date(2025, time.June, 10, 8, 0, 0, 0, time.Local)

var bookingDay = time.Date(2025, time.June, 12, 0, 0, 0, 0, time.Local)

func clock() time.Time { return testNow }

type harness struct {
	client *Client
	tokens *auth.Tokens
	log    *logrus.Logger
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	repo := appointment.NewMemoryRepository(
		appointment.Department{Name: "Dermatologist", Icon: "derm.svg"},
		appointment.Department{Name: "Cardiology", Icon: "cardio.svg"},
	)
	tokens := auth.NewTokens("test-secret")

	handler := api.NewRouter(api.RouterConfig{
		Appointments:  appointment.NewService(repo, redisclient.NewLocalSlotLocker(), calendar.Default(), log).WithClock(clock),
		HealthRecords: healthrecord.NewService(healthrecord.NewMemoryRepository(), log),
		Referrals:     referral.NewService(referral.NewMemoryStore(), 1<<20),
		Tokens:        tokens,
		Log:           log,
		Env:           "test",
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return &harness{client: New(srv.URL, srv.Client()), tokens: tokens, log: log}
}

func (h *harness) login(t *testing.T) session.Session {
	t.Helper()
	id := uuid.New()
	token, err := h.tokens.Issue(id, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return session.New(token, id)
}

func (h *harness) manager() *booking.Manager {
	cal := calendar.Default()
	resolver := availability.NewResolver(h.client, cal).WithClock(clock)
	return booking.NewManager(h.client, resolver, cal, h.log)
}

// ---------- Error mapping ----------

func TestDecodeError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"validation", http.StatusBadRequest, `{"success":false,"code":"validation","message":"bad","fields":{"date":"required"}}`, fault.ErrValidation},
		{"validation without fields", http.StatusBadRequest, `{}`, fault.ErrValidation},
		{"unauthorized", http.StatusUnauthorized, `{"code":"auth_required"}`, fault.ErrAuthRequired},
		{"forbidden", http.StatusForbidden, ``, fault.ErrAuthRequired},
		{"not found", http.StatusNotFound, `{"code":"not_found"}`, fault.ErrNotFound},
		{"slot conflict", http.StatusConflict, `{"code":"slot_conflict","message":"taken"}`, fault.ErrSlotConflict},
		{"illegal transition", http.StatusConflict, `{"code":"illegal_transition"}`, fault.ErrIllegalTransition},
		{"server error", http.StatusInternalServerError, `{"code":"internal"}`, fault.ErrUnavailable},
		{"bad gateway html", http.StatusBadGateway, `<html>oops</html>`, fault.ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := New(srv.URL, srv.Client())
			_, err := c.ListAppointments(context.Background(), session.New("t", uuid.New()))
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestTransportFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(url, &http.Client{Timeout: time.Second})
	_, err := c.TakenSlots(context.Background(), session.New("t", uuid.New()), "Cardiology", bookingDay)
	if !errors.Is(err, fault.ErrUnavailable) {
		t.Errorf("expected unavailable, got %v", err)
	}
}

func TestMissingTokenIsAuthRequired(t *testing.T) {
	h := newHarness(t)
	_, err := h.client.ListAppointments(context.Background(), session.Session{})
	if !errors.Is(err, fault.ErrAuthRequired) {
		t.Errorf("expected auth required, got %v", err)
	}
}

// ---------- Booking over HTTP ----------

func TestBookThenSlotShowsTaken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sess := h.login(t)
	mgr := h.manager()

	created, err := mgr.Submit(ctx, sess, booking.Request{
		Department: "Dermatologist",
		Date:       bookingDay,
		Time:       "09:00 AM",
		Symptoms:   []string{"Fever"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.Department != "Dermatologist" || !created.SlotDate.Equal(calendar.Day(bookingDay)) || created.SlotTime != "09:00 AM" {
		t.Errorf("unexpected appointment: %+v", created)
	}

	taken, err := h.client.TakenSlots(ctx, sess, "Dermatologist", bookingDay)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(taken) != 1 || taken[0] != "09:00 AM" {
		t.Errorf("expected 09:00 AM taken, got %v", taken)
	}

	views := mgr.Views()
	if len(views) != 1 || !views[0].CanCancel || views[0].CanDelete {
		t.Errorf("unexpected views: %+v", views)
	}
}

func TestConcurrentSubmitOneConflict(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sessions := []session.Session{h.login(t), h.login(t)}

	var wg sync.WaitGroup
	errs := make([]error, len(sessions))
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.manager().Submit(ctx, sessions[i], booking.Request{
				Department: "Cardiology",
				Date:       bookingDay,
				Time:       "10:30 AM",
			})
		}(i)
	}
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		var cerr *booking.ConflictError
		switch {
		case err == nil:
			ok++
		case errors.As(err, &cerr):
			conflicts++
			if !errors.Is(err, fault.ErrSlotConflict) {
				t.Errorf("conflict does not unwrap to slot conflict: %v", err)
			}
			for _, s := range cerr.Slots {
				if s.Label == "10:30 AM" && s.Available {
					t.Error("re-resolved grid still offers the contested slot")
				}
			}
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || conflicts != 1 {
		t.Errorf("expected 1 success and 1 conflict, got %d / %d", ok, conflicts)
	}
}

func TestReferralRoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sess := h.login(t)

	pdf := []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF\n")
	created, err := h.client.SubmitAppointment(ctx, sess, booking.Submission{
		Department:   "Dermatologist",
		Date:         bookingDay,
		Time:         "11:00 AM",
		Symptoms:     []string{"Others"},
		OtherSymptom: "rash",
		Referral:     &booking.Referral{Name: "letter.pdf", Content: pdf},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.ReferralRef == "" || created.OtherSymptom != "rash" {
		t.Fatalf("unexpected appointment: %+v", created)
	}

	content, ctype, err := h.client.Referral(ctx, sess, created.ReferralRef)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(content) != string(pdf) || ctype != "application/pdf" {
		t.Errorf("unexpected referral: %q (%s)", content, ctype)
	}

	if _, _, err := h.client.Referral(ctx, h.login(t), created.ReferralRef); !errors.Is(err, fault.ErrNotFound) {
		t.Errorf("expected not found for another user, got %v", err)
	}
}

func TestLifecycleOverHTTP(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sess := h.login(t)
	mgr := h.manager()

	created, err := mgr.Submit(ctx, sess, booking.Request{Department: "Cardiology", Date: bookingDay, Time: "02:00 PM"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Deleting a live appointment is rejected locally.
	if err := mgr.Delete(ctx, sess, created.ID); !errors.Is(err, fault.ErrIllegalTransition) {
		t.Fatalf("expected illegal transition, got %v", err)
	}

	cancelled, err := mgr.Cancel(ctx, sess, created.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cancelled.Cancelled {
		t.Error("expected cancelled flag")
	}

	// The store rejects a second cancel even when the local check is bypassed.
	if _, err := h.client.CancelAppointment(ctx, sess, created.ID); !errors.Is(err, fault.ErrIllegalTransition) {
		t.Errorf("expected illegal transition from store, got %v", err)
	}

	if err := mgr.Delete(ctx, sess, created.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mgr.Views()) != 0 {
		t.Errorf("expected empty list after delete, got %d", len(mgr.Views()))
	}
}

func TestDepartments(t *testing.T) {
	h := newHarness(t)
	depts, err := h.client.Departments(context.Background(), h.login(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(depts) != 2 {
		t.Errorf("expected 2 departments, got %d", len(depts))
	}
}

// ---------- Health records and notifications ----------

func TestHealthRecordsAndNotifications(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sess := h.login(t)

	records := booking.NewRecords(h.client, h.log)
	weight := 71.5
	rec, err := records.Create(ctx, sess, booking.RecordInput{
		Date:   time.Date(2025, time.June, 9, 0, 0, 0, 0, time.UTC),
		Weight: &weight,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Date.Format(api.RecordDateLayout) != "2025-06-09" || rec.Weight == nil || *rec.Weight != weight {
		t.Errorf("unexpected record: %+v", rec)
	}

	if _, err := h.manager().Submit(ctx, sess, booking.Request{Department: "Dermatologist", Date: bookingDay, Time: "09:30 AM"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	agg := notification.NewAggregator(h.client, h.log)
	items, err := agg.Refresh(ctx, sess)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 || !agg.HasUnread() {
		t.Fatalf("expected 2 unread items, got %+v", items)
	}
	if items[0].Subtitle != "12/6/2025 | 09:30 AM" || items[1].Subtitle != "9 Jun 2025" {
		t.Errorf("unexpected subtitles: %q, %q", items[0].Subtitle, items[1].Subtitle)
	}

	if err := agg.Open(ctx, sess); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if agg.HasUnread() {
		t.Error("expected badge cleared after open")
	}
	// The read record drops out of the feed; the appointment stays as read.
	feed := agg.Feed()
	if len(feed) != 1 || feed[0].Kind != notification.KindAppointment || !feed[0].Read {
		t.Errorf("unexpected feed after open: %+v", feed)
	}

	if err := records.Delete(ctx, sess, rec.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := h.client.DeleteHealthRecord(ctx, sess, rec.ID); !errors.Is(err, fault.ErrNotFound) {
		t.Errorf("expected not found on second delete, got %v", err)
	}
}
