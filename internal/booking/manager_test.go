package booking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hackgods/clinic-portal/internal/appointment"
	"github.com/hackgods/clinic-portal/internal/availability"
	"github.com/hackgods/clinic-portal/internal/calendar"
	"github.com/hackgods/clinic-portal/internal/fault"
	"github.com/hackgods/clinic-portal/internal/session"
)

// ---------- Fakes ----------

// Tuesday 10 June 2025.
var testNow = time.Date(2025, time.June, 10, 9, 0, 0, 0, time.UTC)

var thursday = time.Date(2025, time.June, 12, 0, 0, 0, 0, time.UTC)

type fakeStore struct {
	mu    sync.Mutex
	appts []appointment.Appointment // newest first
	calls map[string]int
	// takenOverride simulates another patient booking between check and submit.
	takenOverride map[string]bool
	cancelGate    chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{calls: make(map[string]int), takenOverride: make(map[string]bool)}
}

func (f *fakeStore) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeStore) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeStore) TakenSlots(_ context.Context, _ session.Session, department string, date time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["taken"]++

	var out []string
	for _, a := range f.appts {
		if !a.Cancelled && a.Department == department && a.SlotDate.Equal(date) {
			out = append(out, a.SlotTime)
		}
	}
	for k := range f.takenOverride {
		out = append(out, k)
	}
	return out, nil
}

func (f *fakeStore) ListAppointments(_ context.Context, _ session.Session) ([]appointment.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["list"]++
	return append([]appointment.Appointment(nil), f.appts...), nil
}

func (f *fakeStore) SubmitAppointment(_ context.Context, sess session.Session, sub Submission) (*appointment.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["submit"]++

	if f.takenOverride[sub.Time] {
		return nil, fmt.Errorf("store: %w", fault.ErrSlotConflict)
	}
	for _, a := range f.appts {
		if !a.Cancelled && a.Department == sub.Department && a.SlotDate.Equal(sub.Date) && a.SlotTime == sub.Time {
			return nil, fmt.Errorf("store: %w", fault.ErrSlotConflict)
		}
	}

	a := appointment.Appointment{
		ID:         uuid.New(),
		UserID:     sess.UserID,
		Department: sub.Department,
		SlotDate:   sub.Date,
		SlotTime:   sub.Time,
		Symptoms:   sub.Symptoms,
		CreatedAt:  testNow.Add(time.Duration(len(f.appts)) * time.Minute),
	}
	f.appts = append([]appointment.Appointment{a}, f.appts...)
	return &a, nil
}

func (f *fakeStore) CancelAppointment(_ context.Context, _ session.Session, id uuid.UUID) (*appointment.Appointment, error) {
	f.mu.Lock()
	gate := f.cancelGate
	f.calls["cancel"]++
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.appts {
		if f.appts[i].ID == id {
			if f.appts[i].State() != appointment.StateBooked {
				return nil, fault.ErrIllegalTransition
			}
			f.appts[i].Cancelled = true
			a := f.appts[i]
			return &a, nil
		}
	}
	return nil, fault.ErrIllegalTransition
}

func (f *fakeStore) DeleteAppointment(_ context.Context, _ session.Session, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["delete"]++

	for i := range f.appts {
		if f.appts[i].ID == id {
			if f.appts[i].State() != appointment.StateCancelled {
				return fault.ErrIllegalTransition
			}
			f.appts = append(f.appts[:i], f.appts[i+1:]...)
			return nil
		}
	}
	return fault.ErrIllegalTransition
}

func newTestManager(store *fakeStore) (*Manager, *availability.Resolver) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	cal := calendar.Default()
	resolver := availability.NewResolver(store, cal).WithClock(func() time.Time { return testNow })
	return NewManager(store, resolver, cal, log), resolver
}

func testSession() session.Session {
	return session.New("token", uuid.New())
}

func validRequest(label string) Request {
	return Request{
		Department: "Dermatologist",
		Date:       thursday,
		Time:       label,
		Symptoms:   []string{"Fever"},
	}
}

// ---------- Submit ----------

func TestSubmit_BooksAndMarksSlotTaken(t *testing.T) {
	store := newFakeStore()
	m, resolver := newTestManager(store)
	sess := testSession()

	appt, err := m.Submit(context.Background(), sess, validRequest("09:00 AM"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if appt.State() != appointment.StateBooked {
		t.Errorf("expected booked, got %s", appt.State())
	}
	if calendar.FormatToken(appt.SlotDate) != "12_6_2025" {
		t.Errorf("unexpected slot date %s", calendar.FormatToken(appt.SlotDate))
	}

	snap, ok := resolver.Latest()
	if !ok || snap.Available("09:00 AM") {
		t.Error("expected availability re-resolved with 09:00 AM taken")
	}

	views := m.Views()
	if len(views) != 1 || views[0].Appointment.ID != appt.ID || !views[0].CanCancel || views[0].CanDelete {
		t.Errorf("unexpected views after booking: %+v", views)
	}
}

func TestSubmit_LocalValidationNeverCallsStore(t *testing.T) {
	store := newFakeStore()
	m, _ := newTestManager(store)

	cases := map[string]struct {
		sess session.Session
		req  func() Request
		want error
	}{
		"no session":         {session.Session{}, func() Request { return validRequest("09:00 AM") }, fault.ErrAuthRequired},
		"missing department": {testSession(), func() Request { r := validRequest("09:00 AM"); r.Department = ""; return r }, fault.ErrValidation},
		"missing time":       {testSession(), func() Request { return validRequest("") }, fault.ErrValidation},
		"missing date":       {testSession(), func() Request { r := validRequest("09:00 AM"); r.Date = time.Time{}; return r }, fault.ErrValidation},
		"sunday":             {testSession(), func() Request { r := validRequest("09:00 AM"); r.Date = thursday.AddDate(0, 0, 3); return r }, fault.ErrValidation},
		"past":               {testSession(), func() Request { r := validRequest("09:00 AM"); r.Date = thursday.AddDate(0, 0, -7); return r }, fault.ErrValidation},
		"off grid":           {testSession(), func() Request { return validRequest("01:30 PM") }, fault.ErrValidation},
		"others without text": {testSession(), func() Request {
			r := validRequest("09:00 AM")
			r.Symptoms = []string{"Others"}
			return r
		}, fault.ErrValidation},
		"unknown symptom": {testSession(), func() Request {
			r := validRequest("09:00 AM")
			r.Symptoms = []string{"Sneezing"}
			return r
		}, fault.ErrValidation},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := m.Submit(context.Background(), tc.sess, tc.req()); !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}

	if n := store.totalCalls(); n != 0 {
		t.Errorf("expected no store calls, got %d", n)
	}
}

func TestSubmit_RejectsSlotShownTaken(t *testing.T) {
	store := newFakeStore()
	store.takenOverride["10:00 AM"] = true
	m, resolver := newTestManager(store)
	sess := testSession()

	if _, err := resolver.Resolve(context.Background(), sess, "Dermatologist", thursday); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := m.Submit(context.Background(), sess, validRequest("10:00 AM"))
	if !errors.Is(err, fault.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if store.count("submit") != 0 {
		t.Error("advisory check should have prevented the submit")
	}
}

func TestSubmit_ConflictReResolves(t *testing.T) {
	store := newFakeStore()
	m, _ := newTestManager(store)
	sess := testSession()

	// Slot gets taken after the patient looked at the grid.
	store.mu.Lock()
	store.takenOverride["11:00 AM"] = true
	store.mu.Unlock()

	_, err := m.Submit(context.Background(), sess, validRequest("11:00 AM"))
	if !errors.Is(err, fault.ErrSlotConflict) {
		t.Fatalf("expected slot conflict, got %v", err)
	}

	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected *ConflictError, got %T", err)
	}
	if len(conflict.Slots) != len(calendar.Default().FixedSlotGrid()) {
		t.Fatalf("expected fresh grid, got %d slots", len(conflict.Slots))
	}
	for _, s := range conflict.Slots {
		if s.Label == "11:00 AM" && s.Available {
			t.Error("expected 11:00 AM unavailable in re-resolved grid")
		}
	}
	if store.count("submit") != 1 {
		t.Errorf("expected exactly one submit, got %d", store.count("submit"))
	}
}

func TestSubmit_ConcurrentSameSlot(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, _ := newTestManager(store)
			_, results[i] = m.Submit(ctx, testSession(), validRequest("03:00 PM"))
		}(i)
	}
	wg.Wait()

	success, conflict := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			success++
		case errors.Is(err, fault.ErrSlotConflict), errors.Is(err, fault.ErrValidation):
			conflict++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if success != 1 || conflict != 1 {
		t.Errorf("expected one success and one rejection, got %d/%d", success, conflict)
	}
}

// ---------- Cancel / Delete ----------

func TestLifecycle_CancelThenDelete(t *testing.T) {
	store := newFakeStore()
	m, _ := newTestManager(store)
	sess := testSession()
	ctx := context.Background()

	appt, err := m.Submit(ctx, sess, validRequest("09:30 AM"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Booked cannot be deleted; rejected locally.
	before := store.count("delete")
	if err := m.Delete(ctx, sess, appt.ID); !errors.Is(err, fault.ErrIllegalTransition) {
		t.Fatalf("expected illegal transition, got %v", err)
	}
	if store.count("delete") != before {
		t.Error("delete of a booked appointment must not reach the store")
	}

	cancelled, err := m.Cancel(ctx, sess, appt.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cancelled.State() != appointment.StateCancelled {
		t.Errorf("expected cancelled, got %s", cancelled.State())
	}

	views := m.Views()
	if views[0].CanCancel || !views[0].CanDelete {
		t.Errorf("expected cancelled view deletable only, got %+v", views[0])
	}

	// Re-cancel is reported as illegal, which callers treat as no further action.
	_, err = m.Cancel(ctx, sess, appt.ID)
	if !errors.Is(err, fault.ErrIllegalTransition) || !fault.NoFurtherAction(err) {
		t.Errorf("expected illegal transition on re-cancel, got %v", err)
	}

	if err := m.Delete(ctx, sess, appt.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(m.Views()) != 0 {
		t.Error("expected deleted appointment gone after refetch")
	}
	if err := m.Delete(ctx, sess, appt.ID); !errors.Is(err, fault.ErrIllegalTransition) {
		t.Errorf("expected illegal transition on second delete, got %v", err)
	}
}

func TestLifecycle_CancelFreesSlotLocally(t *testing.T) {
	store := newFakeStore()
	m, resolver := newTestManager(store)
	sess := testSession()
	ctx := context.Background()

	appt, err := m.Submit(ctx, sess, validRequest("09:00 AM"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Validate(sess, validRequest("09:00 AM")); !errors.Is(err, fault.ErrValidation) {
		t.Fatalf("expected booked slot rejected locally, got %v", err)
	}

	if _, err := m.Cancel(ctx, sess, appt.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := resolver.Latest(); ok {
		t.Error("expected the stale snapshot dropped after cancel")
	}
	if err := m.Validate(sess, validRequest("09:00 AM")); err != nil {
		t.Errorf("expected the freed slot selectable again, got %v", err)
	}
}

func TestLifecycle_UnknownIDRejectedLocally(t *testing.T) {
	store := newFakeStore()
	m, _ := newTestManager(store)
	sess := testSession()
	ctx := context.Background()

	if _, err := m.Refresh(ctx, sess); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := m.Cancel(ctx, sess, uuid.New()); !errors.Is(err, fault.ErrIllegalTransition) {
		t.Errorf("expected illegal transition, got %v", err)
	}
	if store.count("cancel") != 0 {
		t.Error("unknown id must not reach the store")
	}
}

func TestLifecycle_CompletedIsTerminal(t *testing.T) {
	store := newFakeStore()
	m, _ := newTestManager(store)
	sess := testSession()
	ctx := context.Background()

	appt, err := m.Submit(ctx, sess, validRequest("08:00 AM"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The clinic completes it out of band.
	store.mu.Lock()
	store.appts[0].Completed = true
	store.mu.Unlock()

	views, err := m.Refresh(ctx, sess)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if views[0].CanCancel || views[0].CanDelete {
		t.Errorf("completed appointment must offer no actions, got %+v", views[0])
	}
	if _, err := m.Cancel(ctx, sess, appt.ID); !errors.Is(err, fault.ErrIllegalTransition) {
		t.Errorf("expected illegal transition, got %v", err)
	}
	if err := m.Delete(ctx, sess, appt.ID); !errors.Is(err, fault.ErrIllegalTransition) {
		t.Errorf("expected illegal transition, got %v", err)
	}
}

// Delete issued while a cancel is still unconfirmed must not be offered or
// sent; it becomes legal only after the refetch that follows the cancel.
func TestLifecycle_NoSpeculativeDelete(t *testing.T) {
	store := newFakeStore()
	m, _ := newTestManager(store)
	sess := testSession()
	ctx := context.Background()

	appt, err := m.Submit(ctx, sess, validRequest("10:30 AM"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	gate := make(chan struct{})
	store.mu.Lock()
	store.cancelGate = gate
	store.mu.Unlock()

	cancelDone := make(chan error, 1)
	go func() {
		_, err := m.Cancel(ctx, sess, appt.ID)
		cancelDone <- err
	}()

	for store.count("cancel") == 0 {
		time.Sleep(time.Millisecond)
	}

	if v := m.Views(); v[0].CanDelete || !v[0].CanCancel {
		t.Errorf("appointment must still look booked while cancel is in flight, got %+v", v[0])
	}
	if err := m.Delete(ctx, sess, appt.ID); !errors.Is(err, fault.ErrIllegalTransition) {
		t.Errorf("expected illegal transition for delete during cancel, got %v", err)
	}
	if store.count("delete") != 0 {
		t.Error("delete must not reach the store before the cancel is confirmed")
	}

	close(gate)
	if err := <-cancelDone; err != nil {
		t.Fatalf("unexpected cancel error: %v", err)
	}

	if v := m.Views(); !v[0].CanDelete {
		t.Errorf("expected deletable after confirmed cancel, got %+v", v[0])
	}
	if err := m.Delete(ctx, sess, appt.ID); err != nil {
		t.Errorf("unexpected error deleting confirmed cancel: %v", err)
	}
}

func TestRefresh_NewestFirst(t *testing.T) {
	store := newFakeStore()
	m, _ := newTestManager(store)
	sess := testSession()
	ctx := context.Background()

	first, _ := m.Submit(ctx, sess, validRequest("08:00 AM"))
	second, _ := m.Submit(ctx, sess, validRequest("08:30 AM"))

	views, err := m.Refresh(ctx, sess)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(views) != 2 || views[0].Appointment.ID != second.ID || views[1].Appointment.ID != first.ID {
		t.Errorf("expected newest first, got %+v", views)
	}
}
