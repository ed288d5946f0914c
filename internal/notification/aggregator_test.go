package notification

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hackgods/clinic-portal/internal/appointment"
	"github.com/hackgods/clinic-portal/internal/fault"
	"github.com/hackgods/clinic-portal/internal/healthrecord"
	"github.com/hackgods/clinic-portal/internal/sequence"
	"github.com/hackgods/clinic-portal/internal/session"
)

var base = time.Date(2025, time.June, 10, 9, 0, 0, 0, time.UTC)

type fakeStore struct {
	mu          sync.Mutex
	appts       []appointment.Appointment
	records     []healthrecord.Record
	markCalls   int
	listCalls   int
	gate        chan struct{}
	recordsErr  error
	lastMarkIDs []uuid.UUID
}

func (f *fakeStore) ListAppointments(context.Context, session.Session) ([]appointment.Appointment, error) {
	f.mu.Lock()
	f.listCalls++
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]appointment.Appointment(nil), f.appts...), nil
}

func (f *fakeStore) ListHealthRecords(context.Context, session.Session) ([]healthrecord.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordsErr != nil {
		return nil, f.recordsErr
	}
	return append([]healthrecord.Record(nil), f.records...), nil
}

func (f *fakeStore) MarkRead(_ context.Context, _ session.Session, items []Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markCalls++
	f.lastMarkIDs = nil
	for _, it := range items {
		f.lastMarkIDs = append(f.lastMarkIDs, it.SourceID)
		for i := range f.appts {
			if f.appts[i].ID == it.SourceID {
				f.appts[i].Read = true
			}
		}
		for i := range f.records {
			if f.records[i].ID == it.SourceID {
				f.records[i].Read = true
			}
		}
	}
	return nil
}

func newAggregator(store Store) *Aggregator {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewAggregator(store, log)
}

func testSession() session.Session {
	return session.New("token-a", uuid.New())
}

// seed creates nAppts appointments and nRecords unread records, each created
// one minute after the previous.
func seed(nAppts, nRecords int) *fakeStore {
	f := &fakeStore{}
	for i := 0; i < nAppts; i++ {
		f.appts = append(f.appts, appointment.Appointment{
			ID:         uuid.New(),
			Department: "Dept",
			SlotDate:   time.Date(2025, time.June, 12, 0, 0, 0, 0, time.UTC),
			SlotTime:   "09:00 AM",
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		})
	}
	for i := 0; i < nRecords; i++ {
		f.records = append(f.records, healthrecord.Record{
			ID:        uuid.New(),
			Date:      time.Date(2025, time.June, 1+i, 0, 0, 0, 0, time.UTC),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	return f
}

func TestBuild_CapsAndOrder(t *testing.T) {
	store := seed(5, 7)
	items := Build(store.appts, store.records, DefaultPolicy)

	if len(items) != 5 {
		t.Fatalf("expected 5 items, got %d", len(items))
	}
	for i := 0; i < 3; i++ {
		if items[i].Kind != KindAppointment {
			t.Errorf("item %d: expected appointment, got %s", i, items[i].Kind)
		}
	}
	for i := 3; i < 5; i++ {
		if items[i].Kind != KindHealthRecord {
			t.Errorf("item %d: expected health record, got %s", i, items[i].Kind)
		}
	}

	// Newest first within each stream.
	if items[0].SourceID != store.appts[4].ID || items[2].SourceID != store.appts[2].ID {
		t.Error("appointments not newest first")
	}
	if items[3].SourceID != store.records[6].ID || items[4].SourceID != store.records[5].ID {
		t.Error("health records not newest first")
	}

	if items[0].Title != "Dept" || items[0].Subtitle != "12/6/2025 | 09:00 AM" {
		t.Errorf("unexpected appointment text: %q / %q", items[0].Title, items[0].Subtitle)
	}
	if items[3].Title != "New Health Record Added" || items[3].Subtitle != "7 Jun 2025" {
		t.Errorf("unexpected record text: %q / %q", items[3].Title, items[3].Subtitle)
	}
}

func TestBuild_ExcludesCancelledAndReadRecords(t *testing.T) {
	store := seed(2, 3)
	store.appts[1].Cancelled = true
	store.records[2].Read = true
	store.records[1].Read = true

	items := Build(store.appts, store.records, DefaultPolicy)
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].SourceID != store.appts[0].ID {
		t.Error("cancelled appointment should be skipped")
	}
	if items[1].SourceID != store.records[0].ID {
		t.Error("read records should be skipped")
	}
}

func TestRefresh_ReplacesFeed(t *testing.T) {
	store := seed(1, 1)
	agg := newAggregator(store)

	items, err := agg.Refresh(context.Background(), testSession())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 || len(agg.Feed()) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if !agg.HasUnread() {
		t.Error("expected unread badge")
	}

	if _, err := agg.Refresh(context.Background(), session.Session{}); !errors.Is(err, fault.ErrAuthRequired) {
		t.Errorf("expected auth required, got %v", err)
	}
}

func TestRefresh_FailsIfEitherStreamFails(t *testing.T) {
	store := seed(1, 1)
	store.recordsErr = fault.Unavailable(errors.New("timeout"))
	agg := newAggregator(store)

	if _, err := agg.Refresh(context.Background(), testSession()); !errors.Is(err, fault.ErrUnavailable) {
		t.Errorf("expected unavailable, got %v", err)
	}
	if len(agg.Feed()) != 0 {
		t.Error("failed refresh must not produce a feed")
	}
}

func TestMarkRead_NoUnreadMeansNoCall(t *testing.T) {
	store := seed(1, 0)
	store.appts[0].Read = true
	agg := newAggregator(store)
	sess := testSession()

	items, _ := agg.Refresh(context.Background(), sess)
	if agg.HasUnread() {
		t.Fatal("expected no unread items")
	}
	if err := agg.MarkRead(context.Background(), sess, items); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := agg.MarkRead(context.Background(), sess, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.markCalls != 0 {
		t.Errorf("expected no mark-read call, got %d", store.markCalls)
	}
}

func TestMarkRead_Idempotent(t *testing.T) {
	store := seed(2, 2)
	agg := newAggregator(store)
	sess := testSession()
	ctx := context.Background()

	items, _ := agg.Refresh(ctx, sess)
	if err := agg.MarkRead(ctx, sess, items); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.markCalls != 1 || len(store.lastMarkIDs) != 4 {
		t.Fatalf("expected one batched call for 4 items, got %d calls / %d ids", store.markCalls, len(store.lastMarkIDs))
	}
	after := agg.Feed()

	// The refreshed feed is all read, so opening it again sends nothing.
	if err := agg.Open(ctx, sess); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.markCalls != 1 {
		t.Errorf("expected second mark to be a no-op, got %d calls", store.markCalls)
	}
	if agg.HasUnread() {
		t.Error("expected badge cleared")
	}
	for _, it := range after {
		if !it.Read {
			t.Errorf("item %s still unread", it.SourceID)
		}
	}
}

func TestRefresh_SupersededIsDropped(t *testing.T) {
	store := seed(1, 0)
	gate := make(chan struct{})
	store.gate = gate
	agg := newAggregator(store)
	sess := testSession()

	firstErr := make(chan error, 1)
	go func() {
		_, err := agg.Refresh(context.Background(), sess)
		firstErr <- err
	}()
	for {
		store.mu.Lock()
		n := store.listCalls
		store.mu.Unlock()
		if n == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	// Change data and issue a newer refresh without the gate.
	store.mu.Lock()
	store.gate = nil
	store.appts[0].Department = "Cardiology"
	store.mu.Unlock()

	items, err := agg.Refresh(context.Background(), sess)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if items[0].Title != "Cardiology" {
		t.Fatalf("expected newest data, got %q", items[0].Title)
	}

	close(gate)
	if err := <-firstErr; !errors.Is(err, sequence.ErrSuperseded) {
		t.Errorf("expected superseded, got %v", err)
	}
	if feed := agg.Feed(); feed[0].Title != "Cardiology" {
		t.Errorf("stale refresh replaced the feed: %q", feed[0].Title)
	}
}

func TestSessionChanged(t *testing.T) {
	store := seed(1, 1)
	agg := newAggregator(store)
	ctx := context.Background()
	sess := testSession()

	if err := agg.SessionChanged(ctx, sess); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(agg.Feed()) != 2 || store.listCalls != 1 {
		t.Fatalf("expected feed loaded on login")
	}

	// Same token is a no-op.
	if err := agg.SessionChanged(ctx, sess); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.listCalls != 1 {
		t.Errorf("expected no refetch for unchanged token, got %d calls", store.listCalls)
	}

	if err := agg.SessionChanged(ctx, session.Session{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(agg.Feed()) != 0 || agg.HasUnread() {
		t.Error("expected feed cleared on logout")
	}
}

func TestPoll_StopsWithContext(t *testing.T) {
	store := seed(1, 0)
	agg := newAggregator(store)

	ctx, cancel := context.WithTimeout(context.Background(), 35*time.Millisecond)
	defer cancel()

	var updates atomic.Int32
	err := agg.Poll(ctx, testSession(), 10*time.Millisecond, func(items []Item) {
		if len(items) == 1 {
			updates.Add(1)
		}
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if updates.Load() < 2 {
		t.Errorf("expected the feed handed over on each refresh, got %d", updates.Load())
	}

	store.mu.Lock()
	calls := store.listCalls
	store.mu.Unlock()
	if calls < 2 {
		t.Errorf("expected repeated refreshes, got %d", calls)
	}
}

func TestPoll_RejectsNonPositiveInterval(t *testing.T) {
	store := seed(1, 0)
	agg := newAggregator(store)

	for _, interval := range []time.Duration{0, -time.Second} {
		err := agg.Poll(context.Background(), testSession(), interval, nil)
		if !errors.Is(err, fault.ErrValidation) {
			t.Errorf("interval %s: expected validation error, got %v", interval, err)
		}
	}
	if store.listCalls != 0 {
		t.Errorf("expected no store calls, got %d", store.listCalls)
	}
}
