// Package notification builds the bell feed from the appointment and health
// record streams and flushes read state back to the store.
package notification

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/clinic-portal/internal/appointment"
	"github.com/hackgods/clinic-portal/internal/calendar"
	"github.com/hackgods/clinic-portal/internal/fault"
	"github.com/hackgods/clinic-portal/internal/healthrecord"
	"github.com/hackgods/clinic-portal/internal/sequence"
	"github.com/hackgods/clinic-portal/internal/session"
)

type Kind string

const (
	KindAppointment  Kind = "appointment"
	KindHealthRecord Kind = "health-record"
)

const healthRecordTitle = "New Health Record Added"

type Item struct {
	SourceID uuid.UUID
	Kind     Kind
	Read     bool
	Title    string
	Subtitle string
}

// Store is the slice of the remote API the feed needs.
type Store interface {
	ListAppointments(ctx context.Context, sess session.Session) ([]appointment.Appointment, error)
	ListHealthRecords(ctx context.Context, sess session.Session) ([]healthrecord.Record, error)
	MarkRead(ctx context.Context, sess session.Session, items []Item) error
}

// Policy caps each stream. Records are drawn from the first RecordWindow
// unread entries and cut to MaxRecords in the feed.
type Policy struct {
	MaxAppointments int
	RecordWindow    int
	MaxRecords      int
}

var DefaultPolicy = Policy{MaxAppointments: 3, RecordWindow: 5, MaxRecords: 2}

// Build derives the feed: newest non-cancelled appointments first, then
// unread health records, newest first.
func Build(appts []appointment.Appointment, records []healthrecord.Record, p Policy) []Item {
	live := make([]appointment.Appointment, 0, len(appts))
	for _, a := range appts {
		if !a.Cancelled {
			live = append(live, a)
		}
	}
	sort.SliceStable(live, func(i, j int) bool { return live[i].CreatedAt.After(live[j].CreatedAt) })

	unread := make([]healthrecord.Record, 0, len(records))
	for _, r := range records {
		if !r.Read {
			unread = append(unread, r)
		}
	}
	sort.SliceStable(unread, func(i, j int) bool { return unread[i].CreatedAt.After(unread[j].CreatedAt) })
	unread = unread[:min(len(unread), p.RecordWindow)]

	items := make([]Item, 0, p.MaxAppointments+p.MaxRecords)
	for _, a := range live[:min(len(live), p.MaxAppointments)] {
		items = append(items, Item{
			SourceID: a.ID,
			Kind:     KindAppointment,
			Read:     a.Read,
			Title:    a.Department,
			Subtitle: calendar.SlashDate(a.SlotDate) + " | " + a.SlotTime,
		})
	}
	for _, r := range unread[:min(len(unread), p.MaxRecords)] {
		items = append(items, Item{
			SourceID: r.ID,
			Kind:     KindHealthRecord,
			Read:     false,
			Title:    healthRecordTitle,
			Subtitle: calendar.DisplayDate(r.Date),
		})
	}
	return items
}

// Aggregator holds one session's feed.
type Aggregator struct {
	store  Store
	policy Policy
	log    logrus.FieldLogger
	seq    sequence.Tracker

	mu      sync.Mutex
	feed    []Item
	feedSeq uint64
	token   string
}

func NewAggregator(store Store, log logrus.FieldLogger) *Aggregator {
	return &Aggregator{store: store, policy: DefaultPolicy, log: log}
}

// Refresh fetches both streams, waits for both, and replaces the feed.
// If a newer Refresh was issued meanwhile it returns sequence.ErrSuperseded
// and leaves the feed alone.
func (a *Aggregator) Refresh(ctx context.Context, sess session.Session) ([]Item, error) {
	if err := sess.Require(); err != nil {
		return nil, err
	}

	ticket := a.seq.Next()

	var (
		appts   []appointment.Appointment
		records []healthrecord.Record
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		appts, err = a.store.ListAppointments(gctx, sess)
		return err
	})
	g.Go(func() error {
		var err error
		records, err = a.store.ListHealthRecords(gctx, sess)
		return err
	})
	err := g.Wait()

	if !a.seq.IsLatest(ticket) {
		return nil, sequence.ErrSuperseded
	}
	if err != nil {
		return nil, err
	}

	items := Build(appts, records, a.policy)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.feedSeq > ticket {
		return nil, sequence.ErrSuperseded
	}
	a.feed = items
	a.feedSeq = ticket
	return append([]Item(nil), items...), nil
}

// MarkRead flushes the unread subset of items in one batched call, then
// refreshes. Nothing is sent when every item is already read.
func (a *Aggregator) MarkRead(ctx context.Context, sess session.Session, items []Item) error {
	if err := sess.Require(); err != nil {
		return err
	}

	var unread []Item
	for _, it := range items {
		if !it.Read {
			unread = append(unread, it)
		}
	}
	if len(unread) == 0 {
		return nil
	}

	if err := a.store.MarkRead(ctx, sess, unread); err != nil {
		return err
	}
	a.log.WithField("count", len(unread)).Debug("notifications marked read")

	if _, err := a.Refresh(ctx, sess); err != nil && !errors.Is(err, sequence.ErrSuperseded) {
		return err
	}
	return nil
}

// Open marks the displayed feed read, as when the bell is clicked.
func (a *Aggregator) Open(ctx context.Context, sess session.Session) error {
	return a.MarkRead(ctx, sess, a.Feed())
}

// Feed returns the last rendered feed.
func (a *Aggregator) Feed() []Item {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Item(nil), a.feed...)
}

// HasUnread reports whether the badge should show.
func (a *Aggregator) HasUnread() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, it := range a.feed {
		if !it.Read {
			return true
		}
	}
	return false
}

// SessionChanged reacts to login, logout and token rotation. Logout clears
// the feed and drops any refresh still in flight.
func (a *Aggregator) SessionChanged(ctx context.Context, sess session.Session) error {
	a.mu.Lock()
	if sess.Token == a.token {
		a.mu.Unlock()
		return nil
	}
	a.token = sess.Token
	if !sess.Authenticated() {
		a.feed = nil
		a.feedSeq = a.seq.Next()
		a.mu.Unlock()
		return nil
	}
	a.mu.Unlock()

	_, err := a.Refresh(ctx, sess)
	if errors.Is(err, sequence.ErrSuperseded) {
		return nil
	}
	return err
}

// Poll refreshes immediately and then every interval until ctx is done,
// passing each fresh feed to onUpdate when it is non-nil. Refresh errors are
// logged and polling continues.
func (a *Aggregator) Poll(ctx context.Context, sess session.Session, interval time.Duration, onUpdate func([]Item)) error {
	if interval <= 0 {
		return fault.Invalid("interval", "poll interval must be positive")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		items, err := a.Refresh(ctx, sess)
		switch {
		case err == nil:
			if onUpdate != nil {
				onUpdate(items)
			}
		case errors.Is(err, sequence.ErrSuperseded):
		default:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.log.WithError(err).Warn("notification refresh failed")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
