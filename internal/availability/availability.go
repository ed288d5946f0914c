// Package availability narrows the fixed slot grid to the labels still free
// for a department and day. Its snapshots are advisory: the store's
// uniqueness guard is what actually prevents double booking.
package availability

import (
	"context"
	"sync"
	"time"

	"github.com/hackgods/clinic-portal/internal/calendar"
	"github.com/hackgods/clinic-portal/internal/fault"
	"github.com/hackgods/clinic-portal/internal/sequence"
	"github.com/hackgods/clinic-portal/internal/session"
)

// Source reports the labels held by non-cancelled appointments.
type Source interface {
	TakenSlots(ctx context.Context, sess session.Session, department string, date time.Time) ([]string, error)
}

type Slot struct {
	Label     string
	Available bool
}

// Annotate marks each grid label unavailable iff it is in taken. The result
// has the grid's length and order.
func Annotate(grid []string, taken map[string]struct{}) []Slot {
	out := make([]Slot, len(grid))
	for i, label := range grid {
		_, held := taken[label]
		out[i] = Slot{Label: label, Available: !held}
	}
	return out
}

type Snapshot struct {
	Department string
	Date       time.Time
	Taken      map[string]struct{}
	Slots      []Slot
	Seq        uint64
}

func (s Snapshot) Available(label string) bool {
	for _, slot := range s.Slots {
		if slot.Label == label {
			return slot.Available
		}
	}
	return false
}

func (s Snapshot) matches(department string, date time.Time) bool {
	return s.Department == department && s.Date.Equal(calendar.Day(date))
}

// Resolver fetches taken sets and keeps the most recent accepted snapshot.
// One Resolver belongs to one booking screen.
type Resolver struct {
	src Source
	cal *calendar.Calendar
	now func() time.Time
	seq sequence.Tracker

	mu          sync.Mutex
	latest      Snapshot
	hasLatest   bool
	departments map[string]bool
}

func NewResolver(src Source, cal *calendar.Calendar) *Resolver {
	return &Resolver{src: src, cal: cal, now: time.Now}
}

// WithClock replaces the resolver clock.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// SetDepartments restricts Resolve to the given names. An empty list lifts
// the restriction.
func (r *Resolver) SetDepartments(names []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(names) == 0 {
		r.departments = nil
		return
	}
	r.departments = make(map[string]bool, len(names))
	for _, n := range names {
		r.departments[n] = true
	}
}

// ValidateInput runs the local department and date checks.
func (r *Resolver) ValidateInput(department string, date time.Time) error {
	if department == "" {
		return fault.Invalid("department", "department is required")
	}
	r.mu.Lock()
	known := r.departments == nil || r.departments[department]
	r.mu.Unlock()
	if !known {
		return fault.Invalid("department", "unknown department")
	}
	return r.cal.ValidateDate(r.now(), date)
}

// Resolve fetches the taken set for department and date. A response that
// arrives after a newer Resolve was issued is dropped with
// sequence.ErrSuperseded.
func (r *Resolver) Resolve(ctx context.Context, sess session.Session, department string, date time.Time) (Snapshot, error) {
	if err := sess.Require(); err != nil {
		return Snapshot{}, err
	}
	if err := r.ValidateInput(department, date); err != nil {
		return Snapshot{}, err
	}

	day := calendar.Day(date)
	ticket := r.seq.Next()

	labels, err := r.src.TakenSlots(ctx, sess, department, day)
	if !r.seq.IsLatest(ticket) {
		return Snapshot{}, sequence.ErrSuperseded
	}
	if err != nil {
		return Snapshot{}, err
	}

	taken := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		taken[l] = struct{}{}
	}
	snap := Snapshot{
		Department: department,
		Date:       day,
		Taken:      taken,
		Slots:      Annotate(r.cal.FixedSlotGrid(), taken),
		Seq:        ticket,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// A newer call may have finished between the check above and here.
	if r.hasLatest && r.latest.Seq > ticket {
		return Snapshot{}, sequence.ErrSuperseded
	}
	r.latest = snap
	r.hasLatest = true
	return snap, nil
}

func (r *Resolver) Latest() (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest, r.hasLatest
}

// Invalidate drops the retained snapshot, e.g. after a date change that has
// not been resolved yet.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latest = Snapshot{}
	r.hasLatest = false
}

// CheckSelectable rejects a label the latest snapshot for the same
// department and day shows as taken. Without such a snapshot it only checks
// grid membership.
func (r *Resolver) CheckSelectable(department string, date time.Time, label string) error {
	if !r.cal.HasSlot(label) {
		return fault.Invalid("time", "time is not a bookable slot")
	}
	snap, ok := r.Latest()
	if !ok || !snap.matches(department, date) {
		return nil
	}
	if !snap.Available(label) {
		return fault.Invalid("time", "slot is no longer available, please pick another")
	}
	return nil
}
