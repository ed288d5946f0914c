// Package calendar computes which dates are bookable and the fixed daily slot
// grid. Everything here is a pure function of its inputs.
package calendar

import (
	"fmt"
	"time"

	"github.com/hackgods/clinic-portal/internal/fault"
)

// LabelLayout renders grid labels such as "08:00 AM" and "02:30 PM".
const LabelLayout = "03:04 PM"

// GridSpec describes a clinical day as offsets from midnight. Start times in
// [LunchStart, LunchEnd) are skipped.
type GridSpec struct {
	FirstStart time.Duration
	LastStart  time.Duration
	Step       time.Duration
	LunchStart time.Duration
	LunchEnd   time.Duration
}

// DefaultGrid is 08:00 to 16:00 every 30 minutes with a lunch gap after the
// 12:00 slot.
var DefaultGrid = GridSpec{
	FirstStart: 8 * time.Hour,
	LastStart:  16 * time.Hour,
	Step:       30 * time.Minute,
	LunchStart: 12*time.Hour + 30*time.Minute,
	LunchEnd:   14 * time.Hour,
}

type Calendar struct {
	horizon  int
	restDays map[time.Weekday]bool
	labels   []string
	index    map[string]int
}

// New builds a calendar with a booking horizon in days, the weekly rest days
// and the slot grid.
func New(horizonDays int, restDays []time.Weekday, grid GridSpec) *Calendar {
	c := &Calendar{
		horizon:  horizonDays,
		restDays: make(map[time.Weekday]bool, len(restDays)),
		index:    make(map[string]int),
	}
	for _, d := range restDays {
		c.restDays[d] = true
	}

	if grid.Step <= 0 {
		grid.Step = DefaultGrid.Step
	}
	base := time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)
	for off := grid.FirstStart; off <= grid.LastStart; off += grid.Step {
		if off >= grid.LunchStart && off < grid.LunchEnd {
			continue
		}
		label := base.Add(off).Format(LabelLayout)
		c.index[label] = len(c.labels)
		c.labels = append(c.labels, label)
	}

	return c
}

// Default is a 30 day horizon, Saturday and Sunday off, DefaultGrid.
func Default() *Calendar {
	return New(30, []time.Weekday{time.Saturday, time.Sunday}, DefaultGrid)
}

// EligibleDateRange returns today and today plus the horizon, both inclusive,
// at midnight in now's location.
func (c *Calendar) EligibleDateRange(now time.Time) (time.Time, time.Time) {
	y, m, d := now.Date()
	min := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	return min, min.AddDate(0, 0, c.horizon)
}

func (c *Calendar) IsBookableWeekday(date time.Time) bool {
	return !c.restDays[date.Weekday()]
}

// ValidateDate rejects dates outside the eligible range or on a rest day.
// Dates are compared as calendar days, ignoring time of day and zone.
func (c *Calendar) ValidateDate(now, date time.Time) error {
	if date.IsZero() {
		return fault.Invalid("date", "date is required")
	}

	day := Day(date)
	min := Day(now)
	max := min.AddDate(0, 0, c.horizon)

	if day.Before(min) || day.After(max) {
		return fault.Invalid("date", fmt.Sprintf("date must be between %s and %s", DisplayDate(min), DisplayDate(max)))
	}
	if !c.IsBookableWeekday(day) {
		return fault.Invalid("date", "appointments are only available on working days")
	}
	return nil
}

// FixedSlotGrid returns a copy of the day's ordered slot labels.
func (c *Calendar) FixedSlotGrid() []string {
	out := make([]string, len(c.labels))
	copy(out, c.labels)
	return out
}

func (c *Calendar) HasSlot(label string) bool {
	_, ok := c.index[label]
	return ok
}

// Day truncates t to its calendar day, expressed as UTC midnight.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
