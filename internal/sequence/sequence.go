// Package sequence tags outgoing requests so that late responses from a
// superseded request can be dropped instead of rendered.
package sequence

import (
	"errors"
	"sync/atomic"
)

// ErrSuperseded is returned when a newer request of the same kind was issued
// while this one was in flight.
var ErrSuperseded = errors.New("superseded by a newer request")

// Tracker issues monotonically increasing tickets for one operation kind.
// The zero value is ready to use.
type Tracker struct {
	last atomic.Uint64
}

// Next issues a new ticket; it becomes the only current one.
func (t *Tracker) Next() uint64 {
	return t.last.Add(1)
}

// IsLatest reports whether ticket is still the most recently issued.
func (t *Tracker) IsLatest(ticket uint64) bool {
	return t.last.Load() == ticket
}

// Check returns ErrSuperseded unless ticket is the latest.
func (t *Tracker) Check(ticket uint64) error {
	if !t.IsLatest(ticket) {
		return ErrSuperseded
	}
	return nil
}
