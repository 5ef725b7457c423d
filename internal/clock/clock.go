// Package clock provides the time source used to bucket usage by day, and a
// settable fake for tests.
package clock

import (
	"sync"
	"time"
)

// System is the default Clock backed by time.Now.
var System Clock = systemClock{}

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// Day returns the calendar day containing t in loc, as midnight UTC of that
// date. Two instants fall in the same usage bucket iff their Day is equal.
func Day(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Fake is a Clock whose time is set explicitly. For tests only.
type Fake struct {
	mu  sync.RWMutex
	now time.Time
}

// NewFake returns a Fake reporting t.
func NewFake(t time.Time) *Fake {
	return &Fake{now: t}
}

func (f *Fake) Now() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.now
}

// Set changes the reported time.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}

// Advance moves the reported time forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}
