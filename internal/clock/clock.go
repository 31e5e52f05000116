// Package clock provides the wall clock injected into every time-dependent
// component.
//
// Nothing in this module calls time.Now directly. Scoring buckets, the
// displacement-recency rule, token expiry and sync cursors all read a Clock,
// so tests can pin and advance time.
package clock

import (
	"sync"
	"time"

	"github.com/roach88/ataa/internal/model"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// System is the real wall clock.
type System struct{}

func (System) Now() time.Time { return time.Now().UTC() }

// Stamp returns c.Now() as a store timestamp.
func Stamp(c Clock) model.Time {
	return model.NewTime(c.Now())
}

// Fake is a manually driven clock for tests.
//
// Thread-safety: all methods are safe for concurrent use.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake returns a clock fixed at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start.UTC()}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the clock forward by d and returns the new time.
func (f *Fake) Advance(d time.Duration) time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
	return f.now
}

// Set moves the clock to t.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t.UTC()
}
