// Package clock provides the time source used for expiry decisions.
//
// Every "is this batch expired" question is answered against a Clock so tests
// can pin wall-clock time instead of sleeping.
package clock

import (
	"sync"
	"time"
)

// Clock returns the current time
type Clock interface {
	Now() time.Time
}

// Real reads the system clock
type Real struct{}

// Now returns time.Now in UTC truncated to whole seconds, the precision the store keeps
func (Real) Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

// Fixed is a manually driven clock for tests
type Fixed struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixed creates a clock frozen at t
func NewFixed(t time.Time) *Fixed {
	return &Fixed{now: t.UTC()}
}

// Now returns the frozen time
func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the clock forward by d
func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// Set moves the clock to t
func (f *Fixed) Set(t time.Time) {
	f.mu.Lock()
	f.now = t.UTC()
	f.mu.Unlock()
}
