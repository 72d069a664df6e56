// Package clock abstracts time so the coordinator, the fault recovery timers
// and the simulated agents can be driven deterministically in tests.
package clock

import "time"

// Clock is the subset of the time package used by the dispatch system.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	// AfterFunc calls f in its own goroutine (real clock) or synchronously
	// from Advance (fake clock) once d has elapsed.
	AfterFunc(d time.Duration, f func()) *Timer
	NewTicker(d time.Duration) *Ticker
}

// Ticker mirrors time.Ticker.
type Ticker struct {
	C <-chan time.Time

	stop  func()
	reset func(time.Duration)
}

func (t *Ticker) Stop() { t.stop() }

func (t *Ticker) Reset(d time.Duration) { t.reset(d) }

// Timer mirrors the parts of time.Timer returned by AfterFunc.
type Timer struct {
	stop  func() bool
	reset func(time.Duration) bool
}

// Stop prevents the timer from firing. It returns false if the timer already
// fired or was stopped.
func (t *Timer) Stop() bool { return t.stop() }

func (t *Timer) Reset(d time.Duration) bool { return t.reset(d) }
