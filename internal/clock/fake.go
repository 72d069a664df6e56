package clock

import (
	"sync"
	"time"
)

// Fake is a manually advanced Clock. Timers fire in deadline order while
// Advance walks time forward, and Now reports each timer's deadline while its
// callback runs, so callbacks that schedule follow-up timers stay exact.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	seq     uint64
	waiters []*waiter
	changed *sync.Cond
}

type waiter struct {
	seq      uint64
	deadline time.Time
	ch       chan time.Time
	fn       func()
	interval time.Duration
	active   bool
}

// NewFake returns a Fake clock set to start.
func NewFake(start time.Time) *Fake {
	f := &Fake{now: start}
	f.changed = sync.NewCond(&f.mu)
	return f
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if d <= 0 {
		ch <- f.now
		return ch
	}
	f.addLocked(&waiter{deadline: f.now.Add(d), ch: ch})
	return ch
}

func (f *Fake) AfterFunc(d time.Duration, fn func()) *Timer {
	if d <= 0 {
		fn()
		return &Timer{
			stop:  func() bool { return false },
			reset: func(time.Duration) bool { return false },
		}
	}
	f.mu.Lock()
	w := &waiter{deadline: f.now.Add(d), fn: fn}
	f.addLocked(w)
	f.mu.Unlock()
	return &Timer{
		stop: func() bool {
			f.mu.Lock()
			defer f.mu.Unlock()
			was := w.active
			f.removeLocked(w)
			return was
		},
		reset: func(d time.Duration) bool {
			f.mu.Lock()
			defer f.mu.Unlock()
			was := w.active
			f.removeLocked(w)
			w.deadline = f.now.Add(d)
			f.addLocked(w)
			return was
		},
	}
}

func (f *Fake) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	ch := make(chan time.Time, 1)
	f.mu.Lock()
	w := &waiter{deadline: f.now.Add(d), ch: ch, interval: d}
	f.addLocked(w)
	f.mu.Unlock()
	return &Ticker{
		C: ch,
		stop: func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.removeLocked(w)
		},
		reset: func(d time.Duration) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.removeLocked(w)
			w.interval = d
			w.deadline = f.now.Add(d)
			f.addLocked(w)
		},
	}
}

// Advance moves the clock forward by d, firing every timer whose deadline
// falls within the window. Callbacks run on the calling goroutine.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()
	for {
		f.mu.Lock()
		w := f.nextLocked(target)
		if w == nil {
			f.now = target
			f.mu.Unlock()
			return
		}
		if w.deadline.After(f.now) {
			f.now = w.deadline
		}
		at := f.now
		if w.interval > 0 {
			w.deadline = w.deadline.Add(w.interval)
		} else {
			f.removeLocked(w)
		}
		f.mu.Unlock()

		if w.fn != nil {
			w.fn()
		} else {
			select {
			case w.ch <- at:
			default:
			}
		}
	}
}

// WaitForTimers blocks until at least n timers or tickers are pending.
func (f *Fake) WaitForTimers(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for len(f.waiters) < n {
		f.changed.Wait()
	}
}

// Pending returns the number of timers and tickers that have not fired.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.waiters)
}

func (f *Fake) addLocked(w *waiter) {
	f.seq++
	w.seq = f.seq
	w.active = true
	f.waiters = append(f.waiters, w)
	f.changed.Broadcast()
}

func (f *Fake) removeLocked(w *waiter) {
	if !w.active {
		return
	}
	w.active = false
	for i, x := range f.waiters {
		if x == w {
			f.waiters = append(f.waiters[:i], f.waiters[i+1:]...)
			return
		}
	}
}

// nextLocked returns the earliest waiter due by target. Equal deadlines fire
// in registration order.
func (f *Fake) nextLocked(target time.Time) *waiter {
	var best *waiter
	for _, w := range f.waiters {
		if w.deadline.After(target) {
			continue
		}
		if best == nil || w.deadline.Before(best.deadline) ||
			(w.deadline.Equal(best.deadline) && w.seq < best.seq) {
			best = w
		}
	}
	return best
}
