package wait

import (
	"sync"
	"time"
)

// Outcome is the result of a bounded wait.
type Outcome int

const (
	// Completed means the predicate became true.
	Completed Outcome = iota
	// TimedOut means the deadline passed first.
	TimedOut
	// Cancelled means the cancellation check fired first.
	Cancelled
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case TimedOut:
		return "timed out"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// DefaultInterval is the sleep between two checks of a wait.
const DefaultInterval = 10 * time.Millisecond

// Clock abstracts time so waits can be driven deterministically in tests.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// SystemClock is the wall clock
type SystemClock struct{}

func (SystemClock) Now() time.Time        { return time.Now() }
func (SystemClock) Sleep(d time.Duration) { time.Sleep(d) }

// Waiter bundles what every wait needs besides its predicate and timeout.
// The zero value waits on the system clock with DefaultInterval and never
// pumps or cancels.
type Waiter struct {
	Clock    Clock
	Interval time.Duration
	// Pump is invoked after every sleep.
	Pump func()
	// Cancelled is checked after every pump.
	Cancelled func() bool
}

// Until waits for done to return true, for at most timeout. A nil done never
// completes, which turns Until into a cancellable, pumping sleep.
func (w Waiter) Until(timeout time.Duration, done func() bool) Outcome {
	clk := w.clock()
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	deadline := clk.Now().Add(timeout)
	for {
		if done != nil && done() {
			return Completed
		}
		if !clk.Now().Before(deadline) {
			return TimedOut
		}
		clk.Sleep(interval)
		if w.Pump != nil {
			w.Pump()
		}
		if w.Cancelled != nil && w.Cancelled() {
			return Cancelled
		}
	}
}

// Sleep pumps for d unless cancelled. It returns TimedOut when the full
// duration elapsed.
func (w Waiter) Sleep(d time.Duration) Outcome {
	return w.Until(d, nil)
}

func (w Waiter) clock() Clock {
	if w.Clock == nil {
		return SystemClock{}
	}
	return w.Clock
}

// ManualClock is a Clock whose Sleep advances virtual time instantly.
type ManualClock struct {
	mu    sync.Mutex
	now   time.Time
	slept time.Duration
	// OnSleep, when set, runs after every Sleep with the new virtual time.
	OnSleep func(now time.Time)
}

// NewManualClock returns a clock starting at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the virtual time
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Sleep advances virtual time by d without blocking.
func (c *ManualClock) Sleep(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.slept += d
	now, hook := c.now, c.OnSleep
	c.mu.Unlock()

	if hook != nil {
		hook(now)
	}
}

// Advance moves virtual time forward by d
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Slept returns the total virtual time spent in Sleep.
func (c *ManualClock) Slept() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slept
}
