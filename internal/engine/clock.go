package engine

import "time"

// Clock is the simulated calendar for one patient. It starts at birth and
// moves forward in fixed steps; it never moves backward and never consults
// wall-clock time.
//
// Clock is owned by a single goroutine along with the rest of the
// patient's state, so no synchronization is needed.
type Clock struct {
	now  time.Time
	step time.Duration
}

// NewClock creates a clock positioned at start, advancing by step.
func NewClock(start time.Time, step time.Duration) *Clock {
	return &Clock{now: start, step: step}
}

// Now returns the current simulated time.
func (c *Clock) Now() time.Time {
	return c.now
}

// Tick advances the clock by one step and returns the new time.
func (c *Clock) Tick() time.Time {
	c.now = c.now.Add(c.step)
	return c.now
}

// Step returns the fixed step width.
func (c *Clock) Step() time.Duration {
	return c.step
}
