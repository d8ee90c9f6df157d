package timing

import (
	"sync"
	"time"
)

// A Clock reports the time elapsed since an arbitrary, fixed origin. Only
// differences between two readings are meaningful.
type Clock interface {
	Now() time.Duration
}

// MonotonicClock reads the process monotonic clock. Wall-clock adjustments do
// not affect it.
type MonotonicClock struct {
	origin time.Time
}

// NewMonotonicClock creates a MonotonicClock whose origin is the moment of the
// call.
func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{origin: time.Now()}
}

// Now returns the time passed since the clock was created.
func (c *MonotonicClock) Now() time.Duration {
	return time.Since(c.origin)
}

// ManualClock only moves when told to. It is used by simulations and tests.
type ManualClock struct {
	lock sync.Mutex
	now  time.Duration
}

// NewManualClock creates a ManualClock that starts at zero.
func NewManualClock() *ManualClock {
	return &ManualClock{}
}

// Now returns the current reading.
func (c *ManualClock) Now() time.Duration {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.now
}

// Step advances the clock by d.
func (c *ManualClock) Step(d time.Duration) {
	if d < 0 {
		panic("manual clock cannot step backwards")
	}

	c.lock.Lock()
	c.now += d
	c.lock.Unlock()
}

// StepSeconds advances the clock by a fractional number of seconds.
func (c *ManualClock) StepSeconds(s float64) {
	c.Step(Seconds(s))
}

// Seconds converts a fractional number of seconds to a duration.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
