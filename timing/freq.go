package timing

import (
	"log"
	"time"
)

// Freq defines the rate at which a control loop ticks.
type Freq float64

// Defines the unit of frequency
const (
	Hz  Freq = 1
	KHz Freq = 1e3
)

// DefaultPeriod is the control period used when none is configured.
const DefaultPeriod = 20 * time.Millisecond

// FreqOf returns the frequency that matches a period.
func FreqOf(period time.Duration) Freq {
	if period <= 0 {
		log.Panic("period must be positive")
	}

	return Freq(float64(time.Second) / float64(period))
}

// Period returns the time between two consecutive ticks.
func (f Freq) Period() time.Duration {
	if f <= 0 {
		log.Panic("frequency must be positive")
	}

	return time.Duration(float64(time.Second) / float64(f))
}

// Cycle converts a time to the number of whole periods passed since time 0.
func (f Freq) Cycle(t time.Duration) uint64 {
	if t < 0 {
		return 0
	}

	return uint64(t / f.Period())
}

// NextTick returns the first tick boundary strictly after now.
//
//	               Input
//	               [          )
//	    |----------|----------|----------|----->
//	                          |
//	                          Output
func (f Freq) NextTick(now time.Duration) time.Duration {
	p := f.Period()
	return (now/p + 1) * p
}
