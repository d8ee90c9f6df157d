package scheduler

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sarchlab/magicbot/timing"
)

// DefaultReportInterval is the minimum time between two unforced reports of a
// RateLimitedSink.
const DefaultReportInterval = 500 * time.Millisecond

// LogSink writes failures to a logger.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Report logs f. The stack of a panic is logged at debug level.
func (s *LogSink) Report(f Failure) {
	s.logger.Error().
		Err(f.Err).
		Str("component", f.Component).
		Uint64("tick", f.Tick).
		Bool("forced", f.Forced).
		Msg("unexpected failure")

	var execErr *ComponentExecutionError
	if errors.As(f.Err, &execErr) && execErr.Stack != nil {
		s.logger.Debug().
			Str("component", f.Component).
			Bytes("stack", execErr.Stack).
			Msg("panic stack")
	}
}

// RateLimitedSink forwards a failure only when the previous failure, reported
// or not, is older than the interval. Forced failures are always forwarded.
// A component that keeps failing is therefore reported once.
type RateLimitedSink struct {
	next     FailureSink
	clock    timing.Clock
	interval time.Duration

	lock       sync.Mutex
	last       time.Duration
	seen       bool
	suppressed int
}

// NewRateLimitedSink wraps next.
func NewRateLimitedSink(
	next FailureSink,
	clock timing.Clock,
	interval time.Duration,
) *RateLimitedSink {
	if clock == nil {
		clock = timing.NewMonotonicClock()
	}

	return &RateLimitedSink{
		next:     next,
		clock:    clock,
		interval: interval,
	}
}

// Report forwards or drops f.
func (s *RateLimitedSink) Report(f Failure) {
	now := s.clock.Now()

	s.lock.Lock()
	forward := f.Forced || !s.seen || now-s.last > s.interval
	s.last = now
	s.seen = true
	if !forward {
		s.suppressed++
	}
	s.lock.Unlock()

	if forward {
		s.next.Report(f)
	}
}

// Suppressed returns the number of failures dropped so far.
func (s *RateLimitedSink) Suppressed() int {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.suppressed
}

// EscalatingSink halts the program on any failure unless it runs in
// competition, where failures are only contained.
type EscalatingSink struct {
	competition bool
	halt        func(f Failure)
}

// NewEscalatingSink creates an EscalatingSink. halt is called with the
// failure outside competition.
func NewEscalatingSink(competition bool, halt func(f Failure)) *EscalatingSink {
	if halt == nil {
		panic("escalating sink requires a halt function")
	}

	return &EscalatingSink{competition: competition, halt: halt}
}

// Report escalates f outside competition.
func (s *EscalatingSink) Report(f Failure) {
	if s.competition {
		return
	}

	s.halt(f)
}
