package timing

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// A Ticker is an object that updates its state once per control period.
type Ticker interface {
	Tick()
}

// TickerFunc adapts a plain function to the Ticker interface.
type TickerFunc func()

// Tick calls f.
func (f TickerFunc) Tick() {
	f()
}

// LoopStats summarizes how well a Loop kept its cadence.
type LoopStats struct {
	Ticks    uint64
	Overruns uint64
	Longest  time.Duration
	Last     time.Duration
}

// Loop is the periodic host that calls a Ticker once per period. It is the
// only place in the module that waits.
type Loop struct {
	ticker Ticker
	freq   Freq
	clock  Clock
	logger zerolog.Logger

	stats LoopStats
}

// NewLoop creates a loop that ticks t at the given frequency.
func NewLoop(t Ticker, freq Freq, clock Clock, logger zerolog.Logger) *Loop {
	if t == nil {
		panic("loop requires a ticker")
	}

	if clock == nil {
		clock = NewMonotonicClock()
	}

	return &Loop{
		ticker: t,
		freq:   freq,
		clock:  clock,
		logger: logger,
	}
}

// Stats returns the statistics collected so far.
func (l *Loop) Stats() LoopStats {
	return l.stats
}

// RunOnce performs a single tick and measures it.
func (l *Loop) RunOnce() {
	start := l.clock.Now()
	l.ticker.Tick()
	spent := l.clock.Now() - start

	l.stats.Ticks++
	l.stats.Last = spent
	if spent > l.stats.Longest {
		l.stats.Longest = spent
	}

	if spent > l.freq.Period() {
		l.stats.Overruns++
		l.logger.Warn().
			Dur("spent", spent).
			Dur("period", l.freq.Period()).
			Uint64("tick", l.stats.Ticks).
			Msg("loop overrun")
	}
}

// Run ticks until ctx is cancelled or n ticks have been performed. n <= 0
// means no limit.
func (l *Loop) Run(ctx context.Context, n int) error {
	t := time.NewTicker(l.freq.Period())
	defer t.Stop()

	for i := 0; n <= 0 || i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		l.RunOnce()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}

	return nil
}
