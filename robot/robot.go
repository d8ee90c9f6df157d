// Package robot ties the injection container, the scheduler, tunables and the
// autonomous selector into one robot program driven by the host loop.
package robot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sarchlab/magicbot/autonomous"
	"github.com/sarchlab/magicbot/inject"
	"github.com/sarchlab/magicbot/reset"
	"github.com/sarchlab/magicbot/scheduler"
	"github.com/sarchlab/magicbot/timing"
	"github.com/sarchlab/magicbot/tunable"
)

// HaltError is returned by Run when a failure was escalated.
type HaltError struct {
	Failure scheduler.Failure
}

func (e *HaltError) Error() string {
	return fmt.Sprintf("robot halted: %v", e.Failure.Err)
}

func (e *HaltError) Unwrap() error {
	return e.Failure.Err
}

// Robot is a built robot program.
type Robot struct {
	id        string
	clock     timing.Clock
	logger    zerolog.Logger
	callbacks Callbacks

	container *inject.Container
	scheduler *scheduler.Scheduler
	binder    *tunable.Binder
	resets    *reset.Registry
	selector  *autonomous.Selector

	modeTunable *tunable.Tunable[string]
	lastMode    Mode

	loopLock sync.Mutex

	lock     sync.Mutex
	mode     Mode
	halted   *HaltError
	loopStat timing.LoopStats
}

// ID returns the unique ID of this run.
func (r *Robot) ID() string {
	return r.id
}

// Container returns the resolved components.
func (r *Robot) Container() *inject.Container {
	return r.container
}

// Scheduler returns the scheduler.
func (r *Robot) Scheduler() *scheduler.Scheduler {
	return r.scheduler
}

// Binder returns the tunable binder.
func (r *Robot) Binder() *tunable.Binder {
	return r.binder
}

// Resets returns the reset registry.
func (r *Robot) Resets() *reset.Registry {
	return r.resets
}

// Selector returns the autonomous mode selector.
func (r *Robot) Selector() *autonomous.Selector {
	return r.selector
}

// Clock returns the clock of the robot.
func (r *Robot) Clock() timing.Clock {
	return r.clock
}

// SetMode sets the mode Run passes to LoopFunc. It may be called from any
// goroutine.
func (r *Robot) SetMode(m Mode) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.mode = m
}

// Mode returns the mode set by SetMode.
func (r *Robot) Mode() Mode {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.mode
}

// Tick runs one control cycle of the components.
func (r *Robot) Tick() {
	r.loopLock.Lock()
	defer r.loopLock.Unlock()

	r.scheduler.Tick()
}

// Inspect calls fn between two loop periods, when no component runs. Readers
// on other goroutines, such as the monitor, look at components through it.
func (r *Robot) Inspect(fn func()) {
	r.loopLock.Lock()
	defer r.loopLock.Unlock()

	fn()
}

// LoopFunc runs one period of the host loop in mode m.
func (r *Robot) LoopFunc(m Mode) {
	r.loopLock.Lock()
	defer r.loopLock.Unlock()

	if m != r.lastMode {
		r.transition(r.lastMode, m)
		r.lastMode = m
		r.modeTunable.Set(m.String())
	}

	switch m {
	case ModeAutonomous:
		r.scheduler.TickWith(r.selector.Periodic)
	case ModeTeleop:
		r.scheduler.TickWith(func() {
			r.call("teleopPeriodic", r.callbacks.TeleopPeriodic, false)
		})
	case ModeTest:
		r.binder.BeginCycle()
		r.call("testPeriodic", r.callbacks.TestPeriodic, false)
	default:
		r.binder.BeginCycle()
		r.call("disabledPeriodic", r.callbacks.DisabledPeriodic, false)
	}

	r.binder.PublishFeedback()
	r.call("robotPeriodic", r.callbacks.RobotPeriodic, false)
}

func (r *Robot) transition(from, to Mode) {
	r.logger.Info().Str("from", from.String()).Str("to", to.String()).
		Msg("mode change")

	if from == ModeAutonomous {
		r.selector.Stop()
	}

	switch to {
	case ModeDisabled:
		r.scheduler.Disable()
		r.call("disabledInit", r.callbacks.DisabledInit, true)
	case ModeAutonomous:
		r.scheduler.Enable()
		r.call("autonomousInit", r.callbacks.AutonomousInit, true)
		r.selector.Start()
	case ModeTeleop:
		r.scheduler.Enable()
		r.call("teleopInit", r.callbacks.TeleopInit, true)
	case ModeTest:
		r.call("testInit", r.callbacks.TestInit, true)
	}
}

func (r *Robot) call(name string, fn func() error, forced bool) {
	if fn == nil {
		return
	}

	if err := scheduler.Contain(name, fn); err != nil {
		r.scheduler.Report(scheduler.Failure{
			Component: name,
			Err:       err,
			Time:      r.clock.Now(),
			Forced:    forced,
		})
	}
}

func (r *Robot) halt(f scheduler.Failure) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.halted == nil {
		r.halted = &HaltError{Failure: f}
	}
}

// Halted returns the escalated failure, if any.
func (r *Robot) Halted() error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.halted == nil {
		return nil
	}

	return r.halted
}

// LoopStats returns the statistics of the loop started by Run.
func (r *Robot) LoopStats() timing.LoopStats {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.loopStat
}

// Run calls LoopFunc every period with the mode set by SetMode until ctx is
// done or a failure halts the robot.
func (r *Robot) Run(ctx context.Context, period time.Duration) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var loop *timing.Loop
	loop = timing.NewLoop(timing.TickerFunc(func() {
		r.LoopFunc(r.Mode())

		r.lock.Lock()
		r.loopStat = loop.Stats()
		halted := r.halted != nil
		r.lock.Unlock()

		if halted {
			cancel()
		}
	}), timing.FreqOf(period), r.clock, r.logger)

	r.logger.Info().Str("run", r.id).Dur("period", period).Msg("robot started")
	err := loop.Run(ctx, 0)

	if halted := r.Halted(); halted != nil {
		return halted
	}

	return err
}
