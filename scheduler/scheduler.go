// Package scheduler runs the control cycle: it restores reset attributes,
// then calls every component's execute step in declaration order, containing
// failures so that one broken component cannot stop the others.
package scheduler

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sarchlab/magicbot/hooking"
	"github.com/sarchlab/magicbot/reset"
	"github.com/sarchlab/magicbot/timing"
	"github.com/sarchlab/magicbot/tunable"
)

// HookPosBeforeTick triggers at the start of a tick. The item is the tick
// number.
var HookPosBeforeTick = &hooking.HookPos{Name: "BeforeTick"}

// HookPosBeforeExecute triggers before a component executes. The item is
// the component name.
var HookPosBeforeExecute = &hooking.HookPos{Name: "BeforeExecute"}

// HookPosAfterExecute triggers after a component executes. The item is the
// component name and the detail the time it took.
var HookPosAfterExecute = &hooking.HookPos{Name: "AfterExecute"}

// HookPosFailure triggers when a failure is contained. The item is the
// component name and the detail the Failure.
var HookPosFailure = &hooking.HookPos{Name: "Failure"}

// HookPosAfterTick triggers at the end of a tick. The item is the tick number
// and the detail the time the tick took.
var HookPosAfterTick = &hooking.HookPos{Name: "AfterTick"}

// Component is anything with an execute step.
type Component interface {
	Execute() error
}

// EnableAware components are told when the robot is enabled.
type EnableAware interface {
	OnEnable()
}

// DisableAware components are told when the robot is disabled.
type DisableAware interface {
	OnDisable()
}

type entry struct {
	name      string
	component Component
}

// Scheduler calls components once per tick.
type Scheduler struct {
	*hooking.HookableBase

	resets *reset.Registry
	binder *tunable.Binder
	clock  timing.Clock
	logger zerolog.Logger

	entries []entry
	sinks   []FailureSink

	lock         sync.Mutex
	tick         uint64
	paused       bool
	failures     []Failure
	historyLimit int
}

// An Option configures a Scheduler.
type Option func(*Scheduler)

// WithFailureSink adds a sink that receives every contained failure.
func WithFailureSink(sink FailureSink) Option {
	return func(s *Scheduler) {
		s.sinks = append(s.sinks, sink)
	}
}

// WithLogger sets the logger used for failures of hooks and sinks.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithFailureHistory sets how many recent failures Failures keeps.
func WithFailureHistory(n int) Option {
	return func(s *Scheduler) {
		s.historyLimit = n
	}
}

// New creates a Scheduler. resets and binder may be nil.
func New(
	resets *reset.Registry,
	binder *tunable.Binder,
	clock timing.Clock,
	opts ...Option,
) *Scheduler {
	if clock == nil {
		clock = timing.NewMonotonicClock()
	}

	s := &Scheduler{
		HookableBase: hooking.NewHookableBase(),
		resets:       resets,
		binder:       binder,
		clock:        clock,
		logger:       zerolog.Nop(),
		historyLimit: 64,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Add appends a component to the execution order. Names must be unique.
func (s *Scheduler) Add(name string, c Component) {
	if c == nil {
		panic(fmt.Sprintf("component %s is nil", name))
	}

	for _, e := range s.entries {
		if e.name == name {
			panic(fmt.Sprintf("component %s is added twice", name))
		}
	}

	s.entries = append(s.entries, entry{name: name, component: c})
}

// AddFailureSink adds a sink after construction.
func (s *Scheduler) AddFailureSink(sink FailureSink) {
	s.sinks = append(s.sinks, sink)
}

// Components lists the component names in execution order.
func (s *Scheduler) Components() []string {
	names := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		names = append(names, e.name)
	}

	return names
}

// Clock returns the clock of the scheduler.
func (s *Scheduler) Clock() timing.Clock {
	return s.clock
}

// Tick runs one control cycle. It never panics because of a component.
func (s *Scheduler) Tick() {
	s.TickWith(nil)
}

// TickWith runs one control cycle, calling before after attributes are reset
// and before any component executes. Operator code that calls control
// methods goes there, so that its requests survive until execution.
func (s *Scheduler) TickWith(before func()) {
	start := s.clock.Now()

	s.lock.Lock()
	s.tick++
	tick := s.tick
	paused := s.paused
	s.lock.Unlock()

	s.invokeHook(hooking.HookCtx{Domain: s, Pos: HookPosBeforeTick, Item: tick})

	if s.binder != nil {
		s.binder.BeginCycle()
	}

	if s.resets != nil {
		s.resets.ResetAll()
	}

	if before != nil {
		before()
	}

	if !paused {
		for _, e := range s.entries {
			s.execute(tick, e)
		}
	}

	s.invokeHook(hooking.HookCtx{
		Domain: s,
		Pos:    HookPosAfterTick,
		Item:   tick,
		Detail: s.clock.Now() - start,
	})
}

func (s *Scheduler) execute(tick uint64, e entry) {
	s.invokeHook(hooking.HookCtx{
		Domain: s,
		Pos:    HookPosBeforeExecute,
		Item:   e.name,
	})

	start := s.clock.Now()

	if err := Contain(e.name, e.component.Execute); err != nil {
		s.fail(Failure{
			Component: e.name,
			Err:       err,
			Time:      s.clock.Now(),
			Tick:      tick,
		})
	}

	s.invokeHook(hooking.HookCtx{
		Domain: s,
		Pos:    HookPosAfterExecute,
		Item:   e.name,
		Detail: s.clock.Now() - start,
	})
}

// Enable calls OnEnable on every component that has it, in execution order.
func (s *Scheduler) Enable() {
	for _, e := range s.entries {
		if c, ok := e.component.(EnableAware); ok {
			s.lifecycle(e.name, c.OnEnable)
		}
	}
}

// Disable calls OnDisable on every component that has it, in execution
// order.
func (s *Scheduler) Disable() {
	for _, e := range s.entries {
		if c, ok := e.component.(DisableAware); ok {
			s.lifecycle(e.name, c.OnDisable)
		}
	}
}

func (s *Scheduler) lifecycle(name string, fn func()) {
	err := Contain(name, func() error {
		fn()
		return nil
	})

	if err != nil {
		s.Report(Failure{
			Component: name,
			Err:       err,
			Time:      s.clock.Now(),
			Forced:    true,
		})
	}
}

// Report records a failure contained outside the scheduler, such as in a
// mode callback, and forwards it to the sinks.
func (s *Scheduler) Report(f Failure) {
	s.fail(f)
}

func (s *Scheduler) fail(f Failure) {
	s.lock.Lock()
	s.failures = append(s.failures, f)
	if over := len(s.failures) - s.historyLimit; over > 0 {
		s.failures = append([]Failure(nil), s.failures[over:]...)
	}
	s.lock.Unlock()

	s.invokeHook(hooking.HookCtx{
		Domain: s,
		Pos:    HookPosFailure,
		Item:   f.Component,
		Detail: f,
	})

	for _, sink := range s.sinks {
		s.guard("failure sink", func() { sink.Report(f) })
	}
}

func (s *Scheduler) invokeHook(ctx hooking.HookCtx) {
	s.guard("hook "+ctx.Pos.Name, func() { s.InvokeHook(ctx) })
}

// guard keeps observers from breaking the tick.
func (s *Scheduler) guard(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msgf("%s panicked", what)
		}
	}()

	fn()
}

// Failures returns the most recent failures, oldest first.
func (s *Scheduler) Failures() []Failure {
	s.lock.Lock()
	defer s.lock.Unlock()

	return append([]Failure(nil), s.failures...)
}

// TickCount returns the number of ticks run so far.
func (s *Scheduler) TickCount() uint64 {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.tick
}

// Pause makes later ticks skip execute calls. Attributes are still reset.
func (s *Scheduler) Pause() {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.paused = true
}

// Continue undoes Pause.
func (s *Scheduler) Continue() {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.paused = false
}

// Paused tells whether the scheduler is paused.
func (s *Scheduler) Paused() bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.paused
}
