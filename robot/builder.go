package robot

import (
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"github.com/sarchlab/magicbot/autonomous"
	"github.com/sarchlab/magicbot/hooking"
	"github.com/sarchlab/magicbot/inject"
	"github.com/sarchlab/magicbot/kvstore"
	"github.com/sarchlab/magicbot/reset"
	"github.com/sarchlab/magicbot/scheduler"
	"github.com/sarchlab/magicbot/timing"
	"github.com/sarchlab/magicbot/tunable"
)

// NotExecutableError is returned when a declared component has no execute
// step.
type NotExecutableError struct {
	Component string
	Type      string
}

func (e *NotExecutableError) Error() string {
	return fmt.Sprintf("component %s (%s) has no Execute method",
		e.Component, e.Type)
}

// NotAModeError is returned when a declared autonomous mode does not
// implement autonomous.Mode.
type NotAModeError struct {
	Name string
	Type string
}

func (e *NotAModeError) Error() string {
	return fmt.Sprintf("%s (%s) is not an autonomous mode", e.Name, e.Type)
}

// Builder can be used to build a robot.
type Builder struct {
	clock          timing.Clock
	store          tunable.Store
	namespace      string
	sinks          []scheduler.FailureSink
	hooks          []hooking.Hook
	competition    bool
	reportInterval time.Duration
	halt           func(scheduler.Failure)
	logger         zerolog.Logger
}

// MakeBuilder creates a new builder.
func MakeBuilder() Builder {
	return Builder{
		namespace:      "components",
		reportInterval: scheduler.DefaultReportInterval,
		logger:         zerolog.Nop(),
	}
}

// WithClock sets the clock. Tests use a timing.ManualClock.
func (b Builder) WithClock(clock timing.Clock) Builder {
	b.clock = clock
	return b
}

// WithStore sets the key/value store behind tunables.
func (b Builder) WithStore(store tunable.Store) Builder {
	b.store = store
	return b
}

// WithNamespace sets the path prefix of component tunables.
func (b Builder) WithNamespace(namespace string) Builder {
	b.namespace = namespace
	return b
}

// WithFailureSink adds a sink for contained failures.
func (b Builder) WithFailureSink(sink scheduler.FailureSink) Builder {
	b.sinks = append(b.sinks, sink)
	return b
}

// WithHook attaches a hook to the scheduler and to every hookable
// component, such as state machines.
func (b Builder) WithHook(hook hooking.Hook) Builder {
	b.hooks = append(b.hooks, hook)
	return b
}

// WithCompetition makes failures contained only. Outside competition the
// first failure halts the robot.
func (b Builder) WithCompetition(competition bool) Builder {
	b.competition = competition
	return b
}

// WithReportInterval sets the minimum time between two logged failures.
func (b Builder) WithReportInterval(interval time.Duration) Builder {
	b.reportInterval = interval
	return b
}

// WithHaltFunc replaces what happens when a failure is escalated outside
// competition. By default the robot stops running.
func (b Builder) WithHaltFunc(halt func(scheduler.Failure)) Builder {
	b.halt = halt
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(logger zerolog.Logger) Builder {
	b.logger = logger
	return b
}

func (b Builder) parametersMustBeValid() {
	if b.reportInterval < 0 {
		panic("report interval cannot be negative")
	}
}

// Build resolves the declaration into a robot.
func (b Builder) Build(decl Declaration) (*Robot, error) {
	b.parametersMustBeValid()

	if b.clock == nil {
		b.clock = timing.NewMonotonicClock()
	}

	if b.store == nil {
		b.store = kvstore.NewMemory()
	}

	r := &Robot{
		id:        xid.New().String(),
		clock:     b.clock,
		logger:    b.logger,
		callbacks: decl.Callbacks,
		binder: tunable.NewBinder(b.store, b.namespace,
			tunable.WithLogger(b.logger)),
		resets: reset.NewRegistry(),
	}

	c, err := b.resolve(decl)
	if err != nil {
		return nil, err
	}
	r.container = c

	inject.Each(c, func(name string, rc reset.Resettable) {
		r.resets.RegisterComponent(name, rc)
	})
	inject.Each(c, func(name string, bt tunable.Bindable) {
		bt.BindTunables(r.binder, name)
	})
	inject.Each(c, func(_ string, h hooking.Hookable) {
		for _, hook := range b.hooks {
			h.AcceptHook(hook)
		}
	})

	r.scheduler = b.buildScheduler(r)

	for _, name := range c.ExecutionOrder() {
		v, _ := c.Get(name)

		comp, ok := v.(scheduler.Component)
		if !ok {
			return nil, &NotExecutableError{
				Component: name,
				Type:      fmt.Sprintf("%T", v),
			}
		}

		r.scheduler.Add(name, comp)
	}

	r.selector, err = b.buildSelector(decl, r)
	if err != nil {
		return nil, err
	}

	root := r.binder.Sub("")
	r.modeTunable = tunable.Bind(root, "robot", "mode", ModeNone.String())

	return r, nil
}

func (b Builder) resolve(decl Declaration) (*inject.Container, error) {
	ib := inject.NewBuilder().WithLogger(b.logger)

	for _, p := range decl.Provided {
		ib.Provide(p.Name, p.Value)
	}

	for _, s := range decl.Components {
		ib.Add(s.Name, s.Def, s.Options...)
	}

	for _, s := range decl.Modes {
		opts := append([]inject.SlotOption{inject.NoExecute()}, s.Options...)
		ib.Add(s.Name, s.Def, opts...)
	}

	return ib.Resolve()
}

func (b Builder) buildScheduler(r *Robot) *scheduler.Scheduler {
	report := scheduler.NewRateLimitedSink(
		scheduler.NewLogSink(b.logger), b.clock, b.reportInterval)

	halt := b.halt
	if halt == nil {
		halt = r.halt
	}

	opts := []scheduler.Option{
		scheduler.WithLogger(b.logger),
		scheduler.WithFailureSink(report),
	}
	for _, sink := range b.sinks {
		opts = append(opts, scheduler.WithFailureSink(sink))
	}
	opts = append(opts, scheduler.WithFailureSink(
		scheduler.NewEscalatingSink(b.competition, halt)))

	s := scheduler.New(r.resets, r.binder, b.clock, opts...)
	for _, h := range b.hooks {
		s.AcceptHook(h)
	}

	return s
}

func (b Builder) buildSelector(
	decl Declaration,
	r *Robot,
) (*autonomous.Selector, error) {
	modes := make([]autonomous.Mode, 0, len(decl.Modes))

	for _, s := range decl.Modes {
		mode, ok := inject.Get[autonomous.Mode](r.container, s.Name)
		if !ok {
			v, _ := r.container.Get(s.Name)
			return nil, &NotAModeError{Name: s.Name, Type: fmt.Sprintf("%T", v)}
		}

		modes = append(modes, mode)
	}

	return autonomous.NewSelector(modes, r.binder,
		autonomous.WithClock(b.clock),
		autonomous.WithLogger(b.logger),
		autonomous.WithFailureSink(r.scheduler))
}
