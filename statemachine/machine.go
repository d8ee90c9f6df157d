package statemachine

import (
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/sarchlab/magicbot/hooking"
	"github.com/sarchlab/magicbot/timing"
	"github.com/sarchlab/magicbot/tunable"
)

// HookPosStateEnter marks a state being entered. The hook item is the state
// name.
var HookPosStateEnter = &hooking.HookPos{Name: "StateEnter"}

// HookPosDone marks a machine stopping.
var HookPosDone = &hooking.HookPos{Name: "StateMachineDone"}

const never = time.Duration(math.MaxInt64)

type stateRun struct {
	index   int
	ran     bool
	start   time.Duration
	expires time.Duration
}

// Machine runs the states of a Table. A Machine is not safe for concurrent
// use; it is evaluated on the control loop thread only.
type Machine struct {
	*hooking.HookableBase

	name    string
	table   *Table
	clock   timing.Clock
	logger  zerolog.Logger
	verbose bool

	shouldEngage bool
	engaged      bool
	start        time.Duration
	current      *stateRun
	runs         []stateRun

	currentState      *tunable.Tunable[string]
	durations         []*tunable.Tunable[float64]
	stateNames        *tunable.Tunable[[]string]
	stateDescriptions *tunable.Tunable[[]string]

	onDone func()
}

// An Option configures a Machine.
type Option func(*Machine)

// WithLogger sets the logger of the machine.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Machine) {
		m.logger = logger
	}
}

// WithVerboseLogging logs every state entered and every stop.
func WithVerboseLogging() Option {
	return func(m *Machine) {
		m.verbose = true
	}
}

// New creates a stopped machine.
func New(name string, table *Table, clock timing.Clock, opts ...Option) *Machine {
	if table == nil {
		panic("state machine requires a table")
	}

	if clock == nil {
		clock = timing.NewMonotonicClock()
	}

	m := &Machine{
		HookableBase: hooking.NewHookableBase(),
		name:         name,
		table:        table,
		clock:        clock,
		logger:       zerolog.Nop(),
		runs:         make([]stateRun, len(table.states)),
	}

	for i := range m.runs {
		m.runs[i] = stateRun{index: i, expires: never}
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// BindTunables publishes the machine under <owner>/state: the current state,
// the state names and descriptions, and one <state>_duration tunable per
// timed state. Durations are in seconds and are read each time the state is
// entered, so they can be tuned while the program runs.
func (m *Machine) BindTunables(b *tunable.Binder, owner string) {
	sub := tunable.Subtable("state")

	m.currentState = tunable.Bind(b, owner, "current_state", "", sub)
	m.stateNames = tunable.Bind(b, owner, "state_names", m.table.Names(), sub)
	m.stateDescriptions = tunable.Bind(b, owner, "state_descriptions",
		m.table.Descriptions(), sub)

	m.durations = make([]*tunable.Tunable[float64], len(m.table.states))
	for i, s := range m.table.states {
		if !s.Timed() {
			continue
		}

		m.durations[i] = tunable.Bind(b, owner, s.Name+"_duration",
			s.Duration.Seconds(), sub, tunable.WriteDefault(false))
	}

	if m.current != nil {
		m.currentState.Set(m.stateOf(m.current).Name)
	}
}

// Name returns the name of the machine.
func (m *Machine) Name() string {
	return m.name
}

// Table returns the states of the machine.
func (m *Machine) Table() *Table {
	return m.table
}

// CurrentState returns the name of the state that will run next, or "" when
// the machine is stopped.
func (m *Machine) CurrentState() string {
	if m.current == nil {
		return ""
	}

	return m.stateOf(m.current).Name
}

// IsExecuting tells whether the machine is running states.
func (m *Machine) IsExecuting() bool {
	return m.engaged
}

// OnEnable is called when the robot is enabled.
func (m *Machine) OnEnable() {}

// OnDisable is called when the robot is disabled. It stops the machine.
func (m *Machine) OnDisable() {
	m.Done()
}

// Engage asks the machine to run this cycle. A stopped machine, or one
// running its default state, starts at the first state.
func (m *Machine) Engage() {
	m.shouldEngage = true

	if m.idle() {
		m.transition(m.table.first)
	}
}

// EngageAt is like Engage but starts at the named state.
func (m *Machine) EngageAt(name string) error {
	i, err := m.indexOf(name)
	if err != nil {
		return err
	}

	m.shouldEngage = true

	if m.idle() {
		m.transition(i)
	}

	return nil
}

// ForceEngage engages the machine and switches to the named state even when
// another state is active. An empty name means the first state.
func (m *Machine) ForceEngage(name string) error {
	i, err := m.indexOf(name)
	if err != nil {
		return err
	}

	m.shouldEngage = true
	m.transition(i)

	return nil
}

// NextState switches to the named state. Its handler runs at the next
// evaluation.
func (m *Machine) NextState(name string) error {
	i, err := m.indexOf(name)
	if err != nil {
		return err
	}

	m.transition(i)

	return nil
}

// NextStateNow switches to the named state and evaluates the machine again
// right away, so the new state's handler runs within the current call.
func (m *Machine) NextStateNow(name string) error {
	if err := m.NextState(name); err != nil {
		return err
	}

	return m.Execute()
}

// Done stops the machine.
func (m *Machine) Done() {
	if m.current != nil {
		if m.verbose {
			m.logger.Info().Str("machine", m.name).Msg("stopped state machine execution")
		}

		m.InvokeHook(hooking.HookCtx{
			Domain: m,
			Pos:    HookPosDone,
			Item:   m.name,
		})
	}

	m.current = nil
	m.engaged = false
	m.publishCurrent("")

	if m.onDone != nil {
		m.onDone()
	}
}

// Execute evaluates the machine once. The owning component calls it from its
// execute step every cycle. Errors returned by handlers are wrapped in
// HandlerError; panics are not recovered.
func (m *Machine) Execute() error {
	now := m.clock.Now()

	if !m.engaged {
		if m.shouldEngage {
			m.start = now
			m.engaged = true
		} else if m.table.def < 0 {
			return nil
		}
	}

	tm := now - m.start
	run := m.current
	doneCalled := false

	// Chained timed states start when the previous one expired, not when it
	// was noticed, so their total time does not drift.
	newStart := tm

	if run != nil && run.ran && tm >= run.expires {
		newStart = run.expires
		next := m.stateOf(run).Next

		if next == "" {
			doneCalled = true
			m.Done()

			run = nil
			if m.shouldEngage {
				m.transition(m.table.first)
				run = m.current
			}
		} else {
			m.transition(m.table.index[next])
			run = m.current
		}
	}

	if run != nil && !m.shouldEngage && !m.stateOf(run).MustFinish {
		run = nil
	}

	if run == nil && m.table.def >= 0 {
		run = &m.runs[m.table.def]
		if m.current != run {
			run.ran = false
			m.current = run
		}
	}

	var err error

	switch {
	case run != nil:
		err = m.runState(run, tm, newStart)
	case !doneCalled:
		m.Done()
	}

	m.shouldEngage = false

	return err
}

func (m *Machine) runState(run *stateRun, tm, newStart time.Duration) error {
	s := m.stateOf(run)

	initial := !run.ran
	if initial {
		run.ran = true
		run.start = newStart
		run.expires = never

		if s.Timed() {
			run.expires = newStart + m.durationOf(run.index)
		}

		if m.verbose {
			m.logger.Info().
				Str("machine", m.name).
				Dur("elapsed", tm).
				Str("state", s.Name).
				Msg("entering state")
		}

		m.InvokeHook(hooking.HookCtx{
			Domain: m,
			Pos:    HookPosStateEnter,
			Item:   s.Name,
			Detail: tm,
		})
	}

	err := s.Handler(Run{
		Elapsed:      tm,
		StateElapsed: tm - run.start,
		InitialCall:  initial,
	})
	if err != nil {
		return &HandlerError{State: s.Name, Err: err}
	}

	return nil
}

func (m *Machine) idle() bool {
	return m.current == nil ||
		(m.table.def >= 0 && m.current.index == m.table.def)
}

func (m *Machine) transition(i int) {
	run := &m.runs[i]
	run.ran = false
	m.current = run
	m.publishCurrent(m.table.states[i].Name)
}

func (m *Machine) publishCurrent(name string) {
	if m.currentState != nil {
		m.currentState.Set(name)
	}
}

func (m *Machine) indexOf(name string) (int, error) {
	if name == "" {
		return m.table.first, nil
	}

	i, found := m.table.index[name]
	if !found {
		return 0, &UnknownStateError{Name: name}
	}

	return i, nil
}

const maxDurationSeconds = float64(math.MaxInt64 / int64(time.Second))

// durationOf returns the tuned duration of state i. Tuned values that are
// negative, not finite, or too large for a time.Duration fall back to the
// declared duration.
func (m *Machine) durationOf(i int) time.Duration {
	declared := m.table.states[i].Duration
	if m.durations == nil || m.durations[i] == nil {
		return declared
	}

	tuned := m.durations[i].Get()
	if tuned < 0 || math.IsNaN(tuned) || tuned > maxDurationSeconds {
		m.logger.Warn().
			Str("machine", m.name).
			Str("state", m.table.states[i].Name).
			Float64("seconds", tuned).
			Msg("invalid tuned state duration, using declared duration")

		return declared
	}

	return timing.Seconds(tuned)
}

func (m *Machine) stateOf(run *stateRun) State {
	return m.table.states[run.index]
}
