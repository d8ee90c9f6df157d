// Package autonomous picks one autonomous mode out of many and runs it while
// the robot is in autonomous.
package autonomous

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sarchlab/magicbot/scheduler"
	"github.com/sarchlab/magicbot/timing"
	"github.com/sarchlab/magicbot/tunable"
)

// None is the option that runs no mode.
const None = "None"

// Mode is an autonomous routine.
type Mode interface {
	Name() string
	OnEnable()
	OnDisable()
	OnIteration(tm time.Duration) error
}

// Defaulter is implemented by a mode that is selected unless the operator
// picks another one.
type Defaulter interface {
	Default() bool
}

// Disabler is implemented by a mode that can be switched off without being
// removed from the program.
type Disabler interface {
	Disabled() bool
}

// DuplicateModeError is returned when two modes share a name.
type DuplicateModeError struct {
	Name string
}

func (e *DuplicateModeError) Error() string {
	return fmt.Sprintf("duplicate autonomous mode %q", e.Name)
}

// MultipleDefaultModesError is returned when more than one mode is default.
type MultipleDefaultModesError struct {
	Modes []string
}

func (e *MultipleDefaultModesError) Error() string {
	return fmt.Sprintf("more than one autonomous mode is default: %s",
		strings.Join(e.Modes, ", "))
}

// Selector runs the mode chosen through the /autonomous/selected tunable.
type Selector struct {
	modes    map[string]Mode
	names    []string
	selected *tunable.Tunable[string]
	clock    timing.Clock
	logger   zerolog.Logger
	sink     scheduler.FailureSink

	active Mode
	start  time.Duration
}

// An Option configures a Selector.
type Option func(*Selector)

// WithClock sets the clock used to measure the time since Start.
func WithClock(clock timing.Clock) Option {
	return func(s *Selector) {
		s.clock = clock
	}
}

// WithLogger sets the logger of the selector.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Selector) {
		s.logger = logger
	}
}

// WithFailureSink sets where contained mode failures go.
func WithFailureSink(sink scheduler.FailureSink) Option {
	return func(s *Selector) {
		s.sink = sink
	}
}

// NewSelector registers modes and publishes the options under
// /autonomous/options. Disabled modes are skipped.
func NewSelector(
	modes []Mode,
	binder *tunable.Binder,
	opts ...Option,
) (*Selector, error) {
	s := &Selector{
		modes:  make(map[string]Mode),
		logger: zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.clock == nil {
		s.clock = timing.NewMonotonicClock()
	}

	var defaults []string

	for _, m := range modes {
		name := m.Name()

		if d, ok := m.(Disabler); ok && d.Disabled() {
			s.logger.Warn().Str("mode", name).Msg("autonomous mode is marked as disabled")
			continue
		}

		if _, dup := s.modes[name]; dup || name == None {
			return nil, &DuplicateModeError{Name: name}
		}

		s.modes[name] = m
		s.names = append(s.names, name)

		if d, ok := m.(Defaulter); ok && d.Default() {
			defaults = append(defaults, name)
		}
	}

	sort.Strings(s.names)
	sort.Strings(defaults)

	if len(defaults) > 1 {
		return nil, &MultipleDefaultModesError{Modes: defaults}
	}

	def := None
	if len(defaults) == 1 {
		def = defaults[0]
	}

	if len(s.names) == 0 {
		s.logger.Warn().Msg("no autonomous modes were loaded")
	}

	if binder != nil {
		root := binder.Sub("")
		tunable.Bind(root, "autonomous", "options", s.Options())
		tunable.Bind(root, "autonomous", "default", def)
		s.selected = tunable.Bind(root, "autonomous", "selected", def,
			tunable.WriteDefault(false))
	}

	for _, name := range s.names {
		if name == def {
			s.logger.Info().Str("mode", name).Msg("loaded autonomous mode [default]")
		} else {
			s.logger.Info().Str("mode", name).Msg("loaded autonomous mode")
		}
	}

	return s, nil
}

// Options lists the selectable names, modes first in lexical order, then
// None.
func (s *Selector) Options() []string {
	return append(append([]string(nil), s.names...), None)
}

// Modes returns the registered modes in lexical order of their names.
func (s *Selector) Modes() []Mode {
	modes := make([]Mode, 0, len(s.names))
	for _, name := range s.names {
		modes = append(modes, s.modes[name])
	}

	return modes
}

// Active returns the name of the running mode, or None.
func (s *Selector) Active() string {
	if s.active == nil {
		return None
	}

	return s.active.Name()
}

// Select overrides the chosen mode.
func (s *Selector) Select(name string) error {
	if _, found := s.modes[name]; !found && name != None {
		return fmt.Errorf("unknown autonomous mode %q", name)
	}

	if s.selected != nil {
		s.selected.Set(name)
	}

	return nil
}

// Start enables the chosen mode.
func (s *Selector) Start() {
	s.start = s.clock.Now()
	s.active = nil

	name := None
	if s.selected != nil {
		name = s.selected.Get()
	}

	mode, found := s.modes[name]
	if !found {
		if name != None {
			s.logger.Warn().Str("mode", name).Msg("selected autonomous mode does not exist")
		}

		s.logger.Warn().Msg("no autonomous modes were selected, not running autonomous mode")

		return
	}

	s.active = mode
	s.logger.Info().Str("mode", name).Msg("enabling autonomous mode")
	s.guard(name, true, func() error {
		mode.OnEnable()
		return nil
	})
}

// Periodic runs one iteration of the active mode.
func (s *Selector) Periodic() {
	if s.active == nil {
		return
	}

	tm := s.clock.Now() - s.start
	s.guard(s.active.Name(), false, func() error {
		return s.active.OnIteration(tm)
	})
}

// Stop disables the active mode.
func (s *Selector) Stop() {
	if s.active == nil {
		return
	}

	mode := s.active
	s.active = nil

	s.logger.Info().Str("mode", mode.Name()).Msg("disabling autonomous mode")
	s.guard(mode.Name(), true, func() error {
		mode.OnDisable()
		return nil
	})
}

func (s *Selector) guard(name string, forced bool, fn func() error) {
	err := scheduler.Contain(name, fn)
	if err == nil {
		return
	}

	if s.sink == nil {
		s.logger.Error().Err(err).Str("mode", name).Msg("autonomous mode failed")
		return
	}

	s.sink.Report(scheduler.Failure{
		Component: name,
		Err:       err,
		Time:      s.clock.Now(),
		Forced:    forced,
	})
}
