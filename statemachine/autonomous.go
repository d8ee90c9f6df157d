package statemachine

import (
	"time"

	"github.com/sarchlab/magicbot/timing"
)

// Autonomous is a Machine used as an autonomous mode. Once enabled it engages
// itself every iteration until it stops, so it runs to completion once
// instead of looping back to the first state. Transitions are logged.
type Autonomous struct {
	*Machine

	armed bool
}

// NewAutonomous creates an autonomous mode called name.
func NewAutonomous(
	name string,
	table *Table,
	clock timing.Clock,
	opts ...Option,
) *Autonomous {
	opts = append([]Option{WithVerboseLogging()}, opts...)

	a := &Autonomous{Machine: New(name, table, clock, opts...)}
	a.onDone = func() {
		a.shouldEngage = false
		a.armed = false
	}

	return a
}

// OnEnable arms the mode.
func (a *Autonomous) OnEnable() {
	a.Machine.OnEnable()
	a.armed = true
}

// OnIteration engages and evaluates the machine while it is armed.
func (a *Autonomous) OnIteration(_ time.Duration) error {
	if !a.armed {
		return nil
	}

	a.Engage()
	err := a.Execute()
	a.armed = a.IsExecuting()

	return err
}

// Armed tells whether the mode will keep engaging itself.
func (a *Autonomous) Armed() bool {
	return a.armed
}
