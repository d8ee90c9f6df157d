package robot

import (
	"github.com/sarchlab/magicbot/inject"
)

// Slot is a named component declaration.
type Slot struct {
	Name    string
	Def     inject.Definition
	Options []inject.SlotOption
}

// Provided is a value that is injected but not constructed, such as a
// hardware handle.
type Provided struct {
	Name  string
	Value any
}

// Callbacks are the operator hooks of a robot program. Any of them may be nil.
// Init callbacks run when the robot enters the mode, periodic ones every loop
// while in it.
type Callbacks struct {
	RobotPeriodic func() error

	DisabledInit     func() error
	DisabledPeriodic func() error

	AutonomousInit func() error

	TeleopInit     func() error
	TeleopPeriodic func() error

	TestInit     func() error
	TestPeriodic func() error
}

// Declaration describes a robot program. Components execute in the order
// they are listed: high-level automation first, hardware-facing components
// last.
type Declaration struct {
	Provided   []Provided
	Components []Slot
	Modes      []Slot
	Callbacks  Callbacks
}
