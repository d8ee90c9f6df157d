// Package statemachine implements named-state machines driven once per
// control cycle by the component that owns them.
package statemachine

import (
	"time"
)

// Run is what a state handler is told about the current evaluation.
type Run struct {
	// Elapsed is the time since the machine started executing.
	Elapsed time.Duration

	// StateElapsed is the time since the current state was entered.
	StateElapsed time.Duration

	// InitialCall is true the first time the handler runs after the state is
	// entered.
	InitialCall bool
}

// State describes one state of a machine.
type State struct {
	Name    string
	Handler func(r Run) error

	// First marks the state entered when the machine is engaged without an
	// explicit state. Exactly one state must be First.
	First bool

	// Duration makes the state timed when positive.
	Duration time.Duration

	// MustFinish keeps the state running even when the machine is no longer
	// engaged.
	MustFinish bool

	// Next is the state entered when a timed state expires. When empty, the
	// machine stops, or restarts at the first state if it is still engaged.
	Next string

	// Default marks the state run whenever no other state is active.
	Default bool

	Description string
}

// Timed tells whether the state has a duration.
func (s State) Timed() bool {
	return s.Duration > 0
}

// Table is a validated, immutable set of states.
type Table struct {
	states []State
	index  map[string]int
	first  int
	def    int
}

// Define validates states and builds a Table. States keep the given order.
func Define(states ...State) (*Table, error) {
	t := &Table{
		states: append([]State(nil), states...),
		index:  make(map[string]int, len(states)),
		first:  -1,
		def:    -1,
	}

	var firsts, defaults []string

	for i, s := range t.states {
		if err := validate(s); err != nil {
			return nil, err
		}

		if _, dup := t.index[s.Name]; dup {
			return nil, &DuplicateStateError{Name: s.Name}
		}
		t.index[s.Name] = i

		if s.First {
			firsts = append(firsts, s.Name)
			t.first = i
		}

		if s.Default {
			defaults = append(defaults, s.Name)
			t.def = i
		}
	}

	switch {
	case len(firsts) > 1:
		return nil, &MultipleInitialStatesError{States: firsts}
	case len(firsts) == 0:
		return nil, &NoInitialStateError{}
	case len(defaults) > 1:
		return nil, &MultipleDefaultStatesError{States: defaults}
	}

	for _, s := range t.states {
		if s.Next == "" {
			continue
		}

		if _, found := t.index[s.Next]; !found {
			return nil, &UnknownStateError{Name: s.Next}
		}
	}

	return t, nil
}

// MustDefine is like Define but panics on error. It suits tables declared as
// package variables.
func MustDefine(states ...State) *Table {
	t, err := Define(states...)
	if err != nil {
		panic(err)
	}

	return t
}

func validate(s State) error {
	switch {
	case s.Name == "":
		return &InvalidStateError{Reason: "empty name"}
	case s.Handler == nil:
		return &InvalidStateError{Name: s.Name, Reason: "nil handler"}
	case s.Duration < 0:
		return &InvalidStateError{Name: s.Name, Reason: "negative duration"}
	case s.Next != "" && !s.Timed():
		return &InvalidStateError{Name: s.Name, Reason: "next state on an untimed state"}
	case s.Default && s.Timed():
		return &InvalidStateError{Name: s.Name, Reason: "default state cannot be timed"}
	}

	return nil
}

// Names lists the state names in declaration order.
func (t *Table) Names() []string {
	names := make([]string, len(t.states))
	for i, s := range t.states {
		names[i] = s.Name
	}

	return names
}

// Descriptions lists the state descriptions in declaration order.
func (t *Table) Descriptions() []string {
	desc := make([]string, len(t.states))
	for i, s := range t.states {
		desc[i] = s.Description
	}

	return desc
}

// First returns the name of the first state.
func (t *Table) First() string {
	return t.states[t.first].Name
}

// Lookup returns the state called name.
func (t *Table) Lookup(name string) (State, bool) {
	i, found := t.index[name]
	if !found {
		return State{}, false
	}

	return t.states[i], true
}
