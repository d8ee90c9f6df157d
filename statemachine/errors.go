package statemachine

import (
	"errors"
	"fmt"
)

// ErrUnknownState is wrapped by UnknownStateError.
var ErrUnknownState = errors.New("unknown state")

// MultipleInitialStatesError is returned when more than one state is marked
// First.
type MultipleInitialStatesError struct {
	States []string
}

func (e *MultipleInitialStatesError) Error() string {
	return fmt.Sprintf("multiple states are marked first: %v", e.States)
}

// NoInitialStateError is returned when no state is marked First.
type NoInitialStateError struct{}

func (e *NoInitialStateError) Error() string {
	return "no state is marked first"
}

// MultipleDefaultStatesError is returned when more than one state is marked
// Default.
type MultipleDefaultStatesError struct {
	States []string
}

func (e *MultipleDefaultStatesError) Error() string {
	return fmt.Sprintf("multiple states are marked default: %v", e.States)
}

// DuplicateStateError is returned when two states share a name.
type DuplicateStateError struct {
	Name string
}

func (e *DuplicateStateError) Error() string {
	return fmt.Sprintf("state %q is defined twice", e.Name)
}

// UnknownStateError is returned when a transition names a state that does not
// exist.
type UnknownStateError struct {
	Name string
}

func (e *UnknownStateError) Error() string {
	return fmt.Sprintf("%v: %q", ErrUnknownState, e.Name)
}

func (e *UnknownStateError) Unwrap() error {
	return ErrUnknownState
}

// InvalidStateError is returned for a state whose fields do not make sense
// together.
type InvalidStateError struct {
	Name   string
	Reason string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("state %q is invalid: %s", e.Name, e.Reason)
}

// HandlerError wraps an error returned by a state handler.
type HandlerError struct {
	State string
	Err   error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("state %s: %v", e.State, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}
