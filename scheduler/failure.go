package scheduler

import (
	"errors"
	"fmt"
	"runtime/debug"
	"time"
)

// ComponentExecutionError is a failure contained at the boundary around a
// component call. It wraps either the returned error or the recovered panic.
type ComponentExecutionError struct {
	Component string
	Cause     error

	// Panicked is true when Cause was recovered from a panic, in which case
	// Stack holds the goroutine stack at the point of the panic.
	Panicked bool
	Stack    []byte
}

func (e *ComponentExecutionError) Error() string {
	if e.Panicked {
		return fmt.Sprintf("component %s panicked: %v", e.Component, e.Cause)
	}

	return fmt.Sprintf("component %s failed: %v", e.Component, e.Cause)
}

func (e *ComponentExecutionError) Unwrap() error {
	return e.Cause
}

// Contain calls fn and converts a returned error or a panic into a
// *ComponentExecutionError. It returns nil when fn succeeds.
func Contain(component string, fn func() error) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}

		cause, ok := r.(error)
		if !ok {
			cause = fmt.Errorf("%v", r)
		}

		err = &ComponentExecutionError{
			Component: component,
			Cause:     cause,
			Panicked:  true,
			Stack:     debug.Stack(),
		}
	}()

	if cause := fn(); cause != nil {
		var already *ComponentExecutionError
		if errors.As(cause, &already) && already.Component == component {
			return already
		}

		return &ComponentExecutionError{Component: component, Cause: cause}
	}

	return nil
}

// Failure is a contained failure as seen by failure sinks.
type Failure struct {
	Component string
	Err       error

	// Time is read from the scheduler clock.
	Time time.Duration

	// Tick is the number of the tick the failure happened in, or zero when it
	// happened outside a tick.
	Tick uint64

	// Forced asks rate-limiting sinks to report the failure regardless of
	// how recently they reported another one. Lifecycle failures are forced.
	Forced bool
}

// A FailureSink receives contained failures.
type FailureSink interface {
	Report(f Failure)
}

// FailureSinkFunc adapts a function to the FailureSink interface.
type FailureSinkFunc func(f Failure)

// Report calls f.
func (fn FailureSinkFunc) Report(f Failure) {
	fn(f)
}
