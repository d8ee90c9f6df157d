package inject

import (
	"fmt"
	"strings"
)

// UnresolvedDependencyError reports a dependency that names no component and
// no provided value.
type UnresolvedDependencyError struct {
	Component  string
	Dependency string
	Type       string
}

func (e *UnresolvedDependencyError) Error() string {
	return fmt.Sprintf(
		"component %s has a dependency %s of type %s that cannot be resolved",
		e.Component, e.Dependency, e.Type)
}

// CyclicDependencyError reports a dependency cycle. Cycle starts and ends with
// the same name.
type CyclicDependencyError struct {
	Cycle []string
}

func (e *CyclicDependencyError) Error() string {
	return "cyclic dependency: " + strings.Join(e.Cycle, " -> ")
}

// ConflictingSlotError reports a name declared twice with different types.
type ConflictingSlotError struct {
	Name     string
	Existing string
	New      string
}

func (e *ConflictingSlotError) Error() string {
	return fmt.Sprintf("%s is declared as both %s and %s",
		e.Name, e.Existing, e.New)
}

// DependencyTypeError reports a dependency whose value has the wrong type.
type DependencyTypeError struct {
	Component  string
	Dependency string
	Want       string
	Got        string
}

func (e *DependencyTypeError) Error() string {
	return fmt.Sprintf("component %s wants %s as %s, but it is %s",
		e.Component, e.Dependency, e.Want, e.Got)
}
