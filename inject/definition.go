// Package inject wires components to each other and to provided values by
// name, constructing each component exactly once in dependency order.
package inject

import (
	"reflect"
)

// A Definition describes how to construct one kind of component and what it
// depends on.
type Definition struct {
	typ   reflect.Type
	build func() any
	needs []need
}

// TypeName returns the Go type name of the component.
func (d Definition) TypeName() string {
	return d.typ.String()
}

// Dependencies lists the names the component depends on.
func (d Definition) Dependencies() []string {
	names := make([]string, 0, len(d.needs))
	for _, n := range d.needs {
		names = append(names, n.name)
	}

	return names
}

type need struct {
	name   string
	typ    reflect.Type
	inject func(target, value any)
	def    *Definition
}

// A Need is a dependency of a component of type T.
type Need[T any] struct {
	n need
}

// Define creates the definition of a component built by newFn.
func Define[T any](newFn func() T, needs ...Need[T]) Definition {
	if newFn == nil {
		panic("inject: constructor must not be nil")
	}

	d := Definition{
		typ:   typeOf[T](),
		build: func() any { return newFn() },
	}

	for _, n := range needs {
		d.needs = append(d.needs, n.n)
	}

	return d
}

// Requires declares a dependency on the component or provided value called
// name. The resolved value is handed to set before the component is set up.
func Requires[T, D any](name string, set func(T, D)) Need[T] {
	if set == nil {
		panic("inject: setter must not be nil")
	}

	return Need[T]{n: need{
		name: name,
		typ:  typeOf[D](),
		inject: func(target, value any) {
			set(target.(T), value.(D))
		},
	}}
}

// RequiresNew is like Requires, but when nothing called name exists the
// component gets its own instance built from def, registered as
// <component>_<name>.
func RequiresNew[T, D any](name string, def Definition, set func(T, D)) Need[T] {
	n := Requires(name, set)
	n.n.def = &def

	return n
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}
