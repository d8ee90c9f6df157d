// Package reset restores component attributes to their defaults at the start
// of every control cycle.
//
// A component lists the attributes it wants restored:
//
//	type Intake struct {
//		speed float64
//	}
//
//	func (i *Intake) ResetFields() []reset.Field {
//		return []reset.Field{reset.To("speed", &i.speed, 0)}
//	}
//
// Control methods called by other components during a cycle set speed; the
// intake's execute step reads it; the next cycle starts from zero again.
package reset

import "fmt"

// A Field is one attribute together with the way to produce its default.
type Field struct {
	Name  string
	apply func()
}

// To creates a Field that assigns value to *ptr. The value is copied on every
// reset, so reference types such as slices and maps share storage across
// cycles; use ToFunc for those.
func To[T any](name string, ptr *T, value T) Field {
	if ptr == nil {
		panic(fmt.Sprintf("reset field %q has a nil target", name))
	}

	return Field{
		Name:  name,
		apply: func() { *ptr = value },
	}
}

// ToFunc creates a Field that assigns a freshly produced default to *ptr.
func ToFunc[T any](name string, ptr *T, factory func() T) Field {
	if ptr == nil {
		panic(fmt.Sprintf("reset field %q has a nil target", name))
	}

	if factory == nil {
		panic(fmt.Sprintf("reset field %q has a nil factory", name))
	}

	return Field{
		Name:  name,
		apply: func() { *ptr = factory() },
	}
}

// Reset writes the default into the attribute.
func (f Field) Reset() {
	f.apply()
}

// Resettable is implemented by components that have attributes to reset.
type Resettable interface {
	ResetFields() []Field
}
