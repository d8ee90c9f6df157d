package tunable

import (
	"fmt"
)

// Bindable is implemented by components that declare tunables. The robot
// calls BindTunables once, after the component is constructed, with the name
// of the slot the component occupies.
type Bindable interface {
	BindTunables(b *Binder, owner string)
}

type options struct {
	subtable     string
	writeDefault bool
}

// An Option configures a tunable.
type Option func(*options)

// Subtable places the tunable one level deeper, under
// <namespace>/<owner>/<name>/<attr>.
func Subtable(name string) Option {
	return func(o *options) {
		o.subtable = name
	}
}

// WriteDefault controls whether binding overwrites a value already present
// in the store. It is true by default; when false the default is only written
// if the store has no value.
func WriteDefault(write bool) Option {
	return func(o *options) {
		o.writeDefault = write
	}
}

// Tunable is a typed view of one key of the Store.
type Tunable[T any] struct {
	binder *Binder
	path   string
	def    T
}

// Bind creates a tunable for attribute attr of owner.
func Bind[T any](b *Binder, owner, attr string, def T, opts ...Option) *Tunable[T] {
	o := options{writeDefault: true}
	for _, opt := range opts {
		opt(&o)
	}

	path := b.PathOf(owner, o.subtable, attr)
	b.register(path, typeName[T](), def, o.writeDefault)

	return &Tunable[T]{
		binder: b,
		path:   path,
		def:    def,
	}
}

// Path returns the key path of the tunable.
func (t *Tunable[T]) Path() string {
	return t.path
}

// Default returns the default value.
func (t *Tunable[T]) Default() T {
	return t.def
}

// Get returns the current value: this cycle's own write if there is one,
// otherwise the store value.
func (t *Tunable[T]) Get() T {
	b := t.binder

	b.lock.Lock()
	defer b.lock.Unlock()

	v, found := b.lookup(t.path)
	if !found {
		return t.def
	}

	if typed, ok := convert[T](v); ok {
		return typed
	}

	b.warnMismatch(&TunableTypeMismatchError{
		Path: t.path,
		Want: typeName[T](),
		Got:  fmt.Sprintf("%T", v),
	})

	return t.def
}

// Set writes v to the store and keeps it as this cycle's value.
func (t *Tunable[T]) Set(v T) {
	t.binder.Set(t.path, v)
}

func typeName[T any]() string {
	return fmt.Sprintf("%T", (*T)(nil))[1:]
}
