package inject

import (
	"fmt"
	"reflect"

	"github.com/rs/zerolog"
)

type slot struct {
	name     string
	def      *Definition
	typ      reflect.Type
	value    any
	provided bool
	implicit bool
	execute  bool
	assign   []func(any)
	intoType []reflect.Type
}

// SetupAware components are set up after every dependency is injected.
type SetupAware interface {
	Setup() error
}

// A SlotOption configures a component slot.
type SlotOption func(*slot)

// Into assigns the constructed component to *dst.
func Into[T any](dst *T) SlotOption {
	if dst == nil {
		panic("inject: destination must not be nil")
	}

	return func(s *slot) {
		s.intoType = append(s.intoType, typeOf[T]())
		s.assign = append(s.assign, func(v any) { *dst = v.(T) })
	}
}

// NoExecute keeps the component out of the execution order. It is still
// constructed and injected.
func NoExecute() SlotOption {
	return func(s *slot) {
		s.execute = false
	}
}

// Builder collects component slots and provided values.
type Builder struct {
	slots    []*slot
	byName   map[string]*slot
	errs     []error
	logger   zerolog.Logger
	resolved bool
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		byName: make(map[string]*slot),
		logger: zerolog.Nop(),
	}
}

// WithLogger sets the logger that traces injection.
func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = logger
	return b
}

// Provide registers a value that is not constructed by the container, such
// as a hardware handle or a constant. Providing a name again replaces the
// value.
func (b *Builder) Provide(name string, value any) *Builder {
	b.mustNotBeResolved()

	if value == nil {
		panic(fmt.Sprintf("inject: provided value %s must not be nil", name))
	}

	typ := reflect.TypeOf(value)
	if b.conflicts(name, typ, true) {
		return b
	}

	if existing, found := b.byName[name]; found {
		existing.value = value
		return b
	}

	b.insert(&slot{
		name:     name,
		typ:      typ,
		value:    value,
		provided: true,
	})

	return b
}

// Add declares a component slot. Slots are executed in the order they are
// added. Adding the same name again with the same type only applies the new
// options.
func (b *Builder) Add(name string, def Definition, opts ...SlotOption) *Builder {
	b.mustNotBeResolved()

	if def.build == nil {
		panic(fmt.Sprintf("inject: component %s has no constructor", name))
	}

	if b.conflicts(name, def.typ, false) {
		return b
	}

	if existing, found := b.byName[name]; found {
		for _, opt := range opts {
			opt(existing)
		}

		return b
	}

	s := &slot{
		name:    name,
		def:     &def,
		typ:     def.typ,
		execute: true,
	}
	for _, opt := range opts {
		opt(s)
	}

	b.insert(s)

	return b
}

// Names lists the declared names in declaration order.
func (b *Builder) Names() []string {
	names := make([]string, 0, len(b.slots))
	for _, s := range b.slots {
		names = append(names, s.name)
	}

	return names
}

func (b *Builder) insert(s *slot) {
	b.slots = append(b.slots, s)
	b.byName[s.name] = s
}

// conflicts records an error and returns true when name is already declared
// with another type or kind.
func (b *Builder) conflicts(name string, typ reflect.Type, provided bool) bool {
	existing, found := b.byName[name]
	if !found {
		return false
	}

	if existing.typ == typ && existing.provided == provided {
		return false
	}

	b.errs = append(b.errs, &ConflictingSlotError{
		Name:     name,
		Existing: existing.typ.String(),
		New:      typ.String(),
	})

	return true
}

func (b *Builder) mustNotBeResolved() {
	if b.resolved {
		panic("inject: builder already resolved")
	}
}

func (b *Builder) lookup(owner, name string) *slot {
	if s, found := b.byName[name]; found {
		return s
	}

	return b.byName[owner+"_"+name]
}
