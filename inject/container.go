package inject

import (
	"fmt"
)

// Edge is a dependency of one component on another name.
type Edge struct {
	From string
	To   string
}

// Container holds the resolved components.
type Container struct {
	slots        []*slot
	byName       map[string]*slot
	construction []*slot
	edges        []Edge
}

// Resolve checks the dependency graph, then constructs and injects every
// component. Nothing is constructed when the graph has an error.
func (b *Builder) Resolve() (*Container, error) {
	b.mustNotBeResolved()

	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}

	b.addImplicitSlots()

	edges, deps, err := b.link()
	if err != nil {
		return nil, err
	}

	order, err := b.sort(deps)
	if err != nil {
		return nil, err
	}

	b.resolved = true

	c := &Container{
		slots:        b.slots,
		byName:       b.byName,
		construction: order,
		edges:        edges,
	}

	b.construct(order, deps)

	if err := c.setup(); err != nil {
		return nil, err
	}

	return c, nil
}

// addImplicitSlots registers the components built on demand by RequiresNew.
// Slots are appended while iterating, so sub-components of sub-components are
// found too.
func (b *Builder) addImplicitSlots() {
	for i := 0; i < len(b.slots); i++ {
		s := b.slots[i]
		if s.def == nil {
			continue
		}

		for _, n := range s.def.needs {
			if n.def == nil || b.lookup(s.name, n.name) != nil {
				continue
			}

			b.insert(&slot{
				name:     s.name + "_" + n.name,
				def:      n.def,
				typ:      n.def.typ,
				implicit: true,
			})
		}
	}
}

func (b *Builder) link() ([]Edge, map[*slot][]*slot, error) {
	var edges []Edge

	deps := make(map[*slot][]*slot)

	for _, s := range b.slots {
		for _, t := range s.intoType {
			if !s.typ.AssignableTo(t) {
				return nil, nil, &DependencyTypeError{
					Component:  "root",
					Dependency: s.name,
					Want:       t.String(),
					Got:        s.typ.String(),
				}
			}
		}

		if s.def == nil {
			continue
		}

		for _, n := range s.def.needs {
			target := b.lookup(s.name, n.name)
			if target == nil {
				return nil, nil, &UnresolvedDependencyError{
					Component:  s.name,
					Dependency: n.name,
					Type:       n.typ.String(),
				}
			}

			if !target.typ.AssignableTo(n.typ) {
				return nil, nil, &DependencyTypeError{
					Component:  s.name,
					Dependency: target.name,
					Want:       n.typ.String(),
					Got:        target.typ.String(),
				}
			}

			deps[s] = append(deps[s], target)
			edges = append(edges, Edge{From: s.name, To: target.name})
		}
	}

	return edges, deps, nil
}

// sort orders the constructed slots so that every slot comes after the slots
// it depends on. Ties keep declaration order.
func (b *Builder) sort(deps map[*slot][]*slot) ([]*slot, error) {
	const (
		unvisited = iota
		visiting
		visited
	)

	var (
		order []*slot
		path  []*slot
		visit func(s *slot) error
	)

	state := make(map[*slot]int)

	visit = func(s *slot) error {
		switch state[s] {
		case visited:
			return nil
		case visiting:
			return cycleError(path, s)
		}

		state[s] = visiting
		path = append(path, s)

		for _, d := range deps[s] {
			if err := visit(d); err != nil {
				return err
			}
		}

		path = path[:len(path)-1]
		state[s] = visited

		if !s.provided {
			order = append(order, s)
		}

		return nil
	}

	for _, s := range b.slots {
		if err := visit(s); err != nil {
			return nil, err
		}
	}

	return order, nil
}

func cycleError(path []*slot, back *slot) error {
	start := 0
	for i, s := range path {
		if s == back {
			start = i
			break
		}
	}

	cycle := make([]string, 0, len(path)-start+1)
	for _, s := range path[start:] {
		cycle = append(cycle, s.name)
	}
	cycle = append(cycle, back.name)

	return &CyclicDependencyError{Cycle: cycle}
}

func (b *Builder) construct(order []*slot, deps map[*slot][]*slot) {
	for _, s := range order {
		s.value = s.def.build()

		for i, n := range s.def.needs {
			target := deps[s][i]
			b.logger.Debug().
				Str("component", s.name).
				Str("dependency", n.name).
				Str("value", target.name).
				Msg("inject")
			n.inject(s.value, target.value)
		}

		for _, assign := range s.assign {
			assign(s.value)
		}
	}

	for _, s := range b.slots {
		if s.provided {
			for _, assign := range s.assign {
				assign(s.value)
			}
		}
	}
}

func (c *Container) setup() error {
	for _, s := range c.construction {
		aware, ok := s.value.(SetupAware)
		if !ok {
			continue
		}

		if err := aware.Setup(); err != nil {
			return fmt.Errorf("setup of %s failed: %w", s.name, err)
		}
	}

	return nil
}

// ConstructionOrder lists constructed components, dependencies first.
func (c *Container) ConstructionOrder() []string {
	names := make([]string, 0, len(c.construction))
	for _, s := range c.construction {
		names = append(names, s.name)
	}

	return names
}

// ExecutionOrder lists the declared components to execute, in declaration
// order. Provided values, implicit sub-components and NoExecute slots are
// left out.
func (c *Container) ExecutionOrder() []string {
	var names []string

	for _, s := range c.slots {
		if s.provided || s.implicit || !s.execute {
			continue
		}

		names = append(names, s.name)
	}

	return names
}

// Names lists every component and provided value in declaration order,
// followed by implicit sub-components.
func (c *Container) Names() []string {
	names := make([]string, 0, len(c.slots))
	for _, s := range c.slots {
		names = append(names, s.name)
	}

	return names
}

// Get returns the component or provided value called name.
func (c *Container) Get(name string) (any, bool) {
	s, found := c.byName[name]
	if !found {
		return nil, false
	}

	return s.value, true
}

// IsProvided tells whether name is a provided value rather than a component.
func (c *Container) IsProvided(name string) bool {
	s, found := c.byName[name]
	return found && s.provided
}

// Graph returns every dependency edge in declaration order.
func (c *Container) Graph() []Edge {
	return append([]Edge(nil), c.edges...)
}

// Get returns the value called name as a T.
func Get[T any](c *Container, name string) (T, bool) {
	var zero T

	v, found := c.Get(name)
	if !found {
		return zero, false
	}

	typed, ok := v.(T)
	if !ok {
		return zero, false
	}

	return typed, true
}

// Each calls f for every constructed component that implements T, in
// construction order.
func Each[T any](c *Container, f func(name string, v T)) {
	for _, s := range c.construction {
		if v, ok := s.value.(T); ok {
			f(s.name, v)
		}
	}
}
