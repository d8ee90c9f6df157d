package reset

type entry struct {
	owner  string
	fields []Field
}

// Registry holds the reset list of every live component instance.
type Registry struct {
	entries []entry
	index   map[string]int
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

// Register adds fields owned by owner. The defaults are applied immediately,
// so attributes hold their defaults before the first cycle.
func (r *Registry) Register(owner string, fields ...Field) {
	if len(fields) == 0 {
		return
	}

	for _, f := range fields {
		if f.apply == nil {
			panic("reset field " + owner + "." + f.Name +
				" was not created with To or ToFunc")
		}

		f.Reset()
	}

	if i, found := r.index[owner]; found {
		r.entries[i].fields = append(r.entries[i].fields, fields...)
		return
	}

	r.index[owner] = len(r.entries)
	r.entries = append(r.entries, entry{owner: owner, fields: fields})
}

// RegisterComponent registers the reset list of c if c is Resettable. It
// reports whether anything was registered.
func (r *Registry) RegisterComponent(owner string, c any) bool {
	rc, ok := c.(Resettable)
	if !ok {
		return false
	}

	fields := rc.ResetFields()
	r.Register(owner, fields...)

	return len(fields) > 0
}

// ResetAll restores every registered attribute, walking owners in
// registration order.
func (r *Registry) ResetAll() {
	for _, e := range r.entries {
		for _, f := range e.fields {
			f.Reset()
		}
	}
}

// Len returns the number of registered fields.
func (r *Registry) Len() int {
	n := 0
	for _, e := range r.entries {
		n += len(e.fields)
	}

	return n
}

// Owners returns the owners in registration order.
func (r *Registry) Owners() []string {
	owners := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		owners = append(owners, e.owner)
	}

	return owners
}

// FieldNames returns the names of the fields registered for owner.
func (r *Registry) FieldNames(owner string) []string {
	i, found := r.index[owner]
	if !found {
		return nil
	}

	names := make([]string, 0, len(r.entries[i].fields))
	for _, f := range r.entries[i].fields {
		names = append(names, f.Name)
	}

	return names
}
