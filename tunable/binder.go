package tunable

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

type feedback struct {
	path   string
	getter func() any
}

// shared is the state common to a Binder and all its sub-binders.
type shared struct {
	lock      sync.Mutex
	store     Store
	logger    zerolog.Logger
	written   map[string]any
	bound     map[string]string
	warned    map[string]bool
	feedbacks []feedback
}

// Binder connects tunables to a Store. Reads go to the store every time, so a
// value changed in the store is seen by the next read. Writes made through the
// Binder during a cycle are kept until the next call to BeginCycle and take
// precedence over the store, so a writer always reads its own write.
type Binder struct {
	*shared
	namespace string
}

// A BinderOption configures a Binder.
type BinderOption func(*Binder)

// WithLogger sets the logger used for type mismatch warnings.
func WithLogger(logger zerolog.Logger) BinderOption {
	return func(b *Binder) {
		b.logger = logger
	}
}

// NewBinder creates a Binder rooted under namespace.
func NewBinder(store Store, namespace string, opts ...BinderOption) *Binder {
	if store == nil {
		panic("tunable binder requires a store")
	}

	b := &Binder{
		shared: &shared{
			store:   store,
			logger:  zerolog.Nop(),
			written: make(map[string]any),
			bound:   make(map[string]string),
			warned:  make(map[string]bool),
		},
		namespace: namespace,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Sub returns a Binder that shares the store and the cycle writes but roots
// paths under another namespace.
func (b *Binder) Sub(namespace string) *Binder {
	return &Binder{shared: b.shared, namespace: namespace}
}

// Namespace returns the namespace of the binder.
func (b *Binder) Namespace() string {
	return b.namespace
}

// Store returns the underlying store.
func (b *Binder) Store() Store {
	return b.store
}

// PathOf returns the path of an attribute of owner under this binder.
func (b *Binder) PathOf(owner string, parts ...string) string {
	return Path(b.namespace, owner, parts...)
}

// BeginCycle forgets the writes made during the previous cycle.
func (b *Binder) BeginCycle() {
	b.lock.Lock()
	defer b.lock.Unlock()

	clear(b.written)
}

// Set writes value at path to the store and remembers it for the rest of the
// cycle. This is the entry point for external writers such as dashboards.
func (b *Binder) Set(path string, value any) {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.written[path] = value
	delete(b.warned, path)
	b.store.Set(path, value)
}

// Get returns the value a tunable at path would observe now, without type
// checking.
func (b *Binder) Get(path string) (any, bool) {
	b.lock.Lock()
	defer b.lock.Unlock()

	return b.lookup(path)
}

func (b *Binder) lookup(path string) (any, bool) {
	if v, found := b.written[path]; found {
		return v, true
	}

	return b.store.Get(path)
}

// Paths lists every bound path in lexical order.
func (b *Binder) Paths() []string {
	b.lock.Lock()
	defer b.lock.Unlock()

	paths := make([]string, 0, len(b.bound))
	for p := range b.bound {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	return paths
}

// TypeOf returns the Go type name of the default bound at path.
func (b *Binder) TypeOf(path string) (string, bool) {
	b.lock.Lock()
	defer b.lock.Unlock()

	t, found := b.bound[path]
	return t, found
}

// Feedback registers a getter whose result is published at
// <namespace>/<owner>/<key> by every PublishFeedback call.
func (b *Binder) Feedback(owner, key string, getter func() any) {
	if getter == nil {
		panic("feedback getter must not be nil")
	}

	b.lock.Lock()
	defer b.lock.Unlock()

	b.feedbacks = append(b.feedbacks, feedback{
		path:   b.PathOf(owner, key),
		getter: getter,
	})
}

// PublishFeedback calls every feedback getter and writes the results to the
// store. A getter that panics is skipped and logged.
func (b *Binder) PublishFeedback() {
	b.lock.Lock()
	feedbacks := append([]feedback(nil), b.feedbacks...)
	b.lock.Unlock()

	for _, f := range feedbacks {
		v, err := callGetter(f.getter)
		if err != nil {
			b.logger.Error().Err(err).Str("path", f.path).Msg("feedback failed")
			continue
		}

		b.store.Set(f.path, v)
	}
}

func callGetter(getter func() any) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("feedback getter panicked: %v", r)
		}
	}()

	return getter(), nil
}

func (b *Binder) register(path, typeName string, def any, writeDefault bool) {
	b.lock.Lock()
	defer b.lock.Unlock()

	if existing, found := b.bound[path]; found && existing != typeName {
		panic(fmt.Sprintf("tunable %s bound as %s and %s", path, existing, typeName))
	}

	b.bound[path] = typeName

	if _, present := b.store.Get(path); writeDefault || !present {
		b.store.Set(path, def)
	}
}

func (b *Binder) warnMismatch(err *TunableTypeMismatchError) {
	if b.warned[err.Path] {
		return
	}

	b.warned[err.Path] = true
	b.logger.Warn().Err(err).Msg("tunable type mismatch, using default")
}
