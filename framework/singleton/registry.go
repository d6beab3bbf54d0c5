// Package singleton is the shared-instance registry at the heart of the
// container. It turns named factories into at-most-one live instance per
// name, lets mutually referencing instances see each other through early
// references while they are being built, and destroys everything in
// dependency order on shutdown.
//
// # Instance tiers
//
// Every name is in at most one of three tiers:
//
//   - finished: fully constructed and visible to every caller
//   - early: constructed but possibly not yet populated, visible only to the
//     construction that is building it
//   - pending factory: a callback that produces the early instance on demand
//
// # Creation chains
//
// GetOrCreate hands its factory a context that carries the chain of names
// being built on that call path. Nested lookups must pass that context on;
// it is how the registry tells legitimate re-entry (served an early
// reference) from another goroutine's construction (waited for).
//
//	r := singleton.New()
//	svc, err := r.GetOrCreate(ctx, "mailer", func(ctx context.Context) (any, error) {
//	    cfg, err := r.GetOrCreate(ctx, "config", loadConfig)
//	    if err != nil {
//	        return nil, err
//	    }
//	    r.RegisterDependency("config", "mailer")
//	    return NewMailer(cfg.(*Config)), nil
//	})
package singleton

import (
	"context"
	"fmt"
	"io"
	"reflect"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/sync/semaphore"

	"github.com/km-arc/go-container/framework/alias"
	"github.com/km-arc/go-container/framework/graph"
)

// Factory produces an instance. ctx carries the creation chain and must be
// passed to any nested registry call.
type Factory func(ctx context.Context) (any, error)

// EarlyFactory exposes an instance before its construction completes. It
// runs under the registry lock and must not call back into the registry.
type EarlyFactory func() any

// nullMarker stands in for a legitimately nil instance.
type nullMarker struct{}

// Registry holds shared instances by name. The zero value is not usable;
// create one with New.
type Registry struct {
	id  string
	log *logrus.Entry

	aliases *alias.Registry
	graph   *graph.Graph

	// mu is the singleton lock. It guards the three tiers, the registration
	// order, the creation tracker and the lifecycle state.
	mu        sync.Mutex
	finished  map[string]any
	early     map[string]any
	factories map[string]EarlyFactory
	order     *orderedmap.OrderedMap[string, struct{}]
	creation  *tracker
	state     State
	drained   chan struct{} // closed when a drain completes

	// construct is held by each outermost GetOrCreate while its factory runs,
	// serializing construction across unrelated call paths.
	construct *semaphore.Weighted

	disposeMu   sync.Mutex
	disposables *orderedmap.OrderedMap[string, io.Closer]
}

// New creates an empty, active registry.
func New(opts ...Option) *Registry {
	o := options{
		logger:          logrus.StandardLogger(),
		allowOverriding: true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.id == "" {
		o.id = uuid.NewString()
	}

	r := &Registry{
		id:          o.id,
		log:         o.logger.WithField("registry", o.id),
		aliases:     alias.New(alias.WithOverriding(o.allowOverriding)),
		finished:    make(map[string]any),
		early:       make(map[string]any),
		factories:   make(map[string]EarlyFactory),
		order:       orderedmap.New[string, struct{}](),
		creation:    newTracker(),
		state:       Active,
		construct:   semaphore.NewWeighted(1),
		disposables: orderedmap.New[string, io.Closer](),
	}
	r.graph = graph.New(r.aliases.CanonicalName)
	return r
}

// ID returns the identifier used in this registry's log entries.
func (r *Registry) ID() string { return r.id }

// Logger returns the registry's log entry.
func (r *Registry) Logger() *logrus.Entry { return r.log }

// ── Lookup ────────────────────────────────────────────────────────────────────

// Get returns the finished instance for name. While name is under
// construction on ctx's own call path it returns the early instance instead,
// promoting a pending factory when allowEarly is set. Anyone else sees
// nothing until the construction finishes.
func (r *Registry) Get(ctx context.Context, name string, allowEarly bool) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.finished[name]; ok {
		return unwrap(v), true
	}

	if r.creation.marked(name) == nil || !r.chainFrom(ctx).contains(name) {
		return nil, false
	}

	if v, ok := r.early[name]; ok {
		return unwrap(v), true
	}
	if !allowEarly {
		return nil, false
	}

	factory, ok := r.factories[name]
	if !ok {
		return nil, false
	}
	v := factory()
	r.early[name] = wrap(v)
	delete(r.factories, name)
	r.log.WithField("name", name).Debug("exposed early reference")
	return v, true
}

// GetOrCreate returns the finished instance for name, running factory to
// create it if needed. Concurrent callers for the same name all observe the
// instance committed by the one factory run that succeeded.
func (r *Registry) GetOrCreate(ctx context.Context, name string, factory Factory) (any, error) {
	if factory == nil {
		return nil, fmt.Errorf("singleton %q: factory cannot be nil", name)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if v, ok, err := r.lookupFinished(name); ok || err != nil {
		return v, err
	}

	parent := r.chainFrom(ctx)
	if parent == nil {
		if err := r.construct.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("waiting to create singleton %q: %w", name, err)
		}
		defer r.construct.Release(1)
	}

	var (
		nested bool
		link   *chain
	)
	for {
		r.mu.Lock()
		if v, ok := r.finished[name]; ok {
			r.mu.Unlock()
			return unwrap(v), nil
		}
		if r.state != Active {
			r.mu.Unlock()
			return nil, fmt.Errorf("%w: %q", ErrCreationNotAllowed, name)
		}

		// Marked by a construction outside this call path: wait for it.
		if c := r.creation.marked(name); c != nil && !parent.contains(name) {
			r.mu.Unlock()
			select {
			case <-c.done:
				continue
			case <-ctx.Done():
				return nil, fmt.Errorf("waiting for singleton %q: %w", name, ctx.Err())
			}
		}

		var err error
		_, nested, err = r.creation.begin(name)
		if err != nil {
			r.mu.Unlock()
			return nil, err
		}

		link = &chain{parent: parent, name: name}
		if parent != nil {
			link.attempt = parent.attempt
		} else {
			link.attempt = &attempt{}
		}
		r.mu.Unlock()
		break
	}

	log := r.log.WithField("name", name)
	log.Debug("creating shared instance")

	instance, err := r.runFactory(r.withChain(ctx, link), factory)

	r.mu.Lock()
	defer r.mu.Unlock()

	// A drain that stopped waiting for this construction has already reset
	// the markers and cleared the tiers: discard the result.
	if r.state != Active {
		if !nested {
			if r.creation.marked(name) != nil {
				_ = r.creation.end(name)
			}
			r.removeLocked(name)
		}
		log.Debug("registry left active during creation; instance discarded")
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrCreationNotAllowed, name, err)
		}
		return nil, fmt.Errorf("%w: %q", ErrCreationNotAllowed, name)
	}

	if !nested {
		if endErr := r.creation.end(name); endErr != nil && err == nil {
			err = endErr
		}
	}

	if err != nil {
		if !nested {
			r.removeLocked(name)
		}
		cerr := &CreationError{Name: name, Err: err}
		if parent == nil && len(link.attempt.suppressed) > 0 {
			cerr.Related = append([]error(nil), link.attempt.suppressed...)
		}
		log.WithError(err).Debug("shared instance creation failed")
		return nil, cerr
	}

	// An exempt, re-entered construction may have committed first.
	if existing, ok := r.finished[name]; ok {
		return unwrap(existing), nil
	}
	r.addFinished(name, instance)
	log.Debug("created shared instance")
	return instance, nil
}

// runFactory turns a factory panic into an error so the creation marker is
// always cleared.
func (r *Registry) runFactory(ctx context.Context, factory Factory) (instance any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("factory panicked: %v", p)
		}
	}()
	return factory(ctx)
}

// ── Registration ──────────────────────────────────────────────────────────────

// RegisterFinished binds an already constructed instance to name.
func (r *Registry) RegisterFinished(name string, instance any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.finished[name]; ok {
		if sameInstance(unwrap(old), instance) {
			return nil
		}
		return fmt.Errorf("%w: cannot register %T under name %q: %T is already bound",
			ErrAlreadyRegistered, instance, name, unwrap(old))
	}
	r.addFinished(name, instance)
	return nil
}

// RegisterFactory speculatively registers an early factory for name, giving
// cyclic dependents a way back to an instance that is still being built.
// It does nothing once name is finished.
func (r *Registry) RegisterFactory(name string, factory EarlyFactory) {
	if factory == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.finished[name]; ok {
		return
	}
	r.factories[name] = factory
	delete(r.early, name)
	r.order.Set(name, struct{}{})
}

// Remove purges name from every tier and from the registration order.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(name)
}

// Contains reports whether a finished instance exists for name.
func (r *Registry) Contains(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.finished[name]
	return ok
}

// Count returns the number of registered names.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.order.Len()
}

// Names returns every registered name in registration order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, r.order.Len())
	for pair := r.order.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Key)
	}
	return out
}

// ── Aliases and dependencies ──────────────────────────────────────────────────

// AliasTable returns the alias table backing this registry.
func (r *Registry) AliasTable() *alias.Registry { return r.aliases }

// RegisterAlias records alias as another name for name.
func (r *Registry) RegisterAlias(name, alias string) error {
	return r.aliases.RegisterAlias(name, alias)
}

// CanonicalName resolves name through the alias table.
func (r *Registry) CanonicalName(name string) string {
	return r.aliases.CanonicalName(name)
}

// Aliases returns every alias resolving to name.
func (r *Registry) Aliases(name string) []string {
	return r.aliases.Aliases(name)
}

// RegisterDependency records that dependent must be destroyed before owner.
func (r *Registry) RegisterDependency(owner, dependent string) {
	r.graph.RegisterDependency(owner, dependent)
}

// RegisterContainment records that inner is owned by outer.
func (r *Registry) RegisterContainment(inner, outer string) {
	r.graph.RegisterContainment(inner, outer)
}

// DependentsOf returns the names depending on name.
func (r *Registry) DependentsOf(name string) []string {
	return r.graph.DependentsOf(name)
}

// DependenciesOf returns the names name depends on.
func (r *Registry) DependenciesOf(name string) []string {
	return r.graph.DependenciesOf(name)
}

// IsDependent reports whether dependent transitively depends on name.
func (r *Registry) IsDependent(name, dependent string) bool {
	return r.graph.IsDependent(name, dependent)
}

// ── Internal ──────────────────────────────────────────────────────────────────

// lookupFinished is the lock-light fast path of GetOrCreate. It also
// refuses early when draining, before any wait on the construction
// semaphore.
func (r *Registry) lookupFinished(name string) (any, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.finished[name]; ok {
		return unwrap(v), true, nil
	}
	if r.state != Active {
		return nil, false, fmt.Errorf("%w: %q", ErrCreationNotAllowed, name)
	}
	return nil, false, nil
}

// addFinished promotes instance to the finished tier. Must hold mu.
func (r *Registry) addFinished(name string, instance any) {
	r.finished[name] = wrap(instance)
	delete(r.factories, name)
	delete(r.early, name)
	r.order.Set(name, struct{}{})
}

// removeLocked must hold mu.
func (r *Registry) removeLocked(name string) {
	delete(r.finished, name)
	delete(r.factories, name)
	delete(r.early, name)
	r.order.Delete(name)
}

func wrap(v any) any {
	if v == nil {
		return nullMarker{}
	}
	return v
}

func unwrap(v any) any {
	if _, ok := v.(nullMarker); ok {
		return nil
	}
	return v
}

// sameInstance compares without panicking on uncomparable dynamic types.
func sameInstance(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}
