package singleton

import (
	"context"
	"fmt"
	"io"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ── Lifecycle state ───────────────────────────────────────────────────────────

// State is the registry's lifecycle phase.
type State int

const (
	// Active accepts new constructions.
	Active State = iota

	// Draining is destroying instances; GetOrCreate is refused.
	Draining

	// Drained has destroyed and cleared everything; GetOrCreate stays refused.
	Drained
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Draining:
		return "draining"
	case Drained:
		return "drained"
	default:
		return "unknown"
	}
}

// State returns the current lifecycle phase.
func (r *Registry) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// ── Disposables ───────────────────────────────────────────────────────────────

// CloserFunc adapts a plain function to io.Closer.
type CloserFunc func() error

// Close calls f.
func (f CloserFunc) Close() error { return f() }

// RegisterDisposable registers the teardown callback for name. The closer
// need not be the cached instance itself. Registering again replaces the
// callback but keeps the original position in the teardown order.
func (r *Registry) RegisterDisposable(name string, closer io.Closer) {
	if closer == nil {
		return
	}
	r.disposeMu.Lock()
	defer r.disposeMu.Unlock()
	r.disposables.Set(name, closer)
}

// DisposableNames returns the names with a teardown callback, in
// registration order.
func (r *Registry) DisposableNames() []string {
	r.disposeMu.Lock()
	defer r.disposeMu.Unlock()

	out := make([]string, 0, r.disposables.Len())
	for pair := r.disposables.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Key)
	}
	return out
}

// ── Teardown ──────────────────────────────────────────────────────────────────

// Drain destroys every disposable in reverse registration order, each after
// the names that depend on it, then clears the registry. From the moment
// Drain starts, GetOrCreate fails with ErrCreationNotAllowed.
//
// Drain waits for constructions already running on other call paths to
// finish; ctx bounds that wait. A construction still running when the wait
// gives up fails with ErrCreationNotAllowed. Calling Drain again waits for
// the first drain to complete, bounded by ctx. Disposal failures are
// logged, never returned.
func (r *Registry) Drain(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	r.mu.Lock()
	if r.state != Active {
		done := r.drained
		r.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	r.state = Draining
	r.drained = make(chan struct{})
	r.mu.Unlock()

	r.log.Info("draining singletons")

	if r.chainFrom(ctx) == nil {
		if err := r.construct.Acquire(ctx, 1); err != nil {
			r.log.WithError(err).Warn("drain proceeding while constructions are still running")
		} else {
			defer r.construct.Release(1)
		}
	}

	names := r.DisposableNames()
	for i := len(names) - 1; i >= 0; i-- {
		r.DestroySingle(names[i])
	}

	r.graph.Clear()

	r.mu.Lock()
	r.finished = make(map[string]any)
	r.early = make(map[string]any)
	r.factories = make(map[string]EarlyFactory)
	r.order = orderedmap.New[string, struct{}]()
	r.creation.reset()
	r.state = Drained
	close(r.drained)
	r.mu.Unlock()

	r.log.Info("singletons drained")
}

// DestroySingle destroys name outside a full drain: its dependents first,
// then its own teardown callback, then the names it contains. The name is
// removed from the cache before anything cascades, so revisiting it is
// harmless.
func (r *Registry) DestroySingle(name string) {
	r.Remove(name)

	r.disposeMu.Lock()
	closer, _ := r.disposables.Delete(name)
	r.disposeMu.Unlock()

	r.destroy(name, closer)
}

func (r *Registry) destroy(name string, closer io.Closer) {
	log := r.log.WithField("name", name)

	if dependents := r.graph.TakeDependents(name); len(dependents) > 0 {
		log.WithField("dependents", dependents).Debug("destroying dependents first")
		for _, dependent := range dependents {
			r.DestroySingle(dependent)
		}
	}

	if closer != nil {
		if err := closeSafely(closer); err != nil {
			log.WithError(err).Error("teardown callback failed")
		} else {
			log.Debug("destroyed singleton")
		}
	}

	for _, inner := range r.graph.TakeContained(name) {
		r.DestroySingle(inner)
	}

	r.graph.RemoveAllEdgesFor(name)
}

// closeSafely turns a panicking teardown callback into an error.
func closeSafely(c io.Closer) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("teardown callback panicked: %v", p)
		}
	}()
	return c.Close()
}
