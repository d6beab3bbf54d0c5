package singleton

import (
	"context"
	"fmt"
)

// ── Creation markers ──────────────────────────────────────────────────────────

// creation marks one name as under construction. done is closed when the
// construction finishes, successfully or not.
type creation struct {
	done chan struct{}
}

// tracker is the creation-state tracker. It is guarded by Registry.mu.
type tracker struct {
	inCreation map[string]*creation

	// exempt is the allow-list of names whose construction may legitimately
	// re-enter itself.
	exempt map[string]struct{}
}

func newTracker() *tracker {
	return &tracker{
		inCreation: make(map[string]*creation),
		exempt:     make(map[string]struct{}),
	}
}

// begin marks name. Re-entering a marked name fails unless the name is
// exempt, in which case nested is true and nothing new is marked.
func (t *tracker) begin(name string) (c *creation, nested bool, err error) {
	if _, marked := t.inCreation[name]; marked {
		if t.isExempt(name) {
			return nil, true, nil
		}
		return nil, false, fmt.Errorf("%w: %q", ErrCurrentlyInCreation, name)
	}
	c = &creation{done: make(chan struct{})}
	t.inCreation[name] = c
	return c, false, nil
}

// end unmarks name and wakes anyone waiting on it.
func (t *tracker) end(name string) error {
	c, marked := t.inCreation[name]
	if !marked {
		if t.isExempt(name) {
			return nil
		}
		return fmt.Errorf("%w: %q", ErrNotInCreation, name)
	}
	delete(t.inCreation, name)
	close(c.done)
	return nil
}

func (t *tracker) marked(name string) *creation {
	return t.inCreation[name]
}

func (t *tracker) isExempt(name string) bool {
	_, ok := t.exempt[name]
	return ok
}

func (t *tracker) setExempt(name string, exempt bool) {
	if exempt {
		t.exempt[name] = struct{}{}
	} else {
		delete(t.exempt, name)
	}
}

// isInCreation reports a marked, non-exempt name.
func (t *tracker) isInCreation(name string) bool {
	_, marked := t.inCreation[name]
	return marked && !t.isExempt(name)
}

func (t *tracker) reset() {
	for name, c := range t.inCreation {
		close(c.done)
		delete(t.inCreation, name)
	}
}

// ── Creation chains ───────────────────────────────────────────────────────────

// chainKey scopes a creation chain to the registry that started it.
type chainKey struct {
	registry *Registry
}

// attempt collects errors suppressed during one outermost GetOrCreate.
type attempt struct {
	suppressed []error
}

// chain is the stack of names a call path is constructing, innermost first.
// It travels through factories inside the context they receive.
type chain struct {
	parent  *chain
	name    string
	attempt *attempt
}

func (c *chain) contains(name string) bool {
	for link := c; link != nil; link = link.parent {
		if link.name == name {
			return true
		}
	}
	return false
}

func (r *Registry) chainFrom(ctx context.Context) *chain {
	if ctx == nil {
		return nil
	}
	c, _ := ctx.Value(chainKey{registry: r}).(*chain)
	return c
}

func (r *Registry) withChain(ctx context.Context, c *chain) context.Context {
	return context.WithValue(ctx, chainKey{registry: r}, c)
}

// CurrentlyCreating returns the innermost name that ctx's call path is
// constructing in this registry, or "" outside any construction.
func (r *Registry) CurrentlyCreating(ctx context.Context) string {
	if c := r.chainFrom(ctx); c != nil {
		return c.name
	}
	return ""
}

// SetCurrentlyInCreation toggles the reentrancy check for name. Passing
// false puts name on the exemption allow-list; true removes it again.
func (r *Registry) SetCurrentlyInCreation(name string, inCreation bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creation.setExempt(name, !inCreation)
}

// IsCurrentlyInCreation reports whether name is being constructed and is not
// exempt from reentrancy checks.
func (r *Registry) IsCurrentlyInCreation(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.creation.isInCreation(name)
}

// RecordSuppressed attaches err to the outermost construction running on
// ctx's call path. If that construction fails, err is reported as a related
// cause. Outside any construction it does nothing.
func (r *Registry) RecordSuppressed(ctx context.Context, err error) {
	if err == nil {
		return
	}
	c := r.chainFrom(ctx)
	if c == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c.attempt.suppressed = append(c.attempt.suppressed, err)
}
