// Package alias maps alternative names onto canonical names.
//
// An alias may itself be the target of another alias, forming a chain that
// CanonicalName follows to its end. Chains never loop: RegisterAlias and
// ResolveAliases reject any write that would close a cycle.
//
//	r := alias.New()
//	_ = r.RegisterAlias("cache", "cacheManager")
//	_ = r.RegisterAlias("cacheManager", "cm")
//	r.CanonicalName("cm")  // "cache"
//	r.Aliases("cache")     // ["cacheManager", "cm"]
package alias

import (
	"fmt"
	"sync"
)

// ── Options ───────────────────────────────────────────────────────────────────

// Option configures a Registry.
type Option func(*Registry)

// WithOverriding controls whether an alias may be re-pointed at a different
// name. Overriding is allowed by default.
func WithOverriding(allow bool) Option {
	return func(r *Registry) {
		r.allowOverriding = allow
	}
}

// ── Registry ──────────────────────────────────────────────────────────────────

// Registry is a goroutine-safe alias → name table.
type Registry struct {
	mu              sync.RWMutex
	aliases         map[string]string
	allowOverriding bool
}

// New creates an empty alias table.
func New(opts ...Option) *Registry {
	r := &Registry{
		aliases:         make(map[string]string),
		allowOverriding: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AllowsOverriding reports whether existing aliases may be re-pointed.
func (r *Registry) AllowsOverriding() bool {
	return r.allowOverriding
}

// RegisterAlias records alias as another name for name.
//
// Registering a name as its own alias removes any alias entry under that
// name. The table is left untouched when an error is returned.
func (r *Registry) RegisterAlias(name, alias string) error {
	if name == "" || alias == "" {
		return fmt.Errorf("%w: name=%q alias=%q", ErrEmptyName, name, alias)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if alias == name {
		delete(r.aliases, alias)
		return nil
	}

	if registered, ok := r.aliases[alias]; ok {
		if registered == name {
			return nil
		}
		if !r.allowOverriding {
			return fmt.Errorf("%w: cannot register alias %q for name %q: already registered for name %q",
				ErrAliasConflict, alias, name, registered)
		}
	}

	if err := checkForCircle(r.aliases, name, alias); err != nil {
		return err
	}

	r.aliases[alias] = name
	return nil
}

// RemoveAlias deletes a single alias entry.
func (r *Registry) RemoveAlias(alias string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.aliases[alias]; !ok {
		return fmt.Errorf("%w: %q", ErrAliasNotFound, alias)
	}
	delete(r.aliases, alias)
	return nil
}

// IsAlias reports whether name is registered as an alias.
func (r *Registry) IsAlias(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.aliases[name]
	return ok
}

// CanonicalName follows the alias chain starting at name and returns the
// first name that is not itself an alias.
func (r *Registry) CanonicalName(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return canonical(r.aliases, name)
}

// Aliases returns every alias that resolves to name, directly or through a
// chain. The result is empty, never nil.
func (r *Registry) Aliases(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := []string{}
	collect(r.aliases, name, &result)
	return result
}

// Len returns the number of alias entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.aliases)
}

// Snapshot returns a copy of the alias → name table.
func (r *Registry) Snapshot() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]string, len(r.aliases))
	for k, v := range r.aliases {
		out[k] = v
	}
	return out
}

// ResolveAliases rewrites every alias and target through resolver, e.g. to
// substitute placeholders. Pairs that collapse onto themselves are dropped.
// The rewrite is applied to a working copy and only committed when every
// pair passes the conflict and cycle checks.
func (r *Registry) ResolveAliases(resolver func(string) (string, error)) error {
	if resolver == nil {
		return fmt.Errorf("alias: resolver cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	work := make(map[string]string, len(r.aliases))
	for k, v := range r.aliases {
		work[k] = v
	}

	for alias, registered := range r.aliases {
		resolvedAlias, err := resolver(alias)
		if err != nil {
			return fmt.Errorf("resolving alias %q: %w", alias, err)
		}
		resolvedName, err := resolver(registered)
		if err != nil {
			return fmt.Errorf("resolving name %q for alias %q: %w", registered, alias, err)
		}

		switch {
		case resolvedAlias == "" || resolvedName == "":
			return fmt.Errorf("%w: alias %q resolved to alias=%q name=%q", ErrEmptyName, alias, resolvedAlias, resolvedName)

		case resolvedAlias == resolvedName:
			delete(work, alias)

		case resolvedAlias != alias:
			if existing, ok := work[resolvedAlias]; ok && existing != resolvedName {
				return fmt.Errorf("%w: cannot register resolved alias %q (original: %q) for name %q: already registered for name %q",
					ErrAliasConflict, resolvedAlias, alias, resolvedName, existing)
			}
			delete(work, alias)
			if err := checkForCircle(work, resolvedName, resolvedAlias); err != nil {
				return err
			}
			work[resolvedAlias] = resolvedName

		case registered != resolvedName:
			delete(work, alias)
			if err := checkForCircle(work, resolvedName, alias); err != nil {
				return err
			}
			work[alias] = resolvedName
		}
	}

	r.aliases = work
	return nil
}

// ── Internal ──────────────────────────────────────────────────────────────────

func canonical(aliases map[string]string, name string) string {
	current := name
	for {
		next, ok := aliases[current]
		if !ok {
			return current
		}
		current = next
	}
}

func collect(aliases map[string]string, name string, result *[]string) {
	for alias, registered := range aliases {
		if registered == name {
			*result = append(*result, alias)
			collect(aliases, alias, result)
		}
	}
}

// checkForCircle rejects alias → name when the chain starting at name passes
// through alias. Any entry alias already has is about to be replaced, so the
// walk stops there instead of following it.
func checkForCircle(aliases map[string]string, name, alias string) error {
	if !reaches(aliases, name, alias) {
		return nil
	}
	return fmt.Errorf("%w: %w: cannot register alias %q for name %q: %q is a direct or indirect alias for %q already",
		ErrAliasConflict, ErrCircularAlias, alias, name, name, alias)
}

// reaches reports whether following the chain from name visits target.
func reaches(aliases map[string]string, name, target string) bool {
	seen := make(map[string]struct{})
	for current := name; ; {
		if current == target {
			return true
		}
		if _, ok := seen[current]; ok {
			return false
		}
		seen[current] = struct{}{}

		next, ok := aliases[current]
		if !ok {
			return false
		}
		current = next
	}
}
