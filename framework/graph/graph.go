// Package graph records which named instances depend on, and contain, which
// others. Teardown walks it to destroy dependents before the names they
// depend on.
package graph

import (
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// nameSet is an insertion-ordered set of names.
type nameSet = orderedmap.OrderedMap[string, struct{}]

// Graph is a goroutine-safe, bidirectionally indexed dependency graph plus a
// containment index. Edge sets keep insertion order so destruction cascades
// are deterministic.
type Graph struct {
	mu sync.RWMutex

	// canonical resolves an owner name before an edge is recorded.
	canonical func(string) string

	// name → names that depend on it
	dependents map[string]*nameSet

	// name → names it depends on
	dependencies map[string]*nameSet

	// outer → inner names it contains
	contained map[string]*nameSet
}

// New creates an empty graph. canonical may be nil, in which case names are
// recorded as given.
func New(canonical func(string) string) *Graph {
	if canonical == nil {
		canonical = func(name string) string { return name }
	}
	return &Graph{
		canonical:    canonical,
		dependents:   make(map[string]*nameSet),
		dependencies: make(map[string]*nameSet),
		contained:    make(map[string]*nameSet),
	}
}

// ── Registration ──────────────────────────────────────────────────────────────

// RegisterDependency records that dependent depends on owner, so dependent
// must be destroyed before owner. Repeated calls are no-ops.
func (g *Graph) RegisterDependency(owner, dependent string) {
	owner = g.canonical(owner)

	g.mu.Lock()
	defer g.mu.Unlock()
	add(g.dependents, owner, dependent)
	add(g.dependencies, dependent, owner)
}

// RegisterContainment records that inner is owned by outer. Destroying outer
// cascades to inner. It also registers outer as a dependent of inner, so
// inner's destruction first clears anything that reaches it through outer.
func (g *Graph) RegisterContainment(inner, outer string) {
	g.mu.Lock()
	add(g.contained, outer, inner)
	g.mu.Unlock()

	g.RegisterDependency(inner, outer)
}

// ── Queries ───────────────────────────────────────────────────────────────────

// DependentsOf returns the names that depend on name.
func (g *Graph) DependentsOf(name string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return keys(g.dependents[name])
}

// DependenciesOf returns the names that name depends on.
func (g *Graph) DependenciesOf(name string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return keys(g.dependencies[name])
}

// ContainedIn returns the inner names owned by outer.
func (g *Graph) ContainedIn(outer string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return keys(g.contained[outer])
}

// HasDependents reports whether anything depends on name.
func (g *Graph) HasDependents(name string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s, ok := g.dependents[name]
	return ok && s.Len() > 0
}

// IsDependent reports whether dependent depends on name, directly or
// transitively.
func (g *Graph) IsDependent(name, dependent string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.isDependent(g.canonical(name), dependent, make(map[string]struct{}))
}

func (g *Graph) isDependent(name, dependent string, seen map[string]struct{}) bool {
	if _, ok := seen[name]; ok {
		return false
	}
	seen[name] = struct{}{}

	direct, ok := g.dependents[name]
	if !ok {
		return false
	}
	if _, ok := direct.Get(dependent); ok {
		return true
	}
	for pair := direct.Oldest(); pair != nil; pair = pair.Next() {
		if g.isDependent(pair.Key, dependent, seen) {
			return true
		}
	}
	return false
}

// ── Teardown support ──────────────────────────────────────────────────────────

// TakeDependents detaches and returns the dependents of name. A second call
// returns nothing, which is what stops destruction cascades from revisiting a
// name.
func (g *Graph) TakeDependents(name string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := keys(g.dependents[name])
	delete(g.dependents, name)
	return out
}

// TakeContained detaches and returns the inner names owned by outer.
func (g *Graph) TakeContained(outer string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := keys(g.contained[outer])
	delete(g.contained, outer)
	return out
}

// RemoveAllEdgesFor strips name from every dependent set and drops its own
// entries.
func (g *Graph) RemoveAllEdgesFor(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for owner, s := range g.dependents {
		s.Delete(name)
		if s.Len() == 0 {
			delete(g.dependents, owner)
		}
	}
	for dependent, s := range g.dependencies {
		s.Delete(name)
		if s.Len() == 0 {
			delete(g.dependencies, dependent)
		}
	}
	delete(g.dependents, name)
	delete(g.dependencies, name)
	delete(g.contained, name)
}

// Clear drops every edge.
func (g *Graph) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dependents = make(map[string]*nameSet)
	g.dependencies = make(map[string]*nameSet)
	g.contained = make(map[string]*nameSet)
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func add(index map[string]*nameSet, key, value string) {
	s, ok := index[key]
	if !ok {
		s = orderedmap.New[string, struct{}]()
		index[key] = s
	}
	s.Set(value, struct{}{})
}

// keys returns a snapshot of s; empty, never nil.
func keys(s *nameSet) []string {
	if s == nil {
		return []string{}
	}
	out := make([]string, 0, s.Len())
	for pair := s.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Key)
	}
	return out
}
