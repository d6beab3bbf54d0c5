package container

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"slices"
	"sync"

	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/km-arc/go-container/framework/singleton"
)

var (
	// ErrNotBound is returned by Make for a name with no binding and no
	// registered instance.
	ErrNotBound = errors.New("container: no binding registered")

	// ErrCircularDependsOn is returned when WithDependsOn names would make a
	// singleton depend on itself.
	ErrCircularDependsOn = errors.New("container: circular depends-on relationship")
)

// ── Binding types ─────────────────────────────────────────────────────────────

// Factory is a function that builds a concrete value from the container.
// ctx must be passed on to every Make call the factory performs.
type Factory func(ctx context.Context, c *Container) (any, error)

// Populator wires the fields of an instance its Factory has already created.
// While it runs, the instance is visible to its own dependencies as an early
// reference, which is what lets two singletons point at each other.
type Populator func(ctx context.Context, c *Container, instance any) error

// binding holds a registered factory and how its result is managed.
type binding struct {
	factory   Factory
	singleton bool
	populate  Populator
	dependsOn []string
	destroy   func(any) error
	outer     string

	// deferred marks the placeholder of a provider not loaded yet
	deferred bool
}

// BindingOption tunes a Singleton registration.
type BindingOption func(*binding)

// WithPopulate splits construction in two: the factory creates the raw
// instance, then populate fills it in.
//
//	// Laravel has no equivalent; Go needs it for A ↔ B references.
//	c.Singleton("a", newA, container.WithPopulate(func(ctx context.Context, c *container.Container, v any) error {
//	    b, err := container.Resolve[*B](ctx, c, "b")
//	    v.(*A).B = b
//	    return err
//	}))
func WithPopulate(p Populator) BindingOption {
	return func(b *binding) { b.populate = p }
}

// WithDependsOn makes the singleton create names first and be destroyed
// before them.
func WithDependsOn(names ...string) BindingOption {
	return func(b *binding) { b.dependsOn = append(b.dependsOn, names...) }
}

// WithDestroy sets the teardown callback run on Shutdown or Forget. Without
// it, instances implementing io.Closer are closed.
func WithDestroy(fn func(instance any) error) BindingOption {
	return func(b *binding) { b.destroy = fn }
}

// WithInner marks the singleton as owned by outer: destroying outer destroys
// it too.
func WithInner(outer string) BindingOption {
	return func(b *binding) { b.outer = outer }
}

// extender wraps an already-resolved instance with decorator logic.
type extender func(instance any, c *Container) any

// buildingKey carries the name whose factory is running, for contextual lookup.
type buildingKey struct{}

// ── Container ─────────────────────────────────────────────────────────────────

// Container is the IoC container — mirrors Laravel's Illuminate\Container\Container.
//
// Shared instances live in a singleton.Registry, which owns their creation,
// aliases, dependency graph and teardown. The container adds:
//   - Bind / Singleton / Instance / Alias
//   - Make / Resolve (generic)
//   - Tags (group multiple abstractions under one tag)
//   - Extend (decorate / wrap resolved instances)
//   - Contextual binding (when A needs B, give it C)
//   - Rebound callbacks
//   - Resolved event callbacks
type Container struct {
	mu sync.RWMutex

	registry *singleton.Registry
	log      *logrus.Entry

	// abstract → binding, in registration order
	bindings *orderedmap.OrderedMap[string, *binding]

	// abstract → extender funcs
	extenders map[string][]extender

	// tag → []abstract
	tags map[string][]string

	// contextual: when[concrete][abstract] = factory
	contextual map[string]map[string]Factory

	// rebound callbacks: abstract → []func(any)
	reboundCallbacks map[string][]func(any)

	// resolved callbacks: []func(abstract, instance)
	afterResolving []func(string, any)
}

// New creates an empty container over a fresh registry.
func New(opts ...singleton.Option) *Container {
	return NewWithRegistry(singleton.New(opts...))
}

// NewWithRegistry creates an empty container over r.
func NewWithRegistry(r *singleton.Registry) *Container {
	c := &Container{
		registry:         r,
		log:              r.Logger(),
		bindings:         orderedmap.New[string, *binding](),
		extenders:        make(map[string][]extender),
		tags:             make(map[string][]string),
		contextual:       make(map[string]map[string]Factory),
		reboundCallbacks: make(map[string][]func(any)),
	}
	// Bind the container to itself — like Laravel's $app->instance()
	_ = c.Instance("container", c)
	return c
}

// Registry returns the registry holding the container's shared instances.
func (c *Container) Registry() *singleton.Registry { return c.registry }

// ── Registration ──────────────────────────────────────────────────────────────

// Bind registers a transient (new instance each Make) factory.
//
//	// Laravel: $app->bind(UserRepository::class, fn($app) => new EloquentUserRepository($app))
//	c.Bind("UserRepository", func(ctx context.Context, c *container.Container) (any, error) {
//	    db, err := container.Resolve[*sql.DB](ctx, c, "db")
//	    return &EloquentUserRepository{DB: db}, err
//	})
func (c *Container) Bind(abstract string, factory Factory) {
	c.bind(abstract, &binding{factory: factory})
}

// Singleton registers a factory whose result is cached after first resolution.
//
//	// Laravel: $app->singleton(Cache::class, fn($app) => new RedisCache($app))
//	c.Singleton("cache", func(ctx context.Context, c *container.Container) (any, error) {
//	    cfg, err := container.Resolve[*config.Config](ctx, c, "config")
//	    if err != nil {
//	        return nil, err
//	    }
//	    return cache.NewRedisCache(cfg), nil
//	}, container.WithDependsOn("config"))
func (c *Container) Singleton(abstract string, factory Factory, opts ...BindingOption) {
	b := &binding{factory: factory, singleton: true}
	for _, opt := range opts {
		opt(b)
	}
	c.bind(abstract, b)
}

// Instance registers a pre-built value as a singleton. The caller keeps
// ownership: the value is never closed by the container.
//
//	// Laravel: $app->instance(Config::class, $config)
//	c.Instance("config", myConfig)
func (c *Container) Instance(abstract string, instance any) error {
	key := c.registry.CanonicalName(abstract)

	c.mu.Lock()
	c.bindings.Delete(key)
	c.mu.Unlock()

	replaced := c.registry.Contains(key)
	c.registry.Remove(key)
	if err := c.registry.RegisterFinished(key, instance); err != nil {
		return err
	}
	if replaced {
		c.fireRebound(abstract, instance)
	}
	return nil
}

// bind is the internal registration helper.
func (c *Container) bind(abstract string, b *binding) {
	key := c.registry.CanonicalName(abstract)

	c.mu.Lock()
	c.bindings.Set(key, b)
	c.mu.Unlock()

	// Drop the existing shared instance so it's rebuilt with the new factory
	if !c.registry.Contains(key) {
		return
	}
	c.registry.DestroySingle(key)

	if !c.hasRebound(abstract) {
		return
	}
	instance, err := c.Make(context.Background(), abstract)
	if err != nil {
		c.log.WithError(err).WithField("abstract", abstract).Warn("rebinding failed")
		return
	}
	c.fireRebound(abstract, instance)
}

// Alias registers an alternative name for an abstract.
//
//	// Laravel: $app->alias(Cache::class, 'cache')
//	c.Alias("cache", "cacheManager")
func (c *Container) Alias(abstract, alias string) error {
	if abstract == alias {
		return fmt.Errorf("container: [%s] is aliased to itself", abstract)
	}
	return c.registry.RegisterAlias(abstract, alias)
}

// ── Contextual Binding ────────────────────────────────────────────────────────

// When starts a contextual binding chain.
//
//	// Laravel: $app->when(PhotoController::class)->needs(Filesystem::class)->give(fn() => new S3)
//	c.When("PhotoController").Needs("Filesystem").Give(func(ctx context.Context, c *container.Container) (any, error) {
//	    return filesystem.NewS3(...), nil
//	})
func (c *Container) When(concrete string) *ContextualBuilder {
	return &ContextualBuilder{container: c, concrete: c.registry.CanonicalName(concrete)}
}

// getContextual returns the contextual factory for (concrete, abstract), or nil.
func (c *Container) getContextual(concrete, abstract string) Factory {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if m, ok := c.contextual[concrete]; ok {
		if f, ok := m[abstract]; ok {
			return f
		}
	}
	return nil
}

// ── Extend ────────────────────────────────────────────────────────────────────

// Extend decorates the resolved instance of an abstract.
//
//	// Laravel: $app->extend(Logger::class, fn($logger, $app) => new TimestampLogger($logger))
//	c.Extend("logger", func(instance any, c *container.Container) any {
//	    return logging.NewTimestampWrapper(instance.(*Logger))
//	})
func (c *Container) Extend(abstract string, fn extender) {
	key := c.registry.CanonicalName(abstract)

	c.mu.Lock()
	c.extenders[key] = append(c.extenders[key], fn)
	c.mu.Unlock()

	// If already resolved as singleton, apply the new extender and refire rebound
	inst, ok := c.registry.Get(context.Background(), key, false)
	if !ok {
		return
	}
	extended := fn(inst, c)
	c.registry.Remove(key)
	if err := c.registry.RegisterFinished(key, extended); err != nil {
		c.log.WithError(err).WithField("abstract", abstract).Warn("extending resolved instance failed")
		return
	}
	c.fireRebound(abstract, extended)
}

// ── Tags ──────────────────────────────────────────────────────────────────────

// Tag associates multiple abstracts under a named group.
//
//	// Laravel: $app->tag([CpuReport::class, MemoryReport::class], 'reports')
//	c.Tag([]string{"CpuReport", "MemoryReport"}, "reports")
func (c *Container) Tag(abstracts []string, tag string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tags[tag] = append(c.tags[tag], abstracts...)
}

// Tagged resolves all abstracts registered under a tag.
//
//	// Laravel: $app->tagged('reports')
//	reports, err := c.Tagged(ctx, "reports")  // []any
func (c *Container) Tagged(ctx context.Context, tag string) ([]any, error) {
	c.mu.RLock()
	abstracts := append([]string(nil), c.tags[tag]...)
	c.mu.RUnlock()

	result := make([]any, 0, len(abstracts))
	for _, abs := range abstracts {
		instance, err := c.Make(ctx, abs)
		if err != nil {
			return nil, fmt.Errorf("container: tag [%s]: %w", tag, err)
		}
		result = append(result, instance)
	}
	return result, nil
}

// ── Resolution ────────────────────────────────────────────────────────────────

// Make resolves an abstract from the container. Called from inside a
// singleton's factory, it also records that singleton as a dependent of
// abstract, so teardown destroys it first.
//
//	// Laravel: $app->make(UserRepository::class)
//	repo, err := c.Make(ctx, "UserRepository")
func (c *Container) Make(ctx context.Context, abstract string) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	key := c.registry.CanonicalName(abstract)

	// Check contextual binding for the name being built on this call path
	if caller := building(ctx); caller != "" {
		if f := c.getContextual(caller, abstract); f != nil {
			return c.build(ctx, key, &binding{factory: f})
		}
	}

	c.recordDependency(ctx, key)

	c.mu.RLock()
	b, ok := c.bindings.Get(key)
	c.mu.RUnlock()

	if !ok {
		if inst, ok := c.registry.Get(ctx, key, false); ok {
			return inst, nil
		}
		return nil, fmt.Errorf("%w for [%s]", ErrNotBound, abstract)
	}
	if !b.singleton {
		return c.build(ctx, key, b)
	}
	return c.shared(ctx, key, b)
}

// shared resolves a singleton through the registry.
func (c *Container) shared(ctx context.Context, key string, b *binding) (any, error) {
	// Finished, or an early reference when key is being built on this path
	if inst, ok := c.registry.Get(ctx, key, true); ok {
		return inst, nil
	}

	return c.registry.GetOrCreate(ctx, key, func(ctx context.Context) (any, error) {
		for _, dep := range b.dependsOn {
			dep = c.registry.CanonicalName(dep)
			if c.registry.IsDependent(key, dep) {
				return nil, fmt.Errorf("%w: [%s] and [%s]", ErrCircularDependsOn, key, dep)
			}
			c.registry.RegisterDependency(dep, key)
			if _, err := c.Make(ctx, dep); err != nil {
				return nil, fmt.Errorf("container: [%s] depends on [%s]: %w", key, dep, err)
			}
		}

		instance, err := b.factory(withBuilding(ctx, key), c)
		if err != nil {
			return nil, err
		}

		if b.populate != nil {
			raw := instance
			c.registry.RegisterFactory(key, func() any { return raw })
			if err := b.populate(withBuilding(ctx, key), c, instance); err != nil {
				return nil, err
			}
		}

		instance = c.applyExtenders(key, instance)
		c.registerDisposable(key, instance, b)
		if b.outer != "" {
			c.registry.RegisterContainment(key, b.outer)
		}
		c.fireAfterResolving(key, instance)
		return instance, nil
	})
}

// build runs a transient factory.
func (c *Container) build(ctx context.Context, key string, b *binding) (any, error) {
	ctx = withBuilding(ctx, key)

	instance, err := b.factory(ctx, c)
	if err != nil {
		return nil, err
	}
	if b.populate != nil {
		if err := b.populate(ctx, c, instance); err != nil {
			return nil, err
		}
	}

	instance = c.applyExtenders(key, instance)
	c.fireAfterResolving(key, instance)
	return instance, nil
}

func (c *Container) applyExtenders(key string, instance any) any {
	c.mu.RLock()
	exts := append([]extender(nil), c.extenders[key]...)
	c.mu.RUnlock()

	for _, ext := range exts {
		instance = ext(instance, c)
	}
	return instance
}

// recordDependency registers the singleton under construction on ctx's call
// path as a dependent of key.
func (c *Container) recordDependency(ctx context.Context, key string) {
	if owner := c.registry.CurrentlyCreating(ctx); owner != "" && owner != key {
		c.registry.RegisterDependency(key, owner)
	}
}

func (c *Container) registerDisposable(key string, instance any, b *binding) {
	switch {
	case b.destroy != nil:
		c.registry.RegisterDisposable(key, singleton.CloserFunc(func() error {
			return b.destroy(instance)
		}))
	default:
		if closer, ok := instance.(io.Closer); ok {
			c.registry.RegisterDisposable(key, closer)
		}
	}
}

func building(ctx context.Context) string {
	name, _ := ctx.Value(buildingKey{}).(string)
	return name
}

func withBuilding(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, buildingKey{}, key)
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func (c *Container) isDeferred(abstract string) bool {
	key := c.registry.CanonicalName(abstract)
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.bindings.Get(key)
	return ok && b.deferred
}

// Bound returns true if an abstract has been registered.
//
//	// Laravel: $app->bound(UserRepository::class)
func (c *Container) Bound(abstract string) bool {
	key := c.registry.CanonicalName(abstract)
	c.mu.RLock()
	_, hasBinding := c.bindings.Get(key)
	c.mu.RUnlock()
	return hasBinding || c.registry.Contains(key)
}

// Resolved returns true if the abstract's shared instance exists.
//
//	// Laravel: $app->resolved(Cache::class)
func (c *Container) Resolved(abstract string) bool {
	return c.registry.Contains(c.registry.CanonicalName(abstract))
}

// Forget removes all registrations for an abstract (binding + instance),
// destroying the instance and everything that depends on it.
//
//	// Laravel: $app->forgetInstance(Cache::class)
func (c *Container) Forget(abstract string) {
	key := c.registry.CanonicalName(abstract)
	c.mu.Lock()
	c.bindings.Delete(key)
	c.mu.Unlock()
	c.registry.DestroySingle(key)
}

// Bindings returns every registered abstract key, bindings first, in
// registration order.
func (c *Container) Bindings() []string {
	c.mu.RLock()
	out := make([]string, 0, c.bindings.Len())
	for pair := c.bindings.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Key)
	}
	c.mu.RUnlock()

	for _, name := range c.registry.Names() {
		c.mu.RLock()
		_, already := c.bindings.Get(name)
		c.mu.RUnlock()
		if !already {
			out = append(out, name)
		}
	}
	return out
}

// Shutdown destroys every shared instance in dependency order. The container
// refuses to create singletons afterwards.
func (c *Container) Shutdown(ctx context.Context) {
	c.registry.Drain(ctx)
}

// ── Callbacks ─────────────────────────────────────────────────────────────────

// Rebinding registers a callback to be called whenever an abstract is re-bound.
//
//	// Laravel: $app->rebinding(UserRepository::class, fn($app, $repo) => ...)
func (c *Container) Rebinding(abstract string, cb func(any)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reboundCallbacks[abstract] = append(c.reboundCallbacks[abstract], cb)
}

// AfterResolving registers a callback fired after any abstract is built.
//
//	// Laravel: $app->afterResolving(fn($object, $app) => ...)
func (c *Container) AfterResolving(cb func(abstract string, instance any)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.afterResolving = append(c.afterResolving, cb)
}

func (c *Container) hasRebound(abstract string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.reboundCallbacks[abstract]) > 0
}

func (c *Container) fireRebound(abstract string, instance any) {
	c.mu.RLock()
	cbs := slices.Clone(c.reboundCallbacks[abstract])
	c.mu.RUnlock()
	for _, cb := range cbs {
		cb(instance)
	}
}

func (c *Container) fireAfterResolving(abstract string, instance any) {
	c.mu.RLock()
	cbs := slices.Clone(c.afterResolving)
	c.mu.RUnlock()
	for _, cb := range cbs {
		cb(abstract, instance)
	}
}

// ── Reflect helpers ───────────────────────────────────────────────────────────

// TypeKey returns the package-qualified type name of v, useful as a stable
// abstract key when working with interfaces.
//
//	key := container.TypeKey((*UserRepository)(nil))  // "main.UserRepository"
//	c.Singleton(key, factory)
//	repo, err := container.Resolve[UserRepository](ctx, c, key)
func TypeKey(v any) string {
	t := reflect.TypeOf(v)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.PkgPath() + "." + t.Name()
}

// ── Generics helper ───────────────────────────────────────────────────────────

// Resolve is a generic helper that calls Make and type-asserts the result.
//
//	// Instead of: v, err := c.Make(ctx, "db"); db := v.(*sql.DB)
//	// Write:      db, err := container.Resolve[*sql.DB](ctx, c, "db")
func Resolve[T any](ctx context.Context, c *Container, abstract string) (T, error) {
	var zero T
	instance, err := c.Make(ctx, abstract)
	if err != nil {
		return zero, err
	}
	typed, ok := instance.(T)
	if !ok {
		return zero, fmt.Errorf("container: Resolve[%T]: [%s] resolved to %T", zero, abstract, instance)
	}
	return typed, nil
}

// MustResolve is like Resolve but panics on failure. Use it at bootstrap,
// where a missing binding is a programming error.
func MustResolve[T any](ctx context.Context, c *Container, abstract string) T {
	typed, err := Resolve[T](ctx, c, abstract)
	if err != nil {
		panic(err)
	}
	return typed
}
