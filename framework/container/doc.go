// Package container provides a Laravel-compatible IoC (Inversion of Control)
// container and Service Provider system for Go.
//
// # Overview
//
// The container manages the instantiation and lifecycle of your application's
// dependencies. It supports transient bindings, singletons, pre-built instances,
// aliases, tags, contextual bindings, and extension (decoration).
//
// Shared instances are held by a singleton.Registry. The registry guarantees
// one instance per name under concurrent Make calls, resolves A ↔ B
// references through early references, and destroys everything in
// dependency order on Shutdown.
//
// It mirrors the public API of Laravel's Illuminate\Container\Container as
// closely as Go's type system allows. Because Go has no runtime constructor
// reflection, auto-wiring is replaced by explicit factory functions.
//
// # Container Lifecycle
//
//  1. Create: c := container.New()
//  2. Register providers: registry.Register(&MyProvider{})
//  3. Boot: registry.Boot(ctx)     — safe to resolve everything after this
//  4. Serve requests
//  5. Shut down: c.Shutdown(ctx)   — closes singletons, dependents first
//
// # Bindings
//
//	// Transient — new instance every Make()
//	// Laravel: $app->bind(Foo::class, fn($app) => new Foo)
//	c.Bind("Foo", func(ctx context.Context, c *container.Container) (any, error) { return &Foo{}, nil })
//
//	// Singleton — created once, reused
//	// Laravel: $app->singleton(Cache::class, fn($app) => new RedisCache)
//	c.Singleton("cache", func(ctx context.Context, c *container.Container) (any, error) {
//	    cfg, err := container.Resolve[*Config](ctx, c, "config")
//	    if err != nil {
//	        return nil, err
//	    }
//	    return cache.NewRedis(cfg), nil
//	})
//
//	// Pre-built value
//	// Laravel: $app->instance(Config::class, $config)
//	c.Instance("config", myConfig)
//
//	// Alias
//	// Laravel: $app->alias(Cache::class, 'cache')
//	c.Alias("cache", "cacheManager")
//
// # Resolving
//
// Factories receive a context. Pass it to every nested Make: it carries the
// chain of singletons being built on that call path, which is how the
// container records dependencies and serves early references.
//
//	// Untyped
//	// Laravel: $app->make(Cache::class)
//	raw, err := c.Make(ctx, "cache")
//
//	// Generic (preferred — no type assertion required)
//	cache, err := container.Resolve[*RedisCache](ctx, c, "cache")
//
// # Circular references
//
//	c.Singleton("a", func(ctx context.Context, c *container.Container) (any, error) {
//	    return &A{}, nil
//	}, container.WithPopulate(func(ctx context.Context, c *container.Container, v any) error {
//	    b, err := container.Resolve[*B](ctx, c, "b")
//	    v.(*A).B = b
//	    return err
//	}))
//
// # Teardown
//
//	// Closed on Shutdown / Forget, after everything that resolved it
//	c.Singleton("db", openDB, container.WithDestroy(func(v any) error {
//	    return v.(*sql.DB).Close()
//	}))
//
// # Contextual Binding
//
//	// Laravel: $app->when(PhotoController::class)
//	//              ->needs(Filesystem::class)
//	//              ->give(fn() => new S3Filesystem)
//	c.When("PhotoController").
//	    Needs("Filesystem").
//	    GiveValue(&S3Filesystem{})
//
// # Tags
//
//	// Laravel: $app->tag([CpuReport::class, MemReport::class], 'reports')
//	c.Tag([]string{"CpuReport", "MemReport"}, "reports")
//	reports, err := c.Tagged(ctx, "reports")  // []any
//
// # Extend / Decorate
//
//	// Laravel: $app->extend(Logger::class, fn($logger, $app) => new TimestampLogger($logger))
//	c.Extend("logger", func(instance any, c *container.Container) any {
//	    return &TimestampLogger{Inner: instance.(*Logger)}
//	})
//
// # Service Providers
//
//	type AppServiceProvider struct{ container.BaseProvider }
//
//	func (p *AppServiceProvider) Register(app *container.Container) error {
//	    app.Singleton("mailer", newMailer)
//	    return nil
//	}
//
//	func (p *AppServiceProvider) Boot(ctx context.Context, app *container.Container) error {
//	    // safe to resolve other bindings here
//	    return nil
//	}
//
//	registry := container.NewProviderRegistry(c)
//	registry.Register(&AppServiceProvider{})
//	registry.Boot(ctx)
//
// # Deferred Providers
//
//	type HeavyProvider struct{ container.BaseProvider }
//
//	func (p *HeavyProvider) IsDeferred() bool     { return true }
//	func (p *HeavyProvider) Provides() []string   { return []string{"heavy"} }
//	func (p *HeavyProvider) Register(app *container.Container) error {
//	    app.Singleton("heavy", heavySetup) // only called on first app.Make(ctx, "heavy")
//	    return nil
//	}
package container
