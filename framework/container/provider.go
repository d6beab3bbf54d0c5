package container

import (
	"context"
	"fmt"
	"sync"
)

// ── ServiceProvider interface ─────────────────────────────────────────────────

// ServiceProvider mirrors Laravel's Illuminate\Support\ServiceProvider.
//
// Every provider must implement at minimum Register().
// Boot() is called after ALL providers have been registered, making it safe
// to resolve other bindings inside Boot().
//
//	// Laravel:
//	// class AppServiceProvider extends ServiceProvider {
//	//     public function register(): void { $this->app->singleton(...); }
//	//     public function boot(): void     { /* use resolved services */ }
//	// }
//
//	type AppServiceProvider struct{ container.BaseProvider }
//
//	func (p *AppServiceProvider) Register(app *container.Container) error {
//	    app.Singleton("logger", func(ctx context.Context, c *container.Container) (any, error) {
//	        cfg, err := container.Resolve[*config.Config](ctx, c, "config")
//	        if err != nil {
//	            return nil, err
//	        }
//	        return logging.New(cfg.Log)
//	    })
//	    return nil
//	}
//
//	func (p *AppServiceProvider) Boot(ctx context.Context, app *container.Container) error {
//	    logger, err := container.Resolve[*logrus.Logger](ctx, app, "logger")
//	    if err != nil {
//	        return err
//	    }
//	    logger.Info("Application booted")
//	    return nil
//	}
type ServiceProvider interface {
	// Register binds services into the container.
	// Do NOT resolve other bindings here — use Boot() for that.
	Register(app *Container) error

	// Boot is called after all providers are registered.
	// Safe to resolve and use any binding here.
	Boot(ctx context.Context, app *Container) error

	// Provides returns the list of abstract keys this provider registers.
	// Used for deferred (lazy) provider loading.
	// Return nil / empty slice if the provider is always eager.
	//
	//	// Laravel: public function provides(): array { return [Cache::class]; }
	Provides() []string

	// IsDeferred returns true if this provider should be loaded lazily —
	// only when one of its Provides() abstracts is first resolved.
	//
	//	// Laravel: protected $defer = true;
	IsDeferred() bool
}

// ── BaseProvider ──────────────────────────────────────────────────────────────

// BaseProvider is an embeddable struct that provides no-op implementations
// of Boot(), Provides(), and IsDeferred().
// Embed it in your provider and only override what you need.
//
//	type MyProvider struct{ container.BaseProvider }
//	func (p *MyProvider) Register(app *container.Container) error { ... }
type BaseProvider struct{}

func (p *BaseProvider) Boot(context.Context, *Container) error { return nil }
func (p *BaseProvider) Provides() []string                     { return nil }
func (p *BaseProvider) IsDeferred() bool                       { return false }

// ── ProviderRegistry ──────────────────────────────────────────────────────────

// ProviderRegistry manages registration and booting of ServiceProviders,
// including deferred (lazy) providers.
//
// It mirrors the behaviour of Laravel's Application::registerConfiguredProviders
// and Application::bootProviders.
type ProviderRegistry struct {
	app *Container

	mu         sync.Mutex
	eager      []ServiceProvider
	deferred   map[string]ServiceProvider // abstract → provider
	loaded     map[ServiceProvider]*deferredLoad
	booted     bool
	bootCtx    context.Context
	registered map[ServiceProvider]bool
}

// NewProviderRegistry creates a registry bound to app.
func NewProviderRegistry(app *Container) *ProviderRegistry {
	return &ProviderRegistry{
		app:        app,
		deferred:   make(map[string]ServiceProvider),
		loaded:     make(map[ServiceProvider]*deferredLoad),
		registered: make(map[ServiceProvider]bool),
	}
}

// Register adds a provider and calls its Register() method (unless deferred).
//
//	// Laravel: $app->register(new AppServiceProvider($app))
func (r *ProviderRegistry) Register(provider ServiceProvider) error {
	r.mu.Lock()
	if r.registered[provider] {
		r.mu.Unlock()
		return nil
	}
	r.registered[provider] = true

	if provider.IsDeferred() {
		for _, abstract := range provider.Provides() {
			r.deferred[abstract] = provider
		}
		r.mu.Unlock()
		// Intercept Make() calls for deferred abstracts
		r.interceptDeferred(provider)
		return nil
	}

	booted, bootCtx := r.booted, r.bootCtx
	r.eager = append(r.eager, provider)
	r.mu.Unlock()

	if err := provider.Register(r.app); err != nil {
		return fmt.Errorf("registering %T: %w", provider, err)
	}

	// If already booted, boot this provider immediately
	if booted {
		if err := provider.Boot(bootCtx, r.app); err != nil {
			return fmt.Errorf("booting %T: %w", provider, err)
		}
	}
	return nil
}

// interceptDeferred registers a lazy binding for each deferred abstract.
// The first Make() call triggers real registration + boot.
func (r *ProviderRegistry) interceptDeferred(provider ServiceProvider) {
	for _, abstract := range provider.Provides() {
		r.app.bind(abstract, &binding{
			deferred: true,
			factory: func(ctx context.Context, c *Container) (any, error) {
				if err := r.load(ctx, provider); err != nil {
					return nil, err
				}
				if c.isDeferred(abstract) {
					return nil, fmt.Errorf("container: deferred provider %T did not bind [%s]", provider, abstract)
				}
				return c.Make(ctx, abstract)
			},
		})
	}
}

// deferredLoad makes concurrent first uses of a deferred provider register it
// exactly once.
type deferredLoad struct {
	once sync.Once
	err  error
}

// load registers a deferred provider on first use.
func (r *ProviderRegistry) load(ctx context.Context, provider ServiceProvider) error {
	r.mu.Lock()
	st, ok := r.loaded[provider]
	if !ok {
		st = &deferredLoad{}
		r.loaded[provider] = st
	}
	r.mu.Unlock()

	st.once.Do(func() {
		r.mu.Lock()
		for _, abs := range provider.Provides() {
			delete(r.deferred, abs)
		}
		booted := r.booted
		r.mu.Unlock()

		if err := provider.Register(r.app); err != nil {
			st.err = fmt.Errorf("registering %T: %w", provider, err)
			return
		}
		if booted {
			if err := provider.Boot(ctx, r.app); err != nil {
				st.err = fmt.Errorf("booting %T: %w", provider, err)
			}
		}
	})
	return st.err
}

// Boot calls Boot() on all eager providers, stopping at the first failure.
// Must be called after ALL providers have been registered.
//
//	// Laravel: $app->boot()
func (r *ProviderRegistry) Boot(ctx context.Context) error {
	r.mu.Lock()
	if r.booted {
		r.mu.Unlock()
		return nil
	}
	r.booted = true
	r.bootCtx = ctx
	providers := append([]ServiceProvider(nil), r.eager...)
	r.mu.Unlock()

	for _, provider := range providers {
		if err := provider.Boot(ctx, r.app); err != nil {
			return fmt.Errorf("booting %T: %w", provider, err)
		}
	}
	return nil
}

// Booted returns true if Boot() has been called.
func (r *ProviderRegistry) Booted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.booted
}

// Providers returns all registered eager providers.
func (r *ProviderRegistry) Providers() []ServiceProvider {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ServiceProvider(nil), r.eager...)
}

// Deferred returns the abstracts whose providers have not been loaded yet.
func (r *ProviderRegistry) Deferred() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.deferred))
	for abs := range r.deferred {
		out = append(out, abs)
	}
	return out
}
