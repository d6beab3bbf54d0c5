package container_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/km-arc/go-container/framework/container"
)

// ── stub providers ────────────────────────────────────────────────────────────

func constant(v any) container.Factory {
	return func(context.Context, *container.Container) (any, error) { return v, nil }
}

type eagerProvider struct {
	container.BaseProvider
	registerCalled bool
	bootCalled     bool
}

func (p *eagerProvider) Register(app *container.Container) error {
	p.registerCalled = true
	app.Singleton("eager-svc", constant("eager"))
	return nil
}

func (p *eagerProvider) Boot(context.Context, *container.Container) error {
	p.bootCalled = true
	return nil
}

// deferredProvider is lazy — only registered when "deferred-svc" is first resolved.
type deferredProvider struct {
	container.BaseProvider
	mu            sync.Mutex
	registerCalls int
	bootCalled    bool
}

func (p *deferredProvider) Register(app *container.Container) error {
	p.mu.Lock()
	p.registerCalls++
	p.mu.Unlock()
	app.Singleton("deferred-svc", constant("deferred-value"))
	return nil
}

func (p *deferredProvider) Boot(context.Context, *container.Container) error {
	p.bootCalled = true
	return nil
}

func (p *deferredProvider) IsDeferred() bool   { return true }
func (p *deferredProvider) Provides() []string { return []string{"deferred-svc"} }

// forgetfulProvider claims an abstract it never binds.
type forgetfulProvider struct{ container.BaseProvider }

func (p *forgetfulProvider) Register(*container.Container) error { return nil }
func (p *forgetfulProvider) IsDeferred() bool                    { return true }
func (p *forgetfulProvider) Provides() []string                  { return []string{"ghost"} }

// multiProvider registers multiple abstracts.
type multiProvider struct {
	container.BaseProvider
}

func (p *multiProvider) Register(app *container.Container) error {
	app.Singleton("alpha", constant("α"))
	app.Singleton("beta", constant("β"))
	return nil
}

// failingProvider fails to boot.
type failingProvider struct{ container.BaseProvider }

var errBoot = errors.New("boot failed")

func (p *failingProvider) Register(*container.Container) error { return nil }
func (p *failingProvider) Boot(context.Context, *container.Container) error {
	return errBoot
}

// ── ProviderRegistry ──────────────────────────────────────────────────────────

func TestRegistry_EagerProvider_RegisterCalled(t *testing.T) {
	c := container.New()
	reg := container.NewProviderRegistry(c)

	p := &eagerProvider{}
	if err := reg.Register(p); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if !p.registerCalled {
		t.Error("Register() should be called immediately for eager providers")
	}
}

func TestRegistry_EagerProvider_BootCalledAfterBoot(t *testing.T) {
	c := container.New()
	reg := container.NewProviderRegistry(c)

	p := &eagerProvider{}
	_ = reg.Register(p)

	if p.bootCalled {
		t.Error("Boot() should NOT be called before registry.Boot()")
	}

	if err := reg.Boot(context.Background()); err != nil {
		t.Fatalf("Boot: %v", err)
	}

	if !p.bootCalled {
		t.Error("Boot() should be called after registry.Boot()")
	}
}

func TestRegistry_EagerProvider_ServiceResolvable(t *testing.T) {
	c := container.New()
	reg := container.NewProviderRegistry(c)
	_ = reg.Register(&eagerProvider{})
	_ = reg.Boot(context.Background())

	got, err := container.Resolve[string](context.Background(), c, "eager-svc")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "eager" {
		t.Errorf("eager-svc: got %q, want 'eager'", got)
	}
}

func TestRegistry_Boot_IdempotentCallsAreIgnored(t *testing.T) {
	c := container.New()
	reg := container.NewProviderRegistry(c)

	p := &eagerProvider{}
	_ = reg.Register(p)

	_ = reg.Boot(context.Background())
	_ = reg.Boot(context.Background()) // second call should be no-op

	if !reg.Booted() {
		t.Error("Booted() should be true after Boot()")
	}
}

func TestRegistry_Boot_ReturnsProviderError(t *testing.T) {
	c := container.New()
	reg := container.NewProviderRegistry(c)
	_ = reg.Register(&failingProvider{})

	if err := reg.Boot(context.Background()); !errors.Is(err, errBoot) {
		t.Errorf("Boot: got %v, want %v", err, errBoot)
	}
}

func TestRegistry_Booted_FalseBeforeBoot(t *testing.T) {
	c := container.New()
	reg := container.NewProviderRegistry(c)
	if reg.Booted() {
		t.Error("Booted() should be false before Boot()")
	}
}

func TestRegistry_DuplicateRegister_Ignored(t *testing.T) {
	c := container.New()
	reg := container.NewProviderRegistry(c)

	p := &eagerProvider{}
	_ = reg.Register(p)
	_ = reg.Register(p) // second register of same instance

	if got := len(reg.Providers()); got != 1 {
		t.Errorf("Providers(): got %d, want 1", got)
	}
}

// ── Deferred providers ────────────────────────────────────────────────────────

func TestRegistry_DeferredProvider_NotRegisteredEagerly(t *testing.T) {
	c := container.New()
	reg := container.NewProviderRegistry(c)

	p := &deferredProvider{}
	_ = reg.Register(p)
	_ = reg.Boot(context.Background())

	// Provider.Register should NOT have been called yet
	if p.registerCalls != 0 {
		t.Error("deferred provider Register() should not be called until Make()")
	}
	if !c.Bound("deferred-svc") {
		t.Error("deferred abstract should report as bound")
	}
	if got := reg.Deferred(); len(got) != 1 || got[0] != "deferred-svc" {
		t.Errorf("Deferred(): got %v", got)
	}
}

func TestRegistry_DeferredProvider_RegisteredOnFirstMake(t *testing.T) {
	c := container.New()
	reg := container.NewProviderRegistry(c)

	p := &deferredProvider{}
	_ = reg.Register(p)
	_ = reg.Boot(context.Background())

	// Trigger lazy load
	got, err := container.Resolve[string](context.Background(), c, "deferred-svc")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "deferred-value" {
		t.Errorf("deferred-svc: got %q, want 'deferred-value'", got)
	}
	if !p.bootCalled {
		t.Error("deferred provider loaded after Boot() should be booted")
	}
	if len(reg.Deferred()) != 0 {
		t.Error("loaded provider should no longer be deferred")
	}
}

func TestRegistry_DeferredProvider_ConcurrentFirstUse(t *testing.T) {
	c := container.New()
	reg := container.NewProviderRegistry(c)

	p := &deferredProvider{}
	_ = reg.Register(p)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Make(context.Background(), "deferred-svc"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Make: %v", err)
	}
	if p.registerCalls != 1 {
		t.Errorf("Register() calls: got %d, want 1", p.registerCalls)
	}
}

func TestRegistry_DeferredProvider_MissingBinding(t *testing.T) {
	c := container.New()
	reg := container.NewProviderRegistry(c)
	_ = reg.Register(&forgetfulProvider{})

	if _, err := c.Make(context.Background(), "ghost"); err == nil {
		t.Error("Make should fail when a deferred provider does not bind its abstract")
	}
}

// ── Multiple providers ────────────────────────────────────────────────────────

func TestRegistry_MultipleProviders_AllServicesResolvable(t *testing.T) {
	c := container.New()
	reg := container.NewProviderRegistry(c)
	_ = reg.Register(&multiProvider{})
	_ = reg.Register(&eagerProvider{})
	_ = reg.Boot(context.Background())

	ctx := context.Background()
	if got := container.MustResolve[string](ctx, c, "alpha"); got != "α" {
		t.Errorf("alpha: got %q, want 'α'", got)
	}
	if got := container.MustResolve[string](ctx, c, "beta"); got != "β" {
		t.Errorf("beta: got %q, want 'β'", got)
	}
	if got := container.MustResolve[string](ctx, c, "eager-svc"); got != "eager" {
		t.Errorf("eager-svc: got %q, want 'eager'", got)
	}
}

// ── Providers list ────────────────────────────────────────────────────────────

func TestRegistry_Providers_ReturnsEagerOnes(t *testing.T) {
	c := container.New()
	reg := container.NewProviderRegistry(c)
	_ = reg.Register(&eagerProvider{})
	_ = reg.Register(&deferredProvider{}) // deferred — not in Providers()

	if len(reg.Providers()) != 1 {
		t.Errorf("Providers(): got %d, want 1 (eager only)", len(reg.Providers()))
	}
}

// ── BaseProvider defaults ─────────────────────────────────────────────────────

func TestBaseProvider_Defaults(t *testing.T) {
	var p container.BaseProvider
	c := container.New()

	if err := p.Boot(context.Background(), c); err != nil {
		t.Errorf("BaseProvider.Boot(): %v", err)
	}

	if p.IsDeferred() {
		t.Error("BaseProvider.IsDeferred() should be false")
	}
	if len(p.Provides()) != 0 {
		t.Error("BaseProvider.Provides() should return empty slice")
	}
}

// ── Boot after registration (late provider) ───────────────────────────────────

func TestRegistry_RegisterAfterBoot_BootsImmediately(t *testing.T) {
	c := container.New()
	reg := container.NewProviderRegistry(c)
	_ = reg.Boot(context.Background()) // boot before registering

	p := &eagerProvider{}
	_ = reg.Register(p) // register after boot

	if !p.bootCalled {
		t.Error("provider registered after Boot() should be booted immediately")
	}
}
