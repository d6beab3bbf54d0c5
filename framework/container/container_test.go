package container_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/km-arc/go-container/framework/container"
	"github.com/km-arc/go-container/framework/singleton"
)

// ── fixtures ─────────────────────────────────────────────────────────────────

type serviceA struct{ B *serviceB }
type serviceB struct{ A *serviceA }

// resource records when it is closed.
type resource struct {
	name string
	log  *closeLog
}

func (r *resource) Close() error {
	r.log.add(r.name)
	return nil
}

type closeLog struct {
	mu    sync.Mutex
	names []string
}

func (l *closeLog) add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.names = append(l.names, name)
}

func (l *closeLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.names...)
}

func newResource(name string, log *closeLog) container.Factory {
	return func(context.Context, *container.Container) (any, error) {
		return &resource{name: name, log: log}, nil
	}
}

// ── Bind / Singleton / Instance ──────────────────────────────────────────────

func TestBind_NewInstanceEachMake(t *testing.T) {
	c := container.New()
	c.Bind("foo", func(context.Context, *container.Container) (any, error) { return &serviceA{}, nil })

	first, err := c.Make(context.Background(), "foo")
	require.NoError(t, err)
	second, err := c.Make(context.Background(), "foo")
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.False(t, c.Resolved("foo"))
}

func TestSingleton_SharedUnderConcurrency(t *testing.T) {
	c := container.New()

	var calls atomic.Int32
	c.Singleton("shared", func(context.Context, *container.Container) (any, error) {
		calls.Add(1)
		return &serviceA{}, nil
	})

	results := make([]*serviceA, 16)
	var g errgroup.Group
	for i := range results {
		g.Go(func() error {
			v, err := container.Resolve[*serviceA](context.Background(), c, "shared")
			results[i] = v
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.EqualValues(t, 1, calls.Load())
	for _, v := range results {
		assert.Same(t, results[0], v)
	}
	assert.True(t, c.Resolved("shared"))
}

func TestSingleton_FactoryError(t *testing.T) {
	c := container.New()
	boom := errors.New("boom")
	c.Singleton("broken", func(context.Context, *container.Container) (any, error) { return nil, boom })

	_, err := c.Make(context.Background(), "broken")
	assert.ErrorIs(t, err, boom)

	var cerr *singleton.CreationError
	assert.ErrorAs(t, err, &cerr)
	assert.False(t, c.Resolved("broken"))
}

func TestInstance(t *testing.T) {
	c := container.New()
	cfg := &struct{ Name string }{"app"}
	require.NoError(t, c.Instance("config", cfg))

	got, err := c.Make(context.Background(), "config")
	require.NoError(t, err)
	assert.Same(t, cfg, got)
	assert.True(t, c.Bound("config"))
	assert.True(t, c.Resolved("config"))
}

func TestInstance_ReplaceFiresRebound(t *testing.T) {
	c := container.New()
	require.NoError(t, c.Instance("config", "old"))

	var rebound []any
	c.Rebinding("config", func(v any) { rebound = append(rebound, v) })

	require.NoError(t, c.Instance("config", "new"))

	assert.Equal(t, []any{"new"}, rebound)
	assert.Equal(t, "new", container.MustResolve[string](context.Background(), c, "config"))
}

func TestSingleton_RebindRebuilds(t *testing.T) {
	c := container.New()
	c.Singleton("svc", constant("v1"))
	assert.Equal(t, "v1", container.MustResolve[string](context.Background(), c, "svc"))

	var rebound []any
	c.Rebinding("svc", func(v any) { rebound = append(rebound, v) })

	c.Singleton("svc", constant("v2"))

	assert.Equal(t, []any{"v2"}, rebound)
	assert.Equal(t, "v2", container.MustResolve[string](context.Background(), c, "svc"))
}

func TestContainer_BindsItself(t *testing.T) {
	c := container.New()
	got, err := container.Resolve[*container.Container](context.Background(), c, "container")
	require.NoError(t, err)
	assert.Same(t, c, got)
}

// ── Make / Resolve errors ────────────────────────────────────────────────────

func TestMake_NotBound(t *testing.T) {
	c := container.New()
	_, err := c.Make(context.Background(), "missing")
	assert.ErrorIs(t, err, container.ErrNotBound)
}

func TestResolve_TypeMismatch(t *testing.T) {
	c := container.New()
	require.NoError(t, c.Instance("n", 42))

	_, err := container.Resolve[string](context.Background(), c, "n")
	assert.Error(t, err)

	assert.Panics(t, func() { container.MustResolve[string](context.Background(), c, "n") })
}

// ── Aliases ──────────────────────────────────────────────────────────────────

func TestAlias(t *testing.T) {
	c := container.New()
	c.Singleton("cache", constant("redis"))
	require.NoError(t, c.Alias("cache", "cacheManager"))

	v, err := c.Make(context.Background(), "cacheManager")
	require.NoError(t, err)
	assert.Equal(t, "redis", v)
	assert.True(t, c.Resolved("cache"))
	assert.True(t, c.Bound("cacheManager"))
}

func TestAlias_Invalid(t *testing.T) {
	c := container.New()
	assert.Error(t, c.Alias("x", "x"))

	require.NoError(t, c.Alias("a", "b"))
	assert.Error(t, c.Alias("b", "a"), "circular alias")
}

// ── Circular references ──────────────────────────────────────────────────────

func TestWithPopulate_ResolvesCycle(t *testing.T) {
	c := container.New()

	c.Singleton("a", func(context.Context, *container.Container) (any, error) {
		return &serviceA{}, nil
	}, container.WithPopulate(func(ctx context.Context, c *container.Container, v any) error {
		b, err := container.Resolve[*serviceB](ctx, c, "b")
		v.(*serviceA).B = b
		return err
	}))

	c.Singleton("b", func(context.Context, *container.Container) (any, error) {
		return &serviceB{}, nil
	}, container.WithPopulate(func(ctx context.Context, c *container.Container, v any) error {
		a, err := container.Resolve[*serviceA](ctx, c, "a")
		v.(*serviceB).A = a
		return err
	}))

	a, err := container.Resolve[*serviceA](context.Background(), c, "a")
	require.NoError(t, err)
	require.NotNil(t, a.B)
	assert.Same(t, a, a.B.A)

	b := container.MustResolve[*serviceB](context.Background(), c, "b")
	assert.Same(t, a.B, b)
}

func TestCycleWithoutPopulate_Fails(t *testing.T) {
	c := container.New()
	c.Singleton("a", func(ctx context.Context, c *container.Container) (any, error) {
		b, err := container.Resolve[*serviceB](ctx, c, "b")
		return &serviceA{B: b}, err
	})
	c.Singleton("b", func(ctx context.Context, c *container.Container) (any, error) {
		a, err := container.Resolve[*serviceA](ctx, c, "a")
		return &serviceB{A: a}, err
	})

	_, err := c.Make(context.Background(), "a")
	assert.ErrorIs(t, err, singleton.ErrCurrentlyInCreation)
	assert.False(t, c.Resolved("a"))
	assert.False(t, c.Resolved("b"))
}

// ── Dependencies and teardown ────────────────────────────────────────────────

func TestMake_RecordsDependencies(t *testing.T) {
	c := container.New()
	log := &closeLog{}

	c.Singleton("db", newResource("db", log))
	c.Singleton("repo", func(ctx context.Context, c *container.Container) (any, error) {
		if _, err := c.Make(ctx, "db"); err != nil {
			return nil, err
		}
		return &resource{name: "repo", log: log}, nil
	})

	_, err := c.Make(context.Background(), "repo")
	require.NoError(t, err)
	assert.Equal(t, []string{"repo"}, c.Registry().DependentsOf("db"))

	c.Shutdown(context.Background())
	assert.Equal(t, []string{"repo", "db"}, log.all())
}

func TestWithDependsOn(t *testing.T) {
	c := container.New()
	log := &closeLog{}

	c.Singleton("cache", newResource("cache", log))
	c.Singleton("api", newResource("api", log), container.WithDependsOn("cache"))

	_, err := c.Make(context.Background(), "api")
	require.NoError(t, err)
	assert.True(t, c.Resolved("cache"), "depends-on names are created first")

	c.Forget("cache")
	assert.Equal(t, []string{"api", "cache"}, log.all())
	assert.False(t, c.Resolved("api"))
}

func TestWithDependsOn_Circular(t *testing.T) {
	c := container.New()
	c.Singleton("x", constant("x"), container.WithDependsOn("y"))
	c.Singleton("y", constant("y"), container.WithDependsOn("x"))

	_, err := c.Make(context.Background(), "x")
	assert.ErrorIs(t, err, container.ErrCircularDependsOn)
}

func TestWithDestroy(t *testing.T) {
	c := container.New()
	var destroyed any
	c.Singleton("conn", constant("conn"), container.WithDestroy(func(v any) error {
		destroyed = v
		return nil
	}))

	_, err := c.Make(context.Background(), "conn")
	require.NoError(t, err)

	c.Shutdown(context.Background())
	assert.Equal(t, "conn", destroyed)
}

func TestWithInner(t *testing.T) {
	c := container.New()
	log := &closeLog{}
	c.Singleton("pool", newResource("pool", log))
	c.Singleton("conn", newResource("conn", log), container.WithInner("pool"))

	ctx := context.Background()
	_, err := c.Make(ctx, "pool")
	require.NoError(t, err)
	_, err = c.Make(ctx, "conn")
	require.NoError(t, err)

	c.Forget("pool")

	assert.Equal(t, []string{"pool", "conn"}, log.all())
	assert.False(t, c.Resolved("conn"))
}

func TestInstance_NotClosedOnShutdown(t *testing.T) {
	c := container.New()
	log := &closeLog{}
	require.NoError(t, c.Instance("external", &resource{name: "external", log: log}))

	c.Shutdown(context.Background())
	assert.Empty(t, log.all())
}

func TestShutdown_RejectsNewSingletons(t *testing.T) {
	c := container.New()
	c.Singleton("late", constant("late"))

	c.Shutdown(context.Background())

	_, err := c.Make(context.Background(), "late")
	assert.ErrorIs(t, err, singleton.ErrCreationNotAllowed)
	assert.Equal(t, singleton.Drained, c.Registry().State())
}

// ── Extend / Tags / Contextual / Callbacks ───────────────────────────────────

func TestExtend_BeforeResolution(t *testing.T) {
	c := container.New()
	c.Singleton("greeting", constant("hello"))
	c.Extend("greeting", func(v any, _ *container.Container) any { return v.(string) + " world" })

	assert.Equal(t, "hello world", container.MustResolve[string](context.Background(), c, "greeting"))
}

func TestExtend_AfterResolution(t *testing.T) {
	c := container.New()
	c.Singleton("greeting", constant("hello"))
	_ = container.MustResolve[string](context.Background(), c, "greeting")

	var rebound any
	c.Rebinding("greeting", func(v any) { rebound = v })
	c.Extend("greeting", func(v any, _ *container.Container) any { return v.(string) + "!" })

	assert.Equal(t, "hello!", container.MustResolve[string](context.Background(), c, "greeting"))
	assert.Equal(t, "hello!", rebound)
}

func TestTagged(t *testing.T) {
	c := container.New()
	c.Bind("cpu", constant("cpu-report"))
	c.Singleton("mem", constant("mem-report"))
	c.Tag([]string{"cpu", "mem"}, "reports")

	reports, err := c.Tagged(context.Background(), "reports")
	require.NoError(t, err)
	assert.Equal(t, []any{"cpu-report", "mem-report"}, reports)

	c.Tag([]string{"missing"}, "broken")
	_, err = c.Tagged(context.Background(), "broken")
	assert.ErrorIs(t, err, container.ErrNotBound)
}

func TestContextualBinding(t *testing.T) {
	c := container.New()
	c.Bind("filesystem", constant("local"))
	c.When("photos").Needs("filesystem").GiveValue("s3")

	c.Bind("photos", func(ctx context.Context, c *container.Container) (any, error) {
		return c.Make(ctx, "filesystem")
	})
	c.Bind("videos", func(ctx context.Context, c *container.Container) (any, error) {
		return c.Make(ctx, "filesystem")
	})

	ctx := context.Background()
	assert.Equal(t, "s3", container.MustResolve[string](ctx, c, "photos"))
	assert.Equal(t, "local", container.MustResolve[string](ctx, c, "videos"))
	assert.Equal(t, "local", container.MustResolve[string](ctx, c, "filesystem"))
}

func TestAfterResolving_FiresOncePerBuild(t *testing.T) {
	c := container.New()
	c.Singleton("shared", constant("s"))
	c.Bind("transient", constant("t"))

	var seen []string
	c.AfterResolving(func(abstract string, _ any) { seen = append(seen, abstract) })

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, _ = c.Make(ctx, "shared")
		_, _ = c.Make(ctx, "transient")
	}

	assert.Equal(t, []string{"shared", "transient", "transient"}, seen)
}

// ── Introspection ────────────────────────────────────────────────────────────

func TestBoundResolvedForget(t *testing.T) {
	c := container.New()
	c.Singleton("svc", constant("svc"))

	assert.True(t, c.Bound("svc"))
	assert.False(t, c.Resolved("svc"))

	_, err := c.Make(context.Background(), "svc")
	require.NoError(t, err)
	assert.True(t, c.Resolved("svc"))

	c.Forget("svc")
	assert.False(t, c.Bound("svc"))
	assert.False(t, c.Resolved("svc"))
}

func TestBindings(t *testing.T) {
	c := container.New()
	c.Singleton("b", constant("b"))
	c.Bind("a", constant("a"))

	assert.Equal(t, []string{"b", "a", "container"}, c.Bindings())
}

type typeKeyed struct{}

func TestTypeKey(t *testing.T) {
	key := container.TypeKey((*typeKeyed)(nil))
	assert.Equal(t, "github.com/km-arc/go-container/framework/container_test.typeKeyed", key)
}
