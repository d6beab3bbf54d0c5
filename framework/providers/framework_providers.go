package providers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/km-arc/go-container/framework/admin"
	"github.com/km-arc/go-container/framework/config"
	"github.com/km-arc/go-container/framework/container"
	"github.com/km-arc/go-container/framework/logging"
	"github.com/km-arc/go-container/framework/routing"
)

// ── ConfigServiceProvider ─────────────────────────────────────────────────────

// ConfigServiceProvider binds the application configuration as "config".
// A preloaded Config is bound as an instance; otherwise it is loaded from
// EnvFiles (default .env) on first use.
//
// Bound abstracts:
//   - "config"         → *config.Config
//   - "configuration"  → alias of "config"
//
// Laravel equivalent:
//
//	// Illuminate\Foundation\Bootstrap\LoadConfiguration
//	$app->singleton('config', fn() => new Repository($items));
type ConfigServiceProvider struct {
	container.BaseProvider
	Config   *config.Config
	EnvFiles []string
}

func (p *ConfigServiceProvider) Register(app *container.Container) error {
	if p.Config != nil {
		if err := app.Instance("config", p.Config); err != nil {
			return err
		}
	} else {
		envFiles := p.EnvFiles
		app.Singleton("config", func(context.Context, *container.Container) (any, error) {
			return config.Load(envFiles...), nil
		})
	}
	return app.Alias("config", "configuration")
}

// ── LoggingServiceProvider ────────────────────────────────────────────────────

// LoggingServiceProvider binds the application logger.
//
// Bound abstracts:
//   - "logger"  → *logrus.Logger
//
// Configuration read from "config": Log.Level, Log.Format.
type LoggingServiceProvider struct {
	container.BaseProvider
	Logger *logrus.Logger
}

func (p *LoggingServiceProvider) Register(app *container.Container) error {
	if p.Logger != nil {
		return app.Instance("logger", p.Logger)
	}
	app.Singleton("logger", func(ctx context.Context, c *container.Container) (any, error) {
		cfg, err := container.Resolve[*config.Config](ctx, c, "config")
		if err != nil {
			return nil, err
		}
		return logging.New(cfg.Log)
	})
	return nil
}

// ── AliasServiceProvider ──────────────────────────────────────────────────────

// AliasServiceProvider applies the YAML alias manifest named by
// Registry.AliasFile during Boot. Without a manifest it does nothing.
//
//	aliases:
//	  - name: db
//	    alias: database
type AliasServiceProvider struct {
	container.BaseProvider
}

func (p *AliasServiceProvider) Register(*container.Container) error { return nil }

func (p *AliasServiceProvider) Boot(ctx context.Context, app *container.Container) error {
	cfg, err := container.Resolve[*config.Config](ctx, app, "config")
	if err != nil {
		return err
	}
	if cfg.Registry.AliasFile == "" {
		return nil
	}

	manifest, err := config.LoadAliases(cfg.Registry.AliasFile)
	if err != nil {
		return err
	}
	for _, entry := range manifest.Aliases {
		if err := app.Alias(entry.Name, entry.Alias); err != nil {
			return fmt.Errorf("alias manifest %s: %w", cfg.Registry.AliasFile, err)
		}
	}

	app.Registry().Logger().
		WithField("file", cfg.Registry.AliasFile).
		WithField("aliases", len(manifest.Aliases)).
		Info("alias manifest applied")
	return nil
}

// ── AdminServiceProvider ──────────────────────────────────────────────────────

// AdminServiceProvider registers the admin HTTP surface. It is deferred:
// nothing is built unless the application serves the admin API.
//
// Bound abstracts:
//   - "admin.router"  → *routing.Router
//   - "admin.server"  → *http.Server (Addr from Admin.Addr); shut down
//     gracefully when the container drains
type AdminServiceProvider struct {
	container.BaseProvider
}

func (p *AdminServiceProvider) IsDeferred() bool { return true }

func (p *AdminServiceProvider) Provides() []string {
	return []string{"admin.router", "admin.server"}
}

func (p *AdminServiceProvider) Register(app *container.Container) error {
	app.Singleton("admin.router", func(ctx context.Context, c *container.Container) (any, error) {
		logger, err := container.Resolve[*logrus.Logger](ctx, c, "logger")
		if err != nil {
			return nil, err
		}
		return admin.NewRouter(logger, c.Registry()), nil
	})

	app.Singleton("admin.server", func(ctx context.Context, c *container.Container) (any, error) {
		cfg, err := container.Resolve[*config.Config](ctx, c, "config")
		if err != nil {
			return nil, err
		}
		router, err := container.Resolve[*routing.Router](ctx, c, "admin.router")
		if err != nil {
			return nil, err
		}
		return &http.Server{
			Addr:              cfg.Admin.Addr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		}, nil
	}, container.WithDestroy(shutdownServer(app.Registry().Logger())))
	return nil
}

// serverShutdownTimeout bounds how long a drained admin server waits for
// in-flight requests.
const serverShutdownTimeout = 10 * time.Second

// shutdownServer stops the admin server without waiting for it. A drain can
// run inside one of the server's own handlers, and Shutdown waits for that
// handler to return.
func shutdownServer(log *logrus.Entry) func(any) error {
	return func(instance any) error {
		srv := instance.(*http.Server)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				log.WithError(err).WithField("addr", srv.Addr).Warn("admin server shutdown failed")
			}
		}()
		return nil
	}
}
