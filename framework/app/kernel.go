package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/km-arc/go-container/framework/config"
	"github.com/km-arc/go-container/framework/container"
	"github.com/km-arc/go-container/framework/logging"
	"github.com/km-arc/go-container/framework/providers"
	"github.com/km-arc/go-container/framework/singleton"
)

// shutdownTimeout bounds the admin server's graceful shutdown and the final
// drain once Run's context is cancelled.
const shutdownTimeout = 10 * time.Second

// Application is the top-level application container.
// It embeds the IoC Container and ProviderRegistry so user code can
// call app.Bind(), app.Singleton(), app.Register() directly —
// exactly like $app in Laravel's bootstrap/app.php.
type Application struct {
	*container.Container
	Providers *container.ProviderRegistry

	cfg    *config.Config
	logger *logrus.Logger
}

// New builds the application from cfg: the logger, a container whose
// registry follows cfg.Registry, and the framework providers.
func New(cfg *config.Config) (*Application, error) {
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	c := container.New(
		singleton.WithLogger(logger),
		singleton.WithAliasOverriding(cfg.Registry.AllowAliasOverriding),
	)
	app := &Application{
		Container: c,
		Providers: container.NewProviderRegistry(c),
		cfg:       cfg,
		logger:    logger,
	}

	// Register framework core providers (same order as Laravel)
	for _, p := range []container.ServiceProvider{
		&providers.ConfigServiceProvider{Config: cfg},
		&providers.LoggingServiceProvider{Logger: logger},
		&providers.AliasServiceProvider{},
		&providers.AdminServiceProvider{},
	} {
		if err := app.Register(p); err != nil {
			return nil, err
		}
	}
	return app, nil
}

// Register adds a ServiceProvider to the application.
func (a *Application) Register(provider container.ServiceProvider) error {
	return a.Providers.Register(provider)
}

// Boot runs the Boot() phase on all providers.
func (a *Application) Boot(ctx context.Context) error {
	return a.Providers.Boot(ctx)
}

// Config returns the configuration the application was built with.
func (a *Application) Config() *config.Config { return a.cfg }

// Logger returns the application logger.
func (a *Application) Logger() *logrus.Logger { return a.logger }

// Run boots the application (if needed), serves the admin API when enabled
// and blocks until ctx is cancelled or the admin server stops. It then stops
// the server and drains every singleton.
func (a *Application) Run(ctx context.Context) error {
	if !a.Providers.Booted() {
		if err := a.Boot(ctx); err != nil {
			a.drain(ctx)
			return fmt.Errorf("boot: %w", err)
		}
	}

	a.logger.WithFields(logrus.Fields{
		"app": a.cfg.App.Name,
		"env": a.cfg.App.Env,
	}).Info("application started")

	// runCtx ends when ctx is cancelled or the admin server stops on its
	// own, e.g. because a drain over the admin API shut it down.
	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	g, gctx := errgroup.WithContext(runCtx)
	if a.cfg.Admin.Enabled {
		srv, err := container.Resolve[*http.Server](ctx, a.Container, "admin.server")
		if err != nil {
			a.drain(ctx)
			return err
		}

		served := make(chan struct{})
		g.Go(func() error {
			defer close(served)
			defer stop()
			a.logger.WithField("addr", srv.Addr).Info("admin API listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("admin server: %w", err)
			}
			a.logger.Info("admin API stopped")
			return nil
		})
		g.Go(func() error {
			select {
			case <-served:
				return nil
			case <-gctx.Done():
			}
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	err := g.Wait()
	a.drain(ctx)
	return err
}

func (a *Application) drain(ctx context.Context) {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	a.Shutdown(dctx)
}

// Environment returns APP_ENV value.
func (a *Application) Environment() string { return a.cfg.App.Env }
func (a *Application) IsLocal() bool       { return a.Environment() == "local" }
func (a *Application) IsProduction() bool  { return a.Environment() == "production" }
func (a *Application) IsTesting() bool     { return a.Environment() == "testing" }
func (a *Application) IsDebug() bool       { return a.cfg.App.Debug }
