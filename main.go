package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/km-arc/go-container/framework/app"
	"github.com/km-arc/go-container/framework/config"
	"github.com/km-arc/go-container/framework/container"
)

// Store is a stand-in for a pooled resource closed on shutdown.
type Store struct {
	log *logrus.Entry
}

func (s *Store) Close() error {
	s.log.Info("store closed")
	return nil
}

// Orders and Billing reference each other; WithPopulate lets the container
// hand each one the other's early reference.
type Orders struct {
	Store   *Store
	Billing *Billing
}

type Billing struct {
	Orders *Orders
}

// DemoServiceProvider registers the demo services.
type DemoServiceProvider struct{ container.BaseProvider }

func (p *DemoServiceProvider) Register(app *container.Container) error {
	app.Singleton("store", func(ctx context.Context, c *container.Container) (any, error) {
		logger, err := container.Resolve[*logrus.Logger](ctx, c, "logger")
		if err != nil {
			return nil, err
		}
		return &Store{log: logger.WithField("service", "store")}, nil
	})

	app.Singleton("orders", func(context.Context, *container.Container) (any, error) {
		return &Orders{}, nil
	}, container.WithPopulate(func(ctx context.Context, c *container.Container, v any) error {
		orders := v.(*Orders)
		store, err := container.Resolve[*Store](ctx, c, "store")
		if err != nil {
			return err
		}
		billing, err := container.Resolve[*Billing](ctx, c, "billing")
		if err != nil {
			return err
		}
		orders.Store, orders.Billing = store, billing
		return nil
	}))

	app.Singleton("billing", func(context.Context, *container.Container) (any, error) {
		return &Billing{}, nil
	}, container.WithPopulate(func(ctx context.Context, c *container.Container, v any) error {
		orders, err := container.Resolve[*Orders](ctx, c, "orders")
		v.(*Billing).Orders = orders
		return err
	}))
	return nil
}

func (p *DemoServiceProvider) Boot(ctx context.Context, app *container.Container) error {
	orders, err := container.Resolve[*Orders](ctx, app, "orders")
	if err != nil {
		return err
	}
	app.Registry().Logger().WithFields(logrus.Fields{
		"cycle_closed": orders.Billing.Orders == orders,
		"singletons":   app.Registry().Names(),
	}).Info("demo services resolved")
	return nil
}

func main() {
	cfg := config.Load() // loads .env automatically

	application, err := app.New(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("bootstrap failed")
	}
	if err := application.Register(&DemoServiceProvider{}); err != nil {
		application.Logger().WithError(err).Fatal("registering demo services failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		application.Logger().WithError(err).Error("application stopped with error")
		os.Exit(1)
	}
}
