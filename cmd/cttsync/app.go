package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"cttsync/internal/browser"
	"cttsync/internal/config"
	"cttsync/internal/coordinator"
	"cttsync/internal/history"
	"cttsync/internal/notify"
	"cttsync/internal/orders"
	"cttsync/internal/reconcile"
	"cttsync/internal/tracking"
)

// app wires the pipeline from config.
type app struct {
	renderer    *browser.Renderer
	orders      *orders.Client
	resolver    *tracking.Resolver
	reconciler  *reconcile.Reconciler
	coordinator *coordinator.Coordinator
	history     *history.Store
	publisher   *notify.Publisher
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	resolver, err := tracking.NewResolver(cfg.Carrier.Prefixes, cfg.Carrier.Country)
	if err != nil {
		return nil, err
	}
	a := &app{
		renderer: browser.NewRenderer(cfg.Browser),
		orders:   orders.NewClient(cfg.Orders.BaseURL, cfg.Orders.ListPath, cfg.GetOrdersTimeout()),
		resolver: resolver,
	}

	rcOpts := []reconcile.Option{
		reconcile.WithResolver(resolver),
		reconcile.WithURLBuilder(tracking.URLBuilder{Template: cfg.Carrier.URLTemplate}),
	}
	if cfg.Notify.Enabled {
		pub, err := notify.Dial(cfg.Notify.URL, cfg.Notify.Exchange)
		if err != nil {
			// The order store stays the source of truth; run without events.
			logger.Warn("status events disabled", zap.Error(err))
		} else {
			a.publisher = pub
			rcOpts = append(rcOpts, reconcile.WithPublisher(pub))
		}
	}
	a.reconciler = reconcile.New(a.renderer, a.orders, rcOpts...)

	coOpts := []coordinator.Option{
		coordinator.WithConcurrency(cfg.GetConcurrency()),
		coordinator.WithResolver(resolver),
	}
	if cfg.History.Enabled {
		store, err := history.Open(cfg.History.Path, cfg.History.Keep)
		if err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("open history: %w", err)
		}
		a.history = store
		coOpts = append(coOpts, coordinator.WithHistory(store))
	}
	a.coordinator = coordinator.New(a.orders, a.reconciler, coOpts...)

	if a.history != nil {
		last, err := a.history.Last(ctx)
		if err != nil {
			logger.Warn("could not read last run", zap.Error(err))
		}
		a.coordinator.Seed(last)
	}
	return a, nil
}

// Close waits for background runs and releases every resource.
func (a *app) Close(ctx context.Context) error {
	if a.coordinator != nil {
		a.coordinator.Wait()
	}
	var errs []error
	if err := a.renderer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("browser: %w", err))
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("notify: %w", err))
		}
	}
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			errs = append(errs, fmt.Errorf("history: %w", err))
		}
	}
	return errors.Join(errs...)
}
