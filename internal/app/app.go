package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/goliatone/go-logger/glog"
	"go.opentelemetry.io/otel/propagation"

	"github.com/otiai10/orderhook/internal/source"
)

// Dispatcher abstracts the webhook.Coordinator for testing
type Dispatcher interface {
	Dispatch(ctx context.Context, orderID int64) bool
}

// App is the main application orchestrator.
// It fans in order events from every configured source and hands each one
// to the dispatcher, one event at a time per source.
type App struct {
	sources    []source.Source
	dispatcher Dispatcher
	logger     glog.Logger
	propagator propagation.TextMapPropagator
}

// Option is a functional option for configuring the App.
type Option func(*App)

// WithLogger sets the logger. A nil logger is replaced by a no-op one.
func WithLogger(logger glog.Logger) Option {
	return func(a *App) {
		a.logger = glog.Ensure(logger)
	}
}

// WithSources adds event sources
func WithSources(sources ...source.Source) Option {
	return func(a *App) {
		for _, s := range sources {
			if s != nil {
				a.sources = append(a.sources, s)
			}
		}
	}
}

// NewApp creates a new application instance.
//
// Example:
//
//	coordinator := webhook.NewCoordinator(reader, sender)
//	app := app.NewApp(coordinator,
//	    app.WithSources(wsfeed.NewClient(endpoint), redisq.NewQueue(redisCfg)),
//	    app.WithLogger(logger),
//	)
//	if err := app.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
func NewApp(dispatcher Dispatcher, opts ...Option) *App {
	a := &App{
		dispatcher: dispatcher,
		logger:     glog.Nop(),
		propagator: propagation.TraceContext{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run connects every source and blocks until the context is cancelled.
//
// The method will:
//  1. Connect all sources; if one fails, the ones already connected are closed
//  2. Consume each source in its own goroutine
//  3. Dispatch every event and acknowledge it afterwards, whatever the result
//  4. On context cancellation, wait for in-flight dispatches, then close all sources
//
// With no sources configured Run simply waits for cancellation, which is the
// HTTP-only deployment.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("Starting orderhook", "sources", len(a.sources))

	for i, s := range a.sources {
		if err := s.Connect(ctx); err != nil {
			for _, connected := range a.sources[:i] {
				_ = connected.Close()
			}
			return fmt.Errorf("failed to connect source %d: %w", i, err)
		}
	}

	var wg sync.WaitGroup
	for _, s := range a.sources {
		wg.Add(1)
		go func(s source.Source) {
			defer wg.Done()
			a.consume(ctx, s)
		}(s)
	}

	<-ctx.Done()
	a.logger.Info("Shutting down...")

	// In-flight dispatches finish and acknowledge before their source closes.
	wg.Wait()
	for _, s := range a.sources {
		if err := s.Close(); err != nil {
			a.logger.Warn("Failed to close source", "error", err)
		}
	}
	return nil
}

func (a *App) consume(ctx context.Context, s source.Source) {
	events := s.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			a.handleEvent(ctx, ev)
		}
	}
}

// handleEvent dispatches one order event. The event is acknowledged after
// dispatch regardless of the outcome: failed deliveries are reported by the
// coordinator's logs, not by redelivery.
func (a *App) handleEvent(ctx context.Context, ev source.Event) bool {
	defer ev.Done()

	if len(ev.Carrier) > 0 {
		ctx = a.propagator.Extract(ctx, propagation.MapCarrier(ev.Carrier))
	}

	a.logger.Info("Received order event",
		"event_id", ev.ID,
		"order_id", ev.OrderID,
		"type", ev.Type,
		"origin", ev.Origin,
	)

	delivered := a.dispatcher.Dispatch(ctx, ev.OrderID)
	a.logger.Debug("Order event handled",
		"event_id", ev.ID,
		"order_id", ev.OrderID,
		"delivered", delivered,
	)
	return delivered
}
