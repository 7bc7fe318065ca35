package webhook

import (
	"context"
	"fmt"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/otiai10/orderhook/internal/config"
)

// Facility is the logger name every notifier record is tagged with
const Facility = "PaymentWebhookNotifier::Webhook"

// ConfigReader resolves the webhook settings. Load is called exactly once
// per dispatch and must return values from a single read of the backend.
type ConfigReader interface {
	Load(ctx context.Context) (config.Settings, error)
}

// Deliverer performs one delivery attempt. *Sender is the production implementation.
type Deliverer interface {
	Deliver(ctx context.Context, url string, payload OrderNotification, timeout time.Duration, dc DeliveryContext) Outcome
}

// State is the position of a dispatch call in its lifecycle
type State string

const (
	StateIdle               State = "idle"
	StateCheckingEnabled    State = "checking_enabled"
	StateDisabled           State = "disabled"
	StateResolvingEndpoints State = "resolving_endpoints"
	StateNoEndpoints        State = "no_endpoints"
	StateDelivering         State = "delivering"
	StateAggregating        State = "aggregating"
	StateDone               State = "done"
	StateFailed             State = "failed"
)

// Text codes attached to dispatch failures
const (
	TextCodeConfigReadFailed = "CONFIG_READ_FAILED"
	TextCodeDispatchPanic    = "DISPATCH_PANIC"
)

// report is the full record of one dispatch call. Only Delivered leaves the package.
type report struct {
	DispatchID string
	OrderID    int64
	State      State
	Outcomes   []Outcome
	Delivered  bool
	Err        error
}

// Coordinator fans one order notification out to every configured endpoint
type Coordinator struct {
	config        ConfigReader
	deliverer     Deliverer
	logger        glog.Logger
	concurrent    bool
	configTimeout time.Duration
	tracer        trace.Tracer
}

// CoordinatorOption configures the Coordinator
type CoordinatorOption func(*Coordinator)

// WithLogger sets the structured logger. Defaults to a no-op logger.
func WithLogger(logger glog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.logger = glog.Ensure(logger)
	}
}

// WithConcurrentDelivery delivers to all endpoints in parallel.
// The result still waits for every attempt.
func WithConcurrentDelivery(enabled bool) CoordinatorOption {
	return func(c *Coordinator) {
		c.concurrent = enabled
	}
}

// WithConfigTimeout bounds the settings read of each dispatch.
// Defaults to config.DefaultTimeout.
func WithConfigTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d > 0 {
			c.configTimeout = d
		}
	}
}

// WithTracerProvider sets the provider for dispatch spans
func WithTracerProvider(tp trace.TracerProvider) CoordinatorOption {
	return func(c *Coordinator) {
		if tp != nil {
			c.tracer = tp.Tracer(tracerName)
		}
	}
}

// NewCoordinator creates a coordinator reading settings from cfg and
// delivering through deliverer.
func NewCoordinator(cfg ConfigReader, deliverer Deliverer, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		config:        cfg,
		deliverer:     deliverer,
		logger:        glog.Nop(),
		configTimeout: config.DefaultTimeout,
		tracer:        otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dispatch notifies every configured endpoint about orderID and reports
// whether all of them accepted it.
//
// It returns false when notifications are disabled, when no endpoint is
// configured, when any endpoint fails, or when an unexpected fault occurs.
// Dispatch never panics. Cancelling ctx does not abort in-flight attempts.
// The settings read is bounded by the config timeout, or by the deadline of
// ctx when that comes first; deliveries are bounded by webhook.timeout.
func (c *Coordinator) Dispatch(ctx context.Context, orderID int64) bool {
	return c.run(ctx, orderID).Delivered
}

func (c *Coordinator) run(ctx context.Context, orderID int64) (rep report) {
	rep = report{
		DispatchID: uuid.NewString(),
		OrderID:    orderID,
		State:      StateIdle,
	}

	deadline, hasDeadline := ctx.Deadline()
	ctx = context.WithoutCancel(ctx)
	ctx, span := c.tracer.Start(ctx, "webhook.dispatch",
		trace.WithAttributes(
			attribute.Int64("order.id", orderID),
			attribute.String("dispatch.id", rep.DispatchID),
		),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := goerrors.New(fmt.Sprintf("unexpected panic during dispatch: %v", r), goerrors.CategoryInternal).
				WithTextCode(TextCodeDispatchPanic).
				WithMetadata(map[string]any{"order_id": orderID, "state": string(rep.State)})
			c.fail(&rep, span, err)
		}
	}()

	rep.State = StateCheckingEnabled
	readTimeout := c.configTimeout
	if hasDeadline {
		readTimeout = min(readTimeout, time.Until(deadline))
	}
	settings, err := c.loadSettings(ctx, readTimeout)
	if err != nil {
		c.fail(&rep, span, err)
		return rep
	}
	if !settings.Enabled {
		rep.State = StateDisabled
		c.log(glog.Logger.Info, "Webhook is disabled in config", "order_id", orderID)
		return rep
	}

	rep.State = StateResolvingEndpoints
	urls, timeout, secret := settings.URLs, settings.Timeout, settings.Secret
	if len(urls) == 0 {
		rep.State = StateNoEndpoints
		c.log(glog.Logger.Error, "Webhook URL is not configured", "order_id", orderID)
		span.SetStatus(codes.Error, "no endpoints configured")
		return rep
	}

	payload := NewOrderNotification(orderID, secret)

	rep.State = StateDelivering
	rep.Outcomes = c.deliverAll(ctx, urls, payload, timeout, orderID)

	rep.State = StateAggregating
	rep.Delivered = true
	failed := 0
	for _, out := range rep.Outcomes {
		if !out.Success {
			rep.Delivered = false
			failed++
		}
	}
	rep.State = StateDone

	span.SetAttributes(
		attribute.Int("webhook.endpoints", len(urls)),
		attribute.Int("webhook.failed", failed),
	)
	if !rep.Delivered {
		span.SetStatus(codes.Error, fmt.Sprintf("%d of %d deliveries failed", failed, len(urls)))
	}
	c.log(glog.Logger.Debug, "Webhook dispatch finished",
		"order_id", orderID,
		"dispatch_id", rep.DispatchID,
		"endpoints", len(urls),
		"failed", failed,
		"delivered", rep.Delivered,
	)
	return rep
}

// loadSettings reads the settings once, bounded by timeout.
// A backend that does not honour ctx still cannot hold the dispatch past it.
func (c *Coordinator) loadSettings(ctx context.Context, timeout time.Duration) (config.Settings, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		settings config.Settings
		err      error
		panicked any
	}
	done := make(chan result, 1)
	go func() {
		var res result
		defer func() {
			res.panicked = recover()
			done <- res
		}()
		res.settings, res.err = c.config.Load(ctx)
	}()

	select {
	case res := <-done:
		if res.panicked != nil {
			panic(res.panicked)
		}
		return res.settings, res.err
	case <-ctx.Done():
		return config.Settings{}, goerrors.Wrap(ctx.Err(), goerrors.CategoryExternal, "timed out reading webhook settings").
			WithTextCode(TextCodeConfigReadFailed).
			WithMetadata(map[string]any{"timeout": timeout.String()})
	}
}

func (c *Coordinator) deliverAll(ctx context.Context, urls []string, payload OrderNotification, timeout time.Duration, orderID int64) []Outcome {
	outcomes := make([]Outcome, len(urls))

	if !c.concurrent || len(urls) == 1 {
		for i, url := range urls {
			outcomes[i] = c.deliverOne(ctx, url, payload, timeout, DeliveryContext{OrderID: orderID, Index: i + 1})
		}
		return outcomes
	}

	var wg sync.WaitGroup
	for i, url := range urls {
		wg.Add(1)
		go func(index int, u string) {
			defer wg.Done()
			outcomes[index] = c.deliverOne(ctx, u, payload, timeout, DeliveryContext{OrderID: orderID, Index: index + 1})
		}(i, url)
	}
	wg.Wait()
	return outcomes
}

// deliverOne isolates a misbehaving Deliverer so siblings are still attempted
func (c *Coordinator) deliverOne(ctx context.Context, url string, payload OrderNotification, timeout time.Duration, dc DeliveryContext) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{
				URL:   url,
				Index: dc.Index,
				Error: fmt.Sprintf("unexpected failure: %v", r),
			}
			c.log(glog.Logger.Error, "Webhook request failed",
				"order_id", dc.OrderID, "url", url, "index", dc.Index, "error", out.Error)
		}
	}()
	out = c.deliverer.Deliver(ctx, url, payload, timeout, dc)
	out.URL, out.Index = url, dc.Index
	return out
}

func (c *Coordinator) fail(rep *report, span trace.Span, err error) {
	var envelope *goerrors.Error
	if !goerrors.As(err, &envelope) {
		envelope = goerrors.Wrap(err, goerrors.CategoryInternal, "webhook dispatch failed")
	}
	if envelope.TextCode == "" {
		envelope = envelope.WithTextCode(TextCodeConfigReadFailed)
	}
	envelope = envelope.WithMetadata(map[string]any{"order_id": rep.OrderID})

	rep.State = StateFailed
	rep.Delivered = false
	rep.Err = envelope

	span.RecordError(envelope)
	span.SetStatus(codes.Error, envelope.Message)

	c.log(glog.Logger.Error, "Exception while sending webhook",
		"order_id", rep.OrderID,
		"dispatch_id", rep.DispatchID,
		"error", envelope,
	)
}

// log writes a record; a faulty logger never changes the dispatch result
func (c *Coordinator) log(level func(glog.Logger, string, ...any), msg string, args ...any) {
	defer func() { _ = recover() }()
	level(c.logger, msg, args...)
}
