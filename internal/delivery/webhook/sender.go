package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/goliatone/go-logger/glog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultUserAgent identifies the notifier to receiving endpoints
	DefaultUserAgent = "PaymentWebhookNotifier/1.0"
	// DefaultConnectTimeout caps connection establishment (TCP and TLS).
	// The per-call timeout still bounds the whole exchange.
	DefaultConnectTimeout = 10 * time.Second
	// SignatureHeader carries the HMAC of the body when a secret is set
	SignatureHeader = "X-Signature-256"

	maxResponseBody = 4096
	tracerName      = "github.com/otiai10/orderhook/internal/delivery/webhook"
)

// Outcome is the classified result of one delivery attempt.
//
//   - transport failure: Success=false, StatusCode=0, Error set
//   - 2xx: Success=true, StatusCode set
//   - any other status: Success=false, StatusCode set, Response holds the body excerpt
type Outcome struct {
	URL          string        // Endpoint that was targeted
	Index        int           // 1-based position in the resolved endpoint list
	Success      bool          // True if status code is 2xx
	StatusCode   int           // HTTP status code (0 if no response was received)
	Error        string        // Transport failure description
	Response     string        // Body excerpt of a non-2xx response
	ResponseTime time.Duration // Time taken for the attempt
}

// HasStatus reports whether a response was received
func (o Outcome) HasStatus() bool {
	return o.StatusCode != 0
}

// DeliveryContext identifies an attempt in log records and spans
type DeliveryContext struct {
	OrderID int64
	Index   int
}

// URLValidator rejects endpoint URLs before any network activity
type URLValidator interface {
	ValidateWebhookURL(rawURL string) error
}

// Sender performs single delivery attempts. It never retries.
//
// Sender is safe for concurrent use by multiple goroutines.
type Sender struct {
	client         *http.Client
	transport      http.RoundTripper
	userAgent      string
	connectTimeout time.Duration
	logger         glog.Logger
	validator      URLValidator
	tracerProvider trace.TracerProvider
	tracer         trace.Tracer
}

// SenderOption configures the Sender
type SenderOption func(*Sender)

// WithUserAgent overrides DefaultUserAgent
func WithUserAgent(ua string) SenderOption {
	return func(s *Sender) {
		if ua != "" {
			s.userAgent = ua
		}
	}
}

// WithConnectTimeout overrides DefaultConnectTimeout
func WithConnectTimeout(d time.Duration) SenderOption {
	return func(s *Sender) {
		if d > 0 {
			s.connectTimeout = d
		}
	}
}

// WithSenderLogger sets the logger receiving one record per attempt
func WithSenderLogger(logger glog.Logger) SenderOption {
	return func(s *Sender) {
		s.logger = glog.Ensure(logger)
	}
}

// WithURLValidator enables URL validation before each attempt.
// A rejected URL yields a transport-failure outcome.
func WithURLValidator(v URLValidator) SenderOption {
	return func(s *Sender) {
		s.validator = v
	}
}

// WithSenderTracerProvider sets the tracer provider for attempt spans
// and the instrumented transport. Defaults to the global provider.
func WithSenderTracerProvider(tp trace.TracerProvider) SenderOption {
	return func(s *Sender) {
		s.tracerProvider = tp
	}
}

// WithTransport replaces the base round tripper. The connect timeout
// only applies to the default transport.
func WithTransport(rt http.RoundTripper) SenderOption {
	return func(s *Sender) {
		s.transport = rt
	}
}

// NewSender creates a new sender with the given options.
//
// Example:
//
//	sender := webhook.NewSender(webhook.WithSenderLogger(logger))
//	out := sender.Deliver(ctx, url, webhook.NewOrderNotification(42, "s1"), 30*time.Second,
//	    webhook.DeliveryContext{OrderID: 42, Index: 1})
func NewSender(opts ...SenderOption) *Sender {
	s := &Sender{
		userAgent:      DefaultUserAgent,
		connectTimeout: DefaultConnectTimeout,
		logger:         glog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracerProvider == nil {
		s.tracerProvider = otel.GetTracerProvider()
	}
	s.tracer = s.tracerProvider.Tracer(tracerName)

	if s.transport == nil {
		s.transport = newTransport(s.connectTimeout)
	}
	s.client = &http.Client{
		Transport: otelhttp.NewTransport(s.transport, otelhttp.WithTracerProvider(s.tracerProvider)),
		// Redirects are reported as the received status, not followed.
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return s
}

func newTransport(connectTimeout time.Duration) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: 30 * time.Second,
	}
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DialContext = dialer.DialContext
	t.TLSHandshakeTimeout = connectTimeout
	return t
}

// Deliver performs one HTTP POST of payload to url, bounded by timeout.
//
// The request includes:
//   - Content-Type: application/json
//   - User-Agent: PaymentWebhookNotifier/1.0 (unless overridden)
//   - X-Signature-256: HMAC-SHA256 of the body, when payload.Secret is set
//
// Deliver never panics and never returns an error; every fault is folded
// into the returned Outcome. One log record is emitted per call.
func (s *Sender) Deliver(ctx context.Context, url string, payload OrderNotification, timeout time.Duration, dc DeliveryContext) (out Outcome) {
	start := time.Now()
	out = Outcome{URL: url, Index: dc.Index}

	ctx, span := s.tracer.Start(ctx, "webhook.deliver",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.Int64("order.id", dc.OrderID),
			attribute.String("webhook.url", url),
			attribute.Int("webhook.index", dc.Index),
		),
	)

	defer func() {
		if r := recover(); r != nil {
			out = Outcome{
				URL:   url,
				Index: dc.Index,
				Error: fmt.Sprintf("unexpected failure: %v", r),
			}
		}
		out.ResponseTime = time.Since(start)

		if out.HasStatus() {
			span.SetAttributes(attribute.Int("http.response.status_code", out.StatusCode))
		}
		if !out.Success {
			span.SetStatus(codes.Error, out.failure())
		}
		span.End()

		s.logOutcome(dc, out)
	}()

	result := s.attempt(ctx, url, payload, timeout)
	result.URL, result.Index = url, dc.Index
	return result
}

func (s *Sender) attempt(ctx context.Context, url string, payload OrderNotification, timeout time.Duration) Outcome {
	var out Outcome

	if s.validator != nil {
		if err := s.validator.ValidateWebhookURL(url); err != nil {
			out.Error = fmt.Sprintf("url rejected: %v", err)
			return out
		}
	}

	body, err := payload.Encode()
	if err != nil {
		out.Error = fmt.Sprintf("failed to encode payload: %v", err)
		return out
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		out.Error = fmt.Sprintf("failed to create request: %v", err)
		return out
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", s.userAgent)
	if payload.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(payload.Secret, body))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		out.Error = fmt.Sprintf("request failed: %v", err)
		return out
	}
	defer resp.Body.Close()

	out.StatusCode = resp.StatusCode
	out.Success = resp.StatusCode >= 200 && resp.StatusCode < 300

	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if !out.Success {
		out.Response = string(excerpt)
	}
	return out
}

// logOutcome must not influence the outcome, so logger panics are dropped
func (s *Sender) logOutcome(dc DeliveryContext, out Outcome) {
	defer func() { _ = recover() }()

	args := []any{"order_id", dc.OrderID, "url", out.URL, "index", out.Index}
	switch {
	case out.Success:
		s.logger.Info("Webhook sent successfully",
			append(args, "http_status", out.StatusCode, "response_time", out.ResponseTime)...)
	case out.HasStatus():
		s.logger.Error("Webhook failed with non-2xx status",
			append(args, "http_status", out.StatusCode, "response", out.Response)...)
	default:
		s.logger.Error("Webhook request failed",
			append(args, "error", out.Error)...)
	}
}

func (o Outcome) failure() string {
	if o.Error != "" {
		return o.Error
	}
	return fmt.Sprintf("unexpected status: %d", o.StatusCode)
}
