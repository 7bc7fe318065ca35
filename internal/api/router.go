package api

import (
	"net/http"

	"github.com/goliatone/go-logger/glog"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/otiai10/orderhook/internal/auth"
)

// RouterConfig holds dependencies for the router
type RouterConfig struct {
	Dispatcher          Dispatcher
	TokenVerifier       auth.TokenVerifier // nil means no auth
	StripeWebhookSecret string             // empty disables the Stripe route
	Logger              glog.Logger
	TracerProvider      trace.TracerProvider // nil uses the global provider
}

// NewRouter creates the HTTP trigger API:
//
//	GET  /health
//	POST /api/orders/{orderID}/notify   (auth)
//	POST /api/events                    (auth)
//	POST /api/stripe/webhook            (Stripe signature)
//
// Without a TokenVerifier the /api routes are open and a warning is logged.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := glog.Ensure(cfg.Logger)
	h := NewHandler(cfg.Dispatcher, cfg.StripeWebhookSecret, logger)

	r := mux.NewRouter()
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	// Stripe signs its own requests, no bearer token
	if cfg.StripeWebhookSecret != "" {
		r.HandleFunc("/api/stripe/webhook", h.StripeWebhook).Methods(http.MethodPost)
	}

	protected := r.PathPrefix("/api").Subrouter()
	if cfg.TokenVerifier != nil {
		protected.Use(mux.MiddlewareFunc(auth.Middleware(cfg.TokenVerifier, logger)))
	} else {
		logger.Warn("HTTP API has no authentication; anyone who can reach it can trigger notifications",
			"routes", []string{"/api/orders/{orderID}/notify", "/api/events"})
	}
	protected.HandleFunc("/orders/{orderID}/notify", h.NotifyOrder).Methods(http.MethodPost)
	protected.HandleFunc("/events", h.ReceiveEvent).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, "not found", http.StatusNotFound)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
	})

	handler := Chain(
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		JSONContentTypeMiddleware,
	)(r)

	var opts []otelhttp.Option
	if cfg.TracerProvider != nil {
		opts = append(opts, otelhttp.WithTracerProvider(cfg.TracerProvider))
	}
	return otelhttp.NewHandler(handler, "orderhook-api", opts...)
}
