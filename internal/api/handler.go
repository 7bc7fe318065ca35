package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/gorilla/mux"

	"github.com/otiai10/orderhook/internal/auth"
	"github.com/otiai10/orderhook/internal/payment"
	"github.com/otiai10/orderhook/internal/source"
	"github.com/otiai10/orderhook/internal/version"
)

const (
	maxEventBody  = 64 << 10
	maxStripeBody = 1 << 20
)

// Dispatcher abstracts the webhook.Coordinator
type Dispatcher interface {
	Dispatch(ctx context.Context, orderID int64) bool
}

// NotifyResponse is returned by every trigger endpoint.
// Delivered is the dispatch result; the request itself succeeded.
type NotifyResponse struct {
	OrderID   int64  `json:"order_id"`
	Delivered bool   `json:"delivered"`
	EventID   string `json:"event_id,omitempty"`
}

// IgnoredResponse acknowledges a payment event that references no order
type IgnoredResponse struct {
	Ignored bool   `json:"ignored"`
	Reason  string `json:"reason,omitempty"`
}

// HealthResponse is returned by /health
type HealthResponse struct {
	Status string `json:"status"`
	Hash   string `json:"hash"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// Handler contains the HTTP handlers for the API
type Handler struct {
	dispatcher   Dispatcher
	stripeSecret string
	logger       glog.Logger
}

// NewHandler creates a new Handler instance
func NewHandler(dispatcher Dispatcher, stripeSecret string, logger glog.Logger) *Handler {
	return &Handler{
		dispatcher:   dispatcher,
		stripeSecret: stripeSecret,
		logger:       glog.Ensure(logger),
	}
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, HealthResponse{Status: "ok", Hash: version.CommitHash}, http.StatusOK)
}

// NotifyOrder handles POST /api/orders/{orderID}/notify
func (h *Handler) NotifyOrder(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["orderID"]
	orderID, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || orderID < 0 {
		writeError(w, "invalid order id", http.StatusBadRequest)
		return
	}

	h.logger.Info("Order notification requested", "order_id", orderID, "caller", auth.CallerID(r.Context()))
	h.dispatch(w, r, orderID, "")
}

// ReceiveEvent handles POST /api/events with an order event body:
//
//	{"id": "evt-1", "type": "order.paid", "order_id": 42}
func (h *Handler) ReceiveEvent(w http.ResponseWriter, r *http.Request) {
	body, status, err := readBody(w, r, maxEventBody)
	if err != nil {
		writeError(w, err.Error(), status)
		return
	}

	ev, err := source.Decode(body)
	if err != nil {
		var gerr *goerrors.Error
		if errors.As(err, &gerr) {
			writeError(w, gerr.Message, http.StatusBadRequest)
			return
		}
		writeError(w, "invalid order event", http.StatusBadRequest)
		return
	}

	h.logger.Info("Order event received over HTTP",
		"event_id", ev.ID,
		"order_id", ev.OrderID,
		"type", ev.Type,
		"caller", auth.CallerID(r.Context()),
	)
	h.dispatch(w, r, ev.OrderID, ev.ID)
}

// StripeWebhook handles POST /api/stripe/webhook.
// Events that reference no order are acknowledged with {"ignored": true}
// so Stripe does not retry them.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	body, status, err := readBody(w, r, maxStripeBody)
	if err != nil {
		writeError(w, err.Error(), status)
		return
	}

	event, err := payment.VerifyEvent(body, r.Header.Get("Stripe-Signature"), h.stripeSecret)
	if err != nil {
		h.logger.Warn("Rejected Stripe event", "error", err)
		writeError(w, "invalid signature", http.StatusBadRequest)
		return
	}

	orderID, ok, err := payment.OrderIDFromEvent(event)
	if err != nil {
		h.logger.Error("Stripe event has an invalid order reference", "stripe_event", event.ID, "type", event.Type, "error", err)
		writeJSON(w, IgnoredResponse{Ignored: true, Reason: "invalid order reference"}, http.StatusOK)
		return
	}
	if !ok {
		h.logger.Debug("Ignoring Stripe event", "stripe_event", event.ID, "type", event.Type)
		writeJSON(w, IgnoredResponse{Ignored: true}, http.StatusOK)
		return
	}

	h.logger.Info("Payment event received", "stripe_event", event.ID, "type", event.Type, "order_id", orderID)
	h.dispatch(w, r, orderID, event.ID)
}

func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request, orderID int64, eventID string) {
	delivered := h.dispatcher.Dispatch(r.Context(), orderID)
	writeJSON(w, NotifyResponse{OrderID: orderID, Delivered: delivered, EventID: eventID}, http.StatusOK)
}

func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, int, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, http.StatusRequestEntityTooLarge, errors.New("request body too large")
		}
		return nil, http.StatusBadRequest, errors.New("failed to read request body")
	}
	return body, http.StatusOK, nil
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, ErrorResponse{Error: message}, status)
}
