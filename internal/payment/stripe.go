// Package payment turns signed Stripe events into order notifications.
package payment

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
)

// Stripe event types that carry an order reference
const (
	EventPaymentIntentSucceeded   = "payment_intent.succeeded"
	EventCheckoutSessionCompleted = "checkout.session.completed"
	EventChargeSucceeded          = "charge.succeeded"
)

// MetadataOrderID is the metadata key the shop sets on Stripe objects
const MetadataOrderID = "order_id"

// TextCodeInvalidSignature tags events whose Stripe-Signature does not verify
const TextCodeInvalidSignature = "INVALID_STRIPE_SIGNATURE"

// VerifyEvent verifies the Stripe-Signature header and returns the event.
//
// Parameters:
//   - payload: Raw request body
//   - signature: Stripe-Signature header value
//   - secret: Webhook signing secret
//
// API version mismatches are ignored: only the object metadata is read.
func VerifyEvent(payload []byte, signature, secret string) (stripe.Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, goerrors.Wrap(err, goerrors.CategoryAuth, "stripe signature verification failed").
			WithTextCode(TextCodeInvalidSignature)
	}
	return event, nil
}

// OrderIDFromEvent extracts the order id referenced by a payment event.
// ok is false when the event type is not handled or carries no order id;
// an order id that is present but malformed is an error.
func OrderIDFromEvent(event stripe.Event) (orderID int64, ok bool, err error) {
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return 0, false, nil
	}

	var ref string
	switch string(event.Type) {
	case EventPaymentIntentSucceeded:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return 0, false, fmt.Errorf("failed to parse payment intent: %w", err)
		}
		ref = pi.Metadata[MetadataOrderID]
	case EventCheckoutSessionCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return 0, false, fmt.Errorf("failed to parse checkout session: %w", err)
		}
		ref = session.Metadata[MetadataOrderID]
		if ref == "" {
			ref = session.ClientReferenceID
		}
	case EventChargeSucceeded:
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return 0, false, fmt.Errorf("failed to parse charge: %w", err)
		}
		ref = charge.Metadata[MetadataOrderID]
	default:
		return 0, false, nil
	}

	ref = strings.TrimSpace(ref)
	if ref == "" {
		return 0, false, nil
	}
	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil || id < 0 {
		return 0, false, goerrors.New(fmt.Sprintf("invalid order reference %q in %s", ref, event.Type), goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"stripe_event": event.ID})
	}
	return id, true, nil
}
