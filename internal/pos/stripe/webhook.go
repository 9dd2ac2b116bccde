package stripe

import (
	"errors"
	"time"

	"github.com/stripe/stripe-go/v76/webhook"
)

// SignatureHeader carries the webhook signature.
const SignatureHeader = "Stripe-Signature"

// DefaultTolerance is how old a signed timestamp may be.
const DefaultTolerance = webhook.DefaultTolerance

var (
	ErrWebhookNotConfigured = errors.New("stripe webhook secret not configured")
	ErrInvalidSignature     = errors.New("invalid webhook signature")
	ErrInvalidPayload       = errors.New("invalid webhook payload")
)

type Event struct {
	ID   string
	Type string
	Data struct {
		Object struct {
			ID     string
			Status string
		}
	}
}

// NativeStatus maps the PaymentIntent events that settle a payment to the
// Stripe status they imply.  ok is false for events reconciliation ignores.
func (e Event) NativeStatus() (status string, ok bool) {
	switch e.Type {
	case "payment_intent.succeeded":
		return "succeeded", true
	case "payment_intent.payment_failed":
		return "failed", true
	case "payment_intent.canceled":
		return "canceled", true
	}
	return "", false
}

// ConstructEvent verifies header against payload and decodes the event.
// Events from any account API version are accepted; only the object id and
// status are read.
func ConstructEvent(payload []byte, header, secret string) (Event, error) {
	if secret == "" {
		return Event{}, ErrWebhookNotConfigured
	}

	evt, err := webhook.ConstructEventWithOptions(payload, header, secret, webhook.ConstructEventOptions{
		Tolerance:                DefaultTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	switch {
	case errors.Is(err, webhook.ErrNotSigned),
		errors.Is(err, webhook.ErrInvalidHeader),
		errors.Is(err, webhook.ErrNoValidSignature),
		errors.Is(err, webhook.ErrTooOld):
		return Event{}, ErrInvalidSignature
	case err != nil:
		return Event{}, ErrInvalidPayload
	}
	if evt.Type == "" {
		return Event{}, ErrInvalidPayload
	}

	var ev Event
	ev.ID = evt.ID
	ev.Type = string(evt.Type)
	if evt.Data != nil {
		ev.Data.Object.ID, _ = evt.Data.Object["id"].(string)
		ev.Data.Object.Status, _ = evt.Data.Object["status"].(string)
	}
	return ev, nil
}

// Sign produces a header value for payload.  Used by tests and local tooling.
func Sign(payload []byte, secret string, ts time.Time) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: ts,
	}).Header
}
