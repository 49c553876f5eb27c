// Package payment abstracts the hosted payment processor. The checkout
// workflow depends only on the Bridge interface; the Stripe implementation
// lives alongside it.
package payment

import (
	"context"
	"errors"
)

var (
	ErrSignatureInvalid = errors.New("event signature verification failed")
)

// IntentStatus is the processor-side state of one payment attempt.
type IntentStatus string

const (
	IntentStatusSucceeded             IntentStatus = "succeeded"
	IntentStatusProcessing            IntentStatus = "processing"
	IntentStatusRequiresPaymentMethod IntentStatus = "requires_payment_method"
	IntentStatusCanceled              IntentStatus = "canceled"
)

// Terminal reports whether the status is final: the attempt either collected
// funds or can no longer do so without a new attempt.
func (s IntentStatus) Terminal() bool {
	return s == IntentStatusSucceeded || s == IntentStatusCanceled
}

// Intent is the authorization handle returned by the processor.
type Intent struct {
	ID           string
	ClientSecret string
	Status       IntentStatus
}

// Event types pushed by the processor's webhook.
const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
)

// Event is a verified webhook notification referencing a payment intent.
type Event struct {
	ID       string
	Type     string
	IntentID string
	Status   IntentStatus
}

// Bridge is the external payment collaborator.
type Bridge interface {
	// CreateIntent requests an authorization handle for the given amount in
	// minor units, tagging it with correlation metadata.
	CreateIntent(ctx context.Context, amountMinorUnits int64, currency string, metadata map[string]string, description string) (*Intent, error)

	// RetrieveIntent re-queries the current status of an intent.
	RetrieveIntent(ctx context.Context, intentID string) (*Intent, error)

	// ConstructEvent verifies the webhook signature and parses the payload.
	// It returns ErrSignatureInvalid before anything else on a bad
	// signature; no state may be mutated on that path.
	ConstructEvent(payload []byte, signature string) (*Event, error)
}
