package payment

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeBridge implements Bridge against the Stripe API.
type StripeBridge struct {
	webhookSecret string
}

// NewStripeBridge configures the global Stripe client and returns the bridge.
func NewStripeBridge(secretKey, webhookSecret string) *StripeBridge {
	stripe.Key = secretKey
	return &StripeBridge{webhookSecret: webhookSecret}
}

// CreateIntent creates a Stripe payment intent with automatic payment
// methods enabled.
func (b *StripeBridge) CreateIntent(ctx context.Context, amountMinorUnits int64, currency string, metadata map[string]string, description string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountMinorUnits),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Description: stripe.String(description),
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       IntentStatus(pi.Status),
	}, nil
}

// RetrieveIntent fetches the current state of a payment intent.
func (b *StripeBridge) RetrieveIntent(ctx context.Context, intentID string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := paymentintent.Get(intentID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve payment intent: %w", err)
	}

	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       IntentStatus(pi.Status),
	}, nil
}

// ConstructEvent verifies the Stripe-Signature header and extracts the
// referenced payment intent.
func (b *StripeBridge) ConstructEvent(payload []byte, signature string) (*Event, error) {
	stripeEvent, err := webhook.ConstructEvent(payload, signature, b.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	event := &Event{
		ID:   stripeEvent.ID,
		Type: string(stripeEvent.Type),
	}

	switch event.Type {
	case EventPaymentSucceeded, EventPaymentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(stripeEvent.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("failed to parse payment intent from event: %w", err)
		}
		event.IntentID = pi.ID
		event.Status = IntentStatus(pi.Status)
	}

	return event, nil
}

var _ Bridge = (*StripeBridge)(nil)
