// Package payment adapts Stripe PaymentIntents to the booking payment
// flow.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/waqasameen944/Bus-Booking-System/internal/service"
)

// ErrInvalidSignature is returned for webhook payloads whose signature
// does not verify against the configured secret.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// intentAPI is the part of the Stripe client the provider needs.
type intentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// Stripe implements service.PaymentProvider on PaymentIntents.
type Stripe struct {
	intents       intentAPI
	webhookSecret string
}

// NewStripe returns a provider authenticated with secretKey.
func NewStripe(secretKey, webhookSecret string) *Stripe {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return &Stripe{intents: sc.PaymentIntents, webhookSecret: webhookSecret}
}

// CreateIntent creates a PaymentIntent for the booking amount.  The
// booking id and code travel as metadata so they show up on the Stripe
// dashboard.
func (s *Stripe) CreateIntent(ctx context.Context, req service.IntentRequest) (service.Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountCents),
		Currency: stripe.String(req.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("booking_id", strconv.FormatUint(req.BookingID, 10))
	params.AddMetadata("booking_code", req.BookingCode)

	pi, err := s.intents.New(params)
	if err != nil {
		return service.Intent{}, err
	}
	return service.Intent{ProviderPaymentID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

// GetIntent retrieves a PaymentIntent.  Every status short of succeeded
// or canceled still accepts a payment and maps to IntentOpen.
func (s *Stripe) GetIntent(ctx context.Context, providerPaymentID string) (service.Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := s.intents.Get(providerPaymentID, params)
	if err != nil {
		return service.Intent{}, err
	}
	state := service.IntentOpen
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		state = service.IntentSucceeded
	case stripe.PaymentIntentStatusCanceled:
		state = service.IntentClosed
	}
	return service.Intent{ProviderPaymentID: pi.ID, ClientSecret: pi.ClientSecret, State: state}, nil
}

// Succeeded reports whether the PaymentIntent has succeeded.
func (s *Stripe) Succeeded(ctx context.Context, providerPaymentID string) (bool, error) {
	intent, err := s.GetIntent(ctx, providerPaymentID)
	if err != nil {
		return false, err
	}
	return intent.State == service.IntentSucceeded, nil
}

// ParseWebhook verifies the Stripe-Signature header of payload and maps
// the event to a service.PaymentEvent.  Event types the booking flow does
// not act on come back with Kind PaymentEventIgnored.
func (s *Stripe) ParseWebhook(payload []byte, signature string) (service.PaymentEvent, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return service.PaymentEvent{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return toPaymentEvent(ev)
}

func toPaymentEvent(ev stripe.Event) (service.PaymentEvent, error) {
	out := service.PaymentEvent{ID: ev.ID, Type: string(ev.Type), Kind: service.PaymentEventIgnored}
	if ev.Data == nil {
		return out, nil
	}
	switch ev.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
			return out, fmt.Errorf("decode payment intent: %w", err)
		}
		out.ProviderPaymentID = pi.ID
		out.Kind = service.PaymentEventSucceeded
		if ev.Type == "payment_intent.payment_failed" {
			out.Kind = service.PaymentEventFailed
		}
	case "charge.refunded":
		var ch stripe.Charge
		if err := json.Unmarshal(ev.Data.Raw, &ch); err != nil {
			return out, fmt.Errorf("decode charge: %w", err)
		}
		if ch.PaymentIntent == nil || ch.PaymentIntent.ID == "" {
			return out, nil
		}
		out.ProviderPaymentID = ch.PaymentIntent.ID
		out.Kind = service.PaymentEventRefunded
	}
	return out, nil
}
