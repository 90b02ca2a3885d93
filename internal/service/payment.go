package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/waqasameen944/Bus-Booking-System/internal/model"
)

// PaymentAdapter turns payment-provider notifications into payment status
// transitions.  Providers redeliver events, so every entry point is
// idempotent.
type PaymentAdapter struct {
	bookings *BookingStore
	provider PaymentProvider
	notifier Notifier
	currency string
	log      logrus.FieldLogger
}

// NewPaymentAdapter returns a PaymentAdapter.  provider and notifier may
// be nil; without a provider StartPayment and ConfirmPayment fail with
// ErrPaymentsDisabled, and without a notifier dispatch is skipped.
func NewPaymentAdapter(bookings *BookingStore, provider PaymentProvider, notifier Notifier, currency string, log logrus.FieldLogger) *PaymentAdapter {
	return &PaymentAdapter{
		bookings: bookings,
		provider: provider,
		notifier: notifier,
		currency: currency,
		log:      log.WithField("component", "payment"),
	}
}

// PaymentStart is returned to the client that will complete the charge.
type PaymentStart struct {
	BookingCode       string `json:"bookingCode"`
	ProviderPaymentID string `json:"paymentIntentId"`
	ClientSecret      string `json:"clientSecret"`
	AmountCents       int64  `json:"amountCents"`
	Currency          string `json:"currency"`
}

// BindProviderPayment records providerPaymentID on the booking so later
// notifications can find it.
func (a *PaymentAdapter) BindProviderPayment(ctx context.Context, bookingID uint64, providerPaymentID string) error {
	return a.bookings.BindProviderPayment(ctx, bookingID, providerPaymentID)
}

// StartPayment returns the booking's bound intent while it can still be
// paid.  Otherwise it creates a provider charge intent sized at the
// booking amount and binds it to the booking.  A bound intent that has
// already succeeded completes the payment instead.
func (a *PaymentAdapter) StartPayment(ctx context.Context, bookingCode string) (*PaymentStart, error) {
	if a.provider == nil {
		return nil, ErrPaymentsDisabled
	}
	b, err := a.bookings.FindByCode(ctx, bookingCode)
	if err != nil {
		return nil, err
	}
	switch {
	case b.Status == model.BookingCancelled:
		return nil, ErrAlreadyCancelled
	case b.PaymentStatus == model.PaymentCompleted || b.PaymentStatus == model.PaymentRefunded:
		return nil, ErrPaymentAlreadyCompleted
	case b.PaymentStatus != model.PaymentPending:
		return nil, &InvalidTransitionError{Field: "paymentStatus", From: string(b.PaymentStatus), To: string(model.PaymentCompleted)}
	}

	if b.ProviderPaymentID != nil {
		bound, err := a.provider.GetIntent(ctx, *b.ProviderPaymentID)
		if err != nil {
			return nil, fmt.Errorf("retrieve payment intent: %w", err)
		}
		switch bound.State {
		case IntentOpen:
			a.log.WithFields(logrus.Fields{
				"booking_code":        b.BookingCode,
				"provider_payment_id": bound.ProviderPaymentID,
			}).Info("payment intent reused")
			return a.paymentStart(b, bound), nil
		case IntentSucceeded:
			if err := a.OnPaymentSucceeded(ctx, bound.ProviderPaymentID); err != nil {
				return nil, err
			}
			return nil, ErrPaymentAlreadyCompleted
		}
	}

	intent, err := a.provider.CreateIntent(ctx, IntentRequest{
		BookingID:   b.ID,
		BookingCode: b.BookingCode,
		AmountCents: b.AmountCents,
		Currency:    a.currency,
	})
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}
	if err := a.BindProviderPayment(ctx, b.ID, intent.ProviderPaymentID); err != nil {
		return nil, fmt.Errorf("bind payment intent: %w", err)
	}
	a.log.WithFields(logrus.Fields{
		"booking_code":        b.BookingCode,
		"provider_payment_id": intent.ProviderPaymentID,
		"amount_cents":        b.AmountCents,
	}).Info("payment intent created")
	return a.paymentStart(b, intent), nil
}

func (a *PaymentAdapter) paymentStart(b *model.Booking, intent Intent) *PaymentStart {
	return &PaymentStart{
		BookingCode:       b.BookingCode,
		ProviderPaymentID: intent.ProviderPaymentID,
		ClientSecret:      intent.ClientSecret,
		AmountCents:       b.AmountCents,
		Currency:          a.currency,
	}
}

// ConfirmPayment asks the provider whether the intent succeeded and, if
// so, completes the booking's payment.
func (a *PaymentAdapter) ConfirmPayment(ctx context.Context, providerPaymentID string) (*model.Booking, error) {
	if a.provider == nil {
		return nil, ErrPaymentsDisabled
	}
	ok, err := a.provider.Succeeded(ctx, providerPaymentID)
	if err != nil {
		return nil, fmt.Errorf("retrieve payment intent: %w", err)
	}
	if !ok {
		return nil, ErrPaymentNotSucceeded
	}
	if err := a.OnPaymentSucceeded(ctx, providerPaymentID); err != nil {
		return nil, err
	}
	return a.bookings.FindByProviderPaymentID(ctx, providerPaymentID)
}

// OnPaymentSucceeded completes the payment of the booking bound to
// providerPaymentID.  The status change and the claim on both
// notification flags happen in one conditional write, so only the first
// delivery of an event dispatches notifications.
func (a *PaymentAdapter) OnPaymentSucceeded(ctx context.Context, providerPaymentID string) error {
	b, err := a.bookings.FindByProviderPaymentID(ctx, providerPaymentID)
	if err != nil {
		return err
	}
	won, err := a.bookings.repo.CompletePayment(ctx, providerPaymentID)
	if err != nil {
		return fmt.Errorf("complete payment: %w", err)
	}
	fields := logrus.Fields{"booking_code": b.BookingCode, "provider_payment_id": providerPaymentID}
	if !won {
		if b, err = a.bookings.FindByProviderPaymentID(ctx, providerPaymentID); err != nil {
			return err
		}
		if b.PaymentStatus == model.PaymentCompleted {
			a.log.WithFields(fields).Debug("payment already completed, ignoring redelivery")
			return nil
		}
		return &InvalidTransitionError{Field: "paymentStatus", From: string(b.PaymentStatus), To: string(model.PaymentCompleted)}
	}

	b.PaymentStatus = model.PaymentCompleted
	b.EmailSent = true
	b.AdminNotified = true
	a.log.WithFields(fields).Info("payment completed")
	a.dispatch(ctx, *b)
	return nil
}

// dispatch hands the confirmation and the admin alert to the notifier.
// Delivery is not guaranteed; failures are logged.
func (a *PaymentAdapter) dispatch(ctx context.Context, b model.Booking) {
	if a.notifier == nil {
		return
	}
	log := a.log.WithField("booking_code", b.BookingCode)
	if err := a.notifier.BookingConfirmed(ctx, b); err != nil {
		log.WithError(err).Warn("confirmation email dispatch failed")
	}
	if err := a.notifier.AdminAlert(ctx, b); err != nil {
		log.WithError(err).Warn("admin alert dispatch failed")
	}
}

// OnPaymentFailed marks the payment failed.  The seat stays occupied; a
// failed payment never releases capacity on its own.
func (a *PaymentAdapter) OnPaymentFailed(ctx context.Context, providerPaymentID string) error {
	return a.transition(ctx, providerPaymentID, model.PaymentFailed)
}

// OnPaymentRefunded marks a completed payment refunded.
func (a *PaymentAdapter) OnPaymentRefunded(ctx context.Context, providerPaymentID string) error {
	return a.transition(ctx, providerPaymentID, model.PaymentRefunded)
}

func (a *PaymentAdapter) transition(ctx context.Context, providerPaymentID string, to model.PaymentStatus) error {
	b, err := a.bookings.FindByProviderPaymentID(ctx, providerPaymentID)
	if err != nil {
		return err
	}
	if err := a.bookings.SetPaymentStatus(ctx, b.ID, to); err != nil {
		return err
	}
	a.log.WithFields(logrus.Fields{
		"booking_code":        b.BookingCode,
		"provider_payment_id": providerPaymentID,
		"payment_status":      to,
	}).Info("payment status updated")
	return nil
}

// HandleEvent routes a verified provider event.  Unknown event types are
// ignored.
func (a *PaymentAdapter) HandleEvent(ctx context.Context, ev PaymentEvent) error {
	switch ev.Kind {
	case PaymentEventSucceeded:
		return a.OnPaymentSucceeded(ctx, ev.ProviderPaymentID)
	case PaymentEventFailed:
		return a.OnPaymentFailed(ctx, ev.ProviderPaymentID)
	case PaymentEventRefunded:
		return a.OnPaymentRefunded(ctx, ev.ProviderPaymentID)
	}
	a.log.WithFields(logrus.Fields{"event_id": ev.ID, "event_type": ev.Type}).Debug("ignoring payment event")
	return nil
}
