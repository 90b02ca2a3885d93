package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waqasameen944/Bus-Booking-System/internal/model"
)

// reservePending books a seat and starts its payment, returning the
// booking and the bound provider payment id.
func (e *env) reservePending(t *testing.T) (*model.Booking, string) {
	t.Helper()
	ctx := context.Background()
	b, err := e.orch.Reserve(ctx, e.request(travel, model.SlotMorning, "Payer"))
	require.NoError(t, err)
	start, err := e.payments.StartPayment(ctx, b.BookingCode)
	require.NoError(t, err)
	return b, start.ProviderPaymentID
}

func TestStartPaymentBindsIntent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	b, err := e.orch.Reserve(ctx, e.request(travel, model.SlotMorning, "Payer"))
	require.NoError(t, err)

	start, err := e.payments.StartPayment(ctx, b.BookingCode)
	require.NoError(t, err)
	assert.Equal(t, b.BookingCode, start.BookingCode)
	assert.Equal(t, int64(10200), start.AmountCents)
	assert.Equal(t, "usd", start.Currency)
	assert.NotEmpty(t, start.ClientSecret)

	got, err := e.bookings.FindByProviderPaymentID(ctx, start.ProviderPaymentID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)

	// While the bound intent is still payable it is handed out again.
	again, err := e.payments.StartPayment(ctx, b.BookingCode)
	require.NoError(t, err)
	assert.Equal(t, start.ProviderPaymentID, again.ProviderPaymentID)
	assert.Equal(t, start.ClientSecret, again.ClientSecret)
	assert.Equal(t, 1, e.provider.next)

	// A cancelled intent is replaced by a fresh one.
	e.provider.setState(start.ProviderPaymentID, IntentClosed)
	fresh, err := e.payments.StartPayment(ctx, b.BookingCode)
	require.NoError(t, err)
	assert.NotEqual(t, start.ProviderPaymentID, fresh.ProviderPaymentID)
	_, err = e.bookings.FindByProviderPaymentID(ctx, start.ProviderPaymentID)
	assert.ErrorIs(t, err, ErrBookingNotFound)
}

func TestStartPaymentCompletesSucceededIntent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	b, pid := e.reservePending(t)
	e.provider.setState(pid, IntentSucceeded)

	_, err := e.payments.StartPayment(ctx, b.BookingCode)
	assert.ErrorIs(t, err, ErrPaymentAlreadyCompleted)
	assert.Equal(t, 1, e.provider.next, "no second intent for a paid booking")

	got, err := e.bookings.FindByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentCompleted, got.PaymentStatus)
	confirmed, alerts := e.notifier.counts()
	assert.Equal(t, 1, confirmed)
	assert.Equal(t, 1, alerts)
}

func TestStartPaymentRejections(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown code", func(t *testing.T) {
		e := newEnv(t)
		_, err := e.payments.StartPayment(ctx, "BUS123456XYZ")
		assert.ErrorIs(t, err, ErrBookingNotFound)
	})

	t.Run("cancelled", func(t *testing.T) {
		e := newEnv(t)
		b, err := e.orch.Reserve(ctx, e.request(travel, model.SlotMorning, "Payer"))
		require.NoError(t, err)
		_, err = e.orch.Cancel(ctx, b.BookingCode)
		require.NoError(t, err)
		_, err = e.payments.StartPayment(ctx, b.BookingCode)
		assert.ErrorIs(t, err, ErrAlreadyCancelled)
	})

	t.Run("already paid", func(t *testing.T) {
		e := newEnv(t)
		b, pid := e.reservePending(t)
		require.NoError(t, e.payments.OnPaymentSucceeded(ctx, pid))
		_, err := e.payments.StartPayment(ctx, b.BookingCode)
		assert.ErrorIs(t, err, ErrPaymentAlreadyCompleted)
	})

	t.Run("failed", func(t *testing.T) {
		e := newEnv(t)
		b, pid := e.reservePending(t)
		require.NoError(t, e.payments.OnPaymentFailed(ctx, pid))
		_, err := e.payments.StartPayment(ctx, b.BookingCode)
		assert.True(t, IsInvalidTransition(err))
	})

	t.Run("provider error", func(t *testing.T) {
		e := newEnv(t)
		b, err := e.orch.Reserve(ctx, e.request(travel, model.SlotMorning, "Payer"))
		require.NoError(t, err)
		e.provider.err = errors.New("card network down")
		_, err = e.payments.StartPayment(ctx, b.BookingCode)
		assert.ErrorContains(t, err, "card network down")
	})

	t.Run("not configured", func(t *testing.T) {
		e := newEnv(t)
		disabled := NewPaymentAdapter(e.bookings, nil, nil, "usd", e.orch.log)
		_, err := disabled.StartPayment(ctx, "BUS123456XYZ")
		assert.ErrorIs(t, err, ErrPaymentsDisabled)
		_, err = disabled.ConfirmPayment(ctx, "pi_1")
		assert.ErrorIs(t, err, ErrPaymentsDisabled)
	})
}

func TestPaymentSucceededIsIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	b, pid := e.reservePending(t)

	ev := PaymentEvent{ID: "evt_1", Kind: PaymentEventSucceeded, ProviderPaymentID: pid}
	require.NoError(t, e.payments.HandleEvent(ctx, ev))
	require.NoError(t, e.payments.HandleEvent(ctx, ev))

	got, err := e.bookings.FindByCode(ctx, b.BookingCode)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentCompleted, got.PaymentStatus)
	assert.True(t, got.EmailSent)
	assert.True(t, got.AdminNotified)

	confirmed, alerts := e.notifier.counts()
	assert.Equal(t, 1, confirmed)
	assert.Equal(t, 1, alerts)
}

func TestPaymentSucceededConcurrentDeliveriesDispatchOnce(t *testing.T) {
	e := newEnv(t)
	_, pid := e.reservePending(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, e.payments.OnPaymentSucceeded(context.Background(), pid))
		}()
	}
	wg.Wait()

	confirmed, alerts := e.notifier.counts()
	assert.Equal(t, 1, confirmed)
	assert.Equal(t, 1, alerts)
}

func TestPaymentFailedThenSucceededIsRejected(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	b, pid := e.reservePending(t)

	require.NoError(t, e.payments.OnPaymentFailed(ctx, pid))
	// Redelivery of the failure is a no-op.
	require.NoError(t, e.payments.OnPaymentFailed(ctx, pid))

	err := e.payments.OnPaymentSucceeded(ctx, pid)
	var te *InvalidTransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "failed", te.From)
	assert.Equal(t, "completed", te.To)

	confirmed, _ := e.notifier.counts()
	assert.Zero(t, confirmed)

	// A failed payment keeps the seat and the booking.
	got, err := e.bookings.FindByCode(ctx, b.BookingCode)
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, got.Status)
	assert.Equal(t, model.PaymentFailed, got.PaymentStatus)
	assert.Equal(t, 14, e.schedules.available(day0(travel), model.SlotMorning))
}

func TestPaymentRefund(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, pid := e.reservePending(t)

	err := e.payments.OnPaymentRefunded(ctx, pid)
	assert.True(t, IsInvalidTransition(err), "pending payments cannot be refunded")

	require.NoError(t, e.payments.OnPaymentSucceeded(ctx, pid))
	require.NoError(t, e.payments.OnPaymentRefunded(ctx, pid))
	require.NoError(t, e.payments.OnPaymentRefunded(ctx, pid))

	got, err := e.bookings.FindByProviderPaymentID(ctx, pid)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentRefunded, got.PaymentStatus)

	// Completed after refunded is not a valid move.
	err = e.payments.OnPaymentSucceeded(ctx, pid)
	assert.True(t, IsInvalidTransition(err))
}

func TestPaymentEventForUnknownPayment(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	for _, kind := range []PaymentEventKind{PaymentEventSucceeded, PaymentEventFailed, PaymentEventRefunded} {
		err := e.payments.HandleEvent(ctx, PaymentEvent{Kind: kind, ProviderPaymentID: "pi_missing"})
		assert.ErrorIs(t, err, ErrBookingNotFound, string(kind))
	}
}

func TestHandleEventIgnoresUnknownKinds(t *testing.T) {
	e := newEnv(t)
	err := e.payments.HandleEvent(context.Background(), PaymentEvent{ID: "evt_9", Kind: PaymentEventIgnored, Type: "customer.created"})
	assert.NoError(t, err)
}

func TestConfirmPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("not succeeded", func(t *testing.T) {
		e := newEnv(t)
		_, pid := e.reservePending(t)
		e.provider.succeeded = false
		_, err := e.payments.ConfirmPayment(ctx, pid)
		assert.ErrorIs(t, err, ErrPaymentNotSucceeded)
	})

	t.Run("succeeded", func(t *testing.T) {
		e := newEnv(t)
		b, pid := e.reservePending(t)
		got, err := e.payments.ConfirmPayment(ctx, pid)
		require.NoError(t, err)
		assert.Equal(t, b.BookingCode, got.BookingCode)
		assert.Equal(t, model.PaymentCompleted, got.PaymentStatus)

		// Confirming again after a webhook got there first still succeeds.
		_, err = e.payments.ConfirmPayment(ctx, pid)
		require.NoError(t, err)
		confirmed, _ := e.notifier.counts()
		assert.Equal(t, 1, confirmed)
	})
}
