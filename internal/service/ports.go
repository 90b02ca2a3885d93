package service

import (
	"context"
	"time"

	"github.com/waqasameen944/Bus-Booking-System/internal/model"
	"github.com/waqasameen944/Bus-Booking-System/internal/repository"
)

// ScheduleStore persists ledger entries.  repository.ScheduleRepo is the
// production implementation; it must report repository.ErrDuplicateSchedule,
// ErrScheduleNotFound, ErrSeatUnavailable and ErrSeatAlreadyTaken.
type ScheduleStore interface {
	Get(ctx context.Context, date time.Time, slot model.TimeSlot) (*model.ScheduleEntry, error)
	Create(ctx context.Context, date time.Time, slot model.TimeSlot, totalSeats int, priceCents int64) (*model.ScheduleEntry, error)
	OccupySeat(ctx context.Context, scheduleID uint64, seat int, bookingID uint64) (*model.ScheduleEntry, error)
	ReleaseSeat(ctx context.Context, scheduleID uint64, seat int) (*model.ScheduleEntry, error)
	ListRange(ctx context.Context, from, to time.Time) ([]model.ScheduleEntry, error)
	Occupants(ctx context.Context, scheduleID uint64) ([]model.SeatOccupant, error)
}

// BookingRepository persists bookings.  repository.BookingRepo is the
// production implementation.
type BookingRepository interface {
	Create(ctx context.Context, b *model.Booking) error
	GetByID(ctx context.Context, id uint64) (*model.Booking, error)
	GetByCode(ctx context.Context, code string) (*model.Booking, error)
	GetByProviderPaymentID(ctx context.Context, providerPaymentID string) (*model.Booking, error)
	Delete(ctx context.Context, id uint64) error
	UpdateStatus(ctx context.Context, id uint64, from, to model.BookingStatus) error
	UpdatePaymentStatus(ctx context.Context, id uint64, from, to model.PaymentStatus) error
	BindProviderPayment(ctx context.Context, id uint64, providerPaymentID string) error
	CompletePayment(ctx context.Context, providerPaymentID string) (bool, error)
	ListBySchedule(ctx context.Context, date time.Time, slot model.TimeSlot) ([]model.Booking, error)
}

// ReportStore serves the admin listing and dashboard aggregates.
type ReportStore interface {
	GetByID(ctx context.Context, id uint64) (*model.Booking, error)
	List(ctx context.Context, f model.BookingFilter) ([]model.Booking, int, error)
	Stats(ctx context.Context, today time.Time) (repository.StatsCounts, error)
}

// Locker serializes work on one key.  Lock blocks until the key is free or
// ctx is done; the returned function releases the key.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// AvailabilityCache holds availability listings keyed by travel date.
type AvailabilityCache interface {
	Get(ctx context.Context, date string) ([]model.SlotAvailability, bool)
	Set(ctx context.Context, date string, slots []model.SlotAvailability)
	Invalidate(ctx context.Context, date string)
}

// Notifier hands booking events to the notification collaborator.
type Notifier interface {
	BookingConfirmed(ctx context.Context, b model.Booking) error
	AdminAlert(ctx context.Context, b model.Booking) error
}

// IntentRequest asks the payment provider for a charge intent.
type IntentRequest struct {
	BookingID   uint64
	BookingCode string
	AmountCents int64
	Currency    string
}

// IntentState is the provider-side state of an intent as far as the
// booking flow cares.
type IntentState string

const (
	// IntentOpen can still be paid by the customer.
	IntentOpen      IntentState = "open"
	IntentSucceeded IntentState = "succeeded"
	// IntentClosed was cancelled and can never be paid.
	IntentClosed IntentState = "closed"
)

// Intent is the provider's handle for a pending charge.
type Intent struct {
	ProviderPaymentID string
	ClientSecret      string
	State             IntentState
}

// PaymentProvider is the payment-gateway collaborator.
type PaymentProvider interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	GetIntent(ctx context.Context, providerPaymentID string) (Intent, error)
	Succeeded(ctx context.Context, providerPaymentID string) (bool, error)
}

// PaymentEventKind classifies a provider notification.
type PaymentEventKind string

const (
	PaymentEventSucceeded PaymentEventKind = "succeeded"
	PaymentEventFailed    PaymentEventKind = "failed"
	PaymentEventRefunded  PaymentEventKind = "refunded"
	PaymentEventIgnored   PaymentEventKind = "ignored"
)

// PaymentEvent is a verified provider notification.
type PaymentEvent struct {
	ID                string
	Kind              PaymentEventKind
	Type              string // provider event type, for logging
	ProviderPaymentID string
}
