package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/waqasameen944/Bus-Booking-System/internal/config"
	"github.com/waqasameen944/Bus-Booking-System/internal/model"
	"github.com/waqasameen944/Bus-Booking-System/internal/repository"
)

const (
	bookingCodePrefix   = "BUS"
	bookingCodeAttempts = 5
	codeAlphabet        = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// NewBookingCode returns "BUS", the last six digits of the unix
// millisecond timestamp, and three random characters from [0-9A-Z].
func NewBookingCode(now time.Time) (string, error) {
	suffix := make([]byte, 3)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		suffix[i] = codeAlphabet[n.Int64()]
	}
	return fmt.Sprintf("%s%06d%s", bookingCodePrefix, now.UnixMilli()%1_000_000, suffix), nil
}

// BookingStore owns booking records and their status transitions.  It
// never touches seat inventory.
type BookingStore struct {
	repo    BookingRepository
	cfg     config.BookingConfig
	now     func() time.Time
	newCode func(time.Time) (string, error)
}

// NewBookingStore returns a BookingStore backed by repo.
func NewBookingStore(repo BookingRepository, cfg config.BookingConfig) *BookingStore {
	return &BookingStore{repo: repo, cfg: cfg, now: time.Now, newCode: NewBookingCode}
}

// Create stores a confirmed, unpaid booking for seat.  Colliding booking
// codes are regenerated transparently.  If the row was committed before
// the failure, the booking is returned alongside the error so the caller
// can roll it back.
func (s *BookingStore) Create(ctx context.Context, date time.Time, slot model.TimeSlot, p model.Passenger, seat int, amountCents int64) (*model.Booking, error) {
	for attempt := 0; attempt < bookingCodeAttempts; attempt++ {
		code, err := s.newCode(s.now())
		if err != nil {
			return nil, fmt.Errorf("generate booking code: %w", err)
		}
		b := &model.Booking{
			BookingCode:   code,
			Date:          date,
			TimeSlot:      slot,
			Passenger:     p,
			SeatNumber:    seat,
			AmountCents:   amountCents,
			PaymentStatus: model.PaymentPending,
			Status:        model.BookingConfirmed,
		}
		err = s.repo.Create(ctx, b)
		if errors.Is(err, repository.ErrDuplicateBookingCode) {
			continue
		}
		if err != nil {
			if b.ID != 0 {
				return s.localize(b), fmt.Errorf("create booking: %w", err)
			}
			return nil, fmt.Errorf("create booking: %w", err)
		}
		return s.localize(b), nil
	}
	return nil, fmt.Errorf("create booking after %d attempts: %w", bookingCodeAttempts, repository.ErrDuplicateBookingCode)
}

// FindByCode returns the booking with code or ErrBookingNotFound.
func (s *BookingStore) FindByCode(ctx context.Context, code string) (*model.Booking, error) {
	return s.found(s.repo.GetByCode(ctx, code))
}

// FindByID returns the booking with id or ErrBookingNotFound.
func (s *BookingStore) FindByID(ctx context.Context, id uint64) (*model.Booking, error) {
	return s.found(s.repo.GetByID(ctx, id))
}

// FindByProviderPaymentID returns the booking bound to a provider payment
// handle or ErrBookingNotFound.
func (s *BookingStore) FindByProviderPaymentID(ctx context.Context, providerPaymentID string) (*model.Booking, error) {
	return s.found(s.repo.GetByProviderPaymentID(ctx, providerPaymentID))
}

func (s *BookingStore) found(b *model.Booking, err error) (*model.Booking, error) {
	if errors.Is(err, repository.ErrBookingNotFound) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.localize(b), nil
}

// allowedPayment reports whether the payment axis may move from -> to:
// pending -> completed, pending -> failed, completed -> refunded.
func allowedPayment(from, to model.PaymentStatus) bool {
	switch from {
	case model.PaymentPending:
		return to == model.PaymentCompleted || to == model.PaymentFailed
	case model.PaymentCompleted:
		return to == model.PaymentRefunded
	}
	return false
}

// SetPaymentStatus moves the booking's payment status to status.  Setting
// the current status again is a no-op.
func (s *BookingStore) SetPaymentStatus(ctx context.Context, id uint64, status model.PaymentStatus) error {
	b, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if b.PaymentStatus == status {
		return nil
	}
	if !allowedPayment(b.PaymentStatus, status) {
		return &InvalidTransitionError{Field: "paymentStatus", From: string(b.PaymentStatus), To: string(status)}
	}
	err = s.repo.UpdatePaymentStatus(ctx, id, b.PaymentStatus, status)
	if !errors.Is(err, repository.ErrNoRowsChanged) {
		return err
	}
	// Someone else moved it first; succeed only if they moved it to status.
	if b, err = s.FindByID(ctx, id); err != nil {
		return err
	}
	if b.PaymentStatus == status {
		return nil
	}
	return &InvalidTransitionError{Field: "paymentStatus", From: string(b.PaymentStatus), To: string(status)}
}

// BindProviderPayment records the provider's payment handle on a booking.
func (s *BookingStore) BindProviderPayment(ctx context.Context, id uint64, providerPaymentID string) error {
	err := s.repo.BindProviderPayment(ctx, id, providerPaymentID)
	if errors.Is(err, repository.ErrBookingNotFound) {
		return ErrBookingNotFound
	}
	return err
}

// CancellationOpen reports whether more than the cancellation window
// remains before midnight of the travel date.
func (s *BookingStore) CancellationOpen(b *model.Booking) bool {
	travel := calendarDay(b.Date, s.cfg.Location)
	return travel.Sub(s.now()) > s.cfg.CancellationWindow
}

// Cancel moves a confirmed booking to cancelled.  When enforceWindow is
// set the cancellation window applies; administrative cancellations pass
// false.  The caller releases the seat.
func (s *BookingStore) Cancel(ctx context.Context, id uint64, enforceWindow bool) (*model.Booking, error) {
	b, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkCancellable(b, enforceWindow); err != nil {
		return nil, err
	}
	err = s.repo.UpdateStatus(ctx, id, model.BookingConfirmed, model.BookingCancelled)
	if errors.Is(err, repository.ErrNoRowsChanged) {
		if b, err = s.FindByID(ctx, id); err != nil {
			return nil, err
		}
		if cerr := s.checkCancellable(b, false); cerr != nil {
			return nil, cerr
		}
		return nil, ErrAlreadyCancelled
	}
	if err != nil {
		return nil, fmt.Errorf("cancel booking: %w", err)
	}
	b.Status = model.BookingCancelled
	return b, nil
}

func (s *BookingStore) checkCancellable(b *model.Booking, enforceWindow bool) error {
	switch b.Status {
	case model.BookingCancelled:
		return ErrAlreadyCancelled
	case model.BookingCompleted:
		return &InvalidTransitionError{Field: "status", From: string(b.Status), To: string(model.BookingCancelled)}
	}
	if enforceWindow && !s.CancellationOpen(b) {
		return ErrCancellationWindowClosed
	}
	return nil
}

// Complete marks a confirmed booking as completed.  Completed is terminal
// and keeps its seat.
func (s *BookingStore) Complete(ctx context.Context, id uint64) (*model.Booking, error) {
	b, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status != model.BookingConfirmed {
		return nil, &InvalidTransitionError{Field: "status", From: string(b.Status), To: string(model.BookingCompleted)}
	}
	err = s.repo.UpdateStatus(ctx, id, model.BookingConfirmed, model.BookingCompleted)
	if errors.Is(err, repository.ErrNoRowsChanged) {
		if b, err = s.FindByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, &InvalidTransitionError{Field: "status", From: string(b.Status), To: string(model.BookingCompleted)}
	}
	if err != nil {
		return nil, fmt.Errorf("complete booking: %w", err)
	}
	b.Status = model.BookingCompleted
	return b, nil
}

// discard deletes a booking created by a reservation that failed to
// occupy its seat.
func (s *BookingStore) discard(ctx context.Context, id uint64) error {
	return s.repo.Delete(ctx, id)
}

func (s *BookingStore) listBySchedule(ctx context.Context, date time.Time, slot model.TimeSlot) ([]model.Booking, error) {
	items, err := s.repo.ListBySchedule(ctx, date, slot)
	if err != nil {
		return nil, err
	}
	for i := range items {
		s.localize(&items[i])
	}
	return items, nil
}

func (s *BookingStore) localize(b *model.Booking) *model.Booking {
	b.Date = calendarDay(b.Date, s.cfg.Location)
	return b
}
