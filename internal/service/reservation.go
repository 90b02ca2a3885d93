package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/waqasameen944/Bus-Booking-System/internal/config"
	"github.com/waqasameen944/Bus-Booking-System/internal/model"
	"github.com/waqasameen944/Bus-Booking-System/internal/repository"
)

// compensationTimeout bounds cleanup that must run even after the caller
// has gone away.
const compensationTimeout = 5 * time.Second

// errSeatRace marks an attempt that lost its seat to a concurrent
// reservation.  It never leaves the orchestrator.
var errSeatRace = errors.New("seat taken concurrently")

// Orchestrator ties the ledger and the booking store together.  Every
// operation that reads and then changes the occupancy of a (date, slot)
// entry runs while holding that entry's lock, so seat selection and
// occupation are never interleaved for the same entry.
type Orchestrator struct {
	ledger   *Ledger
	bookings *BookingStore
	locker   Locker
	cfg      config.BookingConfig
	log      logrus.FieldLogger
	now      func() time.Time
}

// NewOrchestrator wires the reservation protocol.
func NewOrchestrator(ledger *Ledger, bookings *BookingStore, locker Locker, cfg config.BookingConfig, log logrus.FieldLogger) *Orchestrator {
	return &Orchestrator{
		ledger:   ledger,
		bookings: bookings,
		locker:   locker,
		cfg:      cfg,
		log:      log.WithField("component", "reservation"),
		now:      time.Now,
	}
}

// Ledger exposes the schedule ledger for read-only handlers.
func (o *Orchestrator) Ledger() *Ledger { return o.ledger }

// Bookings exposes the booking store for read-only handlers.
func (o *Orchestrator) Bookings() *BookingStore { return o.bookings }

func lockKey(date time.Time, slot model.TimeSlot) string {
	return "schedule:" + model.DateString(date) + ":" + string(slot)
}

func (o *Orchestrator) lock(ctx context.Context, date time.Time, slot model.TimeSlot) (func(), error) {
	unlock, err := o.locker.Lock(ctx, lockKey(date, slot))
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", lockKey(date, slot), err)
	}
	return unlock, nil
}

// Reserve validates req, allocates the lowest free seat and creates a
// confirmed, unpaid booking for it.  A seat lost to a concurrent writer is
// retried once against fresh ledger state before ErrNoSeatsAvailable is
// returned.
func (o *Orchestrator) Reserve(ctx context.Context, req ReservationRequest) (*model.Booking, error) {
	date, clean, err := validateReservation(req, day(o.now(), o.cfg.Location), o.cfg.Location)
	if err != nil {
		return nil, err
	}
	slot := model.TimeSlot(clean.TimeSlot)

	unlock, err := o.lock(ctx, date, slot)
	if err != nil {
		return nil, err
	}
	defer unlock()

	for attempt := 1; attempt <= 2; attempt++ {
		b, err := o.reserveOnce(ctx, date, slot, clean.Passenger)
		if err == nil {
			o.log.WithFields(logrus.Fields{
				"booking_code": b.BookingCode,
				"booking_id":   b.ID,
				"date":         model.DateString(date),
				"time_slot":    slot,
				"seat_number":  b.SeatNumber,
			}).Info("reservation created")
			return b, nil
		}
		if !errors.Is(err, errSeatRace) {
			return nil, err
		}
		o.log.WithFields(logrus.Fields{
			"date":      model.DateString(date),
			"time_slot": slot,
			"attempt":   attempt,
		}).Warn("seat taken concurrently, retrying against fresh ledger state")
	}
	return nil, ErrNoSeatsAvailable
}

func (o *Orchestrator) reserveOnce(ctx context.Context, date time.Time, slot model.TimeSlot, p model.Passenger) (*model.Booking, error) {
	entry, err := o.ledger.GetOrCreate(ctx, date, slot)
	if err != nil {
		return nil, err
	}
	if entry.AvailableSeats <= 0 {
		return nil, ErrNoSeatsAvailable
	}
	seat := entry.LowestFreeSeat()
	if seat == 0 {
		o.integrity(entry.Date, slot, 0, 0, "").
			WithField("available_seats", entry.AvailableSeats).
			Error("integrity: available seats reported but every seat is occupied")
		return nil, ErrNoSeatsAvailable
	}

	amount := entry.PriceCents + o.cfg.ServiceFeeCents
	b, err := o.bookings.Create(ctx, date, slot, p, seat, amount)
	if err != nil {
		if b != nil {
			o.compensate(ctx, entry, b, err)
		}
		return nil, err
	}

	if _, err := o.ledger.OccupySeat(ctx, entry, seat, b.ID); err != nil {
		o.compensate(ctx, entry, b, err)
		if errors.Is(err, repository.ErrSeatAlreadyTaken) || errors.Is(err, repository.ErrSeatUnavailable) {
			return nil, errSeatRace
		}
		return nil, fmt.Errorf("occupy seat %d: %w", seat, err)
	}
	return b, nil
}

// compensate undoes a booking that was stored but never got its seat.  It runs
// on a context detached from the caller so an abandoned request still
// leaves no booking without a seat.  If the occupation did commit before
// the failure was reported, the seat is released too.
func (o *Orchestrator) compensate(ctx context.Context, entry *model.ScheduleEntry, b *model.Booking, cause error) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	if fresh, err := o.ledger.Refresh(cctx, entry); err == nil {
		for _, occ := range fresh.Occupied {
			if occ.BookingID == b.ID {
				if _, err := o.ledger.ReleaseSeat(cctx, fresh, occ.SeatNumber); err != nil {
					o.integrity(b.Date, b.TimeSlot, occ.SeatNumber, b.ID, b.BookingCode).
						WithError(err).Error("integrity: could not release seat of rolled back booking")
				}
			}
		}
	}

	if err := o.bookings.discard(cctx, b.ID); err != nil {
		o.integrity(b.Date, b.TimeSlot, b.SeatNumber, b.ID, b.BookingCode).
			WithError(err).
			WithField("cause", cause.Error()).
			Error("integrity: rollback of booking without seat failed")
		return
	}
	o.log.WithFields(logrus.Fields{
		"booking_code": b.BookingCode,
		"booking_id":   b.ID,
		"seat_number":  b.SeatNumber,
		"cause":        cause.Error(),
	}).Info("reservation rolled back")
}

// Cancel cancels the booking with code when it is still inside the
// cancellation window and releases its seat.  A failure to release the
// seat is logged as an integrity error; the booking stays cancelled.
func (o *Orchestrator) Cancel(ctx context.Context, code string) (*model.Booking, error) {
	b, err := o.bookings.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return o.cancel(ctx, b, true)
}

func (o *Orchestrator) cancel(ctx context.Context, b *model.Booking, enforceWindow bool) (*model.Booking, error) {
	unlock, err := o.lock(ctx, b.Date, b.TimeSlot)
	if err != nil {
		return nil, err
	}
	defer unlock()

	cancelled, err := o.bookings.Cancel(ctx, b.ID, enforceWindow)
	if err != nil {
		return nil, err
	}
	// The booking is cancelled now; the seat release must not be cut short.
	rctx, done := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer done()
	o.releaseSeatOf(rctx, cancelled)

	o.log.WithFields(logrus.Fields{
		"booking_code": cancelled.BookingCode,
		"booking_id":   cancelled.ID,
		"seat_number":  cancelled.SeatNumber,
		"admin":        !enforceWindow,
	}).Info("booking cancelled")
	return cancelled, nil
}

func (o *Orchestrator) releaseSeatOf(ctx context.Context, b *model.Booking) {
	log := o.integrity(b.Date, b.TimeSlot, b.SeatNumber, b.ID, b.BookingCode)
	entry, err := o.ledger.store.Get(ctx, b.Date, b.TimeSlot)
	if err != nil {
		log.WithError(err).Error("integrity: schedule entry missing while releasing seat of cancelled booking")
		return
	}
	holder := uint64(0)
	for _, occ := range entry.Occupied {
		if occ.SeatNumber == b.SeatNumber {
			holder = occ.BookingID
		}
	}
	switch {
	case holder == 0:
		log.Error("integrity: cancelled booking's seat was not occupied")
		return
	case holder != b.ID:
		log.WithField("holder_booking_id", holder).Error("integrity: cancelled booking's seat is held by another booking")
		return
	}
	if _, err := o.ledger.ReleaseSeat(ctx, entry, b.SeatNumber); err != nil {
		log.WithError(err).Error("integrity: releasing seat of cancelled booking failed")
	}
}

// integrity returns a logger carrying the fields needed for manual
// reconciliation of a ledger/booking mismatch.
func (o *Orchestrator) integrity(date time.Time, slot model.TimeSlot, seat int, bookingID uint64, code string) *logrus.Entry {
	return o.log.WithFields(logrus.Fields{
		"integrity":    true,
		"date":         model.DateString(date),
		"time_slot":    slot,
		"seat_number":  seat,
		"booking_id":   bookingID,
		"booking_code": code,
	})
}
