package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/waqasameen944/Bus-Booking-System/internal/model"
	"github.com/waqasameen944/Bus-Booking-System/internal/repository"
)

// overviewDays is how many days the schedule overview covers when no
// date is given, today included.
const overviewDays = 7

// UpdateStatus applies an administrative status change.  confirmed ->
// completed closes the booking and keeps its seat; confirmed -> cancelled
// cancels regardless of the cancellation window and releases the seat.
func (o *Orchestrator) UpdateStatus(ctx context.Context, p model.Principal, bookingID uint64, status model.BookingStatus) (*model.Booking, error) {
	if !p.IsAdmin() {
		return nil, ErrForbidden
	}
	b, err := o.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	switch status {
	case model.BookingCompleted:
		done, err := o.bookings.Complete(ctx, bookingID)
		if err != nil {
			return nil, err
		}
		o.log.WithFields(logrus.Fields{"booking_id": bookingID, "admin_id": p.ID}).Info("booking completed")
		return done, nil
	case model.BookingCancelled:
		return o.cancel(ctx, b, false)
	case model.BookingConfirmed:
		return nil, &InvalidTransitionError{Field: "status", From: string(b.Status), To: string(status)}
	}
	return nil, &ValidationError{Fields: []FieldError{{Field: "status", Message: "status must be confirmed, cancelled or completed"}}}
}

// ScheduleOverview lists existing ledger entries with their occupants for
// one date, or for today and the following days when date is nil.
// Entries are not created by this read.
func (o *Orchestrator) ScheduleOverview(ctx context.Context, p model.Principal, date *time.Time) ([]model.ScheduleOverview, error) {
	if !p.IsAdmin() {
		return nil, ErrForbidden
	}
	from := day(o.now(), o.cfg.Location)
	to := from.AddDate(0, 0, overviewDays-1)
	if date != nil {
		from = day(*date, o.cfg.Location)
		to = from
	}
	entries, err := o.ledger.store.ListRange(ctx, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]model.ScheduleOverview, 0, len(entries))
	for _, e := range entries {
		occupants, err := o.ledger.store.Occupants(ctx, e.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, model.ScheduleOverview{
			Date:           model.DateString(e.Date),
			TimeSlot:       e.TimeSlot,
			Label:          o.cfg.Label(e.TimeSlot),
			TotalSeats:     e.TotalSeats,
			AvailableSeats: e.AvailableSeats,
			PriceCents:     e.PriceCents,
			Status:         e.Status,
			Occupants:      occupants,
		})
	}
	return out, nil
}

// Integrity issue kinds reported by Reconcile.
const (
	IssueSeatWithoutBooking   = "seat_without_booking"
	IssueSeatOfCancelled      = "seat_held_by_cancelled_booking"
	IssueSeatMismatch         = "seat_number_mismatch"
	IssueBookingWithoutSeat   = "booking_without_seat"
	IssueBookingWithoutLedger = "booking_without_schedule"
)

// Reconcile compares the ledger against the bookings of every slot on
// date and logs each mismatch.  It only reports; nothing is repaired.
// Each slot is compared under its reservation lock so a reservation in
// flight is never reported.
func (o *Orchestrator) Reconcile(ctx context.Context, date time.Time) ([]model.IntegrityIssue, error) {
	date = day(date, o.cfg.Location)
	issues := []model.IntegrityIssue{}
	for _, slot := range model.TimeSlots {
		found, err := o.reconcileSlot(ctx, date, slot)
		if err != nil {
			return nil, err
		}
		issues = append(issues, found...)
	}
	for _, is := range issues {
		o.log.WithFields(logrus.Fields{
			"integrity":    true,
			"kind":         is.Kind,
			"date":         is.Date,
			"time_slot":    is.TimeSlot,
			"seat_number":  is.SeatNumber,
			"booking_id":   is.BookingID,
			"booking_code": is.BookingCode,
		}).Error("integrity: ledger and bookings disagree")
	}
	return issues, nil
}

func (o *Orchestrator) reconcileSlot(ctx context.Context, date time.Time, slot model.TimeSlot) ([]model.IntegrityIssue, error) {
	unlock, err := o.lock(ctx, date, slot)
	if err != nil {
		return nil, err
	}
	defer unlock()

	bookings, err := o.bookings.listBySchedule(ctx, date, slot)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint64]model.Booking, len(bookings))
	for _, b := range bookings {
		byID[b.ID] = b
	}

	var issues []model.IntegrityIssue
	entry, err := o.ledger.store.Get(ctx, date, slot)
	if errors.Is(err, repository.ErrScheduleNotFound) {
		for _, b := range bookings {
			if b.Status != model.BookingCancelled {
				issues = append(issues, issueFor(IssueBookingWithoutLedger, date, slot, b.SeatNumber, b))
			}
		}
		return issues, nil
	}
	if err != nil {
		return nil, err
	}

	holders := make(map[int]uint64, len(entry.Occupied))
	for _, occ := range entry.Occupied {
		holders[occ.SeatNumber] = occ.BookingID
		b, ok := byID[occ.BookingID]
		switch {
		case !ok:
			issues = append(issues, model.IntegrityIssue{
				Kind: IssueSeatWithoutBooking, Date: model.DateString(date), TimeSlot: slot,
				SeatNumber: occ.SeatNumber, BookingID: occ.BookingID,
			})
		case b.Status == model.BookingCancelled:
			issues = append(issues, issueFor(IssueSeatOfCancelled, date, slot, occ.SeatNumber, b))
		case b.SeatNumber != occ.SeatNumber:
			issues = append(issues, issueFor(IssueSeatMismatch, date, slot, occ.SeatNumber, b))
		}
	}
	for _, b := range bookings {
		if b.Status == model.BookingCancelled {
			continue
		}
		if holders[b.SeatNumber] != b.ID {
			issues = append(issues, issueFor(IssueBookingWithoutSeat, date, slot, b.SeatNumber, b))
		}
	}
	return issues, nil
}

func issueFor(kind string, date time.Time, slot model.TimeSlot, seat int, b model.Booking) model.IntegrityIssue {
	return model.IntegrityIssue{
		Kind:        kind,
		Date:        model.DateString(date),
		TimeSlot:    slot,
		SeatNumber:  seat,
		BookingID:   b.ID,
		BookingCode: b.BookingCode,
	}
}

// RunReconciler reconciles today and the following days every interval
// until ctx is cancelled.
func (o *Orchestrator) RunReconciler(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	o.log.WithField("interval", interval.String()).Info("ledger reconciler started")
	for {
		select {
		case <-ctx.Done():
			o.log.Info("ledger reconciler stopped")
			return
		case <-ticker.C:
			start := day(o.now(), o.cfg.Location)
			found := 0
			for i := 0; i < overviewDays; i++ {
				issues, err := o.Reconcile(ctx, start.AddDate(0, 0, i))
				if err != nil {
					o.log.WithError(err).Warn("ledger reconciliation failed")
					break
				}
				found += len(issues)
			}
			o.log.WithField("issues", found).Debug("ledger reconciliation pass finished")
		}
	}
}
