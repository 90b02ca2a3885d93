package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/waqasameen944/Bus-Booking-System/internal/config"
	"github.com/waqasameen944/Bus-Booking-System/internal/model"
	"github.com/waqasameen944/Bus-Booking-System/internal/repository"
)

// Ledger owns per-(date, slot) seat inventory.  Entries are created lazily
// with the configured seat count and price; the storage layer's unique key
// on (date, slot) is what prevents duplicates under concurrent creation.
type Ledger struct {
	store ScheduleStore
	cache AvailabilityCache
	cfg   config.BookingConfig
	now   func() time.Time
}

// NewLedger returns a Ledger.  cache may be nil.
func NewLedger(store ScheduleStore, cfg config.BookingConfig, cache AvailabilityCache) *Ledger {
	return &Ledger{store: store, cache: cache, cfg: cfg, now: time.Now}
}

// today is the current calendar day in the configured location.
func (l *Ledger) today() time.Time {
	return day(l.now(), l.cfg.Location)
}

// GetOrCreate returns the entry for (date, slot), creating a fully
// available one when none exists.
func (l *Ledger) GetOrCreate(ctx context.Context, date time.Time, slot model.TimeSlot) (*model.ScheduleEntry, error) {
	if !slot.Valid() {
		return nil, &ValidationError{Fields: []FieldError{{Field: "timeSlot", Message: messageFor("timeSlot")}}}
	}
	e, err := l.store.Get(ctx, date, slot)
	if err == nil {
		return l.localize(e), nil
	}
	if !errors.Is(err, repository.ErrScheduleNotFound) {
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	e, err = l.store.Create(ctx, date, slot, l.cfg.TotalSeats, l.cfg.PriceCents)
	if errors.Is(err, repository.ErrDuplicateSchedule) {
		// Lost the creation race; the winner's row is the entry.
		e, err = l.store.Get(ctx, date, slot)
	}
	if err != nil {
		return nil, fmt.Errorf("create schedule: %w", err)
	}
	return l.localize(e), nil
}

// Refresh reloads an entry from storage.
func (l *Ledger) Refresh(ctx context.Context, e *model.ScheduleEntry) (*model.ScheduleEntry, error) {
	fresh, err := l.store.Get(ctx, e.Date, e.TimeSlot)
	if err != nil {
		return nil, err
	}
	return l.localize(fresh), nil
}

// OccupySeat marks seat as taken by bookingID.  It fails with
// repository.ErrSeatUnavailable when the entry is full and with
// repository.ErrSeatAlreadyTaken when the seat is occupied.  The checks
// against e are a fast path; storage re-checks them under a row lock.
func (l *Ledger) OccupySeat(ctx context.Context, e *model.ScheduleEntry, seat int, bookingID uint64) (*model.ScheduleEntry, error) {
	if e.AvailableSeats <= 0 {
		return nil, repository.ErrSeatUnavailable
	}
	if e.IsOccupied(seat) {
		return nil, repository.ErrSeatAlreadyTaken
	}
	updated, err := l.store.OccupySeat(ctx, e.ID, seat, bookingID)
	if err != nil {
		return nil, err
	}
	l.invalidate(ctx, e.Date)
	return l.localize(updated), nil
}

// ReleaseSeat frees seat.  Releasing a free seat is a no-op.
func (l *Ledger) ReleaseSeat(ctx context.Context, e *model.ScheduleEntry, seat int) (*model.ScheduleEntry, error) {
	updated, err := l.store.ReleaseSeat(ctx, e.ID, seat)
	if err != nil {
		return nil, err
	}
	l.invalidate(ctx, e.Date)
	return l.localize(updated), nil
}

// ListAvailability returns one row per time slot for date, creating any
// missing entries.  Dates before today fail with ErrPastDate.
func (l *Ledger) ListAvailability(ctx context.Context, date time.Time) ([]model.SlotAvailability, error) {
	date = day(date, l.cfg.Location)
	if date.Before(l.today()) {
		return nil, ErrPastDate
	}
	key := model.DateString(date)
	if l.cache != nil {
		if cached, ok := l.cache.Get(ctx, key); ok {
			return cached, nil
		}
	}
	out := make([]model.SlotAvailability, 0, len(model.TimeSlots))
	for _, slot := range model.TimeSlots {
		e, err := l.GetOrCreate(ctx, date, slot)
		if err != nil {
			return nil, err
		}
		out = append(out, model.SlotAvailability{
			TimeSlot:       slot,
			Label:          l.cfg.Label(slot),
			AvailableSeats: e.AvailableSeats,
			TotalSeats:     e.TotalSeats,
			PriceCents:     e.PriceCents,
		})
	}
	if l.cache != nil {
		l.cache.Set(ctx, key, out)
	}
	return out, nil
}

func (l *Ledger) invalidate(ctx context.Context, date time.Time) {
	if l.cache != nil {
		l.cache.Invalidate(ctx, model.DateString(date))
	}
}

// localize re-anchors the stored calendar date in the configured location.
func (l *Ledger) localize(e *model.ScheduleEntry) *model.ScheduleEntry {
	e.Date = calendarDay(e.Date, l.cfg.Location)
	return e
}

// day truncates t to midnight of its calendar day as seen in loc.
func day(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// calendarDay keeps the year, month and day of t as stored and places
// them at midnight in loc.  DATE columns come back as UTC midnight.
func calendarDay(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
