package service

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/waqasameen944/Bus-Booking-System/internal/config"
	"github.com/waqasameen944/Bus-Booking-System/internal/model"
	"github.com/waqasameen944/Bus-Booking-System/internal/repository"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

// Reports serves the admin dashboard and booking listings.
type Reports struct {
	store ReportStore
	cfg   config.BookingConfig
	now   func() time.Time
}

// NewReports returns a Reports reading from store.
func NewReports(store ReportStore, cfg config.BookingConfig) *Reports {
	return &Reports{store: store, cfg: cfg, now: time.Now}
}

// Dashboard computes the admin statistics relative to today.
func (r *Reports) Dashboard(ctx context.Context) (model.DashboardStats, error) {
	today := day(r.now(), r.cfg.Location)
	c, err := r.store.Stats(ctx, today)
	if err != nil {
		return model.DashboardStats{}, err
	}
	return dashboardFrom(c, r.cfg.TotalSeats), nil
}

func dashboardFrom(c repository.StatsCounts, totalSeats int) model.DashboardStats {
	s := model.DashboardStats{
		TotalBookings:         c.Active,
		TodayBookings:         c.Today,
		TotalRevenueCents:     c.RevenueCents,
		PendingPayments:       c.PendingPayments,
		WeeklyGrowth:          growth(float64(c.CurrentWeek), float64(c.PreviousWeek)),
		AverageBookingsPerDay: round1(float64(c.Last30Days) / 30),
		RevenueGrowth:         growth(float64(c.ThisMonthRevenue), float64(c.LastMonthRevenue)),
	}
	if capacity := c.DistinctDates * len(model.TimeSlots) * totalSeats; capacity > 0 {
		s.OccupancyRate = round1(float64(c.Confirmed) / float64(capacity) * 100)
	}
	return s
}

// growth is the percentage change from prev to cur, or 0 without a base.
func growth(cur, prev float64) float64 {
	if prev <= 0 {
		return 0
	}
	return round1((cur - prev) / prev * 100)
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

// ListBookings returns one page of bookings matching f.  Page defaults to
// 1 and limit to 10, capped at 100.
func (r *Reports) ListBookings(ctx context.Context, f model.BookingFilter) (model.BookingPage, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = defaultPageLimit
	}
	if f.Limit > maxPageLimit {
		f.Limit = maxPageLimit
	}
	var fields []FieldError
	if f.TimeSlot != "" && !f.TimeSlot.Valid() {
		fields = append(fields, FieldError{Field: "timeSlot", Message: messageFor("timeSlot")})
	}
	switch f.Status {
	case "", model.BookingConfirmed, model.BookingCancelled, model.BookingCompleted:
	default:
		fields = append(fields, FieldError{Field: "status", Message: "unknown booking status"})
	}
	switch f.PaymentStatus {
	case "", model.PaymentPending, model.PaymentCompleted, model.PaymentFailed, model.PaymentRefunded:
	default:
		fields = append(fields, FieldError{Field: "paymentStatus", Message: "unknown payment status"})
	}
	if len(fields) > 0 {
		return model.BookingPage{}, &ValidationError{Fields: fields}
	}

	items, total, err := r.store.List(ctx, f)
	if err != nil {
		return model.BookingPage{}, err
	}
	for i := range items {
		items[i].Date = calendarDay(items[i].Date, r.cfg.Location)
	}
	return model.BookingPage{
		Items:      items,
		Total:      total,
		Page:       f.Page,
		Limit:      f.Limit,
		TotalPages: (total + f.Limit - 1) / f.Limit,
	}, nil
}

// BookingDetail returns one booking by id.
func (r *Reports) BookingDetail(ctx context.Context, id uint64) (*model.Booking, error) {
	b, err := r.store.GetByID(ctx, id)
	if errors.Is(err, repository.ErrBookingNotFound) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	b.Date = calendarDay(b.Date, r.cfg.Location)
	return b, nil
}
