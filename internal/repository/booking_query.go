package repository

import (
	"context"
	"strings"
	"time"

	"github.com/waqasameen944/Bus-Booking-System/internal/model"
)

// List returns one page of bookings matching f, newest first, together
// with the total number of matches.  f.Page and f.Limit must already be
// normalized by the caller.
func (r *BookingRepo) List(ctx context.Context, f model.BookingFilter) ([]model.Booking, int, error) {
	var where []string
	var args []any
	if f.Date != nil {
		where = append(where, "travel_date = ?")
		args = append(args, sqlDate(*f.Date))
	}
	if f.TimeSlot != "" {
		where = append(where, "time_slot = ?")
		args = append(args, string(f.TimeSlot))
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.PaymentStatus != "" {
		where = append(where, "payment_status = ?")
		args = append(args, string(f.PaymentStatus))
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bookings`+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := `SELECT ` + bookingColumns + ` FROM bookings` + cond + ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	pageArgs := append(append([]any{}, args...), f.Limit, (f.Page-1)*f.Limit)
	rows, err := r.db.QueryContext(ctx, q, pageArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := collectBookings(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// StatsCounts holds the raw aggregates behind the admin dashboard.  Date
// windows are half-open and relative to the supplied reference day.
type StatsCounts struct {
	Active           int   // not cancelled
	Today            int   // not cancelled, travelling today
	RevenueCents     int64 // paid and not cancelled
	PendingPayments  int
	CurrentWeek      int // not cancelled, [today-7, today)
	PreviousWeek     int // not cancelled, [today-14, today-7)
	Last30Days       int // not cancelled, [today-30, today)
	Confirmed        int
	DistinctDates    int
	ThisMonthRevenue int64
	LastMonthRevenue int64
}

// Stats computes every dashboard aggregate in a single pass over bookings.
func (r *BookingRepo) Stats(ctx context.Context, today time.Time) (StatsCounts, error) {
	const q = `SELECT
	    COALESCE(SUM(status <> 'cancelled'), 0),
	    COALESCE(SUM(status <> 'cancelled' AND travel_date = ?), 0),
	    COALESCE(SUM(CASE WHEN payment_status = 'completed' AND status <> 'cancelled' THEN amount_cents ELSE 0 END), 0),
	    COALESCE(SUM(payment_status = 'pending'), 0),
	    COALESCE(SUM(status <> 'cancelled' AND travel_date >= ? AND travel_date < ?), 0),
	    COALESCE(SUM(status <> 'cancelled' AND travel_date >= ? AND travel_date < ?), 0),
	    COALESCE(SUM(status <> 'cancelled' AND travel_date >= ? AND travel_date < ?), 0),
	    COALESCE(SUM(status = 'confirmed'), 0),
	    COUNT(DISTINCT travel_date),
	    COALESCE(SUM(CASE WHEN payment_status = 'completed' AND status <> 'cancelled' AND travel_date >= ? THEN amount_cents ELSE 0 END), 0),
	    COALESCE(SUM(CASE WHEN payment_status = 'completed' AND status <> 'cancelled' AND travel_date >= ? AND travel_date < ? THEN amount_cents ELSE 0 END), 0)
	FROM bookings`

	day := sqlDate(today)
	weekAgo := sqlDate(today.AddDate(0, 0, -7))
	twoWeeksAgo := sqlDate(today.AddDate(0, 0, -14))
	monthAgo := sqlDate(today.AddDate(0, 0, -30))
	thisMonth := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
	lastMonth := thisMonth.AddDate(0, -1, 0)

	var s StatsCounts
	err := r.db.QueryRowContext(ctx, q,
		day,
		weekAgo, day,
		twoWeeksAgo, weekAgo,
		monthAgo, day,
		sqlDate(thisMonth),
		sqlDate(lastMonth), sqlDate(thisMonth),
	).Scan(&s.Active, &s.Today, &s.RevenueCents, &s.PendingPayments,
		&s.CurrentWeek, &s.PreviousWeek, &s.Last30Days,
		&s.Confirmed, &s.DistinctDates, &s.ThisMonthRevenue, &s.LastMonthRevenue)
	return s, err
}
