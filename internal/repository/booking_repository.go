package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/waqasameen944/Bus-Booking-System/internal/model"
)

// BookingRepo provides persistence for bookings.  State changes are
// conditional updates keyed on the expected current state so that two
// concurrent transitions of the same booking cannot both succeed.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a BookingRepo bound to db.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

const bookingColumns = `id, booking_code, travel_date, time_slot, passenger_name, passenger_email, passenger_phone,
	seat_number, amount_cents, payment_status, provider_payment_id, status, email_sent, admin_notified,
	created_at, updated_at`

func scanBooking(row interface{ Scan(...any) error }) (*model.Booking, error) {
	var b model.Booking
	var slot, payStatus, status string
	var providerID sql.NullString
	err := row.Scan(&b.ID, &b.BookingCode, &b.Date, &slot,
		&b.Passenger.Name, &b.Passenger.Email, &b.Passenger.Phone,
		&b.SeatNumber, &b.AmountCents, &payStatus, &providerID, &status,
		&b.EmailSent, &b.AdminNotified, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.TimeSlot = model.TimeSlot(slot)
	b.PaymentStatus = model.PaymentStatus(payStatus)
	b.Status = model.BookingStatus(status)
	if providerID.Valid {
		pid := providerID.String
		b.ProviderPaymentID = &pid
	}
	return &b, nil
}

// Create inserts b and fills in its generated id and timestamps.  A
// colliding booking code yields ErrDuplicateBookingCode.  When the insert
// committed but a later step failed, the error is returned with b.ID set.
func (r *BookingRepo) Create(ctx context.Context, b *model.Booking) error {
	const q = `INSERT INTO bookings (booking_code, travel_date, time_slot, passenger_name, passenger_email,
	               passenger_phone, seat_number, amount_cents, payment_status, status)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, b.BookingCode, sqlDate(b.Date), string(b.TimeSlot),
		b.Passenger.Name, b.Passenger.Email, b.Passenger.Phone,
		b.SeatNumber, b.AmountCents, string(b.PaymentStatus), string(b.Status))
	if err != nil {
		if key, dup := duplicateKey(err); dup && (key == "" || key == "uq_bookings_code") {
			return ErrDuplicateBookingCode
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	// The row is committed: b.ID stays set even when the read-back fails,
	// and the read-back outlives the caller's context.
	b.ID = uint64(id)
	saved, err := r.GetByID(context.WithoutCancel(ctx), b.ID)
	if err != nil {
		return fmt.Errorf("read back booking %d: %w", b.ID, err)
	}
	*b = *saved
	return nil
}

func (r *BookingRepo) getOne(ctx context.Context, where string, arg any) (*model.Booking, error) {
	b, err := scanBooking(r.db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE `+where+` LIMIT 1`, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	return b, err
}

// GetByID returns the booking with the given id or ErrBookingNotFound.
func (r *BookingRepo) GetByID(ctx context.Context, id uint64) (*model.Booking, error) {
	return r.getOne(ctx, "id = ?", id)
}

// GetByCode returns the booking with the given code or ErrBookingNotFound.
func (r *BookingRepo) GetByCode(ctx context.Context, code string) (*model.Booking, error) {
	return r.getOne(ctx, "booking_code = ?", code)
}

// GetByProviderPaymentID returns the booking bound to a provider payment
// handle or ErrBookingNotFound.
func (r *BookingRepo) GetByProviderPaymentID(ctx context.Context, providerPaymentID string) (*model.Booking, error) {
	return r.getOne(ctx, "provider_payment_id = ?", providerPaymentID)
}

// Delete removes a booking.  It exists only for compensating a
// reservation whose seat could not be occupied.
func (r *BookingRepo) Delete(ctx context.Context, id uint64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM bookings WHERE id = ?`, id)
	return err
}

// UpdateStatus moves a booking from one status to another.  It returns
// ErrNoRowsChanged when the booking is not currently in from.
func (r *BookingRepo) UpdateStatus(ctx context.Context, id uint64, from, to model.BookingStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE bookings SET status = ? WHERE id = ? AND status = ?`, string(to), id, string(from))
	return expectOneRow(res, err)
}

// UpdatePaymentStatus moves the payment status from one value to another
// and returns ErrNoRowsChanged when the booking is not currently in from.
func (r *BookingRepo) UpdatePaymentStatus(ctx context.Context, id uint64, from, to model.PaymentStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE bookings SET payment_status = ? WHERE id = ? AND payment_status = ?`, string(to), id, string(from))
	return expectOneRow(res, err)
}

// BindProviderPayment stores the provider's payment handle on the booking.
func (r *BookingRepo) BindProviderPayment(ctx context.Context, id uint64, providerPaymentID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE bookings SET provider_payment_id = ? WHERE id = ?`, providerPaymentID, id)
	if err := expectOneRow(res, err); !errors.Is(err, ErrNoRowsChanged) {
		return err
	}
	// MySQL reports zero affected rows when the value is unchanged, so
	// tell "already bound" apart from "no such booking".
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return nil
}

// CompletePayment marks the booking bound to providerPaymentID as paid and
// claims both notification flags in the same statement.  It reports true
// only for the call that performed the pending -> completed transition.
func (r *BookingRepo) CompletePayment(ctx context.Context, providerPaymentID string) (bool, error) {
	const q = `UPDATE bookings
	           SET payment_status = 'completed', email_sent = 1, admin_notified = 1
	           WHERE provider_payment_id = ? AND payment_status = 'pending'`
	res, err := r.db.ExecContext(ctx, q, providerPaymentID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListBySchedule returns every booking, in any status, for (date, slot).
func (r *BookingRepo) ListBySchedule(ctx context.Context, date time.Time, slot model.TimeSlot) ([]model.Booking, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE travel_date = ? AND time_slot = ? ORDER BY seat_number, id`,
		sqlDate(date), string(slot))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBookings(rows)
}

func collectBookings(rows *sql.Rows) ([]model.Booking, error) {
	out := []model.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func expectOneRow(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNoRowsChanged
	}
	return nil
}
