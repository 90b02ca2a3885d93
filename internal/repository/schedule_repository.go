package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/waqasameen944/Bus-Booking-System/internal/model"
)

// ScheduleRepo persists the seat ledger: one bus_schedules row per
// (travel_date, time_slot) plus one schedule_seats row per occupied seat.
// available_seats is never incremented or decremented in place; every
// mutation recomputes it from the seat rows inside the same transaction.
type ScheduleRepo struct {
	db *sql.DB
}

// NewScheduleRepo returns a ScheduleRepo bound to db.
func NewScheduleRepo(db *sql.DB) *ScheduleRepo { return &ScheduleRepo{db: db} }

const scheduleColumns = `id, travel_date, time_slot, total_seats, available_seats, price_cents, status, created_at, updated_at`

func scanSchedule(row interface{ Scan(...any) error }) (*model.ScheduleEntry, error) {
	var e model.ScheduleEntry
	var slot, status string
	if err := row.Scan(&e.ID, &e.Date, &slot, &e.TotalSeats, &e.AvailableSeats,
		&e.PriceCents, &status, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.TimeSlot = model.TimeSlot(slot)
	e.Status = model.ScheduleStatus(status)
	return &e, nil
}

// Get returns the entry for (date, slot) with its occupied seats, or
// ErrScheduleNotFound.
func (r *ScheduleRepo) Get(ctx context.Context, date time.Time, slot model.TimeSlot) (*model.ScheduleEntry, error) {
	q := `SELECT ` + scheduleColumns + ` FROM bus_schedules WHERE travel_date = ? AND time_slot = ?`
	e, err := scanSchedule(r.db.QueryRowContext(ctx, q, sqlDate(date), string(slot)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrScheduleNotFound
	}
	if err != nil {
		return nil, err
	}
	if e.Occupied, err = loadOccupied(ctx, r.db, e.ID); err != nil {
		return nil, err
	}
	return e, nil
}

// Create inserts a fully available entry.  A concurrent insert of the
// same (date, slot) surfaces as ErrDuplicateSchedule.
func (r *ScheduleRepo) Create(ctx context.Context, date time.Time, slot model.TimeSlot, totalSeats int, priceCents int64) (*model.ScheduleEntry, error) {
	const q = `INSERT INTO bus_schedules (travel_date, time_slot, total_seats, available_seats, price_cents, status)
	           VALUES (?, ?, ?, ?, ?, 'active')`
	if _, err := r.db.ExecContext(ctx, q, sqlDate(date), string(slot), totalSeats, totalSeats, priceCents); err != nil {
		if _, dup := duplicateKey(err); dup {
			return nil, ErrDuplicateSchedule
		}
		return nil, err
	}
	return r.Get(ctx, date, slot)
}

// ListRange returns every existing entry with travel_date in [from, to],
// ordered by date and slot.  Missing entries are not created.
func (r *ScheduleRepo) ListRange(ctx context.Context, from, to time.Time) ([]model.ScheduleEntry, error) {
	q := `SELECT ` + scheduleColumns + ` FROM bus_schedules
	      WHERE travel_date BETWEEN ? AND ?
	      ORDER BY travel_date, FIELD(time_slot, 'morning', 'noon', 'evening')`
	rows, err := r.db.QueryContext(ctx, q, sqlDate(from), sqlDate(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ScheduleEntry
	for rows.Next() {
		e, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Occupied, err = loadOccupied(ctx, r.db, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// OccupySeat records seat as taken by bookingID.  The schedule row is
// locked for the duration of the transaction so concurrent occupations of
// the same entry serialize; the (schedule_id, seat_number) primary key
// rejects a seat that is already taken.
func (r *ScheduleRepo) OccupySeat(ctx context.Context, scheduleID uint64, seat int, bookingID uint64) (*model.ScheduleEntry, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer rollback(tx, &committed)

	var total, available int
	err = tx.QueryRowContext(ctx,
		`SELECT total_seats, available_seats FROM bus_schedules WHERE id = ? FOR UPDATE`, scheduleID,
	).Scan(&total, &available)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrScheduleNotFound
	}
	if err != nil {
		return nil, err
	}
	if available <= 0 {
		return nil, ErrSeatUnavailable
	}
	if seat < 1 || seat > total {
		return nil, fmt.Errorf("seat %d outside 1..%d: %w", seat, total, ErrSeatUnavailable)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schedule_seats (schedule_id, seat_number, booking_id) VALUES (?, ?, ?)`,
		scheduleID, seat, bookingID,
	); err != nil {
		if _, dup := duplicateKey(err); dup {
			return nil, ErrSeatAlreadyTaken
		}
		return nil, err
	}

	e, err := recountTx(ctx, tx, scheduleID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return e, nil
}

// ReleaseSeat frees seat on the entry.  Releasing a seat that is not
// occupied is not an error.  ErrScheduleNotFound means the entry itself
// is gone.
func (r *ScheduleRepo) ReleaseSeat(ctx context.Context, scheduleID uint64, seat int) (*model.ScheduleEntry, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer rollback(tx, &committed)

	var id uint64
	err = tx.QueryRowContext(ctx, `SELECT id FROM bus_schedules WHERE id = ? FOR UPDATE`, scheduleID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrScheduleNotFound
	}
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM schedule_seats WHERE schedule_id = ? AND seat_number = ?`, scheduleID, seat,
	); err != nil {
		return nil, err
	}

	e, err := recountTx(ctx, tx, scheduleID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return e, nil
}

// Occupants lists the occupied seats of an entry joined with the booking
// holding each seat.  Seats whose booking row is missing come back with
// empty booking fields so the caller can flag them.
func (r *ScheduleRepo) Occupants(ctx context.Context, scheduleID uint64) ([]model.SeatOccupant, error) {
	const q = `SELECT ss.seat_number, ss.booking_id,
	                  COALESCE(b.booking_code, ''), COALESCE(b.passenger_name, ''), COALESCE(b.passenger_email, '')
	           FROM schedule_seats ss
	           LEFT JOIN bookings b ON b.id = ss.booking_id
	           WHERE ss.schedule_id = ?
	           ORDER BY ss.seat_number`
	rows, err := r.db.QueryContext(ctx, q, scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.SeatOccupant{}
	for rows.Next() {
		var o model.SeatOccupant
		if err := rows.Scan(&o.SeatNumber, &o.BookingID, &o.BookingCode, &o.PassengerName, &o.PassengerEmail); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// recountTx recomputes available_seats from the seat rows and returns the
// refreshed entry.
func recountTx(ctx context.Context, tx *sql.Tx, scheduleID uint64) (*model.ScheduleEntry, error) {
	const upd = `UPDATE bus_schedules
	             SET available_seats = total_seats - (SELECT COUNT(*) FROM schedule_seats WHERE schedule_id = ?)
	             WHERE id = ?`
	if _, err := tx.ExecContext(ctx, upd, scheduleID, scheduleID); err != nil {
		return nil, err
	}
	q := `SELECT ` + scheduleColumns + ` FROM bus_schedules WHERE id = ?`
	e, err := scanSchedule(tx.QueryRowContext(ctx, q, scheduleID))
	if err != nil {
		return nil, err
	}
	if e.Occupied, err = loadOccupied(ctx, tx, scheduleID); err != nil {
		return nil, err
	}
	return e, nil
}

func loadOccupied(ctx context.Context, q queryer, scheduleID uint64) ([]model.OccupiedSeat, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT seat_number, booking_id FROM schedule_seats WHERE schedule_id = ? ORDER BY seat_number`, scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.OccupiedSeat{}
	for rows.Next() {
		var o model.OccupiedSeat
		if err := rows.Scan(&o.SeatNumber, &o.BookingID); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
