package handler

import (
    "database/sql"
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "regexp"
    "strings"
    "testing"
    "time"

    "github.com/DATA-DOG/go-sqlmock"
    "github.com/labstack/echo/v4"
    "github.com/sirupsen/logrus/hooks/test"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/waqasameen944/Bus-Booking-System/internal/config"
    "github.com/waqasameen944/Bus-Booking-System/internal/lock"
    "github.com/waqasameen944/Bus-Booking-System/internal/repository"
    "github.com/waqasameen944/Bus-Booking-System/internal/service"
)

// stack is the booking API wired against a mocked database.
type stack struct {
    e        *echo.Echo
    mock     sqlmock.Sqlmock
    hook     *test.Hook
    payments *service.PaymentAdapter
}

func newStack(t *testing.T, verifier WebhookVerifier) *stack {
    t.Helper()
    db, mock, err := sqlmock.New()
    require.NoError(t, err)
    t.Cleanup(func() { db.Close() })

    log, hook := test.NewNullLogger()
    cfg := config.DefaultBooking()
    ledger := service.NewLedger(repository.NewScheduleRepo(db), cfg, nil)
    bookings := service.NewBookingStore(repository.NewBookingRepo(db), cfg)
    orch := service.NewOrchestrator(ledger, bookings, lock.NewKeyed(), cfg, log)
    payments := service.NewPaymentAdapter(bookings, nil, nil, "usd", log)

    bh := NewBookingHandler(orch, cfg, log)
    ph := NewPaymentHandler(payments, verifier, cfg, log)
    e := echo.New()
    e.GET("/api/bookings/availability/:date", bh.Availability)
    e.POST("/api/bookings", bh.Create)
    e.GET("/api/bookings/:code", bh.Get)
    e.DELETE("/api/bookings/:code", bh.Cancel)
    e.POST("/api/payments/intent", ph.Intent)
    e.POST("/api/payments/confirm", ph.Confirm)
    e.POST("/api/payments/webhook", ph.Webhook)
    return &stack{e: e, mock: mock, hook: hook, payments: payments}
}

func (s *stack) do(method, path, body string) *httptest.ResponseRecorder {
    req := httptest.NewRequest(method, path, strings.NewReader(body))
    if body != "" {
        req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
    }
    rec := httptest.NewRecorder()
    s.e.ServeHTTP(rec, req)
    return rec
}

func scheduleRows(id int64, date time.Time, available int) *sqlmock.Rows {
    return sqlmock.NewRows([]string{"id", "travel_date", "time_slot", "total_seats", "available_seats", "price_cents", "status", "created_at", "updated_at"}).
        AddRow(id, date, "morning", 15, available, 10000, "active", date, date)
}

func bookingRows(id int64, code string, date time.Time) *sqlmock.Rows {
    return sqlmock.NewRows([]string{"id", "booking_code", "travel_date", "time_slot", "passenger_name", "passenger_email",
        "passenger_phone", "seat_number", "amount_cents", "payment_status", "provider_payment_id", "status",
        "email_sent", "admin_notified", "created_at", "updated_at"}).
        AddRow(id, code, date, "morning", "Ada Lovelace", "ada@example.com", "5551234567", 1, 10200,
            "pending", nil, "confirmed", false, false, date, date)
}

const reserveBody = `{"date":"2099-03-01","timeSlot":"morning",
    "passenger":{"name":"Ada Lovelace","email":"Ada@Example.com","phone":"5551234567"}}`

func TestCreateBookingReservesLowestSeat(t *testing.T) {
    s := newStack(t, nil)
    travel := time.Date(2099, 3, 1, 0, 0, 0, 0, time.UTC)
    m := s.mock

    m.ExpectQuery(regexp.QuoteMeta(`FROM bus_schedules WHERE travel_date = ? AND time_slot = ?`)).
        WithArgs("2099-03-01", "morning").WillReturnRows(scheduleRows(5, travel, 15))
    m.ExpectQuery(regexp.QuoteMeta(`FROM schedule_seats WHERE schedule_id = ?`)).WithArgs(5).
        WillReturnRows(sqlmock.NewRows([]string{"seat_number", "booking_id"}))
    m.ExpectExec(regexp.QuoteMeta(`INSERT INTO bookings`)).
        WithArgs(sqlmock.AnyArg(), "2099-03-01", "morning", "Ada Lovelace", "ada@example.com", "5551234567", 1, 10200, "pending", "confirmed").
        WillReturnResult(sqlmock.NewResult(21, 1))
    m.ExpectQuery(regexp.QuoteMeta(`FROM bookings WHERE id = ? LIMIT 1`)).WithArgs(21).
        WillReturnRows(bookingRows(21, "BUS123456ABC", travel))
    m.ExpectBegin()
    m.ExpectQuery(regexp.QuoteMeta(`SELECT total_seats, available_seats FROM bus_schedules WHERE id = ? FOR UPDATE`)).WithArgs(5).
        WillReturnRows(sqlmock.NewRows([]string{"total_seats", "available_seats"}).AddRow(15, 15))
    m.ExpectExec(regexp.QuoteMeta(`INSERT INTO schedule_seats`)).WithArgs(5, 1, 21).
        WillReturnResult(sqlmock.NewResult(0, 1))
    m.ExpectExec(regexp.QuoteMeta(`UPDATE bus_schedules`)).WithArgs(5, 5).
        WillReturnResult(sqlmock.NewResult(0, 1))
    m.ExpectQuery(regexp.QuoteMeta(`FROM bus_schedules WHERE id = ?`)).WithArgs(5).
        WillReturnRows(scheduleRows(5, travel, 14))
    m.ExpectQuery(regexp.QuoteMeta(`FROM schedule_seats WHERE schedule_id = ?`)).WithArgs(5).
        WillReturnRows(sqlmock.NewRows([]string{"seat_number", "booking_id"}).AddRow(1, 21))
    m.ExpectCommit()

    rec := s.do(http.MethodPost, "/api/bookings", reserveBody)
    require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

    var got map[string]any
    require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
    assert.Equal(t, "BUS123456ABC", got["bookingCode"])
    assert.Equal(t, "2099-03-01", got["date"])
    assert.Equal(t, float64(1), got["seatNumber"])
    assert.Equal(t, float64(10200), got["amountCents"])
    assert.Equal(t, "09:00 AM - 12:00 PM", got["slotLabel"])
    assert.Equal(t, true, got["canCancel"])
    assert.NoError(t, m.ExpectationsWereMet())
}

func TestCreateBookingValidation(t *testing.T) {
    s := newStack(t, nil)

    rec := s.do(http.MethodPost, "/api/bookings", `{"date":"tomorrow","timeSlot":"noon","passenger":{"name":"Al","email":"al@example.com","phone":"5551234567"}}`)
    assert.Equal(t, http.StatusBadRequest, rec.Code)
    assert.JSONEq(t, `{"error":"validation failed","fields":[{"field":"date","message":"Valid date is required"}]}`, rec.Body.String())

    rec = s.do(http.MethodPost, "/api/bookings", `{"date":`)
    assert.Equal(t, http.StatusBadRequest, rec.Code)

    rec = s.do(http.MethodPost, "/api/bookings", `{"date":"2001-01-01","timeSlot":"noon","passenger":{"name":"Al","email":"al@example.com","phone":"5551234567"}}`)
    assert.Equal(t, http.StatusBadRequest, rec.Code)
    assert.Contains(t, rec.Body.String(), service.ErrPastDate.Error())

    assert.NoError(t, s.mock.ExpectationsWereMet())
}

func TestAvailabilityRejectsBadDates(t *testing.T) {
    s := newStack(t, nil)
    assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/bookings/availability/03-01-2099", "").Code)
    assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/bookings/availability/2001-01-01", "").Code)
}

func TestGetBookingNotFound(t *testing.T) {
    s := newStack(t, nil)
    s.mock.ExpectQuery(regexp.QuoteMeta(`FROM bookings WHERE booking_code = ? LIMIT 1`)).WithArgs("BUS000000AAA").
        WillReturnError(sql.ErrNoRows)

    rec := s.do(http.MethodGet, "/api/bookings/BUS000000AAA", "")
    assert.Equal(t, http.StatusNotFound, rec.Code)
    assert.JSONEq(t, `{"error":"booking not found"}`, rec.Body.String())
}

func TestCancelInsideWindowIsRejected(t *testing.T) {
    s := newStack(t, nil)
    today := time.Now().UTC().Truncate(24 * time.Hour)
    s.mock.ExpectQuery(regexp.QuoteMeta(`FROM bookings WHERE booking_code = ? LIMIT 1`)).WithArgs("BUS123456ABC").
        WillReturnRows(bookingRows(21, "BUS123456ABC", today))
    s.mock.ExpectQuery(regexp.QuoteMeta(`FROM bookings WHERE id = ? LIMIT 1`)).WithArgs(21).
        WillReturnRows(bookingRows(21, "BUS123456ABC", today))

    rec := s.do(http.MethodDelete, "/api/bookings/BUS123456ABC", "")
    assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
    assert.NoError(t, s.mock.ExpectationsWereMet())
}
