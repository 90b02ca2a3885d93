package handler

import (
    "errors"
    "fmt"
    "net/http"
    "net/http/httptest"
    "testing"

    "github.com/labstack/echo/v4"
    "github.com/sirupsen/logrus"
    "github.com/sirupsen/logrus/hooks/test"
    "github.com/stretchr/testify/assert"

    "github.com/waqasameen944/Bus-Booking-System/internal/service"
)

func TestWriteErrorStatusMapping(t *testing.T) {
    cases := []struct {
        err    error
        status int
    }{
        {&service.ValidationError{Fields: []service.FieldError{{Field: "date", Message: "Valid date is required"}}}, http.StatusBadRequest},
        {&service.InvalidTransitionError{Field: "status", From: "completed", To: "cancelled"}, http.StatusConflict},
        {service.ErrPastDate, http.StatusBadRequest},
        {service.ErrNoSeatsAvailable, http.StatusConflict},
        {service.ErrBookingNotFound, http.StatusNotFound},
        {service.ErrAlreadyCancelled, http.StatusConflict},
        {service.ErrCancellationWindowClosed, http.StatusUnprocessableEntity},
        {service.ErrPaymentAlreadyCompleted, http.StatusConflict},
        {service.ErrPaymentNotSucceeded, http.StatusPaymentRequired},
        {service.ErrPaymentsDisabled, http.StatusServiceUnavailable},
        {service.ErrForbidden, http.StatusForbidden},
        {fmt.Errorf("reserve: %w", service.ErrNoSeatsAvailable), http.StatusConflict},
    }
    e := echo.New()
    log, hook := test.NewNullLogger()
    for _, tc := range cases {
        t.Run(tc.err.Error(), func(t *testing.T) {
            rec := httptest.NewRecorder()
            c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
            assert.NoError(t, writeError(c, log, tc.err))
            assert.Equal(t, tc.status, rec.Code)
        })
    }
    assert.Empty(t, hook.AllEntries())
}

func TestWriteErrorHidesInternalErrors(t *testing.T) {
    e := echo.New()
    log, hook := test.NewNullLogger()
    rec := httptest.NewRecorder()
    c := e.NewContext(httptest.NewRequest(http.MethodPost, "/api/bookings", nil), rec)

    assert.NoError(t, writeError(c, log, errors.New("dial tcp 10.0.0.3:3306: connection refused")))
    assert.Equal(t, http.StatusInternalServerError, rec.Code)
    assert.JSONEq(t, `{"error":"internal error"}`, rec.Body.String())
    if assert.Len(t, hook.AllEntries(), 1) {
        assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
    }
}

func TestWriteErrorValidationBody(t *testing.T) {
    e := echo.New()
    log, _ := test.NewNullLogger()
    rec := httptest.NewRecorder()
    c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)

    err := &service.ValidationError{Fields: []service.FieldError{
        {Field: "passenger.email", Message: "Valid email is required"},
        {Field: "timeSlot", Message: "Valid time slot is required"},
    }}
    assert.NoError(t, writeError(c, log, err))
    assert.JSONEq(t, `{"error":"validation failed","fields":[
        {"field":"passenger.email","message":"Valid email is required"},
        {"field":"timeSlot","message":"Valid time slot is required"}]}`, rec.Body.String())
}
