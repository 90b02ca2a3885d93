package handler

import (
    "errors"
    "net/http"

    "github.com/labstack/echo/v4"
    "github.com/sirupsen/logrus"

    "github.com/waqasameen944/Bus-Booking-System/internal/service"
)

// writeError maps a service error to its HTTP status and JSON body.
// Anything unrecognised is logged and answered with a generic 500 so
// internals never leak to clients.
func writeError(c echo.Context, log logrus.FieldLogger, err error) error {
    var ve *service.ValidationError
    if errors.As(err, &ve) {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation failed", "fields": ve.Fields})
    }
    var te *service.InvalidTransitionError
    if errors.As(err, &te) {
        return c.JSON(http.StatusConflict, echo.Map{"error": te.Error()})
    }

    status := http.StatusInternalServerError
    switch {
    case errors.Is(err, service.ErrPastDate):
        status = http.StatusBadRequest
    case errors.Is(err, service.ErrNoSeatsAvailable):
        status = http.StatusConflict
    case errors.Is(err, service.ErrBookingNotFound):
        status = http.StatusNotFound
    case errors.Is(err, service.ErrAlreadyCancelled):
        status = http.StatusConflict
    case errors.Is(err, service.ErrCancellationWindowClosed):
        status = http.StatusUnprocessableEntity
    case errors.Is(err, service.ErrPaymentAlreadyCompleted):
        status = http.StatusConflict
    case errors.Is(err, service.ErrPaymentNotSucceeded):
        status = http.StatusPaymentRequired
    case errors.Is(err, service.ErrPaymentsDisabled):
        status = http.StatusServiceUnavailable
    case errors.Is(err, service.ErrForbidden):
        status = http.StatusForbidden
    }
    if status == http.StatusInternalServerError {
        log.WithError(err).WithFields(logrus.Fields{
            "method": c.Request().Method,
            "path":   c.Path(),
        }).Error("request failed")
        return c.JSON(status, echo.Map{"error": "internal error"})
    }
    return c.JSON(status, echo.Map{"error": err.Error()})
}

// badRequest answers a malformed body or parameter.
func badRequest(c echo.Context, msg string) error {
    return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}
