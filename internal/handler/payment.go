package handler

import (
    "errors"
    "io"
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"
    "github.com/sirupsen/logrus"

    "github.com/waqasameen944/Bus-Booking-System/internal/config"
    "github.com/waqasameen944/Bus-Booking-System/internal/service"
)

// maxWebhookBody caps the webhook payload read into memory.
const maxWebhookBody = 64 << 10

// WebhookVerifier authenticates a raw provider notification.
type WebhookVerifier interface {
    ParseWebhook(payload []byte, signature string) (service.PaymentEvent, error)
}

// PaymentHandler serves the payment endpoints.
type PaymentHandler struct {
    payments *service.PaymentAdapter
    verifier WebhookVerifier
    cfg      config.BookingConfig
    log      logrus.FieldLogger
}

// NewPaymentHandler returns a PaymentHandler.  verifier may be nil when
// payments are not configured; the webhook then answers 503.
func NewPaymentHandler(payments *service.PaymentAdapter, verifier WebhookVerifier, cfg config.BookingConfig, log logrus.FieldLogger) *PaymentHandler {
    return &PaymentHandler{payments: payments, verifier: verifier, cfg: cfg, log: log}
}

type intentReq struct {
    BookingCode string `json:"bookingCode"`
}

type confirmReq struct {
    PaymentIntentID string `json:"paymentIntentId"`
}

// Intent starts a payment for a booking.
func (h *PaymentHandler) Intent(c echo.Context) error {
    var req intentReq
    if err := c.Bind(&req); err != nil || strings.TrimSpace(req.BookingCode) == "" {
        return badRequest(c, "bookingCode required")
    }
    start, err := h.payments.StartPayment(c.Request().Context(), strings.TrimSpace(req.BookingCode))
    if err != nil {
        return writeError(c, h.log, err)
    }
    return c.JSON(http.StatusOK, start)
}

// Confirm completes the payment once the provider reports success.
func (h *PaymentHandler) Confirm(c echo.Context) error {
    var req confirmReq
    if err := c.Bind(&req); err != nil || strings.TrimSpace(req.PaymentIntentID) == "" {
        return badRequest(c, "paymentIntentId required")
    }
    b, err := h.payments.ConfirmPayment(c.Request().Context(), strings.TrimSpace(req.PaymentIntentID))
    if err != nil {
        return writeError(c, h.log, err)
    }
    return c.JSON(http.StatusOK, toView(b, h.cfg, false))
}

// Webhook receives provider notifications.  Once the signature verifies,
// events the booking flow rejects are acknowledged with 200; any other
// failure is answered 500 so the provider delivers the event again.
func (h *PaymentHandler) Webhook(c echo.Context) error {
    if h.verifier == nil {
        return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": service.ErrPaymentsDisabled.Error()})
    }
    payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
    if err != nil {
        return badRequest(c, "unreadable body")
    }
    ev, err := h.verifier.ParseWebhook(payload, c.Request().Header.Get("Stripe-Signature"))
    if err != nil {
        h.log.WithError(err).Warn("webhook rejected")
        return badRequest(c, "invalid signature")
    }

    log := h.log.WithFields(logrus.Fields{
        "event_id":            ev.ID,
        "event_type":          ev.Type,
        "provider_payment_id": ev.ProviderPaymentID,
    })
    err = h.payments.HandleEvent(c.Request().Context(), ev)
    switch {
    case err == nil:
    case service.IsInvalidTransition(err):
        log.WithError(err).Warn("webhook event conflicts with booking state")
    case errors.Is(err, service.ErrBookingNotFound):
        log.WithError(err).Error("webhook event not applied")
    default:
        log.WithError(err).Error("webhook event failed, awaiting redelivery")
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
    }
    return c.JSON(http.StatusOK, echo.Map{"received": true})
}
