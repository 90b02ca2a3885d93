package handler

import (
    "net/http"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/sirupsen/logrus"

    "github.com/waqasameen944/Bus-Booking-System/internal/config"
    "github.com/waqasameen944/Bus-Booking-System/internal/model"
    "github.com/waqasameen944/Bus-Booking-System/internal/service"
)

// BookingHandler serves the public booking endpoints.
type BookingHandler struct {
    orch *service.Orchestrator
    cfg  config.BookingConfig
    log  logrus.FieldLogger
}

func NewBookingHandler(orch *service.Orchestrator, cfg config.BookingConfig, log logrus.FieldLogger) *BookingHandler {
    return &BookingHandler{orch: orch, cfg: cfg, log: log}
}

// bookingView is the wire form of a booking.  The travel date is a plain
// calendar date.
type bookingView struct {
    ID                uint64              `json:"id"`
    BookingCode       string              `json:"bookingCode"`
    Date              string              `json:"date"`
    TimeSlot          model.TimeSlot      `json:"timeSlot"`
    SlotLabel         string              `json:"slotLabel"`
    Passenger         model.Passenger     `json:"passenger"`
    SeatNumber        int                 `json:"seatNumber"`
    AmountCents       int64               `json:"amountCents"`
    PaymentStatus     model.PaymentStatus `json:"paymentStatus"`
    ProviderPaymentID *string             `json:"paymentIntentId,omitempty"`
    Status            model.BookingStatus `json:"status"`
    EmailSent         bool                `json:"emailSent"`
    AdminNotified     bool                `json:"adminNotified"`
    CanCancel         bool                `json:"canCancel"`
    CreatedAt         time.Time           `json:"createdAt"`
    UpdatedAt         time.Time           `json:"updatedAt"`
}

func toView(b *model.Booking, cfg config.BookingConfig, canCancel bool) bookingView {
    return bookingView{
        ID:                b.ID,
        BookingCode:       b.BookingCode,
        Date:              model.DateString(b.Date),
        TimeSlot:          b.TimeSlot,
        SlotLabel:         cfg.Label(b.TimeSlot),
        Passenger:         b.Passenger,
        SeatNumber:        b.SeatNumber,
        AmountCents:       b.AmountCents,
        PaymentStatus:     b.PaymentStatus,
        ProviderPaymentID: b.ProviderPaymentID,
        Status:            b.Status,
        EmailSent:         b.EmailSent,
        AdminNotified:     b.AdminNotified,
        CanCancel:         canCancel,
        CreatedAt:         b.CreatedAt,
        UpdatedAt:         b.UpdatedAt,
    }
}

func (h *BookingHandler) view(b *model.Booking) bookingView {
    open := b.Status == model.BookingConfirmed && h.orch.Bookings().CancellationOpen(b)
    return toView(b, h.cfg, open)
}

// Availability lists the free seats of every slot on :date.
func (h *BookingHandler) Availability(c echo.Context) error {
    date, err := service.ParseDate(c.Param("date"), h.cfg.Location)
    if err != nil {
        return writeError(c, h.log, err)
    }
    slots, err := h.orch.Ledger().ListAvailability(c.Request().Context(), date)
    if err != nil {
        return writeError(c, h.log, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"date": model.DateString(date), "slots": slots})
}

// Create reserves the lowest free seat of the requested slot.
func (h *BookingHandler) Create(c echo.Context) error {
    var req service.ReservationRequest
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid body")
    }
    b, err := h.orch.Reserve(c.Request().Context(), req)
    if err != nil {
        return writeError(c, h.log, err)
    }
    return c.JSON(http.StatusCreated, h.view(b))
}

// Get returns the booking with :code.
func (h *BookingHandler) Get(c echo.Context) error {
    b, err := h.orch.Bookings().FindByCode(c.Request().Context(), c.Param("code"))
    if err != nil {
        return writeError(c, h.log, err)
    }
    return c.JSON(http.StatusOK, h.view(b))
}

// Cancel cancels the booking with :code and frees its seat.
func (h *BookingHandler) Cancel(c echo.Context) error {
    b, err := h.orch.Cancel(c.Request().Context(), c.Param("code"))
    if err != nil {
        return writeError(c, h.log, err)
    }
    return c.JSON(http.StatusOK, h.view(b))
}
