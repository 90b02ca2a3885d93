package handler

import (
    "context"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/sirupsen/logrus"

    "github.com/waqasameen944/Bus-Booking-System/internal/config"
    "github.com/waqasameen944/Bus-Booking-System/internal/middleware"
    "github.com/waqasameen944/Bus-Booking-System/internal/model"
    "github.com/waqasameen944/Bus-Booking-System/internal/service"
)

// Purger drops cached admin responses after a write.
type Purger interface {
    Purge(ctx context.Context)
}

// AdminHandler serves the admin endpoints.  Routes are mounted behind
// JWTAuth and RequireRole("admin"); the services check the principal
// again.
type AdminHandler struct {
    orch    *service.Orchestrator
    reports *service.Reports
    cache   Purger
    cfg     config.BookingConfig
    log     logrus.FieldLogger
}

// NewAdminHandler returns an AdminHandler.  cache may be nil.
func NewAdminHandler(orch *service.Orchestrator, reports *service.Reports, cache Purger, cfg config.BookingConfig, log logrus.FieldLogger) *AdminHandler {
    return &AdminHandler{orch: orch, reports: reports, cache: cache, cfg: cfg, log: log}
}

// Dashboard returns the booking statistics.
func (h *AdminHandler) Dashboard(c echo.Context) error {
    stats, err := h.reports.Dashboard(c.Request().Context())
    if err != nil {
        return writeError(c, h.log, err)
    }
    return c.JSON(http.StatusOK, stats)
}

// ListBookings returns one page of bookings.  Query parameters: date,
// timeSlot, status, paymentStatus, page and limit.
func (h *AdminHandler) ListBookings(c echo.Context) error {
    f := model.BookingFilter{
        TimeSlot:      model.TimeSlot(strings.TrimSpace(c.QueryParam("timeSlot"))),
        Status:        model.BookingStatus(strings.TrimSpace(c.QueryParam("status"))),
        PaymentStatus: model.PaymentStatus(strings.TrimSpace(c.QueryParam("paymentStatus"))),
        Page:          atoiOr(c.QueryParam("page"), 1),
        Limit:         atoiOr(c.QueryParam("limit"), 0),
    }
    if s := c.QueryParam("date"); s != "" {
        d, err := service.ParseDate(s, h.cfg.Location)
        if err != nil {
            return writeError(c, h.log, err)
        }
        f.Date = &d
    }
    page, err := h.reports.ListBookings(c.Request().Context(), f)
    if err != nil {
        return writeError(c, h.log, err)
    }
    items := make([]bookingView, len(page.Items))
    for i := range page.Items {
        items[i] = toView(&page.Items[i], h.cfg, false)
    }
    return c.JSON(http.StatusOK, echo.Map{
        "items":      items,
        "total":      page.Total,
        "page":       page.Page,
        "limit":      page.Limit,
        "totalPages": page.TotalPages,
    })
}

// GetBooking returns one booking by numeric id.
func (h *AdminHandler) GetBooking(c echo.Context) error {
    id, ok := pathID(c)
    if !ok {
        return badRequest(c, "invalid id")
    }
    b, err := h.reports.BookingDetail(c.Request().Context(), id)
    if err != nil {
        return writeError(c, h.log, err)
    }
    return c.JSON(http.StatusOK, toView(b, h.cfg, false))
}

type statusReq struct {
    Status string `json:"status"`
}

// UpdateBooking applies an administrative status change.
func (h *AdminHandler) UpdateBooking(c echo.Context) error {
    id, ok := pathID(c)
    if !ok {
        return badRequest(c, "invalid id")
    }
    var req statusReq
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid body")
    }
    ctx := c.Request().Context()
    b, err := h.orch.UpdateStatus(ctx, middleware.Principal(c), id, model.BookingStatus(strings.TrimSpace(req.Status)))
    if err != nil {
        return writeError(c, h.log, err)
    }
    if h.cache != nil {
        h.cache.Purge(ctx)
    }
    return c.JSON(http.StatusOK, toView(b, h.cfg, false))
}

// Schedule returns the seat map of one date, or of the coming week when
// no date is given.
func (h *AdminHandler) Schedule(c echo.Context) error {
    var date *time.Time
    if s := c.QueryParam("date"); s != "" {
        d, err := service.ParseDate(s, h.cfg.Location)
        if err != nil {
            return writeError(c, h.log, err)
        }
        date = &d
    }
    out, err := h.orch.ScheduleOverview(c.Request().Context(), middleware.Principal(c), date)
    if err != nil {
        return writeError(c, h.log, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"schedules": out})
}

// Integrity compares ledger and bookings for one date (default today).
func (h *AdminHandler) Integrity(c echo.Context) error {
    date := time.Now().In(h.cfg.Location)
    if s := c.QueryParam("date"); s != "" {
        d, err := service.ParseDate(s, h.cfg.Location)
        if err != nil {
            return writeError(c, h.log, err)
        }
        date = d
    }
    issues, err := h.orch.Reconcile(c.Request().Context(), date)
    if err != nil {
        return writeError(c, h.log, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"date": model.DateString(date), "issues": issues})
}

func pathID(c echo.Context) (uint64, bool) {
    id, err := strconv.ParseUint(c.Param("id"), 10, 64)
    return id, err == nil && id > 0
}

func atoiOr(s string, d int) int {
    if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
        return n
    }
    return d
}
