package router

import (
    "github.com/labstack/echo/v4"

    "github.com/waqasameen944/Bus-Booking-System/internal/handler"
    "github.com/waqasameen944/Bus-Booking-System/internal/middleware"
    "github.com/waqasameen944/Bus-Booking-System/internal/model"
)

// RegisterAdmin registers admin-scoped endpoints under /api/admin.  All
// routes require a valid JWT and the admin role.  cache wraps the
// dashboard only; it is purged whenever an admin changes a booking.
func RegisterAdmin(e *echo.Echo, h *handler.AdminHandler, jwtSecret string, cache echo.MiddlewareFunc) {
    g := e.Group(
        "/api/admin",
        middleware.JWTAuth(jwtSecret),
        middleware.RequireRole(model.RoleAdmin),
    )
    g.GET("/dashboard", h.Dashboard, cache)
    g.GET("/bookings", h.ListBookings)
    g.GET("/bookings/:id", h.GetBooking)
    g.PATCH("/bookings/:id", h.UpdateBooking)
    g.GET("/schedule", h.Schedule)
    g.GET("/integrity", h.Integrity)
}
