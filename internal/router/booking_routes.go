package router

import (
    "github.com/labstack/echo/v4"

    "github.com/waqasameen944/Bus-Booking-System/internal/handler"
)

// RegisterBookings registers the public booking and payment endpoints
// under /api.  Passengers book without an account; the booking code is
// their handle.  limit wraps reservation creation only.
func RegisterBookings(e *echo.Echo, b *handler.BookingHandler, p *handler.PaymentHandler, limit echo.MiddlewareFunc) {
    g := e.Group("/api/bookings")
    g.GET("/availability/:date", b.Availability)
    g.POST("", b.Create, limit)
    g.GET("/:code", b.Get)
    g.DELETE("/:code", b.Cancel)

    pay := e.Group("/api/payments")
    pay.POST("/intent", p.Intent)
    pay.POST("/confirm", p.Confirm)
    // Signed by the provider; no JWT.
    pay.POST("/webhook", p.Webhook)
}
