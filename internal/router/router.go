package router // router defines how HTTP routes are registered for the API

import (
    "database/sql"

    "github.com/labstack/echo/v4" // import the Echo web framework to handle routing

    "github.com/waqasameen944/Bus-Booking-System/internal/handler"    // import the handlers that implement business logic
    "github.com/waqasameen944/Bus-Booking-System/internal/middleware" // import middleware for JWT authentication and role enforcement
    "github.com/waqasameen944/Bus-Booking-System/internal/model"
)

// RegisterRoutes registers routes that do not require authentication and
// are not part of the API, currently only the health check.
func RegisterRoutes(e *echo.Echo, db *sql.DB) {
    e.GET("/healthz", handler.Health(db))
}

// RegisterAuth registers the authentication routes under /api/auth.
// Register and login are public; reading or changing the profile needs a
// valid access token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
    g := e.Group("/api/auth")
    g.POST("/register", a.Register)
    g.POST("/login", a.Login)
    g.GET("/profile", a.Profile,
        middleware.JWTAuth(jwtSecret),
        middleware.RequireRole(model.RoleUser, model.RoleAdmin))
    g.PUT("/profile", a.UpdateProfile,
        middleware.JWTAuth(jwtSecret),
        middleware.RequireRole(model.RoleUser, model.RoleAdmin))
}
