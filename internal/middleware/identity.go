package middleware

// identity.go holds the accessors for the caller identity that JWTAuth
// stores in the Echo context.

import (
    "github.com/labstack/echo/v4"

    "github.com/waqasameen944/Bus-Booking-System/internal/model"
)

// Principal returns the authenticated caller, or the zero Principal when
// the route is not behind JWTAuth.
func Principal(c echo.Context) model.Principal {
    if p, ok := c.Get(principalKey).(model.Principal); ok {
        return p
    }
    return model.Principal{}
}

// userID returns the caller's id for rate-limit keys, or "anon" when no
// user is authenticated.
func userID(c echo.Context) string {
    if s, ok := c.Get(userIDKey).(string); ok && s != "" {
        return s
    }
    return "anon"
}
