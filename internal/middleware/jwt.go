package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
    "net/http" // HTTP status codes for responses
    "strconv"
    "strings" // string utilities for prefix checking and trimming

    "github.com/labstack/echo/v4" // Echo framework used for defining middleware and handlers

    "github.com/waqasameen944/Bus-Booking-System/internal/utils"
)

// Context keys set by JWTAuth.
const (
    principalKey = "principal"
    userIDKey    = "user_id"
    roleKey      = "role"
)

// JWTAuth returns an Echo middleware that validates a Bearer access token and
// stores the authenticated principal in the request context.  The provided
// secret must match the one used when issuing tokens.  Handlers read the
// caller with Principal(c); the plain "user_id" and "role" keys are kept
// for the rate limiter and RequireRole.
func JWTAuth(secret string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            // A valid header starts with "Bearer " followed by the JWT.
            auth := c.Request().Header.Get("Authorization")
            if !strings.HasPrefix(auth, "Bearer ") {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
            }
            raw := strings.TrimPrefix(auth, "Bearer ")

            p, err := utils.ParseAccessToken(secret, raw)
            if err != nil {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
            }

            c.Set(principalKey, p)
            c.Set(userIDKey, strconv.FormatUint(p.ID, 10))
            c.Set(roleKey, p.Role)
            return next(c)
        }
    }
}
