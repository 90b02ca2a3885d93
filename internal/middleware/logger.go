package middleware

import (
    "github.com/labstack/echo/v4"
    echomw "github.com/labstack/echo/v4/middleware"
    "github.com/sirupsen/logrus"
)

// RequestLogger logs one structured line per request.  Place it after
// echo's RequestID middleware so the id is available.
func RequestLogger(log logrus.FieldLogger) echo.MiddlewareFunc {
    return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
        LogMethod:    true,
        LogURI:       true,
        LogStatus:    true,
        LogLatency:   true,
        LogRequestID: true,
        LogRemoteIP:  true,
        LogError:     true,
        LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
            entry := log.WithFields(logrus.Fields{
                "method":     v.Method,
                "uri":        v.URI,
                "status":     v.Status,
                "latency":    v.Latency.String(),
                "request_id": v.RequestID,
                "remote_ip":  v.RemoteIP,
            })
            switch {
            case v.Error != nil:
                entry.WithError(v.Error).Error("request failed")
            case v.Status >= 500:
                entry.Error("request")
            default:
                entry.Info("request")
            }
            return nil
        },
    })
}
