// Package middleware provides Echo middleware for logging, metrics, and
// request header hygiene.
package middleware

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
)

// TargetHostKey is the Echo context key under which the relay handler stores
// the origin hostname once the target URL has been resolved. The request
// logger picks it up so rejected and relayed requests alike carry the host
// they pointed at.
const TargetHostKey = "relay.target_host"

// RequestLogger returns an Echo middleware that logs each request with slog.
func RequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			res := c.Response()

			attrs := []any{
				"method", req.Method,
				"path", req.URL.Path,
				"status", res.Status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", res.Header().Get(echo.HeaderXRequestID),
				"remote_ip", c.RealIP(),
				"bytes_out", res.Size,
			}
			if host, ok := c.Get(TargetHostKey).(string); ok && host != "" {
				attrs = append(attrs, "target_host", host)
			}

			logger.Info("request", attrs...)

			return err
		}
	}
}
