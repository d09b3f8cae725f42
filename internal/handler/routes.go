package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"relay-gate-go/internal/config"
	"relay-gate-go/internal/metrics"
)

// RegisterRoutes wires all route handlers onto the Echo instance. The relay
// itself owns the root route; everything a caller wants relayed arrives as
// ?url= on "/".
func RegisterRoutes(e *echo.Echo, relay *RelayHandler, health *HealthHandler, m *metrics.Metrics, cfg *config.Config) {
	e.GET("/healthz", health.Healthz)
	e.GET("/relay/status", health.Status)

	if cfg.Metrics.Enabled {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}

	e.Any("/", relay.Handle)
}
