package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"relay-gate-go/internal/config"
	"relay-gate-go/internal/secrets"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	secrets *secrets.Store
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, store *secrets.Store, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, secrets: store, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status returns relay status information. key_configured reports whether a
// real relay key is in place (config override or secrets file) as opposed to
// the development fallback; the key itself never appears here.
func (h *HealthHandler) Status(c echo.Context) error {
	keyConfigured := h.cfg.Auth.APIKey != "" || !h.secrets.Fallback()
	return c.JSON(http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        string(h.version),
		"key_configured": keyConfigured,
	})
}
