package handler

import (
	"crypto/subtle"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"relay-gate-go/internal/config"
	"relay-gate-go/internal/metrics"
	"relay-gate-go/internal/middleware"
	"relay-gate-go/internal/model"
	"relay-gate-go/internal/secrets"
	"relay-gate-go/internal/service"
	"relay-gate-go/internal/target"
)

// RelayHandler admits authenticated requests and relays them to the origin
// named by their url parameter.
type RelayHandler struct {
	service *service.RelayService
	secrets *secrets.Store
	cfg     *config.Config
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewRelayHandler creates a RelayHandler. The metrics parameter is optional;
// pass nil to disable reject counting.
func NewRelayHandler(svc *service.RelayService, store *secrets.Store, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) *RelayHandler {
	return &RelayHandler{
		service: svc,
		secrets: store,
		cfg:     cfg,
		metrics: m,
		logger:  logger.With("component", "relay_handler"),
	}
}

// Handle runs the admission checks in a fixed order (API key, url parameter
// presence, URL validity, scheme, host classification), forwards the request
// to the origin, and streams the response back. The first failing check
// wins; no connection leaves the relay before all of them pass.
func (h *RelayHandler) Handle(c echo.Context) error {
	req := c.Request()

	if !h.authorized(c.QueryParam("key")) {
		return h.reject(c, &model.RelayError{Kind: model.KindUnauthorized})
	}

	rawURL := c.QueryParam("url")
	if rawURL == "" {
		return h.reject(c, &model.RelayError{Kind: model.KindMissingParameter})
	}

	t, err := target.Resolve(rawURL)
	if err != nil {
		return h.rejectErr(c, rawURL, err)
	}

	c.Set(middleware.TargetHostKey, t.Hostname)

	rr := &model.RelayRequest{
		Ctx:           req.Context(),
		Method:        req.Method,
		Header:        req.Header,
		Body:          req.Body,
		ContentLength: req.ContentLength,
	}

	resp, err := h.service.Forward(rr, t)
	if err != nil {
		return h.rejectErr(c, rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Relay origin response headers as-is; adding or filtering anything
	// here would break the pass-through contract.
	for key, vals := range resp.Header {
		for _, v := range vals {
			c.Response().Header().Add(key, v)
		}
	}

	c.Response().WriteHeader(resp.StatusCode)

	// Stream the origin body directly to the caller. If io.Copy fails
	// mid-stream (e.g. client disconnect, origin stall), the HTTP status
	// code has already been sent, so the caller receives a truncated
	// response with the original status. This is an inherent trade-off of
	// streaming relays — we log the error for observability.
	if _, err := io.Copy(c.Response(), resp.Body); err != nil {
		h.logger.Error("streaming response body",
			"err", err,
			"target_host", t.Hostname,
		)
	}

	return nil
}

// authorized compares the presented key against the configured relay key in
// constant time. A direct config override beats the secrets store.
func (h *RelayHandler) authorized(key string) bool {
	want := h.cfg.Auth.APIKey
	if want == "" {
		want = h.secrets.APIKey()
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(want)) == 1
}

// rejectErr normalizes err into a RelayError and rejects the request.
// Anything that is not already a RelayError happened while talking to the
// origin, so it maps to the origin-failure kind with the raw url echoed.
func (h *RelayHandler) rejectErr(c echo.Context, rawURL string, err error) error {
	var rerr *model.RelayError
	if !errors.As(err, &rerr) {
		rerr = &model.RelayError{Kind: model.KindUpstreamFailure, Detail: err.Error(), Err: err}
	}
	if rerr.Target == "" {
		rerr.Target = rawURL
	}
	return h.reject(c, rerr)
}

// reject writes the JSON error body for the rejection kind and records it.
// Admission failures log at warn; origin failures log at error.
func (h *RelayHandler) reject(c echo.Context, rerr *model.RelayError) error {
	if h.metrics != nil {
		h.metrics.RejectsTotal.WithLabelValues(rerr.Kind.String()).Inc()
	}

	switch rerr.Kind {
	case model.KindUnauthorized:
		h.logger.Warn("request rejected", "reason", rerr.Kind.String())
		return c.JSON(http.StatusForbidden, map[string]string{
			"error":   "Unauthorized",
			"message": "Invalid or missing API key",
		})

	case model.KindMissingParameter:
		h.logger.Warn("request rejected", "reason", rerr.Kind.String())
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Missing 'url' query parameter",
			"usage": "Add ?url=https://example.com/path to your request",
		})

	case model.KindInvalidURL:
		h.logger.Warn("request rejected", "reason", rerr.Kind.String(), "detail", rerr.Detail)
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error":   "Invalid URL provided",
			"message": rerr.Detail,
		})

	case model.KindUnsupportedScheme:
		h.logger.Warn("request rejected", "reason", rerr.Kind.String(), "scheme", rerr.Detail)
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Only https URLs are supported",
			"usage": "Use https:// URLs (e.g., ?url=https://example.com/path)",
		})

	case model.KindForbidden:
		h.logger.Warn("request rejected", "reason", rerr.Kind.String(), "rule", rerr.Detail)
		return c.JSON(http.StatusForbidden, map[string]string{
			"error":   "Forbidden",
			"message": "Requests to private or internal hosts are not allowed",
		})

	default:
		h.logger.Error("origin fetch failed",
			"err", rerr.Detail,
			"target", rerr.Target,
		)
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error":   "Failed to fetch from origin",
			"details": rerr.Detail,
			"target":  rerr.Target,
		})
	}
}
