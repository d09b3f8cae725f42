// Package service implements the core relay forwarding logic.
package service

import (
	"fmt"
	"log/slog"
	"net/http"

	"relay-gate-go/internal/model"
	"relay-gate-go/internal/target"
	"relay-gate-go/internal/upstream"
)

// droppedRequestHeaders are hop metadata describing the caller's leg to the
// relay; they must not leak to the origin. Host is rebuilt from the target.
var droppedRequestHeaders = map[string]bool{
	"X-Forwarded-For":   true,
	"X-Forwarded-Host":  true,
	"X-Forwarded-Proto": true,
	"Host":              true,
}

// RelayService forwards caller requests to their resolved origins.
type RelayService struct {
	registry *upstream.Registry
	logger   *slog.Logger
}

// NewRelayService creates a RelayService.
func NewRelayService(r *upstream.Registry, logger *slog.Logger) *RelayService {
	return &RelayService{
		registry: r,
		logger:   logger.With("component", "relay_service"),
	}
}

// Forward sends a RelayRequest to the origin described by the target and
// returns the response with its headers untouched. The relay keeps no
// response cache: every request goes to the origin. The caller is
// responsible for closing the response body.
func (s *RelayService) Forward(rr *model.RelayRequest, t *target.Target) (*model.RelayResponse, error) {
	id := upstream.Derive(t.Hostname, t.Port)
	header := filterRequestHeaders(rr.Header)

	s.logger.Debug("forwarding request",
		"method", rr.Method,
		"backend", id.Name,
		"target_host", t.Hostname,
	)

	resp, err := s.registry.DoStream(rr.Ctx, id, rr.Method, t.URL(), header, rr.Body, rr.ContentLength)
	if err != nil {
		return nil, fmt.Errorf("forward to origin: %w", err)
	}

	return resp, nil
}

// filterRequestHeaders copies the caller's headers minus the dropped set.
// A caller that sent no User-Agent gets none at the origin either: the
// empty value stops the HTTP client from substituting its default.
func filterRequestHeaders(src http.Header) http.Header {
	dst := make(http.Header)
	for key, vals := range src {
		if droppedRequestHeaders[http.CanonicalHeaderKey(key)] {
			continue
		}
		dst[http.CanonicalHeaderKey(key)] = vals
	}
	if _, ok := dst["User-Agent"]; !ok {
		dst.Set("User-Agent", "")
	}
	return dst
}
