// Package model defines shared types for the relay.
package model

import (
	"context"
	"io"
	"net/http"
)

// RelayRequest represents an inbound request to be relayed to a
// caller-chosen origin.
type RelayRequest struct {
	Ctx    context.Context
	Method string
	Header http.Header
	Body   io.ReadCloser

	// ContentLength mirrors the inbound request's declared body length so
	// the origin sees the same framing. -1 means unknown (chunked).
	ContentLength int64
}

// RelayResponse represents the origin response to be streamed back.
type RelayResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}
