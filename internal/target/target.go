// Package target parses and validates caller-supplied destination URLs.
package target

import (
	"net"
	"net/url"
	"strconv"

	"relay-gate-go/internal/hostguard"
	"relay-gate-go/internal/model"
)

// Target describes a validated relay destination. Resolve is the only
// producer; a resolved Target is never mutated.
type Target struct {
	Scheme string
	// Hostname exactly as the caller supplied it, case preserved.
	Hostname string
	Port     int
	// Path is the escaped path, empty when the URL has none.
	Path string
	// RawQuery is the query string without the leading '?'.
	RawQuery string
	// Raw is the unmodified url parameter, echoed in failure responses.
	Raw string
}

// Resolve validates a raw destination URL and returns the relay target.
// Validation is purely syntactic: no DNS lookups, no connections. Errors
// are *model.RelayError values carrying the rejection kind.
func Resolve(raw string) (*Target, error) {
	if raw == "" {
		return nil, &model.RelayError{Kind: model.KindInvalidURL, Detail: "empty URL"}
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, &model.RelayError{Kind: model.KindInvalidURL, Detail: err.Error(), Err: err}
	}
	if u.Scheme == "" {
		return nil, &model.RelayError{Kind: model.KindInvalidURL, Detail: "not an absolute URL"}
	}
	if u.Scheme != "https" {
		return nil, &model.RelayError{Kind: model.KindUnsupportedScheme, Detail: u.Scheme}
	}

	hostname := u.Hostname()
	if hostname == "" {
		return nil, &model.RelayError{Kind: model.KindInvalidURL, Detail: "missing hostname"}
	}

	port := 443
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return nil, &model.RelayError{Kind: model.KindInvalidURL, Detail: "invalid port " + p, Err: err}
		}
	}

	if v := hostguard.Classify(hostname); v.Blocked {
		return nil, &model.RelayError{Kind: model.KindForbidden, Detail: v.Rule}
	}

	return &Target{
		Scheme:   u.Scheme,
		Hostname: hostname,
		Port:     port,
		Path:     u.EscapedPath(),
		RawQuery: u.RawQuery,
		Raw:      raw,
	}, nil
}

// PathAndQuery reconstructs the origin-facing request path: escaped path
// plus the raw query when present, substituting "/" when both are empty.
// The parts are carried byte-for-byte; nothing is re-encoded.
func (t *Target) PathAndQuery() string {
	pq := t.Path
	if t.RawQuery != "" {
		pq += "?" + t.RawQuery
	}
	if pq == "" {
		pq = "/"
	}
	return pq
}

// URL assembles the absolute outbound URL for the origin request.
func (t *Target) URL() string {
	return t.Scheme + "://" + net.JoinHostPort(t.Hostname, strconv.Itoa(t.Port)) + t.PathAndQuery()
}
