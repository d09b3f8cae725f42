package model

// Kind classifies relay errors into the fixed set of caller-visible
// outcomes. Every rejected request maps to exactly one kind.
type Kind int

const (
	// KindUnauthorized: the key query parameter is missing or wrong.
	KindUnauthorized Kind = iota + 1
	// KindMissingParameter: the url query parameter is absent.
	KindMissingParameter
	// KindInvalidURL: the url parameter does not parse as an absolute URL
	// with a hostname.
	KindInvalidURL
	// KindUnsupportedScheme: the target URL scheme is not https.
	KindUnsupportedScheme
	// KindForbidden: the target host classified as private or internal.
	KindForbidden
	// KindUpstreamFailure: building, connecting, or reading the origin
	// request failed.
	KindUpstreamFailure
)

// String returns the snake_case label used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindMissingParameter:
		return "missing_parameter"
	case KindInvalidURL:
		return "invalid_url"
	case KindUnsupportedScheme:
		return "unsupported_scheme"
	case KindForbidden:
		return "forbidden_host"
	case KindUpstreamFailure:
		return "upstream_failure"
	default:
		return "unknown"
	}
}

// RelayError is a pipeline error carrying its kind. The handler maps each
// kind to a fixed HTTP status and JSON body.
type RelayError struct {
	Kind Kind

	// Detail explains the cause. It is echoed to the caller only for the
	// kinds whose response body carries a message or details field; for
	// the others it serves logging alone.
	Detail string

	// Target is the raw url parameter, echoed on upstream failures.
	Target string

	// Err is the underlying cause, if any.
	Err error
}

func (e *RelayError) Error() string {
	if e.Detail != "" {
		return e.Kind.String() + ": " + e.Detail
	}
	return e.Kind.String()
}

func (e *RelayError) Unwrap() error { return e.Err }
