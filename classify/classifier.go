package classify

import (
	"strconv"
	"strings"
	"time"
)

// HTTPError is the minimal shape From() needs from a transport error:
// a work function that attaches provider response metadata raises one
// of these (or a plain error) rather than the classifier reaching into
// the wire format itself, which is the post-processing collaborator's
// concern.
type HTTPError struct {
	Status  int
	Message string
	Headers map[string]string
	Cause   error
}

func (h *HTTPError) Error() string { return h.Message }
func (h *HTTPError) Unwrap() error { return h.Cause }

// From classifies err into a *Error, in the priority order documented
// in doc.go. A nil err classifies to nil.
func From(err error) *Error {
	if err == nil {
		return nil
	}

	// Already classified: pass through unchanged.
	if ce, ok := err.(*Error); ok {
		return ce
	}
	var existing *Error
	if As(err, &existing) {
		return existing
	}

	var status int
	var headers map[string]string
	msg := err.Error()
	if he, ok := err.(*HTTPError); ok {
		status = he.Status
		headers = he.Headers
		if he.Message != "" {
			msg = he.Message
		}
	}

	lower := strings.ToLower(msg)

	switch {
	case containsAny(lower, "crumb", "csrf", "cookie", "session expired", "unauthorized"):
		return applyStatus(New(CookieSession, msg), status)

	case status == 429 || strings.Contains(lower, "rate limit"):
		ce := New(RateLimit, msg)
		if d, ok := retryAfterFrom(headers, lower); ok {
			ce.WithRetryAfter(d)
		}
		if headers != nil {
			ce.Context = map[string]any{"headers": headers}
		}
		return applyStatus(ce, status)

	case status == 404 || containsAny(lower, "symbol not found", "no data found"):
		return applyStatus(New(SymbolNotFound, msg), status)

	case status >= 500 && status < 600:
		ce := applyStatus(New(Server, msg), status)
		ce.Transient = status == 502 || status == 503 || status == 504
		return ce

	case containsAny(lower, "timeout", "timed out", "deadline exceeded"):
		return New(Timeout, msg)

	case containsAny(lower, "econnreset", "etimedout", "enotfound", "econnrefused", "connection refused", "no such host"):
		return New(Network, msg)

	case containsAny(lower, "api changed", "unexpected structure"):
		return New(ApiChanged, msg)

	case strings.Contains(lower, "data unavailable"):
		return New(DataUnavailable, msg)

	case containsAny(lower, "incomplete", "partial"):
		return New(PartialData, msg)

	case strings.Contains(lower, "circuit open"):
		return New(CircuitOpen, msg)

	case strings.Contains(lower, "stale cache"):
		return New(CacheStale, msg)

	case containsAny(lower, "null", "undefined"):
		return New(DataUnavailable, msg)

	default:
		return New(Unknown, msg)
	}
}

func applyStatus(e *Error, status int) *Error {
	if status != 0 {
		e.WithStatus(status)
	}
	return e
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// retryAfterFrom extracts a retry-after duration from the
// "retry-after" header (integer seconds, numeric or stringified).
func retryAfterFrom(headers map[string]string, _ string) (time.Duration, bool) {
	if headers != nil {
		for _, key := range []string{"retry-after", "Retry-After"} {
			if v, ok := headers[key]; ok {
				if secs, ok := parseSeconds(v); ok {
					return time.Duration(secs) * time.Second, true
				}
			}
		}
	}
	return 0, false
}

// parseSeconds accepts an integer-seconds string, tolerating
// surrounding whitespace the way stringified headers sometimes do.
func parseSeconds(v string) (int, bool) {
	v = strings.TrimSpace(v)
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
