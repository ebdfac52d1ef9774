package classify

import (
	"errors"
	"fmt"
	"time"
)

// Kind is the canonical taxonomy of classified failures.
type Kind int

const (
	// Unknown is the fallthrough kind; retryable by default to
	// maximize recovery when nothing more specific matched.
	Unknown Kind = iota
	// RateLimit is an upstream 429 or a predictive trip; retryable.
	RateLimit
	// CircuitOpen means the breaker refused the call; not retryable
	// at the pipeline level.
	CircuitOpen
	// MaxRetriesExceeded wraps a retry budget exhaustion; terminal.
	MaxRetriesExceeded
	// Timeout is a per-attempt deadline exceeded; retryable.
	Timeout
	// Network is a connectivity failure (refused/dns/reset); retryable.
	Network
	// Server is an upstream 5xx; retryable, 502/503/504 are Transient.
	Server
	// SymbolNotFound is a 404 or an explicit not-found signal; not retryable.
	SymbolNotFound
	// CookieSession is an auth/crumb/csrf/session failure; retryable
	// with a short delay.
	CookieSession
	// DataUnavailable is an explicit absence signal; not retryable.
	DataUnavailable
	// PartialData was retrieved but incomplete; not retryable at the
	// pipeline level — the post-processing collaborator decides.
	PartialData
	// ApiChanged indicates structural drift detected upstream; not retryable.
	ApiChanged
	// CacheStale is a cache-layer signal; not retryable.
	CacheStale
)

// String returns the taxonomy name.
func (k Kind) String() string {
	switch k {
	case RateLimit:
		return "rate_limit"
	case CircuitOpen:
		return "circuit_open"
	case MaxRetriesExceeded:
		return "max_retries_exceeded"
	case Timeout:
		return "timeout"
	case Network:
		return "network"
	case Server:
		return "server"
	case SymbolNotFound:
		return "symbol_not_found"
	case CookieSession:
		return "cookie_session"
	case DataUnavailable:
		return "data_unavailable"
	case PartialData:
		return "partial_data"
	case ApiChanged:
		return "api_changed"
	case CacheStale:
		return "cache_stale"
	default:
		return "unknown"
	}
}

// Attempt is one retry attempt record.
type Attempt struct {
	Index     int
	Delay     time.Duration
	Err       *Error
	Timestamp time.Time
}

// Error is the classified-error tagged union: a sum type over kinds,
// not a string code plus boolean flags. Per-kind fields that don't
// apply to the current Kind are left zero.
type Error struct {
	Kind      Kind
	Message   string
	Cause     error
	Status    *int // upstream HTTP status, nil when not applicable
	Transient bool // true for 502/503/504 within Kind == Server

	// RetryAfter is only meaningful when Kind == RateLimit.
	RetryAfter *time.Duration

	// AttemptHistory is only meaningful when Kind == MaxRetriesExceeded.
	AttemptHistory []Attempt

	// Context carries classification metadata (e.g. raw headers the
	// RetryAfter/limit values were derived from).
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Status != nil {
		return fmt.Sprintf("%s: %s (status %d)", e.Kind, e.Message, *e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/errors.As chains.
func (e *Error) Unwrap() error { return e.Cause }

// IsRetryable reports whether the pipeline's retry layer should
// re-enter the work function for this error.
func (e *Error) IsRetryable() bool {
	switch e.Kind {
	case RateLimit, Timeout, Network, Server, CookieSession, Unknown:
		return true
	default:
		return false
	}
}

// IsRateLimit reports whether this error originated from rate limiting.
func (e *Error) IsRateLimit() bool { return e.Kind == RateLimit }

// Headers returns the upstream response headers attached during
// classification, if any (currently only populated for Kind ==
// RateLimit, where the adaptive throttle needs them).
func (e *Error) Headers() (map[string]string, bool) {
	if e.Context == nil {
		return nil, false
	}
	h, ok := e.Context["headers"].(map[string]string)
	return h, ok
}

// SuggestedAction returns a short actionable string for user-visible
// failure surfaces.
func (e *Error) SuggestedAction() string {
	switch e.Kind {
	case RateLimit:
		if e.RetryAfter != nil {
			return fmt.Sprintf("retry after %s", e.RetryAfter)
		}
		return "retry with backoff"
	case CircuitOpen:
		return "upstream is unhealthy; serving cached or fallback data"
	case MaxRetriesExceeded:
		return "retry budget exhausted; try again later"
	case Timeout:
		return "retry; upstream did not respond in time"
	case Network:
		return "retry; connectivity issue reaching upstream"
	case Server:
		return "retry; upstream returned a server error"
	case SymbolNotFound:
		return "verify the requested symbol/endpoint exists"
	case CookieSession:
		return "retry shortly; session/crumb needs refreshing"
	case DataUnavailable:
		return "no data available for this request"
	case PartialData:
		return "data is incomplete; consider allow_partial handling"
	case ApiChanged:
		return "upstream response structure changed; collaborator needs an update"
	case CacheStale:
		return "serving stale cached data"
	default:
		return "unexpected error; retried as a last resort"
	}
}

// New constructs a classify.Error of the given kind with a message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs a classify.Error of the given kind, preserving cause.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithRetryAfter attaches a retry-after duration and returns the receiver.
func (e *Error) WithRetryAfter(d time.Duration) *Error {
	e.RetryAfter = &d
	return e
}

// WithStatus attaches an upstream HTTP status and returns the receiver.
func (e *Error) WithStatus(status int) *Error {
	e.Status = &status
	return e
}

// As supports errors.As(err, &target) where target is **classify.Error.
func As(err error, target **Error) bool {
	return errors.As(err, target)
}
