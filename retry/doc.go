// Package retry re-executes a work function under a bounded retry
// budget, with error-classification-driven delay.
//
// Unlike a plain exponential-backoff loop, the delay computed from the
// chosen BackoffStrategy is then adjusted by the classified error's
// Kind: a RateLimit error with a server-supplied RetryAfter overrides
// the computed delay outright, a CookieSession failure retries fast,
// and transient 502/503/504 responses get a longer delay than other
// retryable errors. See Policy.adjustForKind.
//
// Exhausting the retry budget returns a *classify.Error with
// Kind == MaxRetriesExceeded carrying the full AttemptHistory, not a
// bare sentinel — callers that want the retry trail (for logging, or
// to decide on a stale-cache fallback) have it without re-deriving it.
package retry
