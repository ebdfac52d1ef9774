// Package pipeline composes the cache, circuit breaker, rate limiter,
// and retry policy into the single entry point a caller uses to fetch
// data from a rate-limited, occasionally-unavailable upstream.
//
// The composition order is fixed: Cache wraps CircuitBreaker wraps
// RateLimiter wraps Retry wraps the caller's produce function. Retry
// sits innermost so that a string of retried attempts counts as a
// single trip against the breaker — only a fully-exhausted retry
// budget (or a non-retryable failure) is recorded as one breaker
// failure. The rate limiter sits between them: one admission (one
// concurrency slot, one token) covers the entire retry sequence for a
// single logical Execute call, and the cache sits outside everything
// so a fresh or stale hit never touches the breaker or limiter at all.
//
// On a classified CircuitOpen or RateLimit failure, Execute consults
// the cache for any entry under the fingerprint, even an expired one,
// and serves it as a last-resort fallback instead of propagating the
// error.
package pipeline
