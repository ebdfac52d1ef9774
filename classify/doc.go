// Package classify maps upstream failures — transport errors, status
// codes, and provider-specific messages — onto a canonical error kind
// with actionable metadata.
//
// # Ecosystem Position
//
// classify sits underneath every other resilience package: retry,
// circuit, and pipeline all branch on the Kind a classify.Error
// carries rather than on raw error strings or status codes.
//
//	┌────────────────────────────────────────────────────────────┐
//	│                  Resilience Pipeline                       │
//	├────────────────────────────────────────────────────────────┤
//	│   upstream error ──▶ classify.From ──▶ *classify.Error      │
//	│                           │                                │
//	│            ┌──────────────┼──────────────┐                 │
//	│            ▼              ▼              ▼                 │
//	│         retry          circuit         pipeline             │
//	│      (IsRetryable)   (any error)    (fallback routing)      │
//	└────────────────────────────────────────────────────────────┘
//
// # Tagged union, not bools-and-strings
//
// The upstream provider identifies failures with string codes and ad
// hoc flags. classify.Error instead carries one Kind (see the Kind
// constants) with per-kind fields: RetryAfter is only meaningful on
// RateLimit, AttemptHistory only on MaxRetriesExceeded. Treat it as a
// sum type — switch on Kind, not on message content, once classified.
//
// # Classification order
//
// From() tries, in order: an already-classified *classify.Error is
// returned unchanged; cookie/CSRF/crumb keywords; HTTP 429 or "rate
// limit"; HTTP 404 or "symbol not found"/"no data found"; HTTP 5xx
// (502/503/504 flagged transient); timeout keywords; network keywords
// (ECONNRESET, ETIMEDOUT, ENOTFOUND, ECONNREFUSED); "api changed"/
// "unexpected structure"; "data unavailable"; "incomplete"/"partial";
// "circuit open"; "stale cache"; null/undefined keywords → DataUnavailable;
// everything else → Unknown, marked retryable as a last resort.
package classify
