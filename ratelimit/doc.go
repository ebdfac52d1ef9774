// Package ratelimit admits or rejects calls to the upstream provider
// so that token-bucket capacity, per-endpoint sliding windows, and
// global/per-endpoint concurrency are all respected, and so that
// adaptive throttling engages before a hard upstream limit is hit.
//
// # Admission algorithm
//
// Limiter.Admit runs a six-step algorithm in order: per-endpoint
// in-flight cap, sliding-window tracking, global concurrency
// (queueing if full), token-bucket consumption, predictive adaptive
// check, then counter increment. Release (always deferred by the
// caller) decrements both in-flight counters and wakes one queued
// waiter.
//
// # Components
//
//   - [TokenBucket]: capacity/refill-rate bucket.
//   - internal/window.Bucketed: per-endpoint minute/hour trackers.
//   - [Queue]: FIFO wait queue for the global concurrency cap.
//   - [Adaptive]: effective-limit adjustment from x-ratelimit-* / retry-after headers.
package ratelimit
