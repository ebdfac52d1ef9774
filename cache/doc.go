// Package cache is a bounded in-memory store for upstream responses,
// combining LRU eviction, per-key-prefix TTLs, and stale-while-revalidate
// (SWR) semantics with request coalescing.
//
// # Freshness
//
// An entry's age relative to its TTL puts it in one of three states:
//
//	fresh:   age < TTL × 0.5        — [MemoryCache.Get] returns it outright
//	stale:   TTL × 0.5 ≤ age < TTL  — returned, but a background refresh is due
//	expired: age ≥ TTL              — treated as a miss
//
// [MemoryCache.GetWithRevalidation] is the SWR entry point: fresh entries
// return immediately; stale entries return immediately and schedule a
// background produce call; absent or expired entries block the caller on
// produce. At most one produce call runs per key at a time — concurrent
// callers for the same key coalesce onto the in-flight call via
// golang.org/x/sync/singleflight rather than each starting their own.
//
// # Core components
//
//   - [Cache]: the full read/write/batch/SWR interface.
//   - [MemoryCache]: the only implementation — container/list-backed LRU
//     with O(1) lookup and promotion.
//   - [Policy]: per-key-prefix TTL table, stale ratio, and capacity limits.
//   - [Fingerprint]: deterministic cache-key derivation from request
//     parameters, for callers that don't already have one.
//
// # Thread safety
//
// [MemoryCache] is safe for concurrent use; a single mutex guards the LRU
// list and index.
package cache
