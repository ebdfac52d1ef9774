package cache

import "time"

// Policy configures per-key-prefix TTLs, capacity, and the SWR window.
type Policy struct {
	// DefaultTTL is used when no prefix in PrefixTTL matches the key and
	// no explicit override is given. If zero, caching is disabled for
	// unmatched keys.
	DefaultTTL time.Duration

	// MaxTTL clamps any effective TTL, including prefix matches and
	// explicit overrides. Zero means no maximum is enforced.
	MaxTTL time.Duration

	// PrefixTTL maps a key prefix (e.g. "quote:", "historical:") to its
	// TTL. The longest matching prefix wins.
	PrefixTTL map[string]time.Duration

	// MaxEntries bounds the LRU. Zero means unbounded.
	MaxEntries int

	// StaleWhileRevalidate is surfaced for callers that want to report
	// the configured SWR window; freshness itself is always derived
	// from StaleRatio against the entry's TTL.
	StaleWhileRevalidate time.Duration
}

// DefaultPolicy returns the default caching policy: 5 minute
// fallback TTL, 24 hour max (the financial family's own TTL, so no
// default prefix gets clamped), with TTLs tuned per upstream data
// family.
func DefaultPolicy() Policy {
	return Policy{
		DefaultTTL: 5 * time.Minute,
		MaxTTL:     24 * time.Hour,
		PrefixTTL: map[string]time.Duration{
			"quote:":      15 * time.Second,
			"historical:": 1 * time.Hour,
			"financial:":  24 * time.Hour,
			"news:":       5 * time.Minute,
			"analysis:":   30 * time.Minute,
		},
		MaxEntries:           10_000,
		StaleWhileRevalidate: 30 * time.Second,
	}
}

// NoCachePolicy returns a policy that disables caching entirely.
func NoCachePolicy() Policy {
	return Policy{}
}

// ShouldCache returns true if caching is enabled by this policy at all.
func (p Policy) ShouldCache() bool {
	if p.DefaultTTL > 0 {
		return true
	}
	for _, ttl := range p.PrefixTTL {
		if ttl > 0 {
			return true
		}
	}
	return false
}

// EffectiveTTL returns the TTL to use for key, applying an explicit
// override first, then the longest matching prefix, then DefaultTTL,
// clamped to MaxTTL.
func (p Policy) EffectiveTTL(key string, override time.Duration) time.Duration {
	ttl := override
	if ttl <= 0 {
		ttl = p.prefixTTL(key)
	}
	if ttl <= 0 {
		ttl = p.DefaultTTL
	}
	if p.MaxTTL > 0 && ttl > p.MaxTTL {
		ttl = p.MaxTTL
	}
	return ttl
}

func (p Policy) prefixTTL(key string) time.Duration {
	var best time.Duration
	bestLen := -1
	for prefix, ttl := range p.PrefixTTL {
		if len(prefix) > bestLen && len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			best = ttl
			bestLen = len(prefix)
		}
	}
	return best
}
