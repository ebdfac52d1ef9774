package config

import (
	"time"

	"github.com/finflux/marketops/cache"
	"github.com/finflux/marketops/circuit"
	"github.com/finflux/marketops/classify"
	"github.com/finflux/marketops/observe"
	"github.com/finflux/marketops/pipeline"
	"github.com/finflux/marketops/ratelimit"
	"github.com/finflux/marketops/retry"
)

// ToRateLimitConfig maps the rate_limit and queue option groups onto a
// ratelimit.Config. Queue.MaxSize/Concurrency, when nonzero, override
// RateLimit.MaxQueueSize/MaxRequests' concurrency half, since both
// groups can express the same underlying knob.
func (c *Config) ToRateLimitConfig() ratelimit.Config {
	rl := c.RateLimit

	maxConcurrent := rl.MaxRequests
	if c.Queue.Concurrency > 0 {
		maxConcurrent = c.Queue.Concurrency
	}
	maxQueueSize := rl.MaxQueueSize
	if c.Queue.MaxSize > 0 {
		maxQueueSize = c.Queue.MaxSize
	}

	return ratelimit.Config{
		Burst:                  rl.MaxRequests,
		RefillPerSecond:        rl.TokenRefillRate,
		MaxConcurrent:          maxConcurrent,
		MaxQueueSize:           maxQueueSize,
		PerEndpointMaxInFlight: rl.PerEndpointMaxInFlight,
		MinuteLimit:            rl.RequestsPerMinute,
		HourLimit:              rl.RequestsPerHour,
		AdaptiveMin:            rl.AdaptiveMin,
		AdaptiveMax:            rl.AdaptiveMax,
	}
}

// ToRetryConfig maps the retry option group onto a retry.Config,
// wiring RetryableStatusCodes/RetryableErrorCodes into ForceRetryable.
func (c *Config) ToRetryConfig() retry.Config {
	r := c.Retry

	var strategy retry.Strategy
	switch r.Strategy {
	case "linear":
		strategy = retry.Linear
	case "fixed":
		strategy = retry.Fixed
	default:
		strategy = retry.Exponential
	}

	statusCodes := make(map[int]bool, len(r.RetryableStatusCodes))
	for _, code := range r.RetryableStatusCodes {
		statusCodes[code] = true
	}
	errorCodes := make(map[string]bool, len(r.RetryableErrorCodes))
	for _, code := range r.RetryableErrorCodes {
		errorCodes[code] = true
	}

	var forceRetryable func(*classify.Error) bool
	if len(statusCodes) > 0 || len(errorCodes) > 0 {
		forceRetryable = func(ce *classify.Error) bool {
			if ce.Status != nil && statusCodes[*ce.Status] {
				return true
			}
			return errorCodes[ce.Kind.String()]
		}
	}

	return retry.Config{
		Enabled:        r.Enabled,
		MaxRetries:     r.MaxRetries,
		InitialDelay:   time.Duration(r.InitialDelayMs) * time.Millisecond,
		MaxDelay:       time.Duration(r.MaxDelayMs) * time.Millisecond,
		Strategy:       strategy,
		Multiplier:     r.BackoffMultiplier,
		Jitter:         r.Jitter,
		ForceRetryable: forceRetryable,
	}
}

// ToCircuitBreakerConfig maps the circuit_breaker option group onto a
// circuit.Config. error_threshold_percentage and volume_threshold
// together express a ratio-based trip condition; circuit.Config takes
// an absolute failure count, so the percentage is applied against the
// volume to derive one (rounded up, minimum 1).
func (c *Config) ToCircuitBreakerConfig() circuit.Config {
	cb := c.CircuitBreaker

	thresholdFailures := cb.VolumeThreshold
	if cb.VolumeThreshold > 0 && cb.ErrorThresholdPercentage > 0 {
		thresholdFailures = int((float64(cb.VolumeThreshold)*cb.ErrorThresholdPercentage)/100 + 0.999999)
		if thresholdFailures < 1 {
			thresholdFailures = 1
		}
	}

	return circuit.Config{
		ThresholdFailures:  thresholdFailures,
		ThresholdSuccesses: cb.HalfOpenMaxAttempts,
		ResetTimeout:       time.Duration(cb.ResetTimeoutMs) * time.Millisecond,
		MonitoringWindow:   time.Duration(cb.RollingCountTimeoutMs) * time.Millisecond,
	}
}

// ToCachePolicy maps the cache option group onto a cache.Policy,
// including the per-prefix TTL table for the upstream data families.
// Cache.Enabled == false maps to a zero-TTL policy, which
// Policy.ShouldCache reports as "don't cache" without the pipeline
// needing a separate enabled flag to check.
func (c *Config) ToCachePolicy() cache.Policy {
	if !c.Cache.Enabled {
		return cache.Policy{}
	}

	prefixTTL := make(map[string]time.Duration)
	for prefix, ms := range map[string]int{
		"quote:":      c.Cache.QuoteTTLMs,
		"historical:": c.Cache.HistoricalTTLMs,
		"financial:":  c.Cache.FinancialTTLMs,
		"news:":       c.Cache.NewsTTLMs,
		"analysis:":   c.Cache.AnalysisTTLMs,
	} {
		if ms > 0 {
			prefixTTL[prefix] = time.Duration(ms) * time.Millisecond
		}
	}

	return cache.Policy{
		DefaultTTL:           time.Duration(c.Cache.TTLMs) * time.Millisecond,
		MaxTTL:               time.Duration(c.Cache.MaxTTLMs) * time.Millisecond,
		PrefixTTL:            prefixTTL,
		MaxEntries:           c.Cache.MaxEntries,
		StaleWhileRevalidate: time.Duration(c.Cache.StaleWhileRevalidate) * time.Millisecond,
	}
}

// ToPipelineConfig composes the four core option groups into a
// pipeline.Config, attaching obs (which may be nil) as the Observer.
// A host wanting finer control over any one group can construct
// pipeline.Config directly instead of using this convenience.
func (c *Config) ToPipelineConfig(obs observe.Observer) pipeline.Config {
	return pipeline.Config{
		Cache:          c.ToCachePolicy(),
		RateLimit:      c.ToRateLimitConfig(),
		Retry:          c.ToRetryConfig(),
		CircuitBreaker: c.ToCircuitBreakerConfig(),
		Observer:       obs,
	}
}
