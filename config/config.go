// Package config loads and validates the host-supplied configuration
// surface: rate limiting, caching, retry, circuit breaker, queueing,
// and post-processing data-completion option groups, then maps the
// first four onto the constructor configs the core packages expect.
//
// Loading env-var overrides is the host's responsibility in the
// layered sense that the resilience core itself never reads the
// environment — but a complete running service needs somewhere that
// does, so this package plays that role the way the rest of this
// module's ambient stack (observe, health, secret) plays theirs.
package config

import (
	"context"
	"fmt"

	"github.com/caarlos0/env/v11"

	"github.com/finflux/marketops/secret"
)

// DefaultEnvPrefix is the fixed namespace string prepended to every
// env-var override name, absent an explicit prefix at Load time.
const DefaultEnvPrefix = "MARKETOPS_"

// RateLimitConfig is the rate_limit option group.
type RateLimitConfig struct {
	// Strategy names the admission algorithm. The reference
	// implementation always runs the full token-bucket +
	// sliding-window + adaptive-throttle chain regardless of which
	// recognized value is set here; Strategy is validated against the
	// enum for forward compatibility with a host that branches on it,
	// not consulted by this package's own mapping.
	Strategy string `env:"RATE_LIMIT_STRATEGY" envDefault:"token-bucket"`

	// MaxRequests doubles as both the token-bucket capacity and the
	// global concurrency cap, per this option's documented effect.
	MaxRequests int `env:"RATE_LIMIT_MAX_REQUESTS" envDefault:"20"`

	// WindowMS is accepted and validated but not mapped: the sliding
	// windows this core implements are fixed at one minute and one
	// hour (RequestsPerMinute/RequestsPerHour below), not an arbitrary
	// configurable span.
	WindowMS int `env:"RATE_LIMIT_WINDOW_MS" envDefault:"60000"`

	TokenRefillRate   float64 `env:"RATE_LIMIT_TOKEN_REFILL_RATE" envDefault:"5"`
	RequestsPerMinute int     `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" envDefault:"60"`
	RequestsPerHour   int     `env:"RATE_LIMIT_REQUESTS_PER_HOUR" envDefault:"2000"`

	// The remaining knobs are implementation extensions the option
	// table doesn't name but ratelimit.Limiter supports; they default
	// to the limiter's own zero-value behavior (unbounded/disabled).
	MaxQueueSize           int `env:"RATE_LIMIT_MAX_QUEUE_SIZE" envDefault:"0"`
	PerEndpointMaxInFlight int `env:"RATE_LIMIT_PER_ENDPOINT_MAX_IN_FLIGHT" envDefault:"0"`
	AdaptiveMin            int `env:"RATE_LIMIT_ADAPTIVE_MIN" envDefault:"0"`
	AdaptiveMax            int `env:"RATE_LIMIT_ADAPTIVE_MAX" envDefault:"0"`
}

// CacheConfig is the cache option group.
type CacheConfig struct {
	Enabled bool   `env:"CACHE_ENABLED" envDefault:"true"`
	Store   string `env:"CACHE_STORE" envDefault:"memory"`

	TTLMs                int `env:"CACHE_TTL_MS" envDefault:"300000"`
	MaxTTLMs             int `env:"CACHE_MAX_TTL_MS" envDefault:"86400000"`
	MaxEntries           int `env:"CACHE_MAX_ENTRIES" envDefault:"10000"`
	StaleWhileRevalidate int `env:"CACHE_STALE_WHILE_REVALIDATE_MS" envDefault:"0"`

	// Per-prefix TTLs for the upstream data families. Defaults match
	// cache.DefaultPolicy; a zero or negative override removes the
	// prefix entry so those keys fall back to TTLMs.
	QuoteTTLMs      int `env:"CACHE_TTL_QUOTE_MS" envDefault:"15000"`
	HistoricalTTLMs int `env:"CACHE_TTL_HISTORICAL_MS" envDefault:"3600000"`
	FinancialTTLMs  int `env:"CACHE_TTL_FINANCIAL_MS" envDefault:"86400000"`
	NewsTTLMs       int `env:"CACHE_TTL_NEWS_MS" envDefault:"300000"`
	AnalysisTTLMs   int `env:"CACHE_TTL_ANALYSIS_MS" envDefault:"1800000"`

	// StoreDSN addresses a non-memory Store (redis/file) once one
	// exists. It may hold a literal connection string, a
	// ${ENV_VAR} reference, or a secretref:<provider>:<ref> reference;
	// Load resolves it through a secret.Resolver either way.
	StoreDSN string `env:"CACHE_STORE_DSN"`
}

// RetryConfig is the retry option group.
type RetryConfig struct {
	Enabled            bool    `env:"RETRY_ENABLED" envDefault:"true"`
	MaxRetries         int     `env:"RETRY_MAX_RETRIES" envDefault:"3"`
	InitialDelayMs     int     `env:"RETRY_INITIAL_DELAY_MS" envDefault:"100"`
	MaxDelayMs         int     `env:"RETRY_MAX_DELAY_MS" envDefault:"30000"`
	Strategy           string  `env:"RETRY_STRATEGY" envDefault:"exponential"`
	BackoffMultiplier  float64 `env:"RETRY_BACKOFF_MULTIPLIER" envDefault:"2.0"`
	Jitter             bool    `env:"RETRY_JITTER" envDefault:"true"`

	// RetryableStatusCodes/RetryableErrorCodes extend the fixed
	// classifier taxonomy: an error that classify.Error.IsRetryable()
	// would reject is retried anyway if its Status (or its Kind's
	// string name) matches one of these.
	RetryableStatusCodes []int    `env:"RETRY_RETRYABLE_STATUS_CODES" envSeparator:","`
	RetryableErrorCodes  []string `env:"RETRY_RETRYABLE_ERROR_CODES" envSeparator:","`
}

// CircuitBreakerConfig is the circuit_breaker option group.
type CircuitBreakerConfig struct {
	ErrorThresholdPercentage float64 `env:"CIRCUIT_BREAKER_ERROR_THRESHOLD_PERCENTAGE" envDefault:"50"`
	ResetTimeoutMs           int     `env:"CIRCUIT_BREAKER_RESET_TIMEOUT_MS" envDefault:"30000"`
	RollingCountTimeoutMs    int     `env:"CIRCUIT_BREAKER_ROLLING_COUNT_TIMEOUT_MS" envDefault:"60000"`
	VolumeThreshold          int     `env:"CIRCUIT_BREAKER_VOLUME_THRESHOLD" envDefault:"10"`
	HalfOpenMaxAttempts      int     `env:"CIRCUIT_BREAKER_HALF_OPEN_MAX_ATTEMPTS" envDefault:"1"`
}

// QueueConfig is the queue option group. It folds into RateLimitConfig
// at mapping time; MaxSize/Concurrency become
// ratelimit.Config.MaxQueueSize/MaxConcurrent when set, overriding
// RateLimitConfig's own values for the same knobs.
type QueueConfig struct {
	MaxSize             int    `env:"QUEUE_MAX_SIZE" envDefault:"0"`
	Strategy            string `env:"QUEUE_STRATEGY" envDefault:"fifo"`
	Concurrency         int    `env:"QUEUE_CONCURRENCY" envDefault:"0"`
	TimeoutMs           int    `env:"QUEUE_TIMEOUT_MS" envDefault:"0"`
	ProcessingTimeoutMs int    `env:"QUEUE_PROCESSING_TIMEOUT_MS" envDefault:"0"`
}

// DataCompletionConfig is the data_completion option group. Nothing in
// this core reads it — it governs how the post-processing collaborator
// interprets a partial upstream response — but Config carries it so a
// host has one config surface to load instead of two.
type DataCompletionConfig struct {
	Enabled         bool     `env:"DATA_COMPLETION_ENABLED" envDefault:"false"`
	Level           string   `env:"DATA_COMPLETION_LEVEL" envDefault:"moderate"`
	RequiredFields  []string `env:"DATA_COMPLETION_REQUIRED_FIELDS" envSeparator:","`
	PreferredFields []string `env:"DATA_COMPLETION_PREFERRED_FIELDS" envSeparator:","`
	AllowPartial    bool     `env:"DATA_COMPLETION_ALLOW_PARTIAL" envDefault:"true"`
	FallbackToCache bool     `env:"DATA_COMPLETION_FALLBACK_TO_CACHE" envDefault:"true"`
}

// Config aggregates every recognized option group.
type Config struct {
	RateLimit      RateLimitConfig
	Cache          CacheConfig
	Retry          RetryConfig
	CircuitBreaker CircuitBreakerConfig
	Queue          QueueConfig
	DataCompletion DataCompletionConfig

	// resolver expands ${VAR} and secretref: values in string fields
	// (currently only Cache.StoreDSN); set by Load.
	resolver *secret.Resolver
}

var validRateLimitStrategies = map[string]bool{"token-bucket": true, "fixed-window": true, "sliding-window": true}
var validRetryStrategies = map[string]bool{"exponential": true, "linear": true, "fixed": true}
var validCacheStores = map[string]bool{"memory": true, "redis": true, "file": true}
var validQueueStrategies = map[string]bool{"fifo": true, "lifo": true, "priority": true}
var validDataCompletionLevels = map[string]bool{"strict": true, "moderate": true, "lenient": true}

// Load reads env-var overrides under DefaultEnvPrefix, validates, and
// returns the result. Validation failures are returned, not panicked;
// use MustLoad for fatal-at-startup semantics.
func Load(providers ...secret.Provider) (*Config, error) {
	return LoadWithPrefix(DefaultEnvPrefix, providers...)
}

// LoadWithPrefix is Load with an explicit namespace prefix, for a host
// that supplies its own fixed namespace string instead of the default.
func LoadWithPrefix(prefix string, providers ...secret.Provider) (*Config, error) {
	cfg := &Config{resolver: secret.NewResolver(true, providers...)}

	opts := env.Options{Prefix: prefix}
	if err := env.ParseWithOptions(&cfg.RateLimit, opts); err != nil {
		return nil, fmt.Errorf("config: rate_limit: %w", err)
	}
	if err := env.ParseWithOptions(&cfg.Cache, opts); err != nil {
		return nil, fmt.Errorf("config: cache: %w", err)
	}
	if err := env.ParseWithOptions(&cfg.Retry, opts); err != nil {
		return nil, fmt.Errorf("config: retry: %w", err)
	}
	if err := env.ParseWithOptions(&cfg.CircuitBreaker, opts); err != nil {
		return nil, fmt.Errorf("config: circuit_breaker: %w", err)
	}
	if err := env.ParseWithOptions(&cfg.Queue, opts); err != nil {
		return nil, fmt.Errorf("config: queue: %w", err)
	}
	if err := env.ParseWithOptions(&cfg.DataCompletion, opts); err != nil {
		return nil, fmt.Errorf("config: data_completion: %w", err)
	}

	resolvedDSN, err := cfg.resolver.ResolveValue(context.Background(), cfg.Cache.StoreDSN)
	if err != nil {
		return nil, fmt.Errorf("config: cache.store_dsn: %w", err)
	}
	cfg.Cache.StoreDSN = resolvedDSN

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoad calls Load and panics on error, for callers that want
// fatal-at-startup behavior instead of a propagated error.
func MustLoad(providers ...secret.Provider) *Config {
	cfg, err := Load(providers...)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Validate checks every enum field against the set this implementation
// actually supports, and rejects unimplemented values instead of
// silently treating them as their nearest supported neighbor.
func (c *Config) Validate() error {
	if !validRateLimitStrategies[c.RateLimit.Strategy] {
		return fmt.Errorf("config: rate_limit.strategy %q is not recognized", c.RateLimit.Strategy)
	}
	if c.RateLimit.MaxRequests < 0 {
		return fmt.Errorf("config: rate_limit.max_requests must be >= 0, got %d", c.RateLimit.MaxRequests)
	}

	if c.Cache.Enabled && !validCacheStores[c.Cache.Store] {
		return fmt.Errorf("config: cache.store %q is not recognized", c.Cache.Store)
	}
	if c.Cache.Enabled && c.Cache.Store != "memory" {
		return fmt.Errorf("config: cache.store %q has no implementation in this core; only %q is supported", c.Cache.Store, "memory")
	}

	if !validRetryStrategies[c.Retry.Strategy] {
		return fmt.Errorf("config: retry.strategy %q is not recognized", c.Retry.Strategy)
	}

	if !validQueueStrategies[c.Queue.Strategy] {
		return fmt.Errorf("config: queue.strategy %q is not recognized", c.Queue.Strategy)
	}
	if c.Queue.Strategy != "fifo" {
		return fmt.Errorf("config: queue.strategy %q has no implementation in this core; only %q draining is supported", c.Queue.Strategy, "fifo")
	}

	if c.DataCompletion.Enabled && !validDataCompletionLevels[c.DataCompletion.Level] {
		return fmt.Errorf("config: data_completion.level %q is not recognized", c.DataCompletion.Level)
	}

	return nil
}
