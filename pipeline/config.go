package pipeline

import (
	"github.com/finflux/marketops/cache"
	"github.com/finflux/marketops/circuit"
	"github.com/finflux/marketops/observe"
	"github.com/finflux/marketops/ratelimit"
	"github.com/finflux/marketops/retry"
)

// Config aggregates the cache, rate_limit, retry, and circuit_breaker
// option groups. queue is folded into ratelimit.Config
// (MaxConcurrent/MaxQueueSize); data_completion belongs to the
// post-processing collaborator, not this core, and has no field here.
type Config struct {
	Cache          cache.Policy
	RateLimit      ratelimit.Config
	Retry          retry.Config
	CircuitBreaker circuit.Config

	// Observer, if set, instruments the pipeline (observe.Instruments):
	// a span plus call counter and duration histogram per protected
	// upstream call, counters for stale-cache fallbacks, retry
	// attempts, and breaker transitions, observable gauges over the
	// stats snapshot, and the structured log lines the pipeline emits.
	// Nil disables all of it.
	Observer observe.Observer
}

// PartialConfig is the payload for UpdateConfig: any non-nil group
// replaces the corresponding live component's configuration wholesale.
// Groups left nil are untouched.
type PartialConfig struct {
	RateLimit      *ratelimit.Config
	Retry          *retry.Config
	CircuitBreaker *circuit.Config
}
