package health

import (
	"context"
	"fmt"
	"net/http"

	"github.com/finflux/marketops/circuit"
	"github.com/finflux/marketops/pipeline"
)

// PipelineCheckerConfig tunes the thresholds NewPipelineChecker uses to
// turn queue pressure into a Degraded verdict. An Open circuit breaker
// is always Unhealthy and a HalfOpen breaker is always Degraded,
// regardless of these thresholds.
type PipelineCheckerConfig struct {
	// DegradedQueueLength marks the pipeline Degraded when the rate
	// limiter's wait queue grows at or past this length even though
	// the breaker is Closed. Zero disables this check.
	DegradedQueueLength int
}

// pipelineChecker reports liveness/readiness from a running Pipeline's
// own GetStats groups: the circuit breaker state is the primary
// signal, queue length is a secondary one.
type pipelineChecker struct {
	p      *pipeline.Pipeline
	config PipelineCheckerConfig
}

// NewPipelineChecker adapts a Pipeline into a Checker for wiring into
// an Aggregator (e.g. alongside a CheckerFunc pinging a downstream
// dependency) and the HTTP handlers in this package.
func NewPipelineChecker(p *pipeline.Pipeline, config ...PipelineCheckerConfig) Checker {
	var cfg PipelineCheckerConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	return &pipelineChecker{p: p, config: cfg}
}

func (c *pipelineChecker) Name() string { return "resilience_pipeline" }

func (c *pipelineChecker) Check(ctx context.Context) Result {
	stats := c.p.GetStats()

	details := map[string]any{
		"circuit_state":     stats.CircuitBreaker.State.String(),
		"queue_length":      stats.RateLimiter.QueueLength,
		"requests":          stats.Server.RequestCount,
		"errors":            stats.Server.ErrorCount,
		"pipeline_state":    stats.Server.State.String(),
		"cache_hit_rate":    stats.Cache.HitRate,
		"rejected_requests": stats.RateLimiter.RejectedRequests,
	}

	switch stats.CircuitBreaker.State {
	case circuit.Open:
		return Unhealthy(fmt.Sprintf("circuit breaker open since %s", stats.CircuitBreaker.LastChange), nil).WithDetails(details)
	case circuit.HalfOpen:
		return Degraded("circuit breaker probing upstream (half-open)").WithDetails(details)
	}

	if stats.Server.State == pipeline.Draining || stats.Server.State == pipeline.Stopped {
		return Degraded("pipeline is " + stats.Server.State.String()).WithDetails(details)
	}

	if c.config.DegradedQueueLength > 0 && stats.RateLimiter.QueueLength >= c.config.DegradedQueueLength {
		return Degraded(fmt.Sprintf("rate limiter queue length %d at or past threshold %d", stats.RateLimiter.QueueLength, c.config.DegradedQueueLength)).WithDetails(details)
	}

	return Healthy("circuit closed, queue within bounds").WithDetails(details)
}

var _ Checker = (*pipelineChecker)(nil)

// NewPipelineAggregator wraps p's NewPipelineChecker in an Aggregator
// registered under "resilience_pipeline", ready to pass to
// RegisterHandlers or a handler of its own. Extra checkers (e.g. a
// CheckerFunc pinging a downstream dependency) can be added with
// Register before the aggregator is put in front of any traffic.
func NewPipelineAggregator(p *pipeline.Pipeline, config ...PipelineCheckerConfig) *Aggregator {
	agg := NewAggregator()
	agg.Register("resilience_pipeline", NewPipelineChecker(p, config...))
	return agg
}

// RegisterPipelineHandlers builds a NewPipelineAggregator for p and
// registers its /healthz, /readyz and /health handlers on mux — the
// one-call wiring a host reaches for when it has nothing to check
// beyond the pipeline itself.
func RegisterPipelineHandlers(mux *http.ServeMux, p *pipeline.Pipeline, config ...PipelineCheckerConfig) {
	RegisterHandlers(mux, NewPipelineAggregator(p, config...))
}
