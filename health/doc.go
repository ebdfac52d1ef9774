// Package health turns the pipeline's own resilience state (circuit
// breaker, rate-limiter queue) into Kubernetes-compatible liveness and
// readiness signals, and provides the generic Checker/Aggregator
// framework that [NewPipelineChecker] is built on.
//
// # Status Types
//
// The [Status] type represents component health:
//
//   - [StatusHealthy]: Component is functioning normally
//   - [StatusDegraded]: Component is functioning but with issues
//   - [StatusUnhealthy]: Component is not functioning properly
//
// # Core Components
//
//   - [Checker]: Interface for health checks (Name() + Check())
//   - [CheckerFunc]: Adapter for function-based checkers, used in tests
//   - [Result]: Health check outcome with status, message, details, duration
//   - [Aggregator]: Combines multiple checkers into composite health
//   - [NewPipelineChecker]: adapts a running *pipeline.Pipeline into a Checker
//
// # Quick Start
//
// The one-call path a host reaches for when the pipeline is the only
// thing worth checking:
//
//	mux := http.NewServeMux()
//	health.RegisterPipelineHandlers(mux, p)
//	// Registers: /healthz, /readyz, /health
//
// A host with more than the pipeline to check builds its own Aggregator:
//
//	agg := health.NewPipelineAggregator(p)
//	agg.Register("quote-feed", health.NewCheckerFunc("quote-feed", func(ctx context.Context) health.Result {
//	    if err := quoteFeed.Ping(ctx); err != nil {
//	        return health.Unhealthy("quote feed unreachable", err)
//	    }
//	    return health.Healthy("quote feed connected")
//	}))
//	health.RegisterHandlers(mux, agg)
//
// # HTTP Endpoints
//
// The package provides Kubernetes-compatible HTTP handlers:
//
//   - [LivenessHandler]: Simple /healthz endpoint - always returns 200 if running
//   - [ReadinessHandler]: Runs all checks, returns 503 if any unhealthy
//   - [DetailedHandler]: Returns JSON with full check details
//   - [SingleCheckHandler]: Check a specific component by name
//   - [RegisterHandlers]: Convenience function to register all handlers
//   - [RegisterPipelineHandlers]: RegisterHandlers plus NewPipelineAggregator in one call
//
// # Aggregation Behavior
//
// The [Aggregator] computes overall status using worst-case logic:
//
//   - If ANY check is Unhealthy → overall Unhealthy
//   - If ANY check is Degraded (and none Unhealthy) → overall Degraded
//   - If ALL checks are Healthy → overall Healthy
//   - If NO checks are registered → [Aggregator.OverallStatus] reports
//     Healthy, while the Checker returned by [Aggregator.Checker]
//     reports Unhealthy ([ErrNoCheckers])
//
// Checks can run in parallel (default) or sequentially via [AggregatorConfig].
//
// # Thread Safety
//
// [Aggregator] is safe for concurrent registration and check execution
// via an internal sync.RWMutex. [CheckerFunc] delegates to the caller's
// function, which must be safe for concurrent use if the Aggregator
// runs checks in parallel. [Result] is immutable after creation.
//
// # Error Handling
//
// Sentinel errors (use errors.Is for checking):
//
//   - [ErrCheckFailed]: Generic health check failure
//   - [ErrCheckTimeout]: Check exceeded timeout
//   - [ErrCheckerNotFound]: Named checker not registered
//   - [ErrNoCheckers]: No checkers registered in aggregator
//
// # Integration with the pipeline
//
//   - pipeline: [NewPipelineChecker] maps circuit breaker
//     Open/HalfOpen/Closed and rate-limiter queue pressure to
//     Unhealthy/Degraded/Healthy; [NewPipelineAggregator] and
//     [RegisterPipelineHandlers] wire that straight onto an HTTP mux.
//   - observe: health check transitions can be logged through the same
//     structured observe.Logger the pipeline uses.
package health
