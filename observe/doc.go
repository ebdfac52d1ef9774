// Package observe is the resilience pipeline's telemetry layer:
// OpenTelemetry tracing and metrics plus structured JSON logging,
// expressed in the pipeline's own vocabulary rather than a generic
// execution-wrapping middleware.
//
// # Components
//
//   - [Observer]: owns the OTel tracer/meter providers and the Logger;
//     built once per process from [Config] and shut down with it.
//   - [Instruments]: the pipeline's instruments. [Instruments.StartCall]
//     opens the span for one protected upstream call and returns a
//     finish func that labels the call counter with the classified
//     outcome; RecordFallback/RecordRetry/RecordTransition count the
//     resilience machinery's events; [Instruments.ObserveStats] samples
//     the pipeline's stats snapshot into observable gauges.
//   - [Logger]: leveled JSON lines with credential redaction. With
//     binds fields (endpoint, fingerprint) onto a child logger.
//
// # Quick start
//
//	obs, err := observe.NewObserver(ctx, observe.Config{
//	    ServiceName: "marketops",
//	    Tracing:     observe.TracingConfig{Enabled: true, Exporter: "otlp", SamplePct: 0.25},
//	    Metrics:     observe.MetricsConfig{Enabled: true, Exporter: "prometheus"},
//	    Logging:     observe.LoggingConfig{Enabled: true, Level: "info"},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer obs.Shutdown(ctx)
//
//	p := pipeline.New(cfg.ToPipelineConfig(obs))
//
// The pipeline does the rest: one "upstream.<endpoint>" span per
// protected call (foreground or background revalidation), counters for
// calls/fallbacks/retries/breaker transitions, gauges over the stats
// snapshot, and log lines for breaker transitions and stale-cache
// fallbacks.
//
// # Telemetry vocabulary
//
// Spans: "upstream.<endpoint>", SpanKindClient, with endpoint,
// fingerprint, and outcome attributes; outcome is "ok" or the
// classified error kind (rate_limit, circuit_open, timeout, ...).
//
// Synchronous metrics: upstream.calls {endpoint, outcome},
// upstream.duration_ms {endpoint}, cache.stale_fallbacks
// {endpoint, reason}, retry.attempts {attempt}, circuit.transitions
// {state}.
//
// Observable metrics (sampled from the stats snapshot at collection):
// cache.hits, cache.misses, cache.entries, ratelimit.tokens,
// ratelimit.queue_waiters, ratelimit.in_flight, circuit.state.
//
// # Exporters
//
// Tracing: "otlp" (gRPC, endpoint from OTEL_EXPORTER_OTLP_ENDPOINT or
// OTEL_EXPORTER_OTLP_TRACES_ENDPOINT), "jaeger" (via OTLP), "stdout",
// "none"/"" (disabled). Metrics: "otlp", "prometheus", "stdout",
// "none"/"" (disabled).
//
// # Errors
//
// Config validation returns wrapped sentinels checkable with
// errors.Is: [ErrMissingServiceName], [ErrInvalidTracingExporter],
// [ErrInvalidMetricsExporter], [ErrInvalidSamplePct],
// [ErrInvalidLogLevel]. Exporter construction returns (wrapped)
// [exporters.ErrEndpointNotConfigured] when a required endpoint env
// var is unset. [NewInstruments] returns [ErrNilObserver] for a nil Observer.
package observe
