package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/finflux/marketops/classify"
)

// Instruments is the pipeline's telemetry vocabulary: one span plus a
// call counter and duration histogram per protected upstream call,
// event counters for the resilience machinery (stale-cache fallbacks,
// retry attempts, breaker transitions), and observable gauges sampled
// from the pipeline's stats snapshot at collection time.
//
// Contract:
// - Concurrency: all methods are safe for concurrent use.
// - Errors: recording methods are best-effort and never panic; only
//   construction and gauge registration return errors.
type Instruments struct {
	tracer trace.Tracer
	meter  metric.Meter

	calls       metric.Int64Counter
	duration    metric.Float64Histogram
	fallbacks   metric.Int64Counter
	retries     metric.Int64Counter
	transitions metric.Int64Counter
}

// NewInstruments builds the pipeline instruments on obs's tracer and meter.
func NewInstruments(obs Observer) (*Instruments, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}

	meter := obs.Meter()
	in := &Instruments{tracer: obs.Tracer(), meter: meter}

	var err error
	if in.calls, err = meter.Int64Counter(
		"upstream.calls",
		metric.WithDescription("Protected upstream calls by endpoint and classified outcome"),
		metric.WithUnit("{call}"),
	); err != nil {
		return nil, err
	}
	if in.duration, err = meter.Float64Histogram(
		"upstream.duration_ms",
		metric.WithDescription("Protected upstream call duration by endpoint"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if in.fallbacks, err = meter.Int64Counter(
		"cache.stale_fallbacks",
		metric.WithDescription("Stale or expired cache entries served because the upstream was unavailable"),
		metric.WithUnit("{serve}"),
	); err != nil {
		return nil, err
	}
	if in.retries, err = meter.Int64Counter(
		"retry.attempts",
		metric.WithDescription("Retry attempts made after a retryable upstream failure"),
		metric.WithUnit("{attempt}"),
	); err != nil {
		return nil, err
	}
	if in.transitions, err = meter.Int64Counter(
		"circuit.transitions",
		metric.WithDescription("Circuit breaker state transitions by new state"),
		metric.WithUnit("{transition}"),
	); err != nil {
		return nil, err
	}
	return in, nil
}

// StartCall opens the span covering one protected upstream call (the
// breaker -> limiter -> retry -> produce chain for an endpoint) and
// returns the span context plus a finish func. finish classifies the
// call's error into the span status and the outcome label on the call
// counter; a nil error records outcome "ok".
//
// Background SWR revalidations go through the same path as foreground
// calls, so every producer invocation is counted exactly once.
func (in *Instruments) StartCall(ctx context.Context, endpoint, fingerprint string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := in.tracer.Start(ctx, "upstream."+endpoint,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("endpoint", endpoint),
			attribute.String("fingerprint", fingerprint),
		),
	)

	return ctx, func(err error) {
		outcome := "ok"
		if err != nil {
			ce := classify.From(err)
			outcome = ce.Kind.String()
			span.SetStatus(codes.Error, ce.Message)
			span.RecordError(ce)
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.SetAttributes(attribute.String("outcome", outcome))
		span.End()

		in.calls.Add(ctx, 1, metric.WithAttributes(
			attribute.String("endpoint", endpoint),
			attribute.String("outcome", outcome),
		))
		in.duration.Record(ctx, float64(time.Since(start).Milliseconds()),
			metric.WithAttributes(attribute.String("endpoint", endpoint)))
	}
}

// RecordFallback counts a stale/expired cache entry served in place of
// a live result. reason is the classified kind that forced the
// fallback (circuit_open or rate_limit).
func (in *Instruments) RecordFallback(ctx context.Context, endpoint, reason string) {
	in.fallbacks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("reason", reason),
	))
}

// RecordRetry counts one retry attempt. The retry policy is shared
// across endpoints, so attempts are not labeled per endpoint.
func (in *Instruments) RecordRetry(ctx context.Context, attempt int) {
	in.retries.Add(ctx, 1, metric.WithAttributes(
		attribute.Int("attempt", attempt),
	))
}

// RecordTransition counts a circuit breaker transition into state
// (closed, open, or half-open).
func (in *Instruments) RecordTransition(ctx context.Context, state string) {
	in.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("state", state),
	))
}

// StatsSample is the slice of the pipeline's stats snapshot the
// observable gauges report. It is a plain struct rather than the
// pipeline's own Stats type so this package does not import its
// consumer.
type StatsSample struct {
	CacheHits    int64
	CacheMisses  int64
	CacheEntries int64

	TokensAvailable float64
	QueueLength     int64
	InFlight        int64

	// CircuitState is 0 for closed, 1 for open, 2 for half-open.
	CircuitState int64
}

// ObserveStats registers observable instruments fed by sample at every
// metrics collection, and returns an unregister func for shutdown.
// Cache hits/misses are cumulative and reported as observable
// counters; the rest are point-in-time gauges.
func (in *Instruments) ObserveStats(sample func() StatsSample) (func() error, error) {
	hits, err := in.meter.Int64ObservableCounter("cache.hits",
		metric.WithDescription("Cumulative cache hits"))
	if err != nil {
		return nil, err
	}
	misses, err := in.meter.Int64ObservableCounter("cache.misses",
		metric.WithDescription("Cumulative cache misses"))
	if err != nil {
		return nil, err
	}
	entries, err := in.meter.Int64ObservableGauge("cache.entries",
		metric.WithDescription("Current cache entry count"))
	if err != nil {
		return nil, err
	}
	tokens, err := in.meter.Float64ObservableGauge("ratelimit.tokens",
		metric.WithDescription("Token bucket level"))
	if err != nil {
		return nil, err
	}
	queued, err := in.meter.Int64ObservableGauge("ratelimit.queue_waiters",
		metric.WithDescription("Callers waiting for a concurrency slot"))
	if err != nil {
		return nil, err
	}
	inFlight, err := in.meter.Int64ObservableGauge("ratelimit.in_flight",
		metric.WithDescription("Admitted calls currently in flight"))
	if err != nil {
		return nil, err
	}
	state, err := in.meter.Int64ObservableGauge("circuit.state",
		metric.WithDescription("Circuit breaker state (0 closed, 1 open, 2 half-open)"))
	if err != nil {
		return nil, err
	}

	reg, err := in.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := sample()
		o.ObserveInt64(hits, s.CacheHits)
		o.ObserveInt64(misses, s.CacheMisses)
		o.ObserveInt64(entries, s.CacheEntries)
		o.ObserveFloat64(tokens, s.TokensAvailable)
		o.ObserveInt64(queued, s.QueueLength)
		o.ObserveInt64(inFlight, s.InFlight)
		o.ObserveInt64(state, s.CircuitState)
		return nil
	}, hits, misses, entries, tokens, queued, inFlight, state)
	if err != nil {
		return nil, err
	}
	return reg.Unregister, nil
}
