package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/finflux/marketops/cache"
	"github.com/finflux/marketops/circuit"
	"github.com/finflux/marketops/classify"
	"github.com/finflux/marketops/observe"
	"github.com/finflux/marketops/ratelimit"
	"github.com/finflux/marketops/retry"
)

// Produce is the caller-supplied upstream call Execute wraps.
type Produce func(ctx context.Context) ([]byte, error)

// State is the pipeline's own operational state, independent of the
// circuit breaker's state machine.
type State int

const (
	Running State = iota
	Draining
	Stopped
)

func (s State) String() string {
	switch s {
	case Draining:
		return "draining"
	case Stopped:
		return "stopped"
	default:
		return "running"
	}
}

// Pipeline is the composed resilience core: cache, circuit breaker,
// rate limiter, and retry policy wired in a fixed ordering contract.
type Pipeline struct {
	mu      sync.RWMutex
	c       cache.Cache
	breaker *circuit.Breaker
	limiter *ratelimit.Limiter
	retrier *retry.Policy

	logger observe.Logger
	ins    *observe.Instruments

	// unobserve tears down the observable stats gauges on Shutdown.
	unobserve func() error

	state     atomic.Int32
	startedAt time.Time

	requestCount int64
	successCount int64
	errorCount   int64
}

// New builds a Pipeline from cfg, filling unset sub-config fields with
// each component's own defaults. If cfg.Observer is set, every
// protected upstream call gets a span plus a call counter and duration
// histogram, breaker transitions are counted and logged, retry
// attempts are counted, and observable gauges sample the stats
// snapshot.
func New(cfg Config) *Pipeline {
	p := &Pipeline{
		startedAt: time.Now(),
	}

	if cfg.Observer != nil {
		p.logger = cfg.Observer.Logger()
		if ins, err := observe.NewInstruments(cfg.Observer); err == nil {
			p.ins = ins
		}
	}

	cfg.CircuitBreaker.OnOpen = chainHook(cfg.CircuitBreaker.OnOpen, func() { p.noteTransition("open", "circuit breaker opened") })
	cfg.CircuitBreaker.OnHalfOpen = chainHook(cfg.CircuitBreaker.OnHalfOpen, func() { p.noteTransition("half-open", "circuit breaker half-open, admitting a probe") })
	cfg.CircuitBreaker.OnClose = chainHook(cfg.CircuitBreaker.OnClose, func() { p.noteTransition("closed", "circuit breaker closed") })

	if p.ins != nil {
		prev := cfg.Retry.OnRetry
		cfg.Retry.OnRetry = func(attempt int, err *classify.Error, delay time.Duration) {
			if prev != nil {
				prev(attempt, err, delay)
			}
			p.ins.RecordRetry(context.Background(), attempt)
		}
	}

	p.c = cache.NewMemoryCache(cfg.Cache)
	p.breaker = circuit.New(cfg.CircuitBreaker)
	p.limiter = ratelimit.New(cfg.RateLimit)
	p.retrier = retry.New(cfg.Retry)
	p.state.Store(int32(Running))

	if p.ins != nil {
		if unobserve, err := p.ins.ObserveStats(p.statsSample); err == nil {
			p.unobserve = unobserve
		}
	}
	return p
}

// statsSample feeds the observable gauges from the live snapshot.
func (p *Pipeline) statsSample() observe.StatsSample {
	s := p.GetStats()
	var circuitState int64
	switch s.CircuitBreaker.State {
	case circuit.Open:
		circuitState = 1
	case circuit.HalfOpen:
		circuitState = 2
	}
	return observe.StatsSample{
		CacheHits:       s.Cache.Hits,
		CacheMisses:     s.Cache.Misses,
		CacheEntries:    int64(s.Cache.Entries),
		TokensAvailable: s.RateLimiter.Tokens,
		QueueLength:     int64(s.RateLimiter.QueueLength),
		InFlight:        int64(s.RateLimiter.Concurrent),
		CircuitState:    circuitState,
	}
}

// chainHook composes an optional caller-supplied hook with one this
// package needs, so setting cfg.Observer never silently drops a hook
// the caller already configured on cfg.CircuitBreaker.
func chainHook(existing, added func()) func() {
	if existing == nil {
		return added
	}
	return func() {
		existing()
		added()
	}
}

// logState is a best-effort structured log line; it is a no-op when
// no Observer was configured.
func (p *Pipeline) logState(msg string, fields ...observe.Field) {
	if p.logger == nil {
		return
	}
	p.logger.Info(context.Background(), msg, fields...)
}

// noteTransition records a breaker transition as both a counter
// increment and a log line.
func (p *Pipeline) noteTransition(state, msg string) {
	if p.ins != nil {
		p.ins.RecordTransition(context.Background(), state)
	}
	p.logState(msg, observe.Field{Key: "state", Value: state})
}

// Execute runs produce through the full pipeline for the given
// fingerprint and endpointKey, serving cached data and falling back to
// it on CircuitOpen/RateLimit failures.
func (p *Pipeline) Execute(ctx context.Context, fingerprint, endpointKey string, produce Produce) ([]byte, error) {
	if State(p.state.Load()) != Running {
		return nil, classify.New(classify.Timeout, "pipeline is shutting down")
	}

	atomic.AddInt64(&p.requestCount, 1)

	p.mu.RLock()
	c, breaker, limiter, retrier := p.c, p.breaker, p.limiter, p.retrier
	p.mu.RUnlock()

	protected := func(ctx context.Context) ([]byte, error) {
		return runProtected(ctx, breaker, limiter, retrier, endpointKey, produce)
	}
	if p.ins != nil {
		inner := protected
		protected = func(ctx context.Context) ([]byte, error) {
			// Covers foreground calls and background SWR revalidations
			// alike, so every producer invocation is spanned and
			// counted exactly once.
			ctx, finish := p.ins.StartCall(ctx, endpointKey, fingerprint)
			value, err := inner(ctx)
			finish(err)
			return value, err
		}
	}

	value, err := c.GetWithRevalidation(ctx, fingerprint, protected)
	if err == nil {
		atomic.AddInt64(&p.successCount, 1)
		return value, nil
	}

	ce := classify.From(err)
	if ce.Kind == classify.CircuitOpen || ce.Kind == classify.RateLimit {
		if fallback, ok := c.GetAny(ctx, fingerprint); ok {
			p.recordFallback(ctx, endpointKey, ce.Kind.String(), "serving stale/expired cache entry")
			atomic.AddInt64(&p.successCount, 1)
			return fallback, nil
		}
	}
	if ce.Kind == classify.RateLimit {
		if fallback, ok := c.GetAny(ctx, "rate_limited_"+endpointKey); ok {
			p.recordFallback(ctx, endpointKey, ce.Kind.String(), "serving rate_limited_<endpoint> cache entry")
			atomic.AddInt64(&p.successCount, 1)
			return fallback, nil
		}
	}

	atomic.AddInt64(&p.errorCount, 1)
	return nil, ce
}

// recordFallback counts and logs a stale-data serve that papered over
// an upstream refusal.
func (p *Pipeline) recordFallback(ctx context.Context, endpoint, reason, msg string) {
	if p.ins != nil {
		p.ins.RecordFallback(ctx, endpoint, reason)
	}
	p.logState(msg,
		observe.Field{Key: "endpoint", Value: endpoint},
		observe.Field{Key: "reason", Value: reason},
	)
}

// runProtected is the CircuitBreaker(RateLimiter(Retry(produce))) chain:
// one breaker admission and one rate-limiter admission cover the whole
// retry sequence, so a retried-but-ultimately-successful call trips
// neither, and only budget exhaustion counts as a single breaker
// failure.
func runProtected(ctx context.Context, breaker *circuit.Breaker, limiter *ratelimit.Limiter, retrier *retry.Policy, endpointKey string, produce Produce) ([]byte, error) {
	result, err := breaker.Execute(ctx, func(ctx context.Context) (any, error) {
		release, rejectErr := limiter.Admit(ctx, endpointKey)
		if rejectErr != nil {
			return nil, rejectErr
		}
		defer release()

		return retrier.Execute(ctx, func(ctx context.Context) (any, error) {
			return produce(ctx)
		})
	})

	observeOutcome(limiter, err)

	if err != nil {
		return nil, err
	}
	value, _ := result.([]byte)
	return value, nil
}

// observeOutcome feeds the adaptive throttle from whatever headers a
// RateLimit failure carried, or records a bare failure when none did.
func observeOutcome(limiter *ratelimit.Limiter, err error) {
	if err == nil {
		return
	}
	ce := classify.From(err)
	if headers, ok := ce.Headers(); ok {
		limiter.ObserveResponseHeaders(headers)
		return
	}
	if ce.Kind == classify.RateLimit {
		limiter.RecordFailure()
	}
}

// CacheGet returns the cached value for fingerprint, if fresh or stale
// (not expired).
func (p *Pipeline) CacheGet(ctx context.Context, fingerprint string) ([]byte, bool) {
	return p.c.Get(ctx, fingerprint)
}

// CacheSet stores value under fingerprint using the cache's policy-derived TTL.
func (p *Pipeline) CacheSet(ctx context.Context, fingerprint string, value []byte, ttl time.Duration) error {
	return p.c.Set(ctx, fingerprint, value, ttl)
}

// CacheClear empties the cache entirely.
func (p *Pipeline) CacheClear(ctx context.Context) error {
	return p.c.Clear(ctx)
}

// CacheInvalidate removes the given fingerprints from the cache.
func (p *Pipeline) CacheInvalidate(ctx context.Context, fingerprints []string) error {
	return p.c.MDelete(ctx, fingerprints)
}

// Stats is the full GetStats() snapshot.
type Stats struct {
	Cache          CacheStats
	RateLimiter    RateLimiterStats
	CircuitBreaker CircuitBreakerStats
	Server         ServerStats
}

// CacheStats mirrors the cache stat group.
type CacheStats struct {
	Hits      int64
	Misses    int64
	HitRate   float64
	Entries   int
	TotalSize int64
}

// RateLimiterStats mirrors the rate_limiter stat group.
type RateLimiterStats struct {
	Tokens           float64
	Concurrent       int
	MinuteCount      int
	HourCount        int
	CurrentLimit     int
	QueueLength      int
	TotalRequests    int64
	RejectedRequests int64
}

// CircuitBreakerStats mirrors the circuit_breaker stat group.
type CircuitBreakerStats struct {
	State        circuit.State
	FailureCount int
	SuccessCount int
	LastChange   time.Time
}

// ServerStats mirrors the server-level stat group.
type ServerStats struct {
	State        State
	UptimeMS     int64
	RequestCount int64
	SuccessCount int64
	ErrorCount   int64
}

// GetStats returns a point-in-time snapshot across every subsystem.
func (p *Pipeline) GetStats() Stats {
	p.mu.RLock()
	limiter, breaker := p.limiter, p.breaker
	p.mu.RUnlock()

	cs := p.c.Stats()
	rl := limiter.Metrics()
	cb := breaker.Metrics()

	return Stats{
		Cache: CacheStats{
			Hits:      cs.Hits,
			Misses:    cs.Misses,
			HitRate:   cs.HitRate(),
			Entries:   cs.EntryCount,
			TotalSize: cs.TotalBytes,
		},
		RateLimiter: RateLimiterStats{
			Tokens:           rl.TokensAvailable,
			Concurrent:       rl.ActiveInFlight,
			MinuteCount:      rl.MinuteCount,
			HourCount:        rl.HourCount,
			CurrentLimit:     rl.AdaptiveLimit,
			QueueLength:      rl.QueueLength,
			TotalRequests:    rl.TotalRequests,
			RejectedRequests: rl.RejectedRequests,
		},
		CircuitBreaker: CircuitBreakerStats{
			State:        cb.State,
			FailureCount: cb.FailureCount,
			SuccessCount: cb.SuccessCount,
			LastChange:   cb.LastStateChange,
		},
		Server: ServerStats{
			State:        State(p.state.Load()),
			UptimeMS:     time.Since(p.startedAt).Milliseconds(),
			RequestCount: atomic.LoadInt64(&p.requestCount),
			SuccessCount: atomic.LoadInt64(&p.successCount),
			ErrorCount:   atomic.LoadInt64(&p.errorCount),
		},
	}
}

// Reset resets all three state machines and clears the cache.
func (p *Pipeline) Reset() {
	p.mu.RLock()
	breaker, limiter := p.breaker, p.limiter
	p.mu.RUnlock()

	breaker.Reset()
	limiter.Reset()
	p.c.Reset()
	atomic.StoreInt64(&p.requestCount, 0)
	atomic.StoreInt64(&p.successCount, 0)
	atomic.StoreInt64(&p.errorCount, 0)
}

// UpdateConfig live-swaps any component named in partial, preserving
// the others and the cache untouched.
func (p *Pipeline) UpdateConfig(partial PartialConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if partial.RateLimit != nil {
		p.limiter = ratelimit.New(*partial.RateLimit)
	}
	if partial.Retry != nil {
		p.retrier = retry.New(*partial.Retry)
	}
	if partial.CircuitBreaker != nil {
		cfg := *partial.CircuitBreaker
		cfg.OnOpen = chainHook(cfg.OnOpen, func() { p.noteTransition("open", "circuit breaker opened") })
		cfg.OnHalfOpen = chainHook(cfg.OnHalfOpen, func() { p.noteTransition("half-open", "circuit breaker half-open, admitting a probe") })
		cfg.OnClose = chainHook(cfg.OnClose, func() { p.noteTransition("closed", "circuit breaker closed") })
		p.breaker = circuit.New(cfg)
	}
}

// Shutdown rejects new admissions, drains the rate limiter's queue
// with cancellation errors, waits for any background SWR revalidation
// to finish independently, and clears the cache.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.state.Store(int32(Draining))
	p.mu.RLock()
	limiter := p.limiter
	p.mu.RUnlock()
	limiter.Shutdown()

	done := make(chan struct{})
	go func() {
		if mc, ok := p.c.(interface{ Wait() }); ok {
			mc.Wait()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		p.state.Store(int32(Stopped))
		return ctx.Err()
	}

	if p.unobserve != nil {
		_ = p.unobserve()
	}
	_ = p.c.Clear(ctx)
	p.state.Store(int32(Stopped))
	return nil
}
