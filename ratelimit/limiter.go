package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/finflux/marketops/classify"
)

// Config configures a Limiter. Most zero-value fields are filled by
// applyDefaults; MaxConcurrent and Burst are deliberately distinct
// knobs rather than one concurrency cap doing double duty.
//
// Burst and MaxConcurrent are the exception: an explicit 0 is honored
// literally (a zero-capacity limiter rejects every admission) rather
// than treated as "unset," since a caller configuring max_requests=0
// means exactly that. Use a negative value to request the default.
type Config struct {
	// Burst is the token-bucket capacity C. 0 means "accept no
	// tokens, ever"; negative means "use the default."
	Burst int
	// RefillPerSecond is the token-bucket refill rate r.
	RefillPerSecond float64

	// MaxConcurrent is the global in-flight call cap. 0 means "admit
	// nothing"; negative means "use the default."
	MaxConcurrent int
	// MaxQueueSize bounds callers waiting for a concurrency slot (0 = unbounded).
	MaxQueueSize int

	// PerEndpointMaxInFlight caps simultaneous calls to the same endpoint key (0 = unbounded).
	PerEndpointMaxInFlight int

	// MinuteLimit/HourLimit bound the per-endpoint sliding windows.
	// Unset values default to 60/minute and 2000/hour.
	MinuteLimit int
	HourLimit   int

	// AdaptiveMin/AdaptiveMax/AdaptiveInitial seed the Adaptive throttle.
	AdaptiveMin     int
	AdaptiveMax     int
	AdaptiveInitial int
}

func (c *Config) applyDefaults() {
	if c.Burst < 0 {
		c.Burst = 10
	}
	if c.RefillPerSecond <= 0 {
		c.RefillPerSecond = 5
	}
	if c.MaxConcurrent < 0 {
		c.MaxConcurrent = 20
	}
	if c.MinuteLimit <= 0 {
		c.MinuteLimit = 60
	}
	if c.HourLimit <= 0 {
		c.HourLimit = 2000
	}
	if c.AdaptiveMax <= 0 {
		c.AdaptiveMax = c.MaxConcurrent
	}
	if c.AdaptiveMin <= 0 {
		c.AdaptiveMin = max(1, c.AdaptiveMax/10)
	}
	if c.AdaptiveInitial <= 0 {
		c.AdaptiveInitial = c.AdaptiveMax
	}
}

// Metrics is a point-in-time snapshot of limiter state.
type Metrics struct {
	TokensAvailable  float64
	QueueLength      int
	ActiveInFlight   int
	AdaptiveLimit    int
	PerEndpointInUse map[string]int

	MinuteCount      int
	HourCount        int
	TotalRequests    int64
	RejectedRequests int64

	// IsRateLimited reports whether the next admission would be
	// rejected or queued: an exhausted token bucket, an engaged
	// adaptive throttle, or callers already waiting in the queue.
	IsRateLimited bool
}

// Limiter implements a six-step admission algorithm: per-endpoint
// in-flight cap, sliding-window tracking, global concurrency
// queueing, token-bucket consumption, predictive adaptive check, then
// counter increment.
type Limiter struct {
	cfg Config

	bucket   *TokenBucket
	queue    *Queue
	adaptive *Adaptive

	mu        sync.Mutex
	endpoints map[string]*endpointWindows
	inFlight  map[string]int

	totalRequests    int64
	rejectedRequests int64
}

// New creates a Limiter from cfg, filling unset fields with defaults.
func New(cfg Config) *Limiter {
	cfg.applyDefaults()
	return &Limiter{
		cfg:       cfg,
		bucket:    NewTokenBucket(float64(cfg.Burst), cfg.RefillPerSecond),
		queue:     NewQueue(cfg.MaxConcurrent, cfg.MaxQueueSize),
		adaptive:  NewAdaptive(cfg.AdaptiveMin, cfg.AdaptiveMax, cfg.AdaptiveInitial),
		endpoints: make(map[string]*endpointWindows),
		inFlight:  make(map[string]int),
	}
}

// Admit runs the admission algorithm for endpoint. On success it
// returns a release func the caller must invoke exactly once (usually
// deferred) to free the slots it acquired. On failure it returns a
// *classify.Error describing why admission was refused.
func (l *Limiter) Admit(ctx context.Context, endpoint string) (release func(), rejectErr error) {
	atomic.AddInt64(&l.totalRequests, 1)
	release, rejectErr = l.admit(ctx, endpoint)
	if rejectErr != nil {
		atomic.AddInt64(&l.rejectedRequests, 1)
	}
	return release, rejectErr
}

func (l *Limiter) admit(ctx context.Context, endpoint string) (release func(), rejectErr error) {
	now := time.Now()

	// Step 1: per-endpoint in-flight cap.
	l.mu.Lock()
	if l.cfg.PerEndpointMaxInFlight > 0 && l.inFlight[endpoint] >= l.cfg.PerEndpointMaxInFlight {
		l.mu.Unlock()
		return nil, classify.New(classify.RateLimit, "endpoint in-flight limit exceeded").WithRetryAfter(time.Second)
	}
	ew, ok := l.endpoints[endpoint]
	if !ok {
		ew = newEndpointWindows(l.cfg.MinuteLimit, l.cfg.HourLimit)
		l.endpoints[endpoint] = ew
	}
	l.mu.Unlock()

	// Step 2: sliding-window tracking.
	if ce := ew.trackAndCheck(now); ce != nil {
		return nil, ce
	}

	// Step 3: global concurrency (queueing if full).
	if err := l.queue.Acquire(ctx); err != nil {
		return nil, err
	}

	// Step 4: token-bucket consumption.
	if !l.bucket.Consume(1) {
		l.queue.Release()
		wait := l.bucket.WaitDuration(1)
		return nil, classify.New(classify.RateLimit, "token bucket exhausted").WithRetryAfter(wait)
	}

	// Step 5: predictive adaptive check — usage ratio above 70% or the
	// adaptive throttle's own danger predicate.
	if l.adaptive.UsageRatio() > 0.7 || l.adaptive.PredictDanger() {
		l.queue.Release()
		return nil, classify.New(classify.RateLimit, "adaptive throttle engaged")
	}

	// Step 6: counter increment.
	l.mu.Lock()
	l.inFlight[endpoint]++
	l.mu.Unlock()

	released := false
	release = func() {
		if released {
			return
		}
		released = true
		l.mu.Lock()
		if l.inFlight[endpoint] > 0 {
			l.inFlight[endpoint]--
		}
		l.mu.Unlock()
		l.queue.Release()
	}
	return release, nil
}

// ObserveResponseHeaders feeds upstream rate-limit headers into the
// adaptive throttle (called by the pipeline after every upstream call).
func (l *Limiter) ObserveResponseHeaders(headers map[string]string) {
	l.adaptive.ObserveHeaders(headers)
}

// RecordFailure notifies the adaptive throttle of a failed call that
// carried no usable headers.
func (l *Limiter) RecordFailure() {
	l.adaptive.RecordFailure()
}

// Metrics returns a snapshot of limiter state.
func (l *Limiter) Metrics() Metrics {
	l.mu.Lock()
	defer l.mu.Unlock()
	perEndpoint := make(map[string]int, len(l.inFlight))
	active := 0
	for k, v := range l.inFlight {
		perEndpoint[k] = v
		active += v
	}
	now := time.Now()
	minuteCount, hourCount := 0, 0
	for _, ew := range l.endpoints {
		minuteCount += ew.minute.Count(now)
		hourCount += ew.hour.Count(now)
	}
	tokens := l.bucket.Tokens()
	queueLen := l.queue.Len()
	return Metrics{
		TokensAvailable:  tokens,
		QueueLength:      queueLen,
		IsRateLimited:    tokens < 1 || queueLen > 0 || l.adaptive.UsageRatio() > 0.7 || l.adaptive.PredictDanger(),
		ActiveInFlight:   active,
		AdaptiveLimit:    l.adaptive.CurrentLimit(),
		PerEndpointInUse: perEndpoint,
		MinuteCount:      minuteCount,
		HourCount:        hourCount,
		TotalRequests:    atomic.LoadInt64(&l.totalRequests),
		RejectedRequests: atomic.LoadInt64(&l.rejectedRequests),
	}
}

// Reset clears all limiter state back to a fresh configuration.
func (l *Limiter) Reset() {
	l.mu.Lock()
	l.endpoints = make(map[string]*endpointWindows)
	l.inFlight = make(map[string]int)
	l.mu.Unlock()
	l.bucket.Reset()
	fresh := NewAdaptive(l.cfg.AdaptiveMin, l.cfg.AdaptiveMax, l.cfg.AdaptiveInitial)
	l.adaptive.mu.Lock()
	l.adaptive.current = fresh.current
	l.adaptive.remaining, l.adaptive.haveRemaining = 0, false
	l.adaptive.consecSuccess, l.adaptive.consecFailure = 0, 0
	l.adaptive.lastRetryAfter = nil
	l.adaptive.mu.Unlock()
	atomic.StoreInt64(&l.totalRequests, 0)
	atomic.StoreInt64(&l.rejectedRequests, 0)
}

// Shutdown drains any callers currently waiting in the global queue.
func (l *Limiter) Shutdown() {
	l.queue.DrainWithError()
}
