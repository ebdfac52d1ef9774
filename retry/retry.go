package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/finflux/marketops/classify"
)

// Strategy selects how the base delay grows between attempts.
type Strategy int

const (
	Exponential Strategy = iota
	Linear
	Fixed
)

// Config configures the retry policy.
type Config struct {
	// Enabled disables retry entirely when false; Execute calls op once.
	Enabled bool

	// MaxRetries is the number of retries after the initial attempt
	// (so the work function runs at most MaxRetries+1 times). config.Load
	// defaults it to 3; this package keeps 0 as 0 (see applyDefaults).
	MaxRetries int

	// InitialDelay is the base delay before the first retry. Default: 100ms.
	InitialDelay time.Duration

	// MaxDelay caps any computed delay, including after jitter and
	// error-sensitive adjustment. Default: 30s.
	MaxDelay time.Duration

	// Strategy selects Exponential/Linear/Fixed base-delay growth.
	Strategy Strategy

	// Multiplier is the exponential backoff multiplier. Default: 2.0.
	Multiplier float64

	// FixedDelay is used by the Fixed strategy; falls back to
	// InitialDelay if zero.
	FixedDelay time.Duration

	// Jitter applies additive decorrelated jitter at 25% amplitude
	// when true.
	Jitter bool

	// SkipRetry, if set, overrides classification: returning true
	// propagates the error immediately regardless of its Kind.
	SkipRetry func(*classify.Error) bool

	// ForceRetryable, if set, is consulted only when the classified
	// error's own IsRetryable() is false; returning true retries it
	// anyway. This lets a caller extend the fixed classifier taxonomy
	// with its own allowlist of status/error codes to treat as
	// retryable.
	ForceRetryable func(*classify.Error) bool

	// AttemptTimeout, if nonzero, bounds each individual attempt:
	// each upstream invocation gets its own deadline rather than the
	// whole retry budget sharing one.
	AttemptTimeout time.Duration

	// OnRetry is called before each sleep, with the attempt index (1-based)
	// and the classified error that triggered the retry.
	OnRetry func(attempt int, err *classify.Error, delay time.Duration)

	// OnGiveUp is called once when the retry budget is exhausted.
	OnGiveUp func(attempt int, err *classify.Error)
}

// applyDefaults fills delay/multiplier knobs that have no sane zero
// value. It deliberately does NOT default MaxRetries or Enabled:
// MaxRetries == 0 must mean "run the work at most once," not "apply
// the default budget," so zero must stay zero here. The documented
// default of MaxRetries == 3 belongs to config.Load, which can
// distinguish "unset" from "explicitly zero" at parse time; this
// package only ever sees the resolved value.
func (c *Config) applyDefaults() Config {
	out := *c
	if out.MaxRetries < 0 {
		out.MaxRetries = 0
	}
	if out.InitialDelay <= 0 {
		out.InitialDelay = 100 * time.Millisecond
	}
	if out.MaxDelay <= 0 {
		out.MaxDelay = 30 * time.Second
	}
	if out.Multiplier <= 0 {
		out.Multiplier = 2.0
	}
	if out.FixedDelay <= 0 {
		out.FixedDelay = out.InitialDelay
	}
	return out
}

// Policy runs a work function through the configured retry budget.
type Policy struct {
	cfg Config
}

// New creates a Policy with defaults applied.
func New(cfg Config) *Policy {
	return &Policy{cfg: cfg.applyDefaults()}
}

// Work is the upstream call the policy wraps.
type Work func(ctx context.Context) (any, error)

// Execute runs op, retrying on classified-retryable errors until the
// budget is exhausted. On success it returns the value; on a
// non-retryable classified error it propagates immediately; on budget
// exhaustion it returns a *classify.Error{Kind: MaxRetriesExceeded}
// carrying the full attempt history.
func (p *Policy) Execute(ctx context.Context, op Work) (any, error) {
	if !p.cfg.Enabled {
		return op(ctx)
	}

	var history []classify.Attempt

	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		result, err := p.runAttempt(ctx, op)
		if err == nil {
			return result, nil
		}

		ce := classify.From(err)

		if p.cfg.SkipRetry != nil && p.cfg.SkipRetry(ce) {
			return nil, ce
		}
		retryable := ce.IsRetryable()
		if !retryable && p.cfg.ForceRetryable != nil {
			retryable = p.cfg.ForceRetryable(ce)
		}
		if !retryable {
			return nil, ce
		}

		history = append(history, classify.Attempt{
			Index: attempt, Err: ce, Timestamp: time.Now(),
		})

		if attempt >= p.cfg.MaxRetries {
			if p.cfg.OnGiveUp != nil {
				p.cfg.OnGiveUp(attempt, ce)
			}
			return nil, &classify.Error{
				Kind:           classify.MaxRetriesExceeded,
				Message:        "max retries exceeded: " + ce.Error(),
				Cause:          ce,
				AttemptHistory: history,
			}
		}

		delay := p.computeDelay(attempt+1, ce)
		history[len(history)-1].Delay = delay

		if p.cfg.OnRetry != nil {
			p.cfg.OnRetry(attempt+1, ce, delay)
		}

		select {
		case <-ctx.Done():
			return nil, classify.Wrap(classify.Timeout, ctx.Err(), "retry cancelled")
		case <-time.After(delay):
		}
	}

	// Unreachable: the loop always returns before falling off the end.
	return nil, classify.New(classify.Unknown, "retry: no attempts executed")
}

func (p *Policy) runAttempt(ctx context.Context, op Work) (any, error) {
	if p.cfg.AttemptTimeout <= 0 {
		return op(ctx)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, p.cfg.AttemptTimeout)
	defer cancel()

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := op(attemptCtx)
		done <- outcome{result, err}
	}()

	select {
	case o := <-done:
		return o.result, o.err
	case <-attemptCtx.Done():
		if attemptCtx.Err() == context.DeadlineExceeded {
			return nil, classify.New(classify.Timeout, "attempt exceeded per-attempt timeout")
		}
		return nil, attemptCtx.Err()
	}
}

// computeDelay is the base-delay-by-strategy + cap + jitter +
// error-sensitive-adjustment pipeline.
func (p *Policy) computeDelay(attempt int, ce *classify.Error) time.Duration {
	delay := p.baseDelay(attempt)
	delay = p.cap(delay)
	if p.cfg.Jitter {
		delay = decorrelatedJitter(delay)
	}
	delay = p.adjustForKind(delay, ce)
	return p.cap(delay)
}

func (p *Policy) baseDelay(attempt int) time.Duration {
	switch p.cfg.Strategy {
	case Linear:
		return p.cfg.InitialDelay * time.Duration(attempt)
	case Fixed:
		return p.cfg.FixedDelay
	default: // Exponential
		multiplier := math.Pow(p.cfg.Multiplier, float64(attempt-1))
		return time.Duration(float64(p.cfg.InitialDelay) * multiplier)
	}
}

func (p *Policy) cap(d time.Duration) time.Duration {
	if d > p.cfg.MaxDelay {
		return p.cfg.MaxDelay
	}
	return d
}

// adjustForKind applies the per-kind delay table.
func (p *Policy) adjustForKind(base time.Duration, ce *classify.Error) time.Duration {
	switch ce.Kind {
	case classify.RateLimit:
		if ce.RetryAfter != nil {
			if *ce.RetryAfter > base {
				return *ce.RetryAfter
			}
			return base
		}
		return p.cap(base * 2)
	case classify.CookieSession:
		return p.cap(base / 2)
	case classify.Server:
		if ce.Transient {
			return p.cap(time.Duration(float64(base) * 1.5))
		}
		return base
	default:
		return base
	}
}

// decorrelatedJitter applies additive jitter at 25% amplitude with a
// 100ms floor: delay ← max(100ms, delay + U(-1,1)*delay*0.25).
func decorrelatedJitter(delay time.Duration) time.Duration {
	if delay <= 0 {
		return 100 * time.Millisecond
	}
	// U(-1, 1) * delay * 0.25
	u := rand.Float64()*2 - 1
	jittered := float64(delay) + u*float64(delay)*0.25
	result := time.Duration(jittered)
	if result < 100*time.Millisecond {
		return 100 * time.Millisecond
	}
	return result
}
