package circuit

import (
	"context"
	"sync"
	"time"

	"github.com/finflux/marketops/classify"
	"github.com/finflux/marketops/internal/window"
)

// State is one of Closed, Open, HalfOpen.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config configures the circuit breaker.
type Config struct {
	// ThresholdFailures is the rolling-window failure count that opens
	// the circuit from Closed. Default: 5.
	ThresholdFailures int

	// ThresholdSuccesses is the HalfOpen success count required to
	// close the circuit. Default: 1.
	ThresholdSuccesses int

	// ResetTimeout is how long OPEN waits before admitting a HalfOpen probe.
	// Default: 30s.
	ResetTimeout time.Duration

	// MonitoringWindow bounds the rolling failure window (rolling_count_timeout_ms).
	// Default: 60s.
	MonitoringWindow time.Duration

	// Fallback, if set, is invoked with the classified error on any
	// failure instead of propagating it; the failure is still recorded.
	Fallback func(ctx context.Context, err *classify.Error) (any, error)

	// OnOpen, OnHalfOpen, OnClose are lifecycle hooks fired on transition.
	OnOpen     func()
	OnHalfOpen func()
	OnClose    func()
}

func (c *Config) applyDefaults() {
	if c.ThresholdFailures <= 0 {
		c.ThresholdFailures = 5
	}
	if c.ThresholdSuccesses <= 0 {
		c.ThresholdSuccesses = 1
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.MonitoringWindow <= 0 {
		c.MonitoringWindow = 60 * time.Second
	}
}

// Breaker is the circuit-breaker state machine.
type Breaker struct {
	cfg Config

	mu             sync.Mutex
	state          State
	successes      int
	lastStateAt    time.Time
	failures       *window.Rolling
	halfOpenInUse  bool
}

// New creates a Breaker with defaults applied.
func New(cfg Config) *Breaker {
	cfg.applyDefaults()
	return &Breaker{
		cfg:         cfg,
		state:       Closed,
		lastStateAt: time.Now(),
		failures:    window.NewRolling(cfg.MonitoringWindow),
	}
}

// Execute runs op through the breaker, classifying any error it returns.
// If the breaker is Open (and not past its reset timeout), op is never
// called and classify.Error{Kind: CircuitOpen} is returned (or the
// configured Fallback's result, if set).
func (b *Breaker) Execute(ctx context.Context, op func(context.Context) (any, error)) (any, error) {
	if err := b.admit(); err != nil {
		return b.maybeFallback(ctx, err)
	}

	result, err := op(ctx)
	b.record(err)
	if err != nil {
		return b.maybeFallback(ctx, classify.From(err))
	}
	return result, nil
}

func (b *Breaker) maybeFallback(ctx context.Context, err *classify.Error) (any, error) {
	if b.cfg.Fallback != nil {
		return b.cfg.Fallback(ctx, err)
	}
	return nil, err
}

// admit checks and possibly advances the state machine before a call,
// returning a CircuitOpen error if the call should not proceed.
func (b *Breaker) admit() *classify.Error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.maybeTransitionToHalfOpenLocked()

	switch b.state {
	case Open:
		return classify.New(classify.CircuitOpen, "circuit breaker is open")
	case HalfOpen:
		if b.halfOpenInUse {
			return classify.New(classify.CircuitOpen, "circuit breaker half-open probe in flight")
		}
		b.halfOpenInUse = true
	}
	return nil
}

// record applies the result of an admitted call to the state machine.
func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	isFailure := err != nil

	switch b.state {
	case Closed:
		if isFailure {
			b.failures.Record(now)
			if b.failures.Count(now) >= b.cfg.ThresholdFailures {
				b.setStateLocked(Open)
			}
		}
		// success: rolling window ages out naturally; no explicit reset
		// needed since Count() always re-prunes before the next check.

	case HalfOpen:
		b.halfOpenInUse = false
		if isFailure {
			b.failures.Record(now)
			b.setStateLocked(Open)
		} else {
			b.successes++
			if b.successes >= b.cfg.ThresholdSuccesses {
				b.failures.Reset()
				b.successes = 0
				b.setStateLocked(Closed)
			}
		}
	}
}

// maybeTransitionToHalfOpenLocked moves OPEN -> HALF_OPEN once the
// reset timeout has elapsed. Caller must hold mu.
func (b *Breaker) maybeTransitionToHalfOpenLocked() {
	if b.state == Open && time.Since(b.lastStateAt) >= b.cfg.ResetTimeout {
		b.successes = 0
		b.halfOpenInUse = false
		b.setStateLocked(HalfOpen)
	}
}

func (b *Breaker) setStateLocked(s State) {
	if s == b.state {
		return
	}
	b.state = s
	b.lastStateAt = time.Now()
	switch s {
	case Open:
		if b.cfg.OnOpen != nil {
			b.cfg.OnOpen()
		}
	case HalfOpen:
		if b.cfg.OnHalfOpen != nil {
			b.cfg.OnHalfOpen()
		}
	case Closed:
		if b.cfg.OnClose != nil {
			b.cfg.OnClose()
		}
	}
}

// State returns the current state, advancing OPEN -> HALF_OPEN if due.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeTransitionToHalfOpenLocked()
	return b.state
}

// Reset forces the breaker back to Closed and clears its failure window.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures.Reset()
	b.successes = 0
	b.halfOpenInUse = false
	b.setStateLocked(Closed)
}

// Metrics is the circuit breaker's introspection snapshot.
type Metrics struct {
	State           State
	FailureCount    int
	SuccessCount    int
	LastStateChange time.Time
}

// Metrics returns a snapshot of current breaker statistics.
func (b *Breaker) Metrics() Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Metrics{
		State:           b.state,
		FailureCount:    b.failures.Count(time.Now()),
		SuccessCount:    b.successes,
		LastStateChange: b.lastStateAt,
	}
}
