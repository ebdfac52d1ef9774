package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/finflux/marketops/classify"
)

func TestExecute_SucceedsFirstTry(t *testing.T) {
	p := New(Config{Enabled: true, MaxRetries: 3})
	calls := 0
	result, err := p.Execute(context.Background(), func(context.Context) (any, error) {
		calls++
		return "ok", nil
	})
	if err != nil || result != "ok" {
		t.Fatalf("Execute() = (%v, %v)", result, err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestExecute_ZeroMaxRetries_RunsOnce(t *testing.T) {
	p := New(Config{Enabled: true, MaxRetries: 0, InitialDelay: time.Millisecond})
	calls := 0
	_, err := p.Execute(context.Background(), func(context.Context) (any, error) {
		calls++
		return nil, errors.New("network reset ECONNRESET")
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	ce := classify.From(err)
	if ce.Kind != classify.MaxRetriesExceeded {
		t.Errorf("Kind = %v, want MaxRetriesExceeded", ce.Kind)
	}
}

func TestExecute_MaxRetriesExceeded_CarriesHistory(t *testing.T) {
	p := New(Config{Enabled: true, MaxRetries: 2, InitialDelay: time.Millisecond, Jitter: false})
	_, err := p.Execute(context.Background(), func(context.Context) (any, error) {
		return nil, &classify.HTTPError{Status: 503, Message: "service unavailable"}
	})
	ce := classify.From(err)
	if ce.Kind != classify.MaxRetriesExceeded {
		t.Fatalf("Kind = %v, want MaxRetriesExceeded", ce.Kind)
	}
	if len(ce.AttemptHistory) != 3 {
		t.Errorf("len(AttemptHistory) = %d, want 3 (MaxRetries+1 failed attempts)", len(ce.AttemptHistory))
	}
}

func TestExecute_NonRetryableError_PropagatesImmediately(t *testing.T) {
	p := New(Config{Enabled: true, MaxRetries: 5, InitialDelay: time.Millisecond})
	calls := 0
	_, err := p.Execute(context.Background(), func(context.Context) (any, error) {
		calls++
		return nil, errors.New("symbol not found: ZZZZ")
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (not retryable)", calls)
	}
	ce := classify.From(err)
	if ce.Kind != classify.SymbolNotFound {
		t.Errorf("Kind = %v, want SymbolNotFound", ce.Kind)
	}
}

func TestExecute_BackoffEscalation_Exponential503(t *testing.T) {
	var delays []time.Duration
	p := New(Config{
		Enabled:      true,
		MaxRetries:   3,
		InitialDelay: time.Second,
		Multiplier:   2,
		MaxDelay:     10 * time.Second,
		Strategy:     Exponential,
		Jitter:       false,
		OnRetry: func(attempt int, err *classify.Error, delay time.Duration) {
			delays = append(delays, delay)
		},
	})

	calls := 0
	_, err := p.Execute(context.Background(), func(context.Context) (any, error) {
		calls++
		if calls <= 3 {
			return nil, &classify.HTTPError{Status: 503, Message: "service unavailable"}
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if calls != 4 {
		t.Errorf("calls = %d, want 4", calls)
	}

	want := []time.Duration{1500 * time.Millisecond, 3000 * time.Millisecond, 6000 * time.Millisecond}
	if len(delays) != len(want) {
		t.Fatalf("len(delays) = %d, want %d: %v", len(delays), len(want), delays)
	}
	for i, d := range delays {
		if d != want[i] {
			t.Errorf("delays[%d] = %v, want %v", i, d, want[i])
		}
	}
}

func TestExecute_CookieSessionFastRetry(t *testing.T) {
	p := New(Config{
		Enabled:      true,
		MaxRetries:   2,
		InitialDelay: 200 * time.Millisecond,
		Jitter:       false,
	})

	calls := 0
	start := time.Now()
	_, err := p.Execute(context.Background(), func(context.Context) (any, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("invalid crumb token")
		}
		return "ok", nil
	})
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if elapsed >= 200*time.Millisecond {
		t.Errorf("elapsed = %v, want < base delay (cookie session retries at half delay)", elapsed)
	}
}

func TestDecorrelatedJitter_Floor(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := decorrelatedJitter(10 * time.Millisecond)
		if d < 100*time.Millisecond {
			t.Fatalf("jittered delay %v below 100ms floor", d)
		}
	}
}

func TestRateLimitRetryAfter_OverridesBase(t *testing.T) {
	p := New(Config{Enabled: true, MaxRetries: 1, InitialDelay: time.Millisecond, Jitter: false})
	var gotDelay time.Duration
	p.cfg.OnRetry = func(attempt int, err *classify.Error, delay time.Duration) {
		gotDelay = delay
	}
	_, _ = p.Execute(context.Background(), func(context.Context) (any, error) {
		retryAfter := 5 * time.Second
		return nil, &classify.Error{Kind: classify.RateLimit, Message: "429", RetryAfter: &retryAfter}
	})
	if gotDelay != 5*time.Second {
		t.Errorf("delay = %v, want 5s (from RetryAfter)", gotDelay)
	}
}
