package circuit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/finflux/marketops/classify"
)

func okOp(context.Context) (any, error)  { return "ok", nil }
func errOp(msg string) func(context.Context) (any, error) {
	return func(context.Context) (any, error) { return nil, errors.New(msg) }
}

func TestNew_Defaults(t *testing.T) {
	b := New(Config{})
	if b.cfg.ThresholdFailures != 5 {
		t.Errorf("ThresholdFailures = %d, want 5", b.cfg.ThresholdFailures)
	}
	if b.State() != Closed {
		t.Errorf("initial state = %v, want Closed", b.State())
	}
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	b := New(Config{ThresholdFailures: 3, MonitoringWindow: time.Minute, ResetTimeout: time.Hour})

	for i := 0; i < 2; i++ {
		if _, err := b.Execute(context.Background(), errOp("boom")); err == nil {
			t.Fatal("expected error")
		}
		if b.State() != Closed {
			t.Fatalf("after %d failures, state = %v, want Closed", i+1, b.State())
		}
	}

	if _, err := b.Execute(context.Background(), errOp("boom")); err == nil {
		t.Fatal("expected error")
	}
	if b.State() != Open {
		t.Fatalf("after threshold failures, state = %v, want Open", b.State())
	}
}

func TestBreaker_ThresholdOne_OpensImmediately(t *testing.T) {
	b := New(Config{ThresholdFailures: 1})
	if _, err := b.Execute(context.Background(), errOp("boom")); err == nil {
		t.Fatal("expected error")
	}
	if b.State() != Open {
		t.Fatalf("state = %v, want Open", b.State())
	}
}

func TestBreaker_RejectsWhileOpen(t *testing.T) {
	b := New(Config{ThresholdFailures: 1, ResetTimeout: time.Hour})
	b.Execute(context.Background(), errOp("boom"))

	called := false
	_, err := b.Execute(context.Background(), func(context.Context) (any, error) {
		called = true
		return nil, nil
	})
	if called {
		t.Error("op should not have been called while circuit is open")
	}
	ce := classify.From(err)
	if ce == nil || ce.Kind != classify.CircuitOpen {
		t.Fatalf("expected CircuitOpen error, got %v", err)
	}
}

func TestBreaker_HalfOpenClosesOnSuccess(t *testing.T) {
	b := New(Config{ThresholdFailures: 1, ResetTimeout: 10 * time.Millisecond, ThresholdSuccesses: 1})
	b.Execute(context.Background(), errOp("boom"))
	if b.State() != Open {
		t.Fatal("expected Open")
	}

	time.Sleep(15 * time.Millisecond)

	if _, err := b.Execute(context.Background(), okOp); err != nil {
		t.Fatalf("half-open probe should succeed: %v", err)
	}
	if b.State() != Closed {
		t.Fatalf("state after successful probe = %v, want Closed", b.State())
	}
}

func TestBreaker_HalfOpenReopensOnFailure(t *testing.T) {
	b := New(Config{ThresholdFailures: 1, ResetTimeout: 10 * time.Millisecond})
	b.Execute(context.Background(), errOp("boom"))
	time.Sleep(15 * time.Millisecond)

	b.Execute(context.Background(), errOp("still failing"))
	if b.State() != Open {
		t.Fatalf("state after failed probe = %v, want Open", b.State())
	}
}

func TestBreaker_Fallback(t *testing.T) {
	fallbackCalled := false
	b := New(Config{
		ThresholdFailures: 1,
		ResetTimeout:      time.Hour,
		Fallback: func(ctx context.Context, err *classify.Error) (any, error) {
			fallbackCalled = true
			return "fallback-value", nil
		},
	})
	b.Execute(context.Background(), errOp("boom")) // opens circuit, fallback invoked

	result, err := b.Execute(context.Background(), okOp)
	if err != nil {
		t.Fatalf("fallback should have suppressed error: %v", err)
	}
	if result != "fallback-value" {
		t.Errorf("result = %v, want fallback-value", result)
	}
	if !fallbackCalled {
		t.Error("fallback should have been called")
	}
}

func TestBreaker_Reset(t *testing.T) {
	b := New(Config{ThresholdFailures: 1})
	b.Execute(context.Background(), errOp("boom"))
	if b.State() != Open {
		t.Fatal("expected Open before reset")
	}
	b.Reset()
	if b.State() != Closed {
		t.Errorf("state after Reset = %v, want Closed", b.State())
	}
	m := b.Metrics()
	if m.FailureCount != 0 {
		t.Errorf("FailureCount after Reset = %d, want 0", m.FailureCount)
	}
}

func TestBreaker_RollingWindowAgesOutFailures(t *testing.T) {
	b := New(Config{ThresholdFailures: 2, MonitoringWindow: 20 * time.Millisecond, ResetTimeout: time.Hour})
	b.Execute(context.Background(), errOp("boom"))
	time.Sleep(30 * time.Millisecond) // failure ages out of the window

	b.Execute(context.Background(), errOp("boom again"))
	if b.State() != Closed {
		t.Fatalf("state = %v, want Closed (first failure should have aged out)", b.State())
	}
}
