package observe

import (
	"context"
	"errors"
	"testing"
)

func disabledConfig() Config {
	return Config{
		ServiceName: "observe-test",
		Tracing:     TracingConfig{Enabled: false, Exporter: "none"},
		Metrics:     MetricsConfig{Enabled: false, Exporter: "none"},
		Logging:     LoggingConfig{Enabled: false, Level: "info"},
	}
}

func TestObserverContract_Noops(t *testing.T) {
	obs, err := NewObserver(context.Background(), disabledConfig())
	if err != nil {
		t.Fatalf("NewObserver failed: %v", err)
	}

	if obs.Tracer() == nil {
		t.Fatalf("expected non-nil tracer")
	}
	if obs.Meter() == nil {
		t.Fatalf("expected non-nil meter")
	}
	if obs.Logger() == nil {
		t.Fatalf("expected non-nil logger")
	}
}

func TestLoggerContract_With(t *testing.T) {
	logger := &noopLogger{}
	if logger.With(Field{Key: "endpoint", Value: "quote"}) == nil {
		t.Fatalf("With should return non-nil logger")
	}
}

// Instruments built on an all-disabled Observer must be usable no-ops.
func TestInstrumentsContract_DisabledObserver(t *testing.T) {
	obs, err := NewObserver(context.Background(), disabledConfig())
	if err != nil {
		t.Fatalf("NewObserver failed: %v", err)
	}
	in, err := NewInstruments(obs)
	if err != nil {
		t.Fatalf("NewInstruments failed: %v", err)
	}

	ctx := context.Background()
	_, finish := in.StartCall(ctx, "quote", "quote:AAPL")
	finish(errors.New("server error 503"))
	in.RecordFallback(ctx, "quote", "rate_limit")
	in.RecordRetry(ctx, 1)
	in.RecordTransition(ctx, "half-open")

	unregister, err := in.ObserveStats(func() StatsSample { return StatsSample{} })
	if err != nil {
		t.Fatalf("ObserveStats failed: %v", err)
	}
	if err := unregister(); err != nil {
		t.Errorf("unregister failed: %v", err)
	}
}
