package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/finflux/marketops/classify"
)

func TestAdmit_AllowsWithinBurst(t *testing.T) {
	l := New(Config{Burst: 3, RefillPerSecond: 1, MaxConcurrent: 5})
	for i := 0; i < 3; i++ {
		release, err := l.Admit(context.Background(), "quote")
		if err != nil {
			t.Fatalf("Admit() #%d error = %v", i, err)
		}
		release()
	}
}

func TestAdmit_TokenBucketExhausted(t *testing.T) {
	l := New(Config{Burst: 1, RefillPerSecond: 0.001, MaxConcurrent: 5})
	release, err := l.Admit(context.Background(), "quote")
	if err != nil {
		t.Fatalf("first Admit() error = %v", err)
	}
	release()

	_, err = l.Admit(context.Background(), "quote")
	if err == nil {
		t.Fatal("expected rate limit error on exhausted bucket")
	}
	ce := classify.From(err)
	if ce.Kind != classify.RateLimit {
		t.Errorf("Kind = %v, want RateLimit", ce.Kind)
	}
}

func TestAdmit_ZeroMaxRequestsRejectsAll(t *testing.T) {
	l := New(Config{Burst: 0, RefillPerSecond: 1, MaxConcurrent: 0})
	for i := 0; i < 3; i++ {
		_, err := l.Admit(context.Background(), "quote")
		if err == nil {
			t.Fatalf("Admit() #%d succeeded, want rejection with zero capacity", i)
		}
		if classify.From(err).Kind != classify.RateLimit {
			t.Errorf("Admit() #%d Kind = %v, want RateLimit", i, classify.From(err).Kind)
		}
	}
}

func TestAdmit_PerEndpointInFlightCap(t *testing.T) {
	l := New(Config{Burst: 10, RefillPerSecond: 10, MaxConcurrent: 10, PerEndpointMaxInFlight: 1})
	release, err := l.Admit(context.Background(), "quote")
	if err != nil {
		t.Fatalf("first Admit() error = %v", err)
	}
	defer release()

	_, err = l.Admit(context.Background(), "quote")
	if err == nil {
		t.Fatal("expected per-endpoint in-flight rejection")
	}

	// A different endpoint is unaffected.
	release2, err := l.Admit(context.Background(), "historical")
	if err != nil {
		t.Fatalf("Admit() on different endpoint error = %v", err)
	}
	release2()
}

func TestAdmit_GlobalConcurrencyQueues(t *testing.T) {
	l := New(Config{Burst: 100, RefillPerSecond: 100, MaxConcurrent: 1})
	release1, err := l.Admit(context.Background(), "quote")
	if err != nil {
		t.Fatalf("Admit() #1 error = %v", err)
	}

	done := make(chan struct{})
	go func() {
		release2, err := l.Admit(context.Background(), "historical")
		if err != nil {
			t.Errorf("Admit() #2 error = %v", err)
			close(done)
			return
		}
		release2()
		close(done)
	}()

	// Give the second Admit time to enqueue.
	time.Sleep(20 * time.Millisecond)
	if l.queue.Len() != 1 {
		t.Errorf("queue length = %d, want 1", l.queue.Len())
	}
	release1()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("queued caller was never admitted after release")
	}
}

func TestAdmit_SlidingWindowMinuteLimit(t *testing.T) {
	l := New(Config{Burst: 100, RefillPerSecond: 100, MaxConcurrent: 100, MinuteLimit: 2, HourLimit: 1000})
	for i := 0; i < 2; i++ {
		release, err := l.Admit(context.Background(), "quote")
		if err != nil {
			t.Fatalf("Admit() #%d error = %v", i, err)
		}
		release()
	}
	_, err := l.Admit(context.Background(), "quote")
	if err == nil {
		t.Fatal("expected per-minute limit rejection")
	}
	ce := classify.From(err)
	if ce.Kind != classify.RateLimit || ce.RetryAfter == nil {
		t.Errorf("got Kind=%v RetryAfter=%v, want RateLimit with RetryAfter set", ce.Kind, ce.RetryAfter)
	}
}

func TestMetrics_IsRateLimitedTracksBucket(t *testing.T) {
	l := New(Config{Burst: 1, RefillPerSecond: 0.001, MaxConcurrent: 5})
	if l.Metrics().IsRateLimited {
		t.Error("IsRateLimited = true before any admission")
	}
	release, err := l.Admit(context.Background(), "quote")
	if err != nil {
		t.Fatalf("Admit() error = %v", err)
	}
	release()
	if !l.Metrics().IsRateLimited {
		t.Error("IsRateLimited = false with the bucket exhausted")
	}
}

func TestAdaptive_DecrementsOnLowRemaining(t *testing.T) {
	a := NewAdaptive(1, 100, 100)
	a.ObserveHeaders(map[string]string{"x-ratelimit-remaining": "5"})
	if got := a.CurrentLimit(); got != 90 {
		t.Errorf("CurrentLimit() = %d, want 90", got)
	}
	if !a.PredictDanger() {
		t.Error("PredictDanger() = false, want true after low remaining")
	}
}

func TestAdaptive_IncrementsAfterFiveSuccesses(t *testing.T) {
	a := NewAdaptive(1, 100, 50)
	for i := 0; i < 5; i++ {
		a.ObserveHeaders(map[string]string{"x-ratelimit-remaining": "49"})
	}
	if got := a.CurrentLimit(); got != 55 {
		t.Errorf("CurrentLimit() = %d, want 55", got)
	}
}

func TestAdaptive_RetryAfterForcesDecrement(t *testing.T) {
	a := NewAdaptive(1, 100, 100)
	a.ObserveHeaders(map[string]string{"retry-after": "30"})
	if got := a.CurrentLimit(); got != 90 {
		t.Errorf("CurrentLimit() = %d, want 90", got)
	}
	// One retry-after is one consecutive failure; danger needs two.
	if a.PredictDanger() {
		t.Error("PredictDanger() = true, want false after a single retry-after")
	}
}

func TestQueue_RejectsWhenWaitersExceedMax(t *testing.T) {
	q := NewQueue(1, 1)
	if err := q.Acquire(context.Background()); err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	// Second caller queues (maxWait=1).
	errc := make(chan error, 1)
	go func() { errc <- q.Acquire(context.Background()) }()
	time.Sleep(20 * time.Millisecond)

	// Third caller should be rejected outright.
	if err := q.Acquire(context.Background()); err == nil {
		t.Error("expected queue-full rejection for third caller")
	}

	q.Release()
	if err := <-errc; err != nil {
		t.Errorf("queued caller error = %v", err)
	}
}

func TestTokenBucket_RefillsOverTime(t *testing.T) {
	b := NewTokenBucket(2, 100) // 100 tokens/sec refill
	if !b.Consume(2) {
		t.Fatal("expected initial consume of 2 to succeed")
	}
	if b.Consume(1) {
		t.Fatal("expected consume to fail immediately after exhausting bucket")
	}
	time.Sleep(20 * time.Millisecond)
	if !b.Consume(1) {
		t.Error("expected consume to succeed after refill")
	}
}
