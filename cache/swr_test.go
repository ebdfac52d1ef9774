package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGetWithRevalidation_FreshReturnsImmediately(t *testing.T) {
	c := NewMemoryCache(Policy{DefaultTTL: time.Hour})
	ctx := context.Background()
	_ = c.Set(ctx, "k", []byte("cached"), time.Hour)

	var calls int32
	produce := func(context.Context) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return []byte("new"), nil
	}

	v, err := c.GetWithRevalidation(ctx, "k", produce)
	if err != nil {
		t.Fatalf("GetWithRevalidation() error = %v", err)
	}
	if string(v) != "cached" {
		t.Errorf("value = %q, want %q (fresh entry, no produce call)", v, "cached")
	}
	if calls != 0 {
		t.Errorf("produce calls = %d, want 0", calls)
	}
}

func TestGetWithRevalidation_AbsentBlocksOnProduce(t *testing.T) {
	c := NewMemoryCache(Policy{DefaultTTL: time.Hour})
	produce := func(context.Context) ([]byte, error) { return []byte("produced"), nil }

	v, err := c.GetWithRevalidation(context.Background(), "missing", produce)
	if err != nil {
		t.Fatalf("GetWithRevalidation() error = %v", err)
	}
	if string(v) != "produced" {
		t.Errorf("value = %q, want %q", v, "produced")
	}
	if cached, ok := c.Get(context.Background(), "missing"); !ok || string(cached) != "produced" {
		t.Error("expected produced value to be stored")
	}
}

func TestGetWithRevalidation_AbsentPropagatesProduceError(t *testing.T) {
	c := NewMemoryCache(Policy{DefaultTTL: time.Hour})
	wantErr := errors.New("upstream unavailable")
	produce := func(context.Context) ([]byte, error) { return nil, wantErr }

	_, err := c.GetWithRevalidation(context.Background(), "missing", produce)
	if err != wantErr {
		t.Errorf("error = %v, want %v", err, wantErr)
	}
}

// TestGetWithRevalidation_StaleCoalescesProducers: a stale entry is
// read by 10 concurrent callers, each should get the stale value
// immediately, and exactly one background producer should run.
func TestGetWithRevalidation_StaleCoalescesProducers(t *testing.T) {
	c := NewMemoryCache(Policy{DefaultTTL: 100 * time.Millisecond})
	ctx := context.Background()
	_ = c.Set(ctx, "k", []byte("stale"), 100*time.Millisecond)

	// Age the entry into the stale window (TTL*0.5 <= age < TTL).
	time.Sleep(60 * time.Millisecond)

	var calls int32
	started := make(chan struct{})
	release := make(chan struct{})
	produce := func(context.Context) ([]byte, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(started)
			<-release
		}
		return []byte("fresh"), nil
	}

	var wg sync.WaitGroup
	results := make([]string, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			v, err := c.GetWithRevalidation(ctx, "k", produce)
			if err != nil {
				t.Errorf("GetWithRevalidation() error = %v", err)
				return
			}
			results[idx] = string(v)
		}(i)
	}

	wg.Wait()
	<-started
	close(release)
	c.Wait()

	for i, r := range results {
		if r != "stale" {
			t.Errorf("results[%d] = %q, want %q (immediate stale read)", i, r, "stale")
		}
	}
	if calls != 1 {
		t.Errorf("produce calls = %d, want 1 (coalesced)", calls)
	}

	v, ok := c.Get(ctx, "k")
	if !ok || string(v) != "fresh" {
		t.Errorf("after revalidation, Get() = (%q, %v), want (\"fresh\", true)", v, ok)
	}
}

func TestGetWithRevalidation_StaleRevalidationFailureKeepsOldValue(t *testing.T) {
	c := NewMemoryCache(Policy{DefaultTTL: 100 * time.Millisecond})
	ctx := context.Background()
	_ = c.Set(ctx, "k", []byte("stale"), 100*time.Millisecond)
	time.Sleep(60 * time.Millisecond)

	produce := func(context.Context) ([]byte, error) {
		return nil, errors.New("produce failed")
	}

	v, err := c.GetWithRevalidation(ctx, "k", produce)
	if err != nil {
		t.Fatalf("GetWithRevalidation() error = %v, want nil (stale value served)", err)
	}
	if string(v) != "stale" {
		t.Errorf("value = %q, want %q", v, "stale")
	}
	c.Wait()

	// The failed background revalidation must not evict the entry.
	if cached, ok := c.Get(ctx, "k"); !ok || string(cached) != "stale" {
		t.Errorf("after failed revalidation, Get() = (%q, %v), want stale value preserved", cached, ok)
	}
}

func TestWarm_PopulatesKeysAndReportsFailures(t *testing.T) {
	c := NewMemoryCache(Policy{DefaultTTL: time.Hour})
	ctx := context.Background()

	keys := make([]string, 25)
	for i := range keys {
		keys[i] = string(rune('a' + i))
	}

	var failures []string
	var mu sync.Mutex
	produce := func(_ context.Context, key string) ([]byte, error) {
		if key == "c" {
			return nil, errors.New("boom")
		}
		return []byte("v:" + key), nil
	}

	c.Warm(ctx, keys, produce, func(key string, err error) {
		mu.Lock()
		failures = append(failures, key)
		mu.Unlock()
	})

	if len(failures) != 1 || failures[0] != "c" {
		t.Errorf("failures = %v, want [c]", failures)
	}
	for _, k := range keys {
		if k == "c" {
			continue
		}
		if _, ok := c.Get(ctx, k); !ok {
			t.Errorf("expected key %q to be warmed", k)
		}
	}
}
