package cache

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// GetWithRevalidation is the SWR primitive: fresh entries return
// immediately; stale entries return immediately and queue a
// background produce call; absent or expired entries block the
// caller on produce. Concurrent callers for the same key coalesce
// onto one in-flight produce call via singleflight rather than each
// starting their own.
func (c *MemoryCache) GetWithRevalidation(ctx context.Context, key string, produce Produce) ([]byte, error) {
	c.mu.Lock()
	el, ok := c.index[key]
	if ok {
		entry := el.Value.(*Entry)
		state := entry.FreshnessState(time.Now())
		if state == Expired {
			// Expired counts as a miss and blocks on produce below.
			c.misses++
			c.mu.Unlock()
		} else {
			value := entry.Value
			entry.HitCount++
			c.ll.MoveToFront(el)
			c.hits++
			c.mu.Unlock()

			if state == Stale {
				c.scheduleRevalidate(key, produce)
			}
			return value, nil
		}
	} else {
		c.misses++
		c.mu.Unlock()
	}

	result, err, _ := c.group.Do(key, func() (any, error) {
		return produce(ctx)
	})
	if err != nil {
		return nil, err
	}
	value := result.([]byte)
	_ = c.Set(ctx, key, value, 0)
	return value, nil
}

// scheduleRevalidate launches produce in the background for key. The
// pending table guarantees at most one revalidation task per key:
// every stale hit calls this, but only the first actually schedules
// anything until that task completes. A failure leaves the existing
// stale entry in place rather than evicting it — the next caller
// either gets the same stale value again or, once it expires, blocks
// on a fresh attempt.
func (c *MemoryCache) scheduleRevalidate(key string, produce Produce) {
	c.mu.Lock()
	if _, inFlight := c.pending[key]; inFlight {
		c.mu.Unlock()
		return
	}
	c.pending[key] = struct{}{}
	c.mu.Unlock()

	c.background.Add(1)
	go func() {
		defer c.background.Done()
		defer func() {
			c.mu.Lock()
			delete(c.pending, key)
			c.mu.Unlock()
		}()
		value, err, _ := c.group.Do(key, func() (any, error) {
			return produce(context.Background())
		})
		if err != nil {
			return
		}
		_ = c.Set(context.Background(), key, value.([]byte), 0)
	}()
}

// Warm pre-populates keys in parallel, batched in chunks of ~10
// concurrent producers. Individual failures are reported via
// onFailure but never abort the batch.
func (c *MemoryCache) Warm(ctx context.Context, keys []string, produce func(ctx context.Context, key string) ([]byte, error), onFailure FailureCallback) {
	const chunkSize = 10
	for start := 0; start < len(keys); start += chunkSize {
		end := min(start+chunkSize, len(keys))
		chunk := keys[start:end]

		g, gctx := errgroup.WithContext(ctx)
		for _, key := range chunk {
			key := key
			g.Go(func() error {
				value, err := produce(gctx, key)
				if err != nil {
					if onFailure != nil {
						onFailure(key, err)
					}
					return nil
				}
				return c.Set(gctx, key, value, 0)
			})
		}
		_ = g.Wait()
	}
}

// Wait blocks until every scheduled background revalidation has
// finished, for use during graceful shutdown.
func (c *MemoryCache) Wait() {
	c.background.Wait()
}
