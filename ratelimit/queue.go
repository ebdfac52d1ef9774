package ratelimit

import (
	"context"
	"sync"

	"github.com/finflux/marketops/classify"
)

// Queue gates the global concurrency cap with a FIFO wait list, used
// when per-endpoint and sliding-window checks pass but
// max_concurrent in-flight calls are already running. Unlike a
// channel-based semaphore, waiters are released in arrival order and
// the release is event-driven (no polling), so a freed slot wakes the
// next waiter promptly instead of on the next poll tick.
type Queue struct {
	mu       sync.Mutex
	capacity int
	active   int
	maxWait  int
	waiters  []chan struct{}
	closed   bool
	done     chan struct{}
}

// NewQueue creates a queue admitting up to capacity concurrent holders
// and queueing at most maxWait additional waiters (0 = unbounded).
// capacity == 0 is honored literally: every Acquire call is rejected
// at once with RateLimit, since no slot is ever free.
// capacity < 0 is normalized to 1.
func NewQueue(capacity, maxWait int) *Queue {
	if capacity < 0 {
		capacity = 1
	}
	return &Queue{capacity: capacity, maxWait: maxWait, done: make(chan struct{})}
}

// Acquire blocks until a slot is free, the queue is full (returns
// RateLimit), the queue is shutting down (returns a cancellation
// error), or ctx is cancelled. A waiter channel is buffered and
// signalled by a send, never closed, so Release (a normal wakeup) and
// DrainWithError (a shutdown) can be told apart on the receive side.
func (q *Queue) Acquire(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return classify.New(classify.Timeout, "rate limiter queue is shutting down")
	}
	if q.capacity == 0 {
		q.mu.Unlock()
		return classify.New(classify.RateLimit, "rate limiter has zero concurrency capacity")
	}
	if q.active < q.capacity {
		q.active++
		q.mu.Unlock()
		return nil
	}
	if q.maxWait > 0 && len(q.waiters) >= q.maxWait {
		q.mu.Unlock()
		return classify.New(classify.RateLimit, "rate limiter queue is full")
	}
	ch := make(chan struct{}, 1)
	q.waiters = append(q.waiters, ch)
	q.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-q.done:
		q.removeWaiter(ch)
		// A concurrent Release may have popped this waiter before the
		// drain nilled the list; hand any token it sent back so the
		// slot is not lost.
		select {
		case <-ch:
			q.Release()
		default:
		}
		return classify.New(classify.Timeout, "rate limiter queue is shutting down")
	case <-ctx.Done():
		if !q.removeWaiter(ch) {
			// Either Release popped this waiter (its token is in
			// flight to ch — a buffered send that cannot block) or a
			// drain nilled the list and no token is coming. Take the
			// token if it arrives and pass the slot on.
			select {
			case <-ch:
				q.Release()
			case <-q.done:
			}
		}
		return classify.Wrap(classify.Timeout, ctx.Err(), "cancelled while queued")
	}
}

// Release frees a slot, handing it directly to the longest-waiting
// caller if one exists, otherwise decrementing active.
func (q *Queue) Release() {
	q.mu.Lock()
	if len(q.waiters) > 0 {
		next := q.waiters[0]
		q.waiters = q.waiters[1:]
		q.mu.Unlock()
		next <- struct{}{}
		return
	}
	if q.active > 0 {
		q.active--
	}
	q.mu.Unlock()
}

// removeWaiter drops ch from the queue if it is still waiting,
// reporting whether it was found (false means a Release or drain
// already took it off the list).
func (q *Queue) removeWaiter(ch chan struct{}) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, w := range q.waiters {
		if w == ch {
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the current queue (waiters) length.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiters)
}

// Active returns the current number of held slots.
func (q *Queue) Active() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active
}

// DrainWithError rejects every currently queued waiter with a
// cancellation error and puts the queue into a permanently closed
// state so subsequent Acquire calls fail immediately; used by
// graceful shutdown.
func (q *Queue) DrainWithError() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.waiters = nil
	q.mu.Unlock()
	close(q.done)
}
