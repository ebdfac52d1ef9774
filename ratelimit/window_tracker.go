package ratelimit

import (
	"time"

	"github.com/finflux/marketops/classify"
	"github.com/finflux/marketops/internal/window"
)

// endpointWindows holds the per-minute/per-hour sliding-window trackers
// for a single endpoint key.
type endpointWindows struct {
	minute *window.Bucketed
	hour   *window.Bucketed

	minuteLimit int
	hourLimit   int
}

func newEndpointWindows(minuteLimit, hourLimit int) *endpointWindows {
	return &endpointWindows{
		minute:      window.NewBucketed(time.Minute),
		hour:        window.NewBucketed(time.Hour),
		minuteLimit: minuteLimit,
		hourLimit:   hourLimit,
	}
}

// trackAndCheck records the call, then reports a RateLimit error if
// either window's count has exceeded its configured limit. The call
// being tracked counts toward the check (admit-then-track, kept
// intentionally rather than checking before recording).
func (e *endpointWindows) trackAndCheck(now time.Time) *classify.Error {
	e.minute.Track(now)
	e.hour.Track(now)

	if e.minuteLimit > 0 && e.minute.Count(now) > e.minuteLimit {
		retryAfter := 60 * time.Second
		return classify.New(classify.RateLimit, "per-minute request limit exceeded").WithRetryAfter(retryAfter)
	}
	if e.hourLimit > 0 && e.hour.Count(now) > e.hourLimit {
		retryAfter := time.Hour
		return classify.New(classify.RateLimit, "per-hour request limit exceeded").WithRetryAfter(retryAfter)
	}
	return nil
}

func (e *endpointWindows) reset() {
	e.minute.Reset()
	e.hour.Reset()
}
