package recorder

import (
	"sync/atomic"
	"time"
)

// monotonicClock hands out strictly increasing timestamps at microsecond
// resolution, the finest every store keeps. When the wall clock stalls or
// steps back, the next timestamp is the previous one plus a microsecond.
type monotonicClock struct {
	now  func() time.Time
	last atomic.Int64
}

func newMonotonicClock(now func() time.Time) *monotonicClock {
	if now == nil {
		now = time.Now
	}
	return &monotonicClock{now: now}
}

func (c *monotonicClock) Next() time.Time {
	for {
		n := c.now().UnixMicro()
		prev := c.last.Load()
		if n <= prev {
			n = prev + 1
		}
		if c.last.CompareAndSwap(prev, n) {
			return time.UnixMicro(n).UTC()
		}
	}
}
