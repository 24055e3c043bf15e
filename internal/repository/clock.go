package repository

import (
	"sync"
	"time"
)

// Clock issues strictly increasing UTC timestamps at microsecond granularity.
// The delta query relies on updated_at alone, so two writes landing in the
// same wall-clock tick must still be individually observable by any
// `updated_at > T` query.
type Clock struct {
	mu   sync.Mutex
	last time.Time
}

// NewClock creates a monotonic write clock.
func NewClock() *Clock {
	return &Clock{}
}

// Now returns a timestamp strictly greater than every previous return value.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UTC().Truncate(time.Microsecond)
	if !now.After(c.last) {
		now = c.last.Add(time.Microsecond)
	}
	c.last = now
	return now
}
