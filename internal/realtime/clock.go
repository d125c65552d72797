package realtime

import "sync/atomic"

// Clock is a monotonic logical clock. Every event received on the channel
// is stamped with a strictly increasing seq so log lines for one
// connection's traffic can be ordered without trusting wall clocks.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0; the first Next returns 1.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
