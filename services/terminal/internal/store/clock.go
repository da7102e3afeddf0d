package store

import "sync/atomic"

// Token orders fetches by issue time. A response stamped with a lower token
// than the one already applied for the same resource is stale.
type Token int64

// Clock hands out strictly increasing tokens. Safe for concurrent use.
type Clock struct {
	seq atomic.Int64
}

func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt starts the clock at start, so tokens persisted by a previous
// run stay older than anything issued now.
func NewClockAt(start Token) *Clock {
	c := &Clock{}
	c.seq.Store(int64(start))
	return c
}

func (c *Clock) Next() Token {
	return Token(c.seq.Add(1))
}

func (c *Clock) Current() Token {
	return Token(c.seq.Load())
}

// Observe moves the clock forward to at least t.
func (c *Clock) Observe(t Token) {
	for {
		cur := c.seq.Load()
		if int64(t) <= cur {
			return
		}
		if c.seq.CompareAndSwap(cur, int64(t)) {
			return
		}
	}
}
