package engine

import "sync/atomic"

// Clock hands out generation tokens.
//
// Epochs (one per activation) and load generations (one per bulk load) are
// drawn from a single counter, so no two tokens in a session are equal and a
// later token always compares greater. A completion is current only while the
// token it carries is still the session's; the ledger compares reset and
// fetch tokens the same way.
type Clock struct {
	last atomic.Int64
}

// NewClock returns a clock whose first token is 1. A zero token therefore
// means "never issued".
func NewClock() *Clock { return new(Clock) }

// Epoch issues the token for a new activation.
func (c *Clock) Epoch() int64 { return c.tick() }

// Load issues the token for a new bulk load.
func (c *Clock) Load() int64 { return c.tick() }

// Tick issues an untyped token, for callers that only need ordering.
func (c *Clock) Tick() int64 { return c.tick() }

// Last reports the most recent token, or 0 before the first.
func (c *Clock) Last() int64 { return c.last.Load() }

func (c *Clock) tick() int64 { return c.last.Add(1) }
