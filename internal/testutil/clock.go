// Package testutil holds deterministic time and id sources shared by the
// engine tests and the scenario harness.
package testutil

import (
	"sync"
	"time"
)

// Epoch is the default start time of a ManualTime.
var Epoch = time.Date(2024, time.January, 1, 9, 0, 0, 0, time.UTC)

// ManualTime is a wall clock that only moves when told to.
//
// Pass its Now method wherever a component accepts a time source, e.g.
// upload.WithNow, so orphan expiry can be exercised without sleeping.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type ManualTime struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualTime creates a clock reading start. A zero start reads Epoch.
func NewManualTime(start time.Time) *ManualTime {
	if start.IsZero() {
		start = Epoch
	}
	return &ManualTime{now: start}
}

// Now returns the current reading.
func (c *ManualTime) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new reading.
// Negative durations are ignored; the clock never runs backwards.
func (c *ManualTime) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.now = c.now.Add(d)
	}
	return c.now
}

// Set jumps to t.
func (c *ManualTime) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
