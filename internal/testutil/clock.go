package testutil

import (
	"sync"

	"github.com/roach88/thyxel/internal/ir"
)

// ManualClock is a wall clock that only moves when a test moves it.
//
// It satisfies engine.Clock, so epoch boundaries can be crossed without
// sleeping: Advance(ir.SecondsPerDay * 7) ends a seven-day epoch.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type ManualClock struct {
	mu  sync.Mutex
	now int64
}

// NewManualClock creates a clock reading start (unix seconds).
func NewManualClock(start int64) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the current reading.
func (c *ManualClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to ts. Moving backwards is allowed; the engine treats
// time as an input, not an invariant.
func (c *ManualClock) Set(ts int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = ts
}

// Advance moves the clock forward by seconds and returns the new reading.
func (c *ManualClock) Advance(seconds int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += seconds
	return c.now
}

// AdvanceDays moves the clock forward by whole days.
func (c *ManualClock) AdvanceDays(days int64) int64 {
	return c.Advance(days * ir.SecondsPerDay)
}
