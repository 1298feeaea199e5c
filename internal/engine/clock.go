package engine

import (
	"sync/atomic"
	"time"
)

// Clock supplies wall time in unix seconds. The engine reads it once per
// entrypoint; every timestamp written by that call is the same reading.
type Clock interface {
	Now() int64
}

// SystemClock reads the host clock.
type SystemClock struct{}

// Now returns the current unix time.
func (SystemClock) Now() int64 {
	return time.Now().Unix()
}

// FixedClock always returns the same instant.
type FixedClock int64

// Now returns the fixed instant.
func (c FixedClock) Now() int64 {
	return int64(c)
}

// replayClock is driven by Replay: each recorded event sets it to the
// event's timestamp before the command is re-executed.
type replayClock struct {
	now atomic.Int64
}

func (c *replayClock) Now() int64 {
	return c.now.Load()
}

func (c *replayClock) set(ts int64) {
	c.now.Store(ts)
}
