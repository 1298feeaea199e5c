package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/thyxel/internal/ir"
)

func TestManualClock_StartsAtGivenTime(t *testing.T) {
	clock := NewManualClock(1_700_000_000)
	assert.Equal(t, int64(1_700_000_000), clock.Now())
}

func TestManualClock_Advance(t *testing.T) {
	clock := NewManualClock(100)

	assert.Equal(t, int64(160), clock.Advance(60))
	assert.Equal(t, int64(160), clock.Now())

	clock.AdvanceDays(7)
	assert.Equal(t, int64(160+7*ir.SecondsPerDay), clock.Now())
}

func TestManualClock_Set(t *testing.T) {
	clock := NewManualClock(100)
	clock.Set(42)
	assert.Equal(t, int64(42), clock.Now())
}

func TestManualClock_ThreadSafe(t *testing.T) {
	clock := NewManualClock(0)
	const numGoroutines = 50
	const callsPerGoroutine = 100

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				clock.Advance(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(numGoroutines*callsPerGoroutine), clock.Now())
}

func TestFixedRunIDGenerator(t *testing.T) {
	assert.Equal(t, "run-1", NewFixedRunIDGenerator("run-1").Generate())
	assert.Equal(t, "test-run-default", NewFixedRunIDGenerator("").Generate())
}
