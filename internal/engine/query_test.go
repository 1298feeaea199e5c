package engine

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/thyxel/internal/ir"
	"github.com/roach88/thyxel/internal/testutil"
)

func TestPageSize(t *testing.T) {
	assert.Equal(t, DefaultPageSize, pageSize(0))
	assert.Equal(t, DefaultPageSize, pageSize(-3))
	assert.Equal(t, 7, pageSize(7))
	assert.Equal(t, MaxPageSize, pageSize(MaxPageSize+1))
}

func TestFossils_Paginated(t *testing.T) {
	e, clock := initEngine(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		transfer(t, e, authority, common.BigToAddress(big.NewInt(int64(0x500+i))), "1")
	}
	clock.AdvanceDays(30)
	_, err := e.TriggerMutation(ctx)
	require.NoError(t, err)

	var seen []uint64
	for offset := uint64(0); ; {
		page, err := e.Fossils(ctx, offset, 2)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		for _, f := range page {
			seen = append(seen, f.FossilIndex)
		}
		offset += uint64(len(page))
	}
	assert.Equal(t, []uint64{0, 1, 2, 3, 4}, seen, "the excluded authority is never archived")
}

func TestEvents_Paginated(t *testing.T) {
	e, _ := initEngine(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		transfer(t, e, authority, alice, "1")
	}

	page, err := e.Events(ctx, 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ir.EventInitialized, page[0].Kind)

	rest, err := e.Events(ctx, page[1].Seq, 10)
	require.NoError(t, err)
	require.Len(t, rest, 3)
	assert.Equal(t, int64(5), rest[2].Seq)
	for _, ev := range rest {
		assert.Equal(t, ir.EventTransfer, ev.Kind)
		amount, err := ev.Payload.String("amount")
		require.NoError(t, err)
		assert.Equal(t, "1", amount)
	}
}

// runHistory drives a fixed sequence of commands exercising every
// entrypoint.
func runHistory(t *testing.T, e *Engine, clock *testutil.ManualClock) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, e.SetExcluded(ctx, authority, carol, true))
	transfer(t, e, authority, alice, "20000000")
	transfer(t, e, authority, bob, "10000000")
	transfer(t, e, authority, carol, "300000000")
	transfer(t, e, alice, bob, "123456")
	_, err := e.UpdateDNA(ctx, stranger, amt("42"))
	require.NoError(t, err)

	clock.AdvanceDays(7)
	_, err = e.TriggerMutation(ctx)
	require.NoError(t, err)

	_, err = e.SetEpochDuration(ctx, authority, 3)
	require.NoError(t, err)
	transfer(t, e, bob, alice, "5000")

	clock.AdvanceDays(30)
	_, _, err = e.MintFossil(ctx, stranger)
	require.NoError(t, err)
	_, err = e.TriggerMutation(ctx)
	require.NoError(t, err)

	require.NoError(t, e.ReleaseToTheWild(ctx, authority))
	transfer(t, e, carol, alice, "777")
}

func TestStateDigest_Deterministic(t *testing.T) {
	var digests []common.Hash
	for i := 0; i < 2; i++ {
		e, clock := initEngine(t)
		runHistory(t, e, clock)
		d, err := e.StateDigest(context.Background())
		require.NoError(t, err)
		digests = append(digests, d)
	}
	assert.Equal(t, digests[0], digests[1])
}

func TestStateDigest_ChangesWithState(t *testing.T) {
	e, _ := initEngine(t)
	ctx := context.Background()

	before, err := e.StateDigest(ctx)
	require.NoError(t, err)
	transfer(t, e, authority, alice, "1")
	after, err := e.StateDigest(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, before, after)
}
