package engine

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/roach88/thyxel/internal/ir"
	"github.com/roach88/thyxel/internal/store"
	"github.com/roach88/thyxel/internal/testutil"
)

const genesis = int64(1_700_000_000)

var (
	authority = common.HexToAddress("0x00000000000000000000000000000000000a0001")
	alice     = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob       = common.HexToAddress("0x00000000000000000000000000000000000b0b00")
	carol     = common.HexToAddress("0x00000000000000000000000000000000000ca201")
	stranger  = common.HexToAddress("0x00000000000000000000000000000000000bad00")
)

// createTestStore creates a new temporary store for testing.
func createTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEngine returns an uninitialized engine on a manual clock at
// genesis.
func newTestEngine(t *testing.T) (*Engine, *testutil.ManualClock) {
	t.Helper()
	clock := testutil.NewManualClock(genesis)
	e := New(createTestStore(t),
		WithClock(clock),
		WithLogger(quietLogger()),
		WithRunIDGenerator(testutil.NewFixedRunIDGenerator("test-run")),
	)
	return e, clock
}

// defaultParams is the (burn=100, redist=100, maxWallet=500, days=7)
// genesis with a supply of one billion.
func defaultParams() ir.InitParams {
	return ir.InitParams{
		Authority:         authority,
		TotalSupply:       ir.MustAmount("1000000000"),
		BurnRateBps:       100,
		RedistRateBps:     100,
		MaxWalletBps:      500,
		EpochDurationDays: 7,
	}
}

// initEngine returns an engine initialized with defaultParams.
func initEngine(t *testing.T) (*Engine, *testutil.ManualClock) {
	t.Helper()
	e, clock := newTestEngine(t)
	_, err := e.Initialize(context.Background(), defaultParams())
	require.NoError(t, err)
	return e, clock
}

func amt(s string) *uint256.Int {
	return ir.MustAmount(s)
}

// requireCode asserts err is an engine Error with the given code.
func requireCode(t *testing.T, err error, code ErrorCode) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, CodeOf(err), "error: %v", err)
}

// transfer performs a transfer that must succeed.
func transfer(t *testing.T, e *Engine, from, to common.Address, amount string) TransferReceipt {
	t.Helper()
	r, err := e.Transfer(context.Background(), from, to, amt(amount))
	require.NoError(t, err)
	return r
}

func balance(t *testing.T, e *Engine, w common.Address) *uint256.Int {
	t.Helper()
	b, err := e.BalanceOf(context.Background(), w)
	require.NoError(t, err)
	return b
}

func eventCount(t *testing.T, e *Engine) int {
	t.Helper()
	events, err := e.Events(context.Background(), 0, MaxPageSize)
	require.NoError(t, err)
	return len(events)
}

// requireSupplyConserved asserts the balances sum to the total supply.
func requireSupplyConserved(t *testing.T, e *Engine) {
	t.Helper()
	ctx := context.Background()
	st, err := e.State(ctx)
	require.NoError(t, err)
	entries, err := e.Store().Balances(ctx)
	require.NoError(t, err)
	sum := new(uint256.Int)
	for _, b := range entries {
		sum.Add(sum, b.Amount)
	}
	require.Equal(t, st.TotalSupply, sum, "sum of balances must equal total supply")
}
