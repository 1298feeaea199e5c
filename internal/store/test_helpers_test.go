package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/roach88/thyxel/internal/ir"
)

// createTestStore creates a new temporary store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// update runs fn in a transaction and fails the test on error.
func update(t *testing.T, s *Store, fn func(*Tx) error) {
	t.Helper()
	require.NoError(t, s.Update(context.Background(), fn))
}

func addr(hex string) common.Address {
	return common.HexToAddress(hex)
}

// createTestState returns a freshly initialized ledger state.
func createTestState() ir.LedgerState {
	stats := ir.NewEpochStats()
	return ir.LedgerState{
		Lifecycle:   ir.LifecycleActive,
		Authority:   addr("0xa11ce"),
		Reserve:     ir.DefaultReserveAddress,
		TotalSupply: ir.MustAmount("1000000000"),
		Genome: ir.Genome{
			BurnRateBps:           100,
			RedistRateBps:         100,
			MaxWalletBps:          500,
			EpochDurationDays:     7,
			LastMutationTimestamp: 1_700_000_000,
			NextMutationTimestamp: 1_700_000_000 + 7*ir.SecondsPerDay,
		},
		Stats:         stats,
		InitializedAt: 1_700_000_000,
	}
}

// createTestDNA returns a DNA record with the given last activity.
func createTestDNA(wallet common.Address, lastTx int64, activity uint8) ir.WalletDNA {
	d := ir.NewWalletDNA(wallet)
	d.Loyalty = 10
	d.Activity = activity
	d.Appetite = 128
	d.TxCount = 3
	d.FirstTxTimestamp = lastTx - 100
	d.LastTxTimestamp = lastTx
	d.TotalVolume = ir.MustAmount("12345")
	return d
}
