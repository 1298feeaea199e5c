package tax

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/thyxel/internal/ir"
)

func genome(burn, redist, maxWallet uint16) ir.Genome {
	return ir.Genome{BurnRateBps: burn, RedistRateBps: redist, MaxWalletBps: maxWallet, EpochDurationDays: 7}
}

func TestApplyTransferTax_Basic(t *testing.T) {
	b, err := ApplyTransferTax(uint256.NewInt(500_000), false, false, genome(100, 100, 500))
	require.NoError(t, err)

	assert.Equal(t, uint64(5_000), b.Burn.Uint64())
	assert.Equal(t, uint64(5_000), b.Redist.Uint64())
	assert.Equal(t, uint64(490_000), b.Net.Uint64())
	assert.False(t, b.Exempt)
	assert.True(t, b.Taxed())
}

func TestApplyTransferTax_FloorRounding(t *testing.T) {
	// 99 * 100 / 10000 = 0.99 -> 0
	b, err := ApplyTransferTax(uint256.NewInt(99), false, false, genome(100, 100, 500))
	require.NoError(t, err)

	assert.True(t, b.Burn.IsZero())
	assert.True(t, b.Redist.IsZero())
	assert.Equal(t, uint64(99), b.Net.Uint64())
	assert.False(t, b.Taxed())
}

func TestApplyTransferTax_ExcludedEitherSide(t *testing.T) {
	g := genome(500, 500, 500)
	for _, tc := range []struct {
		name              string
		sender, recipient bool
	}{
		{"sender", true, false},
		{"recipient", false, true},
		{"both", true, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			b, err := ApplyTransferTax(uint256.NewInt(1_000), tc.sender, tc.recipient, g)
			require.NoError(t, err)
			assert.True(t, b.Exempt)
			assert.Equal(t, uint64(1_000), b.Net.Uint64())
			assert.True(t, b.Burn.IsZero())
			assert.True(t, b.Redist.IsZero())
		})
	}
}

func TestApplyTransferTax_ConservesAmount(t *testing.T) {
	amounts := []uint64{0, 1, 9, 10_000, 12_345, 999_999_999, 1 << 62}
	rates := [][2]uint16{{10, 10}, {100, 250}, {500, 500}, {37, 411}}

	for _, a := range amounts {
		for _, r := range rates {
			amount := uint256.NewInt(a)
			b, err := ApplyTransferTax(amount, false, false, genome(r[0], r[1], 500))
			require.NoError(t, err)

			sum := new(uint256.Int).Add(b.Burn, b.Redist)
			sum.Add(sum, b.Net)
			assert.True(t, sum.Eq(amount), "amount=%d rates=%v", a, r)
			assert.False(t, b.Net.Gt(amount))
		}
	}
}

func TestApplyTransferTax_Overflow(t *testing.T) {
	huge := new(uint256.Int).SetAllOne()

	_, err := ApplyTransferTax(huge, false, false, genome(100, 100, 500))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrArithmeticOverflow))
}

func TestApplyTransferTax_OverflowIgnoredWhenExempt(t *testing.T) {
	huge := new(uint256.Int).SetAllOne()

	b, err := ApplyTransferTax(huge, true, false, genome(100, 100, 500))
	require.NoError(t, err)
	assert.True(t, b.Net.Eq(huge))
}

func TestCheckMaxWallet_Boundary(t *testing.T) {
	supply := uint256.NewInt(1_000_000)
	// 5% of 1,000,000 = 50,000

	err := CheckMaxWallet(uint256.NewInt(10_000), uint256.NewInt(40_000), supply, 500, false)
	assert.NoError(t, err, "exactly at cap must pass")

	err = CheckMaxWallet(uint256.NewInt(10_000), uint256.NewInt(40_001), supply, 500, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExceedsMaxWallet))
}

func TestCheckMaxWallet_ExcludedRecipient(t *testing.T) {
	err := CheckMaxWallet(uint256.NewInt(0), uint256.NewInt(1_000_000), uint256.NewInt(1_000_000), 1, true)
	assert.NoError(t, err)
}

func TestCheckMaxWallet_BalanceOverflow(t *testing.T) {
	err := CheckMaxWallet(new(uint256.Int).SetAllOne(), uint256.NewInt(1), uint256.NewInt(100), 500, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrArithmeticOverflow))
}

func TestMaxWalletCap(t *testing.T) {
	c, err := MaxWalletCap(uint256.NewInt(1_000_000_000), 1000)
	require.NoError(t, err)
	assert.Equal(t, uint64(100_000_000), c.Uint64())
}
