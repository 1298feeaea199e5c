package compiler

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/thyxel/internal/ir"
)

const validGenesis = `
genesis: {
	authority:           "0x00000000000000000000000000000000000A0001"
	total_supply:        "1_000_000_000"
	burn_rate_bps:       100
	max_wallet_bps:      500
	epoch_duration_days: 7
}
`

func compileString(t *testing.T, src string) (*ir.InitParams, error) {
	t.Helper()
	ctx := cuecontext.New()
	v := ctx.CompileString(src)
	require.NoError(t, v.Err())
	return CompileGenesis(v.LookupPath(cue.ParsePath(GenesisPath)))
}

func TestCompileGenesis_Valid(t *testing.T) {
	p, err := compileString(t, validGenesis)
	require.NoError(t, err)

	assert.Equal(t, "0x00000000000000000000000000000000000A0001", p.Authority.Hex())
	assert.Equal(t, "1000000000", p.TotalSupply.Dec())
	assert.Equal(t, uint16(100), p.BurnRateBps)
	assert.Equal(t, uint16(500), p.MaxWalletBps)
	assert.Equal(t, uint16(7), p.EpochDurationDays)
}

func TestCompileGenesis_Defaults(t *testing.T) {
	p, err := compileString(t, `
genesis: {
	authority:      "0x00000000000000000000000000000000000a0001"
	total_supply:   "500"
	burn_rate_bps:  10
	max_wallet_bps: 1
}
`)
	require.NoError(t, err)

	assert.Equal(t, uint16(100), p.RedistRateBps, "redistribution defaults to 100 bps")
	assert.Equal(t, uint16(7), p.EpochDurationDays, "epoch defaults to 7 days")
	assert.Equal(t, [20]byte{}, [20]byte(p.Reserve), "reserve is left for the engine to default")
}

func TestCompileGenesis_ExplicitReserve(t *testing.T) {
	p, err := compileString(t, `
genesis: {
	authority:           "0x00000000000000000000000000000000000a0001"
	reserve:             "0x00000000000000000000000000000000000b0002"
	total_supply:        "1000"
	burn_rate_bps:       500
	redist_rate_bps:     10
	max_wallet_bps:      1000
	epoch_duration_days: 365
}
`)
	require.NoError(t, err)
	assert.Equal(t, "0x00000000000000000000000000000000000b0002", p.Reserve.Hex())
	assert.Equal(t, uint16(10), p.RedistRateBps)
	assert.Equal(t, uint16(365), p.EpochDurationDays)
}

func TestCompileGenesis_RejectsOutOfBounds(t *testing.T) {
	tests := []struct {
		name  string
		field string
		value string
	}{
		{"burn too low", "burn_rate_bps", "9"},
		{"burn too high", "burn_rate_bps", "501"},
		{"max wallet zero", "max_wallet_bps", "0"},
		{"max wallet too high", "max_wallet_bps", "1001"},
		{"epoch zero", "epoch_duration_days", "0"},
		{"epoch too long", "epoch_duration_days", "366"},
		{"redist too high", "redist_rate_bps", "501"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := `genesis: {
	authority:      "0x00000000000000000000000000000000000a0001"
	total_supply:   "1000"
` + fieldOrDefault("burn_rate_bps", tt.field, tt.value, "100") +
				fieldOrDefault("max_wallet_bps", tt.field, tt.value, "500") +
				fieldOrDefault("epoch_duration_days", tt.field, tt.value, "7") +
				fieldOrDefault("redist_rate_bps", tt.field, tt.value, "100") + "}\n"

			_, err := compileString(t, src)
			require.Error(t, err)

			var ce *CompileError
			require.True(t, errors.As(err, &ce), "expected CompileError, got %T", err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func fieldOrDefault(name, field, value, def string) string {
	if name == field {
		return "\t" + name + ": " + value + "\n"
	}
	return "\t" + name + ": " + def + "\n"
}

func TestCompileGenesis_RejectsBadAddress(t *testing.T) {
	_, err := compileString(t, `
genesis: {
	authority:      "0x1234"
	total_supply:   "1000"
	burn_rate_bps:  100
	max_wallet_bps: 500
}
`)
	require.Error(t, err)
	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "authority", ce.Field)
}

func TestCompileGenesis_RejectsZeroOrMalformedSupply(t *testing.T) {
	for _, supply := range []string{`"0"`, `"-5"`, `"1e9"`, `1000`} {
		t.Run(supply, func(t *testing.T) {
			_, err := compileString(t, `
genesis: {
	authority:      "0x00000000000000000000000000000000000a0001"
	total_supply:   `+supply+`
	burn_rate_bps:  100
	max_wallet_bps: 500
}
`)
			require.Error(t, err)
		})
	}
}

func TestCompileGenesis_RejectsSupplyOverflow(t *testing.T) {
	// 2^256 does not fit the amount type.
	_, err := compileString(t, `
genesis: {
	authority:      "0x00000000000000000000000000000000000a0001"
	total_supply:   "115792089237316195423570985008687907853269984665640564039457584007913129639936"
	burn_rate_bps:  100
	max_wallet_bps: 500
}
`)
	require.Error(t, err)
	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "total_supply", ce.Field)
}

func TestCompileGenesis_RejectsUnknownField(t *testing.T) {
	_, err := compileString(t, `
genesis: {
	authority:      "0x00000000000000000000000000000000000a0001"
	total_supply:   "1000"
	burn_rate_bps:  100
	max_wallet_bps: 500
	tax_holiday:    true
}
`)
	require.Error(t, err)
}

func TestCompileGenesis_MissingBlock(t *testing.T) {
	_, err := compileString(t, `other: 1`)
	require.Error(t, err)
	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, GenesisPath, ce.Field)
}

func TestCompileGenesis_MissingRequiredField(t *testing.T) {
	_, err := compileString(t, `
genesis: {
	authority:     "0x00000000000000000000000000000000000a0001"
	total_supply:  "1000"
	burn_rate_bps: 100
}
`)
	require.Error(t, err, "max_wallet_bps has no default")
}

func TestLoadGenesisFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "genesis.cue")
	require.NoError(t, os.WriteFile(path, []byte(validGenesis), 0o644))

	p, err := LoadGenesisFile(path)
	require.NoError(t, err)
	assert.Equal(t, uint16(100), p.BurnRateBps)
}

func TestLoadGenesisFile_RejectsBounds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "genesis.cue")
	src := `genesis: {
	authority:      "0x00000000000000000000000000000000000a0001"
	total_supply:   "1000"
	burn_rate_bps:  900
	max_wallet_bps: 500
}
`
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	_, err := LoadGenesisFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "burn_rate_bps")
}

func TestLoadGenesisFile_Missing(t *testing.T) {
	_, err := LoadGenesisFile(filepath.Join(t.TempDir(), "nope.cue"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read genesis")
}

func TestCompileError_Format(t *testing.T) {
	err := &CompileError{Field: "burn_rate_bps", Message: "out of range"}
	assert.Equal(t, "burn_rate_bps: out of range", err.Error())
}
