// Package compiler turns CUE genesis documents into validated
// initialization parameters.
//
// A genesis document is a CUE file with a top-level genesis block:
//
//	genesis: {
//		authority:           "0x00000000000000000000000000000000000a0001"
//		total_supply:        "1_000_000_000"
//		burn_rate_bps:       100
//		max_wallet_bps:      500
//		epoch_duration_days: 7
//	}
//
// The block is unified with the embedded #Genesis schema, so bound
// violations are reported with their source position before the engine
// ever sees them.
package compiler

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/ethereum/go-ethereum/common"

	"github.com/roach88/thyxel/internal/ir"
)

//go:embed schema.cue
var schemaCUE string

// GenesisPath is the top-level field holding the genesis block.
const GenesisPath = "genesis"

// CompileGenesis validates a genesis block against #Genesis and decodes it.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the genesis struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`genesis: { ... }`)
//	p, err := CompileGenesis(v.LookupPath(cue.ParsePath("genesis")))
func CompileGenesis(v cue.Value) (*ir.InitParams, error) {
	if !v.Exists() {
		return nil, &CompileError{Field: GenesisPath, Message: "genesis block is required"}
	}
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	schema := v.Context().CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("genesis schema: %w", err)
	}
	unified := schema.LookupPath(cue.ParsePath("#Genesis")).Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	p := &ir.InitParams{}
	var err error

	if p.Authority, err = addressField(unified, "authority"); err != nil {
		return nil, err
	}
	if unified.LookupPath(cue.ParsePath("reserve")).Exists() {
		if p.Reserve, err = addressField(unified, "reserve"); err != nil {
			return nil, err
		}
	}

	supplyVal := unified.LookupPath(cue.ParsePath("total_supply"))
	supply, err := supplyVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	if p.TotalSupply, err = ir.ParseAmount(supply); err != nil {
		return nil, &CompileError{Field: "total_supply", Message: err.Error(), Pos: supplyVal.Pos()}
	}

	fields := []struct {
		name string
		dst  *uint16
	}{
		{"burn_rate_bps", &p.BurnRateBps},
		{"redist_rate_bps", &p.RedistRateBps},
		{"max_wallet_bps", &p.MaxWalletBps},
		{"epoch_duration_days", &p.EpochDurationDays},
	}
	for _, f := range fields {
		fv, _ := unified.LookupPath(cue.ParsePath(f.name)).Default()
		n, err := fv.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		// Bounds were checked by the schema; this guards the conversion.
		if n < 0 || n > 0xffff {
			return nil, &CompileError{Field: f.name, Message: fmt.Sprintf("%d out of range", n), Pos: fv.Pos()}
		}
		*f.dst = uint16(n)
	}

	return p, nil
}

func addressField(v cue.Value, name string) (common.Address, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	s, err := fv.String()
	if err != nil {
		return common.Address{}, formatCUEError(err)
	}
	addr, err := ir.ParseAddress(s)
	if err != nil {
		return common.Address{}, &CompileError{Field: name, Message: err.Error(), Pos: fv.Pos()}
	}
	return addr, nil
}

// CompileGenesisSource compiles genesis CUE source. filename is used for
// error positions only.
func CompileGenesisSource(filename string, src []byte) (*ir.InitParams, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return CompileGenesis(v.LookupPath(cue.ParsePath(GenesisPath)))
}

// LoadGenesisFile reads and compiles a genesis CUE file.
func LoadGenesisFile(path string) (*ir.InitParams, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis: %w", err)
	}
	return CompileGenesisSource(path, src)
}
