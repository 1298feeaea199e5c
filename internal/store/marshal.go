package store

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/roach88/thyxel/internal/ir"
)

// walletKey is the canonical TEXT key for an address: lowercase 0x hex, so
// ORDER BY wallet is byte order of the address.
func walletKey(w common.Address) string {
	return strings.ToLower(w.Hex())
}

// parseWallet decodes a wallet column.
func parseWallet(s string) (common.Address, error) {
	w, err := ir.ParseAddress(s)
	if err != nil {
		return common.Address{}, fmt.Errorf("decode wallet column: %w", err)
	}
	return w, nil
}

// marshalAmount converts an amount to decimal TEXT. Nil encodes as "0".
func marshalAmount(v *uint256.Int) string {
	return ir.FormatAmount(v)
}

// unmarshalAmount parses decimal TEXT written by marshalAmount.
func unmarshalAmount(s string) (*uint256.Int, error) {
	v, err := ir.ParseAmount(s)
	if err != nil {
		return nil, fmt.Errorf("decode amount column: %w", err)
	}
	return v, nil
}

// u64 stores an unsigned counter as its int64 bit pattern.
func u64(v uint64) int64 {
	return int64(v)
}

// fromU64 reverses u64.
func fromU64(v int64) uint64 {
	return uint64(v)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
