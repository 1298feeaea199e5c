// Package tax computes transfer taxation and the anti-concentration cap.
//
// All arithmetic is integer basis-point math on uint256 with explicit
// overflow detection. Nothing here touches storage; the engine applies the
// resulting breakdown atomically.
package tax

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/roach88/thyxel/internal/ir"
)

var (
	// ErrArithmeticOverflow is returned instead of a truncated result.
	ErrArithmeticOverflow = errors.New("arithmetic overflow")

	// ErrExceedsMaxWallet is returned when a recipient would exceed the cap.
	ErrExceedsMaxWallet = errors.New("exceeds max wallet")
)

var bpsDenominator = uint256.NewInt(ir.BpsDenominator)

// Breakdown is the split of one transfer amount.
// Burn + Redist + Net == Amount always holds.
type Breakdown struct {
	Amount *uint256.Int
	Burn   *uint256.Int
	Redist *uint256.Int
	Net    *uint256.Int
	Exempt bool
}

// Taxed reports whether any deduction applies.
func (b Breakdown) Taxed() bool {
	return !b.Exempt && (!b.Burn.IsZero() || !b.Redist.IsZero())
}

// ApplyTransferTax splits amount into burn, redistribution and net parts
// using the genome's rates. A transfer touching an excluded wallet on either
// side is exempt and passes through whole.
func ApplyTransferTax(amount *uint256.Int, senderExcluded, recipientExcluded bool, g ir.Genome) (Breakdown, error) {
	if amount == nil {
		return Breakdown{}, fmt.Errorf("nil amount")
	}
	b := Breakdown{
		Amount: new(uint256.Int).Set(amount),
		Burn:   new(uint256.Int),
		Redist: new(uint256.Int),
		Net:    new(uint256.Int).Set(amount),
	}
	if senderExcluded || recipientExcluded {
		b.Exempt = true
		return b, nil
	}

	burn, err := BpsOf(amount, g.BurnRateBps)
	if err != nil {
		return Breakdown{}, fmt.Errorf("burn: %w", err)
	}
	redist, err := BpsOf(amount, g.RedistRateBps)
	if err != nil {
		return Breakdown{}, fmt.Errorf("redistribution: %w", err)
	}

	deducted, overflow := new(uint256.Int).AddOverflow(burn, redist)
	if overflow || deducted.Gt(amount) {
		return Breakdown{}, ErrArithmeticOverflow
	}
	b.Burn = burn
	b.Redist = redist
	b.Net = new(uint256.Int).Sub(amount, deducted)
	return b, nil
}

// BpsOf returns floor(amount * bps / 10000).
func BpsOf(amount *uint256.Int, bps uint16) (*uint256.Int, error) {
	product, overflow := new(uint256.Int).MulOverflow(amount, uint256.NewInt(uint64(bps)))
	if overflow {
		return nil, fmt.Errorf("%s * %d bps: %w", amount.Dec(), bps, ErrArithmeticOverflow)
	}
	return product.Div(product, bpsDenominator), nil
}

// MaxWalletCap returns the largest balance a non-excluded wallet may hold.
func MaxWalletCap(totalSupply *uint256.Int, maxWalletBps uint16) (*uint256.Int, error) {
	return BpsOf(totalSupply, maxWalletBps)
}

// CheckMaxWallet enforces balance + net <= totalSupply * maxWalletBps / 10000
// for non-excluded recipients. totalSupply is the supply before the
// transfer's burn is applied.
func CheckMaxWallet(balance, net, totalSupply *uint256.Int, maxWalletBps uint16, recipientExcluded bool) error {
	if recipientExcluded {
		return nil
	}
	capAmount, err := MaxWalletCap(totalSupply, maxWalletBps)
	if err != nil {
		return err
	}
	after, overflow := new(uint256.Int).AddOverflow(balance, net)
	if overflow {
		return fmt.Errorf("recipient balance: %w", ErrArithmeticOverflow)
	}
	if after.Gt(capAmount) {
		return fmt.Errorf("%w: balance would be %s, cap is %s", ErrExceedsMaxWallet, after.Dec(), capAmount.Dec())
	}
	return nil
}
