package engine

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/roach88/thyxel/internal/dna"
	"github.com/roach88/thyxel/internal/ir"
	"github.com/roach88/thyxel/internal/store"
	"github.com/roach88/thyxel/internal/tax"
)

// TransferReceipt describes a committed transfer.
type TransferReceipt struct {
	From         common.Address
	To           common.Address
	Breakdown    tax.Breakdown
	SenderDNA    ir.WalletDNA
	RecipientDNA ir.WalletDNA
	EventSeq     int64
}

// mapTaxError converts tax sentinels to engine errors.
func mapTaxError(err error) error {
	switch {
	case errors.Is(err, tax.ErrArithmeticOverflow):
		return newError(ErrCodeArithmeticOverflow, "%v", err)
	case errors.Is(err, tax.ErrExceedsMaxWallet):
		return newError(ErrCodeExceedsMaxWallet, "%v", err)
	default:
		return err
	}
}

// Transfer moves amount from one wallet to another.
//
// In one transaction it applies the transfer tax (burn reduces supply,
// redistribution is credited to the reserve), enforces the recipient's max
// wallet cap against the supply before the burn, updates both wallets' DNA,
// folds the transfer into the epoch accumulator and appends the event. Any
// rejection leaves balances, DNA, supply and the event log unchanged.
func (e *Engine) Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) (TransferReceipt, error) {
	if amount == nil || amount.IsZero() {
		return TransferReceipt{}, newError(ErrCodeInvalidParameter, "amount must be positive")
	}
	if to == (common.Address{}) {
		return TransferReceipt{}, newError(ErrCodeInvalidParameter, "recipient must be a non-zero address")
	}
	if from == to {
		return TransferReceipt{}, newError(ErrCodeInvalidParameter, "sender and recipient must differ")
	}

	var r TransferReceipt
	err := e.update(ctx, func(tx *store.Tx) error {
		st, err := loadState(ctx, tx)
		if err != nil {
			return err
		}
		now := e.clock.Now()

		fromBal, err := tx.Balance(ctx, from)
		if err != nil {
			return err
		}
		if fromBal.Lt(amount) {
			return newError(ErrCodeInsufficientBalance, "balance %s below amount %s",
				ir.FormatAmount(fromBal), ir.FormatAmount(amount)).
				with("wallet", from.Hex())
		}

		fromExcluded, err := tx.IsExcluded(ctx, from)
		if err != nil {
			return err
		}
		toExcluded, err := tx.IsExcluded(ctx, to)
		if err != nil {
			return err
		}

		b, err := tax.ApplyTransferTax(amount, fromExcluded, toExcluded, st.Genome)
		if err != nil {
			return mapTaxError(err)
		}

		toBal, err := tx.Balance(ctx, to)
		if err != nil {
			return err
		}
		if err := tax.CheckMaxWallet(toBal, b.Net, st.TotalSupply, st.Genome.MaxWalletBps, toExcluded); err != nil {
			return mapTaxError(err)
		}

		if err := tx.SetBalance(ctx, from, new(uint256.Int).Sub(fromBal, amount)); err != nil {
			return err
		}
		if err := credit(ctx, tx, to, b.Net); err != nil {
			return err
		}
		if !b.Redist.IsZero() {
			if err := credit(ctx, tx, st.Reserve, b.Redist); err != nil {
				return err
			}
		}
		st.TotalSupply = new(uint256.Int).Sub(st.TotalSupply, b.Burn)

		epoch := st.Genome.EpochSeconds()
		if r.SenderDNA, err = touchDNA(ctx, tx, from, ir.RoleSender, amount, now, epoch, fromExcluded); err != nil {
			return err
		}
		if r.RecipientDNA, err = touchDNA(ctx, tx, to, ir.RoleRecipient, amount, now, epoch, toExcluded); err != nil {
			return err
		}

		st.Stats.RecordTransfer(amount)
		st.Stats.RecordDNA(r.SenderDNA)
		st.Stats.RecordDNA(r.RecipientDNA)
		if err := tx.SaveState(ctx, st); err != nil {
			return err
		}

		ev, err := appendEvent(ctx, tx, ir.EventTransfer, now, ir.IRObject{
			"from":   ir.IRString(from.Hex()),
			"to":     ir.IRString(to.Hex()),
			"amount": ir.IRString(ir.FormatAmount(amount)),
			"burn":   ir.IRString(ir.FormatAmount(b.Burn)),
			"redist": ir.IRString(ir.FormatAmount(b.Redist)),
			"net":    ir.IRString(ir.FormatAmount(b.Net)),
		})
		if err != nil {
			return err
		}

		r.From, r.To, r.Breakdown, r.EventSeq = from, to, b, ev.Seq
		return nil
	})
	if err != nil {
		e.logger.Debug("transfer rejected", "from", from.Hex(), "to", to.Hex(), "amount", ir.FormatAmount(amount), "error", err)
		return TransferReceipt{}, err
	}

	e.logger.Debug("transfer applied",
		"from", from.Hex(),
		"to", to.Hex(),
		"amount", ir.FormatAmount(amount),
		"burn", ir.FormatAmount(r.Breakdown.Burn),
		"redist", ir.FormatAmount(r.Breakdown.Redist),
		"net", ir.FormatAmount(r.Breakdown.Net),
	)
	return r, nil
}

// credit adds amount to a wallet's balance.
func credit(ctx context.Context, tx *store.Tx, w common.Address, amount *uint256.Int) error {
	bal, err := tx.Balance(ctx, w)
	if err != nil {
		return err
	}
	sum, overflow := new(uint256.Int).AddOverflow(bal, amount)
	if overflow {
		return newError(ErrCodeArithmeticOverflow, "balance of %s overflows", w.Hex())
	}
	return tx.SetBalance(ctx, w, sum)
}

// touchDNA applies one DNA update to a wallet and persists it, scheduling
// the wallet's next extinction check.
func touchDNA(ctx context.Context, tx *store.Tx, w common.Address, role ir.Role, amount *uint256.Int, now, epoch int64, excluded bool) (ir.WalletDNA, error) {
	prev, _, err := tx.WalletDNA(ctx, w)
	if err != nil {
		return ir.WalletDNA{}, err
	}
	next := dna.Update(prev, role, amount, now, epoch)
	if err := tx.PutWalletDNA(ctx, next, fossilSchedule(next, excluded, epoch)); err != nil {
		return ir.WalletDNA{}, err
	}
	return next, nil
}

// UpdateDNA refreshes a wallet's reputation without moving tokens, as if
// the wallet had received amount. Permissionless; the refreshed DNA counts
// toward the epoch's DNA averages but not its transfer count.
func (e *Engine) UpdateDNA(ctx context.Context, wallet common.Address, amount *uint256.Int) (ir.WalletDNA, error) {
	if wallet == (common.Address{}) {
		return ir.WalletDNA{}, newError(ErrCodeInvalidParameter, "wallet must be a non-zero address")
	}
	if amount == nil {
		amount = new(uint256.Int)
	}

	var d ir.WalletDNA
	err := e.update(ctx, func(tx *store.Tx) error {
		st, err := loadState(ctx, tx)
		if err != nil {
			return err
		}
		excluded, err := tx.IsExcluded(ctx, wallet)
		if err != nil {
			return err
		}
		now := e.clock.Now()
		if d, err = touchDNA(ctx, tx, wallet, ir.RoleRecipient, amount, now, st.Genome.EpochSeconds(), excluded); err != nil {
			return err
		}
		st.Stats.RecordDNA(d)
		if err := tx.SaveState(ctx, st); err != nil {
			return err
		}
		_, err = appendEvent(ctx, tx, ir.EventDNAUpdated, now, ir.IRObject{
			"wallet": ir.IRString(wallet.Hex()),
			"amount": ir.IRString(ir.FormatAmount(amount)),
			"dna":    d.ToIR(),
		})
		return err
	})
	if err != nil {
		return ir.WalletDNA{}, err
	}
	e.logger.Debug("dna updated", "wallet", wallet.Hex(), "loyalty", d.Loyalty, "activity", d.Activity, "appetite", d.Appetite)
	return d, nil
}
