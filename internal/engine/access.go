package engine

import (
	"context"
	"errors"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/roach88/thyxel/internal/ir"
	"github.com/roach88/thyxel/internal/store"
)

// ValidateInitParams checks caller-supplied genesis parameters. Values are
// never clamped: anything outside its bounds is INVALID_PARAMETER.
func ValidateInitParams(p ir.InitParams) error {
	if p.Authority == (common.Address{}) {
		return newError(ErrCodeInvalidParameter, "authority must be a non-zero address")
	}
	if p.TotalSupply == nil || p.TotalSupply.IsZero() {
		return newError(ErrCodeInvalidParameter, "total supply must be positive")
	}
	if p.Reserve == p.Authority {
		return newError(ErrCodeInvalidParameter, "reserve must differ from authority")
	}
	checks := []struct {
		name   string
		value  uint16
		lo, hi uint16
	}{
		{"burn_rate_bps", p.BurnRateBps, ir.MinBurnRateBps, ir.MaxBurnRateBps},
		{"redist_rate_bps", p.RedistRateBps, ir.MinRedistRateBps, ir.MaxRedistRateBps},
		{"max_wallet_bps", p.MaxWalletBps, ir.MinMaxWalletBps, ir.MaxMaxWalletBps},
		{"epoch_duration_days", p.EpochDurationDays, ir.MinEpochDurationDays, ir.MaxEpochDurationDays},
	}
	for _, c := range checks {
		if c.value < c.lo || c.value > c.hi {
			return newError(ErrCodeInvalidParameter, "%s %d outside [%d, %d]", c.name, c.value, c.lo, c.hi).
				with("field", c.name).
				with("value", strconv.Itoa(int(c.value)))
		}
	}
	return nil
}

// Initialize creates the ledger: genome at epoch 0, lifecycle Active, the
// whole supply minted to the authority, and the authority and reserve
// accounts excluded from tax and cap. Callable exactly once per store.
//
// A zero Reserve selects ir.DefaultReserveAddress.
func (e *Engine) Initialize(ctx context.Context, p ir.InitParams) (ir.LedgerState, error) {
	if p.Reserve == (common.Address{}) {
		p.Reserve = ir.DefaultReserveAddress
	}
	if err := ValidateInitParams(p); err != nil {
		return ir.LedgerState{}, err
	}

	var st ir.LedgerState
	err := e.update(ctx, func(tx *store.Tx) error {
		now := e.clock.Now()
		epoch := ir.EpochSeconds(p.EpochDurationDays)

		st = ir.LedgerState{
			Lifecycle:   ir.LifecycleActive,
			Authority:   p.Authority,
			Reserve:     p.Reserve,
			TotalSupply: p.TotalSupply.Clone(),
			Genome: ir.Genome{
				BurnRateBps:           p.BurnRateBps,
				RedistRateBps:         p.RedistRateBps,
				MaxWalletBps:          p.MaxWalletBps,
				EpochDurationDays:     p.EpochDurationDays,
				LastMutationTimestamp: now,
				NextMutationTimestamp: now + epoch,
				Mood:                  ir.MoodDormant,
			},
			Stats:         ir.NewEpochStats(),
			InitializedAt: now,
		}

		if err := tx.InsertState(ctx, st); err != nil {
			if errors.Is(err, store.ErrAlreadyInitialized) {
				return newError(ErrCodeAlreadyInitialized, "ledger already initialized")
			}
			return err
		}
		if err := tx.SetBalance(ctx, p.Authority, p.TotalSupply); err != nil {
			return err
		}
		for _, w := range []common.Address{p.Authority, p.Reserve} {
			if err := tx.SetExcluded(ctx, w, true); err != nil {
				return err
			}
		}
		_, err := appendEvent(ctx, tx, ir.EventInitialized, now, p.ToIR())
		return err
	})
	if err != nil {
		return ir.LedgerState{}, err
	}

	e.logger.Info("ledger initialized",
		"authority", st.Authority.Hex(),
		"reserve", st.Reserve.Hex(),
		"total_supply", ir.FormatAmount(st.TotalSupply),
		"burn_rate_bps", st.Genome.BurnRateBps,
		"redist_rate_bps", st.Genome.RedistRateBps,
		"max_wallet_bps", st.Genome.MaxWalletBps,
		"epoch_duration_days", st.Genome.EpochDurationDays,
	)
	return st, nil
}

// requireAuthority rejects callers other than the live authority.
func (e *Engine) requireAuthority(st ir.LedgerState, caller common.Address, op string) error {
	if st.IsWild() {
		e.logger.Warn("admin call rejected: released to the wild", "op", op, "caller", caller.Hex())
		return newError(ErrCodeUnauthorized, "%s: ledger has been released to the wild", op)
	}
	if caller != st.Authority {
		e.logger.Warn("admin call rejected: not authority", "op", op, "caller", caller.Hex())
		return newError(ErrCodeUnauthorized, "%s: caller %s is not the authority", op, caller.Hex())
	}
	return nil
}

// SetExcluded adds or removes a wallet from the tax and cap exemption set.
// Authority-only while Active.
func (e *Engine) SetExcluded(ctx context.Context, caller, wallet common.Address, excluded bool) error {
	err := e.update(ctx, func(tx *store.Tx) error {
		st, err := loadState(ctx, tx)
		if err != nil {
			return err
		}
		if err := e.requireAuthority(st, caller, "set_excluded"); err != nil {
			return err
		}
		if err := tx.SetExcluded(ctx, wallet, excluded); err != nil {
			return err
		}
		if err := reschedule(ctx, tx, wallet, st.Genome.EpochSeconds()); err != nil {
			return err
		}
		_, err = appendEvent(ctx, tx, ir.EventExclusionChanged, e.clock.Now(), ir.IRObject{
			"caller":   ir.IRString(caller.Hex()),
			"wallet":   ir.IRString(wallet.Hex()),
			"excluded": ir.IRBool(excluded),
		})
		return err
	})
	if err != nil {
		return err
	}
	e.logger.Info("exclusion changed", "wallet", wallet.Hex(), "excluded", excluded)
	return nil
}

// SetEpochDuration changes the epoch length. The current epoch is
// re-anchored so that Next = Last + days. Authority-only while Active.
func (e *Engine) SetEpochDuration(ctx context.Context, caller common.Address, days uint16) (ir.Genome, error) {
	var g ir.Genome
	err := e.update(ctx, func(tx *store.Tx) error {
		st, err := loadState(ctx, tx)
		if err != nil {
			return err
		}
		if err := e.requireAuthority(st, caller, "set_epoch_duration"); err != nil {
			return err
		}
		if days < ir.MinEpochDurationDays || days > ir.MaxEpochDurationDays {
			return newError(ErrCodeInvalidParameter, "epoch_duration_days %d outside [%d, %d]",
				days, ir.MinEpochDurationDays, ir.MaxEpochDurationDays)
		}

		previous := st.Genome.EpochDurationDays
		st.Genome.EpochDurationDays = days
		st.Genome.NextMutationTimestamp = st.Genome.LastMutationTimestamp + ir.EpochSeconds(days)
		if err := tx.SaveState(ctx, st); err != nil {
			return err
		}
		if err := rescheduleAll(ctx, tx, ir.EpochSeconds(days)); err != nil {
			return err
		}
		g = st.Genome
		_, err = appendEvent(ctx, tx, ir.EventEpochDurationChanged, e.clock.Now(), ir.IRObject{
			"caller":   ir.IRString(caller.Hex()),
			"days":     ir.IRInt(days),
			"previous": ir.IRInt(previous),
		})
		return err
	})
	if err != nil {
		return ir.Genome{}, err
	}
	e.logger.Info("epoch duration changed", "days", days, "next_mutation", g.NextMutationTimestamp)
	return g, nil
}

// ReleaseToTheWild renounces the authority. Irreversible: lifecycle becomes
// Wild, the authority reads as the zero address, and every later
// authority-gated call fails with UNAUTHORIZED.
func (e *Engine) ReleaseToTheWild(ctx context.Context, caller common.Address) error {
	err := e.update(ctx, func(tx *store.Tx) error {
		st, err := loadState(ctx, tx)
		if err != nil {
			return err
		}
		if err := e.requireAuthority(st, caller, "release_to_the_wild"); err != nil {
			return err
		}
		st.Lifecycle = ir.LifecycleWild
		st.Authority = common.Address{}
		if err := tx.SaveState(ctx, st); err != nil {
			return err
		}
		_, err = appendEvent(ctx, tx, ir.EventReleasedToWild, e.clock.Now(), ir.IRObject{
			"caller": ir.IRString(caller.Hex()),
		})
		return err
	})
	if err != nil {
		return err
	}
	e.logger.Info("released to the wild", "former_authority", caller.Hex())
	return nil
}
