package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/roach88/thyxel/internal/dna"
	"github.com/roach88/thyxel/internal/ir"
	"github.com/roach88/thyxel/internal/mutation"
	"github.com/roach88/thyxel/internal/store"
)

// TriggerMutation closes the current epoch. Permissionless.
//
// Before the epoch's NextMutationTimestamp it fails with EPOCH_NOT_ENDED and
// changes nothing. Otherwise, in one transaction, it derives the next genome
// from the epoch accumulator, advances the epoch (the next epoch starts at
// the trigger time), fossilizes up to ir.MaxFossilsPerMutation extinct
// wallets under the new genome hash, resets the accumulator and appends the
// mutation event.
func (e *Engine) TriggerMutation(ctx context.Context) (ir.MutationEvent, error) {
	var ev ir.MutationEvent
	var plan mutation.Plan
	err := e.update(ctx, func(tx *store.Tx) error {
		st, err := loadState(ctx, tx)
		if err != nil {
			return err
		}
		now := e.clock.Now()
		if !mutation.IsDue(st.Genome, now) {
			return newError(ErrCodeEpochNotEnded, "epoch %d ends at %d, now is %d",
				st.Genome.EpochID, st.Genome.NextMutationTimestamp, now).
				with("next_mutation_timestamp", strconv.FormatInt(st.Genome.NextMutationTimestamp, 10))
		}

		before := st.Genome
		after, p, err := mutation.Advance(before, st.Stats, now)
		if err != nil {
			return newError(ErrCodeArithmeticOverflow, "advance epoch: %v", err)
		}
		plan = p
		hash, err := ir.GenomeHash(after)
		if err != nil {
			return fmt.Errorf("mutation: %w", err)
		}

		candidates, err := tx.ExtinctionCandidates(ctx, now, ir.MaxFossilsPerMutation)
		if err != nil {
			return err
		}
		fossils := make([]ir.FossilRecord, 0, len(candidates))
		for _, d := range candidates {
			excluded, err := tx.IsExcluded(ctx, d.Wallet)
			if err != nil {
				return err
			}
			if excluded || !mutation.IsExtinct(d, now, before.EpochSeconds()) {
				// Scheduled before its exclusion or by an older schema.
				if err := tx.SetFossilEligibleAt(ctx, d.Wallet, fossilSchedule(d, excluded, before.EpochSeconds())); err != nil {
					return err
				}
				continue
			}
			f, created, err := fossilize(ctx, tx, &st, d, hash, after.EpochID, now)
			if err != nil {
				return err
			}
			if created {
				fossils = append(fossils, f)
			}
		}

		st.Genome = after
		st.Stats = ir.NewEpochStats()
		if err := tx.SaveState(ctx, st); err != nil {
			return err
		}

		ev = ir.MutationEvent{
			EpochID:    after.EpochID,
			Before:     before,
			After:      after,
			Mood:       after.Mood,
			GenomeHash: hash,
			NewFossils: fossils,
		}
		_, err = appendEvent(ctx, tx, ir.EventMutation, now, ev.ToIR())
		return err
	})
	if err != nil {
		if IsEpochNotEnded(err) {
			e.logger.Debug("mutation not due", "error", err)
		}
		return ir.MutationEvent{}, err
	}

	e.logger.Info("genome mutated",
		"epoch_id", ev.EpochID,
		"mood", ev.Mood.String(),
		"burn_rate_bps", ev.After.BurnRateBps,
		"redist_rate_bps", ev.After.RedistRateBps,
		"max_wallet_bps", ev.After.MaxWalletBps,
		"drift", plan.Drift,
		"genome_hash", ev.GenomeHash.Hex(),
		"new_fossils", len(ev.NewFossils),
	)
	return ev, nil
}

// fossilize archives one wallet and marks its DNA. The archive's
// UNIQUE(wallet) makes it idempotent: an existing record is returned with
// created=false and the fossil counter is untouched.
func fossilize(ctx context.Context, tx *store.Tx, st *ir.LedgerState, d ir.WalletDNA, hash common.Hash, epochID uint64, now int64) (ir.FossilRecord, bool, error) {
	snapshot := d.Clone()
	snapshot.Fossilized = true

	rec, created, err := tx.InsertFossil(ctx, ir.FossilRecord{
		FossilIndex:       st.FossilCount,
		Wallet:            d.Wallet,
		GenomeHash:        hash,
		FossilizedAtEpoch: epochID,
		FossilizedAt:      now,
		DNA:               snapshot,
	})
	if err != nil {
		return ir.FossilRecord{}, false, err
	}
	if created {
		st.FossilCount++
	}
	if err := tx.PutWalletDNA(ctx, snapshot, mutation.NeverEligible); err != nil {
		return ir.FossilRecord{}, false, err
	}
	return rec, created, nil
}

// fossilSchedule returns when the extinction scan should next consider d.
// Excluded wallets are system or curated accounts and never go extinct.
func fossilSchedule(d ir.WalletDNA, excluded bool, epochSeconds int64) int64 {
	if excluded {
		return mutation.NeverEligible
	}
	return mutation.FossilEligibleAt(d, epochSeconds)
}

// reschedule recomputes one wallet's extinction time. No-op for wallets
// without DNA.
func reschedule(ctx context.Context, tx *store.Tx, w common.Address, epochSeconds int64) error {
	d, ok, err := tx.WalletDNA(ctx, w)
	if err != nil || !ok {
		return err
	}
	excluded, err := tx.IsExcluded(ctx, w)
	if err != nil {
		return err
	}
	return tx.SetFossilEligibleAt(ctx, w, fossilSchedule(d, excluded, epochSeconds))
}

// rescheduleAll recomputes every live wallet's extinction time after the
// epoch length changes.
func rescheduleAll(ctx context.Context, tx *store.Tx, epochSeconds int64) error {
	all, err := tx.AllWalletDNA(ctx)
	if err != nil {
		return err
	}
	excluded, err := tx.Exclusions(ctx)
	if err != nil {
		return err
	}
	skip := make(map[common.Address]bool, len(excluded))
	for _, w := range excluded {
		skip[w] = true
	}
	for _, d := range all {
		if d.Fossilized {
			continue
		}
		if err := tx.SetFossilEligibleAt(ctx, d.Wallet, fossilSchedule(d, skip[d.Wallet], epochSeconds)); err != nil {
			return err
		}
	}
	return nil
}

// MintFossil fossilizes a single wallet outside a mutation. Permissionless.
//
// The wallet must meet the extinction predicate now (NOT_EXTINCT otherwise,
// WALLET_NOT_FOUND if it never transacted). Idempotent: an already archived
// wallet returns its existing record with created=false and appends no
// event.
func (e *Engine) MintFossil(ctx context.Context, wallet common.Address) (ir.FossilRecord, bool, error) {
	var rec ir.FossilRecord
	var created bool
	err := e.update(ctx, func(tx *store.Tx) error {
		st, err := loadState(ctx, tx)
		if err != nil {
			return err
		}

		existing, err := tx.FossilOf(ctx, wallet)
		if err == nil {
			rec = existing
			return nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		d, ok, err := tx.WalletDNA(ctx, wallet)
		if err != nil {
			return err
		}
		if !ok {
			return newError(ErrCodeWalletNotFound, "wallet %s has no DNA", wallet.Hex())
		}
		excluded, err := tx.IsExcluded(ctx, wallet)
		if err != nil {
			return err
		}
		if excluded {
			return newError(ErrCodeNotExtinct, "wallet %s is excluded", wallet.Hex()).
				with("excluded", "true")
		}
		now := e.clock.Now()
		epoch := st.Genome.EpochSeconds()
		if !mutation.IsExtinct(d, now, epoch) {
			return newError(ErrCodeNotExtinct, "wallet %s is not extinct", wallet.Hex()).
				with("activity", strconv.Itoa(int(dna.EffectiveActivity(d, now, epoch)))).
				with("last_tx_timestamp", strconv.FormatInt(d.LastTxTimestamp, 10)).
				with("eligible_at", strconv.FormatInt(mutation.FossilEligibleAt(d, epoch), 10))
		}

		hash, err := ir.GenomeHash(st.Genome)
		if err != nil {
			return fmt.Errorf("mint fossil: %w", err)
		}
		if rec, created, err = fossilize(ctx, tx, &st, d, hash, st.Genome.EpochID, now); err != nil {
			return err
		}
		if err := tx.SaveState(ctx, st); err != nil {
			return err
		}
		_, err = appendEvent(ctx, tx, ir.EventFossilMinted, now, ir.IRObject{
			"wallet": ir.IRString(wallet.Hex()),
			"fossil": rec.ToIR(),
		})
		return err
	})
	if err != nil {
		return ir.FossilRecord{}, false, err
	}
	if created {
		e.logger.Info("fossil minted", "wallet", wallet.Hex(), "fossil_index", rec.FossilIndex, "epoch_id", rec.FossilizedAtEpoch)
	}
	return rec, created, nil
}
