// Package mutation derives the next genome from the previous one.
//
// Derivation is a pure function of (previous genome, epoch aggregate, trigger
// time). The only "organic" variation is a drift term read from the
// previous genome's content hash, so the whole sequence of genomes is
// reproducible from ledger history alone.
//
// Formula, applied in order and clamped to the genome bounds:
//
//	mood       = frenzied (>1000 tx) | restless (>500) | calm (>100) | dormant
//	burn      += moodBurn[mood] + (avgAppetite > 160 ? 10 : 0) + drift
//	redist    += avgLoyalty >= 128 ? +10 : -10   (only when the epoch had DNA samples)
//	maxWallet += moodMaxWallet[mood]
//	drift      = GenomeHash(prev)[0] % 11 - 5
package mutation

import (
	"fmt"
	"math"

	"github.com/roach88/thyxel/internal/dna"
	"github.com/roach88/thyxel/internal/ir"
)

// Epoch transfer-count thresholds for each mood.
const (
	CalmTxThreshold     = 100
	RestlessTxThreshold = 500
	FrenziedTxThreshold = 1000
)

// DNA aggregate thresholds.
const (
	HungryAppetite    = 160
	AppetiteBurnBonus = 10
	LoyalThreshold    = 128
	RedistStep        = 10
	DriftSpan         = 11
)

// Plan records how each trait moved and why.
type Plan struct {
	Mood           ir.Mood
	BurnDelta      int
	RedistDelta    int
	MaxWalletDelta int
	Drift          int
}

// A busy epoch raises the burn and tightens the wallet cap; a quiet one
// relaxes both.
var moodDeltas = map[ir.Mood]Plan{
	ir.MoodFrenzied: {BurnDelta: 20, MaxWalletDelta: -10},
	ir.MoodRestless: {BurnDelta: -10},
	ir.MoodCalm:     {BurnDelta: -20, MaxWalletDelta: 10},
	ir.MoodDormant:  {BurnDelta: -30, MaxWalletDelta: 20},
}

// MoodOf classifies an epoch by its transfer count.
func MoodOf(txCount uint64) ir.Mood {
	switch {
	case txCount > FrenziedTxThreshold:
		return ir.MoodFrenzied
	case txCount > RestlessTxThreshold:
		return ir.MoodRestless
	case txCount > CalmTxThreshold:
		return ir.MoodCalm
	default:
		return ir.MoodDormant
	}
}

// IsDue reports whether the genome's epoch has ended at now.
func IsDue(g ir.Genome, now int64) bool {
	return now >= g.NextMutationTimestamp
}

// Advance derives the next genome. It does not check IsDue; callers gate on
// that first. The returned genome always satisfies Genome.Validate.
func Advance(prev ir.Genome, stats ir.EpochStats, now int64) (ir.Genome, Plan, error) {
	if prev.EpochID == math.MaxUint64 {
		return ir.Genome{}, Plan{}, fmt.Errorf("epoch id exhausted")
	}
	epochSeconds := prev.EpochSeconds()
	if now > math.MaxInt64-epochSeconds {
		return ir.Genome{}, Plan{}, fmt.Errorf("next mutation timestamp overflows")
	}

	plan, err := PlanFor(prev, stats)
	if err != nil {
		return ir.Genome{}, Plan{}, err
	}

	next := prev
	next.BurnRateBps = ir.ClampU16(int(prev.BurnRateBps)+plan.BurnDelta+plan.Drift, ir.MinBurnRateBps, ir.MaxBurnRateBps)
	next.RedistRateBps = ir.ClampU16(int(prev.RedistRateBps)+plan.RedistDelta, ir.MinRedistRateBps, ir.MaxRedistRateBps)
	next.MaxWalletBps = ir.ClampU16(int(prev.MaxWalletBps)+plan.MaxWalletDelta, ir.MinMaxWalletBps, ir.MaxMaxWalletBps)
	next.Mood = plan.Mood
	next.EpochID = prev.EpochID + 1
	next.LastMutationTimestamp = now
	next.NextMutationTimestamp = now + epochSeconds

	if err := next.Validate(); err != nil {
		return ir.Genome{}, Plan{}, fmt.Errorf("derived genome invalid: %w", err)
	}
	return next, plan, nil
}

// PlanFor computes the unclamped trait deltas for an epoch.
func PlanFor(prev ir.Genome, stats ir.EpochStats) (Plan, error) {
	mood := MoodOf(stats.TxCount)
	plan := moodDeltas[mood]
	plan.Mood = mood

	if stats.DNASamples > 0 {
		loyalty, _, appetite := stats.Averages()
		if appetite > HungryAppetite {
			plan.BurnDelta += AppetiteBurnBonus
		}
		if loyalty >= LoyalThreshold {
			plan.RedistDelta += RedistStep
		} else {
			plan.RedistDelta -= RedistStep
		}
	}

	h, err := ir.GenomeHash(prev)
	if err != nil {
		return Plan{}, err
	}
	plan.Drift = int(h[0]%DriftSpan) - DriftSpan/2
	return plan, nil
}

// DormancyCutoff is the last-activity timestamp before which a wallet counts
// as dormant at now.
func DormancyCutoff(now, epochSeconds int64) int64 {
	return now - ir.DormancyEpochs*epochSeconds
}

// IsExtinct reports whether a wallet meets the extinction predicate at now:
// it has transacted before, has been idle for DormancyEpochs epochs, its
// activity decayed to now fell below ExtinctionActivityFloor, and it is not
// already a fossil. Exclusion is checked by the caller.
func IsExtinct(d ir.WalletDNA, now, epochSeconds int64) bool {
	return !d.Fossilized &&
		d.TxCount > 0 &&
		d.LastTxTimestamp < DormancyCutoff(now, epochSeconds) &&
		dna.EffectiveActivity(d, now, epochSeconds) < ir.ExtinctionActivityFloor
}

// NeverEligible schedules a wallet out of the extinction scan.
const NeverEligible = math.MaxInt64

// FossilEligibleAt returns the first time at which an idle wallet satisfies
// IsExtinct: past the dormancy cutoff and with activity decayed below the
// floor, whichever comes later. For every now,
// IsExtinct(d, now, e) == (now >= FossilEligibleAt(d, e)) on a live wallet.
func FossilEligibleAt(d ir.WalletDNA, epochSeconds int64) int64 {
	if d.Fossilized || d.TxCount == 0 {
		return NeverEligible
	}
	dormant := d.LastTxTimestamp + ir.DormancyEpochs*epochSeconds + 1
	decayed := d.LastTxTimestamp + int64(dna.EpochsToDecay(d.Activity, ir.ExtinctionActivityFloor))*epochSeconds
	return max(dormant, decayed)
}
