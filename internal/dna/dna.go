// Package dna maintains the per-wallet behavioral reputation score.
//
// Update is a pure function of (previous DNA, transfer event). It never
// consults external state or randomness, so the DNA table can be rebuilt
// exactly by replaying transfer history.
//
// Every gene is a uint8 updated through saturating arithmetic:
//   - Activity rises with each transfer and decays per idle epoch.
//   - Loyalty rises when transfers come within one epoch of each other and
//     decays per idle epoch otherwise. Receiving nudges it up, sending down.
//   - Appetite is a moving average of transfer size relative to the
//     wallet's historical mean transfer, 128 meaning "typical".
package dna

import (
	"math"

	"github.com/holiman/uint256"

	"github.com/roach88/thyxel/internal/ir"
)

// Gene tuning constants.
const (
	ActivityStep          = 8
	ActivityDecayPerEpoch = 32
	LoyaltyStep           = 4
	LoyaltyDecayPerEpoch  = 16
	AppetiteBaseline      = 128

	// maxIdleEpochs bounds the decay multiplier; any longer gap already
	// drains a gene from 255 to 0.
	maxIdleEpochs = 16
)

// Update returns the wallet's DNA after participating in a transfer of
// amount at time now, in the given role.
func Update(prev ir.WalletDNA, role ir.Role, amount *uint256.Int, now, epochSeconds int64) ir.WalletDNA {
	if amount == nil {
		amount = new(uint256.Int)
	}
	if epochSeconds <= 0 {
		epochSeconds = 1
	}

	next := prev.Clone()
	if prev.IsNew() {
		next.FirstTxTimestamp = now
		next.Appetite = AppetiteBaseline
	} else {
		idle := idleEpochs(prev, now, epochSeconds)

		next.Activity = ir.AddU8(next.Activity, -idle*ActivityDecayPerEpoch)
		if idle == 0 {
			next.Loyalty = ir.AddU8(next.Loyalty, LoyaltyStep)
		} else {
			next.Loyalty = ir.AddU8(next.Loyalty, -idle*LoyaltyDecayPerEpoch)
		}
		next.Appetite = nextAppetite(prev, amount)
	}

	next.Activity = ir.AddU8(next.Activity, ActivityStep)
	if role == ir.RoleRecipient {
		next.Loyalty = ir.AddU8(next.Loyalty, 1)
	} else {
		next.Loyalty = ir.AddU8(next.Loyalty, -1)
	}

	next.TxCount = ir.SaturatingAdd64(prev.TxCount, 1)
	next.LastTxTimestamp = now
	next.TotalVolume = ir.SaturatingAdd256(prev.TotalVolume, amount)
	return next
}

// EffectiveActivity returns the activity gene as Update would see it at now:
// the stored value less ActivityDecayPerEpoch for every whole idle epoch.
// Stored DNA only changes when the wallet transacts, so a dormant wallet's
// stored activity is stale.
func EffectiveActivity(d ir.WalletDNA, now, epochSeconds int64) uint8 {
	if epochSeconds <= 0 {
		epochSeconds = 1
	}
	return ir.AddU8(d.Activity, -idleEpochs(d, now, epochSeconds)*ActivityDecayPerEpoch)
}

// EpochsToDecay returns how many whole idle epochs it takes for activity to
// decay below floor. Zero when it is already below.
func EpochsToDecay(activity, floor uint8) int {
	if activity < floor {
		return 0
	}
	return int(activity-floor)/ActivityDecayPerEpoch + 1
}

func idleEpochs(d ir.WalletDNA, now, epochSeconds int64) int {
	gap := now - d.LastTxTimestamp
	if gap < 0 {
		gap = 0
	}
	return int(min(gap/epochSeconds, maxIdleEpochs))
}

// nextAppetite blends the relative size of this transfer into the gene:
// appetite' = (3*appetite + target) / 4, target = 128 * amount / mean.
func nextAppetite(prev ir.WalletDNA, amount *uint256.Int) uint8 {
	target := relativeSize(prev, amount)
	return uint8((3*int(prev.Appetite) + target) / 4)
}

func relativeSize(prev ir.WalletDNA, amount *uint256.Int) int {
	if prev.TotalVolume == nil || prev.TxCount == 0 {
		return AppetiteBaseline
	}
	mean := new(uint256.Int).Div(prev.TotalVolume, uint256.NewInt(prev.TxCount))
	if mean.IsZero() {
		if amount.IsZero() {
			return AppetiteBaseline
		}
		return math.MaxUint8
	}
	scaled, overflow := new(uint256.Int).MulOverflow(amount, uint256.NewInt(AppetiteBaseline))
	if overflow {
		return math.MaxUint8
	}
	scaled.Div(scaled, mean)
	if !scaled.IsUint64() || scaled.Uint64() > math.MaxUint8 {
		return math.MaxUint8
	}
	return int(scaled.Uint64())
}
