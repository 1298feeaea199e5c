package ir

// Basis-point denominator: 10000 bps == 100%.
const BpsDenominator = 10000

// Genome trait bounds. Caller-supplied initialization parameters outside
// these ranges are rejected; mutated values are clamped into them.
const (
	MinBurnRateBps = 10
	MaxBurnRateBps = 500

	MinRedistRateBps = 10
	MaxRedistRateBps = 500

	MinMaxWalletBps = 1
	MaxMaxWalletBps = 1000

	MinEpochDurationDays = 1
	MaxEpochDurationDays = 365
)

// SecondsPerDay converts epoch durations to unix seconds.
const SecondsPerDay = 86400

// Extinction thresholds.
const (
	// DormancyEpochs is the number of whole epochs a wallet must stay idle
	// before it can be fossilized.
	DormancyEpochs = 4

	// ExtinctionActivityFloor is the activity level a wallet must fall
	// below to be considered extinct.
	ExtinctionActivityFloor = 64

	// MaxFossilsPerMutation caps the extinction scan of a single mutation.
	// Remaining candidates are picked up by later epochs.
	MaxFossilsPerMutation = 64
)

// EpochSeconds returns the epoch length in seconds.
func EpochSeconds(days uint16) int64 {
	return int64(days) * SecondsPerDay
}
