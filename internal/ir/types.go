package ir

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// DefaultReserveAddress receives the redistribution share of taxed
// transfers when no reserve account is configured.
var DefaultReserveAddress = common.HexToAddress("0x0000000000000000000000000000000000007e5e")

// LifecycleState tracks whether the authority may still change configuration.
type LifecycleState uint8

const (
	// LifecycleActive allows authority-gated configuration changes.
	LifecycleActive LifecycleState = iota
	// LifecycleWild is terminal: the authority has been renounced.
	LifecycleWild
)

func (s LifecycleState) String() string {
	switch s {
	case LifecycleActive:
		return "active"
	case LifecycleWild:
		return "wild"
	default:
		return fmt.Sprintf("lifecycle(%d)", uint8(s))
	}
}

// MarshalText encodes the lifecycle state by name.
func (s LifecycleState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Mood is the activity state derived from an epoch's transfer count.
type Mood uint8

const (
	MoodDormant Mood = iota
	MoodCalm
	MoodRestless
	MoodFrenzied
)

func (m Mood) String() string {
	switch m {
	case MoodDormant:
		return "dormant"
	case MoodCalm:
		return "calm"
	case MoodRestless:
		return "restless"
	case MoodFrenzied:
		return "frenzied"
	default:
		return fmt.Sprintf("mood(%d)", uint8(m))
	}
}

// MarshalText encodes the mood by name.
func (m Mood) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Role is a wallet's side of a transfer.
type Role uint8

const (
	RoleSender Role = iota
	RoleRecipient
)

func (r Role) String() string {
	if r == RoleSender {
		return "sender"
	}
	return "recipient"
}

// Genome is the set of mutable economic parameters plus epoch bookkeeping.
type Genome struct {
	BurnRateBps           uint16 `json:"burn_rate_bps"`
	RedistRateBps         uint16 `json:"redist_rate_bps"`
	MaxWalletBps          uint16 `json:"max_wallet_bps"`
	EpochID               uint64 `json:"epoch_id"`
	EpochDurationDays     uint16 `json:"epoch_duration_days"`
	LastMutationTimestamp int64  `json:"last_mutation_timestamp"`
	NextMutationTimestamp int64  `json:"next_mutation_timestamp"`
	Mood                  Mood   `json:"mood"`
}

// EpochSeconds returns the configured epoch length in seconds.
func (g Genome) EpochSeconds() int64 {
	return EpochSeconds(g.EpochDurationDays)
}

// Validate checks the genome invariants.
func (g Genome) Validate() error {
	if g.BurnRateBps < MinBurnRateBps || g.BurnRateBps > MaxBurnRateBps {
		return fmt.Errorf("burn_rate_bps %d outside [%d, %d]", g.BurnRateBps, MinBurnRateBps, MaxBurnRateBps)
	}
	if g.RedistRateBps < MinRedistRateBps || g.RedistRateBps > MaxRedistRateBps {
		return fmt.Errorf("redist_rate_bps %d outside [%d, %d]", g.RedistRateBps, MinRedistRateBps, MaxRedistRateBps)
	}
	if g.MaxWalletBps < MinMaxWalletBps || g.MaxWalletBps > MaxMaxWalletBps {
		return fmt.Errorf("max_wallet_bps %d outside [%d, %d]", g.MaxWalletBps, MinMaxWalletBps, MaxMaxWalletBps)
	}
	if g.EpochDurationDays < MinEpochDurationDays || g.EpochDurationDays > MaxEpochDurationDays {
		return fmt.Errorf("epoch_duration_days %d outside [%d, %d]", g.EpochDurationDays, MinEpochDurationDays, MaxEpochDurationDays)
	}
	if g.NextMutationTimestamp != g.LastMutationTimestamp+g.EpochSeconds() {
		return fmt.Errorf("next_mutation_timestamp %d != last %d + epoch", g.NextMutationTimestamp, g.LastMutationTimestamp)
	}
	return nil
}

// ToIR converts the genome to an IRObject for hashing and event payloads.
func (g Genome) ToIR() IRObject {
	return IRObject{
		"burn_rate_bps":           IRInt(g.BurnRateBps),
		"redist_rate_bps":         IRInt(g.RedistRateBps),
		"max_wallet_bps":          IRInt(g.MaxWalletBps),
		"epoch_id":                IRInt(g.EpochID),
		"epoch_duration_days":     IRInt(g.EpochDurationDays),
		"last_mutation_timestamp": IRInt(g.LastMutationTimestamp),
		"next_mutation_timestamp": IRInt(g.NextMutationTimestamp),
		"mood":                    IRString(g.Mood.String()),
	}
}

// EpochStats aggregates transfer activity within the current epoch.
// It is updated incrementally on every transfer and reset by mutation.
type EpochStats struct {
	TxCount     uint64       `json:"tx_count"`
	Volume      *uint256.Int `json:"volume"`
	DNASamples  uint64       `json:"dna_samples"`
	SumLoyalty  uint64       `json:"sum_loyalty"`
	SumActivity uint64       `json:"sum_activity"`
	SumAppetite uint64       `json:"sum_appetite"`
}

// NewEpochStats returns an empty accumulator.
func NewEpochStats() EpochStats {
	return EpochStats{Volume: new(uint256.Int)}
}

// RecordTransfer counts one transfer of amount.
func (s *EpochStats) RecordTransfer(amount *uint256.Int) {
	s.TxCount = SaturatingAdd64(s.TxCount, 1)
	s.Volume = SaturatingAdd256(s.Volume, amount)
}

// RecordDNA adds a post-update DNA sample to the epoch averages.
func (s *EpochStats) RecordDNA(d WalletDNA) {
	s.DNASamples = SaturatingAdd64(s.DNASamples, 1)
	s.SumLoyalty = SaturatingAdd64(s.SumLoyalty, uint64(d.Loyalty))
	s.SumActivity = SaturatingAdd64(s.SumActivity, uint64(d.Activity))
	s.SumAppetite = SaturatingAdd64(s.SumAppetite, uint64(d.Appetite))
}

// Averages returns the mean loyalty, activity and appetite of the epoch's
// DNA samples, or zeros when there were none.
func (s EpochStats) Averages() (loyalty, activity, appetite uint8) {
	if s.DNASamples == 0 {
		return 0, 0, 0
	}
	return uint8(s.SumLoyalty / s.DNASamples),
		uint8(s.SumActivity / s.DNASamples),
		uint8(s.SumAppetite / s.DNASamples)
}

// WalletDNA is a wallet's bounded behavioral reputation.
type WalletDNA struct {
	Wallet           common.Address `json:"wallet"`
	Loyalty          uint8          `json:"loyalty"`
	Activity         uint8          `json:"activity"`
	Appetite         uint8          `json:"appetite"`
	TxCount          uint64         `json:"tx_count"`
	FirstTxTimestamp int64          `json:"first_tx_timestamp"`
	LastTxTimestamp  int64          `json:"last_tx_timestamp"`
	TotalVolume      *uint256.Int   `json:"total_volume"`
	Fossilized       bool           `json:"fossilized"`
}

// NewWalletDNA returns the zero record for a wallet seen for the first time.
func NewWalletDNA(wallet common.Address) WalletDNA {
	return WalletDNA{Wallet: wallet, TotalVolume: new(uint256.Int)}
}

// IsNew reports whether the wallet has never participated in a transfer.
func (d WalletDNA) IsNew() bool {
	return d.TxCount == 0
}

// Clone returns a deep copy.
func (d WalletDNA) Clone() WalletDNA {
	c := d
	if d.TotalVolume != nil {
		c.TotalVolume = new(uint256.Int).Set(d.TotalVolume)
	} else {
		c.TotalVolume = new(uint256.Int)
	}
	return c
}

// ToIR converts the DNA to an IRObject.
func (d WalletDNA) ToIR() IRObject {
	return IRObject{
		"wallet":             IRString(d.Wallet.Hex()),
		"loyalty":            IRInt(d.Loyalty),
		"activity":           IRInt(d.Activity),
		"appetite":           IRInt(d.Appetite),
		"tx_count":           IRInt(d.TxCount),
		"first_tx_timestamp": IRInt(d.FirstTxTimestamp),
		"last_tx_timestamp":  IRInt(d.LastTxTimestamp),
		"total_volume":       IRString(FormatAmount(d.TotalVolume)),
		"fossilized":         IRBool(d.Fossilized),
	}
}

// FossilRecord is the immutable archive entry of an extinct wallet.
type FossilRecord struct {
	FossilIndex       uint64         `json:"fossil_index"`
	Wallet            common.Address `json:"wallet"`
	GenomeHash        common.Hash    `json:"genome_hash"`
	FossilizedAtEpoch uint64         `json:"fossilized_at_epoch"`
	FossilizedAt      int64          `json:"fossilized_at"`
	DNA               WalletDNA      `json:"dna"`
}

// ToIR converts the fossil to an IRObject.
func (f FossilRecord) ToIR() IRObject {
	return IRObject{
		"fossil_index":        IRInt(f.FossilIndex),
		"wallet":              IRString(f.Wallet.Hex()),
		"genome_hash":         IRString(f.GenomeHash.Hex()),
		"fossilized_at_epoch": IRInt(f.FossilizedAtEpoch),
		"fossilized_at":       IRInt(f.FossilizedAt),
		"dna":                 f.DNA.ToIR(),
	}
}

// InitParams are the caller-supplied genesis parameters.
type InitParams struct {
	Authority         common.Address `json:"authority"`
	Reserve           common.Address `json:"reserve"`
	TotalSupply       *uint256.Int   `json:"total_supply"`
	BurnRateBps       uint16         `json:"burn_rate_bps"`
	RedistRateBps     uint16         `json:"redist_rate_bps"`
	MaxWalletBps      uint16         `json:"max_wallet_bps"`
	EpochDurationDays uint16         `json:"epoch_duration_days"`
}

// ToIR converts the parameters to an IRObject.
func (p InitParams) ToIR() IRObject {
	return IRObject{
		"authority":           IRString(p.Authority.Hex()),
		"reserve":             IRString(p.Reserve.Hex()),
		"total_supply":        IRString(FormatAmount(p.TotalSupply)),
		"burn_rate_bps":       IRInt(p.BurnRateBps),
		"redist_rate_bps":     IRInt(p.RedistRateBps),
		"max_wallet_bps":      IRInt(p.MaxWalletBps),
		"epoch_duration_days": IRInt(p.EpochDurationDays),
	}
}

// InitParamsFromIR decodes parameters written by InitParams.ToIR.
func InitParamsFromIR(obj IRObject) (InitParams, error) {
	var p InitParams
	var err error
	if p.Authority, err = addressField(obj, "authority"); err != nil {
		return p, err
	}
	if p.Reserve, err = addressField(obj, "reserve"); err != nil {
		return p, err
	}
	if p.TotalSupply, err = amountField(obj, "total_supply"); err != nil {
		return p, err
	}
	fields := []struct {
		key string
		dst *uint16
	}{
		{"burn_rate_bps", &p.BurnRateBps},
		{"redist_rate_bps", &p.RedistRateBps},
		{"max_wallet_bps", &p.MaxWalletBps},
		{"epoch_duration_days", &p.EpochDurationDays},
	}
	for _, f := range fields {
		n, err := obj.Int(f.key)
		if err != nil {
			return p, err
		}
		if n < 0 || n > 0xffff {
			return p, fmt.Errorf("field %q: %d out of uint16 range", f.key, n)
		}
		*f.dst = uint16(n)
	}
	return p, nil
}

// LedgerState is the single config slot: lifecycle, authority, supply and
// the current genome with its epoch accumulator.
type LedgerState struct {
	Lifecycle     LifecycleState `json:"lifecycle"`
	Authority     common.Address `json:"authority"`
	Reserve       common.Address `json:"reserve"`
	TotalSupply   *uint256.Int   `json:"total_supply"`
	Genome        Genome         `json:"genome"`
	Stats         EpochStats     `json:"stats"`
	FossilCount   uint64         `json:"fossil_count"`
	InitializedAt int64          `json:"initialized_at"`
}

// IsWild reports whether the authority has been renounced.
func (s LedgerState) IsWild() bool {
	return s.Lifecycle == LifecycleWild
}

// ToIR converts the state to an IRObject for digests.
func (s LedgerState) ToIR() IRObject {
	return IRObject{
		"lifecycle":      IRString(s.Lifecycle.String()),
		"authority":      IRString(s.Authority.Hex()),
		"reserve":        IRString(s.Reserve.Hex()),
		"total_supply":   IRString(FormatAmount(s.TotalSupply)),
		"genome":         s.Genome.ToIR(),
		"fossil_count":   IRInt(s.FossilCount),
		"initialized_at": IRInt(s.InitializedAt),
		"stats": IRObject{
			"tx_count":     IRInt(s.Stats.TxCount),
			"volume":       IRString(FormatAmount(s.Stats.Volume)),
			"dna_samples":  IRInt(s.Stats.DNASamples),
			"sum_loyalty":  IRInt(s.Stats.SumLoyalty),
			"sum_activity": IRInt(s.Stats.SumActivity),
			"sum_appetite": IRInt(s.Stats.SumAppetite),
		},
	}
}

// MutationEvent describes one committed epoch transition.
type MutationEvent struct {
	EpochID    uint64         `json:"epoch_id"`
	Before     Genome         `json:"before"`
	After      Genome         `json:"after"`
	Mood       Mood           `json:"mood"`
	GenomeHash common.Hash    `json:"genome_hash"`
	NewFossils []FossilRecord `json:"new_fossils"`
}

// ToIR converts the event to an IRObject.
func (m MutationEvent) ToIR() IRObject {
	fossils := make(IRArray, len(m.NewFossils))
	for i, f := range m.NewFossils {
		fossils[i] = f.ToIR()
	}
	return IRObject{
		"epoch_id":    IRInt(m.EpochID),
		"before":      m.Before.ToIR(),
		"after":       m.After.ToIR(),
		"mood":        IRString(m.Mood.String()),
		"genome_hash": IRString(m.GenomeHash.Hex()),
		"new_fossils": fossils,
	}
}

// EventKind identifies an entry in the append-only event log.
type EventKind string

const (
	EventInitialized          EventKind = "initialized"
	EventTransfer             EventKind = "transfer"
	EventDNAUpdated           EventKind = "dna_updated"
	EventMutation             EventKind = "mutation"
	EventFossilMinted         EventKind = "fossil_minted"
	EventExclusionChanged     EventKind = "exclusion_changed"
	EventEpochDurationChanged EventKind = "epoch_duration_changed"
	EventReleasedToWild       EventKind = "released_to_wild"
)

// Event is one committed state transition. Payload carries the command
// inputs so the log can be replayed.
type Event struct {
	Seq       int64     `json:"seq"`
	ID        string    `json:"id"`
	Kind      EventKind `json:"kind"`
	Timestamp int64     `json:"timestamp"`
	Payload   IRObject  `json:"payload"`
}

func addressField(obj IRObject, key string) (common.Address, error) {
	s, err := obj.String(key)
	if err != nil {
		return common.Address{}, err
	}
	return ParseAddress(s)
}

func amountField(obj IRObject, key string) (*uint256.Int, error) {
	s, err := obj.String(key)
	if err != nil {
		return nil, err
	}
	return ParseAmount(s)
}
