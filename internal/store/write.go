package store

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/roach88/thyxel/internal/ir"
)

func stateArgs(st ir.LedgerState) []any {
	g := st.Genome
	s := st.Stats
	return []any{
		int(st.Lifecycle), walletKey(st.Authority), walletKey(st.Reserve), marshalAmount(st.TotalSupply),
		int(g.BurnRateBps), int(g.RedistRateBps), int(g.MaxWalletBps),
		u64(g.EpochID), int(g.EpochDurationDays), g.LastMutationTimestamp, g.NextMutationTimestamp, int(g.Mood),
		u64(s.TxCount), marshalAmount(s.Volume), u64(s.DNASamples), u64(s.SumLoyalty), u64(s.SumActivity), u64(s.SumAppetite),
		u64(st.FossilCount), st.InitializedAt,
	}
}

// InsertState creates the config slot. Returns ErrAlreadyInitialized if it
// already exists.
func (t *Tx) InsertState(ctx context.Context, st ir.LedgerState) error {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO config (id, `+configColumns+`)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, stateArgs(st)...)
	if err != nil {
		return fmt.Errorf("insert state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert state: rows affected: %w", err)
	}
	if n == 0 {
		return ErrAlreadyInitialized
	}
	return nil
}

// SaveState overwrites the config slot. Returns ErrNotFound before
// initialization.
func (t *Tx) SaveState(ctx context.Context, st ir.LedgerState) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE config SET
			lifecycle = ?, authority = ?, reserve = ?, total_supply = ?,
			burn_rate_bps = ?, redist_rate_bps = ?, max_wallet_bps = ?,
			epoch_id = ?, epoch_duration_days = ?, last_mutation_timestamp = ?, next_mutation_timestamp = ?, mood = ?,
			stat_tx_count = ?, stat_volume = ?, stat_dna_samples = ?, stat_sum_loyalty = ?, stat_sum_activity = ?, stat_sum_appetite = ?,
			fossil_count = ?, initialized_at = ?
		WHERE id = 1
	`, stateArgs(st)...)
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save state: rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetBalance writes a wallet's balance.
func (t *Tx) SetBalance(ctx context.Context, w common.Address, amount *uint256.Int) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO balances (wallet, amount) VALUES (?, ?)
		ON CONFLICT(wallet) DO UPDATE SET amount = excluded.amount
	`, walletKey(w), marshalAmount(amount))
	if err != nil {
		return fmt.Errorf("set balance: %w", err)
	}
	return nil
}

// PutWalletDNA inserts or replaces a wallet's DNA together with the time
// from which the extinction scan should consider it.
func (t *Tx) PutWalletDNA(ctx context.Context, d ir.WalletDNA, eligibleAt int64) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO wallet_dna (`+dnaColumns+`, fossil_eligible_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(wallet) DO UPDATE SET
			loyalty = excluded.loyalty,
			activity = excluded.activity,
			appetite = excluded.appetite,
			tx_count = excluded.tx_count,
			first_tx_timestamp = excluded.first_tx_timestamp,
			last_tx_timestamp = excluded.last_tx_timestamp,
			total_volume = excluded.total_volume,
			fossilized = excluded.fossilized,
			fossil_eligible_at = excluded.fossil_eligible_at
	`,
		walletKey(d.Wallet),
		int(d.Loyalty), int(d.Activity), int(d.Appetite),
		u64(d.TxCount),
		d.FirstTxTimestamp, d.LastTxTimestamp,
		marshalAmount(d.TotalVolume),
		boolInt(d.Fossilized),
		eligibleAt,
	)
	if err != nil {
		return fmt.Errorf("put wallet dna: %w", err)
	}
	return nil
}

// SetFossilEligibleAt reschedules a wallet in the extinction scan. A wallet
// without DNA is left alone.
func (t *Tx) SetFossilEligibleAt(ctx context.Context, w common.Address, at int64) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE wallet_dna SET fossil_eligible_at = ? WHERE wallet = ?`, at, walletKey(w))
	if err != nil {
		return fmt.Errorf("set fossil eligibility: %w", err)
	}
	return nil
}

// SetExcluded adds or removes a wallet from the exclusion set. Both
// directions are idempotent.
func (t *Tx) SetExcluded(ctx context.Context, w common.Address, excluded bool) error {
	var err error
	if excluded {
		_, err = t.tx.ExecContext(ctx, `INSERT INTO exclusions (wallet) VALUES (?) ON CONFLICT(wallet) DO NOTHING`, walletKey(w))
	} else {
		_, err = t.tx.ExecContext(ctx, `DELETE FROM exclusions WHERE wallet = ?`, walletKey(w))
	}
	if err != nil {
		return fmt.Errorf("set exclusion: %w", err)
	}
	return nil
}

// InsertFossil appends a fossil record. Uses ON CONFLICT(wallet) DO NOTHING
// for idempotency: if the wallet is already archived, returns the existing
// record and inserted=false.
func (t *Tx) InsertFossil(ctx context.Context, f ir.FossilRecord) (ir.FossilRecord, bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO fossils (`+fossilColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(wallet) DO NOTHING
	`,
		u64(f.FossilIndex), walletKey(f.Wallet), f.GenomeHash.Hex(),
		u64(f.FossilizedAtEpoch), f.FossilizedAt,
		int(f.DNA.Loyalty), int(f.DNA.Activity), int(f.DNA.Appetite), u64(f.DNA.TxCount),
		f.DNA.FirstTxTimestamp, f.DNA.LastTxTimestamp, marshalAmount(f.DNA.TotalVolume),
	)
	if err != nil {
		return ir.FossilRecord{}, false, fmt.Errorf("insert fossil: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return ir.FossilRecord{}, false, fmt.Errorf("insert fossil: rows affected: %w", err)
	}
	if n > 0 {
		return f, true, nil
	}

	existing, err := t.FossilOf(ctx, f.Wallet)
	if err != nil {
		return ir.FossilRecord{}, false, fmt.Errorf("insert fossil: get existing: %w", err)
	}
	return existing, false, nil
}

// AppendEvent assigns the next seq, derives the event ID and appends the
// event to the log.
func (t *Tx) AppendEvent(ctx context.Context, kind ir.EventKind, timestamp int64, payload ir.IRObject) (ir.Event, error) {
	last, err := t.LastEventSeq(ctx)
	if err != nil {
		return ir.Event{}, err
	}
	ev := ir.Event{Seq: last + 1, Kind: kind, Timestamp: timestamp, Payload: payload}
	if ev.ID, err = ir.EventID(kind, ev.Seq, timestamp, payload); err != nil {
		return ir.Event{}, fmt.Errorf("append event: %w", err)
	}

	data, err := ir.MarshalCanonical(payload)
	if err != nil {
		return ir.Event{}, fmt.Errorf("append event: marshal payload: %w", err)
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO events (seq, id, kind, timestamp, payload)
		VALUES (?, ?, ?, ?, ?)
	`, ev.Seq, ev.ID, string(kind), timestamp, string(data))
	if err != nil {
		return ir.Event{}, fmt.Errorf("append event: %w", err)
	}
	return ev, nil
}
