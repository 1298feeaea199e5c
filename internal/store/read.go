package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/roach88/thyxel/internal/ir"
)

const configColumns = `
	lifecycle, authority, reserve, total_supply,
	burn_rate_bps, redist_rate_bps, max_wallet_bps,
	epoch_id, epoch_duration_days, last_mutation_timestamp, next_mutation_timestamp, mood,
	stat_tx_count, stat_volume, stat_dna_samples, stat_sum_loyalty, stat_sum_activity, stat_sum_appetite,
	fossil_count, initialized_at`

const dnaColumns = `
	wallet, loyalty, activity, appetite, tx_count,
	first_tx_timestamp, last_tx_timestamp, total_volume, fossilized`

const fossilColumns = `
	fossil_index, wallet, genome_hash, fossilized_at_epoch, fossilized_at,
	dna_loyalty, dna_activity, dna_appetite, dna_tx_count,
	dna_first_tx, dna_last_tx, dna_total_volume`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// LoadState returns the ledger config slot, or ErrNotFound before
// initialization.
func (r reader) LoadState(ctx context.Context) (ir.LedgerState, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+configColumns+` FROM config WHERE id = 1`)

	var (
		st                                          ir.LedgerState
		lifecycle, mood                             int
		authority, reserve, supply, volume          string
		burn, redist, maxWallet, days               int
		epochID, txCount, samples, sumL, sumA, sumP int64
		fossils                                     int64
	)
	err := row.Scan(
		&lifecycle, &authority, &reserve, &supply,
		&burn, &redist, &maxWallet,
		&epochID, &days, &st.Genome.LastMutationTimestamp, &st.Genome.NextMutationTimestamp, &mood,
		&txCount, &volume, &samples, &sumL, &sumA, &sumP,
		&fossils, &st.InitializedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.LedgerState{}, ErrNotFound
	}
	if err != nil {
		return ir.LedgerState{}, fmt.Errorf("load state: %w", err)
	}

	st.Lifecycle = ir.LifecycleState(lifecycle)
	if st.Authority, err = parseWallet(authority); err != nil {
		return ir.LedgerState{}, err
	}
	if st.Reserve, err = parseWallet(reserve); err != nil {
		return ir.LedgerState{}, err
	}
	if st.TotalSupply, err = unmarshalAmount(supply); err != nil {
		return ir.LedgerState{}, err
	}
	st.Genome.BurnRateBps = uint16(burn)
	st.Genome.RedistRateBps = uint16(redist)
	st.Genome.MaxWalletBps = uint16(maxWallet)
	st.Genome.EpochID = fromU64(epochID)
	st.Genome.EpochDurationDays = uint16(days)
	st.Genome.Mood = ir.Mood(mood)

	st.Stats = ir.NewEpochStats()
	st.Stats.TxCount = fromU64(txCount)
	if st.Stats.Volume, err = unmarshalAmount(volume); err != nil {
		return ir.LedgerState{}, err
	}
	st.Stats.DNASamples = fromU64(samples)
	st.Stats.SumLoyalty = fromU64(sumL)
	st.Stats.SumActivity = fromU64(sumA)
	st.Stats.SumAppetite = fromU64(sumP)
	st.FossilCount = fromU64(fossils)

	return st, nil
}

// Balance returns a wallet's balance. Unknown wallets hold zero.
func (r reader) Balance(ctx context.Context, w common.Address) (*uint256.Int, error) {
	var amount string
	err := r.q.QueryRowContext(ctx, `SELECT amount FROM balances WHERE wallet = ?`, walletKey(w)).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("query balance: %w", err)
	}
	return unmarshalAmount(amount)
}

// BalanceEntry is one row of the balances table.
type BalanceEntry struct {
	Wallet common.Address
	Amount *uint256.Int
}

// Balances returns every non-zero balance ordered by wallet.
func (r reader) Balances(ctx context.Context) ([]BalanceEntry, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT wallet, amount FROM balances
		WHERE amount != '0'
		ORDER BY wallet ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query balances: %w", err)
	}
	defer rows.Close()

	entries := []BalanceEntry{}
	for rows.Next() {
		var wallet, amount string
		if err := rows.Scan(&wallet, &amount); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		var e BalanceEntry
		if e.Wallet, err = parseWallet(wallet); err != nil {
			return nil, err
		}
		if e.Amount, err = unmarshalAmount(amount); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate balances: %w", err)
	}
	return entries, nil
}

// WalletDNA returns a wallet's DNA and whether it exists.
func (r reader) WalletDNA(ctx context.Context, w common.Address) (ir.WalletDNA, bool, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+dnaColumns+` FROM wallet_dna WHERE wallet = ?`, walletKey(w))
	d, err := scanDNA(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.NewWalletDNA(w), false, nil
	}
	if err != nil {
		return ir.WalletDNA{}, false, err
	}
	return d, true, nil
}

// AllWalletDNA returns every DNA record ordered by wallet.
func (r reader) AllWalletDNA(ctx context.Context) ([]ir.WalletDNA, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+dnaColumns+` FROM wallet_dna ORDER BY wallet ASC`)
	if err != nil {
		return nil, fmt.Errorf("query wallet dna: %w", err)
	}
	return collectDNA(rows)
}

// ExtinctionCandidates returns up to limit live wallets whose
// fossil_eligible_at is at or before now, earliest first. The scan is a
// range read of idx_wallet_dna_eligible: every row it visits is returned,
// so its cost is bounded by limit.
func (r reader) ExtinctionCandidates(ctx context.Context, now int64, limit int) ([]ir.WalletDNA, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+dnaColumns+`
		FROM wallet_dna
		WHERE fossilized = 0 AND fossil_eligible_at <= ?
		ORDER BY fossil_eligible_at ASC, wallet ASC
		LIMIT ?
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("query extinction candidates: %w", err)
	}
	return collectDNA(rows)
}

// FossilEligibleAt returns a wallet's scheduled extinction time.
func (r reader) FossilEligibleAt(ctx context.Context, w common.Address) (int64, error) {
	var at int64
	err := r.q.QueryRowContext(ctx, `SELECT fossil_eligible_at FROM wallet_dna WHERE wallet = ?`, walletKey(w)).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get fossil eligibility: %w", err)
	}
	return at, nil
}

func collectDNA(rows *sql.Rows) ([]ir.WalletDNA, error) {
	defer rows.Close()

	out := []ir.WalletDNA{}
	for rows.Next() {
		d, err := scanDNA(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallet dna: %w", err)
	}
	return out, nil
}

func scanDNA(row rowScanner) (ir.WalletDNA, error) {
	var (
		d                           ir.WalletDNA
		wallet, volume              string
		loyalty, activity, appetite int
		txCount                     int64
		fossilized                  int
	)
	err := row.Scan(&wallet, &loyalty, &activity, &appetite, &txCount,
		&d.FirstTxTimestamp, &d.LastTxTimestamp, &volume, &fossilized)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.WalletDNA{}, err
	}
	if err != nil {
		return ir.WalletDNA{}, fmt.Errorf("scan wallet dna: %w", err)
	}
	if d.Wallet, err = parseWallet(wallet); err != nil {
		return ir.WalletDNA{}, err
	}
	if d.TotalVolume, err = unmarshalAmount(volume); err != nil {
		return ir.WalletDNA{}, err
	}
	d.Loyalty = uint8(loyalty)
	d.Activity = uint8(activity)
	d.Appetite = uint8(appetite)
	d.TxCount = fromU64(txCount)
	d.Fossilized = fossilized != 0
	return d, nil
}

// IsExcluded reports whether a wallet is in the exclusion set.
func (r reader) IsExcluded(ctx context.Context, w common.Address) (bool, error) {
	var n int
	err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM exclusions WHERE wallet = ?`, walletKey(w)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query exclusion: %w", err)
	}
	return n > 0, nil
}

// Exclusions returns the exclusion set ordered by wallet.
func (r reader) Exclusions(ctx context.Context) ([]common.Address, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT wallet FROM exclusions ORDER BY wallet ASC`)
	if err != nil {
		return nil, fmt.Errorf("query exclusions: %w", err)
	}
	defer rows.Close()

	out := []common.Address{}
	for rows.Next() {
		var wallet string
		if err := rows.Scan(&wallet); err != nil {
			return nil, fmt.Errorf("scan exclusion: %w", err)
		}
		w, err := parseWallet(wallet)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exclusions: %w", err)
	}
	return out, nil
}

// Fossil returns the fossil at index, or ErrNotFound.
func (r reader) Fossil(ctx context.Context, index uint64) (ir.FossilRecord, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+fossilColumns+` FROM fossils WHERE fossil_index = ?`, u64(index))
	return scanFossil(row)
}

// FossilOf returns a wallet's fossil, or ErrNotFound.
func (r reader) FossilOf(ctx context.Context, w common.Address) (ir.FossilRecord, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+fossilColumns+` FROM fossils WHERE wallet = ?`, walletKey(w))
	return scanFossil(row)
}

// Fossils returns up to limit fossils starting at offset, in index order.
func (r reader) Fossils(ctx context.Context, offset uint64, limit int) ([]ir.FossilRecord, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+fossilColumns+`
		FROM fossils
		WHERE fossil_index >= ?
		ORDER BY fossil_index ASC
		LIMIT ?
	`, u64(offset), limit)
	if err != nil {
		return nil, fmt.Errorf("query fossils: %w", err)
	}
	defer rows.Close()

	out := []ir.FossilRecord{}
	for rows.Next() {
		f, err := scanFossil(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fossils: %w", err)
	}
	return out, nil
}

func scanFossil(row rowScanner) (ir.FossilRecord, error) {
	var (
		f                           ir.FossilRecord
		index, epoch, txCount       int64
		wallet, hash, volume        string
		loyalty, activity, appetite int
	)
	err := row.Scan(&index, &wallet, &hash, &epoch, &f.FossilizedAt,
		&loyalty, &activity, &appetite, &txCount,
		&f.DNA.FirstTxTimestamp, &f.DNA.LastTxTimestamp, &volume)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.FossilRecord{}, ErrNotFound
	}
	if err != nil {
		return ir.FossilRecord{}, fmt.Errorf("scan fossil: %w", err)
	}
	if f.Wallet, err = parseWallet(wallet); err != nil {
		return ir.FossilRecord{}, err
	}
	if f.DNA.TotalVolume, err = unmarshalAmount(volume); err != nil {
		return ir.FossilRecord{}, err
	}
	f.FossilIndex = fromU64(index)
	f.GenomeHash = common.HexToHash(hash)
	f.FossilizedAtEpoch = fromU64(epoch)
	f.DNA.Wallet = f.Wallet
	f.DNA.Loyalty = uint8(loyalty)
	f.DNA.Activity = uint8(activity)
	f.DNA.Appetite = uint8(appetite)
	f.DNA.TxCount = fromU64(txCount)
	f.DNA.Fossilized = true
	return f, nil
}

// Events returns up to limit events with seq > afterSeq, in seq order.
func (r reader) Events(ctx context.Context, afterSeq int64, limit int) ([]ir.Event, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT seq, id, kind, timestamp, payload
		FROM events
		WHERE seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	out := []ir.Event{}
	for rows.Next() {
		var (
			ev      ir.Event
			kind    string
			payload string
		)
		if err := rows.Scan(&ev.Seq, &ev.ID, &kind, &ev.Timestamp, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Kind = ir.EventKind(kind)
		if err := ev.Payload.UnmarshalJSON([]byte(payload)); err != nil {
			return nil, fmt.Errorf("decode event %d payload: %w", ev.Seq, err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

// LastEventSeq returns the highest event seq, or 0 for an empty log.
func (r reader) LastEventSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := r.q.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM events`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("query last event seq: %w", err)
	}
	return seq, nil
}
